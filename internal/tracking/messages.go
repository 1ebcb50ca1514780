package tracking

import (
	"encoding/json"
	"time"

	"github.com/example/careride/internal/models"
)

// Wire message types exchanged over the tracking channel.
const (
	TypeStartTracking   = "start_tracking"
	TypeStopTracking    = "stop_tracking"
	TypeLocationUpdate  = "location_update"
	TypeTrackingStarted = "tracking_started"
	TypeTrackingStopped = "tracking_stopped"
	TypeNotification    = "notification"
	TypeError           = "error"
)

type WireLocation struct {
	Lat       float64          `json:"lat"`
	Lng       float64          `json:"lng"`
	Timestamp time.Time        `json:"timestamp"`
	Source    models.FixSource `json:"source,omitempty"`
}

// Message is the JSON envelope for every frame on the channel, both
// directions.
type Message struct {
	Type     string          `json:"type"`
	Role     string          `json:"role,omitempty"`
	UserID   string          `json:"user_id,omitempty"`
	DriverID string          `json:"driver_id,omitempty"`
	RideID   string          `json:"ride_id,omitempty"`
	Location *WireLocation   `json:"location,omitempty"`
	Message  string          `json:"message,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

func locationMessage(rideID, driverID string, fix models.LocationFix) Message {
	return Message{
		Type:     TypeLocationUpdate,
		RideID:   rideID,
		DriverID: driverID,
		Location: &WireLocation{
			Lat:       fix.Lat,
			Lng:       fix.Lng,
			Timestamp: fix.CapturedAt,
			Source:    fix.Source,
		},
	}
}
