package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FixSource distinguishes real device readings from synthesized
// placeholder positions produced while the tracking channel is down.
type FixSource string

const (
	SourceDevice    FixSource = "device"
	SourceSynthetic FixSource = "synthetic"
)

// LocationFix is one sampled device location reading. Immutable once
// created; kept only in the per-ride rolling window after relay.
type LocationFix struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	AccuracyM      float64   `json:"accuracy_m"`
	Heading        *float64  `json:"heading,omitempty"`
	SpeedMph       *float64  `json:"speed_mph,omitempty"`
	BatteryPercent *int      `json:"battery_percent,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
	Source         FixSource `json:"source"`
}

func (f LocationFix) Coord() Coord { return Coord{Lat: f.Lat, Lng: f.Lng} }

// RouteEstimate is recomputed per request and never persisted.
// IsFallback marks locally computed approximations so the UI can
// disclose them.
type RouteEstimate struct {
	DistanceText  string  `json:"distance_text"`
	DurationText  string  `json:"duration_text"`
	DistanceMiles float64 `json:"distance_miles"`
	DurationMins  float64 `json:"duration_mins"`
	IsFallback    bool    `json:"is_fallback"`
	Unavailable   bool    `json:"unavailable,omitempty"`
}

// Ride statuses. Tracking is active only while the ride is in the
// trackable set.
const (
	RidePending    = "pending"
	RideAccepted   = "accepted"
	RideEnRoute    = "en_route"
	RideArrived    = "arrived"
	RideInProgress = "in_progress"
	RideCompleted  = "completed"
	RideCancelled  = "cancelled"
)

func Trackable(status string) bool {
	switch status {
	case RideEnRoute, RideArrived, RideInProgress:
		return true
	}
	return false
}

// ValidRideStatus reports whether status is one of the known ride
// statuses. Anything else is a caller error, not a new state.
func ValidRideStatus(status string) bool {
	switch status {
	case RidePending, RideAccepted, RideEnRoute, RideArrived, RideInProgress, RideCompleted, RideCancelled:
		return true
	}
	return false
}

type Ride struct {
	ID          string    `json:"id"`
	RiderID     string    `json:"rider_id"`
	DriverID    string    `json:"driver_id,omitempty"`
	Pickup      Coord     `json:"pickup"`
	Dropoff     Coord     `json:"dropoff"`
	Status      string    `json:"status"`
	FareCents   int64     `json:"fare_cents,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Category string

const (
	CategoryRideUpdate Category = "ride_update"
	CategoryPayment    Category = "payment"
	CategoryAlert      Category = "alert"
	CategorySystem     Category = "system"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// NotificationEvent is consumed immediately by the dispatcher; there is
// no durable queue, so in-flight events are lost on restart.
type NotificationEvent struct {
	TemplateID string            `json:"template_id"`
	UserID     string            `json:"user_id"`
	Category   Category          `json:"category"`
	Priority   Priority          `json:"priority"`
	Data       map[string]string `json:"data"`
}

// Preferences are read as a snapshot at dispatch time; concurrent
// settings updates do not affect an in-flight send.
type Preferences struct {
	EmailEnabled    bool `json:"email_enabled"`
	SMSEnabled      bool `json:"sms_enabled"`
	PushEnabled     bool `json:"push_enabled"`
	RideUpdates     bool `json:"ride_updates"`
	PaymentAlerts   bool `json:"payment_alerts"`
	SystemAlerts    bool `json:"system_alerts"`
	MarketingEmails bool `json:"marketing_emails"`
	EmergencyOnly   bool `json:"emergency_only"`
}

const (
	RoleDriver = "driver"
	RoleRider  = "rider"
	RoleAdmin  = "admin"
)

type User struct {
	ID              string      `json:"id"`
	Role            string      `json:"role"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	EmailVerified   bool        `json:"email_verified"`
	PushTokens      []string    `json:"push_tokens,omitempty"`
	Prefs           Preferences `json:"prefs"`
	LicenseExpiry   *time.Time  `json:"license_expiry,omitempty"`
	InsuranceExpiry *time.Time  `json:"insurance_expiry,omitempty"`
	RegisteredAt    time.Time   `json:"registered_at"`
	LastActiveAt    time.Time   `json:"last_active_at"`
}

// ChannelStatus tags a per-channel delivery outcome so callers cannot
// mistake an absent field for success.
type ChannelStatus string

const (
	ChannelSent          ChannelStatus = "sent"
	ChannelFailed        ChannelStatus = "failed"
	ChannelNotConfigured ChannelStatus = "not_configured"
	ChannelSkipped       ChannelStatus = "skipped"
)

type ChannelResult struct {
	Status     ChannelStatus `json:"status"`
	ProviderID string        `json:"provider_id,omitempty"`
	SentCount  int           `json:"sent_count,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

func Sent(providerID string) ChannelResult {
	return ChannelResult{Status: ChannelSent, ProviderID: providerID}
}

func SentCount(n int) ChannelResult {
	return ChannelResult{Status: ChannelSent, SentCount: n}
}

func Failed(reason string) ChannelResult {
	return ChannelResult{Status: ChannelFailed, Reason: reason}
}

func NotConfigured() ChannelResult {
	return ChannelResult{Status: ChannelNotConfigured, Reason: "channel not configured"}
}

func Skipped() ChannelResult { return ChannelResult{Status: ChannelSkipped} }

// DispatchResult records every attempt's outcome for one logical
// notification. Used for logging only; nothing is retried.
type DispatchResult struct {
	Email    ChannelResult `json:"email"`
	SMS      ChannelResult `json:"sms"`
	Push     ChannelResult `json:"push"`
	Realtime ChannelResult `json:"realtime"`
}
