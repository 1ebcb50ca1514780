package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/example/careride/internal/geo"
	"github.com/example/careride/internal/models"
	"github.com/example/careride/internal/observability"
)

// RideSource reads the ride record, which stays the source of truth
// for whether tracking should be active.
type RideSource interface {
	GetRide(ctx context.Context, id string) (models.Ride, error)
}

// FixSink hands accepted fixes to an external pipeline that owns the
// rolling window. When one is set, the hub stops writing the window
// itself so each fix is stored exactly once.
type FixSink interface {
	PublishFix(ctx context.Context, rideID, driverID string, fix models.LocationFix) error
}

var (
	ErrMissingRideID = errors.New("missing ride id")
	ErrNotTrackable  = errors.New("ride is not in a trackable status")
	ErrNoSession     = &NoSessionError{}
)

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no live tracking session for user" }

// Subscription is one client's attachment to a ride's channel. Both
// the WebSocket writer and the SSE handler drain C.
type Subscription struct {
	ID      string
	RideID  string
	UserID  string
	Session *Session
	C       chan []byte

	hub *Hub
}

func (s *Subscription) Close() { s.hub.unsubscribe(s) }

// Hub owns the per-ride subscriber sets and relays driver positions to
// everyone subscribed at time of send. No replay is offered beyond the
// rolling window.
type Hub struct {
	mu     sync.RWMutex
	rides  map[string]map[string]*Subscription
	window WindowStore
	sink   FixSink
	source RideSource
	log    *slog.Logger
}

// UseSink routes window persistence through an external pipeline. Live
// fan-out to subscribers is unaffected.
func (h *Hub) UseSink(sink FixSink) { h.sink = sink }

func NewHub(window WindowStore, source RideSource, log *slog.Logger) *Hub {
	return &Hub{
		rides:  make(map[string]map[string]*Subscription),
		window: window,
		source: source,
		log:    log,
	}
}

// Subscribe attaches a client to a ride's channel, running the session
// through connecting -> open.
func (h *Hub) Subscribe(ctx context.Context, rideID, userID, role string) (*Subscription, error) {
	if rideID == "" {
		return nil, ErrMissingRideID
	}
	ride, err := h.source.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !models.Trackable(ride.Status) {
		return nil, ErrNotTrackable
	}
	sess := NewSession(rideID, userID, role)
	if err := sess.Connect(); err != nil {
		return nil, err
	}
	if err := sess.Open(); err != nil {
		return nil, err
	}
	sub := &Subscription{
		ID:      uuid.NewString(),
		RideID:  rideID,
		UserID:  userID,
		Session: sess,
		C:       make(chan []byte, 64),
		hub:     h,
	}
	h.mu.Lock()
	set := h.rides[rideID]
	if set == nil {
		set = make(map[string]*Subscription)
		h.rides[rideID] = set
	}
	set[sub.ID] = sub
	h.mu.Unlock()
	observability.TrackingSubscribers.Inc()
	h.log.Info("tracking_subscribed", "ride_id", rideID, "user_id", userID, "role", role)
	return sub, nil
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	set, ok := h.rides[sub.RideID]
	if ok {
		if _, live := set[sub.ID]; live {
			delete(set, sub.ID)
			close(sub.C)
			observability.TrackingSubscribers.Dec()
		}
		if len(set) == 0 {
			delete(h.rides, sub.RideID)
		}
	}
	h.mu.Unlock()
	sub.Session.Close()
}

// PublishFix relays a fix to the subscribers of the ride at time of
// send. Fixes for rides outside the trackable set are dropped, not
// queued.
func (h *Hub) PublishFix(ctx context.Context, rideID, driverID string, fix models.LocationFix) int {
	ride, err := h.source.GetRide(ctx, rideID)
	if err != nil || !models.Trackable(ride.Status) {
		observability.FixesDropped.WithLabelValues("untrackable").Inc()
		return 0
	}
	if !geo.Authoritative(fix) {
		observability.FixesDropped.WithLabelValues("low_accuracy").Inc()
		return 0
	}
	if h.sink != nil {
		if err := h.sink.PublishFix(ctx, rideID, driverID, fix); err != nil {
			h.log.Warn("fix sink publish failed", "ride_id", rideID, "error", err)
		}
	} else if err := h.window.Append(ctx, rideID, fix); err != nil {
		h.log.Warn("window append failed", "ride_id", rideID, "error", err)
	}
	raw, err := json.Marshal(locationMessage(rideID, driverID, fix))
	if err != nil {
		return 0
	}
	delivered := 0
	h.mu.RLock()
	for _, sub := range h.rides[rideID] {
		select {
		case sub.C <- raw:
			delivered++
			_ = sub.Session.FixRelayed(fix.CapturedAt)
		default:
			// slow consumer; this frame is lost for them
			observability.FixesDropped.WithLabelValues("slow_subscriber").Inc()
		}
	}
	h.mu.RUnlock()
	observability.FixesRelayed.Add(float64(delivered))
	return delivered
}

// CloseRide ends every session for a ride when it leaves the trackable
// status set. Subsequent publishes for the ride are dropped.
func (h *Hub) CloseRide(ctx context.Context, rideID string) {
	raw, _ := json.Marshal(Message{Type: TypeTrackingStopped, RideID: rideID})
	h.mu.Lock()
	set := h.rides[rideID]
	delete(h.rides, rideID)
	for _, sub := range set {
		select {
		case sub.C <- raw:
		default:
		}
		close(sub.C)
		sub.Session.Close()
		observability.TrackingSubscribers.Dec()
	}
	h.mu.Unlock()
	if err := h.window.Clear(ctx, rideID); err != nil {
		h.log.Warn("window clear failed", "ride_id", rideID, "error", err)
	}
	h.log.Info("tracking_closed", "ride_id", rideID, "subscribers", len(set))
}

// SendToUser delivers an in-app notification frame over any live
// subscription the user holds. This is the realtime channel of the
// notification dispatcher.
func (h *Hub) SendToUser(userID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(Message{Type: TypeNotification, UserID: userID, Payload: body})
	if err != nil {
		return err
	}
	found := false
	h.mu.RLock()
	for _, set := range h.rides {
		for _, sub := range set {
			if sub.UserID != userID {
				continue
			}
			found = true
			select {
			case sub.C <- raw:
			default:
			}
		}
	}
	h.mu.RUnlock()
	if !found {
		return ErrNoSession
	}
	return nil
}

// Window exposes the rolling fix history for new read-only
// subscribers; nothing beyond it is replayed.
func (h *Hub) Window(ctx context.Context, rideID string) ([]models.LocationFix, error) {
	return h.window.Window(ctx, rideID)
}

// Subscribers reports the live subscriber count for a ride.
func (h *Hub) Subscribers(rideID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rides[rideID])
}
