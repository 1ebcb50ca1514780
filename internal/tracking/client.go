package tracking

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/careride/internal/models"
	"github.com/example/careride/internal/sampler"
)

// Banner states surfaced to the driver UI.
const (
	BannerLive         = "live"
	BannerReconnecting = "reconnecting"
	BannerUnavailable  = "tracking_unavailable"
)

// ReconnectBackoff is the single fixed retry delay after a transport
// error. One attempt only; sustained outages end in BannerUnavailable
// rather than a tight reconnect loop.
const ReconnectBackoff = 5 * time.Second

// Conn is the subset of the websocket connection the client uses,
// narrowed for tests.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Dialer opens a tracking channel connection.
type Dialer func(ctx context.Context) (Conn, error)

// WebsocketDialer dials a real gorilla connection to the given URL.
func WebsocketDialer(url string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		return conn, err
	}
}

// ChannelClient is the driver-side end of the tracking channel. It
// implements sampler.Sink so the geolocation sampler can flush batches
// straight into it. While disconnected it synthesizes approximate
// placeholder positions for the local display, tagged SourceSynthetic.
type ChannelClient struct {
	dial     Dialer
	ride     models.Ride
	driverID string

	onState func(string)
	onFix   func(models.LocationFix)

	mu        sync.Mutex
	conn      Conn
	lastKnown models.Coord
	retried   bool
	rng       *rand.Rand
	sleep     func(time.Duration)
}

var _ sampler.Sink = (*ChannelClient)(nil)

type ClientOption func(*ChannelClient)

// WithStateFunc registers the UI banner callback.
func WithStateFunc(fn func(string)) ClientOption {
	return func(c *ChannelClient) { c.onState = fn }
}

// WithFixFunc registers the local display callback, which also
// receives synthetic placeholders.
func WithFixFunc(fn func(models.LocationFix)) ClientOption {
	return func(c *ChannelClient) { c.onFix = fn }
}

func withSleep(fn func(time.Duration)) ClientOption {
	return func(c *ChannelClient) { c.sleep = fn }
}

func NewChannelClient(dial Dialer, ride models.Ride, driverID string, opts ...ClientOption) *ChannelClient {
	c := &ChannelClient{
		dial:      dial,
		ride:      ride,
		driverID:  driverID,
		lastKnown: ride.Pickup,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:     time.Sleep,
		onState:   func(string) {},
		onFix:     func(models.LocationFix) {},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect dials and performs the start_tracking handshake.
func (c *ChannelClient) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	hello := Message{Type: TypeStartTracking, Role: models.RoleDriver, UserID: c.driverID, RideID: c.ride.ID}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return err
	}
	var ack Message
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return err
	}
	if ack.Type != TypeTrackingStarted {
		_ = conn.Close()
		return errors.New("tracking channel: handshake rejected: " + ack.Message)
	}
	c.mu.Lock()
	c.conn = conn
	c.retried = false
	c.mu.Unlock()
	c.onState(BannerLive)
	return nil
}

// PublishFixes sends a flushed batch over the channel. On transport
// error it emits a synthetic placeholder for the display, attempts one
// reconnect after the fixed backoff, and returns the error so the
// sampler re-queues the batch for its single retry cycle.
func (c *ChannelClient) PublishFixes(ctx context.Context, fixes []models.LocationFix) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.degrade()
		return c.reconnectOnce(ctx)
	}
	for _, fix := range fixes {
		msg := locationMessage(c.ride.ID, c.driverID, fix)
		if err := conn.WriteJSON(msg); err != nil {
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			_ = conn.Close()
			c.degrade()
			if rerr := c.reconnectOnce(ctx); rerr != nil {
				return rerr
			}
			return err
		}
		c.mu.Lock()
		c.lastKnown = fix.Coord()
		c.mu.Unlock()
		c.onFix(fix)
	}
	return nil
}

// degrade publishes an approximate placeholder position so the rider
// view keeps moving while the channel is down. Never sent upstream.
func (c *ChannelClient) degrade() {
	c.onState(BannerReconnecting)
	c.mu.Lock()
	last := c.lastKnown
	rng := c.rng
	c.mu.Unlock()
	waypoint := sampler.NextWaypoint(c.ride)
	fix := sampler.Synthetic(last, waypoint, rng, time.Now())
	c.mu.Lock()
	c.lastKnown = fix.Coord()
	c.mu.Unlock()
	c.onFix(fix)
}

func (c *ChannelClient) reconnectOnce(ctx context.Context) error {
	c.mu.Lock()
	already := c.retried
	c.retried = true
	c.mu.Unlock()
	if already {
		c.onState(BannerUnavailable)
		return errors.New("tracking channel: reconnect already attempted")
	}
	c.sleep(ReconnectBackoff)
	if err := c.Connect(ctx); err != nil {
		c.onState(BannerUnavailable)
		return err
	}
	return nil
}

// Stop sends stop_tracking and closes the connection. Clients call
// this on navigation away from the tracking view.
func (c *ChannelClient) Stop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	_ = conn.WriteJSON(Message{Type: TypeStopTracking, Role: models.RoleDriver, UserID: c.driverID, RideID: c.ride.ID})
	_ = conn.Close()
}
