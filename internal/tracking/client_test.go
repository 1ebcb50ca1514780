package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/careride/internal/models"
)

// fakeConn scripts one tracking channel connection.
type fakeConn struct {
	written   []Message
	failAfter int // fail WriteJSON once this many writes succeeded; -1 never
	rejectAck bool
	closed    bool
}

func newFakeConn() *fakeConn { return &fakeConn{failAfter: -1} }

func (f *fakeConn) WriteJSON(v any) error {
	if f.failAfter >= 0 && len(f.written) >= f.failAfter {
		return errors.New("broken pipe")
	}
	f.written = append(f.written, v.(Message))
	return nil
}

func (f *fakeConn) ReadJSON(v any) error {
	msg := v.(*Message)
	if f.rejectAck {
		*msg = Message{Type: TypeError, Message: "ride is not in a trackable status"}
		return nil
	}
	*msg = Message{Type: TypeTrackingStarted, RideID: "r1"}
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func testRide() models.Ride {
	return models.Ride{
		ID:      "r1",
		RiderID: "u1",
		Pickup:  models.Coord{Lat: 40.758, Lng: -73.9855},
		Dropoff: models.Coord{Lat: 40.7484, Lng: -73.9857},
		Status:  models.RideEnRoute,
	}
}

type bannerLog struct{ states []string }

func (b *bannerLog) record(s string) { b.states = append(b.states, s) }

func TestClientHandshake(t *testing.T) {
	conn := newFakeConn()
	banners := &bannerLog{}
	c := NewChannelClient(func(context.Context) (Conn, error) { return conn, nil },
		testRide(), "d1", WithStateFunc(banners.record))

	require.NoError(t, c.Connect(context.Background()))
	require.Len(t, conn.written, 1)
	require.Equal(t, TypeStartTracking, conn.written[0].Type)
	require.Equal(t, "r1", conn.written[0].RideID)
	require.Equal(t, []string{BannerLive}, banners.states)
}

func TestClientHandshakeRejected(t *testing.T) {
	conn := newFakeConn()
	conn.rejectAck = true
	c := NewChannelClient(func(context.Context) (Conn, error) { return conn, nil }, testRide(), "d1")

	err := c.Connect(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "handshake rejected")
	require.True(t, conn.closed)
}

func TestClientPublishesBatch(t *testing.T) {
	conn := newFakeConn()
	var displayed []models.LocationFix
	c := NewChannelClient(func(context.Context) (Conn, error) { return conn, nil },
		testRide(), "d1", WithFixFunc(func(f models.LocationFix) { displayed = append(displayed, f) }))
	require.NoError(t, c.Connect(context.Background()))

	fixes := []models.LocationFix{
		{Lat: 40.757, Lng: -73.985, AccuracyM: 8, CapturedAt: time.Now(), Source: models.SourceDevice},
		{Lat: 40.756, Lng: -73.984, AccuracyM: 9, CapturedAt: time.Now(), Source: models.SourceDevice},
	}
	require.NoError(t, c.PublishFixes(context.Background(), fixes))

	// handshake plus both location frames
	require.Len(t, conn.written, 3)
	require.Equal(t, TypeLocationUpdate, conn.written[1].Type)
	require.Len(t, displayed, 2)
	require.Equal(t, models.SourceDevice, displayed[0].Source)
}

func TestClientDegradesAndReconnectsOnce(t *testing.T) {
	bad := newFakeConn()
	bad.failAfter = 1 // handshake succeeds, first location write fails
	good := newFakeConn()
	conns := []*fakeConn{bad, good}
	var slept []time.Duration
	banners := &bannerLog{}
	var displayed []models.LocationFix

	dial := func(context.Context) (Conn, error) {
		c := conns[0]
		if len(conns) > 1 {
			conns = conns[1:]
		}
		return c, nil
	}
	c := NewChannelClient(dial, testRide(), "d1",
		WithStateFunc(banners.record),
		WithFixFunc(func(f models.LocationFix) { displayed = append(displayed, f) }),
		withSleep(func(d time.Duration) { slept = append(slept, d) }))
	require.NoError(t, c.Connect(context.Background()))

	fix := models.LocationFix{Lat: 40.757, Lng: -73.985, AccuracyM: 8, CapturedAt: time.Now(), Source: models.SourceDevice}
	err := c.PublishFixes(context.Background(), []models.LocationFix{fix})
	require.Error(t, err) // batch stays queued with the sampler

	// one fixed backoff, then a fresh connection
	require.Equal(t, []time.Duration{ReconnectBackoff}, slept)
	require.Equal(t, []string{BannerLive, BannerReconnecting, BannerLive}, banners.states)
	require.True(t, bad.closed)

	// the placeholder shown while down is synthetic and moved toward
	// the next waypoint
	require.Len(t, displayed, 1)
	require.Equal(t, models.SourceSynthetic, displayed[0].Source)

	// the retried batch goes out over the new connection
	require.NoError(t, c.PublishFixes(context.Background(), []models.LocationFix{fix}))
	require.Equal(t, TypeLocationUpdate, good.written[len(good.written)-1].Type)
}

func TestClientGivesUpAfterSecondFailure(t *testing.T) {
	bad := newFakeConn()
	bad.failAfter = 1
	banners := &bannerLog{}
	dialErr := errors.New("dial refused")
	first := true
	dial := func(context.Context) (Conn, error) {
		if first {
			first = false
			return bad, nil
		}
		return nil, dialErr
	}
	c := NewChannelClient(dial, testRide(), "d1",
		WithStateFunc(banners.record),
		withSleep(func(time.Duration) {}))
	require.NoError(t, c.Connect(context.Background()))

	fix := models.LocationFix{Lat: 40.757, Lng: -73.985, AccuracyM: 8, CapturedAt: time.Now(), Source: models.SourceDevice}
	err := c.PublishFixes(context.Background(), []models.LocationFix{fix})
	require.ErrorIs(t, err, dialErr)
	require.Equal(t, BannerUnavailable, banners.states[len(banners.states)-1])

	// no second reconnect attempt
	err = c.PublishFixes(context.Background(), []models.LocationFix{fix})
	require.Error(t, err)
	require.Contains(t, err.Error(), "already attempted")
}

func TestClientStopSendsStopTracking(t *testing.T) {
	conn := newFakeConn()
	c := NewChannelClient(func(context.Context) (Conn, error) { return conn, nil }, testRide(), "d1")
	require.NoError(t, c.Connect(context.Background()))

	c.Stop(context.Background())
	require.True(t, conn.closed)
	require.Equal(t, TypeStopTracking, conn.written[len(conn.written)-1].Type)

	// idempotent
	c.Stop(context.Background())
}
