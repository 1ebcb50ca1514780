package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/careride/internal/eta"
	"github.com/example/careride/internal/models"
	"github.com/example/careride/internal/notify"
	"github.com/example/careride/internal/storage"
	"github.com/example/careride/internal/tracking"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	hub := tracking.NewHub(tracking.NewMemoryWindow(), store, log)
	disp := notify.NewDispatcher(notify.DefaultRegistry(), store, log)
	disp.Realtime = hub
	est := &eta.Estimator{Cache: eta.NewCache(time.Minute)}
	return NewServer(hub, est, disp, store, store, log), store
}

func seedRide(t *testing.T, store *storage.MemoryStore, status string) models.Ride {
	t.Helper()
	now := time.Now().UTC()
	ride := models.Ride{
		ID:      "ride-1",
		RiderID: "rider-1",
		Pickup:  models.Coord{Lat: 40.758, Lng: -73.9855},
		Dropoff: models.Coord{Lat: 40.7484, Lng: -73.9857},
		Status:  status, RequestedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.SaveRide(context.Background(), ride))
	store.PutUser(models.User{ID: "rider-1", Role: models.RoleRider, RegisteredAt: now, LastActiveAt: now})
	return ride
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestEstimateEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedRide(t, store, models.RidePending)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/rides/ride-1/estimate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var est models.RouteEstimate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &est))
	require.True(t, est.IsFallback)
	require.False(t, est.Unavailable)
	require.Greater(t, est.DistanceMiles, 0.0)
	require.Contains(t, est.DurationText, "min")
}

func TestEstimateRideNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/rides/missing/estimate", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRideRejectsSentinelCoords(t *testing.T) {
	srv, store := newTestServer(t)
	store.PutUser(models.User{ID: "rider-1", Role: models.RoleRider})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/rides", createRideRequest{
		RiderID: "rider-1",
		Pickup:  models.Coord{Lat: 0, Lng: 0},
		Dropoff: models.Coord{Lat: 40.7, Lng: -74},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "Location unavailable")
}

func TestCreateRidePersistsAndReturnsRide(t *testing.T) {
	srv, store := newTestServer(t)
	store.PutUser(models.User{ID: "rider-1", Role: models.RoleRider})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/rides", createRideRequest{
		RiderID: "rider-1",
		Pickup:  models.Coord{Lat: 40.758, Lng: -73.9855},
		Dropoff: models.Coord{Lat: 40.7484, Lng: -73.9857},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var ride models.Ride
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ride))
	require.NotEmpty(t, ride.ID)
	require.Equal(t, models.RidePending, ride.Status)

	stored, err := store.GetRide(context.Background(), ride.ID)
	require.NoError(t, err)
	require.Equal(t, "rider-1", stored.RiderID)
}

func TestDriverLocationsValidatesFixes(t *testing.T) {
	srv, store := newTestServer(t)
	seedRide(t, store, models.RideEnRoute)

	rec := doJSON(t, srv, http.MethodPost, "/internal/driver/locations", driverLocationsRequest{
		RideID:   "ride-1",
		DriverID: "driver-1",
		Fixes:    []models.LocationFix{{Lat: 95, Lng: 0, CapturedAt: time.Now()}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDriverLocationsAppendsWindow(t *testing.T) {
	srv, store := newTestServer(t)
	seedRide(t, store, models.RideEnRoute)

	rec := doJSON(t, srv, http.MethodPost, "/internal/driver/locations", driverLocationsRequest{
		RideID:   "ride-1",
		DriverID: "driver-1",
		Fixes: []models.LocationFix{
			{Lat: 40.758, Lng: -73.9855, AccuracyM: 10, CapturedAt: time.Now()},
			{Lat: 40.757, Lng: -73.985, AccuracyM: 12, CapturedAt: time.Now()},
		},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	win := doJSON(t, srv, http.MethodGet, "/api/v1/rides/ride-1/window", nil)
	require.Equal(t, http.StatusOK, win.Code)
	var resp struct {
		Fixes []models.LocationFix `json:"fixes"`
	}
	require.NoError(t, json.Unmarshal(win.Body.Bytes(), &resp))
	require.Len(t, resp.Fixes, 2)
	require.Equal(t, models.SourceDevice, resp.Fixes[0].Source)
}

func TestDriverLocationsDropsLowAccuracyFixes(t *testing.T) {
	srv, store := newTestServer(t)
	seedRide(t, store, models.RideEnRoute)

	rec := doJSON(t, srv, http.MethodPost, "/internal/driver/locations", driverLocationsRequest{
		RideID:   "ride-1",
		DriverID: "driver-1",
		Fixes: []models.LocationFix{
			{Lat: 40.758, Lng: -73.9855, AccuracyM: 500, CapturedAt: time.Now()},
			{Lat: 40.757, Lng: -73.985, AccuracyM: 12, CapturedAt: time.Now()},
		},
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	win := doJSON(t, srv, http.MethodGet, "/api/v1/rides/ride-1/window", nil)
	require.Equal(t, http.StatusOK, win.Code)
	var resp struct {
		Fixes []models.LocationFix `json:"fixes"`
	}
	require.NoError(t, json.Unmarshal(win.Body.Bytes(), &resp))
	require.Len(t, resp.Fixes, 1)
	require.Equal(t, 12.0, resp.Fixes[0].AccuracyM)
}

func TestRideStatusLifecycle(t *testing.T) {
	srv, store := newTestServer(t)
	seedRide(t, store, models.RideInProgress)

	rec := doJSON(t, srv, http.MethodPatch, "/api/v1/rides/ride-1/status", rideStatusRequest{Status: models.RideCompleted})
	require.Equal(t, http.StatusOK, rec.Code)

	var ride models.Ride
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ride))
	require.Equal(t, models.RideCompleted, ride.Status)

	stored, err := store.GetRide(context.Background(), "ride-1")
	require.NoError(t, err)
	require.Equal(t, models.RideCompleted, stored.Status)
}

func TestRideStatusRejectsUnknownStatus(t *testing.T) {
	srv, store := newTestServer(t)
	seedRide(t, store, models.RideInProgress)

	rec := doJSON(t, srv, http.MethodPatch, "/api/v1/rides/ride-1/status", rideStatusRequest{Status: "comleted"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	stored, err := store.GetRide(context.Background(), "ride-1")
	require.NoError(t, err)
	require.Equal(t, models.RideInProgress, stored.Status)
}

func TestNotifyEndpointUnknownTemplate(t *testing.T) {
	srv, store := newTestServer(t)
	store.PutUser(models.User{ID: "rider-1", Role: models.RoleRider})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/notifications", notifyRequest{
		UserID: "rider-1", TemplateID: "nope",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotifyEndpointReportsChannelOutcomes(t *testing.T) {
	srv, store := newTestServer(t)
	store.PutUser(models.User{
		ID: "rider-1", Role: models.RoleRider, Email: "r@example.com",
		Prefs: models.Preferences{EmailEnabled: true, RideUpdates: true},
	})

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/notifications", notifyRequest{
		UserID:     "rider-1",
		TemplateID: "ride_booked",
		Data:       map[string]string{"ride_id": "ride-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.DispatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	// no senders wired in the test server
	require.Equal(t, models.ChannelNotConfigured, result.Email.Status)
	require.Equal(t, models.ChannelSkipped, result.SMS.Status)
}

func TestRideAlertEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedRide(t, store, models.RideInProgress)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/rides/ride-1/alert", rideAlertRequest{
		AlertType: "no_movement",
		Message:   "Vehicle has not moved for 10 minutes",
		Severity:  "critical",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.DispatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	// critical severity forces the SMS attempt; without a configured
	// sender it reports not_configured rather than skipped
	require.Equal(t, models.ChannelNotConfigured, result.SMS.Status)
	require.Equal(t, models.ChannelNotConfigured, result.Push.Status)
}

func TestRideAlertUnknownRide(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/rides/missing/alert", rideAlertRequest{Severity: "warning"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
