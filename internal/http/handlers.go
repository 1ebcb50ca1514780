package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/careride/internal/eta"
	"github.com/example/careride/internal/geo"
	"github.com/example/careride/internal/models"
	"github.com/example/careride/internal/notify"
	"github.com/example/careride/internal/observability"
	"github.com/example/careride/internal/storage"
	"github.com/example/careride/internal/tracking"
)

type Server struct {
	Hub        *tracking.Hub
	Estimator  *eta.Estimator
	Dispatcher *notify.Dispatcher
	Users      storage.UserStore
	Rides      storage.RideStore

	mux    *mux.Router
	logger *slog.Logger
}

func NewServer(hub *tracking.Hub, est *eta.Estimator, disp *notify.Dispatcher, users storage.UserStore, rides storage.RideStore, logger *slog.Logger) *Server {
	s := &Server{
		Hub:        hub,
		Estimator:  est,
		Dispatcher: disp,
		Users:      users,
		Rides:      rides,
		mux:        mux.NewRouter(),
		logger:     logger,
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocations).Methods("POST")
	s.mux.HandleFunc("/api/v1/notifications", s.handleNotify).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides", s.handleCreateRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/estimate", s.handleEstimate).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/window", s.handleWindow).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/status", s.handleRideStatus).Methods("PATCH")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/alert", s.handleRideAlert).Methods("POST")
	s.mux.HandleFunc("/ws/tracking", s.Hub.ServeWS)
	s.mux.HandleFunc("/sse/rides/{ride_id}", s.Hub.ServeSSE).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type driverLocationsRequest struct {
	RideID   string               `json:"ride_id"`
	DriverID string               `json:"driver_id"`
	Fixes    []models.LocationFix `json:"fixes"`
}

// handleDriverLocations is the batch ingest path for drivers that
// report over plain HTTP instead of holding a websocket open.
func (s *Server) handleDriverLocations(w http.ResponseWriter, r *http.Request) {
	var req driverLocationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.RideID == "" || len(req.Fixes) == 0 {
		http.Error(w, "ride_id and fixes are required", http.StatusBadRequest)
		return
	}
	accepted := make([]models.LocationFix, 0, len(req.Fixes))
	for _, fix := range req.Fixes {
		if err := geo.Validate(fix.Lat, fix.Lng); err != nil {
			var invalid *geo.InvalidCoordinateError
			if errors.As(err, &invalid) {
				http.Error(w, invalid.Message(), http.StatusUnprocessableEntity)
				return
			}
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		// low-accuracy readings are advisory only; drop them here
		// so they never reach the window or the riders
		if !geo.Authoritative(fix) {
			observability.FixesDropped.WithLabelValues("low_accuracy").Inc()
			continue
		}
		if fix.Source == "" {
			fix.Source = models.SourceDevice
		}
		accepted = append(accepted, fix)
	}
	for _, fix := range accepted {
		s.Hub.PublishFix(r.Context(), req.RideID, req.DriverID, fix)
	}
	w.WriteHeader(http.StatusNoContent)
}

type notifyRequest struct {
	UserID     string            `json:"user_id"`
	TemplateID string            `json:"template_id"`
	Data       map[string]string `json:"data"`
	ForceEmail bool              `json:"force_email"`
	ForceSMS   bool              `json:"force_sms"`
	ForcePush  bool              `json:"force_push"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts := notify.Options{ForceEmail: req.ForceEmail, ForceSMS: req.ForceSMS, ForcePush: req.ForcePush}
	result, err := s.Dispatcher.Send(r.Context(), req.UserID, req.TemplateID, req.Data, opts)
	if err != nil {
		var notFound *notify.NotFoundError
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createRideRequest struct {
	RiderID string       `json:"rider_id"`
	Pickup  models.Coord `json:"pickup"`
	Dropoff models.Coord `json:"dropoff"`
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req createRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.RiderID == "" {
		http.Error(w, "rider_id is required", http.StatusBadRequest)
		return
	}
	for _, c := range []models.Coord{req.Pickup, req.Dropoff} {
		if err := geo.ValidateCoord(c); err != nil {
			var invalid *geo.InvalidCoordinateError
			if errors.As(err, &invalid) {
				http.Error(w, invalid.Message(), http.StatusUnprocessableEntity)
				return
			}
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	}
	now := time.Now().UTC()
	ride := models.Ride{
		ID:          uuid.NewString(),
		RiderID:     req.RiderID,
		Pickup:      req.Pickup,
		Dropoff:     req.Dropoff,
		Status:      models.RidePending,
		RequestedAt: now,
		UpdatedAt:   now,
	}
	if err := s.Rides.SaveRide(r.Context(), ride); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.notifyLifecycle(r.Context(), ride, "ride_booked")
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	ride, err := s.Rides.GetRide(r.Context(), rideID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "ride not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	est := s.Estimator.Best(r.Context(), ride.Pickup, ride.Dropoff)
	writeJSON(w, http.StatusOK, est)
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	fixes, err := s.Hub.Window(r.Context(), rideID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if fixes == nil {
		fixes = []models.LocationFix{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride_id": rideID, "fixes": fixes})
}

type rideStatusRequest struct {
	Status string `json:"status"`
}

// lifecycleTemplates maps a ride status change to the rider-facing
// notification it triggers. Statuses without an entry change silently.
var lifecycleTemplates = map[string]string{
	models.RideAccepted:   "driver_assigned",
	models.RideArrived:    "driver_arrived",
	models.RideInProgress: "ride_started",
	models.RideCompleted:  "ride_completed",
	models.RideCancelled:  "ride_cancelled",
}

func (s *Server) handleRideStatus(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	var req rideStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !models.ValidRideStatus(req.Status) {
		http.Error(w, "unknown ride status", http.StatusUnprocessableEntity)
		return
	}
	prev, err := s.Rides.GetRide(r.Context(), rideID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "ride not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ride, err := s.Rides.UpdateStatus(r.Context(), rideID, req.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// leaving the trackable set ends the live tracking session for
	// every subscriber and clears the rolling window
	if models.Trackable(prev.Status) && !models.Trackable(ride.Status) {
		s.Hub.CloseRide(r.Context(), rideID)
	}
	if tmpl, ok := lifecycleTemplates[ride.Status]; ok {
		s.notifyLifecycle(r.Context(), ride, tmpl)
	} else if ride.Status == models.RideEnRoute {
		s.notifyEnRoute(r.Context(), ride)
	}
	writeJSON(w, http.StatusOK, ride)
}

// notifyEnRoute sends the rider a tracking update with the driver's
// latest known position, when one exists.
func (s *Server) notifyEnRoute(ctx context.Context, ride models.Ride) {
	var loc *models.Coord
	if fixes, err := s.Hub.Window(ctx, ride.ID); err == nil && len(fixes) > 0 {
		c := fixes[len(fixes)-1].Coord()
		loc = &c
	}
	if _, err := s.Dispatcher.SendRideTracking(ctx, ride.RiderID, ride.ID, "en_route", "Your driver is on the way.", loc); err != nil {
		s.logger.Warn("tracking notification failed", "ride_id", ride.ID, "error", err)
	}
}

type rideAlertRequest struct {
	UserID    string `json:"user_id"`
	AlertType string `json:"alert_type"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
}

func (s *Server) handleRideAlert(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	var req rideAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ride, err := s.Rides.GetRide(r.Context(), rideID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "ride not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = ride.RiderID
	}
	result, err := s.Dispatcher.SendRideAlert(r.Context(), userID, rideID, req.AlertType, req.Message, req.Severity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) notifyLifecycle(ctx context.Context, ride models.Ride, templateID string) {
	data := map[string]string{"ride_id": ride.ID}
	if _, err := s.Dispatcher.Send(ctx, ride.RiderID, templateID, data, notify.Options{}); err != nil {
		s.logger.Warn("lifecycle notification failed", "ride_id", ride.ID, "template", templateID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
