package tracking

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// ServeSSE mirrors the ride's channel over Server-Sent Events for
// read-only subscribers. The rolling window is replayed first; nothing
// older is backfilled.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	userID := r.URL.Query().Get("user_id")
	sub, err := h.Subscribe(r.Context(), rideID, userID, r.URL.Query().Get("role"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent := func(raw []byte) bool {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if raw, err := json.Marshal(Message{Type: TypeTrackingStarted, RideID: rideID}); err == nil {
		writeEvent(raw)
	}

	// replay the window snapshot for the new subscriber
	if fixes, err := h.Window(r.Context(), rideID); err == nil {
		for _, f := range fixes {
			raw, err := json.Marshal(locationMessage(rideID, "", f))
			if err != nil {
				continue
			}
			if !writeEvent(raw) {
				return
			}
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case raw, ok := <-sub.C:
			if !ok {
				return
			}
			if !writeEvent(raw) {
				return
			}
		}
	}
}
