package tracking

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/careride/internal/geo"
	"github.com/example/careride/internal/models"
)

const (
	handshakeWait  = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeWS upgrades the connection and runs the tracking channel
// protocol: a start_tracking handshake, then location_update relays
// from drivers and server pushes to every subscriber.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(handshakeWait))

	var hello Message
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != TypeStartTracking {
		_ = conn.WriteJSON(Message{Type: TypeError, Message: "expected start_tracking handshake"})
		_ = conn.Close()
		return
	}
	sub, err := h.Subscribe(r.Context(), hello.RideID, hello.UserID, hello.Role)
	if err != nil {
		_ = conn.WriteJSON(Message{Type: TypeError, RideID: hello.RideID, Message: err.Error()})
		_ = conn.Close()
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := conn.WriteJSON(Message{Type: TypeTrackingStarted, RideID: sub.RideID}); err != nil {
		sub.Close()
		_ = conn.Close()
		return
	}

	go h.writePump(conn, sub)
	h.readPump(conn, sub, hello.Role)
}

func (h *Hub) readPump(conn *websocket.Conn, sub *Subscription, role string) {
	defer func() {
		sub.Close()
		_ = conn.Close()
	}()
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("ws read error", "ride_id", sub.RideID, "error", err)
			}
			return
		}
		switch msg.Type {
		case TypeStopTracking:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stopped"),
				time.Now().Add(writeWait))
			return
		case TypeLocationUpdate:
			if role != models.RoleDriver || msg.Location == nil {
				continue
			}
			if err := geo.Validate(msg.Location.Lat, msg.Location.Lng); err != nil {
				_ = conn.WriteJSON(Message{Type: TypeError, RideID: sub.RideID, Message: err.Error()})
				continue
			}
			fix := models.LocationFix{
				Lat:        msg.Location.Lat,
				Lng:        msg.Location.Lng,
				CapturedAt: msg.Location.Timestamp,
				Source:     msg.Location.Source,
			}
			if fix.Source == "" {
				fix.Source = models.SourceDevice
			}
			h.PublishFix(context.Background(), sub.RideID, msg.DriverID, fix)
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case raw, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
