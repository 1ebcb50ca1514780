package tracking

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State of one tracking session instance. Closed is terminal; a
// reconnect creates a new session.
type State string

const (
	StateIdle           State = "idle"
	StateConnecting     State = "connecting"
	StateOpen           State = "open"
	StateTrackingActive State = "tracking_active"
	StateTrackingIdle   State = "tracking_idle"
	StateClosed         State = "closed"
)

type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("tracking session: illegal transition %s -> %s", e.From, e.To)
}

// Session is the live, per-ride relationship between one connected
// client and the channel. The ride record stays the source of truth
// for whether tracking should be active at all.
type Session struct {
	ID     string
	RideID string
	UserID string
	Role   string

	mu        sync.Mutex
	state     State
	lastFixAt time.Time
}

func NewSession(rideID, userID, role string) *Session {
	return &Session{
		ID:     uuid.NewString(),
		RideID: rideID,
		UserID: userID,
		Role:   role,
		state:  StateIdle,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastFixAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFixAt
}

// Connect moves idle -> connecting when the handshake is sent.
func (s *Session) Connect() error {
	return s.transition(StateConnecting, StateIdle)
}

// Open moves connecting -> open once the server acknowledges.
func (s *Session) Open() error {
	return s.transition(StateOpen, StateConnecting)
}

// FixRelayed records a relayed location_update for this ride.
func (s *Session) FixRelayed(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateOpen, StateTrackingActive, StateTrackingIdle:
		s.state = StateTrackingActive
		s.lastFixAt = at
		return nil
	}
	return &TransitionError{From: s.state, To: StateTrackingActive}
}

// MarkIdle notes a lull in updates without tearing the channel down.
func (s *Session) MarkIdle() error {
	return s.transition(StateTrackingIdle, StateTrackingActive)
}

// Close is valid from every state and idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

func (s *Session) transition(to State, from ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range from {
		if s.state == f {
			s.state = to
			return nil
		}
	}
	return &TransitionError{From: s.state, To: to}
}
