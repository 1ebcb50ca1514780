package tracking

import (
	"errors"
	"testing"
	"time"
)

func TestSessionHappyPath(t *testing.T) {
	s := NewSession("ride-1", "user-1", "rider")
	if s.State() != StateIdle {
		t.Fatalf("new session state = %s", s.State())
	}
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	at := time.Now()
	if err := s.FixRelayed(at); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateTrackingActive {
		t.Fatalf("state after fix = %s", s.State())
	}
	if !s.LastFixAt().Equal(at) {
		t.Fatalf("last fix at = %v", s.LastFixAt())
	}
	if err := s.MarkIdle(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateTrackingIdle {
		t.Fatalf("state after idle = %s", s.State())
	}
	// a new fix resumes active
	if err := s.FixRelayed(time.Now()); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateTrackingActive {
		t.Fatalf("state after resume = %s", s.State())
	}
}

func TestSessionIllegalTransitions(t *testing.T) {
	s := NewSession("ride-1", "user-1", "rider")

	// open before connect
	err := s.Open()
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.From != StateIdle || te.To != StateOpen {
		t.Fatalf("unexpected transition error: %v", te)
	}

	// fix before the channel is open
	if err := s.FixRelayed(time.Now()); err == nil {
		t.Fatal("expected error relaying fix on idle session")
	}
}

func TestSessionCloseIsTerminal(t *testing.T) {
	s := NewSession("ride-1", "user-1", "rider")
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	s.Close()
	s.Close() // idempotent
	if s.State() != StateClosed {
		t.Fatalf("state = %s", s.State())
	}
	if err := s.Connect(); err == nil {
		t.Fatal("expected error reusing closed session")
	}
	if err := s.FixRelayed(time.Now()); err == nil {
		t.Fatal("expected error relaying fix on closed session")
	}
}
