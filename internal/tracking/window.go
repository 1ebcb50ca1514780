package tracking

import (
	"context"
	"sync"

	"github.com/example/careride/internal/models"
)

// WindowSize bounds the rolling per-ride fix history kept for client
// display. Nothing older is replayed.
const WindowSize = 50

// WindowStore holds the rolling location-fix window per ride.
type WindowStore interface {
	Append(ctx context.Context, rideID string, fix models.LocationFix) error
	// Window returns fixes oldest first, at most WindowSize.
	Window(ctx context.Context, rideID string) ([]models.LocationFix, error)
	Clear(ctx context.Context, rideID string) error
}

// MemoryWindow is the in-process store used when Redis is not
// configured and in tests.
type MemoryWindow struct {
	mu    sync.RWMutex
	fixes map[string][]models.LocationFix
}

func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{fixes: make(map[string][]models.LocationFix)}
}

func (m *MemoryWindow) Append(_ context.Context, rideID string, fix models.LocationFix) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := append(m.fixes[rideID], fix)
	if len(w) > WindowSize {
		w = w[len(w)-WindowSize:]
	}
	m.fixes[rideID] = w
	return nil
}

func (m *MemoryWindow) Window(_ context.Context, rideID string) ([]models.LocationFix, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w := m.fixes[rideID]
	out := make([]models.LocationFix, len(w))
	copy(out, w)
	return out, nil
}

func (m *MemoryWindow) Clear(_ context.Context, rideID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fixes, rideID)
	return nil
}
