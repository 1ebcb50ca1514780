package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/careride/internal/models"
)

var ErrNotFound = errors.New("record not found")

// UserStore reads account data for dispatch and the automation scans.
type UserStore interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	ListDrivers(ctx context.Context) ([]models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// RideStore persists ride records and answers the scheduler's scans.
type RideStore interface {
	GetRide(ctx context.Context, id string) (models.Ride, error)
	SaveRide(ctx context.Context, r models.Ride) error
	UpdateStatus(ctx context.Context, id, status string) (models.Ride, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Ride, error)
	DriverDayStats(ctx context.Context, driverID string, day time.Time) (DayStats, error)
}

type DayStats struct {
	Rides         int
	EarningsCents int64
}

// ScheduleStore holds per-key next-eligible-send timestamps so scan
// cadences survive restarts instead of drifting with elapsed-hours
// arithmetic.
type ScheduleStore interface {
	NextEligibleAt(ctx context.Context, key string) (time.Time, error)
	SetNextEligibleAt(ctx context.Context, key string, t time.Time) error
}

// MemoryStore backs all three interfaces for local runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]models.User
	rides map[string]models.Ride
	marks map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]models.User),
		rides: make(map[string]models.Ride),
		marks: make(map[string]time.Time),
	}
}

func (m *MemoryStore) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) ListDrivers(_ context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.User
	for _, u := range m.users {
		if u.Role == models.RoleDriver {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *MemoryStore) GetRide(_ context.Context, id string) (models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return models.Ride{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) SaveRide(_ context.Context, r models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = r
	return nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id, status string) (models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return models.Ride{}, ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	m.rides[id] = r
	return r, nil
}

func (m *MemoryStore) ListPendingBefore(_ context.Context, cutoff time.Time) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ride
	for _, r := range m.rides {
		if r.Status == models.RidePending && r.DriverID == "" && !r.RequestedAt.After(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) DriverDayStats(_ context.Context, driverID string, day time.Time) (DayStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	y, mo, d := day.Date()
	var stats DayStats
	for _, r := range m.rides {
		if r.DriverID != driverID || r.Status != models.RideCompleted {
			continue
		}
		ry, rmo, rd := r.UpdatedAt.Date()
		if ry == y && rmo == mo && rd == d {
			stats.Rides++
			stats.EarningsCents += r.FareCents
		}
	}
	return stats, nil
}

func (m *MemoryStore) NextEligibleAt(_ context.Context, key string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.marks[key], nil
}

func (m *MemoryStore) SetNextEligibleAt(_ context.Context, key string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[key] = t
	return nil
}
