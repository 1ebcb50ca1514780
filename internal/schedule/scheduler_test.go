package schedule

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/careride/internal/models"
	"github.com/example/careride/internal/notify"
	"github.com/example/careride/internal/storage"
)

type sentNote struct {
	UserID     string
	TemplateID string
	Data       map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNote
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, userID, templateID string, data map[string]string, _ notify.Options) (models.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.DispatchResult{}, f.err
	}
	f.sent = append(f.sent, sentNote{UserID: userID, TemplateID: templateID, Data: data})
	return models.DispatchResult{}, nil
}

func (f *fakeNotifier) byTemplate(id string) []sentNote {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentNote
	for _, n := range f.sent {
		if n.TemplateID == id {
			out = append(out, n)
		}
	}
	return out
}

func newTestScheduler(t *testing.T, store *storage.MemoryStore, at time.Time) (*Scheduler, *fakeNotifier) {
	t.Helper()
	fn := &fakeNotifier{}
	s := New(Config{SummaryHour: 20}, store, store, store, fn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return at }
	return s, fn
}

func expiring(days int, from time.Time) *time.Time {
	t := from.Add(time.Duration(days)*24*time.Hour + time.Hour)
	return &t
}

func TestDocumentExpiryWarnsOncePerDay(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	store.PutUser(models.User{
		ID: "d1", Role: models.RoleDriver, EmailVerified: true,
		LicenseExpiry: expiring(10, now),
		RegisteredAt:  now.Add(-30 * 24 * time.Hour),
		LastActiveAt:  now,
	})
	s, fn := newTestScheduler(t, store, now)

	require.NoError(t, s.scanDocumentExpiry(context.Background()))
	notes := fn.byTemplate("document_expiring")
	require.Len(t, notes, 1)
	require.Equal(t, "d1", notes[0].UserID)
	require.Equal(t, "license", notes[0].Data["document"])
	require.Equal(t, "10", notes[0].Data["days"])

	// later the same day: suppressed
	require.NoError(t, s.scanDocumentExpiry(context.Background()))
	require.Len(t, fn.byTemplate("document_expiring"), 1)

	// next day: warned again
	s.now = func() time.Time { return now.Add(24 * time.Hour) }
	require.NoError(t, s.scanDocumentExpiry(context.Background()))
	require.Len(t, fn.byTemplate("document_expiring"), 2)
}

func TestDocumentExpirySkipsOutOfWindow(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	already := now.Add(-24 * time.Hour)
	store.PutUser(models.User{ID: "far", Role: models.RoleDriver, LicenseExpiry: expiring(45, now), RegisteredAt: now, LastActiveAt: now, EmailVerified: true})
	store.PutUser(models.User{ID: "past", Role: models.RoleDriver, LicenseExpiry: &already, RegisteredAt: now, LastActiveAt: now, EmailVerified: true})
	store.PutUser(models.User{ID: "none", Role: models.RoleDriver, RegisteredAt: now, LastActiveAt: now, EmailVerified: true})
	s, fn := newTestScheduler(t, store, now)

	require.NoError(t, s.scanDocumentExpiry(context.Background()))
	require.Empty(t, fn.byTemplate("document_expiring"))
}

func TestDocumentExpiryWarnsBothDocuments(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	store.PutUser(models.User{
		ID: "d1", Role: models.RoleDriver, EmailVerified: true,
		LicenseExpiry:   expiring(5, now),
		InsuranceExpiry: expiring(20, now),
		RegisteredAt:    now, LastActiveAt: now,
	})
	s, fn := newTestScheduler(t, store, now)

	require.NoError(t, s.scanDocumentExpiry(context.Background()))
	notes := fn.byTemplate("document_expiring")
	require.Len(t, notes, 2)
	docs := []string{notes[0].Data["document"], notes[1].Data["document"]}
	require.ElementsMatch(t, []string{"license", "insurance"}, docs)
}

func TestUnverifiedAccountCadence(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	store.PutUser(models.User{ID: "old", Role: models.RoleDriver, RegisteredAt: now.Add(-48 * time.Hour), LastActiveAt: now})
	store.PutUser(models.User{ID: "fresh", Role: models.RoleDriver, RegisteredAt: now.Add(-time.Hour), LastActiveAt: now})
	store.PutUser(models.User{ID: "done", Role: models.RoleDriver, EmailVerified: true, RegisteredAt: now.Add(-48 * time.Hour), LastActiveAt: now})
	s, fn := newTestScheduler(t, store, now)

	require.NoError(t, s.scanUnverifiedAccounts(context.Background()))
	notes := fn.byTemplate("account_unverified")
	require.Len(t, notes, 1)
	require.Equal(t, "old", notes[0].UserID)

	// within the 72h cadence for "old", and "fresh" is still inside
	// the 24h grace: nothing new
	s.now = func() time.Time { return now.Add(12 * time.Hour) }
	require.NoError(t, s.scanUnverifiedAccounts(context.Background()))
	require.Len(t, fn.byTemplate("account_unverified"), 1)

	// past the cadence: "old" is nudged again and "fresh" has aged
	// out of the grace period, so it gets its first reminder
	s.now = func() time.Time { return now.Add(80 * time.Hour) }
	require.NoError(t, s.scanUnverifiedAccounts(context.Background()))
	perUser := map[string]int{}
	for _, n := range fn.byTemplate("account_unverified") {
		perUser[n.UserID]++
	}
	require.Equal(t, map[string]int{"old": 2, "fresh": 1}, perUser)
}

func TestStalePendingRides(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveRide(ctx, models.Ride{ID: "r1", RiderID: "u1", Status: models.RidePending, RequestedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, store.SaveRide(ctx, models.Ride{ID: "r2", RiderID: "u2", Status: models.RidePending, RequestedAt: now.Add(-10 * time.Minute)}))
	require.NoError(t, store.SaveRide(ctx, models.Ride{ID: "r3", RiderID: "u3", DriverID: "d1", Status: models.RideEnRoute, RequestedAt: now.Add(-2 * time.Hour)}))
	s, fn := newTestScheduler(t, store, now)

	require.NoError(t, s.scanStalePendingRides(ctx))
	notes := fn.byTemplate("ride_searching")
	require.Len(t, notes, 1)
	require.Equal(t, "u1", notes[0].UserID)
	require.Equal(t, "r1", notes[0].Data["ride_id"])

	// not re-notified inside the repeat interval
	s.now = func() time.Time { return now.Add(30 * time.Minute) }
	require.NoError(t, s.scanStalePendingRides(ctx))
	require.Len(t, fn.byTemplate("ride_searching"), 1)
}

func TestDailySummaryOnlyInSummaryHour(t *testing.T) {
	now := time.Date(2025, 6, 2, 20, 5, 0, 0, time.UTC)
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.PutUser(models.User{ID: "d1", Role: models.RoleDriver, EmailVerified: true, RegisteredAt: now, LastActiveAt: now})
	store.PutUser(models.User{ID: "d2", Role: models.RoleDriver, EmailVerified: true, RegisteredAt: now, LastActiveAt: now})
	require.NoError(t, store.SaveRide(ctx, models.Ride{ID: "r1", RiderID: "u1", DriverID: "d1", Status: models.RideCompleted, FareCents: 2550, RequestedAt: now, UpdatedAt: now}))
	s, fn := newTestScheduler(t, store, now)

	// outside the hour: nothing
	s.now = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) }
	require.NoError(t, s.scanDailySummary(ctx))
	require.Empty(t, fn.byTemplate("daily_summary"))

	s.now = func() time.Time { return now }
	require.NoError(t, s.scanDailySummary(ctx))
	notes := fn.byTemplate("daily_summary")
	require.Len(t, notes, 1)
	require.Equal(t, "d1", notes[0].UserID)
	require.Equal(t, "1", notes[0].Data["rides"])
	require.Equal(t, "$25.50", notes[0].Data["earnings"])

	// a later tick in the same hour does not double-send
	s.now = func() time.Time { return now.Add(30 * time.Minute) }
	require.NoError(t, s.scanDailySummary(ctx))
	require.Len(t, fn.byTemplate("daily_summary"), 1)
}

func TestInactivityByRole(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	stale := now.Add(-10 * 24 * time.Hour)
	store := storage.NewMemoryStore()
	store.PutUser(models.User{ID: "d1", Role: models.RoleDriver, RegisteredAt: stale, LastActiveAt: stale})
	store.PutUser(models.User{ID: "u1", Role: models.RoleRider, RegisteredAt: stale, LastActiveAt: stale})
	store.PutUser(models.User{ID: "a1", Role: models.RoleAdmin, RegisteredAt: stale, LastActiveAt: stale})
	store.PutUser(models.User{ID: "u2", Role: models.RoleRider, RegisteredAt: now, LastActiveAt: now.Add(-time.Hour)})
	s, fn := newTestScheduler(t, store, now)

	require.NoError(t, s.scanInactivity(context.Background()))
	drv := fn.byTemplate("inactivity_driver")
	require.Len(t, drv, 1)
	require.Equal(t, "d1", drv[0].UserID)
	rid := fn.byTemplate("inactivity_rider")
	require.Len(t, rid, 1)
	require.Equal(t, "u1", rid[0].UserID)
}

func TestTickIsolatesFailingJobs(t *testing.T) {
	now := time.Date(2025, 6, 2, 20, 5, 0, 0, time.UTC)
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.PutUser(models.User{ID: "d1", Role: models.RoleDriver, RegisteredAt: now.Add(-48 * time.Hour), LastActiveAt: now})
	s, fn := newTestScheduler(t, store, now)

	// notifier errors should surface as logs, not abort the tick
	fn.err = context.DeadlineExceeded
	s.Tick(ctx)
	require.Empty(t, fn.sent)

	fn.err = nil
	s.Tick(ctx)
	require.Len(t, fn.byTemplate("account_unverified"), 1)
}

func TestTickOverlapGuard(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	s, _ := newTestScheduler(t, store, now)

	require.True(t, s.running.CompareAndSwap(false, true))
	s.Tick(context.Background()) // returns immediately, flag untouched
	require.True(t, s.running.Load())
	s.running.Store(false)
}
