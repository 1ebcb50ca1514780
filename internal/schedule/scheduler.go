// Package schedule runs the recurring automation scans that turn
// persisted state into notification events.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/example/careride/internal/models"
	"github.com/example/careride/internal/notify"
	"github.com/example/careride/internal/observability"
	"github.com/example/careride/internal/storage"
)

// Notifier is the slice of the dispatcher the scans need.
type Notifier interface {
	Send(ctx context.Context, userID, templateID string, data map[string]string, opts notify.Options) (models.DispatchResult, error)
}

type Config struct {
	Interval         time.Duration // scan period, default 5m
	SummaryHour      int           // local hour for the daily summary
	DocumentWarnDays int           // warn when expiry is this close
}

type Scheduler struct {
	cfg      Config
	users    storage.UserStore
	rides    storage.RideStore
	marks    storage.ScheduleStore
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
	running  atomic.Bool
}

func New(cfg Config, users storage.UserStore, rides storage.RideStore, marks storage.ScheduleStore, notifier Notifier, log *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.SummaryHour <= 0 {
		cfg.SummaryHour = 20
	}
	if cfg.DocumentWarnDays <= 0 {
		cfg.DocumentWarnDays = 30
	}
	return &Scheduler{
		cfg:      cfg,
		users:    users,
		rides:    rides,
		marks:    marks,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Run ticks on the wall clock until the context is cancelled. Ticks
// are not chained to prior completion; the run-in-progress flag keeps
// a long tick from overlapping the next one.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			go s.Tick(ctx)
		}
	}
}

// Tick runs the scan jobs sequentially. Each job is fault-isolated:
// an error or panic in one never cancels the others in the same tick.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("scan tick skipped, previous tick still running")
		return
	}
	defer s.running.Store(false)

	jobs := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"document_expiry", s.scanDocumentExpiry},
		{"unverified_accounts", s.scanUnverifiedAccounts},
		{"stale_pending_rides", s.scanStalePendingRides},
		{"daily_summary", s.scanDailySummary},
		{"inactivity", s.scanInactivity},
	}
	for _, j := range jobs {
		s.runJob(ctx, j.name, j.fn)
	}
}

func (s *Scheduler) runJob(ctx context.Context, name string, fn func(context.Context) error) {
	start := s.now()
	defer func() {
		observability.SchedulerJobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if rec := recover(); rec != nil {
			observability.SchedulerJobFailures.WithLabelValues(name).Inc()
			s.log.Error("scan job panicked", "job", name, "error", fmt.Sprint(rec))
		}
	}()
	if err := fn(ctx); err != nil {
		observability.SchedulerJobFailures.WithLabelValues(name).Inc()
		s.log.Error("scan job failed", "job", name, "error", err)
	}
}

// eligible reports whether the mark allows a send now, tolerating a
// missing mark (zero time).
func (s *Scheduler) eligible(ctx context.Context, key string) bool {
	next, err := s.marks.NextEligibleAt(ctx, key)
	if err != nil {
		s.log.Warn("schedule mark read failed", "key", key, "error", err)
		return false
	}
	return !s.now().Before(next)
}

// advance moves the mark only after a successful send so a failed tick
// retries next time instead of silently skipping.
func (s *Scheduler) advance(ctx context.Context, key string, next time.Time) {
	if err := s.marks.SetNextEligibleAt(ctx, key, next); err != nil {
		s.log.Warn("schedule mark write failed", "key", key, "error", err)
	}
}

func startOfNextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
