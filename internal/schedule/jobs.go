package schedule

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/example/careride/internal/models"
	"github.com/example/careride/internal/notify"
)

const (
	unverifiedGrace    = 24 * time.Hour
	unverifiedCadence  = 72 * time.Hour
	stalePendingAfter  = time.Hour
	stalePendingRepeat = time.Hour
	inactiveAfter      = 7 * 24 * time.Hour
	inactiveCadence    = 7 * 24 * time.Hour
)

// scanDocumentExpiry warns drivers whose license or insurance expires
// within the warn window. At most one warning per document per
// calendar day, tracked through the schedule marks.
func (s *Scheduler) scanDocumentExpiry(ctx context.Context) error {
	drivers, err := s.users.ListDrivers(ctx)
	if err != nil {
		return fmt.Errorf("list drivers: %w", err)
	}
	now := s.now()
	for _, d := range drivers {
		docs := []struct {
			name   string
			expiry *time.Time
		}{
			{"license", d.LicenseExpiry},
			{"insurance", d.InsuranceExpiry},
		}
		for _, doc := range docs {
			if doc.expiry == nil {
				continue
			}
			days := int(doc.expiry.Sub(now).Hours() / 24)
			if days <= 0 || days > s.cfg.DocumentWarnDays {
				continue
			}
			key := "docexp:" + d.ID + ":" + doc.name
			if !s.eligible(ctx, key) {
				continue
			}
			_, err := s.notifier.Send(ctx, d.ID, "document_expiring", map[string]string{
				"document": doc.name,
				"days":     strconv.Itoa(days),
			}, notify.Options{})
			if err != nil {
				s.log.Warn("document expiry notice failed", "driver_id", d.ID, "document", doc.name, "error", err)
				continue
			}
			s.advance(ctx, key, startOfNextDay(now))
		}
	}
	return nil
}

// scanUnverifiedAccounts nudges drivers who registered more than a day
// ago without completing verification, repeating every three days.
func (s *Scheduler) scanUnverifiedAccounts(ctx context.Context) error {
	drivers, err := s.users.ListDrivers(ctx)
	if err != nil {
		return fmt.Errorf("list drivers: %w", err)
	}
	now := s.now()
	for _, d := range drivers {
		if d.EmailVerified || now.Sub(d.RegisteredAt) < unverifiedGrace {
			continue
		}
		key := "unverified:" + d.ID
		if !s.eligible(ctx, key) {
			continue
		}
		if _, err := s.notifier.Send(ctx, d.ID, "account_unverified", nil, notify.Options{}); err != nil {
			s.log.Warn("unverified account notice failed", "driver_id", d.ID, "error", err)
			continue
		}
		s.advance(ctx, key, now.Add(unverifiedCadence))
	}
	return nil
}

// scanStalePendingRides tells riders their request is still searching
// after an hour without a driver, then again each following hour.
func (s *Scheduler) scanStalePendingRides(ctx context.Context) error {
	now := s.now()
	rides, err := s.rides.ListPendingBefore(ctx, now.Add(-stalePendingAfter))
	if err != nil {
		return fmt.Errorf("list pending rides: %w", err)
	}
	for _, r := range rides {
		key := "stale:" + r.ID
		if !s.eligible(ctx, key) {
			continue
		}
		if _, err := s.notifier.Send(ctx, r.RiderID, "ride_searching", map[string]string{
			"ride_id": r.ID,
		}, notify.Options{}); err != nil {
			s.log.Warn("stale ride notice failed", "ride_id", r.ID, "error", err)
			continue
		}
		s.advance(ctx, key, now.Add(stalePendingRepeat))
	}
	return nil
}

// scanDailySummary sends each driver with completed rides today a
// recap once we are inside the summary hour.
func (s *Scheduler) scanDailySummary(ctx context.Context) error {
	now := s.now()
	if now.Hour() != s.cfg.SummaryHour {
		return nil
	}
	drivers, err := s.users.ListDrivers(ctx)
	if err != nil {
		return fmt.Errorf("list drivers: %w", err)
	}
	for _, d := range drivers {
		stats, err := s.rides.DriverDayStats(ctx, d.ID, now)
		if err != nil {
			s.log.Warn("driver day stats failed", "driver_id", d.ID, "error", err)
			continue
		}
		if stats.Rides == 0 {
			continue
		}
		key := "summary:" + d.ID
		if !s.eligible(ctx, key) {
			continue
		}
		if _, err := s.notifier.Send(ctx, d.ID, "daily_summary", map[string]string{
			"rides":    strconv.Itoa(stats.Rides),
			"earnings": fmt.Sprintf("$%.2f", float64(stats.EarningsCents)/100),
		}, notify.Options{}); err != nil {
			s.log.Warn("daily summary failed", "driver_id", d.ID, "error", err)
			continue
		}
		s.advance(ctx, key, startOfNextDay(now))
	}
	return nil
}

// scanInactivity re-engages drivers and riders idle for a week or
// more. Admin accounts are never nudged.
func (s *Scheduler) scanInactivity(ctx context.Context) error {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	now := s.now()
	for _, u := range users {
		if u.Role == models.RoleAdmin || now.Sub(u.LastActiveAt) < inactiveAfter {
			continue
		}
		template := "inactivity_rider"
		if u.Role == models.RoleDriver {
			template = "inactivity_driver"
		}
		key := "inactive:" + u.ID
		if !s.eligible(ctx, key) {
			continue
		}
		if _, err := s.notifier.Send(ctx, u.ID, template, nil, notify.Options{}); err != nil {
			s.log.Warn("inactivity notice failed", "user_id", u.ID, "error", err)
			continue
		}
		s.advance(ctx, key, now.Add(inactiveCadence))
	}
	return nil
}
