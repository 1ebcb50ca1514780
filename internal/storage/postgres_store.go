package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/careride/internal/models"
)

// PostgresStore implements UserStore, RideStore and ScheduleStore over
// lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) GetUser(ctx context.Context, id string) (models.User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, role, name, email, phone, email_verified,
		       email_enabled, sms_enabled, push_enabled,
		       ride_updates, payment_alerts, system_alerts, marketing_emails, emergency_only,
		       license_expiry, insurance_expiry, registered_at, last_active_at
		FROM users WHERE id = $1`, id)
	return scanUser(row)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Role, &u.Name, &u.Email, &u.Phone, &u.EmailVerified,
		&u.Prefs.EmailEnabled, &u.Prefs.SMSEnabled, &u.Prefs.PushEnabled,
		&u.Prefs.RideUpdates, &u.Prefs.PaymentAlerts, &u.Prefs.SystemAlerts,
		&u.Prefs.MarketingEmails, &u.Prefs.EmergencyOnly,
		&u.LicenseExpiry, &u.InsuranceExpiry, &u.RegisteredAt, &u.LastActiveAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (p *PostgresStore) ListDrivers(ctx context.Context) ([]models.User, error) {
	return p.listByRole(ctx, `WHERE role = 'driver'`)
}

func (p *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	return p.listByRole(ctx, ``)
}

func (p *PostgresStore) listByRole(ctx context.Context, where string) ([]models.User, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, role, name, email, phone, email_verified,
		       email_enabled, sms_enabled, push_enabled,
		       ride_updates, payment_alerts, system_alerts, marketing_emails, emergency_only,
		       license_expiry, insurance_expiry, registered_at, last_active_at
		FROM users `+where)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (models.Ride, error) {
	var r models.Ride
	var driverID sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT id, rider_id, driver_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		       status, fare_cents, requested_at, updated_at
		FROM rides WHERE id = $1`, id).Scan(
		&r.ID, &r.RiderID, &driverID, &r.Pickup.Lat, &r.Pickup.Lng,
		&r.Dropoff.Lat, &r.Dropoff.Lng, &r.Status, &r.FareCents, &r.RequestedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ride{}, ErrNotFound
	}
	r.DriverID = driverID.String
	return r, err
}

func (p *PostgresStore) SaveRide(ctx context.Context, r models.Ride) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rides (id, rider_id, driver_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		                   status, fare_cents, requested_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET driver_id = $3, status = $8, fare_cents = $9, updated_at = $11`,
		r.ID, r.RiderID, nullable(r.DriverID), r.Pickup.Lat, r.Pickup.Lng,
		r.Dropoff.Lat, r.Dropoff.Lng, r.Status, r.FareCents, r.RequestedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id, status string) (models.Ride, error) {
	_, err := p.db.ExecContext(ctx,
		`UPDATE rides SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id)
	if err != nil {
		return models.Ride{}, err
	}
	return p.GetRide(ctx, id)
}

func (p *PostgresStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, rider_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, status, requested_at, updated_at
		FROM rides
		WHERE status = 'pending' AND (driver_id IS NULL OR driver_id = '') AND requested_at <= $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Ride
	for rows.Next() {
		var r models.Ride
		if err := rows.Scan(&r.ID, &r.RiderID, &r.Pickup.Lat, &r.Pickup.Lng,
			&r.Dropoff.Lat, &r.Dropoff.Lng, &r.Status, &r.RequestedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DriverDayStats(ctx context.Context, driverID string, day time.Time) (DayStats, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	var stats DayStats
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(fare_cents), 0)
		FROM rides
		WHERE driver_id = $1 AND status = 'completed' AND updated_at >= $2 AND updated_at < $3`,
		driverID, start, end).Scan(&stats.Rides, &stats.EarningsCents)
	return stats, err
}

func (p *PostgresStore) NextEligibleAt(ctx context.Context, key string) (time.Time, error) {
	var t time.Time
	err := p.db.QueryRowContext(ctx,
		`SELECT next_eligible_at FROM schedule_marks WHERE key = $1`, key).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	return t, err
}

func (p *PostgresStore) SetNextEligibleAt(ctx context.Context, key string, t time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO schedule_marks (key, next_eligible_at) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET next_eligible_at = $2`, key, t)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
