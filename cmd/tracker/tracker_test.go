package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/careride/internal/ingest"
	"github.com/example/careride/internal/models"
)

// fakeAppender implements WindowAppender for tests
type fakeAppender struct {
	fail  int // number of times to fail before succeeding
	calls int
	seen  []models.LocationFix
}

func (f *fakeAppender) Append(_ context.Context, _ string, fix models.LocationFix) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("append fail")
	}
	f.seen = append(f.seen, fix)
	return nil
}

func envelope(fixes ...models.LocationFix) ingest.FixEnvelope {
	return ingest.FixEnvelope{RideID: "ride-1", DriverID: "driver-1", Fixes: fixes}
}

func TestAppendWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeAppender{fail: 1}
	env := envelope(models.LocationFix{Lat: 40.7, Lng: -74, AccuracyM: 10, CapturedAt: time.Now()})
	start := time.Now()
	if err := appendWithRetry(context.Background(), f, env, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls < 2 {
		t.Fatalf("expected retries, got calls=%d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestAppendWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeAppender{fail: 5}
	env := envelope(models.LocationFix{Lat: 40.7, Lng: -74, AccuracyM: 10, CapturedAt: time.Now()})
	if err := appendWithRetry(context.Background(), f, env, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}

func TestAppendWithRetry_DropsInvalidFixes(t *testing.T) {
	f := &fakeAppender{}
	env := envelope(
		models.LocationFix{Lat: 0, Lng: 0, CapturedAt: time.Now()},
		models.LocationFix{Lat: 40.7, Lng: -74, AccuracyM: 10, CapturedAt: time.Now()},
	)
	if err := appendWithRetry(context.Background(), f, env, 3, time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if len(f.seen) != 1 {
		t.Fatalf("expected only the valid fix stored, got %d", len(f.seen))
	}
	if f.seen[0].Lat != 40.7 {
		t.Fatalf("wrong fix stored: %+v", f.seen[0])
	}
}

func TestAppendWithRetry_DropsLowAccuracyFixes(t *testing.T) {
	f := &fakeAppender{}
	env := envelope(
		models.LocationFix{Lat: 40.71, Lng: -74, AccuracyM: 500, CapturedAt: time.Now()},
		models.LocationFix{Lat: 40.7, Lng: -74, AccuracyM: 10, CapturedAt: time.Now()},
	)
	if err := appendWithRetry(context.Background(), f, env, 3, time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if len(f.seen) != 1 {
		t.Fatalf("expected only the precise fix stored, got %d", len(f.seen))
	}
	if f.seen[0].AccuracyM != 10 {
		t.Fatalf("wrong fix stored: %+v", f.seen[0])
	}
}
