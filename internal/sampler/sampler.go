// Package sampler filters and batches raw device location fixes before
// they are handed to the tracking channel.
package sampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/careride/internal/geo"
	"github.com/example/careride/internal/models"
)

const (
	// MinInterval throttles accepted fixes; earlier arrivals are
	// ignored, not queued.
	MinInterval = 5 * time.Second
	// MaxAccuracyM is the accuracy gate for authoritative fixes.
	MaxAccuracyM = geo.MaxAccuracyM
	// Flush triggers: whichever comes first.
	MaxBuffered  = 3
	MaxBufferAge = 30 * time.Second
)

// ErrLowAccuracy marks a fix dropped by the accuracy gate. Not a
// failure of the sampler; the caller surfaces a degraded-accuracy
// state instead.
var ErrLowAccuracy = errors.New("fix accuracy exceeds 100m")

// Sink receives flushed fix batches, typically the tracking channel or
// the ingest producer.
type Sink interface {
	PublishFixes(ctx context.Context, fixes []models.LocationFix) error
}

// Sampler throttles, validates and batches fixes. Fixes from a failed
// flush are prepended for exactly one retry cycle; a second failure
// drops them so memory stays bounded.
type Sampler struct {
	mu           sync.Mutex
	sink         Sink
	now          func() time.Time
	onDegraded   func(models.LocationFix)
	lastAccepted time.Time
	lastFlush    time.Time
	buf          []models.LocationFix
	retry        []models.LocationFix
}

type Option func(*Sampler)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// WithDegradedSignal registers the accuracy-degraded callback fired
// when a fix fails the accuracy gate.
func WithDegradedSignal(fn func(models.LocationFix)) Option {
	return func(s *Sampler) { s.onDegraded = fn }
}

func New(sink Sink, opts ...Option) *Sampler {
	s := &Sampler{sink: sink, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.lastFlush = s.now()
	return s
}

// Offer submits one raw fix. It returns whether the fix was accepted
// into the buffer and any validation error. Throttled fixes return
// (false, nil).
func (s *Sampler) Offer(ctx context.Context, fix models.LocationFix) (bool, error) {
	if err := geo.Validate(fix.Lat, fix.Lng); err != nil {
		return false, err
	}
	if fix.AccuracyM > MaxAccuracyM {
		if s.onDegraded != nil {
			s.onDegraded(fix)
		}
		return false, ErrLowAccuracy
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !s.lastAccepted.IsZero() && now.Sub(s.lastAccepted) < MinInterval {
		return false, nil
	}
	s.lastAccepted = now
	if fix.Source == "" {
		fix.Source = models.SourceDevice
	}
	s.buf = append(s.buf, fix)
	if len(s.buf) >= MaxBuffered || now.Sub(s.lastFlush) >= MaxBufferAge {
		s.flushLocked(ctx)
	}
	return true, nil
}

// Flush forces the buffered fixes out, e.g. on page navigation.
func (s *Sampler) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked(ctx)
}

func (s *Sampler) flushLocked(ctx context.Context) {
	batch := append(append([]models.LocationFix{}, s.retry...), s.buf...)
	fresh := s.buf
	s.buf = nil
	s.retry = nil
	s.lastFlush = s.now()
	if len(batch) == 0 {
		return
	}
	if err := s.sink.PublishFixes(ctx, batch); err != nil {
		// Only the fresh fixes get a retry; anything already
		// retried once is dropped here.
		s.retry = fresh
	}
}

// Pending reports buffered and retry-queued fix counts, for tests and
// diagnostics.
func (s *Sampler) Pending() (buffered, retrying int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf), len(s.retry)
}
