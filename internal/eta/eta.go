package eta

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/example/careride/internal/geo"
	"github.com/example/careride/internal/models"
)

// FallbackSpeedMph is the assumed average speed when computing a
// straight-line duration estimate.
const FallbackSpeedMph = 30.0

// Estimate computes a straight-line distance and speed-based duration.
// This is a fallback only; the result is flagged IsFallback so the UI
// can disclose it is an approximation. Endpoints failing coordinate
// validation yield an "unavailable" estimate rather than distance math
// against a sentinel location.
func Estimate(pickup, dropoff models.Coord) models.RouteEstimate {
	if geo.ValidateCoord(pickup) != nil || geo.ValidateCoord(dropoff) != nil {
		return models.RouteEstimate{
			DistanceText: "Distance unavailable",
			DurationText: "Duration unavailable",
			IsFallback:   true,
			Unavailable:  true,
		}
	}
	miles := geo.HaversineMiles(pickup, dropoff)
	mins := miles / FallbackSpeedMph * 60
	return models.RouteEstimate{
		DistanceText:  FormatMiles(miles),
		DurationText:  FormatMinutes(mins),
		DistanceMiles: miles,
		DurationMins:  mins,
		IsFallback:    true,
	}
}

func FormatMiles(mi float64) string {
	return fmt.Sprintf("%.1f mi", mi)
}

// FormatMinutes renders "less than a minute", "X mins" or "Xh Ym".
func FormatMinutes(mins float64) string {
	if mins < 1 {
		return "less than a minute"
	}
	whole := int(math.Round(mins))
	if whole < 60 {
		if whole == 1 {
			return "1 min"
		}
		return fmt.Sprintf("%d mins", whole)
	}
	return fmt.Sprintf("%dh %dm", whole/60, whole%60)
}

// Cache is a tiny in-memory cache for route lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  models.RouteEstimate
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

func (c *Cache) Get(a, b models.Coord) (models.RouteEstimate, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return models.RouteEstimate{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return models.RouteEstimate{}, false
	}
	return e.v, true
}

func (c *Cache) Set(a, b models.Coord, v models.RouteEstimate) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}
