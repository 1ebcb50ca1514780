package sampler

import (
	"math/rand"
	"time"

	"github.com/example/careride/internal/models"
)

// syntheticAccuracyM is deliberately coarse so a placeholder can never
// pass for an authoritative device reading downstream.
const syntheticAccuracyM = 500.0

// stepFraction is how far each synthetic fix moves toward the waypoint.
const stepFraction = 0.15

// jitterDeg bounds the random offset applied to synthetic positions,
// roughly 30m at mid latitudes.
const jitterDeg = 0.0003

// NextWaypoint returns where a disconnected client should drift toward:
// the pickup while the driver is en route, the dropoff once the ride is
// in progress.
func NextWaypoint(ride models.Ride) models.Coord {
	if ride.Status == models.RideInProgress {
		return ride.Dropoff
	}
	return ride.Pickup
}

// Synthetic produces an approximate placeholder fix interpolated from
// the last known position toward the waypoint. It is tagged
// SourceSynthetic and carries degraded accuracy metadata; it must never
// be presented with the confidence of a device fix.
func Synthetic(last, waypoint models.Coord, rng *rand.Rand, now time.Time) models.LocationFix {
	lat := last.Lat + (waypoint.Lat-last.Lat)*stepFraction + (rng.Float64()*2-1)*jitterDeg
	lng := last.Lng + (waypoint.Lng-last.Lng)*stepFraction + (rng.Float64()*2-1)*jitterDeg
	return models.LocationFix{
		Lat:        lat,
		Lng:        lng,
		AccuracyM:  syntheticAccuracyM,
		CapturedAt: now,
		Source:     models.SourceSynthetic,
	}
}
