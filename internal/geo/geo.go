package geo

import (
	"fmt"
	"math"

	"github.com/example/careride/internal/models"
)

// EarthRadiusMiles is the radius used for all great-circle math.
const EarthRadiusMiles = 3958.8

// InvalidCoordinateError is surfaced to the caller/UI with a
// user-facing message instead of silently plotting a wrong point.
type InvalidCoordinateError struct {
	Lat, Lng float64
	Reason   string
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinates (%.4f, %.4f): %s", e.Lat, e.Lng, e.Reason)
}

// Message returns the text shown to the user.
func (e *InvalidCoordinateError) Message() string {
	return "Location unavailable: the address could not be placed on the map."
}

// Validate rejects out-of-range coordinates and the known sentinel
// pairs (0,0) and (1,1) that indicate an upstream geocoding failure,
// not a real position.
func Validate(lat, lng float64) error {
	if math.Abs(lat) > 90 || math.Abs(lng) > 180 {
		return &InvalidCoordinateError{Lat: lat, Lng: lng, Reason: "out of range"}
	}
	if (lat == 0 && lng == 0) || (lat == 1 && lng == 1) {
		return &InvalidCoordinateError{Lat: lat, Lng: lng, Reason: "sentinel pair from failed geocode"}
	}
	return nil
}

func ValidateCoord(c models.Coord) error { return Validate(c.Lat, c.Lng) }

// MaxAccuracyM is the gate for authoritative fixes. Coarser readings
// are advisory only and must not be relayed to riders or stored.
const MaxAccuracyM = 100.0

// Authoritative reports whether a fix is precise enough to relay and
// keep in the rolling window.
func Authoritative(fix models.LocationFix) bool {
	return fix.AccuracyM <= MaxAccuracyM
}

// HaversineMiles computes the great-circle distance between two points.
func HaversineMiles(a, b models.Coord) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMiles * c
}
