package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/example/careride/internal/models"
)

func TestValidateAcceptsRealCoordinates(t *testing.T) {
	cases := []models.Coord{
		{Lat: 40.7128, Lng: -74.0060},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 90, Lng: 180},
		{Lat: -90, Lng: -180},
		{Lat: 0, Lng: 1},
		{Lat: 1, Lng: 0},
	}
	for _, c := range cases {
		if err := ValidateCoord(c); err != nil {
			t.Errorf("expected (%v,%v) accepted, got %v", c.Lat, c.Lng, err)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []models.Coord{
		{Lat: 0, Lng: 0},
		{Lat: 1, Lng: 1},
		{Lat: 91, Lng: 0.5},
		{Lat: -90.01, Lng: 10},
		{Lat: 45, Lng: 180.5},
		{Lat: 45, Lng: -181},
	}
	for _, c := range cases {
		err := ValidateCoord(c)
		if err == nil {
			t.Errorf("expected (%v,%v) rejected", c.Lat, c.Lng)
			continue
		}
		var ice *InvalidCoordinateError
		if !errors.As(err, &ice) {
			t.Errorf("expected InvalidCoordinateError, got %T", err)
		}
		if ice.Message() == "" {
			t.Error("expected a user-facing message")
		}
	}
}

func TestHaversineMilesSymmetric(t *testing.T) {
	a := models.Coord{Lat: 40.7128, Lng: -74.0060}
	b := models.Coord{Lat: 40.7580, Lng: -73.9855}
	ab := HaversineMiles(a, b)
	ba := HaversineMiles(b, a)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("expected symmetric distance, got %f vs %f", ab, ba)
	}
	if ab < 3.2 || ab > 3.5 {
		t.Fatalf("expected ~3.3 miles midtown to downtown, got %f", ab)
	}
}

func TestHaversineMilesZero(t *testing.T) {
	p := models.Coord{Lat: 12.5, Lng: 99.1}
	if d := HaversineMiles(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}
