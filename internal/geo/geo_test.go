package geo

import (
	"math"
	"testing"

	"github.com/example/ridewatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceKmOneDegreeLatitude(t *testing.T) {
	d := DistanceKm(models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 1, Lon: 0})
	if math.Abs(d-111.19) > 0.05 {
		t.Fatalf("expected ~111.19km, got %f", d)
	}
}

func TestEstimateSecondsDefaultsSpeed(t *testing.T) {
	from := models.Coord{Lat: 12.97, Lon: 77.59}
	to := models.Coord{Lat: 12.98, Lon: 77.60}
	got := EstimateSeconds(from, to, 0)
	want := Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / DefaultSpeedMps
	if got != want {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestRouteDistanceKm(t *testing.T) {
	a := models.Coord{Lat: 0, Lon: 0}
	b := models.Coord{Lat: 1, Lon: 0}
	if got := RouteDistanceKm([]models.Coord{a}); got != 0 {
		t.Fatalf("single point should be 0, got %f", got)
	}
	got := RouteDistanceKm([]models.Coord{a, b, a})
	if math.Abs(got-2*DistanceKm(a, b)) > 1e-9 {
		t.Fatalf("round trip mismatch: %f", got)
	}
}
