package geo

import (
	"math"

	"github.com/example/ridewatch/internal/models"
)

// DefaultSpeedMps is a rough city driving speed, about 28.8 km/h.
const DefaultSpeedMps = 8.0

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// DistanceKm between two coordinates.
func DistanceKm(from, to models.Coord) float64 {
	return Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / 1000
}

// Naive ETA: straight-line distance / speed.
func EstimateSeconds(from, to models.Coord, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = DefaultSpeedMps
	}
	return Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / speedMps
}

// RouteDistanceKm sums the legs between consecutive points.
func RouteDistanceKm(points []models.Coord) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += DistanceKm(points[i-1], points[i])
	}
	return total
}
