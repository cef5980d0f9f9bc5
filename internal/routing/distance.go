package routing

import (
	"math"
	"time"

	"github.com/example/ride-client/internal/models"
)

// Haversine distance in meters
func Haversine(a, b models.Coord) float64 {
	const R = 6371000.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return R * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PathLength sums the great-circle length of a polyline in meters.
func PathLength(path []models.Coord) float64 {
	var d float64
	for i := 1; i < len(path); i++ {
		d += Haversine(path[i-1], path[i])
	}
	return d
}

// EstimateDuration is the straight-line fallback when a provider gives no
// duration: distance over an average city speed.
func EstimateDuration(meters, speedMps float64) time.Duration {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h
	}
	return time.Duration(meters / speedMps * float64(time.Second))
}

// complete fills a distance and duration the provider left out.
func complete(r Route) Route {
	if r.Distance == 0 {
		r.Distance = PathLength(r.Path)
	}
	if r.Duration == 0 && r.Distance > 0 {
		r.Duration = EstimateDuration(r.Distance, 0)
	}
	return r
}
