package tracking

import (
	"math"
	"time"
)

// earthRadiusM is the mean Earth radius used for haversine distances.
const earthRadiusM = 6371000.0

// Fix is a single timestamped location observation.
type Fix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// Timestamp orders fixes. Values from time.Now keep their monotonic
	// reading, so ordering is immune to wall-clock steps.
	Timestamp time.Time `json:"timestamp"`
	// Speed in metres per second; negative when the source has no estimate.
	Speed float64 `json:"speed"`
	// HorizontalAccuracy is the 1-sigma radius in metres; negative means invalid.
	HorizontalAccuracy float64 `json:"horizontal_accuracy"`
}

// DistanceMeters returns the great-circle distance between two fixes.
func DistanceMeters(from, to Fix) float64 {
	return Haversine(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
}

// Haversine returns the great-circle distance in metres between two
// coordinates given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
