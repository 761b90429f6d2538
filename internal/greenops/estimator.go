package greenops

import "math"

// MilesFromMeters converts a distance in metres to miles.
func MilesFromMeters(meters float64) float64 {
	return meters / MetersPerMile
}

// Estimate returns grams of CO2 emitted over distanceMeters for a vehicle
// with emissions factor f.
//
// It returns 0 for UnknownFactor and for negative or non-finite inputs,
// so a missing factor never yields a partial value. The result is linear
// in distance for a fixed factor.
func Estimate(distanceMeters float64, f Factor) float64 {
	gramsPerMile, ok := f.GramsPerMile()
	if !ok {
		return 0
	}
	if !finiteNonNegative(distanceMeters) || !finiteNonNegative(gramsPerMile) {
		return 0
	}

	grams := gramsPerMile * MilesFromMeters(distanceMeters)
	if math.IsInf(grams, 0) {
		return 0
	}
	return grams
}

// LikelyDriving reports whether speedMps is above the in-a-car threshold.
func LikelyDriving(speedMps float64) bool {
	return speedMps > LikelyDrivingSpeed
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
