package greenops

import (
	"math"
	"strings"
)

// unitFactor returns the kilogram conversion factor for unit, matched
// case-insensitively. Recognized: g, kg, t, lb and their CO2 / CO2e forms.
func unitFactor(unit string) (float64, bool) {
	u := strings.ToLower(unit)
	u = strings.TrimSuffix(u, "co2e")
	u = strings.TrimSuffix(u, "co2")
	switch u {
	case "g":
		return GramsToKg, true
	case "kg":
		return KgToKg, true
	case "t":
		return TonsToKg, true
	case "lb":
		return PoundsToKg, true
	default:
		return 0, false
	}
}

// NormalizeToKg converts a carbon quantity in unit to kilograms.
//
// It returns ErrCalculationOverflow for Inf/NaN input or an overflowing
// result, ErrNegativeValue for negative input and ErrInvalidUnit for an
// unrecognized unit.
func NormalizeToKg(value float64, unit string) (float64, error) {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, ErrCalculationOverflow
	}
	if value < 0 {
		return 0, ErrNegativeValue
	}

	factor, ok := unitFactor(unit)
	if !ok {
		return 0, ErrInvalidUnit
	}

	result := value * factor
	if math.IsInf(result, 0) {
		return 0, ErrCalculationOverflow
	}
	return result, nil
}

// IsRecognizedUnit reports whether unit is a supported carbon unit.
func IsRecognizedUnit(unit string) bool {
	_, ok := unitFactor(unit)
	return ok
}
