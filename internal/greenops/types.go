// Package greenops turns driven distance into grams of CO2 and renders the
// results in relatable terms.
//
// Estimation is a pure function of distance and a per-vehicle emissions
// factor. Display helpers convert gram totals into EPA-style equivalencies
// ("smartphones charged", "tree seedlings grown") and the daily report text.
package greenops

import "fmt"

// Factor is a vehicle emissions factor in grams of CO2 per mile.
// The zero value is UnknownFactor.
type Factor struct {
	gramsPerMile float64
	known        bool
}

// UnknownFactor is passed to Estimate when no factor could be resolved for
// the tracked vehicle.
//
//nolint:gochecknoglobals // Sentinel value, never mutated.
var UnknownFactor = Factor{}

// KnownFactor wraps a resolved grams-per-mile value.
func KnownFactor(gramsPerMile float64) Factor {
	return Factor{gramsPerMile: gramsPerMile, known: true}
}

// GramsPerMile returns the factor value and whether it is known.
func (f Factor) GramsPerMile() (float64, bool) {
	return f.gramsPerMile, f.known
}

// IsKnown reports whether the factor came from a dataset match.
func (f Factor) IsKnown() bool { return f.known }

// String returns a human-readable representation of the factor.
func (f Factor) String() string {
	if !f.known {
		return "unknown"
	}
	return fmt.Sprintf("%.2f g/mi", f.gramsPerMile)
}

// EquivalencyType represents a category of carbon emission equivalency.
type EquivalencyType int

const (
	// EquivalencySmartphonesCharged converts CO2 to smartphone full charges.
	EquivalencySmartphonesCharged EquivalencyType = iota

	// EquivalencyTreeSeedlings converts CO2 to tree seedlings grown for 10 years.
	EquivalencyTreeSeedlings
)

// String returns a human-readable representation of the EquivalencyType.
func (e EquivalencyType) String() string {
	switch e {
	case EquivalencySmartphonesCharged:
		return "SmartphonesCharged"
	case EquivalencyTreeSeedlings:
		return "TreeSeedlings"
	default:
		return fmt.Sprintf("EquivalencyType(%d)", e)
	}
}

// EquivalencyResult represents a single calculated equivalency.
type EquivalencyResult struct {
	Type           EquivalencyType `json:"type"`
	Value          float64         `json:"value"`
	FormattedValue string          `json:"formatted_value"`
	Label          string          `json:"label"`
}

// EquivalencyOutput contains all equivalency results for display.
type EquivalencyOutput struct {
	// InputKg is the normalized input value in kilograms CO2.
	InputKg float64 `json:"input_kg"`

	Results []EquivalencyResult `json:"results"`

	// DisplayText is the prose form, e.g.
	// "Equivalent to charging ~18,248 smartphones or ~3 tree seedlings grown for 10 years".
	DisplayText string `json:"display_text"`

	IsEmpty bool `json:"is_empty"`
}
