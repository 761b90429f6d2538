package greenops

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// Calculate computes equivalencies for grams of CO2.
//
// Totals below MinEquivalencyThresholdKg yield an empty output with InputKg
// set and no error. Invalid input (negative or non-finite) yields an empty
// output and the normalization error.
func Calculate(grams float64) (EquivalencyOutput, error) {
	kg, err := NormalizeToKg(grams, "g")
	if err != nil {
		return EquivalencyOutput{IsEmpty: true}, err
	}

	if kg < MinEquivalencyThresholdKg {
		return EquivalencyOutput{InputKg: kg, IsEmpty: true}, nil
	}

	phones := kg / EPASmartphoneChargeFactor
	seedlings := kg / EPATreeSeedlingFactor
	if math.IsInf(phones, 0) || math.IsNaN(phones) {
		return EquivalencyOutput{IsEmpty: true}, ErrCalculationOverflow
	}

	phonesFormatted := formatEquivalencyValue(phones)
	seedlingsFormatted := formatEquivalencyValue(seedlings)

	return EquivalencyOutput{
		InputKg: kg,
		Results: []EquivalencyResult{
			{
				Type:           EquivalencySmartphonesCharged,
				Value:          phones,
				FormattedValue: phonesFormatted,
				Label:          "smartphones charged",
			},
			{
				Type:           EquivalencyTreeSeedlings,
				Value:          seedlings,
				FormattedValue: seedlingsFormatted,
				Label:          "tree seedlings grown for 10 years",
			},
		},
		DisplayText: fmt.Sprintf("Equivalent to charging ~%s smartphones or ~%s tree seedlings grown for 10 years",
			phonesFormatted, seedlingsFormatted),
	}, nil
}

// EquivalencyText returns the display text for grams, or "" when the total
// is too small to be meaningful. Calculation failures are logged and
// swallowed because the text is decorative.
func EquivalencyText(grams float64) string {
	out, err := Calculate(grams)
	if err != nil {
		log.Warn().Err(err).Float64("grams", grams).Msg("equivalency calculation failed")
		return ""
	}
	if out.IsEmpty {
		return ""
	}
	return out.DisplayText
}

// formatEquivalencyValue uses large-number scaling at or above a million
// and a rounded, comma-separated integer otherwise.
func formatEquivalencyValue(v float64) string {
	if v >= LargeNumberThreshold {
		return FormatLarge(v)
	}
	return FormatNumber(int64(math.Round(v)))
}
