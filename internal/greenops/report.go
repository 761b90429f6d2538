package greenops

import "strings"

// DailyReport renders the end-of-day summary line for a driver:
//
//	Today, you drove 12.43 miles and your carbon emissions were 3,729 grams.
//
// An equivalency sentence is appended when the total is large enough.
func DailyReport(distanceMeters float64, grams int) string {
	var b strings.Builder
	b.WriteString("Today, you drove ")
	b.WriteString(FormatFloat(MilesFromMeters(distanceMeters), 2))
	b.WriteString(" miles and your carbon emissions were ")
	b.WriteString(FormatNumber(int64(grams)))
	b.WriteString(" grams.")

	if eq := EquivalencyText(float64(grams)); eq != "" {
		b.WriteString(" ")
		b.WriteString(eq)
		b.WriteString(".")
	}
	return b.String()
}
