package backend

import "sort"

// Rank returns the 1-based leaderboard position of username when entries
// are ordered by ascending weekly emissions, or 0 if username is absent.
// Ties keep their order from the server.
func Rank(entries []Entry, username string) int {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].WeeklyEmissions < sorted[j].WeeklyEmissions
	})
	for i, e := range sorted {
		if e.Username == username {
			return i + 1
		}
	}
	return 0
}
