// Package aggregate keeps the rotating daily and weekly emission buffers
// and schedules their rollover at local midnight.
package aggregate

import (
	"fmt"
	"sync"
	"time"
)

const (
	// Days is the length of the daily buffer.
	Days = 7
	// Weeks is the length of the weekly buffer.
	Weeks = 5
)

// DailyBuffer holds grams of CO2 for the last seven days; index 6 is today.
type DailyBuffer [Days]int

// WeeklyBuffer holds grams of CO2 for the last five weeks; index 4 is this week.
type WeeklyBuffer [Weeks]int

// SameDayMode decides how a second session on the same day is recorded.
type SameDayMode string

const (
	// SameDayOverwrite replaces today's value with the latest session's grams.
	SameDayOverwrite SameDayMode = "overwrite"
	// SameDayAccumulate adds each session's grams to today's value.
	SameDayAccumulate SameDayMode = "accumulate"
)

// ParseSameDayMode validates a configured mode. Empty selects SameDayOverwrite.
func ParseSameDayMode(s string) (SameDayMode, error) {
	switch SameDayMode(s) {
	case "", SameDayOverwrite:
		return SameDayOverwrite, nil
	case SameDayAccumulate:
		return SameDayAccumulate, nil
	default:
		return "", fmt.Errorf("unknown same-day mode %q (want %q or %q)", s, SameDayOverwrite, SameDayAccumulate)
	}
}

// Stats summarizes the buffers for profile display.
type Stats struct {
	Today        int     `json:"today"`
	ThisWeek     int     `json:"this_week"`
	AllTime      int     `json:"all_time"`
	DailyAverage float64 `json:"daily_average"`
}

// Aggregator owns the daily and weekly buffers. It is safe for concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	mode   SameDayMode
	daily  DailyBuffer
	weekly WeeklyBuffer
}

// New creates an aggregator with zeroed buffers.
func New(mode SameDayMode) *Aggregator {
	if mode == "" {
		mode = SameDayOverwrite
	}
	return &Aggregator{mode: mode}
}

// Record stores a finished session's grams according to the same-day mode.
func (a *Aggregator) Record(grams int) {
	if a.mode == SameDayAccumulate {
		a.AddToday(grams)
		return
	}
	a.RecordToday(grams)
}

// RecordToday overwrites today's slot with grams and recomputes this week.
func (a *Aggregator) RecordToday(grams int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.daily[Days-1] = grams
	a.recomputeWeekLocked()
}

// AddToday adds grams to today's slot and recomputes this week.
func (a *Aggregator) AddToday(grams int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.daily[Days-1] += grams
	a.recomputeWeekLocked()
}

// recomputeWeekLocked sets the current week to the sum of the daily slots.
func (a *Aggregator) recomputeWeekLocked() {
	sum := 0
	for _, g := range a.daily {
		sum += g
	}
	a.weekly[Weeks-1] = sum
}

// RolloverDaily drops the oldest day and opens a zeroed today.
func (a *Aggregator) RolloverDaily() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.daily = shiftDaily(a.daily)
}

// RolloverWeekly drops the oldest week and opens a zeroed current week.
func (a *Aggregator) RolloverWeekly() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.weekly = shiftWeekly(a.weekly)
}

// Rollover performs the midnight rollover for the day starting at now and
// reports whether the weekly buffer rotated too (on Mondays).
func (a *Aggregator) Rollover(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.daily = shiftDaily(a.daily)
	if now.Weekday() != time.Monday {
		return false
	}
	a.weekly = shiftWeekly(a.weekly)
	return true
}

// Snapshot returns copies of both buffers.
func (a *Aggregator) Snapshot() (DailyBuffer, WeeklyBuffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.daily, a.weekly
}

// Restore replaces both buffers, e.g. with persisted values at startup.
func (a *Aggregator) Restore(daily DailyBuffer, weekly WeeklyBuffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.daily = daily
	a.weekly = weekly
}

// Stats returns today's and this week's totals, the all-time total (sum of
// the weekly buffer) and a daily average over the weeks with any emissions.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	allTime := 0
	activeWeeks := 0
	for _, g := range a.weekly {
		allTime += g
		if g > 0 {
			activeWeeks++
		}
	}
	daysTracked := max(1, activeWeeks*Days)

	return Stats{
		Today:        a.daily[Days-1],
		ThisWeek:     a.weekly[Weeks-1],
		AllTime:      allTime,
		DailyAverage: float64(allTime) / float64(daysTracked),
	}
}

func shiftDaily(b DailyBuffer) DailyBuffer {
	var out DailyBuffer
	copy(out[:], b[1:])
	return out
}

func shiftWeekly(b WeeklyBuffer) WeeklyBuffer {
	var out WeeklyBuffer
	copy(out[:], b[1:])
	return out
}

// DailyFromSlice converts a persisted slice into a DailyBuffer. An empty
// slice yields zeros; any other length mismatch is rejected.
func DailyFromSlice(s []int) (DailyBuffer, error) {
	var b DailyBuffer
	if len(s) == 0 {
		return b, nil
	}
	if len(s) != Days {
		return b, fmt.Errorf("daily buffer has %d entries, want %d", len(s), Days)
	}
	copy(b[:], s)
	return b, nil
}

// WeeklyFromSlice converts a persisted slice into a WeeklyBuffer.
func WeeklyFromSlice(s []int) (WeeklyBuffer, error) {
	var b WeeklyBuffer
	if len(s) == 0 {
		return b, nil
	}
	if len(s) != Weeks {
		return b, fmt.Errorf("weekly buffer has %d entries, want %d", len(s), Weeks)
	}
	copy(b[:], s)
	return b, nil
}
