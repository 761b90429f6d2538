package tracking

import (
	"fmt"
	"time"
)

// DurationPolicy selects how driving time accrues per fix.
type DurationPolicy string

const (
	// DurationPerSample adds the time between consecutive accepted fixes.
	DurationPerSample DurationPolicy = "per_sample"

	// DurationSinceStart adds the time elapsed since the session started on
	// every fix. It over-counts in proportion to the sample rate and exists
	// for parity with historic totals.
	DurationSinceStart DurationPolicy = "since_start"
)

// ParseDurationPolicy validates a configured policy name. Empty selects
// DurationPerSample.
func ParseDurationPolicy(s string) (DurationPolicy, error) {
	switch DurationPolicy(s) {
	case "", DurationPerSample:
		return DurationPerSample, nil
	case DurationSinceStart:
		return DurationSinceStart, nil
	default:
		return "", fmt.Errorf("unknown duration policy %q (want %q or %q)", s, DurationPerSample, DurationSinceStart)
	}
}

// Accumulator folds consecutive fixes into distance and duration totals.
type Accumulator struct {
	policy DurationPolicy
	now    func() time.Time

	startedAt       time.Time
	lastFix         *Fix
	distanceMeters  float64
	durationSeconds float64
}

// NewAccumulator creates an accumulator. now is only consulted by the
// DurationSinceStart policy.
func NewAccumulator(policy DurationPolicy, now func() time.Time) *Accumulator {
	if now == nil {
		now = time.Now
	}
	return &Accumulator{policy: policy, now: now}
}

// Reset zeros the totals, forgets the last fix and sets the session start.
func (a *Accumulator) Reset(startedAt time.Time) {
	a.startedAt = startedAt
	a.lastFix = nil
	a.distanceMeters = 0
	a.durationSeconds = 0
}

// Add folds fix into the totals and returns the distance it contributed.
// The first fix after Reset only seeds the last fix.
func (a *Accumulator) Add(fix Fix) float64 {
	prev := a.lastFix
	a.lastFix = &fix
	if prev == nil {
		return 0
	}

	delta := DistanceMeters(*prev, fix)
	a.distanceMeters += delta

	switch a.policy {
	case DurationSinceStart:
		a.durationSeconds += a.now().Sub(a.startedAt).Seconds()
	default:
		a.durationSeconds += fix.Timestamp.Sub(prev.Timestamp).Seconds()
	}
	return delta
}

// LastFix returns the most recent fix, or nil before the first one.
func (a *Accumulator) LastFix() *Fix {
	if a.lastFix == nil {
		return nil
	}
	f := *a.lastFix
	return &f
}

// DistanceMeters returns the accumulated distance.
func (a *Accumulator) DistanceMeters() float64 { return a.distanceMeters }

// DurationSeconds returns the accumulated driving time.
func (a *Accumulator) DurationSeconds() float64 { return a.durationSeconds }
