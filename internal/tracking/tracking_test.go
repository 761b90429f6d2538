package tracking

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metersToLatDegrees converts a northward distance into degrees of latitude.
func metersToLatDegrees(m float64) float64 {
	return m / earthRadiusM * 180 / math.Pi
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)}
}

// northFixes returns n fixes spaced stepM metres apart, one per interval.
func northFixes(start time.Time, n int, stepM float64, interval time.Duration) []Fix {
	fixes := make([]Fix, n)
	for i := range fixes {
		fixes[i] = Fix{
			Latitude:           37.0 + metersToLatDegrees(float64(i)*stepM),
			Longitude:          -122.0,
			Timestamp:          start.Add(time.Duration(i) * interval),
			Speed:              stepM / interval.Seconds(),
			HorizontalAccuracy: 5,
		}
	}
	return fixes
}

func TestHaversine(t *testing.T) {
	// Jakarta to Bandung is roughly 115-120 km.
	d := Haversine(-6.2, 106.816, -6.9175, 107.6191)
	assert.Greater(t, d, 100_000.0)
	assert.Less(t, d, 140_000.0)

	assert.InDelta(t, 100, Haversine(0, 0, metersToLatDegrees(100), 0), 1e-6)
	assert.Zero(t, Haversine(51.5, -0.12, 51.5, -0.12))
}

func TestFilter(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFilter(20)

	reason, ok := f.Accept(Fix{Timestamp: base, HorizontalAccuracy: 5})
	require.True(t, ok)
	assert.Equal(t, Accepted, reason)

	tests := []struct {
		name string
		fix  Fix
		want Rejection
	}{
		{"too inaccurate", Fix{Timestamp: base.Add(time.Second), HorizontalAccuracy: 25}, RejectedInaccurate},
		{"invalid accuracy", Fix{Timestamp: base.Add(time.Second), HorizontalAccuracy: -1}, RejectedInaccurate},
		{"duplicate timestamp", Fix{Timestamp: base, HorizontalAccuracy: 5}, RejectedOutOfOrder},
		{"older timestamp", Fix{Timestamp: base.Add(-time.Second), HorizontalAccuracy: 5}, RejectedOutOfOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := f.Accept(tt.fix)
			assert.False(t, ok)
			assert.Equal(t, tt.want, reason)
		})
	}

	// Rejected fixes never become the reference for ordering.
	_, ok = f.Accept(Fix{Timestamp: base.Add(time.Second), HorizontalAccuracy: 20})
	assert.True(t, ok, "accuracy equal to the ceiling is accepted")

	f.Reset()
	_, ok = f.Accept(Fix{Timestamp: base, HorizontalAccuracy: 5})
	assert.True(t, ok, "reset forgets the last fix")
}

func TestFilterWithoutCeiling(t *testing.T) {
	f := NewFilter(0)
	_, ok := f.Accept(Fix{Timestamp: time.Now(), HorizontalAccuracy: 5000})
	assert.True(t, ok)
}

func TestRejectionString(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "inaccurate", RejectedInaccurate.String())
	assert.Equal(t, "out_of_order", RejectedOutOfOrder.String())
	assert.Equal(t, "idle", RejectedIdle.String())
	assert.Equal(t, "unknown", Rejection(42).String())
}

func TestParseDurationPolicy(t *testing.T) {
	p, err := ParseDurationPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DurationPerSample, p)

	p, err = ParseDurationPolicy("since_start")
	require.NoError(t, err)
	assert.Equal(t, DurationSinceStart, p)

	_, err = ParseDurationPolicy("hourly")
	require.Error(t, err)
}

func TestAccumulatorAddsDistanceBetweenConsecutiveFixes(t *testing.T) {
	clock := newClock()
	acc := NewAccumulator(DurationPerSample, clock.Now)
	acc.Reset(clock.Now())

	fixes := []Fix{
		{Latitude: 37.7749, Longitude: -122.4194, Timestamp: clock.Now()},
		{Latitude: 37.7755, Longitude: -122.4180, Timestamp: clock.Now().Add(2 * time.Second)},
		{Latitude: 37.7790, Longitude: -122.4100, Timestamp: clock.Now().Add(9 * time.Second)},
	}

	assert.Zero(t, acc.Add(fixes[0]), "first fix only seeds")
	assert.Zero(t, acc.DistanceMeters())

	total := 0.0
	for i := 1; i < len(fixes); i++ {
		want := DistanceMeters(fixes[i-1], fixes[i])
		got := acc.Add(fixes[i])
		assert.InDelta(t, want, got, 1e-9)
		total += want
	}
	assert.InDelta(t, total, acc.DistanceMeters(), 1e-9)
	assert.InDelta(t, 9, acc.DurationSeconds(), 1e-9)
	require.NotNil(t, acc.LastFix())
	assert.Equal(t, fixes[2], *acc.LastFix())
}

func TestSessionLifecycle(t *testing.T) {
	clock := newClock()
	s := NewSession(Options{MaxHorizontalAccuracy: 50, Now: clock.Now, Logger: zerolog.Nop()})
	assert.Equal(t, Idle, s.State())

	fixes := northFixes(clock.Now(), 11, 100, time.Second)

	out := s.OnFix(fixes[0])
	assert.False(t, out.Applied)
	assert.Equal(t, RejectedIdle, out.Reason)
	assert.Zero(t, s.DistanceMeters(), "totals never move while idle")

	s.Start()
	assert.Equal(t, Driving, s.State())
	assert.NotEmpty(t, s.ID())
	assert.Nil(t, s.LastFix())

	for _, f := range fixes {
		clock.Advance(time.Second)
		out := s.OnFix(f)
		require.True(t, out.Applied)
	}

	id := s.ID()
	res := s.End()
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, id, res.SessionID)
	assert.InDelta(t, 1000, res.DistanceMeters, 1e-3)
	assert.InDelta(t, 10, res.DurationSeconds, 1e-9)
	assert.Equal(t, 11, res.Fixes)
	assert.True(t, res.EndedAt.After(res.StartedAt))

	assert.Zero(t, s.DistanceMeters(), "live totals are zeroed at end")
	assert.Zero(t, s.DurationSeconds())
	assert.Empty(t, s.ID())

	// Fixes after end are not applied.
	out = s.OnFix(Fix{Latitude: 38, Longitude: -122, Timestamp: clock.Now().Add(time.Hour), HorizontalAccuracy: 5})
	assert.False(t, out.Applied)
	assert.Zero(t, s.DistanceMeters())
}

func TestSessionEndWhileIdleIsZero(t *testing.T) {
	s := NewSession(Options{Logger: zerolog.Nop()})
	res := s.End()
	assert.True(t, res.IsZero())
	assert.Equal(t, Idle, s.State())
}

func TestSessionStartWhileDrivingResets(t *testing.T) {
	clock := newClock()
	s := NewSession(Options{Now: clock.Now, Logger: zerolog.Nop()})
	s.Start()
	first := s.ID()

	for _, f := range northFixes(clock.Now(), 3, 100, time.Second) {
		s.OnFix(f)
	}
	require.InDelta(t, 200, s.DistanceMeters(), 1e-3)

	clock.Advance(time.Minute)
	s.Start()
	assert.Equal(t, Driving, s.State())
	assert.NotEqual(t, first, s.ID())
	assert.Zero(t, s.DistanceMeters())
	assert.Nil(t, s.LastFix())

	// An older fix is accepted again because the filter was reset.
	out := s.OnFix(Fix{Latitude: 37, Longitude: -122, Timestamp: clock.Now().Add(-time.Hour), HorizontalAccuracy: 5})
	assert.True(t, out.Applied)
}

func TestSessionDropsOutOfOrderAndInaccurateFixes(t *testing.T) {
	clock := newClock()
	s := NewSession(Options{MaxHorizontalAccuracy: 10, Now: clock.Now, Logger: zerolog.Nop()})
	s.Start()

	fixes := northFixes(clock.Now(), 3, 100, time.Second)
	require.True(t, s.OnFix(fixes[0]).Applied)
	require.True(t, s.OnFix(fixes[2]).Applied)

	out := s.OnFix(fixes[1])
	assert.Equal(t, RejectedOutOfOrder, out.Reason)

	noisy := fixes[2]
	noisy.Timestamp = noisy.Timestamp.Add(time.Second)
	noisy.Latitude += 1
	noisy.HorizontalAccuracy = 65
	out = s.OnFix(noisy)
	assert.Equal(t, RejectedInaccurate, out.Reason)

	res := s.End()
	assert.InDelta(t, 200, res.DistanceMeters, 1e-3)
	assert.Equal(t, 2, res.Fixes)
}

func TestSessionSinceStartPolicyOverCounts(t *testing.T) {
	clock := newClock()
	s := NewSession(Options{DurationPolicy: DurationSinceStart, Now: clock.Now, Logger: zerolog.Nop()})
	s.Start()

	for i, f := range northFixes(clock.Now(), 11, 100, time.Second) {
		if i > 0 {
			clock.Advance(time.Second)
		}
		s.OnFix(f)
	}

	res := s.End()
	// 1 + 2 + ... + 10 seconds rather than 10.
	assert.InDelta(t, 55, res.DurationSeconds, 1e-9)
	assert.InDelta(t, 1000, res.DistanceMeters, 1e-3)
}

func TestSessionLikelyDriving(t *testing.T) {
	clock := newClock()
	s := NewSession(Options{Now: clock.Now, Logger: zerolog.Nop()})
	s.Start()
	out := s.OnFix(Fix{Timestamp: clock.Now(), Speed: 20})
	assert.True(t, out.LikelyDriving)
	out = s.OnFix(Fix{Timestamp: clock.Now().Add(time.Second), Speed: 2})
	assert.False(t, out.LikelyDriving)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "driving", Driving.String())
}
