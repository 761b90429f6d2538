package aggregate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextMidnight(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"evening", time.Date(2026, 10, 16, 21, 30, 0, 0, time.UTC), time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)},
		{"exactly midnight moves to the next one", time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)},
		{"month end", time.Date(2026, 10, 31, 12, 0, 0, 0, time.UTC), time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)},
		{"year end", time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NextMidnight(tt.now, time.UTC)))
		})
	}
}

func TestMidnightAndWeekStart(t *testing.T) {
	tests := []struct {
		name      string
		at        time.Time
		midnight  time.Time
		weekStart time.Time
	}{
		{"friday morning", time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC), time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{"monday midnight", time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
		{"sunday night", time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC), time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{"week across month", time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC), time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.midnight.Equal(Midnight(tt.at, time.UTC)))
			assert.True(t, tt.weekStart.Equal(WeekStart(tt.at, time.UTC)))
		})
	}
}

func TestMissedMidnights(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC) }

	assert.Empty(t, MissedMidnights(day(16), day(16).Add(20*time.Hour), time.UTC))
	assert.Empty(t, MissedMidnights(day(17), day(16), time.UTC), "clock moved backwards")

	got := MissedMidnights(day(15).Add(23*time.Hour), day(18).Add(time.Hour), time.UTC)
	require.Len(t, got, 3)
	assert.True(t, day(16).Equal(got[0]))
	assert.True(t, day(18).Equal(got[2]))
}

func TestMissedMidnightsKeepsMostRecent(t *testing.T) {
	last := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

	got := MissedMidnights(last, now, time.UTC)
	require.Len(t, got, Days*Weeks)
	assert.True(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC).Equal(got[len(got)-1]))
	assert.True(t, time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC).Equal(got[0]))
}

func TestNextMidnightAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 2026-03-08 is 23 hours long in New York.
	now := time.Date(2026, 3, 8, 0, 30, 0, 0, ny)
	next := NextMidnight(now, ny)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, ny), next)
	assert.Equal(t, 22*time.Hour+30*time.Minute, next.Sub(now))

	// 2026-11-01 is 25 hours long.
	now = time.Date(2026, 11, 1, 0, 0, 0, 0, ny)
	next = NextMidnight(now, ny)
	assert.Equal(t, 25*time.Hour, next.Sub(now))
	assert.Equal(t, 0, next.Hour())
}

type fakeTimer struct {
	wait time.Duration
	c    chan time.Time
}

func (f *fakeTimer) C() <-chan time.Time { return f.c }
func (f *fakeTimer) Stop() bool          { return true }

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func TestSchedulerRearmsAfterEachMidnight(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 18, 22, 0, 0, 0, time.UTC)} // Sunday
	timers := make(chan *fakeTimer, 4)
	fired := make(chan time.Time, 4)

	s := NewScheduler(time.UTC,
		func(_ context.Context, at time.Time) { fired <- at },
		zerolog.Nop(),
		WithClock(clock.Now),
		WithTimerFactory(func(d time.Duration) Timer {
			ft := &fakeTimer{wait: d, c: make(chan time.Time, 1)}
			timers <- ft
			return ft
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	first := <-timers
	assert.Equal(t, 2*time.Hour, first.wait)

	monday := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	clock.Set(monday.Add(5 * time.Millisecond))
	first.c <- clock.Now()

	at := <-fired
	assert.True(t, monday.Equal(at))
	assert.Equal(t, time.Monday, at.Weekday())

	second := <-timers
	assert.Equal(t, 24*time.Hour-5*time.Millisecond, second.wait)

	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSchedulerDoesNotRefireOnEarlyWake(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)}
	timers := make(chan *fakeTimer, 4)
	fired := make(chan time.Time, 4)

	s := NewScheduler(time.UTC,
		func(_ context.Context, at time.Time) { fired <- at },
		zerolog.Nop(),
		WithClock(clock.Now),
		WithTimerFactory(func(d time.Duration) Timer {
			ft := &fakeTimer{wait: d, c: make(chan time.Time, 1)}
			timers <- ft
			return ft
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	first := <-timers
	// Wall clock stepped back: the timer wakes a second before midnight.
	clock.Set(time.Date(2026, 10, 18, 23, 59, 59, 0, time.UTC))
	first.c <- clock.Now()

	at := <-fired
	assert.True(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC).Equal(at))

	second := <-timers
	require.Equal(t, 24*time.Hour+time.Second, second.wait, "next boundary is Tuesday, not Monday again")
}
