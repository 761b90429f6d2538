package aggregate

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// NextMidnight returns the first local midnight strictly after now in loc.
// It is computed from the calendar date rather than by adding 24 hours, so
// days shortened or lengthened by a DST change stay aligned.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// DateLayout is the stored form of a rollover boundary.
const DateLayout = "2006-01-02"

// maxCatchUp is the number of consecutive midnights after which both
// buffers are all zeros, whatever the starting weekday.
const maxCatchUp = Days * Weeks

// Midnight returns the local midnight that starts t's day in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// WeekStart returns the Monday midnight that starts t's week in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	day := Midnight(t, loc)
	back := (int(day.Weekday()) + 6) % 7
	y, m, d := day.Date()
	return time.Date(y, m, d-back, 0, 0, 0, 0, day.Location())
}

// MissedMidnights returns, oldest first, the midnights after the day of
// last up to and including the day of now. Only the most recent
// Days*Weeks boundaries are returned, since older ones cannot change the
// buffers.
func MissedMidnights(last, now time.Time, loc *time.Location) []time.Time {
	from := Midnight(last, loc)
	to := Midnight(now, loc)
	if !to.After(from) {
		return nil
	}

	var out []time.Time
	for next := NextMidnight(from, loc); !next.After(to); next = NextMidnight(next, loc) {
		out = append(out, next)
	}
	if len(out) > maxCatchUp {
		out = out[len(out)-maxCatchUp:]
	}
	return out
}

// Timer is the subset of *time.Timer the scheduler needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// RolloverFunc runs once per local midnight with that midnight's instant.
type RolloverFunc func(ctx context.Context, at time.Time)

// Scheduler fires a callback once per local midnight using a one-shot
// timer that is re-armed after each firing.
type Scheduler struct {
	loc      *time.Location
	now      func() time.Time
	newTimer func(time.Duration) Timer
	onFire   RolloverFunc
	logger   zerolog.Logger
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithTimerFactory overrides time.NewTimer.
func WithTimerFactory(f func(time.Duration) Timer) SchedulerOption {
	return func(s *Scheduler) { s.newTimer = f }
}

// NewScheduler creates a scheduler for midnights in loc.
func NewScheduler(loc *time.Location, onFire RolloverFunc, logger zerolog.Logger, opts ...SchedulerOption) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		loc:      loc,
		now:      time.Now,
		newTimer: func(d time.Duration) Timer { return realTimer{t: time.NewTimer(d)} },
		onFire:   onFire,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled, firing the callback at every midnight.
// The callback receives the scheduled midnight, not the firing instant, and
// a boundary is never fired twice even if the timer wakes early.
// It always returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	var last time.Time
	for {
		now := s.now()
		if now.Before(last) {
			now = last
		}
		next := NextMidnight(now, s.loc)
		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}

		s.logger.Debug().Time("next_rollover", next).Dur("wait", wait).Msg("rollover armed")

		timer := s.newTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
			s.logger.Info().Time("boundary", next).Msg("midnight rollover")
			s.onFire(ctx, next)
			last = next
		}
	}
}
