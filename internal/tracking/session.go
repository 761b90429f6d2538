package tracking

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/rshade/carboncounter/internal/greenops"
)

// State is the session lifecycle state.
type State int

const (
	// Idle ignores fixes.
	Idle State = iota
	// Driving filters and accumulates fixes.
	Driving
)

// String returns "idle" or "driving".
func (s State) String() string {
	if s == Driving {
		return "driving"
	}
	return "idle"
}

// Result is the snapshot produced when a session ends.
type Result struct {
	SessionID       string    `json:"session_id,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DistanceMeters  float64   `json:"distance_meters"`
	DurationSeconds float64   `json:"duration_seconds"`
	Fixes           int       `json:"fixes"`
}

// IsZero reports whether r is the result of ending an idle session.
func (r Result) IsZero() bool { return r == Result{} }

// FixOutcome reports what happened to a fix passed to OnFix.
type FixOutcome struct {
	Applied       bool
	Reason        Rejection
	DistanceAdded float64
	LikelyDriving bool
}

// Options configures a Session.
type Options struct {
	MaxHorizontalAccuracy float64
	DurationPolicy        DurationPolicy
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger zerolog.Logger
}

// Session is the driving-session state machine.
type Session struct {
	now    func() time.Time
	logger zerolog.Logger

	state     State
	id        string
	startedAt time.Time
	fixes     int
	filter    *Filter
	acc       *Accumulator
}

// NewSession creates an idle session.
func NewSession(opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	policy := opts.DurationPolicy
	if policy == "" {
		policy = DurationPerSample
	}
	return &Session{
		now:    now,
		logger: opts.Logger,
		state:  Idle,
		filter: NewFilter(opts.MaxHorizontalAccuracy),
		acc:    NewAccumulator(policy, now),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// ID returns the current session's identifier, empty while idle.
func (s *Session) ID() string { return s.id }

// StartedAt returns the start time of the running session.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Start begins a new session. Calling it while Driving discards the running
// session's totals and starts over.
func (s *Session) Start() {
	if s.state == Driving {
		s.logger.Info().
			Str("session_id", s.id).
			Float64("discarded_distance_m", s.acc.DistanceMeters()).
			Msg("restarting session, discarding running totals")
	}

	s.startedAt = s.now()
	s.id = ulid.MustNew(ulid.Timestamp(s.startedAt), rand.Reader).String()
	s.fixes = 0
	s.filter.Reset()
	s.acc.Reset(s.startedAt)
	s.state = Driving

	s.logger.Debug().Str("session_id", s.id).Time("started_at", s.startedAt).Msg("session started")
}

// OnFix applies fix when Driving and it passes the filter.
func (s *Session) OnFix(fix Fix) FixOutcome {
	if s.state != Driving {
		return FixOutcome{Reason: RejectedIdle}
	}

	if reason, ok := s.filter.Accept(fix); !ok {
		s.logger.Debug().
			Str("session_id", s.id).
			Stringer("reason", reason).
			Float64("accuracy_m", fix.HorizontalAccuracy).
			Msg("fix rejected")
		return FixOutcome{Reason: reason}
	}

	s.fixes++
	added := s.acc.Add(fix)
	likely := greenops.LikelyDriving(fix.Speed)
	if likely {
		s.logger.Debug().Str("session_id", s.id).Float64("speed_mps", fix.Speed).Msg("speed suggests driver is in a car")
	}
	return FixOutcome{Applied: true, Reason: Accepted, DistanceAdded: added, LikelyDriving: likely}
}

// End returns the accumulated totals and goes Idle. Ending an idle session
// returns the zero Result.
func (s *Session) End() Result {
	if s.state != Driving {
		return Result{}
	}

	res := Result{
		SessionID:       s.id,
		StartedAt:       s.startedAt,
		EndedAt:         s.now(),
		DistanceMeters:  s.acc.DistanceMeters(),
		DurationSeconds: s.acc.DurationSeconds(),
		Fixes:           s.fixes,
	}

	s.state = Idle
	s.id = ""
	s.fixes = 0
	s.filter.Reset()
	s.acc.Reset(time.Time{})

	s.logger.Debug().
		Str("session_id", res.SessionID).
		Float64("distance_m", res.DistanceMeters).
		Float64("duration_s", res.DurationSeconds).
		Msg("session ended")
	return res
}

// DistanceMeters returns the live distance total.
func (s *Session) DistanceMeters() float64 { return s.acc.DistanceMeters() }

// DurationSeconds returns the live duration total.
func (s *Session) DurationSeconds() float64 { return s.acc.DurationSeconds() }

// LastFix returns the last applied fix of the running session, or nil.
func (s *Session) LastFix() *Fix { return s.acc.LastFix() }
