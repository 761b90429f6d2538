// Package engine owns the driving session, the factor resolver and the
// emissions buffers, and serializes every change to them through one
// goroutine.
//
// Location fixes, session commands and midnight rollovers all arrive on a
// single bounded queue drained by Run. Persistence, history and backend
// sync run after each transition on background goroutines; their failures
// are logged and counted but never retried and never roll back local state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/carboncounter/internal/aggregate"
	"github.com/rshade/carboncounter/internal/config"
	"github.com/rshade/carboncounter/internal/factors"
	"github.com/rshade/carboncounter/internal/greenops"
	"github.com/rshade/carboncounter/internal/history"
	"github.com/rshade/carboncounter/internal/metrics"
	"github.com/rshade/carboncounter/internal/tracking"
)

const (
	// DefaultQueueSize is the event queue capacity when none is configured.
	DefaultQueueSize = 256

	// DefaultSideEffectTimeout bounds each persistence or sync call.
	DefaultSideEffectTimeout = 15 * time.Second
)

var (
	// ErrStopped is returned by calls made after Run has returned.
	ErrStopped = errors.New("engine stopped")

	// ErrAlreadyRunning is returned by a second concurrent Run or by
	// Restore once Run has started.
	ErrAlreadyRunning = errors.New("engine already running")
)

// Syncer is the leaderboard surface the engine reports to.
type Syncer interface {
	CreateUser(ctx context.Context, username string) error
	UpdateCar(ctx context.Context, username string, v factors.VehicleProfile) error
	UpdateEmissions(ctx context.Context, username string, grams float64) error
}

// DriveRecorder receives every completed session.
type DriveRecorder interface {
	Record(ctx context.Context, d history.Drive) error
}

// Options configures an Engine. Store, Syncer and History are optional.
type Options struct {
	Table   *factors.Table
	Store   config.StateStore
	Syncer  Syncer
	History DriveRecorder
	Logger  zerolog.Logger

	// Now defaults to time.Now.
	Now                   func() time.Time
	QueueSize             int
	MaxHorizontalAccuracy float64
	DurationPolicy        tracking.DurationPolicy
	SameDay               aggregate.SameDayMode
	SideEffectTimeout     time.Duration
	// Location is the timezone whose midnights rotate the buffers;
	// defaults to time.Local.
	Location *time.Location
}

// Summary is the outcome of ending a session.
type Summary struct {
	tracking.Result

	Vehicle      factors.VehicleProfile `json:"vehicle"`
	Factor       greenops.Factor        `json:"-"`
	GramsPerMile float64                `json:"grams_per_mile,omitempty"`
	Grams        int                    `json:"grams"`

	// TodayGrams and TodayDistanceMeters are the day's totals after this
	// session was recorded. They equal the session values in overwrite mode.
	TodayGrams          int     `json:"today_grams"`
	TodayDistanceMeters float64 `json:"today_distance_meters"`
}

// Snapshot is a consistent read of the engine state.
type Snapshot struct {
	Username         string                 `json:"username"`
	Vehicle          factors.VehicleProfile `json:"vehicle"`
	Factor           string                 `json:"factor"`
	GramsPerMile     float64                `json:"grams_per_mile,omitempty"`
	State            string                 `json:"state"`
	SessionID        string                 `json:"session_id,omitempty"`
	PermissionDenied bool                   `json:"permission_denied"`
	DistanceMeters   float64                `json:"distance_meters"`
	Daily            aggregate.DailyBuffer  `json:"day_by_day"`
	Weekly           aggregate.WeeklyBuffer `json:"week_by_week"`
	Stats            aggregate.Stats        `json:"stats"`
}

type eventKind int

const (
	evFix eventKind = iota
	evStart
	evEnd
	evDenied
	evRollover
	evSetVehicle
	evSnapshot
)

type event struct {
	kind    eventKind
	fix     tracking.Fix
	at      time.Time
	vehicle factors.VehicleProfile
	reply   chan reply
}

type reply struct {
	sessionID string
	summary   Summary
	weekly    bool
	factor    greenops.Factor
	matched   bool
	snapshot  Snapshot
}

// Engine is the single writer for session and aggregate state.
type Engine struct {
	logger            zerolog.Logger
	store             config.StateStore
	syncer            Syncer
	history           DriveRecorder
	sideEffectTimeout time.Duration
	now               func() time.Time
	loc               *time.Location
	sameDay           aggregate.SameDayMode

	events  chan event
	done    chan struct{}
	running atomic.Bool
	effects sync.WaitGroup

	// Owned by the Run goroutine once it starts.
	session  *tracking.Session
	resolver *factors.Resolver
	agg      *aggregate.Aggregator
	state    config.PersistedState
	denied   bool

	persistMu  sync.Mutex
	persistSeq uint64
	savedSeq   uint64
}

// New creates an idle engine with empty buffers.
func New(opts Options) *Engine {
	logger := opts.Logger.With().Str("component", "engine").Logger()
	queue := opts.QueueSize
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	timeout := opts.SideEffectTimeout
	if timeout <= 0 {
		timeout = DefaultSideEffectTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	sameDay := opts.SameDay
	if sameDay == "" {
		sameDay = aggregate.SameDayOverwrite
	}

	return &Engine{
		logger:            logger,
		store:             opts.Store,
		syncer:            opts.Syncer,
		history:           opts.History,
		sideEffectTimeout: timeout,
		now:               now,
		loc:               loc,
		sameDay:           sameDay,
		events:            make(chan event, queue),
		done:              make(chan struct{}),
		session: tracking.NewSession(tracking.Options{
			MaxHorizontalAccuracy: opts.MaxHorizontalAccuracy,
			DurationPolicy:        opts.DurationPolicy,
			Now:                   now,
			Logger:                logger,
		}),
		resolver: factors.NewResolver(opts.Table),
		agg:      aggregate.New(sameDay),
	}
}

// Restore loads persisted state. It must be called before Run. Midnights
// that passed since the state was last rolled over are applied, and a
// missing username is generated, saved and registered with the backend.
func (e *Engine) Restore(ctx context.Context) error {
	if e.running.Load() {
		return ErrAlreadyRunning
	}
	if e.store == nil {
		e.state.EnsureUsername()
		e.state.SetRolloverDate(aggregate.Midnight(e.now(), e.loc))
		return nil
	}

	st, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	daily, weekly, err := st.Buffers()
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	e.agg.Restore(daily, weekly)

	generated := st.EnsureUsername()
	e.state = st

	caughtUp, err := e.catchUp()
	if err != nil {
		return fmt.Errorf("loading state: %w: %w", config.ErrStateCorrupted, err)
	}

	if v := st.Vehicle(); !v.IsZero() {
		if _, ok := e.resolver.Resolve(v); !ok {
			e.logger.Warn().Stringer("vehicle", v).Msg("persisted vehicle not in dataset; emissions will be zero")
		}
	}

	e.logger.Info().
		Str("username", st.Username).
		Stringer("vehicle", st.Vehicle()).
		Bool("new_user", generated).
		Int("missed_midnights", caughtUp).
		Msg("state restored")

	if generated || caughtUp > 0 {
		e.persist(ctx)
	}
	if generated {
		username := st.Username
		e.sync(ctx, func(ctx context.Context) error { return e.syncer.CreateUser(ctx, username) })
	}
	return nil
}

// Run drains the event queue until ctx is cancelled. It returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.done)

	e.logger.Debug().Int("queue_size", cap(e.events)).Msg("engine loop started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Debug().Int("pending", len(e.events)).Msg("engine loop stopped")
			return ctx.Err()
		case ev := <-e.events:
			e.handle(ctx, ev)
		}
	}
}

// Wait blocks until every background persistence and sync call finishes.
func (e *Engine) Wait() {
	e.effects.Wait()
}

// SubmitFix enqueues fix without blocking. It reports false when the queue
// is full and the fix was dropped.
func (e *Engine) SubmitFix(fix tracking.Fix) bool {
	select {
	case e.events <- event{kind: evFix, fix: fix}:
		return true
	default:
		metrics.FixesDropped.Inc()
		e.logger.Warn().Time("fix_time", fix.Timestamp).Msg("engine queue full, dropping fix")
		return false
	}
}

// StartSession begins a session and returns its ID. Starting while a
// session is running discards it. It also lifts a permission denial.
func (e *Engine) StartSession(ctx context.Context) (string, error) {
	r, err := e.call(ctx, event{kind: evStart})
	return r.sessionID, err
}

// EndSession finishes the running session and records its emissions.
// Ending while idle returns the zero Summary and changes nothing.
func (e *Engine) EndSession(ctx context.Context) (Summary, error) {
	r, err := e.call(ctx, event{kind: evEnd})
	return r.summary, err
}

// PermissionDenied ends the running session, if any, and ignores fixes until
// the next StartSession.
func (e *Engine) PermissionDenied(ctx context.Context) (Summary, error) {
	r, err := e.call(ctx, event{kind: evDenied})
	return r.summary, err
}

// Rollover applies the midnight rollover for the boundary at. It reports
// whether the weekly buffer rotated too.
func (e *Engine) Rollover(ctx context.Context, at time.Time) (bool, error) {
	r, err := e.call(ctx, event{kind: evRollover, at: at})
	return r.weekly, err
}

// SetVehicle selects v and returns the factor now in effect and whether v
// matched the dataset. On a miss the previous factor stays in effect.
func (e *Engine) SetVehicle(ctx context.Context, v factors.VehicleProfile) (greenops.Factor, bool, error) {
	r, err := e.call(ctx, event{kind: evSetVehicle, vehicle: v})
	return r.factor, r.matched, err
}

// Snapshot returns the current state as seen by the loop.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	r, err := e.call(ctx, event{kind: evSnapshot})
	return r.snapshot, err
}

func (e *Engine) call(ctx context.Context, ev event) (reply, error) {
	ev.reply = make(chan reply, 1)

	select {
	case e.events <- ev:
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-e.done:
		return reply{}, ErrStopped
	}

	select {
	case r := <-ev.reply:
		return r, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-e.done:
		select {
		case r := <-ev.reply:
			return r, nil
		default:
			return reply{}, ErrStopped
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev event) {
	var r reply
	switch ev.kind {
	case evFix:
		e.applyFix(ev.fix)
	case evStart:
		e.denied = false
		e.session.Start()
		metrics.SessionsTotal.WithLabelValues("start").Inc()
		r.sessionID = e.session.ID()
		e.logger.Info().Str("session_id", r.sessionID).Msg("driving session started")
	case evEnd:
		r.summary = e.endSession(ctx)
	case evDenied:
		e.denied = true
		r.summary = e.endSession(ctx)
		e.logger.Warn().Msg("location permission denied; fixes ignored until next session")
	case evRollover:
		r.weekly = e.rollover(ctx, ev.at)
	case evSetVehicle:
		r.factor, r.matched = e.setVehicle(ctx, ev.vehicle)
	case evSnapshot:
		r.snapshot = e.snapshot()
	}
	if ev.reply != nil {
		ev.reply <- r
	}
}

func (e *Engine) applyFix(fix tracking.Fix) {
	if e.denied {
		metrics.FixesTotal.WithLabelValues("denied").Inc()
		return
	}
	out := e.session.OnFix(fix)
	metrics.FixesTotal.WithLabelValues(out.Reason.String()).Inc()
}

func (e *Engine) endSession(ctx context.Context) Summary {
	res := e.session.End()
	if res.IsZero() {
		return Summary{}
	}

	if _, err := e.catchUp(); err != nil {
		e.logger.Warn().Err(err).Msg("skipping missed rollovers")
	}

	vehicle := e.state.Vehicle()
	factor, fresh := e.resolver.Resolve(vehicle)
	grams := int(greenops.Estimate(res.DistanceMeters, factor))
	e.agg.Record(grams)
	if e.sameDay == aggregate.SameDayAccumulate {
		e.state.TodayDistanceMeters += res.DistanceMeters
	} else {
		e.state.TodayDistanceMeters = res.DistanceMeters
	}

	summary := Summary{
		Result:              res,
		Vehicle:             vehicle,
		Factor:              factor,
		Grams:               grams,
		TodayGrams:          e.agg.Stats().Today,
		TodayDistanceMeters: e.state.TodayDistanceMeters,
	}
	if gpm, ok := factor.GramsPerMile(); ok {
		summary.GramsPerMile = gpm
	}

	metrics.SessionsTotal.WithLabelValues("end").Inc()
	metrics.SessionDistance.Observe(res.DistanceMeters)
	metrics.EmissionsGrams.Add(float64(grams))

	e.logger.Info().
		Str("session_id", res.SessionID).
		Float64("distance_m", res.DistanceMeters).
		Float64("duration_s", res.DurationSeconds).
		Stringer("factor", factor).
		Bool("factor_fresh", fresh).
		Int("grams", grams).
		Msg("driving session ended")

	e.persist(ctx)
	username := e.state.Username
	e.sync(ctx, func(ctx context.Context) error {
		return e.syncer.UpdateEmissions(ctx, username, float64(grams))
	})
	e.recordDrive(ctx, summary)
	return summary
}

// rollover applies the midnight that starts at's day, plus any earlier
// midnights not yet applied. A boundary already applied is ignored.
func (e *Engine) rollover(ctx context.Context, at time.Time) bool {
	boundary := aggregate.Midnight(at, e.loc)
	missed := []time.Time{boundary}
	last, ok, err := e.state.RolloverDate(e.loc)
	if err != nil {
		e.logger.Warn().Err(err).Msg("ignoring unreadable rollover date")
	} else if ok {
		missed = aggregate.MissedMidnights(last, boundary, e.loc)
	}
	if len(missed) == 0 {
		e.logger.Debug().Time("boundary", boundary).Str("last_rollover", e.state.LastRollover).Msg("rollover already applied")
		return false
	}

	weekly := false
	for _, m := range missed {
		if e.applyRollover(m) {
			weekly = true
		}
	}
	e.logger.Info().Time("boundary", boundary).Int("days", len(missed)).Bool("weekly", weekly).Msg("buffers rolled over")
	e.persist(ctx)
	return weekly
}

// catchUp applies every midnight between the recorded rollover date and
// now and returns how many it applied. With no recorded date the buffers
// are taken to belong to today.
func (e *Engine) catchUp() (int, error) {
	today := aggregate.Midnight(e.now(), e.loc)
	last, ok, err := e.state.RolloverDate(e.loc)
	if err != nil {
		return 0, err
	}
	if !ok {
		e.state.SetRolloverDate(today)
		return 0, nil
	}

	missed := aggregate.MissedMidnights(last, today, e.loc)
	for _, m := range missed {
		e.applyRollover(m)
	}
	return len(missed), nil
}

func (e *Engine) applyRollover(midnight time.Time) bool {
	weekly := e.agg.Rollover(midnight)
	e.state.TodayDistanceMeters = 0
	e.state.SetRolloverDate(midnight)

	metrics.RolloversTotal.WithLabelValues("daily").Inc()
	if weekly {
		metrics.RolloversTotal.WithLabelValues("weekly").Inc()
	}
	return weekly
}

func (e *Engine) setVehicle(ctx context.Context, v factors.VehicleProfile) (greenops.Factor, bool) {
	factor, matched := e.resolver.Resolve(v)
	e.state.SetVehicle(v)

	ev := e.logger.Info()
	if !matched {
		ev = e.logger.Warn()
	}
	ev.Stringer("vehicle", v).Stringer("factor", factor).Bool("matched", matched).Msg("vehicle selected")

	e.persist(ctx)
	username := e.state.Username
	e.sync(ctx, func(ctx context.Context) error { return e.syncer.UpdateCar(ctx, username, v) })
	return factor, matched
}

func (e *Engine) snapshot() Snapshot {
	daily, weekly := e.agg.Snapshot()
	factor := e.resolver.Last()
	gpm, _ := factor.GramsPerMile()
	return Snapshot{
		Username:         e.state.Username,
		Vehicle:          e.state.Vehicle(),
		Factor:           factor.String(),
		GramsPerMile:     gpm,
		State:            e.session.State().String(),
		SessionID:        e.session.ID(),
		PermissionDenied: e.denied,
		DistanceMeters:   e.session.DistanceMeters(),
		Daily:            daily,
		Weekly:           weekly,
		Stats:            e.agg.Stats(),
	}
}
