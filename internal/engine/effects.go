package engine

import (
	"context"

	"github.com/rshade/carboncounter/internal/history"
	"github.com/rshade/carboncounter/internal/metrics"
)

// goEffect runs fn on a tracked goroutine with a context that outlives the
// caller's cancellation but not the side-effect timeout.
func (e *Engine) goEffect(ctx context.Context, target string, fn func(context.Context) error) {
	e.effects.Add(1)
	go func() {
		defer e.effects.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sideEffectTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			metrics.SideEffectFailures.WithLabelValues(target).Inc()
			e.logger.Warn().Err(err).Str("target", target).Msg("background call failed")
		}
	}()
}

// persist saves a copy of the current state. Saves that finish out of order
// never overwrite a newer snapshot.
func (e *Engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}

	st := e.state
	st.SetBuffers(e.agg.Snapshot())

	e.persistMu.Lock()
	e.persistSeq++
	seq := e.persistSeq
	e.persistMu.Unlock()

	e.goEffect(ctx, metrics.TargetState, func(ctx context.Context) error {
		e.persistMu.Lock()
		defer e.persistMu.Unlock()
		if seq <= e.savedSeq {
			return nil
		}
		if err := e.store.Save(ctx, st); err != nil {
			return err
		}
		e.savedSeq = seq
		return nil
	})
}

func (e *Engine) sync(ctx context.Context, fn func(context.Context) error) {
	if e.syncer == nil || e.state.Username == "" {
		return
	}
	e.goEffect(ctx, metrics.TargetBackend, fn)
}

func (e *Engine) recordDrive(ctx context.Context, s Summary) {
	if e.history == nil {
		return
	}
	d := history.Drive{
		SessionID:       s.SessionID,
		Username:        e.state.Username,
		Vehicle:         s.Vehicle.String(),
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		DistanceMeters:  s.DistanceMeters,
		DurationSeconds: s.DurationSeconds,
		Grams:           s.Grams,
		Fixes:           s.Fixes,
	}
	e.goEffect(ctx, metrics.TargetHistory, func(ctx context.Context) error {
		return e.history.Record(ctx, d)
	})
}
