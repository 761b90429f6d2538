package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rshade/carboncounter/internal/engine"
	"github.com/rshade/carboncounter/internal/tracking"
)

// Batch size limits.
const (
	DefaultBatchSize = 100
	MinBatchSize     = 1
	MaxBatchSize     = 1000
)

// Common replay errors.
var (
	ErrInvalidBatchSize = errors.New("batch size must be between 1 and 1000")
	ErrNilTarget        = errors.New("replay target cannot be nil")
)

// Target is the engine surface a replay drives.
type Target interface {
	SubmitFix(fix tracking.Fix) bool
	Snapshot(ctx context.Context) (engine.Snapshot, error)
}

// Progress describes a replay after a batch completes.
type Progress struct {
	TotalFixes   int
	Submitted    int
	Dropped      int
	TotalBatches int
	Batches      int
	Elapsed      time.Duration
}

// PercentComplete returns submitted fixes as a percentage of the total.
func (p Progress) PercentComplete() float64 {
	if p.TotalFixes == 0 {
		return 0
	}
	return float64(p.Submitted+p.Dropped) / float64(p.TotalFixes) * 100
}

// ProgressFunc is called after every batch.
type ProgressFunc func(Progress)

// Replayer submits fixes batch by batch.
type Replayer struct {
	batchSize  int
	onProgress ProgressFunc
	now        func() time.Time
}

// New creates a replayer with the given batch size.
func New(batchSize int) (*Replayer, error) {
	if batchSize < MinBatchSize || batchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}
	return &Replayer{batchSize: batchSize, now: time.Now}, nil
}

// WithProgress sets a callback invoked after each batch.
func (r *Replayer) WithProgress(fn ProgressFunc) *Replayer {
	r.onProgress = fn
	return r
}

// BatchSize returns the configured batch size.
func (r *Replayer) BatchSize() int { return r.batchSize }

// Replay submits fixes in order and returns the final progress. It stops at
// the first barrier error or when ctx is cancelled.
func (r *Replayer) Replay(ctx context.Context, target Target, fixes []tracking.Fix) (Progress, error) {
	if target == nil {
		return Progress{}, ErrNilTarget
	}

	start := r.now()
	progress := Progress{
		TotalFixes:   len(fixes),
		TotalBatches: (len(fixes) + r.batchSize - 1) / r.batchSize,
	}

	for lo := 0; lo < len(fixes); lo += r.batchSize {
		if err := ctx.Err(); err != nil {
			return progress, err
		}

		hi := min(lo+r.batchSize, len(fixes))
		for _, fix := range fixes[lo:hi] {
			if target.SubmitFix(fix) {
				progress.Submitted++
			} else {
				progress.Dropped++
			}
		}

		if _, err := target.Snapshot(ctx); err != nil {
			return progress, fmt.Errorf("batch %d failed: %w", progress.Batches, err)
		}

		progress.Batches++
		progress.Elapsed = r.now().Sub(start)
		if r.onProgress != nil {
			r.onProgress(progress)
		}
	}
	return progress, nil
}
