package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rshade/carboncounter/internal/aggregate"
	"github.com/rshade/carboncounter/internal/backend"
	"github.com/rshade/carboncounter/internal/config"
	"github.com/rshade/carboncounter/internal/engine"
	"github.com/rshade/carboncounter/internal/factors"
	"github.com/rshade/carboncounter/internal/history"
	"github.com/rshade/carboncounter/internal/kvstore"
	"github.com/rshade/carboncounter/internal/tracking"
)

// services holds the collaborators built from configuration. Fields that a
// command does not need stay nil.
type services struct {
	cfg     *config.Config
	log     zerolog.Logger
	table   *factors.Table
	store   config.StateStore
	client  *backend.Client
	history *history.Log
	closers []func()
}

// openStore builds the configured state store.
func openStore(cfg *config.Config, log zerolog.Logger) (config.StateStore, func(), error) {
	switch strings.ToLower(cfg.State.Backend) {
	case config.StateBackendRedis:
		client := kvstore.Connect(cfg.State)
		if client == nil {
			return nil, nil, errors.New("state.redis_addr is required for the redis backend")
		}
		store := kvstore.NewRedisStateStore(client, cfg.State.RedisKeyPrefix, log)
		return store, func() { _ = client.Close() }, nil
	default:
		store, err := config.NewFileStateStore(cfg.State.File)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// newServices wires the store, the backend client unless offline, and the
// Postgres history log when configured.
func newServices(ctx context.Context, opts *rootOptions) (*services, error) {
	cfg := opts.cfg
	s := &services{cfg: cfg, log: logger}

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.closers = append(s.closers, closeStore)

	if !opts.offline && cfg.Backend.BaseURL != "" {
		s.client = backend.NewClient(cfg.Backend.BaseURL,
			backend.WithTimeout(cfg.Backend.Timeout),
			backend.WithLogger(logger),
		)
	}

	if cfg.History.PostgresURL != "" {
		pool, connErr := history.Connect(ctx, cfg.History.PostgresURL)
		if connErr != nil {
			s.Close()
			return nil, fmt.Errorf("connecting to history database: %w", connErr)
		}
		s.closers = append(s.closers, pool.Close)
		s.history = history.NewLog(pool, logger)
		if schemaErr := s.history.EnsureSchema(ctx); schemaErr != nil {
			s.Close()
			return nil, fmt.Errorf("preparing history schema: %w", schemaErr)
		}
	}
	return s, nil
}

// Close releases connections in reverse order.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// loadTable reads the emissions dataset.
func (s *services) loadTable() error {
	table, stats, err := factors.LoadFile(s.cfg.Dataset.Path, s.log)
	if err != nil {
		return fmt.Errorf("loading dataset %s: %w", s.cfg.Dataset.Path, err)
	}
	s.log.Debug().
		Str("path", s.cfg.Dataset.Path).
		Int("loaded", stats.Loaded).
		Int("skipped", stats.Skipped).
		Msg("dataset loaded")
	s.table = table
	return nil
}

// newEngine builds an engine over the wired collaborators and restores its
// persisted state.
func (s *services) newEngine(ctx context.Context) (*engine.Engine, error) {
	policy, err := tracking.ParseDurationPolicy(s.cfg.Tracking.DurationPolicy)
	if err != nil {
		return nil, err
	}
	mode, err := aggregate.ParseSameDayMode(s.cfg.Aggregate.SameDay)
	if err != nil {
		return nil, err
	}

	opts := engine.Options{
		Table:                 s.table,
		Store:                 s.store,
		Logger:                s.log,
		QueueSize:             s.cfg.Tracking.QueueSize,
		MaxHorizontalAccuracy: s.cfg.Tracking.MaxHorizontalAccuracy,
		DurationPolicy:        policy,
		SameDay:               mode,
		Location:              s.cfg.Location(),
	}
	// Typed nil pointers must not reach the interface fields.
	if s.client != nil {
		opts.Syncer = s.client
	}
	if s.history != nil {
		opts.History = s.history
	}

	eng := engine.New(opts)
	if restoreErr := eng.Restore(ctx); restoreErr != nil {
		return nil, restoreErr
	}
	return eng, nil
}

// runEngine starts eng in the background. The returned stop func cancels
// the loop and waits for pending persistence and sync calls.
func runEngine(ctx context.Context, eng *engine.Engine) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
		eng.Wait()
	}
}
