package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rshade/carboncounter/internal/aggregate"
	"github.com/rshade/carboncounter/internal/backend"
	"github.com/rshade/carboncounter/internal/engine"
	"github.com/rshade/carboncounter/internal/server"
)

// shutdownTimeout bounds how long in-flight requests may run after a signal.
const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine, the midnight rollover and the HTTP ingest server",
		Example: `  carboncounter serve
  carboncounter serve --listen 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = root.cfg.Server.Listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, listen string) error {
	svc, err := newServices(ctx, root)
	if err != nil {
		return err
	}
	defer svc.Close()
	if tableErr := svc.loadTable(); tableErr != nil {
		return tableErr
	}

	eng, err := svc.newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Wait()

	srvOpts := []server.Option{server.WithTable(svc.table), server.WithLogger(svc.log)}
	if svc.client != nil {
		srvOpts = append(srvOpts, server.WithLeaderboard(
			backend.NewLeaderboard(svc.client, root.cfg.Backend.LeaderboardTTL)))
	}
	if limit := root.cfg.Server; limit.FixesPerSecond > 0 {
		srvOpts = append(srvOpts, server.WithFixRateLimit(rate.Limit(limit.FixesPerSecond), max(1, limit.FixesBurst)))
	}
	srv := server.New(eng, srvOpts...)

	sched := aggregate.NewScheduler(root.cfg.Location(), rolloverFunc(eng), svc.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return srv.Listen(listen) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("server stopped")
		return nil
	}
	return err
}

// rolloverFunc adapts the engine to the scheduler callback.
func rolloverFunc(eng *engine.Engine) aggregate.RolloverFunc {
	return func(ctx context.Context, at time.Time) {
		if _, err := eng.Rollover(ctx, at); err != nil {
			logger.Error().Err(err).Time("boundary", at).Msg("rollover failed")
		}
	}
}
