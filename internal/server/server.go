// Package server exposes the engine over HTTP for location sources and
// dashboards.
package server

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rshade/carboncounter/internal/backend"
	"github.com/rshade/carboncounter/internal/engine"
	"github.com/rshade/carboncounter/internal/factors"
	"github.com/rshade/carboncounter/internal/greenops"
	"github.com/rshade/carboncounter/internal/metrics"
	"github.com/rshade/carboncounter/internal/tracking"
)

// Engine is the engine surface the HTTP handlers use.
type Engine interface {
	SubmitFix(fix tracking.Fix) bool
	StartSession(ctx context.Context) (string, error)
	EndSession(ctx context.Context) (engine.Summary, error)
	PermissionDenied(ctx context.Context) (engine.Summary, error)
	SetVehicle(ctx context.Context, v factors.VehicleProfile) (greenops.Factor, bool, error)
	Snapshot(ctx context.Context) (engine.Snapshot, error)
}

// Server wraps the fiber app.
type Server struct {
	App    *fiber.App
	engine Engine
	table  *factors.Table
	board  *backend.Leaderboard
	fixes  *rate.Limiter
	logger zerolog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithTable enables the vehicle selection routes.
func WithTable(t *factors.Table) Option {
	return func(s *Server) { s.table = t }
}

// WithLeaderboard enables GET /leaderboard.
func WithLeaderboard(lb *backend.Leaderboard) Option {
	return func(s *Server) { s.board = lb }
}

// WithFixRateLimit caps POST /fixes at r requests per second with the given
// burst. Excess requests get 429.
func WithFixRateLimit(r rate.Limit, burst int) Option {
	return func(s *Server) { s.fixes = rate.NewLimiter(r, burst) }
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l.With().Str("component", "server").Logger() }
}

// New builds the app and registers every route.
func New(eng Engine, opts ...Option) *Server {
	s := &Server{
		App: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			ErrorHandler:          errorHandler,
		}),
		engine: eng,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.App.Use(recover.New())
	s.App.Use(s.observe)
	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	s.App.Post("/session/start", s.startSession)
	s.App.Post("/session/end", s.endSession)
	s.App.Post("/fixes", s.limitFixes, s.submitFixes)
	s.App.Post("/permission/denied", s.permissionDenied)
	s.App.Get("/state", s.state)
	s.App.Put("/vehicle", s.setVehicle)

	vehicles := s.App.Group("/vehicles")
	vehicles.Get("/years", s.years)
	vehicles.Get("/makes", s.makes)
	vehicles.Get("/models", s.models)

	s.App.Get("/leaderboard", s.leaderboard)
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("http server listening")
	return s.App.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}

// observe logs each request and counts it by route and status.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	} else if err != nil {
		status = fiber.StatusInternalServerError
	}

	metrics.HTTPRequests.WithLabelValues(c.Route().Path, strconv.Itoa(status)).Inc()
	s.logger.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("elapsed", time.Since(start)).
		Msg("request")
	return err
}

func (s *Server) limitFixes(c *fiber.Ctx) error {
	if s.fixes != nil && !s.fixes.Allow() {
		return fiber.NewError(fiber.StatusTooManyRequests, "fix rate limit exceeded")
	}
	return c.Next()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// engineError maps engine call failures to 503.
func engineError(err error) error {
	return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
}
