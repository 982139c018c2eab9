// Package server exposes the viewer session over HTTP.
//
// Routes live under /api; Prometheus metrics are served at /metrics when a
// gatherer is configured. Failures are returned as
//
//	{"error": "<kind>", "message": "<text>"}
//
// with a status derived from the error kind.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/paveg/pivotgrid/internal/grid"
	"github.com/paveg/pivotgrid/internal/monitoring"
	"github.com/paveg/pivotgrid/internal/version"
	"github.com/paveg/pivotgrid/internal/viewer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP surface of one viewer session.
type Server struct {
	echo     *echo.Echo
	session  *viewer.Session
	metrics  *monitoring.MetricsCollector
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	gridOpts grid.Options
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves the collector summary at /api/metrics/summary.
func WithMetrics(mc *monitoring.MetricsCollector) Option {
	return func(s *Server) {
		s.metrics = mc
	}
}

// WithGatherer serves g at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGridOptions sets the grid behaviour sent to clients.
func WithGridOptions(opts grid.Options) Option {
	return func(s *Server) {
		s.gridOpts = opts
	}
}

// New builds a server for session.
func New(session *viewer.Session, opts ...Option) *Server {
	s := &Server{
		session:  session,
		logger:   slog.Default(),
		gridOpts: grid.DefaultOptions(grid.DefaultPageSize),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelWarn
			}
			s.logger.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	e.Use(serverHeader)

	s.echo = e
	s.registerRoutes()
	return s
}

func serverHeader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderServer, version.UserAgent())
		return next(c)
	}
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api")
	api.GET("/health", s.health)
	api.GET("/version", s.buildInfo)
	api.GET("/controls", s.controls)
	api.POST("/view", s.view)
	api.POST("/export", s.export)
	api.POST("/cache/reset", s.resetCache)
	api.GET("/metrics/summary", s.metricsSummary)

	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr, "version", version.Version)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
