package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"merlin/internal/logger"
	"merlin/internal/metrics"
)

// Server exposes the analysis pipeline over HTTP.
type Server struct {
	echo         *echo.Echo
	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration
	version      string
	metrics      *metrics.Metrics
	checks       []healthCheck
}

type healthCheck struct {
	name  string
	check func(context.Context) error
}

type healthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMetrics serves the registry on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheck adds a dependency checked by /healthz. A failing check turns
// the reply into 503.
func WithHealthCheck(name string, check func(context.Context) error) Option {
	return func(s *Server) { s.checks = append(s.checks, healthCheck{name, check}) }
}

func New(analyzer Analyzer, opts ...Option) *Server {
	s := &Server{
		addr:         ":8080",
		readTimeout:  15 * time.Second,
		writeTimeout: 60 * time.Second,
		version:      "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(recoverPanics())
	e.Use(requestLogging())

	(&analysisHandler{analyzer: analyzer}).RegisterRoutes(e)
	e.GET("/healthz", s.health)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	s.echo = e
	return s
}

func (s *Server) health(c echo.Context) error {
	resp := healthStatus{Status: "ok", Version: s.version}
	code := http.StatusOK
	for _, hc := range s.checks {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(s.checks))
		}
		if err := hc.check(c.Request().Context()); err != nil {
			logger.Warn(c.Request().Context(), "Health check failed", "check", hc.name, "error", err)
			resp.Checks[hc.name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[hc.name] = "ok"
	}
	return dataResponse(c, code, resp)
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.echo,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "addr", s.addr)
		errCh <- s.echo.StartServer(srv)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	logger.Info(ctx, "HTTP server stopped")
	return nil
}
