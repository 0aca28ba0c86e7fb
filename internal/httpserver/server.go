package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/go-remix/internal/buildinfo"
	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
	"github.com/tphakala/go-remix/internal/logging"
	"github.com/tphakala/go-remix/internal/observability"
	"github.com/tphakala/go-remix/internal/observability/metrics"
)

const componentHTTP = "httpserver"

// Server is the HTTP API server.
type Server struct {
	echo    *echo.Echo
	config  *Config
	slogger *slog.Logger

	acquirer Acquirer
	records  RecordLookup
	metrics  *observability.Metrics
	recorder metrics.Recorder

	startTime time.Time
	logCloser func() error
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithRecordLookup enables GET /api/v1/analysis/:digest.
func WithRecordLookup(records RecordLookup) ServerOption {
	return func(s *Server) { s.records = records }
}

// WithMetrics serves /metrics and records HTTP and render metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.slogger = logger }
}

// New creates a server around acquirer.
func New(config *Config, acquirer Acquirer, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.New(err).
			Component(componentHTTP).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if acquirer == nil {
		return nil, errors.Newf("http server needs an acquisition pipeline").
			Component(componentHTTP).
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		config:    config,
		acquirer:  acquirer,
		recorder:  metrics.NopRecorder{},
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics != nil {
		s.recorder = s.metrics.Acquisition
	}

	if err := s.initLogger(); err != nil {
		return nil, err
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.slogger.Info("HTTP server initialized",
		"address", config.Listen,
		"body_limit", config.BodyLimit(),
		"metrics", s.metrics != nil)
	return s, nil
}

// initLogger picks the request logger: an explicit one, a rotating file
// logger when the server log is enabled, or the service logger.
func (s *Server) initLogger() error {
	if s.slogger != nil {
		return nil
	}
	if !s.config.Log.Enabled {
		s.slogger = logging.ServiceOrDefault(componentHTTP)
		return nil
	}

	level := slog.LevelInfo
	if s.config.Debug {
		level = slog.LevelDebug
	}
	logger, closer, err := logging.NewFileLogger(s.config.Log.Path, componentHTTP, level)
	if err != nil {
		return errors.New(err).
			Component(componentHTTP).
			Category(errors.CategoryFileIO).
			FileContext(s.config.Log.Path, 0).
			Build()
	}
	s.slogger = logger
	s.logCloser = closer
	return nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.slogger))
	if s.metrics != nil {
		s.echo.Use(newMetricsMiddleware(s.metrics.HTTP))
	}
}

// setupRoutes registers all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	limit := echomw.BodyLimit(s.config.BodyLimit())
	v1 := s.echo.Group("/api/v1")
	v1.POST("/analyze", s.analyze, limit)
	v1.POST("/remix", s.remix, limit)
	v1.GET("/analysis/:digest", s.lookupAnalysis)
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        buildinfo.Current().GetVersion(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"cache":          s.records != nil,
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Start serves HTTP requests until ctx is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.slogger.Info("starting HTTP server", "address", s.config.Listen)
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.New(err).
				Component(componentHTTP).
				Category(errors.CategoryNetwork).
				Context("address", s.config.Listen).
				Build()
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// StartWithGracefulShutdown serves until SIGINT or SIGTERM.
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Start(ctx)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.slogger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.slogger.Info("server shutdown complete")

	if s.logCloser != nil {
		return s.logCloser()
	}
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// NewFromSettings creates a server configured from the application settings.
func NewFromSettings(settings *conf.Settings, acquirer Acquirer, opts ...ServerOption) (*Server, error) {
	return New(ConfigFromSettings(settings), acquirer, opts...)
}
