// Package api serves the control surface of a worker: submitting and
// stopping detection jobs, inspecting jobs and incidents, health and
// metrics. Handlers only submit work; detection runs in the job queue.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/yardwatch/yardwatch/internal/api/middleware"
	"github.com/yardwatch/yardwatch/internal/conf"
	"github.com/yardwatch/yardwatch/internal/datastore"
	"github.com/yardwatch/yardwatch/internal/dispatch"
	"github.com/yardwatch/yardwatch/internal/jobqueue"
	"github.com/yardwatch/yardwatch/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Dispatcher starts and stops recordings.
type Dispatcher interface {
	Start(ctx context.Context, req dispatch.StartRequest) (dispatch.Started, error)
	Stop(ctx context.Context, recordingID uint) error
}

// Jobs exposes job state.
type Jobs interface {
	Get(id string) (jobqueue.JobInfo, error)
	Stats() jobqueue.JobStatsSnapshot
}

// Catalog lists detection types.
type Catalog interface {
	ListDetectionTypes(ctx context.Context) ([]datastore.DetectionType, error)
}

// Incidents lists stored incidents.
type Incidents interface {
	ListByRecording(ctx context.Context, recordingID uint, limit int) ([]datastore.Incident, error)
}

// Server is the control API.
type Server struct {
	echo     *echo.Echo
	settings *conf.APISettings
	log      logger.Logger

	dispatcher Dispatcher
	jobs       Jobs
	catalog    Catalog
	incidents  Incidents
	metrics    http.Handler
	ping       func(ctx context.Context) error
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithDispatcher sets the job dispatcher.
func WithDispatcher(d Dispatcher) ServerOption {
	return func(s *Server) { s.dispatcher = d }
}

// WithJobs sets the job queue view.
func WithJobs(j Jobs) ServerOption {
	return func(s *Server) { s.jobs = j }
}

// WithCatalog sets the detection type catalog.
func WithCatalog(c Catalog) ServerOption {
	return func(s *Server) { s.catalog = c }
}

// WithIncidents sets the incident repository.
func WithIncidents(i Incidents) ServerOption {
	return func(s *Server) { s.incidents = i }
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithHealthCheck adds a dependency check to /healthz.
func WithHealthCheck(ping func(ctx context.Context) error) ServerOption {
	return func(s *Server) { s.ping = ping }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// New creates a Server and registers its routes.
func New(settings *conf.APISettings, opts ...ServerOption) *Server {
	s := &Server{settings: settings}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Global().Module("api")
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.errorHandler

	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.Trace())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, mw.PathSkipper("/healthz", "/metrics")))

	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	s.echo.GET("/healthz", s.Health)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/detection/start", s.StartDetection)
	v1.POST("/detection/stop/:recordingId", s.StopDetection)
	v1.GET("/detection/types", s.ListDetectionTypes)
	v1.GET("/jobs/:handle", s.GetJob)
	v1.GET("/recordings/:id/incidents", s.ListIncidents)
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.settings.Listen)
	if err != nil {
		return err
	}
	s.echo.Listener = ln
	s.log.Info("control API listening", logger.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.echo.Start("") }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
