// Package http serves the voxnotes REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
	"github.com/fyrsmithlabs/voxnotes/internal/ondevice"
	"github.com/fyrsmithlabs/voxnotes/internal/store"
)

// NoteProcessor runs typed notes through the capture pipeline.
type NoteProcessor interface {
	ProcessText(ctx context.Context, text string) (notes.Outcome, error)
}

// EntityStore is the read and transition surface of the store.
type EntityStore interface {
	List(ctx context.Context, f store.Filter) ([]entity.Entity, error)
	QueryUpcoming(ctx context.Context, limit int) ([]entity.Entity, error)
	Search(ctx context.Context, query string, limit int) ([]entity.Entity, error)
	MarkComplete(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	ListVoiceNotes(ctx context.Context, limit int) ([]entity.VoiceNote, error)
	CountActive(ctx context.Context) (map[entity.Type]int, error)
}

// Model is the on-device model lifecycle.
type Model interface {
	Status() ondevice.Status
	Initialize(ctx context.Context) error
}

// Server provides HTTP endpoints for voxnotes.
type Server struct {
	echo     *echo.Echo
	notes    NoteProcessor
	store    EntityStore
	model    Model
	logger   *zap.Logger
	config   *Config
	registry *prometheus.Registry
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
	// InitTimeout bounds POST /api/v1/model/init.
	InitTimeout time.Duration
}

// NewServer creates the server. model may be nil when the on-device
// strategy is not configured.
func NewServer(np NoteProcessor, st EntityStore, model Model, logger *zap.Logger, cfg *Config) (*Server, error) {
	if np == nil {
		return nil, errors.New("note processor cannot be nil")
	}
	if st == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8787}
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 10 * time.Minute
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	reg := prometheus.NewRegistry()
	if err := reg.Register(NewEntityCollector(st, logger)); err != nil {
		return nil, fmt.Errorf("register entity collector: %w", err)
	}

	s := &Server{
		echo:     e,
		notes:    np,
		store:    st,
		model:    model,
		logger:   logger,
		config:   cfg,
		registry: reg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/notes", s.handleCreateNote)
	v1.GET("/entities", s.handleListEntities)
	v1.GET("/entities/upcoming", s.handleUpcoming)
	v1.GET("/entities/search", s.handleSearch)
	v1.POST("/entities/:id/complete", s.handleComplete)
	v1.DELETE("/entities/:id", s.handleDelete)
	v1.GET("/voice-notes", s.handleVoiceNotes)
	v1.GET("/model/status", s.handleModelStatus)
	v1.POST("/model/init", s.handleModelInit)
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on the configured address. It blocks until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
