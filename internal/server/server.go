// Package server exposes the analytics pipelines over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HaoJinjin/open-soda/internal/cache"
	"github.com/HaoJinjin/open-soda/internal/config"
	"github.com/HaoJinjin/open-soda/internal/jobs"
	"github.com/HaoJinjin/open-soda/internal/prediction"
	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
)

const (
	shutdownTimeout = 10 * time.Second
	listLimit       = 100
)

// JobStore persists job records and reads them back, so task ids survive
// a restart.
type JobStore interface {
	jobs.Store
	GetJob(ctx context.Context, id string) (jobs.Job, error)
	ListJobs(ctx context.Context, limit int) ([]jobs.Job, error)
	JobErrors(ctx context.Context, jobID string) ([]string, error)
}

// Server owns the router, the job registry and the shared pipeline.
type Server struct {
	cfg      *config.Config
	engine   *gin.Engine
	registry *jobs.Registry
	pipeline *prediction.Pipeline
	cache    *cache.Cache
	store    JobStore
	logger   log.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCache enables result caching.
func WithCache(c *cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithStore persists job records and serves stored ones after a restart.
func WithStore(st JobStore) Option {
	return func(s *Server) { s.store = st }
}

// WithPipeline replaces the prediction pipeline built from the config.
func WithPipeline(p *prediction.Pipeline) Option {
	return func(s *Server) { s.pipeline = p }
}

// New builds a Server and its routes.
func New(cfg *config.Config, options ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		cache:  cache.Disabled(),
		logger: log.GetLoggerWithName("server"),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.pipeline == nil {
		s.pipeline = prediction.NewPipeline(
			prediction.WithTestSize(cfg.Prediction.TestSize),
			prediction.WithSeed(cfg.Prediction.Seed),
		)
	}

	regOpts := []jobs.Option{jobs.WithObserver(observeJob)}
	if s.store != nil {
		regOpts = append(regOpts, jobs.WithStore(s.store))
	}
	s.registry = jobs.NewRegistry(regOpts...)

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestMetrics(s.logger), corsMiddleware(cfg.Server.AllowedOrigins))
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/convert", s.convert)
	r.GET("/status/:task_id", s.status)
	r.GET("/jobs", s.listJobs)
	r.POST("/predict", s.predict)

	api := r.Group("/api")
	api.POST("/predict/fork", s.predictFork)
	api.POST("/predict/response-time", s.predictResponseTime)
	api.GET("/statistics/indicators", s.indicatorStatistics)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Registry returns the job registry.
func (s *Server) Registry() *jobs.Registry {
	return s.registry
}

// Run listens on the configured port until ctx is cancelled, then shuts
// down gracefully. Running jobs are not awaited.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "http.addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return <-errCh
}
