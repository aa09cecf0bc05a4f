// internal/api/server.go
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/FairForge/intellinspect/internal/domain"
	"github.com/FairForge/intellinspect/internal/metrics"
	"github.com/FairForge/intellinspect/internal/partition"
	"github.com/FairForge/intellinspect/internal/replay"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Catalog is the dataset surface the API serves
type Catalog interface {
	Ingest(ctx context.Context, id, name, uri string) (*dataset.Profile, error)
	Profile(ctx context.Context, id string) (*dataset.Profile, error)
	List(ctx context.Context) ([]*dataset.Profile, error)
}

// Partitions persists accepted partitions
type Partitions interface {
	SavePartition(ctx context.Context, datasetID string, p partition.Partition) error
	LoadPartition(ctx context.Context, datasetID string) (partition.Partition, error)
}

// Engine is the replay surface the API serves
type Engine interface {
	StartSession(ctx context.Context, req replay.Request) (string, error)
	GetStatus(ctx context.Context, id string) (domain.Snapshot, error)
	ListSessions(ctx context.Context, limit int) ([]domain.Snapshot, error)
	GetPredictions(ctx context.Context, id string, limit int) ([]*domain.PredictionRecord, error)
	GetAlerts(ctx context.Context, id string, limit int) ([]*domain.QualityAlert, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Active() int
}

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the handlers
type Deps struct {
	Catalog    Catalog
	Partitions Partitions
	Engine     Engine
	Store      Pinger
}

// Server is the HTTP front of the replay service
type Server struct {
	catalog    Catalog
	partitions Partitions
	engine     Engine
	store      Pinger
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
	startTime  time.Time
}

// NewServer builds the router and the underlying http.Server
func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		catalog:    deps.Catalog,
		partitions: deps.Partitions,
		engine:     deps.Engine,
		store:      deps.Store,
		logger:     logger,
		router:     chi.NewRouter(),
		startTime:  time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.Middleware)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/datasets", func(r chi.Router) {
			r.Post("/", s.handleIngestDataset)
			r.Get("/", s.handleListDatasets)
			r.Get("/{id}", s.handleGetDataset)
			r.Post("/{id}/partition", s.handleValidatePartition)
			r.Get("/{id}/partition", s.handleGetPartition)
		})

		r.Route("/simulations", func(r chi.Router) {
			r.Post("/", s.handleStartSimulation)
			r.Get("/", s.handleListSimulations)
			r.Get("/{id}", s.handleGetSimulation)
			r.Post("/{id}/pause", s.handlePause)
			r.Post("/{id}/resume", s.handleResume)
			r.Post("/{id}/stop", s.handleStop)
			r.Get("/{id}/predictions", s.handleGetPredictions)
			r.Get("/{id}/alerts", s.handleGetAlerts)
		})
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.startTime).Seconds(),
	})
}

// handleReady checks the store can be reached before accepting traffic
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"ready":          true,
		"active_workers": s.engine.Active(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("store ping failed", zap.Error(err))
			resp["ready"] = false
			resp["error"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	s.respondJSON(w, status, resp)
}
