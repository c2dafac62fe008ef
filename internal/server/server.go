package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lazypower/synapse/internal/engine"
	"github.com/lazypower/synapse/internal/metrics"
	"github.com/lazypower/synapse/internal/store"
)

// Server is the synapse HTTP API server.
type Server struct {
	engine   *engine.Engine
	db       *store.DB
	metrics  *metrics.Collector
	log      *zap.Logger
	validate *validator.Validate
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a Server over eng. db may be nil when the engine runs in memory
// only; the usage endpoint then reports nothing.
func New(eng *engine.Engine, db *store.DB, m *metrics.Collector, log *zap.Logger, version string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		engine:   eng,
		db:       db,
		metrics:  m,
		log:      log,
		validate: newValidator(),
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.instrument)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/nodes", s.handleListNodes)
		r.Post("/nodes", s.handleCreateNode)
		r.Get("/nodes/{id}", s.handleGetNode)
		r.Get("/nodes/{id}/neighbors", s.handleNeighbors)
		r.Get("/nodes/{id}/similar", s.handleSimilar)

		r.Post("/relationships", s.handleCreateRelationship)
		r.Get("/edges", s.handleListEdges)
		r.Get("/edges/{id}", s.handleGetEdge)
		r.Post("/edges/{id}/traverse", s.handleTraverse)

		r.Get("/query", s.handleQuery)
		r.Get("/stats", s.handleStats)
		r.Get("/clusters", s.handleClusters)
		r.Get("/inferences", s.handleInferences)
		r.Get("/usage", s.handleUsage)
		r.Post("/maintenance/run", s.handleRunCycle)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router = r
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db != nil
	dbPath := ""
	if s.db != nil {
		dbPath = s.db.Path
		if err := s.db.Ping(); err != nil {
			dbOK = false
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": dbPath,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine error kinds to HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch engine.KindOf(err) {
	case engine.KindValidation:
		status = http.StatusBadRequest
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindResource:
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, err.Error())
}
