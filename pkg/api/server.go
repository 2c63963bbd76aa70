package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vjranagit/sleepfilter/internal/metrics"
	"github.com/vjranagit/sleepfilter/pkg/crossfilter"
	"github.com/vjranagit/sleepfilter/pkg/dashboard"
)

// Config holds server settings
type Config struct {
	Addr      string
	Timeout   time.Duration
	ListSize  int
	CacheSize int
}

// Server implements the HTTP API server
type Server struct {
	db       *dashboard.Dashboard
	cfg      Config
	cache    *NightsCache
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	hub      *hub
	logger   *zap.Logger
	server   *http.Server

	unsubscribe []func()
	done        chan struct{}
	stopOnce    sync.Once
}

// NewServer creates a new API server over db
func NewServer(cfg Config, db *dashboard.Dashboard, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ListSize < 1 {
		cfg.ListSize = dashboard.DefaultListSize
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		db:       db,
		cfg:      cfg,
		cache:    NewNightsCache(cfg.CacheSize),
		metrics:  metrics.New(reg),
		registry: reg,
		hub:      newHub(logger),
		logger:   logger,
		done:     make(chan struct{}),
	}

	s.metrics.Records.Set(float64(db.Total()))
	s.metrics.Selected.Set(float64(db.Selected()))
	s.metrics.WatchCache("nights", func() metrics.CacheCounts {
		st := s.cache.Stats()
		return metrics.CacheCounts{Hits: st.Hits, Misses: st.Misses, Size: st.Size}
	})
	s.unsubscribe = append(s.unsubscribe,
		db.OnChange(s.metrics.Observe),
		db.OnChange(s.hub.publish),
	)
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/charts", s.handleCharts)
		r.Get("/charts/{name}/groups", s.handleGroups)
		r.Put("/charts/{name}/filter", s.handleSetFilter)
		r.Delete("/charts/{name}/filter", s.handleClearFilter)
		r.Post("/filters", s.handleApplyFilters)
		r.Delete("/filters", s.handleClearAll)
		r.Get("/total", s.handleTotal)
		r.Get("/summary", s.handleSummary)
		r.Get("/nights", s.handleNights)
		r.Get("/stream", s.handleStream)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
	}

	s.logger.Info("API server listening", zap.String("addr", s.cfg.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes open streams, unsubscribes from the dashboard and shuts the
// HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.done)
		for _, fn := range s.unsubscribe {
			fn()
		}
	})
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// CacheStats returns the nights cache statistics
func (s *Server) CacheStats() CacheStats {
	return s.cache.Stats()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type healthResponse struct {
	Status  string      `json:"status"`
	Records int         `json:"records"`
	Version uint64      `json:"version"`
	Cache   cacheHealth `json:"cache"`
}

type cacheHealth struct {
	CacheStats
	HitRate float64 `json:"hit_rate"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.CacheStats()
	s.respond(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Records: s.db.Total(),
		Version: s.db.Crossfilter().Version(),
		Cache:   cacheHealth{CacheStats: stats, HitRate: stats.HitRate()},
	})
}

type chartResponse struct {
	Name   string             `json:"name"`
	Domain [2]float64         `json:"domain"`
	Filter *crossfilter.Range `json:"filter"`
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	charts := s.db.Charts()
	out := make([]chartResponse, len(charts))
	for i, c := range charts {
		out[i] = chartResponse{Name: c.Name, Domain: c.Domain, Filter: c.Filter()}
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	c, err := s.db.Chart(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, c.Buckets())
}

// handleSetFilter brushes a chart. The range comes from ?range=lo:hi, where
// either side may be blank for an open bound.
func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rng, err := crossfilter.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		s.fail(w, fmt.Errorf("%w: %s: %w", errBadRequest, name, err))
		return
	}

	start := time.Now()
	if err := s.db.Brush(name, rng.Lo, rng.Hi); err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.ObserveDuration(name, start)
	s.respondTotal(w)
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	start := time.Now()
	if err := s.db.Reset(name); err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.ObserveDuration(name, start)
	s.respondTotal(w)
}

// handleApplyFilters sets every chart's filter by position from a JSON array
// of ranges; null entries clear.
func (s *Server) handleApplyFilters(w http.ResponseWriter, r *http.Request) {
	var filters []*crossfilter.Range
	if err := json.NewDecoder(r.Body).Decode(&filters); err != nil {
		s.fail(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	start := time.Now()
	if err := s.db.ApplyFilters(filters); err != nil {
		s.fail(w, err)
		return
	}
	s.metrics.ObserveDuration("all", start)
	s.respondTotal(w)
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.db.Crossfilter().ClearAll()
	s.metrics.ObserveDuration("all", start)
	s.respondTotal(w)
}

type totalResponse struct {
	Size     int    `json:"size"`
	Selected int    `json:"selected"`
	Version  uint64 `json:"version"`
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	s.respondTotal(w)
}

func (s *Server) respondTotal(w http.ResponseWriter) {
	var out totalResponse
	cf := s.db.Crossfilter()
	cf.Read(func() {
		out = totalResponse{Size: cf.Size(), Selected: cf.FilterAll(), Version: cf.Version()}
	})
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.db.Summary())
}

type nightsResponse struct {
	Version uint64            `json:"version"`
	Nights  []dashboard.Night `json:"nights"`
}

func (s *Server) handleNights(w http.ResponseWriter, r *http.Request) {
	n := s.cfg.ListSize
	if v := r.URL.Query().Get("n"); v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil || n < 1 {
			s.fail(w, fmt.Errorf("%w: n must be a positive integer", errBadRequest))
			return
		}
	}

	var (
		out    nightsResponse
		cached bool
	)
	cf := s.db.Crossfilter()
	cf.Read(func() {
		out.Version = cf.Version()
		if out.Nights, cached = s.cache.Get(out.Version, n); !cached {
			out.Nights = s.db.Nights(n)
		}
	})
	if !cached {
		s.cache.Put(out.Version, n, out.Nights)
	}
	s.respond(w, http.StatusOK, out)
}

var errBadRequest = errors.New("bad request")

// fail maps filter errors to status codes
func (s *Server) fail(w http.ResponseWriter, err error) {
	var (
		verr *crossfilter.ValidationError
		cerr *crossfilter.ConfigurationError
	)

	status, kind := http.StatusInternalServerError, "internal"
	switch {
	case errors.As(err, &verr), errors.Is(err, crossfilter.ErrInvalidRange):
		status, kind = http.StatusBadRequest, "validation"
	case errors.As(err, &cerr):
		status, kind = http.StatusNotFound, "configuration"
	case errors.Is(err, dashboard.ErrTooManyFilters), errors.Is(err, errBadRequest):
		status, kind = http.StatusBadRequest, "request"
	}

	s.metrics.FilterErrors.WithLabelValues(kind).Inc()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	s.respond(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}
