// Package httpapi serves the pull-metrics endpoint and the read-only query
// API the dashboard consumes.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/pingit-io/pingit/internal/domain"
	"github.com/pingit-io/pingit/internal/httpapi/middleware"
	"github.com/pingit-io/pingit/internal/metrics"
	"github.com/pingit-io/pingit/internal/repo"
)

// StatsSource is the live view the engine exposes.
type StatsSource interface {
	Targets() []domain.Target
	Stats() []domain.TargetStats
}

type Server struct {
	Logger  *zap.Logger
	Source  StatsSource
	Metrics *metrics.Store
	Store   repo.Store

	// RateLimit is requests per minute per client IP for /api routes;
	// zero disables.
	RateLimit int
}

func NewServer(l *zap.Logger, src StatsSource, ms *metrics.Store, store repo.Store) *Server {
	return &Server{Logger: l, Source: src, Metrics: ms, Store: store}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.RateLimit, s.RateLimit/2))
		r.Get("/targets", s.handleTargets)
		r.Get("/history", s.handleHistory)
		r.Get("/statistics", s.handleStatistics)
		r.Get("/disconnects", s.handleDisconnects)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"targets": len(s.Source.Targets()),
	})
}

// handleMetrics drains the store: every gauge and counter resets as part of
// serving the scrape.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := s.Metrics.WriteText(w); err != nil {
		s.Logger.Warn("metrics_write_error", zap.Error(err))
	}
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Source.Stats())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	target, since, ok := s.queryWindow(w, r)
	if !ok {
		return
	}
	rows, err := s.Store.ResultsSince(r.Context(), target, since)
	if err != nil {
		s.Logger.Warn("history_query_error", zap.Error(err))
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	target, since, ok := s.queryWindow(w, r)
	if !ok {
		return
	}
	rows, err := s.Store.SnapshotsSince(r.Context(), target, since)
	if err != nil {
		s.Logger.Warn("statistics_query_error", zap.Error(err))
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleDisconnects(w http.ResponseWriter, r *http.Request) {
	target, since, ok := s.queryWindow(w, r)
	if !ok {
		return
	}
	rows, err := s.Store.DisconnectsSince(r.Context(), target, since)
	if err != nil {
		s.Logger.Warn("disconnects_query_error", zap.Error(err))
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

// queryWindow parses the shared ?target=&since= parameters. since is a
// lookback duration like "24h"; default 24h.
func (s *Server) queryWindow(w http.ResponseWriter, r *http.Request) (target string, since time.Time, ok bool) {
	target = r.URL.Query().Get("target")
	lookback := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "bad since parameter", http.StatusBadRequest)
			return "", time.Time{}, false
		}
		lookback = d
	}
	return target, time.Now().UTC().Add(-lookback), true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
