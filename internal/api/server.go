// Package api exposes the read-only HTTP surface over the indicator store:
// catalog listing, reconciled series, freshness audit, and run history.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/painel-gv/indicadores/internal/audit"
	"github.com/painel-gv/indicadores/internal/config"
	"github.com/painel-gv/indicadores/internal/store"
)

// Server serves the dashboard-facing JSON API. All endpoints are reads; the
// pipeline is the only writer.
type Server struct {
	store        store.Store
	catalog      *config.Catalog
	auditor      *audit.Auditor
	municipality config.MunicipalityConfig
}

// New creates a Server.
func New(st store.Store, catalog *config.Catalog, auditor *audit.Auditor, muni config.MunicipalityConfig) *Server {
	return &Server{store: st, catalog: catalog, auditor: auditor, municipality: muni}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/indicators", s.handleIndicators)
		r.Get("/series/{key}", s.handleSeries)
		r.Get("/audit", s.handleAudit)
		r.Get("/runs", s.handleRuns)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type indicatorSummary struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Unit     string `json:"unit"`
	Derived  bool   `json:"derived,omitempty"`
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Municipality config.MunicipalityConfig `json:"municipality"`
		Indicators   []indicatorSummary        `json:"indicators"`
	}{Municipality: s.municipality}

	for _, key := range s.catalog.Keys() {
		ind, _ := s.catalog.Get(key)
		out.Indicators = append(out.Indicators, indicatorSummary{
			Key:      key,
			Name:     ind.Name,
			Category: ind.Category,
			Unit:     ind.Unit,
			Derived:  ind.Derived,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := s.catalog.Get(key); !ok {
		writeError(w, http.StatusNotFound, "unknown indicator: "+key)
		return
	}

	series, err := s.store.GetSeries(r.Context(), key, r.URL.Query().Get("source"))
	if err != nil {
		zap.L().Error("api: series read failed", zap.String("indicator", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store read failed")
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.auditor.Report(r.Context())
	if err != nil {
		zap.L().Error("api: audit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "audit failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), 50)
	if err != nil {
		zap.L().Error("api: runs read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store read failed")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
