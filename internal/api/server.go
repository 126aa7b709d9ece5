package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hostsentrystack/hostsentry-agent/internal/models"
)

// DocumentReader exposes the persisted documents for the ops endpoints.
type DocumentReader interface {
	LoadState() *models.Snapshot
	LoadCache() *models.CacheDocument
}

// Server is the agent's operational HTTP surface: health, metrics, and
// read-only views of the persisted documents. The dashboard renderer is a
// separate consumer that reads the files directly; this server exists for
// operators and probes.
type Server struct {
	docs   DocumentReader
	logger *slog.Logger
	router *mux.Router
	http   *http.Server
}

// NewServer constructs the ops server bound to addr.
func NewServer(addr string, docs DocumentReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		docs:   docs,
		logger: logger,
		router: mux.NewRouter(),
	}
	s.routes()
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/state", s.handleState).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/summary", s.handleSummary).Methods(http.MethodGet)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start serves until Shutdown or listener failure.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", slog.String("address", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snapshot := s.docs.LoadState()
	if snapshot == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot recorded yet"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	doc := s.docs.LoadCache()
	if doc == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no aggregation recorded yet"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
