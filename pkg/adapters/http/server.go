package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/wmbridge"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bridge is the part of *wmbridge.Bridge the HTTP surface drives.
type Bridge interface {
	Agent() string
	Snapshot() *domain.Snapshot
	Entities(kind domain.EntityKind) []domain.Handle
	Link(kind domain.EntityKind, src, dest domain.Handle) error
	Stop(ctx context.Context) error
	Stats() wmbridge.Stats
}

// Server serves introspection and control endpoints for one bridge.
type Server struct {
	bridge   Bridge
	streams  *StreamManager
	store    ports.SnapshotStore
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStreams enables GET /events, fed by the manager's lifecycle hooks.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.streams = sm }
}

// WithSnapshotStore enables the /agents endpoints over a persisted store.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(s *Server) { s.store = store }
}

// WithMetrics enables GET /metrics over the given gatherer.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the request error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// LinkRequest is the body of POST /link.
type LinkRequest struct {
	Kind        string `json:"kind"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// EntitiesResponse is the body of GET /entities/{kind}.
type EntitiesResponse struct {
	Kind    domain.EntityKind `json:"kind"`
	Handles []domain.Handle   `json:"handles"`
}

// NewHandler creates the HTTP handler for a bridge.
func NewHandler(bridge Bridge, opts ...Option) http.Handler {
	s := &Server{
		bridge: bridge,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/stats", s.GetStats)
	r.Get("/snapshot", s.GetSnapshot)
	r.Get("/entities/{kind}", s.GetEntities)
	r.Post("/link", s.PostLink)
	r.Post("/stop", s.PostStop)

	if s.store != nil {
		r.Get("/agents", s.ListAgents)
		r.Get("/agents/{agent}/snapshot", s.GetAgentSnapshot)
	}
	if s.streams != nil {
		r.Get("/events", s.SubscribeEvents)
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"agent":  s.bridge.Agent(),
	})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":     "wmbridge",
		"version": strings.TrimSpace(wmbridge.Version),
		"verbs":   wmbridge.Verbs(),
	})
}

// GetStats handles GET /stats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.bridge.Stats())
}

// GetSnapshot handles GET /snapshot. The optional path query selects a
// subtree by dotted path; format=flat returns terminal values keyed by path.
func (s *Server) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.bridge.Snapshot()
	if snap == nil {
		http.Error(w, "no input phase has run yet", http.StatusServiceUnavailable)
		return
	}
	s.writeSnapshot(w, r, snap)
}

// GetEntities handles GET /entities/{kind}.
func (s *Server) GetEntities(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseEntityKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	handles := s.bridge.Entities(kind)
	if handles == nil {
		handles = []domain.Handle{}
	}
	s.writeJSON(w, http.StatusOK, EntitiesResponse{Kind: kind, Handles: handles})
}

// PostLink handles POST /link. The link is applied at the next input phase.
func (s *Server) PostLink(w http.ResponseWriter, r *http.Request) {
	var body LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostLink: invalid request body", "error", err)
		return
	}

	kind, err := domain.ParseEntityKind(body.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.bridge.Link(kind, domain.Handle(body.Source), domain.Handle(body.Destination))
	switch {
	case errors.Is(err, domain.ErrQueueFull):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// PostStop handles POST /stop.
func (s *Server) PostStop(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.Stop(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("Stop error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Stop failed", "error", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// ListAgents handles GET /agents.
func (s *Server) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("List snapshots failed", "error", err)
		return
	}
	if agents == nil {
		agents = []string{}
	}
	s.writeJSON(w, http.StatusOK, agents)
}

// GetAgentSnapshot handles GET /agents/{agent}/snapshot.
func (s *Server) GetAgentSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Load(r.Context(), chi.URLParam(r, "agent"))
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Load snapshot failed", "error", err)
		return
	}
	s.writeSnapshot(w, r, snap)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request, snap *domain.Snapshot) {
	q := r.URL.Query()
	if q.Get("format") == "flat" {
		s.writeJSON(w, http.StatusOK, snap.Flatten())
		return
	}
	if path := q.Get("path"); path != "" {
		node := snap.Lookup(path)
		if node == nil {
			http.Error(w, fmt.Sprintf("no attribute at %q", path), http.StatusNotFound)
			return
		}
		s.writeJSON(w, http.StatusOK, node)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
