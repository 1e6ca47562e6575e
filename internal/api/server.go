// Package api serves diagnostics for a running simulation over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/AaronLay10/decisiongraph/internal/events"
	"github.com/AaronLay10/decisiongraph/internal/runner"
	"github.com/AaronLay10/decisiongraph/internal/version"
)

// Server exposes a runner and its event bus.
type Server struct {
	runner  *runner.Runner
	bus     *events.Bus
	started time.Time
	logger  *slog.Logger

	mu     sync.RWMutex
	checks map[string]func() bool
}

func NewServer(r *runner.Runner, bus *events.Bus) *Server {
	return &Server{
		runner:  r,
		bus:     bus,
		started: time.Now(),
		logger:  slog.Default(),
		checks:  make(map[string]func() bool),
	}
}

func (s *Server) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// AddCheck registers a dependency probe reported by /health and /metrics.
func (s *Server) AddCheck(name string, ok func() bool) {
	s.mu.Lock()
	s.checks[name] = ok
	s.mu.Unlock()
}

// probe evaluates every check in name order.
func (s *Server) probe() ([]string, map[string]bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.checks))
	for n := range s.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = s.checks[n]()
	}
	return names, out
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /agents", s.agentsHandler)
	mux.HandleFunc("GET /events", s.eventsHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /ws", s.wsEventsHandler)
	return mux
}

type HealthResponse struct {
	Status    string          `json:"status"`
	Service   string          `json:"service"`
	Version   string          `json:"version"`
	Hostname  string          `json:"hostname"`
	Timestamp string          `json:"ts"`
	Session   string          `json:"session"`
	Checks    map[string]bool `json:"checks,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// healthHandler reports "degraded" with 503 while any check fails.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	_, checks := s.probe()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "agentsim",
		Version:   version.Version,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Session:   s.runner.Session().String(),
		Checks:    checks,
	}
	code := http.StatusOK
	for _, ok := range checks {
		if !ok {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

type AgentsResponse struct {
	Tick   int                  `json:"tick"`
	Agents []runner.AgentStatus `json:"agents"`
}

func (s *Server) agentsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AgentsResponse{
		Tick:   s.runner.TickCount(),
		Agents: s.runner.Snapshot(),
	})
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// eventsHandler returns buffered events, optionally the last ?limit=n and
// only those named ?event=name.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	evts := s.bus.Snapshot()
	if name := r.URL.Query().Get("event"); name != "" {
		if err := events.Validate(name); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		filtered := evts[:0]
		for _, e := range evts {
			if e.Name == name {
				filtered = append(filtered, e)
			}
		}
		evts = filtered
	}
	if limit > 0 && limit < len(evts) {
		evts = evts[len(evts)-limit:]
	}
	writeJSON(w, http.StatusOK, evts)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		s.bus.CloseAllSubscribers()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
