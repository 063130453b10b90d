package service

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-deflake/runner"
	"github.com/ethereum-optimism/infra/op-deflake/types"
)

// StatusResponse is served on /status.
type StatusResponse struct {
	SessionID      string                  `json:"session_id"`
	BinaryPath     string                  `json:"binary_path"`
	Status         types.SessionStatus     `json:"status"`
	Workers        int                     `json:"workers"`
	DurationBudget time.Duration           `json:"duration_budget"`
	Statistics     types.SessionStatistics `json:"statistics"`
}

// TestStatusResponse is served on /status/tests/{name}.
type TestStatusResponse struct {
	Name       string           `json:"name"`
	Statistics types.Statistics `json:"statistics"`
}

// StatusServer exposes health and live session statistics over HTTP.
type StatusServer struct {
	session *types.RunSession
	stats   runner.StatsSource
	log     log.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewStatusServer creates a status server for session.
func NewStatusServer(session *types.RunSession, stats runner.StatsSource, logger log.Logger) *StatusServer {
	return &StatusServer{session: session, stats: stats, log: logger}
}

// Handler returns the routes served by the status server.
func (s *StatusServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/status/tests/{name:.+}", s.handleTest).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

// Start listens on addr and serves in the background.
func (s *StatusServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server, s.listener = server, ln
	s.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server stopped", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *StatusServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *StatusServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.log.Trace("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.log, http.StatusOK, StatusResponse{
		SessionID:      s.session.ID,
		BinaryPath:     s.session.BinaryPath,
		Status:         s.session.Status(),
		Workers:        s.session.Request.WorkerCount,
		DurationBudget: s.session.Request.DurationBudget,
		Statistics:     s.stats.Snapshot(),
	})
}

func (s *StatusServer) handleTest(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := s.session.Catalog.Lookup(name); !ok {
		writeJSON(w, s.log, http.StatusNotFound, map[string]string{"error": "unknown test " + name})
		return
	}
	writeJSON(w, s.log, http.StatusOK, TestStatusResponse{
		Name:       name,
		Statistics: s.stats.Snapshot().PerTest[name],
	})
}

func writeJSON(w http.ResponseWriter, logger log.Logger, code int, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Error("failed to marshal status response", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		logger.Error("failed to send status response", "err", err)
	}
}
