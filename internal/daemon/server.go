package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/xkazm04/personas-sub002/internal/observability"
	"github.com/xkazm04/personas-sub002/pkg/engine/execerr"
	"github.com/xkazm04/personas-sub002/pkg/engine/pipeline"
)

// Server exposes the engine's HTTP surface: metrics, health, status and a
// small execution API.
type Server struct {
	host   string
	port   int
	daemon *Daemon
	server *http.Server
	logger zerolog.Logger
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host   string
	Port   int
	Daemon *Daemon
	Logger zerolog.Logger
}

// NewServer creates the HTTP server
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		host:   cfg.Host,
		port:   cfg.Port,
		daemon: cfg.Daemon,
		logger: cfg.Logger.With().Str("component", "http").Logger(),
	}
}

// Start begins serving in the background
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/executions", s.handleExecutions)
	mux.HandleFunc("/run", s.handleRun)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: mux,
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload := map[string]interface{}{
		"daemon":    s.daemon.Status(),
		"scheduler": s.daemon.GetScheduler().Stats(),
		"circuits":  s.daemon.GetFailover().Snapshot(),
		"active":    s.daemon.GetPipeline().ActiveCount(),
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	recs, err := s.daemon.GetStore().ListExecutions(r.Context(), r.URL.Query().Get("persona"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list executions")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// runRequest is the POST /run body
type runRequest struct {
	PersonaID     string `json:"persona_id"`
	Input         string `json:"input"`
	ChainTraceID  string `json:"chain_trace_id,omitempty"`
	ModelOverride string `json:"model_override,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	handle, err := s.daemon.GetPipeline().Submit(context.Background(), pipeline.Request{
		PersonaID:     req.PersonaID,
		Input:         req.Input,
		ChainTraceID:  req.ChainTraceID,
		ModelOverride: req.ModelOverride,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch execerr.KindOf(err) {
		case execerr.KindValidation, execerr.KindConfig:
			status = http.StatusBadRequest
		case execerr.KindNotFound:
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": handle.ID})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
