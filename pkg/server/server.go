// Package server exposes the question answering agent over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeqa/pkg/agent"
	"codeqa/pkg/logx"
	"codeqa/pkg/version"
)

// maxRequestBytes caps the size of an ask request body.
const maxRequestBytes = 1 << 20

// shutdownTimeout bounds how long in-flight requests may finish on shutdown.
const shutdownTimeout = 10 * time.Second

// Asker answers one question. *agent.Agent implements it.
type Asker interface {
	Answer(ctx context.Context, query string) (*agent.QueryState, error)
}

// Options configures a Server.
type Options struct {
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer    prometheus.Gatherer
	Addr        string
	Model       string
	Index       string
	CORSOrigins []string
	// Routes registers extra routes on the API mux.
	Routes func(mux *http.ServeMux)
}

// AskRequest is the body of POST /v1/agent/ask.
type AskRequest struct {
	Query string `json:"query"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Server serves the agent API.
type Server struct {
	asker  Asker
	logger *logx.Logger
	opts   Options
}

// New creates a server. asker may be nil when the agent failed to
// initialize; ask requests then get 503.
func New(asker Asker, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		asker:  asker,
		opts:   opts,
		logger: logx.NewLogger("api"),
	}
}

// RegisterRoutes registers all API routes with mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/agent/ask", s.handleAsk)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/logs", s.handleLogs)
	mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	if s.opts.Routes != nil {
		s.opts.Routes(mux)
	}
}

// Handler returns the API wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return withCORS(s.opts.CORSOrigins, mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	return ListenAndServe(ctx, s.opts.Addr, s.Handler(), s.logger)
}

// ListenAndServe serves handler on addr until ctx is cancelled, then gives
// in-flight requests shutdownTimeout to finish.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *logx.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	logger.Info("shutting down %s", addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, ErrorResponse{Detail: detail})
}

// handleAsk implements POST /v1/agent/ask.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.asker == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Agent not initialized")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	s.logger.Info("📝 Received query: %s", req.Query)
	state, err := s.asker.Answer(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("❌ Error processing query: %v", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, agent.NewResponse(state))
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status := "healthy"
	if s.asker == nil {
		status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"model":   s.opts.Model,
		"index":   s.opts.Index,
		"version": version.Version,
	})
}

// handleLogs implements GET /v1/logs.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	domain := query.Get("domain")

	var since time.Time
	if sinceStr := query.Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		since = parsed
	}

	entries := logx.GetRecentLogEntries(domain, since)
	if entries == nil {
		entries = []logx.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}
