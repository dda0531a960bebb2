// Package server binds the assistant to HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randalmurphal/auditflow/internal/assistant"
	"github.com/randalmurphal/auditflow/internal/tools"
	"github.com/randalmurphal/auditflow/pkg/flowgraph"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/auditflow/pkg/flowgraph/lock"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Assistant is the service the handlers call.
type Assistant interface {
	Invoke(ctx context.Context, req assistant.Request) (assistant.Response, error)
	Stream(ctx context.Context, req assistant.Request) (<-chan assistant.StreamEvent, error)
	Approve(ctx context.Context, req assistant.ApprovalRequest) (assistant.ApprovalResponse, error)
	Status(ctx context.Context, threadID string) (assistant.ThreadStatus, error)
	Threads(ctx context.Context) ([]assistant.ThreadInfo, error)
}

// Indexer accepts documents for search.
type Indexer interface {
	Add(docs ...tools.Document)
}

// Server holds the handler dependencies.
type Server struct {
	Assistant Assistant
	Indexer   Indexer
	Gatherer  prometheus.Gatherer
	// Diagram is the workflow in Mermaid syntax, served at /graph.
	Diagram string
	Logger  *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithIndexer enables POST /documents.
func WithIndexer(idx Indexer) Option {
	return func(s *Server) {
		s.Indexer = idx
	}
}

// WithMetrics serves g at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.Gatherer = g
	}
}

// WithDiagram serves a Mermaid diagram at /graph.
func WithDiagram(mermaid string) Option {
	return func(s *Server) {
		s.Diagram = mermaid
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

// NewHandler creates the HTTP handler for a.
func NewHandler(a Assistant, opts ...Option) http.Handler {
	s := &Server{Assistant: a, Logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.Health)
	r.Route("/agent", func(r chi.Router) {
		r.Post("/invoke", s.Invoke)
		r.Post("/stream", s.Stream)
		r.Post("/approve", s.Approve)
		r.Get("/threads", s.ListThreads)
		r.Get("/threads/{threadID}", s.GetThread)
	})
	if s.Indexer != nil {
		r.Post("/documents", s.AddDocuments)
	}
	if s.Diagram != "" {
		r.Get("/graph", s.Graph)
	}
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
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

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "agent": "ready"})
}

// Invoke handles POST /agent/invoke.
func (s *Server) Invoke(w http.ResponseWriter, r *http.Request) {
	var req assistant.Request
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.Assistant.Invoke(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "invoke", err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Stream handles POST /agent/stream as Server-Sent Events. Each event is a
// JSON StreamEvent on a data line.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var req assistant.Request
	if !s.decode(w, r, &req) {
		return
	}

	events, err := s.Assistant.Stream(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "stream", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.Logger.Error("stream event encode failed", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client went away; the turn is canceled with the request
			// context and the channel drains on its own.
			continue
		}
		flusher.Flush()
	}
}

// Approve handles POST /agent/approve.
func (s *Server) Approve(w http.ResponseWriter, r *http.Request) {
	var req assistant.ApprovalRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.Assistant.Approve(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "approve", err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GetThread handles GET /agent/threads/{threadID}.
func (s *Server) GetThread(w http.ResponseWriter, r *http.Request) {
	st, err := s.Assistant.Status(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeError(w, r, "status", err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// ListThreads handles GET /agent/threads.
func (s *Server) ListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.Assistant.Threads(r.Context())
	if err != nil {
		s.writeError(w, r, "threads", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

// AddDocuments handles POST /documents. The body is one document or
// {"documents": [...]}.
func (s *Server) AddDocuments(w http.ResponseWriter, r *http.Request) {
	var body struct {
		tools.Document
		Documents []tools.Document `json:"documents"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	docs := body.Documents
	if body.Content != "" {
		docs = append(docs, body.Document)
	}
	if len(docs) == 0 {
		s.writeError(w, r, "documents", fmt.Errorf("%w: no documents", assistant.ErrInvalidRequest))
		return
	}
	for i, d := range docs {
		if strings.TrimSpace(d.Content) == "" {
			s.writeError(w, r, "documents", fmt.Errorf("%w: documents[%d] has no content", assistant.ErrInvalidRequest, i))
			return
		}
	}

	s.Indexer.Add(docs...)
	s.writeJSON(w, http.StatusCreated, map[string]any{"status": "indexed", "documents": len(docs)})
}

// Graph handles GET /graph.
func (s *Server) Graph(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.Diagram))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.Logger.Warn("invalid request body", "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
}

// StatusFor maps a service error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, assistant.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, flowgraph.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, flowgraph.ErrNotAwaitingDecision),
		errors.Is(err, flowgraph.ErrAwaitingDecision),
		errors.Is(err, checkpoint.ErrStaleSequence),
		errors.Is(err, lock.ErrLockLost):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error(op+" failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
	} else {
		s.Logger.Debug(op+" rejected", "error", err, "status", status)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("response encode failed", "error", err)
	}
}

// Run serves srv until ctx is canceled, then shuts it down, giving
// in-flight requests up to timeout to finish.
func Run(ctx context.Context, srv *http.Server, timeout time.Duration, logger *slog.Logger) error {
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", timeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("graceful shutdown did not complete in %v: %w", timeout, err)
	}
	return nil
}
