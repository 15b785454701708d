package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id of a request.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds the JSON request body.
const maxBodyBytes = 64 << 10

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	ThreadID string `json:"thread_id"`
	Reply    string `json:"reply"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// ThreadsResponse is the body of GET /threads.
type ThreadsResponse struct {
	Namespace string   `json:"namespace,omitempty"`
	Threads   []string `json:"threads"`
}

// Server serves the conversation engine over HTTP.
type Server struct {
	Engine  ports.Conversation
	Streams *StreamManager

	namespace string
	metrics   http.Handler
	logger    *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithStreams shares a stream manager whose hooks are installed on the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		if sm != nil {
			s.Streams = sm
		}
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithNamespace reports ns in thread listings.
func WithNamespace(ns string) Option {
	return func(s *Server) { s.namespace = ns }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine ports.Conversation, opts ...Option) http.Handler {
	s := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Post("/chat", s.Chat)
	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.ListThreads)
		r.Get("/{id}", s.GetThread)
		r.Delete("/{id}", s.DeleteThread)
		r.Get("/{id}/events", s.SubscribeEvents)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), middleware.RequestIDKey, id)))
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Chat handles the POST /chat request.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var body ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.logger.Warn("Chat: invalid request body", "error", err, "request_id", middleware.GetReqID(r.Context()))
		s.writeError(w, r, &domain.RequestError{Field: "body", Reason: err.Error()})
		return
	}

	reply, err := s.Engine.Run(r.Context(), body.ThreadID, body.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ChatResponse{ThreadID: body.ThreadID, Reply: reply})
}

// ListThreads handles the GET /threads request.
func (s *Server) ListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.Engine.Threads(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ThreadsResponse{Namespace: s.namespace, Threads: threads})
}

// GetThread handles the GET /threads/{id} request.
func (s *Server) GetThread(w http.ResponseWriter, r *http.Request) {
	cp, err := s.Engine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cp)
}

// DeleteThread handles the DELETE /threads/{id} request.
func (s *Server) DeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Reset(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusFor maps an engine error to its HTTP status and stable error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMalformedRequest):
		return http.StatusBadRequest, "malformed_request"
	case errors.Is(err, domain.ErrCheckpointNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, domain.ErrCompletionFailed) && errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "completion_timeout"
	case errors.Is(err, domain.ErrCompletionFailed):
		return http.StatusBadGateway, "completion_failed"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	attrs := []any{"error", err, "code", code, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context())}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", attrs...)
	} else {
		s.logger.Warn("Request rejected", attrs...)
	}
	s.writeJSON(w, status, ErrorResponse{
		Error:     strings.TrimSpace(err.Error()),
		Code:      code,
		Retryable: domain.Retryable(err),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "error", err)
	}
}
