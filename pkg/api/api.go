// Package api exposes the session manager and speaker memories over HTTP and
// WebSocket.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haivivi/voicerelay/pkg/memo"
	"github.com/haivivi/voicerelay/pkg/session"
)

// DefaultMaxUploadBytes limits a single audio chunk.
const DefaultMaxUploadBytes = 8 << 20

// Config configures a Server.
type Config struct {
	Sessions *session.Manager
	// Curator serves the memories endpoints. Nil disables them.
	Curator *memo.Curator
	// Gatherer is exposed on /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	MaxUploadBytes int64
}

// Server is the relay's HTTP handler.
type Server struct {
	sessions  *session.Manager
	curator   *memo.Curator
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	maxUpload int64
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		sessions:  cfg.Sessions,
		curator:   cfg.Curator,
		gatherer:  cfg.Gatherer,
		logger:    cfg.Logger.With("component", "api"),
		maxUpload: cfg.MaxUploadBytes,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /chats/{conversationId}/sessions", s.handleOpen)
	s.mux.HandleFunc("POST /chats/{conversationId}/sessions/{sessionId}/wav", s.handleUpload)
	s.mux.HandleFunc("DELETE /chats/{conversationId}/sessions/{sessionId}", s.handleClose)
	s.mux.HandleFunc("GET /ws/chats/{conversationId}/sessions/{sessionId}", s.handleAttach)
	if s.curator != nil {
		s.mux.HandleFunc("POST /chats/{conversationId}/set-memories", s.handleSetMemories)
		s.mux.HandleFunc("GET /chats/{conversationId}/get-memories", s.handleGetMemories)
	}
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// ServeHTTP logs each request and dispatches it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
}

type openRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := s.sessions.Open(r.Context(), r.PathValue("conversationId"), req.Language)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	chunk, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio chunk too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read audio chunk")
		return
	}
	if err := s.sessions.Upload(r.Context(), r.PathValue("sessionId"), chunk); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "audio_chunk_received"})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), r.PathValue("sessionId")); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "session_closed"})
}

func (s *Server) handleSetMemories(w http.ResponseWriter, r *http.Request) {
	var history []memo.Message
	if err := json.NewDecoder(r.Body).Decode(&history); err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat history")
		return
	}
	identity, ok := s.sessions.Bindings().Lookup(r.PathValue("conversationId"))
	if ok {
		if err := s.curator.Update(r.Context(), identity, history); err != nil {
			s.fail(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"success": "1"})
}

func (s *Server) handleGetMemories(w http.ResponseWriter, r *http.Request) {
	memories := memo.NoMemories
	if identity, ok := s.sessions.Bindings().Lookup(r.PathValue("conversationId")); ok {
		text, err := s.curator.Recall(r.Context(), identity)
		if err != nil {
			s.fail(w, err)
			return
		}
		memories = text
	}
	writeJSON(w, http.StatusOK, map[string]string{"memories": memories})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, session.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
