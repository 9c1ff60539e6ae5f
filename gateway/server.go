package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/logging"
	"github.com/hupe1980/docsmesh/runner"
)

// SessionHeader carries the session id of a chat response.
const SessionHeader = "X-Session-ID"

// Preflight checks that the request can be served before anything is
// streamed. core.ErrDependencyUnavailable maps to 503, any other error to 500.
type Preflight func(ctx context.Context) error

// Options configure the gateway.
type Options struct {
	// Heartbeat is the idle interval between ": ping" comments; <= 0 disables them.
	Heartbeat time.Duration
	// Preflight runs before a run is started.
	Preflight Preflight
	// MaxBodyBytes limits the size of a chat request body.
	MaxBodyBytes int64
	// Logger receives request and stream events.
	Logger logging.Logger
}

// Server is the HTTP surface of the assistant:
//
//	POST   /chat            stream one request as server-sent events
//	GET    /sessions/{id}   conversation history and working context
//	DELETE /sessions/{id}   drop a session
//	GET    /health          liveness and dependency status
type Server struct {
	runner *runner.Runner
	opts   Options
	mux    *http.ServeMux
}

// NewServer creates a gateway in front of r.
func NewServer(r *runner.Runner, optFns ...func(o *Options)) *Server {
	opts := Options{
		Heartbeat:    defaultHeartbeat,
		MaxBodyBytes: 1 << 20,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	s := &Server{runner: r, opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// chatRequest is the JSON body for POST /chat. Message is either a string or
// a list of {"type":"text"|"data", ...} blocks.
type chatRequest struct {
	SessionID string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
	Context   map[string]any  `json:"context"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	content, err := core.ParseUserContent(req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.opts.Preflight != nil {
		if err := s.opts.Preflight(r.Context()); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, core.ErrDependencyUnavailable) {
				status = http.StatusServiceUnavailable
			}
			s.opts.Logger.Error("gateway.preflight.failed", "status", status, "error", err.Error())
			writeError(w, status, err.Error())
			return
		}
	}

	// Cancelled on client disconnect or when the stream stops early.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inv, err := s.runner.Run(ctx, runner.Request{
		SessionID: req.SessionID,
		Content:   content,
		Context:   req.Context,
	})
	if err != nil {
		switch {
		case ctx.Err() != nil:
			s.opts.Logger.Info("gateway.request.aborted", "session_id", req.SessionID)
		case errors.Is(err, core.ErrEmptyContent), errors.Is(err, core.ErrInvalidRole):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.opts.Logger.Error("gateway.run.start_failed", "session_id", req.SessionID, "error", err.Error())
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set(SessionHeader, inv.SessionID)
	stream := NewStream(w)
	stream.SetHeartbeat(s.opts.Heartbeat)
	w.WriteHeader(http.StatusOK)
	if stream.flush != nil {
		stream.flush()
	}

	start := time.Now()
	sent, err := stream.StreamEvents(ctx, inv.Events)
	reason := "terminal"
	switch {
	case r.Context().Err() != nil:
		reason = "client_disconnected"
	case err != nil:
		reason = "write_failed"
	}
	s.opts.Logger.Info("gateway.stream.closed",
		"session_id", inv.SessionID,
		"run_id", inv.RunID,
		"events", sent,
		"reason", reason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

type sessionResponse struct {
	SessionID  string         `json:"session_id"`
	Created    time.Time      `json:"created"`
	LastActive time.Time      `json:"last_active"`
	Busy       bool           `json:"busy"`
	Context    map[string]any `json:"context"`
	Messages   []core.Content `json:"messages"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.runner.Sessions().Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:  sess.ID,
		Created:    sess.Created,
		LastActive: sess.LastActive(),
		Busy:       sess.Busy(),
		Context:    sess.WorkingContext(),
		Messages:   sess.Conversation().Snapshot(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.runner.Sessions().Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "active_runs": s.runner.ActiveRuns()}
	status := http.StatusOK
	if s.opts.Preflight != nil {
		if err := s.opts.Preflight(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["error"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
