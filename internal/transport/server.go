package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sagittacore/sagitta/internal/events"
	"github.com/sagittacore/sagitta/internal/orchestrator"
)

// Server is the HTTP entrypoint for the session transport: SSE for
// server->client events, JSON-RPC-shaped POSTs for client->server tool
// invocations (spec §4.7).
type Server struct {
	mux      *chi.Mux
	sessions *Manager
	planner  *orchestrator.Planner
	executor *orchestrator.Executor
	logger   *slog.Logger

	seqMu sync.Mutex
	seq   map[string]*events.SequenceCounter
}

// NewServer wires a Server. planner and executor run the tool invocations
// a session's client sends; sessions is the live-session registry whose
// Events() feed the SSE stream.
func NewServer(sessions *Manager, planner *orchestrator.Planner, executor *orchestrator.Executor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mux:      chi.NewRouter(),
		sessions: sessions,
		planner:  planner,
		executor: executor,
		seq:      make(map[string]*events.SequenceCounter),
		logger:   logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.mux.Use(middleware.Recoverer)
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.Heartbeat("/ping"))
}

func (s *Server) setupRoutes() {
	s.mux.Route("/sessions", func(r chi.Router) {
		r.Get("/connect", s.handleConnect)
		r.Post("/{id}/invoke", s.handleInvoke)
		r.Post("/{id}/heartbeat", s.handleHeartbeat)
		r.Delete("/{id}", s.handleDisconnect)
	})
	s.mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
}

// ServeHTTP satisfies http.Handler so a Server can be passed to http.Serve
// directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleConnect opens a session and streams its events over SSE, starting
// with the session-endpoint handshake (spec §4.7).
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess, handshake := s.sessions.Open()
	defer s.sessions.Close(sess.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "handshake", handshake)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Context().Done():
			return
		case evt, ok := <-sess.Events():
			if !ok {
				return
			}
			if evt.SessionID != "" && evt.SessionID != sess.ID {
				continue
			}
			writeSSE(w, "tool_event", evt)
			flusher.Flush()
		}
	}
}

// handleInvoke accepts a JSON-RPC 2.0 shaped Request naming one tool and
// its params, plans and runs it, and returns the ToolResult wrapped in a
// Response. Streaming output for the invocation is delivered separately
// over the session's SSE stream, tagged with the run id (spec §4.7).
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, NewErrorResponse("", ErrCodeSessionNotFound, "session not found"))
		return
	}
	s.sessions.Touch(id)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("", ErrCodeParseError, err.Error()))
		return
	}
	if req.Method == "" {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse(req.ID, ErrCodeInvalidRequest, "method is required"))
		return
	}

	toolReq := orchestrator.ToolExecutionRequest{
		ToolName: req.Method,
		RunID:    req.ID,
		Params:   req.Params,
	}

	plan, err := s.planner.CreatePlan(sess.Context(), []orchestrator.ToolExecutionRequest{toolReq})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, NewErrorResponse(req.ID, ErrCodeToolFailed, err.Error()))
		return
	}

	result := s.executor.Run(sess.Context(), plan, []orchestrator.ToolExecutionRequest{toolReq}, id, s.sequenceFor(id))

	if len(result.Results) == 0 {
		writeJSON(w, http.StatusInternalServerError, NewErrorResponse(req.ID, ErrCodeToolFailed, "tool did not produce a result"))
		return
	}
	toolResult := result.Results[0]
	if !toolResult.Success {
		writeJSON(w, http.StatusOK, NewErrorResponse(req.ID, ErrCodeToolFailed, toolResult.Error))
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(req.ID, toolResult.Output))
}

func (s *Server) sequenceFor(sessionID string) *events.SequenceCounter {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if c, ok := s.seq[sessionID]; ok {
		return c
	}
	c := &events.SequenceCounter{}
	s.seq[sessionID] = c
	return c
}

// handleHeartbeat records a client heartbeat for the session, resetting
// its missed-heartbeat timer (spec §4.7, §5).
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Heartbeat(id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleDisconnect closes a session explicitly, cancelling its running
// tools (spec §4.7).
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.sessions.Close(id)

	s.seqMu.Lock()
	delete(s.seq, id)
	s.seqMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + event + "\n"))
	_, _ = w.Write(append([]byte("data: "), data...))
	_, _ = w.Write([]byte("\n\n"))
}

