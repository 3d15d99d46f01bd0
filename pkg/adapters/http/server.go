package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/coordinator"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Engine is the part of the cadence facade exposed over HTTP.
type Engine interface {
	RegisterProtocol(p domain.Protocol) error
	RegisterTool(t domain.ToolDefinition) error
	Protocol(name string) (*domain.Protocol, error)
	Protocols() []string
	Tools() []string

	CreateSessionWithID(ctx context.Context, sessionID, ownerID string, ttl time.Duration, data map[string]any) (*domain.Session, error)
	Session(ctx context.Context, sessionID string) (*domain.Session, error)
	UpdateSession(ctx context.Context, sessionID string, data map[string]any) error
	DeleteSession(ctx context.Context, sessionID string) error
	Sessions(ctx context.Context) ([]string, error)

	Run(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error)

	Submit(ctx context.Context, req coordinator.SubmitRequest) (string, error)
	Await(ctx context.Context, taskID string, timeout time.Duration) (domain.TaskRecord, error)
	Cancel(taskID string) bool
	Task(taskID string) (domain.TaskRecord, error)
	Tasks() []domain.TaskRecord
	CleanupCompleted() int
	Stats() domain.TaskStats
}

// Server serves the engine as a JSON API.
type Server struct {
	Engine Engine
	logger *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...ServerOption) http.Handler {
	s := &Server{Engine: engine, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/protocols", func(r chi.Router) {
		r.Get("/", s.listProtocols)
		r.Post("/", s.registerProtocol)
		r.Get("/{name}", s.getProtocol)
	})
	r.Route("/tools", func(r chi.Router) {
		r.Get("/", s.listTools)
		r.Post("/", s.registerTool)
	})
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Get("/{id}", s.getSession)
		r.Patch("/{id}", s.updateSession)
		r.Delete("/{id}", s.deleteSession)
	})
	r.Post("/runs", s.run)
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.listTasks)
		r.Post("/", s.submitTask)
		r.Post("/cleanup", s.cleanupTasks)
		r.Get("/{id}", s.getTask)
		r.Delete("/{id}", s.cancelTask)
	})
	r.Get("/stats", s.stats)

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createSessionRequest struct {
	ID      string         `json:"id"`
	OwnerID string         `json:"owner_id"`
	TTL     string         `json:"ttl"`
	Data    map[string]any `json:"data"`
}

type runRequest struct {
	Protocol  string `json:"protocol"`
	SessionID string `json:"session_id"`
}

type submitRequest struct {
	TaskID    string            `json:"task_id"`
	Protocol  string            `json:"protocol"`
	SessionID string            `json:"session_id"`
	Metadata  map[string]string `json:"metadata"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) listProtocols(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Protocols())
}

func (s *Server) registerProtocol(w http.ResponseWriter, r *http.Request) {
	var p domain.Protocol
	if !s.decode(w, r, &p) {
		return
	}
	if err := s.Engine.RegisterProtocol(p); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"name": p.Name})
}

func (s *Server) getProtocol(w http.ResponseWriter, r *http.Request) {
	p, err := s.Engine.Protocol(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Tools())
}

func (s *Server) registerTool(w http.ResponseWriter, r *http.Request) {
	var t domain.ToolDefinition
	if !s.decode(w, r, &t) {
		return
	}
	if err := s.Engine.RegisterTool(t); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": t.ID})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.Sessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ids)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if !s.decode(w, r, &body) {
		return
	}
	var ttl time.Duration
	if body.TTL != "" {
		d, err := time.ParseDuration(body.TTL)
		if err != nil || d < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid ttl: " + body.TTL})
			return
		}
		ttl = d
	}

	if body.ID == "" {
		body.ID = uuid.NewString()
	}
	sess, err := s.Engine.CreateSessionWithID(r.Context(), body.ID, body.OwnerID, ttl, body.Data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Engine.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if !s.decode(w, r, &data) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.Engine.UpdateSession(r.Context(), id, data); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.Engine.Session(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// run executes a protocol synchronously. Failed runs still return their
// ExecutionResult so callers can inspect the partial trace.
func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if !s.decode(w, r, &body) {
		return
	}
	result, err := s.Engine.Run(r.Context(), body.Protocol, body.SessionID)
	if err != nil {
		var stepErr *domain.StepExecutionError
		if !errors.As(err, &stepErr) {
			s.writeError(w, err)
			return
		}
		s.logger.Warn("Run failed", "protocol", body.Protocol, "session_id", body.SessionID, "err", err)
		s.writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Tasks())
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if !s.decode(w, r, &body) {
		return
	}
	id, err := s.Engine.Submit(r.Context(), coordinator.SubmitRequest{
		TaskID:       body.TaskID,
		ProtocolName: body.Protocol,
		SessionID:    body.SessionID,
		Metadata:     body.Metadata,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

// getTask returns the task record. With ?wait=<duration> it blocks until
// the task finishes or the wait elapses, answering 408 in the latter case.
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wait := r.URL.Query().Get("wait")
	if wait == "" {
		rec, err := s.Engine.Task(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, rec)
		return
	}

	timeout, err := parseWait(wait)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid wait: " + wait})
		return
	}
	rec, err := s.Engine.Await(r.Context(), id, timeout)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !rec.Status.IsTerminal() {
		s.writeJSON(w, http.StatusRequestTimeout, rec)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.Engine.Cancel(id) {
		if _, err := s.Engine.Task(id); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: "task already finished"})
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

func (s *Server) cleanupTasks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": s.Engine.CleanupCompleted()})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Stats())
}

// parseWait accepts Go durations ("2s") or plain seconds ("2").
func parseWait(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("Invalid request body", "path", r.URL.Path, "err", err)
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "err", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionExists), errors.Is(err, domain.ErrDuplicateTask):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidProtocol):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCoordinatorClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrCancelled):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}
