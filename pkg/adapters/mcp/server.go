package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/coordinator"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const protocolsURI = "cadence://protocols"

// RunResponse is returned by run_protocol.
type RunResponse struct {
	Result *domain.ExecutionResult `json:"result" jsonschema_description:"The execution trace of the run"`
	Error  string                  `json:"error,omitempty" jsonschema_description:"Why the run failed, if it did"`
}

// TaskResponse is returned by the task tools.
type TaskResponse struct {
	Task domain.TaskRecord `json:"task" jsonschema_description:"The current task record"`
}

// SessionResponse is returned by the session tools.
type SessionResponse struct {
	Session *domain.Session `json:"session" jsonschema_description:"The session snapshot"`
}

// Engine defines the interface required by the MCP server.
type Engine interface {
	Protocol(name string) (*domain.Protocol, error)
	Protocols() []string
	CreateSessionWithID(ctx context.Context, sessionID, ownerID string, ttl time.Duration, data map[string]any) (*domain.Session, error)
	Session(ctx context.Context, sessionID string) (*domain.Session, error)
	Run(ctx context.Context, protocolName, sessionID string) (*domain.ExecutionResult, error)
	Submit(ctx context.Context, req coordinator.SubmitRequest) (string, error)
	Await(ctx context.Context, taskID string, timeout time.Duration) (domain.TaskRecord, error)
	Task(taskID string) (domain.TaskRecord, error)
	Cancel(taskID string) bool
}

// Server exposes an Engine as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("cadence-mcp", strings.TrimSpace(cadence.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://" + addr
	if strings.HasPrefix(addr, ":") {
		baseURL = "http://localhost" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_protocols",
		mcp.WithDescription("List the names of all registered protocols."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, _ := json.Marshal(s.engine.Protocols())
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("describe_protocol",
		mcp.WithDescription("Return the full definition of a protocol."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Protocol name")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := s.engine.Protocol(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, _ := json.Marshal(p)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create a session, optionally seeded with data."),
		mcp.WithString("session_id", mcp.Description("Session id (generated when omitted)")),
		mcp.WithString("owner_id", mcp.Description("Owner of the session")),
		mcp.WithString("data", mcp.Description("JSON object with initial session data")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleCreateSession))

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Read a session snapshot."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetSession))

	s.mcpServer.AddTool(mcp.NewTool("run_protocol",
		mcp.WithDescription("Run a protocol against a session and wait for the result."),
		mcp.WithString("protocol", mcp.Required(), mcp.Description("Protocol name")),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleRunProtocol))

	s.mcpServer.AddTool(mcp.NewTool("submit_task",
		mcp.WithDescription("Queue a protocol run in the background and return its task."),
		mcp.WithString("protocol", mcp.Required(), mcp.Description("Protocol name")),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("task_id", mcp.Description("Task id (generated when omitted)")),
		mcp.WithOutputSchema[TaskResponse](),
	), mcp.NewStructuredToolHandler(s.handleSubmitTask))

	s.mcpServer.AddTool(mcp.NewTool("task_status",
		mcp.WithDescription("Get a task record, optionally waiting for it to finish."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithNumber("wait_seconds", mcp.Description("How long to wait for completion (0 returns immediately)")),
		mcp.WithOutputSchema[TaskResponse](),
	), mcp.NewStructuredToolHandler(s.handleTaskStatus))

	s.mcpServer.AddTool(mcp.NewTool("cancel_task",
		mcp.WithDescription("Request cancellation of a pending or running task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithOutputSchema[TaskResponse](),
	), mcp.NewStructuredToolHandler(s.handleCancelTask))
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _ := args["session_id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	owner, _ := args["owner_id"].(string)

	data := map[string]any{}
	if raw, ok := args["data"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return SessionResponse{}, fmt.Errorf("data must be a JSON object: %w", err)
		}
	}

	sess, err := s.engine.CreateSessionWithID(ctx, id, owner, 0, data)
	if err != nil {
		return SessionResponse{}, err
	}
	return SessionResponse{Session: sess}, nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _ := args["session_id"].(string)
	sess, err := s.engine.Session(ctx, id)
	if err != nil {
		return SessionResponse{}, err
	}
	return SessionResponse{Session: sess}, nil
}

// handleRunProtocol reports step failures inside the response so the caller
// still sees the partial trace. Lookup failures are tool errors.
func (s *Server) handleRunProtocol(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	protocol, _ := args["protocol"].(string)
	sessionID, _ := args["session_id"].(string)

	result, err := s.engine.Run(ctx, protocol, sessionID)
	if err != nil {
		var stepErr *domain.StepExecutionError
		if !errors.As(err, &stepErr) {
			return RunResponse{}, fmt.Errorf("run failed: %w", err)
		}
		s.logger.Warn("MCP run_protocol: step failed", "protocol", protocol, "session_id", sessionID, "err", err)
		return RunResponse{Result: result, Error: err.Error()}, nil
	}
	return RunResponse{Result: result}, nil
}

func (s *Server) handleSubmitTask(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TaskResponse, error) {
	protocol, _ := args["protocol"].(string)
	sessionID, _ := args["session_id"].(string)
	taskID, _ := args["task_id"].(string)

	id, err := s.engine.Submit(ctx, coordinator.SubmitRequest{
		TaskID:       taskID,
		ProtocolName: protocol,
		SessionID:    sessionID,
		Metadata:     map[string]string{"source": "mcp"},
	})
	if err != nil {
		return TaskResponse{}, err
	}
	rec, err := s.engine.Task(id)
	if err != nil {
		return TaskResponse{}, err
	}
	return TaskResponse{Task: rec}, nil
}

func (s *Server) handleTaskStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TaskResponse, error) {
	taskID, _ := args["task_id"].(string)
	wait, _ := args["wait_seconds"].(float64)

	if wait <= 0 {
		rec, err := s.engine.Task(taskID)
		if err != nil {
			return TaskResponse{}, err
		}
		return TaskResponse{Task: rec}, nil
	}

	rec, err := s.engine.Await(ctx, taskID, time.Duration(wait*float64(time.Second)))
	if err != nil {
		return TaskResponse{}, err
	}
	return TaskResponse{Task: rec}, nil
}

func (s *Server) handleCancelTask(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TaskResponse, error) {
	taskID, _ := args["task_id"].(string)
	if !s.engine.Cancel(taskID) {
		rec, err := s.engine.Task(taskID)
		if err != nil {
			return TaskResponse{}, err
		}
		return TaskResponse{}, fmt.Errorf("task %q is already %s", taskID, rec.Status)
	}
	rec, err := s.engine.Task(taskID)
	if err != nil {
		return TaskResponse{}, err
	}
	return TaskResponse{Task: rec}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(protocolsURI, "Registered Protocols",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		names := s.engine.Protocols()
		protocols := make([]*domain.Protocol, 0, len(names))
		for _, name := range names {
			p, err := s.engine.Protocol(name)
			if err != nil {
				continue
			}
			protocols = append(protocols, p)
		}
		jsonBytes, _ := json.Marshal(protocols)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      protocolsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
