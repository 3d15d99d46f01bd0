package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aretw0/cadence/internal/presentation/graph"
	"github.com/aretw0/cadence/internal/presentation/tui"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/google/uuid"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	CommonOptions

	Protocol  string
	SessionID string
	OwnerID   string

	// Context is a raw JSON object merged into the session before the run.
	Context string

	JSON bool

	// Graph appends a Mermaid flowchart of the protocol with the run overlaid.
	Graph  bool
	Output io.Writer
}

// Execute runs one protocol against a session and prints the execution trace.
// The session is reused when it already exists (locally or in the Redis mirror).
func Execute(ctx context.Context, opts RunOptions) error {
	if opts.Protocol == "" {
		return errors.New("a protocol name is required")
	}

	var initialContext map[string]any
	if opts.Context != "" {
		if err := json.Unmarshal([]byte(opts.Context), &initialContext); err != nil {
			return fmt.Errorf("error parsing --context JSON: %w", err)
		}
	}

	cfg, err := loadConfig(opts.CommonOptions)
	if err != nil {
		return err
	}
	logger, err := createLogger(cfg)
	if err != nil {
		return err
	}

	eng, err := createEngine(cfg, logger, opts.Debug, nil)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(shutdownCtx)
		_ = eng.Close()
	}()

	sessionID, err := prepareSession(ctx, eng, opts.SessionID, opts.OwnerID, initialContext)
	if err != nil {
		return err
	}
	logger.Info("Session ready", "session_id", sessionID)

	result, runErr := eng.Run(ctx, opts.Protocol, sessionID)
	if err := printResult(opts.Output, result, opts.JSON); err != nil {
		return err
	}
	if opts.Graph {
		if p, err := eng.Protocol(opts.Protocol); err == nil {
			fmt.Fprintf(opts.Output, "\n```mermaid\n%s```\n", graph.GenerateMermaid(*p, graph.OverlayFromResult(result)))
		}
	}
	if runErr != nil {
		if isInterrupted(runErr) {
			printSystemMessage(opts.Output, "Interrupted before step '%s'.", nextStepHint(result))
		}
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}

// prepareSession returns an existing session id or creates the session.
func prepareSession(ctx context.Context, eng *engineHandle, sessionID, ownerID string, data map[string]any) (string, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if _, err := eng.Session(ctx, sessionID); err == nil {
		if len(data) > 0 {
			if err := eng.UpdateSession(ctx, sessionID, data); err != nil {
				return "", err
			}
		}
		return sessionID, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	if _, err := eng.CreateSessionWithID(ctx, sessionID, ownerID, 0, data); err != nil {
		return "", err
	}
	return sessionID, nil
}

// printResult writes JSON when asked to or when w is not a terminal, and a
// rendered markdown report otherwise.
func printResult(w io.Writer, result *domain.ExecutionResult, jsonMode bool) error {
	if result == nil {
		return nil
	}
	if jsonMode || !isTerminal(w) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out, err := tui.NewRenderer()(tui.ResultMarkdown(result))
	if err != nil {
		return err
	}
	fmt.Fprint(w, out)

	status := "completed"
	if !result.Success {
		status = "failed"
	}
	printSystemMessage(w, "Run %s in %s.", tui.Status(status), result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	return nil
}

func nextStepHint(result *domain.ExecutionResult) string {
	if result == nil || len(result.StepsExecuted) == 0 {
		return "start"
	}
	return "after " + result.StepsExecuted[len(result.StepsExecuted)-1].StepID
}
