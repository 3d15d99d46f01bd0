package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/cadence/internal/config"
	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"golang.org/x/term"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// CommonOptions are shared by every command that builds an engine.
type CommonOptions struct {
	ConfigFile string
	Protocols  []string
	Debug      bool
}

// loadConfig resolves the configuration and appends definition paths given on the command line.
func loadConfig(opts CommonOptions) (*config.Config, error) {
	cfg, err := config.Load(config.New(), opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.Protocols = append(cfg.Protocols, opts.Protocols...)
	if opts.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// createLogger configures the application logger.
// It writes to Stderr so Stdout stays free for results and MCP JSON-RPC.
func createLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format := logging.FormatText
	if cfg.LogFormat == string(logging.FormatJSON) {
		format = logging.FormatJSON
	}
	return logging.NewWithFormat(os.Stderr, level, format), nil
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("Enter Step", "protocol", e.ProtocolName, "step_id", e.StepID, "action", e.Action)
		},
		OnStepLeave: func(ctx context.Context, e *domain.StepEvent) {
			if e.Outcome != nil && !e.Outcome.Success {
				logger.Debug("Leave Step (Error)", "step_id", e.StepID, "err", e.Outcome.Error)
				return
			}
			logger.Debug("Leave Step", "step_id", e.StepID)
		},
		OnToolCall: func(ctx context.Context, e *domain.ToolEvent) {
			logger.Debug("Tool Call", "tool_id", e.ToolID, "step_id", e.StepID)
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			if e.IsError {
				logger.Debug("Tool Return (Error)", "tool_id", e.ToolID, "err", e.Output)
			} else {
				logger.Debug("Tool Return (Success)", "tool_id", e.ToolID)
			}
		},
	}
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// isInterrupted reports whether err comes from a cancelled context.
func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrCancelled)
}
