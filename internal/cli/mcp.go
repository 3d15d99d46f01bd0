package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/cadence/pkg/adapters/mcp"
)

// MCPOptions configures the MCP server.
type MCPOptions struct {
	CommonOptions

	// Transport is "stdio" or "sse".
	Transport string
	Addr      string
}

// ServeMCP exposes the engine as an MCP server until ctx is cancelled or stdin closes.
func ServeMCP(ctx context.Context, opts MCPOptions) error {
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

	srv := mcp.NewServer(eng, mcp.WithLogger(logger))

	switch opts.Transport {
	case "", "stdio":
		logger.Info("Starting Cadence MCP Server (Stdio)")
		return srv.ServeStdio()
	case "sse":
		addr := opts.Addr
		if addr == "" {
			addr = cfg.HTTPAddr
		}
		return srv.ServeSSE(ctx, addr)
	}
	return fmt.Errorf("unknown transport %q (supported: stdio, sse)", opts.Transport)
}
