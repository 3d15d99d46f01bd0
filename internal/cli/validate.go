package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/cadence/internal/presentation/graph"
	"github.com/aretw0/cadence/internal/validator"
	"github.com/aretw0/cadence/pkg/loader"
)

// ValidateOptions configures the validate command.
type ValidateOptions struct {
	Paths []string

	// Graph prints a Mermaid flowchart of every valid protocol.
	Graph  bool
	Output io.Writer
}

// Validate loads definition files and checks every protocol statically.
func Validate(opts ValidateOptions) error {
	bundle, err := loader.Load(opts.Paths...)
	if err != nil {
		return err
	}
	if len(bundle.Protocols) == 0 {
		return errors.New("no protocols found")
	}

	tools := make(map[string]bool, len(bundle.Tools))
	for _, t := range bundle.Tools {
		if t.ID == "" || t.Endpoint == "" {
			return fmt.Errorf("tool %q: id and endpoint are required", t.ID)
		}
		tools[t.ID] = true
	}

	var errs []error
	for _, p := range bundle.Protocols {
		if err := validator.ValidateProtocol(p, tools); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(opts.Output, "Protocol '%s' is valid (%d steps).\n", p.Name, len(p.Steps))
		if opts.Graph {
			fmt.Fprintf(opts.Output, "\n```mermaid\n%s```\n\n", graph.GenerateMermaid(p, nil))
		}
	}
	return errors.Join(errs...)
}
