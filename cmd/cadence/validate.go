package main

import (
	"fmt"
	"os"

	"github.com/aretw0/cadence/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [paths...]",
	Short: "Check protocol definitions for consistency",
	Long: `Loads definition files and reports dangling jumps, unknown tools, actions
and operators, and unreachable steps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, _ := cmd.Flags().GetBool("graph")
		paths := append(args, commonOptions(cmd).Protocols...)
		if len(paths) == 0 {
			paths = []string{"."}
		}

		if err := cli.Validate(cli.ValidateOptions{Paths: paths, Graph: graph, Output: os.Stdout}); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Println("All protocols are valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("graph", false, "Print a Mermaid flowchart for each protocol")
}
