package main

import (
	"os"

	"github.com/aretw0/cadence/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <protocol>",
	Short: "Run a protocol against a session",
	Long: `Runs a protocol once and prints its execution trace.
The session is created when it does not exist; with Redis configured an existing
session is picked up from the mirror.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		owner, _ := cmd.Flags().GetString("owner")
		context, _ := cmd.Flags().GetString("context")
		jsonMode, _ := cmd.Flags().GetBool("json")
		graph, _ := cmd.Flags().GetBool("graph")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		return cli.Execute(ctx, cli.RunOptions{
			CommonOptions: commonOptions(cmd),
			Protocol:      args[0],
			SessionID:     sessionID,
			OwnerID:       owner,
			Context:       context,
			JSON:          jsonMode,
			Graph:         graph,
			Output:        os.Stdout,
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("session", "s", "", "Session ID (generated when empty)")
	runCmd.Flags().String("owner", "", "Owner of a newly created session")
	runCmd.Flags().StringP("context", "c", "", "Initial session data (JSON object)")
	runCmd.Flags().Bool("json", false, "Print the execution trace as JSON")
	runCmd.Flags().Bool("graph", false, "Append a Mermaid flowchart with the run overlaid")
}
