package main

import (
	"fmt"
	"os"

	"github.com/aretw0/cadence/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence runs declarative conversation protocols",
	Long: `Cadence interprets protocols: ordered steps that prompt a language model,
call HTTP tools, branch on session data and end sessions.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringSliceP("protocols", "f", nil, "Protocol definition files or directories")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging and step hooks")
}

func commonOptions(cmd *cobra.Command) cli.CommonOptions {
	configFile, _ := cmd.Flags().GetString("config")
	protocols, _ := cmd.Flags().GetStringSlice("protocols")
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.CommonOptions{
		ConfigFile: configFile,
		Protocols:  protocols,
		Debug:      debug,
	}
}
