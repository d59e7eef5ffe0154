// Package commands provides the CLI commands for go-template-script (gts).
package commands

import (
	"context"

	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gts",
	Short: "go-template-script - Render, debug and analyze template scripts",
	Long: `go-template-script renders documents with embedded script tags and
provides tools to debug and inspect them.

Commands:
  render      Render a template document
  debug       Render with breakpoints and step through statements
  graph       Print the control-flow graph of a template
  analyze     Summarize variable dependencies of one or many templates
  eval        Evaluate an expression or run a script
  cache       Inspect or clear the persisted expression cache
  init        Create a configuration file interactively
  doctor      Run health checks on the configuration and runtime

Use "gts [command] --help" for more information about a command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

// ExecuteContext runs the root command with ctx; cancelling ctx stops a
// running render.
func ExecuteContext(ctx context.Context) error {
	return RootCmd.ExecuteContext(ctx)
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: project then global config)")
	RootCmd.PersistentFlags().BoolP("verbose", "V", false, "Verbose logging")
	RootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON lines")

	RootCmd.AddCommand(renderCmd)
	RootCmd.AddCommand(debugCmd)
	RootCmd.AddCommand(graphCmd)
	RootCmd.AddCommand(analyzeCmd)
	RootCmd.AddCommand(evalCmd)
	RootCmd.AddCommand(cacheCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(doctorCmd)
}
