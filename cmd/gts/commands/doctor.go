package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-template-script/internal/config"
	"github.com/l3aro/go-template-script/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on the configuration and runtime",
	Long: `Checks the configuration, the script parser used by the analyzer, the
persisted expression cache and whether interactive prompts are available.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := healthcheck.Check(cmd.Context(), current.cfg, effectiveConfigPath(cmd))
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		} else {
			displayDoctorResult(cmd.OutOrStdout(), result)
		}

		if result.Failed() {
			return fmt.Errorf("health check failed: one or more checks reported an error")
		}
		return nil
	},
}

// effectiveConfigPath returns the config file in use, or "" for defaults.
func effectiveConfigPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	for _, path := range []string{config.ProjectConfigPath("."), config.GlobalConfigPath()} {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(w io.Writer, result *healthcheck.HealthCheckResult) {
	if result.EffectivePath == "" {
		fmt.Fprintf(w, "Using config: built-in defaults\n\n")
	} else {
		fmt.Fprintf(w, "Using config: %s (%s)\n\n", result.EffectivePath, result.EffectiveScope)
	}

	for _, c := range result.Checks {
		fmt.Fprintf(w, "%s %s: %s", formatStatusIcon(c.Status), c.Name, c.Status)
		if c.Detail != "" {
			fmt.Fprintf(w, " (%s)", c.Detail)
		}
		fmt.Fprintln(w)
		if c.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", c.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusReady:
		return "✓"
	case healthcheck.StatusDisabled, healthcheck.StatusUnavailable:
		return "◐"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}

func init() {
	doctorCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
