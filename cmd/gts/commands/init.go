package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-template-script/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a configuration file interactively",
	Long: `Guides you through setting up gts configuration step by step and writes
.gts/config.yaml in dir (default: the current directory), or ~/.gts/config.yaml
with --global. --defaults skips the questions.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		global, _ := cmd.Flags().GetBool("global")
		defaults, _ := cmd.Flags().GetBool("defaults")
		force, _ := cmd.Flags().GetBool("force")

		path := config.ProjectConfigPath(dir)
		if global {
			path = config.GlobalConfigPath()
		}
		return runInit(cmd, path, defaults, force)
	},
}

func runInit(cmd *cobra.Command, path string, defaults, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}

	cfg := config.DefaultConfig()
	if !defaults {
		if err := askConfig(cfg); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}

// askConfig fills cfg from an interactive form.
func askConfig(cfg *config.Config) error {
	loops := strconv.Itoa(cfg.MaxLoopIterations)
	depth := strconv.Itoa(cfg.MaxCallDepth)
	size := strconv.Itoa(cfg.CacheSize)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Module namespace").
				Description("Root identifier of module calls such as tp.date.now()").
				Value(&cfg.ModuleNamespace).
				Validate(nonEmpty),
			huh.NewInput().
				Title("Maximum loop iterations").
				Value(&loops).
				Validate(positiveInt),
			huh.NewInput().
				Title("Maximum call depth").
				Value(&depth).
				Validate(positiveInt),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Cache compiled expressions?").
				Value(&cfg.ExpressionCache),
			huh.NewInput().
				Title("Cache size").
				Value(&size).
				Validate(positiveInt),
			huh.NewInput().
				Title("Cache file (optional, press Enter to skip)").
				Description("Persist the cache between runs").
				Placeholder(".gts/exprcache.msgpack").
				Value(&cfg.CacheFile),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Record variable snapshots in traces?").
				Value(&cfg.TraceSnapshots),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Info", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&cfg.LogLevel),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	cfg.MaxLoopIterations, _ = strconv.Atoi(loops)
	cfg.MaxCallDepth, _ = strconv.Atoi(depth)
	cfg.CacheSize, _ = strconv.Atoi(size)
	return nil
}

func nonEmpty(s string) error {
	if s == "" {
		return errors.New("required")
	}
	return nil
}

func positiveInt(s string) error {
	if n, err := strconv.Atoi(s); err != nil || n <= 0 {
		return errors.New("must be a positive number")
	}
	return nil
}

func init() {
	initCmd.Flags().Bool("global", false, "Write the global config instead of the project config")
	initCmd.Flags().Bool("defaults", false, "Write the defaults without asking")
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
}
