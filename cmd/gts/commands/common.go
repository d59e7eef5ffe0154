package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-template-script/internal/config"
	"github.com/l3aro/go-template-script/internal/frontmatter"
	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/internal/modules"
	"github.com/l3aro/go-template-script/pkg/debug"
	"github.com/l3aro/go-template-script/pkg/engine"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/value"
)

// app is the configuration and logger shared by every command.
type app struct {
	cfg    *config.Config
	logger log.Logger
}

var current *app

// setup loads configuration and applies the global flags.
func setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON, _ = cmd.Flags().GetBool("log-json")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	current = &app{
		cfg: cfg,
		logger: log.New(log.LoggerConfig{
			Level:      cfg.Level(),
			JSONOutput: cfg.LogJSON,
			Stderr:     cmd.ErrOrStderr(),
		}),
	}
	return nil
}

// newEngine builds an engine from the configuration. The returned function
// persists the expression cache when cache_file is set.
func (a *app) newEngine(extra ...engine.Option) (*engine.Engine, func()) {
	opts := []engine.Option{
		engine.WithNamespace(a.cfg.ModuleNamespace),
		engine.WithMaxLoopIterations(a.cfg.MaxLoopIterations),
		engine.WithMaxCallDepth(a.cfg.MaxCallDepth),
		engine.WithSnapshots(a.cfg.TraceSnapshots),
		engine.WithLogger(a.logger),
	}
	if a.cfg.WriteHazards {
		opts = append(opts, engine.WithWriteHazards())
	}
	save := func() {}
	if !a.cfg.ExpressionCache {
		opts = append(opts, engine.WithoutCache())
	} else {
		c := eval.NewExprCache(a.cfg.CacheSize)
		if path := a.cfg.CacheFile; path != "" {
			if err := c.LoadFile(path); err != nil {
				a.logger.Warn("ignoring unreadable expression cache", "path", path, "error", err)
				c.Clear()
			}
			save = func() {
				if err := c.SaveFile(path); err != nil {
					a.logger.Warn("failed to save expression cache", "path", path, "error", err)
					return
				}
				a.logger.Debug("saved expression cache", "path", path, "entries", c.Len())
			}
		}
		opts = append(opts, engine.WithCache(c))
	}
	return engine.New(append(opts, extra...)...), save
}

// hostOptions wires the reference modules and the frontmatter of content,
// and tags the engine's log lines with path. A path of "-" has no file for
// tp.file.
func (a *app) hostOptions(path, root, content string, prompter modules.Prompter) []engine.Option {
	logger := a.logger.With("file", path)
	modOpts := []modules.Option{modules.WithLogger(logger)}
	if prompter != nil {
		modOpts = append(modOpts, modules.WithPrompter(prompter))
	}
	if path != "-" {
		f, err := modules.NewFile(root, path, content)
		if err != nil {
			logger.Warn("tp.file is unavailable", "error", err)
		} else {
			modOpts = append(modOpts, modules.WithFile(f))
		}
	}
	fm, err := frontmatter.Parse(content)
	if err != nil {
		logger.Warn("ignoring malformed frontmatter", "error", err)
		fm = frontmatter.Empty()
	}
	return []engine.Option{
		engine.WithLogger(logger),
		engine.WithModules(modules.New(modOpts...)),
		engine.WithFrontmatter(fm),
	}
}

// readDocument reads path, or stdin for "-".
func readDocument(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// parseVars turns name=raw flags into values. Raw input is classified the
// way the debugger classifies edits: quoted strings, numbers, literals,
// structures and arithmetic over literals are evaluated, anything else is
// kept as text.
func parseVars(ev *eval.Evaluator, vars []string) (map[string]value.Value, error) {
	store := value.NewStore()
	up := &debug.StoreUpdater{Store: store, Evaluator: ev}
	for _, kv := range vars {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --var %q: want name=value", kv)
		}
		if !up.UpdateVariable(strings.TrimSpace(name), raw) {
			return nil, fmt.Errorf("invalid --var %q", kv)
		}
	}
	return store.Snapshot(), nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
