package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/internal/modules"
	"github.com/l3aro/go-template-script/internal/scanner"
	"github.com/l3aro/go-template-script/pkg/engine"
	"github.com/l3aro/go-template-script/pkg/trace"
	"github.com/l3aro/go-template-script/pkg/value"
)

// renderCmd represents the render command
var renderCmd = &cobra.Command{
	Use:   "render <file|->",
	Short: "Render a template document",
	Long: `Renders a document containing <% expression %> and <%* script %> tags and
prints the result. Files with a script extension (.js) are run as bare
scripts and print what they append to tR.

Variables can be bound with --var name=value. Values are parsed like debugger
edits: 'quoted', 42, true, [1, 2], {"a": 1} and arithmetic over literals
such as 6 / 2 are evaluated; anything else, like my-post-title or
2024-01-15, is bound as text.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := renderFlags(cmd)
		if err != nil {
			return err
		}
		return runRender(cmd, args[0], opts)
	},
}

type renderOptions struct {
	vars        []string
	out         string
	tracePath   string
	root        string
	interactive bool
}

func renderFlags(cmd *cobra.Command) (renderOptions, error) {
	var o renderOptions
	o.vars, _ = cmd.Flags().GetStringArray("var")
	o.out, _ = cmd.Flags().GetString("out")
	o.tracePath, _ = cmd.Flags().GetString("trace")
	o.root, _ = cmd.Flags().GetString("root")
	o.interactive = log.IsTTY()
	if cmd.Flags().Changed("interactive") {
		o.interactive, _ = cmd.Flags().GetBool("interactive")
	}
	if o.tracePath != "" {
		if _, err := trace.ParseFormat(filepath.Ext(o.tracePath)); err != nil {
			return o, fmt.Errorf("--trace: %w", err)
		}
	}
	return o, nil
}

func (o renderOptions) prompter() modules.Prompter {
	if !o.interactive {
		return nil
	}
	return modules.HuhPrompter{}
}

func runRender(cmd *cobra.Command, path string, opts renderOptions) error {
	a := current
	content, err := readDocument(cmd, path)
	if err != nil {
		return err
	}
	e, save := a.newEngine(a.hostOptions(path, opts.root, content, opts.prompter())...)
	defer save()

	vars, err := parseVars(e.Evaluator(), opts.vars)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var output string
	var tr *trace.Trace
	if scanner.DetectKind(filepath.Ext(path)).IsScript() {
		store := value.NewStore()
		for name, v := range vars {
			store.Set(name, v)
		}
		if output, err = e.Execute(ctx, content, store); err != nil {
			return err
		}
	} else {
		res, err := e.Render(ctx, content, engine.RenderContext{Name: path, Variables: vars})
		if err != nil {
			return err
		}
		output, tr = res.Output, res.Trace
		a.logger.Debug("render finished", "steps", res.Trace.Len(), "blocks", len(res.AST.Blocks))
	}

	if opts.tracePath != "" {
		if tr == nil {
			a.logger.Warn("scripts are not traced; no trace written", "path", opts.tracePath)
		} else if err := tr.ExportFile(opts.tracePath); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		} else {
			a.logger.Info("trace written", "path", opts.tracePath, "steps", tr.Len())
		}
	}
	return writeOutput(cmd, opts.out, output)
}

func writeOutput(cmd *cobra.Command, out, output string) error {
	if out == "" {
		fmt.Fprint(cmd.OutOrStdout(), output)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(out, []byte(output), 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func addRenderFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("var", nil, "Bind a variable (name=value), repeatable")
	cmd.Flags().StringP("out", "o", "", "Write the output to a file instead of stdout")
	cmd.Flags().String("trace", "", "Export the execution trace (.json or .msgpack)")
	cmd.Flags().String("root", "", "Root directory for tp.file paths (default: the file's directory)")
	cmd.Flags().Bool("interactive", false, "Allow tp.system prompts (default: when attached to a terminal)")
}

func init() {
	addRenderFlags(renderCmd)
}
