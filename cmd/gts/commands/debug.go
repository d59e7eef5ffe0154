package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/pkg/debug"
	"github.com/l3aro/go-template-script/pkg/engine"
	"github.com/l3aro/go-template-script/pkg/value"
)

// debugCmd represents the debug command
var debugCmd = &cobra.Command{
	Use:   "debug <file>",
	Short: "Render with breakpoints and step through statements",
	Long: `Renders a template with line breakpoints. At every pause the current
statement and the live variables are shown and you choose how to continue:

  c, continue   run to the next breakpoint
  s, step       pause at the next statement
  n, next       step over
  o, out        step out
  q, stop       abandon the render
  v, vars       list variables
  p <expr>      evaluate an expression
  set <n> <v>   edit a variable (same parsing as --var)

A menu is shown on terminals; --plain reads the commands above from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := renderFlags(cmd)
		if err != nil {
			return err
		}
		breaks, _ := cmd.Flags().GetIntSlice("break")
		step, _ := cmd.Flags().GetBool("step")
		plain, _ := cmd.Flags().GetBool("plain")
		if !log.IsTTY() {
			plain = true
		}
		return runDebug(cmd, args[0], opts, breaks, step, plain)
	},
}

// pauseMenu asks the user what to do at a pause.
type pauseMenu interface {
	Pause(bp debug.DebugBreakpoint) (debug.Action, error)
}

func runDebug(cmd *cobra.Command, path string, opts renderOptions, breaks []int, step, plain bool) error {
	a := current
	content, err := readDocument(cmd, path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e, save := a.newEngine(a.hostOptions(path, opts.root, content, opts.prompter())...)
	defer save()

	ctrl := debug.NewController()
	defer ctrl.Close()
	sessOpts := []debug.Option{debug.WithHandler(ctrl.Handler(ctx))}
	if step {
		sessOpts = append(sessOpts, debug.WithInitialMode(debug.ActionStepInto))
	}
	e.EnableDebug(sessOpts...)
	e.Parse(content)

	out := cmd.OutOrStdout()
	for _, line := range breaks {
		id, ok, err := e.AddBreakpoint(line)
		switch {
		case err != nil:
			a.logger.Warn("breakpoint not set", "line", line, "error", err)
		case ok:
			fmt.Fprintf(out, "breakpoint at line %d (statement %d)\n", line, id)
		default:
			fmt.Fprintf(out, "breakpoint at line %d pending\n", line)
		}
	}

	vars, err := parseVars(e.Evaluator(), opts.vars)
	if err != nil {
		return err
	}
	store := value.NewStore()
	updater := &debug.StoreUpdater{Store: store, Evaluator: e.Evaluator()}
	evaluate := func(expr string) value.Value { return e.Evaluate(ctx, expr, store) }

	var menu pauseMenu
	if plain {
		menu = &lineMenu{in: bufio.NewScanner(cmd.InOrStdin()), out: out, updater: updater, eval: evaluate}
	} else {
		menu = &huhMenu{out: out, updater: updater, eval: evaluate}
	}

	type outcome struct {
		res *engine.RenderResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.Render(ctx, content, engine.RenderContext{Name: path, Variables: vars, Store: store})
		done <- outcome{res, err}
	}()

	for {
		select {
		case bp := <-ctrl.Pauses():
			action, err := menu.Pause(bp)
			if err != nil {
				a.logger.Warn("debugger input ended", "error", err)
				action = debug.ActionStop
			}
			ctrl.Resume(action)
		case r := <-done:
			if r.err != nil {
				return r.err
			}
			if r.res.WasStopped {
				fmt.Fprintln(out, "-- render stopped --")
			} else {
				fmt.Fprintln(out, "-- render finished --")
			}
			if opts.tracePath != "" {
				if err := r.res.Trace.ExportFile(opts.tracePath); err != nil {
					return fmt.Errorf("writing trace: %w", err)
				}
			}
			return writeOutput(cmd, opts.out, r.res.Output)
		}
	}
}

func describePause(w io.Writer, bp debug.DebugBreakpoint) {
	reason := "step"
	if bp.Hit {
		reason = "breakpoint"
	}
	code := bp.Step.Input
	if bp.Node != nil {
		code = bp.Node.Code
	}
	fmt.Fprintf(w, "paused at line %d (%s): %s\n", bp.Step.Line, reason, firstLine(code))
}

func printVariables(w io.Writer, vars map[string]value.Value) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s = %s\n", name, vars[name].Literal())
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// edit applies a variable edit and reports the result.
func edit(w io.Writer, up *debug.StoreUpdater, name, raw string) {
	kind := up.Classify(raw)
	if up.UpdateVariable(name, raw) {
		fmt.Fprintf(w, "  %s updated (%s)\n", name, kind)
		return
	}
	fmt.Fprintf(w, "  could not set %s\n", name)
}

// lineMenu reads debugger commands line by line.
type lineMenu struct {
	in      *bufio.Scanner
	out     io.Writer
	updater *debug.StoreUpdater
	eval    func(string) value.Value
}

func (m *lineMenu) Pause(bp debug.DebugBreakpoint) (debug.Action, error) {
	describePause(m.out, bp)
	for {
		fmt.Fprint(m.out, "(gts) ")
		if !m.in.Scan() {
			if err := m.in.Err(); err != nil {
				return debug.ActionStop, err
			}
			return debug.ActionStop, io.EOF
		}
		line := strings.TrimSpace(m.in.Text())
		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "":
			continue
		case "v", "vars":
			printVariables(m.out, bp.Variables)
		case "p", "print":
			fmt.Fprintf(m.out, "  %s\n", m.eval(rest).Literal())
		case "set":
			name, raw, ok := strings.Cut(strings.TrimSpace(rest), " ")
			if !ok {
				fmt.Fprintln(m.out, "  usage: set <name> <value>")
				continue
			}
			edit(m.out, m.updater, name, raw)
		default:
			if action, ok := debug.ParseAction(cmd); ok {
				return action, nil
			}
			fmt.Fprintf(m.out, "  unknown command %q\n", cmd)
		}
	}
}

// huhMenu shows an interactive menu at each pause.
type huhMenu struct {
	out     io.Writer
	updater *debug.StoreUpdater
	eval    func(string) value.Value
}

const (
	menuVars  = "vars"
	menuEdit  = "edit"
	menuPrint = "print"
)

func (m *huhMenu) Pause(bp debug.DebugBreakpoint) (debug.Action, error) {
	describePause(m.out, bp)
	for {
		var choice string
		err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Paused at line %d", bp.Step.Line)).
				Options(
					huh.NewOption("Continue", string(debug.ActionContinue)),
					huh.NewOption("Step into", string(debug.ActionStepInto)),
					huh.NewOption("Step over", string(debug.ActionStepOver)),
					huh.NewOption("Step out", string(debug.ActionStepOut)),
					huh.NewOption("Show variables", menuVars),
					huh.NewOption("Evaluate expression", menuPrint),
					huh.NewOption("Edit variable", menuEdit),
					huh.NewOption("Stop", string(debug.ActionStop)),
				).
				Value(&choice),
		)).Run()
		if errors.Is(err, huh.ErrUserAborted) {
			return debug.ActionStop, nil
		}
		if err != nil {
			return debug.ActionStop, fmt.Errorf("interactive prompt failed: %w", err)
		}
		switch choice {
		case menuVars:
			printVariables(m.out, bp.Variables)
		case menuPrint:
			var expr string
			if err := huh.NewInput().Title("Expression").Value(&expr).Run(); err != nil {
				continue
			}
			fmt.Fprintf(m.out, "  %s\n", m.eval(expr).Literal())
		case menuEdit:
			var name, raw string
			err := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Variable").Value(&name),
				huh.NewInput().Title("New value").Description("'text', 42, true, [1, 2] or an expression").Value(&raw),
			)).Run()
			if err != nil {
				continue
			}
			edit(m.out, m.updater, name, raw)
		default:
			if action, ok := debug.ParseAction(choice); ok {
				return action, nil
			}
		}
	}
}

func init() {
	addRenderFlags(debugCmd)
	debugCmd.Flags().IntSliceP("break", "b", nil, "Break at a document line, repeatable")
	debugCmd.Flags().Bool("step", false, "Pause before the first statement")
	debugCmd.Flags().Bool("plain", false, "Read debugger commands from stdin instead of showing a menu")
}
