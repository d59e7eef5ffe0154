package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-template-script/pkg/cfg"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <file|->",
	Short: "Print the control-flow graph of a template",
	Long: `Parses the script blocks of a template and prints their control-flow graph.
Adjacent blocks that share no variables are drawn between FORK and JOIN nodes
with an explanation; functions get their own scope and complexity.

Formats: text (default), json, mermaid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			format = "json"
		}
		limit, _ := cmd.Flags().GetInt("label-limit")
		return runGraph(cmd, args[0], format, limit)
	},
}

func runGraph(cmd *cobra.Command, path, format string, limit int) error {
	a := current
	content, err := readDocument(cmd, path)
	if err != nil {
		return err
	}
	e, save := a.newEngine()
	defer save()

	var opts []cfg.Option
	if limit > 0 {
		opts = append(opts, cfg.WithLabelLimit(limit))
	}
	g, _, err := e.Graph(cmd.Context(), content, opts...)
	if err != nil {
		return fmt.Errorf("building graph: %w", err)
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		return printJSON(out, g)
	case "mermaid":
		printMermaid(out, g)
	case "", "text":
		printGraph(out, g)
	default:
		return fmt.Errorf("unknown format %q (want text, json or mermaid)", format)
	}
	return nil
}

// printGraph prints the graph in human-readable format.
func printGraph(w io.Writer, g *cfg.ControlFlowGraph) {
	fmt.Fprintf(w, "Cyclomatic Complexity: %d\n", g.CyclomaticComplexity)

	fmt.Fprintf(w, "\nNodes (%d):\n", len(g.Nodes))
	for _, n := range g.Nodes {
		line := ""
		if n.Line > 0 {
			line = fmt.Sprintf(" line %d", n.Line)
		}
		fmt.Fprintf(w, "  %s [%s%s] %s\n", n.ID, n.Type, line, n.Label)
	}

	fmt.Fprintf(w, "\nEdges (%d):\n", len(g.Edges))
	for _, e := range g.Edges {
		label := ""
		if e.Label != "" {
			label = " (" + e.Label + ")"
		}
		fmt.Fprintf(w, "  %s --%s--> %s%s\n", e.From, e.Type, e.To, label)
	}

	if len(g.ParallelGroups) > 0 {
		fmt.Fprintf(w, "\nParallel groups (%d):\n", len(g.ParallelGroups))
		for _, p := range g.ParallelGroups {
			fmt.Fprintf(w, "  %s .. %s: %s\n", p.Fork, p.Join, p.Explanation)
		}
	}
	if len(g.FunctionScopes) > 0 {
		fmt.Fprintf(w, "\nFunctions (%d):\n", len(g.FunctionScopes))
		for _, f := range g.FunctionScopes {
			fmt.Fprintf(w, "  %s (line %d, %d nodes, complexity %d)\n", f.Name, f.Line, len(f.Nodes), f.Complexity)
		}
	}
}

// printMermaid prints the graph as a mermaid flowchart.
func printMermaid(w io.Writer, g *cfg.ControlFlowGraph) {
	fmt.Fprintln(w, "flowchart TD")
	scoped := map[string]bool{}
	for _, f := range g.FunctionScopes {
		fmt.Fprintf(w, "  subgraph %s[%q]\n", f.ID, "function "+f.Name)
		for _, id := range f.Nodes {
			if n, ok := g.Node(id); ok {
				fmt.Fprintf(w, "    %s\n", mermaidNode(n))
				scoped[id] = true
			}
		}
		fmt.Fprintln(w, "  end")
	}
	for _, n := range g.Nodes {
		if !scoped[n.ID] {
			fmt.Fprintf(w, "  %s\n", mermaidNode(n))
		}
	}
	for _, e := range g.Edges {
		arrow := "-->"
		switch e.Type {
		case cfg.EdgeParallel:
			arrow = "-.->"
		case cfg.EdgeLoopBack:
			arrow = "==>"
		}
		if e.Label != "" {
			fmt.Fprintf(w, "  %s %s|%s| %s\n", e.From, arrow, mermaidText(e.Label), e.To)
		} else {
			fmt.Fprintf(w, "  %s %s %s\n", e.From, arrow, e.To)
		}
	}
}

func mermaidNode(n cfg.FlowNode) string {
	text := fmt.Sprintf("%q", mermaidText(n.Label))
	switch n.Type {
	case cfg.NodeCondition, cfg.NodeLoopStart:
		return n.ID + "{" + text + "}"
	case cfg.NodeStart, cfg.NodeEnd:
		return n.ID + "([" + text + "])"
	case cfg.NodeFork, cfg.NodeJoin:
		return n.ID + "[[" + text + "]]"
	}
	return n.ID + "[" + text + "]"
}

func mermaidText(s string) string {
	return strings.NewReplacer(`"`, "'", "|", "/", "\n", " ").Replace(s)
}

func init() {
	graphCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	graphCmd.Flags().StringP("format", "f", "text", "Output format: text, json or mermaid")
	graphCmd.Flags().Int("label-limit", 0, "Truncate node labels to this many characters")
}
