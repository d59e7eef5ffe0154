package commands

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/internal/scanner"
	"github.com/l3aro/go-template-script/pkg/dfg"
)

// AnalyzeOutput is the report for one template.
type AnalyzeOutput struct {
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	Blocks   int           `json:"blocks"`
	Batches  int           `json:"batches"`
	Parallel int           `json:"parallel_batches"`
	Analysis *dfg.Analysis `json:"analysis,omitempty"`
}

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Summarize variable dependencies of one or many templates",
	Long: `Analyzes which variables every top-level block reads and writes, and which
adjacent blocks are independent of each other. A directory is scanned for
templates (template_extensions in the config, .gtsignore respected) and the
files are analyzed concurrently.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")
		workers, _ := cmd.Flags().GetInt("workers")
		return runAnalyze(cmd, path, jsonOutput, workers)
	},
}

func runAnalyze(cmd *cobra.Command, path string, jsonOutput bool, workers int) error {
	a := current
	ctx := cmd.Context()

	opts := scanner.DefaultOptions()
	opts.Extensions = a.cfg.TemplateExtensions
	opts.Logger = a.logger
	files, err := scanner.New(opts).Scan(ctx, path)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no templates found in %s", path)
	}

	var spinner *log.ProgressSpinner
	if log.IsTTY() && !jsonOutput {
		spinner = log.NewProgressSpinner(cmd.ErrOrStderr(), fmt.Sprintf("Analyzing %d templates...", len(files)))
		spinner.Start()
	}

	e, save := a.newEngine()
	defer save()

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	reports := make([]AnalyzeOutput, len(files))
	var done atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			data, err := os.ReadFile(f.FullPath)
			if err != nil {
				return fmt.Errorf("reading %s: %w", f.Path, err)
			}
			analysis, err := e.Analyze(gctx, string(data))
			if err != nil {
				return fmt.Errorf("analyzing %s: %w", f.Path, err)
			}
			r := AnalyzeOutput{
				Path:     f.Path,
				Size:     f.Size,
				Blocks:   len(analysis.Blocks),
				Batches:  len(analysis.Batches),
				Analysis: analysis,
			}
			for _, b := range analysis.Batches {
				if b.Parallel() {
					r.Parallel++
				}
			}
			reports[i] = r
			a.logger.With("file", f.Path).Debug("analyzed", "blocks", r.Blocks, "parallel", r.Parallel)
			if spinner != nil {
				spinner.Count(int(done.Add(1)), len(files))
			}
			return nil
		})
	}
	err = g.Wait()
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}
	a.logger.Debug("analysis finished", "files", len(reports))

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, reports)
	}
	verbose := a.cfg.Verbose || len(reports) == 1
	for _, r := range reports {
		printAnalysis(out, r, verbose)
	}
	return nil
}

func printAnalysis(w io.Writer, r AnalyzeOutput, detail bool) {
	fmt.Fprintf(w, "%s (%s): %d blocks, %d batches, %d parallel\n",
		r.Path, humanize.Bytes(uint64(r.Size)), r.Blocks, r.Batches, r.Parallel)
	if !detail {
		return
	}
	for _, b := range r.Analysis.Blocks {
		fmt.Fprintf(w, "  block %d (line %d): reads [%s] writes [%s]", b.Index, b.Line,
			strings.Join(b.Reads, ", "), strings.Join(b.Writes, ", "))
		if b.WritesOutput {
			fmt.Fprint(w, " +tR")
		}
		if b.Barrier {
			fmt.Fprintf(w, " barrier: %s", b.BarrierReason)
		}
		fmt.Fprintln(w)
	}
	for _, b := range r.Analysis.Batches {
		if b.Parallel() {
			fmt.Fprintf(w, "  parallel %v: %s\n", b.Blocks, b.Rationale)
		}
	}
	for _, e := range r.Analysis.Edges {
		fmt.Fprintf(w, "  %s: block %d line %d -> block %d line %d\n",
			e.VarName, e.FromBlock, e.DefRef.Line, e.ToBlock, e.UseRef.Line)
	}
}

func init() {
	analyzeCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	analyzeCmd.Flags().Int("workers", 0, "Files analyzed concurrently (default: GOMAXPROCS)")
}
