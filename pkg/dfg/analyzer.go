package dfg

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/eval"
)

// Analyzer computes block effects and parallel-safe batches.
type Analyzer struct {
	namespace string
	hazards   bool
	workers   int
	logger    log.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithNamespace sets the module namespace root used to recognise
// side-effecting module calls.
func WithNamespace(ns string) Option {
	return func(a *Analyzer) {
		if ns != "" {
			a.namespace = ns
		}
	}
}

// WithWriteHazards also splits batches on write-after-read and
// write-after-write conflicts.
func WithWriteHazards() Option {
	return func(a *Analyzer) { a.hazards = true }
}

// WithWorkers bounds the number of blocks parsed concurrently.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		namespace: eval.DefaultNamespace,
		workers:   runtime.GOMAXPROCS(0),
		logger:    log.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze analyzes the top-level blocks of tree.
func (a *Analyzer) Analyze(ctx context.Context, tree *ast.TemplateAST) (*Analysis, error) {
	if tree == nil {
		return &Analysis{Functions: map[string]FunctionSummary{}}, nil
	}
	return a.AnalyzeNodes(ctx, tree.Roots)
}

// AnalyzeNodes analyzes a flat sequence of top-level statements. Comments
// and block delimiters are not blocks.
func (a *Analyzer) AnalyzeNodes(ctx context.Context, roots []*ast.StatementNode) (*Analysis, error) {
	var blocks []*ast.StatementNode
	for _, n := range roots {
		if n.Executable() {
			blocks = append(blocks, n)
		}
	}
	decls := functionDecls(roots)
	names := make([]string, 0, len(decls))
	for name := range decls {
		names = append(names, name)
	}
	sort.Strings(names)

	blockFacts := make([]*facts, len(blocks))
	fnFacts := make([]*facts, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, n := range blocks {
		g.Go(func() error {
			f, err := a.extract(gctx, func(x *extractor) { x.node(n) })
			blockFacts[i] = f
			return err
		})
	}
	for i, name := range names {
		g.Go(func() error {
			f, err := a.extract(gctx, func(x *extractor) { x.function(decls[name]) })
			fnFacts[i] = f
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyzing blocks: %w", err)
	}

	effects := closeCalls(names, fnFacts)
	out := &Analysis{Functions: make(map[string]FunctionSummary, len(names))}
	for _, name := range names {
		n, eff := decls[name], effects[name]
		out.Functions[name] = FunctionSummary{
			Name:          name,
			NodeID:        n.ID,
			Line:          n.Line,
			Reads:         keys(eff.reads),
			Writes:        keys(eff.writes),
			Calls:         declared(eff.calls, effects),
			WritesOutput:  eff.writesOutput,
			ReadsOutput:   eff.readsOutput,
			BarrierReason: eff.barrier,
		}
	}
	for i, n := range blocks {
		out.Blocks = append(out.Blocks, block(i, n, blockFacts[i], effects))
	}
	out.Edges = DefUseChains(out.Blocks)
	out.Batches = a.Batch(out.Blocks)
	a.logger.Debug("analyzed script", "blocks", len(out.Blocks), "functions", len(names), "batches", len(out.Batches))
	return out, nil
}

func (a *Analyzer) extract(ctx context.Context, run func(*extractor)) (*facts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x := newExtractor(ctx, a.namespace)
	run(x)
	if x.err != nil {
		return nil, x.err
	}
	return x.f, nil
}

// functionDecls indexes every function declaration by name. A later
// declaration of the same name wins.
func functionDecls(roots []*ast.StatementNode) map[string]*ast.StatementNode {
	decls := make(map[string]*ast.StatementNode)
	var walk func([]*ast.StatementNode)
	walk = func(list []*ast.StatementNode) {
		for _, n := range list {
			if n.Type == ast.StatementFunctionDecl && n.Name != "" {
				decls[n.Name] = n
			}
			for _, c := range n.Children() {
				walk(c)
			}
		}
	}
	walk(roots)
	return decls
}

// closeCalls folds the effects of every callee into its callers until
// nothing changes. Recursion terminates because the sets only grow.
func closeCalls(names []string, own []*facts) map[string]*facts {
	eff := make(map[string]*facts, len(names))
	for i, name := range names {
		eff[name] = own[i].clone()
	}
	for changed := true; changed; {
		changed = false
		for _, name := range names {
			f := eff[name]
			for _, callee := range keys(f.calls) {
				if c, ok := eff[callee]; ok && callee != name && f.merge(c) {
					changed = true
				}
			}
		}
	}
	return eff
}

func block(i int, n *ast.StatementNode, f *facts, effects map[string]*facts) BlockAnalysis {
	eff := f.clone()
	for _, callee := range keys(f.calls) {
		if c, ok := effects[callee]; ok {
			eff.merge(c)
		}
	}
	b := BlockAnalysis{
		Index:        i,
		NodeID:       n.ID,
		Line:         n.Line,
		Type:         n.Type,
		Code:         n.Code,
		Node:         n,
		Reads:        keys(eff.reads),
		Writes:       keys(eff.writes),
		Calls:        declared(eff.calls, effects),
		WritesOutput: eff.writesOutput,
		ReadsOutput:  eff.readsOutput,
		Refs:         f.refs,
	}
	switch {
	case eff.barrier != "":
		b.BarrierReason = eff.barrier
	case eff.overwrites:
		b.BarrierReason = "overwrites the output"
	case eff.readsOutput:
		b.BarrierReason = "reads the output"
	}
	b.Barrier = b.BarrierReason != ""
	return b
}

// declared filters calls down to the declared functions.
func declared(calls map[string]bool, effects map[string]*facts) []string {
	var out []string
	for _, name := range keys(calls) {
		if _, ok := effects[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
