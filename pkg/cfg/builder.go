package cfg

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/dfg"
)

// tail is an outgoing edge whose target is not known yet.
type tail struct {
	from  string
	typ   EdgeType
	label string
}

type loopCtx struct {
	start string
	exits []string
}

type tryCtx struct {
	throws []string
}

type fnCtx struct {
	scope  *FunctionScope
	leaves []string
}

type builder struct {
	g          *ControlFlowGraph
	tree       *ast.TemplateAST
	next       int
	loops      []*loopCtx
	tries      []*tryCtx
	fn         *fnCtx
	exits      []string
	decisions  int
	labelLimit int
	logger     log.Logger
}

// Option configures Build.
type Option func(*builder)

// WithLabelLimit clips node labels to n bytes.
func WithLabelLimit(n int) Option {
	return func(b *builder) { b.labelLimit = n }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(b *builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Build emits the graph of tree. When analysis is given, its multi-block
// batches become FORK/JOIN regions; otherwise top-level statements are
// chained in order.
func Build(tree *ast.TemplateAST, analysis *dfg.Analysis, opts ...Option) *ControlFlowGraph {
	b := &builder{
		g: &ControlFlowGraph{
			Nodes:          []FlowNode{},
			Edges:          []FlowEdge{},
			ParallelGroups: []ParallelGroup{},
			FunctionScopes: []FunctionScope{},
		},
		tree:   tree,
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}

	start := b.node(NodeStart, "start", nil)
	tails := []tail{{from: start, typ: EdgeNormal}}
	switch {
	case analysis != nil && len(analysis.Batches) > 0:
		for _, batch := range analysis.Batches {
			if batch.Parallel() {
				tails = b.parallel(analysis, batch, tails)
				continue
			}
			if n := b.blockNode(analysis.Blocks[batch.Blocks[0]]); n != nil {
				tails = b.stmt(n, tails)
			}
		}
	case tree != nil:
		tails = b.seq(tree.Roots, tails)
	}
	end := b.node(NodeEnd, "end", nil)
	b.link(tails, end)
	for _, id := range b.exits {
		b.edge(id, end, EdgeNormal, "")
	}
	b.g.CyclomaticComplexity = b.decisions + 1
	b.logger.Debug("built control-flow graph", "nodes", len(b.g.Nodes), "edges", len(b.g.Edges), "parallel_groups", len(b.g.ParallelGroups))
	return b.g
}

func (b *builder) blockNode(ba dfg.BlockAnalysis) *ast.StatementNode {
	if ba.Node != nil || b.tree == nil {
		return ba.Node
	}
	n, _ := b.tree.Node(ba.NodeID)
	return n
}

func (b *builder) parallel(analysis *dfg.Analysis, batch dfg.Batch, in []tail) []tail {
	fork := b.node(NodeFork, fmt.Sprintf("fork %d blocks", len(batch.Blocks)), nil)
	b.link(in, fork)
	group := ParallelGroup{Fork: fork, Explanation: batch.Rationale}
	var joined []tail
	for _, i := range batch.Blocks {
		n := b.blockNode(analysis.Blocks[i])
		if n == nil {
			continue
		}
		group.Blocks = append(group.Blocks, n.ID)
		joined = append(joined, b.stmt(n, []tail{{from: fork, typ: EdgeParallel}})...)
	}
	join := b.node(NodeJoin, "join", nil)
	for _, t := range joined {
		if t.typ == EdgeNormal {
			t.typ = EdgeParallel
		}
		b.edge(t.from, join, t.typ, t.label)
	}
	group.Join = join
	b.g.ParallelGroups = append(b.g.ParallelGroups, group)
	return []tail{{from: join, typ: EdgeNormal}}
}

func (b *builder) node(t NodeType, label string, n *ast.StatementNode) string {
	if n == nil {
		return b.nodeAt(t, label, 0, 0)
	}
	return b.nodeAt(t, label, n.ID, n.Line)
}

func (b *builder) nodeAt(t NodeType, label string, id ast.NodeID, line int) string {
	b.next++
	fn := FlowNode{
		ID:      fmt.Sprintf("n%d", b.next),
		Type:    t,
		Label:   b.clip(label),
		Line:    line,
		ASTNode: id,
	}
	if b.fn != nil {
		fn.Scope = b.fn.scope.ID
		b.fn.scope.Nodes = append(b.fn.scope.Nodes, fn.ID)
	}
	b.g.Nodes = append(b.g.Nodes, fn)
	return fn.ID
}

func (b *builder) clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if b.labelLimit > 3 && len(s) > b.labelLimit {
		return s[:b.labelLimit-3] + "..."
	}
	return s
}

func (b *builder) edge(from, to string, t EdgeType, label string) {
	b.g.Edges = append(b.g.Edges, FlowEdge{From: from, To: to, Type: t, Label: label})
}

func (b *builder) link(tails []tail, to string) {
	for _, t := range tails {
		b.edge(t.from, to, t.typ, t.label)
	}
}

// leave routes a return, throw or stray jump out of the current function,
// or to the end of the script at top level.
func (b *builder) leave(id string) {
	if b.fn != nil {
		b.fn.leaves = append(b.fn.leaves, id)
		return
	}
	b.exits = append(b.exits, id)
}

func (b *builder) seq(nodes []*ast.StatementNode, in []tail) []tail {
	for _, n := range nodes {
		in = b.stmt(n, in)
	}
	return in
}

func (b *builder) stmt(n *ast.StatementNode, in []tail) []tail {
	switch n.Type {
	case ast.StatementComment, ast.StatementBlockStart, ast.StatementBlockEnd:
		return in
	case ast.StatementIf:
		return b.ifChain(n, in)
	case ast.StatementFor, ast.StatementForOf, ast.StatementForIn, ast.StatementWhile:
		return b.loop(n, in)
	case ast.StatementFunctionDecl:
		d := b.node(NodeFunctionDecl, n.Code, n)
		b.link(in, d)
		b.function(n, d)
		return []tail{{from: d, typ: EdgeNormal}}
	case ast.StatementReturn:
		id := b.node(NodeReturn, n.Code, n)
		b.link(in, id)
		b.leave(id)
		return nil
	case ast.StatementThrow:
		id := b.node(NodeThrow, n.Code, n)
		b.link(in, id)
		if k := len(b.tries); k > 0 {
			b.tries[k-1].throws = append(b.tries[k-1].throws, id)
		} else {
			b.leave(id)
		}
		return nil
	case ast.StatementBreak:
		id := b.node(NodeBreak, n.Code, n)
		b.link(in, id)
		if k := len(b.loops); k > 0 {
			b.loops[k-1].exits = append(b.loops[k-1].exits, id)
		} else {
			b.leave(id)
		}
		return nil
	case ast.StatementContinue:
		id := b.node(NodeContinue, n.Code, n)
		b.link(in, id)
		if k := len(b.loops); k > 0 {
			b.edge(id, b.loops[k-1].start, EdgeLoopBack, "continue")
		} else {
			b.leave(id)
		}
		return nil
	case ast.StatementTry:
		return b.try(n, in)
	case ast.StatementBlock:
		return b.seq(n.Body, in)
	case ast.StatementInterpolation:
		id := b.node(NodeInterpolation, n.Expr, n)
		b.link(in, id)
		return []tail{{from: id, typ: EdgeNormal}}
	default:
		id := b.node(NodeStatement, n.Code, n)
		b.link(in, id)
		return []tail{{from: id, typ: EdgeNormal}}
	}
}

func (b *builder) ifChain(n *ast.StatementNode, in []tail) []tail {
	cond := b.node(NodeCondition, n.Code, n)
	b.decisions++
	b.link(in, cond)
	out := b.seq(n.Body, []tail{{from: cond, typ: EdgeTrue, label: n.Condition}})
	next := &tail{from: cond, typ: EdgeFalse, label: n.Condition}
	for _, br := range n.ElseBranches {
		if br.IsElse() {
			out = append(out, b.seq(br.Body, []tail{*next})...)
			next = nil
			break
		}
		c := b.nodeAt(NodeCondition, "else if ("+br.Condition+")", n.ID, br.Line)
		b.decisions++
		b.link([]tail{*next}, c)
		out = append(out, b.seq(br.Body, []tail{{from: c, typ: EdgeTrue, label: br.Condition}})...)
		next = &tail{from: c, typ: EdgeFalse, label: br.Condition}
	}
	if next != nil {
		out = append(out, *next)
	}
	if len(out) == 0 {
		return nil
	}
	merge := b.nodeAt(NodeMerge, "merge", n.ID, 0)
	b.link(out, merge)
	return []tail{{from: merge, typ: EdgeNormal}}
}

func (b *builder) loop(n *ast.StatementNode, in []tail) []tail {
	start := b.node(NodeLoopStart, n.Code, n)
	b.decisions++
	b.link(in, start)
	ctx := &loopCtx{start: start}
	b.loops = append(b.loops, ctx)
	body := b.seq(n.Body, []tail{{from: start, typ: EdgeNormal}})
	b.loops = b.loops[:len(b.loops)-1]
	for _, t := range body {
		b.edge(t.from, start, EdgeLoopBack, "")
	}
	end := b.nodeAt(NodeLoopEnd, "end "+string(n.Type), n.ID, 0)
	b.edge(start, end, EdgeLoopExit, "")
	for _, id := range ctx.exits {
		b.edge(id, end, EdgeLoopExit, "break")
	}
	return []tail{{from: end, typ: EdgeNormal}}
}

func (b *builder) try(n *ast.StatementNode, in []tail) []tail {
	t := b.node(NodeTry, "try", n)
	b.link(in, t)
	var ctx *tryCtx
	if n.HasCatch {
		ctx = &tryCtx{}
		b.tries = append(b.tries, ctx)
	}
	out := b.seq(n.Body, []tail{{from: t, typ: EdgeNormal}})
	if n.HasCatch {
		b.tries = b.tries[:len(b.tries)-1]
		label := "catch"
		if n.CatchParam != "" {
			label = "catch (" + n.CatchParam + ")"
		}
		c := b.nodeAt(NodeCatch, label, n.ID, 0)
		b.decisions++
		b.edge(t, c, EdgeNormal, "error")
		for _, id := range ctx.throws {
			b.edge(id, c, EdgeNormal, "throw")
		}
		out = append(out, b.seq(n.CatchBody, []tail{{from: c, typ: EdgeNormal}})...)
	}
	if len(n.FinallyBody) > 0 {
		out = b.seq(n.FinallyBody, out)
	}
	return out
}

// function emits the body of a declared function as its own region. Loop,
// try and decision state do not cross the function boundary.
func (b *builder) function(n *ast.StatementNode, decl string) {
	savedFn, savedLoops, savedTries, savedDecisions := b.fn, b.loops, b.tries, b.decisions
	idx := len(b.g.FunctionScopes)
	scope := &FunctionScope{ID: fmt.Sprintf("f%d", idx+1), Name: n.Name, Line: n.Line, Decl: decl, Nodes: []string{}}
	b.g.FunctionScopes = append(b.g.FunctionScopes, FunctionScope{})
	b.fn, b.loops, b.tries, b.decisions = &fnCtx{scope: scope}, nil, nil, 0

	entry := b.node(NodeFunctionEntry, n.Name+"("+strings.Join(n.Params, ", ")+")", n)
	out := b.seq(n.Body, []tail{{from: entry, typ: EdgeNormal}})
	exit := b.nodeAt(NodeFunctionExit, "exit "+n.Name, n.ID, 0)
	b.link(out, exit)
	for _, id := range b.fn.leaves {
		b.edge(id, exit, EdgeNormal, "")
	}
	scope.Entry, scope.Exit = entry, exit
	scope.Complexity = b.decisions + 1
	b.g.FunctionScopes[idx] = *scope

	b.fn, b.loops, b.tries, b.decisions = savedFn, savedLoops, savedTries, savedDecisions
}
