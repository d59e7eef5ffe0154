package trace

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/exec"
	"github.com/l3aro/go-template-script/pkg/value"
)

// OutputVar is the accumulator whose growth is recorded as step output.
const OutputVar = "tR"

type frameKind int

const (
	frameTemplate frameKind = iota
	frameBlock
	frameStatement
	frameIteration
)

type frame struct {
	kind   frameKind
	step   int
	node   *ast.StatementNode
	before string
}

// Recorder builds a Trace from executor hooks.
type Recorder struct {
	trace     *Trace
	store     *value.Store
	snapshots bool
	frames    []frame
}

var _ exec.Hooks = (*Recorder)(nil)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSnapshots records a deep copy of the store on every statement step.
func WithSnapshots(enabled bool) RecorderOption {
	return func(r *Recorder) { r.snapshots = enabled }
}

// NewRecorder records into t, reading output and variables from store.
func NewRecorder(t *Trace, store *value.Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{trace: t, store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Trace returns the trace being recorded.
func (r *Recorder) Trace() *Trace { return r.trace }

func (r *Recorder) output() string {
	if r.store == nil {
		return ""
	}
	return r.store.Lookup(OutputVar).Display()
}

func (r *Recorder) variables() map[string]value.Value {
	if !r.snapshots || r.store == nil {
		return nil
	}
	return r.store.Snapshot()
}

func (r *Recorder) push(f frame) {
	r.frames = append(r.frames, f)
}

// unwind closes scopes down to and including the innermost frame accepted
// by match, returning that frame.
func (r *Recorder) unwind(match func(frame) bool) (frame, bool) {
	for i := len(r.frames) - 1; i >= 0; i-- {
		if !match(r.frames[i]) {
			continue
		}
		f := r.frames[i]
		for j := len(r.frames) - 1; j >= i; j-- {
			r.trace.End()
		}
		r.frames = r.frames[:i]
		return f, true
	}
	return frame{}, false
}

// Start opens the TEMPLATE_START scope.
func (r *Recorder) Start(description string) {
	id := r.trace.Begin(Step{Type: StepTemplateStart, Description: description})
	r.push(frame{kind: frameTemplate, step: id})
}

// Finish closes every open scope and records TEMPLATE_END with the final
// output.
func (r *Recorder) Finish(output string, stopped bool) {
	r.unwind(func(f frame) bool { return f.kind == frameTemplate })
	desc := "template rendered"
	if stopped {
		desc = "template stopped"
	}
	r.trace.Add(Step{Type: StepTemplateEnd, Description: desc, Output: output})
}

// Text records a literal document segment copied to the output.
func (r *Recorder) Text(line int, text string) {
	r.trace.Add(Step{Type: StepText, Description: "text", Output: text, Line: line})
}

// BeforeStatement implements exec.Hooks.
func (r *Recorder) BeforeStatement(n *ast.StatementNode) exec.Action {
	id := r.trace.Begin(Step{
		Type:        StepStatement,
		Description: describe(n),
		Input:       n.Code,
		Node:        n,
		Variables:   r.variables(),
	})
	r.push(frame{kind: frameStatement, step: id, node: n, before: r.output()})
	return exec.ActionContinue
}

// AfterStatement implements exec.Hooks.
func (r *Recorder) AfterStatement(n *ast.StatementNode, c exec.Control) {
	f, ok := r.unwind(func(f frame) bool { return f.kind == frameStatement && f.node == n })
	if !ok {
		return
	}
	out := delta(f.before, r.output())
	if n.Type == ast.StatementInterpolation {
		out = c.Value.Display()
	}
	r.trace.Update(f.step, func(s *Step) {
		s.Output = out
		if c.Kind == exec.ControlThrow {
			s.Description += fmt.Sprintf(" (threw %s)", c.Value.Display())
		}
	})
}

// EnterBlock implements exec.Hooks.
func (r *Recorder) EnterBlock(n *ast.StatementNode) {
	id := r.trace.Begin(Step{Type: StepBlockStart, Description: "execution block", Line: n.Line, NodeID: n.ID})
	r.push(frame{kind: frameBlock, step: id, node: n, before: r.output()})
}

// ExitBlock implements exec.Hooks.
func (r *Recorder) ExitBlock(n *ast.StatementNode) {
	f, ok := r.unwind(func(f frame) bool { return f.kind == frameBlock })
	if !ok {
		return
	}
	r.trace.Add(Step{
		Type:        StepBlockEnd,
		Description: "end of execution block",
		Output:      delta(f.before, r.output()),
		Line:        n.Line,
		NodeID:      n.ID,
	})
}

// OnLoopIteration implements exec.Hooks. Steps of the iteration's body are
// nested under the iteration step.
func (r *Recorder) OnLoopIteration(n *ast.StatementNode, iteration int) {
	if k := len(r.frames); k > 0 && r.frames[k-1].kind == frameIteration && r.frames[k-1].node == n {
		r.unwind(func(f frame) bool { return f.kind == frameIteration && f.node == n })
	}
	id := r.trace.Begin(Step{
		Type:        StepLoopIteration,
		Description: fmt.Sprintf("%s iteration %d", n.Type, iteration),
		Input:       n.Code,
		Node:        n,
		Line:        n.Line,
		Iteration:   iteration,
	})
	r.push(frame{kind: frameIteration, step: id, node: n})
}

// delta returns what was appended to the accumulator, or the whole new value
// when it was reset.
func delta(before, after string) string {
	if strings.HasPrefix(after, before) {
		return after[len(before):]
	}
	return after
}

func describe(n *ast.StatementNode) string {
	switch n.Type {
	case ast.StatementFunctionDecl:
		return "declare function " + n.Name
	case ast.StatementInterpolation:
		return "interpolate " + n.Expr
	case ast.StatementIf, ast.StatementFor, ast.StatementForOf, ast.StatementForIn, ast.StatementWhile:
		return string(n.Type) + " " + n.Code
	}
	return string(n.Type)
}
