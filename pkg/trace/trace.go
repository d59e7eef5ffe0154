// Package trace records an ordered, scope-nested log of execution steps.
package trace

import (
	"sync"

	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/value"
)

// StepType tags an execution step.
type StepType string

const (
	StepTemplateStart StepType = "TEMPLATE_START"
	StepTemplateEnd   StepType = "TEMPLATE_END"
	StepBlockStart    StepType = "BLOCK_START"
	StepBlockEnd      StepType = "BLOCK_END"
	StepStatement     StepType = "STATEMENT"
	StepLoopIteration StepType = "LOOP_ITERATION"
	StepText          StepType = "TEXT"
)

// Step is one entry of a trace. ParentID is 0 for top-level steps.
type Step struct {
	ID          int                    `json:"id" msgpack:"id"`
	Type        StepType               `json:"type" msgpack:"type"`
	Description string                 `json:"description" msgpack:"description"`
	Input       string                 `json:"input,omitempty" msgpack:"input,omitempty"`
	Output      string                 `json:"output,omitempty" msgpack:"output,omitempty"`
	NodeID      ast.NodeID             `json:"node_id,omitempty" msgpack:"node_id,omitempty"`
	Line        int                    `json:"line,omitempty" msgpack:"line,omitempty"`
	Iteration   int                    `json:"iteration,omitempty" msgpack:"iteration,omitempty"`
	ParentID    int                    `json:"parent_id,omitempty" msgpack:"parent_id,omitempty"`
	Variables   map[string]value.Value `json:"variables,omitempty" msgpack:"variables,omitempty"`

	// Node is the statement of a STATEMENT or LOOP_ITERATION step. It is
	// not exported; NodeID survives serialization.
	Node *ast.StatementNode `json:"-" msgpack:"-"`
}

// Trace is an append-only list of steps plus the scope stack that assigns
// parents. It is safe for concurrent use so a host can read it while the
// render is paused.
type Trace struct {
	mu    sync.RWMutex
	steps []*Step
	byID  map[int]*Step
	scope []int
}

// New returns an empty trace.
func New() *Trace {
	return &Trace{byID: make(map[int]*Step)}
}

// Add appends s as a child of the current scope and returns its id.
func (t *Trace) Add(s Step) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(s)
}

func (t *Trace) add(s Step) int {
	s.ID = len(t.steps) + 1
	if n := len(t.scope); n > 0 {
		s.ParentID = t.scope[n-1]
	}
	if s.Node != nil {
		s.NodeID = s.Node.ID
		if s.Line == 0 {
			s.Line = s.Node.Line
		}
	}
	step := &s
	t.steps = append(t.steps, step)
	t.byID[s.ID] = step
	return s.ID
}

// Begin appends s and opens a scope under it.
func (t *Trace) Begin(s Step) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.add(s)
	t.scope = append(t.scope, id)
	return id
}

// End closes the innermost scope.
func (t *Trace) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.scope); n > 0 {
		t.scope = t.scope[:n-1]
	}
}

// Scope returns the id of the innermost open scope, or 0.
func (t *Trace) Scope() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n := len(t.scope); n > 0 {
		return t.scope[n-1]
	}
	return 0
}

// Depth returns the number of open scopes.
func (t *Trace) Depth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.scope)
}

// Update applies fn to the step with the given id.
func (t *Trace) Update(id int, fn func(*Step)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[id]
	if ok {
		fn(s)
	}
	return ok
}

// Len returns the number of steps.
func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.steps)
}

// Steps returns a copy of every step in order.
func (t *Trace) Steps() []Step {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Step, len(t.steps))
	for i, s := range t.steps {
		out[i] = *s
	}
	return out
}

// Step returns the step with the given id.
func (t *Trace) Step(id int) (Step, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byID[id]
	if !ok {
		return Step{}, false
	}
	return *s, true
}

// Last returns the most recent step.
func (t *Trace) Last() (Step, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.steps) == 0 {
		return Step{}, false
	}
	return *t.steps[len(t.steps)-1], true
}

// Children returns the direct children of the step with the given id.
func (t *Trace) Children(id int) []Step {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Step
	for _, s := range t.steps {
		if s.ParentID == id {
			out = append(out, *s)
		}
	}
	return out
}

// Filter returns the steps of the given type.
func (t *Trace) Filter(typ StepType) []Step {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Step
	for _, s := range t.steps {
		if s.Type == typ {
			out = append(out, *s)
		}
	}
	return out
}

// ForNode returns the steps recorded for a statement node.
func (t *Trace) ForNode(id ast.NodeID) []Step {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Step
	for _, s := range t.steps {
		if s.NodeID == id && s.Type == StepStatement {
			out = append(out, *s)
		}
	}
	return out
}

// Clear removes every step and scope.
func (t *Trace) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = nil
	t.byID = make(map[int]*Step)
	t.scope = nil
}
