// Package debug drives line breakpoints and step modes over the executor's
// hooks.
//
// A Session owns the breakpoint set and the step-mode state machine. It is
// installed next to a trace.Recorder; on every statement it decides whether
// to pause, and when it does it hands a DebugBreakpoint to the host's
// Handler and adopts the returned Action.
package debug

import (
	"sort"
	"sync"

	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/exec"
	"github.com/l3aro/go-template-script/pkg/trace"
	"github.com/l3aro/go-template-script/pkg/value"
)

// Action is a step mode, or STOP.
type Action string

const (
	ActionContinue Action = "CONTINUE"
	ActionStepInto Action = "STEP_INTO"
	// ActionStepOver and ActionStepOut do not pause again until the next
	// breakpoint or STEP_INTO; they are not call-depth aware.
	ActionStepOver Action = "STEP_OVER"
	ActionStepOut  Action = "STEP_OUT"
	ActionStop     Action = "STOP"
)

// ParseAction parses an action name, accepting lower case and the short
// forms c, s, n, o and q.
func ParseAction(name string) (Action, bool) {
	switch name {
	case "CONTINUE", "continue", "c":
		return ActionContinue, true
	case "STEP_INTO", "step_into", "step", "s":
		return ActionStepInto, true
	case "STEP_OVER", "step_over", "next", "n":
		return ActionStepOver, true
	case "STEP_OUT", "step_out", "out", "o":
		return ActionStepOut, true
	case "STOP", "stop", "quit", "q":
		return ActionStop, true
	}
	return "", false
}

// DebugBreakpoint is handed to the host on every pause.
type DebugBreakpoint struct {
	Step      trace.Step
	Trace     *trace.Trace
	Node      *ast.StatementNode
	Variables map[string]value.Value
	// Hit is true when the pause was caused by a breakpoint rather than
	// stepping.
	Hit bool
}

// Handler decides how execution continues after a pause.
type Handler func(bp DebugBreakpoint) Action

// Session holds breakpoints and the step mode. Breakpoint methods are safe
// to call from a host goroutine while a render is paused.
type Session struct {
	mu        sync.Mutex
	tree      *ast.TemplateAST
	requested map[int]ast.NodeID // requested line -> resolved node
	pending   map[int]bool       // lines requested before a tree existed
	nodes     map[ast.NodeID]int // resolved node -> number of lines on it
	initial   Action
	mode      Action
	stopped   bool
	pauses    int

	handler Handler
	logger  log.Logger
	trace   *trace.Trace
	store   *value.Store
}

var _ exec.Hooks = (*Session)(nil)

// Option configures a Session.
type Option func(*Session)

// WithHandler sets the pause handler. Without one every pause continues.
func WithHandler(h Handler) Option {
	return func(s *Session) { s.handler = h }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInitialMode sets the mode each render starts in. STEP_INTO pauses on
// the first statement.
func WithInitialMode(a Action) Option {
	return func(s *Session) {
		if a != ActionStop && a != "" {
			s.initial = a
		}
	}
}

// NewSession creates a session in CONTINUE mode with no breakpoints.
func NewSession(opts ...Option) *Session {
	s := &Session{
		requested: make(map[int]ast.NodeID),
		pending:   make(map[int]bool),
		nodes:     make(map[ast.NodeID]int),
		initial:   ActionContinue,
		mode:      ActionContinue,
		logger:    log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mode = s.initial
	return s
}

// SetHandler replaces the pause handler.
func (s *Session) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SetAST installs a freshly built tree and resolves every requested and
// pending line against it. Lines that cannot be resolved are logged and
// dropped.
func (s *Session) SetAST(tree *ast.TemplateAST) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = tree
	lines := make([]int, 0, len(s.requested)+len(s.pending))
	for line := range s.requested {
		lines = append(lines, line)
	}
	for line := range s.pending {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	s.requested = make(map[int]ast.NodeID)
	s.pending = make(map[int]bool)
	s.nodes = make(map[ast.NodeID]int)
	for _, line := range lines {
		n, err := Resolve(tree, line)
		if err != nil {
			s.logger.Warn("dropping breakpoint", "line", line, "error", err)
			continue
		}
		s.add(line, n.ID)
	}
}

// AST returns the installed tree.
func (s *Session) AST() *ast.TemplateAST {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

func (s *Session) add(line int, id ast.NodeID) {
	if old, ok := s.requested[line]; ok {
		s.drop(old)
	}
	s.requested[line] = id
	s.nodes[id]++
}

func (s *Session) drop(id ast.NodeID) {
	if s.nodes[id] <= 1 {
		delete(s.nodes, id)
		return
	}
	s.nodes[id]--
}

// AddBreakpoint places a breakpoint for line. Before any tree is installed
// the line is queued and ok is false. Resolution failures are returned as
// *ResolutionError.
func (s *Session) AddBreakpoint(line int) (id ast.NodeID, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		s.pending[line] = true
		return 0, false, nil
	}
	n, err := Resolve(s.tree, line)
	if err != nil {
		return 0, false, err
	}
	s.add(line, n.ID)
	return n.ID, true, nil
}

// RemoveBreakpoint removes the breakpoint requested for line.
func (s *Session) RemoveBreakpoint(line int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, line)
	if id, ok := s.requested[line]; ok {
		delete(s.requested, line)
		s.drop(id)
	}
}

// ClearBreakpoints removes every breakpoint.
func (s *Session) ClearBreakpoints() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = make(map[int]ast.NodeID)
	s.pending = make(map[int]bool)
	s.nodes = make(map[ast.NodeID]int)
}

// HasBreakpoint reports whether a breakpoint was requested for line.
func (s *Session) HasBreakpoint(line int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.requested[line]
	return ok || s.pending[line]
}

// Breakpoints returns the requested lines, pending and resolved, sorted.
func (s *Session) Breakpoints() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]int, 0, len(s.requested)+len(s.pending))
	for line := range s.requested {
		lines = append(lines, line)
	}
	for line := range s.pending {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// Resolved returns the node a requested line resolved to.
func (s *Session) Resolved(line int) (ast.NodeID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.requested[line]
	return id, ok
}

// IsBreakpoint reports whether node id carries a breakpoint.
func (s *Session) IsBreakpoint(id ast.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes[id] > 0
}

// Begin prepares the session for a render recorded into t over store. The
// mode returns to the initial mode.
func (s *Session) Begin(t *trace.Trace, store *value.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trace = t
	s.store = store
	s.mode = s.initial
	s.stopped = false
	s.pauses = 0
}

// Mode returns the current step mode.
func (s *Session) Mode() Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes the step mode.
func (s *Session) SetMode(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a == ActionStop {
		s.stopped = true
		return
	}
	s.mode = a
}

// Stopped reports whether the host chose STOP during the current render.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Pauses returns the number of pauses in the current render.
func (s *Session) Pauses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses
}

// BeforeStatement implements exec.Hooks. It pauses when the mode is
// STEP_INTO or the node carries a breakpoint.
func (s *Session) BeforeStatement(n *ast.StatementNode) exec.Action {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return exec.ActionStop
	}
	hit := s.nodes[n.ID] > 0
	if s.mode != ActionStepInto && !hit {
		s.mu.Unlock()
		return exec.ActionContinue
	}
	s.pauses++
	handler, t, store := s.handler, s.trace, s.store
	s.mu.Unlock()

	bp := DebugBreakpoint{Trace: t, Node: n, Hit: hit}
	if t != nil {
		if step, ok := t.Last(); ok && step.Type == trace.StepStatement && step.NodeID == n.ID {
			bp.Step = step
		}
	}
	if bp.Step.Type == "" {
		bp.Step = trace.Step{Type: trace.StepStatement, Input: n.Code, NodeID: n.ID, Line: n.Line, Node: n}
	}
	if store != nil {
		bp.Variables = store.Snapshot()
	}

	action := ActionContinue
	if handler != nil {
		action = handler(bp)
	}
	s.logger.Debug("paused", "line", n.Line, "code", n.Code, "action", action)

	s.mu.Lock()
	defer s.mu.Unlock()
	if action == ActionStop {
		s.stopped = true
		return exec.ActionStop
	}
	if action != "" {
		s.mode = action
	}
	return exec.ActionContinue
}

func (s *Session) AfterStatement(*ast.StatementNode, exec.Control) {}
func (s *Session) EnterBlock(*ast.StatementNode)                   {}
func (s *Session) ExitBlock(*ast.StatementNode)                    {}
func (s *Session) OnLoopIteration(*ast.StatementNode, int)         {}
