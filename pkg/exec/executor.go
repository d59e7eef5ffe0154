// Package exec executes statement trees produced by the ast package.
//
// An Executor holds configuration and the memoized statement
// classification; a Run holds the state of one render. Every exec call
// returns a Control so return, break, continue, throw and stop unwind through
// nested blocks and loops without side-channel flags.
package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/value"
)

// DefaultMaxLoopIterations is the iteration ceiling applied to every loop.
const DefaultMaxLoopIterations = 10000

// outputVar is the output accumulator variable.
const outputVar = "tR"

// Executor executes statements. It is safe for concurrent use; each render
// gets its own Run.
type Executor struct {
	eval    *eval.Evaluator
	hooks   Hooks
	logger  log.Logger
	maxLoop int
	kinds   sync.Map // statement text -> *simple
}

// Option configures an Executor.
type Option func(*Executor)

// WithHooks sets the hooks used by runs started without their own.
func WithHooks(h Hooks) Option {
	return func(x *Executor) {
		if h != nil {
			x.hooks = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(x *Executor) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithMaxLoopIterations sets the loop iteration ceiling.
func WithMaxLoopIterations(n int) Option {
	return func(x *Executor) {
		if n > 0 {
			x.maxLoop = n
		}
	}
}

// New creates an Executor evaluating expressions with ev.
func New(ev *eval.Evaluator, opts ...Option) *Executor {
	if ev == nil {
		ev = eval.New()
	}
	x := &Executor{
		eval:    ev,
		hooks:   NopHooks{},
		logger:  ev.Logger(),
		maxLoop: DefaultMaxLoopIterations,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Evaluator returns the expression evaluator.
func (x *Executor) Evaluator() *eval.Evaluator { return x.eval }

// MaxLoopIterations returns the loop iteration ceiling.
func (x *Executor) MaxLoopIterations() int { return x.maxLoop }

func (x *Executor) classify(code string) *simple {
	if s, ok := x.kinds.Load(code); ok {
		return s.(*simple)
	}
	s := classify(code)
	x.kinds.Store(code, s)
	return s
}

// Start begins a run over env and installs it as env's function invoker. A
// nil hooks uses the executor's hooks.
func (x *Executor) Start(env *eval.Env, hooks Hooks) *Run {
	if hooks == nil {
		hooks = x.hooks
	}
	if env.Ctx == nil {
		env.Ctx = context.Background()
	}
	r := &Run{x: x, env: env, hooks: hooks}
	env.Invoker = r
	return r
}

// Run executes nodes in a fresh run and returns the final control and the
// reason the run stopped early, if any.
func (x *Executor) Run(env *eval.Env, nodes []*ast.StatementNode) (Control, error) {
	r := x.Start(env, nil)
	c := r.Exec(nodes)
	return c, r.Err()
}

// Run is the state of one execution. It is not safe for concurrent use.
type Run struct {
	x     *Executor
	env   *eval.Env
	hooks Hooks
	frame *frame

	// tryDepth counts enclosing try statements that have a catch clause.
	// Evaluation faults only become throws inside one.
	tryDepth int
	stopped  bool
	err      error
	warned   map[*ast.StatementNode]bool
}

var halted = Control{Kind: ControlStop}

// Env returns the run's environment.
func (r *Run) Env() *eval.Env { return r.env }

// Stopped reports whether a hook or cancellation halted the run.
func (r *Run) Stopped() bool { return r.stopped }

// Err returns ErrStopped or the context error that halted the run.
func (r *Run) Err() error { return r.err }

func (r *Run) halt(err error) {
	if !r.stopped {
		r.stopped = true
		r.err = err
	}
}

// Exec executes a statement list. Function declarations are bound before
// the first statement runs.
func (r *Run) Exec(nodes []*ast.StatementNode) Control {
	r.hoist(nodes)
	for _, n := range nodes {
		if c := r.exec(n); !c.Normal() {
			return c
		}
	}
	return normal
}

// Interpolate executes an interpolation node and returns its value.
func (r *Run) Interpolate(n *ast.StatementNode) (value.Value, Control) {
	c := r.exec(n)
	return c.Value, c
}

func (r *Run) exec(n *ast.StatementNode) Control {
	if r.stopped {
		return halted
	}
	if err := r.env.Ctx.Err(); err != nil {
		r.halt(err)
		return halted
	}
	tracked := !n.Dynamic()
	switch n.Type {
	case ast.StatementComment:
		return normal
	case ast.StatementBlockStart:
		if tracked {
			r.hooks.EnterBlock(n)
		}
		return normal
	case ast.StatementBlockEnd:
		if tracked {
			r.hooks.ExitBlock(n)
		}
		return normal
	}
	if tracked && r.hooks.BeforeStatement(n) == ActionStop {
		r.halt(ErrStopped)
		return halted
	}
	c := r.guard(n)
	if r.stopped {
		c = halted
	}
	if tracked {
		r.hooks.AfterStatement(n, c)
	}
	return c
}

// guard executes n, turning a panic into a throw.
func (r *Run) guard(n *ast.StatementNode) (c Control) {
	defer func() {
		if p := recover(); p != nil {
			r.x.logger.Warn("statement panicked", "line", n.Line, "code", n.Code, "panic", p)
			c = Control{Kind: ControlThrow, Value: thrown(fmt.Errorf("%w: %v", eval.ErrPanic, p))}
		}
	}()
	return r.statement(n)
}

func (r *Run) statement(n *ast.StatementNode) Control {
	switch n.Type {
	case ast.StatementExpression:
		r.unsupported(n)
		return r.simple(n.Code)
	case ast.StatementVarDecl, ast.StatementAssignment, ast.StatementReturn:
		return r.simple(n.Code)
	case ast.StatementIf:
		return r.ifChain(n)
	case ast.StatementFor:
		return r.forLoop(n)
	case ast.StatementForOf:
		return r.forOf(n)
	case ast.StatementForIn:
		return r.forIn(n)
	case ast.StatementWhile:
		return r.whileLoop(n)
	case ast.StatementFunctionDecl:
		return normal
	case ast.StatementBreak:
		return Control{Kind: ControlBreak}
	case ast.StatementContinue:
		return Control{Kind: ControlContinue}
	case ast.StatementThrow:
		v, c := r.value(n.Expr)
		if !c.Normal() {
			return c
		}
		return Control{Kind: ControlThrow, Value: v}
	case ast.StatementTry:
		return r.try(n)
	case ast.StatementBlock:
		return r.block(n.Body)
	case ast.StatementInterpolation:
		v, c := r.value(n.Expr)
		if !c.Normal() {
			return c
		}
		return Control{Kind: ControlNormal, Value: v}
	}
	return normal
}

// unsupported warns once per statement about constructs that are evaluated
// as opaque expressions.
func (r *Run) unsupported(n *ast.StatementNode) {
	switch w := ast.FirstWord(n.Code); w {
	case "do", "switch", "class":
		if r.warned[n] {
			return
		}
		if r.warned == nil {
			r.warned = make(map[*ast.StatementNode]bool)
		}
		r.warned[n] = true
		r.x.logger.Warn("unsupported statement is evaluated as an expression", "line", n.Line, "keyword", w, "code", n.Code)
	}
}

// value evaluates expr and converts a pending fault into a control.
func (r *Run) value(expr string) (value.Value, Control) {
	v := r.x.eval.Evaluate(r.env, expr)
	if c := r.settle(); !c.Normal() {
		return value.Null(), c
	}
	return v, normal
}

// settle consumes the pending fault, if any.
func (r *Run) settle() Control {
	if r.stopped {
		return halted
	}
	if err := r.env.TakeFault(); err != nil {
		return r.fault(err)
	}
	return normal
}

func (r *Run) fault(err error) Control {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.halt(err)
		return halted
	}
	var te *ThrowError
	if errors.As(err, &te) || r.tryDepth > 0 {
		return Control{Kind: ControlThrow, Value: thrown(err)}
	}
	r.x.logger.Debug("evaluation failed", "error", err)
	return normal
}

// declare binds a local name, remembering its outer value inside a call.
func (r *Run) declare(name string, v value.Value) {
	if r.frame != nil {
		r.frame.remember(r.env.Store, name)
	}
	r.env.Store.Set(name, v)
}

func (r *Run) hoist(nodes []*ast.StatementNode) {
	for _, n := range nodes {
		if n.Type == ast.StatementFunctionDecl && n.Name != "" {
			r.declare(n.Name, function(n))
		}
	}
}

func function(n *ast.StatementNode) value.Value {
	return value.FunctionOf(&value.Function{
		Name:     n.Name,
		Params:   n.Params,
		Defaults: n.Defaults,
		Body:     n.Body,
		Source:   n.Code,
	})
}

// Invoke implements eval.Invoker for functions with a statement body.
func (r *Run) Invoke(env *eval.Env, fn *value.Function, args []value.Value) value.Value {
	if r.stopped {
		return value.Null()
	}
	if err := env.Ctx.Err(); err != nil {
		r.halt(err)
		return value.Null()
	}
	pending := env.TakeFault()
	outer := r.frame
	r.frame = &frame{}
	env.Depth++
	restore := r.x.eval.BindParams(env, fn, args)
	c := r.Exec(fn.Body)
	r.frame.restore(env.Store)
	restore()
	env.Depth--
	r.frame = outer

	env.Fault = pending
	switch c.Kind {
	case ControlReturn:
		return c.Value
	case ControlThrow:
		env.Fault = &ThrowError{Value: c.Value}
	}
	return value.Null()
}

// frame remembers the outer bindings of names declared inside a call.
type frame struct {
	saved map[string]value.Value
	unset map[string]bool
}

func (f *frame) remember(store *value.Store, name string) {
	if _, ok := f.saved[name]; ok || f.unset[name] {
		return
	}
	if v, ok := store.Get(name); ok {
		if f.saved == nil {
			f.saved = make(map[string]value.Value)
		}
		f.saved[name] = v
		return
	}
	if f.unset == nil {
		f.unset = make(map[string]bool)
	}
	f.unset[name] = true
}

func (f *frame) restore(store *value.Store) {
	for name, v := range f.saved {
		store.Set(name, v)
	}
	for name := range f.unset {
		store.Delete(name)
	}
}

// scoped saves the current bindings of names and returns a func that
// restores them.
func (r *Run) scoped(names []string) func() {
	if len(names) == 0 {
		return func() {}
	}
	f := &frame{}
	for _, name := range names {
		f.remember(r.env.Store, name)
	}
	return func() { f.restore(r.env.Store) }
}
