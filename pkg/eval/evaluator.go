// Package eval evaluates script expressions against a variable store.
//
// Expressions are decomposed top-down in a fixed order: literals and bound
// identifiers first, then a compiled program from the expression cache when
// one is attached, then unary operators, arrow functions, the ternary,
// logical, comparison and arithmetic operators, literals, member and call
// chains, and finally a lenient fallback that returns the raw text.
// Evaluation never fails: problems yield null and are recorded on the Env so
// the executor can surface them to try/catch.
package eval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/value"
)

// DefaultMaxDepth bounds nested function calls.
const DefaultMaxDepth = 200

// Env is the per-render evaluation environment.
type Env struct {
	Ctx     context.Context
	Store   *value.Store
	Invoker Invoker

	// Fault holds the first failure recorded since it was last cleared.
	Fault error

	// Depth is the current function call depth.
	Depth int
}

// NewEnv returns an environment over store.
func NewEnv(ctx context.Context, store *value.Store) *Env {
	if store == nil {
		store = value.NewStore()
	}
	return &Env{Ctx: ctx, Store: store}
}

// Fail records err unless a fault is already pending.
func (env *Env) Fail(err error) {
	if env.Fault == nil {
		env.Fault = err
	}
}

// TakeFault returns and clears the pending fault.
func (env *Env) TakeFault() error {
	err := env.Fault
	env.Fault = nil
	return err
}

func (env *Env) context() context.Context {
	if env.Ctx == nil {
		return context.Background()
	}
	return env.Ctx
}

// builtinFunc is a native function that can call back into the evaluator.
type builtinFunc func(env *Env, args []value.Value) value.Value

// Evaluator evaluates expressions. It holds no per-render state and is safe
// for concurrent use by renders with distinct Envs.
type Evaluator struct {
	modules     ModuleExecutor
	frontmatter FrontmatterAccessor
	namespace   string
	cache       *ExprCache
	logger      log.Logger
	maxDepth    int
	now         func() time.Time

	globals   map[string]value.Value
	natives   map[*value.Function]builtinFunc
	callables map[*value.Object]builtinFunc
	bodies    sync.Map // function body text -> []*ast.StatementNode
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithModules sets the capability module executor.
func WithModules(m ModuleExecutor) Option {
	return func(e *Evaluator) { e.modules = m }
}

// WithFrontmatter sets the frontmatter accessor.
func WithFrontmatter(f FrontmatterAccessor) Option {
	return func(e *Evaluator) { e.frontmatter = f }
}

// WithNamespace sets the module namespace root, "tp" by default.
func WithNamespace(ns string) Option {
	return func(e *Evaluator) {
		if ns != "" {
			e.namespace = ns
		}
	}
}

// WithCache attaches a compiled-expression cache. A nil cache disables it.
func WithCache(c *ExprCache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithLogger sets the logger used for console output and diagnostics.
func WithLogger(l log.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxDepth sets the call depth ceiling.
func WithMaxDepth(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithClock overrides the time source used by Date.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		namespace: DefaultNamespace,
		logger:    log.Discard(),
		maxDepth:  DefaultMaxDepth,
		now:       time.Now,
		natives:   make(map[*value.Function]builtinFunc),
		callables: make(map[*value.Object]builtinFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.globals = e.builtins()
	return e
}

// Namespace returns the module namespace root.
func (e *Evaluator) Namespace() string { return e.namespace }

// Cache returns the attached expression cache, or nil.
func (e *Evaluator) Cache() *ExprCache { return e.cache }

// Logger returns the evaluator's logger.
func (e *Evaluator) Logger() log.Logger { return e.logger }

// MaxDepth returns the call depth ceiling.
func (e *Evaluator) MaxDepth() int { return e.maxDepth }

// Eval evaluates expr against store without a statement executor.
func (e *Evaluator) Eval(ctx context.Context, expr string, store *value.Store) value.Value {
	return e.Evaluate(NewEnv(ctx, store), expr)
}

// Evaluate evaluates expr. It never fails; failures yield null and are
// recorded with env.Fail.
func (e *Evaluator) Evaluate(env *Env, expr string) (result value.Value) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("evaluation panicked", "expr", expr, "panic", r)
			env.Fail(fmt.Errorf("%w: %v", ErrPanic, r))
			result = value.Null()
		}
	}()
	return e.eval(env, expr)
}

func (e *Evaluator) eval(env *Env, expr string) value.Value {
	s := strings.TrimSpace(expr)
	if v, ok := e.fast(env, s); ok {
		return v
	}
	if e.cache != nil {
		if p := e.cache.program(e.namespace, s, env.Store); p != nil {
			return e.run(env, p)
		}
	}
	return e.evalForm(env, parseForm(s))
}

// fast handles digits, keyword constants and bound identifiers without
// parsing.
func (e *Evaluator) fast(env *Env, s string) (value.Value, bool) {
	if s == "" {
		return value.Null(), true
	}
	if allDigits(s) {
		return value.Number(value.ParseNumber(s)), true
	}
	if v, ok := constants[s]; ok {
		return v, true
	}
	if ast.IsIdentifier(s) {
		if v, ok := env.Store.Get(s); ok {
			return v, true
		}
	}
	return value.Null(), false
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return len(s) > 0
}

// resolve looks name up in the store, then in the globals.
func (e *Evaluator) resolve(env *Env, name string) (value.Value, bool) {
	if v, ok := env.Store.Get(name); ok {
		return v, true
	}
	v, ok := e.globals[name]
	return v, ok
}

func (e *Evaluator) lookup(env *Env, name string) value.Value {
	v, _ := e.resolve(env, name)
	return v
}

func (e *Evaluator) typeOfName(env *Env, name string) string {
	if v, ok := e.resolve(env, name); ok {
		return v.TypeOf()
	}
	return "undefined"
}

func (e *Evaluator) typeOf(env *Env, operand string) string {
	if operand == "undefined" {
		return "undefined"
	}
	if ast.IsIdentifier(operand) {
		return e.typeOfName(env, operand)
	}
	return e.eval(env, operand).TypeOf()
}

func (e *Evaluator) evalForm(env *Env, f form) value.Value {
	switch f.kind {
	case formLiteral, formRaw:
		return f.lit
	case formIdent:
		return e.lookup(env, f.text)
	case formNot:
		return value.Bool(!e.eval(env, f.sub[0]).Truthy())
	case formTypeof:
		return value.String(e.typeOf(env, f.sub[0]))
	case formArrow:
		return e.closure(f)
	case formTernary:
		if e.eval(env, f.sub[0]).Truthy() {
			return e.eval(env, f.sub[1])
		}
		return e.eval(env, f.sub[2])
	case formLogical:
		l := e.eval(env, f.sub[0])
		switch f.op {
		case "&&":
			if !l.Truthy() {
				return l
			}
		case "||":
			if l.Truthy() {
				return l
			}
		case "??":
			if !l.IsNull() {
				return l
			}
		}
		return e.eval(env, f.sub[1])
	case formCompare, formArith:
		return binary(f.op, e.eval(env, f.sub[0]), e.eval(env, f.sub[1]))
	case formUnary:
		return unary(f.op, e.eval(env, f.sub[0]))
	case formTemplate:
		var sb strings.Builder
		for _, p := range f.tmpl {
			if p.expr {
				sb.WriteString(e.eval(env, p.text).String())
			} else {
				sb.WriteString(p.text)
			}
		}
		return value.String(sb.String())
	case formArray:
		return value.NewArray(e.list(env, f.sub)...)
	case formObject:
		return e.object(env, f.props)
	case formParen:
		return e.eval(env, f.sub[0])
	case formChain:
		return e.evalChain(env, f.chain)
	}
	return value.Null()
}

// closure builds a function value from an arrow or function expression.
// Free variables are late-bound: the body reads the store when called.
func (e *Evaluator) closure(f form) value.Value {
	a := f.fn
	fn := &value.Function{
		Name:     a.name,
		Params:   a.params,
		Defaults: a.defaults,
		Source:   f.text,
	}
	if a.block {
		fn.Body = e.body(a.body)
	} else {
		fn.Expr = a.expr
	}
	return value.FunctionOf(fn)
}

// body builds the statement list of a function body once per distinct text.
func (e *Evaluator) body(src string) []*ast.StatementNode {
	if nodes, ok := e.bodies.Load(src); ok {
		return nodes.([]*ast.StatementNode)
	}
	nodes := ast.BuildDynamic(src)
	e.bodies.Store(src, nodes)
	return nodes
}

// list evaluates element or argument texts, expanding ...spread.
func (e *Evaluator) list(env *Env, texts []string) []value.Value {
	out := make([]value.Value, 0, len(texts))
	for _, t := range texts {
		if t == "" {
			continue
		}
		if strings.HasPrefix(t, "...") {
			out = append(out, spread(e.eval(env, t[3:]))...)
			continue
		}
		out = append(out, e.eval(env, t))
	}
	return out
}

func spread(v value.Value) []value.Value {
	switch v.Kind() {
	case value.KindArray:
		return append([]value.Value(nil), v.Array().Items...)
	case value.KindString:
		var out []value.Value
		for _, r := range v.Str() {
			out = append(out, value.String(string(r)))
		}
		return out
	}
	return nil
}

func (e *Evaluator) object(env *Env, props []prop) value.Value {
	o := value.NewObject()
	for _, p := range props {
		switch {
		case p.spread:
			src := e.eval(env, p.value)
			switch src.Kind() {
			case value.KindObject:
				for _, k := range src.Object().Keys() {
					v, _ := src.Object().Get(k)
					o.Set(k, v)
				}
			case value.KindArray:
				for i, it := range src.Array().Items {
					o.Set(value.Int(i).String(), it)
				}
			}
		case p.computed:
			o.Set(e.eval(env, p.key).String(), e.eval(env, p.value))
		default:
			o.Set(p.key, e.eval(env, p.value))
		}
	}
	return value.ObjectOf(o)
}

func (e *Evaluator) member(env *Env, obj, key value.Value) value.Value {
	v, err := Member(obj, key)
	if err != nil {
		env.Fail(err)
	}
	return v
}

func (e *Evaluator) evalChain(env *Env, c *chain) value.Value {
	var cur value.Value
	switch c.kind {
	case baseIdent:
		v, ok := e.resolve(env, c.base)
		if !ok {
			if c.base == e.namespace || c.hasCall() {
				return e.evalModule(env, c)
			}
			if len(c.accs) > 0 && !c.accs[0].optional {
				env.Fail(fmt.Errorf("%w: %s is not defined", ErrNullAccess, c.base))
			}
			return value.Null()
		}
		cur = v
	case baseParen, baseLiteral:
		cur = e.eval(env, c.base)
	case baseNew:
		cur = e.construct(env, c.base, e.list(env, c.args))
	}
	return e.walk(env, cur, c.accs)
}

// walk applies accessors to cur. A member access directly followed by a
// call is a method call on cur.
func (e *Evaluator) walk(env *Env, cur value.Value, accs []accessor) value.Value {
	for i := 0; i < len(accs); i++ {
		a := accs[i]
		if a.optional && cur.IsNull() {
			return value.Null()
		}
		switch a.kind {
		case accProp, accIndex:
			key := value.String(a.name)
			if a.kind == accIndex {
				key = e.eval(env, a.expr)
			}
			if i+1 < len(accs) && accs[i+1].kind == accCall {
				next := accs[i+1]
				if next.optional {
					if m, _ := Member(cur, key); m.IsNull() && !hasMethod(cur, key.String()) {
						return value.Null()
					}
				}
				cur = e.callMethod(env, cur, key.String(), e.list(env, next.args))
				i++
				continue
			}
			cur = e.member(env, cur, key)
		case accCall:
			cur = e.Call(env, cur, e.list(env, a.args))
		}
	}
	return cur
}

// evalModule dispatches a chain rooted at the module namespace or at an
// unresolved identifier to the module executor.
func (e *Evaluator) evalModule(env *Env, c *chain) value.Value {
	accs := c.accs
	var call ModuleCall
	limit := len(accs)
	if c.base == e.namespace {
		call.Namespace = c.base
		if len(accs) > 0 && accs[0].kind == accProp && accs[0].name == "frontmatter" {
			return e.frontmatterChain(env, accs[1:])
		}
		limit = 2
	} else {
		call.Path = []string{c.base}
	}
	i := 0
	for i < len(accs) && i < limit && accs[i].kind == accProp {
		call.Path = append(call.Path, accs[i].name)
		i++
	}
	if len(call.Path) == 0 {
		return value.Null()
	}
	if i < len(accs) && accs[i].kind == accCall {
		call.Args = e.list(env, accs[i].args)
		i++
	} else {
		call.Property = true
	}
	return e.walk(env, e.callModule(env, call), accs[i:])
}

func (e *Evaluator) callModule(env *Env, call ModuleCall) value.Value {
	if e.modules == nil {
		e.logger.Debug("no module executor", "call", call.Name())
		return value.Null()
	}
	res := e.modules.ExecuteModule(env.context(), call)
	switch res.Status {
	case StatusOK:
		return res.Value
	case StatusCancelled:
		e.logger.Debug("module call cancelled", "call", call.Name())
	default:
		e.logger.Warn("module call failed", "call", call.Name(), "error", res.Err)
		env.Fail(fmt.Errorf("%w: %s: %v", ErrModule, call.Name(), res.Err))
	}
	return value.Null()
}

// frontmatterChain reads <namespace>.frontmatter.<path>. Property accessors
// not followed by a call form the lookup path.
func (e *Evaluator) frontmatterChain(env *Env, accs []accessor) value.Value {
	if e.frontmatter == nil {
		return value.Null()
	}
	var path []string
	i := 0
	for i < len(accs) && accs[i].kind == accProp && !(i+1 < len(accs) && accs[i+1].kind == accCall) {
		path = append(path, accs[i].name)
		i++
	}
	var v value.Value
	if len(path) == 0 {
		v = value.ObjectOf(value.ObjectFromMap(e.frontmatter.GetAll()))
	} else if got, ok := e.frontmatter.GetValue(path); ok {
		v = got
	}
	return e.walk(env, v, accs[i:])
}

// Call calls fn with args. Native functions run directly, expression-bodied
// functions are evaluated here and statement bodies go to env.Invoker.
func (e *Evaluator) Call(env *Env, callee value.Value, args []value.Value) value.Value {
	if callee.Kind() == value.KindObject {
		if impl, ok := e.callables[callee.Object()]; ok {
			return impl(env, args)
		}
	}
	fn := callee.Func()
	if fn == nil {
		env.Fail(fmt.Errorf("%w: %s", ErrNotFunction, callee.TypeOf()))
		return value.Null()
	}
	if impl, ok := e.natives[fn]; ok {
		return impl(env, args)
	}
	if fn.Native != nil {
		return fn.Native(args)
	}
	if fn.Expr == "" && len(fn.Body) == 0 {
		return value.Null()
	}
	if env.Depth >= e.maxDepth {
		e.logger.Warn("call depth exceeded", "function", fn.Name, "depth", env.Depth)
		env.Fail(ErrCallDepth)
		return value.Null()
	}
	if fn.Expr == "" {
		if env.Invoker == nil {
			env.Fail(ErrNoInvoker)
			return value.Null()
		}
		return env.Invoker.Invoke(env, fn, args)
	}
	if err := env.context().Err(); err != nil {
		env.Fail(err)
		return value.Null()
	}

	env.Depth++
	restore := e.BindParams(env, fn, args)
	result := e.eval(env, fn.Expr)
	restore()
	env.Depth--
	return result
}

// BindParams binds fn's parameters to args in the store, evaluating
// defaults for missing arguments. The returned func restores the previous
// bindings.
func (e *Evaluator) BindParams(env *Env, fn *value.Function, args []value.Value) (restore func()) {
	saved := make(map[string]value.Value)
	unset := make(map[string]bool)
	remember := func(name string) {
		if _, done := saved[name]; done || unset[name] {
			return
		}
		if v, ok := env.Store.Get(name); ok {
			saved[name] = v
		} else {
			unset[name] = true
		}
	}
	for i, p := range fn.Params {
		var arg value.Value
		switch {
		case strings.HasPrefix(p, "..."):
			if i < len(args) {
				arg = value.NewArray(append([]value.Value(nil), args[i:]...)...)
			} else {
				arg = value.NewArray()
			}
			p = strings.TrimSpace(p[3:])
		case i < len(args):
			arg = args[i]
		case i < len(fn.Defaults) && fn.Defaults[i] != "":
			arg = e.eval(env, fn.Defaults[i])
		}
		for _, name := range PatternNames(p) {
			remember(name)
		}
		e.Bind(env, p, arg)
	}
	return func() {
		for name, v := range saved {
			env.Store.Set(name, v)
		}
		for name := range unset {
			env.Store.Delete(name)
		}
	}
}
