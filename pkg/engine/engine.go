// Package engine composes the parser, evaluator, executor, tracer and debug
// session behind one facade.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/cfg"
	"github.com/l3aro/go-template-script/pkg/debug"
	"github.com/l3aro/go-template-script/pkg/dfg"
	"github.com/l3aro/go-template-script/pkg/document"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/exec"
	"github.com/l3aro/go-template-script/pkg/trace"
	"github.com/l3aro/go-template-script/pkg/value"
)

// OutputVar is the output accumulator.
const OutputVar = trace.OutputVar

type options struct {
	modules     eval.ModuleExecutor
	frontmatter eval.FrontmatterAccessor
	namespace   string
	cache       *eval.ExprCache
	cacheOff    bool
	maxLoop     int
	maxDepth    int
	logger      log.Logger
	tracing     bool
	snapshots   bool
	session     *debug.Session
	hazards     bool
	clock       func() time.Time
}

// Option configures an Engine.
type Option func(*options)

// WithModules sets the executor for module calls.
func WithModules(m eval.ModuleExecutor) Option {
	return func(o *options) { o.modules = m }
}

// WithFrontmatter sets the frontmatter accessor.
func WithFrontmatter(f eval.FrontmatterAccessor) Option {
	return func(o *options) { o.frontmatter = f }
}

// WithNamespace sets the module namespace (default "tp").
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithCache shares c between renders instead of a private cache.
func WithCache(c *eval.ExprCache) Option {
	return func(o *options) { o.cache = c }
}

// WithoutCache disables the compiled-expression cache.
func WithoutCache() Option {
	return func(o *options) { o.cacheOff = true }
}

// WithMaxLoopIterations sets the loop iteration ceiling.
func WithMaxLoopIterations(n int) Option {
	return func(o *options) { o.maxLoop = n }
}

// WithMaxCallDepth sets the function call depth ceiling.
func WithMaxCallDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracing enables or disables trace recording. It is on by default.
func WithTracing(enabled bool) Option {
	return func(o *options) { o.tracing = enabled }
}

// WithSnapshots records variables on every statement step.
func WithSnapshots(enabled bool) Option {
	return func(o *options) { o.snapshots = enabled }
}

// WithDebug installs a debug session.
func WithDebug(s *debug.Session) Option {
	return func(o *options) { o.session = s }
}

// WithClock overrides the time source of Date and the date module.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithWriteHazards makes the dependency analyzer split on write-after-read
// and write-after-write as well.
func WithWriteHazards() Option {
	return func(o *options) { o.hazards = true }
}

// Engine renders templates. Renders may run concurrently when no debug
// session is installed; a session serializes them.
type Engine struct {
	opts     options
	eval     *eval.Evaluator
	exec     *exec.Executor
	analyzer *dfg.Analyzer
	logger   log.Logger

	mu      sync.Mutex
	session *debug.Session
	tree    *ast.TemplateAST
	render  sync.Mutex
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	o := options{
		namespace: eval.DefaultNamespace,
		logger:    log.Discard(),
		tracing:   true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cache == nil && !o.cacheOff {
		o.cache = eval.NewExprCache(eval.DefaultCacheSize)
	}
	evalOpts := []eval.Option{
		eval.WithNamespace(o.namespace),
		eval.WithLogger(o.logger),
		eval.WithMaxDepth(o.maxDepth),
		eval.WithClock(o.clock),
	}
	if o.modules != nil {
		evalOpts = append(evalOpts, eval.WithModules(o.modules))
	}
	if o.frontmatter != nil {
		evalOpts = append(evalOpts, eval.WithFrontmatter(o.frontmatter))
	}
	if !o.cacheOff {
		evalOpts = append(evalOpts, eval.WithCache(o.cache))
	}
	ev := eval.New(evalOpts...)

	dfgOpts := []dfg.Option{dfg.WithNamespace(o.namespace), dfg.WithLogger(o.logger)}
	if o.hazards {
		dfgOpts = append(dfgOpts, dfg.WithWriteHazards())
	}
	return &Engine{
		opts:     o,
		eval:     ev,
		exec:     exec.New(ev, exec.WithLogger(o.logger), exec.WithMaxLoopIterations(o.maxLoop)),
		analyzer: dfg.New(dfgOpts...),
		logger:   o.logger,
		session:  o.session,
	}
}

// Evaluator returns the expression evaluator.
func (e *Engine) Evaluator() *eval.Evaluator { return e.eval }

// Cache returns the compiled-expression cache, or nil when disabled.
func (e *Engine) Cache() *eval.ExprCache {
	if e.opts.cacheOff {
		return nil
	}
	return e.opts.cache
}

// Session returns the debug session, or nil.
func (e *Engine) Session() *debug.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// EnableDebug installs a new session and returns it. Breakpoints already
// requested are lost.
func (e *Engine) EnableDebug(opts ...debug.Option) *debug.Session {
	s := debug.NewSession(append([]debug.Option{debug.WithLogger(e.logger)}, opts...)...)
	e.mu.Lock()
	e.session = s
	tree := e.tree
	e.mu.Unlock()
	if tree != nil {
		s.SetAST(tree)
	}
	return s
}

// DisableDebug removes the session.
func (e *Engine) DisableDebug() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = nil
}

// AST returns the most recently parsed tree.
func (e *Engine) AST() *ast.TemplateAST {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree
}

func (e *Engine) install(tree *ast.TemplateAST) *debug.Session {
	e.mu.Lock()
	e.tree = tree
	s := e.session
	e.mu.Unlock()
	if s != nil {
		s.SetAST(tree)
	}
	return s
}

// Parse splits content, builds its tree and installs the tree in the debug
// session so pending breakpoints resolve. A malformed tag is logged; the
// tree is still built from the well-formed part.
func (e *Engine) Parse(content string) (*document.Document, *ast.TemplateAST) {
	doc, tree := e.parse(content)
	e.install(tree)
	return doc, tree
}

// parse builds the tree without touching the debug session.
func (e *Engine) parse(content string) (*document.Document, *ast.TemplateAST) {
	doc, err := document.Parse(content)
	if err != nil {
		e.logger.Warn("malformed template", "error", err)
	}
	return doc, doc.AST()
}

// Evaluate evaluates one expression against store. A nil store evaluates
// against an empty one.
func (e *Engine) Evaluate(ctx context.Context, expr string, store *value.Store) value.Value {
	if store == nil {
		store = value.NewStore()
	}
	return e.eval.Eval(ctx, expr, store)
}

// Execute runs a bare script and returns the output accumulated in tR. The
// error is non-nil only when ctx ended the run.
func (e *Engine) Execute(ctx context.Context, script string, store *value.Store) (string, error) {
	if e.Session() != nil {
		e.render.Lock()
		defer e.render.Unlock()
	}
	tree := ast.Build(script)
	session := e.install(tree)
	if store == nil {
		store = value.NewStore()
	}
	if !store.Has(OutputVar) {
		store.Set(OutputVar, value.String(""))
	}
	var hooks exec.Hooks = exec.NopHooks{}
	if session != nil {
		session.Begin(trace.New(), store)
		hooks = session
	}
	run := e.exec.Start(eval.NewEnv(ctx, store), hooks)
	if c := run.Exec(tree.Roots); c.Kind == exec.ControlThrow {
		e.logger.Warn("uncaught exception", "error", (&exec.ThrowError{Value: c.Value}).Error())
	}
	return store.Lookup(OutputVar).Display(), cancelled(run.Err())
}

// Graph analyzes content and builds its control-flow graph. The debug
// session keeps its tree.
func (e *Engine) Graph(ctx context.Context, content string, opts ...cfg.Option) (*cfg.ControlFlowGraph, *dfg.Analysis, error) {
	_, tree := e.parse(content)
	analysis, err := e.analyzer.Analyze(ctx, tree)
	if err != nil {
		return nil, nil, err
	}
	return cfg.Build(tree, analysis, append([]cfg.Option{cfg.WithLogger(e.logger)}, opts...)...), analysis, nil
}

// Analyze runs the dependency analyzer over content.
func (e *Engine) Analyze(ctx context.Context, content string) (*dfg.Analysis, error) {
	_, tree := e.parse(content)
	return e.analyzer.Analyze(ctx, tree)
}

// AddBreakpoint requests a breakpoint at a document line.
func (e *Engine) AddBreakpoint(line int) (ast.NodeID, bool, error) {
	s := e.Session()
	if s == nil {
		return 0, false, debug.ErrNoSession
	}
	return s.AddBreakpoint(line)
}

// RemoveBreakpoint removes the breakpoint requested at line.
func (e *Engine) RemoveBreakpoint(line int) error {
	s := e.Session()
	if s == nil {
		return debug.ErrNoSession
	}
	s.RemoveBreakpoint(line)
	return nil
}

// HasBreakpoint reports whether a breakpoint was requested at line.
func (e *Engine) HasBreakpoint(line int) bool {
	s := e.Session()
	return s != nil && s.HasBreakpoint(line)
}

// Breakpoints returns the requested lines in order.
func (e *Engine) Breakpoints() []int {
	s := e.Session()
	if s == nil {
		return nil
	}
	return s.Breakpoints()
}

// cancelled keeps only context errors; a debug stop is not an error.
func cancelled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
