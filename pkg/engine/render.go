package engine

import (
	"context"

	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/document"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/exec"
	"github.com/l3aro/go-template-script/pkg/trace"
	"github.com/l3aro/go-template-script/pkg/value"
)

// RenderContext carries per-render input.
type RenderContext struct {
	// Name describes the template in the trace.
	Name string
	// Variables are bound before the first tag runs.
	Variables map[string]value.Value
	// Store is the variable store of the render. A host that edits variables
	// while the render is paused passes its own; nil creates a fresh one.
	Store *value.Store
}

// RenderResult is the outcome of a render.
type RenderResult struct {
	Output     string
	Trace      *trace.Trace
	WasStopped bool
	AST        *ast.TemplateAST
	Document   *document.Document
	Store      *value.Store
}

// Render renders content. Text is appended to tR, interpolations append
// their value and execution blocks run against the same store, so a block
// may rewrite everything rendered before it. The error is non-nil only when
// ctx ended the render; the partial result is returned with it.
func (e *Engine) Render(ctx context.Context, content string, rc RenderContext) (*RenderResult, error) {
	if e.Session() != nil {
		e.render.Lock()
		defer e.render.Unlock()
	}
	doc, tree := e.parse(content)
	session := e.install(tree)

	store := rc.Store
	if store == nil {
		store = value.NewStore()
	}
	for name, v := range rc.Variables {
		store.Set(name, v)
	}
	store.Set(OutputVar, value.String(""))

	tr := trace.New()
	var rec *trace.Recorder
	var hooks []exec.Hooks
	if e.opts.tracing {
		rec = trace.NewRecorder(tr, store, trace.WithSnapshots(e.opts.snapshots))
		hooks = append(hooks, rec)
	}
	if session != nil {
		session.Begin(tr, store)
		hooks = append(hooks, session)
	}
	var h exec.Hooks = exec.NopHooks{}
	if len(hooks) > 0 {
		h = exec.Multi(hooks...)
	}
	run := e.exec.Start(eval.NewEnv(ctx, store), h)

	name := rc.Name
	if name == "" {
		name = "template"
	}
	if rec != nil {
		rec.Start(name)
	}
	block := 0
	for _, seg := range doc.Segments {
		if run.Stopped() {
			break
		}
		if seg.Kind == document.KindText {
			appendOutput(store, seg.Text)
			if rec != nil {
				rec.Text(seg.Line, seg.Text)
			}
			continue
		}
		if block >= len(tree.Blocks) {
			break
		}
		b := tree.Blocks[block]
		block++
		if b.Kind == ast.BlockInterpolation {
			v, c := run.Interpolate(b.Nodes[0])
			if c.Kind == exec.ControlThrow {
				e.uncaught(b, c)
				continue
			}
			if c.Normal() {
				appendOutput(store, v.Display())
			}
			continue
		}
		if c := run.Exec(b.Nodes); c.Kind == exec.ControlThrow {
			e.uncaught(b, c)
		}
	}

	stopped := run.Stopped()
	out := store.Lookup(OutputVar).Display()
	if rec != nil {
		rec.Finish(out, stopped)
	}
	res := &RenderResult{
		Output:     out,
		Trace:      tr,
		WasStopped: stopped,
		AST:        tree,
		Document:   doc,
		Store:      store,
	}
	if err := cancelled(run.Err()); err != nil {
		e.logger.Info("render cancelled", "template", name, "error", err)
		return res, err
	}
	e.logger.Debug("rendered template", "template", name, "blocks", len(tree.Blocks), "steps", tr.Len(), "stopped", stopped)
	return res, nil
}

func (e *Engine) uncaught(b *ast.Block, c exec.Control) {
	e.logger.Warn("uncaught exception ends block", "block", b.Index+1, "line", b.StartLine,
		"error", (&exec.ThrowError{Value: c.Value}).Error())
}

func appendOutput(store *value.Store, s string) {
	if s == "" {
		return
	}
	store.Set(OutputVar, value.String(store.Lookup(OutputVar).Display()+s))
}
