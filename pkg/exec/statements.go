package exec

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/value"
)

// simple executes a classified non-compound statement.
func (r *Run) simple(code string) Control {
	s := r.x.classify(code)
	switch s.kind {
	case kindEmpty:
		return normal
	case kindReturnVoid:
		return Control{Kind: ControlReturn}
	case kindReturnValue:
		v, c := r.value(s.expr)
		if !c.Normal() {
			return c
		}
		return Control{Kind: ControlReturn, Value: v}
	case kindCompound:
		return r.Exec(s.nodes)
	case kindVarDecl:
		return r.varDecl(s.decls)
	case kindAppend:
		v, c := r.rhs(s.expr)
		if !c.Normal() {
			return c
		}
		cur := r.env.Store.Lookup(outputVar)
		if cur.IsNull() || cur.Kind() == value.KindString {
			r.env.Store.Set(outputVar, value.String(cur.Display()+v.Display()))
		} else {
			r.env.Store.Set(outputVar, eval.Binary("+", cur, v))
		}
		return normal
	case kindIncrement, kindDecrement:
		cur, c := r.value(s.target)
		if !c.Normal() {
			return c
		}
		d := 1.0
		if s.kind == kindDecrement {
			d = -1
		}
		return r.assign(s.target, value.Number(cur.ToNumber()+d))
	case kindCompoundAssign:
		return r.compoundAssign(s)
	case kindAssign, kindIndexAssign, kindPropertyAssign:
		v, c := r.rhs(s.expr)
		if !c.Normal() {
			return c
		}
		return r.assign(s.target, v)
	default:
		_, c := r.value(s.expr)
		return c
	}
}

// rhs evaluates the right-hand side of an assignment. A chained assignment
// such as a = b = 1 executes the inner assignment first.
func (r *Run) rhs(expr string) (value.Value, Control) {
	if a, ok := ast.SplitAssignment(expr); ok {
		if c := r.simple(expr); !c.Normal() {
			return value.Null(), c
		}
		return r.value(a.Target)
	}
	return r.value(expr)
}

func (r *Run) varDecl(decls []decl) Control {
	for _, d := range decls {
		v := value.Null()
		if d.init != "" {
			var c Control
			if v, c = r.rhs(d.init); !c.Normal() {
				return c
			}
		}
		if ast.IsIdentifier(d.pattern) {
			r.declare(d.pattern, v)
			continue
		}
		if r.frame != nil {
			for _, name := range eval.PatternNames(d.pattern) {
				r.frame.remember(r.env.Store, name)
			}
		}
		r.x.eval.Bind(r.env, d.pattern, v)
		if c := r.settle(); !c.Normal() {
			return c
		}
	}
	return normal
}

func (r *Run) compoundAssign(s *simple) Control {
	cur, c := r.value(s.target)
	if !c.Normal() {
		return c
	}
	switch s.op {
	case "||":
		if cur.Truthy() {
			return normal
		}
	case "&&":
		if !cur.Truthy() {
			return normal
		}
	case "??":
		if !cur.IsNull() {
			return normal
		}
	}
	v, c := r.rhs(s.expr)
	if !c.Normal() {
		return c
	}
	switch s.op {
	case "||", "&&", "??":
	default:
		v = eval.Binary(s.op, cur, v)
	}
	return r.assign(s.target, v)
}

// assign stores v into an identifier, property or index target.
func (r *Run) assign(target string, v value.Value) Control {
	if ast.IsIdentifier(target) {
		r.env.Store.Set(target, v)
		return normal
	}
	object, key, computed, ok := splitTarget(target)
	if !ok {
		return r.fault(fmt.Errorf("%w: %s", eval.ErrNotAssignable, target))
	}
	obj, c := r.value(object)
	if !c.Normal() {
		return c
	}
	k := value.String(key)
	if computed {
		if k, c = r.value(key); !c.Normal() {
			return c
		}
	}
	if err := eval.SetMember(obj, k, v); err != nil {
		return r.fault(err)
	}
	return normal
}

func (r *Run) ifChain(n *ast.StatementNode) Control {
	v, c := r.value(n.Condition)
	if !c.Normal() {
		return c
	}
	if v.Truthy() {
		return r.block(n.Body)
	}
	for _, b := range n.ElseBranches {
		if b.IsElse() {
			return r.block(b.Body)
		}
		v, c := r.value(b.Condition)
		if !c.Normal() {
			return c
		}
		if v.Truthy() {
			return r.block(b.Body)
		}
	}
	return normal
}

// pass runs one iteration of a loop body. done reports that the loop ends
// with control c.
func (r *Run) pass(n *ast.StatementNode, i int) (c Control, done bool) {
	if r.stopped {
		return halted, true
	}
	if err := r.env.Ctx.Err(); err != nil {
		r.halt(err)
		return halted, true
	}
	if !n.Dynamic() {
		r.hooks.OnLoopIteration(n, i)
	}
	c = r.block(n.Body)
	switch c.Kind {
	case ControlBreak:
		return normal, true
	case ControlNormal, ControlContinue:
		return normal, false
	}
	return c, true
}

// ceiling reports whether iteration i exceeds the loop limit, logging once.
func (r *Run) ceiling(n *ast.StatementNode, i int) bool {
	if i <= r.x.maxLoop {
		return false
	}
	r.x.logger.Warn("loop iteration ceiling reached", "line", n.Line, "code", n.Code, "limit", r.x.maxLoop)
	return true
}

// block executes a nested statement list. Names it declares with let or
// const are restored when the list ends.
func (r *Run) block(nodes []*ast.StatementNode) Control {
	var names []string
	for _, n := range nodes {
		if n.Type == ast.StatementVarDecl {
			names = append(names, r.declared(n.VarKind, n.Code)...)
		}
	}
	defer r.scoped(names)()
	return r.Exec(nodes)
}

// declared returns the block scoped names introduced by the declaration in
// code.
func (r *Run) declared(kind, code string) []string {
	s := r.x.classify(code)
	if s.kind != kindVarDecl {
		return nil
	}
	patterns := make([]string, len(s.decls))
	for i, d := range s.decls {
		patterns[i] = d.pattern
	}
	return blockScoped(kind, patterns...)
}

// blockScoped returns the names a let/const declaration list introduces.
func blockScoped(kind string, patterns ...string) []string {
	if kind != "let" && kind != "const" {
		return nil
	}
	var names []string
	for _, p := range patterns {
		names = append(names, eval.PatternNames(p)...)
	}
	return names
}

func (r *Run) forLoop(n *ast.StatementNode) Control {
	if n.Init != "" {
		defer r.scoped(r.declared(ast.FirstWord(n.Init), n.Init))()
		if c := r.simple(n.Init); !c.Normal() {
			return c
		}
	}
	for i := 1; !r.ceiling(n, i); i++ {
		if n.Condition != "" {
			v, c := r.value(n.Condition)
			if !c.Normal() {
				return c
			}
			if !v.Truthy() {
				break
			}
		}
		if c, done := r.pass(n, i); done {
			return c
		}
		if n.Step != "" {
			for _, step := range ast.SplitTop(n.Step, ',') {
				if c := r.simple(step); !c.Normal() {
					return c
				}
			}
		}
	}
	return normal
}

func (r *Run) whileLoop(n *ast.StatementNode) Control {
	for i := 1; !r.ceiling(n, i); i++ {
		v, c := r.value(n.Condition)
		if !c.Normal() {
			return c
		}
		if !v.Truthy() {
			break
		}
		if c, done := r.pass(n, i); done {
			return c
		}
	}
	return normal
}

// each binds every item produced by next to the loop variable and runs the
// body. next reports false when the sequence is exhausted.
func (r *Run) each(n *ast.StatementNode, next func(i int) (value.Value, bool)) Control {
	defer r.scoped(blockScoped(n.VarKind, n.Var))()
	for i := 1; ; i++ {
		item, ok := next(i - 1)
		if !ok || r.ceiling(n, i) {
			break
		}
		r.x.eval.Bind(r.env, n.Var, item)
		if c := r.settle(); !c.Normal() {
			return c
		}
		if c, done := r.pass(n, i); done {
			return c
		}
	}
	return normal
}

func (r *Run) forOf(n *ast.StatementNode) Control {
	src, c := r.value(n.Iterable)
	if !c.Normal() {
		return c
	}
	switch src.Kind() {
	case value.KindArray:
		arr := src.Array()
		return r.each(n, func(i int) (value.Value, bool) {
			if i >= arr.Len() {
				return value.Null(), false
			}
			return arr.At(i), true
		})
	case value.KindString:
		s := src.Str()
		pos := 0
		return r.each(n, func(int) (value.Value, bool) {
			if pos >= len(s) {
				return value.Null(), false
			}
			_, size := utf8.DecodeRuneInString(s[pos:])
			ch := s[pos : pos+size]
			pos += size
			return value.String(ch), true
		})
	case value.KindObject:
		obj := src.Object()
		keys := obj.Keys()
		return r.each(n, func(i int) (value.Value, bool) {
			if i >= len(keys) {
				return value.Null(), false
			}
			v, _ := obj.Get(keys[i])
			return value.NewArray(value.String(keys[i]), v), true
		})
	case value.KindNull:
		return normal
	}
	return r.fault(fmt.Errorf("%w: %s", ErrNotIterable, src.TypeOf()))
}

func (r *Run) forIn(n *ast.StatementNode) Control {
	src, c := r.value(n.Iterable)
	if !c.Normal() {
		return c
	}
	var keys []string
	switch src.Kind() {
	case value.KindObject:
		keys = src.Object().Keys()
	case value.KindArray:
		for i := 0; i < src.Array().Len(); i++ {
			keys = append(keys, strconv.Itoa(i))
		}
	case value.KindString:
		for i := 0; i < utf8.RuneCountInString(src.Str()); i++ {
			keys = append(keys, strconv.Itoa(i))
		}
	}
	return r.each(n, func(i int) (value.Value, bool) {
		if i >= len(keys) {
			return value.Null(), false
		}
		return value.String(keys[i]), true
	})
}

func (r *Run) try(n *ast.StatementNode) Control {
	if n.HasCatch {
		r.tryDepth++
	}
	c := r.block(n.Body)
	if n.HasCatch {
		r.tryDepth--
	}
	if c.Kind == ControlThrow && n.HasCatch {
		var restore func()
		if n.CatchParam != "" {
			restore = r.scoped(eval.PatternNames(n.CatchParam))
			r.x.eval.Bind(r.env, n.CatchParam, c.Value)
			r.env.TakeFault()
		}
		c = r.block(n.CatchBody)
		if restore != nil {
			restore()
		}
	}
	if c.Kind == ControlStop || len(n.FinallyBody) == 0 {
		return c
	}
	if f := r.block(n.FinallyBody); !f.Normal() {
		return f
	}
	return c
}
