package dfg

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/eval"
)

// facts collects the raw effects of one block or function body.
type facts struct {
	reads        map[string]bool
	writes       map[string]bool
	calls        map[string]bool
	refs         []VarRef
	readsOutput  bool
	writesOutput bool
	overwrites   bool
	barrier      string
}

func newFacts() *facts {
	return &facts{
		reads:  make(map[string]bool),
		writes: make(map[string]bool),
		calls:  make(map[string]bool),
	}
}

// merge adds the effects of o, without its refs. It reports whether f grew.
func (f *facts) merge(o *facts) bool {
	grew := false
	for _, pair := range [][2]map[string]bool{{f.reads, o.reads}, {f.writes, o.writes}, {f.calls, o.calls}} {
		for k := range pair[1] {
			if !pair[0][k] {
				pair[0][k] = true
				grew = true
			}
		}
	}
	if o.readsOutput && !f.readsOutput {
		f.readsOutput, grew = true, true
	}
	if o.writesOutput && !f.writesOutput {
		f.writesOutput, grew = true, true
	}
	if o.overwrites && !f.overwrites {
		f.overwrites, grew = true, true
	}
	if o.barrier != "" && f.barrier == "" {
		f.barrier, grew = o.barrier, true
	}
	return grew
}

func (f *facts) clone() *facts {
	c := newFacts()
	c.merge(f)
	c.refs = f.refs
	return c
}

// scope is a set of local names. fn marks a function boundary.
type scope struct {
	names map[string]bool
	fn    bool
}

// mutators are the array and object methods that modify their receiver.
var mutators = map[string]bool{
	"push": true, "pop": true, "shift": true, "unshift": true, "splice": true,
	"sort": true, "reverse": true, "fill": true, "copyWithin": true,
	"set": true, "delete": true, "clear": true, "add": true,
}

// sideEffects are the module calls that must not be reordered. An empty
// method set means every method of the module.
var sideEffects = map[string]map[string]bool{
	"system": {},
	"file":   {"move": true, "rename": true, "create_new": true},
}

func isBuiltin(name string) bool {
	switch name {
	case "Math", "JSON", "Object", "Array", "String", "Number", "Boolean", "Date",
		"Error", "TypeError", "RangeError", "RegExp", "Promise", "Symbol",
		"console", "parseInt", "parseFloat", "isNaN", "isFinite",
		"encodeURIComponent", "decodeURIComponent", "undefined", "NaN", "Infinity",
		"arguments", "this":
		return true
	}
	return false
}

// extractor walks statement nodes and the tree-sitter trees of their code
// fragments, collecting facts.
type extractor struct {
	ctx       context.Context
	parser    *sitter.Parser
	namespace string
	f         *facts
	scopes    []*scope
	loops     int
	functions int
	err       error
}

func newExtractor(ctx context.Context, namespace string) *extractor {
	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())
	return &extractor{ctx: ctx, parser: p, namespace: namespace, f: newFacts()}
}

func (x *extractor) push(fn bool) {
	x.scopes = append(x.scopes, &scope{names: make(map[string]bool), fn: fn})
}

func (x *extractor) pop() {
	x.scopes = x.scopes[:len(x.scopes)-1]
}

func (x *extractor) local(name string) bool {
	for i := len(x.scopes) - 1; i >= 0; i-- {
		if x.scopes[i].names[name] {
			return true
		}
	}
	return false
}

// bind makes names local to the innermost scope.
func (x *extractor) bind(names ...string) {
	if len(x.scopes) == 0 {
		return
	}
	top := x.scopes[len(x.scopes)-1]
	for _, name := range names {
		top.names[name] = true
	}
}

// declScope returns the scope a declaration lands in, or nil for a global.
// let and const bind to the innermost scope, var to the nearest function.
func (x *extractor) declScope(lexical bool) *scope {
	if lexical {
		if len(x.scopes) == 0 {
			return nil
		}
		return x.scopes[len(x.scopes)-1]
	}
	for i := len(x.scopes) - 1; i >= 0; i-- {
		if x.scopes[i].fn {
			return x.scopes[i]
		}
	}
	return nil
}

func (x *extractor) barrier(reason string) {
	if x.f.barrier == "" {
		x.f.barrier = reason
	}
}

func (x *extractor) nodes(list []*ast.StatementNode) {
	for _, n := range list {
		x.node(n)
	}
}

func (x *extractor) scoped(list []*ast.StatementNode) {
	x.push(false)
	x.nodes(list)
	x.pop()
}

func (x *extractor) loop(list []*ast.StatementNode) {
	x.loops++
	x.nodes(list)
	x.loops--
}

func (x *extractor) node(n *ast.StatementNode) {
	if x.err != nil {
		return
	}
	switch n.Type {
	case ast.StatementComment, ast.StatementBlockStart, ast.StatementBlockEnd:
	case ast.StatementIf:
		x.expr(n.Condition, n.Line)
		x.scoped(n.Body)
		for _, b := range n.ElseBranches {
			if !b.IsElse() {
				x.expr(b.Condition, lineOr(b.Line, n.Line))
			}
			x.scoped(b.Body)
		}
	case ast.StatementFor:
		x.push(false)
		x.code(n.Init, n.Line)
		x.expr(n.Condition, n.Line)
		x.code(n.Step, n.Line)
		x.loop(n.Body)
		x.pop()
	case ast.StatementForOf, ast.StatementForIn:
		x.expr(n.Iterable, n.Line)
		x.push(false)
		x.bind(eval.PatternNames(n.Var)...)
		x.loop(n.Body)
		x.pop()
	case ast.StatementWhile:
		x.expr(n.Condition, n.Line)
		x.push(false)
		x.loop(n.Body)
		x.pop()
	case ast.StatementFunctionDecl:
		if s := x.declScope(false); s != nil {
			s.names[n.Name] = true
		} else if n.Name != "" {
			x.f.writes[n.Name] = true
			x.f.refs = append(x.f.refs, VarRef{Name: n.Name, RefType: RefTypeDefinition, Line: n.Line, Column: 1})
		}
	case ast.StatementReturn:
		x.expr(n.Expr, n.Line)
		if x.functions == 0 {
			x.barrier("return outside a function")
		}
	case ast.StatementThrow:
		x.expr(n.Expr, n.Line)
		if x.functions == 0 {
			x.barrier("throw outside a function")
		}
	case ast.StatementBreak, ast.StatementContinue:
		if x.loops == 0 {
			x.barrier(string(n.Type) + " outside a loop")
		}
	case ast.StatementTry:
		x.scoped(n.Body)
		if n.HasCatch {
			x.push(false)
			x.bind(eval.PatternNames(n.CatchParam)...)
			x.nodes(n.CatchBody)
			x.pop()
		}
		x.scoped(n.FinallyBody)
	case ast.StatementBlock:
		x.scoped(n.Body)
	case ast.StatementInterpolation:
		x.expr(n.Expr, n.Line)
		x.f.writesOutput = true
	default:
		x.code(n.Code, n.Line)
	}
}

// function collects the effects of calling a declared function.
func (x *extractor) function(n *ast.StatementNode) {
	x.functions++
	x.push(true)
	for _, p := range n.Params {
		x.bind(eval.PatternNames(p)...)
	}
	for _, d := range n.Defaults {
		x.expr(d, n.Line)
	}
	x.nodes(n.Body)
	x.pop()
	x.functions--
}

func lineOr(line, fallback int) int {
	if line > 0 {
		return line
	}
	return fallback
}

func (x *extractor) expr(text string, line int) { x.parse(text, line, true) }
func (x *extractor) code(text string, line int) { x.parse(text, line, false) }

// parse runs tree-sitter over one fragment. Expressions are parenthesised so
// object literals do not parse as blocks.
func (x *extractor) parse(text string, line int, wrap bool) {
	text = strings.TrimSpace(text)
	if text == "" || x.err != nil {
		return
	}
	src, shift := text, 0
	if wrap {
		src, shift = "("+text+"\n)", 1
	}
	tree, err := x.parser.ParseCtx(x.ctx, nil, []byte(src))
	if err != nil {
		x.err = err
		return
	}
	defer tree.Close()
	root := tree.RootNode()
	if root.HasError() {
		x.barrier("unparseable code: " + clip(text))
		return
	}
	fr := &fragment{extractor: x, src: []byte(src), line: line, shift: shift}
	fr.visit(root)
}

func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 40 {
		return s[:37] + "..."
	}
	return s
}

// fragment is one parsed code fragment positioned in the document.
type fragment struct {
	*extractor
	src   []byte
	line  int
	shift int
}

func (fr *fragment) text(n *sitter.Node) string {
	return n.Content(fr.src)
}

func (fr *fragment) ref(n *sitter.Node, name string, t RefType) {
	p := n.StartPoint()
	col := int(p.Column) + 1
	if p.Row == 0 {
		col -= fr.shift
	}
	fr.f.refs = append(fr.f.refs, VarRef{Name: name, RefType: t, Line: fr.line + int(p.Row), Column: col})
}

func (fr *fragment) children(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		fr.visit(n.NamedChild(i))
	}
}

func (fr *fragment) visit(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier":
		fr.use(n)
	case "lexical_declaration", "variable_declaration":
		lexical := n.Type() == "lexical_declaration"
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d := n.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			fr.visit(d.ChildByFieldName("value"))
			fr.declare(d.ChildByFieldName("name"), lexical)
		}
	case "assignment_expression":
		fr.visit(n.ChildByFieldName("right"))
		fr.assign(n.ChildByFieldName("left"), "=")
	case "augmented_assignment_expression":
		fr.visit(n.ChildByFieldName("right"))
		op := "+="
		if o := n.ChildByFieldName("operator"); o != nil {
			op = fr.text(o)
		}
		fr.assign(n.ChildByFieldName("left"), op)
	case "update_expression":
		fr.assign(n.ChildByFieldName("argument"), "++")
	case "call_expression":
		fr.call(n)
	case "member_expression":
		fr.visit(n.ChildByFieldName("object"))
	case "subscript_expression":
		fr.visit(n.ChildByFieldName("object"))
		fr.visit(n.ChildByFieldName("index"))
	case "arrow_function", "function", "function_expression", "generator_function",
		"function_declaration", "generator_function_declaration":
		fr.closure(n)
	case "statement_block", "class_body":
		fr.push(false)
		fr.children(n)
		fr.pop()
	case "for_statement", "while_statement", "do_statement", "switch_statement":
		fr.push(false)
		fr.loops++
		fr.children(n)
		fr.loops--
		fr.pop()
	case "for_in_statement":
		fr.visit(n.ChildByFieldName("right"))
		fr.push(false)
		fr.bindPattern(n.ChildByFieldName("left"))
		fr.loops++
		fr.visit(n.ChildByFieldName("body"))
		fr.loops--
		fr.pop()
	case "catch_clause":
		fr.push(false)
		fr.bindPattern(n.ChildByFieldName("parameter"))
		fr.visit(n.ChildByFieldName("body"))
		fr.pop()
	case "return_statement":
		fr.children(n)
		if fr.functions == 0 {
			fr.barrier("return outside a function")
		}
	case "throw_statement":
		fr.children(n)
		if fr.functions == 0 {
			fr.barrier("throw outside a function")
		}
	case "break_statement", "continue_statement":
		if fr.loops == 0 && fr.functions == 0 {
			fr.barrier(strings.TrimSuffix(n.Type(), "_statement") + " outside a loop")
		}
	default:
		fr.children(n)
	}
}

func (fr *fragment) use(n *sitter.Node) {
	name := fr.text(n)
	switch {
	case name == OutputVar:
		fr.f.readsOutput = true
		fr.ref(n, name, RefTypeUse)
	case fr.local(name), isBuiltin(name), name == fr.namespace:
	default:
		fr.f.reads[name] = true
		fr.ref(n, name, RefTypeUse)
	}
}

// write records an assignment of name with operator op.
func (fr *fragment) write(n *sitter.Node, name, op string) {
	t := RefTypeDefinition
	if op != "=" {
		t = RefTypeUpdate
	}
	if name == OutputVar {
		if op == "+=" {
			fr.f.writesOutput = true
		} else {
			fr.f.overwrites = true
		}
		fr.ref(n, name, t)
		return
	}
	if fr.local(name) {
		return
	}
	if t == RefTypeUpdate {
		fr.f.reads[name] = true
	}
	fr.f.writes[name] = true
	fr.ref(n, name, t)
}

// mutate records an in-place change of the container bound to name.
func (fr *fragment) mutate(n *sitter.Node, name string) {
	if name == OutputVar {
		fr.f.overwrites = true
		fr.ref(n, name, RefTypeUpdate)
		return
	}
	if fr.local(name) || isBuiltin(name) || name == fr.namespace {
		return
	}
	fr.f.reads[name] = true
	fr.f.writes[name] = true
	fr.ref(n, name, RefTypeUpdate)
}

func (fr *fragment) assign(target *sitter.Node, op string) {
	if target == nil {
		return
	}
	switch target.Type() {
	case "identifier":
		fr.write(target, fr.text(target), op)
	case "member_expression", "subscript_expression":
		if root := fr.root(target); root != nil {
			fr.mutate(root, fr.text(root))
		}
	case "parenthesized_expression":
		if target.NamedChildCount() > 0 {
			fr.assign(target.NamedChild(0), op)
		}
	case "object_pattern", "array_pattern":
		for _, id := range fr.patternNames(target, nil) {
			fr.write(id, fr.text(id), "=")
		}
	default:
		fr.visit(target)
	}
}

// root descends a member chain to its base identifier. Computed keys along
// the way are visited as uses. It returns nil when the base is not a plain
// identifier.
func (fr *fragment) root(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "member_expression":
			n = n.ChildByFieldName("object")
		case "subscript_expression":
			fr.visit(n.ChildByFieldName("index"))
			n = n.ChildByFieldName("object")
		case "identifier":
			return n
		default:
			fr.visit(n)
			return nil
		}
	}
	return nil
}

// chain returns the dotted name of a plain member chain such as tp.file.move.
func (fr *fragment) chain(n *sitter.Node) []string {
	switch n.Type() {
	case "identifier":
		return []string{fr.text(n)}
	case "member_expression":
		obj, prop := n.ChildByFieldName("object"), n.ChildByFieldName("property")
		if obj == nil || prop == nil {
			return nil
		}
		if base := fr.chain(obj); base != nil {
			return append(base, fr.text(prop))
		}
	}
	return nil
}

func (fr *fragment) call(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		fr.children(n)
		return
	}
	switch fn.Type() {
	case "identifier":
		name := fr.text(fn)
		fr.use(fn)
		if !fr.local(name) {
			fr.f.calls[name] = true
		}
	case "member_expression":
		if path := fr.chain(fn); len(path) >= 3 && path[0] == fr.namespace {
			if methods, ok := sideEffects[path[1]]; ok && (len(methods) == 0 || methods[path[2]]) {
				fr.barrier("side-effecting module call " + strings.Join(path, "."))
			}
		}
		obj, prop := fn.ChildByFieldName("object"), fn.ChildByFieldName("property")
		if prop != nil && mutators[fr.text(prop)] {
			if root := fr.root(obj); root != nil {
				fr.mutate(root, fr.text(root))
			}
		} else {
			fr.visit(obj)
		}
	default:
		fr.visit(fn)
	}
	fr.visit(n.ChildByFieldName("arguments"))
}

func (fr *fragment) closure(n *sitter.Node) {
	if n.Type() == "function_declaration" || n.Type() == "generator_function_declaration" {
		if name := n.ChildByFieldName("name"); name != nil {
			if s := fr.declScope(false); s != nil {
				s.names[fr.text(name)] = true
			} else {
				fr.write(name, fr.text(name), "=")
			}
		}
	}
	fr.functions++
	fr.push(true)
	if n.Type() != "function_declaration" && n.Type() != "generator_function_declaration" {
		if name := n.ChildByFieldName("name"); name != nil {
			fr.bind(fr.text(name))
		}
	}
	fr.bindPattern(n.ChildByFieldName("parameter"))
	if ps := n.ChildByFieldName("parameters"); ps != nil {
		for i := 0; i < int(ps.NamedChildCount()); i++ {
			fr.bindPattern(ps.NamedChild(i))
		}
	}
	fr.visit(n.ChildByFieldName("body"))
	fr.pop()
	fr.functions--
}

// declare binds the names of a declarator pattern, locally when a scope
// owns the declaration and as global writes otherwise.
func (fr *fragment) declare(pattern *sitter.Node, lexical bool) {
	for _, id := range fr.patternNames(pattern, nil) {
		name := fr.text(id)
		if s := fr.declScope(lexical); s != nil {
			s.names[name] = true
			continue
		}
		fr.write(id, name, "=")
	}
}

func (fr *fragment) bindPattern(pattern *sitter.Node) {
	for _, id := range fr.patternNames(pattern, nil) {
		fr.bind(fr.text(id))
	}
}

// patternNames collects the identifier nodes a binding pattern introduces.
// Default values inside the pattern are visited as uses.
func (fr *fragment) patternNames(n *sitter.Node, out []*sitter.Node) []*sitter.Node {
	if n == nil {
		return out
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern", "shorthand_property_identifier":
		return append(out, n)
	case "assignment_pattern", "object_assignment_pattern":
		fr.visit(n.ChildByFieldName("right"))
		return fr.patternNames(n.ChildByFieldName("left"), out)
	case "pair_pattern":
		return fr.patternNames(n.ChildByFieldName("value"), out)
	case "object_pattern", "array_pattern", "rest_pattern", "formal_parameters":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			out = fr.patternNames(n.NamedChild(i), out)
		}
	}
	return out
}
