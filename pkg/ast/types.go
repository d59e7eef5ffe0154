// Package ast defines the statement tree produced from template script blocks
// and the lexer/builder that produce it.
package ast

// NodeID identifies a StatementNode within one TemplateAST. IDs are issued in
// pre-order starting at 1, so identical input always yields identical IDs.
// Nodes built at run time (arrow-function bodies) carry ID 0.
type NodeID int

// StatementType tags the kind of a statement node.
type StatementType string

const (
	StatementVarDecl       StatementType = "var_decl"      // let/const/var declaration
	StatementAssignment    StatementType = "assignment"    // x = ..., x += ..., a[i] = ...
	StatementExpression    StatementType = "expression"    // calls, increments, opaque text
	StatementIf            StatementType = "if"            // if / else if / else chain
	StatementFor           StatementType = "for"           // for (init; cond; step)
	StatementForOf         StatementType = "for_of"        // for (x of iterable)
	StatementForIn         StatementType = "for_in"        // for (k in object)
	StatementWhile         StatementType = "while"         // while (cond)
	StatementFunctionDecl  StatementType = "function_decl" // function name(params) { ... }
	StatementReturn        StatementType = "return"        // return [expr]
	StatementBreak         StatementType = "break"         // break
	StatementContinue      StatementType = "continue"      // continue
	StatementThrow         StatementType = "throw"         // throw expr
	StatementTry           StatementType = "try"           // try / catch / finally
	StatementBlock         StatementType = "block"         // bare { ... }
	StatementComment       StatementType = "comment"       // // comment line
	StatementBlockStart    StatementType = "block_start"   // opening delimiter of a script block
	StatementBlockEnd      StatementType = "block_end"     // closing delimiter of a script block
	StatementInterpolation StatementType = "interpolation" // <% expr %> substitution
)

// Executable reports whether statements of this type can be paused on.
func (t StatementType) Executable() bool {
	switch t {
	case StatementComment, StatementBlockStart, StatementBlockEnd:
		return false
	default:
		return true
	}
}

// Branch is one else-if (Condition set) or trailing else (Condition empty)
// arm of an if chain.
type Branch struct {
	Condition string           `json:"condition,omitempty"`
	Body      []*StatementNode `json:"body"`
	Line      int              `json:"line,omitempty"`
}

// IsElse reports whether the branch is the bare trailing else.
func (b Branch) IsElse() bool {
	return b.Condition == ""
}

// StatementNode is one statement of a script block.
type StatementNode struct {
	ID   NodeID        `json:"id"`
	Type StatementType `json:"type"`
	Code string        `json:"code"`           // full statement, or the header of a compound statement
	Line int           `json:"line,omitempty"` // 1-based document line, 0 when unknown

	Body         []*StatementNode `json:"body,omitempty"`
	ElseBranches []Branch         `json:"else_branches,omitempty"`

	Condition string `json:"condition,omitempty"` // if, while, for
	Init      string `json:"init,omitempty"`      // for
	Step      string `json:"step,omitempty"`      // for
	Var       string `json:"var,omitempty"`       // for-of / for-in binding name
	VarKind   string `json:"var_kind,omitempty"`  // let, const, var or empty
	Iterable  string `json:"iterable,omitempty"`  // for-of / for-in source
	Expr      string `json:"expr,omitempty"`      // return, throw, interpolation

	Name     string   `json:"name,omitempty"`     // function name
	Params   []string `json:"params,omitempty"`   // function parameters
	Defaults []string `json:"defaults,omitempty"` // default expressions, parallel to Params

	CatchParam  string           `json:"catch_param,omitempty"`
	CatchBody   []*StatementNode `json:"catch_body,omitempty"`
	HasCatch    bool             `json:"has_catch,omitempty"`
	FinallyBody []*StatementNode `json:"finally_body,omitempty"`
}

// Dynamic reports whether the node was built at run time and has no stable id.
func (n *StatementNode) Dynamic() bool {
	return n.ID == 0
}

// Executable reports whether a breakpoint may resolve to this node.
func (n *StatementNode) Executable() bool {
	return n.Type.Executable()
}

// IsLoop reports whether the node is a loop header.
func (n *StatementNode) IsLoop() bool {
	switch n.Type {
	case StatementFor, StatementForOf, StatementForIn, StatementWhile:
		return true
	}
	return false
}

// Children returns every nested statement list in execution order.
func (n *StatementNode) Children() [][]*StatementNode {
	var out [][]*StatementNode
	if len(n.Body) > 0 {
		out = append(out, n.Body)
	}
	for _, b := range n.ElseBranches {
		out = append(out, b.Body)
	}
	if len(n.CatchBody) > 0 {
		out = append(out, n.CatchBody)
	}
	if len(n.FinallyBody) > 0 {
		out = append(out, n.FinallyBody)
	}
	return out
}

// BlockKind distinguishes script blocks embedded in a document.
type BlockKind string

const (
	BlockExecution     BlockKind = "execution"     // <%* ... %>
	BlockInterpolation BlockKind = "interpolation" // <% ... %>
)

// SourceBlock is one script block handed to BuildTemplate.
type SourceBlock struct {
	Kind      BlockKind
	Code      string
	StartLine int // document line of the first character of Code
	EndLine   int // document line of the closing delimiter
}

// Block is a built script block.
type Block struct {
	Index     int              `json:"index"`
	Kind      BlockKind        `json:"kind"`
	StartLine int              `json:"start_line"`
	EndLine   int              `json:"end_line"`
	Nodes     []*StatementNode `json:"nodes"`
}

// TemplateAST is the statement tree of a whole document.
type TemplateAST struct {
	Blocks []*Block         `json:"blocks"`
	Roots  []*StatementNode `json:"roots"`
	All    []*StatementNode `json:"-"`
	Lines  []string         `json:"-"`
	byID   map[NodeID]*StatementNode
}

// Node returns the node with the given id.
func (t *TemplateAST) Node(id NodeID) (*StatementNode, bool) {
	if t == nil {
		return nil, false
	}
	n, ok := t.byID[id]
	return n, ok
}

// SourceLine returns the raw document text of a 1-based line.
func (t *TemplateAST) SourceLine(line int) string {
	if t == nil || line < 1 || line > len(t.Lines) {
		return ""
	}
	return t.Lines[line-1]
}

// Executable returns the flattened executable statements in pre-order.
func (t *TemplateAST) Executable() []*StatementNode {
	out := make([]*StatementNode, 0, len(t.All))
	for _, n := range t.All {
		if n.Executable() {
			out = append(out, n)
		}
	}
	return out
}

// index rebuilds All and the id lookup from Roots.
func (t *TemplateAST) index() {
	t.All = t.All[:0]
	t.byID = make(map[NodeID]*StatementNode)
	var walk func(nodes []*StatementNode)
	walk = func(nodes []*StatementNode) {
		for _, n := range nodes {
			t.All = append(t.All, n)
			t.byID[n.ID] = n
			for _, list := range n.Children() {
				walk(list)
			}
		}
	}
	walk(t.Roots)
}

// Walk visits every node of the list and its descendants in pre-order.
func Walk(nodes []*StatementNode, fn func(*StatementNode) bool) {
	for _, n := range nodes {
		if !fn(n) {
			continue
		}
		for _, list := range n.Children() {
			Walk(list, fn)
		}
	}
}
