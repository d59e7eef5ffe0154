package exec

import (
	"strings"

	"github.com/l3aro/go-template-script/pkg/ast"
)

// simpleKind is the closed classification of a non-compound statement.
type simpleKind int

const (
	kindEmpty simpleKind = iota
	kindReturnVoid
	kindReturnValue
	kindCompound
	kindVarDecl
	kindAppend
	kindIncrement
	kindDecrement
	kindCompoundAssign
	kindIndexAssign
	kindPropertyAssign
	kindAssign
	kindCall
	kindOther
)

var kindNames = [...]string{
	kindEmpty:          "empty",
	kindReturnVoid:     "return_void",
	kindReturnValue:    "return_value",
	kindCompound:       "compound",
	kindVarDecl:        "var_decl",
	kindAppend:         "append",
	kindIncrement:      "increment",
	kindDecrement:      "decrement",
	kindCompoundAssign: "compound_assign",
	kindIndexAssign:    "index_assign",
	kindPropertyAssign: "property_assign",
	kindAssign:         "assign",
	kindCall:           "call",
	kindOther:          "other",
}

func (k simpleKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// decl is one declarator of a let/const/var list.
type decl struct {
	pattern string
	init    string
}

// simple is a classified statement. Only the fields of its kind are set.
type simple struct {
	kind   simpleKind
	target string // assignment or increment target
	op     string // binary operator of a compound assignment
	expr   string // value expression
	decls  []decl
	nodes  []*ast.StatementNode // compound
}

var controlWords = map[string]bool{
	"if": true, "for": true, "while": true, "function": true,
	"try": true, "do": true, "switch": true,
}

// classify inspects statement text once. The result is immutable and may be
// shared between runs.
func classify(code string) *simple {
	s := strings.TrimSpace(code)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(s[:len(s)-1])
	}
	if s == "" || s == "{}" {
		return &simple{kind: kindEmpty}
	}
	if s == "return" {
		return &simple{kind: kindReturnVoid}
	}
	if ast.HasWordPrefix(s, "return") {
		return &simple{kind: kindReturnValue, expr: strings.TrimSpace(s[len("return"):])}
	}
	if controlWords[ast.FirstWord(s)] || ast.IndexTop(s, ";") >= 0 {
		if nodes := ast.BuildDynamic(s); !opaque(nodes, s) {
			return &simple{kind: kindCompound, nodes: nodes}
		}
	}
	switch w := ast.FirstWord(s); w {
	case "let", "const", "var":
		if len(s) > len(w) && (s[len(w)] == ' ' || s[len(w)] == '\t' || s[len(w)] == '\n') {
			return &simple{kind: kindVarDecl, decls: declarators(s[len(w):])}
		}
	}
	if t, ok := step(s, "++"); ok {
		return &simple{kind: kindIncrement, target: t}
	}
	if t, ok := step(s, "--"); ok {
		return &simple{kind: kindDecrement, target: t}
	}
	if a, ok := ast.SplitAssignment(s); ok {
		switch {
		case a.Target == outputVar && a.Op == "+=":
			return &simple{kind: kindAppend, target: a.Target, expr: a.Value}
		case a.Op != "=":
			return &simple{kind: kindCompoundAssign, target: a.Target, op: strings.TrimSuffix(a.Op, "="), expr: a.Value}
		case ast.IsIdentifier(a.Target):
			return &simple{kind: kindAssign, target: a.Target, expr: a.Value}
		case strings.HasSuffix(a.Target, "]"):
			return &simple{kind: kindIndexAssign, target: a.Target, expr: a.Value}
		default:
			return &simple{kind: kindPropertyAssign, target: a.Target, expr: a.Value}
		}
	}
	if strings.HasSuffix(s, ")") {
		return &simple{kind: kindCall, expr: s}
	}
	return &simple{kind: kindOther, expr: s}
}

// opaque reports whether building s produced nothing more than s itself.
func opaque(nodes []*ast.StatementNode, s string) bool {
	if len(nodes) == 0 {
		return true
	}
	if len(nodes) > 1 {
		return false
	}
	n := nodes[0]
	switch n.Type {
	case ast.StatementExpression, ast.StatementAssignment, ast.StatementVarDecl:
		return strings.TrimSpace(n.Code) == s
	}
	return false
}

func declarators(list string) []decl {
	var out []decl
	for _, part := range ast.SplitTop(strings.TrimSpace(list), ',') {
		if part == "" {
			continue
		}
		if eq := ast.IndexTop(part, "="); eq > 0 {
			out = append(out, decl{pattern: strings.TrimSpace(part[:eq]), init: strings.TrimSpace(part[eq+1:])})
			continue
		}
		out = append(out, decl{pattern: part})
	}
	return out
}

// step matches "x++" and "++x" style statements for op.
func step(s, op string) (string, bool) {
	var t string
	switch {
	case strings.HasSuffix(s, op):
		t = strings.TrimSpace(s[:len(s)-len(op)])
	case strings.HasPrefix(s, op):
		t = strings.TrimSpace(s[len(op):])
	default:
		return "", false
	}
	return t, ast.IsTarget(t)
}

// splitTarget splits a member target into its object expression and the
// final key. computed is set for a bracketed key.
func splitTarget(target string) (object, key string, computed, ok bool) {
	at := -1
	ast.Scan(target, func(i, depth int) bool {
		if depth == 0 && (target[i] == '.' || target[i] == '[') {
			at = i
		}
		return true
	})
	if at <= 0 {
		return "", "", false, false
	}
	object = strings.TrimSpace(target[:at])
	if target[at] == '.' {
		return object, strings.TrimSpace(target[at+1:]), false, true
	}
	end := ast.MatchingClose(target, at)
	if end < 0 {
		return "", "", false, false
	}
	return object, strings.TrimSpace(target[at+1 : end]), true, true
}
