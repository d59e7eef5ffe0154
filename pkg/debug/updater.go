package debug

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/value"
)

// VariableUpdater edits a live variable from raw host input.
type VariableUpdater interface {
	UpdateVariable(name, raw string) bool
}

// RawKind is the heuristic class of raw variable input.
type RawKind string

const (
	RawString     RawKind = "string"     // quoted
	RawNumber     RawKind = "number"     // numeric literal
	RawLiteral    RawKind = "literal"    // true, false, null, undefined
	RawStructure  RawKind = "structure"  // array or object literal
	RawExpression RawKind = "expression" // arithmetic over numbers, strings and bound names
	RawText       RawKind = "text"       // anything else, stored verbatim
)

var arithToken = regexp.MustCompile(`^\s*(?:(\d+(?:\.\d+)?)|('[^']*'|"[^"]*")|([A-Za-z_$][\w$]*)(?:\.[A-Za-z_$][\w$]*)*|([-+*/%])|([()]))`)

// ClassifyRaw classifies raw host input. bound reports whether a name is
// defined; a nil bound treats every name as undefined, so only arithmetic
// over literals counts as an expression.
func ClassifyRaw(raw string, bound func(name string) bool) RawKind {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && strings.ContainsRune(`'"`+"`", rune(s[0])) && s[len(s)-1] == s[0] && ast.SkipString(s, 0) == len(s) {
		return RawString
	}
	switch s {
	case "true", "false", "null", "undefined":
		return RawLiteral
	}
	if s != "" && !math.IsNaN(value.ParseNumber(s)) {
		return RawNumber
	}
	if (ast.Wrapped(s, '[') || ast.Wrapped(s, '{')) && ast.Balanced(s) {
		return RawStructure
	}
	if isArithmetic(s, bound) {
		return RawExpression
	}
	return RawText
}

// isArithmetic reports whether s is operands joined by at least one binary
// operator, where every operand is a number, a quoted string or a bound
// name. Numbers with a leading zero ("01") reject the input so dates and
// version-like text stay text.
func isArithmetic(s string, bound func(string) bool) bool {
	operand, depth, ops := false, 0, 0
	for rest := s; strings.TrimSpace(rest) != ""; {
		m := arithToken.FindStringSubmatch(rest)
		if m == nil {
			return false
		}
		rest = rest[len(m[0]):]
		switch {
		case m[1] != "":
			if operand || (len(m[1]) > 1 && m[1][0] == '0' && m[1][1] != '.') {
				return false
			}
			operand = true
		case m[2] != "":
			if operand {
				return false
			}
			operand = true
		case m[3] != "":
			if operand || bound == nil || !bound(m[3]) {
				return false
			}
			operand = true
		case m[4] != "":
			if operand {
				ops++
			} else if m[4] != "-" && m[4] != "+" {
				return false
			}
			operand = false
		case m[5] == "(":
			if operand {
				return false
			}
			depth++
		default:
			if !operand || depth == 0 {
				return false
			}
			depth--
		}
	}
	return operand && depth == 0 && ops > 0
}

// StoreUpdater writes classified input into a store. Everything except
// RawText is evaluated with the expression evaluator first.
type StoreUpdater struct {
	Store     *value.Store
	Evaluator *eval.Evaluator
}

var _ VariableUpdater = (*StoreUpdater)(nil)

// Classify classifies raw against the names bound in the store.
func (u *StoreUpdater) Classify(raw string) RawKind {
	if u.Store == nil {
		return ClassifyRaw(raw, nil)
	}
	return ClassifyRaw(raw, u.Store.Has)
}

// UpdateVariable implements VariableUpdater. It returns false for an invalid
// name or input that fails to evaluate.
func (u *StoreUpdater) UpdateVariable(name, raw string) bool {
	if u.Store == nil || !ast.IsIdentifier(name) {
		return false
	}
	ev := u.Evaluator
	if ev == nil {
		ev = eval.New()
	}
	if u.Classify(raw) == RawText {
		u.Store.Set(name, value.String(raw))
		return true
	}
	env := eval.NewEnv(context.Background(), u.Store)
	v := ev.Evaluate(env, strings.TrimSpace(raw))
	if env.TakeFault() != nil {
		return false
	}
	u.Store.Set(name, v)
	return true
}
