package eval

import (
	"math"
	"regexp"
	"strings"

	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/value"
)

// formKind is the top-level construct of an expression.
type formKind int

const (
	formRaw formKind = iota
	formLiteral
	formIdent
	formNot
	formTypeof
	formArrow
	formTernary
	formLogical
	formCompare
	formArith
	formUnary
	formTemplate
	formArray
	formObject
	formParen
	formChain
)

// form is the decomposition of one expression at its top nesting level.
// Operands stay as text; both the tree walker and the compiler recurse on
// them. parseForm is pure, so a form depends only on the expression text.
type form struct {
	kind  formKind
	text  string
	op    string
	lit   value.Value
	sub   []string
	fn    *arrowForm
	tmpl  []tmplPart
	props []prop
	chain *chain
}

type arrowForm struct {
	name     string
	params   []string
	defaults []string
	expr     string
	body     string
	block    bool
}

type tmplPart struct {
	text string
	expr bool
}

type prop struct {
	key      string
	computed bool
	value    string
	spread   bool
}

type baseKind int

const (
	baseIdent baseKind = iota
	baseParen
	baseLiteral
	baseNew
)

type accKind int

const (
	accProp accKind = iota
	accIndex
	accCall
)

type accessor struct {
	kind     accKind
	name     string
	expr     string
	args     []string
	optional bool
}

// chain is a base expression followed by member, index and call accessors.
type chain struct {
	kind baseKind
	base string
	args []string
	accs []accessor
}

var (
	numberLiteral = regexp.MustCompile(`^(?:0[xX][0-9a-fA-F]+|(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?)$`)

	constants = map[string]value.Value{
		"true":      value.Bool(true),
		"false":     value.Bool(false),
		"null":      value.Null(),
		"undefined": value.Null(),
	}

	logicalLevels = [][]string{{"||", "??"}, {"&&"}}
	compareLevels = [][]string{{"===", "!==", "==", "!="}, {"<", "<=", ">", ">="}}
	arithLevels   = [][]string{{"+", "-"}, {"*", "/", "%"}}
)

// parseForm decomposes expr. The checks run in a fixed order and the first
// one that matches wins.
func parseForm(expr string) form {
	s := strings.TrimSpace(expr)
	f := form{kind: formRaw, text: s}
	if s == "" {
		f.kind = formLiteral
		return f
	}
	if ast.HasWordPrefix(s, "await") && len(s) > len("await") {
		return parseForm(s[len("await"):])
	}
	if v, ok := literal(s); ok {
		f.kind, f.lit = formLiteral, v
		return f
	}
	if ast.IsIdentifier(s) {
		f.kind = formIdent
		return f
	}

	if s[0] == '!' {
		if operand := strings.TrimSpace(s[1:]); operand != "" && !hasTopOperator(operand) {
			f.kind, f.sub = formNot, []string{operand}
			return f
		}
	}
	if ast.HasWordPrefix(s, "typeof") {
		if operand := strings.TrimSpace(s[len("typeof"):]); operand != "" && !hasTopOperator(operand) {
			f.kind, f.sub = formTypeof, []string{operand}
			return f
		}
	}
	if a, ok := parseArrow(s); ok {
		f.kind, f.fn = formArrow, a
		return f
	}
	if cond, yes, no, ok := splitTernary(s); ok {
		f.kind, f.sub = formTernary, []string{cond, yes, no}
		return f
	}
	for _, ops := range logicalLevels {
		if l, op, r, ok := splitBinary(s, ops, false); ok {
			f.kind, f.op, f.sub = formLogical, op, []string{l, r}
			return f
		}
	}
	for _, ops := range compareLevels {
		if l, op, r, ok := splitBinary(s, ops, false); ok {
			f.kind, f.op, f.sub = formCompare, op, []string{l, r}
			return f
		}
	}
	for _, ops := range arithLevels {
		if l, op, r, ok := splitBinary(s, ops, false); ok {
			f.kind, f.op, f.sub = formArith, op, []string{l, r}
			return f
		}
	}
	// Exponentiation is right-associative.
	if l, op, r, ok := splitBinary(s, []string{"**"}, true); ok {
		f.kind, f.op, f.sub = formArith, op, []string{l, r}
		return f
	}
	if (s[0] == '-' || s[0] == '+') && !strings.HasPrefix(s, "--") && !strings.HasPrefix(s, "++") {
		if operand := strings.TrimSpace(s[1:]); operand != "" {
			f.kind, f.op, f.sub = formUnary, s[:1], []string{operand}
			return f
		}
	}

	switch s[0] {
	case '`':
		if ast.SkipString(s, 0) == len(s) {
			f.kind, f.tmpl = formTemplate, splitTemplate(s[1:len(s)-1])
			return f
		}
	case '"', '\'':
		if ast.SkipString(s, 0) == len(s) && len(s) >= 2 && s[len(s)-1] == s[0] {
			f.kind, f.lit = formLiteral, value.String(value.Unescape(s[1:len(s)-1]))
			return f
		}
	case '[':
		if ast.Wrapped(s, '[') {
			f.kind, f.sub = formArray, ast.SplitTop(s[1:len(s)-1], ',')
			return f
		}
	case '{':
		if ast.Wrapped(s, '{') {
			if props, ok := parseProps(s[1 : len(s)-1]); ok {
				f.kind, f.props = formObject, props
				return f
			}
		}
	}

	if c, ok := parseChain(s); ok {
		if c.kind == baseParen && len(c.accs) == 0 {
			f.kind, f.sub = formParen, []string{c.base}
			return f
		}
		f.kind, f.chain = formChain, c
		return f
	}

	f.lit = value.String(s)
	return f
}

// literal recognises number literals and the keyword constants.
func literal(s string) (value.Value, bool) {
	if v, ok := constants[s]; ok {
		return v, true
	}
	switch s {
	case "NaN":
		return value.Number(math.NaN()), true
	case "Infinity":
		return value.Number(math.Inf(1)), true
	}
	if numberLiteral.MatchString(s) {
		return value.Number(value.ParseNumber(s)), true
	}
	return value.Null(), false
}

// operatorTokens lists punctuators longest first so a scan always consumes
// a whole token.
var operatorTokens = []string{
	">>>=", "===", "!==", "**=", "...", "&&=", "||=", "??=", ">>>", "<<=", ">>=",
	"==", "!=", "<=", ">=", "&&", "||", "??", "?.", "=>", "**", "++", "--",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<", ">>",
	"+", "-", "*", "/", "%", "<", ">", "=", "!", "?", ":", "&", "|", "^", "~", ",", ".", ";",
}

// prefixWords are keywords after which an operand is still expected.
var prefixWords = map[string]bool{
	"typeof": true, "new": true, "void": true, "delete": true, "await": true,
	"return": true, "in": true, "instanceof": true, "of": true, "throw": true,
}

func tokenAt(s string, i int) string {
	for _, t := range operatorTokens {
		if strings.HasPrefix(s[i:], t) {
			if t == "?." && i+2 < len(s) && isDigit(s[i+2]) {
				return "?"
			}
			return t
		}
	}
	return ""
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c) || c >= 0x80
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// scanNumber returns the end of the number literal starting at s[i].
func scanNumber(s string, i int) int {
	j := i
	for j < len(s) && (isIdentByte(s[j]) || s[j] == '.') {
		if (s[j] == 'e' || s[j] == 'E') && j+1 < len(s) && (s[j+1] == '+' || s[j+1] == '-') &&
			!strings.HasPrefix(s[i:], "0x") && !strings.HasPrefix(s[i:], "0X") {
			j += 2
			continue
		}
		j++
	}
	return j
}

// scanOperators calls fn for every punctuator at bracket depth zero. binary
// reports whether the token follows a complete operand, which tells a binary
// minus from a unary one.
func scanOperators(s string, fn func(at int, tok string, binary bool) bool) {
	depth := 0
	operand := false
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			i = ast.SkipString(s, i)
			operand = true
			continue
		case c == '(' || c == '[' || c == '{':
			depth++
			operand = false
			i++
			continue
		case c == ')' || c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
			operand = true
			i++
			continue
		case isSpace(c):
			i++
			continue
		case isDigit(c):
			i = scanNumber(s, i)
			operand = true
			continue
		case isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			operand = !prefixWords[s[i:j]]
			i = j
			continue
		}
		tok := tokenAt(s, i)
		if tok == "" {
			operand = false
			i++
			continue
		}
		if depth == 0 && !fn(i, tok, operand) {
			return
		}
		if !((tok == "++" || tok == "--") && operand) {
			operand = false
		}
		i += len(tok)
	}
}

// hasTopOperator reports whether s contains a binary, ternary or assignment
// operator outside brackets and strings.
func hasTopOperator(s string) bool {
	found := false
	scanOperators(s, func(_ int, tok string, binary bool) bool {
		switch tok {
		case ".", "?.", "...", "!", "~", "++", "--":
			return true
		}
		if binary || tok == "=>" || tok == "," {
			found = true
			return false
		}
		return true
	})
	return found
}

// splitBinary splits s at the last top-level operator from ops, or the first
// one when first is set. Both sides must be non-empty.
func splitBinary(s string, ops []string, first bool) (l, op, r string, ok bool) {
	at := -1
	scanOperators(s, func(i int, tok string, binary bool) bool {
		if !binary {
			return true
		}
		for _, o := range ops {
			if tok == o {
				at, op = i, tok
				return !first
			}
		}
		return true
	})
	if at < 0 {
		return "", "", "", false
	}
	l, r = strings.TrimSpace(s[:at]), strings.TrimSpace(s[at+len(op):])
	if l == "" || r == "" {
		return "", "", "", false
	}
	return l, op, r, true
}

// splitTernary splits "cond ? a : b" at the first top-level question mark and
// its matching colon.
func splitTernary(s string) (cond, yes, no string, ok bool) {
	q, colon, depth := -1, -1, 0
	scanOperators(s, func(i int, tok string, _ bool) bool {
		switch tok {
		case "?":
			if q < 0 {
				q = i
			} else {
				depth++
			}
		case ":":
			if q < 0 {
				return true
			}
			if depth == 0 {
				colon = i
				return false
			}
			depth--
		}
		return true
	})
	if q < 0 || colon < 0 {
		return "", "", "", false
	}
	cond = strings.TrimSpace(s[:q])
	yes = strings.TrimSpace(s[q+1 : colon])
	no = strings.TrimSpace(s[colon+1:])
	if cond == "" || yes == "" || no == "" {
		return "", "", "", false
	}
	return cond, yes, no, true
}

// parseArrow recognises arrow functions and function expressions.
func parseArrow(s string) (*arrowForm, bool) {
	src := s
	if ast.HasWordPrefix(src, "async") {
		src = strings.TrimSpace(src[len("async"):])
	}
	if ast.HasWordPrefix(src, "function") {
		rest := strings.TrimSpace(src[len("function"):])
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "*"))
		name := ast.FirstWord(rest)
		rest = strings.TrimSpace(rest[len(name):])
		if rest == "" || rest[0] != '(' {
			return nil, false
		}
		end := ast.MatchingClose(rest, 0)
		if end < 0 {
			return nil, false
		}
		body := strings.TrimSpace(rest[end+1:])
		if !ast.Wrapped(body, '{') {
			return nil, false
		}
		params, defaults := ast.SplitParams(rest[1:end])
		return &arrowForm{name: name, params: params, defaults: defaults, body: body[1 : len(body)-1], block: true}, true
	}

	at := ast.IndexTop(src, "=>")
	if at <= 0 {
		return nil, false
	}
	head := strings.TrimSpace(src[:at])
	a := &arrowForm{}
	switch {
	case ast.IsIdentifier(head):
		a.params, a.defaults = []string{head}, []string{""}
	case ast.Wrapped(head, '('):
		a.params, a.defaults = ast.SplitParams(head[1 : len(head)-1])
	default:
		return nil, false
	}
	body := strings.TrimSpace(src[at+2:])
	if body == "" {
		return nil, false
	}
	if ast.Wrapped(body, '{') {
		a.body, a.block = body[1:len(body)-1], true
	} else {
		a.expr = body
	}
	return a, true
}

// splitTemplate splits the inside of a template literal into raw text and
// ${...} expressions. Raw text is unescaped.
func splitTemplate(s string) []tmplPart {
	var parts []tmplPart
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			parts = append(parts, tmplPart{text: value.Unescape(sb.String())})
			sb.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			sb.WriteByte(c)
			sb.WriteByte(s[i+1])
			i++
		case c == '$' && i+1 < len(s) && s[i+1] == '{':
			end := ast.MatchingClose(s, i+1)
			if end < 0 {
				sb.WriteString(s[i:])
				i = len(s)
				continue
			}
			flush()
			parts = append(parts, tmplPart{text: strings.TrimSpace(s[i+2 : end]), expr: true})
			i = end
		default:
			sb.WriteByte(c)
		}
	}
	flush()
	return parts
}

// parseProps parses the inside of an object literal.
func parseProps(s string) ([]prop, bool) {
	var props []prop
	for _, p := range ast.SplitTop(s, ',') {
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "...") {
			props = append(props, prop{value: strings.TrimSpace(p[3:]), spread: true})
			continue
		}
		colon := ast.IndexTop(p, ":")
		if colon < 0 {
			name := ast.FirstWord(p)
			switch rest := strings.TrimSpace(p[len(name):]); {
			case ast.IsIdentifier(name) && rest == "":
				props = append(props, prop{key: name, value: name})
			case name != "" && strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, "}"):
				props = append(props, prop{key: name, value: "function " + rest})
			default:
				return nil, false
			}
			continue
		}
		key := strings.TrimSpace(p[:colon])
		val := strings.TrimSpace(p[colon+1:])
		pr := prop{value: val}
		switch {
		case key == "":
			return nil, false
		case ast.Wrapped(key, '['):
			pr.key, pr.computed = key[1:len(key)-1], true
		case (key[0] == '"' || key[0] == '\'') && ast.SkipString(key, 0) == len(key):
			pr.key = value.Unescape(key[1 : len(key)-1])
		case isKeyWord(key):
			pr.key = key
		default:
			return nil, false
		}
		props = append(props, pr)
	}
	return props, true
}

func isKeyWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) && s[i] != '.' {
			return false
		}
	}
	return s != ""
}

// parseChain parses a base expression followed by accessors. The base is an
// identifier, a parenthesised expression, a literal or a new expression.
func parseChain(s string) (*chain, bool) {
	c := &chain{}
	i := 0
	switch ch := s[0]; {
	case ast.HasWordPrefix(s, "new"):
		j := skipSpace(s, len("new"))
		name := ast.FirstWord(s[j:])
		if !ast.IsIdentifier(name) {
			return nil, false
		}
		c.kind, c.base = baseNew, name
		i = skipSpace(s, j+len(name))
		if i < len(s) && s[i] == '(' {
			end := ast.MatchingClose(s, i)
			if end < 0 {
				return nil, false
			}
			c.args = ast.SplitTop(s[i+1:end], ',')
			i = end + 1
		}
	case ch == '(' || ch == '[' || ch == '{':
		end := ast.MatchingClose(s, 0)
		if end < 0 {
			return nil, false
		}
		if ch == '(' {
			c.kind, c.base = baseParen, strings.TrimSpace(s[1:end])
		} else {
			c.kind, c.base = baseLiteral, s[:end+1]
		}
		i = end + 1
	case ch == '"' || ch == '\'' || ch == '`':
		end := ast.SkipString(s, 0)
		c.kind, c.base = baseLiteral, s[:end]
		i = end
	default:
		name := ast.FirstWord(s)
		if !ast.IsIdentifier(name) {
			return nil, false
		}
		c.kind, c.base = baseIdent, name
		i = len(name)
	}

	for {
		i = skipSpace(s, i)
		if i >= len(s) {
			break
		}
		var acc accessor
		switch {
		case strings.HasPrefix(s[i:], "?."):
			acc.optional = true
			i = skipSpace(s, i+2)
			if i >= len(s) {
				return nil, false
			}
			if s[i] != '(' && s[i] != '[' {
				name := ast.FirstWord(s[i:])
				if name == "" {
					return nil, false
				}
				acc.kind, acc.name = accProp, name
				i += len(name)
				c.accs = append(c.accs, acc)
				continue
			}
		case s[i] == '.':
			i = skipSpace(s, i+1)
			name := ast.FirstWord(s[i:])
			if name == "" {
				return nil, false
			}
			acc.kind, acc.name = accProp, name
			i += len(name)
			c.accs = append(c.accs, acc)
			continue
		}
		switch s[i] {
		case '[':
			end := ast.MatchingClose(s, i)
			if end < 0 {
				return nil, false
			}
			acc.kind, acc.expr = accIndex, strings.TrimSpace(s[i+1:end])
			i = end + 1
		case '(':
			end := ast.MatchingClose(s, i)
			if end < 0 {
				return nil, false
			}
			acc.kind, acc.args = accCall, ast.SplitTop(s[i+1:end], ',')
			i = end + 1
		default:
			return nil, false
		}
		c.accs = append(c.accs, acc)
	}
	if c.kind == baseLiteral && len(c.accs) == 0 {
		return nil, false
	}
	return c, true
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

// hasCall reports whether any accessor is a call.
func (c *chain) hasCall() bool {
	for _, a := range c.accs {
		if a.kind == accCall {
			return true
		}
	}
	return false
}

// memberOnly reports whether the chain is an identifier followed only by
// plain property and index accessors.
func (c *chain) memberOnly() bool {
	if c.kind != baseIdent {
		return false
	}
	for _, a := range c.accs {
		if a.kind == accCall || a.optional {
			return false
		}
	}
	return true
}
