package ast

import (
	"strings"
)

// span is a half-open byte range of a comment.
type span struct {
	start, end int
}

// SkipString returns the index just past the string literal that starts at
// s[i], which must be a quote, an apostrophe or a backtick. Template literal
// substitutions are skipped as nested code. A quote or apostrophe string that
// is not closed on its line ends at the newline.
func SkipString(s string, i int) int {
	q := s[i]
	j := i + 1
	for j < len(s) {
		c := s[j]
		switch {
		case c == '\\':
			j += 2
			continue
		case c == q:
			return j + 1
		case q == '`' && c == '$' && j+1 < len(s) && s[j+1] == '{':
			end := MatchingClose(s, j+1)
			if end < 0 {
				return len(s)
			}
			j = end + 1
			continue
		case q != '`' && c == '\n':
			return j
		}
		j++
	}
	return len(s)
}

func closer(c byte) byte {
	switch c {
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return '}'
	}
}

// MatchingClose returns the index of the bracket that closes the one at
// s[open], skipping string literals and nested brackets. It returns -1 when
// the bracket is never closed or a mismatched closer is found first.
func MatchingClose(s string, open int) int {
	if open < 0 || open >= len(s) {
		return -1
	}
	var stack []byte
	for i := open; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\'', '`':
			i = SkipString(s, i) - 1
		case '(', '[', '{':
			stack = append(stack, closer(c))
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// Scan calls fn for every byte of s that lies outside string literals,
// together with the bracket depth enclosing that byte. Brackets themselves
// are reported at the depth of their surroundings. Scanning stops when fn
// returns false.
func Scan(s string, fn func(i, depth int) bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\'' || c == '`' {
			i = SkipString(s, i) - 1
			continue
		}
		if (c == ')' || c == ']' || c == '}') && depth > 0 {
			depth--
		}
		if !fn(i, depth) {
			return
		}
		if c == '(' || c == '[' || c == '{' {
			depth++
		}
	}
}

// IndexTop returns the index of the first occurrence of sub in s that is
// outside strings and brackets, or -1.
func IndexTop(s, sub string) int {
	found := -1
	Scan(s, func(i, depth int) bool {
		if depth == 0 && strings.HasPrefix(s[i:], sub) {
			found = i
			return false
		}
		return true
	})
	return found
}

// SplitTop splits s at every separator byte that is outside strings and
// brackets. Pieces are trimmed; a trailing empty piece is dropped.
func SplitTop(s string, sep byte) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var parts []string
	last := 0
	Scan(s, func(i, depth int) bool {
		if depth == 0 && s[i] == sep {
			parts = append(parts, strings.TrimSpace(s[last:i]))
			last = i + 1
		}
		return true
	})
	if tail := strings.TrimSpace(s[last:]); tail != "" || len(parts) == 0 {
		parts = append(parts, tail)
	}
	return parts
}

// Balanced reports whether every bracket in s is closed.
func Balanced(s string) bool {
	var stack []byte
	ok := true
	Scan(s, func(i, _ int) bool {
		switch c := s[i]; c {
		case '(', '[', '{':
			stack = append(stack, closer(c))
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				ok = false
				return false
			}
			stack = stack[:len(stack)-1]
		}
		return true
	})
	return ok && len(stack) == 0
}

// Wrapped reports whether s is entirely enclosed by the bracket pair starting
// at s[0], for example "(a + b)" but not "(a) + (b)".
func Wrapped(s string, open byte) bool {
	if len(s) < 2 || s[0] != open {
		return false
	}
	return MatchingClose(s, 0) == len(s)-1
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// IsIdentifier reports whether s is a plain identifier.
func IsIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return !reserved[s]
}

var reserved = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"function": true, "return": true, "break": true, "continue": true,
	"let": true, "const": true, "var": true, "new": true, "typeof": true,
	"true": true, "false": true, "null": true, "undefined": true,
	"try": true, "catch": true, "finally": true, "throw": true,
	"in": true, "of": true, "await": true, "async": true, "switch": true,
}

// FirstWord returns the leading identifier of s, or "".
func FirstWord(s string) string {
	i := 0
	for i < len(s) && isIdentByte(s[i]) {
		i++
	}
	return s[:i]
}

// HasWordPrefix reports whether s starts with the word w followed by a
// non-identifier byte or the end of s.
func HasWordPrefix(s, w string) bool {
	if !strings.HasPrefix(s, w) {
		return false
	}
	return len(s) == len(w) || !isIdentByte(s[len(w)])
}

// containsWord reports whether w occurs in s as a whole word.
func containsWord(s, w string) bool {
	for off := 0; ; {
		i := strings.Index(s[off:], w)
		if i < 0 {
			return false
		}
		i += off
		end := i + len(w)
		if (i == 0 || !isIdentByte(s[i-1])) && (end == len(s) || !isIdentByte(s[end])) {
			return true
		}
		off = i + 1
	}
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

// StripComments returns s with every comment replaced by spaces. Newlines are
// kept, so byte offsets and line numbers are unchanged.
func StripComments(s string) string {
	out, _ := stripComments(s)
	return out
}

func stripComments(s string) (string, []span) {
	var (
		b     []byte
		spans []span
	)
	blank := func(from, to int) {
		if b == nil {
			b = []byte(s)
		}
		for k := from; k < to; k++ {
			if b[k] != '\n' {
				b[k] = ' '
			}
		}
		spans = append(spans, span{from, to})
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			i = SkipString(s, i) - 1
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				j = len(s)
			} else {
				j += i
			}
			blank(i, j)
			i = j - 1
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				j = len(s)
			} else {
				j += i + 4
			}
			blank(i, j)
			i = j - 1
		}
	}
	if b == nil {
		return s, nil
	}
	return string(b), spans
}

// SplitParams splits a parameter list into names and default expressions.
// Defaults is parallel to names and holds "" for parameters without one.
func SplitParams(list string) (names, defaults []string) {
	for _, p := range SplitTop(list, ',') {
		if p == "" {
			continue
		}
		name, def := p, ""
		if eq := IndexTop(p, "="); eq > 0 {
			name, def = strings.TrimSpace(p[:eq]), strings.TrimSpace(p[eq+1:])
		}
		names = append(names, name)
		defaults = append(defaults, def)
	}
	return names, defaults
}

// Assignment is the decomposition of an assignment statement.
type Assignment struct {
	Target string // identifier, member path or indexed access
	Op     string // "=", "+=", "??=", ...
	Value  string
}

var compoundOps = []string{"**", "??", "||", "&&", "<<", ">>", "+", "-", "*", "/", "%", "&", "|", "^"}

// SplitAssignment decomposes "target op= value" when s is an assignment to an
// identifier, member or index target.
func SplitAssignment(s string) (Assignment, bool) {
	eq := -1
	Scan(s, func(i, depth int) bool {
		if depth != 0 || s[i] != '=' {
			return true
		}
		if i+1 < len(s) && (s[i+1] == '=' || s[i+1] == '>') {
			eq = -2
			return false
		}
		if i > 0 && (s[i-1] == '!' || s[i-1] == '=') {
			eq = -2
			return false
		}
		if i > 0 && (s[i-1] == '<' || s[i-1] == '>') && !(i > 1 && s[i-2] == s[i-1]) {
			eq = -2
			return false
		}
		eq = i
		return false
	})
	if eq <= 0 {
		return Assignment{}, false
	}
	lhs := strings.TrimRight(s[:eq], " \t")
	op := "="
	for _, c := range compoundOps {
		if strings.HasSuffix(lhs, c) {
			op = c + "="
			lhs = lhs[:len(lhs)-len(c)]
			break
		}
	}
	lhs = strings.TrimSpace(lhs)
	if !IsTarget(lhs) {
		return Assignment{}, false
	}
	return Assignment{Target: lhs, Op: op, Value: strings.TrimSpace(s[eq+1:])}, true
}

// IsTarget reports whether s is an assignable reference: an identifier
// followed by any number of ".name" or "[expr]" accessors.
func IsTarget(s string) bool {
	head := FirstWord(s)
	if !IsIdentifier(head) {
		return false
	}
	rest := s[len(head):]
	for rest != "" {
		rest = strings.TrimLeft(rest, " \t")
		switch {
		case rest == "":
			return true
		case rest[0] == '.':
			w := FirstWord(rest[1:])
			if w == "" {
				return false
			}
			rest = rest[1+len(w):]
		case rest[0] == '[':
			end := MatchingClose(rest, 0)
			if end < 0 {
				return false
			}
			rest = rest[end+1:]
		default:
			return false
		}
	}
	return true
}
