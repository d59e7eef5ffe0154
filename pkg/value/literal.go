package value

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Literal serializes v as script source that evaluates back to an equal
// value. Functions serialize to their source, or null when they have none.
func (v Value) Literal() string {
	var sb strings.Builder
	writeLiteral(&sb, v, map[any]bool{})
	return sb.String()
}

func writeLiteral(sb *strings.Builder, v Value, seen map[any]bool) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool, KindNumber:
		if v.kind == KindNumber && math.IsNaN(v.n) {
			sb.WriteString("NaN")
			return
		}
		sb.WriteString(v.String())
	case KindString:
		sb.WriteString(Quote(v.s))
	case KindArray:
		if seen[v.arr] {
			sb.WriteString("null")
			return
		}
		seen[v.arr] = true
		defer delete(seen, v.arr)
		sb.WriteByte('[')
		for i, it := range v.arr.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeLiteral(sb, it, seen)
		}
		sb.WriteByte(']')
	case KindObject:
		if v.obj.IsDate() {
			fmt.Fprintf(sb, "new Date(%d)", v.obj.Time().UnixMilli())
			return
		}
		if seen[v.obj] {
			sb.WriteString("null")
			return
		}
		seen[v.obj] = true
		defer delete(seen, v.obj)
		sb.WriteByte('{')
		for i, k := range v.obj.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(Quote(k))
			sb.WriteString(": ")
			writeLiteral(sb, v.obj.vals[k], seen)
		}
		sb.WriteByte('}')
	case KindFunction:
		if v.fn.Source != "" {
			sb.WriteString(v.fn.Source)
			return
		}
		sb.WriteString("null")
	}
}

// Quote returns s as a double-quoted string literal.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 || r == utf8.RuneError && size == 1 {
				fmt.Fprintf(&sb, `\u%04x`, r)
				continue
			}
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// QuoteTemplate returns s as a backtick template literal with no
// substitutions.
func QuoteTemplate(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('`')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '`':
			sb.WriteString("\\`")
		case '\\':
			sb.WriteString(`\\`)
		case '$':
			if i+1 < len(s) && s[i+1] == '{' {
				sb.WriteString(`\$`)
				continue
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('`')
	return sb.String()
}

// Unescape resolves the backslash escapes of a string literal body.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '0':
			sb.WriteByte(0)
		case '\n':
		case 'u':
			if r, n := parseUnicodeEscape(s[i+1:]); n > 0 {
				sb.WriteRune(r)
				i += n
				continue
			}
			sb.WriteByte('u')
		case 'x':
			if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
				sb.WriteRune(rune(hexVal(s[i+1])<<4 | hexVal(s[i+2])))
				i += 2
				continue
			}
			sb.WriteByte('x')
		default:
			sb.WriteByte(e)
		}
	}
	return sb.String()
}

func parseUnicodeEscape(s string) (rune, int) {
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 2 {
			return 0, 0
		}
		var r rune
		for _, c := range []byte(s[1:end]) {
			if !isHex(c) {
				return 0, 0
			}
			r = r<<4 | rune(hexVal(c))
		}
		return r, end + 1
	}
	if len(s) < 4 {
		return 0, 0
	}
	var r rune
	for _, c := range []byte(s[:4]) {
		if !isHex(c) {
			return 0, 0
		}
		r = r<<4 | rune(hexVal(c))
	}
	return r, 4
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}
