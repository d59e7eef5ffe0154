package ast

import (
	"sort"
	"strings"
)

// SegmentKind tags a lexer segment.
type SegmentKind int

const (
	SegmentStatement SegmentKind = iota
	SegmentComment
)

// Segment is one top-level statement or standalone comment of a script.
// Start and End are byte offsets into the script; Text of a statement has its
// comments blanked and surrounding whitespace trimmed.
type Segment struct {
	Kind  SegmentKind
	Text  string
	Start int
	End   int
}

// Split returns the top-level statements of a script, comments removed.
func Split(src string) []string {
	var out []string
	for _, seg := range SplitStatements(src) {
		if seg.Kind == SegmentStatement {
			out = append(out, seg.Text)
		}
	}
	return out
}

// SplitStatements splits a script into its top-level statements and the
// comments that stand on their own lines between them.
func SplitStatements(src string) []Segment {
	text, comments := stripComments(src)
	return splitRange(src, text, 0, len(text), comments)
}

// splitRange splits text[lo:hi]. text is src with comments blanked, so
// offsets are shared between the two.
func splitRange(src, text string, lo, hi int, comments []span) []Segment {
	var (
		out    []Segment
		start  = lo
		clause = lo // start of the text a '{' is classified by
		paren  int
		braces []bool // open braces, true for statement blocks
	)
	emit := func(end int) {
		if seg, ok := trimmed(text, start, end); ok {
			out = append(out, seg)
		}
	}
	bounded := text[:hi]
	for i := lo; i < hi; i++ {
		switch c := text[i]; c {
		case '"', '\'', '`':
			i = SkipString(bounded, i) - 1
		case '(', '[':
			paren++
		case ')', ']':
			if paren > 0 {
				paren--
			}
		case '{':
			braces = append(braces, paren == 0 && opensBlock(text[clause:i]))
			clause = i + 1
		case '}':
			clause = i + 1
			if len(braces) == 0 {
				continue
			}
			block := braces[len(braces)-1]
			braces = braces[:len(braces)-1]
			if block && len(braces) == 0 && paren == 0 && !continuesAfterBlock(bounded[i+1:]) {
				emit(i + 1)
				start = i + 1
			}
		case ';':
			if paren == 0 && len(braces) == 0 {
				emit(i)
				start, clause = i+1, i+1
			}
		case '\n':
			if paren == 0 && len(braces) == 0 && !continues(text[start:i], bounded[i+1:]) {
				emit(i)
				start, clause = i+1, i+1
			}
		}
	}
	emit(hi)
	return addComments(out, src, text, lo, hi, comments)
}

// addComments inserts the comments of [lo, hi) that start their own line and
// fall outside every statement.
func addComments(segs []Segment, src, text string, lo, hi int, comments []span) []Segment {
	added := false
	for _, c := range comments {
		if c.start < lo || c.end > hi || !ownLine(text, c.start) {
			continue
		}
		inside := false
		for _, s := range segs {
			if s.Kind == SegmentStatement && c.start >= s.Start && c.start < s.End {
				inside = true
				break
			}
		}
		if inside {
			continue
		}
		segs = append(segs, Segment{
			Kind:  SegmentComment,
			Text:  strings.TrimRight(src[c.start:c.end], " \t\r"),
			Start: c.start,
			End:   c.end,
		})
		added = true
	}
	if added {
		sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
	}
	return segs
}

func ownLine(text string, at int) bool {
	for i := at - 1; i >= 0; i-- {
		switch text[i] {
		case '\n':
			return true
		case ' ', '\t', '\r':
		default:
			return false
		}
	}
	return true
}

func trimmed(text string, start, end int) (Segment, bool) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	if start >= end {
		return Segment{}, false
	}
	return Segment{Kind: SegmentStatement, Text: text[start:end], Start: start, End: end}, true
}

// opensBlock classifies a '{' by the clause in front of it: a statement block
// follows a control header, an arrow, else/try/finally, or nothing at all.
// Everything else is taken for an object literal.
func opensBlock(clause string) bool {
	c := strings.TrimSpace(clause)
	switch {
	case c == "":
		return true
	case strings.HasSuffix(c, "=>"):
		return true
	case c == "else" || c == "try" || c == "finally" || c == "do":
		return true
	case strings.HasSuffix(c, ")"):
		switch FirstWord(c) {
		case "if", "for", "while", "switch", "catch", "function", "async":
			return true
		case "else":
			return HasWordPrefix(strings.TrimSpace(c[4:]), "if")
		}
		return containsWord(c, "function")
	}
	return false
}

func continuesAfterBlock(rest string) bool {
	r := strings.TrimLeft(rest, " \t\r\n")
	return HasWordPrefix(r, "else") || HasWordPrefix(r, "catch") || HasWordPrefix(r, "finally")
}

// continues reports whether a newline after pending belongs to the same
// statement: an unfinished operator or header, or a next line that starts
// with a chained call or the rest of a ternary.
func continues(pending, rest string) bool {
	p := strings.TrimSpace(pending)
	if p == "" {
		return false
	}
	if !strings.HasSuffix(p, "++") && !strings.HasSuffix(p, "--") {
		for _, op := range []string{"=>", "&&", "||", "??", ",", "=", "+", "-", "*", "?", ":"} {
			if strings.HasSuffix(p, op) {
				return true
			}
		}
	}
	if openHeader(p) {
		return true
	}
	next := strings.TrimLeft(rest, " \t\r\n")
	switch {
	case strings.HasPrefix(next, "..."):
		return false
	case strings.HasPrefix(next, "."), strings.HasPrefix(next, "?"), strings.HasPrefix(next, ":"):
		return true
	case strings.HasPrefix(next, "&&"), strings.HasPrefix(next, "||"):
		return true
	}
	return false
}

// openHeader reports whether p is a control header still waiting for its
// body, such as "if (x)" or "else".
func openHeader(p string) bool {
	switch p {
	case "else", "try", "finally", "do":
		return true
	}
	w := FirstWord(p)
	switch w {
	case "if", "for", "while", "catch", "function", "switch":
	case "else":
		r := strings.TrimSpace(p[len(w):])
		if !HasWordPrefix(r, "if") {
			return false
		}
	case "async":
		if !HasWordPrefix(strings.TrimSpace(p[len(w):]), "function") {
			return false
		}
	default:
		return false
	}
	open := strings.IndexByte(p, '(')
	if open < 0 {
		return false
	}
	return MatchingClose(p, open) == len(p)-1
}
