// Package document splits a template document into literal text and script
// tags.
//
// Tags open with "<%" and close with "%>". An asterisk after the opener
// ("<%*") marks an execution block; anything else is an interpolation. A "_"
// next to either delimiter trims all whitespace on that side of the tag, a
// "-" trims one newline.
package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/go-template-script/pkg/ast"
)

// Kind is the kind of a segment.
type Kind string

const (
	KindText          Kind = "text"
	KindInterpolation Kind = "interpolation"
	KindExecution     Kind = "execution"
)

// Trim is a whitespace-control marker.
type Trim string

const (
	TrimNone    Trim = ""
	TrimNewline Trim = "-"
	TrimAll     Trim = "_"
)

const (
	openTag  = "<%"
	closeTag = "%>"
)

// ErrUnterminated means a tag was opened but never closed.
var ErrUnterminated = errors.New("unterminated tag")

// SyntaxError locates a malformed tag.
type SyntaxError struct {
	Line   int
	Offset int
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Segment is one piece of a document. For text segments Text has trimming
// applied; for tags it is the code between the delimiters and markers.
type Segment struct {
	Kind      Kind   `json:"kind"`
	Text      string `json:"text"`
	Start     int    `json:"start"` // byte offset of the segment or tag opener
	End       int    `json:"end"`   // byte offset just past the segment or tag closer
	Line      int    `json:"line"`  // line of the first text or code byte
	EndLine   int    `json:"end_line"`
	TrimLeft  Trim   `json:"trim_left,omitempty"`
	TrimRight Trim   `json:"trim_right,omitempty"`
}

// IsTag reports whether the segment is a script tag.
func (s Segment) IsTag() bool { return s.Kind != KindText }

// Document is a parsed template.
type Document struct {
	Source   string
	Segments []Segment
	starts   []int // byte offset of each line start
}

// Parse splits src into segments. When a tag is left open the remainder is
// kept as text and a *SyntaxError wrapping ErrUnterminated is returned with
// the document.
func Parse(src string) (*Document, error) {
	d := &Document{Source: src, starts: lineStarts(src)}
	var (
		cur     int
		pending Trim
	)
	for cur < len(src) {
		rel := strings.Index(src[cur:], openTag)
		if rel < 0 {
			break
		}
		open := cur + rel
		kind, left, codeStart := opener(src, open)
		closeAt := findClose(src, codeStart)
		if closeAt < 0 {
			d.text(cur, len(src), pending, TrimNone)
			return d, &SyntaxError{Line: d.LineAt(open), Offset: open, Err: ErrUnterminated}
		}
		codeEnd, right := closeAt, TrimNone
		if codeEnd > codeStart {
			switch src[codeEnd-1] {
			case '-':
				codeEnd, right = codeEnd-1, TrimNewline
			case '_':
				codeEnd, right = codeEnd-1, TrimAll
			}
		}
		d.text(cur, open, pending, left)
		d.Segments = append(d.Segments, Segment{
			Kind:      kind,
			Text:      src[codeStart:codeEnd],
			Start:     open,
			End:       closeAt + len(closeTag),
			Line:      d.LineAt(codeStart),
			EndLine:   d.LineAt(closeAt),
			TrimLeft:  left,
			TrimRight: right,
		})
		pending = right
		cur = closeAt + len(closeTag)
	}
	d.text(cur, len(src), pending, TrimNone)
	return d, nil
}

// opener reads the markers after "<%" at open.
func opener(src string, open int) (kind Kind, trim Trim, codeStart int) {
	kind = KindInterpolation
	i := open + len(openTag)
	for k := 0; k < 2 && i < len(src); k++ {
		switch c := src[i]; {
		case c == '*' && kind == KindInterpolation:
			kind = KindExecution
		case (c == '-' || c == '_') && trim == TrimNone:
			trim = Trim(c)
		default:
			return kind, trim, i
		}
		i++
	}
	return kind, trim, i
}

// findClose returns the offset of the "%>" ending the tag whose code starts
// at from, skipping string literals, or -1.
func findClose(src string, from int) int {
	for i := from; i < len(src); {
		switch c := src[i]; {
		case c == '"' || c == '\'' || c == '`':
			i = ast.SkipString(src, i)
		case c == '%' && i+1 < len(src) && src[i+1] == '>':
			return i
		default:
			i++
		}
	}
	return -1
}

func (d *Document) text(start, end int, before, after Trim) {
	if start >= end {
		return
	}
	s := trimStart(d.Source[start:end], before)
	s = trimEnd(s, after)
	if s == "" {
		return
	}
	d.Segments = append(d.Segments, Segment{
		Kind:    KindText,
		Text:    s,
		Start:   start,
		End:     end,
		Line:    d.LineAt(start),
		EndLine: d.LineAt(end - 1),
	})
}

func trimStart(s string, t Trim) string {
	switch t {
	case TrimAll:
		return strings.TrimLeft(s, " \t\r\n")
	case TrimNewline:
		if strings.HasPrefix(s, "\r\n") {
			return s[2:]
		}
		return strings.TrimPrefix(s, "\n")
	}
	return s
}

func trimEnd(s string, t Trim) string {
	switch t {
	case TrimAll:
		return strings.TrimRight(s, " \t\r\n")
	case TrimNewline:
		if strings.HasSuffix(s, "\r\n") {
			return s[:len(s)-2]
		}
		return strings.TrimSuffix(s, "\n")
	}
	return s
}

func lineStarts(src string) []int {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// LineAt returns the 1-based line of a byte offset.
func (d *Document) LineAt(offset int) int {
	return sort.Search(len(d.starts), func(i int) bool { return d.starts[i] > offset })
}

// Tags returns the script segments in document order.
func (d *Document) Tags() []Segment {
	var out []Segment
	for _, s := range d.Segments {
		if s.IsTag() {
			out = append(out, s)
		}
	}
	return out
}

// SourceBlocks converts the tags to the builder's input.
func (d *Document) SourceBlocks() []ast.SourceBlock {
	var out []ast.SourceBlock
	for _, s := range d.Tags() {
		kind := ast.BlockInterpolation
		if s.Kind == KindExecution {
			kind = ast.BlockExecution
		}
		out = append(out, ast.SourceBlock{Kind: kind, Code: s.Text, StartLine: s.Line, EndLine: s.EndLine})
	}
	return out
}

// AST builds the statement tree of the document's tags.
func (d *Document) AST() *ast.TemplateAST {
	return ast.BuildTemplate(d.Source, d.SourceBlocks())
}
