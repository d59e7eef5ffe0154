package debug

import (
	"strings"

	"github.com/l3aro/go-template-script/pkg/ast"
)

// sharedPrefix is the length of a common prefix that counts as overlap
// between a node's code and its source line.
const sharedPrefix = 20

// Resolve maps a source line to the executable statement that will pause
// for it: the one with the smallest line number at or after line, first in
// pre-order on ties.
func Resolve(tree *ast.TemplateAST, line int) (*ast.StatementNode, error) {
	if tree == nil {
		return nil, &ResolutionError{Line: line, Reason: "template has not been parsed", Err: ErrNoAST}
	}
	var best *ast.StatementNode
	for _, n := range tree.All {
		if !n.Executable() || n.Line == 0 || n.Line < line {
			continue
		}
		if best == nil || n.Line < best.Line {
			best = n
		}
	}
	if best == nil {
		err := &ResolutionError{
			Line:       line,
			Reason:     "no executable statement at or after this line",
			SourceLine: tree.SourceLine(line),
			Err:        ErrNoExecutableStatement,
		}
		if n := nearest(tree, line); n != nil {
			err.NearestLine, err.NearestCode = n.Line, n.Code
		}
		return nil, err
	}
	if src := tree.SourceLine(best.Line); !overlaps(best.Code, src) {
		return nil, &ResolutionError{
			Line:        line,
			Reason:      "resolved statement does not match its source line",
			SourceLine:  src,
			NearestLine: best.Line,
			NearestCode: best.Code,
			Err:         ErrCodeMismatch,
		}
	}
	return best, nil
}

// nearest returns the executable node closest to line in either direction.
func nearest(tree *ast.TemplateAST, line int) *ast.StatementNode {
	var best *ast.StatementNode
	bestDist := 0
	for _, n := range tree.All {
		if !n.Executable() || n.Line == 0 {
			continue
		}
		d := n.Line - line
		if d < 0 {
			d = -d
		}
		if best == nil || d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

// overlaps reports whether code and the source line share text: one
// contains the other, or both start with the same sharedPrefix bytes.
// Comments and runs of whitespace are ignored.
func overlaps(code, src string) bool {
	code, src = collapse(code), collapse(ast.StripComments(src))
	if code == "" || src == "" {
		return false
	}
	if strings.Contains(src, code) || strings.Contains(code, src) {
		return true
	}
	return len(code) >= sharedPrefix && len(src) >= sharedPrefix && code[:sharedPrefix] == src[:sharedPrefix]
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
