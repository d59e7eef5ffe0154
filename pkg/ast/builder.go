package ast

import (
	"regexp"
	"sort"
	"strings"
)

// builder turns the segments of one script into statement nodes. IDs are
// shared across every script a builder is reset to.
type builder struct {
	src        string
	text       string
	comments   []span
	lineStarts []int
	baseLine   int
	next       NodeID
	dynamic    bool
}

func (b *builder) reset(src string, baseLine int) {
	b.src = src
	b.text, b.comments = stripComments(src)
	b.baseLine = baseLine
	b.lineStarts = append(b.lineStarts[:0], 0)
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			b.lineStarts = append(b.lineStarts, i+1)
		}
	}
}

func (b *builder) line(off int) int {
	if b.dynamic {
		return 0
	}
	return b.baseLine + sort.SearchInts(b.lineStarts, off+1) - 1
}

func (b *builder) node(t StatementType, off int, code string) *StatementNode {
	n := &StatementNode{Type: t, Code: code, Line: b.line(off)}
	if !b.dynamic {
		b.next++
		n.ID = b.next
	}
	return n
}

// Build parses a standalone script. Its lines are numbered from 1.
func Build(code string) *TemplateAST {
	b := &builder{}
	b.reset(code, 1)
	nodes := b.parseRange(0, len(code))
	t := &TemplateAST{
		Blocks: []*Block{{
			Kind:      BlockExecution,
			StartLine: 1,
			EndLine:   b.line(len(code)),
			Nodes:     nodes,
		}},
		Roots: nodes,
		Lines: strings.Split(code, "\n"),
	}
	t.index()
	return t
}

// BuildTemplate parses the script blocks of a document. Execution blocks are
// framed by block_start and block_end nodes; each interpolation block becomes
// a single interpolation node.
func BuildTemplate(source string, blocks []SourceBlock) *TemplateAST {
	b := &builder{}
	t := &TemplateAST{Lines: strings.Split(source, "\n")}
	for i, sb := range blocks {
		blk := &Block{Index: i, Kind: sb.Kind, StartLine: sb.StartLine, EndLine: sb.EndLine}
		b.reset(sb.Code, sb.StartLine)
		if sb.Kind == BlockInterpolation {
			off := skipSpace(b.text, 0)
			expr := strings.TrimSpace(b.text)
			n := b.node(StatementInterpolation, off, expr)
			n.Expr = expr
			blk.Nodes = []*StatementNode{n}
		} else {
			open := b.node(StatementBlockStart, 0, "<%*")
			body := b.parseRange(0, len(b.text))
			end := b.node(StatementBlockEnd, len(b.text), "%>")
			if sb.EndLine > 0 {
				end.Line = sb.EndLine
			}
			blk.Nodes = append(append([]*StatementNode{open}, body...), end)
		}
		t.Blocks = append(t.Blocks, blk)
		t.Roots = append(t.Roots, blk.Nodes...)
	}
	t.index()
	return t
}

// BuildDynamic parses code created at run time, such as an arrow-function
// body. The nodes carry no id and no line.
func BuildDynamic(code string) []*StatementNode {
	b := &builder{dynamic: true}
	b.reset(code, 0)
	return b.parseRange(0, len(code))
}

func (b *builder) parseRange(lo, hi int) []*StatementNode {
	var out []*StatementNode
	for _, seg := range splitRange(b.src, b.text, lo, hi, b.comments) {
		if seg.Kind == SegmentComment {
			out = append(out, b.node(StatementComment, seg.Start, seg.Text))
			continue
		}
		if HasWordPrefix(seg.Text, "else") && len(out) > 0 {
			if prev := out[len(out)-1]; prev.Type == StatementIf && b.attachElse(prev, seg.Start, seg.End) {
				continue
			}
		}
		out = append(out, b.statement(seg.Start, seg.End))
	}
	return out
}

// body locates the statement body that starts after from: either a braced
// block or the rest of the segment. inner is the range to parse, next the
// offset just after the body.
func (b *builder) body(from, hi int) (innerLo, innerHi, next int, ok bool) {
	q := skipSpace(b.text[:hi], from)
	if q >= hi {
		return 0, 0, 0, false
	}
	if b.text[q] != '{' {
		return q, hi, hi, true
	}
	end := MatchingClose(b.text[:hi], q)
	if end < 0 {
		return 0, 0, 0, false
	}
	return q + 1, end, end + 1, true
}

// header returns the parenthesised header that follows the keyword at kw.
func (b *builder) header(kw, hi int, word string) (open, close int, ok bool) {
	p := skipSpace(b.text[:hi], kw+len(word))
	if p >= hi || b.text[p] != '(' {
		return 0, 0, false
	}
	c := MatchingClose(b.text[:hi], p)
	if c < 0 {
		return 0, 0, false
	}
	return p, c, true
}

func (b *builder) rest(from, hi int) string {
	return strings.TrimSpace(b.text[from:hi])
}

func (b *builder) statement(lo, hi int) *StatementNode {
	s := b.text[lo:hi]
	var n *StatementNode
	switch FirstWord(s) {
	case "if":
		n = b.ifChain(lo, hi)
	case "for":
		n = b.forLoop(lo, hi)
	case "while":
		n = b.whileLoop(lo, hi)
	case "function":
		n = b.function(lo, lo, hi)
	case "async":
		if fn := skipSpace(b.text[:hi], lo+len("async")); HasWordPrefix(b.text[fn:hi], "function") {
			n = b.function(lo, fn, hi)
		}
	case "try":
		n = b.tryCatch(lo, hi)
	case "return":
		n = b.node(StatementReturn, lo, s)
		n.Expr = strings.TrimSpace(s[len("return"):])
	case "break", "continue":
		if w := FirstWord(s); IsIdentifier(strings.TrimSpace(s[len(w):])) || strings.TrimSpace(s[len(w):]) == "" {
			n = b.node(StatementType(w), lo, s)
		}
	case "throw":
		n = b.node(StatementThrow, lo, s)
		n.Expr = strings.TrimSpace(s[len("throw"):])
	case "let", "const", "var":
		w := FirstWord(s)
		if len(s) > len(w) && isSpace(s[len(w)]) {
			n = b.node(StatementVarDecl, lo, s)
			n.VarKind = w
		}
	}
	if n != nil {
		return n
	}
	if s[0] == '{' && MatchingClose(s, 0) == len(s)-1 {
		n = b.node(StatementBlock, lo, "{")
		n.Body = b.parseRange(lo+1, hi-1)
		return n
	}
	if _, ok := SplitAssignment(s); ok {
		return b.node(StatementAssignment, lo, s)
	}
	return b.node(StatementExpression, lo, s)
}

// arm is one planned branch of an if chain. Ranges are resolved before any
// node is created so a malformed chain allocates no ids.
type arm struct {
	off            int
	header         string
	cond           string
	bodyLo, bodyHi int
}

func (b *builder) planIf(lo, hi int) ([]arm, bool) {
	var arms []arm
	pos := lo
	for {
		open, close, ok := b.header(pos, hi, "if")
		if !ok {
			return nil, false
		}
		in, out, next, ok := b.body(close+1, hi)
		if !ok {
			return nil, false
		}
		arms = append(arms, arm{off: pos, header: b.text[pos : close+1], cond: b.rest(open+1, close), bodyLo: in, bodyHi: out})
		q := skipSpace(b.text[:hi], next)
		if q >= hi {
			return arms, true
		}
		if !HasWordPrefix(b.text[q:hi], "else") {
			return nil, false
		}
		r := skipSpace(b.text[:hi], q+len("else"))
		if HasWordPrefix(b.text[r:hi], "if") {
			pos = r
			continue
		}
		in, out, next, ok = b.body(q+len("else"), hi)
		if !ok || skipSpace(b.text[:hi], next) < hi {
			return nil, false
		}
		return append(arms, arm{off: q, bodyLo: in, bodyHi: out}), true
	}
}

func (b *builder) ifChain(lo, hi int) *StatementNode {
	arms, ok := b.planIf(lo, hi)
	if !ok {
		return nil
	}
	head := arms[0]
	n := b.node(StatementIf, lo, head.header)
	n.Condition = head.cond
	n.Body = b.parseRange(head.bodyLo, head.bodyHi)
	for _, a := range arms[1:] {
		n.ElseBranches = append(n.ElseBranches, Branch{
			Condition: a.cond,
			Line:      b.line(a.off),
			Body:      b.parseRange(a.bodyLo, a.bodyHi),
		})
	}
	return n
}

// attachElse appends a separately split "else ..." segment to the if node
// that precedes it.
func (b *builder) attachElse(n *StatementNode, lo, hi int) bool {
	if k := len(n.ElseBranches); k > 0 && n.ElseBranches[k-1].IsElse() {
		return false
	}
	r := skipSpace(b.text[:hi], lo+len("else"))
	if HasWordPrefix(b.text[r:hi], "if") {
		arms, ok := b.planIf(r, hi)
		if !ok {
			return false
		}
		for _, a := range arms {
			n.ElseBranches = append(n.ElseBranches, Branch{
				Condition: a.cond,
				Line:      b.line(a.off),
				Body:      b.parseRange(a.bodyLo, a.bodyHi),
			})
		}
		return true
	}
	in, out, next, ok := b.body(lo+len("else"), hi)
	if !ok || skipSpace(b.text[:hi], next) < hi {
		return false
	}
	n.ElseBranches = append(n.ElseBranches, Branch{Line: b.line(lo), Body: b.parseRange(in, out)})
	return true
}

var forEachHeader = regexp.MustCompile(`^(?:(let|const|var)\s+)?([A-Za-z_$][\w$]*|\[[^\]]*\]|\{[^}]*\})\s+(of|in)\s+([\s\S]+)$`)

func (b *builder) forLoop(lo, hi int) *StatementNode {
	open, close, ok := b.header(lo, hi, "for")
	if !ok {
		return nil
	}
	in, out, next, ok := b.body(close+1, hi)
	if !ok || skipSpace(b.text[:hi], next) < hi {
		return nil
	}
	head := b.rest(open+1, close)
	code := b.text[lo : close+1]
	if m := forEachHeader.FindStringSubmatch(head); m != nil {
		t := StatementForOf
		if m[3] == "in" {
			t = StatementForIn
		}
		n := b.node(t, lo, code)
		n.VarKind, n.Var, n.Iterable = m[1], m[2], strings.TrimSpace(m[4])
		n.Body = b.parseRange(in, out)
		return n
	}
	parts := SplitTop(head, ';')
	if len(parts) == 2 && strings.HasSuffix(head, ";") {
		parts = append(parts, "")
	}
	if len(parts) != 3 {
		return nil
	}
	n := b.node(StatementFor, lo, code)
	n.Init, n.Condition, n.Step = parts[0], parts[1], parts[2]
	n.Body = b.parseRange(in, out)
	return n
}

func (b *builder) whileLoop(lo, hi int) *StatementNode {
	open, close, ok := b.header(lo, hi, "while")
	if !ok {
		return nil
	}
	in, out, next, ok := b.body(close+1, hi)
	if !ok || skipSpace(b.text[:hi], next) < hi {
		return nil
	}
	n := b.node(StatementWhile, lo, b.text[lo:close+1])
	n.Condition = b.rest(open+1, close)
	n.Body = b.parseRange(in, out)
	return n
}

// function parses "function name(params) { body }". kw is the offset of the
// function keyword, lo the start of the statement (before any async).
func (b *builder) function(lo, kw, hi int) *StatementNode {
	p := skipSpace(b.text[:hi], kw+len("function"))
	if p < hi && b.text[p] == '*' {
		return nil
	}
	name := FirstWord(b.text[p:hi])
	if !IsIdentifier(name) {
		return nil
	}
	open, close, ok := b.header(p, hi, name)
	if !ok {
		return nil
	}
	q := skipSpace(b.text[:hi], close+1)
	if q >= hi || b.text[q] != '{' {
		return nil
	}
	in, out, next, ok := b.body(q, hi)
	if !ok || skipSpace(b.text[:hi], next) < hi {
		return nil
	}
	n := b.node(StatementFunctionDecl, lo, b.text[lo:close+1])
	n.Name = name
	n.Params, n.Defaults = SplitParams(b.text[open+1 : close])
	n.Body = b.parseRange(in, out)
	return n
}

func (b *builder) tryCatch(lo, hi int) *StatementNode {
	in, out, next, ok := b.body(lo+len("try"), hi)
	if !ok || b.text[skipSpace(b.text, lo+len("try"))] != '{' {
		return nil
	}
	var (
		catchParam           string
		hasCatch, hasFinally bool
		cLo, cHi, fLo, fHi   int
	)
	q := skipSpace(b.text[:hi], next)
	if q < hi && HasWordPrefix(b.text[q:hi], "catch") {
		hasCatch = true
		from := q + len("catch")
		if r := skipSpace(b.text[:hi], from); r < hi && b.text[r] == '(' {
			c := MatchingClose(b.text[:hi], r)
			if c < 0 {
				return nil
			}
			catchParam = b.rest(r+1, c)
			from = c + 1
		}
		if r := skipSpace(b.text[:hi], from); r >= hi || b.text[r] != '{' {
			return nil
		}
		cLo, cHi, next, ok = b.body(from, hi)
		if !ok {
			return nil
		}
		q = skipSpace(b.text[:hi], next)
	}
	if q < hi && HasWordPrefix(b.text[q:hi], "finally") {
		hasFinally = true
		if r := skipSpace(b.text[:hi], q+len("finally")); r >= hi || b.text[r] != '{' {
			return nil
		}
		fLo, fHi, next, ok = b.body(q+len("finally"), hi)
		if !ok {
			return nil
		}
		q = skipSpace(b.text[:hi], next)
	}
	if q < hi || (!hasCatch && !hasFinally) {
		return nil
	}
	n := b.node(StatementTry, lo, "try")
	n.Body = b.parseRange(in, out)
	if hasCatch {
		n.HasCatch = true
		n.CatchParam = catchParam
		n.CatchBody = b.parseRange(cLo, cHi)
	}
	if hasFinally {
		n.FinallyBody = b.parseRange(fLo, fHi)
	}
	return n
}
