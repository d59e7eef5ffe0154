package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_SemicolonsAndNewlines(t *testing.T) {
	got := Split("let x = 1; let y = 2\nlet z = x + y;")
	assert.Equal(t, []string{"let x = 1", "let y = 2", "let z = x + y"}, got)
}

func TestSplit_StringsKeepSeparators(t *testing.T) {
	got := Split(`tR += "a; b"; tR += 'c\'; d'
tR += ` + "`line1\nline2 ${x; }`")
	require.Len(t, got, 3)
	assert.Equal(t, `tR += "a; b"`, got[0])
	assert.Equal(t, `tR += 'c\'; d'`, got[1])
	assert.Equal(t, "tR += `line1\nline2 ${x; }`", got[2])
}

func TestSplit_BlockBraceEndsStatement(t *testing.T) {
	src := "if (a) {\n  tR += 1;\n  tR += 2\n} else {\n  tR += 3\n}\nlet b = 2"
	got := Split(src)
	require.Len(t, got, 2)
	assert.Equal(t, "if (a) {\n  tR += 1;\n  tR += 2\n} else {\n  tR += 3\n}", got[0])
	assert.Equal(t, "let b = 2", got[1])
}

func TestSplit_ObjectLiteralDoesNotEndStatement(t *testing.T) {
	got := Split("let o = {\n  a: 1,\n  b: 2\n}.a; let p = 3")
	assert.Equal(t, []string{"let o = {\n  a: 1,\n  b: 2\n}.a", "let p = 3"}, got)
}

func TestSplit_ArrowBodySpansLines(t *testing.T) {
	src := "const double = (n) =>\n  n * 2\nconst f = x => {\n  return x\n}\ntR += f(1)"
	got := Split(src)
	require.Len(t, got, 3)
	assert.Equal(t, "const double = (n) =>\n  n * 2", got[0])
	assert.Equal(t, "const f = x => {\n  return x\n}", got[1])
	assert.Equal(t, "tR += f(1)", got[2])
}

func TestSplit_FluentChain(t *testing.T) {
	got := Split("const names = items\n  .filter(i => i.ok)\n  .map(i => i.name)\ntR += names")
	assert.Equal(t, []string{"const names = items\n  .filter(i => i.ok)\n  .map(i => i.name)", "tR += names"}, got)
}

func TestSplit_OpenHeaderJoinsBody(t *testing.T) {
	got := Split("if (x)\n  tR += 1\ntR += 2")
	assert.Equal(t, []string{"if (x)\n  tR += 1", "tR += 2"}, got)
}

func TestSplit_ForHeaderSemicolons(t *testing.T) {
	got := Split("for (let i = 0; i < 3; i++) { tR += i }")
	assert.Equal(t, []string{"for (let i = 0; i < 3; i++) { tR += i }"}, got)
}

func TestSplitStatements_Comments(t *testing.T) {
	src := "// heading\nlet a = 1 // trailing\n/* block */\nlet b = 2"
	segs := SplitStatements(src)
	require.Len(t, segs, 4)

	assert.Equal(t, SegmentComment, segs[0].Kind)
	assert.Equal(t, "// heading", segs[0].Text)
	assert.Equal(t, SegmentStatement, segs[1].Kind)
	assert.Equal(t, "let a = 1", segs[1].Text)
	assert.Equal(t, SegmentComment, segs[2].Kind)
	assert.Equal(t, "/* block */", segs[2].Text)
	assert.Equal(t, "let b = 2", segs[3].Text)
	assert.Equal(t, src[segs[3].Start:segs[3].End], segs[3].Text)
}

func TestSplit_URLInStringIsNotComment(t *testing.T) {
	got := Split(`let u = "https://example.com"; tR += u`)
	assert.Equal(t, []string{`let u = "https://example.com"`, "tR += u"}, got)
}

func TestSplitAssignment(t *testing.T) {
	tests := []struct {
		in     string
		target string
		op     string
		value  string
		ok     bool
	}{
		{"x = 1", "x", "=", "1", true},
		{"tR += x", "tR", "+=", "x", true},
		{"a.b[c] = d", "a.b[c]", "=", "d", true},
		{"n ??= 5", "n", "??=", "5", true},
		{"a == b", "", "", "", false},
		{"a <= b", "", "", "", false},
		{"f(x = 1)", "", "", "", false},
		{"x => x + 1", "", "", "", false},
		{"a + b = c", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := SplitAssignment(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, Assignment{Target: tt.target, Op: tt.op, Value: tt.value}, got)
			}
		})
	}
}

func TestScanHelpers(t *testing.T) {
	assert.Equal(t, 8, MatchingClose("f(a, (b)) + 1", 1))
	assert.Equal(t, -1, MatchingClose("(a", 0))
	assert.Equal(t, []string{"1", "'a,b'", "[2, 3]"}, SplitTop("1, 'a,b', [2, 3]", ','))
	assert.Equal(t, 7, IndexTop("f(a?b) ? c : d", "?"))
	assert.True(t, Wrapped("(a + b)", '('))
	assert.False(t, Wrapped("(a) + (b)", '('))
	assert.True(t, IsIdentifier("$value_1"))
	assert.False(t, IsIdentifier("1abc"))
	assert.False(t, IsIdentifier("return"))

	names, defaults := SplitParams("a, b = 2, c = [1, 2]")
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, []string{"", "2", "[1, 2]"}, defaults)
}
