package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code   string
		kind   simpleKind
		target string
		op     string
		expr   string
	}{
		{code: "", kind: kindEmpty},
		{code: "{}", kind: kindEmpty},
		{code: "return", kind: kindReturnVoid},
		{code: "return;", kind: kindReturnVoid},
		{code: "return x + 1", kind: kindReturnValue, expr: "x + 1"},
		{code: "tR += x", kind: kindAppend, target: "tR", expr: "x"},
		{code: "i++", kind: kindIncrement, target: "i"},
		{code: "--i", kind: kindDecrement, target: "i"},
		{code: "o.count++", kind: kindIncrement, target: "o.count"},
		{code: "x *= 2", kind: kindCompoundAssign, target: "x", op: "*", expr: "2"},
		{code: "x ??= {}", kind: kindCompoundAssign, target: "x", op: "??", expr: "{}"},
		{code: "a[0] = 1", kind: kindIndexAssign, target: "a[0]", expr: "1"},
		{code: "a.b = 1", kind: kindPropertyAssign, target: "a.b", expr: "1"},
		{code: "x = y", kind: kindAssign, target: "x", expr: "y"},
		{code: "print(x)", kind: kindCall, expr: "print(x)"},
		{code: "x + 1", kind: kindOther, expr: "x + 1"},
		{code: "a == b", kind: kindOther, expr: "a == b"},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			s := classify(tc.code)
			assert.Equal(t, tc.kind.String(), s.kind.String())
			assert.Equal(t, tc.target, s.target)
			assert.Equal(t, tc.op, s.op)
			assert.Equal(t, tc.expr, s.expr)
		})
	}
}

func TestClassifyVarDecl(t *testing.T) {
	s := classify("let a = 1, {b, c} = obj, d")
	require.Equal(t, kindVarDecl, s.kind)
	assert.Equal(t, []decl{
		{pattern: "a", init: "1"},
		{pattern: "{b, c}", init: "obj"},
		{pattern: "d"},
	}, s.decls)

	assert.Equal(t, kindOther, classify("letter").kind)
}

func TestClassifyCompound(t *testing.T) {
	s := classify("a = 1; b = 2")
	require.Equal(t, kindCompound, s.kind)
	assert.Len(t, s.nodes, 2)

	s = classify("if (x) { y = 1 }")
	require.Equal(t, kindCompound, s.kind)
	assert.Len(t, s.nodes, 1)
}

func TestClassifyIsMemoized(t *testing.T) {
	x := New(nil)
	assert.Same(t, x.classify("i++"), x.classify("i++"))
}

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		target   string
		object   string
		key      string
		computed bool
		ok       bool
	}{
		{target: "a.b.c", object: "a.b", key: "c", ok: true},
		{target: "a[b[0]]", object: "a", key: "b[0]", computed: true, ok: true},
		{target: "a['x'].y", object: "a['x']", key: "y", ok: true},
		{target: "a", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			object, key, computed, ok := splitTarget(tc.target)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.object, object)
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.computed, computed)
		})
	}
}

func TestSimpleKindString(t *testing.T) {
	assert.Equal(t, "compound_assign", kindCompoundAssign.String())
	assert.Equal(t, "unknown", simpleKind(99).String())
}
