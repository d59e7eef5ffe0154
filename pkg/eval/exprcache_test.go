package eval

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-template-script/pkg/value"
)

func TestCompile(t *testing.T) {
	p := Compile(DefaultNamespace, "a + b * 2")
	require.True(t, p.Compiled)
	want := []Instr{
		{Op: OpLoad, A: 0},
		{Op: OpLoad, A: 1},
		{Op: OpConst, A: 0},
		{Op: OpBinary, A: 0},
		{Op: OpBinary, A: 1},
	}
	if diff := cmp.Diff(want, p.Code); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"a", "b"}, p.Deps)
	assert.Equal(t, []string{"*", "+"}, p.Ops)
}

func TestCompileShortCircuit(t *testing.T) {
	p := Compile(DefaultNamespace, "a || b")
	want := []Instr{
		{Op: OpLoad, A: 0},
		{Op: OpJumpIfTrue, A: 3},
		{Op: OpLoad, A: 1},
	}
	if diff := cmp.Diff(want, p.Code); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileMemberChain(t *testing.T) {
	p := Compile(DefaultNamespace, "user.profile[key]")
	require.True(t, p.Compiled)
	assert.Equal(t, OpLoadRoot, p.Code[0].Op)
	assert.Equal(t, len(p.Code), p.Code[0].B)
	assert.Equal(t, []string{"user", "key"}, p.Deps)
}

func TestCompileNegativeEntries(t *testing.T) {
	for _, expr := range []string{
		"Math.max(1, 2)",
		"x => x + 1",
		"[...xs]",
		"tp.file.title",
		"a?.b",
	} {
		t.Run(expr, func(t *testing.T) {
			p := Compile(DefaultNamespace, expr)
			assert.False(t, p.Compiled)
			require.Len(t, p.Code, 1)
			assert.Equal(t, OpTree, p.Code[0].Op)
		})
	}
}

func TestCompileDelegatesCallSites(t *testing.T) {
	p := Compile(DefaultNamespace, "f(1) + 1")
	require.True(t, p.Compiled)
	assert.Equal(t, OpTree, p.Code[0].Op)
	assert.Equal(t, []string{"f(1)"}, p.Texts)
}

func TestExprCacheHitsAndNegativeEntries(t *testing.T) {
	c := NewExprCache(16)
	e := New(WithCache(c))
	store := value.NewStore()
	store.Set("a", value.Int(2))

	for i := 0; i < 3; i++ {
		assert.Equal(t, "4", e.Eval(context.Background(), "a * 2", store).String())
		assert.Equal(t, "3", e.Eval(context.Background(), "Math.max(a, 3)", store).String())
	}

	stats := c.Stats()
	assert.Equal(t, 2, c.Len())
	assert.EqualValues(t, 2, stats.Compiled)
	assert.EqualValues(t, 4, stats.HitCount)
	assert.EqualValues(t, 2, stats.MissCount)
}

func TestExprCacheScalarReassignmentKeepsEntry(t *testing.T) {
	c := NewExprCache(16)
	e := New(WithCache(c))
	store := value.NewStore()
	store.Set("n", value.Int(1))
	assert.Equal(t, "2", e.Eval(context.Background(), "n + 1", store).String())

	store.Set("n", value.Int(41))
	assert.Equal(t, "42", e.Eval(context.Background(), "n + 1", store).String())
	assert.Zero(t, c.Stats().Invalidations)
}

func TestExprCacheShapeChangeInvalidates(t *testing.T) {
	c := NewExprCache(16)
	e := New(WithCache(c))
	store := value.NewStore()
	store.Set("list", value.NewArray(value.Int(1)))
	assert.Equal(t, "1", e.Eval(context.Background(), "list.length", store).String())

	store.Set("list", value.NewArray(value.Int(1), value.Int(2)))
	assert.Equal(t, "2", e.Eval(context.Background(), "list.length", store).String())
	assert.EqualValues(t, 1, c.Stats().Invalidations)

	store.Set("list", value.String("abc"))
	assert.Equal(t, "3", e.Eval(context.Background(), "list.length", store).String())
	assert.EqualValues(t, 2, c.Stats().Invalidations)
}

func TestExprCacheNamespaceInKey(t *testing.T) {
	c := NewExprCache(16)
	store := value.NewStore()
	store.Set("tp", value.String("x"))
	a := New(WithCache(c))
	b := New(WithCache(c), WithNamespace("app"))
	a.Eval(context.Background(), "tp.length", store)
	b.Eval(context.Background(), "tp.length", store)
	assert.Equal(t, 2, c.Len())
}

func TestExprCachePersistence(t *testing.T) {
	c := NewExprCache(16)
	e := New(WithCache(c))
	store := value.NewStore()
	store.Set("name", value.String("x"))
	e.Eval(context.Background(), "`hi ${name}`", store)
	e.Eval(context.Background(), "name.length > 0 ? 'yes' : 'no'", store)

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	restored := NewExprCache(16)
	require.NoError(t, restored.Load(&buf))
	assert.Equal(t, 2, restored.Len())

	e2 := New(WithCache(restored))
	assert.Equal(t, "hi x", e2.Eval(context.Background(), "`hi ${name}`", store).String())
	assert.Equal(t, "yes", e2.Eval(context.Background(), "name.length > 0 ? 'yes' : 'no'", store).String())
	assert.EqualValues(t, 0, restored.Stats().Compiled)

	path := filepath.Join(t.TempDir(), "nested", "exprs.msgpack")
	require.NoError(t, restored.SaveFile(path))
	fromFile := NewExprCache(16)
	require.NoError(t, fromFile.LoadFile(path))
	assert.Equal(t, 2, fromFile.Len())

	missing := NewExprCache(16)
	require.NoError(t, missing.LoadFile(filepath.Join(t.TempDir(), "none")))
	assert.Zero(t, missing.Len())
}

func TestOpCodeString(t *testing.T) {
	assert.Equal(t, "load_root", OpLoadRoot.String())
	assert.Equal(t, "unknown", OpCode(200).String())
}
