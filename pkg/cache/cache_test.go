package cache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_Basic(t *testing.T) {
	c := New(Options[string]{MaxSize: 3})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value_a", val)

	val, found = c.Get("b")
	require.True(t, found)
	assert.Equal(t, "value_b", val)
}

func TestLRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options[string]{
		MaxSize: 3,
		OnEvict: func(key string, _ string) { evicted = append(evicted, key) },
	})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Set("d", "value_d")

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")

	_, found = c.Get("a")
	assert.True(t, found, "a should still be present")
}

func TestLRU_Delete(t *testing.T) {
	c := New(Options[int]{MaxSize: 10})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	c.Delete("missing")

	assert.Equal(t, 1, c.Len())
	_, found := c.Get("a")
	assert.False(t, found)
}

func TestLRU_Update(t *testing.T) {
	c := New(Options[string]{MaxSize: 10})

	c.Set("a", "value1")
	c.Set("a", "value2")

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value2", val)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_MaxBytes(t *testing.T) {
	c := New(Options[string]{
		MaxBytes: 25,
		SizeOf:   func(s string) int { return len(s) },
	})

	c.Set("a", "1234567890")
	c.Set("b", "1234567890")
	c.Set("c", "1234567890")

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(20), c.Stats().CurrentBytes)
	_, found := c.Peek("a")
	assert.False(t, found)
}

func TestLRU_Stats(t *testing.T) {
	c := New(Options[int]{})
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("zzz")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 1e-9)

	c.ResetStats()
	assert.Zero(t, c.Stats().HitCount)

	_, _ = c.Peek("a")
	assert.Zero(t, c.Stats().HitCount, "peek does not count")
}

type program struct {
	Ops  []int    `msgpack:"ops"`
	Deps []string `msgpack:"deps"`
}

func TestLRU_SaveLoad(t *testing.T) {
	c := New(Options[program]{MaxSize: 10})
	c.Set("x + 1", program{Ops: []int{1, 2, 3}, Deps: []string{"x"}})
	c.Set("y", program{Ops: []int{1}, Deps: []string{"y"}})

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	c2 := New(Options[program]{MaxSize: 10})
	require.NoError(t, c2.Load(&buf))
	assert.Equal(t, 2, c2.Len())

	val, found := c2.Get("x + 1")
	require.True(t, found)
	assert.Equal(t, []int{1, 2, 3}, val.Ops)
	assert.Equal(t, []string{"x"}, val.Deps)
}

func TestLRU_LoadKeepsRecency(t *testing.T) {
	c := New(Options[int]{MaxSize: 3})
	c.Set("old", 1)
	c.Set("mid", 2)
	c.Set("new", 3)

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	c2 := New(Options[int]{MaxSize: 2})
	require.NoError(t, c2.Load(&buf))
	_, found := c2.Peek("old")
	assert.False(t, found, "least recent entry is dropped when the limit shrinks")
	_, found = c2.Peek("new")
	assert.True(t, found)
}

func TestPersistToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "exprs.cache")

	c := New(Options[string]{})
	c.Set("k", "v")
	require.NoError(t, PersistToFile(c, path))

	c2 := New(Options[string]{})
	require.NoError(t, LoadFromFile(c2, path))
	val, found := c2.Get("k")
	require.True(t, found)
	assert.Equal(t, "v", val)

	missing := New(Options[string]{})
	assert.NoError(t, LoadFromFile(missing, filepath.Join(t.TempDir(), "none.cache")))
}

func TestLRU_LoadGarbage(t *testing.T) {
	c := New(Options[string]{})
	err := c.Load(bytes.NewBufferString("not msgpack"))
	assert.Error(t, err)
}
