package frontmatter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-template-script/pkg/value"
)

const note = `---
title: Weekly review
tags: [work, review]
owner:
  name: Sam
  teams:
    - core
    - infra
count: 3
1: numeric key
---
Body <% tp.frontmatter.title %>
`

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		content string
		header  string
		body    string
		ok      bool
	}{
		{"header and body", "---\na: 1\n---\nbody", "a: 1\n", "body", true},
		{"crlf delimiters", "---\r\na: 1\r\n---\r\nbody", "a: 1\r\n", "body", true},
		{"header at end", "---\na: 1\n---", "a: 1\n", "", true},
		{"empty header", "---\n---\nbody", "", "body", true},
		{"no header", "a: 1\nbody", "", "a: 1\nbody", false},
		{"unterminated", "---\na: 1\nbody", "", "---\na: 1\nbody", false},
		{"delimiter not first", "\n---\na: 1\n---\n", "", "\n---\na: 1\n---\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, body, ok := Split(tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.header, header)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestGetValue(t *testing.T) {
	fm, err := Parse(note)
	require.NoError(t, err)
	assert.Equal(t, 5, fm.Len())

	v, ok := fm.GetValue([]string{"title"})
	require.True(t, ok)
	assert.Equal(t, "Weekly review", v.Str())

	v, ok = fm.GetValue([]string{"owner", "teams", "1"})
	require.True(t, ok)
	assert.Equal(t, "infra", v.Str())

	v, ok = fm.GetValue([]string{"count"})
	require.True(t, ok)
	assert.Equal(t, 3.0, v.Num())

	v, ok = fm.GetValue([]string{"1"})
	require.True(t, ok)
	assert.Equal(t, "numeric key", v.Str())

	v, ok = fm.GetValue([]string{"tags"})
	require.True(t, ok)
	assert.Equal(t, `["work","review"]`, value.ToJSON(v, ""))

	for _, path := range [][]string{{"missing"}, {"owner", "teams", "7"}, {"owner", "teams", "x"}, {"title", "length"}} {
		_, ok := fm.GetValue(path)
		assert.False(t, ok, "%v", path)
	}

	all, ok := fm.GetValue(nil)
	require.True(t, ok)
	assert.Equal(t, value.KindObject, all.Kind())
}

func TestGetAll(t *testing.T) {
	fm, err := Parse(note)
	require.NoError(t, err)
	all := fm.GetAll()
	assert.Len(t, all, 5)
	assert.Equal(t, "Sam", value.ToGo(all["owner"]).(map[string]any)["name"])
	assert.Contains(t, fm.Raw(), "title: Weekly review")
}

func TestParseWithoutHeader(t *testing.T) {
	fm, err := Parse("just text")
	require.NoError(t, err)
	assert.Zero(t, fm.Len())
	assert.Empty(t, fm.GetAll())

	fm, err = Parse("---\n---\n")
	require.NoError(t, err)
	assert.Zero(t, fm.Len())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("---\n- a\n- b\n---\n")
	assert.ErrorIs(t, err, ErrNotMapping)

	_, err = Parse("---\na: [1\n---\n")
	assert.ErrorContains(t, err, "failed to parse frontmatter")
}

func TestNewAndLoad(t *testing.T) {
	fm := New(map[string]any{"a": map[any]any{1: "one"}})
	v, ok := fm.GetValue([]string{"a", "1"})
	require.True(t, ok)
	assert.Equal(t, "one", v.Str())

	path := filepath.Join(t.TempDir(), "note.md")
	require.NoError(t, os.WriteFile(path, []byte(note), 0644))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}
