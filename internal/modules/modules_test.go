package modules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-template-script/internal/frontmatter"
	"github.com/l3aro/go-template-script/pkg/engine"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/value"
)

var fixed = time.Date(2024, time.March, 7, 9, 5, 3, 0, time.Local)

func clock() time.Time { return fixed }

func call(x *Executor, name string, args ...value.Value) eval.ModuleResult {
	c := eval.ModuleCall{Namespace: "tp", Path: strings.Split(name, "."), Args: args}
	return x.ExecuteModule(context.Background(), c)
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"YYYY-MM-DD", "2024-03-07"},
		{"YY/M/D", "24/3/7"},
		{"dddd, MMMM Do", "Thursday, March 7th"},
		{"ddd MMM", "Thu Mar"},
		{"HH:mm:ss", "09:05:03"},
		{"H:m:s A", "9:5:3 AM"},
		{"hh a", "09 am"},
		{"[Week of] YYYY", "Week of 2024"},
		{"[xyz", "[xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDate(fixed, tt.format))
		})
	}
	assert.Equal(t, "1st 2nd 3rd 4th 11th 12th 13th 21st 22nd", func() string {
		var s string
		for i, d := range []int{1, 2, 3, 4, 11, 12, 13, 21, 22} {
			if i > 0 {
				s += " "
			}
			s += ordinal(d)
		}
		return s
	}())
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2023-12-31", "YYYY-MM-DD")
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", FormatDate(got, "YYYY-MM-DD"))

	_, err = ParseDate("31st", "Do")
	assert.ErrorIs(t, err, ErrBadReference)
	_, err = ParseDate("yesterday", "YYYY-MM-DD")
	assert.ErrorIs(t, err, ErrBadReference)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want Duration
		err  bool
	}{
		{in: "P1D", want: Duration{Days: 1}},
		{in: "P1Y2M3W4D", want: Duration{Years: 1, Months: 2, Days: 25}},
		{in: "-P1M", want: Duration{Months: -1}},
		{in: "P-2D", want: Duration{Days: -2}},
		{in: "PT1H30M", want: Duration{Clock: 90 * time.Minute}},
		{in: "p1w", want: Duration{Days: 7}},
		{in: "P", err: true},
		{in: "1D", err: true},
		{in: "P1X", err: true},
		{in: "PT1D", err: true},
		{in: "P1", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrBadDuration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateModule(t *testing.T) {
	x := New(WithClock(clock))
	tests := []struct {
		name string
		fn   string
		args []value.Value
		want string
	}{
		{"now default", "date.now", nil, "2024-03-07"},
		{"now format", "date.now", []value.Value{value.String("DD.MM")}, "07.03"},
		{"now day offset", "date.now", []value.Value{value.Null(), value.Int(-7)}, "2024-02-29"},
		{"now string offset", "date.now", []value.Value{value.Null(), value.String("3")}, "2024-03-10"},
		{"now iso offset", "date.now", []value.Value{value.Null(), value.String("P1M")}, "2024-04-07"},
		{"now reference", "date.now", []value.Value{value.Null(), value.Int(1), value.String("01/02/2020"), value.String("DD/MM/YYYY")}, "2020-02-02"},
		{"tomorrow", "date.tomorrow", nil, "2024-03-08"},
		{"yesterday", "date.yesterday", []value.Value{value.String("ddd")}, "Wed"},
		{"weekday sunday", "date.weekday", []value.Value{value.String("YYYY-MM-DD"), value.Int(0)}, "2024-03-03"},
		{"weekday next monday", "date.weekday", []value.Value{value.Null(), value.Int(8)}, "2024-03-11"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(x, tt.fn, tt.args...)
			require.Equal(t, eval.StatusOK, res.Status, "%v", res.Err)
			assert.Equal(t, tt.want, res.Value.Str())
		})
	}

	res := call(x, "date.now", value.Null(), value.String("soon"))
	assert.Equal(t, eval.StatusError, res.Status)
	assert.ErrorIs(t, res.Err, ErrBadDuration)

	res = call(x, "date.now", value.Null(), value.Null(), value.ObjectOf(value.NewDate(fixed.AddDate(1, 0, 0))))
	assert.Equal(t, "2025-03-07", res.Value.Str())
}

func TestUnknownAndCancelledContext(t *testing.T) {
	x := New()
	res := call(x, "date.never")
	assert.ErrorIs(t, res.Err, ErrUnknownFunction)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = x.ExecuteModule(ctx, eval.ModuleCall{Path: []string{"date", "now"}})
	assert.ErrorIs(t, res.Err, context.Canceled)

	assert.Contains(t, x.Functions(), "file.create_new")
	assert.Contains(t, x.Functions(), "system.suggester")
}

func newFile(t *testing.T) (*Executor, *File) {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "notes", "Daily.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "snippet.md"), []byte("included"), 0644))
	f, err := NewFile(root, path, "hello")
	require.NoError(t, err)
	return New(WithFile(f), WithClock(clock)), f
}

func TestFileQueries(t *testing.T) {
	x, f := newFile(t)

	assert.Equal(t, "Daily", call(x, "file.title").Value.Str())
	assert.Equal(t, "hello", call(x, "file.content").Value.Str())
	assert.Equal(t, f.Path(), call(x, "file.path").Value.Str())
	assert.Equal(t, "notes/Daily.md", call(x, "file.path", value.Bool(true)).Value.Str())
	assert.Equal(t, "notes", call(x, "file.folder").Value.Str())
	assert.True(t, call(x, "file.exists", value.String("snippet.md")).Value.RawBool())
	assert.False(t, call(x, "file.exists", value.String("nope.md")).Value.RawBool())
	assert.Equal(t, "included", call(x, "file.include", value.String("snippet.md")).Value.Str())
	assert.Len(t, call(x, "file.last_modified_date", value.String("YYYY")).Value.Str(), 4)

	res := call(x, "file.include", value.String("../outside.md"))
	assert.ErrorIs(t, res.Err, ErrOutsideRoot)

	res = call(New(), "file.title")
	assert.ErrorIs(t, res.Err, ErrNoFile)
}

func TestFileMutations(t *testing.T) {
	x, f := newFile(t)
	root := f.Root()

	res := call(x, "file.rename", value.String("Renamed"))
	require.Equal(t, eval.StatusOK, res.Status, "%v", res.Err)
	assert.Equal(t, filepath.Join(root, "notes", "Renamed.md"), f.Path())
	assert.FileExists(t, f.Path())

	res = call(x, "file.move", value.String("archive/2024/Done"))
	require.Equal(t, eval.StatusOK, res.Status, "%v", res.Err)
	assert.Equal(t, filepath.Join(root, "archive", "2024", "Done.md"), f.Path())
	assert.Equal(t, "Done", call(x, "file.title").Value.Str())

	assert.Equal(t, eval.StatusError, call(x, "file.move", value.String("../../escape")).Status)
	assert.Equal(t, eval.StatusError, call(x, "file.rename", value.String("a/b")).Status)
	assert.Equal(t, eval.StatusError, call(x, "file.move", value.String("snippet")).Status)

	res = call(x, "file.create_new", value.String("body"), value.String("Idea"), value.String("inbox"))
	require.Equal(t, eval.StatusOK, res.Status, "%v", res.Err)
	assert.Equal(t, "inbox/Idea.md", res.Value.Str())
	res = call(x, "file.create_new", value.String("second"), value.String("Idea"), value.String("inbox"))
	assert.Equal(t, "inbox/Idea 1.md", res.Value.Str())
	data, err := os.ReadFile(filepath.Join(root, "inbox", "Idea 1.md"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	res = call(x, "file.create_new", value.String(""), value.String("data.json"))
	assert.Equal(t, "data.json", res.Value.Str())
}

type fakePrompter struct {
	answer  string
	choice  int
	err     error
	message string
	options []string
}

func (p *fakePrompter) Prompt(_ context.Context, message, def string, multiline bool) (string, error) {
	p.message = message
	if p.err != nil {
		return "", p.err
	}
	if p.answer == "" {
		return def, nil
	}
	return p.answer, nil
}

func (p *fakePrompter) Suggest(_ context.Context, placeholder string, options []string) (int, error) {
	p.options = options
	return p.choice, p.err
}

func TestSystemModule(t *testing.T) {
	p := &fakePrompter{answer: "Ada"}
	x := New(WithPrompter(p))

	res := call(x, "system.prompt", value.String("Name?"))
	assert.Equal(t, "Ada", res.Value.Str())
	assert.Equal(t, "Name?", p.message)

	p.answer = ""
	assert.Equal(t, "anon", call(x, "system.prompt", value.String("Name?"), value.String("anon")).Value.Str())

	p.choice = 1
	items := value.NewArray(value.Int(10), value.Int(20))
	labels := value.NewArray(value.String("ten"), value.String("twenty"))
	res = call(x, "system.suggester", labels, items)
	assert.Equal(t, 20.0, res.Value.Num())
	assert.Equal(t, []string{"ten", "twenty"}, p.options)

	call(x, "system.suggester", value.Null(), items)
	assert.Equal(t, []string{"10", "20"}, p.options)

	assert.Equal(t, eval.StatusError, call(x, "system.suggester", labels, value.NewArray()).Status)

	p.err = ErrCancelled
	assert.Equal(t, eval.StatusCancelled, call(x, "system.prompt", value.String("?")).Status)
	res = call(x, "system.prompt", value.String("?"), value.Null(), value.Bool(true))
	assert.ErrorIs(t, res.Err, ErrCancelled)

	res = call(New(), "system.prompt", value.String("?"))
	assert.ErrorIs(t, res.Err, ErrNoPrompter)
}

func TestRenderWithModules(t *testing.T) {
	x, _ := newFile(t)
	fm, err := frontmatter.Parse("---\nauthor: Kim\ntags: [a, b]\n---\n")
	require.NoError(t, err)

	e := engine.New(engine.WithModules(x), engine.WithFrontmatter(fm), engine.WithClock(clock))
	res, err := e.Render(context.Background(),
		"# <% tp.file.title %> by <% tp.frontmatter.author %>\n<% tp.date.now('YYYY') %> <% tp.frontmatter.tags.join('-') %>",
		engine.RenderContext{})
	require.NoError(t, err)
	assert.Equal(t, "# Daily by Kim\n2024 a-b", res.Output)
}
