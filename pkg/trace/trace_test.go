package trace

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/exec"
	"github.com/l3aro/go-template-script/pkg/value"
)

func record(t *testing.T, code string, opts ...RecorderOption) (*Trace, *value.Store) {
	t.Helper()
	store := value.NewStore()
	store.Set("tR", value.String(""))
	tr := New()
	rec := NewRecorder(tr, store, opts...)
	rec.Start("test")
	x := exec.New(eval.New())
	r := x.Start(eval.NewEnv(context.Background(), store), rec)
	r.Exec(ast.Build(code).Roots)
	rec.Finish(store.Lookup("tR").Display(), r.Stopped())
	return tr, store
}

func TestLoopTrace(t *testing.T) {
	tr, _ := record(t, "for (let i=0;i<3;i++){ tR+=i }")

	iterations := tr.Filter(StepLoopIteration)
	require.Len(t, iterations, 3)
	for i, it := range iterations {
		assert.Equal(t, i+1, it.Iteration)
		assert.Equal(t, 1, it.Line)
	}

	var appends []Step
	for _, s := range tr.Filter(StepStatement) {
		require.NotNil(t, s.Node)
		if s.Input == "tR+=i" {
			appends = append(appends, s)
		}
	}
	require.Len(t, appends, 3)
	for i, s := range appends {
		assert.Equal(t, iterations[i].ID, s.ParentID)
		assert.Equal(t, string(rune('0'+i)), s.Output)
	}

	loop := tr.Filter(StepStatement)[0]
	assert.Equal(t, "for (let i=0;i<3;i++)", loop.Input)
	assert.Equal(t, "012", loop.Output)
	for _, it := range iterations {
		assert.Equal(t, loop.ID, it.ParentID)
	}

	start := tr.Filter(StepTemplateStart)[0]
	assert.Equal(t, start.ID, loop.ParentID)
	end, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, StepTemplateEnd, end.Type)
	assert.Equal(t, "012", end.Output)
	assert.Zero(t, end.ParentID)
	assert.Zero(t, tr.Depth())
}

func TestSnapshots(t *testing.T) {
	tr, _ := record(t, "let a = 1;\na = 2;", WithSnapshots(true))
	steps := tr.Filter(StepStatement)
	require.Len(t, steps, 2)
	assert.NotContains(t, steps[0].Variables, "a")
	assert.Equal(t, "1", steps[1].Variables["a"].String())

	plain, _ := record(t, "let a = 1;")
	assert.Nil(t, plain.Filter(StepStatement)[0].Variables)
}

func TestFunctionBodyNestsUnderCall(t *testing.T) {
	tr, _ := record(t, "function f() {\n  tR += 'x';\n}\nf();")
	var call []Step
	for _, s := range tr.Filter(StepStatement) {
		if s.Input == "f()" {
			call = tr.ForNode(s.NodeID)
		}
	}
	require.Len(t, call, 1)
	children := tr.Children(call[0].ID)
	require.Len(t, children, 1)
	assert.Equal(t, "tR += 'x'", children[0].Input)
	assert.Equal(t, 2, children[0].Line)
	assert.Equal(t, "x", call[0].Output)
}

func TestBlockSteps(t *testing.T) {
	src := "<%* tR += 'a' %>"
	tree := ast.BuildTemplate(src, []ast.SourceBlock{{Kind: ast.BlockExecution, Code: " tR += 'a' ", StartLine: 1, EndLine: 1}})
	store := value.NewStore()
	store.Set("tR", value.String(""))
	tr := New()
	rec := NewRecorder(tr, store)
	r := exec.New(nil).Start(eval.NewEnv(context.Background(), store), rec)
	r.Exec(tree.Roots)

	steps := tr.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, StepBlockStart, steps[0].Type)
	assert.Equal(t, StepStatement, steps[1].Type)
	assert.Equal(t, steps[0].ID, steps[1].ParentID)
	assert.Equal(t, StepBlockEnd, steps[2].Type)
	assert.Equal(t, "a", steps[2].Output)
	assert.Zero(t, steps[2].ParentID)
}

func TestThrowAnnotatesStep(t *testing.T) {
	tr, _ := record(t, "throw 'boom';")
	s := tr.Filter(StepStatement)[0]
	assert.Contains(t, s.Description, "threw boom")
}

func TestDelta(t *testing.T) {
	assert.Equal(t, "c", delta("ab", "abc"))
	assert.Equal(t, "new", delta("old", "new"))
	assert.Equal(t, "", delta("same", "same"))
}

func TestExportRoundTrip(t *testing.T) {
	tr, _ := record(t, "let xs = [1, 2];\nfor (const x of xs) { tR += x }")
	ignore := cmpopts.IgnoreFields(Step{}, "Node", "Variables")

	for _, f := range []Format{FormatJSON, FormatMsgpack} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tr.Export(&buf, f))
			back, err := Import(&buf, f)
			require.NoError(t, err)
			if diff := cmp.Diff(tr.Steps(), back.Steps(), ignore); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExportSnapshotValues(t *testing.T) {
	tr, _ := record(t, "let o = {a: [1, 'x']};\ntR += 'done';", WithSnapshots(true))
	var buf bytes.Buffer
	require.NoError(t, tr.Export(&buf, FormatMsgpack))
	back, err := Import(&buf, FormatMsgpack)
	require.NoError(t, err)
	last := back.Filter(StepStatement)[1]
	assert.Equal(t, `{"a":[1,"x"]}`, value.ToJSON(last.Variables["o"], ""))
}

func TestExportFile(t *testing.T) {
	tr, _ := record(t, "tR += 1;")
	path := filepath.Join(t.TempDir(), "out", "trace.json")
	require.NoError(t, tr.ExportFile(path))

	err := tr.ExportFile(filepath.Join(t.TempDir(), "trace.txt"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(".MSGPACK")
	require.NoError(t, err)
	assert.Equal(t, FormatMsgpack, f)
	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestTraceUpdateAndClear(t *testing.T) {
	tr := New()
	id := tr.Begin(Step{Type: StepBlockStart})
	child := tr.Add(Step{Type: StepStatement})
	tr.End()
	assert.True(t, tr.Update(child, func(s *Step) { s.Output = "x" }))
	assert.False(t, tr.Update(99, func(*Step) {}))

	s, ok := tr.Step(child)
	require.True(t, ok)
	assert.Equal(t, id, s.ParentID)
	assert.Equal(t, "x", s.Output)

	tr.Clear()
	assert.Zero(t, tr.Len())
	assert.Zero(t, tr.Scope())
}
