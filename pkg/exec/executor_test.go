package exec

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-template-script/internal/log"
	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/value"
)

type recorder struct {
	NopHooks
	statements []string
	after      []ControlKind
	iterations []int
	entered    int
	exited     int
	stopLine   int
}

func (h *recorder) BeforeStatement(n *ast.StatementNode) Action {
	if h.stopLine > 0 && n.Line == h.stopLine {
		return ActionStop
	}
	h.statements = append(h.statements, n.Code)
	return ActionContinue
}

func (h *recorder) AfterStatement(_ *ast.StatementNode, c Control) {
	h.after = append(h.after, c.Kind)
}

func (h *recorder) EnterBlock(*ast.StatementNode) { h.entered++ }
func (h *recorder) ExitBlock(*ast.StatementNode)  { h.exited++ }

func (h *recorder) OnLoopIteration(_ *ast.StatementNode, i int) {
	h.iterations = append(h.iterations, i)
}

type fixture struct {
	x     *Executor
	store *value.Store
	env   *eval.Env
}

func newFixture(opts ...Option) *fixture {
	store := value.NewStore()
	store.Set("tR", value.String(""))
	return &fixture{
		x:     New(eval.New(), opts...),
		store: store,
		env:   eval.NewEnv(context.Background(), store),
	}
}

func (f *fixture) run(t *testing.T, code string) Control {
	t.Helper()
	c, _ := f.x.Run(f.env, ast.Build(code).Roots)
	return c
}

func (f *fixture) output() string {
	return f.store.Lookup("tR").Display()
}

func (f *fixture) eval(expr string) string {
	return f.x.Evaluator().Eval(context.Background(), expr, f.store).String()
}

func TestForLoopAppendsOutput(t *testing.T) {
	f := newFixture()
	c := f.run(t, "for (let i=0;i<3;i++){ tR+=i }")
	assert.Equal(t, ControlNormal, c.Kind)
	assert.Equal(t, "012", f.output())
	assert.False(t, f.store.Has("i"), "loop variable leaks out of the loop")
}

func TestLoopHooks(t *testing.T) {
	h := &recorder{}
	f := newFixture(WithHooks(h))
	f.run(t, "for (let i=0;i<3;i++){ tR+=i }")

	assert.Equal(t, []int{1, 2, 3}, h.iterations)
	appends := 0
	for _, s := range h.statements {
		if s == "tR+=i" {
			appends++
		}
	}
	assert.Equal(t, 3, appends)
	assert.Len(t, h.after, len(h.statements))
}

func TestLoopVariableRestoredAfterLoop(t *testing.T) {
	f := newFixture()
	f.run(t, "let i = 'outer';\nfor (let i = 0; i < 2; i++) { tR += i }\ntR += i;")
	assert.Equal(t, "01outer", f.output())
}

func TestBlockScopedDeclarations(t *testing.T) {
	tests := map[string]struct {
		code   string
		want   string
		absent []string
	}{
		"bare block":     {code: "let y = 5;\n{ let y = 6; tR += y }\ntR += y;", want: "65"},
		"if body":        {code: "let y = 5;\nif (true) { let y = 7; var z = 1; tR += y }\ntR += y + z;", want: "76"},
		"loop body":      {code: "for (const n of [1, 2]) { const sq = n * n; tR += sq }", want: "14", absent: []string{"sq", "n"}},
		"try and catch":  {code: "try { let t = 1; throw 'x' } catch (e) { tR += e }", want: "x", absent: []string{"t", "e"}},
		"outer assigned": {code: "let y = 1;\n{ y = 2 }\ntR += y;", want: "2"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.run(t, tc.code)
			assert.Equal(t, tc.want, f.output())
			for _, n := range tc.absent {
				assert.False(t, f.store.Has(n), "%s leaks out of its block", n)
			}
		})
	}
}

func TestUnsupportedStatementWarns(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(WithLogger(log.New(log.LoggerConfig{Level: log.WarnLevel, Stderr: &buf})))
	f.run(t, "let n = 0;\nfor (let i = 0; i < 2; i++) {\n  switch (n) { case 0: break }\n}")
	assert.Contains(t, buf.String(), "unsupported statement")
	assert.Contains(t, buf.String(), "switch")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("unsupported statement")), "warned once per statement")
}

func TestBreakAndContinue(t *testing.T) {
	f := newFixture()
	f.run(t, `for (let i = 0; i < 10; i++) {
  if (i == 2) { continue }
  if (i == 5) { break }
  tR += i
}`)
	assert.Equal(t, "0134", f.output())
}

func TestWhileCeiling(t *testing.T) {
	f := newFixture(WithMaxLoopIterations(5))
	c := f.run(t, "let n = 0;\nwhile (true) { n++ }\ntR += 'done';")
	assert.Equal(t, ControlNormal, c.Kind)
	assert.Equal(t, "5", f.eval("n"))
	assert.Equal(t, "done", f.output())
}

func TestForOf(t *testing.T) {
	tests := map[string]struct {
		code string
		want string
	}{
		"array": {
			code: "for (const x of [1, 2, 3]) { tR += x * 2 }",
			want: "246",
		},
		"string": {
			code: "for (const ch of 'héllo') { tR += ch + '.' }",
			want: "h.é.l.l.o.",
		},
		"destructuring": {
			code: "for (const [k, v] of Object.entries({a: 1, b: 2})) { tR += k + v }",
			want: "a1b2",
		},
		"for in": {
			code: "const o = {a: 1, b: 2};\nfor (const k in o) { tR += k + '=' + o[k] + ';' }",
			want: "a=1;b=2;",
		},
		"growing array": {
			code: "const xs = [1];\nfor (const x of xs) { if (x < 3) { xs.push(x + 1) } tR += x }",
			want: "123",
		},
		"null": {
			code: "for (const x of null) { tR += 'never' }",
			want: "",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.run(t, tc.code)
			assert.Equal(t, tc.want, f.output())
		})
	}
}

func TestIfChain(t *testing.T) {
	code := `if (n > 10) {
  tR += 'big'
} else if (n > 5) {
  tR += 'medium'
} else {
  tR += 'small'
}`
	for n, want := range map[int]string{20: "big", 7: "medium", 1: "small"} {
		f := newFixture()
		f.store.Set("n", value.Int(n))
		f.run(t, code)
		assert.Equal(t, want, f.output())
	}
}

func TestFunctions(t *testing.T) {
	t.Run("return value", func(t *testing.T) {
		f := newFixture()
		f.run(t, "function add(a, b) { return a + b; }\nlet r = add(2, 3);")
		assert.Equal(t, "5", f.eval("r"))
		assert.False(t, f.store.Has("a"))
	})
	t.Run("hoisted", func(t *testing.T) {
		f := newFixture()
		f.run(t, "let r = twice(4);\nfunction twice(n) { return n * 2 }")
		assert.Equal(t, "8", f.eval("r"))
	})
	t.Run("return unwinds loops", func(t *testing.T) {
		f := newFixture()
		f.run(t, `function first(xs) {
  for (const x of xs) {
    if (x > 1) { return x }
  }
  return -1
}
let r = first([1, 2, 3]);`)
		assert.Equal(t, "2", f.eval("r"))
	})
	t.Run("locals restored", func(t *testing.T) {
		f := newFixture()
		f.run(t, "let x = 'outer';\nfunction f() { let x = 'inner'; tR += x; }\nf();\ntR += x;")
		assert.Equal(t, "innerouter", f.output())
	})
	t.Run("default parameter", func(t *testing.T) {
		f := newFixture()
		f.run(t, "function greet(name = 'world') { tR += 'hi ' + name }\ngreet();")
		assert.Equal(t, "hi world", f.output())
	})
	t.Run("arrow with block body", func(t *testing.T) {
		f := newFixture()
		f.run(t, "const sum = (n) => { let s = 0; for (let i = 1; i <= n; i++) { s += i } return s };\ntR += sum(4);")
		assert.Equal(t, "10", f.output())
	})
	t.Run("shared accumulator", func(t *testing.T) {
		f := newFixture()
		f.run(t, "function emit(s) { tR += s }\ntR += '[';\nemit('x');\ntR += ']';")
		assert.Equal(t, "[x]", f.output())
	})
}

func TestCallDepthCeiling(t *testing.T) {
	store := value.NewStore()
	x := New(eval.New(eval.WithMaxDepth(10)))
	env := eval.NewEnv(context.Background(), store)
	code := "function f(n) { return f(n + 1) }\nlet r = f(0);\nlet name = '';\ntry { f(0) } catch (e) { name = e.name }"
	c, err := x.Run(env, ast.Build(code).Roots)
	require.NoError(t, err)
	assert.Equal(t, ControlNormal, c.Kind)
	assert.True(t, store.Lookup("r").IsNull())
	assert.Equal(t, "RangeError", store.Lookup("name").String())
}

func TestTryCatch(t *testing.T) {
	tests := map[string]struct {
		code string
		want string
	}{
		"fault becomes TypeError": {
			code: "try { let o = null; let v = o.x; tR += 'no' } catch (e) { tR += e.name }",
			want: "TypeError",
		},
		"throw with finally": {
			code: "try { throw new Error('boom') } catch (err) { tR += err.message } finally { tR += '!' }",
			want: "boom!",
		},
		"throw from function": {
			code: "function f() { throw 'bad' }\ntry { f() } catch (e) { tR += e }",
			want: "bad",
		},
		"fault outside try is ignored": {
			code: "let o = null;\nlet v = o.x;\ntR += 'after';",
			want: "after",
		},
		"finally without throw": {
			code: "try { tR += 'a' } finally { tR += 'b' }",
			want: "ab",
		},
		"catch without binding": {
			code: "try { throw 1 } catch { tR += 'caught' }",
			want: "caught",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.run(t, tc.code)
			assert.Equal(t, tc.want, f.output())
		})
	}
}

func TestUncaughtThrowEndsExecution(t *testing.T) {
	f := newFixture()
	c := f.run(t, "tR += 'a';\nthrow 'x';\ntR += 'b';")
	assert.Equal(t, ControlThrow, c.Kind)
	assert.Equal(t, "x", c.Value.String())
	assert.Equal(t, "a", f.output())
}

func TestAssignments(t *testing.T) {
	f := newFixture()
	f.run(t, `let o = {n: 1};
o.n += 2;
o['m'] = 'x';
let xs = [1];
xs[1] = 5;
xs.push(9);
let a = null;
a ??= 5;
let b = 1;
b ||= 9;
let c = 1;
c &&= 7;
let p, q;
p = q = 3;
const {k, y: [first]} = {k: 1, y: [2]};
let i = 10;
i--;
--i;`)
	got := map[string]string{}
	for _, expr := range []string{"o.n", "o.m", "xs.join()", "a", "b", "c", "p", "q", "k", "first", "i"} {
		got[expr] = f.eval(expr)
	}
	want := map[string]string{
		"o.n": "3", "o.m": "x", "xs.join()": "1,5,9",
		"a": "5", "b": "1", "c": "7",
		"p": "3", "q": "3",
		"k": "1", "first": "2",
		"i": "8",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("store mismatch (-want +got):\n%s", diff)
	}
}

func TestStopHook(t *testing.T) {
	h := &recorder{stopLine: 2}
	f := newFixture(WithHooks(h))
	c, err := f.x.Run(f.env, ast.Build("tR += 'a';\ntR += 'b';\ntR += 'c';").Roots)
	assert.Equal(t, ControlStop, c.Kind)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, "a", f.output())
}

func TestStopInsideFunctionUnwinds(t *testing.T) {
	h := &recorder{stopLine: 2}
	f := newFixture(WithHooks(h))
	code := "function f() {\n  tR += 'in';\n}\nf();\ntR += 'after';"
	c, err := f.x.Run(f.env, ast.Build(code).Roots)
	assert.Equal(t, ControlStop, c.Kind)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, "", f.output())
}

type cancelOnIteration struct {
	NopHooks
	at     int
	cancel context.CancelFunc
}

func (h *cancelOnIteration) OnLoopIteration(_ *ast.StatementNode, i int) {
	if i == h.at {
		h.cancel()
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := value.NewStore()
	store.Set("tR", value.String(""))
	x := New(eval.New())
	r := x.Start(eval.NewEnv(ctx, store), &cancelOnIteration{at: 3, cancel: cancel})

	c := r.Exec(ast.Build("while (true) { tR += 'x' }\ntR += 'never';").Roots)
	assert.Equal(t, ControlStop, c.Kind)
	assert.True(t, r.Stopped())
	assert.ErrorIs(t, r.Err(), context.Canceled)
	assert.Equal(t, "xx", store.Lookup("tR").String())
}

func TestTemplateBlocksAndInterpolation(t *testing.T) {
	src := "<%* let n = 2 %>\n<% n + 1 %>"
	tree := ast.BuildTemplate(src, []ast.SourceBlock{
		{Kind: ast.BlockExecution, Code: " let n = 2 ", StartLine: 1, EndLine: 1},
		{Kind: ast.BlockInterpolation, Code: " n + 1 ", StartLine: 2, EndLine: 2},
	})
	h := &recorder{}
	f := newFixture()
	r := f.x.Start(f.env, h)

	c := r.Exec(tree.Blocks[0].Nodes)
	require.True(t, c.Normal())
	v, c := r.Interpolate(tree.Blocks[1].Nodes[0])
	require.True(t, c.Normal())
	assert.Equal(t, "3", v.String())
	assert.Equal(t, 1, h.entered)
	assert.Equal(t, 1, h.exited)
	assert.Equal(t, []string{"let n = 2", "n + 1"}, h.statements)
}

func TestDynamicNodesFireNoHooks(t *testing.T) {
	h := &recorder{}
	f := newFixture(WithHooks(h))
	f.run(t, "const f = () => { tR += 'a'; tR += 'b' };\nf();")
	assert.Equal(t, "ab", f.output())
	assert.Equal(t, []string{"const f = () => { tR += 'a'; tR += 'b' }", "f()"}, h.statements)
}

func TestMultiStopsAtFirstStop(t *testing.T) {
	first := &recorder{stopLine: 1}
	second := &recorder{}
	m := Multi(first, nil, second)
	n := &ast.StatementNode{ID: 1, Line: 1, Code: "x"}
	assert.Equal(t, ActionStop, m.BeforeStatement(n))
	assert.Empty(t, second.statements)
	assert.Same(t, first, Multi(nil, first))
}
