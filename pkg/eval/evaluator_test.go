package eval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-template-script/pkg/value"
)

func testStore() *value.Store {
	s := value.NewStore()
	s.Set("name", value.String("World"))
	s.Set("n", value.Int(3))
	s.Set("flag", value.Bool(true))
	s.Set("items", value.NewArray(value.Int(1), value.Int(2), value.Int(3)))
	inner := value.NewObject()
	inner.Set("b", value.String("deep"))
	obj := value.NewObject()
	obj.Set("a", value.ObjectOf(inner))
	obj.Set("count", value.Int(2))
	s.Set("obj", value.ObjectOf(obj))
	return s
}

var evalCases = []struct {
	name string
	expr string
	want string
}{
	{"empty", "", "null"},
	{"integer", "42", "42"},
	{"float", "1.5", "1.5"},
	{"hex", "0x1F", "31"},
	{"exponent", "1e3", "1000"},
	{"true", "true", "true"},
	{"undefined", "undefined", "null"},
	{"identifier", "name", "World"},
	{"unknown identifier", "missing", "null"},
	{"await stripped", "await n", "3"},
	{"precedence", "1 + 2 * 3", "7"},
	{"left assoc", "10 - 4 - 3", "3"},
	{"right assoc power", "2 ** 3 ** 2", "512"},
	{"modulo", "n % 2", "1"},
	{"parens", "(1 + 2) * 3", "9"},
	{"unary minus", "-n", "-3"},
	{"string concat", "'a' + 1", "a1"},
	{"not", "!flag", "false"},
	{"not binds tighter than and", "!missing && flag", "true"},
	{"typeof number", "typeof n", "number"},
	{"typeof undefined name", "typeof nothing", "undefined"},
	{"typeof function", "typeof Math.max", "function"},
	{"ternary", "n > 2 ? 'big' : 'small'", "big"},
	{"nested ternary", "n > 5 ? 'a' : n > 2 ? 'b' : 'c'", "b"},
	{"and returns operand", "flag && name", "World"},
	{"or default", "missing || 'fallback'", "fallback"},
	{"nullish", "missing ?? 'dflt'", "dflt"},
	{"nullish keeps zero", "0 ?? 5", "0"},
	{"strict equality", "n === 3", "true"},
	{"loose equality", "n == '3'", "true"},
	{"strict inequality", "n !== '3'", "true"},
	{"compare strings", "'b' > 'a'", "true"},
	{"template", "`Hello ${name}!`", "Hello World!"},
	{"template expression", "`${n * 2} items`", "6 items"},
	{"single quoted", `'it\'s'`, "it's"},
	{"array literal", "[1, 2, n]", "1,2,3"},
	{"array spread", "[...items, 4]", "1,2,3,4"},
	{"object member", "obj.a.b", "deep"},
	{"index access", "items[1]", "2"},
	{"computed index", "items[n - 1]", "3"},
	{"length", "items.length", "3"},
	{"string length", "name.length", "5"},
	{"optional chain", "missing?.x", "null"},
	{"object literal", "JSON.stringify({a: 1, b: [true, null]})", `{"a":1,"b":[true,null]}`},
	{"shorthand property", "JSON.stringify({n})", `{"n":3}`},
	{"method chain", "name.toUpperCase().slice(0, 3)", "WOR"},
	{"array map", "items.map(x => x * 2).join('-')", "2-4-6"},
	{"array filter", "items.filter(x => x > 1).length", "2"},
	{"reduce", "items.reduce((a, b) => a + b, 0)", "6"},
	{"literal base chain", "[3, 1, 2].sort().join('')", "123"},
	{"math", "Math.max(1, 5, 3)", "5"},
	{"math round", "Math.round(2.5)", "3"},
	{"callable global", "Number('42') + 1", "43"},
	{"parseInt", "parseInt('12px')", "12"},
	{"new array", "new Array(3).length", "3"},
	{"new set", "new Set([1, 1, 2]).length", "2"},
	{"immediate arrow", "((a, b) => a * b)(6, 7)", "42"},
	{"default param", "((a, b = 10) => a + b)(1)", "11"},
	{"rest param", "((...xs) => xs.length)(1, 2, 3)", "3"},
	{"toFixed", "(3.14159).toFixed(2)", "3.14"},
	{"includes", "items.includes(2)", "true"},
	{"padStart", "'7'.padStart(3, '0')", "007"},
	{"split", "'a,b,c'.split(',').length", "3"},
	{"replace callback", "'abc'.replace('b', m => m.toUpperCase())", "aBc"},
	{"object keys", "Object.keys(obj).join(',')", "a,count"},
	{"raw fallback", "hello world", "hello world"},
}

func TestEvaluate(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		var opts []Option
		if withCache {
			opts = append(opts, WithCache(NewExprCache(64)))
		}
		e := New(opts...)
		for _, tc := range evalCases {
			name := tc.name
			if withCache {
				name += " cached"
			}
			t.Run(name, func(t *testing.T) {
				got := e.Eval(context.Background(), tc.expr, testStore())
				assert.Equal(t, tc.want, got.String(), "expr %q", tc.expr)
			})
		}
	}
}

func TestEvaluateCacheParityRepeated(t *testing.T) {
	cached := New(WithCache(NewExprCache(64)))
	plain := New()
	store := testStore()
	for i := 0; i < 3; i++ {
		for _, tc := range evalCases {
			a := cached.Eval(context.Background(), tc.expr, store)
			b := plain.Eval(context.Background(), tc.expr, store)
			assert.Equal(t, b.String(), a.String(), "expr %q pass %d", tc.expr, i)
		}
	}
}

func TestEvaluateRecordsFaults(t *testing.T) {
	e := New()
	tests := []struct {
		expr string
		err  error
	}{
		{"nothing.x", ErrNullAccess},
		{"obj.missing.x", ErrNullAccess},
		{"n()", ErrNotFunction},
		{"name.nope()", ErrNotFunction},
		{"new Widget()", ErrConstructor},
		{"JSON.parse('{bad')", value.ErrInvalidJSON},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			env := NewEnv(context.Background(), testStore())
			got := e.Evaluate(env, tc.expr)
			assert.True(t, got.IsNull())
			require.Error(t, env.Fault)
			assert.ErrorIs(t, env.Fault, tc.err)
		})
	}
}

func TestEvaluateOptionalChainDoesNotFault(t *testing.T) {
	env := NewEnv(context.Background(), testStore())
	got := New().Evaluate(env, "obj.missing?.x")
	assert.True(t, got.IsNull())
	assert.NoError(t, env.TakeFault())
}

func TestModuleDispatch(t *testing.T) {
	var calls []ModuleCall
	modules := ModuleFunc(func(_ context.Context, call ModuleCall) ModuleResult {
		calls = append(calls, call)
		switch call.Name() {
		case "date.now":
			return OK(value.String("2024-01-02"))
		case "file.title":
			return OK(value.String("Note"))
		case "system.prompt":
			return Cancelled()
		case "user.greet":
			return OK(value.String("hi " + call.Args[0].String()))
		}
		return Failed(errors.New("no such module"))
	})
	e := New(WithModules(modules))

	tests := []struct {
		expr string
		want string
	}{
		{`tp.date.now("YYYY-MM-DD")`, "2024-01-02"},
		{"tp.file.title", "Note"},
		{"tp.file.title.length", "4"},
		{"tp.date.now().slice(0, 4)", "2024"},
		{"tp.system.prompt('x')", "null"},
		{"user.greet(name)", "hi World"},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			got := e.Eval(context.Background(), tc.expr, testStore())
			assert.Equal(t, tc.want, got.String())
		})
	}

	require.Len(t, calls, len(tests))
	assert.Equal(t, "tp", calls[0].Namespace)
	assert.Equal(t, []string{"date", "now"}, calls[0].Path)
	assert.False(t, calls[0].Property)
	assert.True(t, calls[1].Property)
	assert.Equal(t, []string{"user", "greet"}, calls[5].Path)
	assert.Empty(t, calls[5].Namespace)
}

func TestModuleFailureFaults(t *testing.T) {
	e := New(WithModules(ModuleFunc(func(context.Context, ModuleCall) ModuleResult {
		return Failed(errors.New("boom"))
	})))
	env := NewEnv(context.Background(), nil)
	got := e.Evaluate(env, "tp.bad.call()")
	assert.True(t, got.IsNull())
	assert.ErrorIs(t, env.TakeFault(), ErrModule)
}

func TestCustomNamespace(t *testing.T) {
	e := New(WithNamespace("app"), WithModules(ModuleFunc(func(_ context.Context, call ModuleCall) ModuleResult {
		return OK(value.String(call.Namespace + ":" + call.Name()))
	})))
	got := e.Eval(context.Background(), "app.file.path", nil)
	assert.Equal(t, "app:file.path", got.String())
}

type mapFrontmatter map[string]value.Value

func (m mapFrontmatter) GetValue(path []string) (value.Value, bool) {
	v, ok := m[path[0]]
	for _, p := range path[1:] {
		if !ok || v.Kind() != value.KindObject {
			return value.Null(), false
		}
		v, ok = v.Object().Get(p)
	}
	return v, ok
}

func (m mapFrontmatter) GetAll() map[string]value.Value { return m }

func TestFrontmatter(t *testing.T) {
	author := value.NewObject()
	author.Set("name", value.String("Ada"))
	fm := mapFrontmatter{
		"title":  value.String("Notes"),
		"tags":   value.NewArray(value.String("a"), value.String("b")),
		"author": value.ObjectOf(author),
	}
	e := New(WithFrontmatter(fm))

	tests := []struct {
		expr string
		want string
	}{
		{"tp.frontmatter.title", "Notes"},
		{"tp.frontmatter.author.name", "Ada"},
		{"tp.frontmatter.tags.join('+')", "a+b"},
		{"tp.frontmatter.missing", "null"},
		{"Object.keys(tp.frontmatter).length", "3"},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			assert.Equal(t, tc.want, e.Eval(context.Background(), tc.expr, nil).String())
		})
	}
}

func TestDateWithClock(t *testing.T) {
	fixed := time.Date(2024, time.March, 5, 10, 30, 0, 0, time.UTC)
	e := New(WithClock(func() time.Time { return fixed }))
	store := value.NewStore()

	assert.Equal(t, "2024", e.Eval(context.Background(), "new Date().getFullYear()", store).String())
	assert.Equal(t, "2", e.Eval(context.Background(), "new Date().getMonth()", store).String())
	assert.Equal(t, "2024-03-05T10:30:00.000Z", e.Eval(context.Background(), "new Date().toISOString()", store).String())
	assert.Equal(t, float64(fixed.UnixMilli()), e.Eval(context.Background(), "Date.now()", store).Num())
}

func TestCallDepthCeiling(t *testing.T) {
	e := New(WithMaxDepth(5))
	store := value.NewStore()
	env := NewEnv(context.Background(), store)
	store.Set("f", e.Evaluate(env, "(x) => f(x + 1)"))
	got := e.Evaluate(env, "f(0)")
	assert.True(t, got.IsNull())
	assert.ErrorIs(t, env.TakeFault(), ErrCallDepth)
	assert.Zero(t, env.Depth)
}

func TestBindParamsRestoresBindings(t *testing.T) {
	e := New()
	store := value.NewStore()
	store.Set("x", value.String("outer"))
	env := NewEnv(context.Background(), store)
	fn := e.Evaluate(env, "(x, y) => x + y")
	require.Equal(t, value.KindFunction, fn.Kind())

	got := e.Call(env, fn, []value.Value{value.Int(1), value.Int(2)})
	assert.Equal(t, "3", got.String())
	assert.Equal(t, "outer", store.Lookup("x").String())
	assert.False(t, store.Has("y"))
}

func TestStatementBodyNeedsInvoker(t *testing.T) {
	e := New()
	env := NewEnv(context.Background(), nil)
	fn := e.Evaluate(env, "function (a) { return a; }")
	require.Equal(t, value.KindFunction, fn.Kind())
	got := e.Call(env, fn, []value.Value{value.Int(1)})
	assert.True(t, got.IsNull())
	assert.ErrorIs(t, env.TakeFault(), ErrNoInvoker)
}

func TestCancelledContextStopsCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New()
	env := NewEnv(ctx, testStore())
	got := e.Evaluate(env, "items.map(x => x + 1)")
	assert.Equal(t, 0, got.Array().Len())
	assert.ErrorIs(t, env.TakeFault(), context.Canceled)
}

func TestBind(t *testing.T) {
	e := New()
	store := value.NewStore()
	env := NewEnv(context.Background(), store)
	src := e.Evaluate(env, "{a: 1, b: {c: 2}, d: 4, e: 5}")

	e.Bind(env, "{a, b: {c}, z = 9, ...rest}", src)
	assert.Equal(t, "1", store.Lookup("a").String())
	assert.Equal(t, "2", store.Lookup("c").String())
	assert.Equal(t, "9", store.Lookup("z").String())
	assert.Equal(t, `{"d":4,"e":5}`, value.ToJSON(store.Lookup("rest"), ""))

	e.Bind(env, "[first, , third, ...more]", e.Evaluate(env, "[1, 2, 3, 4, 5]"))
	assert.Equal(t, "1", store.Lookup("first").String())
	assert.Equal(t, "3", store.Lookup("third").String())
	assert.Equal(t, "4,5", store.Lookup("more").String())

	assert.Equal(t, []string{"a", "c", "z", "rest"}, PatternNames("{a, b: {c}, z = 9, ...rest}"))
	assert.Equal(t, []string{"first", "third", "more"}, PatternNames("[first, , third, ...more]"))
}
