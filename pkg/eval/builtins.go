package eval

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/l3aro/go-template-script/pkg/value"
)

// native registers a built-in function and returns its value.
func (e *Evaluator) native(name string, impl builtinFunc) value.Value {
	fn := &value.Function{Name: name}
	fn.Native = func(args []value.Value) value.Value {
		return impl(NewEnv(nil, nil), args)
	}
	e.natives[fn] = impl
	return value.FunctionOf(fn)
}

// callable lets a global object be called like a function, as in Number(x).
func (e *Evaluator) callable(obj value.Value, impl builtinFunc) {
	e.callables[obj.Object()] = impl
}

// namespaceObject builds a global object of native functions and constants.
func namespaceObject(members ...any) value.Value {
	o := value.NewObject()
	for i := 0; i+1 < len(members); i += 2 {
		o.Set(members[i].(string), members[i+1].(value.Value))
	}
	return value.ObjectOf(o)
}

func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Null()
}

func numArg(args []value.Value, i int, def float64) float64 {
	if i < len(args) && !args[i].IsNull() {
		return args[i].ToNumber()
	}
	return def
}

func mathFn(f func(float64) float64) builtinFunc {
	return func(_ *Env, args []value.Value) value.Value {
		return value.Number(f(numArg(args, 0, math.NaN())))
	}
}

// builtins returns the global bindings every script sees.
func (e *Evaluator) builtins() map[string]value.Value {
	g := map[string]value.Value{
		"NaN":      value.Number(math.NaN()),
		"Infinity": value.Number(math.Inf(1)),
	}

	g["Math"] = namespaceObject(
		"PI", value.Number(math.Pi),
		"E", value.Number(math.E),
		"abs", e.native("abs", mathFn(math.Abs)),
		"ceil", e.native("ceil", mathFn(math.Ceil)),
		"floor", e.native("floor", mathFn(math.Floor)),
		"round", e.native("round", mathFn(func(x float64) float64 { return math.Floor(x + 0.5) })),
		"trunc", e.native("trunc", mathFn(math.Trunc)),
		"sign", e.native("sign", mathFn(func(x float64) float64 {
			switch {
			case x > 0:
				return 1
			case x < 0:
				return -1
			}
			return x
		})),
		"sqrt", e.native("sqrt", mathFn(math.Sqrt)),
		"cbrt", e.native("cbrt", mathFn(math.Cbrt)),
		"exp", e.native("exp", mathFn(math.Exp)),
		"log", e.native("log", mathFn(math.Log)),
		"log2", e.native("log2", mathFn(math.Log2)),
		"log10", e.native("log10", mathFn(math.Log10)),
		"sin", e.native("sin", mathFn(math.Sin)),
		"cos", e.native("cos", mathFn(math.Cos)),
		"tan", e.native("tan", mathFn(math.Tan)),
		"pow", e.native("pow", func(_ *Env, args []value.Value) value.Value {
			return value.Number(math.Pow(numArg(args, 0, math.NaN()), numArg(args, 1, math.NaN())))
		}),
		"min", e.native("min", func(_ *Env, args []value.Value) value.Value {
			m := math.Inf(1)
			for _, a := range args {
				m = math.Min(m, a.ToNumber())
			}
			return value.Number(m)
		}),
		"max", e.native("max", func(_ *Env, args []value.Value) value.Value {
			m := math.Inf(-1)
			for _, a := range args {
				m = math.Max(m, a.ToNumber())
			}
			return value.Number(m)
		}),
		"random", e.native("random", func(_ *Env, _ []value.Value) value.Value {
			return value.Number(rand.Float64())
		}),
	)

	g["JSON"] = namespaceObject(
		"stringify", e.native("stringify", func(_ *Env, args []value.Value) value.Value {
			v := arg(args, 0)
			if v.Kind() == value.KindFunction {
				return value.Null()
			}
			indent := ""
			switch sp := arg(args, 2); sp.Kind() {
			case value.KindNumber:
				indent = strings.Repeat(" ", int(math.Min(10, math.Max(0, sp.Num()))))
			case value.KindString:
				indent = sp.Str()
			}
			return value.String(value.ToJSON(v, indent))
		}),
		"parse", e.native("parse", func(env *Env, args []value.Value) value.Value {
			v, err := value.ParseJSON(arg(args, 0).String())
			if err != nil {
				env.Fail(err)
				return value.Null()
			}
			return v
		}),
	)

	g["Object"] = namespaceObject(
		"keys", e.native("keys", func(_ *Env, args []value.Value) value.Value {
			var out []value.Value
			for _, k := range ownKeys(arg(args, 0)) {
				out = append(out, value.String(k))
			}
			return value.NewArray(out...)
		}),
		"values", e.native("values", func(_ *Env, args []value.Value) value.Value {
			src := arg(args, 0)
			var out []value.Value
			for _, k := range ownKeys(src) {
				v, _ := Member(src, value.String(k))
				out = append(out, v)
			}
			return value.NewArray(out...)
		}),
		"entries", e.native("entries", func(_ *Env, args []value.Value) value.Value {
			src := arg(args, 0)
			var out []value.Value
			for _, k := range ownKeys(src) {
				v, _ := Member(src, value.String(k))
				out = append(out, value.NewArray(value.String(k), v))
			}
			return value.NewArray(out...)
		}),
		"assign", e.native("assign", func(_ *Env, args []value.Value) value.Value {
			target := arg(args, 0)
			if target.Kind() != value.KindObject {
				target = value.ObjectOf(value.NewObject())
			}
			for _, src := range args[min(1, len(args)):] {
				for _, k := range ownKeys(src) {
					v, _ := Member(src, value.String(k))
					target.Object().Set(k, v)
				}
			}
			return target
		}),
		"fromEntries", e.native("fromEntries", func(_ *Env, args []value.Value) value.Value {
			o := value.NewObject()
			if src := arg(args, 0); src.Kind() == value.KindArray {
				for _, pair := range src.Array().Items {
					if pair.Kind() == value.KindArray {
						o.Set(pair.Array().At(0).String(), pair.Array().At(1))
					}
				}
			}
			return value.ObjectOf(o)
		}),
		"freeze", e.native("freeze", func(_ *Env, args []value.Value) value.Value {
			return arg(args, 0)
		}),
	)

	g["Array"] = namespaceObject(
		"isArray", e.native("isArray", func(_ *Env, args []value.Value) value.Value {
			return value.Bool(arg(args, 0).Kind() == value.KindArray)
		}),
		"of", e.native("of", func(_ *Env, args []value.Value) value.Value {
			return value.NewArray(append([]value.Value(nil), args...)...)
		}),
		"from", e.native("from", func(env *Env, args []value.Value) value.Value {
			src := arg(args, 0)
			var items []value.Value
			switch src.Kind() {
			case value.KindArray, value.KindString:
				items = spread(src)
			case value.KindObject:
				if n, ok := src.Object().Get("length"); ok {
					items = make([]value.Value, int(math.Max(0, n.ToNumber())))
				}
			}
			if fn := arg(args, 1); fn.Kind() == value.KindFunction {
				for i := range items {
					items[i] = e.Call(env, fn, []value.Value{items[i], value.Int(i)})
				}
			}
			return value.NewArray(items...)
		}),
	)

	g["Number"] = namespaceObject(
		"isInteger", e.native("isInteger", func(_ *Env, args []value.Value) value.Value {
			v := arg(args, 0)
			return value.Bool(v.Kind() == value.KindNumber && v.Num() == math.Trunc(v.Num()) && !math.IsInf(v.Num(), 0))
		}),
		"isFinite", e.native("isFinite", func(_ *Env, args []value.Value) value.Value {
			v := arg(args, 0)
			return value.Bool(v.Kind() == value.KindNumber && !math.IsInf(v.Num(), 0) && !math.IsNaN(v.Num()))
		}),
		"isNaN", e.native("isNaN", func(_ *Env, args []value.Value) value.Value {
			v := arg(args, 0)
			return value.Bool(v.Kind() == value.KindNumber && math.IsNaN(v.Num()))
		}),
		"parseFloat", e.native("parseFloat", parseFloatFn),
		"parseInt", e.native("parseInt", parseIntFn),
		"MAX_SAFE_INTEGER", value.Number(9007199254740991),
		"MIN_SAFE_INTEGER", value.Number(-9007199254740991),
	)

	g["Date"] = namespaceObject(
		"now", e.native("now", func(_ *Env, _ []value.Value) value.Value {
			return value.Number(float64(e.now().UnixMilli()))
		}),
		"parse", e.native("parse", func(_ *Env, args []value.Value) value.Value {
			t, ok := parseDate(arg(args, 0).String())
			if !ok {
				return value.Number(math.NaN())
			}
			return value.Number(float64(t.UnixMilli()))
		}),
	)

	e.callable(g["Number"], func(_ *Env, args []value.Value) value.Value {
		return value.Number(numArg(args, 0, 0))
	})
	e.callable(g["Array"], func(env *Env, args []value.Value) value.Value {
		return e.construct(env, "Array", args)
	})
	e.callable(g["Object"], func(env *Env, args []value.Value) value.Value {
		return e.construct(env, "Object", args)
	})
	e.callable(g["Date"], func(_ *Env, _ []value.Value) value.Value {
		return value.String(value.ObjectOf(value.NewDate(e.now())).String())
	})

	g["String"] = e.native("String", func(_ *Env, args []value.Value) value.Value {
		if len(args) == 0 {
			return value.String("")
		}
		return value.String(args[0].String())
	})
	g["Boolean"] = e.native("Boolean", func(_ *Env, args []value.Value) value.Value {
		return value.Bool(arg(args, 0).Truthy())
	})
	g["parseInt"] = e.native("parseInt", parseIntFn)
	g["parseFloat"] = e.native("parseFloat", parseFloatFn)
	g["isNaN"] = e.native("isNaN", func(_ *Env, args []value.Value) value.Value {
		return value.Bool(math.IsNaN(arg(args, 0).ToNumber()))
	})
	g["isFinite"] = e.native("isFinite", func(_ *Env, args []value.Value) value.Value {
		n := arg(args, 0).ToNumber()
		return value.Bool(!math.IsNaN(n) && !math.IsInf(n, 0))
	})
	g["encodeURIComponent"] = e.native("encodeURIComponent", func(_ *Env, args []value.Value) value.Value {
		return value.String(encodeURIComponent(arg(args, 0).String()))
	})

	logTo := func(level string) builtinFunc {
		return func(_ *Env, args []value.Value) value.Value {
			parts := make([]string, len(args))
			for i, a := range args {
				if a.Kind() == value.KindObject || a.Kind() == value.KindArray {
					parts[i] = value.ToJSON(a, "")
				} else {
					parts[i] = a.String()
				}
			}
			msg := strings.Join(parts, " ")
			switch level {
			case "warn":
				e.logger.Warn("console", "message", msg)
			case "error":
				e.logger.Error("console", "message", msg)
			case "debug":
				e.logger.Debug("console", "message", msg)
			default:
				e.logger.Info("console", "message", msg)
			}
			return value.Null()
		}
	}
	g["console"] = namespaceObject(
		"log", e.native("log", logTo("info")),
		"info", e.native("info", logTo("info")),
		"warn", e.native("warn", logTo("warn")),
		"error", e.native("error", logTo("error")),
		"debug", e.native("debug", logTo("debug")),
	)
	return g
}

func parseFloatFn(_ *Env, args []value.Value) value.Value {
	s := strings.TrimSpace(arg(args, 0).String())
	end := 0
	seenDot, seenExp := false, false
scan:
	for end < len(s) {
		c := s[end]
		switch {
		case isDigit(c):
		case (c == '-' || c == '+') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && !seenExp && end > 0:
			seenExp = true
		default:
			break scan
		}
		end++
	}
	for end > 0 {
		if n, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return value.Number(n)
		}
		end--
	}
	if strings.HasPrefix(s, "Infinity") {
		return value.Number(math.Inf(1))
	}
	return value.Number(math.NaN())
}

func parseIntFn(_ *Env, args []value.Value) value.Value {
	s := strings.TrimSpace(arg(args, 0).String())
	radix := int(numArg(args, 1, 10))
	neg := false
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		neg = s[0] == '-'
		s = s[1:]
	}
	if (radix == 16 || radix == 10 && !radixGiven(args)) && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		s, radix = s[2:], 16
	}
	if radix < 2 || radix > 36 {
		return value.Number(math.NaN())
	}
	end := 0
	for end < len(s) {
		d := digitVal(s[end])
		if d < 0 || d >= radix {
			break
		}
		end++
	}
	if end == 0 {
		return value.Number(math.NaN())
	}
	n, err := strconv.ParseInt(s[:end], radix, 64)
	if err != nil {
		f, _ := strconv.ParseFloat(s[:end], 64)
		n = int64(f)
	}
	if neg {
		n = -n
	}
	return value.Number(float64(n))
}

func radixGiven(args []value.Value) bool {
	return len(args) > 1 && !args[1].IsNull()
}

func digitVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return -1
}

func encodeURIComponent(s string) string {
	const safe = "-_.!~*'()"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c) || strings.IndexByte(safe, c) >= 0 {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "%%%02X", c)
	}
	return sb.String()
}

// ownKeys lists the enumerable keys of objects, arrays and strings.
func ownKeys(v value.Value) []string {
	switch v.Kind() {
	case value.KindObject:
		if v.Object().IsDate() {
			return nil
		}
		return v.Object().Keys()
	case value.KindArray:
		keys := make([]string, v.Array().Len())
		for i := range keys {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	case value.KindString:
		n := len([]rune(v.Str()))
		keys := make([]string, n)
		for i := range keys {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	time.RFC1123,
	time.RFC1123Z,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"January 2, 2006",
	"Jan 2, 2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		loc := time.Local
		if layout == "2006-01-02" {
			loc = time.UTC
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// construct implements new for the built-in constructors.
func (e *Evaluator) construct(env *Env, name string, args []value.Value) value.Value {
	switch name {
	case "Date":
		return value.ObjectOf(value.NewDate(e.newDate(args)))
	case "Array":
		if len(args) == 1 && args[0].Kind() == value.KindNumber {
			return value.NewArray(make([]value.Value, int(math.Max(0, args[0].Num())))...)
		}
		return value.NewArray(append([]value.Value(nil), args...)...)
	case "Object":
		if src := arg(args, 0); src.Kind() == value.KindObject {
			return src
		}
		return value.ObjectOf(value.NewObject())
	case "Set":
		var out []value.Value
		for _, it := range spread(arg(args, 0)) {
			dup := false
			for _, seen := range out {
				if sameValueZero(seen, it) {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, it)
			}
		}
		return value.NewArray(out...)
	case "Map":
		o := value.NewObject()
		if src := arg(args, 0); src.Kind() == value.KindArray {
			for _, pair := range src.Array().Items {
				if pair.Kind() == value.KindArray {
					o.Set(pair.Array().At(0).String(), pair.Array().At(1))
				}
			}
		}
		return value.ObjectOf(o)
	case "Error", "TypeError", "RangeError", "SyntaxError":
		return ErrorValue(name, arg(args, 0).Display())
	case "String":
		return value.String(arg(args, 0).Display())
	case "Number":
		return value.Number(arg(args, 0).ToNumber())
	case "Boolean":
		return value.Bool(arg(args, 0).Truthy())
	}
	env.Fail(fmt.Errorf("%w: %s", ErrConstructor, name))
	return value.Null()
}

// ErrorValue builds the object thrown by throw new Error(message) and bound
// by catch clauses.
func ErrorValue(name, message string) value.Value {
	o := value.NewObject()
	o.Set("name", value.String(name))
	o.Set("message", value.String(message))
	return value.ObjectOf(o)
}

func (e *Evaluator) newDate(args []value.Value) time.Time {
	switch len(args) {
	case 0:
		return e.now()
	case 1:
		a := args[0]
		switch a.Kind() {
		case value.KindNumber:
			return time.UnixMilli(int64(a.Num()))
		case value.KindObject:
			if a.Object().IsDate() {
				return a.Object().Time()
			}
		case value.KindString:
			if t, ok := parseDate(a.Str()); ok {
				return t
			}
		}
		return time.Time{}
	}
	parts := make([]int, 7)
	parts[2] = 1
	for i := 0; i < len(args) && i < 7; i++ {
		parts[i] = int(args[i].ToNumber())
	}
	return time.Date(parts[0], time.Month(parts[1]+1), parts[2], parts[3], parts[4], parts[5], parts[6]*int(time.Millisecond), time.Local)
}
