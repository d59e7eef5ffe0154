package eval

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/l3aro/go-template-script/pkg/value"
	"golang.org/x/text/unicode/norm"
)

type method func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value

var (
	stringMethods   map[string]method
	arrayMethods    map[string]method
	numberMethods   map[string]method
	dateMethods     map[string]method
	objectMethods   map[string]method
	functionMethods map[string]method
)

func methodsFor(v value.Value) map[string]method {
	switch v.Kind() {
	case value.KindString:
		return stringMethods
	case value.KindArray:
		return arrayMethods
	case value.KindNumber:
		return numberMethods
	case value.KindObject:
		if v.Object().IsDate() {
			return dateMethods
		}
		return objectMethods
	case value.KindFunction:
		return functionMethods
	case value.KindBool:
		return objectMethods
	}
	return nil
}

// hasMethod reports whether v has a built-in method called name.
func hasMethod(v value.Value, name string) bool {
	_, ok := methodsFor(v)[name]
	return ok
}

// callMethod calls recv.name(args). Function-valued properties of objects
// win over built-in methods.
func (e *Evaluator) callMethod(env *Env, recv value.Value, name string, args []value.Value) value.Value {
	if recv.IsNull() {
		env.Fail(fmt.Errorf("%w (reading %q)", ErrNullAccess, name))
		return value.Null()
	}
	if recv.Kind() == value.KindObject {
		if own, ok := recv.Object().Get(name); ok {
			return e.Call(env, own, args)
		}
	}
	if m, ok := methodsFor(recv)[name]; ok {
		return m(e, env, recv, args)
	}
	env.Fail(fmt.Errorf("%w: %s.%s", ErrNotFunction, recv.TypeOf(), name))
	return value.Null()
}

func strArg(args []value.Value, i int, def string) string {
	if i < len(args) && !args[i].IsNull() {
		return args[i].String()
	}
	return def
}

// relIndex resolves a possibly negative index argument against length n.
func relIndex(args []value.Value, i, n, def int) int {
	if i >= len(args) || args[i].IsNull() {
		return def
	}
	f := args[i].ToNumber()
	if math.IsNaN(f) {
		return 0
	}
	k := int(math.Trunc(math.Max(math.Min(f, float64(n)), -float64(n)-1)))
	if k < 0 {
		k += n
	}
	return max(0, min(k, n))
}

func init() {
	stringMethods = map[string]method{
		"toUpperCase": strFn(strings.ToUpper),
		"toLowerCase": strFn(strings.ToLower),
		"trim":        strFn(strings.TrimSpace),
		"trimStart":   strFn(func(s string) string { return strings.TrimLeft(s, " \t\r\n") }),
		"trimEnd":     strFn(func(s string) string { return strings.TrimRight(s, " \t\r\n") }),
		"toString":    strFn(func(s string) string { return s }),
		"valueOf":     strFn(func(s string) string { return s }),
		"normalize": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			s := recv.Str()
			switch strArg(args, 0, "NFC") {
			case "NFD":
				return value.String(norm.NFD.String(s))
			case "NFKC":
				return value.String(norm.NFKC.String(s))
			case "NFKD":
				return value.String(norm.NFKD.String(s))
			}
			return value.String(norm.NFC.String(s))
		},
		"split": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			if len(args) == 0 || args[0].IsNull() {
				return value.NewArray(recv)
			}
			parts := strings.Split(recv.Str(), args[0].String())
			if args[0].String() == "" {
				parts = nil
				for _, r := range recv.Str() {
					parts = append(parts, string(r))
				}
			}
			if lim := numArg(args, 1, -1); lim >= 0 && int(lim) < len(parts) {
				parts = parts[:int(lim)]
			}
			out := make([]value.Value, len(parts))
			for i, p := range parts {
				out[i] = value.String(p)
			}
			return value.NewArray(out...)
		},
		"includes": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			runes := []rune(recv.Str())
			from := relIndex(args, 1, len(runes), 0)
			return value.Bool(strings.Contains(string(runes[from:]), strArg(args, 0, "undefined")))
		},
		"startsWith": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			runes := []rune(recv.Str())
			from := relIndex(args, 1, len(runes), 0)
			return value.Bool(strings.HasPrefix(string(runes[from:]), strArg(args, 0, "undefined")))
		},
		"endsWith": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			runes := []rune(recv.Str())
			end := relIndex(args, 1, len(runes), len(runes))
			return value.Bool(strings.HasSuffix(string(runes[:end]), strArg(args, 0, "undefined")))
		},
		"indexOf": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			runes := []rune(recv.Str())
			from := relIndex(args, 1, len(runes), 0)
			i := strings.Index(string(runes[from:]), strArg(args, 0, "undefined"))
			if i < 0 {
				return value.Int(-1)
			}
			return value.Int(from + utf8.RuneCountInString(string(runes[from:])[:i]))
		},
		"lastIndexOf": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			s := recv.Str()
			i := strings.LastIndex(s, strArg(args, 0, "undefined"))
			if i < 0 {
				return value.Int(-1)
			}
			return value.Int(utf8.RuneCountInString(s[:i]))
		},
		"slice": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			runes := []rune(recv.Str())
			start := relIndex(args, 0, len(runes), 0)
			end := relIndex(args, 1, len(runes), len(runes))
			if start >= end {
				return value.String("")
			}
			return value.String(string(runes[start:end]))
		},
		"substring": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			runes := []rune(recv.Str())
			clamp := func(i int, def int) int {
				if i >= len(args) || args[i].IsNull() {
					return def
				}
				f := args[i].ToNumber()
				if math.IsNaN(f) || f < 0 {
					return 0
				}
				return int(math.Min(f, float64(len(runes))))
			}
			start, end := clamp(0, 0), clamp(1, len(runes))
			if start > end {
				start, end = end, start
			}
			return value.String(string(runes[start:end]))
		},
		"substr": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			runes := []rune(recv.Str())
			start := relIndex(args, 0, len(runes), 0)
			n := int(numArg(args, 1, float64(len(runes)-start)))
			end := min(len(runes), start+max(0, n))
			return value.String(string(runes[start:end]))
		},
		"replace": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			return e.replace(env, recv.Str(), args, 1)
		},
		"replaceAll": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			return e.replace(env, recv.Str(), args, -1)
		},
		"repeat": func(_ *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			n := numArg(args, 0, 0)
			if n < 0 || math.IsInf(n, 0) {
				env.Fail(fmt.Errorf("invalid count value: %s", value.FormatNumber(n)))
				return value.Null()
			}
			return value.String(strings.Repeat(recv.Str(), int(n)))
		},
		"padStart": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			return value.String(pad(recv.Str(), int(numArg(args, 0, 0)), strArg(args, 1, " "), true))
		},
		"padEnd": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			return value.String(pad(recv.Str(), int(numArg(args, 0, 0)), strArg(args, 1, " "), false))
		},
		"charAt": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			runes := []rune(recv.Str())
			i := int(numArg(args, 0, 0))
			if i < 0 || i >= len(runes) {
				return value.String("")
			}
			return value.String(string(runes[i]))
		},
		"charCodeAt": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			runes := []rune(recv.Str())
			i := int(numArg(args, 0, 0))
			if i < 0 || i >= len(runes) {
				return value.Number(math.NaN())
			}
			return value.Int(int(runes[i]))
		},
		"at": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			runes := []rune(recv.Str())
			i := int(numArg(args, 0, 0))
			if i < 0 {
				i += len(runes)
			}
			if i < 0 || i >= len(runes) {
				return value.Null()
			}
			return value.String(string(runes[i]))
		},
		"concat": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			var sb strings.Builder
			sb.WriteString(recv.Str())
			for _, a := range args {
				sb.WriteString(a.String())
			}
			return value.String(sb.String())
		},
		"localeCompare": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			return value.Int(strings.Compare(recv.Str(), strArg(args, 0, "undefined")))
		},
	}

	arrayMethods = map[string]method{
		"push": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			recv.Array().Push(args...)
			return value.Int(recv.Array().Len())
		},
		"pop": func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
			arr := recv.Array()
			if arr.Len() == 0 {
				return value.Null()
			}
			last := arr.Items[arr.Len()-1]
			arr.Items = arr.Items[:arr.Len()-1]
			return last
		},
		"shift": func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
			arr := recv.Array()
			if arr.Len() == 0 {
				return value.Null()
			}
			first := arr.Items[0]
			arr.Items = append([]value.Value(nil), arr.Items[1:]...)
			return first
		},
		"unshift": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			arr := recv.Array()
			arr.Items = append(append([]value.Value(nil), args...), arr.Items...)
			return value.Int(arr.Len())
		},
		"join": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			items := recv.Array().Items
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = it.Display()
			}
			return value.String(strings.Join(parts, strArg(args, 0, ",")))
		},
		"toString": func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
			return value.String(recv.String())
		},
		"map": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			var out []value.Value
			e.each(env, recv, arg(args, 0), func(_ int, _, r value.Value) bool {
				out = append(out, r)
				return true
			})
			return value.NewArray(out...)
		},
		"filter": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			var out []value.Value
			e.each(env, recv, arg(args, 0), func(_ int, it, r value.Value) bool {
				if r.Truthy() {
					out = append(out, it)
				}
				return true
			})
			return value.NewArray(out...)
		},
		"forEach": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			e.each(env, recv, arg(args, 0), func(int, value.Value, value.Value) bool { return true })
			return value.Null()
		},
		"find": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			found := value.Null()
			e.each(env, recv, arg(args, 0), func(_ int, it, r value.Value) bool {
				if r.Truthy() {
					found = it
					return false
				}
				return true
			})
			return found
		},
		"findIndex": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			found := -1
			e.each(env, recv, arg(args, 0), func(i int, _, r value.Value) bool {
				if r.Truthy() {
					found = i
					return false
				}
				return true
			})
			return value.Int(found)
		},
		"some": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			hit := false
			e.each(env, recv, arg(args, 0), func(_ int, _, r value.Value) bool {
				hit = r.Truthy()
				return !hit
			})
			return value.Bool(hit)
		},
		"every": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			all := true
			e.each(env, recv, arg(args, 0), func(_ int, _, r value.Value) bool {
				all = r.Truthy()
				return all
			})
			return value.Bool(all)
		},
		"reduce": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			fn := arg(args, 0)
			items := recv.Array().Items
			start := 0
			var acc value.Value
			if len(args) > 1 {
				acc = args[1]
			} else {
				if len(items) == 0 {
					env.Fail(fmt.Errorf("%w: reduce of empty array with no initial value", ErrNotFunction))
					return value.Null()
				}
				acc, start = items[0], 1
			}
			for i := start; i < len(recv.Array().Items); i++ {
				if env.context().Err() != nil {
					env.Fail(env.context().Err())
					break
				}
				acc = e.Call(env, fn, []value.Value{acc, recv.Array().Items[i], value.Int(i), recv})
			}
			return acc
		},
		"includes": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			target := arg(args, 0)
			for _, it := range recv.Array().Items {
				if sameValueZero(it, target) {
					return value.Bool(true)
				}
			}
			return value.Bool(false)
		},
		"indexOf": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			items := recv.Array().Items
			for i := relIndex(args, 1, len(items), 0); i < len(items); i++ {
				if value.StrictEqual(items[i], arg(args, 0)) {
					return value.Int(i)
				}
			}
			return value.Int(-1)
		},
		"lastIndexOf": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			items := recv.Array().Items
			for i := len(items) - 1; i >= 0; i-- {
				if value.StrictEqual(items[i], arg(args, 0)) {
					return value.Int(i)
				}
			}
			return value.Int(-1)
		},
		"slice": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			items := recv.Array().Items
			start := relIndex(args, 0, len(items), 0)
			end := relIndex(args, 1, len(items), len(items))
			if start >= end {
				return value.NewArray()
			}
			return value.NewArray(append([]value.Value(nil), items[start:end]...)...)
		},
		"splice": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			arr := recv.Array()
			start := relIndex(args, 0, arr.Len(), 0)
			count := arr.Len() - start
			if len(args) > 1 {
				count = max(0, min(count, int(numArg(args, 1, 0))))
			}
			removed := append([]value.Value(nil), arr.Items[start:start+count]...)
			var insert []value.Value
			if len(args) > 2 {
				insert = args[2:]
			}
			items := append([]value.Value(nil), arr.Items[:start]...)
			items = append(items, insert...)
			arr.Items = append(items, arr.Items[start+count:]...)
			return value.NewArray(removed...)
		},
		"concat": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			out := append([]value.Value(nil), recv.Array().Items...)
			for _, a := range args {
				if a.Kind() == value.KindArray {
					out = append(out, a.Array().Items...)
				} else {
					out = append(out, a)
				}
			}
			return value.NewArray(out...)
		},
		"reverse": func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
			items := recv.Array().Items
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
			return recv
		},
		"sort": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			items := recv.Array().Items
			cmp := arg(args, 0)
			sort.SliceStable(items, func(i, j int) bool {
				a, b := items[i], items[j]
				if a.IsNull() || b.IsNull() {
					return !a.IsNull() && b.IsNull()
				}
				if cmp.Kind() == value.KindFunction {
					return e.Call(env, cmp, []value.Value{a, b}).ToNumber() < 0
				}
				return a.String() < b.String()
			})
			return recv
		},
		"flat": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			return value.NewArray(flatten(recv.Array().Items, int(numArg(args, 0, 1)))...)
		},
		"flatMap": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			var out []value.Value
			e.each(env, recv, arg(args, 0), func(_ int, _, r value.Value) bool {
				out = append(out, r)
				return true
			})
			return value.NewArray(flatten(out, 1)...)
		},
		"at": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			i := int(numArg(args, 0, 0))
			if i < 0 {
				i += recv.Array().Len()
			}
			if i < 0 {
				return value.Null()
			}
			return recv.Array().At(i)
		},
		"fill": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			items := recv.Array().Items
			start := relIndex(args, 1, len(items), 0)
			end := relIndex(args, 2, len(items), len(items))
			for i := start; i < end; i++ {
				items[i] = arg(args, 0)
			}
			return recv
		},
		"keys": func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
			out := make([]value.Value, recv.Array().Len())
			for i := range out {
				out[i] = value.Int(i)
			}
			return value.NewArray(out...)
		},
	}

	numberMethods = map[string]method{
		"toFixed": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			n := recv.Num()
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return value.String(value.FormatNumber(n))
			}
			digits := max(0, min(100, int(numArg(args, 0, 0))))
			scaled := math.Abs(n) * math.Pow(10, float64(digits))
			r := math.Floor(scaled+0.5) / math.Pow(10, float64(digits))
			s := strconv.FormatFloat(r, 'f', digits, 64)
			if n < 0 && r != 0 {
				s = "-" + s
			}
			return value.String(s)
		},
		"toPrecision": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			if len(args) == 0 || args[0].IsNull() {
				return value.String(recv.String())
			}
			p := max(1, min(100, int(args[0].ToNumber())))
			return value.String(strconv.FormatFloat(recv.Num(), 'g', p, 64))
		},
		"toString": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			radix := int(numArg(args, 0, 10))
			n := recv.Num()
			if radix == 10 || radix < 2 || radix > 36 || n != math.Trunc(n) || math.IsInf(n, 0) {
				return value.String(recv.String())
			}
			return value.String(strconv.FormatInt(int64(n), radix))
		},
		"toLocaleString": func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
			return value.String(groupThousands(recv.Num()))
		},
		"valueOf": func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
			return recv
		},
	}

	objectMethods = map[string]method{
		"hasOwnProperty": func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
			if recv.Kind() != value.KindObject {
				return value.Bool(false)
			}
			_, ok := recv.Object().Get(strArg(args, 0, ""))
			return value.Bool(ok)
		},
		"toString": func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
			return value.String(recv.String())
		},
		"valueOf": func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
			return recv
		},
	}

	dateMethods = map[string]method{
		"getFullYear":     dateGetter(func(t time.Time) int { return t.Year() }),
		"getMonth":        dateGetter(func(t time.Time) int { return int(t.Month()) - 1 }),
		"getDate":         dateGetter(func(t time.Time) int { return t.Day() }),
		"getDay":          dateGetter(func(t time.Time) int { return int(t.Weekday()) }),
		"getHours":        dateGetter(func(t time.Time) int { return t.Hour() }),
		"getMinutes":      dateGetter(func(t time.Time) int { return t.Minute() }),
		"getSeconds":      dateGetter(func(t time.Time) int { return t.Second() }),
		"getMilliseconds": dateGetter(func(t time.Time) int { return t.Nanosecond() / int(time.Millisecond) }),
		"getTimezoneOffset": dateGetter(func(t time.Time) int {
			_, off := t.Zone()
			return -off / 60
		}),
		"getTime": dateGetter(func(t time.Time) int { return int(t.UnixMilli()) }),
		"valueOf": dateGetter(func(t time.Time) int { return int(t.UnixMilli()) }),
		"toISOString": dateFormat(func(t time.Time) string {
			return t.UTC().Format("2006-01-02T15:04:05.000Z")
		}),
		"toJSON": dateFormat(func(t time.Time) string {
			return t.UTC().Format("2006-01-02T15:04:05.000Z")
		}),
		"toDateString":       dateFormat(func(t time.Time) string { return t.Format("Mon Jan 02 2006") }),
		"toLocaleDateString": dateFormat(func(t time.Time) string { return t.Format("1/2/2006") }),
		"toLocaleTimeString": dateFormat(func(t time.Time) string { return t.Format("3:04:05 PM") }),
		"toString": func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
			return value.String(recv.String())
		},
		"setFullYear": dateSetter(func(t time.Time, n int) time.Time {
			return time.Date(n, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
		}),
		"setMonth": dateSetter(func(t time.Time, n int) time.Time {
			return time.Date(t.Year(), time.Month(n+1), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
		}),
		"setDate": dateSetter(func(t time.Time, n int) time.Time {
			return time.Date(t.Year(), t.Month(), n, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
		}),
		"setHours": dateSetter(func(t time.Time, n int) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), n, t.Minute(), t.Second(), t.Nanosecond(), t.Location())
		}),
		"setMinutes": dateSetter(func(t time.Time, n int) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), n, t.Second(), t.Nanosecond(), t.Location())
		}),
		"setSeconds": dateSetter(func(t time.Time, n int) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), n, t.Nanosecond(), t.Location())
		}),
		"setTime": dateSetter(func(_ time.Time, n int) time.Time { return time.UnixMilli(int64(n)) }),
	}

	functionMethods = map[string]method{
		"call": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			if len(args) > 0 {
				args = args[1:]
			}
			return e.Call(env, recv, args)
		},
		"apply": func(e *Evaluator, env *Env, recv value.Value, args []value.Value) value.Value {
			var list []value.Value
			if a := arg(args, 1); a.Kind() == value.KindArray {
				list = a.Array().Items
			}
			return e.Call(env, recv, list)
		},
		"toString": func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
			return value.String(recv.String())
		},
	}
}

func strFn(f func(string) string) method {
	return func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
		return value.String(f(recv.Str()))
	}
}

func dateGetter(f func(time.Time) int) method {
	return func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
		return value.Int(f(recv.Object().Time()))
	}
}

func dateFormat(f func(time.Time) string) method {
	return func(_ *Evaluator, _ *Env, recv value.Value, _ []value.Value) value.Value {
		return value.String(f(recv.Object().Time()))
	}
}

func dateSetter(f func(time.Time, int) time.Time) method {
	return func(_ *Evaluator, _ *Env, recv value.Value, args []value.Value) value.Value {
		t := f(recv.Object().Time(), int(numArg(args, 0, 0)))
		recv.Object().SetTime(t)
		return value.Number(float64(t.UnixMilli()))
	}
}

// each calls fn(item, index, array) for every element and hands the result
// to visit until visit returns false. Cancellation stops the loop.
func (e *Evaluator) each(env *Env, recv, fn value.Value, visit func(i int, item, result value.Value) bool) {
	if fn.Kind() != value.KindFunction {
		env.Fail(fmt.Errorf("%w: %s", ErrNotFunction, fn.TypeOf()))
		return
	}
	items := recv.Array().Items
	for i := 0; i < len(items); i++ {
		if err := env.context().Err(); err != nil {
			env.Fail(err)
			return
		}
		r := e.Call(env, fn, []value.Value{items[i], value.Int(i), recv})
		if !visit(i, items[i], r) {
			return
		}
	}
}

func flatten(items []value.Value, depth int) []value.Value {
	var out []value.Value
	for _, it := range items {
		if it.Kind() == value.KindArray && depth > 0 {
			out = append(out, flatten(it.Array().Items, depth-1)...)
			continue
		}
		out = append(out, it)
	}
	return out
}

func pad(s string, width int, fill string, start bool) string {
	n := utf8.RuneCountInString(s)
	if width <= n || fill == "" {
		return s
	}
	need := width - n
	filler := []rune(strings.Repeat(fill, need/utf8.RuneCountInString(fill)+1))[:need]
	if start {
		return string(filler) + s
	}
	return s + string(filler)
}

// replace substitutes the first (limit 1) or every (limit -1) occurrence of
// the pattern. A function replacement is called with the match, its offset
// and the whole string.
func (e *Evaluator) replace(env *Env, s string, args []value.Value, limit int) value.Value {
	pattern := strArg(args, 0, "undefined")
	repl := arg(args, 1)
	var sb strings.Builder
	rest, offset := s, 0
	for n := 0; limit < 0 || n < limit; n++ {
		i := strings.Index(rest, pattern)
		if i < 0 {
			break
		}
		sb.WriteString(rest[:i])
		if repl.Kind() == value.KindFunction {
			r := e.Call(env, repl, []value.Value{value.String(pattern), value.Int(offset + i), value.String(s)})
			sb.WriteString(r.String())
		} else {
			sb.WriteString(strings.ReplaceAll(repl.String(), "$&", pattern))
		}
		step := i + len(pattern)
		if pattern == "" {
			if i >= len(rest) {
				rest = ""
				break
			}
			_, size := utf8.DecodeRuneInString(rest)
			sb.WriteString(rest[:size])
			step = size
		}
		rest, offset = rest[step:], offset+step
	}
	sb.WriteString(rest)
	return value.String(sb.String())
}

// groupThousands formats n with comma separators and at most three
// fraction digits.
func groupThousands(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return value.FormatNumber(n)
	}
	return humanize.CommafWithDigits(n, 3)
}
