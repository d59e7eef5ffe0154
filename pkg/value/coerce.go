package value

import (
	"math"
	"strconv"
	"strings"
)

// Truthy reports whether v counts as true in a condition: null, false, 0,
// NaN and "" are falsy, everything else (empty arrays and objects included)
// is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0 && !math.IsNaN(v.n)
	case KindString:
		return v.s != ""
	default:
		return true
	}
}

// ToNumber converts v the way loose arithmetic does.
func (v Value) ToNumber() float64 {
	switch v.kind {
	case KindNull:
		return 0
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindNumber:
		return v.n
	case KindString:
		return ParseNumber(v.s)
	case KindArray:
		switch len(v.arr.Items) {
		case 0:
			return 0
		case 1:
			return v.arr.Items[0].ToNumber()
		}
		return math.NaN()
	case KindObject:
		if v.obj.IsDate() {
			return float64(v.obj.Time().UnixMilli())
		}
	}
	return math.NaN()
}

// ParseNumber parses a numeric string. Blank strings are 0, anything that is
// not a number is NaN.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		if n, err := strconv.ParseInt(s[2:], 16, 64); err == nil {
			return float64(n)
		}
		return math.NaN()
	}
	if strings.ContainsAny(s, "_xXpP") || strings.EqualFold(s, "nan") || strings.EqualFold(s, "inf") {
		return math.NaN()
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

// FormatNumber renders a number the way script string conversion does.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == 0:
		return "0"
	}
	abs := math.Abs(n)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	s := strconv.FormatFloat(n, 'g', -1, 64)
	if i := strings.IndexByte(s, 'e'); i >= 0 {
		mant, exp := s[:i], s[i+1:]
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		s = mant + "e" + string(sign) + exp
	}
	return s
}

// String converts v to its display string.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.n)
	case KindString:
		return v.s
	case KindArray:
		parts := make([]string, len(v.arr.Items))
		for i, it := range v.arr.Items {
			if !it.IsNull() {
				parts[i] = it.String()
			}
		}
		return strings.Join(parts, ",")
	case KindObject:
		if v.obj.IsDate() {
			return v.obj.Time().Format("Mon Jan 02 2006 15:04:05 GMT-0700")
		}
		return "[object Object]"
	case KindFunction:
		if v.fn.Source != "" {
			return v.fn.Source
		}
		return "function " + v.fn.Name + "() { [native code] }"
	}
	return ""
}

// Display renders v for template output: null becomes the empty string.
func (v Value) Display() string {
	if v.kind == KindNull {
		return ""
	}
	return v.String()
}

// TypeOf returns the typeof name of v.
func (v Value) TypeOf() string {
	switch v.kind {
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	default:
		return "object"
	}
}

// StrictEqual implements ===: same kind and same value, containers by
// identity.
func StrictEqual(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		return a.arr == b.arr
	case KindObject:
		return a.obj == b.obj
	case KindFunction:
		return a.fn == b.fn
	}
	return false
}

// LooseEqual implements ==: numbers, numeric strings and booleans compare by
// numeric value.
func LooseEqual(a, b Value) bool {
	if a.kind == b.kind {
		return StrictEqual(a, b)
	}
	if a.kind == KindNull || b.kind == KindNull {
		return false
	}
	if isScalar(a) && isScalar(b) {
		return a.ToNumber() == b.ToNumber()
	}
	if isScalar(a) || isScalar(b) {
		return a.String() == b.String()
	}
	return false
}

func isScalar(v Value) bool {
	return v.kind == KindBool || v.kind == KindNumber || v.kind == KindString
}

// Compare orders a and b for relational operators. Two strings compare
// lexically, anything else numerically. ok is false when either side is NaN.
func Compare(a, b Value) (cmp int, ok bool) {
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.s, b.s), true
	}
	x, y := a.ToNumber(), b.ToNumber()
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}

// Add implements +: numeric addition when neither side is a string or a
// container, string concatenation otherwise.
func Add(a, b Value) Value {
	if concatenates(a) || concatenates(b) {
		return String(a.String() + b.String())
	}
	return Number(a.ToNumber() + b.ToNumber())
}

func concatenates(v Value) bool {
	switch v.kind {
	case KindString, KindArray, KindObject, KindFunction:
		return true
	}
	return false
}

// DeepEqual compares values structurally.
func DeepEqual(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNumber:
		if math.IsNaN(a.n) && math.IsNaN(b.n) {
			return true
		}
		return a.n == b.n
	case KindArray:
		if a.arr == b.arr {
			return true
		}
		if len(a.arr.Items) != len(b.arr.Items) {
			return false
		}
		for i := range a.arr.Items {
			if !DeepEqual(a.arr.Items[i], b.arr.Items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if a.obj == b.obj {
			return true
		}
		if a.obj.IsDate() != b.obj.IsDate() || (a.obj.IsDate() && !a.obj.Time().Equal(b.obj.Time())) {
			return false
		}
		if len(a.obj.keys) != len(b.obj.keys) {
			return false
		}
		for i, k := range a.obj.keys {
			if b.obj.keys[i] != k || !DeepEqual(a.obj.vals[k], b.obj.vals[k]) {
				return false
			}
		}
		return true
	case KindFunction:
		return a.fn == b.fn
	}
	return StrictEqual(a, b)
}
