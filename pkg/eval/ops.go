package eval

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/l3aro/go-template-script/pkg/value"
)

var (
	// ErrNullAccess is reported when a property of null is read.
	ErrNullAccess = errors.New("cannot read properties of null")

	// ErrNotFunction is reported when a non-callable value is called.
	ErrNotFunction = errors.New("value is not a function")

	// ErrNotAssignable is reported when a member of a primitive is assigned.
	ErrNotAssignable = errors.New("cannot assign to member")

	// ErrNoInvoker is reported when a statement-bodied function is called
	// without an executor attached to the environment.
	ErrNoInvoker = errors.New("no executor for function body")

	// ErrCallDepth is reported when nested calls exceed the depth ceiling.
	ErrCallDepth = errors.New("maximum call depth exceeded")

	// ErrModule wraps failed module calls.
	ErrModule = errors.New("module call failed")

	// ErrPanic wraps a recovered panic inside evaluation.
	ErrPanic = errors.New("evaluation panicked")

	// ErrConstructor is reported by new with an unknown constructor.
	ErrConstructor = errors.New("not a constructor")
)

// unary applies a prefix operator.
func unary(op string, v value.Value) value.Value {
	switch op {
	case "-":
		return value.Number(-v.ToNumber())
	case "+":
		return value.Number(v.ToNumber())
	case "!":
		return value.Bool(!v.Truthy())
	}
	return value.Null()
}

// binary applies an arithmetic or comparison operator.
func binary(op string, a, b value.Value) value.Value {
	switch op {
	case "+":
		return value.Add(a, b)
	case "-":
		return value.Number(a.ToNumber() - b.ToNumber())
	case "*":
		return value.Number(a.ToNumber() * b.ToNumber())
	case "/":
		return value.Number(a.ToNumber() / b.ToNumber())
	case "%":
		return value.Number(math.Mod(a.ToNumber(), b.ToNumber()))
	case "**":
		return value.Number(math.Pow(a.ToNumber(), b.ToNumber()))
	case "==":
		return value.Bool(value.LooseEqual(a, b))
	case "!=":
		return value.Bool(!value.LooseEqual(a, b))
	case "===":
		return value.Bool(value.StrictEqual(a, b))
	case "!==":
		return value.Bool(!value.StrictEqual(a, b))
	case "&", "|", "^", "<<", ">>", ">>>":
		x, y := toInt32(a), toInt32(b)
		switch op {
		case "&":
			return value.Int(int(x & y))
		case "|":
			return value.Int(int(x | y))
		case "^":
			return value.Int(int(x ^ y))
		case "<<":
			return value.Int(int(x << (uint32(y) & 31)))
		case ">>":
			return value.Int(int(x >> (uint32(y) & 31)))
		default:
			return value.Number(float64(uint32(x) >> (uint32(y) & 31)))
		}
	case "<", "<=", ">", ">=":
		c, ok := value.Compare(a, b)
		if !ok {
			return value.Bool(false)
		}
		switch op {
		case "<":
			return value.Bool(c < 0)
		case "<=":
			return value.Bool(c <= 0)
		case ">":
			return value.Bool(c > 0)
		default:
			return value.Bool(c >= 0)
		}
	}
	return value.Null()
}

func toInt32(v value.Value) int32 {
	n := v.ToNumber()
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return int32(uint32(int64(math.Trunc(n))))
}

// Binary applies the binary operator op. Compound assignments in the
// executor use it so they match expression semantics.
func Binary(op string, a, b value.Value) value.Value {
	return binary(op, a, b)
}

// arrayIndex converts key to an array index.
func arrayIndex(key value.Value) (int, bool) {
	var n float64
	switch key.Kind() {
	case value.KindNumber:
		n = key.Num()
	case value.KindString:
		s := key.Str()
		if s == "" {
			return 0, false
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		n = float64(i)
	default:
		return 0, false
	}
	if n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

// Member reads obj[key]. Reading from null fails with ErrNullAccess; missing
// members are null.
func Member(obj, key value.Value) (value.Value, error) {
	switch obj.Kind() {
	case value.KindNull:
		return value.Null(), fmt.Errorf("%w (reading %q)", ErrNullAccess, key.String())
	case value.KindArray:
		arr := obj.Array()
		if i, ok := arrayIndex(key); ok {
			return arr.At(i), nil
		}
		if key.String() == "length" {
			return value.Int(arr.Len()), nil
		}
	case value.KindString:
		s := obj.Str()
		if i, ok := arrayIndex(key); ok {
			runes := []rune(s)
			if i < len(runes) {
				return value.String(string(runes[i])), nil
			}
			return value.Null(), nil
		}
		if key.String() == "length" {
			return value.Int(utf8.RuneCountInString(s)), nil
		}
	case value.KindObject:
		if v, ok := obj.Object().Get(key.String()); ok {
			return v, nil
		}
	case value.KindFunction:
		fn := obj.Func()
		switch key.String() {
		case "name":
			return value.String(fn.Name), nil
		case "length":
			return value.Int(len(fn.Params)), nil
		}
	}
	return value.Null(), nil
}

// SetMember assigns obj[key] = v. Arrays grow as needed and accept a new
// length; objects add or replace the key.
func SetMember(obj, key, v value.Value) error {
	switch obj.Kind() {
	case value.KindArray:
		arr := obj.Array()
		if i, ok := arrayIndex(key); ok {
			arr.Set(i, v)
			return nil
		}
		if key.String() == "length" {
			n := int(v.ToNumber())
			if n < 0 || math.IsNaN(v.ToNumber()) {
				return fmt.Errorf("%w: invalid array length", ErrNotAssignable)
			}
			if n < arr.Len() {
				arr.Items = arr.Items[:n]
			} else if n > arr.Len() {
				arr.Set(n-1, value.Null())
			}
			return nil
		}
		return fmt.Errorf("%w: array key %q", ErrNotAssignable, key.String())
	case value.KindObject:
		obj.Object().Set(key.String(), v)
		return nil
	case value.KindNull:
		return fmt.Errorf("%w (setting %q)", ErrNullAccess, key.String())
	}
	return fmt.Errorf("%w %q of %s", ErrNotAssignable, key.String(), obj.Kind())
}

// sameValueZero is the equality used by includes: strict equality where NaN
// equals itself.
func sameValueZero(a, b value.Value) bool {
	if a.Kind() == value.KindNumber && b.Kind() == value.KindNumber &&
		math.IsNaN(a.Num()) && math.IsNaN(b.Num()) {
		return true
	}
	return value.StrictEqual(a, b)
}
