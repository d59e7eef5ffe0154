// Package value implements the runtime values of the template script
// language and the variable store they live in.
package value

import (
	"sort"
	"time"

	"github.com/l3aro/go-template-script/pkg/ast"
)

// Kind is the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Value is a script value. The zero Value is Null. Arrays and objects are
// held by pointer and shared between every Value that refers to them.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  *Array
	obj  *Object
	fn   *Function
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int wraps an integer as a Number.
func Int(n int) Value { return Value{kind: KindNumber, n: float64(n)} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// ArrayOf wraps an existing array.
func ArrayOf(a *Array) Value {
	if a == nil {
		return Null()
	}
	return Value{kind: KindArray, arr: a}
}

// NewArray returns a Value holding a fresh array of items.
func NewArray(items ...Value) Value {
	return ArrayOf(&Array{Items: items})
}

// ObjectOf wraps an existing object.
func ObjectOf(o *Object) Value {
	if o == nil {
		return Null()
	}
	return Value{kind: KindObject, obj: o}
}

// FunctionOf wraps a callable.
func FunctionOf(f *Function) Value {
	if f == nil {
		return Null()
	}
	return Value{kind: KindFunction, fn: f}
}

// Kind returns the dynamic type.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// RawBool returns the boolean payload; false for other kinds.
func (v Value) RawBool() bool { return v.kind == KindBool && v.b }

// Num returns the number payload; 0 for other kinds.
func (v Value) Num() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.n
}

// Str returns the string payload; "" for other kinds.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// Array returns the array payload or nil.
func (v Value) Array() *Array { return v.arr }

// Object returns the object payload or nil.
func (v Value) Object() *Object { return v.obj }

// Func returns the function payload or nil.
func (v Value) Func() *Function { return v.fn }

// Array is a shared-mutable list of values.
type Array struct {
	Items []Value
}

// Len returns the number of items.
func (a *Array) Len() int { return len(a.Items) }

// At returns the item at i, or Null when i is out of range.
func (a *Array) At(i int) Value {
	if i < 0 || i >= len(a.Items) {
		return Null()
	}
	return a.Items[i]
}

// Set stores v at i, growing the array with nulls when needed.
func (a *Array) Set(i int, v Value) {
	if i < 0 {
		return
	}
	for len(a.Items) <= i {
		a.Items = append(a.Items, Null())
	}
	a.Items[i] = v
}

// Push appends items.
func (a *Array) Push(items ...Value) { a.Items = append(a.Items, items...) }

// Object is a shared-mutable map that remembers insertion order. A Date is an
// Object with a timestamp attached.
type Object struct {
	keys []string
	vals map[string]Value
	date *time.Time
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// NewDate returns a date object for t.
func NewDate(t time.Time) *Object {
	o := NewObject()
	o.date = &t
	return o
}

// IsDate reports whether the object carries a timestamp.
func (o *Object) IsDate() bool { return o.date != nil }

// Time returns the timestamp of a date object.
func (o *Object) Time() time.Time {
	if o.date == nil {
		return time.Time{}
	}
	return *o.date
}

// SetTime replaces the timestamp of a date object.
func (o *Object) SetTime(t time.Time) { o.date = &t }

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Set stores v under key, keeping the original position of existing keys.
func (o *Object) Set(key string, v Value) {
	if o.vals == nil {
		o.vals = make(map[string]Value)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Delete removes key.
func (o *Object) Delete(key string) {
	if _, ok := o.vals[key]; !ok {
		return
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of keys.
func (o *Object) Len() int { return len(o.keys) }

// ObjectFromMap builds an object from a Go map with keys in sorted order.
func ObjectFromMap(m map[string]Value) *Object {
	o := NewObject()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.Set(k, m[k])
	}
	return o
}

// Function is a callable value. Script functions carry their parameter list
// and either a statement body or a single expression body; built-ins carry
// Native.
type Function struct {
	Name     string
	Params   []string
	Defaults []string
	Body     []*ast.StatementNode
	Expr     string
	Source   string
	Native   func(args []Value) Value
}

// IsNative reports whether the function is implemented in Go.
func (f *Function) IsNative() bool { return f.Native != nil }
