package value

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
)

// Shape identifies the structural identity of a variable: its kind plus a
// generation that changes whenever the variable is bound to a different
// array, object or function, or changes kind. Reassigning a scalar of the
// same kind keeps the shape.
type Shape struct {
	Kind Kind
	Gen  uint64
}

var (
	storeIDs  atomic.Uint64
	shapeGens atomic.Uint64
)

// Store is the variable table of one render. It is safe for concurrent use
// so a host may edit variables while the executor is paused.
type Store struct {
	mu     sync.RWMutex
	id     uint64
	vars   map[string]Value
	shapes map[string]Shape
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		id:     storeIDs.Add(1),
		vars:   make(map[string]Value),
		shapes: make(map[string]Shape),
	}
}

// ID distinguishes stores created in the same process.
func (s *Store) ID() uint64 { return s.id }

// Get returns the value bound to name.
func (s *Store) Get(name string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Lookup returns the value bound to name, or Null.
func (s *Store) Lookup(name string) Value {
	v, _ := s.Get(name)
	return v
}

// Has reports whether name is bound.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[name]
	return ok
}

// Set binds name to v.
func (s *Store) Set(name string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, existed := s.vars[name]
	s.vars[name] = v
	if !existed || !sameShape(old, v) {
		s.shapes[name] = Shape{Kind: v.kind, Gen: shapeGens.Add(1)}
	}
}

func sameShape(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindArray:
		return a.arr == b.arr
	case KindObject:
		return a.obj == b.obj
	case KindFunction:
		return a.fn == b.fn
	}
	return true
}

// Delete unbinds name.
func (s *Store) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
	delete(s.shapes, name)
}

// Shape returns the current shape of name.
func (s *Store) Shape(name string) (Shape, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shapes[name]
	return sh, ok
}

// Names returns the bound names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of bound names.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// Clear removes every binding.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars = make(map[string]Value)
	s.shapes = make(map[string]Shape)
}

// Snapshot returns a deep copy of every non-function binding. Later
// mutations of shared arrays and objects do not show through.
func (s *Store) Snapshot() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Value, len(s.vars))
	seen := make(map[any]Value)
	for k, v := range s.vars {
		if v.kind == KindFunction {
			continue
		}
		out[k] = clone(v, seen)
	}
	return out
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	return clone(v, make(map[any]Value))
}

func clone(v Value, seen map[any]Value) Value {
	switch v.kind {
	case KindArray:
		if c, ok := seen[v.arr]; ok {
			return c
		}
		arr := &Array{Items: make([]Value, len(v.arr.Items))}
		c := ArrayOf(arr)
		seen[v.arr] = c
		for i, it := range v.arr.Items {
			arr.Items[i] = clone(it, seen)
		}
		return c
	case KindObject:
		if c, ok := seen[v.obj]; ok {
			return c
		}
		obj := NewObject()
		obj.date = v.obj.date
		c := ObjectOf(obj)
		seen[v.obj] = c
		for _, k := range v.obj.keys {
			obj.Set(k, clone(v.obj.vals[k], seen))
		}
		return c
	}
	return v
}

// EncodeMsgpack encodes v as plain data.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(ToGo(v))
}

// DecodeMsgpack decodes plain data into v.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	x, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	*v = FromGo(x)
	return nil
}
