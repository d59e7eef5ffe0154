package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"
)

// ErrInvalidJSON is returned by ParseJSON for malformed input.
var ErrInvalidJSON = errors.New("invalid JSON")

// ToJSON serializes v the way JSON.stringify does. Functions become null, as
// do NaN and infinities; dates become RFC 3339 strings. indent of "" yields
// compact output.
func ToJSON(v Value, indent string) string {
	var sb strings.Builder
	writeJSON(&sb, v, indent, "", map[any]bool{})
	return sb.String()
}

func writeJSON(sb *strings.Builder, v Value, indent, prefix string, seen map[any]bool) {
	nl := func(p string) {
		if indent != "" {
			sb.WriteByte('\n')
			sb.WriteString(p)
		}
	}
	switch v.kind {
	case KindNull, KindFunction:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(v.String())
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			sb.WriteString("null")
			return
		}
		sb.WriteString(FormatNumber(v.n))
	case KindString:
		b, _ := json.Marshal(v.s)
		sb.Write(b)
	case KindArray:
		if seen[v.arr] || len(v.arr.Items) == 0 {
			sb.WriteString("[]")
			return
		}
		seen[v.arr] = true
		defer delete(seen, v.arr)
		sb.WriteByte('[')
		inner := prefix + indent
		for i, it := range v.arr.Items {
			if i > 0 {
				sb.WriteByte(',')
			}
			nl(inner)
			writeJSON(sb, it, indent, inner, seen)
		}
		nl(prefix)
		sb.WriteByte(']')
	case KindObject:
		if v.obj.IsDate() {
			b, _ := json.Marshal(v.obj.Time().UTC().Format("2006-01-02T15:04:05.000Z"))
			sb.Write(b)
			return
		}
		if seen[v.obj] || len(v.obj.keys) == 0 {
			sb.WriteString("{}")
			return
		}
		seen[v.obj] = true
		defer delete(seen, v.obj)
		sb.WriteByte('{')
		inner := prefix + indent
		first := true
		for _, k := range v.obj.keys {
			val := v.obj.vals[k]
			if val.kind == KindFunction {
				continue
			}
			if !first {
				sb.WriteByte(',')
			}
			first = false
			nl(inner)
			b, _ := json.Marshal(k)
			sb.Write(b)
			sb.WriteByte(':')
			if indent != "" {
				sb.WriteByte(' ')
			}
			writeJSON(sb, val, indent, inner, seen)
		}
		nl(prefix)
		sb.WriteByte('}')
	}
}

// ParseJSON decodes JSON text into a Value, keeping object key order.
func ParseJSON(text string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return Null(), fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Null(), fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			arr := &Array{}
			for dec.More() {
				item, err := decodeJSON(dec)
				if err != nil {
					return Null(), err
				}
				arr.Items = append(arr.Items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return ArrayOf(arr), nil
		case '{':
			obj := NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Null(), err
				}
				key, ok := kt.(string)
				if !ok {
					return Null(), fmt.Errorf("object key %v is not a string", kt)
				}
				val, err := decodeJSON(dec)
				if err != nil {
					return Null(), err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return ObjectOf(obj), nil
		}
		return Null(), fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null(), err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	}
	return Null(), fmt.Errorf("unexpected token %v", tok)
}

// FromGo converts a decoded Go value (from YAML, JSON or a host module) into
// a Value. Map keys are sorted so the result is deterministic.
func FromGo(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Number(float64(t))
	case int8:
		return Number(float64(t))
	case int16:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint8:
		return Number(float64(t))
	case uint16:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case json.Number:
		f, _ := t.Float64()
		return Number(f)
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case time.Time:
		return ObjectOf(NewDate(t))
	case []string:
		arr := &Array{Items: make([]Value, len(t))}
		for i, s := range t {
			arr.Items[i] = String(s)
		}
		return ArrayOf(arr)
	case []any:
		arr := &Array{Items: make([]Value, len(t))}
		for i, it := range t {
			arr.Items[i] = FromGo(it)
		}
		return ArrayOf(arr)
	case map[string]any:
		obj := NewObject()
		for _, k := range sortedKeys(t) {
			obj.Set(k, FromGo(t[k]))
		}
		return ObjectOf(obj)
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, v := range t {
			m[fmt.Sprint(k)] = v
		}
		return FromGo(m)
	case map[string]Value:
		return ObjectOf(ObjectFromMap(t))
	case fmt.Stringer:
		return String(t.String())
	}
	return String(fmt.Sprint(x))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToGo converts v into plain Go data: nil, bool, float64, string, []any,
// map[string]any and time.Time.
func ToGo(v Value) any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr.Items))
		for i, it := range v.arr.Items {
			out[i] = ToGo(it)
		}
		return out
	case KindObject:
		if v.obj.IsDate() {
			return v.obj.Time()
		}
		out := make(map[string]any, len(v.obj.keys))
		for _, k := range v.obj.keys {
			out[k] = ToGo(v.obj.vals[k])
		}
		return out
	}
	return nil
}

// MarshalJSON lets values appear directly in JSON documents such as exported
// traces.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(ToJSON(v, "")), nil
}

// UnmarshalJSON decodes JSON into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(string(bytes.TrimSpace(data)))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
