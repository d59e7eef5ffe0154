package eval

import (
	"strings"

	"github.com/l3aro/go-template-script/pkg/ast"
	"github.com/l3aro/go-template-script/pkg/value"
)

// Bind assigns v to a binding pattern: an identifier, an object pattern such
// as {a, b: c, d = 1, ...rest} or an array pattern such as [x, , y, ...more].
// Defaults apply when the matched value is null.
func (e *Evaluator) Bind(env *Env, pattern string, v value.Value) {
	pattern = strings.TrimSpace(pattern)
	switch {
	case ast.Wrapped(pattern, '{'):
		var used []string
		for _, part := range ast.SplitTop(pattern[1:len(pattern)-1], ',') {
			if part == "" {
				continue
			}
			if strings.HasPrefix(part, "...") {
				rest := value.NewObject()
				if v.Kind() == value.KindObject {
					for _, k := range v.Object().Keys() {
						if !contains(used, k) {
							x, _ := v.Object().Get(k)
							rest.Set(k, x)
						}
					}
				}
				e.Bind(env, part[3:], value.ObjectOf(rest))
				continue
			}
			key, target := part, part
			if colon := ast.IndexTop(part, ":"); colon > 0 {
				key, target = strings.TrimSpace(part[:colon]), strings.TrimSpace(part[colon+1:])
			}
			target, def := splitDefault(target)
			key, _ = splitDefault(key)
			key = strings.Trim(key, `"'`)
			used = append(used, key)
			field, _ := Member(v, value.String(key))
			if field.IsNull() && def != "" {
				field = e.eval(env, def)
			}
			e.Bind(env, target, field)
		}
	case ast.Wrapped(pattern, '['):
		parts := splitKeepHoles(pattern[1 : len(pattern)-1])
		var items []value.Value
		if v.Kind() == value.KindArray {
			items = v.Array().Items
		} else {
			items = spread(v)
		}
		for i, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.HasPrefix(part, "...") {
				var rest []value.Value
				if i < len(items) {
					rest = append(rest, items[i:]...)
				}
				e.Bind(env, part[3:], value.NewArray(rest...))
				break
			}
			target, def := splitDefault(part)
			item := value.Null()
			if i < len(items) {
				item = items[i]
			}
			if item.IsNull() && def != "" {
				item = e.eval(env, def)
			}
			e.Bind(env, target, item)
		}
	default:
		if pattern != "" {
			env.Store.Set(pattern, v)
		}
	}
}

// PatternNames returns the identifiers a binding pattern introduces.
func PatternNames(pattern string) []string {
	pattern = strings.TrimSpace(pattern)
	switch {
	case ast.Wrapped(pattern, '{'):
		var names []string
		for _, part := range ast.SplitTop(pattern[1:len(pattern)-1], ',') {
			part = strings.TrimPrefix(part, "...")
			if colon := ast.IndexTop(part, ":"); colon > 0 {
				part = part[colon+1:]
			}
			target, _ := splitDefault(part)
			names = append(names, PatternNames(target)...)
		}
		return names
	case ast.Wrapped(pattern, '['):
		var names []string
		for _, part := range splitKeepHoles(pattern[1 : len(pattern)-1]) {
			target, _ := splitDefault(strings.TrimPrefix(strings.TrimSpace(part), "..."))
			names = append(names, PatternNames(target)...)
		}
		return names
	case pattern == "":
		return nil
	}
	name, _ := splitDefault(strings.TrimPrefix(pattern, "..."))
	if name == "" {
		return nil
	}
	return []string{name}
}

// splitDefault splits "name = expr" into name and default.
func splitDefault(s string) (string, string) {
	s = strings.TrimSpace(s)
	if eq := ast.IndexTop(s, "="); eq > 0 && !strings.HasPrefix(s[eq:], "==") && !strings.HasPrefix(s[eq:], "=>") {
		return strings.TrimSpace(s[:eq]), strings.TrimSpace(s[eq+1:])
	}
	return s, ""
}

// splitKeepHoles splits at top-level commas keeping empty pieces, so array
// pattern positions line up with array indexes.
func splitKeepHoles(s string) []string {
	var parts []string
	last := 0
	ast.Scan(s, func(i, depth int) bool {
		if depth == 0 && s[i] == ',' {
			parts = append(parts, s[last:i])
			last = i + 1
		}
		return true
	})
	if tail := s[last:]; strings.TrimSpace(tail) != "" {
		parts = append(parts, tail)
	}
	return parts
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
