// Package frontmatter reads the YAML header of a template document and
// exposes it to scripts as <namespace>.frontmatter.
package frontmatter

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-template-script/pkg/value"
)

const delimiter = "---"

// ErrNotMapping is returned when the header is valid YAML but not a mapping.
var ErrNotMapping = errors.New("frontmatter is not a mapping")

// Frontmatter is a parsed YAML header. It implements eval.FrontmatterAccessor.
type Frontmatter struct {
	raw    string
	fields *value.Object
}

// New wraps already decoded data.
func New(data map[string]any) *Frontmatter {
	return &Frontmatter{fields: value.FromGo(normalize(data)).Object()}
}

// Empty returns a header without fields.
func Empty() *Frontmatter {
	return &Frontmatter{fields: value.NewObject()}
}

// Split separates a leading "---" delimited header from the body. ok is false
// when content has no complete header.
func Split(content string) (header, body string, ok bool) {
	first, rest, found := strings.Cut(content, "\n")
	if !found || strings.TrimRight(first, " \t\r") != delimiter {
		return "", content, false
	}
	offset := 0
	for offset <= len(rest) {
		end := strings.IndexByte(rest[offset:], '\n')
		line := rest[offset:]
		next := len(rest) + 1
		if end >= 0 {
			line = rest[offset : offset+end]
			next = offset + end + 1
		}
		if strings.TrimRight(line, " \t\r") == delimiter {
			if next > len(rest) {
				return rest[:offset], "", true
			}
			return rest[:offset], rest[next:], true
		}
		offset = next
	}
	return "", content, false
}

// Parse reads the header of content. A document without a header yields an
// empty Frontmatter and a nil error.
func Parse(content string) (*Frontmatter, error) {
	header, _, ok := Split(content)
	if !ok {
		return Empty(), nil
	}
	var data any
	if err := yaml.Unmarshal([]byte(header), &data); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	if data == nil {
		return &Frontmatter{raw: header, fields: value.NewObject()}, nil
	}
	m, isMap := normalize(data).(map[string]any)
	if !isMap {
		return nil, ErrNotMapping
	}
	return &Frontmatter{raw: header, fields: value.FromGo(m).Object()}, nil
}

// Load reads the header of the file at path.
func Load(path string) (*Frontmatter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(string(data))
}

// Raw returns the header text without delimiters.
func (f *Frontmatter) Raw() string { return f.raw }

// Len returns the number of top-level fields.
func (f *Frontmatter) Len() int { return len(f.fields.Keys()) }

// GetValue walks path through nested mappings and sequences. Sequence
// elements are addressed by decimal index.
func (f *Frontmatter) GetValue(path []string) (value.Value, bool) {
	if len(path) == 0 {
		return value.ObjectOf(f.fields), true
	}
	cur := value.ObjectOf(f.fields)
	for _, key := range path {
		switch cur.Kind() {
		case value.KindObject:
			v, ok := cur.Object().Get(key)
			if !ok {
				return value.Null(), false
			}
			cur = v
		case value.KindArray:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= cur.Array().Len() {
				return value.Null(), false
			}
			cur = cur.Array().At(i)
		default:
			return value.Null(), false
		}
	}
	return cur, true
}

// GetAll returns the top-level fields.
func (f *Frontmatter) GetAll() map[string]value.Value {
	out := make(map[string]value.Value, f.Len())
	for _, k := range f.fields.Keys() {
		v, _ := f.fields.Get(k)
		out[k] = v
	}
	return out
}

// normalize turns the map[any]any nodes yaml produces for non-string keys
// into map[string]any.
func normalize(x any) any {
	switch t := x.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = normalize(v)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[fmt.Sprint(k)] = normalize(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = normalize(v)
		}
		return out
	}
	return x
}
