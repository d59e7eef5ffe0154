package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Format is a trace export encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// ErrUnknownFormat is returned for an unsupported export format.
var ErrUnknownFormat = errors.New("unknown trace format")

// ParseFormat parses a format name or file extension.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "json":
		return FormatJSON, nil
	case "msgpack", "mp", "mpk":
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

type document struct {
	Steps []Step `json:"steps" msgpack:"steps"`
}

// Export writes every step to w.
func (t *Trace) Export(w io.Writer, f Format) error {
	doc := document{Steps: t.Steps()}
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode trace: %w", err)
		}
		return nil
	case FormatMsgpack:
		if err := msgpack.NewEncoder(w).Encode(doc); err != nil {
			return fmt.Errorf("encode trace: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// ExportFile writes the trace to path, choosing the format from the file
// extension.
func (t *Trace) ExportFile(path string) error {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trace directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	if err := t.Export(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Import reads a trace written by Export. Imported steps carry node ids but
// no node pointers.
func Import(r io.Reader, f Format) (*Trace, error) {
	var doc document
	switch f {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode trace: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode trace: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	t := New()
	for i := range doc.Steps {
		s := doc.Steps[i]
		t.steps = append(t.steps, &s)
		t.byID[s.ID] = &s
	}
	return t, nil
}
