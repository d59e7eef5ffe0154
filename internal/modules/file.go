package modules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/value"
)

// ErrOutsideRoot is returned when a path escapes the file root.
var ErrOutsideRoot = errors.New("path escapes root")

// File is the document a render is attached to. Paths given to tp.file
// calls are resolved against Root.
type File struct {
	mu      sync.Mutex
	root    string
	path    string
	content string
}

// NewFile attaches the file at path, relative to root. An empty root uses
// the directory of path.
func NewFile(root, path, content string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if root == "" {
		root = filepath.Dir(abs)
	}
	if root, err = filepath.Abs(root); err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	return &File{root: root, path: abs, content: content}, nil
}

// Path returns the current absolute path; move and rename update it.
func (f *File) Path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

// Root returns the directory relative paths are resolved against.
func (f *File) Root() string { return f.root }

// Title returns the file name without its extension.
func (f *File) Title() string {
	base := filepath.Base(f.Path())
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (f *File) relative(p string) string {
	if rel, err := filepath.Rel(f.root, p); err == nil {
		return filepath.ToSlash(rel)
	}
	return p
}

// resolve joins p to the root and rejects results outside it.
func (f *File) resolve(p string) (string, error) {
	full := filepath.Clean(filepath.Join(f.root, filepath.FromSlash(p)))
	if full != f.root && !strings.HasPrefix(full, f.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return full, nil
}

// rename moves the file on disk and keeps its extension.
func (f *File) rename(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if filepath.Ext(target) == "" {
		target += filepath.Ext(f.path)
	}
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("destination %s already exists", f.relative(target))
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Rename(f.path, target); err != nil {
		return fmt.Errorf("failed to move file: %w", err)
	}
	f.path = target
	return nil
}

func (x *Executor) withFile(fn func(f *File, args []value.Value) eval.ModuleResult) handler {
	return func(_ context.Context, args []value.Value) eval.ModuleResult {
		if x.file == nil {
			return eval.Failed(ErrNoFile)
		}
		return fn(x.file, args)
	}
}

func (x *Executor) registerFile() {
	x.handlers["file.title"] = x.withFile(func(f *File, _ []value.Value) eval.ModuleResult {
		return eval.OK(value.String(f.Title()))
	})
	x.handlers["file.content"] = x.withFile(func(f *File, _ []value.Value) eval.ModuleResult {
		return eval.OK(value.String(f.content))
	})
	x.handlers["file.path"] = x.withFile(func(f *File, args []value.Value) eval.ModuleResult {
		if boolArg(args, 0) {
			return eval.OK(value.String(f.relative(f.Path())))
		}
		return eval.OK(value.String(f.Path()))
	})
	x.handlers["file.folder"] = x.withFile(func(f *File, args []value.Value) eval.ModuleResult {
		dir := filepath.Dir(f.Path())
		if boolArg(args, 0) {
			return eval.OK(value.String(f.relative(dir)))
		}
		return eval.OK(value.String(filepath.Base(dir)))
	})
	x.handlers["file.exists"] = x.withFile(func(f *File, args []value.Value) eval.ModuleResult {
		p, err := f.resolve(stringArg(args, 0, ""))
		if err != nil {
			return eval.Failed(err)
		}
		_, err = os.Stat(p)
		return eval.OK(value.Bool(err == nil))
	})
	x.handlers["file.include"] = x.withFile(func(f *File, args []value.Value) eval.ModuleResult {
		p, err := f.resolve(stringArg(args, 0, ""))
		if err != nil {
			return eval.Failed(err)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return eval.Failed(fmt.Errorf("failed to include %s: %w", f.relative(p), err))
		}
		return eval.OK(value.String(string(data)))
	})
	x.handlers["file.last_modified_date"] = x.withFile(func(f *File, args []value.Value) eval.ModuleResult {
		info, err := os.Stat(f.Path())
		if err != nil {
			return eval.Failed(err)
		}
		return eval.OK(value.String(FormatDate(info.ModTime(), stringArg(args, 0, "YYYY-MM-DD HH:mm"))))
	})
	x.handlers["file.move"] = x.withFile(func(f *File, args []value.Value) eval.ModuleResult {
		target, err := f.resolve(stringArg(args, 0, ""))
		if err != nil {
			return eval.Failed(err)
		}
		if err := f.rename(target); err != nil {
			return eval.Failed(err)
		}
		x.logger.Info("moved file", "path", f.relative(f.Path()))
		return eval.OK(value.Null())
	})
	x.handlers["file.rename"] = x.withFile(func(f *File, args []value.Value) eval.ModuleResult {
		title := stringArg(args, 0, "")
		if title == "" || strings.ContainsAny(title, `/\`) {
			return eval.Failed(fmt.Errorf("invalid file name %q", title))
		}
		if err := f.rename(filepath.Join(filepath.Dir(f.Path()), title+filepath.Ext(f.Path()))); err != nil {
			return eval.Failed(err)
		}
		x.logger.Info("renamed file", "path", f.relative(f.Path()))
		return eval.OK(value.Null())
	})
	x.handlers["file.create_new"] = x.withFile(func(f *File, args []value.Value) eval.ModuleResult {
		dir, err := f.resolve(stringArg(args, 2, ""))
		if err != nil {
			return eval.Failed(err)
		}
		name := stringArg(args, 1, "Untitled")
		ext := filepath.Ext(f.Path())
		if e := filepath.Ext(name); e != "" {
			ext, name = e, strings.TrimSuffix(name, e)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return eval.Failed(fmt.Errorf("failed to create directory: %w", err))
		}
		target := filepath.Join(dir, name+ext)
		for i := 1; ; i++ {
			if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
				break
			}
			target = filepath.Join(dir, fmt.Sprintf("%s %d%s", name, i, ext))
		}
		if err := os.WriteFile(target, []byte(stringArg(args, 0, "")), 0644); err != nil {
			return eval.Failed(fmt.Errorf("failed to create file: %w", err))
		}
		x.logger.Info("created file", "path", f.relative(target))
		return eval.OK(value.String(f.relative(target)))
	})
}
