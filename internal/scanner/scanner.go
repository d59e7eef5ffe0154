// Package scanner walks a directory tree for template documents. It honors
// .gtsignore files with gitignore-style patterns and classifies documents by
// extension.
package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/l3aro/go-template-script/internal/log"
)

// FileInfo describes a discovered document.
type FileInfo struct {
	Path     string // Relative path from root, slash separated
	FullPath string
	Kind     Kind
	Size     int64
	ModTime  time.Time
}

// Options configures the scanner.
type Options struct {
	Extensions      []string // Extensions to keep, with the dot; empty keeps every known kind
	SkipHidden      bool     // Skip entries starting with a dot
	FollowSymlinks  bool     // Follow file symlinks that stay inside root
	DefaultExcludes []string // Directory names never entered
	IgnoreFileName  string   // Name of the ignore file (default: .gtsignore)
	Logger          log.Logger
}

// DefaultOptions returns options for markdown and .gts templates.
func DefaultOptions() Options {
	return Options{
		Extensions:     []string{".md", ".gts"},
		SkipHidden:     true,
		IgnoreFileName: ".gtsignore",
		DefaultExcludes: []string{
			"node_modules",
			".git",
			".obsidian",
			".trash",
			".hg",
			".svn",
			"dist",
			"build",
		},
	}
}

// Scanner walks directory trees.
type Scanner struct {
	opts   Options
	exts   map[string]bool
	logger log.Logger
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ".gtsignore"
	}
	s := &Scanner{opts: opts, exts: map[string]bool{}, logger: opts.Logger}
	if s.logger == nil {
		s.logger = log.Discard()
	}
	for _, ext := range opts.Extensions {
		s.exts[strings.ToLower(ext)] = true
	}
	return s
}

func (s *Scanner) wanted(name string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	kind := DetectKind(ext)
	if len(s.exts) > 0 {
		return kind, s.exts[ext]
	}
	return kind, kind != KindUnknown
}

// Scan walks root and returns matching documents sorted by path. Unreadable
// entries are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("reading root: %w", err)
	} else if !info.IsDir() {
		kind, _ := s.wanted(absRoot)
		return []FileInfo{{Path: filepath.Base(absRoot), FullPath: absRoot, Kind: kind, Size: info.Size(), ModTime: info.ModTime()}}, nil
	}

	var ignores []IgnorePattern
	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.logger.Debug("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		isDir := d.IsDir()

		if rel != "." {
			if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
				return skip(isDir)
			}
			if isDir && s.isDefaultExcluded(d.Name()) {
				return filepath.SkipDir
			}
			if Ignored(rel, isDir, ignores) {
				return skip(isDir)
			}
		}
		if isDir {
			base := rel
			if base == "." {
				base = ""
			}
			nested, err := s.loadIgnorePatterns(path, base)
			if err != nil {
				s.logger.Warn("failed to read ignore file", "dir", rel, "error", err)
			}
			ignores = append(ignores, nested...)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if info, err = s.followSymlink(absRoot, path); err != nil {
				s.logger.Debug("skipping symlink", "path", rel, "error", err)
				return nil
			}
		}
		kind, ok := s.wanted(d.Name())
		if !ok {
			return nil
		}
		files = append(files, FileInfo{
			Path:     rel,
			FullPath: path,
			Kind:     kind,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	s.logger.Debug("scanned templates", "root", absRoot, "files", len(files), "ignore_patterns", len(ignores))
	return files, nil
}

func skip(isDir bool) error {
	if isDir {
		return filepath.SkipDir
	}
	return nil
}

// followSymlink returns the target's info when following is enabled and the
// target is a regular file inside root.
func (s *Scanner) followSymlink(root, path string) (os.FileInfo, error) {
	if !s.opts.FollowSymlinks {
		return nil, fmt.Errorf("symlinks are not followed")
	}
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, err
	}
	if target, err = filepath.Abs(target); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return nil, fmt.Errorf("target %s is outside root", target)
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("target %s is a directory", target)
	}
	return info, nil
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns reads the ignore file of dir. Patterns are scoped to
// base, the slash separated path of dir relative to the scan root.
func (s *Scanner) loadIgnorePatterns(dir, base string) ([]IgnorePattern, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []IgnorePattern
	lines := bufio.NewScanner(file)
	for lines.Scan() {
		line := strings.TrimSpace(lines.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, parseScoped(line, base))
	}
	return patterns, lines.Err()
}

// Scan scans root with default options.
func Scan(ctx context.Context, root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(ctx, root)
}
