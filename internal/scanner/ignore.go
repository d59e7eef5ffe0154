package scanner

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnorePattern is one gitignore-style line of a .gtsignore file, scoped to
// the directory holding the file.
type IgnorePattern struct {
	line    string
	pattern gitignore.Pattern
}

// ParseIgnorePattern parses a pattern line of an ignore file at the scan root.
func ParseIgnorePattern(line string) IgnorePattern {
	return parseScoped(line, "")
}

// parseScoped parses line for an ignore file in base, the slash separated
// directory relative to the scan root.
func parseScoped(line, base string) IgnorePattern {
	var domain []string
	if base != "" {
		domain = strings.Split(base, "/")
	}
	return IgnorePattern{line: line, pattern: gitignore.ParsePattern(line, domain)}
}

// String returns the original line.
func (p IgnorePattern) String() string { return p.line }

// IsNegation reports whether the pattern re-includes matches.
func (p IgnorePattern) IsNegation() bool { return strings.HasPrefix(p.line, "!") }

// Match reports whether the slash separated rel path, relative to the scan
// root, matches the pattern. isDir tells whether rel names a directory.
func (p IgnorePattern) Match(rel string, isDir bool) bool {
	return p.pattern.Match(strings.Split(rel, "/"), isDir) != gitignore.NoMatch
}

// Ignored applies patterns in order; the last matching pattern decides, so a
// later negation re-includes a path an earlier pattern excluded.
func Ignored(rel string, isDir bool, patterns []IgnorePattern) bool {
	parts := strings.Split(rel, "/")
	for i := len(patterns) - 1; i >= 0; i-- {
		if m := patterns[i].pattern.Match(parts, isDir); m != gitignore.NoMatch {
			return m == gitignore.Exclude
		}
	}
	return false
}
