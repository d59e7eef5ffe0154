package scanner

import (
	"strings"
)

// Kind classifies a document by how gts reads it.
type Kind string

const (
	// KindMarkdown is a markdown note whose tags are rendered.
	KindMarkdown Kind = "markdown"
	// KindTemplate is a plain-text template.
	KindTemplate Kind = "template"
	// KindScript is a bare script without tags.
	KindScript Kind = "script"
	KindUnknown Kind = ""
)

var kindMap = map[string]Kind{
	".md":       KindMarkdown,
	".mdx":      KindMarkdown,
	".markdown": KindMarkdown,
	".gts":      KindTemplate,
	".tpl":      KindTemplate,
	".txt":      KindTemplate,
	".js":       KindScript,
	".mjs":      KindScript,
}

// DetectKind returns the kind for a file extension, or KindUnknown.
func DetectKind(ext string) Kind {
	return kindMap[strings.ToLower(ext)]
}

// IsScript reports whether documents of kind k are run as bare scripts.
func (k Kind) IsScript() bool { return k == KindScript }
