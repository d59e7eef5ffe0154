package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
	return root
}

func paths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestScannerScan(t *testing.T) {
	root := writeTree(t, map[string]string{
		"Daily.md":                 "<% tp.date.now() %>",
		"templates/meeting.gts":    "<%* let x = 1 %>",
		"templates/setup.js":       "tR += 1",
		"notes/plain.txt":          "text",
		".hidden/secret.md":        "hidden",
		".obsidian/workspace.md":   "config",
		"node_modules/pkg/doc.md":  "dependency",
		"assets/image.png":         "png",
		"archive/2023/old/Done.md": "done",
	})

	results, err := New(DefaultOptions()).Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"Daily.md", "archive/2023/old/Done.md", "templates/meeting.gts"}
	if got := paths(results); !reflect.DeepEqual(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
	kinds := map[string]Kind{}
	for _, f := range results {
		kinds[f.Path] = f.Kind
		if f.Size == 0 || f.ModTime.IsZero() || !filepath.IsAbs(f.FullPath) {
			t.Errorf("incomplete FileInfo: %+v", f)
		}
	}
	if kinds["Daily.md"] != KindMarkdown || kinds["templates/meeting.gts"] != KindTemplate {
		t.Errorf("unexpected kinds: %v", kinds)
	}
}

func TestScannerAllKnownKinds(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.md":      "a",
		"b.js":      "b",
		"c.txt":     "c",
		"d.png":     "d",
		"e.unknown": "e",
	})
	opts := DefaultOptions()
	opts.Extensions = nil
	results, err := New(opts).Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got, want := paths(results), []string{"a.md", "b.js", "c.txt"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
	if !results[1].Kind.IsScript() {
		t.Errorf("b.js kind = %q, want script", results[1].Kind)
	}
}

func TestScannerWithGtsignore(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gtsignore":            "# drafts stay out\ndrafts/\n*.tmp.md\n/Inbox.md\n!keep.tmp.md\n",
		"Inbox.md":              "root inbox",
		"sub/Inbox.md":          "nested inbox",
		"drafts/idea.md":        "draft",
		"sub/drafts/other.md":   "nested draft",
		"scratch.tmp.md":        "tmp",
		"keep.tmp.md":           "kept",
		"sub/.gtsignore":        "private.md\n",
		"sub/private.md":        "private",
		"other/private.md":      "not covered by sub/.gtsignore",
		"sub/deeper/private.md": "covered",
	})

	results, err := Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := []string{"keep.tmp.md", "other/private.md", "sub/Inbox.md"}
	if got := paths(results); !reflect.DeepEqual(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
}

func TestScanSingleFile(t *testing.T) {
	root := writeTree(t, map[string]string{"note.md": "x"})
	results, err := Scan(context.Background(), filepath.Join(root, "note.md"))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(results) != 1 || results[0].Path != "note.md" || results[0].Kind != KindMarkdown {
		t.Errorf("Scan(file) = %+v", results)
	}

	if _, err := Scan(context.Background(), filepath.Join(root, "missing")); err == nil {
		t.Error("Scan() of a missing root should fail")
	}
}

func TestScanCancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.md": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, root)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
}

func TestScannerSymlinks(t *testing.T) {
	root := writeTree(t, map[string]string{"real.md": "x"})
	outside := writeTree(t, map[string]string{"outside.md": "y"})
	if err := os.Symlink(filepath.Join(root, "real.md"), filepath.Join(root, "link.md")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(filepath.Join(outside, "outside.md"), filepath.Join(root, "escape.md")); err != nil {
		t.Fatal(err)
	}

	results, err := Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := paths(results); !reflect.DeepEqual(got, []string{"real.md"}) {
		t.Errorf("Scan() without following = %v", got)
	}

	opts := DefaultOptions()
	opts.FollowSymlinks = true
	results, err = New(opts).Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := paths(results); !reflect.DeepEqual(got, []string{"link.md", "real.md"}) {
		t.Errorf("Scan() following = %v", got)
	}
}

func TestIgnorePatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{"*.md", "a.md", false, true},
		{"*.md", "deep/dir/a.md", false, true},
		{"*.md", "a.gts", false, false},
		{"build/", "build", true, true},
		{"build/", "build", false, false},
		{"build/", "src/build", true, true},
		{"/Inbox.md", "Inbox.md", false, true},
		{"/Inbox.md", "sub/Inbox.md", false, false},
		{"docs/*.md", "docs/a.md", false, true},
		{"docs/*.md", "x/docs/a.md", false, false},
		{"**/docs/*.md", "x/docs/a.md", false, true},
		{"a/**/b.md", "a/b.md", false, true},
		{"a/**/b.md", "a/x/y/b.md", false, true},
		{"README.md", "docs/README.md", false, true},
		{"README.MD", "readme.md", false, false},
		{"build/", "build/out.md", false, true},
		{"note?.md", "note1.md", false, true},
		{"note[0-9].md", "notex.md", false, false},
		{"[", "[", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			if got := ParseIgnorePattern(tt.pattern).Match(tt.path, tt.isDir); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIgnoredNegation(t *testing.T) {
	patterns := []IgnorePattern{ParseIgnorePattern("*.md"), ParseIgnorePattern("!keep.md")}
	if !Ignored("drop.md", false, patterns) {
		t.Error("drop.md should be ignored")
	}
	if Ignored("keep.md", false, patterns) {
		t.Error("keep.md should be re-included")
	}
	if !patterns[1].IsNegation() || patterns[1].String() != "!keep.md" {
		t.Errorf("unexpected negation pattern %+v", patterns[1])
	}
}

func TestDetectKind(t *testing.T) {
	tests := map[string]Kind{
		".md":  KindMarkdown,
		".MD":  KindMarkdown,
		".gts": KindTemplate,
		".js":  KindScript,
		".png": KindUnknown,
		"":     KindUnknown,
	}
	for ext, want := range tests {
		if got := DetectKind(ext); got != want {
			t.Errorf("DetectKind(%q) = %q, want %q", ext, got, want)
		}
	}
}
