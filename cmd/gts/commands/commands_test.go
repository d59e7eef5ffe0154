package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-template-script/internal/config"
	"github.com/l3aro/go-template-script/internal/healthcheck"
	"github.com/l3aro/go-template-script/pkg/cfg"
	"github.com/l3aro/go-template-script/pkg/eval"
	"github.com/l3aro/go-template-script/pkg/trace"
)

// resetFlags restores every flag to its default so commands can run more
// than once in one process.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func testConfig() *config.Config {
	c := config.DefaultConfig()
	c.LogLevel = "error"
	return c
}

func run(t *testing.T, c *config.Config, stdin string, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, c.Save(path))

	resetFlags(RootCmd)
	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetIn(strings.NewReader(stdin))
	RootCmd.SetArgs(append([]string{"--config", path}, args...))
	err := ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	note := writeFile(t, dir, "Weekly.md", "Hello <% name %>!\n<%* tR += n * 2 %>")

	out, err := run(t, testConfig(), "", "render", note, "--var", "name=Ada", "--var", "n=21")
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!\n42", out)

	out, err = run(t, testConfig(), "sum <% 1 + 1 %>", "render", "-")
	require.NoError(t, err)
	assert.Equal(t, "sum 2", out)

	out, err = run(t, testConfig(), "", "render", writeFile(t, dir, "Daily.md", "# <% tp.file.title %>"))
	require.NoError(t, err)
	assert.Equal(t, "# Daily", out)
}

func TestRenderCommandFrontmatter(t *testing.T) {
	note := writeFile(t, t.TempDir(), "note.md", "---\nauthor: Kim\n---\nby <% tp.frontmatter.author %>")
	out, err := run(t, testConfig(), "", "render", note)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "by Kim"), out)
}

func TestRenderCommandOutputAndTrace(t *testing.T) {
	dir := t.TempDir()
	note := writeFile(t, dir, "note.md", "<%* for (let i = 0; i < 3; i++) { tR += i } %>")
	outPath := filepath.Join(dir, "out", "note.md")
	tracePath := filepath.Join(dir, "trace.json")

	out, err := run(t, testConfig(), "", "render", note, "-o", outPath, "--trace", tracePath)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "012", string(data))

	f, err := os.Open(tracePath)
	require.NoError(t, err)
	defer f.Close()
	tr, err := trace.Import(f, trace.FormatJSON)
	require.NoError(t, err)
	assert.Len(t, tr.Filter(trace.StepLoopIteration), 3)

	_, err = run(t, testConfig(), "", "render", note, "--trace", filepath.Join(dir, "trace.txt"))
	assert.Error(t, err)
}

func TestRenderCommandScript(t *testing.T) {
	script := writeFile(t, t.TempDir(), "setup.js", "for (let i = 0; i < 3; i++) tR += 'x'")
	out, err := run(t, testConfig(), "", "render", script)
	require.NoError(t, err)
	assert.Equal(t, "xxx", out)
}

func TestRenderCommandErrors(t *testing.T) {
	_, err := run(t, testConfig(), "", "render", filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)

	_, err = run(t, testConfig(), "x", "render", "-", "--var", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want name=value")
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars(eval.New(), []string{
		"slug=my-post-title",
		"day=2024-01-15",
		"path=foo/bar",
		"n=6 / 2",
		"name='Ada'",
	})
	require.NoError(t, err)
	assert.Equal(t, "my-post-title", vars["slug"].String())
	assert.Equal(t, "2024-01-15", vars["day"].String())
	assert.Equal(t, "foo/bar", vars["path"].String())
	assert.Equal(t, 3.0, vars["n"].ToNumber())
	assert.Equal(t, "Ada", vars["name"].String())

	out, err := run(t, testConfig(), "<% slug %> <% typeof slug %>", "render", "-", "--var", "slug=my-post-title")
	require.NoError(t, err)
	assert.Equal(t, "my-post-title string", out)
}

func TestEvalCommand(t *testing.T) {
	out, err := run(t, testConfig(), "", "eval", "1 + 2 * 3")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)

	out, err = run(t, testConfig(), "", "eval", "--var", "name=Ada", "name.toUpperCase()")
	require.NoError(t, err)
	assert.Equal(t, "\"ADA\"\n", out)

	out, err = run(t, testConfig(), "", "eval", "--json", "[1, 'a']")
	require.NoError(t, err)
	assert.JSONEq(t, `[1, "a"]`, out)

	out, err = run(t, testConfig(), "", "eval", "--exec", "for (let i = 0; i < 3; i++) tR += i")
	require.NoError(t, err)
	assert.Equal(t, "012", out)
}

const parallelDoc = "<%* let x=1; let y=2; let z=x+y; %>"

func TestGraphCommand(t *testing.T) {
	note := writeFile(t, t.TempDir(), "note.md", parallelDoc)

	out, err := run(t, testConfig(), "", "graph", note, "--json")
	require.NoError(t, err)
	var g cfg.ControlFlowGraph
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	require.Len(t, g.ParallelGroups, 1)
	assert.NotEmpty(t, g.ParallelGroups[0].Explanation)
	assert.Equal(t, cfg.NodeStart, g.Nodes[0].Type)

	out, err = run(t, testConfig(), "", "graph", note)
	require.NoError(t, err)
	assert.Contains(t, out, "Cyclomatic Complexity: 1")
	assert.Contains(t, out, "Parallel groups (1):")

	out, err = run(t, testConfig(), "", "graph", note, "--format", "mermaid")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flowchart TD\n"), out)
	assert.Contains(t, out, "-.->")

	_, err = run(t, testConfig(), "", "graph", note, "--format", "dot")
	assert.Error(t, err)
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", parallelDoc)
	writeFile(t, dir, "b.gts", "plain text")
	writeFile(t, dir, "drafts/c.md", "<%* let q = 1 %>")
	writeFile(t, dir, "image.png", "png")
	writeFile(t, dir, ".gtsignore", "drafts/\n")

	out, err := run(t, testConfig(), "", "analyze", dir, "--json")
	require.NoError(t, err)
	var reports []AnalyzeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 2)

	assert.Equal(t, "a.md", reports[0].Path)
	assert.Equal(t, 3, reports[0].Blocks)
	assert.Equal(t, 2, reports[0].Batches)
	assert.Equal(t, 1, reports[0].Parallel)
	assert.Equal(t, int64(len(parallelDoc)), reports[0].Size)

	assert.Equal(t, "b.gts", reports[1].Path)
	assert.Zero(t, reports[1].Blocks)

	out, err = run(t, testConfig(), "", "analyze", filepath.Join(dir, "a.md"))
	require.NoError(t, err)
	assert.Contains(t, out, "a.md (")
	assert.Contains(t, out, "block 2")
	assert.Contains(t, out, "parallel [0 1]")

	_, err = run(t, testConfig(), "", "analyze", filepath.Join(dir, "drafts", "missing"))
	assert.Error(t, err)
}

const debugDoc = `Intro
<%*
let total = 0
for (const n of [1, 2, 3]) {
  total += n
}
tR += total
%>`

func TestDebugCommandPlain(t *testing.T) {
	note := writeFile(t, t.TempDir(), "note.md", debugDoc)
	stdin := "vars\np total + 1\nset total 100\nbogus\nc\nc\nc\n"

	out, err := run(t, testConfig(), stdin, "debug", note, "-b", "5", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "breakpoint at line 5 (statement")
	assert.Contains(t, out, "paused at line 5 (breakpoint): total += n")
	assert.Contains(t, out, "  n = 1\n")
	assert.Contains(t, out, "  total = 0\n")
	assert.Contains(t, out, "  1\n")
	assert.Contains(t, out, "  total updated (number)")
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Contains(t, out, "-- render finished --")
	assert.True(t, strings.HasSuffix(out, "Intro\n106"), out)
}

func TestDebugCommandStop(t *testing.T) {
	note := writeFile(t, t.TempDir(), "note.md", debugDoc)

	out, err := run(t, testConfig(), "q\n", "debug", note, "--step", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "(step)")
	assert.Contains(t, out, "-- render stopped --")
	assert.True(t, strings.HasSuffix(out, "Intro\n"), out)

	out, err = run(t, testConfig(), "", "debug", note, "-b", "5", "--plain")
	require.NoError(t, err, "end of input stops the render")
	assert.Contains(t, out, "-- render stopped --")
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, testConfig(), "", "init", dir, "--defaults")
	require.NoError(t, err)
	path := config.ProjectConfigPath(dir)
	assert.Contains(t, out, path)

	loaded, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tp", loaded.ModuleNamespace)

	_, err = run(t, testConfig(), "", "init", dir, "--defaults")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, testConfig(), "", "init", dir, "--defaults", "--force")
	assert.NoError(t, err)
}

func TestCacheCommands(t *testing.T) {
	dir := t.TempDir()
	c := testConfig()
	c.CacheFile = filepath.Join(dir, "exprcache.msgpack")

	out, err := run(t, c, "", "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Not written yet")

	_, err = run(t, c, "", "eval", "40 + 2")
	require.NoError(t, err)
	require.FileExists(t, c.CacheFile)

	out, err = run(t, c, "", "cache", "stats", "--json")
	require.NoError(t, err)
	var info CacheOutput
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Exists)
	assert.Positive(t, info.Size)
	assert.GreaterOrEqual(t, info.Entries, 1)

	_, err = run(t, c, "", "cache", "clear")
	require.NoError(t, err)
	assert.NoFileExists(t, c.CacheFile)

	_, err = run(t, testConfig(), "", "cache", "clear")
	assert.Error(t, err)
}

func TestDoctorCommand(t *testing.T) {
	out, err := run(t, testConfig(), "", "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "Using config: ")
	assert.Contains(t, out, "✓ script parser: ready")

	c := testConfig()
	c.CacheFile = filepath.Join(t.TempDir(), "bad.msgpack")
	require.NoError(t, os.WriteFile(c.CacheFile, []byte{0xc1}, 0644))
	out, err = run(t, c, "", "doctor", "--json")
	require.Error(t, err)
	var result healthcheck.HealthCheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Failed())
	assert.Equal(t, "project", result.EffectiveScope)
}
