package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_SimpleStatements(t *testing.T) {
	tree := Build("let x = 1\nx = x + 1\ntR += x\nfoo(x)")
	require.Len(t, tree.Roots, 4)

	assert.Equal(t, StatementVarDecl, tree.Roots[0].Type)
	assert.Equal(t, "let", tree.Roots[0].VarKind)
	assert.Equal(t, StatementAssignment, tree.Roots[1].Type)
	assert.Equal(t, StatementAssignment, tree.Roots[2].Type)
	assert.Equal(t, StatementExpression, tree.Roots[3].Type)

	for i, n := range tree.Roots {
		assert.Equal(t, i+1, n.Line)
		assert.Equal(t, NodeID(i+1), n.ID)
	}
}

func TestBuild_IfChain(t *testing.T) {
	src := `if (a > 1) {
  tR += "big"
} else if (a > 0) {
  tR += "small"
} else if (a == 0) {
  tR += "zero"
} else {
  tR += "negative"
}`
	tree := Build(src)
	require.Len(t, tree.Roots, 1)
	n := tree.Roots[0]
	assert.Equal(t, StatementIf, n.Type)
	assert.Equal(t, "a > 1", n.Condition)
	assert.Equal(t, "if (a > 1)", n.Code)
	require.Len(t, n.Body, 1)
	assert.Equal(t, 2, n.Body[0].Line)

	require.Len(t, n.ElseBranches, 3)
	assert.Equal(t, "a > 0", n.ElseBranches[0].Condition)
	assert.Equal(t, 3, n.ElseBranches[0].Line)
	assert.Equal(t, "a == 0", n.ElseBranches[1].Condition)
	assert.True(t, n.ElseBranches[2].IsElse())
	assert.Equal(t, 8, n.ElseBranches[2].Body[0].Line)
}

func TestBuild_StrayElseIsAttached(t *testing.T) {
	tree := Build("if (a) tR += 1; else tR += 2")
	require.Len(t, tree.Roots, 1)
	n := tree.Roots[0]
	require.Len(t, n.ElseBranches, 1)
	assert.True(t, n.ElseBranches[0].IsElse())
	assert.Equal(t, "tR += 2", n.ElseBranches[0].Body[0].Code)
}

func TestBuild_Loops(t *testing.T) {
	src := "for (let i = 0; i < 3; i++) {\n  tR += i\n}\nfor (const item of items) tR += item\nfor (k in obj) { tR += k }\nwhile (n > 0) {\n  n--\n}"
	tree := Build(src)
	require.Len(t, tree.Roots, 4)

	f := tree.Roots[0]
	assert.Equal(t, StatementFor, f.Type)
	assert.Equal(t, "let i = 0", f.Init)
	assert.Equal(t, "i < 3", f.Condition)
	assert.Equal(t, "i++", f.Step)
	assert.True(t, f.IsLoop())

	of := tree.Roots[1]
	assert.Equal(t, StatementForOf, of.Type)
	assert.Equal(t, "item", of.Var)
	assert.Equal(t, "const", of.VarKind)
	assert.Equal(t, "items", of.Iterable)
	assert.Equal(t, 4, of.Line)
	require.Len(t, of.Body, 1)
	assert.Equal(t, 4, of.Body[0].Line)

	in := tree.Roots[2]
	assert.Equal(t, StatementForIn, in.Type)
	assert.Equal(t, "k", in.Var)

	w := tree.Roots[3]
	assert.Equal(t, StatementWhile, w.Type)
	assert.Equal(t, "n > 0", w.Condition)
	assert.Equal(t, 7, w.Body[0].Line)
}

func TestBuild_FunctionAndTry(t *testing.T) {
	src := `function greet(name, greeting = "hi") {
  return greeting + " " + name
}
try {
  risky()
} catch (err) {
  tR += err.message
} finally {
  done = true
}`
	tree := Build(src)
	require.Len(t, tree.Roots, 2)

	fn := tree.Roots[0]
	assert.Equal(t, StatementFunctionDecl, fn.Type)
	assert.Equal(t, "greet", fn.Name)
	assert.Equal(t, []string{"name", "greeting"}, fn.Params)
	assert.Equal(t, []string{"", `"hi"`}, fn.Defaults)
	require.Len(t, fn.Body, 1)
	assert.Equal(t, StatementReturn, fn.Body[0].Type)
	assert.Equal(t, `greeting + " " + name`, fn.Body[0].Expr)

	tr := tree.Roots[1]
	assert.Equal(t, StatementTry, tr.Type)
	assert.True(t, tr.HasCatch)
	assert.Equal(t, "err", tr.CatchParam)
	require.Len(t, tr.CatchBody, 1)
	assert.Equal(t, 7, tr.CatchBody[0].Line)
	require.Len(t, tr.FinallyBody, 1)
}

func TestBuild_MalformedFallsBackToExpression(t *testing.T) {
	tree := Build("if (a {\ntR += 1\nlet ok = 2")
	require.NotEmpty(t, tree.Roots)
	assert.Equal(t, StatementExpression, tree.Roots[0].Type)
}

func TestBuild_PreOrderIDs(t *testing.T) {
	tree := Build("if (a) {\n  x = 1\n  if (b) { y = 2 }\n}\nz = 3")
	var ids []NodeID
	for _, n := range tree.All {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []NodeID{1, 2, 3, 4, 5}, ids)

	n, ok := tree.Node(4)
	require.True(t, ok)
	assert.Equal(t, "y = 2", n.Code)
	assert.Equal(t, 3, n.Line)
}

func TestBuild_StableAcrossBuilds(t *testing.T) {
	src := "let a = 1\nfor (const x of [1,2]) {\n  // note\n  tR += x\n}"
	first, second := Build(src), Build(src)
	require.Equal(t, len(first.All), len(second.All))
	for i := range first.All {
		assert.Equal(t, first.All[i].ID, second.All[i].ID)
		assert.Equal(t, first.All[i].Code, second.All[i].Code)
		assert.Equal(t, first.All[i].Line, second.All[i].Line)
	}
}

func TestBuild_CommentNodesAreNotExecutable(t *testing.T) {
	tree := Build("// setup\nlet a = 1")
	require.Len(t, tree.Roots, 2)
	assert.Equal(t, StatementComment, tree.Roots[0].Type)
	assert.False(t, tree.Roots[0].Executable())
	assert.Len(t, tree.Executable(), 1)
}

func TestBuildTemplate(t *testing.T) {
	source := "Title\n<%* let n = 2\ntR += n %>\nValue: <% n * 2 %>\n"
	tree := BuildTemplate(source, []SourceBlock{
		{Kind: BlockExecution, Code: " let n = 2\ntR += n ", StartLine: 2, EndLine: 3},
		{Kind: BlockInterpolation, Code: " n * 2 ", StartLine: 4, EndLine: 4},
	})
	require.Len(t, tree.Blocks, 2)
	exec := tree.Blocks[0].Nodes
	require.Len(t, exec, 4)
	assert.Equal(t, StatementBlockStart, exec[0].Type)
	assert.Equal(t, 2, exec[1].Line)
	assert.Equal(t, 3, exec[2].Line)
	assert.Equal(t, StatementBlockEnd, exec[3].Type)
	assert.Equal(t, 3, exec[3].Line)

	interp := tree.Blocks[1].Nodes[0]
	assert.Equal(t, StatementInterpolation, interp.Type)
	assert.Equal(t, "n * 2", interp.Expr)
	assert.Equal(t, NodeID(5), interp.ID)
	assert.Equal(t, "Value: <% n * 2 %>", tree.SourceLine(4))
}

func TestBuildDynamic(t *testing.T) {
	nodes := BuildDynamic("const y = x * 2\nreturn y")
	require.Len(t, nodes, 2)
	for _, n := range nodes {
		assert.True(t, n.Dynamic())
		assert.Zero(t, n.Line)
	}
}
