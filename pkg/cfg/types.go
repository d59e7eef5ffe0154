// Package cfg builds the control-flow graph of a template script for diagram
// rendering. One node is emitted per statement, and batches of independent
// top-level blocks become FORK/JOIN regions.
package cfg

import "github.com/l3aro/go-template-script/pkg/ast"

// NodeType represents the type of a flow node.
type NodeType string

const (
	NodeStart         NodeType = "START"
	NodeEnd           NodeType = "END"
	NodeStatement     NodeType = "STATEMENT"
	NodeCondition     NodeType = "CONDITION"      // if / else if test
	NodeMerge         NodeType = "MERGE"          // where if branches converge
	NodeLoopStart     NodeType = "LOOP_START"     // loop header
	NodeLoopEnd       NodeType = "LOOP_END"       // node following a loop
	NodeFunctionDecl  NodeType = "FUNCTION_DECL"  // declaration site
	NodeFunctionEntry NodeType = "FUNCTION_ENTRY" // first node of a function region
	NodeFunctionExit  NodeType = "FUNCTION_EXIT"  // last node of a function region
	NodeReturn        NodeType = "RETURN"
	NodeBreak         NodeType = "BREAK"
	NodeContinue      NodeType = "CONTINUE"
	NodeThrow         NodeType = "THROW"
	NodeTry           NodeType = "TRY"
	NodeCatch         NodeType = "CATCH"
	NodeInterpolation NodeType = "INTERPOLATION"
	NodeFork          NodeType = "FORK" // start of a parallel batch
	NodeJoin          NodeType = "JOIN" // end of a parallel batch
)

// EdgeType represents the type of a flow edge.
type EdgeType string

const (
	EdgeNormal   EdgeType = "NORMAL"
	EdgeTrue     EdgeType = "TRUE_BRANCH"
	EdgeFalse    EdgeType = "FALSE_BRANCH"
	EdgeLoopBack EdgeType = "LOOP_BACK" // body end or continue back to the loop header
	EdgeLoopExit EdgeType = "LOOP_EXIT" // loop header or break to the node after the loop
	EdgeParallel EdgeType = "PARALLEL"  // fork to a batch member, member to join
)

// FlowNode is one node of the graph.
type FlowNode struct {
	ID      string     `json:"id"`
	Type    NodeType   `json:"type"`
	Label   string     `json:"label"`
	Line    int        `json:"line,omitempty"`
	ASTNode ast.NodeID `json:"ast_node,omitempty"`
	// Scope is the id of the function region the node belongs to.
	Scope string `json:"scope,omitempty"`
}

// FlowEdge is a directed edge between two nodes.
type FlowEdge struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Type  EdgeType `json:"type"`
	Label string   `json:"label,omitempty"` // condition text for branch edges
}

// FunctionScope is the sub-region holding one function body.
type FunctionScope struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Line       int      `json:"line,omitempty"`
	Decl       string   `json:"decl"`
	Entry      string   `json:"entry"`
	Exit       string   `json:"exit"`
	Nodes      []string `json:"nodes"`
	Complexity int      `json:"complexity"`
}

// ParallelGroup is one FORK/JOIN region.
type ParallelGroup struct {
	Fork        string       `json:"fork"`
	Join        string       `json:"join"`
	Blocks      []ast.NodeID `json:"blocks"`
	Explanation string       `json:"explanation"`
}

// ControlFlowGraph is the complete graph of a script.
type ControlFlowGraph struct {
	Nodes          []FlowNode      `json:"nodes"`
	Edges          []FlowEdge      `json:"edges"`
	ParallelGroups []ParallelGroup `json:"parallel_groups"`
	FunctionScopes []FunctionScope `json:"function_scopes"`
	// CyclomaticComplexity counts the decision points of the top-level
	// script plus one.
	CyclomaticComplexity int `json:"cyclomatic_complexity"`
}

// Explanations returns the rationale of every parallel group, in order.
func (g *ControlFlowGraph) Explanations() []string {
	out := make([]string, len(g.ParallelGroups))
	for i, p := range g.ParallelGroups {
		out[i] = p.Explanation
	}
	return out
}

// Node returns the node with the given id.
func (g *ControlFlowGraph) Node(id string) (FlowNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return FlowNode{}, false
}

// Successors returns the edges leaving id.
func (g *ControlFlowGraph) Successors(id string) []FlowEdge {
	var out []FlowEdge
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// Predecessors returns the edges entering id.
func (g *ControlFlowGraph) Predecessors(id string) []FlowEdge {
	var out []FlowEdge
	for _, e := range g.Edges {
		if e.To == id {
			out = append(out, e)
		}
	}
	return out
}

// NodesOfType returns the nodes of type t in graph order.
func (g *ControlFlowGraph) NodesOfType(t NodeType) []FlowNode {
	var out []FlowNode
	for _, n := range g.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// ForAST returns the nodes emitted for a statement.
func (g *ControlFlowGraph) ForAST(id ast.NodeID) []FlowNode {
	var out []FlowNode
	for _, n := range g.Nodes {
		if n.ASTNode == id {
			out = append(out, n)
		}
	}
	return out
}
