// Package dfg computes which variables each top-level block of a script reads
// and writes, and groups adjacent independent blocks into parallel-safe
// batches for the control-flow diagram.
package dfg

import "github.com/l3aro/go-template-script/pkg/ast"

// OutputVar is the output accumulator every block may append to.
const OutputVar = "tR"

// RefType represents the type of variable reference in data flow analysis.
type RefType string

const (
	RefTypeDefinition RefType = "definition" // Variable definition (assignment)
	RefTypeUpdate     RefType = "update"     // Variable update (reassignment or mutation)
	RefTypeUse        RefType = "use"        // Variable use (read)
)

// VarRef represents a variable reference in the source code.
type VarRef struct {
	Name    string  `json:"name"`     // Variable name
	RefType RefType `json:"ref_type"` // Type of reference (definition, update, use)
	Line    int     `json:"line"`     // Document line
	Column  int     `json:"column"`   // 1-based column within the parsed fragment
}

// DataflowEdge connects the definition of a variable in one block to a use
// in a later block.
type DataflowEdge struct {
	DefRef    VarRef `json:"def_ref"`
	UseRef    VarRef `json:"use_ref"`
	VarName   string `json:"var_name"`
	FromBlock int    `json:"from_block"`
	ToBlock   int    `json:"to_block"`
}

// BlockAnalysis is the effect summary of one top-level block.
type BlockAnalysis struct {
	Index  int                `json:"index"`
	NodeID ast.NodeID         `json:"node_id"`
	Line   int                `json:"line"`
	Type   ast.StatementType  `json:"type"`
	Code   string             `json:"code"`
	Node   *ast.StatementNode `json:"-"`

	Reads  []string `json:"reads"`
	Writes []string `json:"writes"`
	// Calls lists the declared functions the block calls; their effects are
	// already merged into Reads, Writes and the output flags.
	Calls []string `json:"calls,omitempty"`

	WritesOutput bool `json:"writes_output"`
	ReadsOutput  bool `json:"reads_output"`

	// Barrier blocks are ordered against their neighbours regardless of
	// variable dependencies.
	Barrier       bool   `json:"barrier"`
	BarrierReason string `json:"barrier_reason,omitempty"`

	Refs []VarRef `json:"refs"`
}

// FunctionSummary is the effect of calling a declared function, including
// the functions it calls in turn.
type FunctionSummary struct {
	Name          string     `json:"name"`
	NodeID        ast.NodeID `json:"node_id"`
	Line          int        `json:"line"`
	Reads         []string   `json:"reads"`
	Writes        []string   `json:"writes"`
	Calls         []string   `json:"calls,omitempty"`
	WritesOutput  bool       `json:"writes_output"`
	ReadsOutput   bool       `json:"reads_output"`
	BarrierReason string     `json:"barrier_reason,omitempty"`
}

// Batch is a run of adjacent blocks with no ordering constraint among them.
type Batch struct {
	Blocks []int `json:"blocks"` // indices into Analysis.Blocks
	// Rationale explains a multi-block batch for diagram annotation.
	Rationale string `json:"rationale,omitempty"`
	// Split says why the block after this batch could not join it.
	Split string `json:"split,omitempty"`
}

// Parallel reports whether the batch holds more than one block.
func (b Batch) Parallel() bool { return len(b.Blocks) > 1 }

// Analysis is the result of analyzing a script.
type Analysis struct {
	Blocks    []BlockAnalysis            `json:"blocks"`
	Batches   []Batch                    `json:"batches"`
	Functions map[string]FunctionSummary `json:"functions"`
	Edges     []DataflowEdge             `json:"edges"`
}

// BatchOf returns the index of the batch holding block i, or -1.
func (a *Analysis) BatchOf(block int) int {
	for i, b := range a.Batches {
		for _, j := range b.Blocks {
			if j == block {
				return i
			}
		}
	}
	return -1
}

// Block returns the analysis of the top-level block rooted at node id.
func (a *Analysis) Block(id ast.NodeID) (BlockAnalysis, bool) {
	for _, b := range a.Blocks {
		if b.NodeID == id {
			return b, true
		}
	}
	return BlockAnalysis{}, false
}
