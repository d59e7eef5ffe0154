package dfg

// DefUseChains links each use of a variable to the definition that reaches
// it from an earlier block. Top-level blocks run in sequence, so the
// reaching definition is the last write in the closest preceding block that
// wrote the name. Effects merged in from called functions carry no refs and
// produce no edges.
func DefUseChains(blocks []BlockAnalysis) []DataflowEdge {
	type def struct {
		ref   VarRef
		block int
	}
	reaching := make(map[string]def)
	var edges []DataflowEdge
	for i, b := range blocks {
		for _, r := range b.Refs {
			if r.RefType == RefTypeDefinition || r.Name == OutputVar {
				continue
			}
			if d, ok := reaching[r.Name]; ok {
				edges = append(edges, DataflowEdge{
					DefRef:    d.ref,
					UseRef:    r,
					VarName:   r.Name,
					FromBlock: d.block,
					ToBlock:   i,
				})
			}
		}
		for _, r := range b.Refs {
			if r.RefType != RefTypeUse && r.Name != OutputVar {
				reaching[r.Name] = def{ref: r, block: i}
			}
		}
	}
	return edges
}
