package dfg

import (
	"fmt"
	"sort"
	"strings"
)

// Batch groups adjacent blocks greedily. A block joins the current batch
// unless it reads a variable the batch writes, either side is a barrier, or
// it writes the output while a member already does. With write hazards
// enabled, writes to variables the batch reads or writes also split.
func (a *Analyzer) Batch(blocks []BlockAnalysis) []Batch {
	var out []Batch
	var cur []int
	for i := range blocks {
		if len(cur) > 0 {
			if reason := a.conflict(blocks, cur, &blocks[i]); reason != "" {
				out = append(out, newBatch(blocks, cur, reason))
				cur = nil
			}
		}
		cur = append(cur, i)
	}
	if len(cur) > 0 {
		out = append(out, newBatch(blocks, cur, ""))
	}
	return out
}

func (a *Analyzer) conflict(blocks []BlockAnalysis, cur []int, b *BlockAnalysis) string {
	if b.Barrier {
		return fmt.Sprintf("%s is a barrier: %s", label(b), b.BarrierReason)
	}
	for _, j := range cur {
		m := &blocks[j]
		if m.Barrier {
			return fmt.Sprintf("%s is a barrier: %s", label(m), m.BarrierReason)
		}
		if v := common(b.Reads, m.Writes); v != nil {
			return fmt.Sprintf("%s reads %s written by %s", label(b), strings.Join(v, ", "), label(m))
		}
		if b.WritesOutput && m.WritesOutput {
			return fmt.Sprintf("%s and %s both write the output", label(m), label(b))
		}
		if !a.hazards {
			continue
		}
		if v := common(b.Writes, m.Reads); v != nil {
			return fmt.Sprintf("%s writes %s read by %s", label(b), strings.Join(v, ", "), label(m))
		}
		if v := common(b.Writes, m.Writes); v != nil {
			return fmt.Sprintf("%s writes %s also written by %s", label(b), strings.Join(v, ", "), label(m))
		}
	}
	return ""
}

func newBatch(blocks []BlockAnalysis, members []int, split string) Batch {
	b := Batch{Blocks: members, Split: split}
	if len(members) > 1 {
		b.Rationale = rationale(blocks, members)
	}
	return b
}

// rationale describes why the members of a batch are independent. It is
// only used to annotate diagrams.
func rationale(blocks []BlockAnalysis, members []int) string {
	labels := make([]string, len(members))
	readers := make(map[string]int)
	writers := make(map[string]int)
	var writes []string
	var output []string
	for i, j := range members {
		b := &blocks[j]
		labels[i] = label(b)
		for _, v := range b.Reads {
			readers[v]++
		}
		for _, v := range b.Writes {
			writers[v]++
		}
		if len(b.Writes) > 0 {
			writes = append(writes, fmt.Sprintf("%s (%s)", strings.Join(b.Writes, ", "), label(b)))
		}
		if b.WritesOutput {
			output = append(output, label(b))
		}
	}

	parts := []string{strings.Join(labels, ", ") + " have no ordering dependency"}
	if shared := multi(writers); len(shared) > 0 {
		parts = append(parts, "shared writes: "+strings.Join(shared, ", "))
	} else if len(writes) > 0 {
		parts = append(parts, "disjoint writes: "+strings.Join(writes, "; "))
	}
	if shared := multi(readers); len(shared) > 0 {
		parts = append(parts, "shared reads: "+strings.Join(shared, ", "))
	} else {
		parts = append(parts, "no shared reads")
	}
	if len(output) > 0 {
		parts = append(parts, "output written only by "+output[0])
	}
	return strings.Join(parts, "; ")
}

func label(b *BlockAnalysis) string {
	if b.Line > 0 {
		return fmt.Sprintf("block %d (line %d)", b.Index+1, b.Line)
	}
	return fmt.Sprintf("block %d", b.Index+1)
}

// common returns the sorted names present in both sorted slices.
func common(a, b []string) []string {
	var out []string
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

func multi(counts map[string]int) []string {
	var out []string
	for name, n := range counts {
		if n > 1 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
