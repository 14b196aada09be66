package enrich

import "github.com/go-memscope/memscope/record"

// CloneEdge is one clone-of relationship in the smart-pointer graph
// (§4.13): to is the allocation cloned from from.
type CloneEdge struct {
	From uint64
	To   uint64
}

// CloneGraph reconstructs the smart-pointer clone graph from each
// record's clone_of field (§3.2, §4.13). Unlike package annotate's
// live Clones bookkeeping (built incrementally as clones happen),
// this walks a static record set — the form the graph takes once
// loaded back from a binary snapshot, where there is no live
// Annotator to have maintained it.
func CloneGraph(records []*record.Allocation) []CloneEdge {
	var edges []CloneEdge
	for _, r := range records {
		if r.Kind != record.KindSmartPointer || r.SmartPointer == nil {
			continue
		}
		if r.SmartPointer.HasCloneOf {
			edges = append(edges, CloneEdge{From: r.SmartPointer.CloneOf, To: r.ID})
		}
	}
	return edges
}
