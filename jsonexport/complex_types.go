package jsonexport

import (
	"bufio"
	"runtime"
	"sort"

	"github.com/go-memscope/memscope/enrich"
	"github.com/go-memscope/memscope/intern"
	"github.com/go-memscope/memscope/record"
)

// writeComplexTypes writes <base>_complex_types.json: smart-pointer
// relationships, generic instantiations, and type aliases (§4.11,
// §6.3: "metadata, smart_pointer_graph, generic_instantiations[],
// type_aliases[]").
//
// type_aliases is always empty: the engine tracks concrete type names
// at the annotation site (§3.1's type_name field), not a separate
// alias-to-concrete-type table, so there is nothing to populate it
// from. The key is still emitted, per §6.3's required-keys contract.
func writeComplexTypes(w *bufio.Writer, src RecordSource, strings *intern.Table, opts Options, exportTS uint64) error {
	opts = opts.resolved()

	type instKey struct {
		ptype    string
		typeName string
	}
	instCounts := make(map[instKey]uint64)

	j := newJWriter(w)
	j.objStart()
	writeMetadata(j, exportTS, src.Len(), opts.ActiveAllocationCount, opts.Source)

	j.key("smart_pointer_graph")
	j.arrStart()
	firstEdge := true
	n := src.Len()
	for s := 0; s < n; s += opts.BatchSize {
		batch := src.Batch(s, opts.BatchSize)
		for _, edge := range enrich.CloneGraph(batch) {
			if !firstEdge {
				j.comma()
			}
			firstEdge = false
			j.objStart()
			j.key("from")
			j.u64(edge.From)
			j.comma()
			j.key("to")
			j.u64(edge.To)
			j.objEnd()
		}
		for _, r := range batch {
			if r.Kind != record.KindSmartPointer || r.SmartPointer == nil || !r.HasTypeName {
				continue
			}
			typeName, ok := strings.Resolve(r.TypeNameID)
			if !ok {
				continue
			}
			instCounts[instKey{ptype: r.SmartPointer.PType.String(), typeName: typeName}]++
		}
		runtime.Gosched()
	}
	j.arrEnd()
	j.comma()

	keys := make([]instKey, 0, len(instCounts))
	for k := range instCounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ptype != keys[j].ptype {
			return keys[i].ptype < keys[j].ptype
		}
		return keys[i].typeName < keys[j].typeName
	})

	j.key("generic_instantiations")
	j.arrStart()
	for i, k := range keys {
		if i > 0 {
			j.comma()
		}
		j.objStart()
		j.key("generic")
		j.str(k.ptype)
		j.comma()
		j.key("type_param")
		j.str(k.typeName)
		j.comma()
		j.key("count")
		j.u64(instCounts[k])
		j.objEnd()
	}
	j.arrEnd()
	j.comma()

	j.key("type_aliases")
	j.arrStart()
	j.arrEnd()

	j.objEnd()
	return j.flush()
}
