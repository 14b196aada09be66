package jsonexport

import (
	"bufio"
	"runtime"
	"sort"
	"strconv"

	"github.com/go-memscope/memscope/intern"
	"github.com/go-memscope/memscope/record"
)

type typeAccum struct {
	count       uint64
	totalBytes  uint64
	activeCount uint64
	activeBytes uint64
}

type memStatsAccum struct {
	totalBytes  uint64
	activeBytes uint64
	activeCount uint64
	peakBytes   uint64
	perType     map[string]*typeAccum
}

// accumulateMemStats makes one streaming pass over src to compute the
// memory_stats rollup before the allocations array is written, since
// §6.3 expects memory_stats ahead of the (potentially huge)
// allocations array. It only ever holds per-batch records plus O(1)
// scalar/per-type accumulators, preserving §4.11's bounded-memory
// guarantee.
func accumulateMemStats(src RecordSource, strings *intern.Table, batchSize int) *memStatsAccum {
	acc := &memStatsAccum{perType: make(map[string]*typeAccum)}
	n := src.Len()
	for start := 0; start < n; start += batchSize {
		for _, r := range src.Batch(start, batchSize) {
			acc.totalBytes += r.Size
			ta, ok := acc.perType[typeNameOf(r, strings)]
			if !ok {
				ta = &typeAccum{}
				acc.perType[typeNameOf(r, strings)] = ta
			}
			ta.count++
			ta.totalBytes += r.Size
			if r.Active() {
				acc.activeBytes += r.Size
				acc.activeCount++
				ta.activeCount++
				ta.activeBytes += r.Size
			}
		}
		if acc.activeBytes > acc.peakBytes {
			acc.peakBytes = acc.activeBytes
		}
		runtime.Gosched()
	}
	return acc
}

func typeNameOf(r *record.Allocation, strings *intern.Table) string {
	if !r.HasTypeName {
		return ""
	}
	if s, ok := strings.Resolve(r.TypeNameID); ok {
		return s
	}
	return ""
}

// writeMemoryAnalysis writes <base>_memory_analysis.json: per-record
// core fields, aggregate stats, and a per-type summary (§4.11).
func writeMemoryAnalysis(w *bufio.Writer, src RecordSource, strings *intern.Table, opts Options, exportTS uint64) error {
	opts = opts.resolved()
	acc := accumulateMemStats(src, strings, opts.BatchSize)

	active := opts.ActiveAllocationCount
	if opts.Source == SourceBinarySnapshot {
		active = int(acc.activeCount)
	}

	j := newJWriter(w)
	j.objStart()
	writeMetadata(j, exportTS, src.Len(), active, opts.Source)

	j.key("memory_stats")
	j.objStart()
	j.key("total_bytes")
	j.u64(acc.totalBytes)
	j.comma()
	j.key("active_bytes")
	j.u64(acc.activeBytes)
	j.comma()
	j.key("active_count")
	j.u64(acc.activeCount)
	j.comma()
	j.key("peak_bytes")
	j.u64(acc.peakBytes)
	j.comma()
	j.key("per_type")
	writePerTypeStats(j, acc.perType)
	j.objEnd()
	j.comma()

	j.key("allocations")
	j.arrStart()
	n := src.Len()
	first := true
	for start := 0; start < n; start += opts.BatchSize {
		for _, r := range src.Batch(start, opts.BatchSize) {
			if !first {
				j.comma()
			}
			first = false
			writeAllocationObject(j, r, strings)
		}
		runtime.Gosched()
	}
	j.arrEnd()
	j.objEnd()
	return j.flush()
}

func writePerTypeStats(j *jwriter, perType map[string]*typeAccum) {
	names := make([]string, 0, len(perType))
	for name := range perType {
		names = append(names, name)
	}
	sort.Strings(names)

	j.objStart()
	for i, name := range names {
		if i > 0 {
			j.comma()
		}
		ta := perType[name]
		j.key(name)
		j.objStart()
		j.key("count")
		j.u64(ta.count)
		j.comma()
		j.key("total_bytes")
		j.u64(ta.totalBytes)
		j.comma()
		j.key("active_count")
		j.u64(ta.activeCount)
		j.comma()
		j.key("active_bytes")
		j.u64(ta.activeBytes)
		j.objEnd()
	}
	j.objEnd()
}

func writeAllocationObject(j *jwriter, r *record.Allocation, strings *intern.Table) {
	j.objStart()
	j.key("id")
	j.u64(r.ID)
	j.comma()
	j.key("address")
	j.u64(r.Address)
	j.comma()
	j.key("size")
	j.u64(r.Size)
	j.comma()
	j.key("var_name")
	if r.HasVarName {
		j.nullableStr(strings.Resolve(r.VarNameID))
	} else {
		j.null()
	}
	j.comma()
	j.key("type_name")
	if r.HasTypeName {
		j.nullableStr(strings.Resolve(r.TypeNameID))
	} else {
		j.null()
	}
	j.comma()
	j.key("scope")
	if r.HasScopeID {
		j.str(strconv.FormatUint(uint64(r.ScopeID), 10))
	} else {
		j.null()
	}
	j.comma()
	j.key("thread_id")
	j.str(r.ThreadID)
	j.comma()
	j.key("timestamp_alloc")
	j.u64(r.TimestampAlloc)
	j.comma()
	j.key("timestamp_dealloc")
	j.nullableU64(r.TimestampDealloc, r.HasDealloc)
	j.comma()
	leaked := r.Enrichments != nil && r.Enrichments.IsLeaked
	j.key("is_leaked")
	j.boolean(leaked)
	j.comma()
	j.key("kind")
	j.str(r.Kind.String())
	j.comma()
	j.key("smart_pointer")
	if r.Kind == record.KindSmartPointer && r.SmartPointer != nil {
		writeSmartPointerObject(j, r.SmartPointer)
	} else {
		j.null()
	}
	j.objEnd()
}

func writeSmartPointerObject(j *jwriter, sp *record.SmartPointerInfo) {
	j.objStart()
	j.key("ptype")
	j.str(sp.PType.String())
	j.comma()
	j.key("data_address")
	j.u64(sp.DataAddress)
	j.comma()
	j.key("strong_count")
	j.u64(uint64(sp.StrongCount))
	j.comma()
	j.key("weak_count")
	j.u64(uint64(sp.WeakCount))
	j.comma()
	j.key("clone_of")
	j.nullableU64(sp.CloneOf, sp.HasCloneOf)
	j.comma()
	j.key("clones")
	j.arrStart()
	for i, id := range sp.Clones {
		if i > 0 {
			j.comma()
		}
		j.u64(id)
	}
	j.arrEnd()
	j.objEnd()
}
