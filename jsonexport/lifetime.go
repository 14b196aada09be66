package jsonexport

import (
	"bufio"
	"runtime"

	"github.com/go-memscope/memscope/scope"
)

// writeLifetime writes <base>_lifetime.json: records augmented with
// lifetime_ms and scope associations, plus the scope tree (§4.11,
// §6.3: "metadata, scopes[], lifetime_events[]").
func writeLifetime(w *bufio.Writer, src RecordSource, scopes *scope.Tracker, opts Options, exportTS uint64) error {
	opts = opts.resolved()

	j := newJWriter(w)
	j.objStart()
	writeMetadata(j, exportTS, src.Len(), opts.ActiveAllocationCount, opts.Source)

	j.key("scopes")
	j.arrStart()
	if scopes != nil {
		nodes := scopes.All()
		for i, n := range nodes {
			if i > 0 {
				j.comma()
			}
			writeScopeNode(j, n)
		}
	}
	j.arrEnd()
	j.comma()

	j.key("lifetime_events")
	j.arrStart()
	n := src.Len()
	first := true
	for start := 0; start < n; start += opts.BatchSize {
		for _, r := range src.Batch(start, opts.BatchSize) {
			if !r.HasDealloc {
				continue
			}
			if !first {
				j.comma()
			}
			first = false
			j.objStart()
			j.key("id")
			j.u64(r.ID)
			j.comma()
			j.key("timestamp_alloc")
			j.u64(r.TimestampAlloc)
			j.comma()
			j.key("timestamp_dealloc")
			j.u64(r.TimestampDealloc)
			j.comma()
			lifetimeMS := 0.0
			bucket := "unknown"
			if r.Enrichments != nil {
				lifetimeMS = r.Enrichments.LifetimeMS
				bucket = r.Enrichments.LifetimeBucket.String()
			} else if ns, ok := r.LifetimeNS(); ok {
				lifetimeMS = float64(ns) / 1e6
			}
			j.key("lifetime_ms")
			j.f64(lifetimeMS)
			j.comma()
			j.key("lifetime_bucket")
			j.str(bucket)
			j.comma()
			j.key("scope")
			j.nullableU64(uint64(r.ScopeID), r.HasScopeID)
			j.objEnd()
		}
		runtime.Gosched()
	}
	j.arrEnd()
	j.objEnd()
	return j.flush()
}

func writeScopeNode(j *jwriter, n scope.NodeInfo) {
	j.objStart()
	j.key("id")
	j.u64(uint64(n.ID))
	j.comma()
	j.key("parent_id")
	j.nullableU64(uint64(n.ParentID), n.HasParent)
	j.comma()
	j.key("name")
	j.str(n.Name)
	j.comma()
	j.key("enter_ns")
	j.u64(n.EnterNS)
	j.comma()
	j.key("exit_ns")
	j.nullableU64(n.ExitNS, n.Exited)
	j.comma()
	j.key("allocation_count")
	j.u64(n.Metrics.AllocationCount)
	j.comma()
	j.key("total_bytes")
	j.u64(n.Metrics.TotalBytes)
	j.comma()
	j.key("peak_concurrent_vars")
	j.i(n.Metrics.PeakConcurrentVars)
	j.comma()
	j.key("average_lifetime_ns")
	j.f64(n.Metrics.AverageLifetimeNS())
	j.objEnd()
}
