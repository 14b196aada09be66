package jsonexport

import (
	"bufio"
	"runtime"
	"sort"
	"time"

	"github.com/go-memscope/memscope/callstack"
	"github.com/go-memscope/memscope/scale"
)

// throughputBuckets sizes the allocations-over-time histogram in the
// performance file's throughput section.
const throughputBuckets = 10

// writePerformance writes <base>_performance.json: throughput/timing
// metrics computed during export, plus call-stack frequencies (§4.11,
// §6.3: "metadata, throughput, hottest_call_stacks[]").
func writePerformance(w *bufio.Writer, src RecordSource, opts Options, exportTS uint64) error {
	opts = opts.resolved()
	start := time.Now()

	freq := make(map[uint32]uint64)
	var minTS, maxTS uint64
	haveRange := false
	n := src.Len()
	for s := 0; s < n; s += opts.BatchSize {
		for _, r := range src.Batch(s, opts.BatchSize) {
			if r.HasCallStackID {
				freq[r.CallStackID]++
			}
			if !haveRange || r.TimestampAlloc < minTS {
				minTS = r.TimestampAlloc
			}
			if !haveRange || r.TimestampAlloc > maxTS {
				maxTS = r.TimestampAlloc
			}
			haveRange = true
		}
		runtime.Gosched()
	}

	type freqEntry struct {
		id    uint32
		count uint64
	}
	entries := make([]freqEntry, 0, len(freq))
	for id, c := range freq {
		entries = append(entries, freqEntry{id, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].id < entries[j].id
	})
	if len(entries) > 20 {
		entries = entries[:20]
	}

	// Bucket allocations over time using the same normalize-then-
	// bucket approach package enrich uses for the fragmentation
	// histogram (scale.Linear maps [minTS, maxTS] to [0,1], then the
	// result is scaled to a bucket index). A second streaming pass is
	// needed because the bucket boundaries aren't known until minTS/
	// maxTS have been seen across every record.
	overTime := make([]uint64, throughputBuckets)
	if haveRange && maxTS > minTS {
		lin := scale.NewLinear([]float64{float64(minTS), float64(maxTS)})
		for s := 0; s < n; s += opts.BatchSize {
			for _, r := range src.Batch(s, opts.BatchSize) {
				idx := int(lin.Of(float64(r.TimestampAlloc)) * float64(throughputBuckets))
				if idx >= throughputBuckets {
					idx = throughputBuckets - 1
				}
				if idx < 0 {
					idx = 0
				}
				overTime[idx]++
			}
			runtime.Gosched()
		}
	} else if haveRange {
		// Every record shares one timestamp; scale.Linear's width is
		// zero, which would divide by zero, so put everything in the
		// first bucket instead of calling Of.
		for s := 0; s < n; s += opts.BatchSize {
			overTime[0] += uint64(len(src.Batch(s, opts.BatchSize)))
		}
	}

	elapsed := time.Since(start)

	j := newJWriter(w)
	j.objStart()
	writeMetadata(j, exportTS, n, opts.ActiveAllocationCount, opts.Source)

	j.key("throughput")
	j.objStart()
	j.key("records_exported")
	j.i(n)
	j.comma()
	j.key("export_duration_ns")
	j.i64(elapsed.Nanoseconds())
	j.comma()
	recordSpanNS := uint64(0)
	if haveRange && maxTS >= minTS {
		recordSpanNS = maxTS - minTS
	}
	j.key("record_timestamp_span_ns")
	j.u64(recordSpanNS)
	j.comma()
	j.key("allocations_over_time")
	j.arrStart()
	for i, c := range overTime {
		if i > 0 {
			j.comma()
		}
		j.u64(c)
	}
	j.arrEnd()
	j.objEnd()
	j.comma()

	j.key("hottest_call_stacks")
	j.arrStart()
	for i, e := range entries {
		if i > 0 {
			j.comma()
		}
		j.objStart()
		j.key("call_stack_id")
		j.u64(uint64(e.id))
		j.comma()
		j.key("count")
		j.u64(e.count)
		j.comma()
		j.key("frames")
		writeFrames(j, opts.CallStacks[callstack.ID(e.id)])
		j.objEnd()
	}
	j.arrEnd()
	j.objEnd()
	return j.flush()
}

func writeFrames(j *jwriter, frames []callstack.Frame) {
	j.arrStart()
	for i, f := range frames {
		if i > 0 {
			j.comma()
		}
		j.objStart()
		j.key("function")
		j.str(f.Function)
		j.comma()
		j.key("file")
		j.str(f.File)
		j.comma()
		j.key("line")
		j.i(f.Line)
		j.objEnd()
	}
	j.arrEnd()
}
