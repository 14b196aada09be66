// Package aggregate implements the offline aggregator (spec C10): it
// discovers a directory of per-goroutine tlstrack spill files,
// reconstructs an active-table-shaped merge of their events, and
// produces the same canonical Snapshot (package snapshot) that the
// central store would, so package jsonexport works uniformly on
// either origin (§4.9).
//
// The "one mutable aggregator fed records one at a time" shape is
// kept from perfsession.Session.Update; Merge plays the role of that
// session's update loop, but the record types and merge rules are the
// engine's own (tlstrack events, not perf samples).
package aggregate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/aclements/go-moremath/stats"
	"github.com/go-memscope/memscope/clock"
	"github.com/go-memscope/memscope/record"
	"github.com/go-memscope/memscope/snapshot"
	"github.com/go-memscope/memscope/tlstrack"
)

var spillFileRE = regexp.MustCompile(`^memscope_thread_(\d+)\.bin$`)

// CallStackFrequency is one entry of the hottest-call-stacks rollup.
type CallStackFrequency struct {
	CallStackID uint32
	Count       uint64
}

// ThreadSummary is one per-thread entry of the aggregator's report
// (§4.9: "total allocations, peak bytes, lifetime").
type ThreadSummary struct {
	ThreadID          string
	TotalAllocations  uint64
	TotalDeallocations uint64
	PeakBytes         uint64
	MeanLifetimeNS    float64
}

// Report carries the cross-thread metrics §4.9 asks the aggregator to
// compute, alongside the merged Snapshot.
type Report struct {
	HottestCallStacks []CallStackFrequency
	Threads           []ThreadSummary
	OrphanDeallocs    int // deallocation events with no matching sampled allocation
	TruncatedThreads  []string

	// AllocationCountMean/StdDev summarize the spread of
	// per-thread total allocation counts, computed with
	// go-moremath/stats — a quick signal for whether load was
	// balanced across tracked goroutines or concentrated in a few.
	AllocationCountMean   float64
	AllocationCountStdDev float64
}

// Merge discovers *.bin/*.freq files in dir (§6.2 naming), merges
// their events into a unified record set keyed by timestamp, and
// computes the cross-thread rollups of §4.9. A truncated final file
// per thread (§4.8's cancellation contract) is tolerated: its
// recovered events are kept and the thread is listed in
// Report.TruncatedThreads, not treated as fatal.
func Merge(dir string) (*snapshot.Snapshot, *Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate: read dir: %w", err)
	}

	type threadFile struct {
		gid  string
		path string
	}
	var files []threadFile
	for _, e := range entries {
		if m := spillFileRE.FindStringSubmatch(e.Name()); m != nil {
			files = append(files, threadFile{gid: m[1], path: filepath.Join(dir, e.Name())})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].gid < files[j].gid })

	active := make(map[uint64]*record.Allocation)
	var allRecords []*record.Allocation
	report := &Report{}
	globalFreq := make(map[uint32]uint64)

	for _, tf := range files {
		result, err := tlstrack.ReadSpillFile(tf.path)
		if err != nil {
			return nil, nil, fmt.Errorf("aggregate: read %s: %w", tf.path, err)
		}
		if result.Truncated {
			report.TruncatedThreads = append(report.TruncatedThreads, tf.gid)
		}

		threadLabel := clock.GoroutineID(parseGID(tf.gid)).Label()
		var totalAlloc, totalDealloc uint64
		var peakBytes, activeBytes uint64
		var lifetimeSum uint64
		var lifetimeN uint64

		for _, ev := range result.Events {
			switch ev.Kind {
			case tlstrack.EventAlloc:
				r := &record.Allocation{
					ID:             clock.NextID(),
					Address:        ev.Address,
					Size:           ev.Size,
					TimestampAlloc: ev.TimestampNS,
					ThreadID:       threadLabel,
					CallStackID:    ev.CallStackID,
					HasCallStackID: true,
					Kind:           record.KindOwnedHeap,
				}
				active[ev.Address] = r
				allRecords = append(allRecords, r)
				totalAlloc++
				activeBytes += ev.Size
				if activeBytes > peakBytes {
					peakBytes = activeBytes
				}
			case tlstrack.EventDealloc:
				r, ok := active[ev.Address]
				if !ok {
					report.OrphanDeallocs++
					continue
				}
				delete(active, ev.Address)
				r.MarkFreed(ev.TimestampNS)
				totalDealloc++
				if activeBytes > r.Size {
					activeBytes -= r.Size
				} else {
					activeBytes = 0
				}
				if ev.TimestampNS >= r.TimestampAlloc {
					lifetimeSum += ev.TimestampNS - r.TimestampAlloc
					lifetimeN++
				}
			}
		}

		freq, err := tlstrack.ReadFreqFile(freqPathFor(tf.path))
		if err == nil {
			for id, count := range freq {
				globalFreq[id] += count
			}
		}

		mean := 0.0
		if lifetimeN > 0 {
			mean = float64(lifetimeSum) / float64(lifetimeN)
		}
		report.Threads = append(report.Threads, ThreadSummary{
			ThreadID:           threadLabel,
			TotalAllocations:   totalAlloc,
			TotalDeallocations: totalDealloc,
			PeakBytes:          peakBytes,
			MeanLifetimeNS:     mean,
		})
	}

	report.HottestCallStacks = hottest(globalFreq, 20)
	report.AllocationCountMean, report.AllocationCountStdDev = threadCountSpread(report.Threads)

	sort.SliceStable(allRecords, func(i, j int) bool {
		return allRecords[i].TimestampAlloc < allRecords[j].TimestampAlloc
	})

	snap := &snapshot.Snapshot{
		Header: snapshot.Header{
			Version:    snapshot.Version,
			TotalCount: uint32(len(allRecords)),
			ExportMode: snapshot.ModeFull,
		},
		Records: allRecords,
	}
	return snap, report, nil
}

func freqPathFor(binPath string) string {
	return binPath[:len(binPath)-len(".bin")] + ".freq"
}

func parseGID(s string) uint64 {
	var n uint64
	for _, c := range s {
		n = n*10 + uint64(c-'0')
	}
	return n
}

func hottest(freq map[uint32]uint64, limit int) []CallStackFrequency {
	out := make([]CallStackFrequency, 0, len(freq))
	for id, count := range freq {
		out = append(out, CallStackFrequency{CallStackID: id, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].CallStackID < out[j].CallStackID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// threadCountSpread uses go-moremath/stats to summarize the spread of
// per-thread allocation counts, the numeric rollup §4.9 calls for
// beyond simple per-thread totals.
func threadCountSpread(threads []ThreadSummary) (mean, stddev float64) {
	if len(threads) == 0 {
		return 0, 0
	}
	xs := make([]float64, len(threads))
	for i, th := range threads {
		xs[i] = float64(th.TotalAllocations)
	}
	sample := stats.Sample{Xs: xs}
	return sample.Mean(), sample.StdDev()
}
