package enrich

import (
	"testing"

	"github.com/go-memscope/memscope/intern"
	"github.com/go-memscope/memscope/record"
	"github.com/go-memscope/memscope/scope"
)

func TestLifetimeBucketing(t *testing.T) {
	instant := &record.Allocation{ID: 1, TimestampAlloc: 0}
	instant.MarkFreed(500_000) // 0.5ms
	short := &record.Allocation{ID: 2, TimestampAlloc: 0}
	short.MarkFreed(5_000_000) // 5ms
	active := &record.Allocation{ID: 3, TimestampAlloc: 0}

	records := []*record.Allocation{instant, short, active}
	LifetimeBucketing(records, DefaultThresholds())

	if instant.Enrichments.LifetimeBucket != record.LifetimeInstant {
		t.Errorf("instant bucket = %v", instant.Enrichments.LifetimeBucket)
	}
	if short.Enrichments.LifetimeBucket != record.LifetimeShort {
		t.Errorf("short bucket = %v", short.Enrichments.LifetimeBucket)
	}
	if active.Enrichments.LifetimeBucket != record.LifetimeUnknown {
		t.Errorf("active bucket = %v, want unknown", active.Enrichments.LifetimeBucket)
	}
}

func TestLeakCandidacy(t *testing.T) {
	tr := scope.New()
	id := tr.Enter("fn")
	tr.Exit(id)

	leaked := &record.Allocation{ID: 1, ScopeID: uint32(id), HasScopeID: true}
	notLeaked := &record.Allocation{ID: 2}
	freed := &record.Allocation{ID: 3, ScopeID: uint32(id), HasScopeID: true}
	freed.MarkFreed(10)

	LeakCandidacy([]*record.Allocation{leaked, notLeaked, freed}, tr)

	if leaked.Enrichments == nil || !leaked.Enrichments.IsLeaked {
		t.Errorf("expected leaked record to be flagged")
	}
	if notLeaked.Enrichments != nil && notLeaked.Enrichments.IsLeaked {
		t.Errorf("record with no scope should never be a leak candidate")
	}
	if freed.Enrichments != nil && freed.Enrichments.IsLeaked {
		t.Errorf("freed record should not be flagged as leaked")
	}
}

func TestFragmentationHistogramBucketsGaps(t *testing.T) {
	a := &record.Allocation{ID: 1, Address: 0x1000, Size: 16}
	b := &record.Allocation{ID: 2, Address: 0x1100, Size: 16} // gap of 0xF0 after a
	c := &record.Allocation{ID: 3, Address: 0x2000, Size: 16} // much larger gap after b

	hist := FragmentationHistogram([]*record.Allocation{a, b, c}, 4)
	if len(hist) != 4 {
		t.Fatalf("len(hist) = %d, want 4", len(hist))
	}
	total := uint64(0)
	for _, c := range hist {
		total += c
	}
	if total != 2 {
		t.Fatalf("expected 2 gaps counted, got %d", total)
	}
	if a.Enrichments == nil || b.Enrichments == nil {
		t.Fatalf("expected FragmentationGroup to be set on records with a following gap")
	}
	if a.Enrichments.FragmentationGroup == b.Enrichments.FragmentationGroup {
		t.Fatalf("expected the larger gap to land in a different bucket")
	}
}

func TestFragmentationHistogramUniformGaps(t *testing.T) {
	a := &record.Allocation{ID: 1, Address: 0x1000, Size: 16}
	b := &record.Allocation{ID: 2, Address: 0x1100, Size: 16}
	c := &record.Allocation{ID: 3, Address: 0x1200, Size: 16}

	hist := FragmentationHistogram([]*record.Allocation{a, b, c}, 4)
	if hist[0] != 2 {
		t.Fatalf("uniform gaps should all land in bucket 0, got histogram %v", hist)
	}
}

func TestCloneGraph(t *testing.T) {
	owner := &record.Allocation{ID: 1, Kind: record.KindSmartPointer, SmartPointer: &record.SmartPointerInfo{PType: record.SmartRc}}
	clone := &record.Allocation{ID: 2, Kind: record.KindSmartPointer, SmartPointer: &record.SmartPointerInfo{PType: record.SmartRc, CloneOf: 1, HasCloneOf: true}}

	edges := CloneGraph([]*record.Allocation{owner, clone})
	if len(edges) != 1 || edges[0] != (CloneEdge{From: 1, To: 2}) {
		t.Fatalf("unexpected edges: %+v", edges)
	}
}

func TestConcurrencySummary(t *testing.T) {
	arc := &record.Allocation{ID: 1, Kind: record.KindSmartPointer, SmartPointer: &record.SmartPointerInfo{PType: record.SmartArc}}
	rc := &record.Allocation{ID: 2, Kind: record.KindSmartPointer, SmartPointer: &record.SmartPointerInfo{PType: record.SmartRc}}
	owned := &record.Allocation{ID: 3, Kind: record.KindOwnedHeap}

	summary := Summarize([]*record.Allocation{arc, rc, owned})
	if summary.Arc != 1 || summary.Rc != 1 || summary.Owned != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if arc.Enrichments == nil || !arc.Enrichments.ConcurrencyShared {
		t.Fatalf("expected Arc record to be flagged as concurrency-shared")
	}
}

func TestPerTypeAggregates(t *testing.T) {
	strs := intern.New()
	typeID := strs.Intern("Vec<i32>")
	r1 := &record.Allocation{ID: 1, Size: 10, TypeNameID: typeID, HasTypeName: true}
	r1.MarkFreed(1_000_000) // 1ms
	r2 := &record.Allocation{ID: 2, Size: 20, TypeNameID: typeID, HasTypeName: true}
	r2.MarkFreed(3_000_000) // 3ms

	aggs := PerTypeAggregates([]*record.Allocation{r1, r2}, strs)
	if len(aggs) != 1 {
		t.Fatalf("len(aggs) = %d, want 1", len(aggs))
	}
	agg := aggs[0]
	if agg.TypeName != "Vec<i32>" || agg.Count != 2 || agg.TotalBytes != 30 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
	if agg.AverageLifetimeMS != 2 {
		t.Fatalf("AverageLifetimeMS = %v, want 2", agg.AverageLifetimeMS)
	}
}

func TestFragmentationSegmentRoundTrips(t *testing.T) {
	histogram := []uint64{3, 0, 7, 2, 9}
	seg := EncodeFragmentationSegment(histogram)
	if seg.Bit != (1 << 0) {
		t.Fatalf("Bit = %v, want MetricsFragmentation", seg.Bit)
	}
	got := DecodeFragmentationSegment(seg.Payload)
	if len(got) != len(histogram) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(histogram))
	}
	for i := range histogram {
		if got[i] != histogram[i] {
			t.Fatalf("got[%d] = %d, want %d", i, got[i], histogram[i])
		}
	}
}

func TestConcurrencySegmentRoundTrips(t *testing.T) {
	summary := ConcurrencySummary{Arc: 1, Rc: 2, Box: 3, Weak: 4, Owned: 5}
	seg := EncodeConcurrencySegment(summary)
	got := DecodeConcurrencySegment(seg.Payload)
	if got != summary {
		t.Fatalf("got %+v, want %+v", got, summary)
	}
}
