package aggregate

import (
	"testing"

	"github.com/go-memscope/memscope/tlstrack"
)

func writeThreadFixture(t *testing.T, dir string, seed uint64, allocs int) {
	t.Helper()
	policy := tlstrack.DefaultPolicy(seed)
	policy.LargeRate = 1.0
	tr, err := tlstrack.Init(dir, policy)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < allocs; i++ {
		tlstrack.TrackAlloc(uint64(0x1000+i), 100000, 1)
	}
	for i := 0; i < allocs; i++ {
		tlstrack.TrackDealloc(uint64(0x1000+i), 1)
	}
	if err := tr.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestMergeProducesSnapshotAndReport(t *testing.T) {
	dir := t.TempDir()
	writeThreadFixture(t, dir, 1, 5)

	snap, report, err := Merge(dir)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(snap.Records) != 5 {
		t.Fatalf("len(Records) = %d, want 5", len(snap.Records))
	}
	for _, r := range snap.Records {
		if !r.HasDealloc {
			t.Fatalf("expected all 5 allocations to be matched with their deallocation")
		}
	}
	if len(report.Threads) != 1 {
		t.Fatalf("expected one thread summary, got %d", len(report.Threads))
	}
	if report.Threads[0].TotalAllocations != 5 || report.Threads[0].TotalDeallocations != 5 {
		t.Fatalf("unexpected thread summary: %+v", report.Threads[0])
	}
	if len(report.HottestCallStacks) == 0 {
		t.Fatalf("expected at least one hot call stack entry")
	}
}

func TestMergeEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	snap, report, err := Merge(dir)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(snap.Records) != 0 || len(report.Threads) != 0 {
		t.Fatalf("expected empty merge result, got %d records, %d threads", len(snap.Records), len(report.Threads))
	}
}
