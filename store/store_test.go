package store

import (
	"testing"

	"github.com/go-memscope/memscope/record"
)

func TestInsertAndFreeUpdatesStats(t *testing.T) {
	s := New(10)
	r := &record.Allocation{ID: 1, Address: 0x1000, Size: 1024, TimestampAlloc: 1}
	if !s.TryInsert(r) {
		t.Fatalf("TryInsert failed")
	}
	stats := s.Snapshot()
	if stats.TotalAllocations != 1 || stats.ActiveAllocationCount != 1 || stats.ActiveBytes != 1024 {
		t.Fatalf("unexpected stats after insert: %+v", stats)
	}
	if stats.PeakActiveBytes != 1024 {
		t.Fatalf("PeakActiveBytes = %d, want 1024", stats.PeakActiveBytes)
	}

	freed, ok := s.TryFree(0x1000, 500)
	if !ok {
		t.Fatalf("TryFree failed")
	}
	if !freed.HasDealloc || freed.TimestampDealloc != 500 {
		t.Fatalf("freed record not marked correctly: %+v", freed)
	}
	stats = s.Snapshot()
	if stats.ActiveAllocationCount != 0 || stats.ActiveBytes != 0 {
		t.Fatalf("unexpected stats after free: %+v", stats)
	}
	if stats.TotalDeallocations != 1 {
		t.Fatalf("TotalDeallocations = %d, want 1", stats.TotalDeallocations)
	}
	if stats.PeakActiveBytes != 1024 {
		t.Fatalf("PeakActiveBytes should stay monotonic: %+v", stats)
	}
}

func TestHistoryBoundEvictsOldest(t *testing.T) {
	s := New(1)
	for i := uint64(1); i <= 3; i++ {
		addr := 0x1000 + i
		r := &record.Allocation{ID: i, Address: addr, Size: 8, TimestampAlloc: i}
		s.TryInsert(r)
		s.TryFree(addr, i+1)
	}
	h := s.AllHistory()
	if len(h) != 1 {
		t.Fatalf("len(history) = %d, want 1 (cap=1)", len(h))
	}
	if h[0].ID != 3 {
		t.Fatalf("expected most recent record retained, got id %d", h[0].ID)
	}
}

func TestFreeUnknownAddressFails(t *testing.T) {
	s := New(10)
	if _, ok := s.TryFree(0xdead, 1); ok {
		t.Fatalf("TryFree of unknown address unexpectedly succeeded")
	}
}

func TestFastModeSkipsHistory(t *testing.T) {
	s := New(10)
	s.FastMode.Store(true)
	r := &record.Allocation{ID: 1, Address: 0x2000, Size: 16, TimestampAlloc: 1}
	s.TryInsert(r)
	s.TryFree(0x2000, 2)
	if len(s.AllHistory()) != 0 {
		t.Fatalf("fast mode should skip history insertion")
	}
	stats := s.Snapshot()
	if stats.ActiveAllocationCount != 0 {
		t.Fatalf("fast mode should still maintain the minimum counter set")
	}
}

func TestActiveSnapshotConsistentDuringConcurrentInsert(t *testing.T) {
	s := New(1000)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := uint64(0); i < 1000; i++ {
			s.TryInsert(&record.Allocation{ID: i, Address: 0x3000 + i, Size: 1, TimestampAlloc: i})
		}
	}()
	for i := 0; i < 100; i++ {
		for _, r := range s.AllActive() {
			if r == nil {
				t.Fatalf("nil record in active snapshot")
			}
		}
	}
	<-done
}
