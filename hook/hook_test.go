package hook

import (
	"testing"

	"github.com/go-memscope/memscope/store"
)

func newTestHook() (*Hook, *store.Store) {
	s := store.New(10)
	return New(s, 1), s
}

func TestAllocFreeRoundTrip(t *testing.T) {
	h, s := newTestHook()
	r := h.Alloc(0x1000, 64)
	if r == nil {
		t.Fatalf("Alloc returned nil")
	}
	if _, ok := s.Active(0x1000); !ok {
		t.Fatalf("allocation not visible in store")
	}
	freed, ok := h.Free(0x1000)
	if !ok {
		t.Fatalf("Free failed")
	}
	if !freed.HasDealloc {
		t.Fatalf("freed record missing dealloc timestamp")
	}
}

func TestDisabledHookIsNoop(t *testing.T) {
	h, s := newTestHook()
	h.SetEnabled(false)
	if r := h.Alloc(0x2000, 8); r != nil {
		t.Fatalf("disabled hook returned a record")
	}
	if _, ok := s.Active(0x2000); ok {
		t.Fatalf("disabled hook should not have touched the store")
	}
}

func TestFreeUnknownAddressCountsLost(t *testing.T) {
	h, _ := newTestHook()
	if _, ok := h.Free(0xdead); ok {
		t.Fatalf("Free of unknown address unexpectedly succeeded")
	}
	_, frees := h.LostEvents()
	if frees != 1 {
		t.Fatalf("LostEvents frees = %d, want 1", frees)
	}
}

func TestTrackedAllocRecordsAllocation(t *testing.T) {
	h, s := newTestHook()
	xs := TrackedAlloc[int64](h, 4)
	if len(xs) != 4 {
		t.Fatalf("len(xs) = %d, want 4", len(xs))
	}
	stats := s.Snapshot()
	if stats.TotalAllocations != 1 {
		t.Fatalf("TotalAllocations = %d, want 1", stats.TotalAllocations)
	}
}

func TestTrackedAllocZeroLength(t *testing.T) {
	h, s := newTestHook()
	xs := TrackedAlloc[byte](h, 0)
	if xs == nil {
		t.Fatalf("TrackedAlloc(0) returned nil slice")
	}
	stats := s.Snapshot()
	if stats.TotalAllocations != 0 {
		t.Fatalf("zero-length alloc should not be tracked, got %d", stats.TotalAllocations)
	}
}
