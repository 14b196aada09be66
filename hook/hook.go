// Package hook is the call-site facade that stands in for the source
// language's pluggable global allocator (spec C5). Go does not let a
// library intercept make/new, so instead of a true allocator override
// this package exposes Alloc/Free entry points that host code (or the
// annotate/scope helpers built on top of it) calls explicitly at the
// moment it creates or releases a tracked value, following the §4.4
// five-step procedure: reentrancy check, set flag, perform the real
// allocation, record it in the store, clear the flag.
package hook

import (
	"sync"
	"sync/atomic"

	"github.com/go-memscope/memscope/callstack"
	"github.com/go-memscope/memscope/clock"
	"github.com/go-memscope/memscope/record"
	"github.com/go-memscope/memscope/store"
)

// retryAttempts is the fixed bounded-retry budget for contended
// try-lock acquisitions against the store, per the Open Question
// resolution in SPEC_FULL.md (3 attempts, no backoff — a failed
// attempt means the store is busy right now, not that it will still
// be busy microseconds later).
const retryAttempts = 3

// Hook wires the call-site facade to a Store and a call-stack
// normalizer. The zero value is not usable; construct with New.
type Hook struct {
	store   *store.Store
	stacks  *callstack.Normalizer
	enabled atomic.Bool

	lostAllocs atomic.Uint64
	lostFrees  atomic.Uint64

	// reentrant holds one entry per goroutine currently inside an
	// Alloc/Free call on this Hook, the closest Go equivalent of the
	// source language's thread-local reentrancy flag (§4.4 step 1).
	reentrant sync.Map // clock.GoroutineID -> struct{}
}

// New constructs a Hook bound to s, with call-stack capture throttled
// by stride (passed straight to callstack.New; see its doc for the
// sampling contract).
func New(s *store.Store, stride uint64) *Hook {
	h := &Hook{store: s, stacks: callstack.New(stride)}
	h.enabled.Store(true)
	return h
}

// Stacks returns the call-stack normalizer this hook captures into,
// so callers (package memscope's export path) can resolve
// CallStackIDs to symbolized frames without reaching into the hook's
// internals.
func (h *Hook) Stacks() *callstack.Normalizer { return h.stacks }

// Enabled reports whether the hook is currently in Active mode
// (§4.4). It is read once per Alloc/Free call via atomic.Bool so
// toggling SetEnabled never blocks an in-flight allocation.
func (h *Hook) Enabled() bool { return h.enabled.Load() }

// SetEnabled switches the hook between Active and Disabled mode.
// Disabled mode short-circuits Alloc/Free to plain bookkeeping-free
// no-ops, matching §4.4's "tracking can be turned off at runtime
// without restarting the process."
func (h *Hook) SetEnabled(v bool) { h.enabled.Store(v) }

// LostEvents returns the number of allocation and deallocation events
// dropped so far because the store could not be reached within the
// retry budget, or because of reentrancy. A Free whose address has no
// active record also counts as a lost deallocation.
func (h *Hook) LostEvents() (allocs, frees uint64) {
	return h.lostAllocs.Load(), h.lostFrees.Load()
}

func (h *Hook) enterReentrant(gid clock.GoroutineID) bool {
	_, alreadyIn := h.reentrant.LoadOrStore(gid, struct{}{})
	return !alreadyIn
}

func (h *Hook) leaveReentrant(gid clock.GoroutineID) {
	h.reentrant.Delete(gid)
}

// Alloc records a newly observed allocation of size bytes at address.
// It returns the Allocation record on success, or nil if the event was
// dropped (disabled hook, reentrant call, or the store stayed
// contended for the whole retry budget).
//
// address is whatever the caller already allocated by other means
// (e.g. the backing array of a make() slice, obtained via unsafe, or a
// synthetic range for a non-heap-backed tracked variable). Alloc never
// allocates memory on the tracked program's behalf; it only observes.
func (h *Hook) Alloc(address, size uint64) *record.Allocation {
	if !h.Enabled() {
		return nil
	}
	gid := clock.CurrentGoroutineID()
	if !h.enterReentrant(gid) {
		// A tracked allocation happened while already inside Alloc/Free
		// on this goroutine (e.g. the store's own bookkeeping touched
		// something instrumented). Drop rather than recurse.
		h.lostAllocs.Add(1)
		return nil
	}
	defer h.leaveReentrant(gid)

	r := &record.Allocation{
		ID:             clock.NextID(),
		Address:        address,
		Size:           size,
		TimestampAlloc: clock.Now(),
		ThreadID:       gid.Label(),
		Kind:           record.KindOwnedHeap,
	}
	if h.stacks.ShouldCapture() {
		pcs := callstack.Capture(2)
		r.CallStackID = uint32(h.stacks.Intern(pcs))
		r.HasCallStackID = true
	}

	for attempt := 0; attempt < retryAttempts; attempt++ {
		if h.store.TryInsert(r) {
			return r
		}
	}
	h.lostAllocs.Add(1)
	return nil
}

// Free records that the allocation at address was released at the
// current time. It returns the freed record and true on success;
// false if the event was dropped (disabled hook, reentrant call,
// unknown address, or sustained store contention).
func (h *Hook) Free(address uint64) (*record.Allocation, bool) {
	if !h.Enabled() {
		return nil, false
	}
	gid := clock.CurrentGoroutineID()
	if !h.enterReentrant(gid) {
		h.lostFrees.Add(1)
		return nil, false
	}
	defer h.leaveReentrant(gid)

	ts := clock.Now()
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if r, ok := h.store.TryFree(address, ts); ok {
			return r, true
		}
	}
	h.lostFrees.Add(1)
	return nil, false
}

// TrackedAlloc demonstrates how host code wires a real allocation
// through the hook: it performs the actual make([]T, n), reads the
// backing array's real numeric address via unsafe (the value is only
// ever used as a map key here, never dereferenced), and reports it to
// Alloc. A finalizer on the returned
// slice's backing array reports the matching Free when the garbage
// collector reclaims it, since Go has no explicit free to call.
func TrackedAlloc[T any](h *Hook, n int) []T {
	s := make([]T, n)
	if n == 0 {
		return s
	}
	var zero T
	addr := sliceAddress(s)
	h.Alloc(addr, uint64(n)*sizeOf(zero))
	runtimeSetFreeFinalizer(h, &s[0], addr)
	return s
}
