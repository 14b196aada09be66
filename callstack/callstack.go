// Package callstack implements the call-stack normalizer (spec C2): it
// collapses identical frame-address sequences into a stable, compact
// CallStackID, and can optionally resolve and demangle those frames
// into human-readable symbols.
//
// The table is a hash-keyed map ("identical sequences collapse to one
// entry") guarded by a single sync.RWMutex; unlike the string
// interner it is not sharded, so all writers contend on one lock. The
// symbolization step is adapted from
// perfsession/symbolize.go's "resolve address -> function/file/line,
// cache per binary" approach, generalized from ELF/DWARF lookups to
// runtime.CallersFrames since Go binaries carry their own line tables.
package callstack

import (
	"hash/maphash"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ianlancetaylor/demangle"
)

// ID is a compact, process-unique identifier for a distinct call
// stack (sequence of program-counter frames).
type ID uint32

// Frame is one resolved, optionally demangled stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
	PC       uintptr
}

// Normalizer deduplicates frame-address sequences into IDs. It is
// safe for concurrent use and never evicts entries (spec §4.2).
type Normalizer struct {
	seed maphash.Seed

	mu      sync.RWMutex
	byHash  map[uint64][]entry
	frames  [][]uintptr // index == ID
	nextID  uint32

	stride  uint64 // capture throttle: 1 means capture every allocation
	counter atomic.Uint64
}

type entry struct {
	frames []uintptr
	id     ID
}

// New creates an empty Normalizer. A stride of 1 captures every call
// stack; a larger stride throttles capture to every Nth call,
// deterministically, per §4.2's "must be deterministic per
// configuration" requirement.
func New(stride uint64) *Normalizer {
	if stride == 0 {
		stride = 1
	}
	return &Normalizer{
		seed:   maphash.MakeSeed(),
		byHash: make(map[uint64][]entry),
		stride: stride,
	}
}

// ShouldCapture reports whether the Nth call (n starting at 0) should
// capture a backtrace under the configured stride, and advances the
// internal counter. Deterministic given the sequence of calls.
func (n *Normalizer) ShouldCapture() bool {
	c := n.counter.Add(1) - 1
	return c%n.stride == 0
}

// Capture records the calling goroutine's stack, skipping skip frames
// (in addition to Capture's own frame).
func Capture(skip int) []uintptr {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

func (n *Normalizer) hashFrames(frames []uintptr) uint64 {
	var h maphash.Hash
	h.SetSeed(n.seed)
	buf := make([]byte, 8)
	for _, pc := range frames {
		for i := 0; i < 8; i++ {
			buf[i] = byte(pc >> (8 * i))
		}
		h.Write(buf)
	}
	return h.Sum64()
}

func framesEqual(a, b []uintptr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Intern returns the stable ID for frames, allocating a new one on
// first sight. Identical sequences always collapse to the same ID.
func (n *Normalizer) Intern(frames []uintptr) ID {
	h := n.hashFrames(frames)

	n.mu.RLock()
	for _, e := range n.byHash[h] {
		if framesEqual(e.frames, frames) {
			n.mu.RUnlock()
			return e.id
		}
	}
	n.mu.RUnlock()

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.byHash[h] {
		if framesEqual(e.frames, frames) {
			return e.id
		}
	}
	cp := make([]uintptr, len(frames))
	copy(cp, frames)
	id := ID(n.nextID)
	n.nextID++
	n.byHash[h] = append(n.byHash[h], entry{frames: cp, id: id})
	n.frames = append(n.frames, cp)
	return id
}

// Lookup returns the frame-address sequence for id, if known.
func (n *Normalizer) Lookup(id ID) ([]uintptr, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if int(id) >= len(n.frames) {
		return nil, false
	}
	return n.frames[id], true
}

// Symbolize resolves id's frames to function/file/line using the
// running binary's own symbol table, demangling any mangled C++/Rust
// function names along the way (spec §4.2: "optionally stores
// symbolized frames...when backtrace capture is enabled").
func (n *Normalizer) Symbolize(id ID) []Frame {
	pcs, ok := n.Lookup(id)
	if !ok || len(pcs) == 0 {
		return nil
	}
	out := make([]Frame, 0, len(pcs))
	frames := runtime.CallersFrames(pcs)
	for {
		f, more := frames.Next()
		out = append(out, Frame{
			Function: demangle.Filter(f.Function),
			File:     f.File,
			Line:     f.Line,
			PC:       f.PC,
		})
		if !more {
			break
		}
	}
	return out
}

// AllSymbolized returns every interned call stack, resolved to frames,
// keyed by ID. Used by package snapshot to dump the call-stack table
// on export: the binary format stores resolved frames rather than raw
// PCs so a snapshot remains readable after the process that wrote it
// has exited (PC values are only meaningful within their own process).
func (n *Normalizer) AllSymbolized() map[ID][]Frame {
	n.mu.RLock()
	ids := make([]ID, len(n.frames))
	for i := range n.frames {
		ids[i] = ID(i)
	}
	n.mu.RUnlock()

	out := make(map[ID][]Frame, len(ids))
	for _, id := range ids {
		out[id] = n.Symbolize(id)
	}
	return out
}

// Len returns the number of distinct call stacks interned so far.
func (n *Normalizer) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.frames)
}
