package tlstrack

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-memscope/memscope/clock"
	"github.com/go-memscope/memscope/internal/binbuf"
)

// defaultBufferEvents bounds the in-memory slab before a synchronous
// spill to disk; §4.8 suggests an on-the-order-of-64KiB buffer, which
// at encodedEventSize bytes per event is roughly this many events.
const defaultBufferEvents = 64*1024/encodedEventSize + 1

// Tracker is the per-goroutine lock-free tracking state: an append-
// only event slab, a call-stack frequency map driving sampling
// escalation, and the open spill file. Nothing in Tracker is shared
// across goroutines, so it needs no locks at all.
type Tracker struct {
	outputDir string
	policy    SamplingPolicy
	gid       clock.GoroutineID
	rng       *rand.Rand

	freq map[uint32]uint64

	buf      []Event
	bufCap   int
	binFile  *os.File
	writeErr error
}

var registry sync.Map // clock.GoroutineID -> *Tracker

// Init creates and registers this goroutine's Tracker, opening its
// spill file in outputDir. It must be called once per goroutine
// before any TrackAlloc/TrackDealloc call on that goroutine.
func Init(outputDir string, policy SamplingPolicy) (*Tracker, error) {
	gid := clock.CurrentGoroutineID()
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("tlstrack: create output dir: %w", err)
	}
	binPath := filepath.Join(outputDir, fmt.Sprintf("memscope_thread_%d.bin", gid))
	f, err := os.Create(binPath)
	if err != nil {
		return nil, fmt.Errorf("tlstrack: create spill file: %w", err)
	}
	t := &Tracker{
		outputDir: outputDir,
		policy:    policy,
		gid:       gid,
		rng:       newGoroutineRNG(policy.GlobalSeed, gid),
		freq:      make(map[uint32]uint64),
		bufCap:    defaultBufferEvents,
		binFile:   f,
	}
	registry.Store(gid, t)
	return t, nil
}

// Current returns the calling goroutine's Tracker, if Init has been
// called on it.
func Current() (*Tracker, bool) {
	gid := clock.CurrentGoroutineID()
	v, ok := registry.Load(gid)
	if !ok {
		return nil, false
	}
	return v.(*Tracker), true
}

// TrackAlloc records an allocation event if the calling goroutine has
// an initialized Tracker and the sampling policy selects it. It is a
// no-op (not an error) on an untracked goroutine, matching the
// "sampling, not a guarantee" nature of this capture path.
func TrackAlloc(addr, size uint64, callStackID uint32) {
	t, ok := Current()
	if !ok {
		return
	}
	t.trackAlloc(addr, size, callStackID)
}

// TrackDealloc records a deallocation event on the calling goroutine's
// tracker. Deallocations are not sampled (they carry no size to
// bucket), so every sampled allocation can be matched with its free;
// frees of unsampled allocations are counted by the aggregator as
// orphans.
func TrackDealloc(addr uint64, callStackID uint32) {
	t, ok := Current()
	if !ok {
		return
	}
	t.trackDealloc(addr, callStackID)
}

func (t *Tracker) trackAlloc(addr, size uint64, callStackID uint32) {
	t.freq[callStackID]++
	if !t.policy.decide(size, t.freq[callStackID], t.rng) {
		return
	}
	t.append(Event{Kind: EventAlloc, Address: addr, Size: size, CallStackID: callStackID, TimestampNS: clock.Now()})
}

func (t *Tracker) trackDealloc(addr uint64, callStackID uint32) {
	t.freq[callStackID]++
	t.append(Event{Kind: EventDealloc, Address: addr, CallStackID: callStackID, TimestampNS: clock.Now()})
}

func (t *Tracker) append(ev Event) {
	t.buf = append(t.buf, ev)
	if len(t.buf) >= t.bufCap {
		t.flush()
	}
}

// flush writes the current slab as one length-prefixed batch:
// u32 event count, then that many fixed-size encoded events.
// Serialization happens synchronously on the tracked goroutine
// (§4.8 — "no background worker, no cross-thread waits").
func (t *Tracker) flush() {
	if len(t.buf) == 0 || t.writeErr != nil {
		return
	}
	enc := binbuf.NewEncoder(4 + len(t.buf)*encodedEventSize)
	enc.U32(uint32(len(t.buf)))
	for _, ev := range t.buf {
		encodeEvent(enc, ev)
	}
	if _, err := t.binFile.Write(enc.Buf); err != nil {
		// §4.8/§4.14: a per-thread write error aborts tracking for
		// this goroutine only; other goroutines are unaffected.
		t.writeErr = err
	}
	t.buf = t.buf[:0]
}

// WriteError returns the first write error encountered by this
// tracker, if tracking was aborted due to an I/O failure.
func (t *Tracker) WriteError() error { return t.writeErr }

// Finalize flushes any buffered events, closes the binary file, and
// writes the frequency file, then deregisters this goroutine's
// tracker.
func (t *Tracker) Finalize() error {
	t.flush()
	closeErr := t.binFile.Close()
	freqErr := t.writeFreqFile()
	registry.Delete(t.gid)
	if t.writeErr != nil {
		return t.writeErr
	}
	if closeErr != nil {
		return closeErr
	}
	return freqErr
}

func (t *Tracker) writeFreqFile() error {
	path := filepath.Join(t.outputDir, fmt.Sprintf("memscope_thread_%d.freq", t.gid))
	enc := binbuf.NewEncoder(4 + len(t.freq)*12)
	enc.U32(uint32(len(t.freq)))
	for id, count := range t.freq {
		enc.U32(id)
		enc.U64(count)
	}
	return os.WriteFile(path, enc.Buf, 0o644)
}
