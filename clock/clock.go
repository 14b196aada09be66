// Package clock supplies the engine's monotonic timestamp source, its
// process-unique allocation ID allocator, and goroutine identity.
//
// Go has no pluggable equivalent of the source language's thread-local
// storage, so "thread" in the rest of this module means "goroutine":
// CurrentGoroutineID extracts the runtime's internal goroutine id, the
// closest stable per-schedulable-unit identity Go exposes.
package clock

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

var (
	initOnce sync.Once
	epoch    time.Time
)

// Init records the epoch against which Now reports elapsed
// nanoseconds. Calling Init more than once is a no-op: the first call
// wins, matching the engine-wide idempotent-init contract (§6.1, L3).
func Init() {
	initOnce.Do(func() {
		epoch = time.Now()
	})
}

// Now returns monotonic nanoseconds since Init was called. If Init was
// never called, it is called implicitly on first use so Now never
// panics, but callers should still call the top-level memscope.Init
// explicitly so the epoch is pinned at engine startup rather than at
// the first allocation.
func Now() uint64 {
	initOnce.Do(func() { epoch = time.Now() })
	return uint64(time.Since(epoch).Nanoseconds())
}

var nextID uint64

// NextID returns a process-unique, monotonically increasing
// allocation ID starting at 1. At one billion IDs issued per second,
// the uint64 counter does not wrap for over 584 years, satisfying
// §4.1's "IDs never wrap in a realistic process lifetime" invariant.
func NextID() uint64 {
	return atomic.AddUint64(&nextID, 1)
}

// GoroutineID is the engine's notion of "thread id": the runtime's
// internal goroutine number, parsed from runtime.Stack's header on
// each CurrentGoroutineID call.
type GoroutineID uint64

// Go's runtime gives no exported per-goroutine storage, so there is no
// cache to maintain here; CurrentGoroutineID reparses runtime.Stack's
// header on every call instead, using a pooled scratch buffer to keep
// it allocation-free.
var stackBufPool = sync.Pool{
	New: func() any { return make([]byte, 64) },
}

// CurrentGoroutineID parses and returns the calling goroutine's
// runtime id. It performs a single small runtime.Stack call; no
// allocation occurs beyond the pooled scratch buffer, keeping this
// cheap enough for the hot path per §4.1.
func CurrentGoroutineID() GoroutineID {
	buf := stackBufPool.Get().([]byte)
	defer stackBufPool.Put(buf)

	n := runtime.Stack(buf, false)
	for n == len(buf) {
		// Header didn't fit (extremely unlikely at 64 bytes); double
		// the buffer and retry until it does.
		buf = make([]byte, len(buf)*2)
		n = runtime.Stack(buf, false)
	}
	return parseGoroutineHeader(buf[:n])
}

// parseGoroutineHeader extracts N from a "goroutine N [running]:\n..."
// header without allocating.
func parseGoroutineHeader(b []byte) GoroutineID {
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	sp := bytes.IndexByte(b, ' ')
	if sp < 0 {
		return 0
	}
	n, err := strconv.ParseUint(string(b[:sp]), 10, 64)
	if err != nil {
		return 0
	}
	return GoroutineID(n)
}

// Label formats a goroutine id the way AllocationRecord.ThreadID is
// stored and displayed (spec §3.1: "thread_id: string or small
// integer").
func (g GoroutineID) Label() string {
	return "g" + strconv.FormatUint(uint64(g), 10)
}
