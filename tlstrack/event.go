// Package tlstrack implements the per-thread lock-free tracker (spec
// C9): each goroutine owns an independent event buffer and spills to
// its own binary file, so 30-200 concurrently tracked goroutines share
// no mutable state and never contend a lock in the hot path.
package tlstrack

import "github.com/go-memscope/memscope/internal/binbuf"

// EventKind distinguishes an allocation from a deallocation event.
type EventKind uint8

const (
	EventAlloc EventKind = iota
	EventDealloc
)

// Event is one recorded allocation or deallocation, sized to fit in a
// single cache line (§3.6): kind, address, size, call-stack id, and a
// sampled timestamp.
type Event struct {
	Kind        EventKind
	Address     uint64
	Size        uint64
	CallStackID uint32
	TimestampNS uint64
}

// encodedEventSize is the fixed wire size of one Event: 1 (kind) + 8
// (address) + 8 (size) + 4 (call stack id) + 8 (timestamp) = 29 bytes.
const encodedEventSize = 1 + 8 + 8 + 4 + 8

func encodeEvent(e *binbuf.Encoder, ev Event) {
	e.U8(uint8(ev.Kind))
	e.U64(ev.Address)
	e.U64(ev.Size)
	e.U32(ev.CallStackID)
	e.U64(ev.TimestampNS)
}

func decodeEvent(d *binbuf.Decoder) Event {
	return Event{
		Kind:        EventKind(d.U8()),
		Address:     d.U64(),
		Size:        d.U64(),
		CallStackID: d.U32(),
		TimestampNS: d.U64(),
	}
}
