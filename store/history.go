package store

import "github.com/go-memscope/memscope/record"

// history is a bounded FIFO ring of freed allocation records (§3.5,
// §4.5). Exceeding the configured capacity evicts the oldest entry;
// eviction never touches aggregate counters, which are maintained
// separately in Stats.
type history struct {
	buf  []*record.Allocation
	cap  int
	next int // write cursor
	len  int
}

const defaultHistoryCap = 100_000

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = defaultHistoryCap
	}
	return &history{buf: make([]*record.Allocation, capacity), cap: capacity}
}

func (h *history) push(r *record.Allocation) {
	h.buf[h.next] = r
	h.next = (h.next + 1) % h.cap
	if h.len < h.cap {
		h.len++
	}
}

// snapshot returns the history contents in insertion order (oldest
// first).
func (h *history) snapshot() []*record.Allocation {
	out := make([]*record.Allocation, 0, h.len)
	if h.len < h.cap {
		out = append(out, h.buf[:h.len]...)
		return out
	}
	out = append(out, h.buf[h.next:]...)
	out = append(out, h.buf[:h.next]...)
	return out
}
