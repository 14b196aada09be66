package snapshot

import (
	"io"

	"github.com/go-memscope/memscope/internal/binbuf"
)

// advdMagic is the 4-byte marker for an Advanced Metrics segment.
var advdMagic = [4]byte{'A', 'D', 'V', 'D'}

// MetricsBit identifies one kind of advanced-metrics payload within
// the ADVD segment bitmap, letting C13's passes each contribute a
// segment without the core format needing to know about every pass
// (§4.10).
type MetricsBit uint32

const (
	MetricsFragmentation MetricsBit = 1 << iota
	MetricsConcurrencySummary
	MetricsPerTypeAggregate
	MetricsSmartPointerGraph
)

// MetricSegment is one optional ADVD payload: which bit it occupies
// and its already-encoded bytes.
type MetricSegment struct {
	Bit     MetricsBit
	Payload []byte
}

func writeSegment(w io.Writer, seg MetricSegment) error {
	enc := binbuf.NewEncoder(8 + len(seg.Payload))
	enc.Bytes(advdMagic[:])
	enc.U32(uint32(len(seg.Payload)))
	enc.U32(uint32(seg.Bit))
	enc.Bytes(seg.Payload)
	_, err := w.Write(enc.Buf)
	return err
}

// readSegment reads one ADVD segment from r. It reports false when no
// further segment can be read: end of file, a bad magic, or a short
// segment all look the same, and the caller stops silently on any of
// them since segments are optional.
func readSegment(r *binbuf.Reader) (MetricSegment, bool) {
	var magic [4]byte
	if _, ok := r.ReadFull(magic[:]); !ok {
		return MetricSegment{}, false
	}
	if magic != advdMagic {
		return MetricSegment{}, false
	}
	var hdr [8]byte
	if _, ok := r.ReadFull(hdr[:]); !ok {
		return MetricSegment{}, false
	}
	d := binbuf.NewDecoder(hdr[:])
	size := d.U32()
	bit := d.U32()
	payload := make([]byte, size)
	if _, ok := r.ReadFull(payload); !ok {
		return MetricSegment{}, false
	}
	return MetricSegment{Bit: MetricsBit(bit), Payload: payload}, true
}
