package enrich

import (
	"github.com/go-memscope/memscope/internal/binbuf"
	"github.com/go-memscope/memscope/snapshot"
)

// EncodeFragmentationSegment packages a fragmentation histogram
// (FragmentationHistogram's output) as an ADVD segment for inclusion
// in a binary snapshot (§4.10).
func EncodeFragmentationSegment(histogram []uint64) snapshot.MetricSegment {
	enc := binbuf.NewEncoder(4 + 8*len(histogram))
	enc.U32(uint32(len(histogram)))
	for _, v := range histogram {
		enc.U64(v)
	}
	return snapshot.MetricSegment{Bit: snapshot.MetricsFragmentation, Payload: enc.Buf}
}

// DecodeFragmentationSegment reverses EncodeFragmentationSegment.
func DecodeFragmentationSegment(payload []byte) []uint64 {
	d := binbuf.NewDecoder(payload)
	n := d.U32()
	out := make([]uint64, n)
	for i := range out {
		out[i] = d.U64()
	}
	return out
}

// EncodeConcurrencySegment packages a ConcurrencySummary as an ADVD
// segment.
func EncodeConcurrencySegment(s ConcurrencySummary) snapshot.MetricSegment {
	enc := binbuf.NewEncoder(8 * 5)
	enc.U64(s.Arc)
	enc.U64(s.Rc)
	enc.U64(s.Box)
	enc.U64(s.Weak)
	enc.U64(s.Owned)
	return snapshot.MetricSegment{Bit: snapshot.MetricsConcurrencySummary, Payload: enc.Buf}
}

// DecodeConcurrencySegment reverses EncodeConcurrencySegment.
func DecodeConcurrencySegment(payload []byte) ConcurrencySummary {
	d := binbuf.NewDecoder(payload)
	return ConcurrencySummary{
		Arc:   d.U64(),
		Rc:    d.U64(),
		Box:   d.U64(),
		Weak:  d.U64(),
		Owned: d.U64(),
	}
}
