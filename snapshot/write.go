package snapshot

import (
	"io"

	"github.com/go-memscope/memscope/callstack"
	"github.com/go-memscope/memscope/internal/binbuf"
	"github.com/go-memscope/memscope/intern"
	"github.com/go-memscope/memscope/record"
)

// Source yields allocation records one at a time, letting Write
// read from either a live store snapshot or an aggregator's merged
// timeline (§4.10's "alloc iterator"). Write still collects the
// records it keeps into a slice before writing; see Write.
type Source interface {
	Next() (*record.Allocation, bool)
}

// SliceSource adapts a []*record.Allocation to Source.
type SliceSource struct {
	recs []*record.Allocation
	i    int
}

// NewSliceSource wraps recs for use as a Source.
func NewSliceSource(recs []*record.Allocation) *SliceSource {
	return &SliceSource{recs: recs}
}

func (s *SliceSource) Next() (*record.Allocation, bool) {
	if s.i >= len(s.recs) {
		return nil, false
	}
	r := s.recs[s.i]
	s.i++
	return r, true
}

// Write streams src to w as a complete snapshot file: header, string
// table, call-stack table, allocation records, then any ADVD segments
// produced by metrics. mode selects which records are emitted
// (ModeUserOnly drops records with no variable name attached).
//
// Write buffers records in memory once (to compute TotalCount/
// UserCount/SystemCount before the header can be written, since the
// header precedes the data it describes) — callers with very large
// live sets should export via the aggregator's merged snapshot path
// instead, which already holds the full set.
func Write(w io.Writer, src Source, strings *intern.Table, stacks *callstack.Normalizer, mode ExportMode, metrics []MetricSegment) error {
	var kept []*record.Allocation
	var userCount, systemCount int
	for {
		r, ok := src.Next()
		if !ok {
			break
		}
		if mode == ModeUserOnly && !r.HasVarName {
			continue
		}
		kept = append(kept, r)
		if r.HasVarName {
			userCount++
		} else {
			systemCount++
		}
	}

	hdr := Header{
		Version:     Version,
		TotalCount:  uint32(len(kept)),
		ExportMode:  mode,
		UserCount:   uint16(clampU16(userCount)),
		SystemCount: uint16(clampU16(systemCount)),
	}
	if err := writeHeader(w, hdr); err != nil {
		return err
	}
	if err := writeStringTable(w, strings.All()); err != nil {
		return err
	}
	if err := writeCallStackTable(w, stacks.AllSymbolized()); err != nil {
		return err
	}
	enc := binbuf.NewEncoder(256)
	for _, r := range kept {
		enc.Reset()
		encodeRecord(enc, r)
		if _, err := w.Write(enc.Buf); err != nil {
			return err
		}
	}
	for _, m := range metrics {
		if err := writeSegment(w, m); err != nil {
			return err
		}
	}
	return nil
}

func clampU16(n int) int {
	if n > 0xFFFF {
		return 0xFFFF
	}
	return n
}

func writeHeader(w io.Writer, h Header) error {
	enc := binbuf.NewEncoder(24)
	enc.Bytes(Magic[:])
	enc.U32(h.Version)
	enc.U32(h.TotalCount)
	enc.U8(uint8(h.ExportMode))
	enc.U16(h.UserCount)
	enc.U16(h.SystemCount)
	enc.U8(0) // reserved
	_, err := w.Write(enc.Buf)
	return err
}

func writeStringTable(w io.Writer, strs map[uint32]string) error {
	enc := binbuf.NewEncoder(256)
	enc.U32(uint32(len(strs)))
	if _, err := w.Write(enc.Buf); err != nil {
		return err
	}
	for id, s := range strs {
		enc.Reset()
		enc.U32(id)
		enc.LenString(s)
		if _, err := w.Write(enc.Buf); err != nil {
			return err
		}
	}
	return nil
}

func writeCallStackTable(w io.Writer, stacks map[callstack.ID][]callstack.Frame) error {
	enc := binbuf.NewEncoder(256)
	enc.U32(uint32(len(stacks)))
	if _, err := w.Write(enc.Buf); err != nil {
		return err
	}
	for id, frames := range stacks {
		enc.Reset()
		enc.U32(uint32(id))
		enc.U16(uint16(clampU16(len(frames))))
		for _, f := range frames {
			enc.LenString(f.Function)
			enc.LenString(f.File)
			enc.U32(uint32(f.Line))
		}
		if _, err := w.Write(enc.Buf); err != nil {
			return err
		}
	}
	return nil
}
