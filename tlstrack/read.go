package tlstrack

import (
	"io"
	"os"

	"github.com/go-memscope/memscope/internal/binbuf"
)

// ReadResult is what ReadSpillFile returns: the events recovered and
// whether the file ended part-way through a batch.
type ReadResult struct {
	Events    []Event
	Truncated bool
}

// ReadSpillFile reads a .bin file written by Tracker.flush: a sequence
// of (u32 count, count*Event) batches. A short final batch is not
// treated as fatal: the whole events it still holds are kept and a
// cut count header or cut event is dropped,
// per §4.8's cancellation contract — the aggregator must tolerate a
// thread that was aborted before Finalize.
func ReadSpillFile(path string) (ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReadResult{}, err
	}
	defer f.Close()

	r := binbuf.NewReader(f, 64*1024)
	var out ReadResult
	for {
		var hdr [4]byte
		n, ok := r.ReadFull(hdr[:])
		if !ok {
			if n > 0 {
				out.Truncated = true
			}
			break
		}
		count := binbuf.NewDecoder(hdr[:]).U32()

		batch := make([]byte, int(count)*encodedEventSize)
		n, ok = r.ReadFull(batch)
		if !ok {
			out.Truncated = true
			// Recover whole events within the partial batch.
			whole := n / encodedEventSize
			dec := binbuf.NewDecoder(batch[:whole*encodedEventSize])
			for i := 0; i < whole; i++ {
				out.Events = append(out.Events, decodeEvent(dec))
			}
			break
		}
		dec := binbuf.NewDecoder(batch)
		for i := 0; i < int(count); i++ {
			out.Events = append(out.Events, decodeEvent(dec))
		}
	}
	return out, nil
}

// ReadFreqFile reads a .freq file into a call-stack-id -> count map.
func ReadFreqFile(path string) (map[uint32]uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		if len(data) == 0 {
			return map[uint32]uint64{}, nil
		}
		return nil, io.ErrUnexpectedEOF
	}
	dec := binbuf.NewDecoder(data)
	n := dec.U32()
	out := make(map[uint32]uint64, n)
	for i := uint32(0); i < n; i++ {
		if dec.Len() < 12 {
			break // truncated frequency file; return what we recovered
		}
		id := dec.U32()
		count := dec.U64()
		out[id] = count
	}
	return out, nil
}
