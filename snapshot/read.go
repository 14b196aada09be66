package snapshot

import (
	"io"

	"github.com/go-memscope/memscope/callstack"
	"github.com/go-memscope/memscope/internal/binbuf"
)

// Read parses a complete snapshot file from r. If the file is
// truncated mid-record, Read returns the records recovered so far
// plus a ReadStatus reporting how many were read (§4.10, §8.3 B4)
// rather than failing outright. A version mismatch is the one error
// that aborts immediately, since the rest of the file's layout cannot
// be trusted once the version is unrecognized (§8.3 B5).
func Read(r io.Reader) (*Snapshot, ReadStatus, error) {
	br := binbuf.NewReader(r, 64*1024)

	hdr, err := readHeader(br)
	if err != nil {
		return nil, ReadStatus{}, err
	}

	strs, ok := readStringTable(br)
	if !ok {
		return &Snapshot{Header: hdr}, ReadStatus{Truncated: true}, nil
	}
	stacks, ok := readCallStackTable(br)
	if !ok {
		return &Snapshot{Header: hdr, Strings: strs}, ReadStatus{Truncated: true}, nil
	}

	snap := &Snapshot{Header: hdr, Strings: strs, CallStacks: stacks}
	status := ReadStatus{}

	for i := 0; i < int(hdr.TotalCount); i++ {
		var lenBuf [4]byte
		_, ok := br.ReadFull(lenBuf[:])
		if !ok {
			status.Truncated = true
			status.TruncatedAtRecord = i
			return snap, status, nil
		}
		recLen := binbuf.NewDecoder(lenBuf[:]).U32()
		body := make([]byte, recLen)
		if _, ok := br.ReadFull(body); !ok {
			status.Truncated = true
			status.TruncatedAtRecord = i
			return snap, status, nil
		}
		snap.Records = append(snap.Records, decodeRecord(binbuf.NewDecoder(body)))
	}

	for {
		seg, ok := readSegment(br)
		if !ok {
			break
		}
		snap.Metrics = append(snap.Metrics, seg)
	}

	return snap, status, nil
}

func readHeader(br *binbuf.Reader) (Header, error) {
	var fixed [22]byte
	if _, ok := br.ReadFull(fixed[:]); !ok {
		return Header{}, io.ErrUnexpectedEOF
	}
	d := binbuf.NewDecoder(fixed[:])
	var magic [8]byte
	copy(magic[:], d.Bytes(8))
	if magic != Magic {
		return Header{}, ErrBadMagic
	}
	version := d.U32()
	if version > Version {
		return Header{}, &VersionError{FileVersion: version, ReaderVersion: Version}
	}
	h := Header{Version: version}
	h.TotalCount = d.U32()
	h.ExportMode = ExportMode(d.U8())
	h.UserCount = d.U16()
	h.SystemCount = d.U16()
	_ = d.U8() // reserved
	return h, nil
}

func readStringTable(br *binbuf.Reader) (map[uint32]string, bool) {
	var countBuf [4]byte
	if _, ok := br.ReadFull(countBuf[:]); !ok {
		return nil, false
	}
	count := binbuf.NewDecoder(countBuf[:]).U32()
	out := make(map[uint32]string, count)
	for i := uint32(0); i < count; i++ {
		id, ok := readU32(br)
		if !ok {
			return out, false
		}
		s, ok := readLenString(br)
		if !ok {
			return out, false
		}
		out[id] = s
	}
	return out, true
}

func readCallStackTable(br *binbuf.Reader) (map[callstack.ID][]callstack.Frame, bool) {
	var countBuf [4]byte
	if _, ok := br.ReadFull(countBuf[:]); !ok {
		return nil, false
	}
	count := binbuf.NewDecoder(countBuf[:]).U32()
	out := make(map[callstack.ID][]callstack.Frame, count)
	for i := uint32(0); i < count; i++ {
		id, ok := readU32(br)
		if !ok {
			return out, false
		}
		frameCount, ok := readU16(br)
		if !ok {
			return out, false
		}
		frames := make([]callstack.Frame, 0, frameCount)
		for j := uint16(0); j < frameCount; j++ {
			fn, ok := readLenString(br)
			if !ok {
				return out, false
			}
			file, ok := readLenString(br)
			if !ok {
				return out, false
			}
			line, ok := readU32(br)
			if !ok {
				return out, false
			}
			frames = append(frames, callstack.Frame{Function: fn, File: file, Line: int(line)})
		}
		out[callstack.ID(id)] = frames
	}
	return out, true
}

func readU32(br *binbuf.Reader) (uint32, bool) {
	var b [4]byte
	if _, ok := br.ReadFull(b[:]); !ok {
		return 0, false
	}
	return binbuf.NewDecoder(b[:]).U32(), true
}

func readU16(br *binbuf.Reader) (uint16, bool) {
	var b [2]byte
	if _, ok := br.ReadFull(b[:]); !ok {
		return 0, false
	}
	return binbuf.NewDecoder(b[:]).U16(), true
}

func readLenString(br *binbuf.Reader) (string, bool) {
	l, ok := readU32(br)
	if !ok {
		return "", false
	}
	buf := make([]byte, l)
	if _, ok := br.ReadFull(buf); !ok {
		return "", false
	}
	return string(buf), true
}
