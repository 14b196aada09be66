package binbuf

import "encoding/binary"

// Encoder accumulates little-endian fields into a growable byte
// slice. It is the write-side counterpart to Decoder: the snapshot
// writer builds one record at a time into an Encoder, then prefixes
// it with its length before appending it to the output stream.
type Encoder struct {
	Buf []byte
}

func NewEncoder(capacity int) *Encoder {
	return &Encoder{Buf: make([]byte, 0, capacity)}
}

func (e *Encoder) Reset() { e.Buf = e.Buf[:0] }

func (e *Encoder) U8(x uint8) { e.Buf = append(e.Buf, x) }

func (e *Encoder) U16(x uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], x)
	e.Buf = append(e.Buf, tmp[:]...)
}

func (e *Encoder) U32(x uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], x)
	e.Buf = append(e.Buf, tmp[:]...)
}

func (e *Encoder) U64(x uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], x)
	e.Buf = append(e.Buf, tmp[:]...)
}

func (e *Encoder) Bytes(b []byte) { e.Buf = append(e.Buf, b...) }

// LenString appends a u32 length prefix followed by the string bytes.
func (e *Encoder) LenString(s string) {
	e.U32(uint32(len(s)))
	e.Buf = append(e.Buf, s...)
}
