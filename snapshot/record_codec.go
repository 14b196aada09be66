package snapshot

import (
	"math"

	"github.com/go-memscope/memscope/internal/binbuf"
	"github.com/go-memscope/memscope/record"
)

// Field presence bits for an allocation record's bitmap (§4.10).
const (
	bitHasDealloc = 1 << iota
	bitHasCallStackID
	bitHasVarName
	bitHasTypeName
	bitHasScopeID
	bitHasSmartPointer
	bitHasSynthetic
	bitHasEnrichments
	bitSmartHasCloneOf
)

func recordBitmap(r *record.Allocation) uint32 {
	var b uint32
	if r.HasDealloc {
		b |= bitHasDealloc
	}
	if r.HasCallStackID {
		b |= bitHasCallStackID
	}
	if r.HasVarName {
		b |= bitHasVarName
	}
	if r.HasTypeName {
		b |= bitHasTypeName
	}
	if r.HasScopeID {
		b |= bitHasScopeID
	}
	if r.Kind == record.KindSmartPointer && r.SmartPointer != nil {
		b |= bitHasSmartPointer
		if r.SmartPointer.HasCloneOf {
			b |= bitSmartHasCloneOf
		}
	}
	if r.Kind == record.KindSynthetic && r.Synthetic != nil {
		b |= bitHasSynthetic
	}
	if r.Enrichments != nil {
		b |= bitHasEnrichments
	}
	return b
}

// encodeRecord appends one length-prefixed TLV allocation record to
// enc, following §4.10's "record_len, bitmap, required fields,
// optional fields per bitmap" shape.
func encodeRecord(enc *binbuf.Encoder, r *record.Allocation) {
	body := binbuf.NewEncoder(64)
	bitmap := recordBitmap(r)

	body.U32(bitmap)
	body.U64(r.ID)
	body.U64(r.Address)
	body.U64(r.Size)
	body.U64(r.TimestampAlloc)
	body.LenString(r.ThreadID)
	body.U8(uint8(r.Kind))

	if r.HasDealloc {
		body.U64(r.TimestampDealloc)
	}
	if r.HasCallStackID {
		body.U32(r.CallStackID)
	}
	if r.HasVarName {
		body.U32(r.VarNameID)
	}
	if r.HasTypeName {
		body.U32(r.TypeNameID)
	}
	if r.HasScopeID {
		body.U32(r.ScopeID)
	}
	if bitmap&bitHasSmartPointer != 0 {
		sp := r.SmartPointer
		body.U8(uint8(sp.PType))
		body.U64(sp.DataAddress)
		body.U32(sp.StrongCount)
		body.U32(sp.WeakCount)
		if bitmap&bitSmartHasCloneOf != 0 {
			body.U64(sp.CloneOf)
		}
		body.U32(uint32(len(sp.Clones)))
		for _, c := range sp.Clones {
			body.U64(c)
		}
	}
	if bitmap&bitHasSynthetic != 0 {
		body.U8(uint8(r.Synthetic.Reason))
	}
	if bitmap&bitHasEnrichments != 0 {
		en := r.Enrichments
		body.U64(math.Float64bits(en.LifetimeMS))
		body.U8(uint8(en.LifetimeBucket))
		body.U8(boolByte(en.IsLeaked))
		body.U32(uint32(int32(en.FragmentationGroup)))
		body.U8(boolByte(en.ConcurrencyShared))
	}

	enc.U32(uint32(len(body.Buf)))
	enc.Bytes(body.Buf)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// decodeRecord decodes one record body (already length-delimited by
// the caller) into an Allocation.
func decodeRecord(d *binbuf.Decoder) *record.Allocation {
	r := &record.Allocation{}
	bitmap := d.U32()
	r.ID = d.U64()
	r.Address = d.U64()
	r.Size = d.U64()
	r.TimestampAlloc = d.U64()
	r.ThreadID = d.LenString()
	r.Kind = record.Kind(d.U8())

	if bitmap&bitHasDealloc != 0 {
		r.TimestampDealloc = d.U64()
		r.HasDealloc = true
	}
	if bitmap&bitHasCallStackID != 0 {
		r.CallStackID = d.U32()
		r.HasCallStackID = true
	}
	if bitmap&bitHasVarName != 0 {
		r.VarNameID = d.U32()
		r.HasVarName = true
	}
	if bitmap&bitHasTypeName != 0 {
		r.TypeNameID = d.U32()
		r.HasTypeName = true
	}
	if bitmap&bitHasScopeID != 0 {
		r.ScopeID = d.U32()
		r.HasScopeID = true
	}
	if bitmap&bitHasSmartPointer != 0 {
		sp := &record.SmartPointerInfo{}
		sp.PType = record.SmartKind(d.U8())
		sp.DataAddress = d.U64()
		sp.StrongCount = d.U32()
		sp.WeakCount = d.U32()
		if bitmap&bitSmartHasCloneOf != 0 {
			sp.CloneOf = d.U64()
			sp.HasCloneOf = true
		}
		n := d.U32()
		sp.Clones = make([]uint64, n)
		for i := range sp.Clones {
			sp.Clones[i] = d.U64()
		}
		r.SmartPointer = sp
	}
	if bitmap&bitHasSynthetic != 0 {
		r.Synthetic = &record.SyntheticInfo{Reason: record.SyntheticReason(d.U8())}
	}
	if bitmap&bitHasEnrichments != 0 {
		en := &record.Enrichments{}
		en.LifetimeMS = math.Float64frombits(d.U64())
		en.LifetimeBucket = record.LifetimeBucket(d.U8())
		en.IsLeaked = d.U8() != 0
		en.FragmentationGroup = int(int32(d.U32()))
		en.ConcurrencyShared = d.U8() != 0
		r.Enrichments = en
	}
	return r
}
