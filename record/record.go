// Package record defines the engine's canonical in-memory
// representation of a single allocation (spec §3.1–§3.2): Allocation,
// its Kind variant, and the optional enrichments later analysis passes
// attach to it.
package record

// Kind distinguishes the three ways an Allocation can come to exist.
// Go has no tagged unions, so Kind is a plain enum and the kind-specific
// payload (SmartPointer, Synthetic) lives in its own optional pointer
// field on Allocation — callers must check Kind before reading either.
type Kind uint8

const (
	KindOwnedHeap Kind = iota
	KindSmartPointer
	KindSynthetic
)

func (k Kind) String() string {
	switch k {
	case KindOwnedHeap:
		return "owned"
	case KindSmartPointer:
		return "smart_pointer"
	case KindSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// SmartKind enumerates the reference-counted/unique-ownership handle
// types spec §3.2 lists for SmartPointer records.
type SmartKind uint8

const (
	SmartRc SmartKind = iota
	SmartArc
	SmartBox
	SmartWeak
)

func (s SmartKind) String() string {
	switch s {
	case SmartRc:
		return "rc"
	case SmartArc:
		return "arc"
	case SmartBox:
		return "box"
	case SmartWeak:
		return "weak"
	default:
		return "unknown"
	}
}

// SmartPointerInfo is the payload of a KindSmartPointer record (§3.2).
type SmartPointerInfo struct {
	PType        SmartKind
	DataAddress  uint64
	StrongCount  uint32
	WeakCount    uint32
	CloneOf      uint64 // allocation id this was cloned from; 0 if none
	HasCloneOf   bool
	Clones       []uint64 // allocation ids cloned from this one
}

// SyntheticReason enumerates why a record was assigned a fabricated
// address (§3.2).
type SyntheticReason uint8

const (
	ReasonUnannotatedCopyType SyntheticReason = iota
	ReasonInferredFromSize
	ReasonFastMode
)

func (r SyntheticReason) String() string {
	switch r {
	case ReasonUnannotatedCopyType:
		return "unannotated_copy_type"
	case ReasonInferredFromSize:
		return "inferred_from_size"
	case ReasonFastMode:
		return "fast_mode"
	default:
		return "unknown"
	}
}

// SyntheticInfo is the payload of a KindSynthetic record (§3.2).
type SyntheticInfo struct {
	Reason SyntheticReason
}

// LifetimeBucket classifies how long a deallocated record lived
// (§4.13).
type LifetimeBucket uint8

const (
	LifetimeUnknown LifetimeBucket = iota
	LifetimeInstant
	LifetimeShort
	LifetimeMedium
	LifetimeLong
)

func (b LifetimeBucket) String() string {
	switch b {
	case LifetimeInstant:
		return "instant"
	case LifetimeShort:
		return "short"
	case LifetimeMedium:
		return "medium"
	case LifetimeLong:
		return "long"
	default:
		return "unknown"
	}
}

// Enrichments holds the results of the §4.13 analysis passes, merged
// into a record during export. Nil until a pass has run.
type Enrichments struct {
	LifetimeMS            float64
	LifetimeBucket        LifetimeBucket
	IsLeaked              bool
	FragmentationGroup    int // index into the fragmentation histogram, -1 if not computed
	ConcurrencyShared     bool
}

// Allocation is the canonical record of one observed allocation
// (spec §3.1).
type Allocation struct {
	ID                uint64
	Address           uint64
	Size              uint64
	TimestampAlloc    uint64
	TimestampDealloc  uint64 // valid iff HasDealloc
	HasDealloc        bool
	ThreadID          string
	CallStackID       uint32 // valid iff HasCallStackID
	HasCallStackID    bool
	VarNameID         uint32 // interned; valid iff HasVarName
	HasVarName        bool
	TypeNameID        uint32 // interned; valid iff HasTypeName
	HasTypeName       bool
	ScopeID           uint32 // valid iff HasScopeID
	HasScopeID        bool
	Kind              Kind
	SmartPointer      *SmartPointerInfo // non-nil iff Kind == KindSmartPointer
	Synthetic         *SyntheticInfo    // non-nil iff Kind == KindSynthetic
	Enrichments       *Enrichments      // nil until an enrichment pass runs
}

// Active reports whether this record represents a live (not yet
// freed) allocation, per §3.1's invariant that an active allocation
// has no deallocation timestamp.
func (a *Allocation) Active() bool { return !a.HasDealloc }

// LifetimeNS returns the allocation's lifetime in nanoseconds and
// whether it is known (i.e. the record has been freed).
func (a *Allocation) LifetimeNS() (uint64, bool) {
	if !a.HasDealloc {
		return 0, false
	}
	if a.TimestampDealloc < a.TimestampAlloc {
		// Invariant violation (§3.1); report zero rather than
		// wrapping to a huge unsigned value.
		return 0, true
	}
	return a.TimestampDealloc - a.TimestampAlloc, true
}

// MarkFreed transitions a record from active to freed, setting the
// deallocation timestamp. It is the only place that flips HasDealloc.
func (a *Allocation) MarkFreed(ts uint64) {
	a.TimestampDealloc = ts
	a.HasDealloc = true
}
