// Package annotate implements the variable-annotation layer (spec C7):
// the Trackable capability interface that stands in for the source
// language's per-type dynamic dispatch (§9 — "no runtime reflection"),
// and the Annotate operation that turns a capability query into an
// active-table record plus scope association (§4.6).
package annotate

import "github.com/go-memscope/memscope/record"

// InternalRegion names one of a composite value's internally owned
// heap regions (§4.6's "internal_allocations() -> list of (address,
// role_name)"), e.g. a map's bucket array or a string's backing bytes.
type InternalRegion struct {
	Address uint64
	Role    string
}

// Trackable is the capability interface concrete types implement to
// participate in annotation. A type need not implement every method
// meaningfully: returning the zero value / false is how a type
// declines a capability it doesn't have.
type Trackable interface {
	// HeapPointer returns the variable's real heap address, if its
	// storage is directly heap-backed (a slice, an owned string, a
	// boxed value).
	HeapPointer() (addr uint64, ok bool)

	// SmartPointerKind returns the reference-counted handle kind, if
	// this value is one, along with its data pointer and strong/weak
	// counts.
	SmartPointerKind() (info record.SmartPointerInfo, ok bool)

	// SizeHint returns the total bytes this variable is considered to
	// own, for records that need a size but have no other way to
	// derive one.
	SizeHint() uint64

	// InternalAllocations lists additional heap regions this
	// composite value owns beyond its primary storage.
	InternalAllocations() []InternalRegion
}
