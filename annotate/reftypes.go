package annotate

import (
	"sync/atomic"
	"unsafe"

	"github.com/go-memscope/memscope/record"
)

// TrackedSlice wraps a Go slice as a Trackable, reporting its backing
// array's address as a real heap pointer.
type TrackedSlice[T any] struct {
	s []T
}

// NewTrackedSlice wraps s for annotation. It does not copy s.
func NewTrackedSlice[T any](s []T) TrackedSlice[T] { return TrackedSlice[T]{s: s} }

func (t TrackedSlice[T]) HeapPointer() (uint64, bool) {
	if len(t.s) == 0 {
		return 0, false
	}
	return uint64(uintptr(unsafe.Pointer(&t.s[0]))), true
}

func (t TrackedSlice[T]) SmartPointerKind() (record.SmartPointerInfo, bool) {
	return record.SmartPointerInfo{}, false
}

func (t TrackedSlice[T]) SizeHint() uint64 {
	var zero T
	return uint64(len(t.s)) * uint64(unsafe.Sizeof(zero))
}

func (t TrackedSlice[T]) InternalAllocations() []InternalRegion { return nil }

// TrackedString wraps a Go string as a Trackable, reporting its
// backing byte array's address.
type TrackedString struct {
	s string
}

// NewTrackedString wraps s for annotation.
func NewTrackedString(s string) TrackedString { return TrackedString{s: s} }

func (t TrackedString) HeapPointer() (uint64, bool) {
	if len(t.s) == 0 {
		return 0, false
	}
	return uint64(uintptr(unsafe.Pointer(unsafe.StringData(t.s)))), true
}

func (t TrackedString) SmartPointerKind() (record.SmartPointerInfo, bool) {
	return record.SmartPointerInfo{}, false
}

func (t TrackedString) SizeHint() uint64 { return uint64(len(t.s)) }

func (t TrackedString) InternalAllocations() []InternalRegion { return nil }

// TrackedMap wraps a Go map as a Trackable. Maps have no exported
// backing-array pointer in Go, so a map is reported as a generic
// synthetic allocation sized by a rough per-entry estimate; its
// bucket storage has no addressable role to report via
// InternalAllocations (unlike, say, a composite type that embeds a
// separately allocated slice).
type TrackedMap[K comparable, V any] struct {
	m map[K]V
}

// NewTrackedMap wraps m for annotation.
func NewTrackedMap[K comparable, V any](m map[K]V) TrackedMap[K, V] {
	return TrackedMap[K, V]{m: m}
}

func (t TrackedMap[K, V]) HeapPointer() (uint64, bool) { return 0, false }

func (t TrackedMap[K, V]) SmartPointerKind() (record.SmartPointerInfo, bool) {
	return record.SmartPointerInfo{}, false
}

func (t TrackedMap[K, V]) SizeHint() uint64 {
	var k K
	var v V
	perEntry := uint64(unsafe.Sizeof(k)) + uint64(unsafe.Sizeof(v))
	return uint64(len(t.m)) * perEntry
}

func (t TrackedMap[K, V]) InternalAllocations() []InternalRegion { return nil }

// box is the shared state behind Rc/Arc: a value plus strong/weak
// counters. Arc's counters are atomic; Rc's are plain ints guarded by
// the assumption (matching the source language) that Rc is only ever
// used from one goroutine at a time.
type box[T any] struct {
	val    T
	strong int64
	weak   int64

	allocationID uint64
	hasID        bool
}

// Rc is a single-goroutine reference-counted handle modeling the
// source language's Rc<T>: cloning increments a strong count rather
// than copying val, and the annotation layer tracks clone-of edges
// between an Rc and the clones taken from it (§9).
type Rc[T any] struct {
	b *box[T]
}

// NewRc creates a new Rc with strong count 1.
func NewRc[T any](val T) Rc[T] {
	return Rc[T]{b: &box[T]{val: val, strong: 1}}
}

// Clone returns a new Rc sharing val with r, incrementing the strong
// count.
func (r Rc[T]) Clone() Rc[T] {
	r.b.strong++
	return Rc[T]{b: r.b}
}

// Get returns the shared value.
func (r Rc[T]) Get() T { return r.b.val }

// Downgrade returns a Weak handle that does not keep the strong count
// alive.
func (r Rc[T]) Downgrade() Weak[T] {
	r.b.weak++
	return Weak[T]{b: r.b}
}

func (r Rc[T]) HeapPointer() (uint64, bool) { return 0, false }

func (r Rc[T]) SmartPointerKind() (record.SmartPointerInfo, bool) {
	info := record.SmartPointerInfo{
		PType:       record.SmartRc,
		DataAddress: uint64(uintptr(unsafe.Pointer(r.b))),
		StrongCount: uint32(r.b.strong),
		WeakCount:   uint32(r.b.weak),
	}
	if r.b.hasID {
		info.CloneOf = r.b.allocationID
		info.HasCloneOf = true
	}
	return info, true
}

func (r Rc[T]) SizeHint() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

func (r Rc[T]) InternalAllocations() []InternalRegion { return nil }

// recordAllocationID lets the annotation layer stamp the allocation id
// assigned on first annotation back onto the shared box, so later
// clones report HasCloneOf correctly.
func (r Rc[T]) recordAllocationID(id uint64) {
	if !r.b.hasID {
		r.b.allocationID = id
		r.b.hasID = true
	}
}

// Annotate is a convenience that annotates r and remembers the
// resulting allocation id for clone-of bookkeeping on future clones.
func (r Rc[T]) Annotate(a *Annotator, name, typeName string) (*record.Allocation, error) {
	rec, err := a.Annotate(r, name, typeName)
	if err == nil {
		r.recordAllocationID(rec.ID)
	}
	return rec, err
}

// Arc is the thread-safe counterpart to Rc, modeling Arc<T>: its
// counters are atomic so Clone is safe to call concurrently from
// multiple goroutines, matching the source language's guarantee.
type Arc[T any] struct {
	b       *box[T]
	strong  *atomic.Int64
	weak    *atomic.Int64
}

// NewArc creates a new Arc with strong count 1.
func NewArc[T any](val T) Arc[T] {
	a := &Arc[T]{b: &box[T]{val: val}, strong: new(atomic.Int64), weak: new(atomic.Int64)}
	a.strong.Store(1)
	return *a
}

func (a Arc[T]) Clone() Arc[T] {
	a.strong.Add(1)
	return a
}

func (a Arc[T]) Get() T { return a.b.val }

func (a Arc[T]) HeapPointer() (uint64, bool) { return 0, false }

func (a Arc[T]) SmartPointerKind() (record.SmartPointerInfo, bool) {
	info := record.SmartPointerInfo{
		PType:       record.SmartArc,
		DataAddress: uint64(uintptr(unsafe.Pointer(a.b))),
		StrongCount: uint32(a.strong.Load()),
		WeakCount:   uint32(a.weak.Load()),
	}
	if a.b.hasID {
		info.CloneOf = a.b.allocationID
		info.HasCloneOf = true
	}
	return info, true
}

func (a Arc[T]) SizeHint() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

func (a Arc[T]) InternalAllocations() []InternalRegion { return nil }

// Weak is a non-owning handle obtained from Rc.Downgrade or a future
// Arc.Downgrade; it carries no strong reference and is how cyclic
// smart-pointer graphs are broken (§9).
type Weak[T any] struct {
	b *box[T]
}

func (w Weak[T]) HeapPointer() (uint64, bool) { return 0, false }

func (w Weak[T]) SmartPointerKind() (record.SmartPointerInfo, bool) {
	return record.SmartPointerInfo{
		PType:       record.SmartWeak,
		DataAddress: uint64(uintptr(unsafe.Pointer(w.b))),
		StrongCount: uint32(w.b.strong),
		WeakCount:   uint32(w.b.weak),
	}, true
}

func (w Weak[T]) SizeHint() uint64 { return 0 }

func (w Weak[T]) InternalAllocations() []InternalRegion { return nil }

// Box is a unique-ownership handle modeling Box<T>; Go already gives
// unique ownership to any non-shared pointer, so Box exists purely to
// let host code opt a value into the KindSmartPointer(Box) reporting
// path instead of the generic OwnedHeap path.
type Box[T any] struct {
	p *T
}

// NewBox allocates val on the heap and wraps it.
func NewBox[T any](val T) Box[T] {
	p := new(T)
	*p = val
	return Box[T]{p: p}
}

func (b Box[T]) Get() *T { return b.p }

func (b Box[T]) HeapPointer() (uint64, bool) { return 0, false }

func (b Box[T]) SmartPointerKind() (record.SmartPointerInfo, bool) {
	return record.SmartPointerInfo{
		PType:       record.SmartBox,
		DataAddress: uint64(uintptr(unsafe.Pointer(b.p))),
		StrongCount: 1,
	}, true
}

func (b Box[T]) SizeHint() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

func (b Box[T]) InternalAllocations() []InternalRegion { return nil }
