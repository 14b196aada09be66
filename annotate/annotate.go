package annotate

import (
	"github.com/go-memscope/memscope/clock"
	"github.com/go-memscope/memscope/intern"
	"github.com/go-memscope/memscope/record"
	"github.com/go-memscope/memscope/scope"
	"github.com/go-memscope/memscope/store"
)

// Synthetic address ranges for variables with no real heap pointer.
// Both bases are canonical user-space addresses inside the region
// Linux uses for mmap, so placement alone does not rule out a
// collision; rangecheck.Validate should be run at process startup to
// check them against the live address space rather than trusting them
// (§9 — "must be validated at init").
const (
	smartPointerRangeBase = 0x7F00_0000_0000
	genericSyntheticBase  = 0x7F10_0000_0000
)

// Annotator binds the tables Annotate needs to turn a Trackable value
// into an active-table record: the central store, the string
// interner, and the scope tracker.
type Annotator struct {
	store   *store.Store
	strings *intern.Table
	scopes  *scope.Tracker

	fastMode bool
}

// New constructs an Annotator. fastMode, when true, skips steps 4 and
// 5 of §4.6 (scope association and clone-of registration) the way the
// hot-path fast mode does elsewhere in the engine.
func New(s *store.Store, strings *intern.Table, scopes *scope.Tracker, fastMode bool) *Annotator {
	return &Annotator{store: s, strings: strings, scopes: scopes, fastMode: fastMode}
}

// Annotate implements the five-step procedure of §4.6: classify v via
// its capability interface, decide its record address and kind, look
// up or create the active-table record, associate it with the current
// scope, and (for smart pointers) register any clone-of relationship.
//
// Annotate never takes ownership of v; it only reads through
// Trackable.
func (a *Annotator) Annotate(v Trackable, name, typeName string) (*record.Allocation, error) {
	var varNameID, typeNameID uint32
	var hasVarName, hasTypeName bool
	if id := a.strings.Intern(name); name != "" {
		varNameID, hasVarName = id, true
	}
	if id := a.strings.Intern(typeName); typeName != "" {
		typeNameID, hasTypeName = id, true
	}

	var r *record.Allocation
	if addr, ok := v.HeapPointer(); ok {
		// §4.6 step 3: if the allocator hook already created a record
		// at this address, populate it in place. Inserting a second
		// record here would orphan the hook's original (double-
		// counting total_allocations and breaking the "annotate
		// twice == annotate once" invariant).
		if existing, ok := a.store.AnnotateActive(addr, varNameID, hasVarName, typeNameID, hasTypeName); ok {
			r = existing
		} else {
			r = &record.Allocation{
				ID:             clock.NextID(),
				TimestampAlloc: clock.Now(),
				ThreadID:       clock.CurrentGoroutineID().Label(),
				Kind:           record.KindOwnedHeap,
				Address:        addr,
				Size:           v.SizeHint(),
			}
			setNameFields(r, varNameID, hasVarName, typeNameID, hasTypeName)
			a.store.TryInsert(r)
		}
	} else {
		r = &record.Allocation{
			ID:             clock.NextID(),
			TimestampAlloc: clock.Now(),
			ThreadID:       clock.CurrentGoroutineID().Label(),
		}
		setNameFields(r, varNameID, hasVarName, typeNameID, hasTypeName)
		if info, ok := v.SmartPointerKind(); ok {
			r.Kind = record.KindSmartPointer
			r.Address = a.fabricateAddress(smartPointerRangeBase)
			infoCopy := info
			r.SmartPointer = &infoCopy
			r.Size = v.SizeHint()
		} else {
			r.Kind = record.KindSynthetic
			r.Address = a.fabricateAddress(genericSyntheticBase)
			r.Synthetic = &record.SyntheticInfo{Reason: record.ReasonUnannotatedCopyType}
			r.Size = v.SizeHint()
		}
		a.store.TryInsert(r)
	}

	if a.fastMode {
		return r, nil
	}

	if id := a.scopes.CurrentOnGoroutine(); id != 0 {
		a.store.SetScope(r, uint32(id))
		a.scopes.Associate(id, name, r.Size)
	}

	for _, region := range v.InternalAllocations() {
		internal := &record.Allocation{
			ID:             clock.NextID(),
			Address:        region.Address,
			TimestampAlloc: r.TimestampAlloc,
			ThreadID:       r.ThreadID,
			Kind:           record.KindOwnedHeap,
		}
		if roleID := a.strings.Intern(region.Role); region.Role != "" {
			internal.VarNameID = roleID
			internal.HasVarName = true
		}
		a.store.TryInsert(internal)
	}

	if r.SmartPointer != nil && r.SmartPointer.HasCloneOf {
		a.store.AppendClone(r.SmartPointer.CloneOf, r.ID)
	}

	return r, nil
}

// setNameFields applies the interned var/type name ids computed once
// at the top of Annotate to a freshly constructed record.
func setNameFields(r *record.Allocation, varNameID uint32, hasVarName bool, typeNameID uint32, hasTypeName bool) {
	if hasVarName {
		r.VarNameID = varNameID
		r.HasVarName = true
	}
	if hasTypeName {
		r.TypeNameID = typeNameID
		r.HasTypeName = true
	}
}

// fabricateAddress hands out a distinct offset within base's range.
// Collisions across ranges are impossible by construction (disjoint
// bases, monotonically increasing offsets); collisions with the real
// address space are the concern of package rangecheck at startup, not
// of this allocator.
func (a *Annotator) fabricateAddress(base uint64) uint64 {
	off := clock.NextID()
	return base + off
}
