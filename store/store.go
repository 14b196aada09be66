// Package store implements the engine's central tracker store (spec
// C6): three independently-locked tables — active allocations,
// bounded history of freed allocations, and aggregate statistics —
// acquired in a fixed Active→History→Stats order to prevent deadlock,
// with every hot-path acquisition a non-blocking try-lock so a
// contended store degrades to dropped tracking events rather than
// stalling the allocating goroutine (§4.5).
package store

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/go-memscope/memscope/record"
)

// Store is the engine-wide singleton tracker state.
type Store struct {
	activeMu sync.Mutex
	active   map[uint64]*record.Allocation // keyed by address
	byID     map[uint64]*record.Allocation // keyed by allocation id, same lock

	historyMu sync.Mutex
	hist      *history

	statsMu sync.Mutex
	stats   Stats

	// FastMode, when set, causes Insert/Free to skip history
	// insertion and enrichment-relevant bookkeeping, updating only
	// the minimum counter set (§4.5, §9).
	FastMode atomic.Bool

	loggedSaturation atomic.Bool
}

// New creates a Store with the given bounded history capacity. A
// historyCap of 0 uses the default (10^5, §4.5).
func New(historyCap int) *Store {
	return &Store{
		active: make(map[uint64]*record.Allocation),
		byID:   make(map[uint64]*record.Allocation),
		hist:   newHistory(historyCap),
		stats:  newStats(),
	}
}

// TryInsert attempts to record a newly observed allocation at
// address, keyed by address in the active table, and update the
// aggregate counters. It returns false only if the Active lock could
// not be acquired immediately — the caller (package hook) is
// responsible for the bounded retry-then-drop policy of §4.4. If the
// Stats lock is contended the record is still stored, TryInsert
// returns true, and the counter update for it is skipped.
func (s *Store) TryInsert(r *record.Allocation) bool {
	if !s.activeMu.TryLock() {
		return false
	}
	s.active[r.Address] = r
	s.byID[r.ID] = r
	s.activeMu.Unlock()

	if s.FastMode.Load() {
		if !s.statsMu.TryLock() {
			return true // record is stored; counters best-effort only
		}
		s.stats.TotalAllocations++
		s.stats.ActiveAllocationCount++
		s.stats.ActiveBytes += r.Size
		if s.stats.ActiveAllocationCount > s.stats.PeakActiveCount {
			s.stats.PeakActiveCount = s.stats.ActiveAllocationCount
		}
		if s.stats.ActiveBytes > s.stats.PeakActiveBytes {
			s.stats.PeakActiveBytes = s.stats.ActiveBytes
		}
		s.statsMu.Unlock()
		return true
	}

	if !s.statsMu.TryLock() {
		return true
	}
	s.stats.onAlloc(r.Size, r.TypeNameID, r.HasTypeName)
	sat := s.stats.Saturated
	s.statsMu.Unlock()
	s.maybeLogSaturation(sat)
	return true
}

// TryFree looks up address in the active table, marks it freed at ts,
// moves it to history (unless fast mode), and updates aggregate
// counters. It returns the freed record and true on success; false if
// any needed lock could not be acquired (the caller retries/drops per
// §4.4) or if address was not active.
func (s *Store) TryFree(address uint64, ts uint64) (*record.Allocation, bool) {
	if !s.activeMu.TryLock() {
		return nil, false
	}
	r, ok := s.active[address]
	if ok {
		delete(s.active, address)
		delete(s.byID, r.ID)
	}
	s.activeMu.Unlock()
	if !ok {
		return nil, false
	}
	r.MarkFreed(ts)

	fast := s.FastMode.Load()
	if !fast {
		if !s.historyMu.TryLock() {
			return r, false
		}
		s.hist.push(r)
		s.historyMu.Unlock()
	}

	if !s.statsMu.TryLock() {
		return r, false
	}
	if fast {
		s.stats.TotalDeallocations++
		if s.stats.ActiveAllocationCount > 0 {
			s.stats.ActiveAllocationCount--
		}
		if s.stats.ActiveBytes > r.Size {
			s.stats.ActiveBytes -= r.Size
		} else {
			s.stats.ActiveBytes = 0
		}
	} else {
		s.stats.onFree(r.Size, r.TypeNameID, r.HasTypeName)
	}
	sat := s.stats.Saturated
	s.statsMu.Unlock()
	s.maybeLogSaturation(sat)
	return r, true
}

// MarkLeaked records that r's owning scope exited while it was still
// active (§3.5, §8.1 P8). Called by the engine's ExitScope (package
// memscope), not from the hot path, so it takes a blocking lock.
func (s *Store) MarkLeaked(r *record.Allocation) {
	s.statsMu.Lock()
	s.stats.onLeak(r.Size)
	s.statsMu.Unlock()
}

// Active returns the record active at address, if any.
func (s *Store) Active(address uint64) (*record.Allocation, bool) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	r, ok := s.active[address]
	return r, ok
}

// ActiveByID returns the record active with the given allocation id,
// if any. Package annotate does not call it: AppendClone does its own
// id lookup when registering a smart pointer's clone (§4.6 step 5).
func (s *Store) ActiveByID(id uint64) (*record.Allocation, bool) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	r, ok := s.byID[id]
	return r, ok
}

// AnnotateActive populates var_name/type_name on the record already
// active at addr, if any, under the active-table lock (§4.6 step 3:
// "if the record existed, populate var_name/type_name/scope_id
// fields" rather than inserting a second record over it). Returns the
// record and true if one was found.
func (s *Store) AnnotateActive(addr uint64, varNameID uint32, hasVarName bool, typeNameID uint32, hasTypeName bool) (*record.Allocation, bool) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	r, ok := s.active[addr]
	if !ok {
		return nil, false
	}
	if hasVarName {
		r.VarNameID = varNameID
		r.HasVarName = true
	}
	if hasTypeName {
		r.TypeNameID = typeNameID
		r.HasTypeName = true
	}
	return r, true
}

// SetScope sets r's scope_id field under the active-table lock, the
// remainder of §4.6 step 3's field population.
func (s *Store) SetScope(r *record.Allocation, scopeID uint32) {
	s.activeMu.Lock()
	r.ScopeID = scopeID
	r.HasScopeID = true
	s.activeMu.Unlock()
}

// AppendClone records that cloneID was cloned from the active record
// with allocation id ownerID (§4.6 step 5), under the active-table
// lock so it cannot race with a concurrent AllActive() export
// snapshot reading the same owner record's SmartPointer.Clones.
func (s *Store) AppendClone(ownerID, cloneID uint64) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	if owner, ok := s.byID[ownerID]; ok && owner.SmartPointer != nil {
		owner.SmartPointer.Clones = append(owner.SmartPointer.Clones, cloneID)
	}
}

// AllActive returns a stable snapshot of every currently active
// record. Used by the export path, which must see a consistent view
// while the store keeps mutating (§3.7).
func (s *Store) AllActive() []*record.Allocation {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	out := make([]*record.Allocation, 0, len(s.active))
	for _, r := range s.active {
		out = append(out, r)
	}
	return out
}

// AllHistory returns a snapshot of the bounded freed-record history,
// oldest first.
func (s *Store) AllHistory() []*record.Allocation {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	return s.hist.snapshot()
}

// Snapshot returns a consistent copy of the aggregate counters.
func (s *Store) Snapshot() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats.clone()
}

func (s *Store) maybeLogSaturation(saturatedCount uint64) {
	if saturatedCount == 0 {
		return
	}
	if s.loggedSaturation.CompareAndSwap(false, true) {
		log.Printf("memscope: a tracking counter saturated at its ceiling; statistics from this point are a lower bound, not exact")
	}
}
