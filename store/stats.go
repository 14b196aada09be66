package store

import "math"

// Stats mirrors the aggregate counters spec §3.5 requires the central
// store to maintain incrementally. All counters saturate at
// math.MaxUint64 rather than wrapping (§3.5: "All counters saturate on
// overflow; saturation is logged but never aborts").
type Stats struct {
	TotalAllocations      uint64
	TotalDeallocations    uint64
	ActiveAllocationCount uint64
	ActiveBytes           uint64
	PeakActiveCount       uint64
	PeakActiveBytes       uint64
	LeakedAllocationCount uint64
	LeakedBytes           uint64

	// PerType maps an interned type-name ID to its running totals.
	PerType map[uint32]*TypeStats

	// Saturated counts how many counters have hit the saturation
	// ceiling; a nonzero value is the signal to log, once, that
	// some statistic is no longer exact.
	Saturated uint64
}

// TypeStats accumulates per-type totals for §3.5's "per-type
// aggregation map."
type TypeStats struct {
	Count         uint64
	TotalBytes    uint64
	ActiveCount   uint64
	ActiveBytes   uint64
}

func satAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return math.MaxUint64, true
	}
	return a + b, false
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func newStats() Stats {
	return Stats{PerType: make(map[uint32]*TypeStats)}
}

func (s *Stats) clone() Stats {
	cp := *s
	cp.PerType = make(map[uint32]*TypeStats, len(s.PerType))
	for k, v := range s.PerType {
		vv := *v
		cp.PerType[k] = &vv
	}
	return cp
}

func (s *Stats) typeFor(id uint32) *TypeStats {
	ts, ok := s.PerType[id]
	if !ok {
		ts = &TypeStats{}
		s.PerType[id] = ts
	}
	return ts
}

func (s *Stats) onAlloc(size uint64, typeID uint32, hasType bool) {
	sat := false
	s.TotalAllocations, sat = satAddFlag(s.TotalAllocations, 1, sat)
	s.ActiveAllocationCount, sat = satAddFlag(s.ActiveAllocationCount, 1, sat)
	s.ActiveBytes, sat = satAddFlag(s.ActiveBytes, size, sat)
	if s.ActiveAllocationCount > s.PeakActiveCount {
		s.PeakActiveCount = s.ActiveAllocationCount
	}
	if s.ActiveBytes > s.PeakActiveBytes {
		s.PeakActiveBytes = s.ActiveBytes
	}
	if hasType {
		ts := s.typeFor(typeID)
		ts.Count++
		ts.TotalBytes, sat = satAddFlag(ts.TotalBytes, size, sat)
		ts.ActiveCount++
		ts.ActiveBytes, sat = satAddFlag(ts.ActiveBytes, size, sat)
	}
	if sat {
		s.Saturated++
	}
}

func (s *Stats) onFree(size uint64, typeID uint32, hasType bool) {
	sat := false
	s.TotalDeallocations, sat = satAddFlag(s.TotalDeallocations, 1, sat)
	s.ActiveAllocationCount = satSub(s.ActiveAllocationCount, 1)
	s.ActiveBytes = satSub(s.ActiveBytes, size)
	if hasType {
		if ts, ok := s.PerType[typeID]; ok {
			ts.ActiveCount = satSub(ts.ActiveCount, 1)
			ts.ActiveBytes = satSub(ts.ActiveBytes, size)
		}
	}
	if sat {
		s.Saturated++
	}
}

func (s *Stats) onLeak(size uint64) {
	var sat bool
	s.LeakedAllocationCount, sat = satAddFlag(s.LeakedAllocationCount, 1, false)
	s.LeakedBytes, sat = satAddFlag(s.LeakedBytes, size, sat)
	if sat {
		s.Saturated++
	}
}

func satAddFlag(a, b uint64, alreadySat bool) (uint64, bool) {
	v, sat := satAdd(a, b)
	return v, alreadySat || sat
}
