package enrich

import (
	"sort"

	"github.com/go-memscope/memscope/record"
	"github.com/go-memscope/memscope/scale"
)

// FragmentationHistogram approximates free-block sizes (§4.13) from
// the gaps between consecutive active allocations in address order:
// a large gap between one allocation's end and the next one's start
// looks like a free block of roughly that size. It assigns each
// record with a following gap to one of numBuckets buckets (recorded
// in Enrichments.FragmentationGroup) using the teacher's scale.Linear
// to place the gap within [min(gap), max(gap)], the same normalization
// the teacher uses to place sample values on a plotted axis.
//
// The last record in address order has no following gap and gets
// FragmentationGroup = -1. With fewer than two active records, or
// numBuckets <= 0, no record is touched.
func FragmentationHistogram(active []*record.Allocation, numBuckets int) []uint64 {
	histogram := make([]uint64, numBuckets)
	if numBuckets <= 0 || len(active) < 2 {
		return histogram
	}

	ordered := make([]*record.Allocation, len(active))
	copy(ordered, active)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Address < ordered[j].Address })

	gaps := make([]float64, 0, len(ordered)-1)
	for i := 0; i < len(ordered)-1; i++ {
		end := ordered[i].Address + ordered[i].Size
		next := ordered[i+1].Address
		if next > end {
			gaps = append(gaps, float64(next-end))
		} else {
			gaps = append(gaps, 0)
		}
	}
	if len(gaps) == 0 {
		return histogram
	}

	minGap, maxGap := gaps[0], gaps[0]
	for _, g := range gaps {
		if g < minGap {
			minGap = g
		}
		if g > maxGap {
			maxGap = g
		}
	}
	if minGap == maxGap {
		// scale.Linear divides by (max-min); a uniform gap size
		// has nothing to normalize, so every record falls in the
		// same bucket.
		for i := range gaps {
			r := ordered[i]
			if r.Enrichments == nil {
				r.Enrichments = &record.Enrichments{FragmentationGroup: -1}
			}
			r.Enrichments.FragmentationGroup = 0
			histogram[0]++
		}
		if last := ordered[len(ordered)-1]; last.Enrichments == nil {
			last.Enrichments = &record.Enrichments{FragmentationGroup: -1}
		}
		return histogram
	}

	lin := scale.NewLinear(gaps)
	for i, g := range gaps {
		r := ordered[i]
		if r.Enrichments == nil {
			r.Enrichments = &record.Enrichments{FragmentationGroup: -1}
		}
		bucket := bucketIndex(lin.Of(g), numBuckets)
		r.Enrichments.FragmentationGroup = bucket
		histogram[bucket]++
	}
	if last := ordered[len(ordered)-1]; last.Enrichments == nil {
		last.Enrichments = &record.Enrichments{FragmentationGroup: -1}
	}
	return histogram
}

func bucketIndex(normalized float64, numBuckets int) int {
	idx := int(normalized * float64(numBuckets))
	if idx < 0 {
		return 0
	}
	if idx >= numBuckets {
		return numBuckets - 1
	}
	return idx
}
