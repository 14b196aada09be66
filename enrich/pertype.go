package enrich

import (
	"sort"

	"github.com/aclements/go-moremath/stats"
	"github.com/go-memscope/memscope/intern"
	"github.com/go-memscope/memscope/record"
)

// TypeAggregate is one type_name's rollup for §4.13's per-type
// aggregates pass: total bytes, count, and average lifetime.
type TypeAggregate struct {
	TypeName          string
	Count             uint64
	TotalBytes        uint64
	AverageLifetimeMS float64
}

// PerTypeAggregates groups records by their (interned) type name and
// computes each group's totals and mean lifetime using
// go-moremath/stats, the library the teacher's cmd/memlat already
// depends on for its own aggregate statistics. Records with no
// type name are grouped under the empty string.
func PerTypeAggregates(records []*record.Allocation, strings *intern.Table) []TypeAggregate {
	type bucket struct {
		count      uint64
		totalBytes uint64
		lifetimes  []float64
	}
	byType := make(map[string]*bucket)

	for _, r := range records {
		name := ""
		if r.HasTypeName {
			if s, ok := strings.Resolve(r.TypeNameID); ok {
				name = s
			}
		}
		b, ok := byType[name]
		if !ok {
			b = &bucket{}
			byType[name] = b
		}
		b.count++
		b.totalBytes += r.Size
		if ns, ok := r.LifetimeNS(); ok {
			b.lifetimes = append(b.lifetimes, float64(ns)/1e6)
		}
	}

	out := make([]TypeAggregate, 0, len(byType))
	for name, b := range byType {
		agg := TypeAggregate{TypeName: name, Count: b.count, TotalBytes: b.totalBytes}
		if len(b.lifetimes) > 0 {
			agg.AverageLifetimeMS = stats.Sample{Xs: b.lifetimes}.Mean()
		}
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeName < out[j].TypeName })
	return out
}
