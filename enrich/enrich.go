// Package enrich implements the engine's analysis enrichment passes
// (spec C13): pure functions over a slice of allocation records (plus
// the scope tree and smart-pointer graph) run during export, not on
// the hot path. Each pass is independent and callers (package
// aggregate, package jsonexport) select whichever subset they need.
package enrich

import "github.com/go-memscope/memscope/record"

// Thresholds configures LifetimeBucketing's instant/short/medium/long
// cutoffs, in milliseconds (§4.13: "configurable thresholds").
type Thresholds struct {
	InstantMS float64
	ShortMS   float64
	MediumMS  float64
}

// DefaultThresholds mirrors the cutoffs a typical short-lived-script
// workload would pick: sub-millisecond is "instant", under 10ms is
// "short", under a second is "medium", anything longer is "long".
func DefaultThresholds() Thresholds {
	return Thresholds{InstantMS: 1, ShortMS: 10, MediumMS: 1000}
}

func (t Thresholds) bucket(ms float64) record.LifetimeBucket {
	switch {
	case ms < t.InstantMS:
		return record.LifetimeInstant
	case ms < t.ShortMS:
		return record.LifetimeShort
	case ms < t.MediumMS:
		return record.LifetimeMedium
	default:
		return record.LifetimeLong
	}
}

// LifetimeBucketing classifies every deallocated record in records
// into an instant/short/medium/long bucket (§4.13) and records its
// lifetime in milliseconds, allocating an Enrichments struct for any
// record that doesn't already carry one. Active (not yet freed)
// records are left with LifetimeUnknown.
func LifetimeBucketing(records []*record.Allocation, thresholds Thresholds) {
	for _, r := range records {
		ns, ok := r.LifetimeNS()
		if r.Enrichments == nil {
			r.Enrichments = &record.Enrichments{FragmentationGroup: -1}
		}
		if !ok {
			r.Enrichments.LifetimeBucket = record.LifetimeUnknown
			continue
		}
		ms := float64(ns) / 1e6
		r.Enrichments.LifetimeMS = ms
		r.Enrichments.LifetimeBucket = thresholds.bucket(ms)
	}
}
