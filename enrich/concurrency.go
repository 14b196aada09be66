package enrich

import "github.com/go-memscope/memscope/record"

// ConcurrencySummary counts records by the sharing model their kind
// implies (§4.13): Arc for thread-safe sharing, Rc for single-thread
// sharing, Box for exclusive ownership, Weak for non-owning
// observation, and Owned for every other record (plain heap and
// synthetic records alike).
type ConcurrencySummary struct {
	Arc   uint64
	Rc    uint64
	Box   uint64
	Weak  uint64
	Owned uint64
}

// Summarize computes a ConcurrencySummary over records, also flagging
// Arc records as concurrency-shared in their Enrichments (§4.13's
// ConcurrencyShared field) since an Arc is, by construction, the one
// smart-pointer kind meant to cross goroutine boundaries safely.
func Summarize(records []*record.Allocation) ConcurrencySummary {
	var s ConcurrencySummary
	for _, r := range records {
		switch {
		case r.Kind == record.KindSmartPointer && r.SmartPointer != nil:
			switch r.SmartPointer.PType {
			case record.SmartArc:
				s.Arc++
				if r.Enrichments == nil {
					r.Enrichments = &record.Enrichments{FragmentationGroup: -1}
				}
				r.Enrichments.ConcurrencyShared = true
			case record.SmartRc:
				s.Rc++
			case record.SmartBox:
				s.Box++
			case record.SmartWeak:
				s.Weak++
			}
		default:
			s.Owned++
		}
	}
	return s
}
