package enrich

import (
	"github.com/go-memscope/memscope/record"
	"github.com/go-memscope/memscope/scope"
)

// LeakCandidacy marks records as leaked (§3.5, §4.13) when the scope
// that owned them has exited but the record is still active. Records
// with no associated scope are never candidates: without a scope
// there is nothing for the record to have outlived.
func LeakCandidacy(records []*record.Allocation, scopes *scope.Tracker) {
	for _, r := range records {
		if !r.HasScopeID || !r.Active() {
			continue
		}
		if _, exited := scopes.Exited(scope.ID(r.ScopeID)); exited {
			if r.Enrichments == nil {
				r.Enrichments = &record.Enrichments{FragmentationGroup: -1}
			}
			r.Enrichments.IsLeaked = true
		}
	}
}
