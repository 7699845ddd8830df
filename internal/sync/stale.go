package sync

import "github.com/hmaung/salesync/internal/ledger"

// Retractions returns the natural keys of previously-written ledger rows
// whose generating condition the current source state no longer satisfies:
// every row in the window's existing parentless set that the regenerated
// desired set does not justify. A sale or discount row superseded by a
// void, a zeroed tax or discount, a tip on a payment that became denied or
// voided, a reverted refund: each of those is exactly a key the generator
// no longer emits.
//
// Both inputs must be scoped to the same window; rows outside the window
// are never offered for retraction. Split children never appear in the
// existing set (they carry a parent and are invisible to reconciliation).
func Retractions(existing, desired []ledger.Entry) []ledger.Key {
	justified := make(map[ledger.Key]struct{}, len(desired))
	for _, e := range desired {
		justified[e.Key] = struct{}{}
	}
	var stale []ledger.Key
	for _, e := range existing {
		if e.ParentSaleID != nil {
			continue
		}
		if _, ok := justified[e.Key]; !ok {
			stale = append(stale, e.Key)
		}
	}
	return stale
}
