package ledger

// UserOwnedFields lists the columns the reconciler must never overwrite once
// set. Everything else on an Entry is POS-sourced and refreshed on every
// re-sync. The merge property test walks the Entry struct against this list.
var UserOwnedFields = map[string]string{
	"CategoryID":    "category_id",
	"IsCategorized": "is_categorized",
}

// MergeForResync merges a freshly generated row into an existing ledger row
// with the same natural key: POS-sourced fields (name, amounts, timestamps)
// are taken from the incoming row, user-owned classification fields keep
// their existing value when set. The stored identity survives the merge.
func MergeForResync(existing, incoming Entry) Entry {
	merged := incoming
	merged.ID = existing.ID
	merged.ParentSaleID = existing.ParentSaleID
	if existing.CategoryID != nil {
		merged.CategoryID = existing.CategoryID
	}
	merged.IsCategorized = existing.IsCategorized || incoming.IsCategorized
	return merged
}
