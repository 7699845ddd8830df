package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hmaung/salesync/internal/errs"
)

// SplitPart describes one child of a manual split.
type SplitPart struct {
	Name       string
	Quantity   decimal.Decimal
	TotalMinor int64
}

// Split divides a revenue row into child rows carrying ParentSaleID. The
// children are keyed by their own synthetic item ids, start uncategorized,
// and must sum exactly to the parent's total. Only plain sale rows that are
// not themselves children may be split.
func Split(parent Entry, parts []SplitPart, now time.Time) ([]Entry, error) {
	if !parent.IsRevenue() {
		return nil, fmt.Errorf("%w: only sale rows can be split", errs.ErrUnprocessable)
	}
	if parent.ParentSaleID != nil {
		return nil, fmt.Errorf("%w: cannot split a split child", errs.ErrUnprocessable)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: a split needs at least 2 parts", errs.ErrUnprocessable)
	}
	var sum int64
	for i, p := range parts {
		if p.TotalMinor <= 0 {
			return nil, fmt.Errorf("%w: part[%d] amount must be > 0", errs.ErrUnprocessable, i)
		}
		sum += p.TotalMinor
	}
	if sum != parent.TotalMinor() {
		return nil, fmt.Errorf("%w: parts sum %d does not equal parent total %d", errs.ErrUnprocessable, sum, parent.TotalMinor())
	}

	curr := parent.TotalPrice.Curr().Code()
	children := make([]Entry, 0, len(parts))
	for i, p := range parts {
		qty := p.Quantity
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		unitMinor := decimal.NewFromInt(p.TotalMinor).DivRound(qty, 0).IntPart()
		parentID := parent.ID
		child := Entry{
			ID: uuid.New(),
			Key: Key{
				RestaurantID:    parent.RestaurantID,
				POSSystem:       parent.POSSystem,
				ExternalOrderID: parent.ExternalOrderID,
				ExternalItemID:  fmt.Sprintf("%s%s_%d", parent.ExternalItemID, SuffixSplit, i+1),
			},
			ItemType:       ItemTypeSale,
			AdjustmentType: AdjustmentNone,
			Name:           p.Name,
			Quantity:       qty,
			UnitPrice:      AmountFromMinor(curr, unitMinor),
			TotalPrice:     AmountFromMinor(curr, p.TotalMinor),
			SoldAt:         parent.SoldAt,
			ParentSaleID:   &parentID,
			Metadata:       parent.Metadata.Clone(),
			SyncedAt:       now,
		}
		children = append(children, child)
	}
	return children, nil
}
