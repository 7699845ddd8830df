package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/shopspring/decimal"

	"github.com/hmaung/salesync/internal/meta"
)

// ItemType classifies what a ledger row represents.
type ItemType string

const (
	ItemTypeSale     ItemType = "sale"
	ItemTypeDiscount ItemType = "discount"
	ItemTypeTax      ItemType = "tax"
	ItemTypeTip      ItemType = "tip"
	ItemTypeRefund   ItemType = "refund"
)

// AdjustmentType distinguishes gross revenue rows from offset rows.
// A plain sale carries AdjustmentNone; every adjustment (discount, void,
// refund) is a separate signed offset row rather than a mutation of the
// original amount, so totals stay auditable against the POS's own reporting.
type AdjustmentType string

const (
	AdjustmentNone     AdjustmentType = "none"
	AdjustmentDiscount AdjustmentType = "discount"
	AdjustmentVoid     AdjustmentType = "void"
	AdjustmentTax      AdjustmentType = "tax"
	AdjustmentTip      AdjustmentType = "tip"
	AdjustmentRefund   AdjustmentType = "refund"
)

// Key is the natural identity of a ledger row. It is unique among rows with
// no parent; split children are exempt and carry their own synthetic item ids.
type Key struct {
	RestaurantID    uuid.UUID
	POSSystem       string
	ExternalOrderID string
	ExternalItemID  string
}

// Synthetic item id suffixes for derived row kinds.
const (
	SuffixDiscount = "_discount"
	SuffixVoid     = "_void"
	SuffixTax      = "_tax"
	SuffixTip      = "_tip"
	SuffixRefund   = "_refund"
	SuffixSplit    = "_split"
)

// Entry is one reconciled row of the unified sales ledger.
type Entry struct {
	ID uuid.UUID
	Key
	ItemType       ItemType
	AdjustmentType AdjustmentType
	Name           string
	Quantity       decimal.Decimal
	UnitPrice      money.Amount
	// TotalPrice is signed: sale/tax/tip rows are strictly positive,
	// discount/void/refund rows strictly negative. A row whose magnitude
	// would be zero is never written.
	TotalPrice money.Amount
	SoldAt     time.Time
	// CategoryID and IsCategorized are user-owned: the reconciler never
	// overwrites a value a user (or the classifier) has set.
	CategoryID    *uuid.UUID
	IsCategorized bool
	// ParentSaleID is set on rows created by a manual split. Children are
	// invisible to reconciliation and excluded from order-level totals.
	ParentSaleID *uuid.UUID
	Metadata     meta.Metadata
	SyncedAt     time.Time
}

// IsRevenue reports whether the row is a gross revenue row, the only kind
// the batch classifier may touch.
func (e Entry) IsRevenue() bool {
	return e.ItemType == ItemTypeSale && e.AdjustmentType == AdjustmentNone
}

// TotalMinor returns the signed total in minor units.
func (e Entry) TotalMinor() int64 {
	units, _ := e.TotalPrice.MinorUnits()
	return units
}

// AmountFromMinor builds a money amount from minor units, falling back to USD
// when the currency code is unknown.
func AmountFromMinor(currency string, minor int64) money.Amount {
	a, err := money.NewAmountFromMinorUnits(currency, minor)
	if err != nil {
		a, _ = money.NewAmountFromMinorUnits("USD", minor)
	}
	return a
}

// AmountFromDecimal converts a POS decimal into a money amount, rounding to
// the currency's minor units.
func AmountFromDecimal(currency string, d decimal.Decimal) money.Amount {
	return AmountFromMinor(currency, d.Shift(2).Round(0).IntPart())
}

// OrderSummary aggregates an order's ledger rows. Rows with a parent are a
// manual downstream split, not a POS fact, and are excluded.
type OrderSummary struct {
	GrossMinor   int64
	OffsetsMinor int64
	TaxMinor     int64
	TipMinor     int64
	NetMinor     int64
	TotalMinor   int64
}

// Summarize folds entries of one order into totals. Gross covers sale rows,
// offsets cover discount/void/refund rows; net = gross + offsets.
func Summarize(entries []Entry) OrderSummary {
	var s OrderSummary
	for _, e := range entries {
		if e.ParentSaleID != nil {
			continue
		}
		minor := e.TotalMinor()
		switch e.AdjustmentType {
		case AdjustmentNone:
			s.GrossMinor += minor
		case AdjustmentDiscount, AdjustmentVoid, AdjustmentRefund:
			s.OffsetsMinor += minor
		case AdjustmentTax:
			s.TaxMinor += minor
		case AdjustmentTip:
			s.TipMinor += minor
		}
	}
	s.NetMinor = s.GrossMinor + s.OffsetsMinor
	s.TotalMinor = s.NetMinor + s.TaxMinor + s.TipMinor
	return s
}
