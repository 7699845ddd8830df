package sync

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmaung/salesync/internal/ledger"
	"github.com/hmaung/salesync/internal/pos"
)

var genNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func testBundle() pos.OrderBundle {
	return pos.OrderBundle{
		Order: pos.Order{
			RestaurantID: uuid.New(),
			POSSystem:    "toast",
			ExternalID:   "ord-1",
			OrderedAt:    genNow.Add(-2 * time.Hour),
			Currency:     "USD",
			GrossTotal:   dec("28.95"),
		},
	}
}

func findByItemID(entries []ledger.Entry, itemID string) (ledger.Entry, bool) {
	for _, e := range entries {
		if e.ExternalItemID == itemID {
			return e, true
		}
	}
	return ledger.Entry{}, false
}

func TestGenerateDerivesUnitPriceByDivision(t *testing.T) {
	b := testBundle()
	b.Items = []pos.OrderItem{{
		OrderExternalID: "ord-1",
		ExternalID:      "it-1",
		Name:            "Burger",
		Quantity:        dec("2"),
		GrossAmount:     dec("20.00"),
	}}

	entries := Generate(b, genNow)
	require.Len(t, entries, 1)

	sale := entries[0]
	assert.Equal(t, ledger.ItemTypeSale, sale.ItemType)
	assert.Equal(t, ledger.AdjustmentNone, sale.AdjustmentType)
	unit, _ := sale.UnitPrice.MinorUnits()
	assert.Equal(t, int64(1000), unit, "20.00 over quantity 2 is 10.00 per unit")
	assert.Equal(t, int64(2000), sale.TotalMinor())
}

func TestGenerateZeroQuantityTreatedAsOne(t *testing.T) {
	b := testBundle()
	b.Items = []pos.OrderItem{{
		ExternalID:  "it-1",
		Name:        "Service Charge",
		Quantity:    decimal.Zero,
		GrossAmount: dec("5.00"),
	}}

	entries := Generate(b, genNow)
	require.Len(t, entries, 1)
	unit, _ := entries[0].UnitPrice.MinorUnits()
	assert.Equal(t, int64(500), unit)
}

func TestGenerateVoidedItemEmitsOnlyVoidOffset(t *testing.T) {
	b := testBundle()
	b.Items = []pos.OrderItem{{
		ExternalID:     "it-1",
		Name:           "Nachos",
		Quantity:       dec("1"),
		GrossAmount:    dec("12.50"),
		Voided:         true,
		DiscountAmount: decp("2.00"), // must be ignored once voided
	}}

	entries := Generate(b, genNow)
	require.Len(t, entries, 1, "a voided item yields the void offset and nothing else")

	void := entries[0]
	assert.Equal(t, "it-1"+ledger.SuffixVoid, void.ExternalItemID)
	assert.Equal(t, ledger.ItemTypeSale, void.ItemType)
	assert.Equal(t, ledger.AdjustmentVoid, void.AdjustmentType)
	assert.Equal(t, int64(-1250), void.TotalMinor())

	_, hasSale := findByItemID(entries, "it-1")
	assert.False(t, hasSale)
	_, hasDiscount := findByItemID(entries, "it-1"+ledger.SuffixDiscount)
	assert.False(t, hasDiscount)
}

func TestGenerateSkipsZeroAndMissingMagnitudes(t *testing.T) {
	b := testBundle()
	b.Order.Tax = decp("0")
	b.Items = []pos.OrderItem{{
		ExternalID:     "it-1",
		Name:           "Water",
		Quantity:       dec("1"),
		GrossAmount:    decimal.Zero,
		DiscountAmount: decp("0"),
	}}
	b.Payments = []pos.Payment{{
		ExternalID: "pay-1",
		PaidAt:     genNow,
		Status:     pos.PaymentStatusPaid,
		// no tip, no refund
	}}

	entries := Generate(b, genNow)
	assert.Empty(t, entries, "zero or missing magnitudes must produce no rows")
}

func TestGenerateTipOnlyForEligiblePayments(t *testing.T) {
	b := testBundle()
	b.Payments = []pos.Payment{
		{ExternalID: "pay-denied", PaidAt: genNow, Tip: decp("3.00"), Status: pos.PaymentStatusDenied},
		{ExternalID: "pay-voided", PaidAt: genNow, Tip: decp("3.00"), Status: pos.PaymentStatusVoided},
		{ExternalID: "pay-ok", PaidAt: genNow, Tip: decp("3.00"), Status: pos.PaymentStatusPaid},
	}

	entries := Generate(b, genNow)
	require.Len(t, entries, 1)
	tip := entries[0]
	assert.Equal(t, "pay-ok"+ledger.SuffixTip, tip.ExternalItemID)
	assert.Equal(t, ledger.ItemTypeTip, tip.ItemType)
	assert.Equal(t, int64(300), tip.TotalMinor())
	assert.Equal(t, b.Order.OrderedAt, tip.SoldAt, "payment rows carry the order's date")
	status, _ := tip.Metadata.Get("payment_status")
	assert.Equal(t, "paid", status)
	paidAt, _ := tip.Metadata.Get("paid_at")
	assert.Equal(t, genNow.UTC().Format(time.RFC3339), paidAt)
}

func TestGenerateRefundConvertsMinorUnitsNegative(t *testing.T) {
	b := testBundle()
	b.Payments = []pos.Payment{{
		ExternalID:        "pay-1",
		PaidAt:            genNow,
		Status:            pos.PaymentStatusRefundedPartial,
		RefundStatus:      pos.RefundStatusPartial,
		RefundAmountMinor: 5000,
	}}

	entries := Generate(b, genNow)
	require.Len(t, entries, 1)
	refund := entries[0]
	assert.Equal(t, ledger.ItemTypeRefund, refund.ItemType)
	assert.Equal(t, ledger.AdjustmentRefund, refund.AdjustmentType)
	assert.Equal(t, int64(-5000), refund.TotalMinor(), "5000 minor units refund is -50.00")
}

func TestGenerateGrossPlusOffsetsEqualsNet(t *testing.T) {
	b := testBundle()
	b.Order.Tax = decp("2.10")
	b.Items = []pos.OrderItem{
		{ExternalID: "it-1", Name: "Pasta", Quantity: dec("1"), GrossAmount: dec("18.95"), DiscountAmount: decp("2.90"), CategoryHint: "mains"},
		{ExternalID: "it-2", Name: "Lemonade", Quantity: dec("2"), GrossAmount: dec("10.00")},
	}

	entries := Generate(b, genNow)

	sum := ledger.Summarize(entries)
	assert.Equal(t, int64(2895), sum.GrossMinor)
	assert.Equal(t, int64(-290), sum.OffsetsMinor)
	assert.Equal(t, int64(2605), sum.NetMinor, "net is gross plus offsets, never computed arithmetically per row")
	assert.Equal(t, int64(210), sum.TaxMinor)
	assert.Equal(t, int64(2815), sum.TotalMinor)

	sale, ok := findByItemID(entries, "it-1")
	require.True(t, ok)
	hint, _ := sale.Metadata.Get("category_hint")
	assert.Equal(t, "mains", hint)
	assert.False(t, sale.IsCategorized)

	disc, ok := findByItemID(entries, "it-1"+ledger.SuffixDiscount)
	require.True(t, ok)
	assert.Equal(t, int64(-290), disc.TotalMinor())
}

func TestGenerateSignConventions(t *testing.T) {
	b := testBundle()
	b.Order.Tax = decp("1.00")
	b.Items = []pos.OrderItem{
		{ExternalID: "it-1", Name: "Soup", Quantity: dec("1"), GrossAmount: dec("8.00"), DiscountAmount: decp("1.00")},
		{ExternalID: "it-2", Name: "Stale Bread", Quantity: dec("1"), GrossAmount: dec("3.00"), Voided: true},
	}
	b.Payments = []pos.Payment{{
		ExternalID:        "pay-1",
		PaidAt:            genNow,
		Tip:               decp("2.00"),
		Status:            pos.PaymentStatusRefundedPartial,
		RefundStatus:      pos.RefundStatusPartial,
		RefundAmountMinor: 400,
	}}

	for _, e := range Generate(b, genNow) {
		minor := e.TotalMinor()
		switch e.ItemType {
		case ledger.ItemTypeSale:
			if e.AdjustmentType == ledger.AdjustmentVoid {
				assert.Negative(t, minor, "void offsets are negative")
			} else {
				assert.Positive(t, minor, "sale rows are positive")
			}
		case ledger.ItemTypeTax, ledger.ItemTypeTip:
			assert.Positive(t, minor)
		case ledger.ItemTypeDiscount, ledger.ItemTypeRefund:
			assert.Negative(t, minor)
		}
	}
}
