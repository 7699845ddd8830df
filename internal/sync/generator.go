package sync

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hmaung/salesync/internal/ledger"
	"github.com/hmaung/salesync/internal/meta"
	"github.com/hmaung/salesync/internal/pos"
)

// Generate is the pure gross+offset computation: given one source order with
// its items and payments, it returns every ledger row that should exist for
// that order. The gross fact is always emitted in full and each adjustment
// (discount, void, refund) is a separate negative offset row; amounts are
// never netted arithmetically. Facts with a zero or missing magnitude
// produce no row at all, which is the expected steady state for e.g. cash
// orders with no tip.
func Generate(b pos.OrderBundle, syncedAt time.Time) []ledger.Entry {
	order := b.Order
	out := make([]ledger.Entry, 0, len(b.Items)+len(b.Payments)+1)

	key := func(itemID string) ledger.Key {
		return ledger.Key{
			RestaurantID:    order.RestaurantID,
			POSSystem:       order.POSSystem,
			ExternalOrderID: order.ExternalID,
			ExternalItemID:  itemID,
		}
	}

	for _, item := range b.Items {
		if item.Voided {
			// A voided item yields a single void offset and nothing else:
			// no sale row, no discount row. The offset retracts the
			// original gross in full.
			if item.GrossAmount.IsPositive() {
				out = append(out, ledger.Entry{
					ID:             uuid.New(),
					Key:            key(item.ExternalID + ledger.SuffixVoid),
					ItemType:       ledger.ItemTypeSale,
					AdjustmentType: ledger.AdjustmentVoid,
					Name:           item.Name,
					Quantity:       orOne(item.Quantity),
					UnitPrice:      ledger.AmountFromDecimal(order.Currency, unitPrice(item).Neg()),
					TotalPrice:     ledger.AmountFromDecimal(order.Currency, item.GrossAmount.Neg()),
					SoldAt:         order.OrderedAt,
					Metadata:       meta.New(map[string]string{"voided": "true"}),
					SyncedAt:       syncedAt,
				})
			}
			continue
		}

		if item.GrossAmount.IsPositive() {
			md := meta.New(nil)
			if item.CategoryHint != "" {
				md.Set("category_hint", item.CategoryHint)
			}
			out = append(out, ledger.Entry{
				ID:             uuid.New(),
				Key:            key(item.ExternalID),
				ItemType:       ledger.ItemTypeSale,
				AdjustmentType: ledger.AdjustmentNone,
				Name:           item.Name,
				Quantity:       orOne(item.Quantity),
				UnitPrice:      ledger.AmountFromDecimal(order.Currency, unitPrice(item)),
				TotalPrice:     ledger.AmountFromDecimal(order.Currency, item.GrossAmount),
				SoldAt:         order.OrderedAt,
				Metadata:       md,
				SyncedAt:       syncedAt,
			})
		}

		if item.DiscountAmount != nil && item.DiscountAmount.IsPositive() {
			out = append(out, ledger.Entry{
				ID:             uuid.New(),
				Key:            key(item.ExternalID + ledger.SuffixDiscount),
				ItemType:       ledger.ItemTypeDiscount,
				AdjustmentType: ledger.AdjustmentDiscount,
				Name:           item.Name,
				Quantity:       decimal.NewFromInt(1),
				UnitPrice:      ledger.AmountFromDecimal(order.Currency, item.DiscountAmount.Neg()),
				TotalPrice:     ledger.AmountFromDecimal(order.Currency, item.DiscountAmount.Neg()),
				SoldAt:         order.OrderedAt,
				SyncedAt:       syncedAt,
			})
		}
	}

	if order.Tax != nil && order.Tax.IsPositive() {
		out = append(out, ledger.Entry{
			ID:             uuid.New(),
			Key:            key(order.ExternalID + ledger.SuffixTax),
			ItemType:       ledger.ItemTypeTax,
			AdjustmentType: ledger.AdjustmentTax,
			Name:           "Sales Tax",
			Quantity:       decimal.NewFromInt(1),
			UnitPrice:      ledger.AmountFromDecimal(order.Currency, *order.Tax),
			TotalPrice:     ledger.AmountFromDecimal(order.Currency, *order.Tax),
			SoldAt:         order.OrderedAt,
			SyncedAt:       syncedAt,
		})
	}

	// Payment-derived rows are stamped with the order's date, not the
	// payment's. Every row of an order shares one window axis, so a windowed
	// resync always sees the order and its derived rows together; the actual
	// payment timestamp rides in metadata.
	for _, p := range b.Payments {
		if p.Status.TipEligible() && p.Tip != nil && p.Tip.IsPositive() {
			out = append(out, ledger.Entry{
				ID:             uuid.New(),
				Key:            key(p.ExternalID + ledger.SuffixTip),
				ItemType:       ledger.ItemTypeTip,
				AdjustmentType: ledger.AdjustmentTip,
				Name:           "Tip",
				Quantity:       decimal.NewFromInt(1),
				UnitPrice:      ledger.AmountFromDecimal(order.Currency, *p.Tip),
				TotalPrice:     ledger.AmountFromDecimal(order.Currency, *p.Tip),
				SoldAt:         order.OrderedAt,
				Metadata: meta.New(map[string]string{
					"payment_status": string(p.Status),
					"paid_at":        p.PaidAt.UTC().Format(time.RFC3339),
				}),
				SyncedAt: syncedAt,
			})
		}

		if p.RefundStatus != pos.RefundStatusNone && p.RefundAmountMinor > 0 {
			// The provider reports refunds in minor units.
			out = append(out, ledger.Entry{
				ID:             uuid.New(),
				Key:            key(p.ExternalID + ledger.SuffixRefund),
				ItemType:       ledger.ItemTypeRefund,
				AdjustmentType: ledger.AdjustmentRefund,
				Name:           "Refund",
				Quantity:       decimal.NewFromInt(1),
				UnitPrice:      ledger.AmountFromMinor(order.Currency, -p.RefundAmountMinor),
				TotalPrice:     ledger.AmountFromMinor(order.Currency, -p.RefundAmountMinor),
				SoldAt:         order.OrderedAt,
				Metadata: meta.New(map[string]string{
					"refund_status": string(p.RefundStatus),
					"paid_at":       p.PaidAt.UTC().Format(time.RFC3339),
				}),
				SyncedAt: syncedAt,
			})
		}
	}

	return out
}

// unitPrice derives the per-unit price from the line total. POS line amounts
// are already aggregated across quantity; multiplying the quantity back in
// would double count.
func unitPrice(item pos.OrderItem) decimal.Decimal {
	qty := orOne(item.Quantity)
	return item.GrossAmount.DivRound(qty, 2)
}

func orOne(qty decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return decimal.NewFromInt(1)
	}
	return qty
}
