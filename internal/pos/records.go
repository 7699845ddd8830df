// Package pos holds the source records replicated from a point-of-sale
// provider. These rows are the input to reconciliation and are never written
// by this service; corrections pushed by the POS arrive as ordinary
// re-replication and are picked up on the next sync.
package pos

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is one checkout as reported by the POS.
type Order struct {
	RestaurantID uuid.UUID
	POSSystem    string
	ExternalID   string
	OrderedAt    time.Time
	Currency     string
	GrossTotal   decimal.Decimal
	// Tax and Discount are order-level and optional; nil means the POS sent
	// nothing, which is ordinary for e.g. tax-exempt or undiscounted orders.
	Tax      *decimal.Decimal
	Discount *decimal.Decimal
	Raw      json.RawMessage
}

// OrderItem is one line of an order. Quantity and the price fields describe a
// line total, not a per-unit price: unit price is derived by dividing the
// line gross by the quantity, never by multiplying the quantity back in.
type OrderItem struct {
	OrderExternalID string
	ExternalID      string // unique within the order
	Name            string
	Quantity        decimal.Decimal
	GrossAmount     decimal.Decimal // line total before discounts
	NetAmount       decimal.Decimal // line total after discounts
	Voided          bool
	DiscountAmount  *decimal.Decimal
	CategoryHint    string
}

// PaymentStatus enumerates the payment states the POS reports.
type PaymentStatus string

const (
	PaymentStatusPaid            PaymentStatus = "paid"
	PaymentStatusDenied          PaymentStatus = "denied"
	PaymentStatusVoided          PaymentStatus = "voided"
	PaymentStatusRefundedFull    PaymentStatus = "refunded_full"
	PaymentStatusRefundedPartial PaymentStatus = "refunded_partial"
)

// TipEligible reports whether a tip on this payment counts as revenue.
// Denied and voided payments never tip out.
func (s PaymentStatus) TipEligible() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusRefundedFull, PaymentStatusRefundedPartial:
		return true
	}
	return false
}

// RefundStatus enumerates the refund states of a payment.
type RefundStatus string

const (
	RefundStatusNone    RefundStatus = "none"
	RefundStatusPartial RefundStatus = "partial"
	RefundStatusFull    RefundStatus = "full"
)

// Payment is one tender against an order. Refund amounts arrive in minor
// currency units (cents), as the provider reports them.
type Payment struct {
	ExternalID        string
	OrderExternalID   string
	PaidAt            time.Time
	Tip               *decimal.Decimal
	Status            PaymentStatus
	RefundAmountMinor int64
	RefundStatus      RefundStatus
}

// OrderBundle groups an order with its replicated items and payments.
// Payments or items whose parent order has not been replicated yet are not
// bundled; they simply wait for a later run.
type OrderBundle struct {
	Order    Order
	Items    []OrderItem
	Payments []Payment
}
