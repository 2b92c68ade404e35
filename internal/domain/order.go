package domain

import (
	"time"

	"github.com/jeoahs/marketplace/internal/money"
)

type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusPaid           OrderStatus = "paid"
	StatusSettled        OrderStatus = "settled"
	StatusPaymentFailed  OrderStatus = "payment_failed"

	// Fulfilment statuses, reachable only after settlement. They do not
	// affect financial state.
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
)

// Terminal reports whether no further payment event may change the order.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusSettled, StatusPaymentFailed, StatusProcessing, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// fulfilmentNext maps each status to the single fulfilment status a vendor
// may move it to.
var fulfilmentNext = map[OrderStatus]OrderStatus{
	StatusSettled:    StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// CanFulfil reports whether a vendor may transition the order to next.
func (s OrderStatus) CanFulfil(next OrderStatus) bool {
	return fulfilmentNext[s] == next
}

// SettledLineItem is the per-line financial split, immutable once the
// order is created. Invariant: AffiliateCommission + PlatformFee +
// VendorNet == LineSubtotal exactly; rounding remainder goes to VendorNet.
type SettledLineItem struct {
	ProductID           string      `json:"product_id"`
	ProductName         string      `json:"product_name"`
	VendorID            string      `json:"vendor_id"`
	Quantity            int         `json:"quantity"`
	UnitPrice           money.Money `json:"unit_price"`
	LineSubtotal        money.Money `json:"line_subtotal"`
	AffiliateID         string      `json:"affiliate_id,omitempty"`
	AffiliateCommission money.Money `json:"affiliate_commission"`
	PlatformFee         money.Money `json:"platform_fee"`
	VendorNet           money.Money `json:"vendor_net"`
}

// Order is the settlement aggregate. Line item financial fields are
// written once at creation; only status, payment reference and the
// ledger-applied marker change afterwards.
type Order struct {
	ID               string                       `json:"id"`
	BuyerID          string                       `json:"buyer_id"`
	Status           OrderStatus                  `json:"status"`
	PaymentReference string                       `json:"payment_reference,omitempty"`
	LedgerApplied    bool                         `json:"ledger_applied"`
	ItemsByVendor    map[string][]SettledLineItem `json:"items_by_vendor,omitempty"`

	Subtotal                 money.Money `json:"subtotal"`
	TotalPlatformFee         money.Money `json:"total_platform_fee"`
	TotalAffiliateCommission money.Money `json:"total_affiliate_commission"`
	// TotalAmountDue is what the buyer pays: subtotal plus the platform
	// fee. Commission is carved out of vendor revenue, not added on top.
	TotalAmountDue money.Money `json:"total_amount_due"`
	// PlatformRetained makes the platform's take on the order explicit.
	// Commission on lines without an attributed affiliate stays with the
	// vendor, so this equals the fee total.
	PlatformRetained money.Money `json:"platform_retained"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lines iterates all line items regardless of vendor grouping.
func (o *Order) Lines() []SettledLineItem {
	var out []SettledLineItem
	for _, items := range o.ItemsByVendor {
		out = append(out, items...)
	}
	return out
}

// VendorNetTotals sums net revenue per vendor.
func (o *Order) VendorNetTotals() map[string]money.Money {
	totals := make(map[string]money.Money, len(o.ItemsByVendor))
	for vendorID, items := range o.ItemsByVendor {
		for _, it := range items {
			totals[vendorID] = totals[vendorID].Add(it.VendorNet)
		}
	}
	return totals
}

// AffiliateCommissionTotals sums commission per attributed affiliate.
func (o *Order) AffiliateCommissionTotals() map[string]money.Money {
	totals := make(map[string]money.Money)
	for _, it := range o.Lines() {
		if it.AffiliateID == "" {
			continue
		}
		totals[it.AffiliateID] = totals[it.AffiliateID].Add(it.AffiliateCommission)
	}
	return totals
}
