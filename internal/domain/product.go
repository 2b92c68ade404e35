package domain

import (
	"time"

	"github.com/jeoahs/marketplace/internal/money"
)

// Product is the authoritative catalog record. Settlement always reads
// price, stock and commission rate from here, never from the client cart.
type Product struct {
	ID                         string      `json:"id"`
	VendorID                   string      `json:"vendor_id"`
	Name                       string      `json:"name"`
	UnitPrice                  money.Money `json:"unit_price"`
	Stock                      int         `json:"stock"`
	AffiliateCommissionPercent int         `json:"affiliate_commission_percent"`
	VendorPlan                 string      `json:"vendor_plan"`
	CreatedAt                  time.Time   `json:"created_at"`
}

// CartLine is client-supplied and untrusted. The claimed price and
// affiliate are advisory; settlement re-derives both.
type CartLine struct {
	ProductID          string      `json:"product_id"`
	Quantity           int         `json:"quantity"`
	ClaimedAffiliateID string      `json:"affiliate_id,omitempty"`
	ClaimedUnitPrice   money.Money `json:"claimed_unit_price,omitempty"`
}
