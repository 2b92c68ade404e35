package domain

import (
	"time"

	"github.com/jeoahs/marketplace/internal/money"
)

// WalletBalance is a per-user running balance of funds owed. It is
// mutated only through atomic increments keyed by order, never by
// direct overwrite.
type WalletBalance struct {
	UserID    string      `json:"user_id"`
	Balance   money.Money `json:"balance"`
	UpdatedAt time.Time   `json:"updated_at"`
}
