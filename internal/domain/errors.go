package domain

import "errors"

var (
	// Input errors: reported to the caller, nothing persisted.
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")

	// Integrity errors: rejected or treated as a no-op, never retried as
	// if successful.
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrAlreadyApplied    = errors.New("settlement already applied to ledger")
	ErrInvalidTransition = errors.New("invalid order status transition")

	ErrOrderNotFound  = errors.New("order not found")
	ErrWalletNotFound = errors.New("wallet not found")
)
