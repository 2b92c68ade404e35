package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jeoahs/marketplace/internal/domain"
	"github.com/jeoahs/marketplace/internal/money"
)

type WalletRepo struct {
	db *sql.DB
}

func NewWalletRepo(db *sql.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// Credit adds amount to the user's balance inside the caller's
// transaction. The upsert increments in SQL, so concurrent settlements
// touching the same wallet can never lose an update; the row is created
// on first credit.
func (r *WalletRepo) Credit(ctx context.Context, tx *sql.Tx, userID string, amount money.Money) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO wallets (user_id, balance, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			balance = balance + excluded.balance,
			updated_at = excluded.updated_at`,
		userID, amount.Cents(), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("credit wallet %s: %w", userID, err)
	}
	return nil
}

func (r *WalletRepo) GetBalance(ctx context.Context, userID string) (*domain.WalletBalance, error) {
	var w domain.WalletBalance
	var balance int64
	var updatedAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, balance, updated_at FROM wallets WHERE user_id = ?",
		userID,
	).Scan(&w.UserID, &balance, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, userID)
	}
	if err != nil {
		return nil, err
	}

	w.Balance = money.FromCents(balance)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}
