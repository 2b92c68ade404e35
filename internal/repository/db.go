package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// Serialize writers on one connection; balance updates and the
	// ledger-applied mark must never interleave mid-transaction.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL,
			name TEXT NOT NULL,
			unit_price INTEGER NOT NULL CHECK (unit_price >= 0),
			stock INTEGER NOT NULL CHECK (stock >= 0),
			affiliate_commission_percent INTEGER NOT NULL
				CHECK (affiliate_commission_percent BETWEEN 0 AND 100),
			vendor_plan TEXT NOT NULL DEFAULT 'standard',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_vendor ON products(vendor_id)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			buyer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_reference TEXT,
			ledger_applied INTEGER NOT NULL DEFAULT 0,
			subtotal INTEGER NOT NULL,
			total_platform_fee INTEGER NOT NULL,
			total_affiliate_commission INTEGER NOT NULL,
			total_amount_due INTEGER NOT NULL,
			platform_retained INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_payment_ref
			ON orders(payment_reference) WHERE payment_reference IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS order_items (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			vendor_id TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity >= 1),
			unit_price INTEGER NOT NULL,
			line_subtotal INTEGER NOT NULL,
			affiliate_id TEXT,
			affiliate_commission INTEGER NOT NULL,
			platform_fee INTEGER NOT NULL,
			vendor_net INTEGER NOT NULL CHECK (vendor_net >= 0),
			FOREIGN KEY (order_id) REFERENCES orders(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_vendor ON order_items(vendor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_affiliate ON order_items(affiliate_id)`,

		`CREATE TABLE IF NOT EXISTS wallets (
			user_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
