package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jeoahs/marketplace/internal/domain"
	"github.com/jeoahs/marketplace/internal/money"
)

type ProductRepo struct {
	db *sql.DB
}

func NewProductRepo(db *sql.DB) *ProductRepo {
	return &ProductRepo{db: db}
}

// ResolveProducts fetches the authoritative records for every distinct id
// in one batch. It fails with ErrProductNotFound naming the first missing
// id, so a tampered or stale cart can never settle against prices the
// catalog no longer holds.
func (r *ProductRepo) ResolveProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	distinct := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}
	if len(distinct) == 0 {
		return map[string]domain.Product{}, nil
	}

	placeholders := strings.Repeat("?,", len(distinct))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(distinct))
	for i, id := range distinct {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, vendor_id, name, unit_price, stock,
			affiliate_commission_percent, vendor_plan, created_at
		FROM products WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	resolved := make(map[string]domain.Product, len(distinct))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		resolved[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range distinct {
		if _, ok := resolved[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
		}
	}
	return resolved, nil
}

// DecrementStock atomically reserves qty units inside the caller's
// transaction. The conditional WHERE makes "check then decrement" a single
// write; zero rows affected means the stock ran out.
func (r *ProductRepo) DecrementStock(ctx context.Context, tx *sql.Tx, productID string, qty int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?",
		qty, productID, qty,
	)
	if err != nil {
		return fmt.Errorf("decrement stock %s: %w", productID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock %s: %w", productID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, productID)
	}
	return nil
}

func (r *ProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, vendor_id, name, unit_price, stock,
			affiliate_commission_percent, vendor_plan, created_at
		FROM products WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	return scanProduct(rows)
}

func (r *ProductRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&count)
	return count, err
}

func (r *ProductRepo) BulkInsert(ctx context.Context, products []domain.Product) (int, error) {
	var inserted int
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO products
			(id, vendor_id, name, unit_price, stock,
			 affiliate_commission_percent, vendor_plan, created_at)
			VALUES (?,?,?,?,?,?,?,?)`,
		)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for i := range products {
			p := &products[i]
			res, err := stmt.ExecContext(ctx,
				p.ID, p.VendorID, p.Name, p.UnitPrice.Cents(), p.Stock,
				p.AffiliateCommissionPercent, p.VendorPlan,
				p.CreatedAt.Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("insert product %d: %w", i, err)
			}
			ra, _ := res.RowsAffected()
			inserted += int(ra)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func scanProduct(rows *sql.Rows) (*domain.Product, error) {
	var p domain.Product
	var price int64
	var createdAt string

	err := rows.Scan(
		&p.ID, &p.VendorID, &p.Name, &price, &p.Stock,
		&p.AffiliateCommissionPercent, &p.VendorPlan, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	p.UnitPrice = money.FromCents(price)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}
