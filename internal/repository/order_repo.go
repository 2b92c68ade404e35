package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeoahs/marketplace/internal/domain"
	"github.com/jeoahs/marketplace/internal/money"
)

type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// Create inserts the order and all its line items inside the caller's
// transaction. Financial fields are written here once and never updated.
func (r *OrderRepo) Create(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders
		(id, buyer_id, status, payment_reference, ledger_applied,
		 subtotal, total_platform_fee, total_affiliate_commission,
		 total_amount_due, platform_retained, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.BuyerID, string(o.Status), nullableString(o.PaymentReference),
		boolToInt(o.LedgerApplied),
		o.Subtotal.Cents(), o.TotalPlatformFee.Cents(),
		o.TotalAffiliateCommission.Cents(), o.TotalAmountDue.Cents(),
		o.PlatformRetained.Cents(),
		o.CreatedAt.Format(time.RFC3339), o.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO order_items
		(id, order_id, product_id, product_name, vendor_id, quantity,
		 unit_price, line_subtotal, affiliate_id, affiliate_commission,
		 platform_fee, vendor_net)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare items: %w", err)
	}
	defer stmt.Close()

	for vendorID, items := range o.ItemsByVendor {
		for i := range items {
			it := &items[i]
			_, err := stmt.ExecContext(ctx,
				uuid.NewString(), o.ID, it.ProductID, it.ProductName,
				vendorID, it.Quantity, it.UnitPrice.Cents(),
				it.LineSubtotal.Cents(), nullableString(it.AffiliateID),
				it.AffiliateCommission.Cents(), it.PlatformFee.Cents(),
				it.VendorNet.Cents(),
			)
			if err != nil {
				return fmt.Errorf("insert item %s: %w", it.ProductID, err)
			}
		}
	}
	return nil
}

// GetByID loads the order with its line items grouped by vendor.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrders+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	o, err := scanOrder(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepo) loadItems(ctx context.Context, o *domain.Order) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, product_name, vendor_id, quantity, unit_price,
			line_subtotal, affiliate_id, affiliate_commission, platform_fee,
			vendor_net
		FROM order_items WHERE order_id = ?`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	o.ItemsByVendor = make(map[string][]domain.SettledLineItem)
	for rows.Next() {
		var it domain.SettledLineItem
		var price, subtotal, commission, fee, net int64
		var affiliateNull sql.NullString

		err := rows.Scan(
			&it.ProductID, &it.ProductName, &it.VendorID, &it.Quantity,
			&price, &subtotal, &affiliateNull, &commission, &fee, &net,
		)
		if err != nil {
			return err
		}

		it.UnitPrice = money.FromCents(price)
		it.LineSubtotal = money.FromCents(subtotal)
		it.AffiliateCommission = money.FromCents(commission)
		it.PlatformFee = money.FromCents(fee)
		it.VendorNet = money.FromCents(net)
		if affiliateNull.Valid {
			it.AffiliateID = affiliateNull.String
		}

		o.ItemsByVendor[it.VendorID] = append(o.ItemsByVendor[it.VendorID], it)
	}
	return rows.Err()
}

// MarkPaid records the gateway reference and moves the order to paid. The
// conditional WHERE makes the transition a no-op once the order has left
// pending_payment, which is what serializes duplicate webhook deliveries.
func (r *OrderRepo) MarkPaid(ctx context.Context, id, paymentReference string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, payment_reference = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.StatusPaid), paymentReference,
		time.Now().UTC().Format(time.RFC3339),
		id, string(domain.StatusPendingPayment),
	)
	if err != nil {
		return fmt.Errorf("mark paid %s: %w", id, err)
	}
	return r.checkTransition(ctx, res, id)
}

// TransitionStatus moves the order from exactly one status to another.
func (r *OrderRepo) TransitionStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), time.Now().UTC().Format(time.RFC3339), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("transition %s to %s: %w", id, to, err)
	}
	return r.checkTransition(ctx, res, id)
}

func (r *OrderRepo) checkTransition(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE id = ?)", id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidTransition, id)
}

// MarkLedgerApplied flips the ledger-applied marker inside the caller's
// transaction. Zero rows affected means another application already won;
// callers must treat that as ErrAlreadyApplied and credit nothing.
func (r *OrderRepo) MarkLedgerApplied(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET ledger_applied = 1, updated_at = ? WHERE id = ? AND ledger_applied = 0",
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("mark ledger applied %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyApplied, id)
	}
	return nil
}

// SweepStalePending fails every pending_payment order created before the
// cutoff, so no order stays ambiguous forever.
func (r *OrderRepo) SweepStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status = ?, updated_at = ? WHERE status = ? AND created_at < ?",
		string(domain.StatusPaymentFailed),
		time.Now().UTC().Format(time.RFC3339),
		string(domain.StatusPendingPayment),
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep stale pending: %w", err)
	}
	return res.RowsAffected()
}

type OrderFilter struct {
	BuyerID  string
	VendorID string
	Status   string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

// List returns order headers (no line items) matching the filter, newest
// first, plus the unpaginated total.
func (r *OrderRepo) List(ctx context.Context, f OrderFilter) ([]domain.Order, int, error) {
	where, args := buildOrderWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM orders"+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := selectOrders + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *o)
	}
	return orders, total, rows.Err()
}

// AffiliateEarning is one commission-bearing line attributed to an
// affiliate, joined with its order's lifecycle state.
type AffiliateEarning struct {
	OrderID     string      `json:"order_id"`
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Commission  money.Money `json:"commission"`
	OrderStatus string      `json:"order_status"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ListAffiliateEarnings returns every attributed line for the affiliate
// and the total commission already settled to their wallet.
func (r *OrderRepo) ListAffiliateEarnings(ctx context.Context, affiliateID string) ([]AffiliateEarning, money.Money, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT oi.order_id, oi.product_id, oi.product_name,
			oi.affiliate_commission, o.status, o.created_at
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.affiliate_id = ?
		ORDER BY o.created_at DESC`, affiliateID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var earnings []AffiliateEarning
	var settled int64
	for rows.Next() {
		var e AffiliateEarning
		var commission int64
		var createdAt string
		if err := rows.Scan(&e.OrderID, &e.ProductID, &e.ProductName,
			&commission, &e.OrderStatus, &createdAt); err != nil {
			return nil, 0, err
		}
		e.Commission = money.FromCents(commission)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if domain.OrderStatus(e.OrderStatus) != domain.StatusPendingPayment &&
			domain.OrderStatus(e.OrderStatus) != domain.StatusPaymentFailed {
			settled += commission
		}
		earnings = append(earnings, e)
	}
	return earnings, money.FromCents(settled), rows.Err()
}

// DashboardStats aggregates order counts and settled money flows.
type DashboardStats struct {
	Total          int `json:"total"`
	PendingPayment int `json:"pending_payment"`
	Settled        int `json:"settled"`
	Failed         int `json:"failed"`

	SettledVolume     money.Money `json:"settled_volume"`
	PlatformFees      money.Money `json:"platform_fees"`
	AffiliatePayouts  money.Money `json:"affiliate_payouts"`
	OutstandingVolume money.Money `json:"outstanding_volume"`
}

// settledStatuses covers every state at or past ledger application.
const settledStatuses = "('settled','processing','shipped','delivered')"

func (r *OrderRepo) GetDashboardStats(ctx context.Context) (DashboardStats, error) {
	var s DashboardStats
	var volume, fees, payouts, outstanding int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status='pending_payment' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN `+settledStatuses+` THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='payment_failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN `+settledStatuses+` THEN total_amount_due ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN `+settledStatuses+` THEN platform_retained ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN `+settledStatuses+` THEN total_affiliate_commission ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='pending_payment' THEN total_amount_due ELSE 0 END), 0)
		FROM orders
	`).Scan(&s.Total, &s.PendingPayment, &s.Settled, &s.Failed,
		&volume, &fees, &payouts, &outstanding)
	if err != nil {
		return s, err
	}
	s.SettledVolume = money.FromCents(volume)
	s.PlatformFees = money.FromCents(fees)
	s.AffiliatePayouts = money.FromCents(payouts)
	s.OutstandingVolume = money.FromCents(outstanding)
	return s, nil
}

type VendorVolume struct {
	VendorID   string      `json:"vendor_id"`
	SettledNet money.Money `json:"settled_net"`
}

// GetVolumeByVendor sums settled net revenue per vendor.
func (r *OrderRepo) GetVolumeByVendor(ctx context.Context) ([]VendorVolume, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.vendor_id, COALESCE(SUM(oi.vendor_net), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status IN `+settledStatuses+`
		GROUP BY oi.vendor_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []VendorVolume
	for rows.Next() {
		var vv VendorVolume
		var net int64
		if err := rows.Scan(&vv.VendorID, &net); err != nil {
			return nil, err
		}
		vv.SettledNet = money.FromCents(net)
		result = append(result, vv)
	}
	return result, rows.Err()
}

// --- helpers ---

const selectOrders = `SELECT id, buyer_id, status, payment_reference,
	ledger_applied, subtotal, total_platform_fee,
	total_affiliate_commission, total_amount_due, platform_retained,
	created_at, updated_at
	FROM orders`

func buildOrderWhere(f OrderFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.BuyerID != "" {
		clauses = append(clauses, "buyer_id = ?")
		args = append(args, f.BuyerID)
	}
	if f.VendorID != "" {
		clauses = append(clauses, "id IN (SELECT order_id FROM order_items WHERE vendor_id = ?)")
		args = append(args, f.VendorID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.To.Format(time.RFC3339))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanOrder(rows *sql.Rows) (*domain.Order, error) {
	var o domain.Order
	var status, createdAt, updatedAt string
	var refNull sql.NullString
	var applied int
	var subtotal, fee, commission, due, retained int64

	err := rows.Scan(
		&o.ID, &o.BuyerID, &status, &refNull, &applied,
		&subtotal, &fee, &commission, &due, &retained,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = domain.OrderStatus(status)
	o.LedgerApplied = applied == 1
	o.Subtotal = money.FromCents(subtotal)
	o.TotalPlatformFee = money.FromCents(fee)
	o.TotalAffiliateCommission = money.FromCents(commission)
	o.TotalAmountDue = money.FromCents(due)
	o.PlatformRetained = money.FromCents(retained)
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if refNull.Valid {
		o.PaymentReference = refNull.String
	}

	return &o, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
