package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeoahs/marketplace/internal/domain"
	"github.com/jeoahs/marketplace/internal/repository"
)

// Engine computes the financial split for a buyer's cart and persists
// the resulting order atomically with the stock reservation.
type Engine struct {
	db       *sql.DB
	products *repository.ProductRepo
	orders   *repository.OrderRepo
	schedule *FeeSchedule
	logger   *zap.Logger
}

func NewEngine(
	db *sql.DB,
	products *repository.ProductRepo,
	orders *repository.OrderRepo,
	schedule *FeeSchedule,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:       db,
		products: products,
		orders:   orders,
		schedule: schedule,
		logger:   logger.Named("settlement"),
	}
}

// Settle validates the cart against the catalog, computes the per-line
// and aggregate split, and persists the order in pending_payment. The
// call is all-or-nothing: stock decrements and the order insert share
// one transaction, so a failing line leaves no partial order behind.
func (e *Engine) Settle(ctx context.Context, buyerID string, lines []domain.CartLine) (*domain.Order, error) {
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	ids := make([]string, 0, len(lines))
	for i, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: line %d", domain.ErrInvalidQuantity, i)
		}
		ids = append(ids, line.ProductID)
	}

	// One batch resolve: lines referencing the same product see one
	// consistent record, and the engine never trusts cart-held prices.
	products, err := e.products.ResolveProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Stock is checked against the summed demand per product before any
	// write, so two lines of the same product cannot pass individually
	// and fail jointly.
	demand := make(map[string]int)
	for _, line := range lines {
		demand[line.ProductID] += line.Quantity
	}
	for _, id := range ids {
		if qty, ok := demand[id]; ok && qty > products[id].Stock {
			return nil, fmt.Errorf("%w: %s", domain.ErrInsufficientStock, id)
		}
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:            uuid.NewString(),
		BuyerID:       buyerID,
		Status:        domain.StatusPendingPayment,
		ItemsByVendor: make(map[string][]domain.SettledLineItem),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, line := range lines {
		product := products[line.ProductID]

		affiliateID := line.ClaimedAffiliateID
		if affiliateID == buyerID {
			// Self-referral is a policy violation, not a checkout
			// blocker: the attribution is dropped and the line settles
			// as a direct sale.
			e.logger.Info("stripping self-referral attribution",
				zap.String("buyer_id", buyerID),
				zap.String("product_id", product.ID))
			affiliateID = ""
		}

		subtotal := product.UnitPrice.MulInt(int64(line.Quantity))
		split := ComputeSplit(
			subtotal,
			product.AffiliateCommissionPercent,
			affiliateID != "",
			e.schedule.RateFor(product.VendorPlan),
		)

		item := domain.SettledLineItem{
			ProductID:           product.ID,
			ProductName:         product.Name,
			VendorID:            product.VendorID,
			Quantity:            line.Quantity,
			UnitPrice:           product.UnitPrice,
			LineSubtotal:        subtotal,
			AffiliateID:         affiliateID,
			AffiliateCommission: split.Commission,
			PlatformFee:         split.Fee,
			VendorNet:           split.VendorNet,
		}
		order.ItemsByVendor[product.VendorID] = append(order.ItemsByVendor[product.VendorID], item)

		order.Subtotal = order.Subtotal.Add(subtotal)
		order.TotalPlatformFee = order.TotalPlatformFee.Add(split.Fee)
		order.TotalAffiliateCommission = order.TotalAffiliateCommission.Add(split.Commission)
	}

	// The buyer pays the platform fee on top of the subtotal; commission
	// comes out of vendor revenue and never out of the buyer.
	order.TotalAmountDue = order.Subtotal.Add(order.TotalPlatformFee)
	order.PlatformRetained = order.TotalPlatformFee

	err = repository.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		for id, qty := range demand {
			if err := e.products.DecrementStock(ctx, tx, id, qty); err != nil {
				return err
			}
		}
		return e.orders.Create(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("order settled",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", buyerID),
		zap.Int("vendors", len(order.ItemsByVendor)),
		zap.String("amount_due", order.TotalAmountDue.String()))

	return order, nil
}
