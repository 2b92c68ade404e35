package ledger

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/jeoahs/marketplace/internal/domain"
	"github.com/jeoahs/marketplace/internal/repository"
)

// Ledger applies settled orders to per-user wallet balances. Application
// is idempotent: the ledger-applied marker is flipped in the same
// transaction as every balance increment, so a duplicate delivery either
// sees the marker and credits nothing, or loses the conditional update.
type Ledger struct {
	db      *sql.DB
	orders  *repository.OrderRepo
	wallets *repository.WalletRepo
	logger  *zap.Logger
}

func New(db *sql.DB, orders *repository.OrderRepo, wallets *repository.WalletRepo, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:      db,
		orders:  orders,
		wallets: wallets,
		logger:  logger.Named("ledger"),
	}
}

// ApplySettlement credits each vendor with their lines' net revenue and
// each attributed affiliate with their commission. Applying the same
// order twice fails with ErrAlreadyApplied and credits nothing.
func (l *Ledger) ApplySettlement(ctx context.Context, order *domain.Order) error {
	err := repository.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		if err := l.orders.MarkLedgerApplied(ctx, tx, order.ID); err != nil {
			return err
		}

		for vendorID, net := range order.VendorNetTotals() {
			if err := l.wallets.Credit(ctx, tx, vendorID, net); err != nil {
				return err
			}
		}
		for affiliateID, commission := range order.AffiliateCommissionTotals() {
			if err := l.wallets.Credit(ctx, tx, affiliateID, commission); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("settlement applied",
		zap.String("order_id", order.ID),
		zap.Int("vendors", len(order.ItemsByVendor)),
		zap.String("platform_retained", order.PlatformRetained.String()))

	return nil
}
