package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jeoahs/marketplace/internal/domain"
	"github.com/jeoahs/marketplace/internal/ledger"
	"github.com/jeoahs/marketplace/internal/repository"
)

// Gateway event types the reconciler acts on. Anything else is
// acknowledged and ignored.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// Event is the verified gateway payload. The order is located through
// metadata, mirroring how the payment intent was created.
type Event struct {
	Type             string        `json:"type"`
	PaymentReference string        `json:"payment_reference"`
	Metadata         EventMetadata `json:"metadata"`
}

type EventMetadata struct {
	OrderID string `json:"order_id"`
}

// Result is what gets acknowledged back to the gateway.
type Result struct {
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
	Applied bool               `json:"ledger_applied"`
}

// Reconciler consumes payment confirmations and drives each order
// through pending_payment -> paid -> settled, or to payment_failed. The
// gateway delivers at least once, so every path here is an idempotent
// no-op on redelivery.
type Reconciler struct {
	orders         *repository.OrderRepo
	ledger         *ledger.Ledger
	pendingTimeout time.Duration
	logger         *zap.Logger
}

func NewReconciler(orders *repository.OrderRepo, l *ledger.Ledger, pendingTimeout time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		orders:         orders,
		ledger:         l,
		pendingTimeout: pendingTimeout,
		logger:         logger.Named("payments"),
	}
}

// HandleEvent processes one signature-verified event. Events for orders
// already terminal are acknowledged without side effects.
func (r *Reconciler) HandleEvent(ctx context.Context, ev Event) (*Result, error) {
	if ev.Metadata.OrderID == "" {
		return nil, fmt.Errorf("%w: event has no order metadata", domain.ErrOrderNotFound)
	}

	order, err := r.orders.GetByID(ctx, ev.Metadata.OrderID)
	if err != nil {
		return nil, err
	}

	if order.Status.Terminal() {
		r.logger.Info("event for terminal order acknowledged",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
			zap.String("event_type", ev.Type))
		return &Result{OrderID: order.ID, Status: order.Status, Applied: order.LedgerApplied}, nil
	}

	switch ev.Type {
	case EventPaymentSucceeded:
		return r.settle(ctx, order, ev.PaymentReference)
	case EventPaymentFailed:
		return r.fail(ctx, order)
	default:
		r.logger.Info("ignoring unhandled event type",
			zap.String("event_type", ev.Type),
			zap.String("order_id", order.ID))
		return &Result{OrderID: order.ID, Status: order.Status, Applied: order.LedgerApplied}, nil
	}
}

func (r *Reconciler) settle(ctx context.Context, order *domain.Order, paymentReference string) (*Result, error) {
	if err := r.orders.MarkPaid(ctx, order.ID, paymentReference); err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) {
			return nil, err
		}
		// A concurrent or earlier delivery moved the order first. If it
		// stalled in paid (e.g. a crash before ledger application), the
		// retry resumes settlement; otherwise just acknowledge.
		current, err := r.orders.GetByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current.Status != domain.StatusPaid {
			return &Result{OrderID: current.ID, Status: current.Status, Applied: current.LedgerApplied}, nil
		}
		order = current
	}

	if err := r.ledger.ApplySettlement(ctx, order); err != nil {
		if !errors.Is(err, domain.ErrAlreadyApplied) {
			return nil, err
		}
		r.logger.Warn("ledger already applied, skipping credit",
			zap.String("order_id", order.ID))
	}

	if err := r.orders.TransitionStatus(ctx, order.ID, domain.StatusPaid, domain.StatusSettled); err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) {
			return nil, err
		}
	}

	r.logger.Info("order settled from gateway confirmation",
		zap.String("order_id", order.ID),
		zap.String("payment_reference", paymentReference))

	return &Result{OrderID: order.ID, Status: domain.StatusSettled, Applied: true}, nil
}

func (r *Reconciler) fail(ctx context.Context, order *domain.Order) (*Result, error) {
	err := r.orders.TransitionStatus(ctx, order.ID, domain.StatusPendingPayment, domain.StatusPaymentFailed)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return r.ackCurrent(ctx, order.ID)
		}
		return nil, err
	}

	r.logger.Info("order marked payment_failed",
		zap.String("order_id", order.ID))

	return &Result{OrderID: order.ID, Status: domain.StatusPaymentFailed, Applied: false}, nil
}

func (r *Reconciler) ackCurrent(ctx context.Context, orderID string) (*Result, error) {
	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &Result{OrderID: order.ID, Status: order.Status, Applied: order.LedgerApplied}, nil
}

// SweepStalePending fails orders stuck in pending_payment longer than
// the configured timeout, so no order stays ambiguous forever.
func (r *Reconciler) SweepStalePending(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.pendingTimeout)
	n, err := r.orders.SweepStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("swept stale pending orders",
			zap.Int64("count", n),
			zap.Time("cutoff", cutoff))
	}
	return n, nil
}
