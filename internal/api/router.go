package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jeoahs/marketplace/internal/payments"
	"github.com/jeoahs/marketplace/internal/repository"
	"github.com/jeoahs/marketplace/internal/settlement"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	engine *settlement.Engine,
	reconciler *payments.Reconciler,
	orders *repository.OrderRepo,
	wallets *repository.WalletRepo,
	webhookSecret string,
	webhookTolerance time.Duration,
	logger *zap.Logger,
) http.Handler {
	h := &Handlers{
		engine:           engine,
		reconciler:       reconciler,
		orders:           orders,
		wallets:          wallets,
		webhookSecret:    webhookSecret,
		webhookTolerance: webhookTolerance,
		logger:           logger.Named("api"),
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Checkout / settlement.
		r.Post("/checkout", h.Checkout)

		// Payment gateway callbacks.
		r.Post("/webhooks/payment", h.PaymentWebhook)

		// Orders.
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Patch("/orders/{id}/fulfilment", h.UpdateFulfilment)

		// Wallets.
		r.Get("/wallets/{userID}", h.GetWallet)

		// Affiliates.
		r.Get("/affiliates/{id}/earnings", h.GetAffiliateEarnings)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
