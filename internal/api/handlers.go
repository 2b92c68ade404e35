package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jeoahs/marketplace/internal/domain"
	"github.com/jeoahs/marketplace/internal/payments"
	"github.com/jeoahs/marketplace/internal/repository"
	"github.com/jeoahs/marketplace/internal/settlement"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	engine     *settlement.Engine
	reconciler *payments.Reconciler
	orders     *repository.OrderRepo
	wallets    *repository.WalletRepo

	webhookSecret    string
	webhookTolerance time.Duration
	logger           *zap.Logger
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- Checkout ---

type checkoutRequest struct {
	BuyerID string            `json:"buyer_id"`
	Lines   []domain.CartLine `json:"lines"`
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BuyerID == "" {
		writeError(w, http.StatusBadRequest, "buyer_id is required")
		return
	}

	order, err := h.engine.Settle(r.Context(), req.BuyerID, req.Lines)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrInvalidQuantity):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrProductNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrInsufficientStock):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("checkout failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "settlement failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// --- PaymentWebhook ---

func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	// Signature verification happens on the raw body, before any
	// parsing or state logic.
	sig := r.Header.Get(payments.SignatureHeader)
	if err := payments.VerifySignature(payload, sig, h.webhookSecret, time.Now(), h.webhookTolerance); err != nil {
		h.logger.Warn("webhook rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	var ev payments.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload: "+err.Error())
		return
	}

	result, err := h.reconciler.HandleEvent(r.Context(), ev)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("webhook handling failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "event handling failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- GetOrder ---

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// --- ListOrders ---

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.OrderFilter{
		BuyerID:  q.Get("buyer_id"),
		VendorID: q.Get("vendor_id"),
		Status:   q.Get("status"),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
		Page:     parseIntDefault(q.Get("page"), 1),
		Limit:    parseIntDefault(q.Get("limit"), 50),
	}

	orders, total, err := h.orders.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  total,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})
}

// --- UpdateFulfilment ---

type fulfilmentRequest struct {
	Status domain.OrderStatus `json:"status"`
}

// UpdateFulfilment lets a vendor walk an order through
// processing -> shipped -> delivered. Only settled orders qualify and
// financial fields are untouched.
func (h *Handlers) UpdateFulfilment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req fulfilmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	order, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !order.Status.CanFulfil(req.Status) {
		writeError(w, http.StatusConflict,
			"cannot transition from "+string(order.Status)+" to "+string(req.Status))
		return
	}

	if err := h.orders.TransitionStatus(r.Context(), id, order.Status, req.Status); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	order.Status = req.Status
	writeJSON(w, http.StatusOK, order)
}

// --- GetWallet ---

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	wallet, err := h.wallets.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			writeError(w, http.StatusNotFound, "wallet not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, wallet)
}

// --- GetAffiliateEarnings ---

func (h *Handlers) GetAffiliateEarnings(w http.ResponseWriter, r *http.Request) {
	affiliateID := chi.URLParam(r, "id")

	earnings, settled, err := h.orders.ListAffiliateEarnings(r.Context(), affiliateID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"affiliate_id":    affiliateID,
		"earnings":        earnings,
		"settled_total":   settled,
		"settled_display": settled.String(),
	})
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.GetDashboardStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	vendorVols, err := h.orders.GetVolumeByVendor(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders": map[string]int{
			"total":           stats.Total,
			"pending_payment": stats.PendingPayment,
			"settled":         stats.Settled,
			"failed":          stats.Failed,
		},
		"volume": map[string]string{
			"settled":     stats.SettledVolume.String(),
			"outstanding": stats.OutstandingVolume.String(),
		},
		"platform_fees":     stats.PlatformFees.String(),
		"affiliate_payouts": stats.AffiliatePayouts.String(),
		"by_vendor":         vendorVols,
	})
}
