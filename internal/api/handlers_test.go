package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeoahs/marketplace/internal/domain"
	"github.com/jeoahs/marketplace/internal/ledger"
	"github.com/jeoahs/marketplace/internal/money"
	"github.com/jeoahs/marketplace/internal/payments"
	"github.com/jeoahs/marketplace/internal/repository"
	"github.com/jeoahs/marketplace/internal/settlement"
)

const testWebhookSecret = "whsec_test"

func newTestServer(t *testing.T) (*httptest.Server, *repository.ProductRepo) {
	t.Helper()

	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	products := repository.NewProductRepo(db)
	orders := repository.NewOrderRepo(db)
	wallets := repository.NewWalletRepo(db)

	schedule, err := settlement.NewFeeSchedule(
		decimal.RequireFromString("0.03"),
		map[string]decimal.Decimal{"pro": decimal.RequireFromString("0.02")},
	)
	require.NoError(t, err)

	logger := zap.NewNop()
	engine := settlement.NewEngine(db, products, orders, schedule, logger)
	l := ledger.New(db, orders, wallets, logger)
	reconciler := payments.NewReconciler(orders, l, 48*time.Hour, logger)

	router := NewRouter(engine, reconciler, orders, wallets,
		testWebhookSecret, 5*time.Minute, logger)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv, products
}

func seedCatalog(t *testing.T, products *repository.ProductRepo) {
	t.Helper()
	n, err := products.BulkInsert(context.Background(), []domain.Product{
		{
			ID: "prod-a", VendorID: "vendor-1", Name: "Product A",
			UnitPrice: money.FromCents(10000), Stock: 5,
			AffiliateCommissionPercent: 10, VendorPlan: "standard",
			CreatedAt: time.Now().UTC(),
		},
		{
			ID: "prod-b", VendorID: "vendor-2", Name: "Product B",
			UnitPrice: money.FromCents(5000), Stock: 5,
			AffiliateCommissionPercent: 20, VendorPlan: "pro",
			CreatedAt: time.Now().UTC(),
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func checkout(t *testing.T, srv *httptest.Server, buyerID string, lines []domain.CartLine) domain.Order {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/v1/checkout", map[string]any{
		"buyer_id": buyerID,
		"lines":    lines,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var order domain.Order
	decodeBody(t, resp, &order)
	return order
}

func deliverWebhook(t *testing.T, srv *httptest.Server, ev payments.Event) *http.Response {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost,
		srv.URL+"/api/v1/webhooks/payment", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set(payments.SignatureHeader,
		payments.Sign(payload, testWebhookSecret, time.Now()))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestCheckoutCreatesPendingOrder(t *testing.T) {
	srv, products := newTestServer(t)
	seedCatalog(t, products)

	order := checkout(t, srv, "buyer-1", []domain.CartLine{
		{ProductID: "prod-a", Quantity: 1, ClaimedAffiliateID: "affiliate-x"},
	})

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, domain.StatusPendingPayment, order.Status)
	assert.Equal(t, int64(10300), order.TotalAmountDue.Cents())

	item := order.ItemsByVendor["vendor-1"][0]
	assert.Equal(t, int64(1000), item.AffiliateCommission.Cents())
	assert.Equal(t, int64(8700), item.VendorNet.Cents())
}

func TestCheckoutRejectsBadRequests(t *testing.T) {
	srv, products := newTestServer(t)
	seedCatalog(t, products)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing buyer", map[string]any{
			"lines": []domain.CartLine{{ProductID: "prod-a", Quantity: 1}},
		}, http.StatusBadRequest},
		{"empty cart", map[string]any{
			"buyer_id": "buyer-1",
		}, http.StatusBadRequest},
		{"zero quantity", map[string]any{
			"buyer_id": "buyer-1",
			"lines":    []domain.CartLine{{ProductID: "prod-a", Quantity: 0}},
		}, http.StatusBadRequest},
		{"unknown product", map[string]any{
			"buyer_id": "buyer-1",
			"lines":    []domain.CartLine{{ProductID: "nope", Quantity: 1}},
		}, http.StatusNotFound},
		{"over stock", map[string]any{
			"buyer_id": "buyer-1",
			"lines":    []domain.CartLine{{ProductID: "prod-a", Quantity: 6}},
		}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/v1/checkout", tt.body)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestWebhookSettlesAndCreditsWallets(t *testing.T) {
	srv, products := newTestServer(t)
	seedCatalog(t, products)

	order := checkout(t, srv, "buyer-1", []domain.CartLine{
		{ProductID: "prod-a", Quantity: 1, ClaimedAffiliateID: "affiliate-x"},
		{ProductID: "prod-b", Quantity: 2, ClaimedAffiliateID: "affiliate-y"},
	})

	resp := deliverWebhook(t, srv, payments.Event{
		Type:             payments.EventPaymentSucceeded,
		PaymentReference: "pi_123",
		Metadata:         payments.EventMetadata{OrderID: order.ID},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result payments.Result
	decodeBody(t, resp, &result)
	assert.Equal(t, domain.StatusSettled, result.Status)
	assert.True(t, result.Applied)

	// vendor-1: $100 line, 10% commission, 3% fee -> $87.00 net.
	var wallet domain.WalletBalance
	resp, err := http.Get(srv.URL + "/api/v1/wallets/vendor-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &wallet)
	assert.Equal(t, int64(8700), wallet.Balance.Cents())

	// vendor-2 (pro): $100 line, 20% commission, 2% fee -> $78.00 net.
	resp, err = http.Get(srv.URL + "/api/v1/wallets/vendor-2")
	require.NoError(t, err)
	decodeBody(t, resp, &wallet)
	assert.Equal(t, int64(7800), wallet.Balance.Cents())

	resp, err = http.Get(srv.URL + "/api/v1/wallets/affiliate-y")
	require.NoError(t, err)
	decodeBody(t, resp, &wallet)
	assert.Equal(t, int64(2000), wallet.Balance.Cents())
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	srv, products := newTestServer(t)
	seedCatalog(t, products)

	order := checkout(t, srv, "buyer-1", []domain.CartLine{
		{ProductID: "prod-a", Quantity: 1},
	})

	payload, err := json.Marshal(payments.Event{
		Type:     payments.EventPaymentSucceeded,
		Metadata: payments.EventMetadata{OrderID: order.ID},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost,
		srv.URL+"/api/v1/webhooks/payment", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set(payments.SignatureHeader,
		payments.Sign(payload, "wrong-secret", time.Now()))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The order is untouched.
	var got domain.Order
	resp, err = http.Get(srv.URL + "/api/v1/orders/" + order.ID)
	require.NoError(t, err)
	decodeBody(t, resp, &got)
	assert.Equal(t, domain.StatusPendingPayment, got.Status)
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	srv, products := newTestServer(t)
	seedCatalog(t, products)

	order := checkout(t, srv, "buyer-1", []domain.CartLine{
		{ProductID: "prod-a", Quantity: 1},
	})
	ev := payments.Event{
		Type:             payments.EventPaymentSucceeded,
		PaymentReference: "pi_dup",
		Metadata:         payments.EventMetadata{OrderID: order.ID},
	}

	for i := 0; i < 3; i++ {
		resp := deliverWebhook(t, srv, ev)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var wallet domain.WalletBalance
	resp, err := http.Get(srv.URL + "/api/v1/wallets/vendor-1")
	require.NoError(t, err)
	decodeBody(t, resp, &wallet)
	assert.Equal(t, int64(9700), wallet.Balance.Cents())
}

func TestWebhookUnknownOrder(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := deliverWebhook(t, srv, payments.Event{
		Type:     payments.EventPaymentSucceeded,
		Metadata: payments.EventMetadata{OrderID: "no-such-order"},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFulfilmentLifecycle(t *testing.T) {
	srv, products := newTestServer(t)
	seedCatalog(t, products)

	order := checkout(t, srv, "buyer-1", []domain.CartLine{
		{ProductID: "prod-a", Quantity: 1},
	})

	patch := func(status domain.OrderStatus) *http.Response {
		b, err := json.Marshal(map[string]string{"status": string(status)})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPatch,
			srv.URL+"/api/v1/orders/"+order.ID+"/fulfilment", bytes.NewReader(b))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	// Fulfilment before settlement is refused.
	resp := patch(domain.StatusProcessing)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = deliverWebhook(t, srv, payments.Event{
		Type:             payments.EventPaymentSucceeded,
		PaymentReference: "pi_ful",
		Metadata:         payments.EventMetadata{OrderID: order.ID},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, status := range []domain.OrderStatus{
		domain.StatusProcessing, domain.StatusShipped, domain.StatusDelivered,
	} {
		resp := patch(status)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "to %s", status)
	}

	// Skipping a step is refused.
	resp = patch(domain.StatusProcessing)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListOrdersFilters(t *testing.T) {
	srv, products := newTestServer(t)
	seedCatalog(t, products)

	checkout(t, srv, "buyer-1", []domain.CartLine{{ProductID: "prod-a", Quantity: 1}})
	checkout(t, srv, "buyer-2", []domain.CartLine{{ProductID: "prod-b", Quantity: 1}})

	var body struct {
		Orders []domain.Order `json:"orders"`
		Total  int            `json:"total"`
	}

	resp, err := http.Get(srv.URL + "/api/v1/orders")
	require.NoError(t, err)
	decodeBody(t, resp, &body)
	assert.Equal(t, 2, body.Total)

	resp, err = http.Get(srv.URL + "/api/v1/orders?buyer_id=buyer-1")
	require.NoError(t, err)
	decodeBody(t, resp, &body)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "buyer-1", body.Orders[0].BuyerID)

	resp, err = http.Get(srv.URL + "/api/v1/orders?vendor_id=vendor-2")
	require.NoError(t, err)
	decodeBody(t, resp, &body)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "buyer-2", body.Orders[0].BuyerID)

	resp, err = http.Get(srv.URL + "/api/v1/orders?status=settled")
	require.NoError(t, err)
	decodeBody(t, resp, &body)
	assert.Equal(t, 0, body.Total)
}

func TestAffiliateEarningsAndDashboard(t *testing.T) {
	srv, products := newTestServer(t)
	seedCatalog(t, products)

	order := checkout(t, srv, "buyer-1", []domain.CartLine{
		{ProductID: "prod-a", Quantity: 1, ClaimedAffiliateID: "affiliate-x"},
	})

	// Before settlement nothing is counted as settled.
	var earnings struct {
		Earnings     []repository.AffiliateEarning `json:"earnings"`
		SettledTotal money.Money                   `json:"settled_total"`
	}
	resp, err := http.Get(srv.URL + "/api/v1/affiliates/affiliate-x/earnings")
	require.NoError(t, err)
	decodeBody(t, resp, &earnings)
	require.Len(t, earnings.Earnings, 1)
	assert.Equal(t, int64(0), earnings.SettledTotal.Cents())

	resp = deliverWebhook(t, srv, payments.Event{
		Type:             payments.EventPaymentSucceeded,
		PaymentReference: "pi_earn",
		Metadata:         payments.EventMetadata{OrderID: order.ID},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/affiliates/affiliate-x/earnings")
	require.NoError(t, err)
	decodeBody(t, resp, &earnings)
	assert.Equal(t, int64(1000), earnings.SettledTotal.Cents())

	var dashboard struct {
		Orders map[string]int    `json:"orders"`
		Volume map[string]string `json:"volume"`
	}
	resp, err = http.Get(srv.URL + "/api/v1/dashboard")
	require.NoError(t, err)
	decodeBody(t, resp, &dashboard)
	assert.Equal(t, 1, dashboard.Orders["total"])
	assert.Equal(t, 1, dashboard.Orders["settled"])
	assert.Equal(t, "103.00", dashboard.Volume["settled"])
}

func TestGetWalletNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/wallets/nobody")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
