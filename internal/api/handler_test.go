package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"fulfillment-service/internal/service"
	"fulfillment-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fees, err := service.NewFeeSchedule(decimal.NewFromInt(20))
	require.NoError(t, err)

	st := store.NewMemoryStore()
	pub := service.NopPublisher{}
	ledger := service.NewInventoryLedger(st)
	notifier := service.NewNotificationService(st, pub)

	h := NewHandler(Services{
		Checkout: service.NewCheckoutService(st, ledger, notifier, pub, nil, service.CheckoutConfig{
			Fees:            fees,
			DefaultCurrency: "usd",
		}),
		Orders:        service.NewOrderService(st, notifier, pub),
		Refunds:       service.NewRefundService(st, ledger, notifier, pub),
		Carts:         service.NewCartService(st),
		Notifications: notifier,
		Inventory:     ledger,
		Payments:      service.NewPaymentService(st, nil),
	}, map[string]Pinger{"store": st})

	router := gin.New()
	h.SetupRoutes(router)
	return router
}

func call(t *testing.T, r *gin.Engine, method, path string, userID int64, role string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func seedCart(t *testing.T, r *gin.Engine, quantity int) float64 {
	t.Helper()

	w, _ := call(t, r, http.MethodPut, "/api/v1/products/100/stock", 1000, roleAdmin,
		gin.H{"sellerId": 10, "quantity": 5})
	require.Equal(t, http.StatusOK, w.Code)

	w, item := call(t, r, http.MethodPost, "/api/v1/cart", 1, roleBuyer, gin.H{
		"productId":   100,
		"productName": "Wool coat",
		"unitPrice":   1500,
		"quantity":    quantity,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return item["id"].(float64)
}

func TestIdentityAndRoles(t *testing.T) {
	r := newTestRouter(t)

	w, _ := call(t, r, http.MethodGet, "/api/v1/orders", 0, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = call(t, r, http.MethodGet, "/api/v1/orders", 1, "superuser", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = call(t, r, http.MethodPost, "/api/v1/orders/refund/approve/1", 1, roleBuyer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := call(t, r, http.MethodGet, "/api/v1/orders", 1, "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "role defaults to buyer")
	assert.Equal(t, []interface{}{}, body["orders"])
}

func TestPurchaseAndRefundFlow(t *testing.T) {
	r := newTestRouter(t)
	itemID := seedCart(t, r, 3)

	w, created := call(t, r, http.MethodPost, "/api/v1/orders/create", 1, roleBuyer, gin.H{
		"items":           []float64{itemID},
		"paymentIntentId": "pi_http",
		"totalAmount":     4500,
		"address":         "12 Market St",
		"phone":           "555-0100",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	paymentID := created["paymentId"].(float64)

	w, stock := call(t, r, http.MethodGet, "/api/v1/products/100/stock", 1, roleBuyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), stock["quantity"])

	w, refund := call(t, r, http.MethodPost, "/api/v1/orders/refund-request", 1, roleBuyer, gin.H{
		"paymentId": paymentID,
		"reason":    "Damaged on arrival",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	refundID := int64(refund["refundRequestId"].(float64))

	w, _ = call(t, r, http.MethodPost, "/api/v1/orders/refund-request", 1, roleBuyer, gin.H{
		"paymentId": paymentID,
		"reason":    "Again",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	approvePath := "/api/v1/orders/refund/approve/" + strconv.FormatInt(refundID, 10)
	w, _ = call(t, r, http.MethodPost, approvePath, 1000, roleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = call(t, r, http.MethodPost, approvePath, 1000, roleAdmin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	_, stock = call(t, r, http.MethodGet, "/api/v1/products/100/stock", 1, roleBuyer, nil)
	assert.Equal(t, float64(5), stock["quantity"])

	w, accepted := call(t, r, http.MethodPut,
		"/api/v1/orders/seller/accept-refund/"+strconv.FormatInt(refundID, 10), 10, roleSeller, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, accepted["success"])

	w, refunds := call(t, r, http.MethodGet, "/api/v1/orders/refunds?status=completed", 1000, roleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, refunds["refunds"], 1)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	r := newTestRouter(t)
	itemID := seedCart(t, r, 5)

	w, _ := call(t, r, http.MethodPut, "/api/v1/products/100/stock", 1000, roleAdmin,
		gin.H{"sellerId": 10, "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := call(t, r, http.MethodPost, "/api/v1/orders/create", 1, roleBuyer, gin.H{
		"items":           []float64{itemID},
		"paymentIntentId": "pi_short",
		"totalAmount":     7500,
		"address":         "12 Market St",
		"phone":           "555-0100",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, float64(2), body["available"])
	assert.Equal(t, float64(5), body["requested"])

	_, stock := call(t, r, http.MethodGet, "/api/v1/products/100/stock", 1, roleBuyer, nil)
	assert.Equal(t, float64(2), stock["quantity"])
}

func TestGatewayWebhook(t *testing.T) {
	r := newTestRouter(t)

	w, _ := call(t, r, http.MethodPost, "/api/v1/webhooks/payment-gateway", 0, "", gin.H{"type": "payment_intent.succeeded"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(t, r, http.MethodPost, "/api/v1/webhooks/payment-gateway", 0, "", gin.H{
		"event_id":          "evt_1",
		"type":              "payment_intent.succeeded",
		"payment_intent_id": "pi_unknown",
	})
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown payments are redelivered")

	w, body := call(t, r, http.MethodPost, "/api/v1/webhooks/payment-gateway", 0, "", gin.H{
		"event_id":          "evt_2",
		"type":              "customer.created",
		"payment_intent_id": "pi_unknown",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["processed"])
}

func TestHealthAndReady(t *testing.T) {
	r := newTestRouter(t)

	w, _ := call(t, r, http.MethodGet, "/health", 0, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := call(t, r, http.MethodGet, "/ready", 0, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])
}
