package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services bundles the use cases exposed over HTTP
type Services struct {
	Checkout      *service.CheckoutService
	Orders        *service.OrderService
	Refunds       *service.RefundService
	Carts         *service.CartService
	Notifications *service.NotificationService
	Inventory     *service.InventoryLedger
	Payments      *service.PaymentService
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	checks map[string]Pinger
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, checks map[string]Pinger) *Handler {
	return &Handler{
		svc:    svc,
		checks: checks,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/webhooks/payment-gateway", h.gatewayWebhook)

	authed := v1.Group("", identity())
	{
		authed.POST("/checkout", requireRole(roleBuyer), h.checkout)

		orders := authed.Group("/orders")
		orders.POST("/create", requireRole(roleBuyer), h.createOrder)
		orders.POST("/confirm-received", requireRole(roleBuyer), h.confirmReceived)
		orders.POST("/refund-request", requireRole(roleBuyer), h.requestRefund)
		orders.POST("/refund/approve/:refundId", requireRole(roleAdmin), h.approveRefund)
		orders.POST("/refund/reject/:refundId", requireRole(roleAdmin), h.rejectRefund)
		orders.PUT("/seller/accept-refund/:refundId", requireRole(roleSeller), h.sellerAcceptRefund)
		orders.GET("", requireRole(roleBuyer), h.listBuyerOrders)
		orders.GET("/seller", requireRole(roleSeller), h.listSellerOrders)
		orders.PUT("/:id/status", requireRole(roleSeller), h.updateOrderStatus)
		orders.GET("/refunds", requireRole(roleAdmin), h.listRefunds)
		orders.GET("/my-refunds", requireRole(roleBuyer), h.listMyRefunds)

		cart := authed.Group("/cart", requireRole(roleBuyer))
		cart.GET("", h.listCart)
		cart.POST("", h.addCartItem)
		cart.DELETE("/:id", h.removeCartItem)

		authed.GET("/notifications", h.listNotifications)
		authed.PUT("/notifications/:id/read", h.markNotificationRead)

		authed.PUT("/products/:id/stock", requireRole(roleAdmin), h.setStock)
		authed.GET("/products/:id/stock", h.getStock)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// checkout handles donation-style checkout
func (h *Handler) checkout(c *gin.Context) {
	var req service.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Checkout.Checkout(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// createOrder handles purchase-style checkout after the gateway confirmed payment
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.PaymentIntentID == "" {
		req.PaymentIntentID = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.svc.Checkout.CreateOrder(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

type paymentIDRequest struct {
	PaymentID int64 `json:"paymentId" binding:"required"`
}

func (h *Handler) confirmReceived(c *gin.Context) {
	var req paymentIDRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Checkout.ConfirmReceived(c.Request.Context(), userID(c), req.PaymentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) requestRefund(c *gin.Context) {
	var req service.RefundRequestInput
	if !bindJSON(c, &req) {
		return
	}

	refund, err := h.svc.Refunds.Request(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"refundRequestId": refund.ID})
}

func (h *Handler) approveRefund(c *gin.Context) {
	id, ok := pathID(c, "refundId")
	if !ok {
		return
	}

	refund, err := h.svc.Refunds.Approve(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refundId": refund.ID, "status": refund.Status})
}

type rejectRefundRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) rejectRefund(c *gin.Context) {
	id, ok := pathID(c, "refundId")
	if !ok {
		return
	}
	var req rejectRefundRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	refund, err := h.svc.Refunds.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refundId": refund.ID, "status": refund.Status})
}

func (h *Handler) sellerAcceptRefund(c *gin.Context) {
	id, ok := pathID(c, "refundId")
	if !ok {
		return
	}

	if _, err := h.svc.Refunds.SellerAccept(c.Request.Context(), userID(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) listBuyerOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListBuyerOrders(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": nonNil(orders)})
}

func (h *Handler) listSellerOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListSellerOrders(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": nonNil(orders)})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.svc.Orders.UpdateStatus(c.Request.Context(), userID(c), id, req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listRefunds(c *gin.Context) {
	refunds, err := h.svc.Refunds.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": nonNil(refunds)})
}

func (h *Handler) listMyRefunds(c *gin.Context) {
	refunds, err := h.svc.Refunds.ListForBuyer(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": nonNil(refunds)})
}

func (h *Handler) listCart(c *gin.Context) {
	items, err := h.svc.Carts.List(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(items)})
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req service.AddCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.svc.Carts.Add(c.Request.Context(), userID(c), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Carts.Remove(c.Request.Context(), userID(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listNotifications(c *gin.Context) {
	ns, err := h.svc.Notifications.List(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": nonNil(ns)})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Notifications.MarkRead(c.Request.Context(), userID(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type setStockRequest struct {
	SellerID int64 `json:"sellerId" binding:"required"`
	Quantity *int  `json:"quantity" binding:"required"`
}

func (h *Handler) setStock(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req setStockRequest
	if !bindJSON(c, &req) {
		return
	}

	stock, err := h.svc.Inventory.SetStock(c.Request.Context(), id, req.SellerID, *req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

func (h *Handler) getStock(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	stock, err := h.svc.Inventory.GetStock(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

// gatewayWebhook receives payment gateway deliveries. Any non-2xx answer
// makes the gateway redeliver.
func (h *Handler) gatewayWebhook(c *gin.Context) {
	var event models.GatewayEvent
	if !bindJSON(c, &event) {
		return
	}

	applied, err := h.svc.Payments.HandleGatewayEvent(c.Request.Context(), &event)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": applied})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return id, true
}

// nonNil renders empty listings as [] instead of null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
