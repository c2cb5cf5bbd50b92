package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutService turns a buyer's cart into order rows
type CheckoutService struct {
	store          store.Store
	ledger         *InventoryLedger
	notifier       *NotificationService
	eventPublisher EventPublisher
	locker         Locker
	fees           FeeSchedule
	currency       string
	lockTTL        time.Duration
	logger         *zap.Logger
}

// CheckoutConfig holds the business settings of checkout
type CheckoutConfig struct {
	Fees            FeeSchedule
	DefaultCurrency string
	LockTTL         time.Duration
}

// NewCheckoutService creates a new checkout service. locker may be nil.
func NewCheckoutService(
	st store.Store,
	ledger *InventoryLedger,
	notifier *NotificationService,
	eventPublisher EventPublisher,
	locker Locker,
	cfg CheckoutConfig,
) *CheckoutService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &CheckoutService{
		store:          st,
		ledger:         ledger,
		notifier:       notifier,
		eventPublisher: eventPublisher,
		locker:         locker,
		fees:           cfg.Fees,
		currency:       strings.ToLower(cfg.DefaultCurrency),
		lockTTL:        cfg.LockTTL,
		logger:         util.GetLogger(),
	}
}

// CheckoutRequest places donation-style orders without a payment
type CheckoutRequest struct {
	Address     string  `json:"address"`
	Phone       string  `json:"phone"`
	CartItemIDs []int64 `json:"cartItemIds"`
}

// CheckoutResponse lists the created order rows
type CheckoutResponse struct {
	OrderIDs []int64 `json:"orderIds"`
}

// CreateOrderRequest places purchase-style orders for a confirmed payment
type CreateOrderRequest struct {
	Items           []int64 `json:"items"`
	PaymentIntentID string  `json:"paymentIntentId"`
	TotalAmount     int64   `json:"totalAmount"`
	Currency        string  `json:"currency"`
	Address         string  `json:"address"`
	Phone           string  `json:"phone"`
}

// CreateOrderResponse echoes the payment the orders were placed under
type CreateOrderResponse struct {
	PaymentID       int64   `json:"paymentId"`
	PaymentIntentID string  `json:"paymentIntentId"`
	OrderIDs        []int64 `json:"orderIds"`
}

// ConfirmReceivedResponse lists the orders moved to received
type ConfirmReceivedResponse struct {
	UpdatedCount int     `json:"updatedCount"`
	OrderIDs     []int64 `json:"orderIds"`
}

// paymentConfirmation is the gateway's answer for one payment intent
type paymentConfirmation struct {
	intentID string
	amount   int64
	currency string
}

type placeOrderInput struct {
	buyerID     int64
	address     string
	phone       string
	cartItemIDs []int64
	payment     *paymentConfirmation
}

type placedOrder struct {
	payment *models.Payment
	orders  []models.Order
}

// Checkout places donation-style orders: status pending, no payment record
func (s *CheckoutService) Checkout(ctx context.Context, buyerID int64, req *CheckoutRequest) (*CheckoutResponse, error) {
	placed, err := s.placeOrder(ctx, placeOrderInput{
		buyerID:     buyerID,
		address:     req.Address,
		phone:       req.Phone,
		cartItemIDs: req.CartItemIDs,
	})
	if err != nil {
		return nil, err
	}
	return &CheckoutResponse{OrderIDs: orderIDs(placed.orders)}, nil
}

// CreateOrder records a confirmed gateway payment and places paid orders for
// the selected cart items. Repeating a call with the same payment intent
// returns the first result instead of charging inventory again.
func (s *CheckoutService) CreateOrder(ctx context.Context, buyerID int64, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		return nil, validationErr("paymentIntentId is required")
	}
	if req.TotalAmount <= 0 {
		return nil, validationErr("totalAmount must be positive")
	}

	if s.locker != nil {
		release, err := s.locker.AcquireLock(ctx, "checkout:"+intentID, s.lockTTL)
		switch {
		case err != nil:
			// the unique payment-intent constraint still prevents double processing
			s.logger.Warn("Checkout lock unavailable", zap.String("payment_intent_id", intentID), zap.Error(err))
		case release == nil:
			util.CheckoutsFailedTotal.WithLabelValues("in_progress").Inc()
			return nil, fmt.Errorf("%w: payment intent %s", ErrInProgress, intentID)
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn("Failed to release checkout lock", zap.String("payment_intent_id", intentID), zap.Error(err))
				}
			}()
		}
	}

	if resp, err := s.existingOrder(ctx, buyerID, intentID); resp != nil || err != nil {
		return resp, err
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}

	placed, err := s.placeOrder(ctx, placeOrderInput{
		buyerID:     buyerID,
		address:     req.Address,
		phone:       req.Phone,
		cartItemIDs: req.Items,
		payment: &paymentConfirmation{
			intentID: intentID,
			amount:   req.TotalAmount,
			currency: currency,
		},
	})
	if errors.Is(err, store.ErrConflict) {
		// lost a race with a concurrent request for the same intent
		resp, lookupErr := s.existingOrder(ctx, buyerID, intentID)
		if resp == nil && lookupErr == nil {
			return nil, err
		}
		return resp, lookupErr
	}
	if err != nil {
		return nil, err
	}

	return &CreateOrderResponse{
		PaymentID:       placed.payment.ID,
		PaymentIntentID: placed.payment.PaymentIntentID,
		OrderIDs:        orderIDs(placed.orders),
	}, nil
}

// existingOrder returns the result of an earlier checkout for intentID, or nil
func (s *CheckoutService) existingOrder(ctx context.Context, buyerID int64, intentID string) (*CreateOrderResponse, error) {
	payment, err := s.store.GetPaymentByIntentID(ctx, intentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check payment intent: %w", err)
	}
	if payment.BuyerID != buyerID {
		return nil, fmt.Errorf("%w: payment intent %s belongs to another buyer", ErrForbidden, intentID)
	}

	orders, err := s.store.GetOrdersByPaymentID(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders for payment %d: %w", payment.ID, err)
	}

	s.logger.Info("Duplicate checkout detected",
		zap.String("payment_intent_id", intentID),
		zap.Int64("payment_id", payment.ID))

	return &CreateOrderResponse{
		PaymentID:       payment.ID,
		PaymentIntentID: payment.PaymentIntentID,
		OrderIDs:        orderIDs(orders),
	}, nil
}

// placeOrder runs the whole checkout in one transaction. Nothing is written
// unless every line item can be reserved.
func (s *CheckoutService) placeOrder(ctx context.Context, in placeOrderInput) (placed *placedOrder, err error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.placeOrder")
	defer func() { util.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	address := strings.TrimSpace(in.address)
	phone := strings.TrimSpace(in.phone)
	if address == "" || phone == "" {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, validationErr("address and phone are required")
	}

	flow := "donation"
	status := models.OrderStatusPending
	if in.payment != nil {
		flow = "purchase"
		status = models.OrderStatusPaid
	}

	var hooks afterCommit
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		items, err := s.resolveCartItems(ctx, q, in.buyerID, in.cartItemIDs)
		if err != nil {
			return err
		}

		if err := s.ledger.Check(ctx, q, items); err != nil {
			return err
		}

		result := &placedOrder{}
		if in.payment != nil {
			payment, err := s.recordPayment(ctx, q, in.buyerID, in.payment, items)
			if err != nil {
				return err
			}
			result.payment = payment
		}

		for _, item := range items {
			order := models.Order{
				BuyerID:         in.buyerID,
				SellerID:        item.SellerID,
				ProductID:       item.ProductID,
				ProductName:     item.ProductName,
				UnitPrice:       item.UnitPrice,
				Quantity:        item.Quantity,
				DeliveryAddress: address,
				Phone:           phone,
				Status:          status,
			}
			if result.payment != nil {
				order.PaymentID = &result.payment.ID
			}
			if err := q.CreateOrder(ctx, &order); err != nil {
				return fmt.Errorf("failed to create order for product %d: %w", item.ProductID, err)
			}
			result.orders = append(result.orders, order)
		}

		for _, item := range items {
			if err := s.ledger.Reserve(ctx, q, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if _, err := q.DeleteCartItems(ctx, in.buyerID, cartItemIDs(items)); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		s.queueCheckoutEffects(&hooks, in.buyerID, result)
		placed = result
		return nil
	})
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		util.LoggerFor(ctx, s.logger).Warn("Checkout rolled back",
			zap.Int64("buyer_id", in.buyerID),
			zap.String("flow", flow),
			zap.Error(err))
		return nil, err
	}

	util.CheckoutsTotal.WithLabelValues(flow).Inc()
	util.OrdersCreatedTotal.Add(float64(len(placed.orders)))
	util.LoggerFor(ctx, s.logger).Info("Checkout committed",
		zap.Int64("buyer_id", in.buyerID),
		zap.String("flow", flow),
		zap.Int("orders", len(placed.orders)))

	hooks.run(ctx)
	return placed, nil
}

func (s *CheckoutService) resolveCartItems(ctx context.Context, q store.Querier, buyerID int64, ids []int64) ([]models.CartItem, error) {
	ids = uniqueIDs(ids)
	items, err := q.GetCartItems(ctx, buyerID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(ids) > 0 && len(items) != len(ids) {
		return nil, notFoundErr("%d of %d cart items not found for buyer %d", len(ids)-len(items), len(ids), buyerID)
	}
	if len(items) == 0 {
		return nil, validationErr("cart is empty")
	}
	return items, nil
}

func (s *CheckoutService) recordPayment(
	ctx context.Context,
	q store.Querier,
	buyerID int64,
	conf *paymentConfirmation,
	items []models.CartItem,
) (*models.Payment, error) {
	var subtotal int64
	for _, item := range items {
		subtotal += item.LineTotal()
	}
	if conf.amount < subtotal {
		return nil, validationErr("confirmed amount %d is less than cart total %d", conf.amount, subtotal)
	}

	fee, sellerAmount := s.fees.Split(conf.amount)
	payment := &models.Payment{
		PaymentIntentID: conf.intentID,
		BuyerID:         buyerID,
		Amount:          conf.amount,
		Currency:        conf.currency,
		PlatformFee:     fee,
		SellerAmount:    sellerAmount,
		Status:          models.PaymentStatusSucceeded,
	}
	if err := q.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return payment, nil
}

func (s *CheckoutService) queueCheckoutEffects(hooks *afterCommit, buyerID int64, placed *placedOrder) {
	for _, order := range placed.orders {
		order := order
		hooks.add(func(ctx context.Context) {
			s.notifier.Notify(ctx, newNotification(order.SellerID, models.NotificationNewOrder,
				"New order received",
				fmt.Sprintf("%d x %s was ordered.", order.Quantity, order.ProductName),
				order.ID, models.ReferenceOrder))
		})
	}

	hooks.add(func(ctx context.Context) {
		event := &models.OrderPlacedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderPlaced,
				Timestamp: time.Now(),
			},
			BuyerID:  buyerID,
			OrderIDs: orderIDs(placed.orders),
		}
		if placed.payment != nil {
			event.PaymentID = &placed.payment.ID
			event.PaymentIntentID = placed.payment.PaymentIntentID
			event.TotalAmount = placed.payment.Amount
		}
		for _, o := range placed.orders {
			event.Items = append(event.Items, models.OrderItemData{
				OrderID:   o.ID,
				SellerID:  o.SellerID,
				ProductID: o.ProductID,
				Quantity:  o.Quantity,
				UnitPrice: o.UnitPrice,
			})
			if placed.payment == nil {
				event.TotalAmount += o.UnitPrice * int64(o.Quantity)
			}
		}
		if err := s.eventPublisher.PublishOrderPlaced(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
		}
	})
}

// ConfirmReceived moves the buyer's shipped orders under a payment to received
func (s *CheckoutService) ConfirmReceived(ctx context.Context, buyerID, paymentID int64) (resp *ConfirmReceivedResponse, err error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ConfirmReceived")
	defer func() { util.EndSpan(span, err) }()

	if paymentID <= 0 {
		return nil, validationErr("paymentId is required")
	}

	var received []models.Order
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		orders, err := q.GetOrdersByPaymentID(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to load orders for payment %d: %w", paymentID, err)
		}

		for _, o := range orders {
			if o.BuyerID != buyerID || o.Status != models.OrderStatusShipped {
				continue
			}
			ok, err := q.TransitionOrderStatus(ctx, o.ID, models.OrderStatusesFrom(models.OrderStatusReceived), models.OrderStatusReceived)
			if err != nil {
				return fmt.Errorf("failed to update order %d: %w", o.ID, err)
			}
			if ok {
				o.Status = models.OrderStatusReceived
				received = append(received, o)
			}
		}

		if len(received) == 0 {
			return notFoundErr("no shipped orders for payment %d", paymentID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.OrdersReceivedTotal.Add(float64(len(received)))

	var hooks afterCommit
	notified := make(map[int64]bool)
	for _, o := range received {
		o := o
		if notified[o.SellerID] {
			continue
		}
		notified[o.SellerID] = true
		hooks.add(func(ctx context.Context) {
			s.notifier.Notify(ctx, newNotification(o.SellerID, models.NotificationOrderReceived,
				"Order received",
				fmt.Sprintf("The buyer confirmed receipt of payment #%d.", paymentID),
				paymentID, models.ReferencePayment))
		})
	}
	hooks.add(func(ctx context.Context) {
		pid := paymentID
		event := &models.OrderStatusEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrdersReceived,
				Timestamp: time.Now(),
			},
			PaymentID: &pid,
			BuyerID:   buyerID,
			OrderIDs:  orderIDs(received),
			Status:    models.OrderStatusReceived,
		}
		if err := s.eventPublisher.PublishOrderStatus(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrdersReceived event", zap.Error(err))
		}
	})
	hooks.run(ctx)

	return &ConfirmReceivedResponse{UpdatedCount: len(received), OrderIDs: orderIDs(received)}, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrValidation):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrConflict):
		return "duplicate"
	default:
		return "db_error"
	}
}

func orderIDs(orders []models.Order) []int64 {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func cartItemIDs(items []models.CartItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
