package service

import (
	"context"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sellerTargets are the statuses a seller may move an order to by hand.
// received and refunded only happen through the buyer and refund workflows.
var sellerTargets = map[string]bool{
	models.OrderStatusProcessing: true,
	models.OrderStatusShipped:    true,
	models.OrderStatusCancelled:  true,
}

// OrderService serves order listings and seller-side fulfillment updates
type OrderService struct {
	store          store.Store
	notifier       *NotificationService
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(st store.Store, notifier *NotificationService, eventPublisher EventPublisher) *OrderService {
	return &OrderService{
		store:          st,
		notifier:       notifier,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// ListBuyerOrders returns the buyer's orders, newest first
func (os *OrderService) ListBuyerOrders(ctx context.Context, buyerID int64) ([]models.Order, error) {
	return os.store.GetOrdersByBuyerID(ctx, buyerID)
}

// ListSellerOrders returns orders for the seller's products, newest first
func (os *OrderService) ListSellerOrders(ctx context.Context, sellerID int64) ([]models.Order, error) {
	return os.store.GetOrdersBySellerID(ctx, sellerID)
}

// UpdateStatus moves one of the seller's orders forward in fulfillment.
// Cancelling does not restore stock; only an approved refund does.
func (os *OrderService) UpdateStatus(ctx context.Context, sellerID, orderID int64, status string) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer func() { util.EndSpan(span, err) }()

	if !models.IsValidOrderStatus(status) {
		return nil, validationErr("unknown order status %q", status)
	}
	if !sellerTargets[status] {
		return nil, validationErr("sellers cannot set status %q", status)
	}

	err = os.store.WithTx(ctx, func(q store.Querier) error {
		o, err := q.GetOrderByID(ctx, orderID)
		if err != nil {
			return storeErr(err, "order", orderID)
		}
		if o.SellerID != sellerID {
			return fmt.Errorf("%w: order %d belongs to another seller", ErrForbidden, orderID)
		}
		if err := models.ValidateOrderTransition(o.Status, status); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}

		ok, err := q.TransitionOrderStatus(ctx, o.ID, []string{o.Status}, status)
		if err != nil {
			return fmt.Errorf("failed to update order %d: %w", o.ID, err)
		}
		if !ok {
			return invalidStateErr("order %d changed status concurrently", o.ID)
		}
		o.Status = status
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	os.logger.Info("Order status updated",
		zap.Int64("order_id", order.ID),
		zap.Int64("seller_id", sellerID),
		zap.String("status", status))

	var hooks afterCommit
	hooks.add(func(ctx context.Context) {
		os.notifier.Notify(ctx, newNotification(order.BuyerID, models.NotificationOrderStatus,
			"Order update",
			fmt.Sprintf("Your order #%d for %s is now %s.", order.ID, order.ProductName, status),
			order.ID, models.ReferenceOrder))
	})
	hooks.add(func(ctx context.Context) {
		event := &models.OrderStatusEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderStatusChanged,
				Timestamp: time.Now(),
			},
			PaymentID: order.PaymentID,
			BuyerID:   order.BuyerID,
			OrderIDs:  []int64{order.ID},
			Status:    status,
		}
		if err := os.eventPublisher.PublishOrderStatus(ctx, event); err != nil {
			os.logger.Error("Failed to publish order status event",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	})
	hooks.run(ctx)

	return order, nil
}
