package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"fulfillment-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func paymentKey(paymentID *int64, fallback int64) string {
	if paymentID != nil {
		return "payment-" + strconv.FormatInt(*paymentID, 10)
	}
	return "buyer-" + strconv.FormatInt(fallback, 10)
}

// PublishOrderPlaced publishes ORDER_PLACED
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, paymentKey(event.PaymentID, event.BuyerID), event)
}

// PublishOrderStatus publishes ORDER_STATUS_CHANGED and ORDERS_RECEIVED
func (ep *EventPublisher) PublishOrderStatus(ctx context.Context, event *models.OrderStatusEvent) error {
	return ep.producer.PublishEvent(ctx, paymentKey(event.PaymentID, event.BuyerID), event)
}

// PublishRefund publishes a refund transition
func (ep *EventPublisher) PublishRefund(ctx context.Context, event *models.RefundEvent) error {
	return ep.producer.PublishEvent(ctx, paymentKey(&event.PaymentID, event.BuyerID), event)
}

// PublishNotification publishes NOTIFICATION_CREATED for push delivery
func (ep *EventPublisher) PublishNotification(ctx context.Context, event *models.NotificationCreatedEvent) error {
	key := fmt.Sprintf("user-%d", event.Notification.UserID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// GatewayEventHandler processes one decoded gateway event
type GatewayEventHandler func(ctx context.Context, event *models.GatewayEvent) error

// DecodeGatewayMessage adapts a GatewayEventHandler to a Kafka MessageHandler
func DecodeGatewayMessage(handler GatewayEventHandler) MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var event models.GatewayEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("%w: failed to unmarshal gateway event: %v", ErrMalformedMessage, err)
		}
		if event.EventID == "" || event.PaymentIntentID == "" {
			return fmt.Errorf("%w: gateway event missing id or payment intent at offset %d", ErrMalformedMessage, msg.Offset)
		}
		return handler(ctx, &event)
	}
}
