package models

import "time"

// Event types published on the marketplace topic
const (
	EventTypeOrderPlaced         = "ORDER_PLACED"
	EventTypeOrdersReceived      = "ORDERS_RECEIVED"
	EventTypeOrderStatusChanged  = "ORDER_STATUS_CHANGED"
	EventTypeRefundRequested     = "REFUND_REQUESTED"
	EventTypeRefundApproved      = "REFUND_APPROVED"
	EventTypeRefundRejected      = "REFUND_REJECTED"
	EventTypeRefundCompleted     = "REFUND_COMPLETED"
	EventTypeNotificationCreated = "NOTIFICATION_CREATED"
)

// Gateway event types consumed from the payment gateway
const (
	GatewayEventPaymentSucceeded = "payment_intent.succeeded"
	GatewayEventChargeRefunded   = "charge.refunded"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published after a checkout commits
type OrderPlacedEvent struct {
	BaseEvent
	PaymentID       *int64          `json:"payment_id,omitempty"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	BuyerID         int64           `json:"buyer_id"`
	OrderIDs        []int64         `json:"order_ids"`
	TotalAmount     int64           `json:"total_amount"`
	Items           []OrderItemData `json:"items"`
}

// OrderStatusEvent published when order rows change status outside checkout
type OrderStatusEvent struct {
	BaseEvent
	PaymentID *int64  `json:"payment_id,omitempty"`
	BuyerID   int64   `json:"buyer_id"`
	OrderIDs  []int64 `json:"order_ids"`
	Status    string  `json:"status"`
}

// RefundEvent published on every refund request transition
type RefundEvent struct {
	BaseEvent
	RefundID  int64  `json:"refund_id"`
	PaymentID int64  `json:"payment_id"`
	BuyerID   int64  `json:"buyer_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
}

// NotificationCreatedEvent is fanned out to push delivery
type NotificationCreatedEvent struct {
	BaseEvent
	Notification Notification `json:"notification"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	OrderID   int64 `json:"order_id"`
	SellerID  int64 `json:"seller_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// GatewayEvent is a payment gateway webhook delivery
type GatewayEvent struct {
	EventID         string    `json:"event_id" binding:"required"`
	Type            string    `json:"type" binding:"required"`
	PaymentIntentID string    `json:"payment_intent_id" binding:"required"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	OccurredAt      time.Time `json:"occurred_at"`
}
