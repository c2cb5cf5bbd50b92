package models

import "time"

// ProductStock is the available quantity of one catalog product
type ProductStock struct {
	ProductID int64     `db:"product_id" json:"product_id"`
	SellerID  int64     `db:"seller_id" json:"seller_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem is a buyer-selected line item. Product fields are a snapshot
// taken when the item was added.
type CartItem struct {
	ID          int64     `db:"id" json:"id"`
	BuyerID     int64     `db:"buyer_id" json:"buyer_id"`
	SellerID    int64     `db:"seller_id" json:"seller_id"`
	ProductID   int64     `db:"product_id" json:"product_id"`
	ProductName string    `db:"product_name" json:"product_name"`
	Category    string    `db:"category" json:"category"`
	ImageURL    string    `db:"image_url" json:"image_url"`
	UnitPrice   int64     `db:"unit_price" json:"unit_price"`
	Quantity    int       `db:"quantity" json:"quantity"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// LineTotal returns unit price times quantity
func (c CartItem) LineTotal() int64 {
	return c.UnitPrice * int64(c.Quantity)
}

// Payment mirrors one confirmed gateway payment intent
type Payment struct {
	ID                 int64      `db:"id" json:"id"`
	PaymentIntentID    string     `db:"payment_intent_id" json:"payment_intent_id"`
	BuyerID            int64      `db:"buyer_id" json:"buyer_id"`
	Amount             int64      `db:"amount" json:"amount"`
	Currency           string     `db:"currency" json:"currency"`
	PlatformFee        int64      `db:"platform_fee" json:"platform_fee"`
	SellerAmount       int64      `db:"seller_amount" json:"seller_amount"`
	Status             string     `db:"status" json:"status"`
	GatewayConfirmedAt *time.Time `db:"gateway_confirmed_at" json:"gateway_confirmed_at,omitempty"`
	GatewayRefundedAt  *time.Time `db:"gateway_refunded_at" json:"gateway_refunded_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Order is one purchased line item. PaymentID is nil for donation-style orders.
type Order struct {
	ID              int64     `db:"id" json:"id"`
	BuyerID         int64     `db:"buyer_id" json:"buyer_id"`
	SellerID        int64     `db:"seller_id" json:"seller_id"`
	ProductID       int64     `db:"product_id" json:"product_id"`
	ProductName     string    `db:"product_name" json:"product_name"`
	UnitPrice       int64     `db:"unit_price" json:"unit_price"`
	Quantity        int       `db:"quantity" json:"quantity"`
	DeliveryAddress string    `db:"delivery_address" json:"delivery_address"`
	Phone           string    `db:"phone" json:"phone"`
	Status          string    `db:"status" json:"status"`
	PaymentID       *int64    `db:"payment_id" json:"payment_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// RefundRequest is a buyer's request to reverse a payment
type RefundRequest struct {
	ID               int64      `db:"id" json:"id"`
	PaymentID        int64      `db:"payment_id" json:"payment_id"`
	BuyerID          int64      `db:"buyer_id" json:"buyer_id"`
	Reason           string     `db:"reason" json:"reason"`
	Description      string     `db:"description" json:"description"`
	Amount           int64      `db:"amount" json:"amount"`
	Status           string     `db:"status" json:"status"`
	RequestedAt      time.Time  `db:"requested_at" json:"requested_at"`
	ProcessedAt      *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	AdminNotes       *string    `db:"admin_notes" json:"admin_notes,omitempty"`
	SellerAcceptedAt *time.Time `db:"seller_accepted_at" json:"seller_accepted_at,omitempty"`
}

// Notification is a message addressed to one user
type Notification struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	Type          string    `db:"type" json:"type"`
	Title         string    `db:"title" json:"title"`
	Message       string    `db:"message" json:"message"`
	IsRead        bool      `db:"is_read" json:"is_read"`
	ReferenceID   *int64    `db:"reference_id" json:"reference_id,omitempty"`
	ReferenceType *string   `db:"reference_type" json:"reference_type,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Notification types
const (
	NotificationNewOrder        = "new_order"
	NotificationOrderStatus     = "order_status"
	NotificationOrderReceived   = "order_received"
	NotificationRefundRequested = "refund_requested"
	NotificationRefundApproved  = "refund_approved"
	NotificationRefundRejected  = "refund_rejected"
	NotificationRefundCompleted = "refund_completed"
)

// Notification reference types
const (
	ReferenceOrder   = "order"
	ReferencePayment = "payment"
	ReferenceRefund  = "refund"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
