package store

import (
	"context"
	"time"

	"fulfillment-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// CreatePayment creates a new payment record
func (q *queries) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (payment_intent_id, buyer_id, amount, currency, platform_fee, seller_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, q.ext, payment, query,
		payment.PaymentIntentID, payment.BuyerID, payment.Amount, payment.Currency,
		payment.PlatformFee, payment.SellerAmount, payment.Status)
	return conflict(err)
}

// GetPaymentByID retrieves a payment by ID
func (q *queries) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	if err := sqlx.GetContext(ctx, q.ext, &payment, "SELECT * FROM payments WHERE id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

// GetPaymentByIntentID retrieves a payment by its gateway payment-intent id
func (q *queries) GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, q.ext, &payment,
		"SELECT * FROM payments WHERE payment_intent_id = $1", intentID)
	if err != nil {
		return nil, notFound(err)
	}
	return &payment, nil
}

// TransitionPaymentStatus moves a payment to status `to` if it is currently in one of `from`
func (q *queries) TransitionPaymentStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	return matched(q.ext.ExecContext(ctx,
		"UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2 AND status = ANY($3)",
		to, id, pq.Array(from)))
}

// MarkPaymentGatewayConfirmed records the gateway confirmation once
func (q *queries) MarkPaymentGatewayConfirmed(ctx context.Context, intentID string, at time.Time) (bool, error) {
	return matched(q.ext.ExecContext(ctx,
		"UPDATE payments SET gateway_confirmed_at = $1, updated_at = NOW() WHERE payment_intent_id = $2 AND gateway_confirmed_at IS NULL",
		at, intentID))
}

// MarkPaymentGatewayRefunded records the gateway refund once, only for refunded payments
func (q *queries) MarkPaymentGatewayRefunded(ctx context.Context, intentID string, at time.Time) (bool, error) {
	return matched(q.ext.ExecContext(ctx,
		"UPDATE payments SET gateway_refunded_at = $1, updated_at = NOW() WHERE payment_intent_id = $2 AND status = $3 AND gateway_refunded_at IS NULL",
		at, intentID, models.PaymentStatusRefunded))
}

// CreateOrder creates a new order row
func (q *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (buyer_id, seller_id, product_id, product_name, unit_price, quantity,
			delivery_address, phone, status, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, q.ext, order, query,
		order.BuyerID, order.SellerID, order.ProductID, order.ProductName, order.UnitPrice,
		order.Quantity, order.DeliveryAddress, order.Phone, order.Status, order.PaymentID)
}

// GetOrderByID retrieves an order by ID
func (q *queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := sqlx.GetContext(ctx, q.ext, &order, "SELECT * FROM orders WHERE id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// GetOrdersByPaymentID retrieves every order row created under a payment
func (q *queries) GetOrdersByPaymentID(ctx context.Context, paymentID int64) ([]models.Order, error) {
	var orders []models.Order
	err := sqlx.SelectContext(ctx, q.ext, &orders,
		"SELECT * FROM orders WHERE payment_id = $1 ORDER BY id", paymentID)
	return orders, err
}

// GetOrdersByBuyerID retrieves orders for a buyer
func (q *queries) GetOrdersByBuyerID(ctx context.Context, buyerID int64) ([]models.Order, error) {
	var orders []models.Order
	err := sqlx.SelectContext(ctx, q.ext, &orders,
		"SELECT * FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC, id DESC", buyerID)
	return orders, err
}

// GetOrdersBySellerID retrieves orders for a seller
func (q *queries) GetOrdersBySellerID(ctx context.Context, sellerID int64) ([]models.Order, error) {
	var orders []models.Order
	err := sqlx.SelectContext(ctx, q.ext, &orders,
		"SELECT * FROM orders WHERE seller_id = $1 ORDER BY created_at DESC, id DESC", sellerID)
	return orders, err
}

// TransitionOrderStatus moves an order to status `to` if it is currently in one of `from`
func (q *queries) TransitionOrderStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	return matched(q.ext.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = ANY($3)",
		to, id, pq.Array(from)))
}

// CreateRefund creates a refund request
func (q *queries) CreateRefund(ctx context.Context, refund *models.RefundRequest) error {
	query := `
		INSERT INTO refund_requests (payment_id, buyer_id, reason, description, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, requested_at`

	err := sqlx.GetContext(ctx, q.ext, refund, query,
		refund.PaymentID, refund.BuyerID, refund.Reason, refund.Description, refund.Amount, refund.Status)
	return conflict(err)
}

// GetRefundByID retrieves a refund request by ID
func (q *queries) GetRefundByID(ctx context.Context, id int64) (*models.RefundRequest, error) {
	var refund models.RefundRequest
	if err := sqlx.GetContext(ctx, q.ext, &refund, "SELECT * FROM refund_requests WHERE id = $1", id); err != nil {
		return nil, notFound(err)
	}
	return &refund, nil
}

// TransitionRefund applies upd if the refund is currently in status `from`
func (q *queries) TransitionRefund(ctx context.Context, id int64, from string, upd RefundUpdate) (bool, error) {
	return matched(q.ext.ExecContext(ctx, `
		UPDATE refund_requests
		SET status = $1,
			processed_at = COALESCE($2, processed_at),
			admin_notes = COALESCE($3, admin_notes),
			seller_accepted_at = COALESCE($4, seller_accepted_at)
		WHERE id = $5 AND status = $6`,
		upd.Status, upd.ProcessedAt, upd.AdminNotes, upd.SellerAcceptedAt, id, from))
}

// ListRefunds lists refund requests, optionally filtered by status
func (q *queries) ListRefunds(ctx context.Context, status string) ([]models.RefundRequest, error) {
	var refunds []models.RefundRequest
	if status == "" {
		err := sqlx.SelectContext(ctx, q.ext, &refunds,
			"SELECT * FROM refund_requests ORDER BY requested_at DESC, id DESC")
		return refunds, err
	}
	err := sqlx.SelectContext(ctx, q.ext, &refunds,
		"SELECT * FROM refund_requests WHERE status = $1 ORDER BY requested_at DESC, id DESC", status)
	return refunds, err
}

// ListRefundsByBuyerID lists a buyer's refund requests
func (q *queries) ListRefundsByBuyerID(ctx context.Context, buyerID int64) ([]models.RefundRequest, error) {
	var refunds []models.RefundRequest
	err := sqlx.SelectContext(ctx, q.ext, &refunds,
		"SELECT * FROM refund_requests WHERE buyer_id = $1 ORDER BY requested_at DESC, id DESC", buyerID)
	return refunds, err
}

// IsEventProcessed checks if an event has been processed
func (q *queries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.ext, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed. It reports false if the
// event was already recorded.
func (q *queries) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	return matched(q.ext.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType))
}
