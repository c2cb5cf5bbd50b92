package store

import (
	"context"

	"fulfillment-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// AddCartItem inserts a cart line item
func (q *queries) AddCartItem(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO cart_items (buyer_id, seller_id, product_id, product_name, category, image_url, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, q.ext, item, query,
		item.BuyerID, item.SellerID, item.ProductID, item.ProductName, item.Category,
		item.ImageURL, item.UnitPrice, item.Quantity)
}

// GetCartItems returns the buyer's cart items with the given ids, or the whole cart if ids is empty
func (q *queries) GetCartItems(ctx context.Context, buyerID int64, ids []int64) ([]models.CartItem, error) {
	var items []models.CartItem
	if len(ids) == 0 {
		err := sqlx.SelectContext(ctx, q.ext, &items,
			"SELECT * FROM cart_items WHERE buyer_id = $1 ORDER BY id", buyerID)
		return items, err
	}

	query, args, err := sqlx.In("SELECT * FROM cart_items WHERE buyer_id = ? AND id IN (?) ORDER BY id", buyerID, ids)
	if err != nil {
		return nil, err
	}
	query = q.ext.Rebind(query)

	err = sqlx.SelectContext(ctx, q.ext, &items, query, args...)
	return items, err
}

// DeleteCartItems removes the buyer's cart items with the given ids
func (q *queries) DeleteCartItems(ctx context.Context, buyerID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In("DELETE FROM cart_items WHERE buyer_id = ? AND id IN (?)", buyerID, ids)
	if err != nil {
		return 0, err
	}
	query = q.ext.Rebind(query)

	res, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateNotification stores a notification
func (q *queries) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, title, message, reference_id, reference_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_read, created_at`

	return sqlx.GetContext(ctx, q.ext, n, query,
		n.UserID, n.Type, n.Title, n.Message, n.ReferenceID, n.ReferenceType)
}

// ListNotifications lists a user's notifications, newest first
func (q *queries) ListNotifications(ctx context.Context, userID int64) ([]models.Notification, error) {
	var notifications []models.Notification
	err := sqlx.SelectContext(ctx, q.ext, &notifications,
		"SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	return notifications, err
}

// MarkNotificationRead marks a user's notification as read
func (q *queries) MarkNotificationRead(ctx context.Context, id, userID int64) (bool, error) {
	return matched(q.ext.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2", id, userID))
}
