package service

import (
	"context"
	"errors"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// InventoryLedger is the only component that changes product stock.
// Reserve and Restore always run on the caller's transaction.
type InventoryLedger struct {
	store  store.Store
	logger *zap.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger(st store.Store) *InventoryLedger {
	return &InventoryLedger{
		store:  st,
		logger: util.GetLogger(),
	}
}

// Check verifies that current stock covers every line item, summing lines
// that share a product. It does not write; Reserve is the authoritative check.
func (l *InventoryLedger) Check(ctx context.Context, q store.Querier, items []models.CartItem) error {
	requested := make(map[int64]int)
	var order []int64
	for _, item := range items {
		if item.Quantity <= 0 {
			return validationErr("quantity for product %d must be positive", item.ProductID)
		}
		if _, seen := requested[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}

	for _, productID := range order {
		stock, err := q.GetStock(ctx, productID)
		if errors.Is(err, store.ErrNotFound) {
			util.InventoryReservationsFailed.WithLabelValues("unknown_product").Inc()
			return &InsufficientStockError{ProductID: productID, Available: 0, Requested: requested[productID]}
		}
		if err != nil {
			return fmt.Errorf("failed to read stock for product %d: %w", productID, err)
		}
		if stock.Quantity < requested[productID] {
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			return &InsufficientStockError{ProductID: productID, Available: stock.Quantity, Requested: requested[productID]}
		}
	}
	return nil
}

// Reserve decrements stock if and only if at least quantity is available
func (l *InventoryLedger) Reserve(ctx context.Context, q store.Querier, productID int64, quantity int) error {
	if quantity <= 0 {
		return validationErr("quantity for product %d must be positive", productID)
	}

	ok, err := q.DecrementStock(ctx, productID, quantity)
	if err != nil {
		util.InventoryReservationsFailed.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to reserve stock for product %d: %w", productID, err)
	}
	if ok {
		return nil
	}

	available := 0
	stock, err := q.GetStock(ctx, productID)
	switch {
	case err == nil:
		available = stock.Quantity
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to read stock for product %d: %w", productID, err)
	}

	util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
	return &InsufficientStockError{ProductID: productID, Available: available, Requested: quantity}
}

// Restore adds quantity back to a product. There is no upper bound.
func (l *InventoryLedger) Restore(ctx context.Context, q store.Querier, productID int64, quantity int) error {
	if quantity <= 0 {
		return validationErr("quantity for product %d must be positive", productID)
	}
	if err := q.IncrementStock(ctx, productID, quantity); err != nil {
		return fmt.Errorf("failed to restore stock for product %d: %w", productID, err)
	}
	return nil
}

// SetStock creates or overwrites the stock record of a product approved into the catalog
func (l *InventoryLedger) SetStock(ctx context.Context, productID, sellerID int64, quantity int) (*models.ProductStock, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.SetStock")
	defer span.End()

	if productID <= 0 || sellerID <= 0 {
		return nil, validationErr("product and seller ids are required")
	}
	if quantity < 0 {
		return nil, validationErr("quantity must not be negative")
	}

	stock := &models.ProductStock{ProductID: productID, SellerID: sellerID, Quantity: quantity}
	if err := l.store.UpsertStock(ctx, stock); err != nil {
		return nil, fmt.Errorf("failed to set stock: %w", err)
	}

	l.logger.Info("Stock set",
		zap.Int64("product_id", productID),
		zap.Int64("seller_id", sellerID),
		zap.Int("quantity", quantity))
	return stock, nil
}

// GetStock retrieves the stock record for a product
func (l *InventoryLedger) GetStock(ctx context.Context, productID int64) (*models.ProductStock, error) {
	stock, err := l.store.GetStock(ctx, productID)
	if err != nil {
		return nil, storeErr(err, "product", productID)
	}
	return stock, nil
}
