package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// CartService manages the buyer's pre-checkout cart
type CartService struct {
	store  store.Store
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(st store.Store) *CartService {
	return &CartService{
		store:  st,
		logger: util.GetLogger(),
	}
}

// AddCartItemRequest is a product snapshot added to the cart
type AddCartItemRequest struct {
	ProductID   int64  `json:"productId" binding:"required"`
	ProductName string `json:"productName" binding:"required"`
	Category    string `json:"category"`
	ImageURL    string `json:"imageUrl"`
	UnitPrice   int64  `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
}

// Add puts a product in the buyer's cart. The seller comes from the stock
// record and current stock must cover the quantity.
func (cs *CartService) Add(ctx context.Context, buyerID int64, req *AddCartItemRequest) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Add")
	defer span.End()

	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		return nil, validationErr("quantity must be positive")
	}
	if req.UnitPrice < 0 {
		return nil, validationErr("unit price must not be negative")
	}
	name := strings.TrimSpace(req.ProductName)
	if name == "" {
		return nil, validationErr("productName is required")
	}

	stock, err := cs.store.GetStock(ctx, req.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundErr("product %d", req.ProductID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stock for product %d: %w", req.ProductID, err)
	}
	if stock.SellerID == buyerID {
		return nil, validationErr("cannot buy your own product")
	}
	if stock.Quantity < req.Quantity {
		return nil, &InsufficientStockError{ProductID: req.ProductID, Available: stock.Quantity, Requested: req.Quantity}
	}

	item := &models.CartItem{
		BuyerID:     buyerID,
		SellerID:    stock.SellerID,
		ProductID:   req.ProductID,
		ProductName: name,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		UnitPrice:   req.UnitPrice,
		Quantity:    req.Quantity,
	}
	if err := cs.store.AddCartItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	cs.logger.Debug("Cart item added",
		zap.Int64("buyer_id", buyerID),
		zap.Int64("product_id", item.ProductID),
		zap.Int("quantity", item.Quantity))
	return item, nil
}

// List returns everything in the buyer's cart
func (cs *CartService) List(ctx context.Context, buyerID int64) ([]models.CartItem, error) {
	return cs.store.GetCartItems(ctx, buyerID, nil)
}

// Remove deletes one line from the buyer's cart
func (cs *CartService) Remove(ctx context.Context, buyerID, itemID int64) error {
	n, err := cs.store.DeleteCartItems(ctx, buyerID, []int64{itemID})
	if err != nil {
		return fmt.Errorf("failed to remove cart item %d: %w", itemID, err)
	}
	if n == 0 {
		return notFoundErr("cart item %d", itemID)
	}
	return nil
}
