package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	buyerID  int64 = 1
	sellerID int64 = 10
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) record(eventType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *recordingPublisher) PublishOrderStatus(_ context.Context, e *models.OrderStatusEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *recordingPublisher) PublishRefund(_ context.Context, e *models.RefundEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *recordingPublisher) PublishNotification(_ context.Context, e *models.NotificationCreatedEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *recordingPublisher) seen(eventType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == eventType {
			return true
		}
	}
	return false
}

type busyLocker struct{}

func (busyLocker) AcquireLock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return nil, nil
}

type mapCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (c *mapCache) CheckIdempotencyKey(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[key], nil
}

func (c *mapCache) SetIdempotencyKey(_ context.Context, key string, _ interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		c.keys = make(map[string]bool)
	}
	c.keys[key] = true
	return nil
}

type fixture struct {
	store    *store.MemoryStore
	pub      *recordingPublisher
	ledger   *InventoryLedger
	notifier *NotificationService
	checkout *CheckoutService
	refunds  *RefundService
	orders   *OrderService
	carts    *CartService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fees, err := NewFeeSchedule(decimal.NewFromInt(20))
	require.NoError(t, err)

	st := store.NewMemoryStore()
	pub := &recordingPublisher{}
	ledger := NewInventoryLedger(st)
	notifier := NewNotificationService(st, pub)

	return &fixture{
		store:    st,
		pub:      pub,
		ledger:   ledger,
		notifier: notifier,
		checkout: NewCheckoutService(st, ledger, notifier, pub, nil, CheckoutConfig{
			Fees:            fees,
			DefaultCurrency: "usd",
		}),
		refunds: NewRefundService(st, ledger, notifier, pub),
		orders:  NewOrderService(st, notifier, pub),
		carts:   NewCartService(st),
	}
}

func (f *fixture) stock(t *testing.T, productID int64, quantity int) {
	t.Helper()
	_, err := f.ledger.SetStock(context.Background(), productID, sellerID, quantity)
	require.NoError(t, err)
}

func (f *fixture) stockLevel(t *testing.T, productID int64) int {
	t.Helper()
	s, err := f.store.GetStock(context.Background(), productID)
	require.NoError(t, err)
	return s.Quantity
}

// cartItem puts a line directly in the cart, bypassing the availability check
func (f *fixture) cartItem(t *testing.T, buyer, productID int64, quantity int, unitPrice int64) int64 {
	t.Helper()
	item := &models.CartItem{
		BuyerID:     buyer,
		SellerID:    sellerID,
		ProductID:   productID,
		ProductName: "Vintage jacket",
		Category:    "clothing",
		UnitPrice:   unitPrice,
		Quantity:    quantity,
	}
	require.NoError(t, f.store.AddCartItem(context.Background(), item))
	return item.ID
}

// purchase checks out a single product with a confirmed payment
func (f *fixture) purchase(t *testing.T, intentID string, productID int64, quantity int) *CreateOrderResponse {
	t.Helper()
	id := f.cartItem(t, buyerID, productID, quantity, 1500)
	resp, err := f.checkout.CreateOrder(context.Background(), buyerID, &CreateOrderRequest{
		Items:           []int64{id},
		PaymentIntentID: intentID,
		TotalAmount:     1500 * int64(quantity),
		Address:         "12 Market St",
		Phone:           "555-0100",
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) payment(t *testing.T, id int64) *models.Payment {
	t.Helper()
	p, err := f.store.GetPaymentByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) ordersFor(t *testing.T, paymentID int64) []models.Order {
	t.Helper()
	orders, err := f.store.GetOrdersByPaymentID(context.Background(), paymentID)
	require.NoError(t, err)
	return orders
}

func (f *fixture) refund(t *testing.T, id int64) *models.RefundRequest {
	t.Helper()
	r, err := f.store.GetRefundByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (f *fixture) notificationTypes(t *testing.T, userID int64) []string {
	t.Helper()
	ns, err := f.store.ListNotifications(context.Background(), userID)
	require.NoError(t, err)
	types := make([]string, 0, len(ns))
	for _, n := range ns {
		types = append(types, n.Type)
	}
	return types
}
