package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fulfillment-service/internal/models"
)

// MemoryStore is an in-process Store for local runs and tests.
// A transaction holds the store lock and works on a copy of the data,
// which replaces the live data only when the transaction commits.
type MemoryStore struct {
	*memQuerier
	mu    sync.Mutex
	state *memState

	faultMu sync.RWMutex
	faults  map[string]error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		state:  newMemState(),
		faults: make(map[string]error),
	}
	m.memQuerier = &memQuerier{mu: &m.mu, state: m.state, store: m}
	return m
}

// FailOn makes every later call of the named Querier method return err
func (m *MemoryStore) FailOn(method string, err error) {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	m.faults[method] = err
}

// ClearFaults removes all injected failures
func (m *MemoryStore) ClearFaults() {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	m.faults = make(map[string]error)
}

func (m *MemoryStore) fault(method string) error {
	m.faultMu.RLock()
	defer m.faultMu.RUnlock()
	return m.faults[method]
}

// WithTx runs fn against a private copy of the data and publishes it on success
func (m *MemoryStore) WithTx(ctx context.Context, fn func(q Querier) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.state.clone()
	if err := fn(&memQuerier{state: work, store: m}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	*m.state = *work
	return nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

type memState struct {
	nextID        map[string]int64
	stock         map[int64]models.ProductStock
	cart          map[int64]models.CartItem
	payments      map[int64]models.Payment
	orders        map[int64]models.Order
	refunds       map[int64]models.RefundRequest
	notifications map[int64]models.Notification
	events        map[string]models.ProcessedEvent
}

func newMemState() *memState {
	return &memState{
		nextID:        make(map[string]int64),
		stock:         make(map[int64]models.ProductStock),
		cart:          make(map[int64]models.CartItem),
		payments:      make(map[int64]models.Payment),
		orders:        make(map[int64]models.Order),
		refunds:       make(map[int64]models.RefundRequest),
		notifications: make(map[int64]models.Notification),
		events:        make(map[string]models.ProcessedEvent),
	}
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (s *memState) clone() *memState {
	return &memState{
		nextID:        cloneMap(s.nextID),
		stock:         cloneMap(s.stock),
		cart:          cloneMap(s.cart),
		payments:      cloneMap(s.payments),
		orders:        cloneMap(s.orders),
		refunds:       cloneMap(s.refunds),
		notifications: cloneMap(s.notifications),
		events:        cloneMap(s.events),
	}
}

func (s *memState) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// memQuerier runs queries on one memState. mu is nil inside a transaction,
// where the transaction already holds the store lock.
type memQuerier struct {
	mu    *sync.Mutex
	state *memState
	store *MemoryStore
}

func (q *memQuerier) begin(method string) (func(), error) {
	if err := q.store.fault(method); err != nil {
		return nil, err
	}
	if q.mu == nil {
		return func() {}, nil
	}
	q.mu.Lock()
	return q.mu.Unlock, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (q *memQuerier) GetStock(ctx context.Context, productID int64) (*models.ProductStock, error) {
	unlock, err := q.begin("GetStock")
	if err != nil {
		return nil, err
	}
	defer unlock()

	stock, ok := q.state.stock[productID]
	if !ok {
		return nil, ErrNotFound
	}
	return &stock, nil
}

func (q *memQuerier) UpsertStock(ctx context.Context, stock *models.ProductStock) error {
	unlock, err := q.begin("UpsertStock")
	if err != nil {
		return err
	}
	defer unlock()

	now := time.Now().UTC()
	if existing, ok := q.state.stock[stock.ProductID]; ok {
		stock.CreatedAt = existing.CreatedAt
	} else {
		stock.CreatedAt = now
	}
	stock.UpdatedAt = now
	q.state.stock[stock.ProductID] = *stock
	return nil
}

func (q *memQuerier) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	unlock, err := q.begin("DecrementStock")
	if err != nil {
		return false, err
	}
	defer unlock()

	stock, ok := q.state.stock[productID]
	if !ok || stock.Quantity < quantity {
		return false, nil
	}
	stock.Quantity -= quantity
	stock.UpdatedAt = time.Now().UTC()
	q.state.stock[productID] = stock
	return true, nil
}

func (q *memQuerier) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	unlock, err := q.begin("IncrementStock")
	if err != nil {
		return err
	}
	defer unlock()

	stock, ok := q.state.stock[productID]
	if !ok {
		return ErrNotFound
	}
	stock.Quantity += quantity
	stock.UpdatedAt = time.Now().UTC()
	q.state.stock[productID] = stock
	return nil
}

func (q *memQuerier) AddCartItem(ctx context.Context, item *models.CartItem) error {
	unlock, err := q.begin("AddCartItem")
	if err != nil {
		return err
	}
	defer unlock()

	item.ID = q.state.id("cart_items")
	item.CreatedAt = time.Now().UTC()
	q.state.cart[item.ID] = *item
	return nil
}

func (q *memQuerier) GetCartItems(ctx context.Context, buyerID int64, ids []int64) ([]models.CartItem, error) {
	unlock, err := q.begin("GetCartItems")
	if err != nil {
		return nil, err
	}
	defer unlock()

	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var items []models.CartItem
	for _, item := range q.state.cart {
		if item.BuyerID != buyerID {
			continue
		}
		if len(ids) > 0 && !want[item.ID] {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (q *memQuerier) DeleteCartItems(ctx context.Context, buyerID int64, ids []int64) (int64, error) {
	unlock, err := q.begin("DeleteCartItems")
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for _, id := range ids {
		if item, ok := q.state.cart[id]; ok && item.BuyerID == buyerID {
			delete(q.state.cart, id)
			n++
		}
	}
	return n, nil
}

func (q *memQuerier) CreatePayment(ctx context.Context, payment *models.Payment) error {
	unlock, err := q.begin("CreatePayment")
	if err != nil {
		return err
	}
	defer unlock()

	for _, p := range q.state.payments {
		if p.PaymentIntentID == payment.PaymentIntentID {
			return fmt.Errorf("%w: payments_payment_intent_id_key", ErrConflict)
		}
	}
	payment.ID = q.state.id("payments")
	payment.CreatedAt = time.Now().UTC()
	payment.UpdatedAt = payment.CreatedAt
	q.state.payments[payment.ID] = *payment
	return nil
}

func (q *memQuerier) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	unlock, err := q.begin("GetPaymentByID")
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, ok := q.state.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (q *memQuerier) GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	unlock, err := q.begin("GetPaymentByIntentID")
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, p := range q.state.payments {
		if p.PaymentIntentID == intentID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (q *memQuerier) TransitionPaymentStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	unlock, err := q.begin("TransitionPaymentStatus")
	if err != nil {
		return false, err
	}
	defer unlock()

	p, ok := q.state.payments[id]
	if !ok || !contains(from, p.Status) {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	q.state.payments[id] = p
	return true, nil
}

func (q *memQuerier) MarkPaymentGatewayConfirmed(ctx context.Context, intentID string, at time.Time) (bool, error) {
	unlock, err := q.begin("MarkPaymentGatewayConfirmed")
	if err != nil {
		return false, err
	}
	defer unlock()

	for id, p := range q.state.payments {
		if p.PaymentIntentID != intentID || p.GatewayConfirmedAt != nil {
			continue
		}
		p.GatewayConfirmedAt = &at
		p.UpdatedAt = time.Now().UTC()
		q.state.payments[id] = p
		return true, nil
	}
	return false, nil
}

func (q *memQuerier) MarkPaymentGatewayRefunded(ctx context.Context, intentID string, at time.Time) (bool, error) {
	unlock, err := q.begin("MarkPaymentGatewayRefunded")
	if err != nil {
		return false, err
	}
	defer unlock()

	for id, p := range q.state.payments {
		if p.PaymentIntentID != intentID || p.Status != models.PaymentStatusRefunded || p.GatewayRefundedAt != nil {
			continue
		}
		p.GatewayRefundedAt = &at
		p.UpdatedAt = time.Now().UTC()
		q.state.payments[id] = p
		return true, nil
	}
	return false, nil
}

func (q *memQuerier) CreateOrder(ctx context.Context, order *models.Order) error {
	unlock, err := q.begin("CreateOrder")
	if err != nil {
		return err
	}
	defer unlock()

	order.ID = q.state.id("orders")
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt
	q.state.orders[order.ID] = *order
	return nil
}

func (q *memQuerier) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	unlock, err := q.begin("GetOrderByID")
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, ok := q.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (q *memQuerier) filterOrders(method string, keep func(models.Order) bool, newestFirst bool) ([]models.Order, error) {
	unlock, err := q.begin(method)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var orders []models.Order
	for _, o := range q.state.orders {
		if keep(o) {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if newestFirst {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}

func (q *memQuerier) GetOrdersByPaymentID(ctx context.Context, paymentID int64) ([]models.Order, error) {
	return q.filterOrders("GetOrdersByPaymentID", func(o models.Order) bool {
		return o.PaymentID != nil && *o.PaymentID == paymentID
	}, false)
}

func (q *memQuerier) GetOrdersByBuyerID(ctx context.Context, buyerID int64) ([]models.Order, error) {
	return q.filterOrders("GetOrdersByBuyerID", func(o models.Order) bool {
		return o.BuyerID == buyerID
	}, true)
}

func (q *memQuerier) GetOrdersBySellerID(ctx context.Context, sellerID int64) ([]models.Order, error) {
	return q.filterOrders("GetOrdersBySellerID", func(o models.Order) bool {
		return o.SellerID == sellerID
	}, true)
}

func (q *memQuerier) TransitionOrderStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	unlock, err := q.begin("TransitionOrderStatus")
	if err != nil {
		return false, err
	}
	defer unlock()

	o, ok := q.state.orders[id]
	if !ok || !contains(from, o.Status) {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	q.state.orders[id] = o
	return true, nil
}

func (q *memQuerier) CreateRefund(ctx context.Context, refund *models.RefundRequest) error {
	unlock, err := q.begin("CreateRefund")
	if err != nil {
		return err
	}
	defer unlock()

	for _, r := range q.state.refunds {
		if r.PaymentID == refund.PaymentID &&
			(r.Status == models.RefundStatusPending || r.Status == models.RefundStatusApproved) {
			return fmt.Errorf("%w: uq_refund_requests_active", ErrConflict)
		}
	}
	refund.ID = q.state.id("refund_requests")
	refund.RequestedAt = time.Now().UTC()
	q.state.refunds[refund.ID] = *refund
	return nil
}

func (q *memQuerier) GetRefundByID(ctx context.Context, id int64) (*models.RefundRequest, error) {
	unlock, err := q.begin("GetRefundByID")
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, ok := q.state.refunds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (q *memQuerier) TransitionRefund(ctx context.Context, id int64, from string, upd RefundUpdate) (bool, error) {
	unlock, err := q.begin("TransitionRefund")
	if err != nil {
		return false, err
	}
	defer unlock()

	r, ok := q.state.refunds[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = upd.Status
	if upd.ProcessedAt != nil {
		r.ProcessedAt = upd.ProcessedAt
	}
	if upd.AdminNotes != nil {
		r.AdminNotes = upd.AdminNotes
	}
	if upd.SellerAcceptedAt != nil {
		r.SellerAcceptedAt = upd.SellerAcceptedAt
	}
	q.state.refunds[id] = r
	return true, nil
}

func (q *memQuerier) filterRefunds(method string, keep func(models.RefundRequest) bool) ([]models.RefundRequest, error) {
	unlock, err := q.begin(method)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var refunds []models.RefundRequest
	for _, r := range q.state.refunds {
		if keep(r) {
			refunds = append(refunds, r)
		}
	}
	sort.Slice(refunds, func(i, j int) bool { return refunds[i].ID > refunds[j].ID })
	return refunds, nil
}

func (q *memQuerier) ListRefunds(ctx context.Context, status string) ([]models.RefundRequest, error) {
	return q.filterRefunds("ListRefunds", func(r models.RefundRequest) bool {
		return status == "" || r.Status == status
	})
}

func (q *memQuerier) ListRefundsByBuyerID(ctx context.Context, buyerID int64) ([]models.RefundRequest, error) {
	return q.filterRefunds("ListRefundsByBuyerID", func(r models.RefundRequest) bool {
		return r.BuyerID == buyerID
	})
}

func (q *memQuerier) CreateNotification(ctx context.Context, n *models.Notification) error {
	unlock, err := q.begin("CreateNotification")
	if err != nil {
		return err
	}
	defer unlock()

	n.ID = q.state.id("notifications")
	n.IsRead = false
	n.CreatedAt = time.Now().UTC()
	q.state.notifications[n.ID] = *n
	return nil
}

func (q *memQuerier) ListNotifications(ctx context.Context, userID int64) ([]models.Notification, error) {
	unlock, err := q.begin("ListNotifications")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []models.Notification
	for _, n := range q.state.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (q *memQuerier) MarkNotificationRead(ctx context.Context, id, userID int64) (bool, error) {
	unlock, err := q.begin("MarkNotificationRead")
	if err != nil {
		return false, err
	}
	defer unlock()

	n, ok := q.state.notifications[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	n.IsRead = true
	q.state.notifications[id] = n
	return true, nil
}

func (q *memQuerier) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	unlock, err := q.begin("IsEventProcessed")
	if err != nil {
		return false, err
	}
	defer unlock()

	_, ok := q.state.events[eventID]
	return ok, nil
}

func (q *memQuerier) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	unlock, err := q.begin("MarkEventProcessed")
	if err != nil {
		return false, err
	}
	defer unlock()

	if _, ok := q.state.events[eventID]; ok {
		return false, nil
	}
	q.state.events[eventID] = models.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now().UTC(),
	}
	return true, nil
}
