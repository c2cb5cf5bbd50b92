package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint is violated
	ErrConflict = errors.New("conflict")
)

// Querier is the set of queries available on the pool and inside a transaction.
// Methods returning a bool report whether a conditional write matched a row.
type Querier interface {
	GetStock(ctx context.Context, productID int64) (*models.ProductStock, error)
	UpsertStock(ctx context.Context, stock *models.ProductStock) error
	DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) error

	AddCartItem(ctx context.Context, item *models.CartItem) error
	GetCartItems(ctx context.Context, buyerID int64, ids []int64) ([]models.CartItem, error)
	DeleteCartItems(ctx context.Context, buyerID int64, ids []int64) (int64, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	TransitionPaymentStatus(ctx context.Context, id int64, from []string, to string) (bool, error)
	MarkPaymentGatewayConfirmed(ctx context.Context, intentID string, at time.Time) (bool, error)
	MarkPaymentGatewayRefunded(ctx context.Context, intentID string, at time.Time) (bool, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByPaymentID(ctx context.Context, paymentID int64) ([]models.Order, error)
	GetOrdersByBuyerID(ctx context.Context, buyerID int64) ([]models.Order, error)
	GetOrdersBySellerID(ctx context.Context, sellerID int64) ([]models.Order, error)
	TransitionOrderStatus(ctx context.Context, id int64, from []string, to string) (bool, error)

	CreateRefund(ctx context.Context, refund *models.RefundRequest) error
	GetRefundByID(ctx context.Context, id int64) (*models.RefundRequest, error)
	TransitionRefund(ctx context.Context, id int64, from string, upd RefundUpdate) (bool, error)
	ListRefunds(ctx context.Context, status string) ([]models.RefundRequest, error)
	ListRefundsByBuyerID(ctx context.Context, buyerID int64) ([]models.RefundRequest, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID int64) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID int64) (bool, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

// RefundUpdate carries the columns written by a refund transition.
// Nil fields are left unchanged.
type RefundUpdate struct {
	Status           string
	ProcessedAt      *time.Time
	AdminNotes       *string
	SellerAcceptedAt *time.Time
}

// Store is a Querier that can also run a unit of work in one transaction
type Store interface {
	Querier
	// WithTx runs fn in a transaction. The transaction commits only if fn
	// returns nil and rolls back otherwise, including when ctx is cancelled.
	WithTx(ctx context.Context, fn func(q Querier) error) error
	Ping(ctx context.Context) error
	Close() error
}

// PostgresStore is the Store backed by PostgreSQL
type PostgresStore struct {
	*queries
	db               *sqlx.DB
	statementTimeout time.Duration
}

var _ Store = (*PostgresStore)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string, statementTimeout time.Duration) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{
		queries:          &queries{ext: db},
		db:               db,
		statementTimeout: statementTimeout,
	}, nil
}

// Migrate applies the schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside a single database transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.statementTimeout > 0 {
		ms := s.statementTimeout.Milliseconds()
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", ms)); err != nil {
			return fmt.Errorf("failed to set statement timeout: %w", err)
		}
	}

	if err := fn(&queries{ext: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// queries runs statements on either the pool or a transaction
type queries struct {
	ext sqlx.ExtContext
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func conflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
	}
	return err
}

func matched(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// GetStock retrieves the stock record for a product
func (q *queries) GetStock(ctx context.Context, productID int64) (*models.ProductStock, error) {
	var stock models.ProductStock
	err := sqlx.GetContext(ctx, q.ext, &stock,
		"SELECT * FROM product_stock WHERE product_id = $1", productID)
	if err != nil {
		return nil, notFound(err)
	}
	return &stock, nil
}

// UpsertStock creates the stock record or overwrites seller and quantity
func (q *queries) UpsertStock(ctx context.Context, stock *models.ProductStock) error {
	query := `
		INSERT INTO product_stock (product_id, seller_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE
		SET seller_id = EXCLUDED.seller_id, quantity = EXCLUDED.quantity, updated_at = NOW()
		RETURNING created_at, updated_at`

	return sqlx.GetContext(ctx, q.ext, stock, query,
		stock.ProductID, stock.SellerID, stock.Quantity)
}

// DecrementStock subtracts quantity only if enough is available
func (q *queries) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	return matched(q.ext.ExecContext(ctx,
		"UPDATE product_stock SET quantity = quantity - $1, updated_at = NOW() WHERE product_id = $2 AND quantity >= $1",
		quantity, productID))
}

// IncrementStock adds quantity back to a product
func (q *queries) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	ok, err := matched(q.ext.ExecContext(ctx,
		"UPDATE product_stock SET quantity = quantity + $1, updated_at = NOW() WHERE product_id = $2",
		quantity, productID))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
