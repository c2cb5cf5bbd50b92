package store

import (
	"context"
	"os"
	"testing"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPostgres(t *testing.T) *PostgresStore {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database (set TEST_DATABASE_URL)")
	}

	s, err := NewStore(url, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestPostgresDecrementStockIsConditional(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()

	productID := time.Now().UnixNano()
	require.NoError(t, s.UpsertStock(ctx, &models.ProductStock{ProductID: productID, SellerID: 7, Quantity: 5}))

	ok, err := s.DecrementStock(ctx, productID, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DecrementStock(ctx, productID, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	stock, err := s.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, stock.Quantity)
}

func TestPostgresWithTxRollsBack(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()

	intent := "pi_" + uuid.New().String()
	err := s.WithTx(ctx, func(q Querier) error {
		p := &models.Payment{
			PaymentIntentID: intent,
			BuyerID:         1,
			Amount:          1000,
			Currency:        "usd",
			PlatformFee:     200,
			SellerAmount:    800,
			Status:          models.PaymentStatusSucceeded,
		}
		require.NoError(t, q.CreatePayment(ctx, p))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = s.GetPaymentByIntentID(ctx, intent)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresPaymentIntentIsUnique(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()

	intent := "pi_" + uuid.New().String()
	newPayment := func() *models.Payment {
		return &models.Payment{
			PaymentIntentID: intent,
			BuyerID:         1,
			Amount:          1000,
			Currency:        "usd",
			PlatformFee:     200,
			SellerAmount:    800,
			Status:          models.PaymentStatusSucceeded,
		}
	}

	require.NoError(t, s.CreatePayment(ctx, newPayment()))
	err := s.CreatePayment(ctx, newPayment())
	assert.ErrorIs(t, err, ErrConflict)
}
