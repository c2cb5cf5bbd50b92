package service

import (
	"context"
	"testing"

	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateStatus_SellerFulfillment(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	resp := f.purchase(t, "pi_o1", 100, 1)
	orderID := resp.OrderIDs[0]
	ctx := context.Background()

	_, err := f.orders.UpdateStatus(ctx, 99, orderID, models.OrderStatusProcessing)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.orders.UpdateStatus(ctx, sellerID, orderID, models.OrderStatusReceived)
	assert.ErrorIs(t, err, ErrValidation, "only the buyer confirms receipt")

	_, err = f.orders.UpdateStatus(ctx, sellerID, orderID, "lost")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orders.UpdateStatus(ctx, sellerID, 404, models.OrderStatusProcessing)
	assert.ErrorIs(t, err, ErrNotFound)

	order, err := f.orders.UpdateStatus(ctx, sellerID, orderID, models.OrderStatusShipped)
	assert.ErrorIs(t, err, ErrInvalidState, "paid orders are processed before shipping")
	assert.Nil(t, order)

	order, err = f.orders.UpdateStatus(ctx, sellerID, orderID, models.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.Contains(t, f.notificationTypes(t, buyerID), models.NotificationOrderStatus)
	assert.True(t, f.pub.seen(models.EventTypeOrderStatusChanged))
}

func TestOrderListings(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	first := f.purchase(t, "pi_o2", 100, 1)
	second := f.purchase(t, "pi_o3", 100, 1)
	ctx := context.Background()

	mine, err := f.orders.ListBuyerOrders(ctx, buyerID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.OrderIDs[0], mine[0].ID, "newest first")
	assert.Equal(t, first.OrderIDs[0], mine[1].ID)

	sold, err := f.orders.ListSellerOrders(ctx, sellerID)
	require.NoError(t, err)
	assert.Len(t, sold, 2)

	none, err := f.orders.ListSellerOrders(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, none)
}
