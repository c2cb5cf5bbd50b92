package service

import (
	"context"
	"errors"
	"testing"

	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestRefund(t *testing.T, f *fixture, paymentID int64) *models.RefundRequest {
	t.Helper()
	r, err := f.refunds.Request(context.Background(), buyerID, &RefundRequestInput{
		PaymentID: paymentID,
		Reason:    "Item not as described",
	})
	require.NoError(t, err)
	return r
}

func TestRefundRequest_HoldsPayment(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	resp := f.purchase(t, "pi_r1", 100, 3)

	r := requestRefund(t, f, resp.PaymentID)

	assert.Equal(t, models.RefundStatusPending, r.Status)
	assert.Equal(t, int64(4500), r.Amount)
	assert.Equal(t, models.PaymentStatusRefundRequested, f.payment(t, resp.PaymentID).Status)
	assert.Contains(t, f.notificationTypes(t, sellerID), models.NotificationRefundRequested)
	assert.True(t, f.pub.seen(models.EventTypeRefundRequested))
}

func TestRefundRequest_Rejections(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	resp := f.purchase(t, "pi_r2", 100, 1)
	ctx := context.Background()

	_, err := f.refunds.Request(ctx, 2, &RefundRequestInput{PaymentID: resp.PaymentID, Reason: "changed my mind"})
	assert.ErrorIs(t, err, ErrNotFound, "payment of another buyer")

	_, err = f.refunds.Request(ctx, buyerID, &RefundRequestInput{PaymentID: 404, Reason: "changed my mind"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.refunds.Request(ctx, buyerID, &RefundRequestInput{PaymentID: resp.PaymentID})
	assert.ErrorIs(t, err, ErrValidation)

	requestRefund(t, f, resp.PaymentID)
	_, err = f.refunds.Request(ctx, buyerID, &RefundRequestInput{PaymentID: resp.PaymentID, Reason: "again"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRefundApprove_RestoresStockAndRefundsEverything(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	resp := f.purchase(t, "pi_r3", 100, 3)
	require.Equal(t, 2, f.stockLevel(t, 100))
	r := requestRefund(t, f, resp.PaymentID)

	approved, err := f.refunds.Approve(context.Background(), r.ID)
	require.NoError(t, err)

	assert.Equal(t, models.RefundStatusApproved, approved.Status)
	assert.NotNil(t, approved.ProcessedAt)
	assert.Equal(t, 5, f.stockLevel(t, 100))
	assert.Equal(t, models.PaymentStatusRefunded, f.payment(t, resp.PaymentID).Status)
	for _, o := range f.ordersFor(t, resp.PaymentID) {
		assert.Equal(t, models.OrderStatusRefunded, o.Status)
	}

	stored := f.refund(t, r.ID)
	assert.Equal(t, models.RefundStatusApproved, stored.Status)
	assert.Contains(t, f.notificationTypes(t, buyerID), models.NotificationRefundApproved)
	assert.True(t, f.pub.seen(models.EventTypeRefundApproved))
}

func TestRefundApprove_FailureRollsBackEveryChange(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	resp := f.purchase(t, "pi_r4", 100, 3)
	r := requestRefund(t, f, resp.PaymentID)

	f.store.FailOn("IncrementStock", errors.New("disk full"))
	_, err := f.refunds.Approve(context.Background(), r.ID)
	require.Error(t, err)
	f.store.ClearFaults()

	assert.Equal(t, models.RefundStatusPending, f.refund(t, r.ID).Status)
	assert.Nil(t, f.refund(t, r.ID).ProcessedAt)
	assert.Equal(t, models.PaymentStatusRefundRequested, f.payment(t, resp.PaymentID).Status)
	for _, o := range f.ordersFor(t, resp.PaymentID) {
		assert.Equal(t, models.OrderStatusPaid, o.Status)
	}
	assert.Equal(t, 2, f.stockLevel(t, 100))

	_, err = f.refunds.Approve(context.Background(), r.ID)
	require.NoError(t, err, "a rolled back approval can be retried")
	assert.Equal(t, 5, f.stockLevel(t, 100))
}

func TestRefundApprove_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	resp := f.purchase(t, "pi_r5", 100, 3)
	r := requestRefund(t, f, resp.PaymentID)
	ctx := context.Background()

	_, err := f.refunds.Approve(ctx, r.ID)
	require.NoError(t, err)

	_, err = f.refunds.Approve(ctx, r.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 5, f.stockLevel(t, 100))

	_, err = f.refunds.SellerAccept(ctx, sellerID, r.ID)
	require.NoError(t, err)

	_, err = f.refunds.Approve(ctx, r.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.refunds.Reject(ctx, r.ID, "too late")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 5, f.stockLevel(t, 100))

	_, err = f.refunds.Approve(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefundApprove_CancelledOrderKeepsStatusButRestoresStock(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	resp := f.purchase(t, "pi_r6", 100, 2)
	ctx := context.Background()

	_, err := f.orders.UpdateStatus(ctx, sellerID, resp.OrderIDs[0], models.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 3, f.stockLevel(t, 100), "cancelling does not restore stock")

	r := requestRefund(t, f, resp.PaymentID)
	_, err = f.refunds.Approve(ctx, r.ID)
	require.NoError(t, err)

	orders := f.ordersFor(t, resp.PaymentID)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusCancelled, orders[0].Status)
	assert.Equal(t, 5, f.stockLevel(t, 100))
}

func TestRefundReject_LeavesOrdersAndStock(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	resp := f.purchase(t, "pi_r7", 100, 3)
	r := requestRefund(t, f, resp.PaymentID)

	rejected, err := f.refunds.Reject(context.Background(), r.ID, "Item shipped as described")
	require.NoError(t, err)

	assert.Equal(t, models.RefundStatusRejected, rejected.Status)
	require.NotNil(t, f.refund(t, r.ID).AdminNotes)
	assert.Equal(t, "Item shipped as described", *f.refund(t, r.ID).AdminNotes)
	assert.Equal(t, models.PaymentStatusSucceeded, f.payment(t, resp.PaymentID).Status)
	for _, o := range f.ordersFor(t, resp.PaymentID) {
		assert.Equal(t, models.OrderStatusPaid, o.Status)
	}
	assert.Equal(t, 2, f.stockLevel(t, 100))
	assert.Contains(t, f.notificationTypes(t, buyerID), models.NotificationRefundRejected)

	again := requestRefund(t, f, resp.PaymentID)
	assert.NotEqual(t, r.ID, again.ID, "a rejected refund can be requested again")
}

func TestRefundSellerAccept(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	resp := f.purchase(t, "pi_r8", 100, 1)
	r := requestRefund(t, f, resp.PaymentID)
	ctx := context.Background()

	_, err := f.refunds.SellerAccept(ctx, sellerID, r.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "still pending")

	_, err = f.refunds.Approve(ctx, r.ID)
	require.NoError(t, err)

	_, err = f.refunds.SellerAccept(ctx, 99, r.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	completed, err := f.refunds.SellerAccept(ctx, sellerID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusCompleted, completed.Status)
	assert.NotNil(t, f.refund(t, r.ID).SellerAcceptedAt)
	assert.Equal(t, 5, f.stockLevel(t, 100), "stock is restored only once")
	assert.Contains(t, f.notificationTypes(t, buyerID), models.NotificationRefundCompleted)
}

func TestRefundListings(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	first := f.purchase(t, "pi_l1", 100, 1)
	second := f.purchase(t, "pi_l2", 100, 1)
	r1 := requestRefund(t, f, first.PaymentID)
	requestRefund(t, f, second.PaymentID)
	ctx := context.Background()

	_, err := f.refunds.Approve(ctx, r1.ID)
	require.NoError(t, err)

	pending, err := f.refunds.List(ctx, models.RefundStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := f.refunds.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.refunds.List(ctx, "bogus")
	assert.ErrorIs(t, err, ErrValidation)

	mine, err := f.refunds.ListForBuyer(ctx, buyerID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
