package service

import (
	"context"
	"testing"

	"fulfillment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleGatewayEvent_ConfirmsPaymentOnce(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	resp := f.purchase(t, "pi_gw1", 100, 1)
	cache := &mapCache{}
	ps := NewPaymentService(f.store, cache)
	ctx := context.Background()

	event := &models.GatewayEvent{
		EventID:         "evt_1",
		Type:            models.GatewayEventPaymentSucceeded,
		PaymentIntentID: "pi_gw1",
		Amount:          1500,
	}

	applied, err := ps.HandleGatewayEvent(ctx, event)
	require.NoError(t, err)
	assert.True(t, applied)
	confirmedAt := f.payment(t, resp.PaymentID).GatewayConfirmedAt
	require.NotNil(t, confirmedAt)

	applied, err = ps.HandleGatewayEvent(ctx, event)
	require.NoError(t, err)
	assert.False(t, applied, "cached key short-circuits")

	applied, err = NewPaymentService(f.store, nil).HandleGatewayEvent(ctx, event)
	require.NoError(t, err)
	assert.False(t, applied, "processed_events catches the duplicate without a cache")
	assert.Equal(t, *confirmedAt, *f.payment(t, resp.PaymentID).GatewayConfirmedAt)
}

func TestHandleGatewayEvent_UnknownPaymentIsRetried(t *testing.T) {
	f := newFixture(t)
	ps := NewPaymentService(f.store, nil)
	ctx := context.Background()

	_, err := ps.HandleGatewayEvent(ctx, &models.GatewayEvent{
		EventID:         "evt_early",
		Type:            models.GatewayEventPaymentSucceeded,
		PaymentIntentID: "pi_not_yet",
	})
	require.ErrorIs(t, err, ErrNotFound)

	processed, err := f.store.IsEventProcessed(ctx, "evt_early")
	require.NoError(t, err)
	assert.False(t, processed, "a failed event must stay retryable")
}

func TestHandleGatewayEvent_ChargeRefunded(t *testing.T) {
	f := newFixture(t)
	f.stock(t, 100, 5)
	resp := f.purchase(t, "pi_gw2", 100, 1)
	r := requestRefund(t, f, resp.PaymentID)
	_, err := f.refunds.Approve(context.Background(), r.ID)
	require.NoError(t, err)

	ps := NewPaymentService(f.store, nil)
	applied, err := ps.HandleGatewayEvent(context.Background(), &models.GatewayEvent{
		EventID:         "evt_refund",
		Type:            models.GatewayEventChargeRefunded,
		PaymentIntentID: "pi_gw2",
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NotNil(t, f.payment(t, resp.PaymentID).GatewayRefundedAt)
}

func TestHandleGatewayEvent_IgnoresUnknownTypes(t *testing.T) {
	f := newFixture(t)
	ps := NewPaymentService(f.store, nil)
	ctx := context.Background()

	applied, err := ps.HandleGatewayEvent(ctx, &models.GatewayEvent{
		EventID:         "evt_other",
		Type:            "customer.created",
		PaymentIntentID: "pi_x",
	})
	require.NoError(t, err)
	assert.True(t, applied)

	processed, err := f.store.IsEventProcessed(ctx, "evt_other")
	require.NoError(t, err)
	assert.True(t, processed)

	_, err = ps.HandleGatewayEvent(ctx, &models.GatewayEvent{Type: "customer.created"})
	assert.ErrorIs(t, err, ErrValidation)
}
