package broker

import (
	"context"
	"testing"

	"fulfillment-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGatewayMessage(t *testing.T) {
	var got *models.GatewayEvent
	handler := DecodeGatewayMessage(func(ctx context.Context, event *models.GatewayEvent) error {
		got = event
		return nil
	})

	msg := kafka.Message{Value: []byte(`{"event_id":"evt_1","type":"payment_intent.succeeded","payment_intent_id":"pi_1","amount":500}`)}
	require.NoError(t, handler(context.Background(), msg))
	require.NotNil(t, got)
	assert.Equal(t, "evt_1", got.EventID)
	assert.Equal(t, models.GatewayEventPaymentSucceeded, got.Type)
	assert.Equal(t, "pi_1", got.PaymentIntentID)
	assert.Equal(t, int64(500), got.Amount)
}

func TestDecodeGatewayMessageRejectsIncompleteEvents(t *testing.T) {
	called := false
	handler := DecodeGatewayMessage(func(ctx context.Context, event *models.GatewayEvent) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, handler(context.Background(), kafka.Message{Value: []byte(`not json`)}), ErrMalformedMessage)
	assert.ErrorIs(t, handler(context.Background(), kafka.Message{Value: []byte(`{"type":"charge.refunded"}`)}), ErrMalformedMessage)
	assert.False(t, called)
}

func TestPaymentKey(t *testing.T) {
	id := int64(42)
	assert.Equal(t, "payment-42", paymentKey(&id, 7))
	assert.Equal(t, "buyer-7", paymentKey(nil, 7))
}
