package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

const gatewayKeyTTL = 24 * time.Hour

// PaymentService reconciles local payments with payment gateway events
type PaymentService struct {
	store  store.Store
	cache  IdempotencyCache
	logger *zap.Logger
	now    func() time.Time
}

// NewPaymentService creates a new payment service. cache may be nil.
func NewPaymentService(st store.Store, cache IdempotencyCache) *PaymentService {
	return &PaymentService{
		store:  st,
		cache:  cache,
		logger: util.GetLogger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// HandleGatewayEvent applies a gateway event at most once. It returns false
// when the event was already handled. A payment the gateway knows about but
// we do not yields ErrNotFound so the delivery is retried.
func (ps *PaymentService) HandleGatewayEvent(ctx context.Context, event *models.GatewayEvent) (applied bool, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleGatewayEvent")
	defer func() { util.EndSpan(span, err) }()

	if event.EventID == "" || event.Type == "" || event.PaymentIntentID == "" {
		return false, validationErr("gateway event requires event_id, type and payment_intent_id")
	}

	logger := util.LoggerFor(ctx, ps.logger).With(
		zap.String("gateway_event_id", event.EventID),
		zap.String("type", event.Type),
		zap.String("payment_intent_id", event.PaymentIntentID))

	key := "gateway:" + event.EventID
	if ps.cache != nil {
		seen, err := ps.cache.CheckIdempotencyKey(ctx, key)
		if err != nil {
			logger.Warn("Idempotency cache unavailable, falling back to database", zap.Error(err))
		} else if seen {
			util.GatewayEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
			return false, nil
		}
	}

	err = ps.store.WithTx(ctx, func(q store.Querier) error {
		inserted, err := q.MarkEventProcessed(ctx, event.EventID, event.Type)
		if err != nil {
			return fmt.Errorf("failed to record gateway event: %w", err)
		}
		if !inserted {
			return nil
		}
		applied = true

		switch event.Type {
		case models.GatewayEventPaymentSucceeded:
			return ps.confirm(ctx, q, logger, event)
		case models.GatewayEventChargeRefunded:
			return ps.markRefunded(ctx, q, logger, event)
		default:
			logger.Info("Ignoring unhandled gateway event type")
			return nil
		}
	})
	if err != nil {
		util.GatewayEventsTotal.WithLabelValues(event.Type, "error").Inc()
		return false, err
	}

	if !applied {
		util.GatewayEventsTotal.WithLabelValues(event.Type, "duplicate").Inc()
	} else {
		util.GatewayEventsTotal.WithLabelValues(event.Type, "applied").Inc()
	}

	if ps.cache != nil {
		if err := ps.cache.SetIdempotencyKey(ctx, key, event.Type, gatewayKeyTTL); err != nil {
			logger.Warn("Failed to cache gateway event key", zap.Error(err))
		}
	}
	return applied, nil
}

func (ps *PaymentService) confirm(ctx context.Context, q store.Querier, logger *zap.Logger, event *models.GatewayEvent) error {
	payment, err := q.GetPaymentByIntentID(ctx, event.PaymentIntentID)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundErr("payment for intent %s", event.PaymentIntentID)
	}
	if err != nil {
		return fmt.Errorf("failed to load payment: %w", err)
	}
	if event.Amount > 0 && event.Amount != payment.Amount {
		logger.Warn("Gateway amount differs from recorded payment",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("recorded", payment.Amount),
			zap.Int64("gateway", event.Amount))
	}

	if _, err := q.MarkPaymentGatewayConfirmed(ctx, event.PaymentIntentID, ps.now()); err != nil {
		return fmt.Errorf("failed to confirm payment %d: %w", payment.ID, err)
	}
	logger.Info("Payment confirmed by gateway", zap.Int64("payment_id", payment.ID))
	return nil
}

func (ps *PaymentService) markRefunded(ctx context.Context, q store.Querier, logger *zap.Logger, event *models.GatewayEvent) error {
	payment, err := q.GetPaymentByIntentID(ctx, event.PaymentIntentID)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundErr("payment for intent %s", event.PaymentIntentID)
	}
	if err != nil {
		return fmt.Errorf("failed to load payment: %w", err)
	}
	if payment.Status != models.PaymentStatusRefunded {
		logger.Warn("Gateway refunded a payment that is not refunded locally",
			zap.Int64("payment_id", payment.ID),
			zap.String("status", payment.Status))
	}

	if _, err := q.MarkPaymentGatewayRefunded(ctx, event.PaymentIntentID, ps.now()); err != nil {
		return fmt.Errorf("failed to mark payment %d refunded at gateway: %w", payment.ID, err)
	}
	logger.Info("Gateway refund recorded", zap.Int64("payment_id", payment.ID))
	return nil
}
