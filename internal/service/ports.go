package service

import (
	"context"
	"time"

	"fulfillment-service/internal/models"
)

// EventPublisher publishes committed domain events. broker.EventPublisher
// implements it on Kafka.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatus(ctx context.Context, event *models.OrderStatusEvent) error
	PublishRefund(ctx context.Context, event *models.RefundEvent) error
	PublishNotification(ctx context.Context, event *models.NotificationCreatedEvent) error
}

// Locker takes a short-lived distributed lock. A nil release func means the
// lock is held elsewhere.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// IdempotencyCache remembers keys that were already handled
type IdempotencyCache interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderPlaced(context.Context, *models.OrderPlacedEvent) error { return nil }
func (NopPublisher) PublishOrderStatus(context.Context, *models.OrderStatusEvent) error { return nil }
func (NopPublisher) PublishRefund(context.Context, *models.RefundEvent) error           { return nil }
func (NopPublisher) PublishNotification(context.Context, *models.NotificationCreatedEvent) error {
	return nil
}

// afterCommit collects side effects that must run only once the owning
// transaction has committed.
type afterCommit []func(ctx context.Context)

func (a *afterCommit) add(fn func(ctx context.Context)) {
	*a = append(*a, fn)
}

// run executes the hooks detached from the request's cancellation so a
// client that disconnects after commit still gets its notifications sent.
func (a afterCommit) run(ctx context.Context) {
	if len(a) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	for _, fn := range a {
		fn(ctx)
	}
}
