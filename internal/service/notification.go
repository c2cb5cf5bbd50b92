package service

import (
	"context"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationService stores notifications and fans them out for push delivery.
// Delivery is best effort: failures are logged and never returned.
type NotificationService struct {
	store          store.Querier
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(st store.Querier, eventPublisher EventPublisher) *NotificationService {
	return &NotificationService{
		store:          st,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// Notify delivers one notification. Call it only after the owning
// transaction has committed.
func (ns *NotificationService) Notify(ctx context.Context, n models.Notification) {
	if err := ns.store.CreateNotification(ctx, &n); err != nil {
		util.NotificationsFailedTotal.Inc()
		util.LoggerFor(ctx, ns.logger).Error("Failed to store notification",
			zap.Int64("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err))
		return
	}

	event := &models.NotificationCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeNotificationCreated,
			Timestamp: time.Now(),
		},
		Notification: n,
	}
	if err := ns.eventPublisher.PublishNotification(ctx, event); err != nil {
		util.LoggerFor(ctx, ns.logger).Error("Failed to publish notification",
			zap.Int64("notification_id", n.ID),
			zap.Error(err))
	}
}

// List returns the user's notifications, newest first
func (ns *NotificationService) List(ctx context.Context, userID int64) ([]models.Notification, error) {
	return ns.store.ListNotifications(ctx, userID)
}

// MarkRead marks one of the user's notifications as read
func (ns *NotificationService) MarkRead(ctx context.Context, userID, notificationID int64) error {
	ok, err := ns.store.MarkNotificationRead(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundErr("notification %d", notificationID)
	}
	return nil
}

func refPtr(id int64, kind string) (*int64, *string) {
	return &id, &kind
}

func newNotification(userID int64, kind, title, message string, refID int64, refType string) models.Notification {
	id, typ := refPtr(refID, refType)
	return models.Notification{
		UserID:        userID,
		Type:          kind,
		Title:         title,
		Message:       message,
		ReferenceID:   id,
		ReferenceType: typ,
	}
}
