package worker

import (
	"context"
	"errors"

	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// GatewayProcessor applies one payment gateway event
type GatewayProcessor interface {
	HandleGatewayEvent(ctx context.Context, event *models.GatewayEvent) (bool, error)
}

// GatewayWorker consumes payment gateway events from Kafka
type GatewayWorker struct {
	consumer  *broker.Consumer
	processor GatewayProcessor
	logger    *zap.Logger
}

// NewGatewayWorker creates a new gateway worker
func NewGatewayWorker(consumer *broker.Consumer, processor GatewayProcessor) *GatewayWorker {
	return &GatewayWorker{
		consumer:  consumer,
		processor: processor,
		logger:    util.GetLogger(),
	}
}

// Start blocks consuming events until ctx is cancelled
func (w *GatewayWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting gateway worker")
	return w.consumer.StartConsuming(ctx, broker.DecodeGatewayMessage(w.Handle))
}

// Handle applies one event. Malformed events are dropped so they do not
// block the partition; everything else is returned for redelivery.
func (w *GatewayWorker) Handle(ctx context.Context, event *models.GatewayEvent) error {
	applied, err := w.processor.HandleGatewayEvent(ctx, event)
	if errors.Is(err, service.ErrValidation) {
		w.logger.Warn("Dropping invalid gateway event",
			zap.String("gateway_event_id", event.EventID),
			zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	w.logger.Debug("Gateway event handled",
		zap.String("gateway_event_id", event.EventID),
		zap.Bool("applied", applied))
	return nil
}

// Stop stops the worker
func (w *GatewayWorker) Stop() error {
	w.logger.Info("Stopping gateway worker")
	return w.consumer.Close()
}
