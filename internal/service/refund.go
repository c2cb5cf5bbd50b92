package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/store"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RefundService drives the refund workflow and its compensating actions
type RefundService struct {
	store          store.Store
	ledger         *InventoryLedger
	notifier       *NotificationService
	eventPublisher EventPublisher
	logger         *zap.Logger
	now            func() time.Time
}

// NewRefundService creates a new refund service
func NewRefundService(
	st store.Store,
	ledger *InventoryLedger,
	notifier *NotificationService,
	eventPublisher EventPublisher,
) *RefundService {
	return &RefundService{
		store:          st,
		ledger:         ledger,
		notifier:       notifier,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// RefundRequestInput is a buyer's refund request
type RefundRequestInput struct {
	PaymentID   int64  `json:"paymentId"`
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

// Request opens a refund for a payment owned by the buyer and puts the
// payment on hold.
func (rs *RefundService) Request(ctx context.Context, buyerID int64, in *RefundRequestInput) (refund *models.RefundRequest, err error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Request")
	defer func() { util.EndSpan(span, err) }()

	reason := strings.TrimSpace(in.Reason)
	if in.PaymentID <= 0 {
		return nil, validationErr("paymentId is required")
	}
	if reason == "" {
		return nil, validationErr("reason is required")
	}

	var sellers []int64
	err = rs.store.WithTx(ctx, func(q store.Querier) error {
		payment, err := q.GetPaymentByID(ctx, in.PaymentID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && payment.BuyerID != buyerID) {
			return notFoundErr("payment %d", in.PaymentID)
		}
		if err != nil {
			return fmt.Errorf("failed to load payment %d: %w", in.PaymentID, err)
		}

		if !models.IsRefundable(payment.Status) {
			return invalidStateErr("payment %d is %s and cannot be refunded", payment.ID, payment.Status)
		}
		ok, err := q.TransitionPaymentStatus(ctx, payment.ID, models.RefundablePaymentStatuses(), models.PaymentStatusRefundRequested)
		if err != nil {
			return fmt.Errorf("failed to hold payment %d: %w", payment.ID, err)
		}
		if !ok {
			return invalidStateErr("payment %d changed status concurrently", payment.ID)
		}

		r := &models.RefundRequest{
			PaymentID:   payment.ID,
			BuyerID:     buyerID,
			Reason:      reason,
			Description: strings.TrimSpace(in.Description),
			Amount:      payment.Amount,
			Status:      models.RefundStatusPending,
		}
		if err := q.CreateRefund(ctx, r); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return invalidStateErr("payment %d already has an active refund", payment.ID)
			}
			return fmt.Errorf("failed to create refund request: %w", err)
		}

		orders, err := q.GetOrdersByPaymentID(ctx, payment.ID)
		if err != nil {
			return fmt.Errorf("failed to load orders for payment %d: %w", payment.ID, err)
		}
		sellers = distinctSellers(orders)
		refund = r
		return nil
	})
	if err != nil {
		util.RefundFailedTotal.WithLabelValues("request").Inc()
		return nil, err
	}

	util.RefundTransitionsTotal.WithLabelValues(models.RefundStatusPending).Inc()
	rs.logger.Info("Refund requested",
		zap.Int64("refund_id", refund.ID),
		zap.Int64("payment_id", refund.PaymentID))

	var hooks afterCommit
	for _, sellerID := range sellers {
		sellerID := sellerID
		hooks.add(func(ctx context.Context) {
			rs.notifier.Notify(ctx, newNotification(sellerID, models.NotificationRefundRequested,
				"Refund requested",
				fmt.Sprintf("The buyer requested a refund for payment #%d: %s", refund.PaymentID, refund.Reason),
				refund.ID, models.ReferenceRefund))
		})
	}
	rs.queueRefundEvent(&hooks, models.EventTypeRefundRequested, refund)
	hooks.run(ctx)

	return refund, nil
}

// Approve accepts a pending refund. In one transaction it marks the refund
// approved, the payment refunded, every order under the payment refunded,
// and puts every ordered quantity back in stock. Any failure undoes all of it.
func (rs *RefundService) Approve(ctx context.Context, refundID int64) (refund *models.RefundRequest, err error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Approve")
	defer func() { util.EndSpan(span, err) }()

	var restoredUnits int
	err = rs.store.WithTx(ctx, func(q store.Querier) error {
		r, err := rs.loadForTransition(ctx, q, refundID, models.RefundStatusApproved)
		if err != nil {
			return err
		}

		now := rs.now()
		ok, err := q.TransitionRefund(ctx, r.ID, models.RefundStatusPending, store.RefundUpdate{
			Status:      models.RefundStatusApproved,
			ProcessedAt: &now,
		})
		if err != nil {
			return fmt.Errorf("failed to approve refund %d: %w", r.ID, err)
		}
		if !ok {
			return invalidStateErr("refund %d is no longer pending", r.ID)
		}

		payment, err := q.GetPaymentByID(ctx, r.PaymentID)
		if err != nil {
			return storeErr(err, "payment", r.PaymentID)
		}
		if err := models.ValidatePaymentTransition(payment.Status, models.PaymentStatusRefunded); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		ok, err = q.TransitionPaymentStatus(ctx, payment.ID,
			[]string{payment.Status}, models.PaymentStatusRefunded)
		if err != nil {
			return fmt.Errorf("failed to refund payment %d: %w", r.PaymentID, err)
		}
		if !ok {
			return invalidStateErr("payment %d is not awaiting a refund", r.PaymentID)
		}

		orders, err := q.GetOrdersByPaymentID(ctx, r.PaymentID)
		if err != nil {
			return fmt.Errorf("failed to load orders for payment %d: %w", r.PaymentID, err)
		}

		units, err := rs.compensateOrders(ctx, q, orders)
		if err != nil {
			return err
		}

		r.Status = models.RefundStatusApproved
		r.ProcessedAt = &now
		refund = r
		restoredUnits = units
		return nil
	})
	if err != nil {
		util.RefundFailedTotal.WithLabelValues("approve").Inc()
		util.LoggerFor(ctx, rs.logger).Warn("Refund approval rolled back",
			zap.Int64("refund_id", refundID),
			zap.Error(err))
		return nil, err
	}

	util.RefundTransitionsTotal.WithLabelValues(models.RefundStatusApproved).Inc()
	util.InventoryUnitsRestoredTotal.Add(float64(restoredUnits))
	rs.logger.Info("Refund approved and compensated",
		zap.Int64("refund_id", refund.ID),
		zap.Int64("payment_id", refund.PaymentID),
		zap.Int("units_restored", restoredUnits))

	var hooks afterCommit
	hooks.add(func(ctx context.Context) {
		rs.notifier.Notify(ctx, newNotification(refund.BuyerID, models.NotificationRefundApproved,
			"Refund approved",
			fmt.Sprintf("Your refund for payment #%d was approved.", refund.PaymentID),
			refund.ID, models.ReferenceRefund))
	})
	rs.queueRefundEvent(&hooks, models.EventTypeRefundApproved, refund)
	hooks.run(ctx)

	return refund, nil
}

// compensateOrders forces every order under a refunded payment to refunded
// and restores its quantity. Cancelled orders keep their status but their
// stock, still taken at checkout, is restored too.
func (rs *RefundService) compensateOrders(ctx context.Context, q store.Querier, orders []models.Order) (int, error) {
	units := 0
	for _, o := range orders {
		switch o.Status {
		case models.OrderStatusRefunded:
			return 0, invalidStateErr("order %d is already refunded", o.ID)
		case models.OrderStatusCancelled:
		default:
			if err := models.ValidateOrderTransition(o.Status, models.OrderStatusRefunded); err != nil {
				return 0, fmt.Errorf("%w: %w", ErrInvalidState, err)
			}
			ok, err := q.TransitionOrderStatus(ctx, o.ID, []string{o.Status}, models.OrderStatusRefunded)
			if err != nil {
				return 0, fmt.Errorf("failed to refund order %d: %w", o.ID, err)
			}
			if !ok {
				return 0, invalidStateErr("order %d changed status concurrently", o.ID)
			}
		}

		if err := rs.ledger.Restore(ctx, q, o.ProductID, o.Quantity); err != nil {
			return 0, err
		}
		units += o.Quantity
	}
	return units, nil
}

// Reject declines a pending refund and releases the payment hold. Orders
// and stock are not touched.
func (rs *RefundService) Reject(ctx context.Context, refundID int64, reason string) (refund *models.RefundRequest, err error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Reject")
	defer func() { util.EndSpan(span, err) }()

	err = rs.store.WithTx(ctx, func(q store.Querier) error {
		r, err := rs.loadForTransition(ctx, q, refundID, models.RefundStatusRejected)
		if err != nil {
			return err
		}

		now := rs.now()
		upd := store.RefundUpdate{Status: models.RefundStatusRejected, ProcessedAt: &now}
		if notes := strings.TrimSpace(reason); notes != "" {
			upd.AdminNotes = &notes
			r.AdminNotes = &notes
		}
		ok, err := q.TransitionRefund(ctx, r.ID, models.RefundStatusPending, upd)
		if err != nil {
			return fmt.Errorf("failed to reject refund %d: %w", r.ID, err)
		}
		if !ok {
			return invalidStateErr("refund %d is no longer pending", r.ID)
		}

		ok, err = q.TransitionPaymentStatus(ctx, r.PaymentID,
			[]string{models.PaymentStatusRefundRequested}, models.PaymentStatusSucceeded)
		if err != nil {
			return fmt.Errorf("failed to release payment %d: %w", r.PaymentID, err)
		}
		if !ok {
			return invalidStateErr("payment %d is not awaiting a refund", r.PaymentID)
		}

		r.Status = models.RefundStatusRejected
		r.ProcessedAt = &now
		refund = r
		return nil
	})
	if err != nil {
		util.RefundFailedTotal.WithLabelValues("reject").Inc()
		return nil, err
	}

	util.RefundTransitionsTotal.WithLabelValues(models.RefundStatusRejected).Inc()
	rs.logger.Info("Refund rejected", zap.Int64("refund_id", refund.ID))

	var hooks afterCommit
	hooks.add(func(ctx context.Context) {
		msg := fmt.Sprintf("Your refund for payment #%d was rejected.", refund.PaymentID)
		if refund.AdminNotes != nil {
			msg += " Reason: " + *refund.AdminNotes
		}
		rs.notifier.Notify(ctx, newNotification(refund.BuyerID, models.NotificationRefundRejected,
			"Refund rejected", msg, refund.ID, models.ReferenceRefund))
	})
	rs.queueRefundEvent(&hooks, models.EventTypeRefundRejected, refund)
	hooks.run(ctx)

	return refund, nil
}

// SellerAccept closes an approved refund on behalf of a seller who has at
// least one order under its payment. Stock was already restored at approval.
func (rs *RefundService) SellerAccept(ctx context.Context, sellerID, refundID int64) (refund *models.RefundRequest, err error) {
	ctx, span := util.StartSpan(ctx, "RefundService.SellerAccept")
	defer func() { util.EndSpan(span, err) }()

	err = rs.store.WithTx(ctx, func(q store.Querier) error {
		r, err := q.GetRefundByID(ctx, refundID)
		if err != nil {
			return storeErr(err, "refund", refundID)
		}

		orders, err := q.GetOrdersByPaymentID(ctx, r.PaymentID)
		if err != nil {
			return fmt.Errorf("failed to load orders for payment %d: %w", r.PaymentID, err)
		}
		if !containsSeller(orders, sellerID) {
			return fmt.Errorf("%w: seller %d has no orders under refund %d", ErrForbidden, sellerID, refundID)
		}

		if err := models.ValidateRefundTransition(r.Status, models.RefundStatusCompleted); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}

		now := rs.now()
		ok, err := q.TransitionRefund(ctx, r.ID, models.RefundStatusApproved, store.RefundUpdate{
			Status:           models.RefundStatusCompleted,
			SellerAcceptedAt: &now,
		})
		if err != nil {
			return fmt.Errorf("failed to complete refund %d: %w", r.ID, err)
		}
		if !ok {
			return invalidStateErr("refund %d is no longer approved", r.ID)
		}

		r.Status = models.RefundStatusCompleted
		r.SellerAcceptedAt = &now
		refund = r
		return nil
	})
	if err != nil {
		util.RefundFailedTotal.WithLabelValues("seller_accept").Inc()
		return nil, err
	}

	util.RefundTransitionsTotal.WithLabelValues(models.RefundStatusCompleted).Inc()
	rs.logger.Info("Refund completed by seller",
		zap.Int64("refund_id", refund.ID),
		zap.Int64("seller_id", sellerID))

	var hooks afterCommit
	hooks.add(func(ctx context.Context) {
		rs.notifier.Notify(ctx, newNotification(refund.BuyerID, models.NotificationRefundCompleted,
			"Refund completed",
			fmt.Sprintf("The seller accepted the refund for payment #%d.", refund.PaymentID),
			refund.ID, models.ReferenceRefund))
	})
	rs.queueRefundEvent(&hooks, models.EventTypeRefundCompleted, refund)
	hooks.run(ctx)

	return refund, nil
}

// List returns refunds, optionally filtered by status
func (rs *RefundService) List(ctx context.Context, status string) ([]models.RefundRequest, error) {
	if status != "" {
		switch status {
		case models.RefundStatusPending, models.RefundStatusApproved,
			models.RefundStatusRejected, models.RefundStatusCompleted:
		default:
			return nil, validationErr("unknown refund status %q", status)
		}
	}
	return rs.store.ListRefunds(ctx, status)
}

// ListForBuyer returns the buyer's refunds
func (rs *RefundService) ListForBuyer(ctx context.Context, buyerID int64) ([]models.RefundRequest, error) {
	return rs.store.ListRefundsByBuyerID(ctx, buyerID)
}

func (rs *RefundService) loadForTransition(ctx context.Context, q store.Querier, refundID int64, to string) (*models.RefundRequest, error) {
	r, err := q.GetRefundByID(ctx, refundID)
	if err != nil {
		return nil, storeErr(err, "refund", refundID)
	}
	if err := models.ValidateRefundTransition(r.Status, to); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return r, nil
}

func (rs *RefundService) queueRefundEvent(hooks *afterCommit, eventType string, refund *models.RefundRequest) {
	hooks.add(func(ctx context.Context) {
		event := &models.RefundEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: eventType,
				Timestamp: time.Now(),
			},
			RefundID:  refund.ID,
			PaymentID: refund.PaymentID,
			BuyerID:   refund.BuyerID,
			Status:    refund.Status,
			Amount:    refund.Amount,
		}
		if err := rs.eventPublisher.PublishRefund(ctx, event); err != nil {
			rs.logger.Error("Failed to publish refund event",
				zap.String("event_type", eventType),
				zap.Int64("refund_id", refund.ID),
				zap.Error(err))
		}
	})
}

func distinctSellers(orders []models.Order) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, o := range orders {
		if !seen[o.SellerID] {
			seen[o.SellerID] = true
			out = append(out, o.SellerID)
		}
	}
	return out
}

func containsSeller(orders []models.Order, sellerID int64) bool {
	for _, o := range orders {
		if o.SellerID == sellerID {
			return true
		}
	}
	return false
}
