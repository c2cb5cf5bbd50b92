package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a status change is not allowed
var ErrInvalidTransition = errors.New("invalid status transition")

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusReceived   = "received"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Payment statuses. PaymentStatusPaid is accepted on rows written by
// older clients and treated like succeeded.
const (
	PaymentStatusSucceeded       = "succeeded"
	PaymentStatusPaid            = "paid"
	PaymentStatusRefundRequested = "refund_requested"
	PaymentStatusRefunded        = "refunded"
)

// Refund statuses
const (
	RefundStatusPending   = "pending"
	RefundStatusApproved  = "approved"
	RefundStatusRejected  = "rejected"
	RefundStatusCompleted = "completed"
)

// refunded is reachable from every state except cancelled; a received
// order can still be refunded.
var orderTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusReceived, OrderStatusRefunded},
	OrderStatusReceived:   {OrderStatusRefunded},
}

var paymentTransitions = map[string][]string{
	PaymentStatusSucceeded:       {PaymentStatusRefundRequested},
	PaymentStatusPaid:            {PaymentStatusRefundRequested},
	PaymentStatusRefundRequested: {PaymentStatusRefunded, PaymentStatusSucceeded},
}

var refundTransitions = map[string][]string{
	RefundStatusPending:  {RefundStatusApproved, RefundStatusRejected},
	RefundStatusApproved: {RefundStatusCompleted},
}

func allowed(table map[string][]string, from, to string) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateOrderTransition reports whether an order row may move from one status to another
func ValidateOrderTransition(from, to string) error {
	if !allowed(orderTransitions, from, to) {
		return fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidatePaymentTransition reports whether a payment may move from one status to another
func ValidatePaymentTransition(from, to string) error {
	if !allowed(paymentTransitions, from, to) {
		return fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidateRefundTransition reports whether a refund request may move from one status to another
func ValidateRefundTransition(from, to string) error {
	if !allowed(refundTransitions, from, to) {
		return fmt.Errorf("%w: refund %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// OrderStatusesFrom lists the statuses that may move to the given status
func OrderStatusesFrom(to string) []string {
	var out []string
	for _, from := range []string{
		OrderStatusPending,
		OrderStatusPaid,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusReceived,
	} {
		if allowed(orderTransitions, from, to) {
			out = append(out, from)
		}
	}
	return out
}

// RefundablePaymentStatuses lists payment statuses a refund may be requested from
func RefundablePaymentStatuses() []string {
	return []string{PaymentStatusSucceeded, PaymentStatusPaid}
}

// IsRefundable reports whether a refund may be requested for a payment in this status
func IsRefundable(paymentStatus string) bool {
	return allowed(paymentTransitions, paymentStatus, PaymentStatusRefundRequested)
}

// IsValidOrderStatus reports whether s is a known order status
func IsValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusReceived, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}
