package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Total number of committed checkouts",
	}, []string{"flow"})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of order rows created",
	})

	OrdersReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_received_total",
		Help: "Total number of order rows confirmed received",
	})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of the checkout transaction",
		Buckets: prometheus.DefBuckets,
	})

	InventoryReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_failed_total",
		Help: "Total number of failed inventory reservations",
	}, []string{"reason"})

	InventoryUnitsRestoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_units_restored_total",
		Help: "Total number of stock units restored by refunds",
	})

	RefundTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_transitions_total",
		Help: "Total number of refund request transitions",
	}, []string{"status"})

	RefundFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_failed_total",
		Help: "Total number of refund operations that rolled back",
	}, []string{"operation"})

	NotificationsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total number of notifications that could not be delivered",
	})

	GatewayEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_total",
		Help: "Total number of payment gateway events handled",
	}, []string{"type", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
