package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_actions_total",
		Help: "Total number of cart actions dispatched",
	}, []string{"action"})

	OrdersSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_submitted_total",
		Help: "Total number of orders submitted at checkout",
	})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of checkouts rejected before or during the store write",
	}, []string{"reason"})

	OrderSubmitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_submit_latency_seconds",
		Help:    "Latency of the checkout store write",
		Buckets: prometheus.DefBuckets,
	})

	OrderStatusAdvancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_advances_total",
		Help: "Total number of order status writes, by target status",
	}, []string{"status"})

	OrderStatusAdvanceFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_status_advance_failed_total",
		Help: "Total number of rejected order status writes",
	})

	TrackingSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracking_sessions_active",
		Help: "Number of order tracking sessions currently running",
	})

	TrackingSessionsEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_sessions_ended_total",
		Help: "Total number of tracking sessions that reached a terminal state",
	}, []string{"outcome"})

	FulfillmentEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_events_total",
		Help: "Total number of fulfillment events consumed",
	}, []string{"result"})

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
