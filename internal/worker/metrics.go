package worker

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeDelivered      = "delivered"
	outcomeInvalidAddress = "invalid_address"
	outcomeOrphaned       = "orphaned"
	outcomeRetried        = "retried"
)

var (
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_deliveries_total",
			Help: "Delivery task outcomes processed by the worker.",
		},
		[]string{"outcome"},
	)

	sendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsletter_send_duration_seconds",
			Help:    "Latency of successful email sends.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(deliveriesTotal, sendDuration)
}
