package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationsCreatedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verification_gateway",
			Name:      "verifications_created_total",
			Help:      "Total verification requests created.",
		},
		[]string{"provider_name", "service"},
	)

	verificationPollsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verification_gateway",
			Name:      "polls_total",
			Help:      "Total code-check polls issued.",
		},
		[]string{"provider_name"},
	)

	codesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verification_gateway",
			Name:      "codes_received_total",
			Help:      "Total one-time codes received.",
		},
		[]string{"provider_name"},
	)

	verificationTerminalCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verification_gateway",
			Name:      "verifications_terminal_total",
			Help:      "Verifications reaching a terminal state.",
		},
		[]string{"status"}, // completed, timeout, cancelled
	)

	bulkBatchesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verification_gateway",
			Name:      "bulk_batches_total",
			Help:      "Bulk batches finalized, by derived status.",
		},
		[]string{"status"}, // completed, partial, failed
	)

	bulkRefundsHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "verification_gateway",
			Name:      "bulk_refund_amount",
			Help:      "Refunded amounts on bulk batch reconciliation.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		},
	)
)
