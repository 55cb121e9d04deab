package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verification_gateway",
			Name:      "provider_requests_total",
			Help:      "Total provider calls by operation and outcome.",
		},
		[]string{"provider_name", "op", "outcome"}, // outcome: "success", "error", "circuit_open"
	)

	providerRetriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verification_gateway",
			Name:      "provider_retries_total",
			Help:      "Total retry attempts against providers.",
		},
		[]string{"provider_name", "op"},
	)

	circuitTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verification_gateway",
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions.",
		},
		[]string{"provider_name", "from", "to"},
	)
)
