package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "change_engine",
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Committed lifecycle operations by operation and resulting status.",
	}, []string{"operation", "status"})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "change_engine",
		Subsystem: "lifecycle",
		Name:      "rejected_operations_total",
		Help:      "Operations refused by a guard, by operation and error code.",
	}, []string{"operation", "code"})

	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "change_engine",
		Subsystem: "dispatch",
		Name:      "executions_total",
		Help:      "Connector executions by request type and outcome.",
	}, []string{"type", "outcome"})

	dispatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "change_engine",
		Subsystem: "dispatch",
		Name:      "latency_seconds",
		Help:      "Connector call latency by request type.",
		Buckets: []float64{
			0.05, 0.1, 0.25, 0.5,
			1, 2, 5, 10,
			30, 60, 120,
		},
	}, []string{"type"})

	analyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "change_engine",
		Subsystem: "sqlimpact",
		Name:      "verdicts_total",
		Help:      "SQL impact verdicts by impact level and validity.",
	}, []string{"impact", "valid"})
)

func recordDispatch(requestType, outcome string, latency time.Duration) {
	dispatchTotal.WithLabelValues(requestType, outcome).Inc()
	dispatchLatency.WithLabelValues(requestType).Observe(latency.Seconds())
}

func recordVerdict(impact string, valid bool) {
	v := "false"
	if valid {
		v = "true"
	}
	analyzedTotal.WithLabelValues(impact, v).Inc()
}
