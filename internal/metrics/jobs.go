// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaops_job_transitions_total",
		Help: "Accepted job state transitions",
	}, []string{"from", "to"})

	JobInvalidTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaops_registry_invalid_transition_total",
		Help: "Rejected job state transitions (programming errors)",
	}, []string{"from", "to"})

	JobsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mediaops_jobs",
		Help: "Number of registered jobs by state",
	}, []string{"state"})

	JobsPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaops_jobs_pruned_total",
		Help: "Terminal jobs removed after their retention window",
	})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaops_bus_dropped_total",
		Help: "Total number of in-memory bus message drops by topic and reason",
	}, []string{"topic", "reason"})
)

// RecordJobTransition moves one job between state gauges.
func RecordJobTransition(from, to string) {
	JobTransitionsTotal.WithLabelValues(from, to).Inc()
	if from != "" {
		JobsByState.WithLabelValues(from).Dec()
	}
	JobsByState.WithLabelValues(to).Inc()
}

// RecordJobPruned removes a pruned job from its state gauge.
func RecordJobPruned(state string) {
	JobsPrunedTotal.Inc()
	JobsByState.WithLabelValues(state).Dec()
}

// IncInvalidTransition counts a rejected state change.
func IncInvalidTransition(from, to string) {
	JobInvalidTransitionsTotal.WithLabelValues(from, to).Inc()
}

// IncBusDropReason records a dropped bus message with a concrete reason.
func IncBusDropReason(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(topic, reason).Inc()
}
