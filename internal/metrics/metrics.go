// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors exported by the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaops_operations_total",
		Help: "Total number of executed media operations by kind and outcome",
	}, []string{"kind", "outcome"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediaops_operation_duration_seconds",
		Help:    "Wall-clock duration of media operations",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"kind"})

	BatchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaops_batch_items_total",
		Help: "Total number of batch items by outcome",
	}, []string{"outcome"})

	BatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaops_batches_total",
		Help: "Total number of batches executed",
	})

	OperationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediaops_operations_in_flight",
		Help: "Number of media operations currently executing",
	})
)

// ObserveOperation records the outcome and duration of a single operation.
func ObserveOperation(kind, outcome string, seconds float64) {
	if kind == "" {
		kind = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	OperationsTotal.WithLabelValues(kind, outcome).Inc()
	OperationDuration.WithLabelValues(kind).Observe(seconds)
}

// IncBatchItem counts one finished batch item.
func IncBatchItem(outcome string) {
	BatchItemsTotal.WithLabelValues(outcome).Inc()
}
