// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaops_proc_terminate_total",
		Help: "Signals sent to child process groups",
	}, []string{"signal", "result"})

	ProcWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaops_proc_wait_total",
		Help: "Child process reaping outcomes after termination",
	}, []string{"outcome"})

	ToolStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaops_tool_starts_total",
		Help: "External tool invocations",
	}, []string{"tool"})

	ToolExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaops_tool_exits_total",
		Help: "External tool exits by reason",
	}, []string{"tool", "reason"})

	ScratchAreasActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediaops_scratch_areas_active",
		Help: "Scratch areas currently held by running operations",
	})

	ScratchCleanupFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaops_scratch_cleanup_failures_total",
		Help: "Scratch area removals that failed",
	})

	MirrorUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaops_mirror_uploads_total",
		Help: "Object store mirror uploads by result",
	}, []string{"result"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mediaops_circuit_breaker_state",
		Help: "Circuit breaker state (1 for the current state, 0 otherwise)",
	}, []string{"breaker", "state"})

	CircuitBreakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaops_circuit_breaker_trips_total",
		Help: "Circuit breaker transitions into the open state",
	}, []string{"breaker", "reason"})
)

var breakerStates = []string{"closed", "open", "half-open"}

func IncProcTerminate(signal, result string) {
	ProcTerminateTotal.WithLabelValues(signal, result).Inc()
}

func IncProcWait(outcome string) {
	ProcWaitTotal.WithLabelValues(outcome).Inc()
}

func IncToolStart(tool string) {
	ToolStartsTotal.WithLabelValues(tool).Inc()
}

func IncToolExit(tool, reason string) {
	ToolExitsTotal.WithLabelValues(tool, reason).Inc()
}

func IncMirrorUpload(result string) {
	MirrorUploadsTotal.WithLabelValues(result).Inc()
}

// SetCircuitBreakerState marks state as current for breaker.
func SetCircuitBreakerState(breaker, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		CircuitBreakerState.WithLabelValues(breaker, s).Set(v)
	}
}

func RecordCircuitBreakerTrip(breaker, reason string) {
	CircuitBreakerTripsTotal.WithLabelValues(breaker, reason).Inc()
}
