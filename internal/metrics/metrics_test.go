// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestObserveOperationDefaultsLabels(t *testing.T) {
	before := counterValue(t, OperationsTotal.WithLabelValues("unknown", "unknown"))
	ObserveOperation("", "", 0.1)
	after := counterValue(t, OperationsTotal.WithLabelValues("unknown", "unknown"))
	assert.Equal(t, before+1, after)
}

func TestRecordJobTransitionMovesGauge(t *testing.T) {
	RecordJobTransition("", "queued")
	RecordJobTransition("queued", "running")

	m := &dto.Metric{}
	require.NoError(t, JobsByState.WithLabelValues("running").Write(m))
	assert.GreaterOrEqual(t, m.GetGauge().GetValue(), 1.0)
}

func TestIncBusDropReasonUnknown(t *testing.T) {
	before := counterValue(t, BusDroppedTotal.WithLabelValues("unknown", "unknown"))
	IncBusDropReason("", "")
	assert.Equal(t, before+1, counterValue(t, BusDroppedTotal.WithLabelValues("unknown", "unknown")))
}
