// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	OperationKindKey   = "mediaops.operation.kind"
	OperationInputKey  = "mediaops.operation.input"
	OperationOutputKey = "mediaops.operation.output"
	OperationBytesKey  = "mediaops.operation.bytes"

	BatchSizeKey  = "mediaops.batch.size"
	BatchLimitKey = "mediaops.batch.limit"

	JobIDKey    = "mediaops.job.id"
	JobStateKey = "mediaops.job.state"

	ToolKey = "mediaops.tool"

	FailureKindKey = "mediaops.failure.kind"
	OutcomeKey     = "outcome"
)

// OperationAttributes describes one operation execution.
func OperationAttributes(kind string, inputs []string, output string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(OperationKindKey, kind)}
	if len(inputs) > 0 {
		attrs = append(attrs, attribute.StringSlice(OperationInputKey, inputs))
	}
	if output != "" {
		attrs = append(attrs, attribute.String(OperationOutputKey, output))
	}
	return attrs
}

// BatchAttributes describes one batch execution.
func BatchAttributes(size, limit int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(BatchSizeKey, size),
		attribute.Int(BatchLimitKey, limit),
	}
}

// FailureAttributes tags a span with a failure kind.
func FailureAttributes(kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool("error", true),
		attribute.String(FailureKindKey, kind),
	}
}
