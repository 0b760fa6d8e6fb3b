// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldJobID         = "job_id"
	FieldBatchID       = "batch_id"
	FieldTraceID       = "trace_id"
	FieldSpanID        = "span_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"

	// Operation fields
	FieldKind     = "kind"
	FieldFailure  = "failure"
	FieldIndex    = "index"
	FieldDuration = "duration"
	FieldBytes    = "bytes"
	FieldProgress = "progress"

	// Media fields
	FieldCodec      = "codec"
	FieldResolution = "resolution"
	FieldFPS        = "fps"
	FieldMIME       = "mime"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath       = "path"
	FieldInputPath  = "input_path"
	FieldOutputPath = "output_path"
	FieldScratchDir = "scratch_dir"
)
