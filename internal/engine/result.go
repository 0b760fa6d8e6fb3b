// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"time"

	"github.com/ManuGH/mediaops/internal/media/op"
)

// Result describes a successful operation. It is not modified after
// Execute returns.
type Result struct {
	Kind     op.Kind        `json:"kind"`
	Outputs  []string       `json:"outputs"`
	Bytes    int64          `json:"bytes"`
	Duration time.Duration  `json:"duration"`
	Metrics  map[string]any `json:"metrics,omitempty"`
}

// BatchItem is the outcome of one descriptor in a batch. Exactly one of
// Result and Failure is set.
type BatchItem struct {
	Index   int         `json:"index"`
	Input   string      `json:"input"`
	Result  *Result     `json:"result,omitempty"`
	Failure *op.Failure `json:"failure,omitempty"`
}

// BatchReport aggregates a batch in submission order.
type BatchReport struct {
	Items     []BatchItem   `json:"items"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Total     int           `json:"total"`
	Duration  time.Duration `json:"duration"`
}
