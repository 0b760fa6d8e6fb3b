// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"time"

	"github.com/ManuGH/mediaops/internal/config"
)

// Options are the live-tunable execution limits.
type Options struct {
	OperationTimeout time.Duration
	// BatchConcurrency is the default batch limit when a caller passes <= 0.
	BatchConcurrency int
	// MaxConcurrency bounds transforms running at once across all callers.
	MaxConcurrency int
}

// OptionsFromConfig extracts the engine limits from the daemon config.
func OptionsFromConfig(cfg config.EngineConfig) Options {
	return Options{
		OperationTimeout: cfg.OperationTimeout,
		BatchConcurrency: cfg.BatchConcurrency,
		MaxConcurrency:   cfg.MaxConcurrency,
	}
}

func (o Options) normalized() Options {
	d := OptionsFromConfig(config.Defaults().Engine)
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = d.OperationTimeout
	}
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = d.MaxConcurrency
	}
	if o.BatchConcurrency < 1 {
		o.BatchConcurrency = d.BatchConcurrency
	}
	return o
}

// BatchLimit resolves a requested batch limit: <= 0 selects the default,
// and the result never exceeds MaxConcurrency.
func (o Options) BatchLimit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = o.BatchConcurrency
	}
	if o.MaxConcurrency > 0 && limit > o.MaxConcurrency {
		limit = o.MaxConcurrency
	}
	return max(limit, 1)
}
