// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrAlreadyStarted is returned by a second call to Run.
	ErrAlreadyStarted = errors.New("daemon already started")
	// ErrMissingHolder is returned by New without a config holder.
	ErrMissingHolder = errors.New("config holder is required")
)
