// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"time"

	"github.com/ManuGH/mediaops/internal/engine"
	"github.com/ManuGH/mediaops/internal/jobs/fsm"
	"github.com/ManuGH/mediaops/internal/media/op"
)

// Job is a registry snapshot. Callers receive copies; Result, Report and
// Failure are never modified once set.
type Job struct {
	ID          string
	Kind        op.Kind
	Batch       bool
	Items       int
	Descriptor  op.Descriptor
	Descriptors []op.Descriptor
	State       fsm.State
	Progress    float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      *engine.Result
	Report      *engine.BatchReport
	Failure     *op.Failure
}

// Outcome carries the payload of a terminal transition.
type Outcome struct {
	Result  *engine.Result
	Report  *engine.BatchReport
	Failure *op.Failure
}

// Change is published on TopicJobs for every transition.
type Change struct {
	ID   string
	From fsm.State
	To   fsm.State
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	State fsm.State
	Kind  op.Kind
	Batch *bool
	Limit int
}

func (f Filter) match(j *Job) bool {
	if f.State != "" && j.State != f.State {
		return false
	}
	if f.Kind != "" && j.Kind != f.Kind {
		return false
	}
	if f.Batch != nil && j.Batch != *f.Batch {
		return false
	}
	return true
}

// StateForFailure maps a failure onto the terminal state that reports it.
func StateForFailure(f *op.Failure) fsm.State {
	if f == nil {
		return fsm.StateSucceeded
	}
	switch f.Kind {
	case op.FailTimeout:
		return fsm.StateTimedOut
	case op.FailCancelled:
		return fsm.StateCancelled
	default:
		return fsm.StateFailed
	}
}
