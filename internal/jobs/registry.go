// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jobs tracks the lifecycle of submitted operations in memory.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/mediaops/internal/jobs/bus"
	"github.com/ManuGH/mediaops/internal/jobs/fsm"
	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/ManuGH/mediaops/internal/metrics"
)

// TopicJobs carries a Change for every job transition.
const TopicJobs = "jobs"

const publishTimeout = 100 * time.Millisecond

var (
	ErrUnknownJob        = errors.New("unknown job")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

type entry struct {
	job     Job
	machine *fsm.Machine[fsm.State, fsm.Event]
}

// Registry is the only shared mutable job state. It is safe for concurrent
// use and is passed explicitly to its users.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*entry

	bus    bus.Bus
	newID  func() string
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator replaces uuid v4 job IDs.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) { r.now = fn }
}

// WithBus publishes transitions on b instead of a private memory bus.
func WithBus(b bus.Bus) Option {
	return func(r *Registry) { r.bus = b }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		jobs:   make(map[string]*entry),
		bus:    bus.NewMemoryBus(),
		newID:  uuid.NewString,
		now:    time.Now,
		logger: log.WithComponent("jobs"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register records a queued single-operation job and returns its ID.
func (r *Registry) Register(d op.Descriptor) string {
	j := Job{Descriptor: d, Items: 1}
	if d != nil {
		j.Kind = d.Kind()
	}
	return r.register(j)
}

// RegisterBatch records a queued batch job.
func (r *Registry) RegisterBatch(descs []op.Descriptor) string {
	return r.register(Job{Batch: true, Items: len(descs), Descriptors: descs})
}

func (r *Registry) register(j Job) string {
	id := r.newID()
	now := r.now()
	j.ID = id
	j.State = fsm.StateQueued
	j.CreatedAt = now
	j.UpdatedAt = now

	r.mu.Lock()
	if _, exists := r.jobs[id]; exists {
		r.mu.Unlock()
		panic(fmt.Sprintf("jobs: duplicate job id %q", id))
	}
	r.jobs[id] = &entry{job: j, machine: fsm.NewJob(fsm.StateQueued)}
	r.mu.Unlock()

	metrics.RecordJobTransition("", string(fsm.StateQueued))
	r.logger.Debug().
		Str(log.FieldEvent, "job.registered").
		Str(log.FieldJobID, id).
		Str(log.FieldKind, string(j.Kind)).
		Bool("batch", j.Batch).
		Msg("job registered")
	r.publish(Change{ID: id, To: fsm.StateQueued})
	return id
}

// Get returns a snapshot of job id.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return e.job, nil
}

// UpdateState moves job id to state to. Transitions out of a terminal state
// are rejected with ErrInvalidTransition and logged at error level.
func (r *Registry) UpdateState(id string, to fsm.State, outcome Outcome) error {
	r.mu.Lock()
	e, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	from := e.job.State
	if err := r.fire(e, to); err != nil {
		r.mu.Unlock()
		metrics.IncInvalidTransition(string(from), string(to))
		r.logger.Error().
			Str(log.FieldEvent, "job.invalid_transition").
			Str(log.FieldJobID, id).
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Err(err).
			Msg("rejected job state transition")
		return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, id, from, to)
	}

	now := r.now()
	j := &e.job
	j.State = to
	j.UpdatedAt = now
	switch {
	case to == fsm.StateRunning:
		j.StartedAt = &now
	case to.Terminal():
		j.CompletedAt = &now
		j.Result = outcome.Result
		j.Report = outcome.Report
		j.Failure = outcome.Failure
		if to == fsm.StateSucceeded {
			j.Progress = 100
		}
	}
	r.mu.Unlock()

	metrics.RecordJobTransition(string(from), string(to))
	r.logger.Debug().
		Str(log.FieldEvent, "job.transition").
		Str(log.FieldJobID, id).
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Msg("job state changed")
	r.publish(Change{ID: id, From: from, To: to})
	return nil
}

func (r *Registry) fire(e *entry, to fsm.State) error {
	ev, ok := fsm.EventFor(to)
	if !ok {
		return fmt.Errorf("%w: no event leads to %q", fsm.ErrInvalidTransition, to)
	}
	_, err := e.machine.Fire(ev)
	return err
}

// SetProgress records completion of a running job. Decreasing values and
// updates after the job finished are ignored.
func (r *Registry) SetProgress(id string, pct float64) error {
	pct = min(max(pct, 0), 100)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if e.job.State.Terminal() || pct <= e.job.Progress {
		return nil
	}
	e.job.Progress = pct
	e.job.UpdatedAt = r.now()
	return nil
}

// List returns matching jobs ordered by creation time.
func (r *Registry) List(f Filter) []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		if f.match(&e.job) {
			out = append(out, e.job)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Prune drops terminal jobs completed more than olderThan ago and returns
// how many were removed. olderThan <= 0 disables pruning.
func (r *Registry) Prune(olderThan time.Duration) int {
	if olderThan <= 0 {
		return 0
	}
	cutoff := r.now().Add(-olderThan)

	r.mu.Lock()
	var pruned []fsm.State
	for id, e := range r.jobs {
		if e.job.State.Terminal() && e.job.CompletedAt != nil && e.job.CompletedAt.Before(cutoff) {
			pruned = append(pruned, e.job.State)
			delete(r.jobs, id)
		}
	}
	r.mu.Unlock()

	for _, s := range pruned {
		metrics.RecordJobPruned(string(s))
	}
	if len(pruned) > 0 {
		r.logger.Info().Str(log.FieldEvent, "job.pruned").Int("count", len(pruned)).Msg("pruned finished jobs")
	}
	return len(pruned)
}

// Wait blocks until job id is terminal or ctx ends, returning the latest
// snapshot either way.
func (r *Registry) Wait(ctx context.Context, id string) (Job, error) {
	sub, err := r.bus.Subscribe(ctx, TopicJobs)
	if err != nil {
		return Job{}, fmt.Errorf("subscribe to job changes: %w", err)
	}
	defer func() { _ = sub.Close() }()

	// Subscribed before the first read so no terminal change is missed.
	j, err := r.Get(id)
	if err != nil || j.State.Terminal() {
		return j, err
	}
	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return r.Get(id)
			}
			if c, isChange := msg.(Change); !isChange || c.ID != id {
				continue
			}
			if j, err = r.Get(id); err != nil || j.State.Terminal() {
				return j, err
			}
		case <-ctx.Done():
			return j, ctx.Err()
		}
	}
}

func (r *Registry) publish(c Change) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.bus.Publish(ctx, TopicJobs, c); err != nil {
		r.logger.Debug().Err(err).Str(log.FieldJobID, c.ID).Msg("job change not delivered")
	}
}
