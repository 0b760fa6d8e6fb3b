// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package service is the inbound contract of the daemon: synchronous and
// asynchronous submission of operations and batches, cancellation and
// status queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediaops/internal/engine"
	"github.com/ManuGH/mediaops/internal/jobs"
	"github.com/ManuGH/mediaops/internal/jobs/fsm"
	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/media/op"
)

var (
	// ErrClosed is returned for submissions after Close.
	ErrClosed = errors.New("service is shutting down")
	// ErrJobFinished is returned when cancelling a terminal job.
	ErrJobFinished = errors.New("job already finished")
)

// Service owns the lifetime of every job it starts.
type Service struct {
	runner   engine.Runner
	batch    *engine.Coordinator
	registry *jobs.Registry
	logger   zerolog.Logger

	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
}

// New wires a service. runner is usually an *engine.Executor.
func New(runner engine.Runner, registry *jobs.Registry) *Service {
	base, shutdown := context.WithCancel(context.Background())
	return &Service{
		runner:   runner,
		batch:    engine.NewCoordinator(runner),
		registry: registry,
		logger:   log.WithComponent("service"),
		base:     base,
		shutdown: shutdown,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Registry exposes the job registry for status listings.
func (s *Service) Registry() *jobs.Registry { return s.registry }

// Run executes d synchronously. The job stays queryable and can be
// cancelled through Cancel while it runs.
func (s *Service) Run(ctx context.Context, d op.Descriptor) (engine.Result, error) {
	if d == nil {
		return engine.Result{}, op.Invalid("operation descriptor is required")
	}
	id := s.registry.Register(d)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()
	if err := s.track(id, cancel); err != nil {
		s.abandon(id)
		return engine.Result{}, op.Wrap(op.FailCancelled, "", err)
	}
	defer s.untrack(id)
	return s.runOperation(ctx, id, d)
}

// Submit registers d and executes it in the background.
func (s *Service) Submit(d op.Descriptor) (string, error) {
	if d == nil {
		return "", op.Invalid("operation descriptor is required")
	}
	id := s.registry.Register(d)
	return id, s.spawn(id, func(ctx context.Context) {
		_, _ = s.runOperation(ctx, id, d)
	})
}

// RunBatch executes descs synchronously without registering a job.
func (s *Service) RunBatch(ctx context.Context, descs []op.Descriptor, limit int) engine.BatchReport {
	return s.batch.ExecuteBatch(ctx, descs, limit)
}

// SubmitBatch registers a batch job whose result is the batch report and
// executes it in the background. The batch job's progress counts finished
// items.
func (s *Service) SubmitBatch(descs []op.Descriptor, limit int) (string, error) {
	if len(descs) == 0 {
		return "", op.Invalid("batch must contain at least one operation")
	}
	id := s.registry.RegisterBatch(descs)
	return id, s.spawn(id, func(ctx context.Context) {
		s.runBatch(ctx, id, descs, limit)
	})
}

// Cancel signals job id. Queued jobs end cancelled without running;
// running jobs terminate their external processes.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
		s.logger.Info().Str(log.FieldEvent, "job.cancel_requested").Str(log.FieldJobID, id).Msg("job cancellation requested")
		return nil
	}
	j, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	if j.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, id, j.State)
	}
	return nil
}

// Status returns a snapshot of job id.
func (s *Service) Status(id string) (jobs.Job, error) {
	return s.registry.Get(id)
}

// Wait blocks until job id is terminal or ctx ends.
func (s *Service) Wait(ctx context.Context, id string) (jobs.Job, error) {
	return s.registry.Wait(ctx, id)
}

// List returns jobs matching f.
func (s *Service) List(f jobs.Filter) []jobs.Job {
	return s.registry.List(f)
}

// Close stops accepting work, cancels running jobs and waits for them to
// record their outcome or for ctx to end.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.shutdown()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

func (s *Service) spawn(id string, run func(ctx context.Context)) error {
	ctx, cancel := context.WithCancel(s.base)
	if err := s.track(id, cancel); err != nil {
		cancel()
		s.abandon(id)
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer s.untrack(id)
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error().Str(log.FieldEvent, "job.panic").Str(log.FieldJobID, id).
					Interface("panic", p).Bytes("stack", debug.Stack()).Msg("job goroutine panicked")
				_ = s.registry.UpdateState(id, fsm.StateFailed, jobs.Outcome{
					Failure: op.Fail(op.FailInternal, "", "job panicked: %v", p),
				})
			}
		}()
		run(ctx)
	}()
	return nil
}

func (s *Service) track(id string, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.cancels[id] = cancel
	return nil
}

func (s *Service) untrack(id string) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
}

// abandon cancels a job that was registered but never started.
func (s *Service) abandon(id string) {
	_ = s.registry.UpdateState(id, fsm.StateCancelled, jobs.Outcome{
		Failure: op.Wrap(op.FailCancelled, "", ErrClosed),
	})
}

// start moves a queued job to running, or to cancelled when ctx already
// ended. It reports whether the job should run.
func (s *Service) start(ctx context.Context, id string) bool {
	if err := ctx.Err(); err != nil {
		_ = s.registry.UpdateState(id, fsm.StateCancelled, jobs.Outcome{Failure: op.Wrap(op.FailCancelled, "", err)})
		return false
	}
	if err := s.registry.UpdateState(id, fsm.StateRunning, jobs.Outcome{}); err != nil {
		s.logger.Error().Err(err).Str(log.FieldJobID, id).Msg("failed to start job")
		return false
	}
	return true
}

func (s *Service) runOperation(ctx context.Context, id string, d op.Descriptor) (engine.Result, error) {
	ctx = log.ContextWithJobID(ctx, id)
	if !s.start(ctx, id) {
		return engine.Result{}, op.Fail(op.FailCancelled, "", "job %s cancelled before start", id)
	}

	res, err := s.execute(ctx, id, d)
	if err != nil {
		f := op.AsFailure(err)
		_ = s.registry.UpdateState(id, jobs.StateForFailure(f), jobs.Outcome{Failure: f})
		return engine.Result{}, f
	}
	_ = s.registry.UpdateState(id, fsm.StateSucceeded, jobs.Outcome{Result: &res})
	return res, nil
}

// execute isolates the job from a panicking runner: the panic becomes an
// internal failure of this job only.
func (s *Service) execute(ctx context.Context, id string, d op.Descriptor) (res engine.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error().
				Str(log.FieldEvent, "job.panic").
				Str(log.FieldJobID, id).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("operation panicked")
			res, err = engine.Result{}, op.Fail(op.FailInternal, "", "operation panicked: %v", p)
		}
	}()
	return s.runner.Execute(ctx, d, engine.WithProgress(func(p float64) {
		_ = s.registry.SetProgress(id, p)
	}))
}

// runBatch completes the batch job as succeeded even when items failed;
// per-item failures live in the report. A cancelled batch ends cancelled.
func (s *Service) runBatch(ctx context.Context, id string, descs []op.Descriptor, limit int) {
	ctx = log.ContextWithJobID(ctx, id)
	if !s.start(ctx, id) {
		return
	}

	total := float64(len(descs))
	var finished atomic.Int64
	report := s.batch.ExecuteBatch(ctx, descs, limit, engine.OnItem(func(ev engine.ItemEvent) {
		if ev.State == engine.ItemSucceeded || ev.State == engine.ItemFailed {
			n := finished.Add(1)
			_ = s.registry.SetProgress(id, float64(n)/total*100)
		}
	}))

	outcome := jobs.Outcome{Report: &report}
	to := fsm.StateSucceeded
	if err := ctx.Err(); err != nil {
		to = fsm.StateCancelled
		outcome.Failure = op.Wrap(op.FailCancelled, "", err)
	}
	_ = s.registry.UpdateState(id, to, outcome)
}
