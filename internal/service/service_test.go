// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/mediaops/internal/engine"
	"github.com/ManuGH/mediaops/internal/jobs"
	"github.com/ManuGH/mediaops/internal/jobs/fsm"
	"github.com/ManuGH/mediaops/internal/media/op"
)

// fakeRunner reports progress 50 then runs fn.
type fakeRunner struct {
	fn func(ctx context.Context, d op.Descriptor) (engine.Result, error)
}

func (r *fakeRunner) Execute(ctx context.Context, d op.Descriptor, options ...engine.ExecOption) (engine.Result, error) {
	return r.fn(ctx, d)
}

func (r *fakeRunner) Options() engine.Options {
	return engine.Options{OperationTimeout: time.Minute, BatchConcurrency: 2, MaxConcurrency: 4}
}

func succeed(_ context.Context, d op.Descriptor) (engine.Result, error) {
	return engine.Result{Kind: d.Kind(), Outputs: []string{d.Output()}, Bytes: 1}, nil
}

// blockUntilCancelled parks until ctx ends and signals started once.
func blockUntilCancelled(started chan<- struct{}) func(context.Context, op.Descriptor) (engine.Result, error) {
	var once sync.Once
	return func(ctx context.Context, _ op.Descriptor) (engine.Result, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return engine.Result{}, op.Wrap(op.FailCancelled, "", ctx.Err())
	}
}

func flip(t *testing.T, i int) op.Descriptor {
	t.Helper()
	d, err := op.NewFlip(op.Target{Input: fmt.Sprintf("/in-%d.png", i), Output: fmt.Sprintf("/out-%d.png", i)},
		op.FlipParams{Direction: op.FlipVertical})
	require.NoError(t, err)
	return d
}

func newService(t *testing.T, fn func(context.Context, op.Descriptor) (engine.Result, error)) *Service {
	t.Helper()
	s := New(&fakeRunner{fn: fn}, jobs.NewRegistry())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Close(ctx))
	})
	return s
}

func TestRunRecordsSuccess(t *testing.T) {
	s := newService(t, succeed)

	res, err := s.Run(context.Background(), flip(t, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"/out-1.png"}, res.Outputs)

	list := s.List(jobs.Filter{})
	require.Len(t, list, 1)
	assert.Equal(t, fsm.StateSucceeded, list[0].State)
	require.NotNil(t, list[0].Result)
	assert.Equal(t, 100.0, list[0].Progress)
}

func TestRunMapsFailureToTerminalState(t *testing.T) {
	cases := []struct {
		kind op.FailureKind
		want fsm.State
	}{
		{op.FailNotFound, fsm.StateFailed},
		{op.FailExternalTool, fsm.StateFailed},
		{op.FailTimeout, fsm.StateTimedOut},
		{op.FailCancelled, fsm.StateCancelled},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			s := newService(t, func(context.Context, op.Descriptor) (engine.Result, error) {
				return engine.Result{}, op.Fail(tc.kind, "/in.png", "boom")
			})

			_, err := s.Run(context.Background(), flip(t, 1))
			require.Error(t, err)
			assert.Equal(t, tc.kind, op.KindOf(err))

			list := s.List(jobs.Filter{})
			require.Len(t, list, 1)
			assert.Equal(t, tc.want, list[0].State)
			require.NotNil(t, list[0].Failure)
			assert.Equal(t, tc.kind, list[0].Failure.Kind)
		})
	}
}

func TestRunRejectsNilDescriptor(t *testing.T) {
	s := newService(t, succeed)
	_, err := s.Run(context.Background(), nil)
	assert.ErrorIs(t, err, op.ErrInvalidParameter)
	assert.Empty(t, s.List(jobs.Filter{}))
}

func TestSubmitRunsInBackground(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newService(t, succeed)
	id, err := s.Submit(flip(t, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	j, err := s.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateSucceeded, j.State)
	assert.Equal(t, op.KindFlip, j.Kind)
}

func TestCancelRunningJob(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	s := newService(t, blockUntilCancelled(started))
	id, err := s.Submit(flip(t, 1))
	require.NoError(t, err)
	<-started

	st, err := s.Status(id)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateRunning, st.State)

	require.NoError(t, s.Cancel(id))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	j, err := s.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateCancelled, j.State)
	assert.ErrorIs(t, j.Failure, op.ErrCancelled)
}

func TestCancelFinishedJob(t *testing.T) {
	s := newService(t, succeed)
	_, err := s.Run(context.Background(), flip(t, 1))
	require.NoError(t, err)
	id := s.List(jobs.Filter{})[0].ID

	assert.ErrorIs(t, s.Cancel(id), ErrJobFinished)
	assert.ErrorIs(t, s.Cancel("nope"), jobs.ErrUnknownJob)
}

func TestCancelSynchronousRun(t *testing.T) {
	started := make(chan struct{})
	s := newService(t, blockUntilCancelled(started))

	errc := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), flip(t, 1))
		errc <- err
	}()
	<-started
	id := s.List(jobs.Filter{})[0].ID
	require.NoError(t, s.Cancel(id))
	assert.ErrorIs(t, <-errc, op.ErrCancelled)
}

func TestSubmitBatchReportsPartialSuccess(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newService(t, func(_ context.Context, d op.Descriptor) (engine.Result, error) {
		if d.Output() == "/out-1.png" {
			return engine.Result{}, op.Fail(op.FailNotFound, d.Inputs()[0], "missing")
		}
		return succeed(context.Background(), d)
	})
	id, err := s.SubmitBatch([]op.Descriptor{flip(t, 0), flip(t, 1), flip(t, 2)}, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	j, err := s.Wait(ctx, id)
	require.NoError(t, err)
	assert.True(t, j.Batch)
	assert.Equal(t, 3, j.Items)
	assert.Equal(t, fsm.StateSucceeded, j.State)
	require.NotNil(t, j.Report)
	assert.Equal(t, 2, j.Report.Succeeded)
	assert.Equal(t, 1, j.Report.Failed)
	assert.Equal(t, 100.0, j.Progress)
}

func TestSubmitBatchRejectsEmpty(t *testing.T) {
	s := newService(t, succeed)
	_, err := s.SubmitBatch(nil, 0)
	assert.ErrorIs(t, err, op.ErrInvalidParameter)
}

func TestRunBatchIsSynchronous(t *testing.T) {
	s := newService(t, succeed)
	report := s.RunBatch(context.Background(), []op.Descriptor{flip(t, 0), flip(t, 1)}, 0)
	assert.Equal(t, 2, report.Succeeded)
	assert.Empty(t, s.List(jobs.Filter{}))
}

func TestCloseCancelsJobsAndRejectsNewWork(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	s := New(&fakeRunner{fn: blockUntilCancelled(started)}, jobs.NewRegistry())
	id, err := s.Submit(flip(t, 1))
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	j, err := s.Status(id)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateCancelled, j.State)

	lateID, err := s.Submit(flip(t, 2))
	assert.ErrorIs(t, err, ErrClosed)
	late, err := s.Status(lateID)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateCancelled, late.State)
}

func TestPanickingJobFailsAlone(t *testing.T) {
	s := newService(t, func(ctx context.Context, d op.Descriptor) (engine.Result, error) {
		if d.Output() == "/out-1.png" {
			panic("decoder exploded")
		}
		return succeed(ctx, d)
	})

	bad, err := s.Submit(flip(t, 1))
	require.NoError(t, err)
	good, err := s.Submit(flip(t, 2))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	j, err := s.Wait(ctx, bad)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateFailed, j.State)
	require.NotNil(t, j.Failure)
	assert.Equal(t, op.FailInternal, j.Failure.Kind)
	assert.Contains(t, j.Failure.Message, "decoder exploded")

	j, err = s.Wait(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateSucceeded, j.State)
}

func TestRunRecoversPanic(t *testing.T) {
	s := newService(t, func(context.Context, op.Descriptor) (engine.Result, error) {
		panic("nil frame")
	})

	_, err := s.Run(context.Background(), flip(t, 1))
	require.ErrorIs(t, err, op.ErrInternal)
	list := s.List(jobs.Filter{})
	require.Len(t, list, 1)
	assert.Equal(t, fsm.StateFailed, list[0].State)
}
