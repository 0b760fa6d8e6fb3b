// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/mediaops/internal/engine"
	"github.com/ManuGH/mediaops/internal/jobs/fsm"
	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/ManuGH/mediaops/internal/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func rotate(t *testing.T) op.Descriptor {
	t.Helper()
	d, err := op.NewRotate(op.Target{Input: "/in.png", Output: "/out.png"}, op.RotateParams{Angle: 90})
	require.NoError(t, err)
	return d
}

func TestRegisterAndLifecycle(t *testing.T) {
	r := NewRegistry()
	id := r.Register(rotate(t))

	j, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateQueued, j.State)
	assert.Equal(t, op.KindRotate, j.Kind)
	assert.Nil(t, j.StartedAt)

	require.NoError(t, r.UpdateState(id, fsm.StateRunning, Outcome{}))
	require.NoError(t, r.SetProgress(id, 40))
	require.NoError(t, r.SetProgress(id, 10))

	j, err = r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateRunning, j.State)
	assert.Equal(t, 40.0, j.Progress)
	require.NotNil(t, j.StartedAt)

	res := &engine.Result{Kind: op.KindRotate, Outputs: []string{"/out.png"}, Bytes: 10}
	require.NoError(t, r.UpdateState(id, fsm.StateSucceeded, Outcome{Result: res}))

	j, err = r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateSucceeded, j.State)
	assert.Equal(t, 100.0, j.Progress)
	assert.Same(t, res, j.Result)
	require.NotNil(t, j.CompletedAt)
}

func TestTransitionAfterTerminalIsRejectedLoudly(t *testing.T) {
	r := NewRegistry()
	id := r.Register(rotate(t))
	require.NoError(t, r.UpdateState(id, fsm.StateCancelled, Outcome{Failure: op.Fail(op.FailCancelled, "", "cancelled")}))

	c := metrics.JobInvalidTransitionsTotal.WithLabelValues("cancelled", "running")
	before := counterValue(t, c)

	err := r.UpdateState(id, fsm.StateRunning, Outcome{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, before+1, counterValue(t, c))

	j, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, fsm.StateCancelled, j.State)

	require.NoError(t, r.SetProgress(id, 50))
	j, _ = r.Get(id)
	assert.Zero(t, j.Progress)
}

func TestQueuedCannotSucceedDirectly(t *testing.T) {
	r := NewRegistry()
	id := r.Register(rotate(t))
	assert.ErrorIs(t, r.UpdateState(id, fsm.StateSucceeded, Outcome{}), ErrInvalidTransition)
	assert.ErrorIs(t, r.UpdateState(id, fsm.State("bogus"), Outcome{}), ErrInvalidTransition)
}

func TestUnknownJob(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
	assert.ErrorIs(t, r.UpdateState("nope", fsm.StateRunning, Outcome{}), ErrUnknownJob)
	assert.ErrorIs(t, r.SetProgress("nope", 1), ErrUnknownJob)
}

func TestRegisterPanicsOnIDCollision(t *testing.T) {
	r := NewRegistry(WithIDGenerator(func() string { return "fixed" }))
	r.Register(rotate(t))
	assert.Panics(t, func() { r.Register(rotate(t)) })
}

func TestListFiltersAndOrders(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	r := NewRegistry(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))

	a := r.Register(rotate(t))
	b := r.RegisterBatch([]op.Descriptor{rotate(t), rotate(t)})
	c := r.Register(rotate(t))
	require.NoError(t, r.UpdateState(c, fsm.StateRunning, Outcome{}))

	all := r.List(Filter{})
	require.Len(t, all, 3)
	assert.Equal(t, []string{a, b, c}, []string{all[0].ID, all[1].ID, all[2].ID})

	running := r.List(Filter{State: fsm.StateRunning})
	require.Len(t, running, 1)
	assert.Equal(t, c, running[0].ID)

	batch := true
	batches := r.List(Filter{Batch: &batch})
	require.Len(t, batches, 1)
	assert.Equal(t, 2, batches[0].Items)

	assert.Len(t, r.List(Filter{Limit: 2}), 2)
}

func TestPruneRemovesOldTerminalJobs(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	r := NewRegistry(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}))
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	old := r.Register(rotate(t))
	require.NoError(t, r.UpdateState(old, fsm.StateCancelled, Outcome{}))
	live := r.Register(rotate(t))
	advance(2 * time.Hour)
	fresh := r.Register(rotate(t))
	require.NoError(t, r.UpdateState(fresh, fsm.StateCancelled, Outcome{}))

	assert.Zero(t, r.Prune(0))
	assert.Equal(t, 1, r.Prune(time.Hour))

	_, err := r.Get(old)
	assert.ErrorIs(t, err, ErrUnknownJob)
	_, err = r.Get(live)
	assert.NoError(t, err)
	_, err = r.Get(fresh)
	assert.NoError(t, err)
}

func TestWaitReturnsOnTerminalState(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRegistry()
	id := r.Register(rotate(t))

	done := make(chan Job, 1)
	go func() {
		j, err := r.Wait(context.Background(), id)
		assert.NoError(t, err)
		done <- j
	}()

	require.NoError(t, r.UpdateState(id, fsm.StateRunning, Outcome{}))
	failure := op.Fail(op.FailExternalTool, "/in.png", "exit status 1")
	require.NoError(t, r.UpdateState(id, fsm.StateFailed, Outcome{Failure: failure}))

	select {
	case j := <-done:
		assert.Equal(t, fsm.StateFailed, j.State)
		assert.Same(t, failure, j.Failure)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after terminal transition")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	r := NewRegistry()
	id := r.Register(rotate(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	j, err := r.Wait(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, fsm.StateQueued, j.State)

	_, err = r.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestConcurrentUpdatesHaveOneWinner(t *testing.T) {
	r := NewRegistry()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = r.Register(rotate(t))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := map[string]int{}
	for _, id := range ids {
		for _, to := range []fsm.State{fsm.StateRunning, fsm.StateCancelled} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := r.UpdateState(id, to, Outcome{}); err == nil {
					mu.Lock()
					wins[id]++
					mu.Unlock()
				}
				_ = r.SetProgress(id, 10)
				_ = r.List(Filter{})
			}()
		}
	}
	wg.Wait()

	// Cancel is legal from both queued and running, so every job ends
	// cancelled; start wins only when it ran first.
	for _, id := range ids {
		j, err := r.Get(id)
		require.NoError(t, err)
		assert.Equal(t, fsm.StateCancelled, j.State)
		assert.Contains(t, []int{1, 2}, wins[id], "job %s", id)
	}
}

func TestStateForFailure(t *testing.T) {
	assert.Equal(t, fsm.StateSucceeded, StateForFailure(nil))
	assert.Equal(t, fsm.StateTimedOut, StateForFailure(op.Fail(op.FailTimeout, "", "")))
	assert.Equal(t, fsm.StateCancelled, StateForFailure(op.Fail(op.FailCancelled, "", "")))
	assert.Equal(t, fsm.StateFailed, StateForFailure(op.Fail(op.FailNotFound, "", "")))
}
