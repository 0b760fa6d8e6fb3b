// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/ManuGH/mediaops/internal/media/validate"
	"github.com/ManuGH/mediaops/internal/metrics"
	"github.com/ManuGH/mediaops/internal/telemetry"
)

// Runner executes single descriptors. *Executor implements it.
type Runner interface {
	Execute(ctx context.Context, d op.Descriptor, options ...ExecOption) (Result, error)
	Options() Options
}

// ItemState is the lifecycle position reported to batch hooks.
type ItemState string

const (
	ItemQueued    ItemState = "queued"
	ItemRunning   ItemState = "running"
	ItemSucceeded ItemState = "succeeded"
	ItemFailed    ItemState = "failed"
)

// ItemEvent is delivered to an OnItem hook. Hooks run on the item's
// goroutine and must not block.
type ItemEvent struct {
	Index    int
	State    ItemState
	Progress float64
	Result   *Result
	Failure  *op.Failure
}

// BatchOption tunes a single ExecuteBatch call.
type BatchOption func(*batchSettings)

type batchSettings struct {
	onItem func(ItemEvent)
}

// OnItem registers a hook observing every item transition.
func OnItem(fn func(ItemEvent)) BatchOption {
	return func(s *batchSettings) { s.onItem = fn }
}

// Coordinator runs batches with bounded concurrency and per-item isolation.
type Coordinator struct {
	runner Runner
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewCoordinator returns a coordinator dispatching to runner.
func NewCoordinator(runner Runner) *Coordinator {
	return &Coordinator{
		runner: runner,
		tracer: telemetry.Tracer("mediaops.engine"),
		logger: log.WithComponent("batch"),
	}
}

// ExecuteBatch runs descs with at most limit items in flight and blocks
// until every item has an outcome. Items never affect each other: failures
// and panics are recorded in the item's own slot. Cancelling ctx fails
// items not yet admitted with Cancelled and signals running ones.
func (c *Coordinator) ExecuteBatch(ctx context.Context, descs []op.Descriptor, limit int, options ...BatchOption) BatchReport {
	var settings batchSettings
	for _, o := range options {
		o(&settings)
	}
	emit := func(ev ItemEvent) {
		if settings.onItem != nil {
			settings.onItem(ev)
		}
	}

	limit = c.runner.Options().BatchLimit(limit)
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "mediaops.batch",
		trace.WithAttributes(telemetry.BatchAttributes(len(descs), limit)...))
	defer span.End()
	logger := log.WithContext(ctx, c.logger)
	metrics.BatchesTotal.Inc()

	report := BatchReport{Items: make([]BatchItem, len(descs)), Total: len(descs)}

	// Claims are taken up front in index order so the earliest item wins
	// regardless of scheduling.
	claims := validate.NewClaims()
	rejected := make([]error, len(descs))
	for i, d := range descs {
		report.Items[i].Index = i
		if d == nil {
			rejected[i] = op.Invalid("operation descriptor is required")
			continue
		}
		if in := d.Inputs(); len(in) > 0 {
			report.Items[i].Input = in[0]
		}
		rejected[i] = claims.Claim(d.Output(), i)
	}

	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup
	for i, d := range descs {
		item := &report.Items[i]
		if rejected[i] != nil {
			c.fail(item, rejected[i], emit)
			continue
		}
		emit(ItemEvent{Index: i, State: ItemQueued})

		if err := ctx.Err(); err != nil {
			c.fail(item, op.Wrap(op.FailCancelled, "", err), emit)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			c.fail(item, op.Wrap(op.FailCancelled, "", err), emit)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			c.runItem(ctx, item, d, emit, logger)
		}()
	}
	wg.Wait()

	for _, it := range report.Items {
		if it.Failure != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("mediaops.batch.succeeded", report.Succeeded),
		attribute.Int("mediaops.batch.failed", report.Failed),
	)
	logger.Info().
		Str(log.FieldEvent, "batch.completed").
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("limit", limit).
		Dur(log.FieldDuration, report.Duration).
		Msg("batch completed")
	return report
}

// runItem executes one descriptor, converting a panic into an Internal
// failure for this item only.
func (c *Coordinator) runItem(ctx context.Context, item *BatchItem, d op.Descriptor, emit func(ItemEvent), logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str(log.FieldEvent, "batch.item_panic").
				Int(log.FieldIndex, item.Index).
				Str(log.FieldKind, string(d.Kind())).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("batch item panicked")
			c.fail(item, op.Fail(op.FailInternal, "", "operation panicked: %v", r), emit)
		}
	}()

	emit(ItemEvent{Index: item.Index, State: ItemRunning})
	res, err := c.runner.Execute(ctx, d, WithProgress(func(p float64) {
		emit(ItemEvent{Index: item.Index, State: ItemRunning, Progress: p})
	}))
	if err != nil {
		c.fail(item, err, emit)
		return
	}
	item.Result = &res
	metrics.IncBatchItem("success")
	emit(ItemEvent{Index: item.Index, State: ItemSucceeded, Progress: 100, Result: item.Result})
}

func (c *Coordinator) fail(item *BatchItem, err error, emit func(ItemEvent)) {
	f := op.AsFailure(err)
	item.Result = nil
	item.Failure = f
	metrics.IncBatchItem(string(f.Kind))
	emit(ItemEvent{Index: item.Index, State: ItemFailed, Failure: f})
}
