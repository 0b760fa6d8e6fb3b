// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package engine executes operation descriptors, alone or as batches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/media/asset"
	"github.com/ManuGH/mediaops/internal/media/ffmpeg"
	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/ManuGH/mediaops/internal/media/scratch"
	"github.com/ManuGH/mediaops/internal/media/validate"
	"github.com/ManuGH/mediaops/internal/metrics"
	"github.com/ManuGH/mediaops/internal/resilience"
	"github.com/ManuGH/mediaops/internal/telemetry"
)

// Toolchain is the external codec toolchain used for video and audio kinds.
type Toolchain interface {
	Transcode(ctx context.Context, src, dst string, d op.Transcode, progress ffmpeg.ProgressFunc) error
	ExtractAudio(ctx context.Context, src, dst string, d op.ExtractAudio, progress ffmpeg.ProgressFunc) error
	CompressVideo(ctx context.Context, src, dst string, d op.Compress, progress ffmpeg.ProgressFunc) error
	NormalizeAudio(ctx context.Context, src, dst string, d op.NormalizeAudio, progress ffmpeg.ProgressFunc) error
	Probe(ctx context.Context, path string) (ffmpeg.ProbeInfo, error)
}

// Deps are the collaborators of an Executor.
type Deps struct {
	// Store finalises outputs and serves validation metadata.
	Store asset.Store
	// Mirror optionally receives a copy of every finalised output.
	Mirror  asset.Store
	Scratch *scratch.Manager
	Tools   Toolchain
}

// ExecOption tunes a single Execute call.
type ExecOption func(*execSettings)

type execSettings struct {
	progress ffmpeg.ProgressFunc
}

// WithProgress receives completion percentages while the operation runs.
func WithProgress(fn ffmpeg.ProgressFunc) ExecOption {
	return func(s *execSettings) { s.progress = fn }
}

const (
	mirrorFailureThreshold = 5
	mirrorResetTimeout     = 30 * time.Second
)

// Executor runs one descriptor at a time per call and keeps no state
// between calls apart from its limits. It is safe for concurrent use.
type Executor struct {
	store     asset.Store
	mirror    asset.Store
	breaker   *resilience.CircuitBreaker
	validator *validate.Validator
	scratch   *scratch.Manager
	tools     Toolchain

	opts atomic.Pointer[Options]
	gate atomic.Pointer[semaphore.Weighted]

	tracer  trace.Tracer
	counter metric.Int64Counter
	logger  zerolog.Logger
}

// NewExecutor validates deps and applies opts.
func NewExecutor(deps Deps, opts Options) (*Executor, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: asset store is required")
	}
	if deps.Scratch == nil {
		return nil, errors.New("engine: scratch manager is required")
	}
	if deps.Tools == nil {
		return nil, errors.New("engine: toolchain is required")
	}
	logger := log.WithComponent("engine")

	var counter metric.Int64Counter = noop.Int64Counter{}
	c, err := telemetry.Meter("mediaops.engine").Int64Counter("mediaops_operation_total",
		metric.WithDescription("Operations executed, by kind and outcome"))
	if err != nil {
		logger.Warn().Err(err).Msg("operation counter unavailable")
	} else {
		counter = c
	}

	e := &Executor{
		store:     deps.Store,
		mirror:    deps.Mirror,
		validator: validate.New(deps.Store),
		scratch:   deps.Scratch,
		tools:     deps.Tools,
		tracer:    telemetry.Tracer("mediaops.engine"),
		counter:   counter,
		logger:    logger,
	}
	if e.mirror != nil {
		e.breaker = resilience.NewCircuitBreaker("mirror", mirrorFailureThreshold, mirrorResetTimeout)
	}
	e.Update(opts)
	return e, nil
}

// Options returns the limits currently in force.
func (e *Executor) Options() Options { return *e.opts.Load() }

// Update applies new limits. Running operations keep the timeout they
// started with; a changed MaxConcurrency takes effect for new admissions.
func (e *Executor) Update(opts Options) {
	opts = opts.normalized()
	prev := e.opts.Swap(&opts)
	if prev == nil || prev.MaxConcurrency != opts.MaxConcurrency {
		e.gate.Store(semaphore.NewWeighted(int64(opts.MaxConcurrency)))
	}
	if prev != nil && *prev != opts {
		e.logger.Info().
			Str(log.FieldEvent, "engine.limits_updated").
			Dur("operation_timeout", opts.OperationTimeout).
			Int("batch_concurrency", opts.BatchConcurrency).
			Int("max_concurrency", opts.MaxConcurrency).
			Msg("engine limits updated")
	}
}

// Execute validates, runs and finalises d. Every error is an *op.Failure.
// The scratch area is removed on every exit path.
func (e *Executor) Execute(ctx context.Context, d op.Descriptor, options ...ExecOption) (res Result, err error) {
	if d == nil {
		return Result{}, op.Invalid("operation descriptor is required")
	}
	var settings execSettings
	for _, o := range options {
		o(&settings)
	}
	opts := e.Options()
	kind := d.Kind()
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "mediaops.operation."+string(kind),
		trace.WithAttributes(telemetry.OperationAttributes(string(kind), d.Inputs(), d.Output())...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, opts.OperationTimeout)
	defer cancel()

	logger := log.WithContext(ctx, e.logger).With().Str(log.FieldKind, string(kind)).Logger()
	metrics.OperationsInFlight.Inc()
	defer metrics.OperationsInFlight.Dec()

	defer func() {
		if p := recover(); p != nil {
			metrics.ObserveOperation(string(kind), string(op.FailInternal), time.Since(start).Seconds())
			span.SetStatus(codes.Error, fmt.Sprint(p))
			panic(p)
		}
		res.Duration = time.Since(start)
		outcome := "success"
		if err != nil {
			f := failureFor(ctx, err)
			err = f
			res = Result{}
			outcome = string(f.Kind)
			span.RecordError(f)
			span.SetAttributes(telemetry.FailureAttributes(outcome)...)
			span.SetStatus(codes.Error, f.Error())
			logFailure(logger, f, time.Since(start))
		} else {
			span.SetAttributes(attribute.Int64(telemetry.OperationBytesKey, res.Bytes))
			span.SetStatus(codes.Ok, "")
			logger.Info().
				Str(log.FieldEvent, "operation.succeeded").
				Strs("outputs", res.Outputs).
				Int64(log.FieldBytes, res.Bytes).
				Dur(log.FieldDuration, res.Duration).
				Msg("operation completed")
		}
		metrics.ObserveOperation(string(kind), outcome, time.Since(start).Seconds())
		e.counter.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
			attribute.String(telemetry.OperationKindKey, string(kind)),
			attribute.String(telemetry.OutcomeKey, outcome),
		))
	}()

	progress := newStageReporter(settings.progress)

	handles, err := e.validateInputs(ctx, d)
	if err != nil {
		return Result{}, err
	}
	if d.Output() != "" {
		if err := e.validator.Output(ctx, d.Output(), d.Overwrite()); err != nil {
			return Result{}, err
		}
	}

	area, err := e.scratch.Scope(string(kind))
	if err != nil {
		return Result{}, op.AsFailure(fmt.Errorf("acquire scratch area: %w", err))
	}
	defer func() {
		if cerr := area.Close(); cerr != nil {
			logger.Warn().Err(cerr).Str(log.FieldScratchDir, area.Dir()).Msg("scratch cleanup failed")
		}
	}()

	gate := e.gate.Load()
	if err := gate.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer gate.Release(1)

	out, err := e.dispatch(ctx, d, handles, area, progress)
	if err != nil {
		return Result{}, err
	}
	// A transform that finished as the deadline hit is not published.
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if out.metrics == nil {
		out.metrics = make(map[string]any)
	}
	res = Result{Kind: kind, Metrics: out.metrics}
	if out.staged != "" {
		size, err := e.finalize(ctx, d, out.staged, logger)
		if err != nil {
			return Result{}, err
		}
		res.Outputs = []string{d.Output()}
		res.Bytes = size
		if key, ok := e.mirrorOutput(ctx, d.Output(), logger); ok {
			res.Metrics["mirror_key"] = key
		}
	}
	progress.report(100)
	return res, nil
}

// validateInputs checks the primary input against the kind's media classes
// and every further input (watermark overlays) as an image.
func (e *Executor) validateInputs(ctx context.Context, d op.Descriptor) ([]validate.MediaHandle, error) {
	inputs := d.Inputs()
	handles := make([]validate.MediaHandle, 0, len(inputs))
	for i, in := range inputs {
		accept := d.Kind().Accepts()
		if i > 0 {
			accept = op.ClassImage
		}
		h, err := e.validator.Input(ctx, in, accept)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// finalize checks the staged file and moves it into place.
func (e *Executor) finalize(ctx context.Context, d op.Descriptor, staged string, logger zerolog.Logger) (int64, error) {
	info, err := e.store.Stat(ctx, staged)
	if err != nil {
		return 0, op.Wrap(op.FailEmptyOutput, d.Output(), fmt.Errorf("staged output missing: %w", err))
	}
	if info.Size == 0 {
		return 0, op.Fail(op.FailEmptyOutput, d.Output(), "transform produced 0 bytes")
	}
	if err := e.store.Replace(ctx, staged, d.Output(), d.Overwrite()); err != nil {
		var f *op.Failure
		if errors.As(err, &f) {
			return 0, f
		}
		if ctx.Err() != nil {
			return 0, err
		}
		af := op.AsFailure(err)
		if af.Kind == op.FailInternal {
			af = op.Wrap(op.FailNotWritable, d.Output(), err)
		}
		return 0, af
	}
	logger.Debug().
		Str(log.FieldEvent, "operation.finalized").
		Str(log.FieldOutputPath, d.Output()).
		Int64(log.FieldBytes, info.Size).
		Msg("output moved into place")
	return info.Size, nil
}

// mirrorOutput uploads a finalised output. Mirror failures do not fail the
// operation; the local output is authoritative.
func (e *Executor) mirrorOutput(ctx context.Context, path string, logger zerolog.Logger) (string, bool) {
	if e.mirror == nil {
		return "", false
	}
	err := e.breaker.Execute(func() error {
		return e.mirror.Replace(ctx, path, path, op.OverwriteAllow)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		metrics.IncMirrorUpload("skipped")
		logger.Debug().Str(log.FieldEvent, "mirror.skipped").Str(log.FieldPath, path).Msg("mirror unavailable, upload skipped")
		return "", false
	}
	if err != nil {
		metrics.IncMirrorUpload("error")
		logger.Warn().Err(err).Str(log.FieldEvent, "mirror.failed").Str(log.FieldPath, path).Msg("mirror upload failed")
		return "", false
	}
	metrics.IncMirrorUpload("ok")
	return asset.ObjectKey(path), true
}

// failureFor maps err onto a Failure, preferring the context state so a
// tool killed by the deadline reports Timeout rather than its exit code.
func failureFor(ctx context.Context, err error) *op.Failure {
	f := op.AsFailure(err)
	if f.Kind.IsValidation() {
		return f
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && f.Kind != op.FailTimeout:
		return &op.Failure{Kind: op.FailTimeout, Path: f.Path, Message: "operation deadline exceeded", Err: err}
	case errors.Is(ctx.Err(), context.Canceled) && f.Kind != op.FailCancelled:
		return &op.Failure{Kind: op.FailCancelled, Path: f.Path, Message: "operation cancelled", Err: err}
	}
	return f
}

func logFailure(logger zerolog.Logger, f *op.Failure, elapsed time.Duration) {
	ev := logger.Warn()
	if f.Kind == op.FailInternal {
		ev = logger.Error()
	} else if f.Kind.IsValidation() {
		ev = logger.Info()
	}
	ev.Str(log.FieldEvent, "operation.failed").
		Str(log.FieldFailure, string(f.Kind)).
		Str(log.FieldPath, f.Path).
		Int("code", f.Code).
		Dur(log.FieldDuration, elapsed).
		Msg(f.Message)
}
