// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediaops/internal/engine"
	"github.com/ManuGH/mediaops/internal/jobs"
	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/ManuGH/mediaops/internal/service"
)

// stubRunner fails operations whose output names a failure kind and
// blocks on outputs containing "slow" until cancelled.
type stubRunner struct{}

func (stubRunner) Execute(ctx context.Context, d op.Descriptor, _ ...engine.ExecOption) (engine.Result, error) {
	out := d.Output()
	switch {
	case strings.Contains(out, "slow"):
		<-ctx.Done()
		return engine.Result{}, op.Wrap(op.FailCancelled, "", ctx.Err())
	case strings.Contains(out, "missing"):
		return engine.Result{}, op.Fail(op.FailNotFound, d.Inputs()[0], "input does not exist")
	case strings.Contains(out, "toolcrash"):
		return engine.Result{}, &op.Failure{Kind: op.FailExternalTool, Code: 3, Message: "ffmpeg exited with status 3"}
	}
	return engine.Result{Kind: d.Kind(), Outputs: []string{out}, Bytes: 42, Metrics: map[string]any{"width": 10}}, nil
}

func (stubRunner) Options() engine.Options {
	return engine.Options{OperationTimeout: time.Minute, BatchConcurrency: 2, MaxConcurrency: 4}
}

func newTestServer(t *testing.T) (*service.Service, http.Handler) {
	t.Helper()
	svc := service.New(stubRunner{}, jobs.NewRegistry())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return svc, New(svc, nil, Config{}).Handler()
}

func flipBody(output string) string {
	return `{"kind":"flip","input":"/in.png","output":"` + output + `","params":{"direction":"horizontal"}}`
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestSyncOperation(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/operations", flipBody("/out.png"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[engine.Result](t, rec)
	assert.Equal(t, op.KindFlip, res.Kind)
	assert.Equal(t, []string{"/out.png"}, res.Outputs)
	assert.EqualValues(t, 42, res.Bytes)
}

func TestOperationFailureMapping(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
		wantExit int
	}{
		{"not found", flipBody("/missing.png"), http.StatusNotFound, "not_found", 0},
		{"tool failure carries exit code", flipBody("/toolcrash.png"), http.StatusBadGateway, "external_tool_error", 3},
		{"invalid parameter", `{"kind":"flip","input":"/in.png","output":"/o.png","params":{"direction":"diagonal"}}`,
			http.StatusUnprocessableEntity, "invalid_parameter", 0},
		{"unknown kind", `{"kind":"sharpen","input":"/in.png","output":"/o.png"}`, http.StatusUnprocessableEntity, "invalid_parameter", 0},
		{"malformed json", `{"kind":`, http.StatusBadRequest, kindBadRequest, 0},
		{"unknown field", `{"kind":"flip","bogus":1}`, http.StatusBadRequest, kindBadRequest, 0},
		{"trailing data", flipBody("/out.png") + `{}`, http.StatusBadRequest, kindBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/operations", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decode[ErrorBody](t, rec)
			assert.Equal(t, tt.wantKind, body.Kind)
			assert.Equal(t, tt.wantExit, body.Code)
			assert.NotEmpty(t, body.Message)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestAsyncOperationAndStatus(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/operations?async=true", flipBody("/out.png"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	acc := decode[Accepted](t, rec)
	require.NotEmpty(t, acc.JobID)
	assert.Equal(t, acc.StatusURL, rec.Header().Get("Location"))

	rec = do(t, h, http.MethodGet, acc.StatusURL+"?wait=5s", "")
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[JobView](t, rec)
	assert.Equal(t, "succeeded", job.State)
	assert.Equal(t, 100.0, job.Progress)
	require.NotNil(t, job.Result)
	require.NotNil(t, job.Operation)
	assert.Equal(t, "/out.png", job.Operation.Output)
	assert.Nil(t, job.Failure)
}

func TestWaitReturnsSnapshotWhenElapsed(t *testing.T) {
	_, h := newTestServer(t)

	acc := decode[Accepted](t, do(t, h, http.MethodPost, "/api/v1/operations?async=true", flipBody("/slow.png")))
	rec := do(t, h, http.MethodGet, acc.StatusURL+"?wait=50ms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[JobView](t, rec).CompletedAt)

	rec = do(t, h, http.MethodGet, acc.StatusURL+"?wait=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJob(t *testing.T) {
	_, h := newTestServer(t)

	acc := decode[Accepted](t, do(t, h, http.MethodPost, "/api/v1/operations?async=true", flipBody("/slow.png")))
	rec := do(t, h, http.MethodDelete, acc.StatusURL, "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	job := decode[JobView](t, do(t, h, http.MethodGet, acc.StatusURL+"?wait=5s", ""))
	assert.Equal(t, "cancelled", job.State)
	require.NotNil(t, job.Failure)
	assert.Equal(t, op.FailCancelled, job.Failure.Kind)

	rec = do(t, h, http.MethodDelete, acc.StatusURL, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, kindJobFinished, decode[ErrorBody](t, rec).Kind)

	rec = do(t, h, http.MethodDelete, "/api/v1/jobs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncBatchReportsPerItem(t *testing.T) {
	_, h := newTestServer(t)

	body := `{"limit":2,"operations":[` + flipBody("/a.png") + `,` + flipBody("/missing.png") + `,` + flipBody("/c.png") + `]}`
	rec := do(t, h, http.MethodPost, "/api/v1/batches", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[engine.BatchReport](t, rec)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.NotNil(t, report.Items[1].Failure)
	assert.Equal(t, op.FailNotFound, report.Items[1].Failure.Kind)
}

func TestAsyncBatch(t *testing.T) {
	_, h := newTestServer(t)

	body := `{"operations":[` + flipBody("/a.png") + `,` + flipBody("/b.png") + `]}`
	rec := do(t, h, http.MethodPost, "/api/v1/batches?async=1", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	acc := decode[Accepted](t, rec)

	job := decode[JobView](t, do(t, h, http.MethodGet, acc.StatusURL+"?wait=5s", ""))
	assert.True(t, job.Batch)
	assert.Equal(t, 2, job.Items)
	assert.Equal(t, "succeeded", job.State)
	require.NotNil(t, job.Report)
	assert.Equal(t, 2, job.Report.Succeeded)
}

func TestBatchRejectsBadItems(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/batches", `{"operations":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := `{"operations":[` + flipBody("/a.png") + `,{"kind":"flip","input":"/in.png","output":"/b.png"}]}`
	rec = do(t, h, http.MethodPost, "/api/v1/batches", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[ErrorBody](t, rec).Message, "operations[1]")
}

func TestListJobsFilters(t *testing.T) {
	svc, h := newTestServer(t)

	_, err := svc.Run(context.Background(), mustFlip(t, "/one.png"))
	require.NoError(t, err)
	_, err = svc.Run(context.Background(), mustFlip(t, "/missing.png"))
	require.Error(t, err)

	all := decode[JobList](t, do(t, h, http.MethodGet, "/api/v1/jobs", ""))
	assert.Len(t, all.Jobs, 2)

	failed := decode[JobList](t, do(t, h, http.MethodGet, "/api/v1/jobs?state=failed", ""))
	require.Len(t, failed.Jobs, 1)
	assert.Equal(t, op.FailNotFound, failed.Jobs[0].Failure.Kind)

	rec := do(t, h, http.MethodGet, "/api/v1/jobs?state=exploded", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/jobs?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProbeAndMetricsEndpoints(t *testing.T) {
	_, h := newTestServer(t)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mediaops_")
}

func TestStatusFor(t *testing.T) {
	want := map[op.FailureKind]int{
		op.FailNotFound:          404,
		op.FailUnreadable:        403,
		op.FailUnsupportedFormat: 415,
		op.FailPathConflict:      409,
		op.FailNotWritable:       403,
		op.FailInvalidParameter:  422,
		op.FailTimeout:           504,
		op.FailEmptyOutput:       502,
		op.FailExternalTool:      502,
		op.FailResourceExhausted: 507,
		op.FailCancelled:         499,
		op.FailInternal:          500,
	}
	for kind, code := range want {
		assert.Equal(t, code, StatusFor(kind), kind)
	}
}

func mustFlip(t *testing.T, output string) op.Descriptor {
	t.Helper()
	d, err := op.NewFlip(op.Target{Input: "/in.png", Output: output}, op.FlipParams{Direction: op.FlipHorizontal})
	require.NoError(t, err)
	return d
}
