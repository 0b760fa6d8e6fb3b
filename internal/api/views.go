// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"time"

	"github.com/ManuGH/mediaops/internal/engine"
	"github.com/ManuGH/mediaops/internal/jobs"
	"github.com/ManuGH/mediaops/internal/media/op"
)

// OperationRequest is the body of POST /api/v1/operations.
type OperationRequest = op.Request

// BatchRequest is the body of POST /api/v1/batches. Limit <= 0 selects the
// configured batch concurrency.
type BatchRequest struct {
	Operations []op.Request `json:"operations"`
	Limit      int          `json:"limit,omitempty"`
}

// Accepted is returned for asynchronous submissions.
type Accepted struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

// JobView is the wire form of a job snapshot.
type JobView struct {
	ID          string              `json:"id"`
	Kind        op.Kind             `json:"kind,omitempty"`
	Batch       bool                `json:"batch"`
	Items       int                 `json:"items"`
	State       string              `json:"state"`
	Progress    float64             `json:"progress"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Operation   *op.Request         `json:"operation,omitempty"`
	Result      *engine.Result      `json:"result,omitempty"`
	Report      *engine.BatchReport `json:"report,omitempty"`
	Failure     *op.Failure         `json:"failure,omitempty"`
}

// JobList is the body of GET /api/v1/jobs.
type JobList struct {
	Jobs []JobView `json:"jobs"`
}

func viewOf(j jobs.Job) JobView {
	v := JobView{
		ID:          j.ID,
		Kind:        j.Kind,
		Batch:       j.Batch,
		Items:       j.Items,
		State:       string(j.State),
		Progress:    j.Progress,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
		Report:      j.Report,
		Failure:     j.Failure,
	}
	if j.Descriptor != nil {
		req := op.Encode(j.Descriptor)
		v.Operation = &req
	}
	return v
}
