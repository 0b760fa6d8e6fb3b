// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/mediaops/internal/jobs"
	"github.com/ManuGH/mediaops/internal/jobs/fsm"
	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/media/op"
)

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, r, http.StatusRequestEntityTooLarge, ErrorBody{Kind: kindBadRequest, Message: "request body too large"})
			return false
		}
		writeBadRequest(w, r, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if _, err := dec.Token(); err != io.EOF {
		writeBadRequest(w, r, "request body must contain a single JSON object")
		return false
	}
	return true
}

func isAsync(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("async")
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func (s *Server) accepted(w http.ResponseWriter, id string) {
	url := "/api/v1/jobs/" + id
	w.Header().Set("Location", url)
	writeJSON(w, http.StatusAccepted, Accepted{JobID: id, StatusURL: url})
}

// handleOperation runs one operation, synchronously unless ?async=true.
func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	async, err := isAsync(r)
	if err != nil {
		writeBadRequest(w, r, "async must be a boolean")
		return
	}
	var req OperationRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	d, err := op.Decode(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if async {
		id, err := s.svc.Submit(d)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.accepted(w, id)
		return
	}

	res, err := s.svc.Run(r.Context(), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBatch runs a batch. Items that do not decode reject the whole
// request so that indices in the report always match the submitted order.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	async, err := isAsync(r)
	if err != nil {
		writeBadRequest(w, r, "async must be a boolean")
		return
	}
	var req BatchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Operations) == 0 {
		writeError(w, r, op.Invalid("batch must contain at least one operation"))
		return
	}
	descs := make([]op.Descriptor, len(req.Operations))
	for i, item := range req.Operations {
		d, err := op.Decode(item)
		if err != nil {
			f := op.AsFailure(err)
			f.Message = fmt.Sprintf("operations[%d]: %s", i, f.Message)
			writeError(w, r, f)
			return
		}
		descs[i] = d
	}

	if async {
		id, err := s.svc.SubmitBatch(descs, req.Limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.accepted(w, id)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.RunBatch(r.Context(), descs, req.Limit))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f jobs.Filter
	if raw := q.Get("state"); raw != "" {
		st, ok := fsm.ParseState(raw)
		if !ok {
			writeBadRequest(w, r, fmt.Sprintf("unknown state %q", raw))
			return
		}
		f.State = st
	}
	if raw := q.Get("kind"); raw != "" {
		k, ok := op.ParseKind(raw)
		if !ok {
			writeBadRequest(w, r, fmt.Sprintf("unknown kind %q", raw))
			return
		}
		f.Kind = k
	}
	if raw := q.Get("batch"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, r, "batch must be a boolean")
			return
		}
		f.Batch = &b
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, r, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	list := s.svc.List(f)
	out := JobList{Jobs: make([]JobView, 0, len(list))}
	for _, j := range list {
		out.Jobs = append(out.Jobs, viewOf(j))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetJob returns a job snapshot. With ?wait=<duration> it blocks
// until the job is terminal or the wait elapses, then returns the latest
// snapshot either way.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		j, err := s.svc.Status(id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(j))
		return
	}

	wait, err := time.ParseDuration(raw)
	if err != nil || wait < 0 {
		writeBadRequest(w, r, "wait must be a non-negative duration")
		return
	}
	wait = min(wait, s.cfg.MaxWait)

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	j, err := s.svc.Wait(ctx, id)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(j))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.Cancel(id); err != nil {
		writeError(w, r, err)
		return
	}
	logger := log.WithContext(r.Context(), s.logger)
	logger.Info().Str(log.FieldEvent, "job.cancel").Str(log.FieldJobID, id).Msg("job cancellation requested via API")

	j, err := s.svc.Status(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(j))
}
