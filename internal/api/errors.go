// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/mediaops/internal/jobs"
	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/ManuGH/mediaops/internal/service"
)

// statusClientClosedRequest is the de facto code for requests whose work
// was cancelled before completion.
const statusClientClosedRequest = 499

// API-level error kinds that are not operation failures.
const (
	kindBadRequest  = "bad_request"
	kindUnknownJob  = "unknown_job"
	kindJobFinished = "job_finished"
	kindUnavailable = "unavailable"
)

// ErrorBody is the JSON shape of every error response. Code carries the
// exit status of a failed external tool.
type ErrorBody struct {
	Kind      string `json:"kind"`
	Code      int    `json:"code,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusFor maps a failure kind onto its HTTP status.
func StatusFor(kind op.FailureKind) int {
	switch kind {
	case op.FailNotFound:
		return http.StatusNotFound
	case op.FailUnreadable, op.FailNotWritable:
		return http.StatusForbidden
	case op.FailUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case op.FailPathConflict:
		return http.StatusConflict
	case op.FailInvalidParameter:
		return http.StatusUnprocessableEntity
	case op.FailTimeout:
		return http.StatusGatewayTimeout
	case op.FailExternalTool, op.FailEmptyOutput:
		return http.StatusBadGateway
	case op.FailResourceExhausted:
		return http.StatusInsufficientStorage
	case op.FailCancelled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, code int, body ErrorBody) {
	body.RequestID = log.RequestIDFromContext(r.Context())
	writeJSON(w, code, body)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeProblem(w, r, http.StatusBadRequest, ErrorBody{Kind: kindBadRequest, Message: msg})
}

// writeError classifies err and writes the matching response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jobs.ErrUnknownJob):
		writeProblem(w, r, http.StatusNotFound, ErrorBody{Kind: kindUnknownJob, Message: err.Error()})
		return
	case errors.Is(err, service.ErrJobFinished):
		writeProblem(w, r, http.StatusConflict, ErrorBody{Kind: kindJobFinished, Message: err.Error()})
		return
	case errors.Is(err, service.ErrClosed):
		writeProblem(w, r, http.StatusServiceUnavailable, ErrorBody{Kind: kindUnavailable, Message: err.Error()})
		return
	}

	f := op.AsFailure(err)
	code := StatusFor(f.Kind)
	if code >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "request.failed").
			Str(log.FieldFailure, string(f.Kind)).
			Int("status", code).
			Msg("request failed")
	}
	writeProblem(w, r, code, ErrorBody{Kind: string(f.Kind), Code: f.Code, Message: f.Error()})
}
