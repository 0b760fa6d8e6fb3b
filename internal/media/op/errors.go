// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package op

import (
	"context"
	"errors"
	"fmt"
	"syscall"
)

// FailureKind classifies why an operation did not produce its output.
type FailureKind string

// Validation failures.
const (
	FailNotFound          FailureKind = "not_found"
	FailUnreadable        FailureKind = "unreadable"
	FailUnsupportedFormat FailureKind = "unsupported_format"
	FailPathConflict      FailureKind = "path_conflict"
	FailNotWritable       FailureKind = "not_writable"
	FailInvalidParameter  FailureKind = "invalid_parameter"
)

// Execution failures.
const (
	FailTimeout           FailureKind = "timeout"
	FailEmptyOutput       FailureKind = "empty_output"
	FailExternalTool      FailureKind = "external_tool_error"
	FailResourceExhausted FailureKind = "resource_exhausted"
	FailCancelled         FailureKind = "cancelled"
	FailInternal          FailureKind = "internal"
)

// Sentinels matched by errors.Is against any *Failure of the same kind.
var (
	ErrNotFound          = errors.New("asset not found")
	ErrUnreadable        = errors.New("asset unreadable")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrPathConflict      = errors.New("output path conflict")
	ErrNotWritable       = errors.New("output not writable")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrTimeout           = errors.New("operation timed out")
	ErrEmptyOutput       = errors.New("empty output")
	ErrExternalTool      = errors.New("external tool error")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrCancelled         = errors.New("operation cancelled")
	ErrInternal          = errors.New("internal error")
)

var sentinels = map[FailureKind]error{
	FailNotFound:          ErrNotFound,
	FailUnreadable:        ErrUnreadable,
	FailUnsupportedFormat: ErrUnsupportedFormat,
	FailPathConflict:      ErrPathConflict,
	FailNotWritable:       ErrNotWritable,
	FailInvalidParameter:  ErrInvalidParameter,
	FailTimeout:           ErrTimeout,
	FailEmptyOutput:       ErrEmptyOutput,
	FailExternalTool:      ErrExternalTool,
	FailResourceExhausted: ErrResourceExhausted,
	FailCancelled:         ErrCancelled,
	FailInternal:          ErrInternal,
}

// IsValidation reports whether k is raised before any work starts.
func (k FailureKind) IsValidation() bool {
	switch k {
	case FailNotFound, FailUnreadable, FailUnsupportedFormat, FailPathConflict,
		FailNotWritable, FailInvalidParameter:
		return true
	}
	return false
}

// Failure is the typed error returned by every operation boundary.
// Code carries the exit code for external tool errors.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Code    int         `json:"code,omitempty"`
	Message string      `json:"message"`
	Path    string      `json:"path,omitempty"`
	Err     error       `json:"-"`
}

func (f *Failure) Error() string {
	msg := f.Message
	if msg == "" && f.Err != nil {
		msg = f.Err.Error()
	}
	if f.Path != "" {
		return fmt.Sprintf("%s: %s: %s", f.Kind, f.Path, msg)
	}
	return fmt.Sprintf("%s: %s", f.Kind, msg)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches the per-kind sentinel.
func (f *Failure) Is(target error) bool {
	s, ok := sentinels[f.Kind]
	return ok && s == target
}

// Fail builds a failure with a formatted message.
func Fail(kind FailureKind, path, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a failure around a cause.
func Wrap(kind FailureKind, path string, err error) *Failure {
	f := &Failure{Kind: kind, Path: path, Err: err}
	if err != nil {
		f.Message = err.Error()
	}
	return f
}

// Invalid is shorthand for an InvalidParameter failure.
func Invalid(format string, args ...any) *Failure {
	return Fail(FailInvalidParameter, "", format, args...)
}

// AsFailure converts any error into a *Failure. Context errors map to
// Timeout or Cancelled, disk and descriptor exhaustion to ResourceExhausted,
// everything else to Internal.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(FailTimeout, "", err)
	case errors.Is(err, context.Canceled):
		return Wrap(FailCancelled, "", err)
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
		return Wrap(FailResourceExhausted, "", err)
	default:
		return Wrap(FailInternal, "", err)
	}
}

// KindOf returns the failure kind carried by err, or "" for nil.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	return AsFailure(err).Kind
}
