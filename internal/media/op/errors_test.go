// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package op

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureMatchesSentinel(t *testing.T) {
	f := Fail(FailPathConflict, "/out/a.jpg", "output exists")
	wrapped := fmt.Errorf("batch item 3: %w", f)

	assert.ErrorIs(t, wrapped, ErrPathConflict)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, "path_conflict: /out/a.jpg: output exists", f.Error())
}

func TestFailureUnwrapsCause(t *testing.T) {
	cause := errors.New("disk on fire")
	f := Wrap(FailInternal, "", cause)
	assert.ErrorIs(t, f, cause)
	assert.ErrorIs(t, f, ErrInternal)
}

func TestAsFailureClassification(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{context.DeadlineExceeded, FailTimeout},
		{fmt.Errorf("run: %w", context.Canceled), FailCancelled},
		{fmt.Errorf("write: %w", syscall.ENOSPC), FailResourceExhausted},
		{errors.New("boom"), FailInternal},
		{Fail(FailEmptyOutput, "/x", "0 bytes"), FailEmptyOutput},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AsFailure(tt.err).Kind, tt.err.Error())
	}
	assert.Nil(t, AsFailure(nil))
}

func TestValidationKinds(t *testing.T) {
	assert.True(t, FailNotWritable.IsValidation())
	assert.False(t, FailTimeout.IsValidation())
}

func TestMediaClass(t *testing.T) {
	assert.True(t, KindCompress.Accepts().Has(ClassVideo))
	assert.False(t, KindResize.Accepts().Has(ClassAudio))
	assert.Equal(t, "any", ClassAny.String())
	assert.Equal(t, "video|audio", (ClassVideo | ClassAudio).String())
}
