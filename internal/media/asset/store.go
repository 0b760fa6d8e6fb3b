// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package asset abstracts where media files live: the local filesystem or
// an S3-compatible bucket.
package asset

import (
	"context"
	"io"
	"time"

	"github.com/ManuGH/mediaops/internal/media/op"
)

// Info is the metadata view of a stored asset.
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Store is the asset I/O capability used by validation and finalisation.
// Missing assets are reported with an error wrapping fs.ErrNotExist.
type Store interface {
	Stat(ctx context.Context, path string) (Info, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Write stores r at path, honouring policy.
	Write(ctx context.Context, path string, r io.Reader, size int64, policy op.OverwritePolicy) error
	// Replace moves the local file src to dst atomically, honouring policy.
	Replace(ctx context.Context, src, dst string, policy op.OverwritePolicy) error
}
