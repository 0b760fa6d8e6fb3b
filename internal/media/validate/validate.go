// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate checks input and output paths before any work starts.
package validate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/mediaops/internal/media/asset"
	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/gabriel-vasile/mimetype"
)

// MediaHandle describes a validated input.
type MediaHandle struct {
	Path      string
	Size      int64
	MIME      string
	Extension string
	Class     op.MediaClass
	ModTime   time.Time
}

// Image types the raster backend can decode.
var imageMIMEs = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/tiff": true,
	"image/bmp":  true,
}

// Validator is stateless apart from its store.
type Validator struct {
	store asset.Store
}

// New returns a validator reading metadata through store.
func New(store asset.Store) *Validator {
	return &Validator{store: store}
}

// Input checks that path exists, is readable, and sniffs as one of the
// classes in accept.
func (v *Validator) Input(ctx context.Context, path string, accept op.MediaClass) (MediaHandle, error) {
	if path == "" {
		return MediaHandle{}, op.Invalid("input path is required")
	}
	info, err := v.store.Stat(ctx, path)
	if err != nil {
		return MediaHandle{}, inputFailure(path, err)
	}
	if info.IsDir {
		return MediaHandle{}, op.Fail(op.FailUnreadable, path, "input is a directory")
	}

	rc, err := v.store.Open(ctx, path)
	if err != nil {
		return MediaHandle{}, inputFailure(path, err)
	}
	mt, err := mimetype.DetectReader(rc)
	_ = rc.Close()
	if err != nil {
		return MediaHandle{}, inputFailure(path, err)
	}

	mimeType := baseType(mt.String())
	class := classify(mimeType)
	if class == 0 || !accept.Has(class) {
		return MediaHandle{}, op.Fail(op.FailUnsupportedFormat, path,
			"content type %s is not a supported %s format", mimeType, accept)
	}

	return MediaHandle{
		Path:      path,
		Size:      info.Size,
		MIME:      mimeType,
		Extension: mt.Extension(),
		Class:     class,
		ModTime:   info.ModTime,
	}, nil
}

// Output prepares the parent directory of path and checks that the final
// rename will be allowed.
func (v *Validator) Output(_ context.Context, path string, policy op.OverwritePolicy) error {
	if path == "" {
		return op.Invalid("output path is required")
	}
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return op.Wrap(op.FailNotWritable, parent, err)
	}

	fi, err := os.Lstat(path)
	switch {
	case err == nil && fi.IsDir():
		return op.Fail(op.FailPathConflict, path, "output path is a directory")
	case err == nil && policy == op.OverwriteForbid:
		return op.Fail(op.FailPathConflict, path, "output exists and overwrite is forbidden")
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return op.Wrap(op.FailNotWritable, path, err)
	}

	probe, err := os.CreateTemp(parent, ".mediaops-probe-*")
	if err != nil {
		return op.Wrap(op.FailNotWritable, parent, err)
	}
	name := probe.Name()
	_ = probe.Close()
	if err := os.Remove(name); err != nil {
		return op.Wrap(op.FailNotWritable, parent, fmt.Errorf("remove write probe: %w", err))
	}
	return nil
}

func inputFailure(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return op.Wrap(op.FailNotFound, path, err)
	case errors.Is(err, fs.ErrPermission):
		return op.Wrap(op.FailUnreadable, path, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return op.AsFailure(err)
	default:
		return op.Wrap(op.FailUnreadable, path, err)
	}
}

func baseType(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.TrimSpace(strings.ToLower(m))
}

// classify maps a sniffed MIME type onto a media class; 0 means unsupported.
func classify(m string) op.MediaClass {
	switch {
	case imageMIMEs[m]:
		return op.ClassImage
	case strings.HasPrefix(m, "video/"), m == "application/vnd.rn-realmedia":
		return op.ClassVideo
	case strings.HasPrefix(m, "audio/"), m == "application/ogg":
		return op.ClassAudio
	default:
		return 0
	}
}
