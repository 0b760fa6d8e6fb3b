// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !windows

package asset

import (
	"context"
	"fmt"
	"io"

	"github.com/ManuGH/mediaops/internal/log"
	"github.com/google/renameio/v2"
)

// writeAtomic gives atomic + durable writes: fsync before rename.
func writeAtomic(ctx context.Context, path string, r io.Reader) error {
	logger := log.FromContext(ctx)

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Str(log.FieldPath, path).Msg("cleanup pending file")
		}
	}()

	if _, err := io.Copy(pending, ctxReader{ctx: ctx, r: r}); err != nil {
		return fmt.Errorf("write pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}
