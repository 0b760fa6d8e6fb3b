// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/mediaops/internal/media/op"
)

// Local is a Store backed by the local filesystem.
type Local struct{}

// NewLocal returns the local filesystem store.
func NewLocal() *Local { return &Local{} }

var _ Store = (*Local)(nil)

func (*Local) Stat(_ context.Context, path string) (Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	return Info{Path: path, Size: fi.Size(), ModTime: fi.ModTime(), IsDir: fi.IsDir()}, nil
}

func (*Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path) // #nosec G304 -- paths are validated by the caller
}

// Write streams r into path through a pending file that is renamed into
// place only after a successful fsync. The overwrite check and the rename
// happen under a lock on the path, so of two writers forbidding overwrite
// exactly one succeeds.
func (l *Local) Write(ctx context.Context, path string, r io.Reader, _ int64, policy op.OverwritePolicy) error {
	unlock := pathLocks.lock(PathKey(path))
	defer unlock()

	if err := checkOverwrite(path, policy); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return writeAtomic(ctx, path, r)
}

// Replace copies src into dst atomically. src is left in place; it lives in
// a scratch area that is removed by its owner.
func (l *Local) Replace(ctx context.Context, src, dst string, policy op.OverwritePolicy) error {
	f, err := os.Open(src) // #nosec G304 -- scratch path
	if err != nil {
		return fmt.Errorf("open staged output: %w", err)
	}
	defer func() { _ = f.Close() }()
	return l.Write(ctx, dst, f, -1, policy)
}

func checkOverwrite(path string, policy op.OverwritePolicy) error {
	if policy == op.OverwriteAllow {
		return nil
	}
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return op.Fail(op.FailPathConflict, path, "output exists and overwrite is forbidden")
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("stat output: %w", err)
	}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// PathKey returns the comparison key for a local path: absolute, cleaned and
// NFC-normalised so visually identical names collide.
func PathKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return norm.NFC.String(filepath.Clean(path))
}

// pathLocks serialises writers per destination. The filesystem is shared by
// every Local in the process, so the table is too.
var pathLocks = &keyedMutex{locks: make(map[string]*refMutex)}

type refMutex struct {
	sync.Mutex
	refs int
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
