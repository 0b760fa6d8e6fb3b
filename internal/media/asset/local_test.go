// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package asset

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalReplaceHonoursPolicy(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "staged.bin")
	dst := filepath.Join(dir, "nested", "out.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))

	store := NewLocal()
	require.NoError(t, store.Replace(ctx, src, dst, op.OverwriteForbid))

	info, err := store.Stat(ctx, dst)
	require.NoError(t, err)
	assert.EqualValues(t, 7, info.Size)

	err = store.Replace(ctx, src, dst, op.OverwriteForbid)
	require.Error(t, err)
	assert.ErrorIs(t, err, op.ErrPathConflict)

	require.NoError(t, os.WriteFile(src, []byte("second"), 0o600))
	require.NoError(t, store.Replace(ctx, src, dst, op.OverwriteAllow))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	leftovers, err := filepath.Glob(filepath.Join(dir, "nested", ".*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "no pending temp files remain")
}

func TestLocalWriteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dst := filepath.Join(t.TempDir(), "out.txt")

	err := NewLocal().Write(ctx, dst, strings.NewReader("data"), 4, op.OverwriteAllow)
	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(dst)
	assert.ErrorIs(t, statErr, fs.ErrNotExist)
}

func TestLocalOpenMissing(t *testing.T) {
	_, err := NewLocal().Open(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	rc, err := NewLocal().Open(context.Background(), os.Args[0])
	require.NoError(t, err)
	_, _ = io.CopyN(io.Discard, rc, 1)
	require.NoError(t, rc.Close())
}

func TestLocalConcurrentForbidSingleWinner(t *testing.T) {
	ctx := context.Background()
	dst := filepath.Join(t.TempDir(), "out.bin")
	store := NewLocal()

	const writers = 16
	var (
		wg        sync.WaitGroup
		won       atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := store.Write(ctx, dst, strings.NewReader(strings.Repeat("x", i+1)), -1, op.OverwriteForbid)
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, op.ErrPathConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, won.Load())
	assert.EqualValues(t, writers-1, conflicts.Load())
	assert.Empty(t, pathLocks.locks, "lock table is drained")
}

func TestPathKeyNormalises(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, PathKey(filepath.Join(dir, "caf\u00e9.png")), PathKey(filepath.Join(dir, "x", "..", "cafe\u0301.png")))
}
