// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediaops/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.API.ListenAddr = "127.0.0.1:0"
	cfg.API.RateLimitRPM = 0
	cfg.Engine.ScratchDir = filepath.Join(t.TempDir(), "scratch")
	cfg.FFmpeg.Bin = filepath.Join(t.TempDir(), "no-ffmpeg")
	cfg.FFmpeg.FFprobeBin = filepath.Join(t.TempDir(), "no-ffprobe")
	return cfg
}

func TestNewRequiresHolder(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingHolder)
}

func TestRunServesAndShutsDown(t *testing.T) {
	holder := config.NewHolder(testConfig(t), config.NewLoader(""))
	app, err := New(context.Background(), holder)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return app.Addr() != nil }, 5*time.Second, 10*time.Millisecond)
	base := "http://" + app.Addr().String()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(base + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "missing ffmpeg makes the daemon unready")

	assert.ErrorIs(t, app.Run(ctx), ErrAlreadyStarted)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestApplyUpdatesEngineLimits(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(context.Background(), config.NewHolder(cfg, config.NewLoader("")))
	require.NoError(t, err)

	cfg.Engine.OperationTimeout = 42 * time.Second
	cfg.Engine.MaxConcurrency = 2
	cfg.Engine.BatchConcurrency = 1
	app.apply(cfg)

	opts := app.executor.Options()
	assert.Equal(t, 42*time.Second, opts.OperationTimeout)
	assert.Equal(t, 2, opts.MaxConcurrency)
	assert.Equal(t, 1, opts.BatchConcurrency)
}

func TestShutdownHooksRunInReverse(t *testing.T) {
	app, err := New(context.Background(), config.NewHolder(testConfig(t), config.NewLoader("")))
	require.NoError(t, err)

	var order []string
	app.RegisterShutdownHook("first", func(context.Context) error { order = append(order, "first"); return nil })
	app.RegisterShutdownHook("second", func(context.Context) error { order = append(order, "second"); return nil })

	require.NoError(t, app.shutdown(context.Background()))
	assert.Equal(t, []string{"second", "first"}, order)
}
