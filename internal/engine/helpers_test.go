// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediaops/internal/media/asset"
	"github.com/ManuGH/mediaops/internal/media/ffmpeg"
	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/ManuGH/mediaops/internal/media/scratch"
)

// fakeTools stands in for ffmpeg. Each hook is optional; the default
// encoder writes a few bytes and the default probe reports 2s of h264.
type fakeTools struct {
	mu     sync.Mutex
	calls  int
	encode func(ctx context.Context, dst string, progress ffmpeg.ProgressFunc) error
	probe  func(ctx context.Context, path string) (ffmpeg.ProbeInfo, error)
}

func (f *fakeTools) run(ctx context.Context, dst string, progress ffmpeg.ProgressFunc) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.encode != nil {
		return f.encode(ctx, dst, progress)
	}
	if progress != nil {
		progress(50)
		progress(100)
	}
	return os.WriteFile(dst, []byte("encoded media"), 0o600)
}

func (f *fakeTools) Transcode(ctx context.Context, _, dst string, _ op.Transcode, progress ffmpeg.ProgressFunc) error {
	return f.run(ctx, dst, progress)
}

func (f *fakeTools) ExtractAudio(ctx context.Context, _, dst string, _ op.ExtractAudio, progress ffmpeg.ProgressFunc) error {
	return f.run(ctx, dst, progress)
}

func (f *fakeTools) CompressVideo(ctx context.Context, _, dst string, _ op.Compress, progress ffmpeg.ProgressFunc) error {
	return f.run(ctx, dst, progress)
}

func (f *fakeTools) NormalizeAudio(ctx context.Context, _, dst string, _ op.NormalizeAudio, progress ffmpeg.ProgressFunc) error {
	return f.run(ctx, dst, progress)
}

func (f *fakeTools) Probe(ctx context.Context, path string) (ffmpeg.ProbeInfo, error) {
	if f.probe != nil {
		return f.probe(ctx, path)
	}
	return ffmpeg.ProbeInfo{
		FormatName: "mov,mp4,m4a,3gp,3g2,mj2",
		Duration:   2 * time.Second,
		Streams: []ffmpeg.Stream{
			{CodecType: "video", CodecName: "h264", Width: 320, Height: 240, FrameRate: 25},
			{CodecType: "audio", CodecName: "aac", SampleRate: 44100, Channels: 2},
		},
	}, nil
}

type harness struct {
	exec    *Executor
	scratch *scratch.Manager
	tools   *fakeTools
	dir     string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	dir := t.TempDir()
	sm, err := scratch.NewManager(filepath.Join(dir, "scratch"))
	require.NoError(t, err)
	tools := &fakeTools{}
	exec, err := NewExecutor(Deps{Store: asset.NewLocal(), Scratch: sm, Tools: tools}, opts)
	require.NoError(t, err)
	return &harness{exec: exec, scratch: sm, tools: tools, dir: dir}
}

func (h *harness) path(name string) string { return filepath.Join(h.dir, name) }

// assertScratchEmpty checks that no scratch area survived.
func (h *harness) assertScratchEmpty(t *testing.T) {
	t.Helper()
	require.Zero(t, h.scratch.Active())
	entries, err := os.ReadDir(h.scratch.Root())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// writeMP4 writes an ISO BMFF header that sniffs as video/mp4.
func writeMP4(t *testing.T, path string) {
	t.Helper()
	header := []byte{
		0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
		'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
		'i', 's', 'o', 'm', 'm', 'p', '4', '1',
	}
	data := append(header, make([]byte, 1024)...)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func mustResize(t *testing.T, in, out string, overwrite op.OverwritePolicy) op.Descriptor {
	t.Helper()
	d, err := op.NewResize(op.Target{Input: in, Output: out, Overwrite: overwrite}, op.ResizeParams{Width: 32, Height: 32})
	require.NoError(t, err)
	return d
}

func mustTranscode(t *testing.T, in, out string) op.Descriptor {
	t.Helper()
	d, err := op.NewTranscode(op.Target{Input: in, Output: out}, op.TranscodeParams{Format: "mp4", VideoCodec: "h264"})
	require.NoError(t, err)
	return d
}
