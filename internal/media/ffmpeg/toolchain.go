// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg drives the ffmpeg and ffprobe binaries for video and audio
// operations.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/ManuGH/mediaops/internal/media/op"
)

const failureLines = 8

// Toolchain runs ffmpeg and ffprobe. It is stateless and safe for
// concurrent use.
type Toolchain struct {
	ffmpeg  string
	ffprobe string
	grace   time.Duration
}

// New returns a Toolchain. Empty binary names default to the PATH lookup of
// "ffmpeg" and "ffprobe".
func New(ffmpegBin, ffprobeBin string, grace time.Duration) *Toolchain {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Toolchain{ffmpeg: ffmpegBin, ffprobe: ffprobeBin, grace: grace}
}

// Check verifies both binaries resolve.
func (t *Toolchain) Check(context.Context) error {
	var errs []error
	for _, bin := range []string{t.ffmpeg, t.ffprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", bin, err))
		}
	}
	return errors.Join(errs...)
}

// Transcode converts container and codecs.
func (t *Toolchain) Transcode(ctx context.Context, src, dst string, d op.Transcode, progress ProgressFunc) error {
	return t.encode(ctx, src, TranscodeArgs(src, dst, d), progress)
}

// ExtractAudio writes the audio track of src to dst.
func (t *Toolchain) ExtractAudio(ctx context.Context, src, dst string, d op.ExtractAudio, progress ProgressFunc) error {
	return t.encode(ctx, src, ExtractAudioArgs(src, dst, d), progress)
}

// NormalizeAudio writes a loudness-normalised copy of src's audio to dst.
func (t *Toolchain) NormalizeAudio(ctx context.Context, src, dst string, d op.NormalizeAudio, progress ProgressFunc) error {
	return t.encode(ctx, src, NormalizeAudioArgs(src, dst, d), progress)
}

// CompressVideo re-encodes src at the descriptor's CRF.
func (t *Toolchain) CompressVideo(ctx context.Context, src, dst string, d op.Compress, progress ProgressFunc) error {
	return t.encode(ctx, src, CompressVideoArgs(src, dst, d.Output(), d), progress)
}

// Probe reads container and stream metadata.
func (t *Toolchain) Probe(ctx context.Context, path string) (ProbeInfo, error) {
	var out bytes.Buffer
	if err := t.run(ctx, "ffprobe", t.ffprobe, ProbeArgs(path), &out, path); err != nil {
		return ProbeInfo{}, err
	}
	info, err := ParseProbe(out.Bytes())
	if err != nil {
		return ProbeInfo{}, op.Wrap(op.FailExternalTool, path, err)
	}
	return info, nil
}

func (t *Toolchain) encode(ctx context.Context, src string, args []string, progress ProgressFunc) error {
	var stdout io.Writer = io.Discard
	if progress != nil {
		var total time.Duration
		// Progress is best effort; a probe failure surfaces again from ffmpeg.
		if info, err := t.Probe(ctx, src); err == nil {
			total = info.Duration
		} else if ctx.Err() != nil {
			return contextFailure(ctx, src)
		}
		stdout = newProgressWriter(total, progress)
	}
	return t.run(ctx, "ffmpeg", t.ffmpeg, args, stdout, src)
}

func (t *Toolchain) run(ctx context.Context, tool, bin string, args []string, stdout io.Writer, path string) error {
	if ctx.Err() != nil {
		return contextFailure(ctx, path)
	}
	p := NewProcess(tool, bin, args, stdout, t.grace)
	if err := p.Start(); err != nil {
		return op.Wrap(op.FailExternalTool, path, err)
	}
	err := p.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return contextFailure(ctx, path)
	}
	f := &op.Failure{
		Kind: op.FailExternalTool,
		Code: p.ExitCode(),
		Path: path,
		Err:  err,
	}
	if lines := p.Stderr(failureLines); len(lines) > 0 {
		f.Message = strings.Join(lines, "\n")
	} else {
		f.Message = fmt.Sprintf("%s exited: %v", tool, err)
	}
	return f
}

func contextFailure(ctx context.Context, path string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return op.Wrap(op.FailTimeout, path, ctx.Err())
	}
	return op.Wrap(op.FailCancelled, path, ctx.Err())
}
