// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/ManuGH/mediaops/internal/media/ffmpeg"
	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/ManuGH/mediaops/internal/media/raster"
	"github.com/ManuGH/mediaops/internal/media/scratch"
	"github.com/ManuGH/mediaops/internal/media/validate"
)

type transformOutput struct {
	// staged is the scratch file to finalise; empty when nothing is written.
	staged  string
	metrics map[string]any
}

type rasterFunc func(image.Image) (image.Image, error)

func (e *Executor) dispatch(ctx context.Context, desc op.Descriptor, in []validate.MediaHandle, area *scratch.Area, progress *stageReporter) (transformOutput, error) {
	src := in[0]
	same := raster.FormatFor(desc.Output(), raster.FormatFromMIME(src.MIME))

	switch d := desc.(type) {
	case op.Resize:
		p := d.Params()
		return e.runRaster(ctx, src, d.Output(), area, progress, same, p.Quality, func(img image.Image) (image.Image, error) {
			return raster.Resize(img, p), nil
		})
	case op.Rotate:
		angle := d.Params().Angle
		return e.runRaster(ctx, src, d.Output(), area, progress, same, op.DefaultQuality, func(img image.Image) (image.Image, error) {
			return raster.Rotate(img, angle), nil
		})
	case op.Crop:
		return e.runRaster(ctx, src, d.Output(), area, progress, same, op.DefaultQuality, func(img image.Image) (image.Image, error) {
			return raster.Crop(img, d.Params())
		})
	case op.Flip:
		dir := d.Params().Direction
		return e.runRaster(ctx, src, d.Output(), area, progress, same, op.DefaultQuality, func(img image.Image) (image.Image, error) {
			return raster.Flip(img, dir), nil
		})
	case op.Filter:
		return e.runRaster(ctx, src, d.Output(), area, progress, same, op.DefaultQuality, func(img image.Image) (image.Image, error) {
			return raster.Filter(img, d), nil
		})
	case op.Effect:
		p := d.Params()
		return e.runRaster(ctx, src, d.Output(), area, progress, same, op.DefaultQuality, func(img image.Image) (image.Image, error) {
			return raster.Effect(img, p), nil
		})
	case op.Watermark:
		p := d.Params()
		var mark image.Image
		if p.Image != "" {
			m, err := raster.Open(p.Image)
			if err != nil {
				return transformOutput{}, err
			}
			mark = m
		} else {
			mark = raster.TextMark(p.Text)
		}
		return e.runRaster(ctx, src, d.Output(), area, progress, same, op.DefaultQuality, func(img image.Image) (image.Image, error) {
			return raster.Watermark(img, mark, p), nil
		})
	case op.Thumbnail:
		p := d.Params()
		return e.runRaster(ctx, src, d.Output(), area, progress, same, op.DefaultQuality, func(img image.Image) (image.Image, error) {
			return raster.Thumbnail(img, p.Width, p.Height), nil
		})
	case op.ConvertFormat:
		p := d.Params()
		out, err := e.runRaster(ctx, src, d.Output(), area, progress, raster.ImagingFormat(p.Format), p.Quality, func(img image.Image) (image.Image, error) {
			return img, nil
		})
		if err == nil {
			out.metrics["source_format"] = src.MIME
		}
		return out, err
	case op.Compress:
		return e.compress(ctx, d, src, area, progress)
	case op.Transcode:
		return e.runTool(ctx, d.Output(), area, func(dst string) error {
			return e.tools.Transcode(ctx, src.Path, dst, d, progress.tool())
		})
	case op.ExtractAudio:
		return e.runTool(ctx, d.Output(), area, func(dst string) error {
			return e.tools.ExtractAudio(ctx, src.Path, dst, d, progress.tool())
		})
	case op.NormalizeAudio:
		return e.runTool(ctx, d.Output(), area, func(dst string) error {
			return e.tools.NormalizeAudio(ctx, src.Path, dst, d, progress.tool())
		})
	case op.ExtractMetadata:
		return e.extractMetadata(ctx, d, src, area)
	case op.Enhance:
		mode := d.Params().Mode
		out, err := e.runRaster(ctx, src, d.Output(), area, progress, same, op.DefaultQuality, func(img image.Image) (image.Image, error) {
			return raster.Enhance(img, mode), nil
		})
		if err == nil {
			out.metrics["mode"] = string(mode)
		}
		return out, err
	case op.AssessQuality:
		return e.assessQuality(ctx, d, src, area, progress)
	case op.OptimizeWeb:
		return e.optimizeWeb(ctx, d, src, area, progress)
	default:
		return transformOutput{}, op.Fail(op.FailInternal, "", "no executor for descriptor %T", desc)
	}
}

// runRaster decodes src, applies fn and encodes the result into the scratch
// area.
func (e *Executor) runRaster(ctx context.Context, src validate.MediaHandle, output string, area *scratch.Area, progress *stageReporter,
	format imaging.Format, quality int, fn rasterFunc) (transformOutput, error) {
	return onWorker(ctx, src.Path, area, progress, func() (transformOutput, error) {
		return rasterStages(ctx, src, output, area, progress, format, quality, fn)
	})
}

// onWorker runs pixel work, which cannot be interrupted, on a goroutine that
// holds the area. The call returns as soon as ctx ends; the area is removed
// once the worker exits.
func onWorker(ctx context.Context, path string, area *scratch.Area, progress *stageReporter, work func() (transformOutput, error)) (transformOutput, error) {
	type workResult struct {
		out transformOutput
		err error
	}
	done := make(chan workResult, 1)
	release := area.Hold()
	go func() {
		var r workResult
		func() {
			defer func() {
				if p := recover(); p != nil {
					r = workResult{err: op.Fail(op.FailInternal, path, "raster transform panicked: %v", p)}
				}
			}()
			r.out, r.err = work()
		}()
		// Release first so a caller that got the result can remove the area.
		release()
		done <- r
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		progress.stop()
		return transformOutput{}, ctx.Err()
	}
}

func rasterStages(ctx context.Context, src validate.MediaHandle, output string, area *scratch.Area, progress *stageReporter,
	format imaging.Format, quality int, fn rasterFunc) (transformOutput, error) {
	img, err := raster.Open(src.Path)
	if err != nil {
		return transformOutput{}, err
	}
	if err := ctx.Err(); err != nil {
		return transformOutput{}, err
	}
	progress.report(20)

	out, err := fn(img)
	if err != nil {
		return transformOutput{}, err
	}
	if err := ctx.Err(); err != nil {
		return transformOutput{}, err
	}
	progress.report(70)

	staged := area.Allocate(filepath.Base(output))
	if err := raster.Save(out, staged, format, quality); err != nil {
		return transformOutput{}, err
	}
	progress.report(90)

	sb, ob := img.Bounds(), out.Bounds()
	return transformOutput{
		staged: staged,
		metrics: map[string]any{
			"width":         ob.Dx(),
			"height":        ob.Dy(),
			"source_width":  sb.Dx(),
			"source_height": sb.Dy(),
			"format":        format.String(),
		},
	}, nil
}

// compress branches on the sniffed input class.
func (e *Executor) compress(ctx context.Context, d op.Compress, src validate.MediaHandle, area *scratch.Area, progress *stageReporter) (transformOutput, error) {
	var (
		out transformOutput
		err error
	)
	switch src.Class {
	case op.ClassImage:
		format := raster.FormatFor(d.Output(), raster.FormatFromMIME(src.MIME))
		out, err = e.runRaster(ctx, src, d.Output(), area, progress, format, d.Quality(), func(img image.Image) (image.Image, error) {
			return img, nil
		})
	case op.ClassVideo:
		out, err = e.runTool(ctx, d.Output(), area, func(dst string) error {
			return e.tools.CompressVideo(ctx, src.Path, dst, d, progress.tool())
		})
	default:
		return transformOutput{}, op.Fail(op.FailUnsupportedFormat, src.Path, "compress does not support %s input", src.MIME)
	}
	if err != nil {
		return transformOutput{}, err
	}

	fi, err := e.store.Stat(ctx, out.staged)
	if err != nil {
		return transformOutput{}, fmt.Errorf("stat compressed output: %w", err)
	}
	out.metrics["original_bytes"] = src.Size
	out.metrics["optimized_bytes"] = fi.Size
	if fi.Size > 0 {
		out.metrics["compression_ratio"] = float64(src.Size) / float64(fi.Size)
	}
	return out, nil
}

// runTool stages an external tool's output and rejects files without a
// playable duration.
func (e *Executor) runTool(ctx context.Context, output string, area *scratch.Area, run func(dst string) error) (transformOutput, error) {
	staged := area.Allocate(filepath.Base(output))
	if err := run(staged); err != nil {
		return transformOutput{}, err
	}
	fi, err := e.store.Stat(ctx, staged)
	if err != nil || fi.Size == 0 {
		return transformOutput{}, op.Fail(op.FailEmptyOutput, output, "tool produced no output")
	}

	info, err := e.tools.Probe(ctx, staged)
	if err != nil {
		return transformOutput{}, err
	}
	if info.Duration <= 0 {
		return transformOutput{}, op.Fail(op.FailEmptyOutput, output, "output has zero media duration")
	}
	return transformOutput{staged: staged, metrics: probeMetrics(info)}, nil
}

func probeMetrics(info ffmpeg.ProbeInfo) map[string]any {
	m := map[string]any{
		"duration_seconds": info.Duration.Seconds(),
		"container":        info.FormatName,
	}
	if info.BitRate > 0 {
		m["bit_rate"] = info.BitRate
	}
	if v, ok := info.Video(); ok {
		m["codec"] = v.CodecName
		m["width"] = v.Width
		m["height"] = v.Height
		if v.FrameRate > 0 {
			m["fps"] = v.FrameRate
		}
	}
	if a, ok := info.Audio(); ok {
		m["audio_codec"] = a.CodecName
		m["sample_rate"] = a.SampleRate
		m["channels"] = a.Channels
		if _, hasVideo := m["codec"]; !hasVideo {
			m["codec"] = a.CodecName
		}
	}
	return m
}

// extractMetadata reports file and media properties, optionally writing
// them as a JSON sidecar.
func (e *Executor) extractMetadata(ctx context.Context, d op.ExtractMetadata, src validate.MediaHandle, area *scratch.Area) (transformOutput, error) {
	m := map[string]any{
		"size":      src.Size,
		"mime":      src.MIME,
		"extension": src.Extension,
		"modified":  src.ModTime.UTC(),
		"class":     src.Class.String(),
	}
	switch src.Class {
	case op.ClassImage:
		cfg, format, err := raster.DecodeConfig(src.Path)
		if err != nil {
			return transformOutput{}, op.Wrap(op.FailUnsupportedFormat, src.Path, err)
		}
		m["width"] = cfg.Width
		m["height"] = cfg.Height
		m["format"] = format
	default:
		info, err := e.tools.Probe(ctx, src.Path)
		if err != nil {
			return transformOutput{}, err
		}
		for k, v := range probeMetrics(info) {
			m[k] = v
		}
	}

	return e.writeReport(ctx, d.Output(), area, m)
}

// writeReport stages m as an indented JSON sidecar for output. With no
// output the metrics are only returned.
func (e *Executor) writeReport(ctx context.Context, output string, area *scratch.Area, m map[string]any) (transformOutput, error) {
	if output == "" {
		return transformOutput{metrics: m}, nil
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return transformOutput{}, fmt.Errorf("encode report: %w", err)
	}
	staged := area.Allocate(filepath.Base(output))
	data = append(data, '\n')
	if err := e.store.Write(ctx, staged, bytes.NewReader(data), int64(len(data)), op.OverwriteForbid); err != nil {
		return transformOutput{}, fmt.Errorf("write report sidecar: %w", err)
	}
	return transformOutput{staged: staged, metrics: m}, nil
}

// assessQuality scores the image on a held worker and writes the report as
// a JSON sidecar when an output is named.
func (e *Executor) assessQuality(ctx context.Context, d op.AssessQuality, src validate.MediaHandle, area *scratch.Area, progress *stageReporter) (transformOutput, error) {
	scored, err := onWorker(ctx, src.Path, area, progress, func() (transformOutput, error) {
		img, err := raster.Open(src.Path)
		if err != nil {
			return transformOutput{}, err
		}
		progress.report(30)
		m := raster.Assess(img).Metrics()
		b := img.Bounds()
		m["width"], m["height"] = b.Dx(), b.Dy()
		progress.report(80)
		return transformOutput{metrics: m}, nil
	})
	if err != nil {
		return transformOutput{}, err
	}
	return e.writeReport(ctx, d.Output(), area, scored.metrics)
}

// optimizeWeb bounds the image for web delivery and picks the encoder
// quality from its final pixel count.
func (e *Executor) optimizeWeb(ctx context.Context, d op.OptimizeWeb, src validate.MediaHandle, area *scratch.Area, progress *stageReporter) (transformOutput, error) {
	p := d.Params()
	format := raster.FormatFor(d.Output(), raster.FormatFromMIME(src.MIME))
	cfg, _, err := raster.DecodeConfig(src.Path)
	if err != nil {
		return transformOutput{}, op.Wrap(op.FailUnsupportedFormat, src.Path, err)
	}
	quality := d.WebQuality(fitSize(cfg.Width, cfg.Height, p.MaxWidth, p.MaxHeight))

	out, err := e.runRaster(ctx, src, d.Output(), area, progress, format, quality, func(img image.Image) (image.Image, error) {
		return imaging.Fit(img, p.MaxWidth, p.MaxHeight, imaging.Lanczos), nil
	})
	if err != nil {
		return transformOutput{}, err
	}
	fi, err := e.store.Stat(ctx, out.staged)
	if err != nil {
		return transformOutput{}, fmt.Errorf("stat optimized output: %w", err)
	}
	out.metrics["original_bytes"] = src.Size
	out.metrics["optimized_bytes"] = fi.Size
	if fi.Size > 0 {
		out.metrics["compression_ratio"] = float64(src.Size) / float64(fi.Size)
	}
	out.metrics["quality"] = quality
	out.metrics["quality_loss"] = op.QualityLoss(quality)
	return out, nil
}

// fitSize returns the dimensions imaging.Fit produces for a w x h source.
func fitSize(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	aspect := float64(w) / float64(h)
	if aspect > float64(maxW)/float64(maxH) {
		return maxW, max(1, int(float64(maxW)/aspect))
	}
	return max(1, int(float64(maxH)*aspect)), maxH
}

// stageReporter forwards monotonic progress. Tool progress is scaled to
// 95 so 100 is only reported once the output is in place.
type stageReporter struct {
	mu      sync.Mutex
	fn      ffmpeg.ProgressFunc
	last    float64
	stopped bool
}

func newStageReporter(fn ffmpeg.ProgressFunc) *stageReporter {
	return &stageReporter{fn: fn}
}

func (r *stageReporter) report(pct float64) {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || pct <= r.last {
		return
	}
	r.last = pct
	r.fn(pct)
}

// stop drops every later report, e.g. from a worker abandoned at the deadline.
func (r *stageReporter) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

func (r *stageReporter) tool() ffmpeg.ProgressFunc {
	if r.fn == nil {
		return nil
	}
	return func(pct float64) { r.report(pct * 0.95) }
}
