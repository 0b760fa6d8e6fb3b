// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/mediaops/internal/media/op"
)

var videoEncoders = map[string]string{
	"h264": "libx264",
	"hevc": "libx265",
	"vp9":  "libvpx-vp9",
	"av1":  "libaom-av1",
	"copy": "copy",
}

var audioEncoders = map[string]string{
	"aac":    "aac",
	"mp3":    "libmp3lame",
	"opus":   "libopus",
	"vorbis": "libvorbis",
	"copy":   "copy",
}

// Container name to ffmpeg muxer. Scratch paths carry no reliable extension,
// so the muxer is always passed explicitly.
var muxers = map[string]string{
	"mp4":  "mp4",
	"mkv":  "matroska",
	"webm": "webm",
	"mov":  "mov",
	"avi":  "avi",
	"ts":   "mpegts",
}

type audioTarget struct {
	encoder string
	muxer   string
}

var audioTargets = map[string]audioTarget{
	"mp3":  {encoder: "libmp3lame", muxer: "mp3"},
	"aac":  {encoder: "aac", muxer: "adts"},
	"wav":  {encoder: "pcm_s16le", muxer: "wav"},
	"flac": {encoder: "flac", muxer: "flac"},
	"ogg":  {encoder: "libvorbis", muxer: "ogg"},
}

func baseArgs(input string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-nostats",
		"-progress", "pipe:1",
		"-y",
		"-i", input,
	}
}

// TranscodeArgs builds the argument list for a container/codec conversion.
func TranscodeArgs(input, output string, d op.Transcode) []string {
	p := d.Params()
	args := baseArgs(input)

	if p.VideoCodec != "" {
		args = append(args, "-c:v", videoEncoders[p.VideoCodec])
	}
	if p.AudioCodec != "" {
		args = append(args, "-c:a", audioEncoders[p.AudioCodec])
	}
	if p.Bitrate != "" && p.VideoCodec != "copy" {
		args = append(args, "-b:v", p.Bitrate)
	}
	if w, h := d.Dimensions(); w > 0 && h > 0 {
		args = append(args, "-vf", scaleFilter(w, h))
	}
	if p.FPS > 0 {
		args = append(args, "-r", strconv.FormatFloat(p.FPS, 'f', -1, 64))
	}
	if p.Format == "mp4" || p.Format == "mov" {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, "-f", muxers[p.Format], output)
}

// ExtractAudioArgs drops the video stream and encodes audio only.
func ExtractAudioArgs(input, output string, d op.ExtractAudio) []string {
	p := d.Params()
	t := audioTargets[p.Format]
	args := append(baseArgs(input), "-vn", "-c:a", t.encoder)
	args = appendAudioLayout(args, p.Format, p.Bitrate, p.SampleRate, p.Channels)
	return append(args, "-f", t.muxer, output)
}

// NormalizeAudioArgs applies a single-pass EBU R128 loudnorm filter.
func NormalizeAudioArgs(input, output string, d op.NormalizeAudio) []string {
	p := d.Params()
	t := audioTargets[p.Format]
	i, tp, lra := d.Targets()
	args := append(baseArgs(input), "-vn",
		"-af", fmt.Sprintf("loudnorm=I=%s:TP=%s:LRA=%s", num(i), num(tp), num(lra)),
		"-c:a", t.encoder,
	)
	args = appendAudioLayout(args, p.Format, p.Bitrate, 0, 0)
	return append(args, "-f", t.muxer, output)
}

// appendAudioLayout adds bitrate for lossy formats and optional resampling.
func appendAudioLayout(args []string, format, bitrate string, sampleRate, channels int) []string {
	if bitrate != "" && format != "wav" && format != "flac" {
		args = append(args, "-b:a", bitrate)
	}
	if sampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(sampleRate))
	}
	if channels > 0 {
		args = append(args, "-ac", strconv.Itoa(channels))
	}
	return args
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// CompressVideoArgs re-encodes with x264 at the requested CRF and preset.
// The muxer follows the extension of the final destination.
func CompressVideoArgs(input, output, destination string, d op.Compress) []string {
	args := append(baseArgs(input),
		"-c:v", "libx264",
		"-crf", strconv.Itoa(d.CRF()),
		"-preset", d.Preset(),
		"-c:a", "aac",
	)
	muxer := MuxerFor(destination)
	if muxer == "mp4" || muxer == "mov" {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, "-f", muxer, output)
}

// MuxerFor picks a muxer from a file extension, defaulting to mp4.
func MuxerFor(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if m, ok := muxers[ext]; ok {
		return m
	}
	return "mp4"
}

// ProbeArgs asks ffprobe for container and stream metadata as JSON.
func ProbeArgs(input string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	}
}

// scaleFilter fits into w x h preserving aspect ratio and pads to the exact
// frame size; dimensions stay even for yuv420p encoders.
func scaleFilter(w, h int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease:force_divisible_by=2,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		w, h, even(w), even(h))
}

func even(v int) int { return v &^ 1 }
