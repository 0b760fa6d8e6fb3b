// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediaops/internal/media/op"
)

// flagValue returns the argument following flag, or "" when absent.
func flagValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestExtractAudioArgsLayout(t *testing.T) {
	d, err := op.NewExtractAudio(op.Target{Input: "/in.mp4", Output: "/out.mp3"},
		op.ExtractAudioParams{Format: "mp3", Bitrate: "192k", SampleRate: 44100, Channels: 1})
	require.NoError(t, err)

	args := ExtractAudioArgs("/in.mp4", "/scratch/out.mp3", d)
	assert.Equal(t, "libmp3lame", flagValue(args, "-c:a"))
	assert.Equal(t, "192k", flagValue(args, "-b:a"))
	assert.Equal(t, "44100", flagValue(args, "-ar"))
	assert.Equal(t, "1", flagValue(args, "-ac"))
	assert.Equal(t, "mp3", flagValue(args, "-f"))
	assert.Equal(t, "/scratch/out.mp3", args[len(args)-1])
}

func TestExtractAudioArgsKeepSourceLayout(t *testing.T) {
	d, err := op.NewExtractAudio(op.Target{Input: "/in.mp4", Output: "/out.flac"},
		op.ExtractAudioParams{Format: "flac", Bitrate: "320k"})
	require.NoError(t, err)

	args := ExtractAudioArgs("/in.mp4", "/scratch/out.flac", d)
	assert.NotContains(t, args, "-ar")
	assert.NotContains(t, args, "-ac")
	assert.NotContains(t, args, "-b:a", "lossless formats ignore bitrate")
}

func TestNormalizeAudioArgs(t *testing.T) {
	loud := -23.0
	d, err := op.NewNormalizeAudio(op.Target{Input: "/in.wav", Output: "/out.ogg"},
		op.NormalizeAudioParams{Loudness: &loud, Bitrate: "128k"})
	require.NoError(t, err)

	args := NormalizeAudioArgs("/in.wav", "/scratch/out.ogg", d)
	assert.Equal(t, "loudnorm=I=-23:TP=-1.5:LRA=11", flagValue(args, "-af"))
	assert.Equal(t, "libvorbis", flagValue(args, "-c:a"))
	assert.Equal(t, "128k", flagValue(args, "-b:a"))
	assert.Equal(t, "ogg", flagValue(args, "-f"))
	assert.Contains(t, args, "-vn")
}
