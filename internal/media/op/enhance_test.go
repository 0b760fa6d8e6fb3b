// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package op

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhanceModes(t *testing.T) {
	tgt := Target{Input: "/in.jpg", Output: "/out.jpg"}

	d, err := NewEnhance(tgt, EnhanceParams{})
	require.NoError(t, err)
	assert.Equal(t, EnhanceAuto, d.Params().Mode)

	d, err = NewEnhance(tgt, EnhanceParams{Mode: "Color_Correct"})
	require.NoError(t, err)
	assert.Equal(t, EnhanceColorCorrect, d.Params().Mode)

	_, err = NewEnhance(tgt, EnhanceParams{Mode: "super_resolution"})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestAssessQualityOutputOptional(t *testing.T) {
	d, err := NewAssessQuality(Target{Input: "/in.jpg"})
	require.NoError(t, err)
	assert.Empty(t, d.Output())
	assert.Equal(t, ClassImage, d.Kind().Accepts())
}

func TestOptimizeWebDefaultsAndQuality(t *testing.T) {
	d, err := NewOptimizeWeb(Target{Input: "/in.jpg", Output: "/out.jpg"}, OptimizeWebParams{})
	require.NoError(t, err)
	assert.Equal(t, 1920, d.Params().MaxWidth)
	assert.Equal(t, 1080, d.Params().MaxHeight)

	assert.Equal(t, 90, d.WebQuality(800, 600))
	assert.Equal(t, 85, d.WebQuality(1920, 1080))
	assert.Equal(t, 75, d.WebQuality(4000, 3000))

	fixed, err := NewOptimizeWeb(Target{Input: "/in.jpg", Output: "/out.jpg"}, OptimizeWebParams{Quality: 60})
	require.NoError(t, err)
	assert.Equal(t, 60, fixed.WebQuality(4000, 3000))

	_, err = NewOptimizeWeb(Target{Input: "/in.jpg", Output: "/out.jpg"}, OptimizeWebParams{Quality: 101})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewOptimizeWeb(Target{Input: "/in.jpg", Output: "/out.jpg"}, OptimizeWebParams{MaxWidth: -1})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestQualityLoss(t *testing.T) {
	assert.InDelta(t, 0, QualityLoss(95), 1e-9)
	assert.InDelta(t, 1, QualityLoss(85), 1e-9)
	assert.InDelta(t, 3, QualityLoss(75), 1e-9)
	assert.InDelta(t, 8, QualityLoss(65), 1e-9)
}

func TestNormalizeAudioTargets(t *testing.T) {
	d, err := NewNormalizeAudio(Target{Input: "/in.wav", Output: "/out/speech.MP3"}, NormalizeAudioParams{})
	require.NoError(t, err)
	assert.Equal(t, "mp3", d.Params().Format)
	i, tp, lra := d.Targets()
	assert.Equal(t, -16.0, i)
	assert.Equal(t, -1.5, tp)
	assert.Equal(t, 11.0, lra)

	loud := -23.0
	d, err = NewNormalizeAudio(Target{Input: "/in.wav", Output: "/out.bin"}, NormalizeAudioParams{Format: "wav", Loudness: &loud})
	require.NoError(t, err)
	i, _, _ = d.Targets()
	assert.Equal(t, -23.0, i)

	tooHot := 2.0
	_, err = NewNormalizeAudio(Target{Input: "/in.wav", Output: "/out.wav"}, NormalizeAudioParams{TruePeak: &tooHot})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewNormalizeAudio(Target{Input: "/in.wav", Output: "/out.bin"}, NormalizeAudioParams{})
	assert.ErrorIs(t, err, ErrInvalidParameter, "format cannot be derived from .bin")
}

func TestExtractAudioLayout(t *testing.T) {
	tgt := Target{Input: "/in.mp4", Output: "/out.mp3"}
	d, err := NewExtractAudio(tgt, ExtractAudioParams{Format: "mp3", SampleRate: 48000, Channels: 1})
	require.NoError(t, err)
	assert.Equal(t, 48000, d.Params().SampleRate)

	_, err = NewExtractAudio(tgt, ExtractAudioParams{Format: "mp3", SampleRate: 4000})
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewExtractAudio(tgt, ExtractAudioParams{Format: "mp3", Channels: 9})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
