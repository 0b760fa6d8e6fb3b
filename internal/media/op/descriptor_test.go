// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package op

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tgt = Target{Input: "/in/a.jpg", Output: "/out/a.jpg"}

func TestNewResizeDefaultsAndAliases(t *testing.T) {
	r, err := NewResize(tgt, ResizeParams{Width: 800, Height: 600})
	require.NoError(t, err)
	assert.Equal(t, ResizeFit, r.Params().Mode)
	assert.Equal(t, DefaultQuality, r.Params().Quality)
	assert.Equal(t, OverwriteForbid, r.Overwrite())

	r, err = NewResize(tgt, ResizeParams{Width: 1, Height: 1, Mode: "fill"})
	require.NoError(t, err)
	assert.Equal(t, ResizeCrop, r.Params().Mode)
}

func TestConstructorsRejectBadParameters(t *testing.T) {
	nan := math.NaN()
	big := 1000.0
	tests := []struct {
		name string
		fn   func() error
	}{
		{"resize zero width", func() error { _, err := NewResize(tgt, ResizeParams{Width: 0, Height: 10}); return err }},
		{"resize bad mode", func() error { _, err := NewResize(tgt, ResizeParams{Width: 1, Height: 1, Mode: "stretch"}); return err }},
		{"resize quality", func() error { _, err := NewResize(tgt, ResizeParams{Width: 1, Height: 1, Quality: 101}); return err }},
		{"rotate nan", func() error { _, err := NewRotate(tgt, RotateParams{Angle: nan}); return err }},
		{"crop negative", func() error { _, err := NewCrop(tgt, CropParams{X: -1, Width: 1, Height: 1}); return err }},
		{"flip diagonal", func() error { _, err := NewFlip(tgt, FlipParams{Direction: "diagonal"}); return err }},
		{"filter unknown", func() error { _, err := NewFilter(tgt, FilterParams{Name: "glow"}); return err }},
		{"filter range", func() error { _, err := NewFilter(tgt, FilterParams{Name: FilterBrightness, Intensity: &big}); return err }},
		{"effect strength", func() error { _, err := NewEffect(tgt, EffectParams{Name: EffectVignette, Strength: 1.5}); return err }},
		{"watermark empty", func() error { _, err := NewWatermark(tgt, WatermarkParams{}); return err }},
		{"watermark both", func() error { _, err := NewWatermark(tgt, WatermarkParams{Text: "a", Image: "/b.png"}); return err }},
		{"watermark position", func() error { _, err := NewWatermark(tgt, WatermarkParams{Text: "a", Position: "middle"}); return err }},
		{"convert webp", func() error { _, err := NewConvertFormat(tgt, ConvertFormatParams{Format: "webp"}); return err }},
		{"transcode container", func() error { _, err := NewTranscode(tgt, TranscodeParams{Format: "flv"}); return err }},
		{"transcode fps", func() error { _, err := NewTranscode(tgt, TranscodeParams{Format: "mp4", FPS: 500}); return err }},
		{"transcode resolution", func() error { _, err := NewTranscode(tgt, TranscodeParams{Format: "mp4", Resolution: "big"}); return err }},
		{"extract audio format", func() error { _, err := NewExtractAudio(tgt, ExtractAudioParams{Format: "wma"}); return err }},
		{"missing output", func() error { _, err := NewThumbnail(Target{Input: "/a"}, ThumbnailParams{Width: 1, Height: 1}); return err }},
		{"missing input", func() error { _, err := NewExtractMetadata(Target{}); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParameter)
			assert.Equal(t, FailInvalidParameter, KindOf(err))
		})
	}
}

func TestRotateNormalisesAngle(t *testing.T) {
	for in, want := range map[float64]float64{-90: 270, 450: 90, 360: 0, 45: 45} {
		r, err := NewRotate(tgt, RotateParams{Angle: in})
		require.NoError(t, err)
		assert.InDelta(t, want, r.Params().Angle, 1e-9, "angle %v", in)
	}
}

func TestFilterIntensityDefaults(t *testing.T) {
	f, err := NewFilter(tgt, FilterParams{Name: "Blur"})
	require.NoError(t, err)
	assert.Equal(t, FilterBlur, f.Name())
	assert.Equal(t, 2.0, f.Intensity())

	zero := 0.0
	f, err = NewFilter(tgt, FilterParams{Name: FilterBrightness, Intensity: &zero})
	require.NoError(t, err)
	assert.Equal(t, 0.0, f.Intensity())
}

func TestWatermarkImageIsSecondInput(t *testing.T) {
	w, err := NewWatermark(tgt, WatermarkParams{Image: "/in/logo.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/a.jpg", "/in/logo.png"}, w.Inputs())
	assert.Equal(t, BottomRight, w.Params().Position)
	assert.Equal(t, 0.5, w.Params().Opacity)
	assert.Equal(t, 0.2, w.Params().Scale)
}

func TestTranscodeProfile(t *testing.T) {
	tr, err := NewTranscode(tgt, TranscodeParams{Format: "MP4", Resolution: "720p"})
	require.NoError(t, err)
	w, h := tr.Dimensions()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)
	assert.Equal(t, "2500k", tr.Params().Bitrate)

	tr, err = NewTranscode(tgt, TranscodeParams{Format: "mkv", Resolution: "1080p", Bitrate: "8M"})
	require.NoError(t, err)
	assert.Equal(t, "8M", tr.Params().Bitrate, "explicit bitrate wins over profile")

	tr, err = NewTranscode(tgt, TranscodeParams{Format: "webm", Resolution: "640x360"})
	require.NoError(t, err)
	w, h = tr.Dimensions()
	assert.Equal(t, []int{640, 360}, []int{w, h})
}

func TestParseBitrate(t *testing.T) {
	for in, want := range map[string]int64{"128k": 128000, "5M": 5000000, "2.5m": 2500000, "96000": 96000} {
		got, err := ParseBitrate(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseBitrate("fast")
	assert.Error(t, err)
}

func TestDecodeEncodeNormalises(t *testing.T) {
	req := Request{
		Kind:   "Resize",
		Input:  "/in/a.jpg",
		Output: "/out/a.jpg",
		Params: json.RawMessage(`{"width":800,"height":600,"mode":"fill"}`),
	}
	d, err := Decode(req)
	require.NoError(t, err)
	require.IsType(t, Resize{}, d)

	got := Encode(d)
	want := Request{
		Kind:   KindResize,
		Input:  "/in/a.jpg",
		Output: "/out/a.jpg",
		Params: json.RawMessage(`{"width":800,"height":600,"mode":"crop","quality":85}`),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Encode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsUnknownFieldsAndKinds(t *testing.T) {
	_, err := Decode(Request{Kind: "resize", Input: "/a", Output: "/b", Params: json.RawMessage(`{"width":1,"height":1,"dpi":3}`)})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = Decode(Request{Kind: "teleport", Input: "/a", Output: "/b"})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestDecodeEveryKind(t *testing.T) {
	params := map[Kind]string{
		KindResize:          `{"width":10,"height":10}`,
		KindRotate:          `{"angle":90}`,
		KindCrop:            `{"x":0,"y":0,"width":5,"height":5}`,
		KindFlip:            `{"direction":"vertical"}`,
		KindFilter:          `{"name":"grayscale"}`,
		KindEffect:          `{"name":"pixelate"}`,
		KindWatermark:       `{"text":"hi"}`,
		KindCompress:        `{"quality":70}`,
		KindConvertFormat:   `{"format":"png"}`,
		KindThumbnail:       `{"width":64,"height":64}`,
		KindTranscode:       `{"format":"mp4","video_codec":"h264"}`,
		KindExtractAudio:    `{"format":"mp3","bitrate":"192k","sample_rate":44100,"channels":2}`,
		KindExtractMetadata: ``,
		KindNormalizeAudio:  `{"format":"flac"}`,
		KindEnhance:         `{"mode":"denoise"}`,
		KindAssessQuality:   ``,
		KindOptimizeWeb:     `{"max_width":1280}`,
	}
	for _, k := range Kinds() {
		d, err := Decode(Request{Kind: k, Input: "/in", Output: "/out", Params: json.RawMessage(params[k])})
		require.NoError(t, err, k)
		assert.Equal(t, k, d.Kind())
		assert.Equal(t, k, Encode(d).Kind)
	}
}
