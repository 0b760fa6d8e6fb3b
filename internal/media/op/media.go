// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package op

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ---- Compress ----

var presets = map[string]bool{
	"ultrafast": true, "superfast": true, "veryfast": true, "faster": true, "fast": true,
	"medium": true, "slow": true, "slower": true, "veryslow": true,
}

// CompressParams covers both media classes; the executor picks the branch
// from the sniffed input type. Quality applies to images, CRF and Preset to video.
type CompressParams struct {
	Quality int    `json:"quality,omitempty"`
	CRF     *int   `json:"crf,omitempty"`
	Preset  string `json:"preset,omitempty"`
}

type Compress struct {
	target
	quality int
	crf     int
	preset  string
}

const (
	defaultCompressQuality = 80
	defaultCRF             = 23
	defaultPreset          = "medium"
)

func NewCompress(t Target, p CompressParams) (Compress, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return Compress{}, err
	}
	q, err := quality(p.Quality, defaultCompressQuality)
	if err != nil {
		return Compress{}, err
	}
	crf := defaultCRF
	if p.CRF != nil {
		if *p.CRF < 0 || *p.CRF > 51 {
			return Compress{}, Invalid("crf must be within 0..51, got %d", *p.CRF)
		}
		crf = *p.CRF
	}
	preset := strings.ToLower(strings.TrimSpace(p.Preset))
	if preset == "" {
		preset = defaultPreset
	}
	if !presets[preset] {
		return Compress{}, Invalid("unknown encoder preset %q", p.Preset)
	}
	return Compress{target: tg, quality: q, crf: crf, preset: preset}, nil
}

func (Compress) Kind() Kind       { return KindCompress }
func (c Compress) Quality() int   { return c.quality }
func (c Compress) CRF() int       { return c.crf }
func (c Compress) Preset() string { return c.preset }

func (c Compress) Params() CompressParams {
	crf := c.crf
	return CompressParams{Quality: c.quality, CRF: &crf, Preset: c.preset}
}

// ---- Transcode ----

// Profile is a named resolution and bitrate pair.
type Profile struct {
	Name    string
	Width   int
	Height  int
	Bitrate string
}

var profiles = map[string]Profile{
	"1080p": {Name: "1080p", Width: 1920, Height: 1080, Bitrate: "5M"},
	"720p":  {Name: "720p", Width: 1280, Height: 720, Bitrate: "2500k"},
	"480p":  {Name: "480p", Width: 854, Height: 480, Bitrate: "1M"},
}

// LookupProfile resolves a quality profile label.
func LookupProfile(name string) (Profile, bool) {
	p, ok := profiles[strings.ToLower(name)]
	return p, ok
}

var (
	containers  = map[string]bool{"mp4": true, "mkv": true, "webm": true, "mov": true, "avi": true, "ts": true}
	videoCodecs = map[string]bool{"h264": true, "hevc": true, "vp9": true, "av1": true, "copy": true}
	audioCodecs = map[string]bool{"aac": true, "mp3": true, "opus": true, "vorbis": true, "copy": true}

	bitrateRe    = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[kKmM]?$`)
	resolutionRe = regexp.MustCompile(`^([0-9]+)[xX]([0-9]+)$`)
)

type TranscodeParams struct {
	Format     string  `json:"format"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	Bitrate    string  `json:"bitrate,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
}

type Transcode struct {
	target
	p             TranscodeParams
	width, height int
}

// NewTranscode resolves profile labels into explicit dimensions; a profile's
// bitrate applies only when no bitrate was given.
func NewTranscode(t Target, p TranscodeParams) (Transcode, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return Transcode{}, err
	}
	p.Format = strings.ToLower(strings.TrimSpace(p.Format))
	if !containers[p.Format] {
		return Transcode{}, Invalid("unsupported container %q", p.Format)
	}
	p.VideoCodec = strings.ToLower(strings.TrimSpace(p.VideoCodec))
	if p.VideoCodec == "h265" {
		p.VideoCodec = "hevc"
	}
	if p.VideoCodec != "" && !videoCodecs[p.VideoCodec] {
		return Transcode{}, Invalid("unsupported video codec %q", p.VideoCodec)
	}
	p.AudioCodec = strings.ToLower(strings.TrimSpace(p.AudioCodec))
	if p.AudioCodec != "" && !audioCodecs[p.AudioCodec] {
		return Transcode{}, Invalid("unsupported audio codec %q", p.AudioCodec)
	}
	if p.Bitrate != "" && !bitrateRe.MatchString(p.Bitrate) {
		return Transcode{}, Invalid("malformed bitrate %q", p.Bitrate)
	}

	var w, h int
	if p.Resolution != "" {
		if prof, ok := LookupProfile(p.Resolution); ok {
			w, h = prof.Width, prof.Height
			if p.Bitrate == "" {
				p.Bitrate = prof.Bitrate
			}
		} else if w, h, err = parseResolution(p.Resolution); err != nil {
			return Transcode{}, err
		}
	}
	if p.FPS != 0 && (!finite(p.FPS) || p.FPS < 0 || p.FPS > 240) {
		return Transcode{}, Invalid("fps must be within (0,240], got %g", p.FPS)
	}
	if p.VideoCodec == "copy" && (w != 0 || p.FPS != 0) {
		return Transcode{}, Invalid("video stream copy cannot change resolution or fps")
	}
	return Transcode{target: tg, p: p, width: w, height: h}, nil
}

func parseResolution(s string) (int, int, error) {
	m := resolutionRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, Invalid("resolution must be WxH or a profile (1080p, 720p, 480p), got %q", s)
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if w <= 0 || h <= 0 || w > 16384 || h > 16384 {
		return 0, 0, Invalid("resolution out of range: %s", s)
	}
	return w, h, nil
}

func (Transcode) Kind() Kind                 { return KindTranscode }
func (tr Transcode) Params() TranscodeParams { return tr.p }

// Dimensions returns the target frame size, or 0,0 to keep the source size.
func (tr Transcode) Dimensions() (int, int) { return tr.width, tr.height }

// ---- ExtractAudio ----

var audioFormats = map[string]bool{"mp3": true, "aac": true, "wav": true, "flac": true, "ogg": true}

type ExtractAudioParams struct {
	Format     string `json:"format"`
	Bitrate    string `json:"bitrate,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

type ExtractAudio struct {
	target
	p ExtractAudioParams
}

func NewExtractAudio(t Target, p ExtractAudioParams) (ExtractAudio, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return ExtractAudio{}, err
	}
	p.Format = strings.ToLower(strings.TrimSpace(p.Format))
	if !audioFormats[p.Format] {
		return ExtractAudio{}, Invalid("unsupported audio format %q", p.Format)
	}
	if p.Bitrate != "" && !bitrateRe.MatchString(p.Bitrate) {
		return ExtractAudio{}, Invalid("malformed bitrate %q", p.Bitrate)
	}
	if err := checkAudioLayout(p.SampleRate, p.Channels); err != nil {
		return ExtractAudio{}, err
	}
	return ExtractAudio{target: tg, p: p}, nil
}

// checkAudioLayout accepts zero as "keep the source value".
func checkAudioLayout(sampleRate, channels int) error {
	if sampleRate != 0 && (sampleRate < 8000 || sampleRate > 192000) {
		return Invalid("sample_rate must be within 8000..192000 Hz, got %d", sampleRate)
	}
	if channels != 0 && (channels < 1 || channels > 8) {
		return Invalid("channels must be within 1..8, got %d", channels)
	}
	return nil
}

func (ExtractAudio) Kind() Kind                   { return KindExtractAudio }
func (e ExtractAudio) Params() ExtractAudioParams { return e.p }

// ---- NormalizeAudio ----

// NormalizeAudioParams are EBU R128 targets. Nil fields take the broadcast
// defaults: -16 LUFS integrated, -1.5 dBTP true peak, 11 LU range.
type NormalizeAudioParams struct {
	Format   string   `json:"format,omitempty"`
	Loudness *float64 `json:"loudness,omitempty"`
	TruePeak *float64 `json:"true_peak,omitempty"`
	Range    *float64 `json:"range,omitempty"`
	Bitrate  string   `json:"bitrate,omitempty"`
}

type NormalizeAudio struct {
	target
	p NormalizeAudioParams
}

const (
	defaultLoudness = -16.0
	defaultTruePeak = -1.5
	defaultRange    = 11.0
)

// NewNormalizeAudio derives the format from the output extension when none
// is given.
func NewNormalizeAudio(t Target, p NormalizeAudioParams) (NormalizeAudio, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return NormalizeAudio{}, err
	}
	p.Format = strings.ToLower(strings.TrimSpace(p.Format))
	if p.Format == "" {
		p.Format = strings.TrimPrefix(strings.ToLower(filepath.Ext(tg.output)), ".")
	}
	if !audioFormats[p.Format] {
		return NormalizeAudio{}, Invalid("unsupported audio format %q", p.Format)
	}
	if p.Bitrate != "" && !bitrateRe.MatchString(p.Bitrate) {
		return NormalizeAudio{}, Invalid("malformed bitrate %q", p.Bitrate)
	}
	if p.Loudness, err = loudnessParam("loudness", p.Loudness, defaultLoudness, -70, -5); err != nil {
		return NormalizeAudio{}, err
	}
	if p.TruePeak, err = loudnessParam("true_peak", p.TruePeak, defaultTruePeak, -9, 0); err != nil {
		return NormalizeAudio{}, err
	}
	if p.Range, err = loudnessParam("range", p.Range, defaultRange, 1, 20); err != nil {
		return NormalizeAudio{}, err
	}
	return NormalizeAudio{target: tg, p: p}, nil
}

func loudnessParam(name string, v *float64, def, lo, hi float64) (*float64, error) {
	if v == nil {
		return &def, nil
	}
	if !finite(*v) || *v < lo || *v > hi {
		return nil, Invalid("%s must be within %g..%g, got %g", name, lo, hi, *v)
	}
	x := *v
	return &x, nil
}

func (NormalizeAudio) Kind() Kind                     { return KindNormalizeAudio }
func (n NormalizeAudio) Params() NormalizeAudioParams { return n.p }

// Targets returns the integrated loudness, true peak and loudness range.
func (n NormalizeAudio) Targets() (loudness, truePeak, lra float64) {
	return *n.p.Loudness, *n.p.TruePeak, *n.p.Range
}

// ---- ExtractMetadata ----

// ExtractMetadataParams is empty; the output is an optional JSON sidecar.
type ExtractMetadataParams struct{}

type ExtractMetadata struct {
	target
}

func NewExtractMetadata(t Target) (ExtractMetadata, error) {
	tg, err := newTarget(t, false)
	if err != nil {
		return ExtractMetadata{}, err
	}
	return ExtractMetadata{target: tg}, nil
}

func (ExtractMetadata) Kind() Kind { return KindExtractMetadata }

// ParseBitrate converts "2500k"/"5M"/"128000" into bits per second.
func ParseBitrate(s string) (int64, error) {
	if !bitrateRe.MatchString(s) {
		return 0, fmt.Errorf("malformed bitrate %q", s)
	}
	mult := 1.0
	switch s[len(s)-1] {
	case 'k', 'K':
		mult, s = 1e3, s[:len(s)-1]
	case 'm', 'M':
		mult, s = 1e6, s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed bitrate %q: %w", s, err)
	}
	return int64(math.Round(v * mult)), nil
}
