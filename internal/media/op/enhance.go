// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package op

import "strings"

// ---- Enhance ----

type EnhanceMode string

const (
	// EnhanceAuto stretches levels, lifts saturation and sharpens.
	EnhanceAuto EnhanceMode = "auto"
	// EnhanceDenoise applies a light gaussian blur.
	EnhanceDenoise EnhanceMode = "denoise"
	// EnhanceColorCorrect balances channels towards the gray-world average.
	EnhanceColorCorrect EnhanceMode = "color_correct"
)

type EnhanceParams struct {
	Mode EnhanceMode `json:"mode,omitempty"`
}

type Enhance struct {
	target
	p EnhanceParams
}

func NewEnhance(t Target, p EnhanceParams) (Enhance, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return Enhance{}, err
	}
	switch m := EnhanceMode(strings.ToLower(strings.TrimSpace(string(p.Mode)))); m {
	case "":
		p.Mode = EnhanceAuto
	case EnhanceAuto, EnhanceDenoise, EnhanceColorCorrect:
		p.Mode = m
	default:
		return Enhance{}, Invalid("unknown enhance mode %q", p.Mode)
	}
	return Enhance{target: tg, p: p}, nil
}

func (Enhance) Kind() Kind              { return KindEnhance }
func (e Enhance) Params() EnhanceParams { return e.p }

// ---- AssessQuality ----

// AssessQualityParams is empty; the output is an optional JSON report.
type AssessQualityParams struct{}

type AssessQuality struct {
	target
}

func NewAssessQuality(t Target) (AssessQuality, error) {
	tg, err := newTarget(t, false)
	if err != nil {
		return AssessQuality{}, err
	}
	return AssessQuality{target: tg}, nil
}

func (AssessQuality) Kind() Kind { return KindAssessQuality }

// ---- OptimizeWeb ----

const (
	defaultWebWidth  = 1920
	defaultWebHeight = 1080
)

// OptimizeWebParams bounds the delivered size. Quality 0 picks one from the
// pixel count: 90 up to 1 MP, 85 up to 4 MP, 75 above.
type OptimizeWebParams struct {
	MaxWidth  int `json:"max_width,omitempty"`
	MaxHeight int `json:"max_height,omitempty"`
	Quality   int `json:"quality,omitempty"`
}

type OptimizeWeb struct {
	target
	p OptimizeWebParams
}

func NewOptimizeWeb(t Target, p OptimizeWebParams) (OptimizeWeb, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return OptimizeWeb{}, err
	}
	if p.MaxWidth < 0 || p.MaxHeight < 0 {
		return OptimizeWeb{}, Invalid("max dimensions must not be negative, got %dx%d", p.MaxWidth, p.MaxHeight)
	}
	if p.MaxWidth == 0 {
		p.MaxWidth = defaultWebWidth
	}
	if p.MaxHeight == 0 {
		p.MaxHeight = defaultWebHeight
	}
	if p.Quality != 0 {
		if p.Quality, err = quality(p.Quality, 0); err != nil {
			return OptimizeWeb{}, err
		}
	}
	return OptimizeWeb{target: tg, p: p}, nil
}

func (OptimizeWeb) Kind() Kind                  { return KindOptimizeWeb }
func (o OptimizeWeb) Params() OptimizeWebParams { return o.p }

// WebQuality returns the encoder quality for an image of the given size.
func (o OptimizeWeb) WebQuality(width, height int) int {
	if o.p.Quality != 0 {
		return o.p.Quality
	}
	switch px := width * height; {
	case px > 4_000_000:
		return 75
	case px > 1_000_000:
		return 85
	default:
		return 90
	}
}

// QualityLoss estimates the perceptual loss, in percent, of encoding at q.
func QualityLoss(q int) float64 {
	switch {
	case q >= 95:
		return 0
	case q >= 85:
		return float64(95-q) * 0.1
	case q >= 75:
		return float64(85-q)*0.2 + 1
	default:
		return float64(75-q)*0.5 + 3
	}
}
