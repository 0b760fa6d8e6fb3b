// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package op defines the closed set of media operations and the typed
// failures every operation boundary returns.
//
// Descriptors are only constructed through the NewXxx functions, which
// range-check all parameters; a constructed descriptor is immutable.
package op

import (
	"math"
	"strings"
)

// Descriptor is implemented by exactly one struct per Kind.
type Descriptor interface {
	Kind() Kind
	// Inputs returns the primary input first, followed by auxiliary inputs.
	Inputs() []string
	Output() string
	Overwrite() OverwritePolicy

	sealed()
}

// Target names the files an operation reads and writes.
type Target struct {
	Input     string
	Output    string
	Overwrite OverwritePolicy
}

type target struct {
	input     string
	output    string
	overwrite OverwritePolicy
}

func (t target) Inputs() []string           { return []string{t.input} }
func (t target) Output() string             { return t.output }
func (t target) Overwrite() OverwritePolicy { return t.overwrite }
func (target) sealed()                      {}

func newTarget(t Target, outputRequired bool) (target, error) {
	in := strings.TrimSpace(t.Input)
	out := strings.TrimSpace(t.Output)
	if in == "" {
		return target{}, Invalid("input path is required")
	}
	if outputRequired && out == "" {
		return target{}, Invalid("output path is required")
	}
	if t.Overwrite != OverwriteForbid && t.Overwrite != OverwriteAllow {
		return target{}, Invalid("unknown overwrite policy %d", t.Overwrite)
	}
	return target{input: in, output: out, overwrite: t.Overwrite}, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// ---- Resize ----

type ResizeMode string

const (
	ResizeFit   ResizeMode = "fit"
	ResizeCrop  ResizeMode = "crop"
	ResizeExact ResizeMode = "exact"
)

const DefaultQuality = 85

type ResizeParams struct {
	Width   int        `json:"width"`
	Height  int        `json:"height"`
	Mode    ResizeMode `json:"mode,omitempty"`
	Quality int        `json:"quality,omitempty"`
}

type Resize struct {
	target
	p ResizeParams
}

func NewResize(t Target, p ResizeParams) (Resize, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return Resize{}, err
	}
	if p.Width <= 0 || p.Height <= 0 {
		return Resize{}, Invalid("resize dimensions must be positive, got %dx%d", p.Width, p.Height)
	}
	switch strings.ToLower(string(p.Mode)) {
	case "", string(ResizeFit):
		p.Mode = ResizeFit
	case string(ResizeCrop), "fill":
		p.Mode = ResizeCrop
	case string(ResizeExact):
		p.Mode = ResizeExact
	default:
		return Resize{}, Invalid("unknown resize mode %q", p.Mode)
	}
	if p.Quality, err = quality(p.Quality, DefaultQuality); err != nil {
		return Resize{}, err
	}
	return Resize{target: tg, p: p}, nil
}

func (Resize) Kind() Kind             { return KindResize }
func (r Resize) Params() ResizeParams { return r.p }

func quality(q, def int) (int, error) {
	if q == 0 {
		return def, nil
	}
	if q < 1 || q > 100 {
		return 0, Invalid("quality must be within 1..100, got %d", q)
	}
	return q, nil
}

// ---- Rotate ----

type RotateParams struct {
	Angle float64 `json:"angle"`
}

type Rotate struct {
	target
	p RotateParams
}

// NewRotate normalises the angle into [0,360).
func NewRotate(t Target, p RotateParams) (Rotate, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return Rotate{}, err
	}
	if !finite(p.Angle) {
		return Rotate{}, Invalid("rotation angle must be finite")
	}
	a := math.Mod(p.Angle, 360)
	if a < 0 {
		a += 360
	}
	p.Angle = a
	return Rotate{target: tg, p: p}, nil
}

func (Rotate) Kind() Kind             { return KindRotate }
func (r Rotate) Params() RotateParams { return r.p }

// ---- Crop ----

type CropParams struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Crop struct {
	target
	p CropParams
}

// NewCrop checks the rectangle shape; bounds against the image are checked
// at execution time.
func NewCrop(t Target, p CropParams) (Crop, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return Crop{}, err
	}
	if p.X < 0 || p.Y < 0 {
		return Crop{}, Invalid("crop origin must be non-negative, got (%d,%d)", p.X, p.Y)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return Crop{}, Invalid("crop dimensions must be positive, got %dx%d", p.Width, p.Height)
	}
	return Crop{target: tg, p: p}, nil
}

func (Crop) Kind() Kind           { return KindCrop }
func (c Crop) Params() CropParams { return c.p }

// ---- Flip ----

type FlipDirection string

const (
	FlipHorizontal FlipDirection = "horizontal"
	FlipVertical   FlipDirection = "vertical"
)

type FlipParams struct {
	Direction FlipDirection `json:"direction"`
}

type Flip struct {
	target
	p FlipParams
}

func NewFlip(t Target, p FlipParams) (Flip, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return Flip{}, err
	}
	switch FlipDirection(strings.ToLower(string(p.Direction))) {
	case FlipHorizontal:
		p.Direction = FlipHorizontal
	case FlipVertical:
		p.Direction = FlipVertical
	default:
		return Flip{}, Invalid("flip direction must be horizontal or vertical, got %q", p.Direction)
	}
	return Flip{target: tg, p: p}, nil
}

func (Flip) Kind() Kind           { return KindFlip }
func (f Flip) Params() FlipParams { return f.p }

// ---- Filter ----

type FilterName string

const (
	FilterBlur       FilterName = "blur"
	FilterSharpen    FilterName = "sharpen"
	FilterGrayscale  FilterName = "grayscale"
	FilterSepia      FilterName = "sepia"
	FilterBrightness FilterName = "brightness"
	FilterContrast   FilterName = "contrast"
	FilterSaturation FilterName = "saturation"
	FilterGamma      FilterName = "gamma"
	FilterInvert     FilterName = "invert"
	FilterEmboss     FilterName = "emboss"
	FilterEdgeDetect FilterName = "edge_detect"
)

type filterRange struct {
	def, min, max float64
}

// Intensity ranges per filter. Filters without an entry ignore intensity.
var filterRanges = map[FilterName]filterRange{
	FilterBlur:       {def: 2, min: 0.1, max: 100},
	FilterSharpen:    {def: 1, min: 0.1, max: 100},
	FilterSepia:      {def: 1, min: 0, max: 1},
	FilterBrightness: {def: 10, min: -100, max: 100},
	FilterContrast:   {def: 10, min: -100, max: 100},
	FilterSaturation: {def: 20, min: -100, max: 500},
	FilterGamma:      {def: 1.2, min: 0.1, max: 10},
}

type FilterParams struct {
	Name      FilterName `json:"name"`
	Intensity *float64   `json:"intensity,omitempty"`
}

type Filter struct {
	target
	name      FilterName
	intensity float64
}

func NewFilter(t Target, p FilterParams) (Filter, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return Filter{}, err
	}
	name := FilterName(strings.ToLower(string(p.Name)))
	switch name {
	case FilterBlur, FilterSharpen, FilterGrayscale, FilterSepia, FilterBrightness,
		FilterContrast, FilterSaturation, FilterGamma, FilterInvert, FilterEmboss, FilterEdgeDetect:
	default:
		return Filter{}, Invalid("unknown filter %q", p.Name)
	}

	var intensity float64
	if r, ok := filterRanges[name]; ok {
		intensity = r.def
		if p.Intensity != nil {
			v := *p.Intensity
			if !finite(v) || v < r.min || v > r.max {
				return Filter{}, Invalid("%s intensity must be within [%g,%g], got %g", name, r.min, r.max, v)
			}
			intensity = v
		}
	}
	return Filter{target: tg, name: name, intensity: intensity}, nil
}

func (Filter) Kind() Kind           { return KindFilter }
func (f Filter) Name() FilterName   { return f.name }
func (f Filter) Intensity() float64 { return f.intensity }

func (f Filter) Params() FilterParams {
	v := f.intensity
	return FilterParams{Name: f.name, Intensity: &v}
}

// ---- Effect ----

type EffectName string

const (
	EffectPixelate  EffectName = "pixelate"
	EffectVignette  EffectName = "vignette"
	EffectPosterize EffectName = "posterize"
	EffectVintage   EffectName = "vintage"
)

const defaultEffectStrength = 0.5

type EffectParams struct {
	Name     EffectName `json:"name"`
	Strength float64    `json:"strength,omitempty"`
}

type Effect struct {
	target
	p EffectParams
}

func NewEffect(t Target, p EffectParams) (Effect, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return Effect{}, err
	}
	p.Name = EffectName(strings.ToLower(string(p.Name)))
	switch p.Name {
	case EffectPixelate, EffectVignette, EffectPosterize, EffectVintage:
	default:
		return Effect{}, Invalid("unknown effect %q", p.Name)
	}
	if p.Strength == 0 {
		p.Strength = defaultEffectStrength
	}
	if !finite(p.Strength) || p.Strength <= 0 || p.Strength > 1 {
		return Effect{}, Invalid("effect strength must be within (0,1], got %g", p.Strength)
	}
	return Effect{target: tg, p: p}, nil
}

func (Effect) Kind() Kind             { return KindEffect }
func (e Effect) Params() EffectParams { return e.p }

// ---- Watermark ----

type Position string

const (
	TopLeft      Position = "top-left"
	TopCenter    Position = "top-center"
	TopRight     Position = "top-right"
	CenterLeft   Position = "center-left"
	Center       Position = "center"
	CenterRight  Position = "center-right"
	BottomLeft   Position = "bottom-left"
	BottomCenter Position = "bottom-center"
	BottomRight  Position = "bottom-right"
)

// Positions lists the watermark anchors.
func Positions() []Position {
	return []Position{TopLeft, TopCenter, TopRight, CenterLeft, Center, CenterRight, BottomLeft, BottomCenter, BottomRight}
}

const (
	defaultWatermarkOpacity = 0.5
	defaultWatermarkScale   = 0.2
)

type WatermarkParams struct {
	Text     string   `json:"text,omitempty"`
	Image    string   `json:"image,omitempty"`
	Position Position `json:"position,omitempty"`
	Opacity  float64  `json:"opacity,omitempty"`
	Scale    float64  `json:"scale,omitempty"`
}

type Watermark struct {
	target
	p WatermarkParams
}

// NewWatermark requires exactly one of Text or Image.
func NewWatermark(t Target, p WatermarkParams) (Watermark, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return Watermark{}, err
	}
	p.Text = strings.TrimSpace(p.Text)
	p.Image = strings.TrimSpace(p.Image)
	switch {
	case p.Text == "" && p.Image == "":
		return Watermark{}, Invalid("watermark needs text or image")
	case p.Text != "" && p.Image != "":
		return Watermark{}, Invalid("watermark takes either text or image, not both")
	}

	if p.Position == "" {
		p.Position = BottomRight
	}
	p.Position = Position(strings.ToLower(string(p.Position)))
	known := false
	for _, pos := range Positions() {
		if p.Position == pos {
			known = true
			break
		}
	}
	if !known {
		return Watermark{}, Invalid("unknown watermark position %q", p.Position)
	}

	if p.Opacity == 0 {
		p.Opacity = defaultWatermarkOpacity
	}
	if !finite(p.Opacity) || p.Opacity <= 0 || p.Opacity > 1 {
		return Watermark{}, Invalid("watermark opacity must be within (0,1], got %g", p.Opacity)
	}
	if p.Scale == 0 {
		p.Scale = defaultWatermarkScale
	}
	if !finite(p.Scale) || p.Scale <= 0 || p.Scale > 1 {
		return Watermark{}, Invalid("watermark scale must be within (0,1], got %g", p.Scale)
	}
	return Watermark{target: tg, p: p}, nil
}

func (Watermark) Kind() Kind                { return KindWatermark }
func (w Watermark) Params() WatermarkParams { return w.p }

// Inputs includes the overlay image when one is used.
func (w Watermark) Inputs() []string {
	if w.p.Image != "" {
		return []string{w.input, w.p.Image}
	}
	return []string{w.input}
}

// ---- ConvertFormat ----

type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatGIF  ImageFormat = "gif"
	FormatTIFF ImageFormat = "tiff"
	FormatBMP  ImageFormat = "bmp"
)

type ConvertFormatParams struct {
	Format  ImageFormat `json:"format"`
	Quality int         `json:"quality,omitempty"`
}

type ConvertFormat struct {
	target
	p ConvertFormatParams
}

func NewConvertFormat(t Target, p ConvertFormatParams) (ConvertFormat, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return ConvertFormat{}, err
	}
	switch strings.ToLower(string(p.Format)) {
	case "jpeg", "jpg":
		p.Format = FormatJPEG
	case "png":
		p.Format = FormatPNG
	case "gif":
		p.Format = FormatGIF
	case "tiff", "tif":
		p.Format = FormatTIFF
	case "bmp":
		p.Format = FormatBMP
	default:
		return ConvertFormat{}, Invalid("unsupported target format %q", p.Format)
	}
	if p.Quality, err = quality(p.Quality, 90); err != nil {
		return ConvertFormat{}, err
	}
	return ConvertFormat{target: tg, p: p}, nil
}

func (ConvertFormat) Kind() Kind                    { return KindConvertFormat }
func (c ConvertFormat) Params() ConvertFormatParams { return c.p }

// ---- Thumbnail ----

type ThumbnailParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Thumbnail struct {
	target
	p ThumbnailParams
}

func NewThumbnail(t Target, p ThumbnailParams) (Thumbnail, error) {
	tg, err := newTarget(t, true)
	if err != nil {
		return Thumbnail{}, err
	}
	if p.Width <= 0 || p.Height <= 0 {
		return Thumbnail{}, Invalid("thumbnail dimensions must be positive, got %dx%d", p.Width, p.Height)
	}
	return Thumbnail{target: tg, p: p}, nil
}

func (Thumbnail) Kind() Kind                 { return KindThumbnail }
func (th Thumbnail) Params() ThumbnailParams { return th.p }
