// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package raster

import (
	"image"
	"image/color"
	"math"

	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/disintegration/imaging"
)

// Resize scales img. Fit keeps the aspect ratio inside the box and never
// enlarges; crop fills the box and trims the overflow around the centre.
func Resize(img image.Image, p op.ResizeParams) image.Image {
	switch p.Mode {
	case op.ResizeCrop:
		return imaging.Fill(img, p.Width, p.Height, imaging.Center, imaging.Lanczos)
	case op.ResizeExact:
		return imaging.Resize(img, p.Width, p.Height, imaging.Lanczos)
	default:
		return imaging.Fit(img, p.Width, p.Height, imaging.Lanczos)
	}
}

// Rotate turns img counter-clockwise by angle degrees in [0,360).
// Right angles are lossless; other angles expand the canvas and fill the
// corners with transparent black.
func Rotate(img image.Image, angle float64) image.Image {
	switch angle {
	case 0:
		return imaging.Clone(img)
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return imaging.Rotate(img, angle, color.Transparent)
	}
}

// Crop cuts the rectangle out of img; it must lie inside the image.
func Crop(img image.Image, p op.CropParams) (image.Image, error) {
	b := img.Bounds()
	if p.X+p.Width > b.Dx() || p.Y+p.Height > b.Dy() {
		return nil, op.Invalid("crop rectangle %dx%d+%d+%d exceeds image bounds %dx%d",
			p.Width, p.Height, p.X, p.Y, b.Dx(), b.Dy())
	}
	r := image.Rect(p.X, p.Y, p.X+p.Width, p.Y+p.Height).Add(b.Min)
	return imaging.Crop(img, r), nil
}

func Flip(img image.Image, d op.FlipDirection) image.Image {
	if d == op.FlipVertical {
		return imaging.FlipV(img)
	}
	return imaging.FlipH(img)
}

// Thumbnail centre-crops img to exactly w x h.
func Thumbnail(img image.Image, w, h int) image.Image {
	return imaging.Thumbnail(img, w, h, imaging.Lanczos)
}

var (
	embossKernel = [9]float64{-2, -1, 0, -1, 1, 1, 0, 1, 2}
	edgeKernel   = [9]float64{-1, -1, -1, -1, 8, -1, -1, -1, -1}
)

// Filter applies a named filter at the descriptor's intensity.
func Filter(img image.Image, f op.Filter) image.Image {
	v := f.Intensity()
	switch f.Name() {
	case op.FilterBlur:
		return imaging.Blur(img, v)
	case op.FilterSharpen:
		return imaging.Sharpen(img, v)
	case op.FilterGrayscale:
		return imaging.Grayscale(img)
	case op.FilterSepia:
		return sepia(img, v)
	case op.FilterBrightness:
		return imaging.AdjustBrightness(img, v)
	case op.FilterContrast:
		return imaging.AdjustContrast(img, v)
	case op.FilterSaturation:
		return imaging.AdjustSaturation(img, v)
	case op.FilterGamma:
		return imaging.AdjustGamma(img, v)
	case op.FilterInvert:
		return imaging.Invert(img)
	case op.FilterEmboss:
		return imaging.Convolve3x3(imaging.Grayscale(img), embossKernel, nil)
	case op.FilterEdgeDetect:
		return imaging.Convolve3x3(imaging.Grayscale(img), edgeKernel, &imaging.ConvolveOptions{Abs: true})
	default:
		return imaging.Clone(img)
	}
}

// sepia blends the classic sepia matrix with the original by amount.
func sepia(img image.Image, amount float64) image.Image {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		sr := 0.393*r + 0.769*g + 0.189*b
		sg := 0.349*r + 0.686*g + 0.168*b
		sb := 0.272*r + 0.534*g + 0.131*b
		return color.NRGBA{
			R: clamp8(r + (sr-r)*amount),
			G: clamp8(g + (sg-g)*amount),
			B: clamp8(b + (sb-b)*amount),
			A: c.A,
		}
	})
}

// Effect applies a stylistic effect at strength in (0,1].
func Effect(img image.Image, p op.EffectParams) image.Image {
	switch p.Name {
	case op.EffectPixelate:
		return pixelate(img, p.Strength)
	case op.EffectVignette:
		return vignette(img, p.Strength)
	case op.EffectPosterize:
		return posterize(img, p.Strength)
	case op.EffectVintage:
		out := sepia(img, 0.6*p.Strength+0.2)
		out = imaging.AdjustContrast(out, -15*p.Strength)
		return vignette(out, 0.6*p.Strength)
	default:
		return imaging.Clone(img)
	}
}

// pixelate uses blocks of up to a tenth of the shorter side.
func pixelate(img image.Image, strength float64) image.Image {
	b := img.Bounds()
	short := min(b.Dx(), b.Dy())
	block := max(2, int(math.Round(strength*float64(short)/10)))
	w := max(1, b.Dx()/block)
	h := max(1, b.Dy()/block)
	small := imaging.Resize(img, w, h, imaging.Box)
	return imaging.Resize(small, b.Dx(), b.Dy(), imaging.NearestNeighbor)
}

func vignette(img image.Image, strength float64) image.Image {
	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	cx, cy := float64(w)/2, float64(h)/2
	maxD := math.Hypot(cx, cy)
	if maxD == 0 {
		return out
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy) / maxD
			f := 1 - strength*d*d
			i := out.PixOffset(x, y)
			out.Pix[i+0] = clamp8(float64(out.Pix[i+0]) * f)
			out.Pix[i+1] = clamp8(float64(out.Pix[i+1]) * f)
			out.Pix[i+2] = clamp8(float64(out.Pix[i+2]) * f)
		}
	}
	return out
}

// posterize reduces each channel from 16 levels (weak) down to 2 (full strength).
func posterize(img image.Image, strength float64) image.Image {
	levels := max(2, int(math.Round(16-14*strength)))
	step := 255.0 / float64(levels-1)
	q := func(v uint8) uint8 {
		return clamp8(math.Round(float64(v)/step) * step)
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: q(c.R), G: q(c.G), B: q(c.B), A: c.A}
	})
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
