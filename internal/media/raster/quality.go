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

// Enhance applies an automatic correction.
func Enhance(img image.Image, mode op.EnhanceMode) image.Image {
	switch mode {
	case op.EnhanceDenoise:
		return imaging.Blur(img, 0.5)
	case op.EnhanceColorCorrect:
		return grayWorld(img)
	default:
		out := stretchLevels(img, 0.02, 0.98)
		out = imaging.AdjustSaturation(out, 15)
		return imaging.Sharpen(out, 0.5)
	}
}

// stretchLevels maps the lo/hi luminance percentiles onto the full range.
func stretchLevels(img image.Image, lo, hi float64) *image.NRGBA {
	hist := imaging.Histogram(img)
	var cum float64
	black, white := -1, 255
	for i, v := range hist {
		cum += v
		if black < 0 && cum >= lo {
			black = i
		}
		if cum >= hi {
			white = i
			break
		}
	}
	if black < 0 || white <= black {
		return imaging.Clone(img)
	}
	scale := 255 / float64(white-black)
	lift := func(v uint8) uint8 { return clamp8((float64(v) - float64(black)) * scale) }
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lift(c.R), G: lift(c.G), B: lift(c.B), A: c.A}
	})
}

// grayWorld scales each channel so the channel means meet at their average.
func grayWorld(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)
	var sum [3]float64
	n := float64(len(src.Pix) / 4)
	if n == 0 {
		return src
	}
	for i := 0; i < len(src.Pix); i += 4 {
		sum[0] += float64(src.Pix[i])
		sum[1] += float64(src.Pix[i+1])
		sum[2] += float64(src.Pix[i+2])
	}
	gray := (sum[0] + sum[1] + sum[2]) / 3
	var gain [3]float64
	for c := range gain {
		gain[c] = 1
		if sum[c] > 0 {
			gain[c] = gray / sum[c]
		}
	}
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(float64(c.R) * gain[0]),
			G: clamp8(float64(c.G) * gain[1]),
			B: clamp8(float64(c.B) * gain[2]),
			A: c.A,
		}
	})
}

// Assessment scores are in [0,1]. Brightness is the mean level, so both ends
// are problems; NoiseLevel is higher for noisier images.
type Assessment struct {
	Overall      float64
	Sharpness    float64
	Brightness   float64
	Contrast     float64
	NoiseLevel   float64
	ColorBalance float64
	Composition  float64
	Issues       []string
	Suggestions  []string
}

// Metrics flattens the assessment for a result record.
func (a Assessment) Metrics() map[string]any {
	return map[string]any{
		"overall_score":     a.Overall,
		"sharpness":         a.Sharpness,
		"brightness":        a.Brightness,
		"contrast":          a.Contrast,
		"noise_level":       a.NoiseLevel,
		"color_balance":     a.ColorBalance,
		"composition_score": a.Composition,
		"issues":            a.Issues,
		"suggestions":       a.Suggestions,
	}
}

// edgeThreshold is the absolute edge response counted as an edge pixel.
const edgeThreshold = 64

// Assess scores technical image quality.
func Assess(img image.Image) Assessment {
	gray := imaging.Grayscale(img)
	a := Assessment{
		Sharpness:    edgeRatio(gray),
		Brightness:   meanLevel(img),
		Contrast:     spread(gray, 0.05, 0.95),
		NoiseLevel:   localVariance(gray),
		ColorBalance: channelBalance(img),
		Composition:  thirdsContrast(gray),
	}
	a.Overall = (a.Sharpness + a.Brightness + a.Contrast + a.ColorBalance + a.Composition) / 5
	a.Issues, a.Suggestions = []string{}, []string{}

	flag := func(issue, fix string) {
		a.Issues = append(a.Issues, issue)
		a.Suggestions = append(a.Suggestions, fix)
	}
	if a.Sharpness < 0.5 {
		flag("image appears blurry", "apply a sharpening filter")
	}
	switch {
	case a.Brightness < 0.3:
		flag("image is too dark", "increase brightness or exposure")
	case a.Brightness > 0.8:
		flag("image is overexposed", "reduce exposure or brightness")
	}
	if a.Contrast < 0.4 {
		flag("low contrast", "increase contrast or apply a tone curve")
	}
	if a.NoiseLevel > 0.7 {
		flag("high noise level", "apply noise reduction")
	}
	return a
}

func edgeRatio(gray *image.NRGBA) float64 {
	edges := imaging.Convolve3x3(gray, edgeKernel, &imaging.ConvolveOptions{Abs: true})
	var n int
	for i := 0; i < len(edges.Pix); i += 4 {
		if edges.Pix[i] > edgeThreshold {
			n++
		}
	}
	return ratio(float64(n), float64(len(edges.Pix)/4))
}

func meanLevel(img image.Image) float64 {
	src := imaging.Clone(img)
	var sum float64
	for i := 0; i < len(src.Pix); i += 4 {
		sum += (float64(src.Pix[i]) + float64(src.Pix[i+1]) + float64(src.Pix[i+2])) / 3
	}
	return ratio(sum, float64(len(src.Pix)/4)) / 255
}

// spread is the distance between two luminance percentiles.
func spread(gray *image.NRGBA, lo, hi float64) float64 {
	var hist [256]int
	for i := 0; i < len(gray.Pix); i += 4 {
		hist[gray.Pix[i]]++
	}
	n := len(gray.Pix) / 4
	percentile := func(q float64) int {
		want := int(float64(n) * q)
		var cum int
		for v, c := range hist {
			cum += c
			if cum > want {
				return v
			}
		}
		return 255
	}
	return float64(percentile(hi)-percentile(lo)) / 255
}

// localVariance averages the squared 3x3 neighbourhood differences.
func localVariance(gray *image.NRGBA) float64 {
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w < 3 || h < 3 {
		return 0
	}
	at := func(x, y int) float64 { return float64(gray.Pix[gray.PixOffset(x, y)]) }
	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := at(x, y)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					d := c - at(x+dx, y+dy)
					sum += d * d
				}
			}
		}
	}
	avg := sum / float64((w-2)*(h-2))
	return math.Min(avg/(255*255), 1)
}

func channelBalance(img image.Image) float64 {
	src := imaging.Clone(img)
	n := float64(len(src.Pix) / 4)
	if n == 0 {
		return 1
	}
	var sum [3]float64
	for i := 0; i < len(src.Pix); i += 4 {
		sum[0] += float64(src.Pix[i])
		sum[1] += float64(src.Pix[i+1])
		sum[2] += float64(src.Pix[i+2])
	}
	hi := max(sum[0], sum[1], sum[2]) / n
	lo := min(sum[0], sum[1], sum[2]) / n
	return 1 - (hi-lo)/255
}

// thirdsContrast measures local contrast around the rule-of-thirds points.
func thirdsContrast(gray *image.NRGBA) float64 {
	const radius = 20
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w == 0 || h == 0 {
		return 0
	}
	at := func(x, y int) float64 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return float64(gray.Pix[gray.PixOffset(x, y)])
	}
	points := [4][2]int{{w / 3, h / 3}, {w / 3, h * 2 / 3}, {w * 2 / 3, h / 3}, {w * 2 / 3, h * 2 / 3}}
	var score float64
	for _, p := range points {
		c := at(p[0], p[1])
		var local float64
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				local += math.Abs(c - at(p[0]+dx, p[1]+dy))
			}
		}
		score += local / ((2*radius + 1) * (2*radius + 1) * 255)
	}
	return math.Min(score/float64(len(points)), 1)
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
