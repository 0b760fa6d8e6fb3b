// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package raster

import (
	"image"
	"math"

	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// WatermarkMargin is the distance kept from the image edges.
const WatermarkMargin = 10

// TextMark renders text white on a transparent canvas with a 1px shadow.
func TextMark(text string) image.Image {
	tw, th := gg.NewContext(1, 1).MeasureString(text)
	w := int(math.Ceil(tw)) + 4
	h := int(math.Ceil(th)) + 6

	dc := gg.NewContext(w, h)
	dc.SetRGBA(0, 0, 0, 0.6)
	dc.DrawStringAnchored(text, float64(w)/2+1, float64(h)/2+1, 0.5, 0.5)
	dc.SetRGBA(1, 1, 1, 1)
	dc.DrawStringAnchored(text, float64(w)/2, float64(h)/2, 0.5, 0.5)
	return dc.Image()
}

// Watermark scales mark to p.Scale of the base width and blends it at the
// anchor with p.Opacity.
func Watermark(base, mark image.Image, p op.WatermarkParams) image.Image {
	bb := base.Bounds()
	targetW := max(1, int(math.Round(float64(bb.Dx())*p.Scale)))
	scaled := imaging.Resize(mark, targetW, 0, imaging.Lanczos)
	return imaging.Overlay(base, scaled, Anchor(bb, scaled.Bounds(), p.Position), p.Opacity)
}

// Anchor returns the top-left point that places mark at pos inside base.
func Anchor(base, mark image.Rectangle, pos op.Position) image.Point {
	bw, bh := base.Dx(), base.Dy()
	mw, mh := mark.Dx(), mark.Dy()

	left := WatermarkMargin
	hcenter := (bw - mw) / 2
	right := bw - mw - WatermarkMargin
	top := WatermarkMargin
	vcenter := (bh - mh) / 2
	bottom := bh - mh - WatermarkMargin

	var x, y int
	switch pos {
	case op.TopLeft:
		x, y = left, top
	case op.TopCenter:
		x, y = hcenter, top
	case op.TopRight:
		x, y = right, top
	case op.CenterLeft:
		x, y = left, vcenter
	case op.Center:
		x, y = hcenter, vcenter
	case op.CenterRight:
		x, y = right, vcenter
	case op.BottomLeft:
		x, y = left, bottom
	case op.BottomCenter:
		x, y = hcenter, bottom
	default:
		x, y = right, bottom
	}
	return image.Pt(x, y).Add(base.Min)
}
