// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package raster implements the in-process image transforms.
package raster

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/ManuGH/mediaops/internal/media/op"
	"github.com/disintegration/imaging"
)

// Open decodes path, applying EXIF orientation.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, op.Wrap(op.FailUnsupportedFormat, path, fmt.Errorf("decode image: %w", err))
	}
	return img, nil
}

// FormatFor picks the encoding for path from its extension, falling back
// to the source format.
func FormatFor(path string, fallback imaging.Format) imaging.Format {
	if f, err := imaging.FormatFromFilename(path); err == nil {
		return f
	}
	return fallback
}

// FormatFromMIME maps a sniffed image MIME type onto an imaging format.
func FormatFromMIME(m string) imaging.Format {
	switch m {
	case "image/png":
		return imaging.PNG
	case "image/gif":
		return imaging.GIF
	case "image/tiff":
		return imaging.TIFF
	case "image/bmp":
		return imaging.BMP
	default:
		return imaging.JPEG
	}
}

// ImagingFormat converts an operation format name.
func ImagingFormat(f op.ImageFormat) imaging.Format {
	switch f {
	case op.FormatPNG:
		return imaging.PNG
	case op.FormatGIF:
		return imaging.GIF
	case op.FormatTIFF:
		return imaging.TIFF
	case op.FormatBMP:
		return imaging.BMP
	default:
		return imaging.JPEG
	}
}

// Save encodes img into path. quality applies to JPEG only; PNG output is
// written with the best compression level.
func Save(img image.Image, path string, format imaging.Format, quality int) error {
	f, err := os.Create(path) // #nosec G304 -- scratch path
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	opts := []imaging.EncodeOption{imaging.PNGCompressionLevel(png.BestCompression)}
	if quality > 0 {
		opts = append(opts, imaging.JPEGQuality(quality))
	}
	if err := imaging.Encode(f, img, format, opts...); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", format, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// DecodeConfig reads only the header of an image file.
func DecodeConfig(path string) (image.Config, string, error) {
	f, err := os.Open(path) // #nosec G304 -- validated input
	if err != nil {
		return image.Config{}, "", err
	}
	defer func() { _ = f.Close() }()
	return image.DecodeConfig(f)
}
