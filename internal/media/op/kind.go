// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package op

import "strings"

// Kind names an operation. The set is closed.
type Kind string

const (
	KindResize          Kind = "resize"
	KindRotate          Kind = "rotate"
	KindCrop            Kind = "crop"
	KindFlip            Kind = "flip"
	KindFilter          Kind = "filter"
	KindEffect          Kind = "effect"
	KindWatermark       Kind = "watermark"
	KindCompress        Kind = "compress"
	KindConvertFormat   Kind = "convert_format"
	KindThumbnail       Kind = "thumbnail"
	KindTranscode       Kind = "transcode"
	KindExtractAudio    Kind = "extract_audio"
	KindExtractMetadata Kind = "extract_metadata"
	KindNormalizeAudio  Kind = "normalize_audio"
	KindEnhance         Kind = "enhance"
	KindAssessQuality   Kind = "assess_quality"
	KindOptimizeWeb     Kind = "optimize_web"
)

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindResize, KindRotate, KindCrop, KindFlip, KindFilter, KindEffect,
		KindWatermark, KindCompress, KindConvertFormat, KindThumbnail,
		KindTranscode, KindExtractAudio, KindExtractMetadata, KindNormalizeAudio,
		KindEnhance, KindAssessQuality, KindOptimizeWeb,
	}
}

// ParseKind resolves a kind name case-insensitively.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Accepts reports the media classes a kind accepts as primary input.
func (k Kind) Accepts() MediaClass {
	switch k {
	case KindResize, KindRotate, KindCrop, KindFlip, KindFilter, KindEffect,
		KindWatermark, KindConvertFormat, KindThumbnail, KindEnhance, KindAssessQuality,
		KindOptimizeWeb:
		return ClassImage
	case KindCompress:
		return ClassImage | ClassVideo
	case KindTranscode, KindExtractAudio, KindNormalizeAudio:
		return ClassVideo | ClassAudio
	default:
		return ClassAny
	}
}

// MediaClass is a bit set of media families.
type MediaClass uint8

const (
	ClassImage MediaClass = 1 << iota
	ClassVideo
	ClassAudio

	ClassAny = ClassImage | ClassVideo | ClassAudio
)

// Has reports whether every class in o is contained in c.
func (c MediaClass) Has(o MediaClass) bool { return o != 0 && c&o == o }

func (c MediaClass) String() string {
	if c == ClassAny {
		return "any"
	}
	var parts []string
	if c&ClassImage != 0 {
		parts = append(parts, "image")
	}
	if c&ClassVideo != 0 {
		parts = append(parts, "video")
	}
	if c&ClassAudio != 0 {
		parts = append(parts, "audio")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// OverwritePolicy decides what happens when the output already exists.
type OverwritePolicy uint8

const (
	OverwriteForbid OverwritePolicy = iota
	OverwriteAllow
)

func (p OverwritePolicy) String() string {
	if p == OverwriteAllow {
		return "allow"
	}
	return "forbid"
}
