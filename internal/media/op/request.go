// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package op

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is the wire form of a descriptor.
type Request struct {
	Kind      Kind            `json:"kind"`
	Input     string          `json:"input"`
	Output    string          `json:"output,omitempty"`
	Overwrite bool            `json:"overwrite,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Decode builds a descriptor from its wire form. Unknown parameter fields
// are rejected.
func Decode(req Request) (Descriptor, error) {
	kind, ok := ParseKind(string(req.Kind))
	if !ok {
		return nil, Invalid("unknown operation kind %q", req.Kind)
	}
	t := Target{Input: req.Input, Output: req.Output}
	if req.Overwrite {
		t.Overwrite = OverwriteAllow
	}

	switch kind {
	case KindResize:
		var p ResizeParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewResize(t, p)
	case KindRotate:
		var p RotateParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewRotate(t, p)
	case KindCrop:
		var p CropParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewCrop(t, p)
	case KindFlip:
		var p FlipParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewFlip(t, p)
	case KindFilter:
		var p FilterParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewFilter(t, p)
	case KindEffect:
		var p EffectParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewEffect(t, p)
	case KindWatermark:
		var p WatermarkParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewWatermark(t, p)
	case KindCompress:
		var p CompressParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewCompress(t, p)
	case KindConvertFormat:
		var p ConvertFormatParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewConvertFormat(t, p)
	case KindThumbnail:
		var p ThumbnailParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewThumbnail(t, p)
	case KindTranscode:
		var p TranscodeParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewTranscode(t, p)
	case KindExtractAudio:
		var p ExtractAudioParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewExtractAudio(t, p)
	case KindExtractMetadata:
		var p ExtractMetadataParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewExtractMetadata(t)
	case KindNormalizeAudio:
		var p NormalizeAudioParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewNormalizeAudio(t, p)
	case KindEnhance:
		var p EnhanceParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewEnhance(t, p)
	case KindAssessQuality:
		var p AssessQualityParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewAssessQuality(t)
	case KindOptimizeWeb:
		var p OptimizeWebParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return NewOptimizeWeb(t, p)
	}
	return nil, Invalid("unhandled operation kind %q", kind)
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return Invalid("params: %v", err)
	}
	return nil
}

// Encode returns the normalised wire form of d.
func Encode(d Descriptor) Request {
	req := Request{
		Kind:      d.Kind(),
		Input:     d.Inputs()[0],
		Output:    d.Output(),
		Overwrite: d.Overwrite() == OverwriteAllow,
	}
	var params any
	switch v := d.(type) {
	case Resize:
		params = v.Params()
	case Rotate:
		params = v.Params()
	case Crop:
		params = v.Params()
	case Flip:
		params = v.Params()
	case Filter:
		params = v.Params()
	case Effect:
		params = v.Params()
	case Watermark:
		params = v.Params()
	case Compress:
		params = v.Params()
	case ConvertFormat:
		params = v.Params()
	case Thumbnail:
		params = v.Params()
	case Transcode:
		params = v.Params()
	case ExtractAudio:
		params = v.Params()
	case NormalizeAudio:
		params = v.Params()
	case Enhance:
		params = v.Params()
	case OptimizeWeb:
		params = v.Params()
	case ExtractMetadata, AssessQuality:
	default:
		panic(fmt.Sprintf("op: unhandled descriptor %T", d))
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			panic(fmt.Sprintf("op: marshal %s params: %v", d.Kind(), err))
		}
		req.Params = raw
	}
	return req
}
