// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ProbeInfo is the subset of ffprobe output the engine consumes.
type ProbeInfo struct {
	FormatName string
	Duration   time.Duration
	BitRate    int64
	Size       int64
	Streams    []Stream
}

// Stream describes one elementary stream.
type Stream struct {
	Index      int
	CodecType  string
	CodecName  string
	Width      int
	Height     int
	FrameRate  float64
	SampleRate int
	Channels   int
}

// Video returns the first video stream.
func (p ProbeInfo) Video() (Stream, bool) { return p.first("video") }

// Audio returns the first audio stream.
func (p ProbeInfo) Audio() (Stream, bool) { return p.first("audio") }

func (p ProbeInfo) first(codecType string) (Stream, bool) {
	for _, s := range p.Streams {
		if s.CodecType == codecType {
			return s, true
		}
	}
	return Stream{}, false
}

type probeJSON struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		Size       string `json:"size"`
	} `json:"format"`
	Streams []struct {
		Index        int    `json:"index"`
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		SampleRate   string `json:"sample_rate"`
		Channels     int    `json:"channels"`
	} `json:"streams"`
}

// ParseProbe decodes ffprobe's -print_format json output.
func ParseProbe(data []byte) (ProbeInfo, error) {
	var raw probeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return ProbeInfo{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	info := ProbeInfo{
		FormatName: raw.Format.FormatName,
		BitRate:    atoi64(raw.Format.BitRate),
		Size:       atoi64(raw.Format.Size),
	}
	if secs, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil && secs > 0 {
		info.Duration = time.Duration(secs * float64(time.Second))
	}
	for _, s := range raw.Streams {
		info.Streams = append(info.Streams, Stream{
			Index:      s.Index,
			CodecType:  s.CodecType,
			CodecName:  s.CodecName,
			Width:      s.Width,
			Height:     s.Height,
			FrameRate:  parseRate(s.AvgFrameRate),
			SampleRate: int(atoi64(s.SampleRate)),
			Channels:   s.Channels,
		})
	}
	return info, nil
}

func atoi64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseRate handles "30000/1001" as well as plain numbers.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
