// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/mediaops/internal/log"
)

// ProgressFunc receives completion in percent, 0..100.
type ProgressFunc func(percent float64)

// progressWriter consumes the key=value stream ffmpeg emits with
// "-progress pipe:1" and converts out_time against the expected total.
type progressWriter struct {
	mu      sync.Mutex
	total   time.Duration
	fn      ProgressFunc
	partial []byte
	last    float64
	logger  zerolog.Logger
	logs    rate.Sometimes
}

func newProgressWriter(total time.Duration, fn ProgressFunc) *progressWriter {
	return &progressWriter{
		total:  total,
		fn:     fn,
		logger: log.WithComponent("ffmpeg"),
		logs:   rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data := append(w.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		w.line(string(bytes.TrimSpace(data[:i])))
		data = data[i+1:]
	}
	w.partial = append(w.partial[:0], data...)
	return len(p), nil
}

func (w *progressWriter) line(line string) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return
		}
		w.report(time.Duration(us) * time.Microsecond)
	case "out_time":
		if d, ok := ParseClock(value); ok {
			w.report(d)
		}
	case "progress":
		if value == "end" {
			w.emit(100)
		}
	}
}

func (w *progressWriter) report(pos time.Duration) {
	if w.total <= 0 {
		return
	}
	pct := float64(pos) / float64(w.total) * 100
	if pct > 99.9 {
		// 100 is reserved for progress=end.
		pct = 99.9
	}
	w.emit(pct)
}

func (w *progressWriter) emit(pct float64) {
	if pct <= w.last && pct != 100 {
		return
	}
	if pct == 100 && w.last == 100 {
		return
	}
	w.last = pct
	if w.fn != nil {
		w.fn(pct)
	}
	w.logs.Do(func() {
		w.logger.Debug().
			Str(log.FieldEvent, "tool.progress").
			Float64(log.FieldProgress, pct).
			Msg("transcode progress")
	})
}

// ParseClock parses ffmpeg's HH:MM:SS.ffffff time notation.
func ParseClock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || sec < 0 {
		return 0, false
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return d + time.Duration(sec*float64(time.Second)), true
}
