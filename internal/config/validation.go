// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, fmt.Sprintf(format, args...))
}

// Validate reports every problem in cfg at once.
func Validate(cfg Config) error {
	var errs []error

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil || cfg.Log.Level == "" {
		errs = append(errs, invalid("log.level", "unknown level %q", cfg.Log.Level))
	}
	if cfg.API.ListenAddr == "" {
		errs = append(errs, invalid("api.listen_addr", "must not be empty"))
	}
	if cfg.API.RateLimitRPM < 0 {
		errs = append(errs, invalid("api.rate_limit_rpm", "must be >= 0, got %d", cfg.API.RateLimitRPM))
	}

	e := cfg.Engine
	if e.OperationTimeout <= 0 {
		errs = append(errs, invalid("engine.operation_timeout", "must be > 0, got %s", e.OperationTimeout))
	}
	if e.BatchConcurrency < 1 {
		errs = append(errs, invalid("engine.batch_concurrency", "must be >= 1, got %d", e.BatchConcurrency))
	}
	if e.MaxConcurrency < 1 {
		errs = append(errs, invalid("engine.max_concurrency", "must be >= 1, got %d", e.MaxConcurrency))
	}
	if e.KillGrace <= 0 {
		errs = append(errs, invalid("engine.kill_grace", "must be > 0, got %s", e.KillGrace))
	}
	if e.ScratchDir == "" {
		errs = append(errs, invalid("engine.scratch_dir", "must not be empty"))
	}

	if cfg.FFmpeg.Bin == "" {
		errs = append(errs, invalid("ffmpeg.bin", "must not be empty"))
	}
	if cfg.FFmpeg.FFprobeBin == "" {
		errs = append(errs, invalid("ffmpeg.ffprobe_bin", "must not be empty"))
	}
	if cfg.Jobs.Retention < 0 {
		errs = append(errs, invalid("jobs.retention", "must be >= 0, got %s", cfg.Jobs.Retention))
	}

	if m := cfg.Storage.Mirror; m.Enabled {
		if m.Endpoint == "" {
			errs = append(errs, invalid("storage.mirror.endpoint", "required when mirror is enabled"))
		}
		if m.Bucket == "" {
			errs = append(errs, invalid("storage.mirror.bucket", "required when mirror is enabled"))
		}
	}

	if t := cfg.Telemetry; t.Enabled {
		if t.Exporter != "grpc" && t.Exporter != "http" {
			errs = append(errs, invalid("telemetry.exporter", "must be grpc or http, got %q", t.Exporter))
		}
		if t.Endpoint == "" {
			errs = append(errs, invalid("telemetry.endpoint", "required when telemetry is enabled"))
		}
	}
	if r := cfg.Telemetry.SamplingRate; r < 0 || r > 1 {
		errs = append(errs, invalid("telemetry.sampling_rate", "must be within [0,1], got %g", r))
	}

	return errors.Join(errs...)
}
