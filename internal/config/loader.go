// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/ManuGH/mediaops/internal/log"
)

// Loader builds a Config from defaults, an optional file and the environment.
type Loader struct {
	path string
}

// NewLoader returns a loader for the given file path. An empty path means
// ENV-only configuration.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the configured file path.
func (l *Loader) Path() string { return l.path }

// Load resolves the configuration and validates it.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.path != "" {
		if err := loadFile(l.path, &cfg); err != nil {
			return Config{}, err
		}
		logger := log.WithComponent("config")
		logger.Debug().
			Str(log.FieldEvent, "config.file_loaded").
			Str(log.FieldPath, l.path).
			Msg("configuration file merged")
	}

	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// mergeEnv overrides cfg with MEDIAOPS_* variables. The current value of each
// field acts as the default so file values survive when a variable is unset.
func mergeEnv(cfg *Config) {
	cfg.Log.Level = ParseString("MEDIAOPS_LOG_LEVEL", cfg.Log.Level)

	cfg.API.ListenAddr = ParseString("MEDIAOPS_API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimitRPM = ParseInt("MEDIAOPS_API_RATE_LIMIT_RPM", cfg.API.RateLimitRPM)

	cfg.Engine.OperationTimeout = ParseDuration("MEDIAOPS_ENGINE_OPERATION_TIMEOUT", cfg.Engine.OperationTimeout)
	cfg.Engine.BatchConcurrency = ParseInt("MEDIAOPS_ENGINE_BATCH_CONCURRENCY", cfg.Engine.BatchConcurrency)
	cfg.Engine.MaxConcurrency = ParseInt("MEDIAOPS_ENGINE_MAX_CONCURRENCY", cfg.Engine.MaxConcurrency)
	cfg.Engine.KillGrace = ParseDuration("MEDIAOPS_ENGINE_KILL_GRACE", cfg.Engine.KillGrace)
	cfg.Engine.ScratchDir = ParseString("MEDIAOPS_ENGINE_SCRATCH_DIR", cfg.Engine.ScratchDir)

	cfg.FFmpeg.Bin = ParseString("MEDIAOPS_FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.FFprobeBin = ParseString("MEDIAOPS_FFMPEG_FFPROBE_BIN", cfg.FFmpeg.FFprobeBin)

	cfg.Jobs.Retention = ParseDuration("MEDIAOPS_JOBS_RETENTION", cfg.Jobs.Retention)

	m := &cfg.Storage.Mirror
	m.Enabled = ParseBool("MEDIAOPS_STORAGE_MIRROR_ENABLED", m.Enabled)
	m.Endpoint = ParseString("MEDIAOPS_STORAGE_MIRROR_ENDPOINT", m.Endpoint)
	m.AccessKey = ParseString("MEDIAOPS_STORAGE_MIRROR_ACCESS_KEY", m.AccessKey)
	m.SecretKey = ParseString("MEDIAOPS_STORAGE_MIRROR_SECRET_KEY", m.SecretKey)
	m.Bucket = ParseString("MEDIAOPS_STORAGE_MIRROR_BUCKET", m.Bucket)
	m.UseSSL = ParseBool("MEDIAOPS_STORAGE_MIRROR_USE_SSL", m.UseSSL)

	t := &cfg.Telemetry
	t.Enabled = ParseBool("MEDIAOPS_TELEMETRY_ENABLED", t.Enabled)
	t.Exporter = ParseString("MEDIAOPS_TELEMETRY_EXPORTER", t.Exporter)
	t.Endpoint = ParseString("MEDIAOPS_TELEMETRY_ENDPOINT", t.Endpoint)
	t.SamplingRate = ParseFloat("MEDIAOPS_TELEMETRY_SAMPLING_RATE", t.SamplingRate)
}
