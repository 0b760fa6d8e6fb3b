// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads daemon configuration from defaults, an optional YAML
// file and MEDIAOPS_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete daemon configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Engine    EngineConfig    `yaml:"engine"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type APIConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	RateLimitRPM int    `yaml:"rate_limit_rpm"` // 0 disables rate limiting
}

// EngineConfig bounds execution of single operations and batches.
type EngineConfig struct {
	OperationTimeout time.Duration `yaml:"operation_timeout"`
	BatchConcurrency int           `yaml:"batch_concurrency"`
	MaxConcurrency   int           `yaml:"max_concurrency"`
	KillGrace        time.Duration `yaml:"kill_grace"`
	ScratchDir       string        `yaml:"scratch_dir"`
}

type FFmpegConfig struct {
	Bin        string `yaml:"bin"`
	FFprobeBin string `yaml:"ffprobe_bin"`
}

type JobsConfig struct {
	// Retention is how long terminal jobs stay queryable. 0 keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

type StorageConfig struct {
	Mirror MirrorConfig `yaml:"mirror"`
}

// MirrorConfig configures the optional S3-compatible copy of every output.
type MirrorConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		API: APIConfig{
			ListenAddr:   ":8088",
			RateLimitRPM: 600,
		},
		Engine: EngineConfig{
			OperationTimeout: 10 * time.Minute,
			BatchConcurrency: 4,
			MaxConcurrency:   8,
			KillGrace:        5 * time.Second,
			ScratchDir:       filepath.Join(os.TempDir(), "mediaops"),
		},
		FFmpeg: FFmpegConfig{
			Bin:        "ffmpeg",
			FFprobeBin: "ffprobe",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// loadFile decodes path on top of cfg. Unknown keys and multiple YAML
// documents are rejected.
func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: multiple YAML documents are not supported", path)
	}
	return nil
}
