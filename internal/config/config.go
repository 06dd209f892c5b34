// SPDX-License-Identifier: EPL-2.0

// Package config provides the YAML configuration schema and loader for
// padmix.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure.
type Config struct {
	LogLevel LogLevel `yaml:"log_level"`

	// SampleRate is the device and mixing rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// BufferMS is the device buffer length; it also sets the render block.
	BufferMS int `yaml:"buffer_ms"`

	// DecodeWorkers bounds the number of concurrent decodes.
	DecodeWorkers int `yaml:"decode_workers"`

	// DefaultVolume is the initial per-slot volume in [0, 1].
	DefaultVolume float64 `yaml:"default_volume"`

	// PanOffset is the magnitude of the pan bias applied by modifier keys
	// in front ends; the engine itself takes the bias per trigger.
	PanOffset float64 `yaml:"pan_offset"`

	Reverb  ReverbConfig  `yaml:"reverb"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ReverbConfig selects the impulse responses and the initial send.
type ReverbConfig struct {
	// Preset is the initial preset name (none, hall, bathroom, tunnel, hallway).
	Preset string `yaml:"preset"`

	// Wet is the initial wet fraction in [0, 1].
	Wet float64 `yaml:"wet"`

	// AssetsDir is a local directory the asset paths are resolved against.
	AssetsDir string `yaml:"assets_dir"`

	// AssetsURL is an HTTP base URL used instead of AssetsDir when set.
	AssetsURL string `yaml:"assets_url"`

	// Assets maps preset names to impulse response paths.
	Assets map[string]string `yaml:"assets"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables it.
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:      LogInfo,
		SampleRate:    48000,
		BufferMS:      20,
		DecodeWorkers: 4,
		DefaultVolume: 1.0,
		PanOffset:     0.5,
		Reverb: ReverbConfig{
			Preset:    "none",
			Wet:       0.3,
			AssetsDir: ".",
			Assets: map[string]string{
				"hall":     "impulses/hall.wav",
				"bathroom": "impulses/bathroom.wav",
				"tunnel":   "impulses/tunnel.wav",
				"hallway":  "impulses/hallway.wav",
			},
		},
	}
}

// BufferFrames is the number of frames in one device buffer.
func (c *Config) BufferFrames() int {
	return c.SampleRate * c.BufferMS / 1000
}

// BufferDuration is BufferMS as a duration.
func (c *Config) BufferDuration() time.Duration {
	return time.Duration(c.BufferMS) * time.Millisecond
}
