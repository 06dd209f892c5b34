// SPDX-License-Identifier: EPL-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ik5/padmix/reverb"
)

// Load reads the YAML configuration file at path on top of [Default] and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Asset entries are merged with the default mapping. An empty
// document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.SampleRate < 8000 || cfg.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate %d is out of range [8000, 192000]", cfg.SampleRate))
	}
	if cfg.BufferMS < 1 || cfg.BufferMS > 500 {
		errs = append(errs, fmt.Errorf("buffer_ms %d is out of range [1, 500]", cfg.BufferMS))
	}
	if cfg.DecodeWorkers < 1 {
		errs = append(errs, fmt.Errorf("decode_workers must be at least 1, got %d", cfg.DecodeWorkers))
	}
	if cfg.DefaultVolume < 0 || cfg.DefaultVolume > 1 {
		errs = append(errs, fmt.Errorf("default_volume %.2f is out of range [0, 1]", cfg.DefaultVolume))
	}
	if cfg.PanOffset < 0 || cfg.PanOffset > 1 {
		errs = append(errs, fmt.Errorf("pan_offset %.2f is out of range [0, 1]", cfg.PanOffset))
	}

	if _, err := reverb.ParsePreset(cfg.Reverb.Preset); err != nil {
		errs = append(errs, fmt.Errorf("reverb.preset: %w", err))
	}
	if cfg.Reverb.Wet < 0 || cfg.Reverb.Wet > 1 {
		errs = append(errs, fmt.Errorf("reverb.wet %.2f is out of range [0, 1]", cfg.Reverb.Wet))
	}
	if cfg.Reverb.AssetsURL != "" {
		if u, err := url.Parse(cfg.Reverb.AssetsURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("reverb.assets_url %q must be an http or https URL", cfg.Reverb.AssetsURL))
		}
	}
	for name, path := range cfg.Reverb.Assets {
		p, err := reverb.ParsePreset(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("reverb.assets: %w", err))
			continue
		}
		if p == reverb.None {
			errs = append(errs, errors.New("reverb.assets: preset none cannot have an asset"))
		}
		if path == "" {
			errs = append(errs, fmt.Errorf("reverb.assets.%s is empty", name))
		}
	}

	return errors.Join(errs...)
}

// AssetMap converts the configured asset table to preset keys.
// Validate must have accepted cfg.
func (c *Config) AssetMap() map[reverb.Preset]string {
	out := make(map[reverb.Preset]string, len(c.Reverb.Assets))
	for name, path := range c.Reverb.Assets {
		if p, err := reverb.ParsePreset(name); err == nil && p != reverb.None {
			out[p] = path
		}
	}
	return out
}
