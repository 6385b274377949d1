// ABOUTME: Configuration loading and validation
// ABOUTME: Strict YAML decoding with defaults applied after validation
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultPollIntervalMs = 10

// Load reads the YAML configuration file at path and returns a validated
// Config.
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

// LoadFromReader decodes a YAML config from r, validates it and applies
// defaults. Useful in tests where configs are string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Device.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("device.sample_rate %d is invalid; must be positive", cfg.Device.SampleRate))
	}
	switch cfg.Device.Format {
	case "", "s16le", "s24le", "f32le":
	default:
		errs = append(errs, fmt.Errorf("device.format %q is invalid; valid values: s16le, s24le, f32le", cfg.Device.Format))
	}
	if cfg.Device.Channels < 0 {
		errs = append(errs, fmt.Errorf("device.channels %d is invalid", cfg.Device.Channels))
	}
	if cfg.Device.BufferCapacityFrames < 0 {
		errs = append(errs, fmt.Errorf("device.buffer_capacity_frames %d is invalid", cfg.Device.BufferCapacityFrames))
	}
	if cfg.Playback.PollIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("playback.poll_interval_ms %d is invalid", cfg.Playback.PollIntervalMs))
	}

	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Playback.PollIntervalMs == 0 {
		cfg.Playback.PollIntervalMs = defaultPollIntervalMs
	}
}
