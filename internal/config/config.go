// ABOUTME: Player configuration types
// ABOUTME: YAML-backed settings for the device, playback pacing and UI
package config

import (
	"github.com/Resonate-Protocol/playout-go/pkg/stream"
)

// Config is the root configuration of the playout player.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Playback PlaybackConfig `yaml:"playback"`
}

// DeviceConfig selects the stream parameters requested at open time. Zero
// values are left unspecified so the stream applies its defaults.
type DeviceConfig struct {
	// SampleRate in Hz. Required.
	SampleRate int `yaml:"sample_rate"`

	// Format names the PCM sample format: "s16le", "f32le" or empty for the
	// stream default.
	Format string `yaml:"format"`

	// Channels per frame. Zero means the stream default (stereo).
	Channels int `yaml:"channels"`

	// BufferCapacityFrames is the requested sink buffer capacity. Zero lets
	// the sink choose.
	BufferCapacityFrames int32 `yaml:"buffer_capacity_frames"`
}

// PlaybackConfig tunes how the demo driver paces the stream.
type PlaybackConfig struct {
	// PollIntervalMs is the UpdateState cadence in milliseconds.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// NonBlocking selects non-blocking writes with driver-side retry.
	NonBlocking bool `yaml:"non_blocking"`

	// TUI enables the terminal monitor.
	TUI bool `yaml:"tui"`
}

// StreamFormat maps the configured format name to a stream.Format.
func (d DeviceConfig) StreamFormat() stream.Format {
	switch d.Format {
	case "s16le":
		return stream.FormatInt16
	case "s24le":
		return stream.FormatInt24
	case "f32le":
		return stream.FormatFloat32
	default:
		return stream.FormatUnspecified
	}
}

// StreamConfig converts the device settings into a stream open request.
func (d DeviceConfig) StreamConfig() stream.Config {
	return stream.Config{
		SampleRate:           d.SampleRate,
		Format:               d.StreamFormat(),
		Channels:             d.Channels,
		BufferCapacityFrames: d.BufferCapacityFrames,
	}
}
