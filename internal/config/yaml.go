// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load builds a Config from defaults, an optional YAML file, and
// environment overrides, then validates the result. If path is empty,
// "unravel.yaml" in the working directory is used when present; a missing
// file is not an error and yields defaults.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		if _, err := os.Stat("unravel.yaml"); err == nil {
			path = "unravel.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges that the separation core and engine depend on.
func (c *Config) Validate() error {
	a := &c.Audio
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample rate %.0f out of range [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("frames per buffer %d out of range (0, %d]", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	s := &c.Separation
	if s.Amount < 0 || s.Amount > 1 {
		return fmt.Errorf("separation amount %.2f out of range [0, 1]", s.Amount)
	}
	if s.Focus < -1 || s.Focus > 1 {
		return fmt.Errorf("focus %.2f out of range [-1, 1]", s.Focus)
	}
	if s.SpectralFloor < 0 || s.SpectralFloor > 1 {
		return fmt.Errorf("spectral floor %.2f out of range [0, 1]", s.SpectralFloor)
	}
	if s.TonalGainDB < MinGainDB || s.TonalGainDB > MaxGainDB {
		return fmt.Errorf("tonal gain %.1f dB out of range [%.0f, %.0f]", s.TonalGainDB, MinGainDB, MaxGainDB)
	}
	if s.NoiseGainDB < MinGainDB || s.NoiseGainDB > MaxGainDB {
		return fmt.Errorf("noise gain %.1f dB out of range [%.0f, %.0f]", s.NoiseGainDB, MinGainDB, MaxGainDB)
	}

	r := &c.Recording
	if r.Enabled {
		switch r.BitDepth {
		case 16, 24, 32:
		default:
			return fmt.Errorf("recording bit depth must be 16, 24 or 32, got %d", r.BitDepth)
		}
	}

	t := &c.Transport
	if t.UDPEnabled && t.UDPSendHz <= 0 {
		return fmt.Errorf("udp_send_hz must be positive when UDP is enabled")
	}

	return nil
}

// applyEnvOverrides applies UNRAVEL_* environment variables on top of the
// current values. Only settings useful in deployment scripts are exposed.
func (c *Config) applyEnvOverrides() {
	if v, ok := os.LookupEnv("UNRAVEL_DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v, ok := os.LookupEnv("UNRAVEL_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv("UNRAVEL_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Audio.SampleRate = f
		}
	}
	if v, ok := os.LookupEnv("UNRAVEL_INPUT_DEVICE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Audio.InputDevice = n
		}
	}
	if v, ok := os.LookupEnv("UNRAVEL_OUTPUT_DEVICE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Audio.OutputDevice = n
		}
	}
	if v, ok := os.LookupEnv("UNRAVEL_WS_ADDR"); ok {
		c.Transport.WebSocketAddr = v
	}
}
