// SPDX-License-Identifier: MIT
package config

// Boundary constants for the audio engine and separation parameters.
const (
	DefaultSampleRate      = 48000 // Separation was tuned at 48kHz
	DefaultFramesPerBuffer = 512   // One hop at high quality
	DefaultChannels        = 1
	DefaultDeviceID        = MinDeviceID

	MinDeviceID     = -1 // -1 selects the system default device
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxBufferFrames = 8192

	// Gain parameter range, matching what the separation core accepts.
	MinGainDB = -60.0 // maps to exactly zero gain
	MaxGainDB = 12.0
)

// Config holds all runtime configuration, constructed from defaults, an
// optional YAML file, environment overrides, and command line flags, in
// that order.
type Config struct {
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`

	Audio      AudioConfig      `yaml:"audio"`
	Separation SeparationConfig `yaml:"separation"`
	Recording  RecordingConfig  `yaml:"recording"`
	Transport  TransportConfig  `yaml:"transport"`
}

// AudioConfig holds device and buffering settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`  // PortAudio index, -1 for default
	OutputDevice    int     `yaml:"output_device"` // PortAudio index, -1 for default
	SampleRate      float64 `yaml:"sample_rate"`
	FramesPerBuffer int     `yaml:"frames_per_buffer"`
	Channels        int     `yaml:"channels"` // each channel gets its own separation core
	LowLatency      bool    `yaml:"low_latency"`
}

// SeparationConfig holds the user-facing separation parameters. Gains are
// in decibels here; the engine converts to linear before they reach the
// core.
type SeparationConfig struct {
	Amount        float64 `yaml:"amount"`         // [0,1] separation aggressiveness
	Focus         float64 `yaml:"focus"`          // [-1,1] tonal vs noise bias
	SpectralFloor float64 `yaml:"spectral_floor"` // [0,1], 0 disables
	TonalGainDB   float64 `yaml:"tonal_gain_db"`
	NoiseGainDB   float64 `yaml:"noise_gain_db"`
	HighQuality   bool    `yaml:"high_quality"` // 2048/512 vs 1024/256
	Bypass        bool    `yaml:"bypass"`
	SafetyLimiter bool    `yaml:"safety_limiter"`
	SoloTonal     bool    `yaml:"solo_tonal"`
	SoloNoise     bool    `yaml:"solo_noise"`
	MuteTonal     bool    `yaml:"mute_tonal"`
	MuteNoise     bool    `yaml:"mute_noise"`
}

// RecordingConfig holds WAV capture settings for the processed output.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"`
	BitDepth   int    `yaml:"bit_depth"`
}

// TransportConfig holds settings for publishing spectrum and mask frames
// to visualization clients.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`
	WebSocketAddr    string `yaml:"websocket_addr"`
	UDPEnabled       bool   `yaml:"udp_enabled"`
	UDPTargetAddress string `yaml:"udp_target_address"`
	UDPSendHz        int    `yaml:"udp_send_hz"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			Channels:        DefaultChannels,
		},
		Separation: SeparationConfig{
			Amount:        0.75,
			Focus:         0,
			SpectralFloor: 0,
			TonalGainDB:   0,
			NoiseGainDB:   0,
			HighQuality:   true,
			SafetyLimiter: true,
		},
		Recording: RecordingConfig{
			BitDepth: 24,
		},
		Transport: TransportConfig{
			WebSocketAddr:    ":8080",
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendHz:        30,
		},
	}
}
