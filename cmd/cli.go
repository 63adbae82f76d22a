// SPDX-License-Identifier: MIT
// Package cmd wires the command line surface: flag parsing, subcommand
// dispatch, and the mapping from flags onto the runtime configuration.
package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"unravel/internal/config"
	"unravel/pkg/build"
)

// Invocation records which command was requested and its arguments,
// separate from the runtime configuration itself.
type Invocation struct {
	Command string // "" (live), "list", "devices", "process"

	// Meter shows the interactive level meter instead of the plain banner
	// in live mode.
	Meter bool

	// process command arguments
	ProcessInput  string
	ProcessOutput string
	ProcessStems  bool
}

// ParseArgs loads configuration (defaults, YAML file, environment) and
// overlays command line flags. Flag defaults are seeded from the loaded
// configuration, so only flags the user actually passes take effect.
func ParseArgs() (*config.Config, *Invocation, error) {
	info := build.Get()

	// --config has to be known before flag defaults are bound.
	cfg, err := config.Load(configPathFromArgs(os.Args[1:]))
	if err != nil {
		return nil, nil, err
	}

	inv := &Invocation{}
	var configPath string

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         "Real-time tonal/noise audio separation",
		Version:       info.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil // live mode
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Debug, "verbose", "v", cfg.Debug, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	// Audio device configuration
	rootCmd.PersistentFlags().IntVar(&cfg.Audio.InputDevice, "input", cfg.Audio.InputDevice,
		"Input device ID, -1 for system default. Use 'list' to see devices.")
	rootCmd.PersistentFlags().IntVar(&cfg.Audio.OutputDevice, "output", cfg.Audio.OutputDevice,
		"Output device ID, -1 for system default")
	rootCmd.PersistentFlags().Float64VarP(&cfg.Audio.SampleRate, "sample-rate", "s", cfg.Audio.SampleRate,
		"Sample rate in Hz")
	rootCmd.PersistentFlags().IntVarP(&cfg.Audio.FramesPerBuffer, "frames", "b", cfg.Audio.FramesPerBuffer,
		"Frames per buffer (affects device latency)")
	rootCmd.PersistentFlags().IntVarP(&cfg.Audio.Channels, "channels", "c", cfg.Audio.Channels,
		"Channel count (1=mono, 2=stereo)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Audio.LowLatency, "low-latency", "l", cfg.Audio.LowLatency,
		"Request low latency device buffers")

	// Separation parameters
	rootCmd.PersistentFlags().Float64VarP(&cfg.Separation.Amount, "amount", "a", cfg.Separation.Amount,
		"Separation amount, 0 (transparent) to 1 (aggressive)")
	rootCmd.PersistentFlags().Float64VarP(&cfg.Separation.Focus, "focus", "f", cfg.Separation.Focus,
		"Component bias, -1 (tonal) to 1 (noise)")
	rootCmd.PersistentFlags().Float64Var(&cfg.Separation.SpectralFloor, "floor", cfg.Separation.SpectralFloor,
		"Spectral floor, 0 disables mask limiting")
	rootCmd.PersistentFlags().Float64Var(&cfg.Separation.TonalGainDB, "tonal-gain", cfg.Separation.TonalGainDB,
		"Tonal component gain in dB, -60 mutes")
	rootCmd.PersistentFlags().Float64Var(&cfg.Separation.NoiseGainDB, "noise-gain", cfg.Separation.NoiseGainDB,
		"Noise component gain in dB, -60 mutes")

	fast := !cfg.Separation.HighQuality
	rootCmd.PersistentFlags().BoolVar(&fast, "fast", fast,
		"Use the low-latency quality mode (smaller analysis window)")
	rootCmd.PersistentFlags().BoolVar(&cfg.Separation.Bypass, "bypass", cfg.Separation.Bypass,
		"Pass input through (still latency compensated)")

	noLimiter := !cfg.Separation.SafetyLimiter
	rootCmd.PersistentFlags().BoolVar(&noLimiter, "no-limiter", noLimiter,
		"Disable the output safety limiter")

	rootCmd.PersistentFlags().BoolVar(&cfg.Separation.SoloTonal, "solo-tonal", cfg.Separation.SoloTonal,
		"Output only the tonal component")
	rootCmd.PersistentFlags().BoolVar(&cfg.Separation.SoloNoise, "solo-noise", cfg.Separation.SoloNoise,
		"Output only the noise component")
	rootCmd.PersistentFlags().BoolVar(&cfg.Separation.MuteTonal, "mute-tonal", cfg.Separation.MuteTonal,
		"Mute the tonal component")
	rootCmd.PersistentFlags().BoolVar(&cfg.Separation.MuteNoise, "mute-noise", cfg.Separation.MuteNoise,
		"Mute the noise component")

	rootCmd.Flags().BoolVarP(&inv.Meter, "meter", "m", false,
		"Show a live separation meter while running")

	// Recording
	rootCmd.PersistentFlags().BoolVarP(&cfg.Recording.Enabled, "record", "r", cfg.Recording.Enabled,
		"Record the processed output to a WAV file")
	rootCmd.PersistentFlags().StringVarP(&cfg.Recording.OutputFile, "record-file", "o", cfg.Recording.OutputFile,
		"Recording file name, default unravel-DD-MM-YYYY-HHMMSS.wav")

	// Visualization transports
	rootCmd.PersistentFlags().BoolVar(&cfg.Transport.WebSocketEnabled, "ws", cfg.Transport.WebSocketEnabled,
		"Serve spectral frames over WebSocket")
	rootCmd.PersistentFlags().StringVar(&cfg.Transport.WebSocketAddr, "ws-addr", cfg.Transport.WebSocketAddr,
		"WebSocket listen address")
	rootCmd.PersistentFlags().BoolVar(&cfg.Transport.UDPEnabled, "udp", cfg.Transport.UDPEnabled,
		"Send binary spectral frames over UDP")
	rootCmd.PersistentFlags().StringVar(&cfg.Transport.UDPTargetAddress, "udp-addr", cfg.Transport.UDPTargetAddress,
		"UDP target address")
	rootCmd.PersistentFlags().IntVar(&cfg.Transport.UDPSendHz, "udp-hz", cfg.Transport.UDPSendHz,
		"UDP frame rate")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Browse audio devices interactively",
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = "devices"
		},
	}
	rootCmd.AddCommand(devicesCmd)

	processCmd := &cobra.Command{
		Use:   "process <input.wav> <output.wav>",
		Short: "Separate a WAV file offline",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			inv.Command = "process"
			inv.ProcessInput = args[0]
			inv.ProcessOutput = args[1]
		},
	}
	processCmd.Flags().BoolVar(&inv.ProcessStems, "stems", false,
		"Also write separated tonal and noise files")
	rootCmd.AddCommand(processCmd)

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, nil, err
	}

	cfg.Separation.HighQuality = !fast
	cfg.Separation.SafetyLimiter = !noLimiter

	if cfg.Recording.Enabled && cfg.Recording.OutputFile == "" {
		cfg.Recording.OutputFile = "unravel-" +
			time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}

	// Flags may have moved values out of range.
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return cfg, inv, nil
}

// configPathFromArgs extracts --config before cobra runs, since the
// loaded file seeds the flag defaults.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}
