// SPDX-License-Identifier: MIT
/*
Package audio implements the real-time engine around the separation core:
- Duplex capture/playback through PortAudio
- One independent separation core per channel
- WAV recording of the processed output
- Rate-limited spectral frame publishing for visualization

Thread safety: the PortAudio callback owns the separation cores outright.
Control threads (CLI, TUI) publish parameter changes through an atomic
snapshot pointer that the callback picks up at block boundaries; nothing
else is shared.
*/
package audio

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"unravel/internal/config"
	"unravel/internal/hpss"
	applog "unravel/internal/log"
	"unravel/internal/transport"
)

// Engine drives the duplex audio stream and the per-channel separation
// cores.
type Engine struct {
	cfg *config.Config

	inputDevice   *portaudio.DeviceInfo
	outputDevice  *portaudio.DeviceInfo
	inputLatency  time.Duration
	outputLatency time.Duration
	stream        *portaudio.Stream

	processors []*hpss.Processor
	in64       [][]float64
	out64      [][]float64

	// params is the control-to-audio handoff: control threads store a new
	// snapshot, the callback loads it once per block.
	params  atomic.Pointer[Params]
	quality bool // quality mode currently built, callback-owned

	publisher transport.Publisher
	vizFrame  transport.SpectralFrame

	// Publish gate: skip visualization frames while the input is quiet.
	gateEnabled   bool
	gateThreshold float64

	isRecording atomic.Bool
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *goaudio.IntBuffer
	sampleScale float64
}

// NewEngine builds the engine and its separation cores. publisher may be
// nil to disable visualization.
func NewEngine(cfg *config.Config, publisher transport.Publisher) (*Engine, error) {
	inDev, err := inputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}
	outDev, err := outputDevice(cfg.Audio.OutputDevice)
	if err != nil {
		return nil, err
	}

	channels := cfg.Audio.Channels
	frames := cfg.Audio.FramesPerBuffer

	e := &Engine{
		cfg:           cfg,
		inputDevice:   inDev,
		outputDevice:  outDev,
		publisher:     publisher,
		gateEnabled:   true,
		gateThreshold: 0.001,
		processors:    make([]*hpss.Processor, channels),
		in64:          make([][]float64, channels),
		out64:         make([][]float64, channels),
		quality:       cfg.Separation.HighQuality,
	}

	initial := ResolveParams(cfg.Separation)
	e.params.Store(&initial)

	for c := 0; c < channels; c++ {
		proc := hpss.NewProcessor(cfg.Separation.HighQuality)
		proc.Prepare(cfg.Audio.SampleRate, frames)
		e.applyParams(proc, &initial)
		e.processors[c] = proc

		e.in64[c] = make([]float64, frames)
		e.out64[c] = make([]float64, frames)
	}

	bins := e.processors[0].NumBins()
	e.vizFrame = transport.SpectralFrame{
		SampleRate: cfg.Audio.SampleRate,
		FFTSize:    e.processors[0].FFTSize(),
		Magnitudes: make([]float64, bins),
		TonalMask:  make([]float64, bins),
		NoiseMask:  make([]float64, bins),
	}

	if cfg.Audio.LowLatency {
		e.inputLatency = inDev.DefaultLowInputLatency
		e.outputLatency = outDev.DefaultLowOutputLatency
	} else {
		e.inputLatency = inDev.DefaultHighInputLatency
		e.outputLatency = outDev.DefaultHighOutputLatency
	}

	applog.WithFields(map[string]any{
		"input":      inDev.Name,
		"output":     outDev.Name,
		"sampleRate": cfg.Audio.SampleRate,
		"frames":     frames,
		"channels":   channels,
		"latencyMs":  fmt.Sprintf("%.1f", e.processors[0].LatencyMs()),
	}).Info("engine ready")

	return e, nil
}

// Start opens and starts the duplex stream.
func (e *Engine) Start() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   e.inputDevice,
			Channels: e.cfg.Audio.Channels,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   e.outputDevice,
			Channels: e.cfg.Audio.Channels,
			Latency:  e.outputLatency,
		},
		SampleRate:      e.cfg.Audio.SampleRate,
		FramesPerBuffer: e.cfg.Audio.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, e.processStream)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	e.stream = stream

	if err := e.stream.Start(); err != nil {
		e.stream.Close()
		e.stream = nil
		return fmt.Errorf("failed to start stream: %w", err)
	}
	return nil
}

// Stop stops and closes the stream.
func (e *Engine) Stop() error {
	if e.stream == nil {
		return nil
	}
	if err := e.stream.Stop(); err != nil {
		return err
	}
	if err := e.stream.Close(); err != nil {
		return err
	}
	e.stream = nil
	return nil
}

// Close releases all engine resources.
func (e *Engine) Close() error {
	if err := e.StopRecording(); err != nil {
		applog.Errorf("engine: error stopping recording: %v", err)
	}
	return e.Stop()
}

// UpdateParams publishes a new parameter snapshot for the callback to
// apply at the next block boundary.
func (e *Engine) UpdateParams(p Params) {
	snapshot := p
	e.params.Store(&snapshot)
}

// LatencySamples returns the separation pipeline delay.
func (e *Engine) LatencySamples() int {
	return e.processors[0].LatencySamples()
}

// EnableGate enables the quiet-input visualization gate.
func (e *Engine) EnableGate() { e.gateEnabled = true }

// DisableGate disables the visualization gate; every block publishes.
func (e *Engine) DisableGate() { e.gateEnabled = false }

// SetGateThreshold sets the publish gate level, 0..1 of full scale.
func (e *Engine) SetGateThreshold(threshold float64) {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	e.gateThreshold = threshold
}

// processStream is the real-time audio callback.
// Performance critical:
// - Pre-allocated buffers only
// - Parameter pickup via one atomic load
// - Publishing is rate limited and drop-tolerant
func (e *Engine) processStream(in, out [][]float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p := e.params.Load()

	// Quality switches rebuild the cores and therefore allocate. That is
	// acceptable here exactly once per user action: the callback is the
	// only goroutine touching the cores, so the rebuild is race-free, at
	// the cost of one potentially late block.
	if p.HighQuality != e.quality {
		for _, proc := range e.processors {
			proc.SetQualityMode(p.HighQuality)
			proc.Reset()
		}
		e.quality = p.HighQuality
		e.vizFrame.FFTSize = e.processors[0].FFTSize()
		e.resizeVizBuffers(e.processors[0].NumBins())
	}

	for c, proc := range e.processors {
		e.applyParams(proc, p)

		src := in[c]
		dst64 := e.in64[c]
		for i := range dst64 {
			if i < len(src) {
				dst64[i] = float64(src[i])
			} else {
				dst64[i] = 0
			}
		}

		proc.ProcessBlock(dst64, e.out64[c], nil, nil, p.TonalGain, p.NoiseGain)

		dst := out[c]
		for i := range dst {
			if i < len(e.out64[c]) {
				dst[i] = float32(e.out64[c][i])
			} else {
				dst[i] = 0
			}
		}
	}

	e.publishFrame()

	if e.isRecording.Load() && e.wavEncoder != nil {
		e.writeRecording()
	}
}

// applyParams forwards the cheap per-block parameters to one core.
func (e *Engine) applyParams(proc *hpss.Processor, p *Params) {
	proc.SetSeparation(p.Separation)
	proc.SetFocus(p.Focus)
	proc.SetSpectralFloor(p.SpectralFloor)
	proc.SetBypass(p.Bypass)
	proc.SetSafetyLimiting(p.SafetyLimiter)
}

// publishFrame snapshots channel 0's spectrum and masks and hands them to
// the publisher. Skipped while the gate holds the input to be silent.
func (e *Engine) publishFrame() {
	if e.publisher == nil {
		return
	}

	if e.gateEnabled {
		var peak float64
		for _, v := range e.in64[0] {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
		if peak <= e.gateThreshold {
			return
		}
	}

	proc := e.processors[0]
	copy(e.vizFrame.Magnitudes, proc.CurrentMagnitudes())
	copy(e.vizFrame.TonalMask, proc.CurrentTonalMask())
	copy(e.vizFrame.NoiseMask, proc.CurrentNoiseMask())

	if err := e.publisher.Publish(&e.vizFrame); err != nil {
		applog.Warnf("engine: publish failed: %v", err)
	}
}

func (e *Engine) resizeVizBuffers(bins int) {
	e.vizFrame.Magnitudes = make([]float64, bins)
	e.vizFrame.TonalMask = make([]float64, bins)
	e.vizFrame.NoiseMask = make([]float64, bins)
}
