// SPDX-License-Identifier: MIT
/*
Package stft implements block-based short-time Fourier analysis and
overlap-add resynthesis for real-time audio.

The Processor consumes arbitrary-sized sample blocks, produces one complex
spectral frame per hop through a pull-based frame-ready protocol, and
reconstructs the (possibly modified) frames back into a continuous output
stream. All buffers are allocated in Prepare; the steady-state path never
allocates or locks.
*/
package stft

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"

	"unravel/internal/dsp"
)

// Config selects the analysis resolution / latency trade-off.
type Config struct {
	FFTSize int // transform length, power of two
	HopSize int // new samples per frame, recommended FFTSize/4
}

// HighQuality is the default configuration: 2048/512, ~32ms at 48kHz.
func HighQuality() Config { return Config{FFTSize: 2048, HopSize: 512} }

// LowLatency trades frequency resolution for ~15ms latency at 48kHz.
func LowLatency() Config { return Config{FFTSize: 1024, HopSize: 256} }

// Valid reports whether the configuration can be processed.
func (c Config) Valid() bool {
	return dsp.IsPowerOfTwo(c.FFTSize) &&
		c.FFTSize <= 8192 &&
		c.HopSize > 0 &&
		c.HopSize <= c.FFTSize
}

// NumBins returns the one-sided spectrum length, FFTSize/2 + 1.
func (c Config) NumBins() int { return c.FFTSize/2 + 1 }

// LatencySamples returns the analysis/synthesis delay in samples.
func (c Config) LatencySamples() int { return c.FFTSize - c.HopSize }

// Processor is the STFT analysis/synthesis engine. The calling pattern per
// block is:
//
//	p.PushAndProcess(input)
//	for p.FrameReady() {
//	    frame := p.CurrentFrame()
//	    // ... modify frame in place ...
//	    p.SetCurrentFrame(frame)
//	    p.PushAndProcess(nil) // drain further buffered frames
//	}
//	p.ProcessOutput(output)
//
// Processor is single-threaded. The frame-ready flag alone uses atomic
// load/store so that a read-only observer on another goroutine (spectrum
// visualization) never sees the flag before the frame data it announces.
type Processor struct {
	cfg        Config
	sampleRate float64

	fft    *fourier.FFT
	window []float64 // periodic Hann, shared by analysis and synthesis

	input  *RingBuffer
	output *RingBuffer

	frameInput   []float64    // windowed time-domain analysis frame
	frameOutput  []float64    // inverse-transform result before windowing
	currentFrame []complex128 // one-sided spectrum handed to the caller

	samplesInInput  int
	samplesInOutput int
	frameReady      atomic.Bool
	firstFrame      bool
	prepared        bool

	// synthesisScale folds the COLA correction for the configured overlap
	// together with the inverse-transform normalization. It is the one
	// constant that decides reconstruction transparency; see
	// computeSynthesisScale.
	synthesisScale float64
}

// NewProcessor creates a Processor for the given configuration. Prepare
// must be called before any processing. An invalid configuration panics:
// configurations are compile-time or startup-time values, never runtime
// data.
func NewProcessor(cfg Config) *Processor {
	if !cfg.Valid() {
		panic("stft: invalid configuration")
	}

	// Periodic Hann (denominator N, not N-1). The symmetric form used for
	// spectral estimation does not tile to a constant under overlap-add;
	// the periodic form does, which is what reconstruction needs.
	window := make([]float64, cfg.FFTSize)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(cfg.FFTSize)))
	}

	p := &Processor{
		cfg:    cfg,
		fft:    fourier.NewFFT(cfg.FFTSize),
		window: window,
	}
	p.synthesisScale = p.computeSynthesisScale()
	return p
}

// computeSynthesisScale derives the per-frame synthesis gain.
//
// With the window applied on both analysis and synthesis, overlapping
// frames sum to overlapFactor times the mean of the squared Hann window
// (3/8). At 4x overlap that envelope is exactly 3/2, so the correction is
// 2/3; at 2x overlap the squared-window sum is no longer constant and the
// classic correction of 1.0 is the accepted compromise; other ratios are
// approximated by 2/overlap.
//
// gonum's real FFT pair is unnormalized (Sequence(Coefficients(x)) == N*x)
// so the 1/N normalization is folded in here rather than applied as a
// separate pass.
func (p *Processor) computeSynthesisScale() float64 {
	overlap := float64(p.cfg.FFTSize) / float64(p.cfg.HopSize)

	var correction float64
	switch {
	case math.Abs(overlap-4) < 1e-3:
		correction = 2.0 / 3.0
	case math.Abs(overlap-2) < 1e-3:
		correction = 1.0
	default:
		correction = 2.0 / overlap
	}

	return correction / float64(p.cfg.FFTSize)
}

// Prepare allocates all processing buffers for the given sample rate and
// maximum block size. PushAndProcess must never be called with more than
// maxBlockSize samples afterwards.
func (p *Processor) Prepare(sampleRate float64, maxBlockSize int) {
	p.sampleRate = sampleRate

	// Each ring must hold a full window of buffered history plus the
	// largest block a caller may push before draining; a lapped write
	// cursor would silently corrupt the readable region.
	ringSize := dsp.NextPowerOfTwo(p.cfg.FFTSize*2 + maxBlockSize)
	if minSize := p.cfg.FFTSize * 4; ringSize < minSize {
		ringSize = minSize
	}
	p.input = NewRingBuffer(ringSize)
	p.output = NewRingBuffer(ringSize)

	p.frameInput = make([]float64, p.cfg.FFTSize)
	p.frameOutput = make([]float64, p.cfg.FFTSize)
	p.currentFrame = make([]complex128, p.cfg.NumBins())

	p.samplesInInput = 0
	p.samplesInOutput = 0
	p.frameReady.Store(false)
	p.firstFrame = true
	p.prepared = true
}

// Reset clears all buffers and state without reallocating. A reset
// Processor behaves identically to a freshly prepared one.
func (p *Processor) Reset() {
	if !p.prepared {
		return
	}

	p.input.Clear()
	p.output.Clear()
	for i := range p.frameInput {
		p.frameInput[i] = 0
	}
	for i := range p.frameOutput {
		p.frameOutput[i] = 0
	}
	for i := range p.currentFrame {
		p.currentFrame[i] = 0
	}

	p.samplesInInput = 0
	p.samplesInOutput = 0
	p.frameReady.Store(false)
	p.firstFrame = true
}

// PushAndProcess appends input samples (samples may be nil to drain) and
// performs at most one forward transform. Callers loop on FrameReady to
// pull every frame buffered input can supply; producing a single frame per
// call keeps the ready-frame handoff unambiguous when the caller's block
// spans several hops.
func (p *Processor) PushAndProcess(samples []float64) {
	if len(samples) > 0 {
		p.input.Write(samples)
		p.samplesInInput += len(samples)
	}

	// A produced frame must be consumed (SetCurrentFrame) before the next
	// one is analyzed.
	if p.frameReady.Load() {
		return
	}

	// The very first frame needs a full window of real input; afterwards
	// one hop of new samples slides the window forward. The readable
	// distance guard keeps a full-window read from ever touching
	// never-written slots when draining.
	required := p.cfg.HopSize
	if p.firstFrame {
		required = p.cfg.FFTSize
	}
	if p.samplesInInput < required || p.input.ReadableDistance() < p.cfg.FFTSize {
		return
	}

	p.forwardTransform()
	p.samplesInInput -= p.cfg.HopSize
	p.firstFrame = false
	p.input.Advance(p.cfg.HopSize)

	// Data before flag: the frame contents must be visible to an observer
	// that sees the flag set.
	p.frameReady.Store(true)
}

// FrameReady reports whether CurrentFrame holds an unconsumed spectral
// frame.
func (p *Processor) FrameReady() bool {
	return p.frameReady.Load()
}

// CurrentFrame returns a mutable view of the most recent spectral frame.
// The view is valid only while FrameReady is true and is invalidated by
// the matching SetCurrentFrame call.
func (p *Processor) CurrentFrame() []complex128 {
	return p.currentFrame
}

// SetCurrentFrame accepts the (possibly modified) spectral frame, runs the
// inverse transform and windowed overlap-add, and commits one hop of
// output. frame must have NumBins elements; passing the slice from
// CurrentFrame back unchanged is the identity operation.
func (p *Processor) SetCurrentFrame(frame []complex128) {
	if &frame[0] != &p.currentFrame[0] {
		copy(p.currentFrame, frame)
	}
	p.inverseTransform()
	p.frameReady.Store(false)
}

// ProcessOutput extracts len(out) reconstructed samples. If fewer are
// available (only during startup, before the pipeline has filled its
// latency) the remainder is zero-padded.
func (p *Processor) ProcessOutput(out []float64) {
	n := len(out)
	if n > p.samplesInOutput {
		n = p.samplesInOutput
	}
	if n > 0 {
		p.output.ReadAndClear(out[:n])
		p.output.Advance(n)
		p.samplesInOutput -= n
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

// NumBins returns the spectral frame length.
func (p *Processor) NumBins() int { return p.cfg.NumBins() }

// FFTSize returns the transform length in samples.
func (p *Processor) FFTSize() int { return p.cfg.FFTSize }

// HopSize returns the per-frame advance in samples.
func (p *Processor) HopSize() int { return p.cfg.HopSize }

// LatencySamples returns the reconstruction delay, FFTSize - HopSize.
func (p *Processor) LatencySamples() int { return p.cfg.LatencySamples() }

// LatencyMs returns the reconstruction delay in milliseconds at the
// prepared sample rate.
func (p *Processor) LatencyMs() float64 {
	if p.sampleRate <= 0 {
		return 0
	}
	return float64(p.cfg.LatencySamples()) * 1000.0 / p.sampleRate
}

func (p *Processor) forwardTransform() {
	p.input.Read(p.frameInput, 0)
	for i := range p.frameInput {
		p.frameInput[i] *= p.window[i]
	}
	p.fft.Coefficients(p.currentFrame, p.frameInput)
}

func (p *Processor) inverseTransform() {
	p.fft.Sequence(p.frameOutput, p.currentFrame)
	for i := range p.frameOutput {
		p.frameOutput[i] *= p.window[i] * p.synthesisScale
	}
	p.output.OverlapAdd(p.frameOutput)
	p.output.AdvanceWrite(p.cfg.HopSize)
	p.samplesInOutput += p.cfg.HopSize
}
