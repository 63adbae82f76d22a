// SPDX-License-Identifier: MIT
/*
Package hpss orchestrates the harmonic/percussive separation pipeline for
one audio channel: STFT analysis, magnitude/phase decomposition, mask
estimation, gain application, overlap-add resynthesis, and output safety.

A Processor owns its entire state. Independent channel instances may run
on separate goroutines with zero sharing. Within an instance, ProcessBlock
is single-threaded and never allocates, locks, or blocks; the only
operation permitted to allocate is Prepare / a quality-mode switch, which
the caller must serialize against ProcessBlock.
*/
package hpss

import (
	"math"

	"unravel/internal/dsp"
	"unravel/internal/mask"
	"unravel/internal/stft"
)

const (
	// Safety limiter: soft knee just under -1 dBFS, hard ceiling just
	// under 0 dBFS. Exists because unclamped gain boosts on either
	// component can push the resynthesis past full scale.
	safetyThreshold = 0.891
	safetyRatio     = 8.0
	hardCeiling     = 0.99

	gainRampSeconds = 0.02
)

// Processor is the per-channel HPSS coordinator.
type Processor struct {
	engine    *stft.Processor
	frame     *stft.MagPhaseFrame
	estimator *mask.Estimator

	tonalMask []float64
	noiseMask []float64

	tonalGain *LinearSmoother
	noiseGain *LinearSmoother

	// Latency-matched delay line shared by the bypass and unity-gain
	// paths. The write cursor starts one latency ahead of the read cursor
	// so toggling bypass never shifts the signal in time relative to the
	// processed path.
	delay         []float64
	delayWritePos int
	delayReadPos  int

	sampleRate   float64
	maxBlockSize int
	numBins      int

	highQuality      bool
	bypass           bool
	safetyLimiting   bool
	debugPassthrough bool
	prepared         bool

	// Parameter shadow copies survive a quality-mode rebuild.
	separation    float64
	focus         float64
	spectralFloor float64
}

// NewProcessor returns an unprepared Processor. highQuality selects the
// 2048/512 configuration; false selects 1024/256 for lower latency.
func NewProcessor(highQuality bool) *Processor {
	return &Processor{
		highQuality:    highQuality,
		safetyLimiting: true,
		separation:     0.75,
		tonalGain:      NewLinearSmoother(1, 1),
		noiseGain:      NewLinearSmoother(1, 1),
	}
}

// Prepare allocates every buffer for the given sample rate and maximum
// block size. ProcessBlock must never be called with more than
// maxBlockSize samples afterwards.
func (p *Processor) Prepare(sampleRate float64, maxBlockSize int) {
	p.sampleRate = sampleRate
	p.maxBlockSize = maxBlockSize

	ramp := int(gainRampSeconds * sampleRate)
	p.tonalGain.Reset(1, ramp)
	p.noiseGain.Reset(1, ramp)

	p.initializeComponents()
	p.prepared = true
}

// Reset clears all history and buffered audio without reallocating. A
// reset Processor is bit-identical in behavior to a freshly prepared one.
func (p *Processor) Reset() {
	if !p.prepared {
		return
	}

	p.engine.Reset()
	p.frame.Reset()
	p.estimator.Reset()

	ramp := int(gainRampSeconds * p.sampleRate)
	p.tonalGain.Reset(1, ramp)
	p.noiseGain.Reset(1, ramp)

	zero(p.tonalMask)
	zero(p.noiseMask)
	zero(p.delay)
	p.delayWritePos = p.LatencySamples()
	p.delayReadPos = 0
}

// ProcessBlock runs one block through the pipeline. in and out must be the
// same length, at most the prepared maximum block size; tonalOut and
// noiseOut are optional per-component monitor outputs and may be nil.
// Gains are linear factors applied to the tonal and noise components.
func (p *Processor) ProcessBlock(in, out, tonalOut, noiseOut []float64, tonalGain, noiseGain float64) {
	n := len(in)

	if p.bypass {
		p.processDelayLine(in, out)
		zero(tonalOut)
		zero(noiseOut)
		return
	}

	if p.tryUnityGainPath(in, out, tonalGain, noiseGain) {
		// Transparent pass: the whole signal is nominally the mix, so the
		// tonal monitor mirrors it and the noise monitor stays silent.
		if tonalOut != nil {
			copy(tonalOut, out[:n])
		}
		zero(noiseOut)
		return
	}

	p.tonalGain.SetTarget(tonalGain)
	p.noiseGain.SetTarget(noiseGain)

	p.engine.PushAndProcess(in)
	for p.engine.FrameReady() {
		p.processFrame()
		// Drain: with blocks larger than the hop, several frames can be
		// buffered. The engine's readable-distance guard stops the loop
		// before it would read unwritten input.
		p.engine.PushAndProcess(nil)
	}

	p.engine.ProcessOutput(out[:n])

	if p.safetyLimiting && !p.debugPassthrough {
		for i := range out[:n] {
			out[i] = softLimit(out[i])
		}
	}
	dsp.FlushDenormals(out[:n])

	// Monitor outputs are proportional shares of the mixed output derived
	// from the two gains. This is an approximation, not a resynthesis of
	// the isolated components; true isolation would need a second inverse
	// transform per frame.
	if tonalOut != nil || noiseOut != nil {
		tg := p.tonalGain.Current()
		ng := p.noiseGain.Current()
		total := tg + ng + dsp.Epsilon
		if tonalOut != nil {
			share := tg / total
			for i := range tonalOut[:n] {
				tonalOut[i] = out[i] * share
			}
		}
		if noiseOut != nil {
			share := ng / total
			for i := range noiseOut[:n] {
				noiseOut[i] = out[i] * share
			}
		}
	}
}

// processFrame handles one ready spectral frame: decompose, estimate
// masks, apply masks and smoothed gains to the magnitudes, recompose, and
// hand the frame back for resynthesis.
func (p *Processor) processFrame() {
	frame := p.engine.CurrentFrame()

	if p.debugPassthrough {
		// Identity spectral processing, for isolating reconstruction
		// behavior from mask estimation.
		p.engine.SetCurrentFrame(frame)
		return
	}

	p.frame.FromComplex(frame)
	mags := p.frame.Magnitudes()

	p.estimator.UpdateGuides(mags)
	p.estimator.UpdateStats(mags)
	p.estimator.ComputeMasks(p.tonalMask, p.noiseMask)

	tg := p.tonalGain.Current()
	ng := p.noiseGain.Current()

	// Gain ramps track frame timing, not block timing: advance by exactly
	// one hop of samples per frame processed.
	hop := p.engine.HopSize()
	p.tonalGain.Skip(hop)
	p.noiseGain.Skip(hop)

	// The single point where the two masks and the two gains combine.
	for bin := range mags {
		m := mags[bin]
		mags[bin] = m*p.tonalMask[bin]*tg + m*p.noiseMask[bin]*ng
	}

	p.frame.ToComplex(frame)
	p.engine.SetCurrentFrame(frame)
}

// SetBypass routes input through the latency-matched delay line instead of
// the spectral pipeline.
func (p *Processor) SetBypass(bypass bool) { p.bypass = bypass }

// SetSafetyLimiting enables or disables the output soft limiter.
func (p *Processor) SetSafetyLimiting(enabled bool) { p.safetyLimiting = enabled }

// SetDebugPassthrough switches the spectral stage to identity processing
// (no mask estimation, limiter skipped). Used by reconstruction tests.
func (p *Processor) SetDebugPassthrough(enabled bool) { p.debugPassthrough = enabled }

// DebugPassthrough reports whether identity processing is active.
func (p *Processor) DebugPassthrough() bool { return p.debugPassthrough }

// SetQualityMode switches between the high-quality (2048/512) and
// low-latency (1024/256) configurations. Switching tears down and rebuilds
// all size-dependent state and changes the reported latency; callers must
// not invoke it concurrently with ProcessBlock and must re-report latency
// afterwards.
func (p *Processor) SetQualityMode(highQuality bool) {
	if p.highQuality == highQuality {
		return
	}
	p.highQuality = highQuality
	if p.prepared {
		p.initializeComponents()
	}
}

// SetSeparation forwards the separation amount [0,1] to the estimator.
func (p *Processor) SetSeparation(amount float64) {
	p.separation = dsp.Clamp01(amount)
	if p.estimator != nil {
		p.estimator.SetSeparation(p.separation)
	}
}

// SetFocus forwards the focus bias [-1,1] to the estimator.
func (p *Processor) SetFocus(bias float64) {
	p.focus = dsp.Clamp(bias, -1, 1)
	if p.estimator != nil {
		p.estimator.SetFocus(p.focus)
	}
}

// SetSpectralFloor forwards the floor-sharpening threshold [0,1] to the
// estimator.
func (p *Processor) SetSpectralFloor(threshold float64) {
	p.spectralFloor = dsp.Clamp01(threshold)
	if p.estimator != nil {
		p.estimator.SetSpectralFloor(p.spectralFloor)
	}
}

// LatencySamples returns the pipeline delay reported to the host for
// compensation.
func (p *Processor) LatencySamples() int {
	if p.engine == nil {
		return 0
	}
	return p.engine.LatencySamples()
}

// LatencyMs returns the pipeline delay in milliseconds.
func (p *Processor) LatencyMs() float64 {
	if p.engine == nil {
		return 0
	}
	return p.engine.LatencyMs()
}

// NumBins returns the spectral frame length for the active configuration.
func (p *Processor) NumBins() int { return p.numBins }

// FFTSize returns the active transform length.
func (p *Processor) FFTSize() int {
	if p.engine == nil {
		return 0
	}
	return p.engine.FFTSize()
}

// CurrentMagnitudes returns a read-only view of the most recent magnitude
// spectrum. Valid only between ProcessBlock calls, never during one.
func (p *Processor) CurrentMagnitudes() []float64 {
	if p.frame == nil {
		return nil
	}
	return p.frame.Magnitudes()
}

// CurrentTonalMask returns a read-only view of the most recent tonal mask.
// Valid only between ProcessBlock calls.
func (p *Processor) CurrentTonalMask() []float64 { return p.tonalMask }

// CurrentNoiseMask returns a read-only view of the most recent noise mask.
// Valid only between ProcessBlock calls.
func (p *Processor) CurrentNoiseMask() []float64 { return p.noiseMask }

func (p *Processor) initializeComponents() {
	cfg := stft.LowLatency()
	if p.highQuality {
		cfg = stft.HighQuality()
	}

	p.engine = stft.NewProcessor(cfg)
	p.engine.Prepare(p.sampleRate, p.maxBlockSize)
	p.numBins = p.engine.NumBins()

	p.frame = stft.NewMagPhaseFrame(p.numBins)

	p.estimator = mask.NewEstimator()
	p.estimator.Prepare(p.numBins, p.sampleRate)
	p.estimator.SetSeparation(p.separation)
	p.estimator.SetFocus(p.focus)
	p.estimator.SetSpectralFloor(p.spectralFloor)

	p.tonalMask = make([]float64, p.numBins)
	p.noiseMask = make([]float64, p.numBins)

	latency := p.engine.LatencySamples()
	p.delay = make([]float64, latency+p.maxBlockSize)
	p.delayWritePos = latency
	p.delayReadPos = 0
}

// processDelayLine emits the input delayed by exactly the pipeline
// latency.
func (p *Processor) processDelayLine(in, out []float64) {
	size := len(p.delay)
	for _, s := range in {
		p.delay[p.delayWritePos] = s
		p.delayWritePos++
		if p.delayWritePos == size {
			p.delayWritePos = 0
		}
	}
	for i := range out[:len(in)] {
		out[i] = p.delay[p.delayReadPos]
		p.delayReadPos++
		if p.delayReadPos == size {
			p.delayReadPos = 0
		}
	}
}

// tryUnityGainPath copies input to output through the delay line when both
// requested gains and both smoothers (current and target) sit at exactly
// unity. This guarantees perfect transparency at the neutral setting
// regardless of any numerical imprecision in the spectral path.
func (p *Processor) tryUnityGainPath(in, out []float64, tonalGain, noiseGain float64) bool {
	atUnity := func(v float64) bool { return math.Abs(v-1) < dsp.Epsilon }

	if !atUnity(tonalGain) || !atUnity(noiseGain) {
		return false
	}
	if !atUnity(p.tonalGain.Current()) || !atUnity(p.tonalGain.Target()) ||
		!atUnity(p.noiseGain.Current()) || !atUnity(p.noiseGain.Target()) {
		return false
	}

	p.processDelayLine(in, out)
	return true
}

// softLimit applies soft-knee compression above the safety threshold with
// a hard ceiling, passing sub-threshold samples through untouched.
func softLimit(x float64) float64 {
	ax := math.Abs(x)
	if ax <= safetyThreshold {
		return x
	}
	compressed := safetyThreshold + math.Tanh((ax-safetyThreshold)*safetyRatio)/safetyRatio
	if compressed > hardCeiling {
		compressed = hardCeiling
	}
	if x < 0 {
		return -compressed
	}
	return compressed
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
