// SPDX-License-Identifier: MIT
/*
Package mask computes per-bin soft separation masks for harmonic/percussive
source separation.

Given one magnitude spectrum per frame, the Estimator maintains a short
time history and per-bin statistics and produces two complementary masks:
a tonal weight and a noise weight per bin, each in [0, 1]. Sustained energy
survives a median across time (the horizontal guide); broadband transient
energy survives a median across frequency (the vertical guide). Spectral
flux and spectral flatness sharpen the discrimination, a Wiener-style power
ratio with an adjustable exponent turns the guides into a mask, and
temporal smoothing plus a light frequency blur keep the result free of
pumping and bin-to-bin discontinuities.

The Estimator knows nothing about FFT or hop timing; its only contract
with the spectral engine is the bin count given to Prepare. Every frame
must call UpdateGuides, then UpdateStats, then ComputeMasks, in that order.
*/
package mask

import (
	"math"

	"unravel/internal/dsp"
)

const (
	historyFrames  = 9  // time frames for the horizontal median
	verticalWindow = 13 // frequency bins for the vertical median
	flatnessWindow = 13 // frequency bins for local spectral flatness

	// Asymmetric temporal smoothing. Fast attack keeps transient onsets
	// responsive; slow release suppresses audible mask modulation.
	attackAlpha  = 0.5
	releaseAlpha = 0.15

	// Feature weighting inside the Wiener power estimates.
	fluxPenaltyWeight     = 0.7
	flatnessPenaltyWeight = 0.5
	noiseBoostWeight      = 0.5

	blurRadius = 1
)

// Estimator produces tonal/noise soft masks from magnitude spectra. All
// state is allocated in Prepare; the per-frame methods never allocate.
type Estimator struct {
	numBins  int
	prepared bool

	// User parameters, clamped on set.
	separation    float64 // [0,1] mask sharpness
	focus         float64 // [-1,1] tonal vs noise detection bias
	spectralFloor float64 // [0,1] floor-sharpening threshold, 0 = off

	// Magnitude history: historyFrames frames of numBins magnitudes in one
	// flat buffer. writeIndex always points at the oldest frame, i.e. the
	// next slot to overwrite.
	history    []float64
	writeIndex int

	horizontalGuide []float64 // per-bin median across time
	verticalGuide   []float64 // per-bin median across frequency
	flux            []float64 // per-bin normalized frame-to-frame change
	flatness        []float64 // per-bin local geometric/arithmetic ratio

	prevMagnitudes   []float64
	prevSmoothedMask []float64

	combined []float64
	smoothed []float64
	scratch  []float64
}

// NewEstimator returns an unprepared Estimator with default parameters:
// separation 0.75, focus 0, spectral floor off.
func NewEstimator() *Estimator {
	return &Estimator{separation: 0.75}
}

// Prepare sizes all buffers for numBins spectral bins. The sample rate is
// accepted for interface symmetry; no stage currently depends on it.
func (e *Estimator) Prepare(numBins int, sampleRate float64) {
	e.numBins = numBins

	e.history = make([]float64, historyFrames*numBins)
	e.writeIndex = 0

	e.horizontalGuide = make([]float64, numBins)
	e.verticalGuide = make([]float64, numBins)
	e.flux = make([]float64, numBins)
	e.flatness = make([]float64, numBins)

	e.prevMagnitudes = make([]float64, numBins)
	e.prevSmoothedMask = make([]float64, numBins)
	for i := range e.prevSmoothedMask {
		e.prevSmoothedMask[i] = 0.5 // neutral split before any evidence
	}

	e.combined = make([]float64, numBins)
	e.smoothed = make([]float64, numBins)
	scratchLen := numBins
	if scratchLen < historyFrames {
		scratchLen = historyFrames
	}
	e.scratch = make([]float64, scratchLen)

	e.prepared = true
	_ = sampleRate
}

// Reset clears all history and statistics without reallocating, restoring
// the state of a freshly prepared Estimator.
func (e *Estimator) Reset() {
	if !e.prepared {
		return
	}
	zero(e.history)
	zero(e.horizontalGuide)
	zero(e.verticalGuide)
	zero(e.flux)
	zero(e.flatness)
	zero(e.prevMagnitudes)
	zero(e.combined)
	zero(e.smoothed)
	for i := range e.prevSmoothedMask {
		e.prevSmoothedMask[i] = 0.5
	}
	e.writeIndex = 0
}

// SetSeparation sets how aggressively bins are pushed toward one component
// or the other. 0 keeps the split soft and natural; 1 approaches binary
// isolation. Clamped to [0, 1].
func (e *Estimator) SetSeparation(amount float64) {
	e.separation = dsp.Clamp01(amount)
}

// Separation returns the current separation amount.
func (e *Estimator) Separation() float64 { return e.separation }

// SetFocus biases detection toward one component: -1 favors tonal, +1
// favors noise, 0 is neutral. Clamped to [-1, 1].
func (e *Estimator) SetFocus(bias float64) {
	e.focus = dsp.Clamp(bias, -1, 1)
}

// Focus returns the current focus bias.
func (e *Estimator) Focus() float64 { return e.focus }

// SetSpectralFloor sets the floor-sharpening threshold. 0 disables the
// stage; 1 approaches a binary mask. Clamped to [0, 1].
func (e *Estimator) SetSpectralFloor(threshold float64) {
	e.spectralFloor = dsp.Clamp01(threshold)
}

// SpectralFloor returns the current floor threshold.
func (e *Estimator) SpectralFloor() float64 { return e.spectralFloor }

// UpdateGuides records the new magnitude frame into the history ring and
// recomputes the horizontal and vertical median guides. Call once per
// frame, before UpdateStats. len(magnitudes) must equal the prepared bin
// count.
func (e *Estimator) UpdateGuides(magnitudes []float64) {
	copy(e.history[e.writeIndex*e.numBins:], magnitudes[:e.numBins])
	e.writeIndex = (e.writeIndex + 1) % historyFrames

	e.computeHorizontalMedian()
	e.computeVerticalMedian()
}

// UpdateStats recomputes spectral flux and flatness from the current frame
// and stores the magnitudes for the next frame's flux. Call after
// UpdateGuides and before ComputeMasks.
func (e *Estimator) UpdateStats(magnitudes []float64) {
	e.computeFlux()
	e.computeFlatness()
	copy(e.prevMagnitudes, magnitudes[:e.numBins])
}

// ComputeMasks fills tonal and noise with the per-bin soft masks for the
// current frame. Both slices must hold the prepared bin count. The noise
// mask is the exact complement of the tonal mask.
func (e *Estimator) ComputeMasks(tonal, noise []float64) {
	// Mask exponent from separation amount, quadratic so the top of the
	// range is dramatically sharper than the middle:
	// 0 -> 0.3 (soft), 0.5 -> 1.975, 1 -> 5.0 (near-binary).
	t := e.separation
	exponent := 0.3 + t*(2.0+t*2.7)

	for i := 0; i < e.numBins; i++ {
		tonalPower := e.horizontalGuide[i] * e.horizontalGuide[i]
		noisePower := e.verticalGuide[i] * e.verticalGuide[i]

		// Flux and flatness both vote against tonal: penalize the tonal
		// power estimate and boost the noise estimate.
		fluxPenalty := e.flux[i] * fluxPenaltyWeight
		flatPenalty := e.flatness[i] * flatnessPenaltyWeight
		tonalPower *= (1 - fluxPenalty) * (1 - flatPenalty)
		noisePower *= (1 + fluxPenalty*noiseBoostWeight) * (1 + flatPenalty*noiseBoostWeight)

		// Focus bias multiplies one side's power, quadratically up to 5x
		// at the extremes.
		if e.focus < 0 {
			b := -e.focus
			tonalPower *= 1 + b*(2+b*2)
		} else if e.focus > 0 {
			b := e.focus
			noisePower *= 1 + b*(2+b*2)
		}

		wiener := tonalPower / (tonalPower + noisePower + dsp.Epsilon)
		e.combined[i] = math.Pow(wiener, exponent)
	}

	e.applyAsymmetricSmoothing()
	e.applyFrequencyBlur()
	e.applySpectralFloor()

	copy(tonal, e.smoothed)
	for i := 0; i < e.numBins; i++ {
		noise[i] = 1 - tonal[i]
	}
	copy(e.prevSmoothedMask, e.smoothed)
}

// HorizontalGuide exposes the time-median guide for tests and analysis.
func (e *Estimator) HorizontalGuide() []float64 { return e.horizontalGuide }

// VerticalGuide exposes the frequency-median guide for tests and analysis.
func (e *Estimator) VerticalGuide() []float64 { return e.verticalGuide }

// historyFrame returns frame index i of the ring, 0 = oldest.
func (e *Estimator) historyFrame(i int) []float64 {
	idx := (e.writeIndex + i) % historyFrames
	return e.history[idx*e.numBins : (idx+1)*e.numBins]
}

// currentFrame returns the most recently written history frame.
func (e *Estimator) currentFrame() []float64 {
	idx := (e.writeIndex + historyFrames - 1) % historyFrames
	return e.history[idx*e.numBins : (idx+1)*e.numBins]
}

func (e *Estimator) computeHorizontalMedian() {
	// Median of each bin across the stored time frames. A sustained
	// partial holds its level in most of the frames and survives; a
	// transient appears in few and is rejected.
	for bin := 0; bin < e.numBins; bin++ {
		for t := 0; t < historyFrames; t++ {
			e.scratch[t] = e.historyFrame(t)[bin]
		}
		e.horizontalGuide[bin] = median(e.scratch[:historyFrames])
	}
}

func (e *Estimator) computeVerticalMedian() {
	// Median across a frequency neighborhood in the current frame. A
	// narrow spectral peak is an outlier within its neighborhood and is
	// rejected; broadband energy survives.
	cur := e.currentFrame()
	half := verticalWindow / 2

	for bin := 0; bin < e.numBins; bin++ {
		lo := bin - half
		if lo < 0 {
			lo = 0
		}
		hi := bin + half + 1
		if hi > e.numBins {
			hi = e.numBins
		}
		n := copy(e.scratch, cur[lo:hi])
		e.verticalGuide[bin] = median(e.scratch[:n])
	}
}

func (e *Estimator) computeFlux() {
	cur := e.currentFrame()
	for i := 0; i < e.numBins; i++ {
		change := math.Abs(cur[i] - e.prevMagnitudes[i])
		local := cur[i]
		if e.prevMagnitudes[i] > local {
			local = e.prevMagnitudes[i]
		}
		if local > dsp.Epsilon {
			e.flux[i] = dsp.Clamp01(change / local)
		} else {
			e.flux[i] = 0
		}
	}
}

func (e *Estimator) computeFlatness() {
	// Geometric over arithmetic mean in a local window, skipping DC.
	// Near 0 means peaked (tonal), near 1 means flat (noise-like).
	cur := e.currentFrame()
	half := flatnessWindow / 2

	for bin := 0; bin < e.numBins; bin++ {
		lo := bin - half
		if lo < 1 {
			lo = 1
		}
		hi := bin + half + 1
		if hi > e.numBins {
			hi = e.numBins
		}
		if hi-lo < 3 {
			e.flatness[bin] = 0.5
			continue
		}

		var logSum, sum float64
		valid := 0
		for i := lo; i < hi; i++ {
			if m := cur[i]; m > dsp.Epsilon {
				logSum += math.Log(m)
				sum += m
				valid++
			}
		}
		if valid >= 3 && sum > dsp.Epsilon {
			geo := math.Exp(logSum / float64(valid))
			arith := sum / float64(valid)
			e.flatness[bin] = dsp.Clamp01(geo / arith)
		} else {
			e.flatness[bin] = 0.5
		}
	}
}

func (e *Estimator) applyAsymmetricSmoothing() {
	for i := 0; i < e.numBins; i++ {
		cur := e.combined[i]
		prev := e.prevSmoothedMask[i]
		alpha := releaseAlpha
		if cur > prev {
			alpha = attackAlpha
		}
		e.smoothed[i] = alpha*cur + (1-alpha)*prev
	}
}

func (e *Estimator) applyFrequencyBlur() {
	// ±1-bin weighted blur, center 0.5 and neighbors 0.25, renormalized at
	// the edges. Removes bin-to-bin mask steps that would resynthesize as
	// tonal artifacts.
	copy(e.scratch[:e.numBins], e.smoothed)
	for i := 0; i < e.numBins; i++ {
		var sum, weight float64
		for j := -blurRadius; j <= blurRadius; j++ {
			n := i + j
			if n < 0 || n >= e.numBins {
				continue
			}
			w := 0.25
			if j == 0 {
				w = 0.5
			}
			sum += e.scratch[n] * w
			weight += w
		}
		if weight > dsp.Epsilon {
			e.smoothed[i] = sum / weight
		}
	}
}

func (e *Estimator) applySpectralFloor() {
	if e.spectralFloor <= 0 {
		return
	}

	// Floor and ceiling sit symmetrically around 0.5. Values below the
	// floor ease out cubically toward 0, values above the ceiling ease in
	// toward 1; at threshold 1 the two meet and the mask is binary.
	floor := e.spectralFloor * 0.5
	ceiling := 1 - floor

	for i := 0; i < e.numBins; i++ {
		m := e.smoothed[i]
		switch {
		case m < floor:
			t := m / floor
			m = t * t * t * floor
		case m > ceiling:
			t := (m - ceiling) / (1 - ceiling)
			u := 1 - t
			m = ceiling + (1-ceiling)*(1-u*u*u)
		}
		e.smoothed[i] = m
	}
}

// median computes the median of data in place by partial selection,
// averaging the two middle elements for even lengths. data is reordered.
func median(data []float64) float64 {
	n := len(data)
	switch n {
	case 0:
		return 0
	case 1:
		return data[0]
	}

	mid := n / 2
	hi := selectKth(data, mid)
	if n%2 == 1 {
		return hi
	}
	// The partition left elements [0:mid) all <= data[mid]; the lower
	// middle is their maximum.
	lo := data[0]
	for _, v := range data[1:mid] {
		if v > lo {
			lo = v
		}
	}
	return (lo + hi) * 0.5
}

// selectKth partially sorts data so that data[k] holds the k-th smallest
// element, with smaller elements before it and larger after. Iterative
// Hoare-style selection; median windows here are at most 13 elements.
func selectKth(data []float64, k int) float64 {
	lo, hi := 0, len(data)-1
	for lo < hi {
		pivot := data[(lo+hi)/2]
		i, j := lo, hi
		for i <= j {
			for data[i] < pivot {
				i++
			}
			for data[j] > pivot {
				j--
			}
			if i <= j {
				data[i], data[j] = data[j], data[i]
				i++
				j--
			}
		}
		if k <= j {
			hi = j
		} else if k >= i {
			lo = i
		} else {
			break
		}
	}
	return data[k]
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
