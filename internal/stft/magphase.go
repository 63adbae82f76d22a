// SPDX-License-Identifier: MIT
package stft

import (
	"math"

	"unravel/internal/dsp"
)

// MagPhaseFrame converts a complex spectral frame to parallel magnitude
// and phase arrays and back. Separation logic operates purely on the
// magnitudes; the phases ride along untouched so that reconstruction stays
// phase-coherent.
//
// Bins whose magnitude falls below dsp.Epsilon are snapped to exact
// silence, magnitude and phase both zero. atan2 of near-zero components is
// numerically meaningless and would otherwise resynthesize as low-level
// phase noise. The round trip is therefore intentionally lossy below
// epsilon and lossless above it.
type MagPhaseFrame struct {
	magnitudes []float64
	phases     []float64
}

// NewMagPhaseFrame returns a frame sized for numBins spectral bins.
func NewMagPhaseFrame(numBins int) *MagPhaseFrame {
	return &MagPhaseFrame{
		magnitudes: make([]float64, numBins),
		phases:     make([]float64, numBins),
	}
}

// FromComplex decomposes a complex spectral frame into magnitude and phase.
// len(frame) must equal NumBins.
func (f *MagPhaseFrame) FromComplex(frame []complex128) {
	for i, c := range frame {
		re := real(c)
		im := imag(c)
		mag := math.Hypot(re, im)
		if mag > dsp.Epsilon {
			f.magnitudes[i] = mag
			f.phases[i] = math.Atan2(im, re)
		} else {
			f.magnitudes[i] = 0
			f.phases[i] = 0
		}
	}
	dsp.FlushDenormals(f.magnitudes)
	dsp.FlushDenormals(f.phases)
}

// ToComplex recomposes the frame into complex form, writing into frame.
// len(frame) must equal NumBins.
func (f *MagPhaseFrame) ToComplex(frame []complex128) {
	for i := range frame {
		mag := f.magnitudes[i]
		if mag < dsp.Epsilon {
			frame[i] = 0
			continue
		}
		frame[i] = complex(mag*math.Cos(f.phases[i]), mag*math.Sin(f.phases[i]))
	}
}

// Magnitudes returns the magnitude array as a mutable view. The mask and
// gain stages write the final magnitudes here before ToComplex.
func (f *MagPhaseFrame) Magnitudes() []float64 { return f.magnitudes }

// Phases returns the phase array as a mutable view.
func (f *MagPhaseFrame) Phases() []float64 { return f.phases }

// NumBins returns the frame length.
func (f *MagPhaseFrame) NumBins() int { return len(f.magnitudes) }

// ApplyGain scales every magnitude in place. Phase is unaffected by a
// linear gain.
func (f *MagPhaseFrame) ApplyGain(gain float64) {
	for i := range f.magnitudes {
		f.magnitudes[i] *= gain
	}
}

// PeakBin returns the index of the largest magnitude.
func (f *MagPhaseFrame) PeakBin() int {
	peak := 0
	for i, m := range f.magnitudes {
		if m > f.magnitudes[peak] {
			peak = i
		}
	}
	return peak
}

// Energy returns the sum of squared magnitudes.
func (f *MagPhaseFrame) Energy() float64 {
	var e float64
	for _, m := range f.magnitudes {
		e += m * m
	}
	return e
}

// Reset zeroes both arrays.
func (f *MagPhaseFrame) Reset() {
	for i := range f.magnitudes {
		f.magnitudes[i] = 0
		f.phases[i] = 0
	}
}
