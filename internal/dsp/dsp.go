// SPDX-License-Identifier: MIT
/*
Package dsp holds the numeric constants and scalar helpers shared by the
spectral processing packages (stft, mask, hpss).

The epsilon and denormal thresholds live here, in one place, so that every
component guards divisions and flushes tiny values against the same
numbers. A bin that one component snaps to silence must look like silence
to every other component.
*/
package dsp

import "math"

const (
	// Epsilon guards divisions and silence detection throughout the
	// spectral pipeline. Magnitudes below this are treated as exact zero.
	Epsilon = 1e-8

	// DenormalThreshold is the cutoff below which float values are
	// flushed to zero. Denormals are a performance hazard, not a
	// correctness one.
	DenormalThreshold = 1e-30

	// SilenceFloorDB is the lowest representable gain in decibels. At or
	// below this the linear gain is exactly zero rather than a near-zero
	// asymptote, so a fader at the bottom of its range truly mutes.
	SilenceFloorDB = -60.0
)

// FlushDenormals zeroes every element of buf whose absolute value is below
// DenormalThreshold. Safe on the audio thread: no allocation, no branches
// beyond the comparison.
func FlushDenormals(buf []float64) {
	for i, v := range buf {
		if math.Abs(v) < DenormalThreshold {
			buf[i] = 0
		}
	}
}

// Clamp limits v to the inclusive range [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// DBToGain converts a decibel value to a linear gain factor. Values at or
// below SilenceFloorDB map to exactly zero.
func DBToGain(db float64) float64 {
	if db <= SilenceFloorDB {
		return 0
	}
	return math.Pow(10, db/20)
}

// GainToDB converts a linear gain factor to decibels, saturating at
// SilenceFloorDB for zero or negative input.
func GainToDB(gain float64) float64 {
	if gain <= 0 {
		return SilenceFloorDB
	}
	db := 20 * math.Log10(gain)
	if db < SilenceFloorDB {
		return SilenceFloorDB
	}
	return db
}

// IsPowerOfTwo reports whether n is a positive power of two. FFT sizes and
// ring capacities are required to satisfy this.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n. Inputs <= 0
// return 1.
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
