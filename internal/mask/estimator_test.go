// SPDX-License-Identifier: MIT
package mask

import (
	"math"
	"testing"
)

const testBins = 257

// feedFrame runs the full per-frame sequence once.
func feedFrame(e *Estimator, mags []float64) (tonal, noise []float64) {
	e.UpdateGuides(mags)
	e.UpdateStats(mags)
	tonal = make([]float64, len(mags))
	noise = make([]float64, len(mags))
	e.ComputeMasks(tonal, noise)
	return tonal, noise
}

// harmonicSpectrum is a stationary spectrum with a few strong narrow
// partials over a very low floor.
func harmonicSpectrum(bins int) []float64 {
	mags := make([]float64, bins)
	for i := range mags {
		mags[i] = 1e-4
	}
	for _, peak := range []int{20, 40, 60, 80, 120} {
		if peak < bins {
			mags[peak] = 1.0
			if peak > 0 {
				mags[peak-1] = 0.3
			}
			if peak+1 < bins {
				mags[peak+1] = 0.3
			}
		}
	}
	return mags
}

// noisySpectrum is broadband with frame-to-frame variation.
func noisySpectrum(bins, seed int) []float64 {
	mags := make([]float64, bins)
	state := uint64(seed)*2654435761 + 1
	for i := range mags {
		state = state*6364136223846793005 + 1442695040888963407
		mags[i] = 0.3 + 0.4*float64(state>>11)/float64(1<<53)
	}
	return mags
}

func TestMaskRangeAndComplement(t *testing.T) {
	t.Parallel()
	e := NewEstimator()
	e.Prepare(testBins, 48000)

	for frame := 0; frame < 30; frame++ {
		var mags []float64
		if frame%2 == 0 {
			mags = harmonicSpectrum(testBins)
		} else {
			mags = noisySpectrum(testBins, frame)
		}
		tonal, noise := feedFrame(e, mags)

		for i := 0; i < testBins; i++ {
			if tonal[i] < 0 || tonal[i] > 1 {
				t.Fatalf("frame %d bin %d: tonal mask %v out of [0,1]", frame, i, tonal[i])
			}
			if noise[i] < 0 || noise[i] > 1 {
				t.Fatalf("frame %d bin %d: noise mask %v out of [0,1]", frame, i, noise[i])
			}
			if math.Abs(tonal[i]+noise[i]-1) > 0.1 {
				t.Fatalf("frame %d bin %d: masks sum to %v", frame, i, tonal[i]+noise[i])
			}
		}
	}
}

// A sustained harmonic input must push the tonal mask up at the partials.
func TestHarmonicBias(t *testing.T) {
	t.Parallel()
	e := NewEstimator()
	e.Prepare(testBins, 48000)

	mags := harmonicSpectrum(testBins)
	var tonal []float64
	for frame := 0; frame < 25; frame++ {
		tonal, _ = feedFrame(e, mags)
	}

	peaks := []int{20, 40, 60, 80, 120}
	var sum float64
	for _, p := range peaks {
		sum += tonal[p]
	}
	avg := sum / float64(len(peaks))
	if avg <= 0.4 {
		t.Errorf("average tonal mask at partials = %v, want > 0.4", avg)
	}
}

// Decorrelated broadband input must push the noise mask up.
func TestNoiseBias(t *testing.T) {
	t.Parallel()
	e := NewEstimator()
	e.Prepare(testBins, 48000)

	var noise []float64
	for frame := 0; frame < 25; frame++ {
		_, noise = feedFrame(e, noisySpectrum(testBins, frame))
	}

	var sum float64
	for i := 10; i < testBins-10; i++ {
		sum += noise[i]
	}
	avg := sum / float64(testBins-20)
	if avg <= 0.4 {
		t.Errorf("average noise mask = %v, want > 0.4", avg)
	}
}

// Silence must stay numerically stable: no NaN, no Inf, masks in range.
func TestSilenceStability(t *testing.T) {
	t.Parallel()
	e := NewEstimator()
	e.Prepare(testBins, 48000)

	silence := make([]float64, testBins)
	for frame := 0; frame < 15; frame++ {
		tonal, noise := feedFrame(e, silence)
		for i := range tonal {
			if math.IsNaN(tonal[i]) || math.IsInf(tonal[i], 0) {
				t.Fatalf("frame %d bin %d: tonal mask %v on silence", frame, i, tonal[i])
			}
			if math.IsNaN(noise[i]) || math.IsInf(noise[i], 0) {
				t.Fatalf("frame %d bin %d: noise mask %v on silence", frame, i, noise[i])
			}
		}
	}
}

// Magnitudes spanning 36 orders of magnitude must not produce NaN or Inf.
func TestExtremeMagnitudes(t *testing.T) {
	t.Parallel()
	e := NewEstimator()
	e.Prepare(testBins, 48000)

	mags := make([]float64, testBins)
	for i := range mags {
		switch i % 3 {
		case 0:
			mags[i] = 1e6
		case 1:
			mags[i] = 1e-30
		default:
			mags[i] = 1
		}
	}

	for frame := 0; frame < 10; frame++ {
		tonal, noise := feedFrame(e, mags)
		for i := range tonal {
			if math.IsNaN(tonal[i]) || math.IsInf(tonal[i], 0) ||
				math.IsNaN(noise[i]) || math.IsInf(noise[i], 0) {
				t.Fatalf("frame %d bin %d: non-finite mask", frame, i)
			}
		}
	}
}

// Identical input after Reset must produce identical masks.
func TestResetDeterminism(t *testing.T) {
	t.Parallel()
	e := NewEstimator()
	e.Prepare(testBins, 48000)
	e.SetSeparation(0.6)
	e.SetFocus(0.2)
	e.SetSpectralFloor(0.3)

	run := func() [][]float64 {
		var out [][]float64
		for frame := 0; frame < 12; frame++ {
			var mags []float64
			if frame < 6 {
				mags = harmonicSpectrum(testBins)
			} else {
				mags = noisySpectrum(testBins, frame)
			}
			tonal, _ := feedFrame(e, mags)
			out = append(out, tonal)
		}
		return out
	}

	first := run()
	e.Reset()
	second := run()

	for f := range first {
		for i := range first[f] {
			if first[f][i] != second[f][i] {
				t.Fatalf("frame %d bin %d differs after reset: %v vs %v",
					f, i, first[f][i], second[f][i])
			}
		}
	}
}

// Higher separation must sharpen the mask: values move away from 0.5.
func TestSeparationSharpens(t *testing.T) {
	t.Parallel()
	mags := harmonicSpectrum(testBins)

	maskAt := func(amount float64) []float64 {
		e := NewEstimator()
		e.Prepare(testBins, 48000)
		e.SetSeparation(amount)
		var tonal []float64
		for frame := 0; frame < 25; frame++ {
			tonal, _ = feedFrame(e, mags)
		}
		return tonal
	}

	soft := maskAt(0.1)
	hard := maskAt(1.0)

	var softSpread, hardSpread float64
	for i := 0; i < testBins; i++ {
		softSpread += math.Abs(soft[i] - 0.5)
		hardSpread += math.Abs(hard[i] - 0.5)
	}
	if hardSpread <= softSpread {
		t.Errorf("separation 1.0 spread %v not sharper than 0.1 spread %v",
			hardSpread, softSpread)
	}
}

// Focus must shift mask mass between the components.
func TestFocusBias(t *testing.T) {
	t.Parallel()
	mags := noisySpectrum(testBins, 7)

	avgTonal := func(focus float64) float64 {
		e := NewEstimator()
		e.Prepare(testBins, 48000)
		e.SetFocus(focus)
		var tonal []float64
		for frame := 0; frame < 20; frame++ {
			tonal, _ = feedFrame(e, mags)
		}
		var sum float64
		for _, v := range tonal {
			sum += v
		}
		return sum / float64(len(tonal))
	}

	toTonal := avgTonal(-1)
	neutral := avgTonal(0)
	toNoise := avgTonal(1)

	if !(toTonal > neutral && neutral > toNoise) {
		t.Errorf("focus ordering violated: -1 -> %v, 0 -> %v, +1 -> %v",
			toTonal, neutral, toNoise)
	}
}

func TestSpectralFloorSharpening(t *testing.T) {
	t.Parallel()
	e := NewEstimator()
	e.Prepare(testBins, 48000)
	e.SetSeparation(0.75)
	e.SetSpectralFloor(1.0)

	mags := harmonicSpectrum(testBins)
	var tonal []float64
	for frame := 0; frame < 25; frame++ {
		tonal, _ = feedFrame(e, mags)
	}

	// At threshold 1 the floor stage is binary around 0.5; every value must
	// still be finite and in range.
	for i, v := range tonal {
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Fatalf("bin %d: floored mask %v out of range", i, v)
		}
	}
}

func TestParameterClamping(t *testing.T) {
	t.Parallel()
	e := NewEstimator()

	e.SetSeparation(3)
	if e.Separation() != 1 {
		t.Errorf("separation not clamped: %v", e.Separation())
	}
	e.SetSeparation(-1)
	if e.Separation() != 0 {
		t.Errorf("separation not clamped low: %v", e.Separation())
	}

	e.SetFocus(5)
	if e.Focus() != 1 {
		t.Errorf("focus not clamped: %v", e.Focus())
	}
	e.SetFocus(-5)
	if e.Focus() != -1 {
		t.Errorf("focus not clamped low: %v", e.Focus())
	}

	e.SetSpectralFloor(2)
	if e.SpectralFloor() != 1 {
		t.Errorf("floor not clamped: %v", e.SpectralFloor())
	}
}

func TestMedian(t *testing.T) {
	t.Parallel()
	cases := []struct {
		data []float64
		want float64
	}{
		{[]float64{5}, 5},
		{[]float64{3, 1}, 2},
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
		{[]float64{9, 9, 9, 9, 9}, 9},
		{[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, 5},
		{[]float64{0.5, 0.1, 0.9, 0.3, 0.7, 0.2, 0.8}, 0.5},
	}
	for _, tc := range cases {
		data := append([]float64(nil), tc.data...)
		if got := median(data); got != tc.want {
			t.Errorf("median(%v) = %v, want %v", tc.data, got, tc.want)
		}
	}
}

func TestPerFrameZeroAllocs(t *testing.T) {
	e := NewEstimator()
	e.Prepare(testBins, 48000)

	mags := harmonicSpectrum(testBins)
	tonal := make([]float64, testBins)
	noise := make([]float64, testBins)

	// Warm up the history ring.
	for i := 0; i < historyFrames; i++ {
		e.UpdateGuides(mags)
		e.UpdateStats(mags)
		e.ComputeMasks(tonal, noise)
	}

	allocs := testing.AllocsPerRun(50, func() {
		e.UpdateGuides(mags)
		e.UpdateStats(mags)
		e.ComputeMasks(tonal, noise)
	})
	if allocs > 0 {
		t.Errorf("expected zero allocations per frame, got %.1f", allocs)
	}
}

func BenchmarkFullFrame(b *testing.B) {
	e := NewEstimator()
	e.Prepare(1025, 48000)

	mags := harmonicSpectrum(1025)
	tonal := make([]float64, 1025)
	noise := make([]float64, 1025)

	b.ReportAllocs()
	for b.Loop() {
		e.UpdateGuides(mags)
		e.UpdateStats(mags)
		e.ComputeMasks(tonal, noise)
	}
}
