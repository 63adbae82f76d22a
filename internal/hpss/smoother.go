// SPDX-License-Identifier: MIT
package hpss

// LinearSmoother ramps a gain value linearly toward a target over a fixed
// duration, advanced sample-by-sample or in whole-hop steps. Retargeting
// mid-ramp restarts the ramp from the current value, so parameter changes
// never step the gain.
type LinearSmoother struct {
	current     float64
	target      float64
	step        float64
	rampSamples int
	remaining   int
}

// NewLinearSmoother returns a smoother settled at value with the given
// ramp length in samples.
func NewLinearSmoother(value float64, rampSamples int) *LinearSmoother {
	if rampSamples < 1 {
		rampSamples = 1
	}
	return &LinearSmoother{
		current:     value,
		target:      value,
		rampSamples: rampSamples,
	}
}

// Reset settles the smoother at value immediately and updates the ramp
// length.
func (s *LinearSmoother) Reset(value float64, rampSamples int) {
	if rampSamples < 1 {
		rampSamples = 1
	}
	s.current = value
	s.target = value
	s.step = 0
	s.rampSamples = rampSamples
	s.remaining = 0
}

// SetTarget starts a ramp from the current value to target. Setting the
// current target again is a no-op, preserving ramp progress.
func (s *LinearSmoother) SetTarget(target float64) {
	if target == s.target {
		return
	}
	s.target = target
	s.step = (target - s.current) / float64(s.rampSamples)
	s.remaining = s.rampSamples
}

// Current returns the present smoothed value without advancing.
func (s *LinearSmoother) Current() float64 { return s.current }

// Target returns the value the smoother is ramping toward.
func (s *LinearSmoother) Target() float64 { return s.target }

// Skip advances the ramp by n samples.
func (s *LinearSmoother) Skip(n int) {
	if s.remaining <= 0 {
		return
	}
	if n >= s.remaining {
		s.current = s.target
		s.remaining = 0
		s.step = 0
		return
	}
	s.current += s.step * float64(n)
	s.remaining -= n
}

// Smoothing reports whether a ramp is still in progress.
func (s *LinearSmoother) Smoothing() bool { return s.remaining > 0 }
