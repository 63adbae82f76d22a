// SPDX-License-Identifier: MIT
package hpss

import (
	"math"
	"testing"
)

func TestSmootherSettled(t *testing.T) {
	t.Parallel()
	s := NewLinearSmoother(0.5, 100)
	if s.Current() != 0.5 || s.Target() != 0.5 {
		t.Errorf("fresh smoother not settled at 0.5: current %v target %v", s.Current(), s.Target())
	}
	if s.Smoothing() {
		t.Error("fresh smoother reports active ramp")
	}

	// Skipping while settled must not move the value.
	s.Skip(1000)
	if s.Current() != 0.5 {
		t.Errorf("settled value moved to %v", s.Current())
	}
}

func TestSmootherRampsLinearly(t *testing.T) {
	t.Parallel()
	s := NewLinearSmoother(0, 100)
	s.SetTarget(1)

	s.Skip(50)
	if math.Abs(s.Current()-0.5) > 1e-12 {
		t.Errorf("halfway value = %v, want 0.5", s.Current())
	}

	s.Skip(50)
	if s.Current() != 1 {
		t.Errorf("end value = %v, want exactly 1", s.Current())
	}
	if s.Smoothing() {
		t.Error("ramp still active after full duration")
	}
}

func TestSmootherOvershootClamps(t *testing.T) {
	t.Parallel()
	s := NewLinearSmoother(0, 10)
	s.SetTarget(1)
	s.Skip(1000)
	if s.Current() != 1 {
		t.Errorf("overshoot skip landed at %v, want exactly 1", s.Current())
	}
}

// Retargeting mid-ramp must restart from the current value without a step.
func TestSmootherRetargetMidRamp(t *testing.T) {
	t.Parallel()
	s := NewLinearSmoother(0, 100)
	s.SetTarget(1)
	s.Skip(50)

	before := s.Current()
	s.SetTarget(0)
	if s.Current() != before {
		t.Errorf("retarget stepped the value from %v to %v", before, s.Current())
	}

	s.Skip(100)
	if math.Abs(s.Current()) > 1e-12 {
		t.Errorf("value after reverse ramp = %v, want 0", s.Current())
	}
}

// Setting the same target again must not restart ramp progress.
func TestSmootherRedundantTarget(t *testing.T) {
	t.Parallel()
	s := NewLinearSmoother(0, 100)
	s.SetTarget(1)
	s.Skip(90)
	s.SetTarget(1)
	s.Skip(10)
	if s.Current() != 1 {
		t.Errorf("value = %v, want 1 after exactly 100 samples", s.Current())
	}
}

func TestSmootherReset(t *testing.T) {
	t.Parallel()
	s := NewLinearSmoother(0, 100)
	s.SetTarget(1)
	s.Skip(30)

	s.Reset(0.25, 200)
	if s.Current() != 0.25 || s.Target() != 0.25 {
		t.Errorf("reset state: current %v target %v, want both 0.25", s.Current(), s.Target())
	}
	if s.Smoothing() {
		t.Error("ramp survived reset")
	}
}
