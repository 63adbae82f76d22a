// SPDX-License-Identifier: MIT
package audio

import (
	"unravel/internal/config"
	"unravel/internal/dsp"
)

// Params is the resolved, linear-domain parameter set handed to the
// separation cores once per block. This is the shim between host-facing
// units (decibels, solo/mute switches) and the core's normalized inputs.
type Params struct {
	TonalGain     float64 // linear
	NoiseGain     float64 // linear
	Separation    float64 // [0,1]
	Focus         float64 // [-1,1]
	SpectralFloor float64 // [0,1]
	Bypass        bool
	HighQuality   bool
	SafetyLimiter bool
}

// ResolveParams converts a SeparationConfig into core parameters:
// dB gains become linear (with the -60 dB floor mapping to exact zero),
// and solo/mute switches collapse into the two gains. A single active solo
// mutes the other component; both solos cancel out; mute always wins.
func ResolveParams(s config.SeparationConfig) Params {
	tonal := dsp.DBToGain(s.TonalGainDB)
	noise := dsp.DBToGain(s.NoiseGainDB)

	if s.SoloTonal != s.SoloNoise {
		if s.SoloTonal {
			noise = 0
		} else {
			tonal = 0
		}
	}
	if s.MuteTonal {
		tonal = 0
	}
	if s.MuteNoise {
		noise = 0
	}

	return Params{
		TonalGain:     tonal,
		NoiseGain:     noise,
		Separation:    dsp.Clamp01(s.Amount),
		Focus:         dsp.Clamp(s.Focus, -1, 1),
		SpectralFloor: dsp.Clamp01(s.SpectralFloor),
		Bypass:        s.Bypass,
		HighQuality:   s.HighQuality,
		SafetyLimiter: s.SafetyLimiter,
	}
}
