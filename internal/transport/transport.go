// SPDX-License-Identifier: MIT
/*
Package transport publishes spectral analysis snapshots (magnitude
spectrum plus the two separation masks) to visualization clients.

Publishers sit outside the audio hot path but are called from it, so every
implementation obeys the same contract: Publish must not block. It either
copies the frame data synchronously and queues delivery, or drops
the frame (rate limiting, full queue). Visualization tolerates dropped
frames; the audio path tolerates no blocking.
*/
package transport

// SpectralFrame is one visualization snapshot. The slices are only valid
// for the duration of the Publish call; implementations must copy what
// they keep.
type SpectralFrame struct {
	SampleRate float64   `json:"sampleRate"`
	FFTSize    int       `json:"fftSize"`
	Magnitudes []float64 `json:"magnitudes"`
	TonalMask  []float64 `json:"tonalMask"`
	NoiseMask  []float64 `json:"noiseMask"`
}

// Publisher delivers spectral frames to clients.
type Publisher interface {
	Publish(frame *SpectralFrame) error
	Close() error
}
