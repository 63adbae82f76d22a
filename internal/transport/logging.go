// SPDX-License-Identifier: MIT
package transport

import applog "unravel/internal/log"

// LoggingPublisher is a debug Publisher that logs a one-line summary of
// each frame instead of transmitting it.
type LoggingPublisher struct{}

var _ Publisher = (*LoggingPublisher)(nil)

// NewLoggingPublisher returns a Publisher that only logs.
func NewLoggingPublisher() *LoggingPublisher {
	applog.Infof("transport: using logging publisher")
	return &LoggingPublisher{}
}

// Publish logs the frame shape at debug level.
func (LoggingPublisher) Publish(frame *SpectralFrame) error {
	applog.Debugf("transport: frame fftSize=%d bins=%d", frame.FFTSize, len(frame.Magnitudes))
	return nil
}

// Close is a no-op.
func (LoggingPublisher) Close() error { return nil }
