// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "unravel/internal/log"
)

// StartRecording begins capturing the processed output to a WAV file.
// Bit depth comes from the recording config. Returns an error if a
// recording is already in progress.
func (e *Engine) StartRecording(path string) error {
	if e.isRecording.Load() {
		return fmt.Errorf("recording already in progress")
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create recording file: %w", err)
	}

	bitDepth := e.cfg.Recording.BitDepth
	channels := e.cfg.Audio.Channels
	sampleRate := int(e.cfg.Audio.SampleRate)

	e.outputFile = file
	e.wavEncoder = wav.NewEncoder(file, sampleRate, bitDepth, channels, 1)
	e.sampleScale = float64(int64(1)<<(bitDepth-1)) - 1
	e.sampleBuf = &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, e.cfg.Audio.FramesPerBuffer*channels),
		SourceBitDepth: bitDepth,
	}

	// Encoder and buffers must be fully set up before the callback can
	// observe the flag.
	e.isRecording.Store(true)

	applog.WithField("file", path).Info("recording started")
	return nil
}

// StopRecording finalizes the WAV file. Safe to call when not recording.
func (e *Engine) StopRecording() error {
	if !e.isRecording.Swap(false) {
		return nil
	}

	// The callback checks the flag before touching the encoder; one block
	// may still be in flight, but the stream is stopped before Close in
	// the shutdown path, so by the time we get here the callback is done.
	if err := e.wavEncoder.Close(); err != nil {
		e.outputFile.Close()
		return fmt.Errorf("failed to finalize recording: %w", err)
	}
	if err := e.outputFile.Close(); err != nil {
		return fmt.Errorf("failed to close recording file: %w", err)
	}

	e.wavEncoder = nil
	e.outputFile = nil
	e.sampleBuf = nil

	applog.Infof("recording stopped")
	return nil
}

// IsRecording reports whether a recording is in progress.
func (e *Engine) IsRecording() bool {
	return e.isRecording.Load()
}

// writeRecording interleaves the processed output and appends it to the
// WAV file. Called from the audio callback; the encoder write does file
// IO, which is tolerable for capture use but will eventually be moved
// behind a ring buffer.
func (e *Engine) writeRecording() {
	channels := len(e.out64)
	frames := len(e.out64[0])
	data := e.sampleBuf.Data[:frames*channels]

	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			v := e.out64[c][i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			data[i*channels+c] = int(math.Round(v * e.sampleScale))
		}
	}

	e.sampleBuf.Data = data
	if err := e.wavEncoder.Write(e.sampleBuf); err != nil {
		applog.Errorf("engine: recording write failed: %v", err)
		e.isRecording.Store(false)
	}
}
