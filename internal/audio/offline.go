// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"os"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"unravel/internal/config"
	"unravel/internal/hpss"
	applog "unravel/internal/log"
)

// ProcessFile runs the separation offline over a WAV file and writes the
// mixed result to outPath. When stems is true it additionally writes the
// tonal and noise components next to outPath with .tonal/.noise suffixes.
//
// The pipeline delay is compensated: the input is padded with silence and
// the first latency samples of output are dropped, so the result is
// sample-aligned with the input.
func ProcessFile(cfg *config.Config, inPath, outPath string, stems bool) error {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	decoder := wav.NewDecoder(in)
	if !decoder.IsValidFile() {
		return fmt.Errorf("not a valid WAV file: %s", inPath)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("failed to decode input: %w", err)
	}

	channels := buf.Format.NumChannels
	sampleRate := buf.Format.SampleRate
	bitDepth := int(decoder.BitDepth)
	frames := len(buf.Data) / channels
	if frames == 0 {
		return fmt.Errorf("input contains no audio")
	}

	scale := float64(int64(1)<<(bitDepth-1)) - 1

	// Deinterleave to per-channel float64.
	input := make([][]float64, channels)
	for c := range input {
		input[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			input[c][i] = float64(buf.Data[i*channels+c]) / scale
		}
	}

	blockSize := cfg.Audio.FramesPerBuffer
	params := ResolveParams(cfg.Separation)

	procs := make([]*hpss.Processor, channels)
	for c := range procs {
		proc := hpss.NewProcessor(cfg.Separation.HighQuality)
		proc.Prepare(float64(sampleRate), blockSize)
		proc.SetSeparation(params.Separation)
		proc.SetFocus(params.Focus)
		proc.SetSpectralFloor(params.SpectralFloor)
		proc.SetBypass(params.Bypass)
		proc.SetSafetyLimiting(params.SafetyLimiter)
		procs[c] = proc
	}
	latency := procs[0].LatencySamples()

	applog.WithFields(map[string]any{
		"file":       inPath,
		"frames":     frames,
		"channels":   channels,
		"sampleRate": sampleRate,
		"latency":    latency,
	}).Info("offline processing")

	mixed := make([][]float64, channels)
	tonal := make([][]float64, channels)
	noise := make([][]float64, channels)
	for c := 0; c < channels; c++ {
		mixed[c] = make([]float64, frames)
		tonal[c] = make([]float64, frames)
		noise[c] = make([]float64, frames)
	}

	inBlock := make([]float64, blockSize)
	outBlock := make([]float64, blockSize)
	tonalBlock := make([]float64, blockSize)
	noiseBlock := make([]float64, blockSize)

	padded := frames + latency
	for c := 0; c < channels; c++ {
		written := 0
		for pos := 0; pos < padded; pos += blockSize {
			n := blockSize
			if pos+n > padded {
				n = padded - pos
			}

			for i := 0; i < n; i++ {
				if pos+i < frames {
					inBlock[i] = input[c][pos+i]
				} else {
					inBlock[i] = 0
				}
			}

			procs[c].ProcessBlock(inBlock[:n], outBlock[:n], tonalBlock[:n], noiseBlock[:n], params.TonalGain, params.NoiseGain)

			// Drop the first latency samples; keep the rest aligned.
			for i := 0; i < n && written < frames; i++ {
				if pos+i < latency {
					continue
				}
				mixed[c][written] = outBlock[i]
				tonal[c][written] = tonalBlock[i]
				noise[c][written] = noiseBlock[i]
				written++
			}
		}
	}

	if err := writeWAV(outPath, mixed, sampleRate, bitDepth); err != nil {
		return err
	}
	if stems {
		if err := writeWAV(stemPath(outPath, "tonal"), tonal, sampleRate, bitDepth); err != nil {
			return err
		}
		if err := writeWAV(stemPath(outPath, "noise"), noise, sampleRate, bitDepth); err != nil {
			return err
		}
	}
	return nil
}

// stemPath inserts a stem label before the extension: out.wav -> out.tonal.wav.
func stemPath(path, stem string) string {
	if i := strings.LastIndex(path, "."); i > 0 {
		return path[:i] + "." + stem + path[i:]
	}
	return path + "." + stem + ".wav"
}

// writeWAV interleaves per-channel float64 audio and encodes it as PCM.
func writeWAV(path string, data [][]float64, sampleRate, bitDepth int) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()

	channels := len(data)
	frames := len(data[0])
	scale := float64(int64(1)<<(bitDepth-1)) - 1

	ints := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			v := data[c][i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			// Round, don't truncate: a decode/encode round trip must
			// reproduce the original sample exactly.
			ints[i*channels+c] = int(math.Round(v * scale))
		}
	}

	enc := wav.NewEncoder(out, sampleRate, bitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}

	applog.WithField("file", path).Info("wrote output")
	return nil
}
