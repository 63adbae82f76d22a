// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unravel/internal/config"
)

func TestStemPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "out.tonal.wav", stemPath("out.wav", "tonal"))
	assert.Equal(t, "dir/mix.noise.wav", stemPath("dir/mix.wav", "noise"))
	assert.Equal(t, "noext.tonal.wav", stemPath("noext", "tonal"))
}

// writeTestWAV writes a mono 16-bit sine file and returns its path and
// sample data.
func writeTestWAV(t *testing.T, dir string, frames int) (string, []int) {
	t.Helper()
	path := filepath.Join(dir, "input.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	data := make([]int, frames)
	for i := range data {
		data[i] = int(28000 * math.Sin(2*math.Pi*440*float64(i)/48000))
	}

	enc := wav.NewEncoder(f, 48000, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 48000},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path, data
}

func readWAV(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return buf.Data
}

// Bypass processing with latency compensation must reproduce the input
// exactly, sample for sample.
func TestProcessFileBypassIsIdentity(t *testing.T) {
	dir := t.TempDir()
	inPath, input := writeTestWAV(t, dir, 48000)

	cfg := config.New()
	cfg.Separation.Bypass = true

	outPath := filepath.Join(dir, "out.wav")
	require.NoError(t, ProcessFile(cfg, inPath, outPath, false))

	output := readWAV(t, outPath)
	require.Equal(t, len(input), len(output))
	for i := range input {
		if input[i] != output[i] {
			t.Fatalf("sample %d: got %d, want %d", i, output[i], input[i])
		}
	}
}

func TestProcessFileWritesStems(t *testing.T) {
	dir := t.TempDir()
	inPath, _ := writeTestWAV(t, dir, 24000)

	cfg := config.New()
	outPath := filepath.Join(dir, "out.wav")
	require.NoError(t, ProcessFile(cfg, inPath, outPath, true))

	for _, p := range []string{outPath, stemPath(outPath, "tonal"), stemPath(outPath, "noise")} {
		info, err := os.Stat(p)
		require.NoError(t, err, "missing %s", p)
		assert.Greater(t, info.Size(), int64(44), "empty file %s", p)
	}

	// Stems must decode to the input length.
	tonal := readWAV(t, stemPath(outPath, "tonal"))
	assert.Len(t, tonal, 24000)
}

func TestProcessFileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.wav")
	require.NoError(t, os.WriteFile(bad, []byte("not audio"), 0o644))

	err := ProcessFile(config.New(), bad, filepath.Join(dir, "out.wav"), false)
	require.Error(t, err)
}

func TestProcessFileMissingInput(t *testing.T) {
	dir := t.TempDir()
	err := ProcessFile(config.New(), filepath.Join(dir, "nope.wav"), filepath.Join(dir, "out.wav"), false)
	require.Error(t, err)
}
