// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync"
	"testing"

	"unravel/internal/config"
	"unravel/internal/hpss"
	"unravel/internal/transport"
)

// newTestEngine builds an Engine around real separation cores without
// touching PortAudio.
func newTestEngine(channels, frames int, publisher transport.Publisher) *Engine {
	cfg := config.New()
	cfg.Audio.Channels = channels
	cfg.Audio.FramesPerBuffer = frames

	e := &Engine{
		cfg:           cfg,
		publisher:     publisher,
		gateEnabled:   false,
		gateThreshold: 0.001,
		processors:    make([]*hpss.Processor, channels),
		in64:          make([][]float64, channels),
		out64:         make([][]float64, channels),
		quality:       cfg.Separation.HighQuality,
	}

	initial := ResolveParams(cfg.Separation)
	e.params.Store(&initial)

	for c := 0; c < channels; c++ {
		proc := hpss.NewProcessor(cfg.Separation.HighQuality)
		proc.Prepare(cfg.Audio.SampleRate, frames)
		e.processors[c] = proc
		e.in64[c] = make([]float64, frames)
		e.out64[c] = make([]float64, frames)
	}

	bins := e.processors[0].NumBins()
	e.vizFrame = transport.SpectralFrame{
		SampleRate: cfg.Audio.SampleRate,
		FFTSize:    e.processors[0].FFTSize(),
		Magnitudes: make([]float64, bins),
		TonalMask:  make([]float64, bins),
		NoiseMask:  make([]float64, bins),
	}
	return e
}

func makeBuffers(channels, frames int) [][]float32 {
	buf := make([][]float32, channels)
	for c := range buf {
		buf[c] = make([]float32, frames)
	}
	return buf
}

func TestGateToggle(t *testing.T) {
	t.Parallel()
	e := &Engine{}

	e.EnableGate()
	if !e.gateEnabled {
		t.Error("gate not enabled")
	}
	e.DisableGate()
	if e.gateEnabled {
		t.Error("gate not disabled")
	}
	e.EnableGate()
	e.EnableGate()
	if !e.gateEnabled {
		t.Error("repeated enable lost state")
	}
}

func TestGateThresholdClamping(t *testing.T) {
	t.Parallel()
	e := &Engine{}

	cases := []struct {
		input, want float64
	}{
		{-0.1, 0}, {0, 0}, {0.5, 0.5}, {1, 1}, {1.5, 1},
	}
	for _, tc := range cases {
		e.SetGateThreshold(tc.input)
		if e.gateThreshold != tc.want {
			t.Errorf("SetGateThreshold(%v): got %v, want %v", tc.input, e.gateThreshold, tc.want)
		}
	}
}

func TestUpdateParamsSnapshotIsolation(t *testing.T) {
	t.Parallel()
	e := &Engine{}
	p := Params{TonalGain: 0.5}
	e.UpdateParams(p)

	// Mutating the caller's struct must not affect the stored snapshot.
	p.TonalGain = 99
	if got := e.params.Load().TonalGain; got != 0.5 {
		t.Errorf("snapshot shares caller memory: %v", got)
	}
}

// The callback must run end to end on plain buffers and produce finite
// audio.
func TestProcessStreamProducesAudio(t *testing.T) {
	t.Parallel()
	const frames = 512
	e := newTestEngine(2, frames, nil)

	in := makeBuffers(2, frames)
	out := makeBuffers(2, frames)

	for block := 0; block < 12; block++ {
		for c := range in {
			for i := range in[c] {
				n := block*frames + i
				in[c][i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(n)/48000))
			}
		}
		e.processStream(in, out)
	}

	// After 12 blocks the pipeline is past its latency; output must be
	// non-silent and finite.
	var energy float64
	for c := range out {
		for _, v := range out[c] {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				t.Fatal("non-finite output sample")
			}
			energy += f * f
		}
	}
	if energy == 0 {
		t.Error("output silent after pipeline fill")
	}
}

// A quality switch through the params snapshot must rebuild the cores at
// the next block.
func TestProcessStreamQualitySwitch(t *testing.T) {
	t.Parallel()
	const frames = 512
	e := newTestEngine(1, frames, nil)

	if e.processors[0].FFTSize() != 2048 {
		t.Fatalf("initial FFT size %d, want 2048", e.processors[0].FFTSize())
	}

	p := *e.params.Load()
	p.HighQuality = false
	e.UpdateParams(p)

	in := makeBuffers(1, frames)
	out := makeBuffers(1, frames)
	e.processStream(in, out)

	if e.processors[0].FFTSize() != 1024 {
		t.Errorf("FFT size after switch %d, want 1024", e.processors[0].FFTSize())
	}
	if len(e.vizFrame.Magnitudes) != e.processors[0].NumBins() {
		t.Errorf("viz buffers not resized: %d bins", len(e.vizFrame.Magnitudes))
	}
}

type countingPublisher struct {
	mu    sync.Mutex
	count int
}

func (p *countingPublisher) Publish(*transport.SpectralFrame) error {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
	return nil
}

func (p *countingPublisher) Close() error { return nil }

func (p *countingPublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// The gate must suppress publishing for silent input and pass loud input.
func TestPublishGate(t *testing.T) {
	t.Parallel()
	const frames = 512
	pub := &countingPublisher{}
	e := newTestEngine(1, frames, pub)
	e.EnableGate()
	e.SetGateThreshold(0.01)

	in := makeBuffers(1, frames)
	out := makeBuffers(1, frames)

	// Silent input: no frames published.
	for block := 0; block < 4; block++ {
		e.processStream(in, out)
	}
	if got := pub.published(); got != 0 {
		t.Errorf("published %d frames for silent input, want 0", got)
	}

	// Loud input: frames flow.
	for i := range in[0] {
		in[0][i] = 0.5
	}
	for block := 0; block < 4; block++ {
		e.processStream(in, out)
	}
	if got := pub.published(); got != 4 {
		t.Errorf("published %d frames for loud input, want 4", got)
	}

	// Gate disabled: even silence publishes.
	for i := range in[0] {
		in[0][i] = 0
	}
	e.DisableGate()
	e.processStream(in, out)
	if got := pub.published(); got != 5 {
		t.Errorf("published %d frames with gate disabled, want 5", got)
	}
}

func TestProcessStreamZeroAllocs(t *testing.T) {
	const frames = 512
	e := newTestEngine(1, frames, nil)

	in := makeBuffers(1, frames)
	out := makeBuffers(1, frames)
	for i := range in[0] {
		in[0][i] = float32(0.3 * math.Sin(float64(i)*0.05))
	}

	// Warm up past the pipeline fill.
	for i := 0; i < 8; i++ {
		e.processStream(in, out)
	}

	allocs := testing.AllocsPerRun(50, func() {
		e.processStream(in, out)
	})
	if allocs > 0 {
		t.Errorf("expected zero allocations in audio callback, got %.1f", allocs)
	}
}
