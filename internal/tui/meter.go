// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"unravel/internal/transport"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	tonalBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	noiseBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E8833A"))
	levelBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

const meterFloorDB = -60.0

// meterFrameMsg is one reduced spectral frame: per-component energy shares
// and the overall level, cheap enough to compute in Publish.
type meterFrameMsg struct {
	tonalShare float64
	noiseShare float64
	levelDB    float64
	fftSize    int
	sampleRate float64
}

// MeterPublisher adapts the live meter to the publisher contract. Publish
// reduces the frame to a meterFrameMsg and drops it into a one-slot
// channel; a drain goroutine inside RunMeter forwards to the UI. The
// channel send never blocks, so the audio callback never waits on
// terminal redraws.
type MeterPublisher struct {
	frames chan meterFrameMsg
	closed atomic.Bool
}

// NewMeterPublisher creates a publisher for RunMeter.
func NewMeterPublisher() *MeterPublisher {
	return &MeterPublisher{frames: make(chan meterFrameMsg, 1)}
}

var _ transport.Publisher = (*MeterPublisher)(nil)

// Publish reduces the frame and hands it to the meter, dropping it if the
// previous one has not been drawn yet.
func (p *MeterPublisher) Publish(frame *transport.SpectralFrame) error {
	if p.closed.Load() {
		return nil
	}
	msg := reduceFrame(frame)
	select {
	case p.frames <- msg:
	default:
	}
	return nil
}

// Close stops accepting frames.
func (p *MeterPublisher) Close() error {
	p.closed.Store(true)
	return nil
}

// reduceFrame collapses a spectral frame to energy shares and a peak level.
func reduceFrame(frame *transport.SpectralFrame) meterFrameMsg {
	var total, tonal, noise, peak float64
	for i, m := range frame.Magnitudes {
		pw := m * m
		total += pw
		tonal += pw * frame.TonalMask[i]
		noise += pw * frame.NoiseMask[i]
		if m > peak {
			peak = m
		}
	}

	msg := meterFrameMsg{
		levelDB:    meterFloorDB,
		fftSize:    frame.FFTSize,
		sampleRate: frame.SampleRate,
	}
	if total > 0 {
		msg.tonalShare = tonal / total
		msg.noiseShare = noise / total
	}
	if peak > 0 {
		msg.levelDB = math.Max(meterFloorDB, 20*math.Log10(peak))
	}
	return msg
}

// MeterModel renders the live tonal/noise balance of the running engine.
type MeterModel struct {
	frame    meterFrameMsg
	haveData bool
	width    int
}

// NewMeterModel creates the initial model.
func NewMeterModel() MeterModel {
	return MeterModel{frame: meterFrameMsg{levelDB: meterFloorDB}, width: 80}
}

// Init does nothing; frames arrive via program.Send.
func (m MeterModel) Init() tea.Cmd {
	return nil
}

// Update consumes reduced frames and the quit keys.
func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case meterFrameMsg:
		m.frame = msg
		m.haveData = true

	case tea.KeyMsg:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))) {
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the meter.
func (m MeterModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Live Separation"))
	sb.WriteString("\n\n")

	if !m.haveData {
		sb.WriteString(dimStyle.Render("Waiting for signal..."))
		sb.WriteString("\n")
	} else {
		barWidth := m.width - 20
		if barWidth < 10 {
			barWidth = 10
		}
		if barWidth > 60 {
			barWidth = 60
		}

		level := (m.frame.levelDB - meterFloorDB) / -meterFloorDB
		sb.WriteString(fmt.Sprintf("level  %s %5.1f dB\n",
			levelBarStyle.Render(bar(level, barWidth)), m.frame.levelDB))
		sb.WriteString(fmt.Sprintf("tonal  %s %4.0f%%\n",
			tonalBarStyle.Render(bar(m.frame.tonalShare, barWidth)), m.frame.tonalShare*100))
		sb.WriteString(fmt.Sprintf("noise  %s %4.0f%%\n",
			noiseBarStyle.Render(bar(m.frame.noiseShare, barWidth)), m.frame.noiseShare*100))
		sb.WriteString("\n")
		sb.WriteString(dimStyle.Render(fmt.Sprintf("%d-point analysis @ %.0f Hz",
			m.frame.fftSize, m.frame.sampleRate)))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

// bar renders a fixed-width fill bar for a 0..1 fraction.
func bar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(math.Round(fraction * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// RunMeter drives the live meter until the user quits or the quit channel
// closes. The publisher must be the one wired into the engine.
func RunMeter(p *MeterPublisher, quit <-chan struct{}) error {
	prog := tea.NewProgram(NewMeterModel(), tea.WithAltScreen())

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case msg := <-p.frames:
				prog.Send(msg)
			case <-quit:
				prog.Quit()
				return
			case <-stop:
				return
			}
		}
	}()

	_, err := prog.Run()
	close(stop)
	return err
}
