// SPDX-License-Identifier: MIT
// Package tui provides the interactive device browser and the live
// separation meter.
package tui

import (
	"fmt"
	"strings"

	"unravel/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	defaultTagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065"))
)

// screen identifies which view is active.
type screen int

const (
	listScreen screen = iota
	detailScreen
)

// DeviceBrowserModel is the Bubble Tea model for browsing audio devices
// and inspecting their capabilities before picking IDs for the engine.
type DeviceBrowserModel struct {
	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	active        screen
}

// NewDeviceBrowserModel creates the initial model.
func NewDeviceBrowserModel() DeviceBrowserModel {
	return DeviceBrowserModel{active: listScreen}
}

// Init kicks off device enumeration.
func (m DeviceBrowserModel) Init() tea.Cmd {
	return fetchDevices
}

func fetchDevices() tea.Msg {
	devices, err := audio.Devices()
	if err != nil {
		return errMsg{err}
	}
	return devicesMsg{devices}
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// Update handles input and refreshes the viewport content.
func (m DeviceBrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
			if len(m.devices) > 0 {
				m.viewport.SetContent(m.renderDevices())
			}
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case devicesMsg:
		m.devices = msg.devices
		if m.ready {
			m.viewport.SetContent(m.renderDevices())
		}

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))) {
			return m, tea.Quit
		}

		switch m.active {
		case listScreen:
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.selectedIndex > 0 {
					m.selectedIndex--
					m.viewport.SetContent(m.renderDevices())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
					m.viewport.SetContent(m.renderDevices())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				if len(m.devices) > 0 {
					m.active = detailScreen
					m.viewport.SetContent(m.renderDeviceDetail())
				}
			}

		case detailScreen:
			if key.Matches(msg, key.NewBinding(key.WithKeys("esc"))) {
				m.active = listScreen
				m.viewport.SetContent(m.renderDevices())
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the active screen.
func (m DeviceBrowserModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	var title, help string
	if m.active == listScreen {
		title = titleStyle.Render("Audio Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Details • q: Quit")
	} else {
		title = titleStyle.Render("Device Details")
		help = infoStyle.Render("Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DeviceBrowserModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		kind := deviceKind(device)

		var tags []string
		if device.IsDefaultInput {
			tags = append(tags, defaultTagStyle.Render("default input"))
		}
		if device.IsDefaultOutput {
			tags = append(tags, defaultTagStyle.Render("default output"))
		}
		tagSuffix := ""
		if len(tags) > 0 {
			tagSuffix = " " + strings.Join(tags, ", ")
		}

		line := fmt.Sprintf("[%d] %s (%s)%s\n", device.ID, device.Name, kind, tagSuffix)
		line += fmt.Sprintf("    %d in / %d out @ %.0f Hz\n",
			device.MaxInputChannels, device.MaxOutputChannels, device.DefaultSampleRate)

		if i == m.selectedIndex {
			line = highlightStyle.Render(line)
		}

		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceBrowserModel) renderDeviceDetail() string {
	device := m.devices[m.selectedIndex]

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s\n\n", device.Name))
	sb.WriteString(fmt.Sprintf("ID:                 %d\n", device.ID))
	sb.WriteString(fmt.Sprintf("Host API:           %s\n", device.HostAPI))
	sb.WriteString(fmt.Sprintf("Input channels:     %d\n", device.MaxInputChannels))
	sb.WriteString(fmt.Sprintf("Output channels:    %d\n", device.MaxOutputChannels))
	sb.WriteString(fmt.Sprintf("Default rate:       %.0f Hz\n", device.DefaultSampleRate))
	sb.WriteString(fmt.Sprintf("Default input:      %v\n", device.IsDefaultInput))
	sb.WriteString(fmt.Sprintf("Default output:     %v\n", device.IsDefaultOutput))

	if device.MaxInputChannels > 0 && device.MaxOutputChannels > 0 {
		sb.WriteString("\nUsable for duplex separation.\n")
		sb.WriteString(fmt.Sprintf("Pass --input %d --output %d to use it.\n", device.ID, device.ID))
	}

	return sb.String()
}

func deviceKind(d audio.Device) string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "duplex"
	case d.MaxInputChannels > 0:
		return "input"
	case d.MaxOutputChannels > 0:
		return "output"
	}
	return "none"
}

// RunDeviceBrowser launches the device browser UI. PortAudio must already
// be initialized.
func RunDeviceBrowser() error {
	p := tea.NewProgram(
		NewDeviceBrowserModel(),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
