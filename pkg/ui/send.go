// Package ui renders the interactive send monitor: a progress bar fed by
// the device's notification stream.
package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	senderEvent "github.com/rescp17/bleota/internal/app_events/sender"
	"github.com/rescp17/bleota/internal/style"
	"github.com/rescp17/bleota/internal/util"
)

// sendState defines the phases of the send monitor UI.
type sendState int

const (
	connecting sendState = iota
	transferring
	finished
	failed
)

// SendModel displays one firmware transfer. The transfer pipeline feeds it
// ProgressUpdateMsg, StatusUpdateMsg, and TransferFinishedMsg via
// Program.Send; quitting before the finish is treated as a cancel by the
// caller.
type SendModel struct {
	deviceLabel string
	imageSize   uint32

	state    sendState
	spinner  spinner.Model
	progress progress.Model
	received uint32
	pct      uint8
	status   string
	err      error
}

// NewSendModel creates the monitor for a transfer to deviceLabel.
func NewSendModel(deviceLabel string, imageSize uint32) SendModel {
	return SendModel{
		deviceLabel: deviceLabel,
		imageSize:   imageSize,
		state:       connecting,
		spinner:     style.NewSpinner(),
		progress:    progress.New(progress.WithDefaultGradient()),
	}
}

func (m SendModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m SendModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
		return m, nil

	case senderEvent.StatusUpdateMsg:
		m.status = msg.Message
		return m, nil

	case senderEvent.ProgressUpdateMsg:
		m.state = transferring
		m.received = msg.Received
		m.pct = msg.Percentage
		return m, nil

	case senderEvent.TransferFinishedMsg:
		if msg.Err != nil {
			m.state = failed
			m.err = msg.Err
		} else {
			m.state = finished
		}
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m SendModel) View() string {
	s := style.TitleStyle.Render("Firmware update") + "\n\n"
	s += fmt.Sprintf("%s %s\n",
		style.LabelStyle.Render(util.PadRight("Device", 8)),
		style.ValueStyle.Render(m.deviceLabel))
	s += fmt.Sprintf("%s %s\n\n",
		style.LabelStyle.Render(util.PadRight("Image", 8)),
		style.ValueStyle.Render(util.FormatSize(int64(m.imageSize))))

	switch m.state {
	case connecting:
		s += fmt.Sprintf("%s %s\n", m.spinner.View(), m.statusLine("Connecting..."))
	case transferring:
		s += m.progress.ViewAs(float64(m.pct)/100) + "\n"
		s += fmt.Sprintf("%s / %s  %s\n",
			util.FormatSize(int64(m.received)),
			util.FormatSize(int64(m.imageSize)),
			m.statusLine(""))
	case finished:
		s += style.SuccessStyle.Render("Update completed successfully") + "\n"
	case failed:
		s += style.ErrorStyle.Render(fmt.Sprintf("Update failed: %v", m.err)) + "\n"
	}

	s += "\n" + style.HelpStyle.Render("Press q or ctrl+c to cancel")
	return s
}

// Err returns the failure reported by the pipeline, if any.
func (m SendModel) Err() error { return m.err }

// Finished reports whether the pipeline delivered a final verdict before
// the program exited.
func (m SendModel) Finished() bool { return m.state == finished || m.state == failed }

func (m SendModel) statusLine(fallback string) string {
	if m.status != "" {
		return m.status
	}
	return fallback
}
