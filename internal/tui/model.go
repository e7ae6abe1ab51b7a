// Package tui renders the alert prompt in a terminal.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/disykonect/internal/alert"
)

// tickMsg refreshes the "raised ... ago" line.
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the bubbletea model for one alert prompt.
type Model struct {
	alert        alert.Alert
	keys         KeyMap
	help         help.Model
	width        int
	now          time.Time
	acknowledged bool
}

// NewModel creates a prompt for a.
func NewModel(a alert.Alert) Model {
	return Model{
		alert: a,
		keys:  DefaultKeyMap(),
		help:  help.New(),
		now:   a.RaisedAt,
	}
}

// Acknowledged reports whether the operator acknowledged the prompt.
func (m Model) Acknowledged() bool {
	return m.acknowledged
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Acknowledge):
			m.acknowledged = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
	case tickMsg:
		m.now = time.Time(msg)
		return m, tick()
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("9"))

	bodyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("15")).
		MarginTop(1)

	metaStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		MarginTop(1)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("9")).
		Padding(1, 3)

	meta := "raised " + humanize.RelTime(m.alert.RaisedAt, m.now, "ago", "from now")
	if m.now.Sub(m.alert.RaisedAt) < time.Second {
		meta = "raised just now"
	}

	box := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.alert.Title),
		bodyStyle.Render(m.alert.Message),
		metaStyle.Render(meta+" · "+m.alert.ID.String()),
	))

	view := lipgloss.JoinVertical(lipgloss.Center, box, m.help.View(m.keys))
	if m.width > 0 {
		view = lipgloss.PlaceHorizontal(m.width, lipgloss.Center, view)
	}
	return view + "\n"
}
