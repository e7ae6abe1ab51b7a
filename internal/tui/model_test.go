package tui

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/disykonect/internal/alert"
	"github.com/jmylchreest/disykonect/internal/state"
)

func testAlert() alert.Alert {
	return alert.New(state.ConditionState{KeyPresent: true, NetworkPresent: true}, alert.DefaultTitle, alert.DefaultMessage)
}

func TestModel_Acknowledge(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		ack  bool
	}{
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, true},
		{"space", tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, true},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, true},
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}, true},
		{"other key", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, cmd := NewModel(testAlert()).Update(tt.msg)
			m := updated.(Model)
			assert.Equal(t, tt.ack, m.Acknowledged())
			if tt.ack {
				require.NotNil(t, cmd)
				assert.Equal(t, tea.Quit(), cmd())
			} else {
				assert.Nil(t, cmd)
			}
		})
	}
}

func TestModel_HelpToggle(t *testing.T) {
	m := NewModel(testAlert())
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	assert.True(t, updated.(Model).help.ShowAll)
	assert.False(t, updated.(Model).Acknowledged())
}

func TestModel_View(t *testing.T) {
	a := testAlert()
	m := NewModel(a)

	view := m.View()
	assert.Contains(t, view, alert.DefaultTitle)
	assert.Contains(t, view, alert.DefaultMessage)
	assert.Contains(t, view, "raised just now")

	updated, cmd := m.Update(tickMsg(a.RaisedAt.Add(90 * time.Second)))
	assert.NotNil(t, cmd)
	assert.Contains(t, updated.View(), "ago")
}

func TestSink_Notify(t *testing.T) {
	s := NewSink(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SetIO(strings.NewReader("\r"), &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Notify(ctx, testAlert()))
}

func TestSink_NotifyCancelled(t *testing.T) {
	s := NewSink(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()
	s.SetIO(r, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Notify(ctx, testAlert()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Notify did not return after cancel")
	}
}
