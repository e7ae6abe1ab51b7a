package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jmylchreest/disykonect/internal/alert"
)

// errNotAcknowledged is returned when the program exits without an answer.
var errNotAcknowledged = errors.New("prompt closed without acknowledgement")

// Sink shows alerts as a full-screen terminal prompt.
type Sink struct {
	logger *slog.Logger
	input  io.Reader
	output io.Writer
}

var _ alert.Sink = (*Sink)(nil)

// NewSink creates a terminal Sink on the process's terminal.
func NewSink(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger}
}

// SetIO overrides the terminal input and output.
func (s *Sink) SetIO(in io.Reader, out io.Writer) {
	s.input = in
	s.output = out
}

// Notify runs the prompt until it is acknowledged or ctx is cancelled.
func (s *Sink) Notify(ctx context.Context, a alert.Alert) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if s.input != nil || s.output != nil {
		opts = append(opts, tea.WithInput(s.input), tea.WithOutput(s.output))
	} else {
		opts = append(opts, tea.WithAltScreen())
	}

	final, err := tea.NewProgram(NewModel(a), opts...).Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("failed to run terminal prompt: %w", err)
	}

	if m, ok := final.(Model); !ok || !m.Acknowledged() {
		return errNotAcknowledged
	}
	s.logger.Debug("terminal prompt acknowledged", "alert", a.ID.String())
	return nil
}
