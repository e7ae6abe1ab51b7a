package alert

import (
	"context"
	"log/slog"

	"github.com/dustin/go-humanize"
)

// Sink presents an alert to the operator.
// Notify blocks until the alert is acknowledged or ctx is cancelled.
type Sink interface {
	Notify(ctx context.Context, a Alert) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, a Alert) error

// Notify calls f(ctx, a).
func (f SinkFunc) Notify(ctx context.Context, a Alert) error {
	return f(ctx, a)
}

// Announcer runs alongside a sink, e.g. to play a sound. It must not block
// for the lifetime of the prompt.
type Announcer interface {
	Announce(ctx context.Context, a Alert) error
}

// LogSink writes the alert to the log and returns immediately.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Notify logs the alert at error level.
func (s *LogSink) Notify(_ context.Context, a Alert) error {
	s.logger.Error(a.Message,
		"alert", a.ID.String(),
		"title", a.Title,
		"state", a.State.String(),
		"raised", humanize.Time(a.RaisedAt),
	)
	return nil
}
