package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/disykonect/internal/state"
)

// queueSize bounds the pending alerts. The state latch allows at most one
// alert per rising edge, so the queue only grows while a prompt is open.
const queueSize = 8

// queued is an alert tagged with the withdraw generation it was raised in.
type queued struct {
	alert      Alert
	generation uint64
}

// Worker owns the one goroutine that calls the blocking Sink. It implements
// state.Alerter: Raise and Resolve only enqueue or cancel and never block.
type Worker struct {
	mu     sync.Mutex
	logger *slog.Logger

	sink       Sink
	fallback   Sink
	announcers []Announcer

	title           string
	message         string
	withdrawOnClear bool

	queue      chan queued
	generation uint64
	cancel     context.CancelFunc // cancels the in-flight prompt
}

var _ state.Alerter = (*Worker)(nil)

// NewWorker creates a Worker delivering to sink. A nil sink logs alerts.
func NewWorker(sink Sink, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	fallback := NewLogSink(logger)
	if sink == nil {
		sink = fallback
	}
	return &Worker{
		logger:   logger,
		sink:     sink,
		fallback: fallback,
		title:    DefaultTitle,
		message:  DefaultMessage,
		queue:    make(chan queued, queueSize),
	}
}

// SetText sets the alert title and message. Empty values keep the defaults.
func (w *Worker) SetText(title, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if title != "" {
		w.title = title
	}
	if message != "" {
		w.message = message
	}
}

// SetWithdrawOnClear controls whether Resolve withdraws open and queued prompts.
func (w *Worker) SetWithdrawOnClear(withdraw bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.withdrawOnClear = withdraw
}

// AddAnnouncer registers an announcer run before every sink call.
func (w *Worker) AddAnnouncer(a Announcer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.announcers = append(w.announcers, a)
}

// NewAlert builds an Alert with the configured text.
func (w *Worker) NewAlert(s state.ConditionState) Alert {
	w.mu.Lock()
	defer w.mu.Unlock()
	return New(s, w.title, w.message)
}

// Raise enqueues an alert for s. If the queue is full the alert is logged
// through the fallback sink instead.
func (w *Worker) Raise(s state.ConditionState) {
	a := w.NewAlert(s)

	w.mu.Lock()
	item := queued{alert: a, generation: w.generation}
	w.mu.Unlock()

	select {
	case w.queue <- item:
		w.logger.Debug("alert queued", "alert", a.ID.String())
	default:
		w.logger.Warn("alert queue full, logging alert instead", "alert", a.ID.String())
		_ = w.fallback.Notify(context.Background(), a)
	}
}

// Resolve withdraws the in-flight prompt and marks queued alerts stale,
// when withdraw-on-clear is enabled.
func (w *Worker) Resolve(s state.ConditionState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.withdrawOnClear {
		return
	}
	w.generation++
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.logger.Debug("alert withdrawn", "state", s.String())
}

// Run delivers queued alerts until ctx is cancelled. Cancelling ctx also
// abandons the prompt in progress.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("alert worker started")
	defer w.logger.Debug("alert worker stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-w.queue:
			promptCtx, ok := w.begin(ctx, item)
			if !ok {
				w.logger.Debug("skipping stale alert", "alert", item.alert.ID.String())
				continue
			}
			err := w.Deliver(promptCtx, item.alert)
			w.end()
			if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("alert delivery failed", "alert", item.alert.ID.String(), "error", err)
			}
		}
	}
}

// begin installs the cancel func for item, or reports false if item was
// raised before the latest withdraw.
func (w *Worker) begin(ctx context.Context, item queued) (context.Context, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if item.generation != w.generation {
		return nil, false
	}
	promptCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	return promptCtx, true
}

func (w *Worker) end() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

// Deliver runs the announcers and blocks on the sink. A sink failure falls
// back to the log sink. Used directly for the startup prompt.
func (w *Worker) Deliver(ctx context.Context, a Alert) error {
	w.mu.Lock()
	sink := w.sink
	announcers := append([]Announcer(nil), w.announcers...)
	w.mu.Unlock()

	for _, an := range announcers {
		if err := an.Announce(ctx, a); err != nil {
			w.logger.Warn("alert announcer failed", "alert", a.ID.String(), "error", err)
		}
	}

	start := time.Now()
	err := sink.Notify(ctx, a)
	switch {
	case err == nil:
		w.logger.Info("alert acknowledged",
			"alert", a.ID.String(),
			"raised", humanize.Time(a.RaisedAt),
			"waited", time.Since(start).Round(time.Millisecond),
		)
		return nil
	case ctx.Err() != nil:
		w.logger.Info("alert withdrawn before acknowledgement", "alert", a.ID.String())
		return ctx.Err()
	}

	w.logger.Warn("alert sink failed, falling back to log", "alert", a.ID.String(), "error", err)
	if ferr := w.fallback.Notify(ctx, a); ferr != nil {
		return fmt.Errorf("failed to deliver alert: %w", errors.Join(err, ferr))
	}
	return nil
}
