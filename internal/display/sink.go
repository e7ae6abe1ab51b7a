package display

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/diamondburned/gotk4-adwaita/pkg/adw"
	"github.com/diamondburned/gotk4/pkg/core/glib"
	"github.com/diamondburned/gotk4/pkg/gdk/v4"

	"github.com/jmylchreest/disykonect/internal/alert"
)

// AppID is the GTK application ID of the alert sink.
const AppID = "io.github.jmylchreest.disykonect"

// Sink shows each alert as a libadwaita window and blocks until the
// operator acknowledges it.
type Sink struct {
	mu     sync.Mutex
	logger *slog.Logger

	app     *adw.Application
	running bool
	doneCh  chan struct{}
}

var _ alert.Sink = (*Sink)(nil)

// NewSink creates a Sink. Start must be called before Notify.
func NewSink(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger}
}

// Start runs the GTK application on a dedicated OS thread and waits until
// it is ready to show windows.
func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	type result struct {
		app *adw.Application
		err error
	}
	ready := make(chan result, 1)
	doneCh := make(chan struct{})

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(doneCh)

		app := adw.NewApplication(AppID, 0)
		app.ConnectActivate(func() {
			display := gdk.DisplayGetDefault()
			if display == nil {
				ready <- result{err: &DisplayError{Message: "no display available"}}
				app.Quit()
				return
			}
			applyStyle(display)
			// No window stays open between alerts.
			app.Hold()
			ready <- result{app: app}
		})

		status := app.Run([]string{os.Args[0]})
		select {
		case ready <- result{err: &DisplayError{Message: fmt.Sprintf("gtk application exited with status %d", status)}}:
		default:
		}
		s.logger.Debug("gtk application exited", "status", status)
	}()

	res := <-ready
	if res.err != nil {
		<-doneCh
		return res.err
	}
	s.app = res.app
	s.running = true
	s.doneCh = doneCh
	s.logger.Info("gtk alert sink started")
	return nil
}

// Stop quits the GTK application and waits for its thread to exit.
func (s *Sink) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	app := s.app
	doneCh := s.doneCh
	s.app = nil
	s.mu.Unlock()

	glib.IdleAdd(func() {
		app.Release()
		app.Quit()
	})
	<-doneCh
	s.logger.Info("gtk alert sink stopped")
}

// Notify presents a window for a and blocks until it is acknowledged or ctx
// is cancelled, in which case the window is destroyed.
func (s *Sink) Notify(ctx context.Context, a alert.Alert) error {
	s.mu.Lock()
	app := s.app
	doneCh := s.doneCh
	s.mu.Unlock()

	if app == nil {
		return ErrNotRunning
	}

	acked := make(chan struct{})
	var once sync.Once
	ack := func() { once.Do(func() { close(acked) }) }

	// win is only touched on the GTK thread.
	var win *alertWindow
	glib.IdleAdd(func() {
		win = newAlertWindow(&app.Application, a, ack)
		win.present()
		s.logger.Debug("alert window shown", "alert", a.ID.String())
	})

	select {
	case <-acked:
		return nil
	case <-ctx.Done():
		glib.IdleAdd(func() {
			if win != nil {
				win.close()
			}
		})
		return ctx.Err()
	case <-doneCh:
		return ErrNotRunning
	}
}
