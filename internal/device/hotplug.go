package device

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultHotplugDir holds one directory per USB bus with one node per device.
const DefaultHotplugDir = "/dev/bus/usb"

// HotplugWatcher turns device node creation and removal into poll triggers.
type HotplugWatcher struct {
	mu     sync.Mutex
	logger *slog.Logger

	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	trigger  chan struct{}

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewHotplugWatcher creates a watcher for dir. Empty dir uses DefaultHotplugDir.
func NewHotplugWatcher(dir string, logger *slog.Logger) *HotplugWatcher {
	if dir == "" {
		dir = DefaultHotplugDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HotplugWatcher{
		logger:   logger,
		dir:      dir,
		debounce: 200 * time.Millisecond,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetDebounce sets how long to wait for a burst of events to settle.
func (w *HotplugWatcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Trigger returns a channel that receives once per settled burst of events.
func (w *HotplugWatcher) Trigger() <-chan struct{} {
	return w.trigger
}

// Start watches dir and its bus subdirectories.
func (w *HotplugWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to list %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addBus(watcher, filepath.Join(w.dir, e.Name()))
		}
	}

	w.mu.Lock()
	w.watcher = watcher
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.watchLoop(ctx, watcher)

	w.logger.Debug("hotplug watcher started", "dir", w.dir)
	return nil
}

// Stop stops watching.
func (w *HotplugWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	watcher := w.watcher
	w.mu.Unlock()

	<-w.doneCh
	_ = watcher.Close()
	w.logger.Debug("hotplug watcher stopped")
}

func (w *HotplugWatcher) addBus(watcher *fsnotify.Watcher, dir string) {
	if err := watcher.Add(dir); err != nil {
		w.logger.Debug("failed to watch usb bus", "dir", dir, "error", err)
	}
}

func (w *HotplugWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(w.doneCh)

	w.mu.Lock()
	debounce := w.debounce
	w.mu.Unlock()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			// A new bus directory appears when a host controller is added.
			if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(w.dir) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addBus(watcher, event.Name)
				}
			}
			w.logger.Debug("usb device node event", "name", event.Name, "op", event.Op.String())
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("hotplug watcher error", "error", err)
		case <-timer.C:
			select {
			case w.trigger <- struct{}{}:
			default:
			}
		}
	}
}
