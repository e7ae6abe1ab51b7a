// Package bridge normalizes device and network events into StateManager updates.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/jmylchreest/disykonect/internal/connectivity"
	"github.com/jmylchreest/disykonect/internal/dbus"
	"github.com/jmylchreest/disykonect/internal/device"
	"github.com/jmylchreest/disykonect/internal/state"
)

// DefaultPollInterval is the device poll period.
const DefaultPollInterval = 500 * time.Millisecond

// changeBuffer bounds network changes waiting for the event loop.
const changeBuffer = 64

// Updater is the part of the state manager the bridge drives.
type Updater interface {
	UpdateKeyPresence(present bool)
	UpdateNetworkPresence(present bool)
}

// Bridge subscribes to the probes and feeds their observations into an
// Updater. Network changes are handled on one event loop goroutine and the
// device is polled on another.
type Bridge struct {
	mu     sync.Mutex
	logger *slog.Logger

	updater Updater
	device  device.Prober
	network connectivity.Probe
	jobs    *dbus.Subscriber // optional

	pollInterval time.Duration
	pollReset    chan struct{}
	hotplug      <-chan struct{}

	changes  chan connectivity.Change
	resyncCh chan struct{} // set when a change could not be queued
	lastKey  *bool
}

// New creates a Bridge.
func New(updater Updater, dev device.Prober, network connectivity.Probe, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		logger:       logger,
		updater:      updater,
		device:       dev,
		network:      network,
		pollInterval: DefaultPollInterval,
		pollReset:    make(chan struct{}, 1),
		changes:      make(chan connectivity.Change, changeBuffer),
		resyncCh:     make(chan struct{}, 1),
	}
}

// SetJobSubscriber sets the subscriber for init-system job events.
func (b *Bridge) SetJobSubscriber(s *dbus.Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs = s
}

// SetHotplugTrigger sets a channel that forces an immediate device poll.
func (b *Bridge) SetHotplugTrigger(trigger <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hotplug = trigger
}

// SetPollInterval changes the device poll period, also while running.
func (b *Bridge) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	b.mu.Lock()
	b.pollInterval = d
	b.mu.Unlock()

	select {
	case b.pollReset <- struct{}{}:
	default:
	}
}

// PollInterval returns the device poll period.
func (b *Bridge) PollInterval() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pollInterval
}

// Attach subscribes to the network feed and, if set, the job-event feed.
// A network subscription failure is returned; job events are optional.
// Changes received before Run are discarded by Run in favour of a fresh
// query.
func (b *Bridge) Attach(ctx context.Context) error {
	if err := b.network.Subscribe(ctx, b.enqueue); err != nil {
		return fmt.Errorf("failed to subscribe to network changes: %w", err)
	}

	b.mu.Lock()
	jobs := b.jobs
	b.mu.Unlock()

	if jobs != nil {
		jobs.SetSignalHandler(b.HandleSignal)
		if err := jobs.Start(ctx); err != nil {
			b.logger.Warn("job events unavailable", "error", err)
		} else {
			go func() {
				<-ctx.Done()
				jobs.Stop()
			}()
		}
	}
	return nil
}

// enqueue hands a change to the event loop without blocking the probe.
// If the queue is full the event loop is told to re-query instead, so the
// newest state is never lost.
func (b *Bridge) enqueue(c connectivity.Change) {
	select {
	case b.changes <- c:
	default:
		b.logger.Warn("network event queue full, will re-query", "level", c.Level.String())
		select {
		case b.resyncCh <- struct{}{}:
		default:
		}
	}
}

// HandleChange applies one network observation.
func (b *Bridge) HandleChange(c connectivity.Change) {
	switch {
	case errors.Is(c.Err, state.ErrProbeUnavailable):
		b.logger.Warn("network probe unavailable, keeping last state", "source", c.Source, "error", c.Err)
	case errors.Is(c.Err, connectivity.ErrUnknownStatusCode):
		b.logger.Warn("unknown network status, treating as disconnected", "source", c.Source, "code", c.Code, "error", c.Err)
		b.updater.UpdateNetworkPresence(false)
	case c.Err != nil:
		b.logger.Warn("network change error", "source", c.Source, "error", c.Err)
	default:
		b.logger.Debug("network state", "source", c.Source, "code", c.Code, "level", c.Level.String())
		b.updater.UpdateNetworkPresence(c.Level.Usable())
	}
}

// SeedKey records the key presence already known to the state manager, so
// PollDevice reports only genuine changes.
func (b *Bridge) SeedKey(present bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastKey = &present
}

// PollDevice takes one device observation and updates the state manager if
// it differs from the previous one.
func (b *Bridge) PollDevice(ctx context.Context) {
	present, err := b.device.Present(ctx)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn("device probe failed, will retry", "error", err)
		}
		return
	}

	b.mu.Lock()
	changed := b.lastKey == nil || *b.lastKey != present
	b.lastKey = &present
	b.mu.Unlock()

	if changed {
		b.updater.UpdateKeyPresence(present)
	}
}

// HandleSignal logs init-system job events.
func (b *Bridge) HandleSignal(sig *godbus.Signal) {
	switch {
	case dbus.UpstartEventEmitted.Matches(sig):
		if len(sig.Body) < 2 {
			return
		}
		name, _ := sig.Body[0].(string)
		env, _ := sig.Body[1].([]string)
		b.HandleJobEvent(name, env)
	case dbus.SystemdJobRemoved.Matches(sig):
		if len(sig.Body) < 4 {
			return
		}
		unit, _ := sig.Body[2].(string)
		result, _ := sig.Body[3].(string)
		b.HandleJobEvent(unit, []string{"RESULT=" + result})
	}
}

// HandleJobEvent logs a job event. It has no effect on state.
func (b *Bridge) HandleJobEvent(name string, info []string) {
	b.logger.Info("job event", "name", name, "info", strings.Join(info, ", "))
}

// Run drops the changes queued since Attach, re-queries the network once,
// then processes network changes and polls the device until ctx is
// cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.resync(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.pollLoop(ctx)
	}()

	b.eventLoop(ctx)
	wg.Wait()
	return nil
}

// resync discards queued changes, which are all older than the query that
// follows, and applies the current level.
func (b *Bridge) resync(ctx context.Context) {
	dropped := b.drain()
	if dropped > 0 {
		b.logger.Debug("discarded stale network changes", "count", dropped)
	}
	level, err := b.network.Level(ctx)
	b.HandleChange(connectivity.Change{Level: level, Source: "resync", Err: err})
}

// drain empties the change queue and the pending resync signal.
func (b *Bridge) drain() int {
	n := 0
	for {
		select {
		case <-b.changes:
			n++
		case <-b.resyncCh:
		default:
			return n
		}
	}
}

func (b *Bridge) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-b.changes:
			b.HandleChange(c)
		case <-b.resyncCh:
			b.resync(ctx)
		}
	}
}

func (b *Bridge) pollLoop(ctx context.Context) {
	b.mu.Lock()
	interval := b.pollInterval
	hotplug := b.hotplug
	b.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.PollDevice(ctx)
		case <-hotplug:
			b.logger.Debug("hotplug event, polling device")
			b.PollDevice(ctx)
		case <-b.pollReset:
			interval = b.PollInterval()
			ticker.Reset(interval)
			b.logger.Debug("device poll interval changed", "interval", interval)
		}
	}
}
