package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/disykonect/internal/alert"
	"github.com/jmylchreest/disykonect/internal/audio"
	"github.com/jmylchreest/disykonect/internal/bridge"
	"github.com/jmylchreest/disykonect/internal/config"
	"github.com/jmylchreest/disykonect/internal/connectivity"
	"github.com/jmylchreest/disykonect/internal/dbus"
	"github.com/jmylchreest/disykonect/internal/device"
	"github.com/jmylchreest/disykonect/internal/state"
)

// matcherSetter is implemented by device probes whose matcher can be
// replaced at runtime.
type matcherSetter interface {
	SetMatcher(m *device.Matcher)
}

// Supervisor owns the daemon's components and their lifecycle.
type Supervisor struct {
	mu     sync.Mutex
	logger *slog.Logger

	device  device.Prober
	network connectivity.Probe

	manager *state.Manager
	worker  *alert.Worker
	bridge  *bridge.Bridge

	// Optional services
	announcer *audio.Announcer
	status    *dbus.StatusServer
	hotplug   *device.HotplugWatcher
	watcher   *ConfigWatcher
	cfg       *config.DaemonConfig

	cleanups []func()
}

// NewSupervisor wires a state manager, an alert worker delivering to sink
// and an event bridge over the two probes.
func NewSupervisor(dev device.Prober, network connectivity.Probe, sink alert.Sink, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	worker := alert.NewWorker(sink, logger.With("component", "alert"))
	manager := state.NewManager(worker, logger.With("component", "state"))
	b := bridge.New(manager, dev, network, logger.With("component", "bridge"))

	return &Supervisor{
		logger:  logger,
		device:  dev,
		network: network,
		manager: manager,
		worker:  worker,
		bridge:  b,
	}
}

// Manager returns the state manager.
func (s *Supervisor) Manager() *state.Manager {
	return s.manager
}

// Worker returns the alert worker.
func (s *Supervisor) Worker() *alert.Worker {
	return s.worker
}

// Bridge returns the event bridge.
func (s *Supervisor) Bridge() *bridge.Bridge {
	return s.bridge
}

// SetAnnouncer adds the alert sound.
func (s *Supervisor) SetAnnouncer(a *audio.Announcer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announcer = a
	s.worker.AddAnnouncer(a)
}

// SetStatusServer publishes every state change on the session bus.
func (s *Supervisor) SetStatusServer(server *dbus.StatusServer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = server
	s.manager.AddObserver(server.Publish)
}

// SetHotplugWatcher makes USB device node events trigger immediate polls.
func (s *Supervisor) SetHotplugWatcher(w *device.HotplugWatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hotplug = w
	s.bridge.SetHotplugTrigger(w.Trigger())
}

// SetJobSubscriber logs init-system job events.
func (s *Supervisor) SetJobSubscriber(sub *dbus.Subscriber) {
	s.bridge.SetJobSubscriber(sub)
}

// SetConfigWatcher enables config hot-reload. An invalid file is
// reported and the current settings stay in effect.
func (s *Supervisor) SetConfigWatcher(w *ConfigWatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watcher = w
	w.SetReloadCallback(s.ApplyConfig)
	w.SetErrorCallback(func(err error) {
		s.logger.Error("config reload rejected, keeping current settings", "path", w.Path(), "error", err)
	})
}

// AddCleanup registers fn to run when Run returns.
func (s *Supervisor) AddCleanup(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

// ApplyConfig applies the runtime-adjustable parts of cfg: device
// matching, poll interval, alert text, withdraw-on-clear and sound.
// Backend, sink and service selection need a restart.
func (s *Supervisor) ApplyConfig(cfg *config.DaemonConfig) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	announcer := s.announcer
	s.mu.Unlock()

	if ms, ok := s.device.(matcherSetter); ok {
		ms.SetMatcher(cfg.Matcher())
	}
	s.bridge.SetPollInterval(cfg.Device.PollInterval.Duration())
	s.worker.SetText(cfg.Alert.Title, cfg.Alert.Message)
	s.worker.SetWithdrawOnClear(cfg.Alert.WithdrawOnClear)
	if announcer != nil {
		announcer.Configure(SoundSettings(cfg))
	}

	if prev != nil && restartNeeded(prev, cfg) {
		s.logger.Warn("config changes to backend, sink, status or events take effect after restart")
	}
}

func restartNeeded(prev, next *config.DaemonConfig) bool {
	return prev.Network.Backend != next.Network.Backend ||
		prev.Alert.Sink != next.Alert.Sink ||
		prev.Status.Enabled != next.Status.Enabled ||
		prev.Events.Jobs != next.Events.Jobs ||
		prev.Device.Hotplug != next.Device.Hotplug
}

// SoundSettings converts the [alert.sound] section for the announcer.
func SoundSettings(cfg *config.DaemonConfig) audio.Settings {
	return audio.Settings{
		Enabled:      cfg.Alert.Sound.Enabled,
		File:         cfg.SoundFile(),
		Volume:       cfg.Alert.Sound.Volume,
		ToneHz:       cfg.Alert.Sound.ToneHz,
		ToneDuration: cfg.Alert.Sound.ToneDuration.Duration(),
	}
}

// Reconcile polls both probes and, while both are present, delivers an
// alert synchronously and polls again. It returns the first observed state
// that is not an alert condition. Only ctx cancellation ends it early.
func (s *Supervisor) Reconcile(ctx context.Context) (state.ConditionState, error) {
	for {
		cs, err := s.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return cs, ctx.Err()
			}
			s.logger.Warn("startup poll failed, retrying", "error", err)
			if !s.wait(ctx) {
				return cs, ctx.Err()
			}
			continue
		}

		if !cs.AlertCondition() {
			s.logger.Debug("startup state reconciled", "state", cs.String())
			return cs, nil
		}

		s.logger.Warn("security key and network both present at startup", "state", cs.String())
		if err := s.worker.Deliver(ctx, s.worker.NewAlert(cs)); err != nil && ctx.Err() != nil {
			return cs, ctx.Err()
		}
		// Give the operator a moment to act before polling again.
		if !s.wait(ctx) {
			return cs, ctx.Err()
		}
	}
}

// poll takes one observation of both probes.
func (s *Supervisor) poll(ctx context.Context) (state.ConditionState, error) {
	var cs state.ConditionState

	key, err := s.device.Present(ctx)
	if err != nil {
		return cs, fmt.Errorf("failed to probe device: %w", err)
	}
	level, err := s.network.Level(ctx)
	switch {
	case errors.Is(err, connectivity.ErrUnknownStatusCode):
		s.logger.Warn("unknown network status, treating as disconnected", "error", err)
	case err != nil:
		return cs, fmt.Errorf("failed to probe network: %w", err)
	}

	cs.KeyPresent = key
	cs.NetworkPresent = err == nil && level.Usable()
	return cs, nil
}

// wait sleeps for one device poll interval.
func (s *Supervisor) wait(ctx context.Context) bool {
	t := time.NewTimer(s.bridge.PollInterval())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run attaches the event sources, reconciles the startup state, starts the
// alert worker and the optional services, and runs the event bridge until
// ctx is cancelled. A failure to attach the network feed is returned;
// cancellation returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.cleanup()

	if err := s.bridge.Attach(ctx); err != nil {
		return fmt.Errorf("failed to attach event sources: %w", err)
	}

	cs, err := s.Reconcile(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if err := s.manager.Initialize(cs.KeyPresent, cs.NetworkPresent); err != nil {
		return fmt.Errorf("failed to initialize state: %w", err)
	}
	s.bridge.SeedKey(cs.KeyPresent)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.worker.Run(ctx)
	}()

	s.startServices(ctx)
	defer s.stopServices()

	s.logger.Info("monitoring started", "state", cs.String())
	err = s.bridge.Run(ctx)
	wg.Wait()
	s.logger.Info("monitoring stopped")
	return err
}

// startServices starts the optional services. Failures are logged and the
// daemon continues without the service.
func (s *Supervisor) startServices(ctx context.Context) {
	s.mu.Lock()
	status, hotplug, watcher := s.status, s.hotplug, s.watcher
	s.mu.Unlock()

	if status != nil {
		status.Publish(s.manager.CurrentState(), s.manager.Alerting())
		if err := status.Start(); err != nil {
			s.logger.Warn("status service unavailable", "error", err)
		}
	}
	if hotplug != nil {
		if err := hotplug.Start(ctx); err != nil {
			s.logger.Warn("hotplug watcher unavailable, polling only", "error", err)
		}
	}
	if watcher != nil {
		if err := watcher.Start(ctx); err != nil {
			s.logger.Warn("config hot-reload unavailable", "error", err)
		}
	}
}

func (s *Supervisor) stopServices() {
	s.mu.Lock()
	status, hotplug, watcher := s.status, s.hotplug, s.watcher
	s.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}
	if hotplug != nil {
		hotplug.Stop()
	}
	if status != nil {
		if err := status.Stop(); err != nil {
			s.logger.Debug("failed to stop status service", "error", err)
		}
	}
}

func (s *Supervisor) cleanup() {
	s.mu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}
