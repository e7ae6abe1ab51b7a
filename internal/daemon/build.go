package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/disykonect/internal/alert"
	"github.com/jmylchreest/disykonect/internal/audio"
	"github.com/jmylchreest/disykonect/internal/config"
	"github.com/jmylchreest/disykonect/internal/connectivity"
	"github.com/jmylchreest/disykonect/internal/dbus"
	"github.com/jmylchreest/disykonect/internal/device"
	"github.com/jmylchreest/disykonect/internal/display"
	"github.com/jmylchreest/disykonect/internal/tui"
)

// retrySetter is implemented by connectivity backends that resubscribe.
type retrySetter interface {
	SetRetryInterval(d time.Duration)
}

// Build creates a Supervisor with the components selected by cfg.
// configPath is watched for hot-reload; empty disables it.
func Build(cfg *config.DaemonConfig, configPath string, logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dev := device.NewSysfsProber(cfg.Device.SysfsRoot, cfg.Matcher(), logger.With("component", "device"))

	network, err := connectivity.New(cfg.Network.Backend, logger.With("component", "network"))
	if err != nil {
		return nil, err
	}
	if rs, ok := network.(retrySetter); ok {
		rs.SetRetryInterval(cfg.Network.RetryInterval.Duration())
	}

	sink, stopSink, err := NewSink(cfg, logger.With("component", "sink"))
	if err != nil {
		return nil, err
	}

	sup := NewSupervisor(dev, network, sink, logger)
	if stopSink != nil {
		sup.AddCleanup(stopSink)
	}

	// The announcer exists even when sound is off so a reload can enable
	// it. The speaker is only opened on first playback.
	player := audio.NewPlayer(logger.With("component", "audio"))
	sup.SetAnnouncer(audio.NewAnnouncer(player, SoundSettings(cfg), logger.With("component", "audio")))
	sup.AddCleanup(player.Close)

	if jobs := JobSubscriber(cfg.Events.Jobs, logger.With("component", "jobs")); jobs != nil {
		sup.SetJobSubscriber(jobs)
	}

	if cfg.Status.Enabled {
		sup.SetStatusServer(dbus.NewStatusServer(nil, logger.With("component", "status")))
	}

	if cfg.Device.Hotplug {
		sup.SetHotplugWatcher(device.NewHotplugWatcher(cfg.Device.HotplugDir, logger.With("component", "hotplug")))
	}

	if configPath != "" {
		watcher, err := NewConfigWatcher(configPath, logger.With("component", "config"))
		if err != nil {
			return nil, err
		}
		sup.SetConfigWatcher(watcher)
	}

	sup.ApplyConfig(cfg)
	return sup, nil
}

// NewSink creates the alert sink named by cfg.Alert.Sink. The returned
// stop func, if not nil, releases the sink's resources.
func NewSink(cfg *config.DaemonConfig, logger *slog.Logger) (alert.Sink, func(), error) {
	switch cfg.Alert.Sink {
	case config.SinkNotification:
		opts := dbus.DefaultNotificationOptions()
		if cfg.Alert.Notification.Icon != "" {
			opts.AppIcon = cfg.Alert.Notification.Icon
		}
		opts.SoundName = cfg.Alert.Notification.SoundName
		return dbus.NewNotificationSink(nil, opts, logger), nil, nil
	case config.SinkGTK:
		s := display.NewSink(logger)
		if err := s.Start(); err != nil {
			return nil, nil, fmt.Errorf("failed to start gtk sink: %w", err)
		}
		return s, s.Stop, nil
	case config.SinkTerminal:
		return tui.NewSink(logger), nil, nil
	case config.SinkLog:
		return alert.NewLogSink(logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown alert sink %q", cfg.Alert.Sink)
	}
}

// JobSubscriber returns a system bus subscriber for the named init
// system's job events, or nil for "none".
func JobSubscriber(jobs string, logger *slog.Logger) *dbus.Subscriber {
	switch jobs {
	case config.JobsUpstart:
		return dbus.NewSubscriber(dbus.SystemBus, logger, dbus.UpstartEventEmitted)
	case config.JobsSystemd:
		return dbus.NewSubscriber(dbus.SystemBus, logger, dbus.SystemdJobRemoved)
	default:
		return nil
	}
}
