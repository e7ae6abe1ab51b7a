package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/jmylchreest/disykonect/internal/device"
)

// DaemonConfig is the configuration for the disykonect daemon.
// Loaded from ~/.config/disykonect/disykonect.toml. Every field is optional.
type DaemonConfig struct {
	Device  DeviceConfig  `toml:"device"`
	Network NetworkConfig `toml:"network"`
	Alert   AlertConfig   `toml:"alert"`
	Status  StatusConfig  `toml:"status"`
	Events  EventsConfig  `toml:"events"`
}

// DeviceConfig selects the security key and how it is detected.
type DeviceConfig struct {
	Match        []string       `toml:"match"` // case-insensitive substrings of manufacturer/product
	IDs          []device.USBID `toml:"ids"`   // exact "vvvv:pppp" ids
	SysfsRoot    string         `toml:"sysfs_root"`
	PollInterval Duration       `toml:"poll_interval"`
	Hotplug      bool           `toml:"hotplug"` // poll immediately on /dev/bus/usb changes
	HotplugDir   string         `toml:"hotplug_dir"`
}

// NetworkConfig selects the connectivity backend.
type NetworkConfig struct {
	Backend       string   `toml:"backend"` // "networkmanager" or "netlink"
	RetryInterval Duration `toml:"retry_interval"`
}

// AlertConfig controls how alerts are presented.
type AlertConfig struct {
	Sink            string             `toml:"sink"` // "notification", "gtk", "terminal", "log"
	Title           string             `toml:"title"`
	Message         string             `toml:"message"`
	WithdrawOnClear bool               `toml:"withdraw_on_clear"`
	Sound           SoundConfig        `toml:"sound"`
	Notification    NotificationConfig `toml:"notification"`
}

// SoundConfig controls the alert sound.
type SoundConfig struct {
	Enabled      bool     `toml:"enabled"`
	File         string   `toml:"file"`   // wav, mp3 or ogg; empty plays a tone
	Volume       int      `toml:"volume"` // 0-100
	ToneHz       int      `toml:"tone_hz"`
	ToneDuration Duration `toml:"tone_duration"`
}

// NotificationConfig holds settings for the notification sink.
type NotificationConfig struct {
	Icon      string `toml:"icon"`
	SoundName string `toml:"sound_name"` // sound theme name passed as a hint
}

// StatusConfig controls the session-bus status service.
type StatusConfig struct {
	Enabled bool `toml:"enabled"`
}

// EventsConfig selects which init-system job events are logged.
type EventsConfig struct {
	Jobs string `toml:"jobs"` // "upstart", "systemd" or "none"
}

// Sink names.
const (
	SinkNotification = "notification"
	SinkGTK          = "gtk"
	SinkTerminal     = "terminal"
	SinkLog          = "log"
)

// Job event sources.
const (
	JobsUpstart = "upstart"
	JobsSystemd = "systemd"
	JobsNone    = "none"
)

// ValidSinks returns all valid sink names.
func ValidSinks() []string {
	return []string{SinkNotification, SinkGTK, SinkTerminal, SinkLog}
}

// ValidBackends returns all valid connectivity backends.
func ValidBackends() []string {
	return []string{"networkmanager", "netlink"}
}

// ValidJobSources returns all valid job event sources.
func ValidJobSources() []string {
	return []string{JobsUpstart, JobsSystemd, JobsNone}
}

// DefaultDaemonConfig returns a new DaemonConfig with default values.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Device: DeviceConfig{
			Match:        slices.Clone(device.DefaultStrings),
			SysfsRoot:    device.DefaultSysfsRoot,
			PollInterval: Duration(500 * time.Millisecond),
			Hotplug:      true,
			HotplugDir:   device.DefaultHotplugDir,
		},
		Network: NetworkConfig{
			Backend:       "networkmanager",
			RetryInterval: Duration(5 * time.Second),
		},
		Alert: AlertConfig{
			Sink:            SinkNotification,
			WithdrawOnClear: false,
			Sound: SoundConfig{
				Enabled:      true,
				Volume:       80,
				ToneHz:       880,
				ToneDuration: Duration(400 * time.Millisecond),
			},
			Notification: NotificationConfig{
				Icon: "dialog-warning",
			},
		},
		Status: StatusConfig{
			Enabled: true,
		},
		Events: EventsConfig{
			Jobs: JobsUpstart,
		},
	}
}

// LoadDaemonConfig loads the daemon configuration from the default path.
// If the file doesn't exist, returns the default configuration.
func LoadDaemonConfig() (*DaemonConfig, error) {
	path, err := DaemonConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadDaemonConfigFrom(path)
}

// LoadDaemonConfigFrom loads the daemon configuration from path.
func LoadDaemonConfigFrom(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDaemonConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	config := DefaultDaemonConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveDaemonConfig writes the configuration to path.
func SaveDaemonConfig(config *DaemonConfig, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *DaemonConfig) Validate() error {
	if c.Device.PollInterval.Duration() < 10*time.Millisecond {
		return fmt.Errorf("device poll_interval must be at least 10ms, got %s", c.Device.PollInterval.Duration())
	}
	if c.Matcher().Empty() {
		return fmt.Errorf("device needs at least one match string or id")
	}
	if !slices.Contains(ValidBackends(), c.Network.Backend) {
		return fmt.Errorf("invalid network backend %q, must be one of: %v", c.Network.Backend, ValidBackends())
	}
	if c.Network.RetryInterval.Duration() <= 0 {
		return fmt.Errorf("network retry_interval must be positive")
	}
	if !slices.Contains(ValidSinks(), c.Alert.Sink) {
		return fmt.Errorf("invalid alert sink %q, must be one of: %v", c.Alert.Sink, ValidSinks())
	}
	if c.Alert.Sound.Volume < 0 || c.Alert.Sound.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", c.Alert.Sound.Volume)
	}
	if c.Alert.Sound.File == "" && (c.Alert.Sound.ToneHz < 20 || c.Alert.Sound.ToneHz > 20000) {
		return fmt.Errorf("tone_hz must be between 20 and 20000, got %d", c.Alert.Sound.ToneHz)
	}
	if !slices.Contains(ValidJobSources(), c.Events.Jobs) {
		return fmt.Errorf("invalid job event source %q, must be one of: %v", c.Events.Jobs, ValidJobSources())
	}
	return nil
}

// Matcher builds the device matcher from the [device] section.
func (c *DaemonConfig) Matcher() *device.Matcher {
	return device.NewMatcher(c.Device.Match, c.Device.IDs)
}

// SoundFile returns the alert sound path with ~ expanded.
func (c *DaemonConfig) SoundFile() string {
	return expandPath(c.Alert.Sound.File)
}
