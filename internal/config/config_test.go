package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/disykonect/internal/device"
)

func TestDefaultDaemonConfig(t *testing.T) {
	cfg := DefaultDaemonConfig()

	assert.Equal(t, []string{"yubikey", "yubico"}, cfg.Device.Match)
	assert.Equal(t, 500*time.Millisecond, cfg.Device.PollInterval.Duration())
	assert.True(t, cfg.Device.Hotplug)
	assert.Equal(t, "networkmanager", cfg.Network.Backend)
	assert.Equal(t, SinkNotification, cfg.Alert.Sink)
	assert.False(t, cfg.Alert.WithdrawOnClear)
	assert.True(t, cfg.Status.Enabled)
	assert.Equal(t, JobsUpstart, cfg.Events.Jobs)
	require.NoError(t, cfg.Validate())

	// Defaults must not share the package-level match list.
	cfg.Device.Match[0] = "changed"
	assert.Equal(t, "yubikey", device.DefaultStrings[0])
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"500ms", 500 * time.Millisecond, false},
		{"2s", 2 * time.Second, false},
		{"1500", 1500 * time.Millisecond, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Duration())
		})
	}
}

func TestLoadDaemonConfigFrom_MissingFile(t *testing.T) {
	cfg, err := LoadDaemonConfigFrom(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDaemonConfig(), cfg)
}

func TestLoadDaemonConfigFrom_ParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disykonect.toml")
	content := `
[device]
match = ["nitrokey"]
ids = ["20a0:42b1"]
poll_interval = "250ms"
hotplug = false

[network]
backend = "netlink"

[alert]
sink = "terminal"
withdraw_on_clear = true
message = "Unplug the key"

[alert.sound]
file = "~/alert.ogg"
volume = 50

[events]
jobs = "systemd"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadDaemonConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"nitrokey"}, cfg.Device.Match)
	assert.Equal(t, []device.USBID{{Vendor: 0x20a0, Product: 0x42b1}}, cfg.Device.IDs)
	assert.Equal(t, 250*time.Millisecond, cfg.Device.PollInterval.Duration())
	assert.False(t, cfg.Device.Hotplug)
	assert.Equal(t, "netlink", cfg.Network.Backend)
	assert.Equal(t, SinkTerminal, cfg.Alert.Sink)
	assert.True(t, cfg.Alert.WithdrawOnClear)
	assert.Equal(t, "Unplug the key", cfg.Alert.Message)
	assert.Equal(t, 50, cfg.Alert.Sound.Volume)
	assert.Equal(t, JobsSystemd, cfg.Events.Jobs)

	// Unset fields keep their defaults.
	assert.True(t, cfg.Status.Enabled)
	assert.Equal(t, device.DefaultSysfsRoot, cfg.Device.SysfsRoot)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "alert.ogg"), cfg.SoundFile())

	assert.True(t, cfg.Matcher().Match(device.Device{ID: device.USBID{Vendor: 0x20a0, Product: 0x42b1}}))
}

func TestLoadDaemonConfigFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad toml", `[device`},
		{"bad id", "[device]\nids = [\"nope\"]"},
		{"bad sink", "[alert]\nsink = \"carrier-pigeon\""},
		{"bad backend", "[network]\nbackend = \"wicd\""},
		{"empty matcher", "[device]\nmatch = []"},
		{"tiny poll", "[device]\npoll_interval = \"1ms\""},
		{"bad volume", "[alert.sound]\nvolume = 150"},
		{"bad jobs", "[events]\njobs = \"sysvinit\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "disykonect.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := LoadDaemonConfigFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveDaemonConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "disykonect.toml")

	cfg := DefaultDaemonConfig()
	cfg.Device.IDs = []device.USBID{{Vendor: 0x1050, Product: 0x0407}}
	cfg.Alert.Sink = SinkGTK
	require.NoError(t, SaveDaemonConfig(cfg, path))

	loaded, err := LoadDaemonConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDaemonConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	path, err := DaemonConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg/disykonect/disykonect.toml", path)
}
