package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/disykonect/internal/config"
)

func TestConfigWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disykonect.toml")
	require.NoError(t, os.WriteFile(path, []byte("[device]\npoll_interval = \"1s\"\n"), 0600))

	w, err := NewConfigWatcher(path, quietLogger())
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)

	reloaded := make(chan *config.DaemonConfig, 4)
	failed := make(chan error, 4)
	w.SetReloadCallback(func(cfg *config.DaemonConfig) { reloaded <- cfg })
	w.SetErrorCallback(func(err error) { failed <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("[device]\npoll_interval = \"2s\"\n"), 0600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 2*time.Second, cfg.Device.PollInterval.Duration())
	case <-time.After(2 * time.Second):
		t.Fatal("config was not reloaded")
	}

	// An invalid file is reported and not passed on.
	require.NoError(t, os.WriteFile(path, []byte("[network]\nbackend = \"carrier-pigeon\"\n"), 0600))

	select {
	case err := <-failed:
		assert.Contains(t, err.Error(), "carrier-pigeon")
	case <-time.After(2 * time.Second):
		t.Fatal("invalid config was not reported")
	}
	assert.Empty(t, reloaded)
}

func TestConfigWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disykonect.toml")

	w, err := NewConfigWatcher(path, quietLogger())
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)

	reloaded := make(chan *config.DaemonConfig, 1)
	w.SetReloadCallback(func(cfg *config.DaemonConfig) { reloaded <- cfg })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1\n"), 0600))

	select {
	case <-reloaded:
		t.Fatal("reloaded for an unrelated file")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConfigWatcher_MissingDir(t *testing.T) {
	w, err := NewConfigWatcher(filepath.Join(t.TempDir(), "missing", "disykonect.toml"), quietLogger())
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
}
