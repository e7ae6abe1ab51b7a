package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/disykonect/internal/connectivity"
	"github.com/jmylchreest/disykonect/internal/dbus"
	"github.com/jmylchreest/disykonect/internal/state"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type update struct {
	field string
	value bool
}

type recordingUpdater struct {
	mu      sync.Mutex
	updates []update
}

func (r *recordingUpdater) UpdateKeyPresence(present bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update{"key", present})
}

func (r *recordingUpdater) UpdateNetworkPresence(present bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update{"network", present})
}

func (r *recordingUpdater) snapshot() []update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]update(nil), r.updates...)
}

type fakeDevice struct {
	mu      sync.Mutex
	present bool
	err     error
}

func (f *fakeDevice) set(present bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present, f.err = present, err
}

func (f *fakeDevice) Present(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present, f.err
}

type fakeNetwork struct {
	mu           sync.Mutex
	level        connectivity.Level
	levelErr     error
	subscribeErr error
	fn           func(connectivity.Change)
}

func (f *fakeNetwork) Level(context.Context) (connectivity.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level, f.levelErr
}

func (f *fakeNetwork) Subscribe(_ context.Context, fn func(connectivity.Change)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.fn = fn
	return nil
}

func (f *fakeNetwork) send(c connectivity.Change) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	fn(c)
}

func TestBridge_HandleChange(t *testing.T) {
	tests := []struct {
		name     string
		change   connectivity.Change
		expected []update
	}{
		{
			name:     "global",
			change:   connectivity.Change{Level: connectivity.LevelGlobal},
			expected: []update{{"network", true}},
		},
		{
			name:     "disconnecting",
			change:   connectivity.Change{Level: connectivity.LevelDisconnecting},
			expected: []update{{"network", false}},
		},
		{
			name:     "asleep counts as present",
			change:   connectivity.Change{Level: connectivity.LevelAsleep},
			expected: []update{{"network", true}},
		},
		{
			name:     "unknown code",
			change:   connectivity.Change{Level: connectivity.LevelInvalid, Code: 99, Err: connectivity.ErrUnknownStatusCode},
			expected: []update{{"network", false}},
		},
		{
			name:     "probe unavailable",
			change:   connectivity.Change{Err: state.NewProbeError("network", "subscribe", errors.New("bus gone"))},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingUpdater{}
			b := New(rec, &fakeDevice{}, &fakeNetwork{}, quietLogger())
			b.HandleChange(tt.change)
			assert.Equal(t, tt.expected, rec.snapshot())
		})
	}
}

func TestBridge_PollDeviceOnlyReportsChanges(t *testing.T) {
	rec := &recordingUpdater{}
	dev := &fakeDevice{}
	b := New(rec, dev, &fakeNetwork{}, quietLogger())
	b.SeedKey(false)
	ctx := context.Background()

	b.PollDevice(ctx)
	assert.Empty(t, rec.snapshot())

	dev.set(true, nil)
	b.PollDevice(ctx)
	b.PollDevice(ctx)
	assert.Equal(t, []update{{"key", true}}, rec.snapshot())

	// A failing probe leaves state alone.
	dev.set(false, state.NewProbeError("device", "enumerate", errors.New("EACCES")))
	b.PollDevice(ctx)
	assert.Equal(t, []update{{"key", true}}, rec.snapshot())

	dev.set(false, nil)
	b.PollDevice(ctx)
	assert.Equal(t, []update{{"key", true}, {"key", false}}, rec.snapshot())
}

func TestBridge_AttachFailure(t *testing.T) {
	subErr := state.NewProbeError("network", "subscribe", errors.New("no system bus"))
	b := New(&recordingUpdater{}, &fakeDevice{}, &fakeNetwork{subscribeErr: subErr}, quietLogger())

	err := b.Attach(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, state.ErrProbeUnavailable)
}

func (f *fakeNetwork) setLevel(level connectivity.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level = level
}

// Changes queued while startup reconciliation runs are older than the
// query Run makes, so only the queried level is applied.
func TestBridge_RunDiscardsChangesQueuedBeforeRun(t *testing.T) {
	rec := &recordingUpdater{}
	net := &fakeNetwork{level: connectivity.LevelDisconnected}
	b := New(rec, &fakeDevice{}, net, quietLogger())
	b.SeedKey(false)
	b.SetPollInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Attach(ctx))

	net.send(connectivity.Change{Level: connectivity.LevelGlobal, Source: "StateChanged"})
	net.send(connectivity.Change{Level: connectivity.LevelDisconnected, Source: "StateChanged"})
	net.send(connectivity.Change{Level: connectivity.LevelGlobal, Source: "StateChanged"})
	assert.Empty(t, rec.snapshot())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []update{{"network", false}}, rec.snapshot())

	// Changes after Run are applied in order.
	net.send(connectivity.Change{Level: connectivity.LevelGlobal, Source: "StateChanged"})
	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []update{{"network", false}, {"network", true}}, rec.snapshot())

	cancel()
	<-done
}

// A change queued before Initialize must not raise an alert for a state
// that had already ended.
func TestBridge_StaleQueuedChangeDoesNotAlert(t *testing.T) {
	alerter := &countingAlerter{}
	m := state.NewManager(alerter, quietLogger())
	net := &fakeNetwork{level: connectivity.LevelDisconnected}
	b := New(m, &fakeDevice{present: true}, net, quietLogger())
	b.SetPollInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Attach(ctx))

	net.send(connectivity.Change{Level: connectivity.LevelGlobal})
	net.send(connectivity.Change{Level: connectivity.LevelDisconnected})

	require.NoError(t, m.Initialize(true, false))
	b.SeedKey(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, alerter.count())
	assert.Equal(t, state.ConditionState{KeyPresent: true}, m.CurrentState())

	cancel()
	<-done
}

// When the queue overflows the newest change is not lost: the event loop
// re-queries the network and ends on its current level.
func TestBridge_QueueOverflowResyncs(t *testing.T) {
	rec := &recordingUpdater{}
	net := &fakeNetwork{level: connectivity.LevelGlobal}
	b := New(rec, &fakeDevice{}, net, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Attach(ctx))

	for i := 0; i < changeBuffer; i++ {
		level := connectivity.LevelGlobal
		if i%2 == 0 {
			level = connectivity.LevelDisconnected
		}
		net.send(connectivity.Change{Level: level})
	}
	// This one does not fit; the network is now disconnected.
	net.setLevel(connectivity.LevelDisconnected)
	net.send(connectivity.Change{Level: connectivity.LevelDisconnected})

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.eventLoop(ctx)
	}()

	assert.Eventually(t, func() bool {
		updates := rec.snapshot()
		return len(updates) > 0 && len(b.changes) == 0 && len(b.resyncCh) == 0 &&
			updates[len(updates)-1] == update{"network", false}
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	updates := rec.snapshot()
	assert.Equal(t, update{"network", false}, updates[len(updates)-1])

	cancel()
	<-done
}

// TestBridge_EndToEnd drives a real state manager through the bridge: the
// key arrives by hot-plug, then the network comes up, and exactly one alert
// is raised.
func TestBridge_EndToEnd(t *testing.T) {
	alerter := &countingAlerter{}
	m := state.NewManager(alerter, quietLogger())
	require.NoError(t, m.Initialize(false, false))

	dev := &fakeDevice{}
	net := &fakeNetwork{level: connectivity.LevelDisconnected}
	hotplug := make(chan struct{}, 1)

	b := New(m, dev, net, quietLogger())
	b.SeedKey(false)
	b.SetPollInterval(time.Hour)
	b.SetHotplugTrigger(hotplug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Attach(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()

	dev.set(true, nil)
	hotplug <- struct{}{}
	assert.Eventually(t, func() bool { return m.CurrentState().KeyPresent }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, alerter.count())

	net.send(connectivity.Change{Level: connectivity.LevelGlobal})
	assert.Eventually(t, func() bool { return alerter.count() == 1 }, time.Second, 5*time.Millisecond)

	net.send(connectivity.Change{Level: connectivity.LevelSite})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, alerter.count())

	cancel()
	<-done
}

func TestBridge_SetPollInterval(t *testing.T) {
	b := New(&recordingUpdater{}, &fakeDevice{}, &fakeNetwork{}, quietLogger())
	assert.Equal(t, DefaultPollInterval, b.PollInterval())

	b.SetPollInterval(2 * time.Second)
	assert.Equal(t, 2*time.Second, b.PollInterval())

	b.SetPollInterval(0)
	assert.Equal(t, 2*time.Second, b.PollInterval())
}

func TestBridge_HandleSignalLogsOnly(t *testing.T) {
	rec := &recordingUpdater{}
	b := New(rec, &fakeDevice{}, &fakeNetwork{}, quietLogger())

	b.HandleSignal(&godbus.Signal{
		Name: dbus.UpstartEventEmitted.Name(),
		Path: dbus.UpstartObjectPath,
		Body: []any{"net-device-up", []string{"IFACE=wlan0"}},
	})
	b.HandleSignal(&godbus.Signal{
		Name: dbus.SystemdJobRemoved.Name(),
		Path: dbus.SystemdObjectPath,
		Body: []any{uint32(1), godbus.ObjectPath("/org/freedesktop/systemd1/job/1"), "NetworkManager.service", "done"},
	})
	b.HandleSignal(&godbus.Signal{Name: dbus.UpstartEventEmitted.Name(), Path: dbus.UpstartObjectPath})

	assert.Empty(t, rec.snapshot())
}

type countingAlerter struct {
	mu     sync.Mutex
	raised int
}

func (c *countingAlerter) Raise(state.ConditionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raised++
}

func (c *countingAlerter) Resolve(state.ConditionState) {}

func (c *countingAlerter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raised
}
