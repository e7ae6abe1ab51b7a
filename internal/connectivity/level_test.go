package connectivity

import (
	"errors"
	"net"
	"testing"

	godbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/disykonect/internal/dbus"
)

func TestFromState(t *testing.T) {
	tests := []struct {
		code     uint32
		expected Level
		usable   bool
	}{
		{0, LevelUnknown, true},
		{10, LevelAsleep, true},
		{20, LevelDisconnected, false},
		{30, LevelDisconnecting, false},
		{40, LevelConnecting, true},
		{50, LevelLimited, true},
		{60, LevelSite, true},
		{70, LevelGlobal, true},
	}

	for _, tt := range tests {
		t.Run(tt.expected.String(), func(t *testing.T) {
			level, err := FromState(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
			assert.Equal(t, tt.usable, level.Usable())
		})
	}
}

func TestFromConnectivity(t *testing.T) {
	tests := []struct {
		code     uint32
		expected Level
		usable   bool
	}{
		{0, LevelUnknown, true},
		{1, LevelDisconnected, false},
		{2, LevelPortal, true},
		{3, LevelLimited, true},
		{4, LevelGlobal, true},
	}

	for _, tt := range tests {
		t.Run(tt.expected.String(), func(t *testing.T) {
			level, err := FromConnectivity(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
			assert.Equal(t, tt.usable, level.Usable())
		})
	}
}

func TestUnknownCodes(t *testing.T) {
	for _, code := range []uint32{5, 15, 71, 1000} {
		level, err := FromState(code)
		assert.Equal(t, LevelInvalid, level)
		assert.True(t, errors.Is(err, ErrUnknownStatusCode), "state %d", code)
		assert.False(t, level.Usable())
	}

	level, err := FromConnectivity(5)
	assert.Equal(t, LevelInvalid, level)
	assert.ErrorIs(t, err, ErrUnknownStatusCode)
}

func TestLevelOrdering(t *testing.T) {
	ordered := []Level{
		LevelInvalid, LevelUnknown, LevelAsleep, LevelDisconnected, LevelDisconnecting,
		LevelConnecting, LevelPortal, LevelLimited, LevelSite, LevelGlobal,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1], ordered[i])
	}
	assert.Equal(t, "invalid", Level(99).String())
	assert.False(t, Level(99).Usable())
}

func TestStateChange(t *testing.T) {
	tests := []struct {
		name     string
		body     []any
		expected Level
		wantErr  bool
	}{
		{"global", []any{uint32(70)}, LevelGlobal, false},
		{"disconnected", []any{uint32(20)}, LevelDisconnected, false},
		{"unmapped", []any{uint32(45)}, LevelInvalid, true},
		{"wrong type", []any{"70"}, LevelInvalid, true},
		{"empty", nil, LevelInvalid, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := stateChange(&godbus.Signal{Name: dbus.NetworkManagerStateChanged.Name(), Body: tt.body})
			assert.Equal(t, tt.expected, c.Level)
			assert.Equal(t, "StateChanged", c.Source)
			if tt.wantErr {
				assert.ErrorIs(t, c.Err, ErrUnknownStatusCode)
			} else {
				assert.NoError(t, c.Err)
			}
		})
	}
}

func TestSnapshotLevel(t *testing.T) {
	lo := Interface{Name: "lo", Up: true, Loopback: true, Addrs: []net.IP{net.ParseIP("127.0.0.1")}}

	tests := []struct {
		name     string
		snap     Snapshot
		expected Level
	}{
		{
			name:     "nothing",
			snap:     Snapshot{},
			expected: LevelDisconnected,
		},
		{
			name:     "loopback only",
			snap:     Snapshot{Interfaces: []Interface{lo}, DefaultRoute: true},
			expected: LevelDisconnected,
		},
		{
			name:     "down link with address",
			snap:     Snapshot{Interfaces: []Interface{lo, {Name: "eth0", Addrs: []net.IP{net.ParseIP("192.168.1.10")}}}},
			expected: LevelDisconnected,
		},
		{
			name:     "up without address",
			snap:     Snapshot{Interfaces: []Interface{lo, {Name: "eth0", Up: true}}},
			expected: LevelConnecting,
		},
		{
			name:     "link-local only",
			snap:     Snapshot{Interfaces: []Interface{{Name: "eth0", Up: true, Addrs: []net.IP{net.ParseIP("fe80::1")}}}},
			expected: LevelLimited,
		},
		{
			name:     "address without default route",
			snap:     Snapshot{Interfaces: []Interface{{Name: "wlan0", Up: true, Addrs: []net.IP{net.ParseIP("10.0.0.5")}}}},
			expected: LevelSite,
		},
		{
			name: "address with default route",
			snap: Snapshot{
				Interfaces:   []Interface{lo, {Name: "wlan0", Up: true, Addrs: []net.IP{net.ParseIP("10.0.0.5"), net.ParseIP("fe80::2")}}},
				DefaultRoute: true,
			},
			expected: LevelGlobal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.snap.Level())
		})
	}
}

func TestNew(t *testing.T) {
	p, err := New(BackendNetworkManager, nil)
	require.NoError(t, err)
	assert.IsType(t, &NetworkManager{}, p)

	p, err = New(BackendNetlink, nil)
	require.NoError(t, err)
	assert.IsType(t, &Netlink{}, p)

	_, err = New("carrier-pigeon", nil)
	assert.Error(t, err)
}
