package dbus

import (
	"strings"

	"github.com/godbus/dbus/v5"
)

// NetworkManager names, from NetworkManager's D-Bus API.
const (
	NMBusName    = "org.freedesktop.NetworkManager"
	NMObjectPath = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	NMInterface  = "org.freedesktop.NetworkManager"
)

// Upstart names. Upstart emits EventEmitted(s, as) for every job event.
const (
	UpstartBusName    = "com.ubuntu.Upstart"
	UpstartObjectPath = dbus.ObjectPath("/com/ubuntu/Upstart")
	UpstartInterface  = "com.ubuntu.Upstart0_6"
)

// systemd manager names. JobRemoved(u, o, s, s) fires when a job finishes.
const (
	SystemdBusName    = "org.freedesktop.systemd1"
	SystemdObjectPath = dbus.ObjectPath("/org/freedesktop/systemd1")
	SystemdInterface  = "org.freedesktop.systemd1.Manager"
)

// Connector opens a new bus connection.
type Connector func() (*dbus.Conn, error)

// SystemBus is a Connector for a private system bus connection.
func SystemBus() (*dbus.Conn, error) {
	return dbus.ConnectSystemBus()
}

// SessionBus is a Connector for a private session bus connection.
func SessionBus() (*dbus.Conn, error) {
	return dbus.ConnectSessionBus()
}

// MatchRule selects one signal.
type MatchRule struct {
	Interface string
	Member    string
	Path      dbus.ObjectPath // empty matches any path
}

// NetworkManagerStateChanged matches NetworkManager's StateChanged(u) signal.
var NetworkManagerStateChanged = MatchRule{
	Interface: NMInterface,
	Member:    "StateChanged",
	Path:      NMObjectPath,
}

// UpstartEventEmitted matches Upstart's EventEmitted(s, as) signal.
var UpstartEventEmitted = MatchRule{
	Interface: UpstartInterface,
	Member:    "EventEmitted",
	Path:      UpstartObjectPath,
}

// SystemdJobRemoved matches systemd's JobRemoved(u, o, s, s) signal.
var SystemdJobRemoved = MatchRule{
	Interface: SystemdInterface,
	Member:    "JobRemoved",
	Path:      SystemdObjectPath,
}

// Name returns the fully qualified signal name, as found in dbus.Signal.Name.
func (r MatchRule) Name() string {
	return r.Interface + "." + r.Member
}

// Matches reports whether the signal is selected by the rule.
func (r MatchRule) Matches(sig *dbus.Signal) bool {
	if sig == nil || sig.Name != r.Name() {
		return false
	}
	return r.Path == "" || sig.Path == r.Path
}

func (r MatchRule) options() []dbus.MatchOption {
	opts := []dbus.MatchOption{
		dbus.WithMatchInterface(r.Interface),
		dbus.WithMatchMember(r.Member),
	}
	if r.Path != "" {
		opts = append(opts, dbus.WithMatchObjectPath(r.Path))
	}
	return opts
}

// String returns the rule in match-rule syntax, for logging.
func (r MatchRule) String() string {
	parts := []string{
		"type='signal'",
		"interface='" + r.Interface + "'",
		"member='" + r.Member + "'",
	}
	if r.Path != "" {
		parts = append(parts, "path='"+string(r.Path)+"'")
	}
	return strings.Join(parts, ",")
}
