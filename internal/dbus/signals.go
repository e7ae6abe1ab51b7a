package dbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// StatusStateChanged matches the status service's StateChanged(bbb) signal.
var StatusStateChanged = MatchRule{
	Interface: StatusInterface,
	Member:    "StateChanged",
	Path:      StatusObjectPath,
}

// EmitStateChanged emits the StateChanged signal.
func (s *StatusServer) EmitStateChanged(st Status) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected to D-Bus")
	}

	err := conn.Emit(StatusObjectPath, StatusStateChanged.Name(), st.KeyPresent, st.NetworkPresent, st.Alerting)
	if err != nil {
		return fmt.Errorf("failed to emit StateChanged signal: %w", err)
	}

	s.logger.Debug("emitted StateChanged signal", "key", st.KeyPresent, "network", st.NetworkPresent, "alerting", st.Alerting)
	return nil
}

// ParseStateChanged decodes a StateChanged signal body.
func ParseStateChanged(sig *dbus.Signal) (Status, error) {
	if sig == nil {
		return Status{}, fmt.Errorf("nil signal")
	}
	if !StatusStateChanged.Matches(sig) {
		return Status{}, fmt.Errorf("unexpected signal %s", sig.Name)
	}
	if len(sig.Body) != 3 {
		return Status{}, fmt.Errorf("StateChanged: expected 3 arguments, got %d", len(sig.Body))
	}
	key, ok1 := sig.Body[0].(bool)
	network, ok2 := sig.Body[1].(bool)
	alerting, ok3 := sig.Body[2].(bool)
	if !ok1 || !ok2 || !ok3 {
		return Status{}, fmt.Errorf("StateChanged: unexpected argument types")
	}
	return Status{KeyPresent: key, NetworkPresent: network, Alerting: alerting}, nil
}
