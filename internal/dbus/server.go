package dbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/disykonect/internal/state"
)

const (
	// StatusInterface is the status interface name.
	StatusInterface = "io.github.jmylchreest.Disykonect"
	// StatusObjectPath is the status object path.
	StatusObjectPath = dbus.ObjectPath("/io/github/jmylchreest/Disykonect")
	// StatusBusName is the bus name to claim.
	StatusBusName = "io.github.jmylchreest.Disykonect"
)

// Status is the snapshot exported on the bus.
type Status struct {
	KeyPresent     bool `json:"key_present" yaml:"key_present"`
	NetworkPresent bool `json:"network_present" yaml:"network_present"`
	Alerting       bool `json:"alerting" yaml:"alerting"`
}

// StatusServer exports the current condition pair on the session bus.
type StatusServer struct {
	conn    *dbus.Conn
	connect Connector
	logger  *slog.Logger

	mu      sync.RWMutex
	current Status
	running bool
	updates chan Status
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewStatusServer creates a StatusServer. A nil connect uses a private
// session bus connection.
func NewStatusServer(connect Connector, logger *slog.Logger) *StatusServer {
	if connect == nil {
		connect = SessionBus
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusServer{
		connect: connect,
		logger:  logger,
		updates: make(chan Status, 16),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Publish records a new snapshot and queues a StateChanged signal.
// It never blocks and matches state.Observer.
func (s *StatusServer) Publish(cs state.ConditionState, alerting bool) {
	st := Status{
		KeyPresent:     cs.KeyPresent,
		NetworkPresent: cs.NetworkPresent,
		Alerting:       alerting,
	}

	s.mu.Lock()
	s.current = st
	s.mu.Unlock()

	select {
	case s.updates <- st:
	default:
		s.logger.Debug("status update dropped, signal queue full")
	}
}

// Current returns the last published snapshot.
func (s *StatusServer) Current() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Start connects to the bus, exports the status object and claims the name.
func (s *StatusServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.mu.Unlock()

	conn, err := s.connect()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	if err := conn.Export(s, StatusObjectPath, StatusInterface); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to export object: %w", err)
	}

	node := &introspect.Node{
		Name: string(StatusObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    StatusInterface,
				Methods: statusMethods(),
				Signals: statusSignals(),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), StatusObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(StatusBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return fmt.Errorf("bus name %s already taken", StatusBusName)
	}

	s.mu.Lock()
	s.conn = conn
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.emitLoop()

	s.logger.Info("status service started", "name", StatusBusName, "path", StatusObjectPath)
	return nil
}

// Stop releases the bus name and closes the connection.
func (s *StatusServer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	conn := s.conn
	s.mu.Unlock()

	<-s.doneCh

	if _, err := conn.ReleaseName(StatusBusName); err != nil {
		s.logger.Warn("failed to release bus name", "error", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close bus connection: %w", err)
	}

	s.logger.Info("status service stopped")
	return nil
}

// emitLoop sends StateChanged for every published snapshot.
func (s *StatusServer) emitLoop() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		case st := <-s.updates:
			if err := s.EmitStateChanged(st); err != nil {
				s.logger.Warn("failed to emit StateChanged", "error", err)
			}
		}
	}
}

// GetState returns the current key, network and alerting flags.
// D-Bus method: GetState() -> (bbb)
func (s *StatusServer) GetState() (bool, bool, bool, *dbus.Error) {
	st := s.Current()
	s.logger.Debug("GetState called", "key", st.KeyPresent, "network", st.NetworkPresent, "alerting", st.Alerting)
	return st.KeyPresent, st.NetworkPresent, st.Alerting, nil
}

// QueryStatus asks a running daemon for its status.
func QueryStatus(ctx context.Context, connect Connector) (Status, error) {
	if connect == nil {
		connect = SessionBus
	}
	conn, err := connect()
	if err != nil {
		return Status{}, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var st Status
	obj := conn.Object(StatusBusName, StatusObjectPath)
	err = obj.CallWithContext(ctx, StatusInterface+".GetState", 0).
		Store(&st.KeyPresent, &st.NetworkPresent, &st.Alerting)
	if err != nil {
		return Status{}, fmt.Errorf("failed to query status: %w", err)
	}
	return st, nil
}

// statusMethods returns the D-Bus method introspection data.
func statusMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "GetState",
			Args: []introspect.Arg{
				{Name: "key_present", Type: "b", Direction: "out"},
				{Name: "network_present", Type: "b", Direction: "out"},
				{Name: "alerting", Type: "b", Direction: "out"},
			},
		},
	}
}

// statusSignals returns the D-Bus signal introspection data.
func statusSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "StateChanged",
			Args: []introspect.Arg{
				{Name: "key_present", Type: "b"},
				{Name: "network_present", Type: "b"},
				{Name: "alerting", Type: "b"},
			},
		},
	}
}
