// Package state owns the key/network condition pair and decides when the
// forbidden combination has been entered.
package state

import (
	"fmt"
	"log/slog"
	"sync"
)

// ConditionState is the pair of observed conditions.
type ConditionState struct {
	KeyPresent     bool `json:"key_present" yaml:"key_present"`
	NetworkPresent bool `json:"network_present" yaml:"network_present"`
}

// AlertCondition reports whether both conditions hold at once.
func (s ConditionState) AlertCondition() bool {
	return s.KeyPresent && s.NetworkPresent
}

// String returns a compact representation for logs.
func (s ConditionState) String() string {
	return fmt.Sprintf("key=%t network=%t", s.KeyPresent, s.NetworkPresent)
}

// Alerter receives edge notifications from the Manager.
// Both methods are called while the Manager's lock is held and must not block.
type Alerter interface {
	// Raise is called once per rising edge of the alert condition.
	Raise(s ConditionState)
	// Resolve is called when the alert condition clears after a Raise.
	Resolve(s ConditionState)
}

// Observer is called with every state the Manager settles into.
// Like Alerter, it runs under the Manager's lock and must not block.
type Observer func(s ConditionState, alerting bool)

// Manager owns the ConditionState and the notification latch.
type Manager struct {
	mu     sync.Mutex
	logger *slog.Logger

	state       ConditionState
	armed       bool // notification latch
	initialized bool

	alerter   Alerter
	observers []Observer
}

// NewManager creates a Manager that reports edges to alerter.
func NewManager(alerter Alerter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger,
		alerter: alerter,
	}
}

// AddObserver registers an observer for state changes.
func (m *Manager) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Initialize sets the initial pair without evaluating the alert edge.
// The startup reconciliation is expected to have resolved any conflict first.
func (m *Manager) Initialize(keyPresent, networkPresent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return fmt.Errorf("initialize called twice: %w", ErrInvalidState)
	}
	m.initialized = true
	m.state = ConditionState{KeyPresent: keyPresent, NetworkPresent: networkPresent}

	m.logger.Debug("state initialized", "key", keyPresent, "network", networkPresent)
	m.notifyObserversLocked()
	return nil
}

// Reset returns the Manager to its uninitialized state and disarms the latch.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	m.armed = false
	m.state = ConditionState{}
}

// UpdateKeyPresence records the security key presence and evaluates the edge.
func (m *Manager) UpdateKeyPresence(present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.KeyPresent != present {
		m.logger.Info("key presence changed", "present", present)
	} else {
		m.logger.Debug("key presence unchanged", "present", present)
	}
	m.state.KeyPresent = present
	m.evaluateLocked()
}

// UpdateNetworkPresence records network usability and evaluates the edge.
func (m *Manager) UpdateNetworkPresence(present bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.NetworkPresent != present {
		m.logger.Info("network presence changed", "present", present)
	} else {
		m.logger.Debug("network presence unchanged", "present", present)
	}
	m.state.NetworkPresent = present
	m.evaluateLocked()
}

// CurrentState returns a snapshot of the pair.
func (m *Manager) CurrentState() ConditionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Alerting reports whether the latch is armed, i.e. an alert has been raised
// for the current run of the alert condition.
func (m *Manager) Alerting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// evaluateLocked applies the edge rule. Caller must hold m.mu.
func (m *Manager) evaluateLocked() {
	alert := m.state.AlertCondition()

	switch {
	case alert && !m.armed:
		m.armed = true
		m.logger.Warn("security key and network present at the same time", "state", m.state.String())
		if m.alerter != nil {
			m.alerter.Raise(m.state)
		}
	case !alert && m.armed:
		m.armed = false
		m.logger.Info("conflict cleared", "state", m.state.String())
		if m.alerter != nil {
			m.alerter.Resolve(m.state)
		}
	}

	m.notifyObserversLocked()
}

func (m *Manager) notifyObserversLocked() {
	for _, o := range m.observers {
		o(m.state, m.armed)
	}
}
