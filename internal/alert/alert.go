// Package alert delivers conflict alerts to the operator.
package alert

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/disykonect/internal/state"
)

// Default alert text.
const (
	DefaultTitle   = "Yubikey and Network Detected"
	DefaultMessage = "Please disconnect Yubikey or network"
)

// Alert is one raised conflict notification.
type Alert struct {
	ID       ulid.ULID            `json:"id" yaml:"id"`
	RaisedAt time.Time            `json:"raised_at" yaml:"raised_at"`
	State    state.ConditionState `json:"state" yaml:"state"`
	Title    string               `json:"title" yaml:"title"`
	Message  string               `json:"message" yaml:"message"`
}

// New creates an Alert for the given state.
func New(s state.ConditionState, title, message string) Alert {
	now := time.Now()
	return Alert{
		ID:       ulid.MustNew(ulid.Timestamp(now), rand.Reader),
		RaisedAt: now,
		State:    s,
		Title:    title,
		Message:  message,
	}
}
