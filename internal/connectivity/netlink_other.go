//go:build !linux

package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmylchreest/disykonect/internal/state"
)

var errNetlinkUnsupported = errors.New("netlink is only available on linux")

// Netlink is unavailable on this platform; every call fails with a probe error.
type Netlink struct {
	logger *slog.Logger
}

var _ Probe = (*Netlink)(nil)

// NewNetlink creates a stub netlink probe.
func NewNetlink(logger *slog.Logger) *Netlink {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("netlink connectivity backend is only available on linux")
	return &Netlink{logger: logger}
}

// SetRetryInterval is a no-op.
func (n *Netlink) SetRetryInterval(time.Duration) {}

// Level always fails.
func (n *Netlink) Level(context.Context) (Level, error) {
	return LevelInvalid, state.NewProbeError("network", "read netlink state", errNetlinkUnsupported)
}

// Subscribe always fails.
func (n *Netlink) Subscribe(context.Context, func(Change)) error {
	return state.NewProbeError("network", "subscribe", errNetlinkUnsupported)
}
