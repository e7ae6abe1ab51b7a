package connectivity

import (
	"context"
	"fmt"
	"log/slog"
)

// Change is one network status observation delivered by a Probe feed.
// Err is set when the feed dropped (a *state.ProbeError) or the raw code
// could not be mapped (ErrUnknownStatusCode).
type Change struct {
	Level  Level
	Code   uint32 // raw backend code, when the backend has one
	Source string
	Err    error
}

// Probe queries and watches network connectivity.
type Probe interface {
	// Level returns the current connectivity level.
	Level(ctx context.Context) (Level, error)
	// Subscribe starts delivering changes to fn until ctx is cancelled.
	// An error is returned only if the initial subscription fails; later
	// drops are reported through fn and retried by the backend.
	Subscribe(ctx context.Context, fn func(Change)) error
}

// Backend names accepted by New.
const (
	BackendNetworkManager = "networkmanager"
	BackendNetlink        = "netlink"
)

// New creates the named backend.
func New(backend string, logger *slog.Logger) (Probe, error) {
	switch backend {
	case BackendNetworkManager, "":
		return NewNetworkManager(nil, logger), nil
	case BackendNetlink:
		return NewNetlink(logger), nil
	default:
		return nil, fmt.Errorf("unknown connectivity backend %q", backend)
	}
}
