package state

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the probes, the bridge and the supervisor.
var (
	// ErrProbeUnavailable is returned when a device or network query, or a
	// notification subscription, fails. Callers log it and retry on the next
	// cycle; stored state is never changed because of it.
	ErrProbeUnavailable = errors.New("probe unavailable")

	// ErrInvalidState reports misuse of the state API, such as a second
	// Initialize without Reset. It indicates a programming error.
	ErrInvalidState = errors.New("invalid state")
)

// ProbeError wraps a failure from a probe and matches ErrProbeUnavailable.
type ProbeError struct {
	Probe string // "device" or "network"
	Op    string // operation that failed, e.g. "enumerate", "subscribe"
	Err   error
}

func (e *ProbeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s probe: %s failed", e.Probe, e.Op)
	}
	return fmt.Sprintf("%s probe: %s failed: %v", e.Probe, e.Op, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrProbeUnavailable) true for every ProbeError.
func (e *ProbeError) Is(target error) bool {
	return target == ErrProbeUnavailable
}

// NewProbeError builds a ProbeError.
func NewProbeError(probe, op string, err error) *ProbeError {
	return &ProbeError{Probe: probe, Op: op, Err: err}
}
