package display

import "errors"

// ErrNotRunning is returned by Notify when the GTK application is not
// running, either because Start was not called or because it has exited.
var ErrNotRunning = errors.New("gtk application not running")

// DisplayError represents a display-related error.
type DisplayError struct {
	Message string
	Cause   error
}

func (e *DisplayError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *DisplayError) Unwrap() error {
	return e.Cause
}
