package display

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/disykonect/internal/alert"
	"github.com/jmylchreest/disykonect/internal/state"
)

func TestDisplayError(t *testing.T) {
	tests := []struct {
		name     string
		err      *DisplayError
		expected string
	}{
		{
			name:     "message only",
			err:      &DisplayError{Message: "no display available"},
			expected: "no display available",
		},
		{
			name:     "with cause",
			err:      &DisplayError{Message: "failed to start", Cause: errors.New("no wayland socket")},
			expected: "failed to start: no wayland socket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}

	cause := errors.New("boom")
	assert.ErrorIs(t, &DisplayError{Message: "x", Cause: cause}, cause)
}

func TestSink_NotifyBeforeStart(t *testing.T) {
	s := NewSink(nil)
	a := alert.New(state.ConditionState{KeyPresent: true, NetworkPresent: true}, alert.DefaultTitle, alert.DefaultMessage)

	err := s.Notify(context.Background(), a)
	assert.ErrorIs(t, err, ErrNotRunning)

	// Stop without Start is a no-op.
	s.Stop()
}
