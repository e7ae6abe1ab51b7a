package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/disykonect/internal/dbus"
)

func TestGenerateStatus(t *testing.T) {
	tests := []struct {
		name  string
		st    dbus.Status
		class string
		text  string
	}{
		{name: "clear", st: dbus.Status{}, class: "clear", text: ""},
		{name: "key only", st: dbus.Status{KeyPresent: true}, class: "key", text: "key"},
		{name: "network only", st: dbus.Status{NetworkPresent: true}, class: "network", text: "net"},
		{name: "both", st: dbus.Status{KeyPresent: true, NetworkPresent: true}, class: "alert", text: "!"},
		{name: "alerting", st: dbus.Status{KeyPresent: true, NetworkPresent: true, Alerting: true}, class: "alert", text: "!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := generateStatus(tt.st)
			assert.Equal(t, tt.class, ws.Class)
			assert.Equal(t, tt.text, ws.Text)
			assert.NotEmpty(t, ws.Tooltip)
		})
	}
}

func TestOutputStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, outputStatus(&buf, offlineStatus()))
	assert.JSONEq(t, `{"text":"","alt":"offline","tooltip":"disykonect is not running","class":"offline"}`, buf.String())
}
