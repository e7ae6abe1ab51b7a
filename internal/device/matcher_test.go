package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUSBID(t *testing.T) {
	tests := []struct {
		input    string
		expected USBID
		wantErr  bool
	}{
		{"1050:0407", USBID{Vendor: 0x1050, Product: 0x0407}, false},
		{" 1D6B:0002 ", USBID{Vendor: 0x1d6b, Product: 0x0002}, false},
		{"1050", USBID{}, true},
		{"zzzz:0001", USBID{}, true},
		{"1050:10000", USBID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, err := ParseUSBID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, id)
		})
	}
}

func TestUSBID_Text(t *testing.T) {
	id := USBID{Vendor: 0x1050, Product: 0x0407}
	text, err := id.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1050:0407", string(text))

	var parsed USBID
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, id, parsed)
}

func TestMatcher_Match(t *testing.T) {
	yubikey := Device{ID: USBID{0x1050, 0x0407}, Manufacturer: "Yubico", Product: "YubiKey OTP+FIDO+CCID"}
	nameless := Device{ID: USBID{0x1050, 0x0407}}
	mouse := Device{ID: USBID{0x046d, 0xc52b}, Manufacturer: "Logitech", Product: "USB Receiver"}

	tests := []struct {
		name     string
		matcher  *Matcher
		device   Device
		expected bool
	}{
		{"default matches yubikey", DefaultMatcher(), yubikey, true},
		{"default ignores mouse", DefaultMatcher(), mouse, false},
		{"default needs strings", DefaultMatcher(), nameless, false},
		{"case insensitive", NewMatcher([]string{"  LOGITECH "}, nil), mouse, true},
		{"id match", NewMatcher(nil, []USBID{{0x1050, 0x0407}}), nameless, true},
		{"id mismatch", NewMatcher(nil, []USBID{{0x1050, 0x0406}}), yubikey, false},
		{"empty matcher", NewMatcher([]string{"", " "}, nil), yubikey, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.matcher.Match(tt.device))
		})
	}

	assert.True(t, NewMatcher([]string{""}, nil).Empty())
	assert.False(t, DefaultMatcher().Empty())
}
