// Package device detects the security key on the USB bus.
package device

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultStrings are matched against the manufacturer and product strings.
var DefaultStrings = []string{"yubikey", "yubico"}

// USBID is a vendor:product pair.
type USBID struct {
	Vendor  uint16
	Product uint16
}

// ParseUSBID parses "vvvv:pppp" (hexadecimal).
func ParseUSBID(s string) (USBID, error) {
	vendor, product, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return USBID{}, fmt.Errorf("invalid usb id %q: expected vvvv:pppp", s)
	}
	v, err := strconv.ParseUint(vendor, 16, 16)
	if err != nil {
		return USBID{}, fmt.Errorf("invalid usb vendor id %q: %w", vendor, err)
	}
	p, err := strconv.ParseUint(product, 16, 16)
	if err != nil {
		return USBID{}, fmt.Errorf("invalid usb product id %q: %w", product, err)
	}
	return USBID{Vendor: uint16(v), Product: uint16(p)}, nil
}

// String returns the id as "vvvv:pppp".
func (id USBID) String() string {
	return fmt.Sprintf("%04x:%04x", id.Vendor, id.Product)
}

// MarshalText implements encoding.TextMarshaler.
func (id USBID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *USBID) UnmarshalText(text []byte) error {
	parsed, err := ParseUSBID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Matcher decides whether a device is the security key.
type Matcher struct {
	strings []string
	ids     []USBID
}

// NewMatcher creates a Matcher. A device matches if any string is contained
// (case-insensitively) in its manufacturer or product, or if its id equals
// any of ids.
func NewMatcher(strs []string, ids []USBID) *Matcher {
	m := &Matcher{ids: append([]USBID(nil), ids...)}
	for _, s := range strs {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			m.strings = append(m.strings, s)
		}
	}
	return m
}

// DefaultMatcher matches YubiKeys by name.
func DefaultMatcher() *Matcher {
	return NewMatcher(DefaultStrings, nil)
}

// Match reports whether d is the security key.
func (m *Matcher) Match(d Device) bool {
	for _, id := range m.ids {
		if d.ID == id {
			return true
		}
	}
	vendor := strings.ToLower(d.Manufacturer)
	model := strings.ToLower(d.Product)
	for _, s := range m.strings {
		if strings.Contains(vendor, s) || strings.Contains(model, s) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher can never match.
func (m *Matcher) Empty() bool {
	return len(m.strings) == 0 && len(m.ids) == 0
}
