package device

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jmylchreest/disykonect/internal/state"
)

// DefaultSysfsRoot is where the kernel lists USB devices.
const DefaultSysfsRoot = "/sys/bus/usb/devices"

// Device is one enumerated USB device.
type Device struct {
	Path         string `json:"path" yaml:"path"`
	ID           USBID  `json:"id" yaml:"id"`
	Manufacturer string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Product      string `json:"product,omitempty" yaml:"product,omitempty"`
	Serial       string `json:"serial,omitempty" yaml:"serial,omitempty"`
}

// Prober answers whether the security key is attached.
type Prober interface {
	Present(ctx context.Context) (bool, error)
}

// SysfsProber enumerates USB devices from sysfs.
type SysfsProber struct {
	root   string
	logger *slog.Logger

	mu      sync.RWMutex
	matcher *Matcher
}

var _ Prober = (*SysfsProber)(nil)

// NewSysfsProber creates a prober reading root. Empty root uses
// DefaultSysfsRoot; nil matcher uses DefaultMatcher.
func NewSysfsProber(root string, matcher *Matcher, logger *slog.Logger) *SysfsProber {
	if root == "" {
		root = DefaultSysfsRoot
	}
	if matcher == nil {
		matcher = DefaultMatcher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SysfsProber{
		root:    root,
		matcher: matcher,
		logger:  logger,
	}
}

// SetMatcher replaces the matcher.
func (p *SysfsProber) SetMatcher(m *Matcher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matcher = m
}

// Present reports whether any enumerated device matches.
func (p *SysfsProber) Present(ctx context.Context) (bool, error) {
	devices, err := p.Devices(ctx)
	if err != nil {
		return false, err
	}

	p.mu.RLock()
	matcher := p.matcher
	p.mu.RUnlock()

	for _, d := range devices {
		if matcher.Match(d) {
			p.logger.Debug("security key found", "path", d.Path, "id", d.ID.String(), "product", d.Product)
			return true, nil
		}
	}
	return false, nil
}

// Matching returns the enumerated devices that match.
func (p *SysfsProber) Matching(ctx context.Context) ([]Device, error) {
	devices, err := p.Devices(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	matcher := p.matcher
	p.mu.RUnlock()

	var matched []Device
	for _, d := range devices {
		if matcher.Match(d) {
			matched = append(matched, d)
		}
	}
	return matched, nil
}

// Devices lists USB devices, sorted by sysfs name. Interfaces (names with
// a colon) and entries without idVendor are skipped.
func (p *SysfsProber) Devices(ctx context.Context) ([]Device, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, state.NewProbeError("device", "enumerate", err)
	}

	var devices []Device
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, state.NewProbeError("device", "enumerate", err)
		}
		if strings.Contains(entry.Name(), ":") {
			continue
		}

		dir := filepath.Join(p.root, entry.Name())
		d, ok, err := readDevice(dir)
		if err != nil {
			p.logger.Debug("skipping unreadable usb device", "path", dir, "error", err)
			continue
		}
		if ok {
			devices = append(devices, d)
		}
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Path < devices[j].Path })
	return devices, nil
}

func readDevice(dir string) (Device, bool, error) {
	vendor, err := readAttr(dir, "idVendor")
	if err != nil {
		if os.IsNotExist(err) {
			return Device{}, false, nil
		}
		return Device{}, false, err
	}
	product, err := readAttr(dir, "idProduct")
	if err != nil && !os.IsNotExist(err) {
		return Device{}, false, err
	}

	id, err := ParseUSBID(vendor + ":" + product)
	if err != nil {
		return Device{}, false, fmt.Errorf("bad id attributes: %w", err)
	}

	d := Device{Path: dir, ID: id}
	// String descriptors are optional.
	d.Manufacturer, _ = readAttr(dir, "manufacturer")
	d.Product, _ = readAttr(dir, "product")
	d.Serial, _ = readAttr(dir, "serial")
	return d, true, nil
}

func readAttr(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
