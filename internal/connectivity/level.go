// Package connectivity reports whether the host network is usable.
package connectivity

import (
	"errors"
	"fmt"
)

// ErrUnknownStatusCode is returned for NetworkManager codes with no mapping.
var ErrUnknownStatusCode = errors.New("unknown status code")

// Level is an ordered network status, from no information to full internet.
type Level int

const (
	// LevelInvalid is used for codes that could not be mapped.
	LevelInvalid Level = iota
	LevelUnknown
	LevelAsleep
	LevelDisconnected
	LevelDisconnecting
	LevelConnecting
	LevelPortal
	LevelLimited
	LevelSite
	LevelGlobal
)

var levelNames = map[Level]string{
	LevelInvalid:       "invalid",
	LevelUnknown:       "unknown",
	LevelAsleep:        "asleep",
	LevelDisconnected:  "disconnected",
	LevelDisconnecting: "disconnecting",
	LevelConnecting:    "connecting",
	LevelPortal:        "portal",
	LevelLimited:       "limited",
	LevelSite:          "site",
	LevelGlobal:        "global",
}

// String returns the string representation of the level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "invalid"
}

// Usable collapses the level to the boolean network condition.
// Disconnected and disconnecting are not usable, nor is an unmapped level;
// every other defined level is.
func (l Level) Usable() bool {
	switch l {
	case LevelDisconnected, LevelDisconnecting, LevelInvalid:
		return false
	}
	_, defined := levelNames[l]
	return defined
}

// NMState is a NetworkManager NMState value as carried by StateChanged.
// Values from NetworkManager.h.
type NMState uint32

const (
	NMStateUnknown         NMState = 0
	NMStateAsleep          NMState = 10
	NMStateDisconnected    NMState = 20
	NMStateDisconnecting   NMState = 30
	NMStateConnecting      NMState = 40
	NMStateConnectedLocal  NMState = 50
	NMStateConnectedSite   NMState = 60
	NMStateConnectedGlobal NMState = 70
)

var nmStateLevels = map[NMState]Level{
	NMStateUnknown:         LevelUnknown,
	NMStateAsleep:          LevelAsleep,
	NMStateDisconnected:    LevelDisconnected,
	NMStateDisconnecting:   LevelDisconnecting,
	NMStateConnecting:      LevelConnecting,
	NMStateConnectedLocal:  LevelLimited,
	NMStateConnectedSite:   LevelSite,
	NMStateConnectedGlobal: LevelGlobal,
}

// NMConnectivity is a NetworkManager NMConnectivityState value as returned
// by CheckConnectivity and the Connectivity property.
type NMConnectivity uint32

const (
	NMConnectivityUnknown NMConnectivity = 0
	NMConnectivityNone    NMConnectivity = 1
	NMConnectivityPortal  NMConnectivity = 2
	NMConnectivityLimited NMConnectivity = 3
	NMConnectivityFull    NMConnectivity = 4
)

var nmConnectivityLevels = map[NMConnectivity]Level{
	NMConnectivityUnknown: LevelUnknown,
	NMConnectivityNone:    LevelDisconnected,
	NMConnectivityPortal:  LevelPortal,
	NMConnectivityLimited: LevelLimited,
	NMConnectivityFull:    LevelGlobal,
}

// FromState maps a raw StateChanged code to a Level.
func FromState(code uint32) (Level, error) {
	if l, ok := nmStateLevels[NMState(code)]; ok {
		return l, nil
	}
	return LevelInvalid, fmt.Errorf("network manager state %d: %w", code, ErrUnknownStatusCode)
}

// FromConnectivity maps a raw connectivity code to a Level.
func FromConnectivity(code uint32) (Level, error) {
	if l, ok := nmConnectivityLevels[NMConnectivity(code)]; ok {
		return l, nil
	}
	return LevelInvalid, fmt.Errorf("network manager connectivity %d: %w", code, ErrUnknownStatusCode)
}
