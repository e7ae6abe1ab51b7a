package connectivity

import "net"

// Interface is one network link as seen by the netlink backend.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	Addrs    []net.IP
}

// Snapshot is the kernel's view of links and routing at one instant.
type Snapshot struct {
	Interfaces   []Interface
	DefaultRoute bool
}

// Level derives a connectivity level from the snapshot. Loopback links are
// ignored. A global address with a default route counts as global, without
// one as site; link-local addresses only give limited; an up link with no
// address is still connecting.
func (s Snapshot) Level() Level {
	var up, linkLocal, global bool

	for _, iface := range s.Interfaces {
		if iface.Loopback || !iface.Up {
			continue
		}
		up = true
		for _, ip := range iface.Addrs {
			switch {
			case ip.IsLoopback():
			case ip.IsGlobalUnicast():
				global = true
			case ip.IsLinkLocalUnicast():
				linkLocal = true
			}
		}
	}

	switch {
	case global && s.DefaultRoute:
		return LevelGlobal
	case global:
		return LevelSite
	case linkLocal:
		return LevelLimited
	case up:
		return LevelConnecting
	default:
		return LevelDisconnected
	}
}
