//go:build linux

package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/jmylchreest/disykonect/internal/state"
)

// errFeedClosed is reported when the kernel closes a subscription channel.
var errFeedClosed = errors.New("netlink subscription closed")

// Netlink derives connectivity from kernel link, address and route state.
type Netlink struct {
	logger        *slog.Logger
	debounce      time.Duration
	retryInterval time.Duration

	mu   sync.Mutex
	last Level
}

var _ Probe = (*Netlink)(nil)

// NewNetlink creates a netlink probe.
func NewNetlink(logger *slog.Logger) *Netlink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Netlink{
		logger:        logger,
		debounce:      250 * time.Millisecond,
		retryInterval: 5 * time.Second,
		last:          LevelInvalid,
	}
}

// SetRetryInterval sets the delay between re-subscription attempts.
func (n *Netlink) SetRetryInterval(d time.Duration) {
	n.retryInterval = d
}

// Level reads the current snapshot and derives the level from it.
func (n *Netlink) Level(_ context.Context) (Level, error) {
	snap, err := readSnapshot()
	if err != nil {
		return LevelInvalid, state.NewProbeError("network", "read netlink state", err)
	}
	return snap.Level(), nil
}

func readSnapshot() (Snapshot, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	for _, link := range links {
		attrs := link.Attrs()
		if attrs == nil {
			continue
		}
		iface := Interface{
			Name:     attrs.Name,
			Up:       attrs.Flags&net.FlagUp != 0 && attrs.OperState != netlink.OperDown,
			Loopback: attrs.Flags&net.FlagLoopback != 0,
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err == nil {
			for _, addr := range addrs {
				iface.Addrs = append(iface.Addrs, addr.IP)
			}
		}
		snap.Interfaces = append(snap.Interfaces, iface)
	}

	routes, err := netlink.RouteList(nil, netlink.FAMILY_ALL)
	if err != nil {
		return Snapshot{}, err
	}
	for _, r := range routes {
		if isDefaultRoute(r) {
			snap.DefaultRoute = true
			break
		}
	}
	return snap, nil
}

func isDefaultRoute(r netlink.Route) bool {
	if r.Dst == nil {
		return r.Gw != nil || len(r.MultiPath) > 0
	}
	ones, _ := r.Dst.Mask.Size()
	return ones == 0
}

// Subscribe follows link, address and route updates. Bursts of updates are
// debounced and a Change is delivered only when the derived level moves.
func (n *Netlink) Subscribe(ctx context.Context, fn func(Change)) error {
	feed, err := subscribeAll()
	if err != nil {
		return state.NewProbeError("network", "subscribe", err)
	}

	if level, err := n.Level(ctx); err == nil {
		n.setLast(level)
	}

	go n.run(ctx, feed, fn)
	return nil
}

type netlinkFeed struct {
	links  chan netlink.LinkUpdate
	addrs  chan netlink.AddrUpdate
	routes chan netlink.RouteUpdate
	done   chan struct{}
}

func subscribeAll() (*netlinkFeed, error) {
	f := &netlinkFeed{
		links:  make(chan netlink.LinkUpdate, 32),
		addrs:  make(chan netlink.AddrUpdate, 32),
		routes: make(chan netlink.RouteUpdate, 32),
		done:   make(chan struct{}),
	}
	if err := netlink.LinkSubscribe(f.links, f.done); err != nil {
		close(f.done)
		return nil, err
	}
	if err := netlink.AddrSubscribe(f.addrs, f.done); err != nil {
		close(f.done)
		return nil, err
	}
	if err := netlink.RouteSubscribe(f.routes, f.done); err != nil {
		close(f.done)
		return nil, err
	}
	return f, nil
}

func (n *Netlink) run(ctx context.Context, feed *netlinkFeed, fn func(Change)) {
	timer := time.NewTimer(n.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		dropped := false
		select {
		case <-ctx.Done():
			close(feed.done)
			return
		case _, ok := <-feed.links:
			dropped = !ok
		case _, ok := <-feed.addrs:
			dropped = !ok
		case _, ok := <-feed.routes:
			dropped = !ok
		case <-timer.C:
			n.emit(ctx, fn)
			continue
		}

		if !dropped {
			timer.Reset(n.debounce)
			continue
		}

		close(feed.done)
		n.logger.Warn("netlink subscription lost", "error", errFeedClosed)
		fn(Change{Level: LevelInvalid, Source: "netlink", Err: state.NewProbeError("network", "subscribe", errFeedClosed)})

		feed = n.resubscribe(ctx)
		if feed == nil {
			return
		}
		n.emit(ctx, fn)
	}
}

// resubscribe retries on every tick until it succeeds or ctx is done.
func (n *Netlink) resubscribe(ctx context.Context) *netlinkFeed {
	ticker := time.NewTicker(n.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			feed, err := subscribeAll()
			if err != nil {
				n.logger.Debug("netlink re-subscription failed, will retry", "error", err)
				continue
			}
			n.logger.Info("netlink subscription restored")
			n.setLast(LevelInvalid)
			return feed
		}
	}
}

func (n *Netlink) emit(ctx context.Context, fn func(Change)) {
	level, err := n.Level(ctx)
	if err != nil {
		n.logger.Warn("failed to read netlink state", "error", err)
		return
	}

	n.mu.Lock()
	changed := level != n.last
	n.last = level
	n.mu.Unlock()

	if changed {
		fn(Change{Level: level, Code: uint32(level), Source: "netlink"})
	}
}

func (n *Netlink) setLast(level Level) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = level
}
