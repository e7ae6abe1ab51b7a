package connectivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/jmylchreest/disykonect/internal/dbus"
	"github.com/jmylchreest/disykonect/internal/state"
)

// NetworkManager reads connectivity from NetworkManager over the system bus.
type NetworkManager struct {
	connect       dbus.Connector
	logger        *slog.Logger
	retryInterval time.Duration
}

var _ Probe = (*NetworkManager)(nil)

// NewNetworkManager creates a NetworkManager probe. A nil connect uses a
// private system bus connection.
func NewNetworkManager(connect dbus.Connector, logger *slog.Logger) *NetworkManager {
	if connect == nil {
		connect = dbus.SystemBus
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NetworkManager{
		connect:       connect,
		logger:        logger,
		retryInterval: 5 * time.Second,
	}
}

// SetRetryInterval sets the delay between re-subscription attempts.
func (n *NetworkManager) SetRetryInterval(d time.Duration) {
	n.retryInterval = d
}

// Level asks NetworkManager to check connectivity. If the method call is
// refused (e.g. by polkit) the cached Connectivity property is used.
func (n *NetworkManager) Level(ctx context.Context) (Level, error) {
	conn, err := n.connect()
	if err != nil {
		return LevelInvalid, state.NewProbeError("network", "connect", err)
	}
	defer func() { _ = conn.Close() }()

	code, err := checkConnectivity(ctx, conn.Object(dbus.NMBusName, dbus.NMObjectPath))
	if err != nil {
		return LevelInvalid, state.NewProbeError("network", "check connectivity", err)
	}
	n.logger.Debug("network manager connectivity", "code", code)
	return FromConnectivity(code)
}

func checkConnectivity(ctx context.Context, obj godbus.BusObject) (uint32, error) {
	var code uint32
	callErr := obj.CallWithContext(ctx, dbus.NMInterface+".CheckConnectivity", 0).Store(&code)
	if callErr == nil {
		return code, nil
	}

	v, propErr := obj.GetProperty(dbus.NMInterface + ".Connectivity")
	if propErr != nil {
		return 0, errors.Join(callErr, propErr)
	}
	code, ok := v.Value().(uint32)
	if !ok {
		return 0, fmt.Errorf("unexpected Connectivity property type %s", v.Signature())
	}
	return code, nil
}

// Subscribe follows NetworkManager's StateChanged signal. After a dropped
// subscription is restored the level is queried again, since changes may
// have been missed in between.
func (n *NetworkManager) Subscribe(ctx context.Context, fn func(Change)) error {
	sub := dbus.NewSubscriber(n.connect, n.logger, dbus.NetworkManagerStateChanged)
	sub.SetRetryInterval(n.retryInterval)
	sub.SetSignalHandler(func(sig *godbus.Signal) {
		fn(stateChange(sig))
	})
	sub.SetDropHandler(func(err error) {
		fn(Change{Level: LevelInvalid, Source: "StateChanged", Err: state.NewProbeError("network", "subscribe", err)})
	})
	sub.SetAttachHandler(func(reattached bool) {
		if !reattached {
			return
		}
		go n.resync(ctx, fn)
	})

	if err := sub.Start(ctx); err != nil {
		return state.NewProbeError("network", "subscribe", err)
	}

	go func() {
		<-ctx.Done()
		sub.Stop()
	}()
	return nil
}

func (n *NetworkManager) resync(ctx context.Context, fn func(Change)) {
	level, err := n.Level(ctx)
	if err != nil && !errors.Is(err, ErrUnknownStatusCode) {
		n.logger.Warn("failed to re-query network after resubscribe", "error", err)
		return
	}
	fn(Change{Level: level, Source: "CheckConnectivity", Err: err})
}

// stateChange decodes a StateChanged(u) signal.
func stateChange(sig *godbus.Signal) Change {
	c := Change{Level: LevelInvalid, Source: "StateChanged"}
	if len(sig.Body) < 1 {
		c.Err = fmt.Errorf("StateChanged without arguments: %w", ErrUnknownStatusCode)
		return c
	}
	code, ok := sig.Body[0].(uint32)
	if !ok {
		c.Err = fmt.Errorf("StateChanged argument %T: %w", sig.Body[0], ErrUnknownStatusCode)
		return c
	}
	c.Code = code
	c.Level, c.Err = FromState(code)
	return c
}
