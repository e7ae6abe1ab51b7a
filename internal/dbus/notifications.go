package dbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/disykonect/internal/alert"
)

var (
	notificationActionInvoked = MatchRule{
		Interface: NotificationsInterface,
		Member:    "ActionInvoked",
		Path:      NotificationsObjectPath,
	}
	notificationClosed = MatchRule{
		Interface: NotificationsInterface,
		Member:    "NotificationClosed",
		Path:      NotificationsObjectPath,
	}
)

// closeTimeout bounds the CloseNotification call made on withdrawal.
const closeTimeout = 2 * time.Second

// NotificationSink shows alerts through the desktop notification daemon
// and waits for the operator to acknowledge or dismiss them.
type NotificationSink struct {
	connect Connector
	opts    NotificationOptions
	logger  *slog.Logger
}

var _ alert.Sink = (*NotificationSink)(nil)

// NewNotificationSink creates a NotificationSink. A nil connect uses a
// private session bus connection per alert.
func NewNotificationSink(connect Connector, opts NotificationOptions, logger *slog.Logger) *NotificationSink {
	if connect == nil {
		connect = SessionBus
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationSink{
		connect: connect,
		opts:    opts,
		logger:  logger,
	}
}

// Notify sends the notification and blocks until it is acknowledged,
// closed, or ctx is cancelled. On cancellation the notification is closed.
func (s *NotificationSink) Notify(ctx context.Context, a alert.Alert) error {
	conn, err := s.connect()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// Subscribe before Notify so a fast dismissal is not missed.
	for _, rule := range []MatchRule{notificationActionInvoked, notificationClosed} {
		if err := conn.AddMatchSignal(rule.options()...); err != nil {
			return fmt.Errorf("failed to add match rule %s: %w", rule, err)
		}
	}
	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	n := AlertNotification(a, s.opts)
	obj := conn.Object(NotificationsBusName, NotificationsObjectPath)

	var id uint32
	call := obj.CallWithContext(ctx, NotificationsInterface+".Notify", 0,
		n.AppName, n.ReplacesID, n.AppIcon, n.Summary, n.Body, n.Actions, n.Hints, n.ExpireTimeout)
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	s.logger.Debug("notification shown",
		"alert", a.ID.String(),
		"id", id,
		"urgency", n.Urgency(),
		"category", n.Category(),
	)

	return s.await(ctx, signals, n, id, func(id uint32) { s.close(obj, id) })
}

// await blocks until the notification id is acknowledged or dismissed, or
// ctx is cancelled. closeFn is called when the notification must be taken
// down by us: on cancellation, and after an acknowledgement if it is
// resident.
func (s *NotificationSink) await(ctx context.Context, signals <-chan *dbus.Signal, n *Notification, id uint32, closeFn func(id uint32)) error {
	for {
		select {
		case <-ctx.Done():
			closeFn(id)
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("notification %d: %w", id, ErrSubscriptionClosed)
			}
			done, ack := s.handleSignal(sig, n, id)
			if !done {
				continue
			}
			if ack && n.Resident() {
				closeFn(id)
			}
			return nil
		}
	}
}

// handleSignal reports whether sig ends the prompt for id, and whether it
// was an explicit acknowledgement through one of n's actions.
func (s *NotificationSink) handleSignal(sig *dbus.Signal, n *Notification, id uint32) (done, ack bool) {
	switch {
	case notificationActionInvoked.Matches(sig):
		if len(sig.Body) < 2 {
			return false, false
		}
		sigID, _ := sig.Body[0].(uint32)
		key, _ := sig.Body[1].(string)
		if sigID != id || !isAction(n, key) {
			return false, false
		}
		s.logger.Debug("notification action invoked", "id", id, "action", key)
		return true, true
	case notificationClosed.Matches(sig):
		if len(sig.Body) < 2 {
			return false, false
		}
		sigID, _ := sig.Body[0].(uint32)
		reason, _ := sig.Body[1].(uint32)
		if sigID != id {
			return false, false
		}
		s.logger.Debug("notification closed", "id", id, "reason", CloseReason(reason).String())
		return true, false
	}
	return false, false
}

// isAction reports whether key is "default" or one of n's action keys.
func isAction(n *Notification, key string) bool {
	if key == "default" {
		return true
	}
	for _, a := range n.ParsedActions() {
		if a.Key == key {
			return true
		}
	}
	return false
}

func (s *NotificationSink) close(obj dbus.BusObject, id uint32) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := obj.CallWithContext(ctx, NotificationsInterface+".CloseNotification", 0, id).Err; err != nil {
		s.logger.Debug("failed to close notification", "id", id, "error", err)
	}
}
