package dbus

import (
	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/disykonect/internal/alert"
)

// org.freedesktop.Notifications names.
const (
	NotificationsBusName    = "org.freedesktop.Notifications"
	NotificationsObjectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	NotificationsInterface  = "org.freedesktop.Notifications"
)

// ActionAcknowledge is the action key offered on alert notifications.
const ActionAcknowledge = "acknowledge"

// CloseReason represents the reason for closing a notification.
// These values are defined by the freedesktop.org notification specification.
type CloseReason uint32

const (
	// CloseReasonExpired indicates the notification expired (timeout reached).
	CloseReasonExpired CloseReason = 1
	// CloseReasonDismissed indicates the user dismissed the notification.
	CloseReasonDismissed CloseReason = 2
	// CloseReasonClosed indicates the notification was closed via CloseNotification.
	CloseReasonClosed CloseReason = 3
	// CloseReasonUndefined is reserved/undefined.
	CloseReasonUndefined CloseReason = 4
)

// String returns the string representation of the close reason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonExpired:
		return "expired"
	case CloseReasonDismissed:
		return "dismissed"
	case CloseReasonClosed:
		return "closed"
	case CloseReasonUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// Urgency levels for the urgency hint.
const (
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2
)

// Notification holds the arguments of an outgoing Notify call.
type Notification struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string // Alternating key, label pairs
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // -1 = server default, 0 = never expire
}

// Action represents a notification action with key and label.
type Action struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// ParsedActions converts the D-Bus action array to structured form.
func (n *Notification) ParsedActions() []Action {
	actions := make([]Action, 0, len(n.Actions)/2)
	for i := 0; i+1 < len(n.Actions); i += 2 {
		actions = append(actions, Action{
			Key:   n.Actions[i],
			Label: n.Actions[i+1],
		})
	}
	return actions
}

// Urgency extracts the urgency hint. Returns UrgencyNormal if not specified.
func (n *Notification) Urgency() byte {
	if v, ok := n.Hints["urgency"]; ok {
		if b, ok := v.Value().(byte); ok {
			return b
		}
	}
	return UrgencyNormal
}

// Resident returns true if the resident hint is set.
// Resident notifications stay open after an action is invoked.
func (n *Notification) Resident() bool {
	if v, ok := n.Hints["resident"]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

// Category extracts the category hint.
func (n *Notification) Category() string {
	if v, ok := n.Hints["category"]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

// NotificationOptions are the static parts of an alert notification.
type NotificationOptions struct {
	AppName      string
	AppIcon      string
	DesktopEntry string
	SoundName    string // freedesktop sound theme name; empty for none
}

// DefaultNotificationOptions returns the options used when none are configured.
func DefaultNotificationOptions() NotificationOptions {
	return NotificationOptions{
		AppName:      "disykonect",
		AppIcon:      "dialog-warning",
		DesktopEntry: "disykonect",
	}
}

// AlertNotification builds a critical, resident, non-expiring notification
// for a with a single acknowledge action.
func AlertNotification(a alert.Alert, opts NotificationOptions) *Notification {
	hints := map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(UrgencyCritical),
		"category": dbus.MakeVariant("device"),
		"resident": dbus.MakeVariant(true),
	}
	if opts.DesktopEntry != "" {
		hints["desktop-entry"] = dbus.MakeVariant(opts.DesktopEntry)
	}
	if opts.SoundName != "" {
		hints["sound-name"] = dbus.MakeVariant(opts.SoundName)
	} else {
		hints["suppress-sound"] = dbus.MakeVariant(true)
	}

	return &Notification{
		AppName:       opts.AppName,
		AppIcon:       opts.AppIcon,
		Summary:       a.Title,
		Body:          a.Message,
		Actions:       []string{ActionAcknowledge, "OK"},
		Hints:         hints,
		ExpireTimeout: 0,
	}
}
