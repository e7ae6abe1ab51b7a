// Package dbus holds disykonect's D-Bus plumbing: signal subscriptions on the
// system bus (NetworkManager, Upstart, systemd), a client for the
// org.freedesktop.Notifications interface used to alert the operator, and the
// session-bus status service exported by the daemon.
package dbus
