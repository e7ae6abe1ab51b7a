// Package daemon provides the main orchestration for disykonect.
// It wires the probes, the state manager, the alert worker and the
// optional services together, runs startup reconciliation and then hands
// control to the event bridge. Configuration hot-reload lives here too.
package daemon
