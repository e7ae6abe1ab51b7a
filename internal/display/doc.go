// Package display shows alerts as GTK4/libadwaita windows on the
// layer-shell overlay layer.
//
// The GTK main loop runs on its own locked OS thread for the lifetime of
// the Sink. All widget work is marshalled onto that thread with
// glib.IdleAdd; Notify itself only waits on channels.
package display
