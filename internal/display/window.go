package display

import (
	"github.com/diamondburned/gotk4/pkg/gtk/v4"
	"github.com/dustin/go-humanize"

	layershell "github.com/diamondburned/gotk4-layer-shell/pkg/gtk4layershell"

	"github.com/jmylchreest/disykonect/internal/alert"
)

// namespace identifies alert surfaces to the compositor.
const namespace = "disykonect-alert"

// alertWindow is one on-screen prompt. It must only be touched from the
// GTK thread.
type alertWindow struct {
	window *gtk.Window
	closed bool
}

// newAlertWindow builds the prompt for a. onAck runs on the GTK thread when
// the operator presses the button or closes the window.
func newAlertWindow(app *gtk.Application, a alert.Alert, onAck func()) *alertWindow {
	w := &alertWindow{window: gtk.NewWindow()}
	w.window.SetApplication(app)
	w.window.SetTitle(a.Title)
	w.window.SetDecorated(false)
	w.window.SetResizable(false)
	w.window.SetDefaultSize(420, -1)
	w.window.AddCSSClass(namespace)

	layershell.InitForWindow(w.window)
	layershell.SetLayer(w.window, layershell.LayerShellLayerOverlay)
	layershell.SetExclusiveZone(w.window, -1)
	layershell.SetKeyboardMode(w.window, layershell.LayerShellKeyboardModeExclusive)
	layershell.SetNamespace(w.window, namespace)

	box := gtk.NewBox(gtk.OrientationVertical, 10)
	box.AddCSSClass("alert-box")
	box.SetMarginTop(8)
	box.SetMarginBottom(8)
	box.SetMarginStart(12)
	box.SetMarginEnd(12)

	title := gtk.NewLabel(a.Title)
	title.AddCSSClass("alert-title")
	title.SetXAlign(0)
	box.Append(title)

	message := gtk.NewLabel(a.Message)
	message.AddCSSClass("alert-message")
	message.SetXAlign(0)
	message.SetWrap(true)
	box.Append(message)

	raised := gtk.NewLabel("raised " + humanize.Time(a.RaisedAt))
	raised.AddCSSClass("alert-raised")
	raised.SetXAlign(0)
	box.Append(raised)

	button := gtk.NewButtonWithLabel("OK")
	button.AddCSSClass("alert-ack")
	button.AddCSSClass("suggested-action")
	button.ConnectClicked(func() {
		w.close()
		onAck()
	})
	box.Append(button)

	w.window.ConnectCloseRequest(func() bool {
		w.closed = true
		onAck()
		return false
	})

	w.window.SetChild(box)
	w.window.SetDefaultWidget(button)
	return w
}

func (w *alertWindow) present() {
	w.window.Present()
}

// close removes the window without acknowledging.
func (w *alertWindow) close() {
	if w.closed {
		return
	}
	w.closed = true
	w.window.Destroy()
}
