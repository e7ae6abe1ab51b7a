package display

import (
	_ "embed"

	"github.com/diamondburned/gotk4/pkg/gdk/v4"
	"github.com/diamondburned/gotk4/pkg/gtk/v4"
)

//go:embed alert.css
var alertCSS string

// applyStyle installs the alert stylesheet on display.
func applyStyle(display *gdk.Display) {
	provider := gtk.NewCSSProvider()
	provider.LoadFromString(alertCSS)
	gtk.StyleContextAddProviderForDisplay(
		display,
		provider,
		gtk.STYLE_PROVIDER_PRIORITY_APPLICATION,
	)
}
