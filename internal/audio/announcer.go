package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/disykonect/internal/alert"
)

// Settings selects what the Announcer plays.
type Settings struct {
	Enabled      bool
	File         string // empty plays a tone
	Volume       int    // 0-100
	ToneHz       int
	ToneDuration time.Duration
}

// Announcer plays the alert sound before a prompt is shown.
type Announcer struct {
	mu       sync.Mutex
	logger   *slog.Logger
	player   *Player
	settings Settings
}

var _ alert.Announcer = (*Announcer)(nil)

// NewAnnouncer creates an Announcer playing through player.
func NewAnnouncer(player *Player, settings Settings, logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Announcer{logger: logger, player: player}
	a.Configure(settings)
	return a
}

// Configure replaces the settings. Cached sounds are dropped when the file changes.
func (a *Announcer) Configure(settings Settings) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if settings.File != a.settings.File {
		a.player.ClearCache()
	}
	a.settings = settings
	a.player.SetVolume(float64(settings.Volume) / 100.0)
}

// Settings returns the current settings.
func (a *Announcer) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// Announce starts the alert sound. Playback continues in the background.
func (a *Announcer) Announce(_ context.Context, al alert.Alert) error {
	s := a.Settings()
	if !s.Enabled {
		return nil
	}

	a.logger.Debug("playing alert sound", "alert", al.ID.String(), "file", s.File)
	if s.File != "" {
		return a.player.Play(s.File)
	}
	return a.player.PlayTone(float64(s.ToneHz), s.ToneDuration)
}
