package main

import (
	"fmt"
	"os"

	"smfplayer/internal/config"
	"smfplayer/internal/database"
	"smfplayer/internal/metadata"
	"smfplayer/internal/player"
	"smfplayer/internal/playlist"
	"smfplayer/internal/provider/acoustid"
	"smfplayer/internal/provider/lastfm"
	"smfplayer/internal/provider/spotify"
	"smfplayer/pkg/models"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Optional .env with provider credential overrides
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}
	applyEnvOverrides(&cfg.Providers)

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	store, err := database.NewStore(cfg.Database.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing store")
	}
	defer store.Close()

	extractor := metadata.NewExtractor(cfg.Music.SupportedFormats, logger)

	manager := playlist.NewManager(store, extractor, logger)
	manager.SetProviders(
		acoustid.New(cfg.Providers, logger),
		lastfm.New(cfg.Providers, logger),
		spotify.New(cfg.Providers, logger),
	)

	var watcher *playlist.Watcher
	if cfg.Music.WatchForChanges {
		watcher, err = playlist.NewWatcher(manager, logger)
		if err != nil {
			logger.WithError(err).Warn("File watcher unavailable")
		} else {
			defer watcher.Close()
		}
	}
	go drainEvents(manager, logger)

	if len(os.Args) < 2 {
		logger.Info("Usage: smfplayer <folder-or-file>...")
		return
	}

	manager.Clear()
	var loaded []*models.Song
	for _, arg := range os.Args[1:] {
		info, err := os.Stat(arg)
		if err != nil {
			logger.WithError(err).WithField("path", arg).Warn("Skipping argument")
			continue
		}
		if info.IsDir() {
			loaded = append(loaded, manager.LoadFolder(arg)...)
		} else {
			if song := manager.AddFromFile(arg); song != nil {
				loaded = append(loaded, song)
			}
		}
	}

	if len(loaded) == 0 {
		logger.WithField("supported_formats", cfg.Music.SupportedFormats).Warn("No supported audio files loaded")
		return
	}

	if watcher != nil {
		for _, song := range loaded {
			watcher.WatchSong(song.Path)
		}
	}

	state := player.NewStateManager()
	state.SetSong(loaded[0], 0)

	for i, song := range manager.Songs() {
		fmt.Printf("%3d  %-30s %-30s %6s %4d %d/5\n",
			i+1, song.Artist, song.Title, models.FormatDuration(song.Duration),
			song.TimesPlayed, song.Rating)
	}
}

// applyEnvOverrides lets credentials come from the environment (or .env)
// without being written into the config file.
func applyEnvOverrides(p *config.ProvidersConfig) {
	if v := os.Getenv("SMF_ACOUSTID_KEY"); v != "" {
		p.AcoustIDKey = v
	}
	if v := os.Getenv("SMF_LASTFM_KEY"); v != "" {
		p.LastFMKey = v
	}
	if v := os.Getenv("SMF_SPOTIFY_CLIENT_ID"); v != "" {
		p.SpotifyClientID = v
	}
	if v := os.Getenv("SMF_SPOTIFY_CLIENT_SECRET"); v != "" {
		p.SpotifyClientSecret = v
	}
}

// drainEvents logs engine notifications; a GUI adapter would render these
// as dialogs.
func drainEvents(manager *playlist.Manager, logger *logrus.Logger) {
	for event := range manager.Subscribe() {
		switch event.Kind {
		case playlist.EventFileMissing:
			logger.WithField("path", event.Path).Warn("File missing")
		case playlist.EventSongRecovered:
			logger.WithField("path", event.Path).Info("File recovered")
		case playlist.EventLoadFailed:
			logger.WithField("path", event.Path).Error("Load failed")
		case playlist.EventSaveFailed:
			logger.WithField("path", event.Path).Error("Save failed")
		case playlist.EventPlaylistEmpty:
			logger.Info("Playlist is empty")
		}
	}
}
