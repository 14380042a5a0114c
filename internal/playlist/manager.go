package playlist

import (
	"context"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"smfplayer/internal/cache"
	"smfplayer/internal/database"
	"smfplayer/internal/metadata"
	"smfplayer/internal/provider"
	"smfplayer/pkg/models"

	"github.com/sirupsen/logrus"
)

// Identifier derives (artist, title) for a file via acoustic fingerprinting.
type Identifier interface {
	Configured() bool
	Identify(ctx context.Context, path string) (artist, title string, err error)
}

// TrackInfoProvider looks up album art and album names for a known
// (artist, title) pair.
type TrackInfoProvider interface {
	Configured() bool
	AlbumArt(ctx context.Context, artist, title string, size provider.ArtSize) (image.Image, error)
	AlbumName(ctx context.Context, artist, title string) (string, error)
}

// Recommender returns candidate tracks for a seed (track, artist) pair. The
// two methods are the two artist-derivation strategies; the engine tries
// ByAlbum first and falls back to ByTrack.
type Recommender interface {
	Configured() bool
	ByAlbum(ctx context.Context, trackName, artistName string) ([]models.Recommendation, error)
	ByTrack(ctx context.Context, trackName, artistName string) ([]models.Recommendation, error)
}

// FilterKind selects the song field a playlist filter matches against.
type FilterKind int

const (
	FilterArtist FilterKind = iota
	FilterTitle
)

// recommendationPlayCutoff: once a song's play count exceeds this, it is
// established as known-good and recommendation fetches are skipped.
const recommendationPlayCutoff = 1

// Manager is the playlist/reconciliation engine. It owns the in-memory
// active playlist and keeps it consistent with the persistent store while
// merging in externally-sourced metadata.
//
// All mutating operations are serialized behind one mutex; callers are
// expected to dispatch one user action at a time.
type Manager struct {
	mu        sync.Mutex
	store     *database.Store
	extractor *metadata.Extractor
	logger    *logrus.Logger

	identifier  Identifier
	trackInfo   TrackInfoProvider
	recommender Recommender

	songs []*models.Song
	// recommendations fetched this session, one list per seed artist
	recommendations [][]models.Recommendation
	artCache        *cache.ArtCache

	listenersMu sync.Mutex
	listeners   []chan Event
}

// NewManager creates a reconciliation engine over the given store and
// extractor. Providers are optional; attach them with SetProviders.
func NewManager(store *database.Store, extractor *metadata.Extractor, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Manager{
		store:     store,
		extractor: extractor,
		logger:    logger,
		artCache:  cache.NewArtCache(),
	}
}

// SetProviders attaches the external metadata providers. A nil provider
// disables the corresponding capability.
func (m *Manager) SetProviders(identifier Identifier, trackInfo TrackInfoProvider, recommender Recommender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identifier = identifier
	m.trackInfo = trackInfo
	m.recommender = recommender
}

// Clear empties the active playlist, the session recommendation cache and
// the store's playlist table. Ratings survive; they are keyed by
// (title, artist), not by playlist membership.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.songs = nil
	m.recommendations = nil
	m.artCache.Clear()
	if err := m.store.ClearPlaylist(); err != nil {
		m.logger.WithError(err).Error("Failed to clear playlist table")
	}
}

// AddFromFile validates, extracts and persists one file, appending it to the
// active playlist. It returns nil when the file is rejected: missing,
// unsupported extension, or a duplicate (artist, title) already resident.
// Rejection is an expected steady-state outcome, not an error.
func (m *Manager) AddFromFile(path string) *models.Song {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addFromFileLocked(path)
}

func (m *Manager) addFromFileLocked(path string) *models.Song {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		m.logger.WithField("path", path).Warn("File not found, skipping")
		return nil
	}

	if !m.extractor.IsSupported(path) {
		m.logger.WithField("path", path).Warn("Unsupported file format, skipping")
		return nil
	}

	song := m.extractor.Extract(path)

	if m.residentLocked(song.Artist, song.Title) {
		m.logger.WithFields(logrus.Fields{
			"artist": song.Artist,
			"title":  song.Title,
		}).Info("Song already in playlist, skipping")
		return nil
	}

	if err := m.store.InsertSong(song); err != nil {
		return nil
	}

	if err := m.store.EnsureRating(song.Title, song.Artist); err != nil {
		m.logger.WithError(err).WithField("title", song.Title).Warn("Failed to initialize rating")
	}
	rating, err := m.store.Rating(song.Title, song.Artist)
	if err != nil {
		m.logger.WithError(err).WithField("title", song.Title).Warn("Failed to fetch rating")
	}
	song.Rating = rating

	m.songs = append(m.songs, &song)
	return &song
}

// residentLocked reports whether a song with the given (artist, title) pair
// is already in the active playlist.
func (m *Manager) residentLocked(artist, title string) bool {
	for _, song := range m.songs {
		if song.Artist == artist && song.Title == title {
			return true
		}
	}
	return false
}

// LoadFolder recursively walks a directory and adds every supported audio
// file found, in enumeration order. Rejected files are silently skipped.
func (m *Manager) LoadFolder(dir string) []*models.Song {
	m.mu.Lock()
	defer m.mu.Unlock()

	var loaded []*models.Song
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if song := m.addFromFileLocked(path); song != nil {
			loaded = append(loaded, song)
		}
		return nil
	})
	if err != nil {
		m.logger.WithError(err).WithField("dir", dir).Error("Folder load failed")
		m.publish(Event{Kind: EventLoadFailed, Path: dir})
	}
	return loaded
}

// LoadFiles runs the per-file pipeline over the given paths, preserving
// input order. Used both for "add multiple files" and for replaying the
// path list of a saved playlist.
func (m *Manager) LoadFiles(paths []string) []*models.Song {
	m.mu.Lock()
	defer m.mu.Unlock()

	var loaded []*models.Song
	for _, path := range paths {
		if song := m.addFromFileLocked(path); song != nil {
			loaded = append(loaded, song)
		}
	}
	return loaded
}

// Save writes a standalone snapshot of the playlist table to dest. A saved
// playlist is a list of paths; metadata is re-derived on load.
func (m *Manager) Save(dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !strings.HasSuffix(dest, ".db") {
		dest += ".db"
	}
	if err := m.store.SaveTo(dest); err != nil {
		m.publish(Event{Kind: EventSaveFailed, Path: dest})
		return err
	}
	m.logger.WithField("dest", dest).Info("Playlist saved")
	return nil
}

// LoadPlaylist opens a saved playlist snapshot, extracts its path list and
// replays it through the live load pipeline, so stale tags are refreshed
// from the files themselves.
func (m *Manager) LoadPlaylist(path string) []*models.Song {
	paths, err := database.ReadPlaylistPaths(path)
	if err != nil {
		m.logger.WithError(err).WithField("path", path).Error("Failed to open playlist")
		m.publish(Event{Kind: EventLoadFailed, Path: path})
		return nil
	}

	loaded := m.LoadFiles(paths)
	if len(loaded) == 0 {
		m.publish(Event{Kind: EventPlaylistEmpty, Path: path})
	}
	return loaded
}

// Remove deletes the song at index from the store and the active playlist.
// Indices of subsequent entries shift down by one.
func (m *Manager) Remove(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(index)
}

func (m *Manager) removeLocked(index int) bool {
	if index < 0 || index >= len(m.songs) {
		return false
	}
	song := m.songs[index]
	if err := m.store.DeleteSongByPath(song.Path); err != nil {
		m.logger.WithError(err).WithField("path", song.Path).Error("Failed to delete song")
	}
	m.songs = append(m.songs[:index], m.songs[index+1:]...)
	return true
}

// UpdateTimesPlayed atomically increments the play counter for the song at
// index and returns the new count.
func (m *Manager) UpdateTimesPlayed(index int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.songs) {
		return 0
	}
	song := m.songs[index]
	count, err := m.store.IncrementTimesPlayed(song.Path)
	if err != nil {
		return song.TimesPlayed
	}
	song.TimesPlayed = count
	return count
}

// UpdateRating writes a 1-5 rating through to the ratings table and the
// in-memory song. Out-of-range ratings are ignored.
func (m *Manager) UpdateRating(index, rating int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.songs) {
		return
	}
	if rating < 1 || rating > 5 {
		m.logger.WithField("rating", rating).Warn("Rating out of range, ignoring")
		return
	}
	song := m.songs[index]
	if err := m.store.UpdateRating(song.Title, song.Artist, rating); err != nil {
		return
	}
	song.Rating = rating
}

// Filter narrows the active playlist to songs whose field matches value
// exactly, case-insensitively. This is a transient view: the store keeps the
// unfiltered set, so a later clear or reload is not lossy.
func (m *Manager) Filter(kind FilterKind, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var filtered []*models.Song
	for _, song := range m.songs {
		field := song.Artist
		if kind == FilterTitle {
			field = song.Title
		}
		if strings.EqualFold(field, value) {
			filtered = append(filtered, song)
		}
	}
	m.songs = filtered
}

// Songs returns a snapshot of the active playlist in order.
func (m *Manager) Songs() []models.Song {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]models.Song, len(m.songs))
	for i, song := range m.songs {
		snapshot[i] = *song
	}
	return snapshot
}

// Len returns the number of songs in the active playlist.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.songs)
}

// SongAt returns a copy of the song at index.
func (m *Manager) SongAt(index int) (models.Song, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.songs) {
		return models.Song{}, false
	}
	return *m.songs[index], true
}

// PathResident reports whether any song in the active playlist carries the
// given path.
func (m *Manager) PathResident(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, song := range m.songs {
		if song.Path == path {
			return true
		}
	}
	return false
}

// IsResident reports whether the song at index still carries the given path.
// The async dispatcher uses this to discard late-arriving provider results
// when the entry they were fetched for has been removed or replaced.
func (m *Manager) IsResident(index int, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return index >= 0 && index < len(m.songs) && m.songs[index].Path == path
}

// Enrich overlays identified (artist, title) onto a copy of the song when
// its artist is empty and the fingerprint provider is configured. The
// original record is never mutated; the caller decides whether to commit.
func (m *Manager) Enrich(ctx context.Context, song models.Song) models.Song {
	if song.Artist != "" {
		return song
	}
	if m.identifier == nil || !m.identifier.Configured() {
		return song
	}

	artist, title, err := m.identifier.Identify(ctx, song.Path)
	if err != nil {
		m.logger.WithError(err).WithField("path", song.Path).Warn("Fingerprint identification failed")
		return song
	}
	if artist != "" && title != "" {
		song.Artist = artist
		song.Title = title
	}
	return song
}

// AlbumArt returns decoded album art for (artist, title) at the requested
// size tier, consulting the session art cache first. Returns nil when the
// lookup provider is unavailable or has no art.
func (m *Manager) AlbumArt(ctx context.Context, artist, title string, size provider.ArtSize) image.Image {
	if img, ok := m.artCache.GetArt(artist, title); ok {
		return img
	}
	if m.trackInfo == nil || !m.trackInfo.Configured() {
		return nil
	}

	img, err := m.trackInfo.AlbumArt(ctx, artist, title, size)
	if err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"artist": artist,
			"title":  title,
		}).Warn("Album art lookup failed")
		return nil
	}
	if img != nil {
		m.artCache.SetArt(artist, title, img)
	}
	return img
}

// RecommendationsFor returns candidate tracks seeded by the given artist.
// Results are cached per seed artist name for the playlist session; fetches
// are skipped once the seed song's play count marks it as known-good.
func (m *Manager) RecommendationsFor(ctx context.Context, artist, title string) []models.Recommendation {
	m.mu.Lock()
	for _, song := range m.songs {
		if song.Artist == artist && song.Title == title && song.TimesPlayed > recommendationPlayCutoff {
			m.mu.Unlock()
			return nil
		}
	}
	for _, list := range m.recommendations {
		if len(list) > 0 && list[0].SeedArtistName == artist {
			cached := list
			m.mu.Unlock()
			return cached
		}
	}
	recommender := m.recommender
	m.mu.Unlock()

	if recommender == nil || !recommender.Configured() {
		return nil
	}

	// Album-scoped derivation first, track-scoped as fallback. Network runs
	// outside the playlist lock so mutators are not blocked on remote calls.
	recs, err := recommender.ByAlbum(ctx, title, artist)
	if err != nil {
		m.logger.WithError(err).WithField("artist", artist).Warn("Album-scoped recommendation lookup failed")
	}
	if len(recs) == 0 {
		recs, err = recommender.ByTrack(ctx, title, artist)
		if err != nil {
			m.logger.WithError(err).WithField("artist", artist).Warn("Track-scoped recommendation lookup failed")
		}
	}
	if len(recs) == 0 {
		return nil
	}

	m.mu.Lock()
	m.recommendations = append(m.recommendations, recs)
	m.mu.Unlock()
	return recs
}
