package playlist

import (
	"io/fs"
	"os"
	"path/filepath"

	"smfplayer/pkg/models"

	"github.com/sirupsen/logrus"
)

// ResolveMissing checks that the song at index still resolves to a file. If
// the file is gone it performs the one-shot recovery search: walk the tree
// rooted at the recorded path's parent directory for a file with the same
// base name. A found file rewrites the path in memory and in the store; a
// failed search removes the song, and the caller should advance to the next
// playlist entry.
func (m *Manager) ResolveMissing(index int) (*models.Song, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.songs) {
		return nil, false
	}
	song := m.songs[index]

	if _, err := os.Stat(song.Path); err == nil {
		return song, true
	}

	m.logger.WithField("path", song.Path).Warn("Song file missing, searching for moved file")

	newPath := findMovedFile(song.Path)
	if newPath != "" {
		if err := m.store.UpdateSongPath(song.Path, newPath); err == nil {
			m.logger.WithFields(logrus.Fields{
				"old_path": song.Path,
				"new_path": newPath,
			}).Info("Recovered moved file")
			song.Path = newPath
			m.publish(Event{Kind: EventSongRecovered, Path: newPath})
			return song, true
		}
	}

	// Recovery failed; drop the song from store and playlist.
	m.removeLocked(index)
	m.publish(Event{Kind: EventFileMissing, Path: song.Path})
	if len(m.songs) == 0 {
		m.publish(Event{Kind: EventPlaylistEmpty})
	}
	return nil, false
}

// findMovedFile walks the directory tree rooted at the original path's
// parent looking for a file with the same base name. Returns the first hit,
// or an empty string.
func findMovedFile(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)

	var found string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree; keep searching elsewhere
		}
		if !d.IsDir() && d.Name() == base {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	return found
}
