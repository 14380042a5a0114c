package database

import (
	"database/sql"
	"fmt"
	"os"

	"smfplayer/pkg/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Store wraps a *sql.DB holding the two durable tables: the active playlist
// keyed by path and the ratings table keyed by (title, artist). Mutations
// commit per statement; callers serialize writers.
type Store struct {
	conn   *sql.DB
	path   string
	logger *logrus.Logger

	// Prepared statements for the per-song hot paths
	insertSongStmt  *sql.Stmt
	deleteByPath    *sql.Stmt
	timesPlayedStmt *sql.Stmt
	ratingStmt      *sql.Stmt
}

// NewStore opens (or creates) a SQLite database at the provided path and
// ensures both tables exist. Caller should Close() it when finished.
func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with few connections; the engine is single-writer
	// anyway.
	conn.SetMaxOpenConns(2)
	conn.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=memory;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	s := &Store{
		conn:   conn,
		path:   dbPath,
		logger: logger,
	}

	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := s.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Store initialized")
	return s, nil
}

// createTables creates both tables if they do not already exist. Idempotent.
func (s *Store) createTables() error {
	playlistTable := `
	CREATE TABLE IF NOT EXISTS playlist (
		title TEXT,
		duration TEXT,
		artist TEXT,
		year TEXT,
		path TEXT UNIQUE,
		times_played INTEGER DEFAULT 0
	);`

	ratingsTable := `
	CREATE TABLE IF NOT EXISTS ratings (
		title TEXT,
		artist TEXT,
		rating INTEGER,
		UNIQUE(title, artist)
	);`

	for _, table := range []string{playlistTable, ratingsTable} {
		if _, err := s.conn.Exec(table); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) prepareStatements() error {
	var err error

	s.insertSongStmt, err = s.conn.Prepare(`
		REPLACE INTO playlist (title, duration, artist, year, path, times_played)
		VALUES (?, ?, ?, ?, ?, 0)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert song statement: %w", err)
	}

	s.deleteByPath, err = s.conn.Prepare(`DELETE FROM playlist WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.timesPlayedStmt, err = s.conn.Prepare(`SELECT times_played FROM playlist WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare times played statement: %w", err)
	}

	s.ratingStmt, err = s.conn.Prepare(`SELECT rating FROM ratings WHERE title = ? AND artist = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare rating statement: %w", err)
	}

	return nil
}

// InsertSong inserts a song into the playlist table, replacing any existing
// row with the same path. The play counter resets to zero on replace.
func (s *Store) InsertSong(song models.Song) error {
	_, err := s.insertSongStmt.Exec(
		song.Title, models.FormatDuration(song.Duration), song.Artist, song.Year, song.Path)
	if err != nil {
		s.logger.WithError(err).WithField("path", song.Path).Error("Failed to insert song")
	}
	return err
}

// ClearPlaylist removes every row from the playlist table.
func (s *Store) ClearPlaylist() error {
	_, err := s.conn.Exec(`DELETE FROM playlist`)
	return err
}

// IncrementTimesPlayed bumps the play counter for a path and returns the new
// value. Returns 0 when the path is not present.
func (s *Store) IncrementTimesPlayed(path string) (int, error) {
	if _, err := s.conn.Exec(
		`UPDATE playlist SET times_played = times_played + 1 WHERE path = ?`, path); err != nil {
		s.logger.WithError(err).WithField("path", path).Error("Failed to increment play count")
		return 0, err
	}
	return s.TimesPlayed(path)
}

// TimesPlayed returns the play counter for a path, 0 if absent.
func (s *Store) TimesPlayed(path string) (int, error) {
	var count int
	err := s.timesPlayedStmt.QueryRow(path).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteSongByPath removes a playlist row identified by its file path.
func (s *Store) DeleteSongByPath(path string) error {
	_, err := s.deleteByPath.Exec(path)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Error("Failed to delete song by path")
	}
	return err
}

// DeleteSongByArtistTitle removes a playlist row by its (artist, title) pair.
func (s *Store) DeleteSongByArtistTitle(artist, title string) error {
	_, err := s.conn.Exec(`DELETE FROM playlist WHERE artist = ? AND title = ?`, artist, title)
	return err
}

// UpdateSongPath rewrites a song's path after moved-file recovery.
func (s *Store) UpdateSongPath(oldPath, newPath string) error {
	_, err := s.conn.Exec(`UPDATE playlist SET path = ? WHERE path = ?`, newPath, oldPath)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"old_path": oldPath,
			"new_path": newPath,
		}).Error("Failed to update song path")
	}
	return err
}

// EnsureRating creates a ratings row for (title, artist) if none exists,
// defaulting to unrated. An existing rating is preserved.
func (s *Store) EnsureRating(title, artist string) error {
	_, err := s.conn.Exec(`
		REPLACE INTO ratings (title, artist, rating)
		VALUES (?, ?, COALESCE((SELECT rating FROM ratings WHERE title = ? AND artist = ?), 0))`,
		title, artist, title, artist)
	return err
}

// Rating returns the stored rating for (title, artist), 0 if absent.
func (s *Store) Rating(title, artist string) (int, error) {
	var rating sql.NullInt64
	err := s.ratingStmt.QueryRow(title, artist).Scan(&rating)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !rating.Valid {
		return 0, nil
	}
	return int(rating.Int64), nil
}

// UpdateRating writes a rating for (title, artist), inserting the row when
// it does not exist yet.
func (s *Store) UpdateRating(title, artist string, rating int) error {
	_, err := s.conn.Exec(`
		REPLACE INTO ratings (title, artist, rating) VALUES (?, ?, ?)`,
		title, artist, rating)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"title":  title,
			"artist": artist,
		}).Error("Failed to update rating")
	}
	return err
}

// PlaylistPaths returns all file paths from the playlist table in insertion
// order.
func (s *Store) PlaylistPaths() ([]string, error) {
	rows, err := s.conn.Query(`SELECT path FROM playlist`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// SaveTo writes a standalone snapshot of the store to dest using VACUUM INTO,
// which produces a consistent copy even with WAL journaling active.
func (s *Store) SaveTo(dest string) error {
	// VACUUM INTO refuses to overwrite; replace semantics are wanted here.
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("failed to replace existing playlist file: %w", err)
		}
	}
	if _, err := s.conn.Exec(`VACUUM INTO ?`, dest); err != nil {
		s.logger.WithError(err).WithField("dest", dest).Error("Failed to save playlist snapshot")
		return fmt.Errorf("failed to save playlist: %w", err)
	}
	return nil
}

// Close closes the prepared statements and the underlying connection.
func (s *Store) Close() error {
	statements := []*sql.Stmt{
		s.insertSongStmt,
		s.deleteByPath,
		s.timesPlayedStmt,
		s.ratingStmt,
	}
	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				s.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// ReadPlaylistPaths opens a saved playlist snapshot read-only, extracts its
// path list and closes it. The snapshot's metadata columns are deliberately
// ignored; callers re-extract metadata from the files themselves.
func ReadPlaylistPaths(playlistPath string) ([]string, error) {
	if _, err := os.Stat(playlistPath); err != nil {
		return nil, fmt.Errorf("playlist file not readable: %w", err)
	}

	conn, err := sql.Open("sqlite3", playlistPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open playlist file: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(`SELECT path FROM playlist`)
	if err != nil {
		return nil, fmt.Errorf("not a playlist file: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}
