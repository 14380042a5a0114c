package playlist

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"smfplayer/internal/database"
	"smfplayer/internal/metadata"
	"smfplayer/pkg/models"

	"github.com/sirupsen/logrus"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := database.NewStore(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	extractor := metadata.NewExtractor([]string{".mp3", ".wav", ".flac"}, logger)
	return NewManager(store, extractor, logger)
}

// writeTaggedFile writes an MP3-like file with an ID3v2.3 title and artist,
// followed by junk instead of audio frames.
func writeTaggedFile(t *testing.T, path, title, artist string) {
	t.Helper()

	frame := func(id, value string) []byte {
		payload := append([]byte{0}, []byte(value)...)
		b := []byte(id)
		size := make([]byte, 4)
		binary.BigEndian.PutUint32(size, uint32(len(payload)))
		b = append(b, size...)
		b = append(b, 0, 0)
		return append(b, payload...)
	}

	var frames []byte
	if title != "" {
		frames = append(frames, frame("TIT2", title)...)
	}
	if artist != "" {
		frames = append(frames, frame("TPE1", artist)...)
	}

	size := len(frames)
	header := []byte{
		'I', 'D', '3', 3, 0, 0,
		byte(size>>21) & 0x7F, byte(size>>14) & 0x7F, byte(size>>7) & 0x7F, byte(size) & 0x7F,
	}

	data := append(header, frames...)
	data = append(data, make([]byte, 128)...)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

// stubIdentifier returns fixed identification results.
type stubIdentifier struct {
	artist, title string
	calls         int
}

func (s *stubIdentifier) Configured() bool { return true }
func (s *stubIdentifier) Identify(ctx context.Context, path string) (string, string, error) {
	s.calls++
	return s.artist, s.title, nil
}

// stubRecommender counts lookups so caching can be asserted.
type stubRecommender struct {
	albumCalls, trackCalls int
	albumEmpty             bool
}

func (s *stubRecommender) Configured() bool { return true }

func (s *stubRecommender) ByAlbum(ctx context.Context, trackName, artistName string) ([]models.Recommendation, error) {
	s.albumCalls++
	if s.albumEmpty {
		return nil, nil
	}
	return s.recs(artistName), nil
}

func (s *stubRecommender) ByTrack(ctx context.Context, trackName, artistName string) ([]models.Recommendation, error) {
	s.trackCalls++
	return s.recs(artistName), nil
}

func (s *stubRecommender) recs(artistName string) []models.Recommendation {
	return []models.Recommendation{
		{Artist: "Similar Artist", Title: "Similar Song", PreviewURL: "http://x/preview", SeedArtistName: artistName},
	}
}

func TestAddFromFile(t *testing.T) {
	manager := newTestManager(t)
	testDir := t.TempDir()

	t.Run("MissingFile", func(t *testing.T) {
		if song := manager.AddFromFile(filepath.Join(testDir, "absent.mp3")); song != nil {
			t.Error("Expected nil for missing file")
		}
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		path := filepath.Join(testDir, "notes.txt")
		if err := os.WriteFile(path, []byte("notes"), 0644); err != nil {
			t.Fatal(err)
		}
		if song := manager.AddFromFile(path); song != nil {
			t.Error("Expected nil for unsupported format")
		}
	})

	t.Run("TaggedFile", func(t *testing.T) {
		path := filepath.Join(testDir, "song.mp3")
		writeTaggedFile(t, path, "Giant Steps", "John Coltrane")

		song := manager.AddFromFile(path)
		if song == nil {
			t.Fatal("Expected song to be accepted")
		}
		if song.Title != "Giant Steps" || song.Artist != "John Coltrane" {
			t.Errorf("Unexpected metadata: %q by %q", song.Title, song.Artist)
		}
		if manager.Len() != 1 {
			t.Errorf("Expected 1 resident song, got %d", manager.Len())
		}
	})

	t.Run("FilenameFallback", func(t *testing.T) {
		path := filepath.Join(testDir, "mystery tune.mp3")
		if err := os.WriteFile(path, []byte("not really audio"), 0644); err != nil {
			t.Fatal(err)
		}

		song := manager.AddFromFile(path)
		if song == nil {
			t.Fatal("Expected song to be accepted")
		}
		if song.Title != "mystery tune" {
			t.Errorf("Expected filename-derived title, got %q", song.Title)
		}
		if song.Artist != "" {
			t.Errorf("Expected empty artist, got %q", song.Artist)
		}
	})
}

func TestDuplicateRejection(t *testing.T) {
	manager := newTestManager(t)
	testDir := t.TempDir()

	first := filepath.Join(testDir, "one.mp3")
	second := filepath.Join(testDir, "two.mp3")
	writeTaggedFile(t, first, "Same Song", "Same Artist")
	writeTaggedFile(t, second, "Same Song", "Same Artist")

	if song := manager.AddFromFile(first); song == nil {
		t.Fatal("First copy should be accepted")
	}
	if song := manager.AddFromFile(second); song != nil {
		t.Error("Second copy with identical (artist, title) should be rejected")
	}
	if manager.Len() != 1 {
		t.Errorf("Expected playlist length 1, got %d", manager.Len())
	}

	// Same title under a different artist is a distinct song.
	third := filepath.Join(testDir, "three.mp3")
	writeTaggedFile(t, third, "Same Song", "Other Artist")
	if song := manager.AddFromFile(third); song == nil {
		t.Error("Same title by a different artist should be accepted")
	}
	if manager.Len() != 2 {
		t.Errorf("Expected playlist length 2, got %d", manager.Len())
	}
}

func TestLoadFolder(t *testing.T) {
	manager := newTestManager(t)
	testDir := t.TempDir()

	writeTaggedFile(t, filepath.Join(testDir, "a.mp3"), "Alpha", "Artist A")
	if err := os.MkdirAll(filepath.Join(testDir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	writeTaggedFile(t, filepath.Join(testDir, "nested", "b.mp3"), "Beta", "Artist B")
	if err := os.WriteFile(filepath.Join(testDir, "cover.jpg"), []byte{0xFF, 0xD8}, 0644); err != nil {
		t.Fatal(err)
	}

	loaded := manager.LoadFolder(testDir)
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 songs loaded, got %d", len(loaded))
	}
	if manager.Len() != 2 {
		t.Errorf("Expected 2 resident songs, got %d", manager.Len())
	}
}

func TestUpdateTimesPlayed(t *testing.T) {
	manager := newTestManager(t)
	path := filepath.Join(t.TempDir(), "played.mp3")
	writeTaggedFile(t, path, "Played", "Artist")
	if manager.AddFromFile(path) == nil {
		t.Fatal("Expected song to be accepted")
	}

	for want := 1; want <= 3; want++ {
		if got := manager.UpdateTimesPlayed(0); got != want {
			t.Errorf("Play %d: expected count %d, got %d", want, want, got)
		}
	}

	song, ok := manager.SongAt(0)
	if !ok {
		t.Fatal("Expected song at index 0")
	}
	if song.TimesPlayed != 3 {
		t.Errorf("Expected in-memory count 3, got %d", song.TimesPlayed)
	}

	if got := manager.UpdateTimesPlayed(5); got != 0 {
		t.Errorf("Expected 0 for out-of-range index, got %d", got)
	}
}

func TestUpdateRating(t *testing.T) {
	manager := newTestManager(t)
	path := filepath.Join(t.TempDir(), "rated.mp3")
	writeTaggedFile(t, path, "Rated", "Artist")
	if manager.AddFromFile(path) == nil {
		t.Fatal("Expected song to be accepted")
	}

	manager.UpdateRating(0, 4)
	song, _ := manager.SongAt(0)
	if song.Rating != 4 {
		t.Errorf("Expected rating 4, got %d", song.Rating)
	}

	// Out-of-range ratings are ignored.
	manager.UpdateRating(0, 0)
	manager.UpdateRating(0, 6)
	song, _ = manager.SongAt(0)
	if song.Rating != 4 {
		t.Errorf("Expected rating unchanged at 4, got %d", song.Rating)
	}
}

func TestRatingSurvivesReload(t *testing.T) {
	manager := newTestManager(t)
	path := filepath.Join(t.TempDir(), "keeper.mp3")
	writeTaggedFile(t, path, "Keeper", "Artist")
	if manager.AddFromFile(path) == nil {
		t.Fatal("Expected song to be accepted")
	}
	manager.UpdateRating(0, 5)

	manager.Clear()
	if manager.Len() != 0 {
		t.Fatalf("Expected empty playlist after clear, got %d", manager.Len())
	}

	song := manager.AddFromFile(path)
	if song == nil {
		t.Fatal("Expected song to be re-accepted")
	}
	if song.Rating != 5 {
		t.Errorf("Expected rating 5 restored on reload, got %d", song.Rating)
	}
}

func TestSaveAndLoadPlaylist(t *testing.T) {
	manager := newTestManager(t)
	testDir := t.TempDir()

	paths := []string{
		filepath.Join(testDir, "one.mp3"),
		filepath.Join(testDir, "two.mp3"),
	}
	writeTaggedFile(t, paths[0], "One", "Artist A")
	writeTaggedFile(t, paths[1], "Two", "Artist B")
	if got := manager.LoadFiles(paths); len(got) != 2 {
		t.Fatalf("Expected 2 songs loaded, got %d", len(got))
	}

	dest := filepath.Join(testDir, "mylist") // extension added on save
	if err := manager.Save(dest); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	manager.Clear()
	loaded := manager.LoadPlaylist(dest + ".db")
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 songs after reload, got %d", len(loaded))
	}

	songs := manager.Songs()
	if songs[0].Title != "One" || songs[1].Title != "Two" {
		t.Errorf("Reload lost order: %q, %q", songs[0].Title, songs[1].Title)
	}
}

func TestLoadPlaylistMissingFile(t *testing.T) {
	manager := newTestManager(t)
	events := manager.Subscribe()

	if loaded := manager.LoadPlaylist(filepath.Join(t.TempDir(), "absent.db")); loaded != nil {
		t.Error("Expected nil for missing playlist file")
	}

	select {
	case event := <-events:
		if event.Kind != EventLoadFailed {
			t.Errorf("Expected EventLoadFailed, got %v", event.Kind)
		}
	default:
		t.Error("Expected a load-failed event")
	}
}

func TestRemove(t *testing.T) {
	manager := newTestManager(t)
	testDir := t.TempDir()

	writeTaggedFile(t, filepath.Join(testDir, "a.mp3"), "Alpha", "X")
	writeTaggedFile(t, filepath.Join(testDir, "b.mp3"), "Beta", "Y")
	manager.LoadFolder(testDir)

	if !manager.Remove(0) {
		t.Fatal("Remove failed")
	}
	if manager.Len() != 1 {
		t.Errorf("Expected 1 song left, got %d", manager.Len())
	}
	song, _ := manager.SongAt(0)
	if song.Title != "Beta" {
		t.Errorf("Expected remaining song 'Beta', got %q", song.Title)
	}

	if manager.Remove(7) {
		t.Error("Expected Remove to reject out-of-range index")
	}
}

func TestFilter(t *testing.T) {
	manager := newTestManager(t)
	testDir := t.TempDir()

	writeTaggedFile(t, filepath.Join(testDir, "a.mp3"), "Song A", "Miles Davis")
	writeTaggedFile(t, filepath.Join(testDir, "b.mp3"), "Song B", "Miles Davis")
	writeTaggedFile(t, filepath.Join(testDir, "c.mp3"), "Song C", "Bill Evans")
	manager.LoadFolder(testDir)

	manager.Filter(FilterArtist, "miles davis")
	if manager.Len() != 2 {
		t.Errorf("Expected 2 songs after artist filter, got %d", manager.Len())
	}

	manager.Filter(FilterTitle, "Song A")
	if manager.Len() != 1 {
		t.Errorf("Expected 1 song after title filter, got %d", manager.Len())
	}

	// The filter is a view: the store still holds the full set.
	songs := manager.Songs()
	if len(songs) != 1 || songs[0].Title != "Song A" {
		t.Fatalf("Unexpected filtered view: %v", songs)
	}
}

func TestResolveMissing(t *testing.T) {
	t.Run("FileStillPresent", func(t *testing.T) {
		manager := newTestManager(t)
		path := filepath.Join(t.TempDir(), "here.mp3")
		writeTaggedFile(t, path, "Here", "Artist")
		manager.AddFromFile(path)

		song, ok := manager.ResolveMissing(0)
		if !ok || song == nil {
			t.Fatal("Expected song to resolve")
		}
		if song.Path != path {
			t.Errorf("Expected unchanged path, got %q", song.Path)
		}
	})

	t.Run("MovedFileRecovered", func(t *testing.T) {
		manager := newTestManager(t)
		events := manager.Subscribe()
		testDir := t.TempDir()

		oldPath := filepath.Join(testDir, "moved.mp3")
		writeTaggedFile(t, oldPath, "Moved", "Artist")
		manager.AddFromFile(oldPath)

		// Move the file into a sibling subdirectory, keeping the name.
		newDir := filepath.Join(testDir, "archive")
		if err := os.MkdirAll(newDir, 0755); err != nil {
			t.Fatal(err)
		}
		newPath := filepath.Join(newDir, "moved.mp3")
		if err := os.Rename(oldPath, newPath); err != nil {
			t.Fatal(err)
		}

		song, ok := manager.ResolveMissing(0)
		if !ok || song == nil {
			t.Fatal("Expected moved file to be recovered")
		}
		if song.Path != newPath {
			t.Errorf("Expected rewritten path %q, got %q", newPath, song.Path)
		}
		if manager.Len() != 1 {
			t.Errorf("Expected song to stay resident, got length %d", manager.Len())
		}

		select {
		case event := <-events:
			if event.Kind != EventSongRecovered {
				t.Errorf("Expected EventSongRecovered, got %v", event.Kind)
			}
		default:
			t.Error("Expected a recovery event")
		}
	})

	t.Run("UnrecoverableRemoved", func(t *testing.T) {
		manager := newTestManager(t)
		events := manager.Subscribe()

		path := filepath.Join(t.TempDir(), "gone.mp3")
		writeTaggedFile(t, path, "Gone", "Artist")
		manager.AddFromFile(path)
		if err := os.Remove(path); err != nil {
			t.Fatal(err)
		}

		song, ok := manager.ResolveMissing(0)
		if ok || song != nil {
			t.Fatal("Expected resolution to fail")
		}
		if manager.Len() != 0 {
			t.Errorf("Expected song removed, got length %d", manager.Len())
		}

		var kinds []EventKind
		for len(events) > 0 {
			kinds = append(kinds, (<-events).Kind)
		}
		if len(kinds) != 2 || kinds[0] != EventFileMissing || kinds[1] != EventPlaylistEmpty {
			t.Errorf("Expected file-missing then playlist-empty, got %v", kinds)
		}
	})
}

func TestEnrich(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	t.Run("FillsMissingArtist", func(t *testing.T) {
		identifier := &stubIdentifier{artist: "Found Artist", title: "Found Title"}
		manager.SetProviders(identifier, nil, nil)

		enriched := manager.Enrich(ctx, models.Song{Title: "stem", Path: "/music/stem.mp3"})
		if enriched.Artist != "Found Artist" || enriched.Title != "Found Title" {
			t.Errorf("Expected identified metadata, got %q by %q", enriched.Title, enriched.Artist)
		}
		if identifier.calls != 1 {
			t.Errorf("Expected 1 identification call, got %d", identifier.calls)
		}
	})

	t.Run("SkipsTaggedSong", func(t *testing.T) {
		identifier := &stubIdentifier{artist: "Wrong", title: "Wrong"}
		manager.SetProviders(identifier, nil, nil)

		song := models.Song{Title: "Known", Artist: "Known Artist", Path: "/music/known.mp3"}
		enriched := manager.Enrich(ctx, song)
		if enriched != song {
			t.Errorf("Expected song unchanged, got %+v", enriched)
		}
		if identifier.calls != 0 {
			t.Errorf("Expected no identification call, got %d", identifier.calls)
		}
	})
}

func TestRecommendations(t *testing.T) {
	ctx := context.Background()

	t.Run("CachedPerSeedArtist", func(t *testing.T) {
		manager := newTestManager(t)
		recommender := &stubRecommender{}
		manager.SetProviders(nil, nil, recommender)

		first := manager.RecommendationsFor(ctx, "Seed Artist", "Seed Song")
		if len(first) == 0 {
			t.Fatal("Expected recommendations")
		}
		second := manager.RecommendationsFor(ctx, "Seed Artist", "Another Song")
		if len(second) == 0 {
			t.Fatal("Expected cached recommendations")
		}
		if recommender.albumCalls != 1 {
			t.Errorf("Expected 1 lookup for the same seed artist, got %d", recommender.albumCalls)
		}

		manager.RecommendationsFor(ctx, "Other Artist", "Other Song")
		if recommender.albumCalls != 2 {
			t.Errorf("Expected a fresh lookup for a new seed artist, got %d", recommender.albumCalls)
		}
	})

	t.Run("TrackFallback", func(t *testing.T) {
		manager := newTestManager(t)
		recommender := &stubRecommender{albumEmpty: true}
		manager.SetProviders(nil, nil, recommender)

		recs := manager.RecommendationsFor(ctx, "Seed Artist", "Seed Song")
		if len(recs) == 0 {
			t.Fatal("Expected recommendations from track fallback")
		}
		if recommender.albumCalls != 1 || recommender.trackCalls != 1 {
			t.Errorf("Expected album then track lookup, got %d/%d",
				recommender.albumCalls, recommender.trackCalls)
		}
	})

	t.Run("SkippedForEstablishedSong", func(t *testing.T) {
		manager := newTestManager(t)
		recommender := &stubRecommender{}
		manager.SetProviders(nil, nil, recommender)

		path := filepath.Join(t.TempDir(), "fav.mp3")
		writeTaggedFile(t, path, "Favorite", "Artist")
		manager.AddFromFile(path)
		manager.UpdateTimesPlayed(0)
		manager.UpdateTimesPlayed(0)

		if recs := manager.RecommendationsFor(ctx, "Artist", "Favorite"); recs != nil {
			t.Error("Expected no fetch for an established song")
		}
		if recommender.albumCalls != 0 || recommender.trackCalls != 0 {
			t.Error("Expected no provider calls for an established song")
		}
	})

	t.Run("NoProvider", func(t *testing.T) {
		manager := newTestManager(t)
		if recs := manager.RecommendationsFor(ctx, "Artist", "Song"); recs != nil {
			t.Error("Expected nil without a recommender")
		}
	})
}

// TestPlaylistSession exercises the end-to-end flow: three songs where two
// share an artist, a fourth file duplicating a resident (artist, title) pair,
// plays, a rating, and a save/reload cycle.
func TestPlaylistSession(t *testing.T) {
	manager := newTestManager(t)
	testDir := t.TempDir()

	writeTaggedFile(t, filepath.Join(testDir, "1.mp3"), "Track One", "Artist A")
	writeTaggedFile(t, filepath.Join(testDir, "2.mp3"), "Track Two", "Artist A")
	writeTaggedFile(t, filepath.Join(testDir, "3.mp3"), "Track One", "Artist B")
	writeTaggedFile(t, filepath.Join(testDir, "4.mp3"), "Track One", "Artist A") // duplicate pair

	loaded := manager.LoadFolder(testDir)
	if len(loaded) != 3 {
		t.Fatalf("Expected 3 accepted songs, got %d", len(loaded))
	}

	manager.UpdateTimesPlayed(0)
	manager.UpdateTimesPlayed(0)
	manager.UpdateTimesPlayed(1)
	manager.UpdateRating(2, 3)

	songs := manager.Songs()
	if songs[0].TimesPlayed != 2 || songs[1].TimesPlayed != 1 || songs[2].TimesPlayed != 0 {
		t.Errorf("Unexpected play counts: %d, %d, %d",
			songs[0].TimesPlayed, songs[1].TimesPlayed, songs[2].TimesPlayed)
	}
	if songs[2].Rating != 3 {
		t.Errorf("Expected rating 3 on third song, got %d", songs[2].Rating)
	}

	dest := filepath.Join(testDir, "session.db")
	if err := manager.Save(dest); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	manager.Clear()

	reloaded := manager.LoadPlaylist(dest)
	if len(reloaded) != 3 {
		t.Fatalf("Expected 3 songs after reload, got %d", len(reloaded))
	}

	// Play counts reset on reload (fresh inserts), ratings survive.
	songs = manager.Songs()
	for i, song := range songs {
		if song.TimesPlayed != 0 {
			t.Errorf("Song %d: expected play count reset, got %d", i, song.TimesPlayed)
		}
	}
	if songs[2].Rating != 3 {
		t.Errorf("Expected rating 3 to survive reload, got %d", songs[2].Rating)
	}
}
