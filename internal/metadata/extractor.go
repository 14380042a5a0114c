package metadata

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"smfplayer/pkg/models"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// tagSeparators are the characters at which artist and title tag values are
// truncated. Strips featured-artist and parenthetical noise; a heuristic,
// not a guarantee of correctness.
const tagSeparators = ",()?"

// Extractor handles metadata extraction from audio files
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
}

// NewExtractor creates a new metadata extractor
func NewExtractor(supportedFormats []string, logger *logrus.Logger) *Extractor {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Extractor{
		supportedFormats: supportedFormats,
		logger:           logger,
	}
}

// Extract reads embedded tags and duration from an audio file. It is total:
// any parse failure falls back to a filename-derived title, empty
// artist/year and zero duration rather than an error.
func (e *Extractor) Extract(filePath string) models.Song {
	song := models.Song{
		Title: titleFromFilename(filePath),
		Path:  filePath,
	}

	song.Duration = e.calculateDuration(filePath)

	file, err := os.Open(filePath)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to open audio file, using filename metadata")
		return song
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to extract tags, using filename metadata")
		return song
	}

	if title := cleanTagValue(metadata.Title()); title != "" {
		song.Title = title
	}
	song.Artist = cleanTagValue(metadata.Artist())
	if year := metadata.Year(); year > 0 {
		song.Year = strconv.Itoa(year)
	}

	e.logger.WithFields(logrus.Fields{
		"filePath": filePath,
		"title":    song.Title,
		"artist":   song.Artist,
		"duration": song.Duration,
	}).Debug("Extracted metadata")

	return song
}

// cleanTagValue truncates a tag value at the first separator character and
// trims surrounding whitespace.
func cleanTagValue(value string) string {
	if idx := strings.IndexAny(value, tagSeparators); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}

func titleFromFilename(filePath string) string {
	filename := filepath.Base(filePath)
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// calculateDuration returns the duration of an audio file in seconds, or 0
// when it cannot be derived from the stream.
func (e *Extractor) calculateDuration(filePath string) int {
	var (
		duration int
		err      error
	)

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp3":
		duration, err = durationMP3(filePath)
	case ".flac":
		duration, err = durationFLAC(filePath)
	case ".wav":
		duration, err = durationWAV(filePath)
	default:
		return 0
	}

	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to calculate duration, setting to 0")
		return 0
	}
	return duration
}

// MP3 duration by decoding frame headers; no bitrate estimation fallback.
func durationMP3(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := mp3.NewDecoder(f)
	var total float64
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return 0, err
			}
			break // partial decode; use what we have
		}
		total += fr.Duration().Seconds()
		frames++
	}
	return int(total + 0.5), nil
}

// FLAC duration via STREAMINFO metadata block
func durationFLAC(path string) (int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples == 0 || si.SampleRate == 0 {
		return 0, errors.New("flac stream missing sample info")
	}
	secs := float64(si.NSamples) / float64(si.SampleRate)
	return int(secs + 0.5), nil
}

// WAV duration from raw sample frame count and sample rate.
func durationWAV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, errors.New("invalid wav file")
	}
	dur, err := dec.Duration()
	if err != nil {
		return 0, err
	}
	return int(dur.Seconds() + 0.5), nil
}

// EmbeddedArt returns cover art bytes embedded in the file's tags, or nil
// when none can be read.
func (e *Extractor) EmbeddedArt(filePath string) []byte {
	file, err := os.Open(filePath)
	if err != nil {
		return nil
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Debug("No readable tags for embedded art")
		return nil
	}

	if picture := metadata.Picture(); picture != nil {
		return picture.Data
	}
	return nil
}

// ArtMimeType guesses the MIME type of embedded art bytes.
func ArtMimeType(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}
	if data[0] == 0xFF && data[1] == 0xD8 {
		return "image/jpeg"
	}
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 {
		return "image/gif"
	}
	return "application/octet-stream"
}

// IsSupported checks if a file has one of the supported audio extensions.
func (e *Extractor) IsSupported(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
