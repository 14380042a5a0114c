package models

import "fmt"

// Song represents one entry in the active playlist. Path is the durable
// identity key; at most one Song per path exists in the store at a time.
type Song struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"` // may be empty when tags carry no artist
	Duration    int    `json:"duration"` // in seconds
	Year        string `json:"year,omitempty"`
	Path        string `json:"-"` // don't expose file path to client
	TimesPlayed int    `json:"timesPlayed"`
	Rating      int    `json:"rating"` // 0-5, 0 = unrated
}

// Recommendation is a candidate track suggested for a seed artist. It is
// session state only and never persisted.
type Recommendation struct {
	Artist         string `json:"artist"`
	Title          string `json:"title"`
	PreviewURL     string `json:"previewUrl"`
	SeedArtist     string `json:"seedArtist"` // provider-side artist ID
	SeedArtistName string `json:"seedArtistName"`
}

// PreviewDuration is the fixed display duration for recommendation previews.
const PreviewDuration = "0:30"

// FormatDuration renders a duration in seconds as M:SS for display and for
// the persisted playlist table.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
