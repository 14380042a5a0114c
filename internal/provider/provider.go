// Package provider contains the external metadata service clients
// (AcoustID fingerprinting, Last.fm track info, Spotify recommendations).
//
// The capability interfaces the engine consumes are defined in
// internal/playlist, following the Go convention of defining interfaces
// where they are consumed. Each sub-package here implements one of them.
// Every client degrades gracefully: missing credentials make Configured()
// report false, and network or payload failures surface as errors the
// engine logs and treats as empty results.
package provider

// ArtSize selects an album art size tier as exposed by the track info
// service, indexed 0-3.
type ArtSize int

const (
	ArtSmall ArtSize = iota
	ArtMedium
	ArtLarge
	ArtExtraLarge
)

// String returns the size tier name used in lookup payloads.
func (s ArtSize) String() string {
	switch s {
	case ArtSmall:
		return "small"
	case ArtMedium:
		return "medium"
	case ArtExtraLarge:
		return "extralarge"
	default:
		return "large"
	}
}
