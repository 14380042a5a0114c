package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"time"

	"smfplayer/internal/config"
	"smfplayer/internal/provider"

	"github.com/sirupsen/logrus"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	// Some art URLs serve WebP; registering the decoder keeps image.Decode total.
	_ "github.com/chai2010/webp"
)

// Client fetches track info and album art from the Last.fm web API.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// New creates a new Last.fm client from provider configuration.
func New(cfg config.ProvidersConfig, logger *logrus.Logger) *Client {
	return &Client{
		apiKey:     cfg.LastFMKey,
		apiURL:     "https://ws.audioscrobbler.com/2.0/",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Configured reports whether the API key is usable.
func (c *Client) Configured() bool {
	return config.CredentialConfigured(c.apiKey)
}

// trackInfo fetches track.getInfo for (artist, track).
func (c *Client) trackInfo(ctx context.Context, artist, track string) (*trackDetail, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("lastfm API key not configured")
	}

	params := url.Values{}
	params.Set("method", "track.getInfo")
	params.Set("format", "json")
	params.Set("api_key", c.apiKey)
	params.Set("artist", artist)
	params.Set("track", track)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lastfm request: %w", err)
	}
	req.Header.Set("User-Agent", "smfplayer/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lastfm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("lastfm returned %d: %s", resp.StatusCode, body)
	}

	var info trackInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode lastfm response: %w", err)
	}
	if info.Track == nil {
		return nil, fmt.Errorf("lastfm track not found: %s - %s", artist, track)
	}
	return info.Track, nil
}

// AlbumArtURL returns the album art URL for a track at the requested size
// tier, or an empty string when the track has no art at that tier.
func (c *Client) AlbumArtURL(ctx context.Context, artist, track string, size provider.ArtSize) (string, error) {
	info, err := c.trackInfo(ctx, artist, track)
	if err != nil {
		return "", err
	}
	if info.Album == nil {
		return "", nil
	}

	idx := int(size)
	if idx < 0 || idx >= len(info.Album.Images) {
		return "", nil
	}
	return info.Album.Images[idx].URL, nil
}

// AlbumArt downloads and decodes the album art for a track. The image comes
// back decoded so callers can resize and display it without re-parsing.
func (c *Client) AlbumArt(ctx context.Context, artist, track string, size provider.ArtSize) (image.Image, error) {
	artURL, err := c.AlbumArtURL(ctx, artist, track, size)
	if err != nil {
		return nil, err
	}
	if artURL == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create art request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("art download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("art download returned %d", resp.StatusCode)
	}

	img, format, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode album art: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"artist": artist,
		"track":  track,
		"format": format,
		"size":   size.String(),
	}).Debug("Downloaded album art")
	return img, nil
}

// AlbumName returns the album title for a track, or an empty string when the
// track carries no album info.
func (c *Client) AlbumName(ctx context.Context, artist, track string) (string, error) {
	info, err := c.trackInfo(ctx, artist, track)
	if err != nil {
		return "", err
	}
	if info.Album == nil {
		return "", nil
	}
	return info.Album.Title, nil
}

// Last.fm API response types

type trackInfoResponse struct {
	Track *trackDetail `json:"track"`
}

type trackDetail struct {
	Name   string       `json:"name"`
	Album  *albumDetail `json:"album"`
	Artist artistDetail `json:"artist"`
}

type albumDetail struct {
	Title  string     `json:"title"`
	Images []artImage `json:"image"`
}

type artistDetail struct {
	Name string `json:"name"`
}

type artImage struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}
