package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"smfplayer/internal/config"
	"smfplayer/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	searchPageSize = 50
	// Offset caps keep the artist search from walking the whole catalogue.
	albumSearchMaxOffset = 100
	trackSearchMaxOffset = 150

	recommendationLimit = 20
)

// Client queries the Spotify Web API for artist lookups and track
// recommendations using the client-credentials flow.
type Client struct {
	clientID     string
	clientSecret string
	apiURL       string
	tokenURL     string
	httpClient   *http.Client
	logger       *logrus.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New creates a new Spotify client from provider configuration.
func New(cfg config.ProvidersConfig, logger *logrus.Logger) *Client {
	return &Client{
		clientID:     cfg.SpotifyClientID,
		clientSecret: cfg.SpotifyClientSecret,
		apiURL:       "https://api.spotify.com/v1",
		tokenURL:     "https://accounts.spotify.com/api/token",
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

// Configured reports whether both client credentials are usable.
func (c *Client) Configured() bool {
	return config.CredentialConfigured(c.clientID) && config.CredentialConfigured(c.clientSecret)
}

// token returns a valid access token, fetching a fresh one when the cached
// token is missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request returned %d: %s", resp.StatusCode, body)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access token")
	}

	c.accessToken = tok.AccessToken
	// Renew a minute early so in-flight requests don't race the expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create spotify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spotify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("spotify returned %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode spotify response: %w", err)
	}
	return nil
}

// SearchArtistByAlbum pages through album search results looking for an
// album whose first credited artist matches artistName exactly
// (case-insensitive) and returns that artist's ID.
func (c *Client) SearchArtistByAlbum(ctx context.Context, artistName, albumName string) (string, error) {
	for offset := 0; offset < albumSearchMaxOffset; offset += searchPageSize {
		params := url.Values{}
		params.Set("q", fmt.Sprintf("album:%s artist:%s", albumName, artistName))
		params.Set("type", "album")
		params.Set("limit", strconv.Itoa(searchPageSize))
		params.Set("offset", strconv.Itoa(offset))

		var result searchResponse
		if err := c.get(ctx, "/search", params, &result); err != nil {
			return "", err
		}

		for _, album := range result.Albums.Items {
			if len(album.Artists) == 0 {
				continue
			}
			if strings.EqualFold(artistName, album.Artists[0].Name) {
				return album.Artists[0].ID, nil
			}
		}

		if len(result.Albums.Items) < searchPageSize {
			break
		}
	}
	return "", nil
}

// SearchArtistByTrack searches tracks and returns the primary artist ID of
// the first match.
func (c *Client) SearchArtistByTrack(ctx context.Context, artistName, trackName string) (string, error) {
	for offset := 0; offset < trackSearchMaxOffset; offset += searchPageSize {
		params := url.Values{}
		params.Set("q", fmt.Sprintf("track:%s artist:%s", trackName, artistName))
		params.Set("type", "track")
		params.Set("limit", strconv.Itoa(searchPageSize))
		params.Set("offset", strconv.Itoa(offset))

		var result searchResponse
		if err := c.get(ctx, "/search", params, &result); err != nil {
			return "", err
		}

		for _, track := range result.Tracks.Items {
			if len(track.Artists) > 0 {
				return track.Artists[0].ID, nil
			}
		}

		if len(result.Tracks.Items) < searchPageSize {
			break
		}
	}
	return "", nil
}

// RecommendationsByArtist returns candidate tracks seeded by an artist ID,
// keeping only those carrying a playable preview URL.
func (c *Client) RecommendationsByArtist(ctx context.Context, artistID string) ([]models.Recommendation, error) {
	if artistID == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("seed_artists", artistID)
	params.Set("limit", strconv.Itoa(recommendationLimit))

	var result recommendationsResponse
	if err := c.get(ctx, "/recommendations", params, &result); err != nil {
		return nil, err
	}

	var recs []models.Recommendation
	for _, track := range result.Tracks {
		if track.PreviewURL == "" || len(track.Artists) == 0 {
			continue
		}
		recs = append(recs, models.Recommendation{
			Artist:     track.Artists[0].Name,
			Title:      track.Name,
			PreviewURL: track.PreviewURL,
			SeedArtist: artistID,
		})
	}
	return recs, nil
}

// ByAlbum derives the seed artist through album-scoped search. The track
// name stands in for the album name, which works for singles and keeps the
// lookup self-contained.
func (c *Client) ByAlbum(ctx context.Context, trackName, artistName string) ([]models.Recommendation, error) {
	artistID, err := c.SearchArtistByAlbum(ctx, artistName, trackName)
	if err != nil {
		return nil, err
	}
	if artistID == "" {
		return nil, nil
	}
	return c.recommendationsFor(ctx, artistID, artistName)
}

// ByTrack derives the seed artist through track-scoped search.
func (c *Client) ByTrack(ctx context.Context, trackName, artistName string) ([]models.Recommendation, error) {
	artistID, err := c.SearchArtistByTrack(ctx, artistName, trackName)
	if err != nil {
		return nil, err
	}
	if artistID == "" {
		return nil, nil
	}
	return c.recommendationsFor(ctx, artistID, artistName)
}

func (c *Client) recommendationsFor(ctx context.Context, artistID, artistName string) ([]models.Recommendation, error) {
	recs, err := c.RecommendationsByArtist(ctx, artistID)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].SeedArtistName = artistName
	}
	c.logger.WithFields(logrus.Fields{
		"seed_artist": artistID,
		"artist":      artistName,
		"count":       len(recs),
	}).Debug("Fetched recommendations")
	return recs, nil
}

// Spotify API response types

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type searchResponse struct {
	Albums albumPage `json:"albums"`
	Tracks trackPage `json:"tracks"`
}

type albumPage struct {
	Items []albumItem `json:"items"`
}

type trackPage struct {
	Items []trackItem `json:"items"`
}

type albumItem struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Artists []artistItem `json:"artists"`
}

type trackItem struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	PreviewURL string       `json:"preview_url"`
	Artists    []artistItem `json:"artists"`
}

type artistItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type recommendationsResponse struct {
	Tracks []trackItem `json:"tracks"`
}
