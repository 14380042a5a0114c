package acoustid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"smfplayer/internal/config"

	"github.com/sirupsen/logrus"
)

// Client identifies audio files via the AcoustID lookup service. The
// acoustic fingerprint itself is computed by the Chromaprint fpcalc binary.
type Client struct {
	apiKey     string
	fpcalcPath string
	apiURL     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// New creates a new AcoustID client from provider configuration.
func New(cfg config.ProvidersConfig, logger *logrus.Logger) *Client {
	fpcalcPath := cfg.FpcalcPath
	if fpcalcPath == "" {
		fpcalcPath = "fpcalc"
	}
	return &Client{
		apiKey:     cfg.AcoustIDKey,
		fpcalcPath: fpcalcPath,
		apiURL:     "https://api.acoustid.org/v2/lookup",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Configured reports whether the API key is usable.
func (c *Client) Configured() bool {
	return config.CredentialConfigured(c.apiKey)
}

// Identify fingerprints the file and looks it up, returning the first result
// carrying both a non-empty title and artist. A lookup with no usable match
// returns empty strings and a nil error.
func (c *Client) Identify(ctx context.Context, filePath string) (artist, title string, err error) {
	if !c.Configured() {
		return "", "", fmt.Errorf("acoustid API key not configured")
	}

	duration, fingerprint, err := c.fingerprint(ctx, filePath)
	if err != nil {
		return "", "", fmt.Errorf("fingerprint failed: %w", err)
	}

	params := url.Values{}
	params.Set("client", c.apiKey)
	params.Set("meta", "recordings+compress")
	params.Set("duration", strconv.Itoa(duration))
	params.Set("fingerprint", fingerprint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create acoustid request: %w", err)
	}
	req.Header.Set("User-Agent", "smfplayer/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("acoustid lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", "", fmt.Errorf("acoustid lookup returned %d: %s", resp.StatusCode, body)
	}

	var lookup lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return "", "", fmt.Errorf("failed to decode acoustid response: %w", err)
	}
	if lookup.Status != "ok" {
		return "", "", fmt.Errorf("acoustid API error: %s", lookup.Error.Message)
	}

	artist, title = parseLookup(lookup)
	c.logger.WithFields(logrus.Fields{
		"filePath": filePath,
		"artist":   artist,
		"title":    title,
	}).Debug("AcoustID lookup finished")
	return artist, title, nil
}

// fingerprint shells out to fpcalc and parses its JSON output.
func (c *Client) fingerprint(ctx context.Context, filePath string) (int, string, error) {
	cmd := exec.CommandContext(ctx, c.fpcalcPath, "-json", filePath)
	out, err := cmd.Output()
	if err != nil {
		return 0, "", fmt.Errorf("fpcalc failed: %w", err)
	}

	var result struct {
		Duration    float64 `json:"duration"`
		Fingerprint string  `json:"fingerprint"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return 0, "", fmt.Errorf("failed to parse fpcalc output: %w", err)
	}
	if result.Fingerprint == "" {
		return 0, "", fmt.Errorf("fpcalc produced no fingerprint")
	}
	return int(result.Duration), result.Fingerprint, nil
}

// parseLookup walks the results in order and returns the first recording
// with both a non-empty title and artist. First hit wins.
func parseLookup(lookup lookupResponse) (artist, title string) {
	for _, result := range lookup.Results {
		for _, rec := range result.Recordings {
			if rec.Title == "" || len(rec.Artists) == 0 {
				continue
			}
			artist := cleanArtist(rec.Artists[0].Name)
			title := strings.TrimSpace(rec.Title)
			if artist != "" && title != "" {
				return artist, title
			}
		}
	}
	return "", ""
}

// cleanArtist collapses multi-artist credit strings to the first credited
// artist.
func cleanArtist(artist string) string {
	if idx := strings.IndexAny(artist, ";,"); idx >= 0 {
		artist = artist[:idx]
	}
	return strings.TrimSpace(artist)
}

// AcoustID API response types

type lookupResponse struct {
	Status  string   `json:"status"`
	Error   apiError `json:"error"`
	Results []result `json:"results"`
}

type apiError struct {
	Message string `json:"message"`
}

type result struct {
	ID         string      `json:"id"`
	Score      float64     `json:"score"`
	Recordings []recording `json:"recordings"`
}

type recording struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Artists []creditName `json:"artists"`
}

type creditName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
