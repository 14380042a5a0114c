package acoustid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"smfplayer/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(apiKey string) *Client {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return New(config.ProvidersConfig{
		AcoustIDKey: apiKey,
		FpcalcPath:  "fpcalc",
	}, logger)
}

func TestConfigured(t *testing.T) {
	assert.True(t, newTestClient("real-api-key").Configured())
	assert.False(t, newTestClient("").Configured())
	assert.False(t, newTestClient("set-api-key-here").Configured())
}

func TestIdentifyNotConfigured(t *testing.T) {
	client := newTestClient("")
	_, _, err := client.Identify(context.Background(), "/music/song.mp3")
	assert.Error(t, err)
}

func TestIdentifyFingerprintFailure(t *testing.T) {
	client := newTestClient("real-api-key")
	client.fpcalcPath = "/nonexistent/fpcalc-binary"

	// The lookup endpoint must never be reached when fingerprinting fails.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Unexpected lookup request")
	}))
	defer server.Close()
	client.apiURL = server.URL

	_, _, err := client.Identify(context.Background(), "/music/song.mp3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fingerprint failed")
}

func TestParseLookup(t *testing.T) {
	t.Run("FirstUsableRecordingWins", func(t *testing.T) {
		lookup := lookupResponse{
			Status: "ok",
			Results: []result{
				{
					Recordings: []recording{
						{Title: ""}, // unusable, no title
						{Title: "No Artists"},
						{Title: "Kind of Blue", Artists: []creditName{{ID: "a1", Name: "Miles Davis"}}},
						{Title: "Second Match", Artists: []creditName{{ID: "a2", Name: "Someone Else"}}},
					},
				},
			},
		}

		artist, title := parseLookup(lookup)
		assert.Equal(t, "Miles Davis", artist)
		assert.Equal(t, "Kind of Blue", title)
	})

	t.Run("NoUsableRecording", func(t *testing.T) {
		lookup := lookupResponse{
			Status:  "ok",
			Results: []result{{Recordings: []recording{{Title: "Orphan"}}}},
		}

		artist, title := parseLookup(lookup)
		assert.Empty(t, artist)
		assert.Empty(t, title)
	})

	t.Run("EmptyResults", func(t *testing.T) {
		artist, title := parseLookup(lookupResponse{Status: "ok"})
		assert.Empty(t, artist)
		assert.Empty(t, title)
	})
}

func TestCleanArtist(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"Miles Davis", "Miles Davis"},
		{"Miles Davis; John Coltrane", "Miles Davis"},
		{"Miles Davis, John Coltrane", "Miles Davis"},
		{"  spaced  ", "spaced"},
		{"; leading separator", ""},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, cleanArtist(tc.input), "input %q", tc.input)
	}
}

func TestLookupResponseDecoding(t *testing.T) {
	// Shape check against a captured-style response body.
	body := `{
		"status": "ok",
		"results": [{
			"id": "result-id",
			"score": 0.97,
			"recordings": [{
				"id": "rec-id",
				"title": "So What",
				"artists": [{"id": "artist-id", "name": "Miles Davis"}]
			}]
		}]
	}`

	var lookup lookupResponse
	require.NoError(t, json.Unmarshal([]byte(body), &lookup))
	require.Len(t, lookup.Results, 1)
	assert.InDelta(t, 0.97, lookup.Results[0].Score, 0.001)

	artist, title := parseLookup(lookup)
	assert.Equal(t, "Miles Davis", artist)
	assert.Equal(t, "So What", title)
}
