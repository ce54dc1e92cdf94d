// Package w2gapi contains a minimal client for the Watch2Gether room
// creation API.
package w2gapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// DefaultBaseURL is the Watch2Gether API endpoint prefix.
const DefaultBaseURL = "https://api.w2g.tv"

// roomURLPrefix is the join-URL template applied to the stream key.
const roomURLPrefix = "https://w2g.tv/rooms/"

// Default room styling sent with every creation request.
const (
	defaultBGColor   = "#000000"
	defaultBGOpacity = "100"
)

// Room is a created Watch2Gether room.
type Room struct {
	ID        string
	StreamKey string
	URL       string
}

// Client creates Watch2Gether rooms. APIKey may be empty, which the API
// treats as unauthenticated (rate-limited) access. BaseURL and HTTPClient
// are overridable for tests.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

type createRoomRequest struct {
	APIKey    string `json:"w2g_api_key"`
	Share     string `json:"share"`
	BGColor   string `json:"bg_color"`
	BGOpacity string `json:"bg_opacity"`
}

type createRoomResponse struct {
	ID        json.Number `json:"id"`
	StreamKey string      `json:"streamkey"`
}

// CreateRoom creates a room, optionally preloading a video URL.
// The join URL is synthesized from the returned stream key.
func (c *Client) CreateRoom(ctx context.Context, videoURL string) (Room, error) {
	payload, err := json.Marshal(createRoomRequest{
		APIKey:    c.APIKey,
		Share:     videoURL,
		BGColor:   defaultBGColor,
		BGOpacity: defaultBGOpacity,
	})
	if err != nil {
		return Room{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/rooms/create.json", bytes.NewReader(payload))
	if err != nil {
		return Room{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Room{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Room{}, fmt.Errorf("w2g request failed: status %d: %s", resp.StatusCode, excerpt(body))
	}

	var out createRoomResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Room{}, fmt.Errorf("non-JSON response: %s", excerpt(body))
	}
	if out.StreamKey == "" {
		return Room{}, fmt.Errorf("w2g response missing streamkey")
	}

	return Room{
		ID:        out.ID.String(),
		StreamKey: out.StreamKey,
		URL:       roomURLPrefix + out.StreamKey,
	}, nil
}

func excerpt(body []byte) string {
	const limit = 200
	s := string(body)
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
