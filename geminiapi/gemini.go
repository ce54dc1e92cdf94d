// Package geminiapi contains a minimal client for the Google Gemini
// generateContent API, used for the bot's AI text commands.
package geminiapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// DefaultBaseURL is the Gemini REST endpoint prefix.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultModel is used when Client.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// ErrEmptyResponse signals a successful upstream call that returned no text.
var ErrEmptyResponse = errors.New("empty response from gemini")

// Client calls the Gemini generateContent endpoint. APIKey is required;
// BaseURL and HTTPClient are overridable for tests.
type Client struct {
	APIKey     string
	Model      string
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

func (c *Client) model() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel
}

// Content is one turn of a conversation, role "user" or "model".
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type generateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content Content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate produces a one-shot completion for a prompt.
// Returns ErrEmptyResponse when the upstream call succeeds without text.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return c.generate(ctx, []Content{{Role: "user", Parts: []Part{{Text: prompt}}}}, maxTokens)
}

// Chat produces a completion for a message given prior conversation turns.
func (c *Client) Chat(ctx context.Context, history []Content, message string, maxTokens int) (string, error) {
	contents := make([]Content, 0, len(history)+1)
	contents = append(contents, history...)
	contents = append(contents, Content{Role: "user", Parts: []Part{{Text: message}}})
	return c.generate(ctx, contents, maxTokens)
}

func (c *Client) generate(ctx context.Context, contents []Content, maxTokens int) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("gemini api key empty")
	}

	payload, err := json.Marshal(generateRequest{
		Contents:         contents,
		GenerationConfig: generationConfig{MaxOutputTokens: maxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL(), c.model())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.APIKey)

	resp, err := c.http().Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini request failed: status %d: %s", resp.StatusCode, excerpt(body))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("non-JSON response: %s", excerpt(body))
	}
	if out.Error != nil {
		return "", fmt.Errorf("gemini error %d (%s): %s", out.Error.Code, out.Error.Status, out.Error.Message)
	}

	text := ""
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			text += p.Text
		}
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// excerpt truncates an upstream body for safe inclusion in error messages.
func excerpt(body []byte) string {
	const limit = 200
	s := string(body)
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
