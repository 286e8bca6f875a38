// Package serp is a small client for SerpAPI's Google web search engine,
// shared by the review and research stages.
package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNoKey is returned when the client has no API key.
var ErrNoKey = errors.New("SerpAPI key not configured")

// Organic is one organic search hit.
type Organic struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Client queries SerpAPI.
type Client struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

// New creates a client. timeout <= 0 uses 15s.
func New(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		APIKey:  apiKey,
		BaseURL: "https://serpapi.com/search",
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a key is present.
func (c *Client) Configured() bool {
	return c != nil && c.APIKey != ""
}

// Search returns up to num organic results for query.
func (c *Client) Search(ctx context.Context, query string, num int) ([]Organic, error) {
	if !c.Configured() {
		return nil, ErrNoKey
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))
	params.Set("api_key", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("serpapi returned %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		Error          string    `json:"error"`
		OrganicResults []Organic `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding serpapi response: %w", err)
	}
	if data.Error != "" {
		return nil, fmt.Errorf("serpapi: %s", data.Error)
	}

	results := data.OrganicResults
	if num > 0 && len(results) > num {
		results = results[:num]
	}
	return results, nil
}
