package ytsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// searchOverfetch is the number of extra results requested beyond
	// maxResults. The API occasionally returns channel or playlist
	// entries even with type=video set, and those are filtered out
	// client-side.
	searchOverfetch = 5

	// videoIDLength is the fixed length of a YouTube video ID.
	videoIDLength = 11

	searchTimeout = 5 * time.Second
)

// Search finds embeddable videos matching query and returns up to
// maxResults of them. The request is bounded by searchTimeout in
// addition to ctx.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("videoEmbeddable", "true")
	params.Set("maxResults", strconv.Itoa(maxResults+searchOverfetch))
	params.Set("q", query)
	params.Set("key", c.apiKey)

	endpoint := c.baseURL + "/search?" + params.Encode()
	c.logDebugf("ytsearch: GET %s/search q=%q maxResults=%d", c.baseURL, query, maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ytsearch: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ytsearch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ytsearch: read response: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ytsearch: parse response: %w", err)
	}

	if parsed.Error != nil {
		return nil, &APIError{Code: parsed.Error.Code, Message: parsed.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	results := make([]Result, 0, maxResults)
	for _, item := range parsed.Items {
		if len(item.ID.VideoID) != videoIDLength {
			continue
		}
		thumb := item.Snippet.Thumbnails.Medium.URL
		if thumb == "" {
			thumb = item.Snippet.Thumbnails.Default.URL
		}
		results = append(results, Result{
			VideoID:   item.ID.VideoID,
			Title:     item.Snippet.Title,
			Channel:   item.Snippet.ChannelTitle,
			Thumbnail: thumb,
		})
		if len(results) == maxResults {
			break
		}
	}

	c.logDebugf("ytsearch: %d results for %q", len(results), query)
	return results, nil
}
