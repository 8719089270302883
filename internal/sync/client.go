// Package sync implements the node-level synchronization protocol: nodes
// and their content travel as JSON text blobs over the push/pull HTTP
// endpoints of a sync backend.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"scrapyard/internal/adapter"
	"scrapyard/internal/marshal"
)

// Content blob header, present for format identification. Readers do not
// consume it today.
const (
	Format  = "Scrapyard"
	Version = 1
)

// Client posts sync payloads to the backend endpoints.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a sync client for the backend at baseURL. A nil
// client falls back to http.DefaultClient.
func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{baseURL: baseURL, client: client}
}

// post sends a JSON payload and returns the parsed response object, or
// nil for an empty response body. Non-success statuses fail with an
// HTTPError.
func (c *Client) post(ctx context.Context, path string, payload any) (*marshal.Object, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sync payload: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &adapter.HTTPError{Status: resp.StatusCode, URL: url}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	obj := marshal.NewObject()
	if err := obj.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to parse sync response: %w", err)
	}
	return obj, nil
}
