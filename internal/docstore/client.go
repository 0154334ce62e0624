// Package docstore talks to the external identity/document-store service that
// owns per-user watchlist documents. The lookup services never touch this;
// only the watchlist layer does.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/finboard/finboard/internal/watchlist"
)

// Client is an HTTP implementation of watchlist.Store.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a document-store client for the given endpoint.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("component", "docstore").Logger(),
	}
}

// Load fetches the user's document. A 404 yields an empty document, so new
// users start with empty watchlists rather than an error.
func (c *Client) Load(ctx context.Context, userID string) (watchlist.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.documentURL(userID), nil)
	if err != nil {
		return watchlist.Document{}, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return watchlist.Document{}, fmt.Errorf("load document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return watchlist.Document{UserID: userID}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return watchlist.Document{}, fmt.Errorf("load document: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var doc watchlist.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return watchlist.Document{}, fmt.Errorf("decode document: %w", err)
	}
	if doc.UserID == "" {
		doc.UserID = userID
	}
	return doc, nil
}

// Save writes the user's document back to the store.
func (c *Client) Save(ctx context.Context, userID string, doc watchlist.Document) error {
	doc.UserID = userID
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.documentURL(userID), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("save document: HTTP %d: %s", resp.StatusCode, string(body))
	}

	c.log.Debug().Str("user", userID).Msg("document saved")
	return nil
}

func (c *Client) documentURL(userID string) string {
	return fmt.Sprintf("%s/v1/users/%s/document", c.baseURL, userID)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
