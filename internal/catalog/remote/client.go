// Package remote talks to the read-only remote catalog source.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"product-catalog/internal/catalog"
)

const (
	DefaultBaseURL = "https://fakestoreapi.com"

	requestTimeout    = 10 * time.Second
	defaultAttempts   = 4
	defaultRetryDelay = time.Second
)

// Client fetches products from the remote catalog API. Transient failures
// are retried with a doubling delay; the caller decides how to degrade once
// the attempts are exhausted.
type Client struct {
	baseURL    string
	http       *http.Client
	logger     *slog.Logger
	attempts   int
	retryDelay time.Duration
}

type Option func(*Client)

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: requestTimeout},
		logger:     logger,
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchProducts retrieves the full remote product list in source order.
func (c *Client) FetchProducts(ctx context.Context) ([]catalog.Product, error) {
	var list []catalog.Product
	if err := c.getJSON(ctx, "/products", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// FetchProduct retrieves a single product by ID. A 404 from the source maps
// to catalog.ErrNotFound and is not retried.
func (c *Client) FetchProduct(ctx context.Context, id int64) (catalog.Product, error) {
	var p catalog.Product
	if err := c.getJSON(ctx, fmt.Sprintf("/products/%d", id), &p); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := c.getJSONOnce(ctx, path, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, catalog.ErrNotFound) {
			return err
		}

		lastErr = err
		c.logger.Warn("remote catalog request failed",
			"path", path,
			"attempt", attempt,
			"error", err,
		)
	}

	return lastErr
}

func (c *Client) getJSONOnce(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return catalog.ErrNotFound
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
