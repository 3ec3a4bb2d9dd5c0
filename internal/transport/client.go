// Package transport performs single HTTP GET requests and hands back the raw
// status and body. It never interprets the payload.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrRequestFailed = errors.New("HTTP request failed")
	ErrBodyTooLarge  = errors.New("response body too large")
)

// Response is a completed HTTP exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// Config holds transport configuration.
type Config struct {
	Timeout time.Duration
	// MaxBodyBytes caps the number of body bytes read. Zero means unlimited.
	MaxBodyBytes int64
	// Accept is sent as the Accept header when set.
	Accept    string
	UserAgent string
}

// Client is a net/http backed transport.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// NewClient creates a new transport client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// Get issues a GET against rawURL. Any non-nil error means no response was
// obtained; HTTP error statuses are returned as a Response, not an error.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	if c.config.Accept != "" {
		req.Header.Set("Accept", c.config.Accept)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error().Err(err).Str("url", rawURL).Msg("HTTP request failed")
		}
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if c.config.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, c.config.MaxBodyBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		c.logger.Error().Err(err).Str("url", rawURL).Msg("Failed to read response body")
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if c.config.MaxBodyBytes > 0 && int64(len(data)) > c.config.MaxBodyBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, c.config.MaxBodyBytes)
	}

	c.logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Msg("HTTP request completed")

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
