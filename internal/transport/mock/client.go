// Package mock provides a scriptable transport for tests.
package mock

import (
	"context"
	"sync"

	"github.com/appsearch/appsearch/internal/transport"
)

// Reply is a canned answer for one request.
type Reply struct {
	StatusCode int
	Body       []byte
	Err        error
}

// Client records every GET and answers from a handler or a fixed reply.
// It satisfies the same Get contract as transport.Client.
type Client struct {
	mu      sync.Mutex
	urls    []string
	reply   Reply
	handler func(ctx context.Context, url string) Reply
}

// New returns a client that always answers with reply.
func New(reply Reply) *Client {
	return &Client{reply: reply}
}

// NewWithHandler returns a client that computes each reply with fn.
// fn may block, which lets tests control completion order.
func NewWithHandler(fn func(ctx context.Context, url string) Reply) *Client {
	return &Client{handler: fn}
}

// Get implements the transport contract.
func (c *Client) Get(ctx context.Context, url string) (*transport.Response, error) {
	c.mu.Lock()
	c.urls = append(c.urls, url)
	reply, handler := c.reply, c.handler
	c.mu.Unlock()

	if handler != nil {
		reply = handler(ctx, url)
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &transport.Response{StatusCode: reply.StatusCode, Body: reply.Body}, nil
}

// Requests returns the URLs requested so far, in call order.
func (c *Client) Requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.urls))
	copy(out, c.urls)
	return out
}
