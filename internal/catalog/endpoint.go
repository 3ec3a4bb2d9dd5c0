package catalog

import (
	"fmt"
	"net/url"
	"strconv"
)

// Endpoint builds catalog search URLs in the iTunes Search API shape.
type Endpoint struct {
	base    *url.URL
	entity  string
	country string
	limit   int
}

// EndpointConfig describes the catalog search endpoint.
type EndpointConfig struct {
	BaseURL string
	Entity  string
	Country string
	Limit   int
}

// NewEndpoint validates cfg.BaseURL and returns an Endpoint.
func NewEndpoint(cfg EndpointConfig) (*Endpoint, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid catalog base URL %q: must be absolute", cfg.BaseURL)
	}

	return &Endpoint{
		base:    base,
		entity:  cfg.Entity,
		country: cfg.Country,
		limit:   cfg.Limit,
	}, nil
}

// URL returns the search URL for query. Existing query parameters on the
// base URL are preserved.
func (e *Endpoint) URL(query string) string {
	u := *e.base
	params := u.Query()
	params.Set("term", query)
	if e.entity != "" {
		params.Set("entity", e.entity)
	}
	if e.country != "" {
		params.Set("country", e.country)
	}
	if e.limit > 0 {
		params.Set("limit", strconv.Itoa(e.limit))
	}
	u.RawQuery = params.Encode()
	return u.String()
}
