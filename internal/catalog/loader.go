// Package catalog loads search results from the remote catalog and maps them
// into validated SearchItems.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/appsearch/appsearch/internal/transport"
)

// HTTPClient issues a single GET. transport.Client is the production implementation.
type HTTPClient interface {
	Get(ctx context.Context, url string) (*transport.Response, error)
}

// URLBuilder turns a query into a fully formed request URL.
type URLBuilder interface {
	URL(query string) string
}

// Searcher is the synchronous search contract consumed by presenters and handlers.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchItem, error)
}

// Loader runs catalog searches. It holds no per-call state, so concurrent
// calls are independent.
type Loader struct {
	client   HTTPClient
	endpoint URLBuilder
	logger   zerolog.Logger
}

// NewLoader creates a new Loader.
func NewLoader(client HTTPClient, endpoint URLBuilder, logger zerolog.Logger) *Loader {
	return &Loader{
		client:   client,
		endpoint: endpoint,
		logger:   logger.With().Str("component", "catalog").Logger(),
	}
}

// Search issues one request for query and maps the response. Errors wrap
// ErrConnectivity or ErrInvalidData. It never retries.
func (l *Loader) Search(ctx context.Context, query string) ([]SearchItem, error) {
	reqURL := l.endpoint.URL(query)

	resp, err := l.client.Get(ctx, reqURL)
	if errors.Is(err, transport.ErrBodyTooLarge) {
		// The catalog answered; the answer is unusable.
		l.logger.Warn().Err(err).Str("query", query).Msg("Catalog response too large")
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if err != nil {
		l.logger.Warn().Err(err).Str("query", query).Msg("Catalog unreachable")
		return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
	}

	items, err := MapItems(resp.Body, resp.StatusCode)
	if err != nil {
		l.logger.Warn().
			Err(err).
			Str("query", query).
			Int("status", resp.StatusCode).
			Msg("Catalog returned invalid data")
		return nil, err
	}

	l.logger.Debug().
		Str("query", query).
		Int("results", len(items)).
		Msg("Search completed")

	return items, nil
}

// Load runs Search in the background and delivers the Result to completion
// exactly once. ctx is the requester's liveness token: the request itself is
// not aborted when ctx is cancelled, but if ctx is done by the time the result
// is ready the completion is not invoked.
func (l *Loader) Load(ctx context.Context, query string, completion func(Result)) {
	go func() {
		items, err := l.Search(context.WithoutCancel(ctx), query)

		if ctx.Err() != nil {
			l.logger.Debug().Str("query", query).Msg("Requester gone, dropping search result")
			return
		}

		if err != nil {
			completion(Failure(err))
			return
		}
		completion(Success(items))
	}()
}
