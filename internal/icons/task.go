package icons

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/appsearch/appsearch/internal/transport"
)

var (
	ErrFetchFailed      = errors.New("icon fetch failed")
	ErrUndecodableImage = errors.New("icon is not a displayable image")
)

// Task is a handle to one outstanding icon fetch.
type Task interface {
	ID() string
	// Cancel stops delivery of the fetch result. It is safe to call more than
	// once and after completion.
	Cancel()
}

// Fetcher starts icon fetches. done is called at most once per fetch, on any
// goroutine, and never after the returned Task has been cancelled.
type Fetcher interface {
	Fetch(url string, done func(data []byte, err error)) Task
}

// ImageGetter issues the underlying GET. transport.Client satisfies it.
type ImageGetter interface {
	Get(ctx context.Context, url string) (*transport.Response, error)
}

// HTTPFetcher fetches icons over HTTP, one goroutine per fetch.
type HTTPFetcher struct {
	client ImageGetter
	logger zerolog.Logger
}

// NewHTTPFetcher creates a new HTTPFetcher.
func NewHTTPFetcher(client ImageGetter, logger zerolog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: client,
		logger: logger.With().Str("component", "icon-fetcher").Logger(),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(url string, done func(data []byte, err error)) Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &fetchTask{
		id:     uuid.NewString(),
		cancel: cancel,
	}

	go func() {
		resp, err := f.client.Get(ctx, url)
		switch {
		case err != nil:
			err = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		case resp.StatusCode != http.StatusOK:
			err = fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
		}

		if err != nil {
			f.logger.Debug().Err(err).Str("task", t.id).Str("url", url).Msg("Icon fetch failed")
			t.finish(func() { done(nil, err) })
			return
		}
		t.finish(func() { done(resp.Body, nil) })
	}()

	return t
}

// fetchTask is the Task returned by HTTPFetcher.
type fetchTask struct {
	id     string
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
	finished  bool
}

func (t *fetchTask) ID() string {
	return t.id
}

func (t *fetchTask) Cancel() {
	t.mu.Lock()
	if t.cancelled || t.finished {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.mu.Unlock()

	t.cancel()
}

// finish runs deliver unless the task was cancelled first.
func (t *fetchTask) finish(deliver func()) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.mu.Unlock()

	t.cancel()
	deliver()
}
