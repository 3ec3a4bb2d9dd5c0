// Package icons coordinates per-row icon fetches for a scrolling list.
//
// A Coordinator keeps at most one fetch per row key. Rows enter the registry
// when they become visible or enter the prefetch window and leave it when
// they scroll out of either; leaving cancels the fetch. Completions for
// cancelled or superseded fetches are dropped by generation, not by timing.
package icons

import (
	"sync"

	"github.com/rs/zerolog"
)

// RowKey identifies a list row. Callers usually pass the item ID.
type RowKey int

// State is the icon state of one row.
type State int

const (
	StateLoading State = iota
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress is delivered to a row's ProgressFunc on every state change.
type Progress struct {
	State State
	Image []byte // set when State is StateLoaded
	Err   error  // set when State is StateFailed
}

// ProgressFunc receives icon progress for one row. It may be called from any
// goroutine and may call back into the Coordinator.
type ProgressFunc func(Progress)

type entry struct {
	url        string
	gen        uint64
	task       Task
	state      State
	image      []byte
	err        error
	onProgress ProgressFunc
}

func (e *entry) progress() Progress {
	return Progress{State: e.state, Image: e.image, Err: e.err}
}

// Coordinator owns the row key → fetch registry.
type Coordinator struct {
	fetcher Fetcher
	logger  zerolog.Logger

	mu      sync.Mutex
	entries map[RowKey]*entry
	lastGen uint64
}

// NewCoordinator creates a new Coordinator.
func NewCoordinator(fetcher Fetcher, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "icons").Logger(),
		entries: make(map[RowKey]*entry),
	}
}

// BecameVisible starts a fetch for key unless one is already tracked.
func (c *Coordinator) BecameVisible(key RowKey, url string, onProgress ProgressFunc) {
	c.track(key, url, onProgress)
}

// NearVisible starts a prefetch for key unless one is already tracked.
// Visible and prefetched rows share the same registry.
func (c *Coordinator) NearVisible(key RowKey, url string, onProgress ProgressFunc) {
	c.track(key, url, onProgress)
}

// BecameInvisible cancels and forgets whatever is tracked for key.
func (c *Coordinator) BecameInvisible(key RowKey) {
	c.untrack(key)
}

// NoLongerNearVisible cancels and forgets whatever is tracked for key.
func (c *Coordinator) NoLongerNearVisible(key RowKey) {
	c.untrack(key)
}

// Retry cancels any task tracked for key, finished or not, and starts a new fetch.
func (c *Coordinator) Retry(key RowKey, url string, onProgress ProgressFunc) {
	c.mu.Lock()
	old := c.entries[key]
	gen := c.newEntryLocked(key, url, onProgress)
	c.mu.Unlock()

	if old != nil && old.task != nil {
		old.task.Cancel()
	}

	c.logger.Debug().Int("row", int(key)).Str("url", url).Msg("Retrying icon fetch")
	c.start(key, gen, url, onProgress)
}

// State returns the current state for key and whether key is tracked.
func (c *Coordinator) State(key RowKey) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Len returns the number of tracked rows.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CancelAll cancels every tracked fetch and empties the registry.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[RowKey]*entry)
	c.mu.Unlock()

	for _, e := range entries {
		if e.task != nil {
			e.task.Cancel()
		}
	}
}

func (c *Coordinator) track(key RowKey, url string, onProgress ProgressFunc) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.url == url {
		// Already tracked: rebind to the newest subscriber and replay a
		// finished state so the row can render without a second fetch.
		if onProgress != nil {
			e.onProgress = onProgress
		}
		replay := e.state != StateLoading
		p := e.progress()
		c.mu.Unlock()

		if replay && onProgress != nil {
			onProgress(p)
		}
		return
	}

	// A key reused for a different URL supersedes the old fetch.
	old := c.entries[key]
	gen := c.newEntryLocked(key, url, onProgress)
	c.mu.Unlock()

	if old != nil && old.task != nil {
		old.task.Cancel()
	}

	c.start(key, gen, url, onProgress)
}

func (c *Coordinator) untrack(key RowKey) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if ok && e.task != nil {
		e.task.Cancel()
	}
}

// newEntryLocked registers a fresh Loading entry for key and returns its
// generation. c.mu must be held.
func (c *Coordinator) newEntryLocked(key RowKey, url string, onProgress ProgressFunc) uint64 {
	c.lastGen++
	c.entries[key] = &entry{
		url:        url,
		gen:        c.lastGen,
		state:      StateLoading,
		onProgress: onProgress,
	}
	return c.lastGen
}

// start reports Loading and launches the fetch for generation gen of key.
func (c *Coordinator) start(key RowKey, gen uint64, url string, onProgress ProgressFunc) {
	if onProgress != nil {
		onProgress(Progress{State: StateLoading})
	}

	task := c.fetcher.Fetch(url, func(data []byte, err error) {
		c.complete(key, gen, data, err)
	})

	c.mu.Lock()
	if cur, ok := c.entries[key]; ok && cur.gen == gen {
		cur.task = task
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// The row went away, or was retried, while the fetch was being started.
	task.Cancel()
}

func (c *Coordinator) complete(key RowKey, gen uint64, data []byte, err error) {
	p := Progress{State: StateLoaded, Image: data}
	switch {
	case err != nil:
		p = Progress{State: StateFailed, Err: err}
	case !Decodable(data):
		p = Progress{State: StateFailed, Err: ErrUndecodableImage}
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		c.logger.Debug().Int("row", int(key)).Uint64("gen", gen).Msg("Dropping stale icon result")
		return
	}
	e.state = p.State
	e.image = p.Image
	e.err = p.Err
	notify, url := e.onProgress, e.url
	c.mu.Unlock()

	if p.State == StateFailed {
		c.logger.Debug().Err(p.Err).Int("row", int(key)).Str("url", url).Msg("Icon unavailable")
	}

	if notify != nil {
		notify(p)
	}
}
