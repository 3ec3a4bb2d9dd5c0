// Package mock provides a manually driven icons.Fetcher for tests.
package mock

import (
	"fmt"
	"sync"

	"github.com/appsearch/appsearch/internal/icons"
)

// Fetch is one recorded Fetch call.
type Fetch struct {
	URL  string
	Task *Task
	done func([]byte, error)
}

// Task is the handle returned by Fetcher.
type Task struct {
	id string

	mu        sync.Mutex
	cancelled int
}

func (t *Task) ID() string { return t.id }

func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled++
}

// Cancelled reports whether Cancel was called at least once.
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled > 0
}

// Fetcher records fetches and leaves completion to the test. Unlike a real
// fetcher it does not suppress completion after Cancel, so tests can force
// stale callbacks to fire.
type Fetcher struct {
	mu      sync.Mutex
	fetches []*Fetch
}

var _ icons.Fetcher = (*Fetcher)(nil)

// New returns an empty Fetcher.
func New() *Fetcher {
	return &Fetcher{}
}

// Fetch implements icons.Fetcher.
func (f *Fetcher) Fetch(url string, done func([]byte, error)) icons.Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &Task{id: fmt.Sprintf("mock-%d", len(f.fetches))}
	f.fetches = append(f.fetches, &Fetch{URL: url, Task: t, done: done})
	return t
}

// Count returns the number of fetches started.
func (f *Fetcher) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

// At returns the i-th recorded fetch.
func (f *Fetcher) At(i int) *Fetch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[i]
}

// Complete fires the completion of the i-th fetch, cancelled or not.
func (f *Fetcher) Complete(i int, data []byte, err error) {
	f.At(i).done(data, err)
}
