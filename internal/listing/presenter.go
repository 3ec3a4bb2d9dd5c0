// Package listing is a headless search list: it runs searches, keeps the row
// models and turns viewport changes into icon visibility events.
package listing

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/appsearch/appsearch/internal/catalog"
	"github.com/appsearch/appsearch/internal/icons"
)

// IconCoordinator is the subset of icons.Coordinator the presenter drives.
type IconCoordinator interface {
	BecameVisible(key icons.RowKey, url string, onProgress icons.ProgressFunc)
	BecameInvisible(key icons.RowKey)
	NearVisible(key icons.RowKey, url string, onProgress icons.ProgressFunc)
	NoLongerNearVisible(key icons.RowKey)
	Retry(key icons.RowKey, url string, onProgress icons.ProgressFunc)
	CancelAll()
}

// Window is the prefetch window around the visible rows.
type Window struct {
	Ahead  int
	Behind int
}

// IconView is what a row shows in place of its icon.
type IconView string

const (
	IconNone    IconView = "none"
	IconLoading IconView = "loading"
	IconImage   IconView = "image"
	IconRetry   IconView = "retry"
)

// RowView is the render model for one row.
type RowView struct {
	ID       int
	Name     string
	Category string
	Rating   string
	Price    string
	Icon     IconView
	Image    []byte
}

type row struct {
	item  catalog.SearchItem
	icon  IconView
	image []byte
}

// Presenter owns the rows of the current result set.
type Presenter struct {
	searcher catalog.Searcher
	icons    IconCoordinator
	window   Window
	logger   zerolog.Logger

	mu       sync.Mutex
	searches uint64 // bumped when a search starts; only the newest may replace rows
	seq      uint64 // bumped when rows are replaced; stale icon updates compare against it
	rows     []row
	visible  map[int]bool
	near     map[int]bool
	loading  bool
	err      error
	onChange func()

	iconChanged chan struct{}
}

// NewPresenter creates a new Presenter.
func NewPresenter(searcher catalog.Searcher, coordinator IconCoordinator, window Window, logger zerolog.Logger) *Presenter {
	return &Presenter{
		searcher: searcher,
		icons:    coordinator,
		window:   window,
		logger:   logger.With().Str("component", "listing").Logger(),
		visible:  make(map[int]bool),
		near:     make(map[int]bool),

		iconChanged: make(chan struct{}, 1),
	}
}

// OnChange registers fn to be called after any row or loading state change.
func (p *Presenter) OnChange(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// Search loads query and replaces the rows. A search superseded by a newer
// one is discarded. A failed search leaves no rows.
func (p *Presenter) Search(ctx context.Context, query string) error {
	p.mu.Lock()
	p.searches++
	search := p.searches
	p.loading = true
	p.mu.Unlock()
	p.changed()

	items, err := p.searcher.Search(ctx, query)

	p.mu.Lock()
	if search != p.searches {
		p.mu.Unlock()
		p.logger.Debug().Str("query", query).Msg("Discarding superseded search")
		return err
	}
	p.seq++
	p.loading = false
	p.err = err
	p.rows = make([]row, len(items))
	for i, item := range items {
		p.rows[i] = row{item: item, icon: IconNone}
	}
	p.visible = make(map[int]bool)
	p.near = make(map[int]bool)
	// CancelAll never calls back into the presenter, so it is safe under p.mu.
	p.icons.CancelAll()
	p.mu.Unlock()

	p.changed()

	if err != nil {
		p.logger.Warn().Err(err).Str("query", query).Msg("Search failed")
	}
	return err
}

// SetViewport marks rows first..last (inclusive) as visible and the
// surrounding window as near-visible, emitting the difference from the
// previous viewport as icon events.
func (p *Presenter) SetViewport(first, last int) {
	type event struct {
		key  icons.RowKey
		url  string
		cb   icons.ProgressFunc
		kind int
	}
	const (
		evVisible = iota
		evNear
		evInvisible
		evFar
	)

	p.mu.Lock()
	n := len(p.rows)
	visible := make(map[int]bool)
	near := make(map[int]bool)
	if n > 0 && first <= last {
		first, last = max(first, 0), min(last, n-1)
		for i := first; i <= last; i++ {
			visible[i] = true
		}
		for i := max(first-p.window.Behind, 0); i < first; i++ {
			near[i] = true
		}
		for i := last + 1; i <= min(last+p.window.Ahead, n-1); i++ {
			near[i] = true
		}
	}

	var events []event
	for i := range p.visible {
		if visible[i] || near[i] {
			continue
		}
		events = append(events, event{key: p.key(i), kind: evInvisible})
	}
	for i := range p.near {
		if visible[i] || near[i] {
			continue
		}
		events = append(events, event{key: p.key(i), kind: evFar})
	}
	for i := range visible {
		if !p.visible[i] {
			events = append(events, event{key: p.key(i), url: p.rows[i].item.IconURL, cb: p.progressFunc(i), kind: evVisible})
		}
	}
	for i := range near {
		if !p.visible[i] && !p.near[i] {
			events = append(events, event{key: p.key(i), url: p.rows[i].item.IconURL, cb: p.progressFunc(i), kind: evNear})
		}
	}
	for i := range p.visible {
		if !visible[i] && !near[i] {
			p.rows[i].icon, p.rows[i].image = IconNone, nil
		}
	}
	for i := range p.near {
		if !visible[i] && !near[i] {
			p.rows[i].icon, p.rows[i].image = IconNone, nil
		}
	}
	p.visible, p.near = visible, near
	p.mu.Unlock()

	// Coordinator callbacks take p.mu, so events go out unlocked.
	for _, ev := range events {
		switch ev.kind {
		case evVisible:
			p.icons.BecameVisible(ev.key, ev.url, ev.cb)
		case evNear:
			p.icons.NearVisible(ev.key, ev.url, ev.cb)
		case evInvisible:
			p.icons.BecameInvisible(ev.key)
		case evFar:
			p.icons.NoLongerNearVisible(ev.key)
		}
	}
}

// LoadAllIcons marks every row visible and waits until no icon is loading or
// ctx is done.
func (p *Presenter) LoadAllIcons(ctx context.Context) error {
	p.mu.Lock()
	n := len(p.rows)
	p.mu.Unlock()

	p.SetViewport(0, n-1)

	for p.iconsPending() {
		select {
		case <-p.iconChanged:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Presenter) iconsPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.rows {
		if r.icon == IconLoading {
			return true
		}
	}
	return false
}

// Retry restarts the icon fetch for the row at index.
func (p *Presenter) Retry(index int) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.rows) {
		p.mu.Unlock()
		return fmt.Errorf("row %d out of range", index)
	}
	key, url, cb := p.key(index), p.rows[index].item.IconURL, p.progressFunc(index)
	p.mu.Unlock()

	p.icons.Retry(key, url, cb)
	return nil
}

// Rows returns a snapshot of the render models.
func (p *Presenter) Rows() []RowView {
	p.mu.Lock()
	defer p.mu.Unlock()

	views := make([]RowView, len(p.rows))
	for i, r := range p.rows {
		views[i] = RowView{
			ID:       r.item.ID,
			Name:     r.item.Name,
			Category: r.item.Category,
			Rating:   RatingText(r.item),
			Price:    r.item.Price,
			Icon:     r.icon,
			Image:    r.image,
		}
	}
	return views
}

// Loading reports whether a search is in flight.
func (p *Presenter) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Err returns the error of the last completed search.
func (p *Presenter) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// RatingText renders a rating; a missing rating is distinct from zero.
func RatingText(item catalog.SearchItem) string {
	if item.Rating == nil {
		return "No rating"
	}
	return fmt.Sprintf("%.1f", *item.Rating)
}

// key returns the row key for index. p.mu must be held.
func (p *Presenter) key(index int) icons.RowKey {
	return icons.RowKey(p.rows[index].item.ID)
}

// progressFunc binds icon progress to the row at index in the current result
// set. p.mu must be held.
func (p *Presenter) progressFunc(index int) icons.ProgressFunc {
	seq := p.seq
	return func(pr icons.Progress) {
		p.mu.Lock()
		if seq != p.seq || index >= len(p.rows) {
			p.mu.Unlock()
			return
		}
		switch pr.State {
		case icons.StateLoading:
			p.rows[index].icon, p.rows[index].image = IconLoading, nil
		case icons.StateLoaded:
			p.rows[index].icon, p.rows[index].image = IconImage, pr.Image
		case icons.StateFailed:
			p.rows[index].icon, p.rows[index].image = IconRetry, nil
		}
		p.mu.Unlock()

		select {
		case p.iconChanged <- struct{}{}:
		default:
		}
		p.changed()
	}
}

func (p *Presenter) changed() {
	p.mu.Lock()
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}
