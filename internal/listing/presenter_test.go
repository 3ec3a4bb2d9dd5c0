package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsearch/appsearch/internal/catalog"
	"github.com/appsearch/appsearch/internal/icons"
	iconsmock "github.com/appsearch/appsearch/internal/icons/mock"
	transportmock "github.com/appsearch/appsearch/internal/transport/mock"
)

type staticURL struct{}

func (staticURL) URL(query string) string { return "https://catalog/search?term=" + query }

// resultsBody builds a catalog payload with n items whose IDs start at 1.
func resultsBody(n int) []byte {
	parts := make([]string, n)
	for i := range parts {
		id := i + 1
		parts[i] = fmt.Sprintf(`{"trackId":%d,"trackName":"App %d","primaryGenreName":"Utilities","artworkUrl100":"https://x/%d.png","screenshotUrls":[]}`, id, id, id)
	}
	return []byte(`{"results":[` + strings.Join(parts, ",") + `]}`)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func newTestPresenter(t *testing.T, body []byte, window Window) (*Presenter, *iconsmock.Fetcher) {
	t.Helper()
	client := transportmock.New(transportmock.Reply{StatusCode: http.StatusOK, Body: body})
	loader := catalog.NewLoader(client, staticURL{}, zerolog.Nop())
	fetcher := iconsmock.New()
	coordinator := icons.NewCoordinator(fetcher, zerolog.Nop())
	return NewPresenter(loader, coordinator, window, zerolog.Nop()), fetcher
}

// fetchIndex finds the fetch started for url.
func fetchIndex(t *testing.T, f *iconsmock.Fetcher, url string) int {
	t.Helper()
	for i := f.Count() - 1; i >= 0; i-- {
		if f.At(i).URL == url {
			return i
		}
	}
	t.Fatalf("no fetch for %s", url)
	return -1
}

func TestPresenter_Search(t *testing.T) {
	p, _ := newTestPresenter(t, resultsBody(3), Window{})

	require.NoError(t, p.Search(context.Background(), "app"))

	rows := p.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, "App 1", rows[0].Name)
	assert.Equal(t, "No rating", rows[0].Rating)
	assert.Equal(t, IconNone, rows[0].Icon)
	assert.False(t, p.Loading())
	assert.NoError(t, p.Err())
}

func TestPresenter_SearchFailureClearsRows(t *testing.T) {
	p, _ := newTestPresenter(t, resultsBody(2), Window{})
	require.NoError(t, p.Search(context.Background(), "app"))

	p.searcher = catalog.NewLoader(
		transportmock.New(transportmock.Reply{Err: errors.New("offline")}),
		staticURL{}, zerolog.Nop())

	err := p.Search(context.Background(), "app")
	assert.ErrorIs(t, err, catalog.ErrConnectivity)
	assert.Empty(t, p.Rows())
	assert.ErrorIs(t, p.Err(), catalog.ErrConnectivity)
}

func TestPresenter_TwoRowsFailAndSucceedIndependently(t *testing.T) {
	p, f := newTestPresenter(t, resultsBody(2), Window{})
	require.NoError(t, p.Search(context.Background(), "app"))

	p.SetViewport(0, 1)
	require.Equal(t, 2, f.Count())

	rows := p.Rows()
	assert.Equal(t, IconLoading, rows[0].Icon)
	assert.Equal(t, IconLoading, rows[1].Icon)

	img := pngBytes(t)
	f.Complete(fetchIndex(t, f, "https://x/1.png"), nil, errors.New("404"))
	f.Complete(fetchIndex(t, f, "https://x/2.png"), img, nil)

	rows = p.Rows()
	assert.Equal(t, IconRetry, rows[0].Icon)
	assert.Nil(t, rows[0].Image)
	assert.Equal(t, IconImage, rows[1].Icon)
	assert.Equal(t, img, rows[1].Image)

	require.NoError(t, p.Retry(0))
	assert.Equal(t, 3, f.Count())
	assert.Equal(t, IconLoading, p.Rows()[0].Icon)

	f.Complete(2, img, nil)
	assert.Equal(t, IconImage, p.Rows()[0].Icon)
}

func TestPresenter_PrefetchWindow(t *testing.T) {
	p, f := newTestPresenter(t, resultsBody(10), Window{Ahead: 2, Behind: 1})
	require.NoError(t, p.Search(context.Background(), "app"))

	// Visible 3..4, near 2 and 5..6.
	p.SetViewport(3, 4)
	assert.Equal(t, 5, f.Count())

	// Scrolling by one: 7 enters the window, 2 leaves it.
	p.SetViewport(4, 5)
	assert.Equal(t, 6, f.Count())
	assert.Equal(t, "https://x/8.png", f.At(5).URL)
	assert.True(t, f.At(fetchIndex(t, f, "https://x/3.png")).Task.Cancelled())
	assert.False(t, f.At(fetchIndex(t, f, "https://x/4.png")).Task.Cancelled(), "row 3 is still near-visible")

	rows := p.Rows()
	assert.Equal(t, IconNone, rows[2].Icon)
	assert.Equal(t, IconLoading, rows[3].Icon)
}

func TestPresenter_ViewportClamped(t *testing.T) {
	p, f := newTestPresenter(t, resultsBody(3), Window{Ahead: 5, Behind: 5})
	require.NoError(t, p.Search(context.Background(), "app"))

	p.SetViewport(-4, 40)
	assert.Equal(t, 3, f.Count())

	p.SetViewport(1, 0)
	for i := 0; i < 3; i++ {
		assert.True(t, f.At(i).Task.Cancelled())
	}
}

func TestPresenter_NewSearchCancelsIcons(t *testing.T) {
	p, f := newTestPresenter(t, resultsBody(2), Window{})
	require.NoError(t, p.Search(context.Background(), "app"))
	p.SetViewport(0, 1)

	require.NoError(t, p.Search(context.Background(), "other"))

	assert.True(t, f.At(0).Task.Cancelled())
	assert.True(t, f.At(1).Task.Cancelled())

	// A late completion from the previous result set does not touch the new rows.
	f.Complete(0, pngBytes(t), nil)
	assert.Equal(t, IconNone, p.Rows()[0].Icon)
}

func TestPresenter_RetryOutOfRange(t *testing.T) {
	p, _ := newTestPresenter(t, resultsBody(1), Window{})
	require.NoError(t, p.Search(context.Background(), "app"))

	assert.Error(t, p.Retry(5))
	assert.Error(t, p.Retry(-1))
}

func TestPresenter_OnChange(t *testing.T) {
	p, f := newTestPresenter(t, resultsBody(1), Window{})
	changes := 0
	p.OnChange(func() { changes++ })

	require.NoError(t, p.Search(context.Background(), "app"))
	afterSearch := changes
	assert.GreaterOrEqual(t, afterSearch, 2, "loading started and finished")

	p.SetViewport(0, 0)
	f.Complete(0, pngBytes(t), nil)
	assert.Equal(t, afterSearch+2, changes)
}

func TestRatingText(t *testing.T) {
	zero, four := 0.0, 4.26

	assert.Equal(t, "No rating", RatingText(catalog.SearchItem{}))
	assert.Equal(t, "0.0", RatingText(catalog.SearchItem{Rating: &zero}))
	assert.Equal(t, "4.3", RatingText(catalog.SearchItem{Rating: &four}))
}

func TestPresenter_DuplicateIDsFailSearch(t *testing.T) {
	body := []byte(`{"results":[` +
		`{"trackId":7,"trackName":"A","primaryGenreName":"g","artworkUrl100":"https://x/a.png","screenshotUrls":[]},` +
		`{"trackId":7,"trackName":"B","primaryGenreName":"g","artworkUrl100":"https://x/b.png","screenshotUrls":[]}]}`)
	p, f := newTestPresenter(t, body, Window{})

	err := p.Search(context.Background(), "app")

	assert.ErrorIs(t, err, catalog.ErrInvalidData)
	assert.Empty(t, p.Rows())

	p.SetViewport(0, 1)
	assert.Zero(t, f.Count())
}

func TestPresenter_IconUpdatesContinueWhileSearchInFlight(t *testing.T) {
	release := make(chan struct{})
	calls := 0
	client := transportmock.NewWithHandler(func(ctx context.Context, url string) transportmock.Reply {
		calls++
		if calls > 1 {
			<-release
		}
		return transportmock.Reply{StatusCode: http.StatusOK, Body: resultsBody(2)}
	})
	fetcher := iconsmock.New()
	coordinator := icons.NewCoordinator(fetcher, zerolog.Nop())
	p := NewPresenter(catalog.NewLoader(client, staticURL{}, zerolog.Nop()), coordinator, Window{}, zerolog.Nop())

	require.NoError(t, p.Search(context.Background(), "app"))
	p.SetViewport(0, 0)
	require.Equal(t, 1, fetcher.Count())

	done := make(chan error, 1)
	go func() { done <- p.Search(context.Background(), "next") }()
	require.Eventually(t, p.Loading, time.Second, 5*time.Millisecond)

	img := pngBytes(t)
	fetcher.Complete(0, img, nil)

	rows := p.Rows()
	assert.Equal(t, IconImage, rows[0].Icon)
	assert.Equal(t, img, rows[0].Image)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, IconNone, p.Rows()[0].Icon)
}

func TestPresenter_LoadAllIcons(t *testing.T) {
	p, f := newTestPresenter(t, resultsBody(2), Window{})
	require.NoError(t, p.Search(context.Background(), "app"))

	done := make(chan error, 1)
	go func() { done <- p.LoadAllIcons(context.Background()) }()

	require.Eventually(t, func() bool { return f.Count() == 2 }, time.Second, 5*time.Millisecond)
	img := pngBytes(t)
	f.Complete(fetchIndex(t, f, "https://x/1.png"), img, nil)
	f.Complete(fetchIndex(t, f, "https://x/2.png"), nil, errors.New("404"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("LoadAllIcons did not return")
	}

	rows := p.Rows()
	assert.Equal(t, IconImage, rows[0].Icon)
	assert.Equal(t, IconRetry, rows[1].Icon)
}

func TestPresenter_LoadAllIconsHonoursDeadline(t *testing.T) {
	p, f := newTestPresenter(t, resultsBody(1), Window{})
	require.NoError(t, p.Search(context.Background(), "app"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.LoadAllIcons(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, f.Count())
	assert.Equal(t, IconLoading, p.Rows()[0].Icon)
}

func TestPresenter_LoadAllIconsWithNoRows(t *testing.T) {
	p, f := newTestPresenter(t, resultsBody(0), Window{})
	require.NoError(t, p.Search(context.Background(), "app"))

	require.NoError(t, p.LoadAllIcons(context.Background()))
	assert.Zero(t, f.Count())
}
