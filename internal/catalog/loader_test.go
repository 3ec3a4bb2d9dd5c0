package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsearch/appsearch/internal/transport"
	"github.com/appsearch/appsearch/internal/transport/mock"
)

const mailBody = `{"results":[{"trackId":1,"trackName":"Mail","primaryGenreName":"Productivity","artworkUrl100":"https://x/icon.png","screenshotUrls":[]}]}`

type fixedURL string

func (u fixedURL) URL(query string) string {
	return string(u) + "?term=" + query
}

func newTestLoader(t *testing.T, server *httptest.Server) *Loader {
	t.Helper()
	endpoint, err := NewEndpoint(EndpointConfig{BaseURL: server.URL + "/search", Entity: "software"})
	require.NoError(t, err)
	client := transport.NewClient(transport.Config{Timeout: 5 * time.Second, Accept: "application/json"}, zerolog.Nop())
	return NewLoader(client, endpoint, zerolog.Nop())
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
		return Result{}
	}
}

func TestLoader_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("term"); got != "mail" {
			t.Errorf("unexpected term: %s", got)
		}
		w.Write([]byte(mailBody))
	}))
	defer server.Close()

	items, err := newTestLoader(t, server).Search(context.Background(), "mail")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Mail", items[0].Name)
	assert.Nil(t, items[0].Rating)
	assert.Equal(t, []string{}, items[0].PreviewURLs)
}

func TestLoader_Search_NonOKStatus(t *testing.T) {
	for _, status := range []int{http.StatusCreated, http.StatusBadRequest, http.StatusInternalServerError} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				// A valid body must not rescue a bad status.
				w.Write([]byte(mailBody))
			}))
			defer server.Close()

			items, err := newTestLoader(t, server).Search(context.Background(), "mail")
			assert.ErrorIs(t, err, ErrInvalidData)
			assert.Nil(t, items)
		})
	}
}

func TestLoader_Search_ConnectivityRegardlessOfBody(t *testing.T) {
	client := mock.New(mock.Reply{StatusCode: http.StatusOK, Body: []byte(mailBody), Err: errors.New("connection reset")})
	loader := NewLoader(client, fixedURL("https://catalog/search"), zerolog.Nop())

	items, err := loader.Search(context.Background(), "mail")
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.NotErrorIs(t, err, ErrInvalidData)
	assert.Nil(t, items)
	assert.Equal(t, KindConnectivity, KindOf(err))
}

func TestLoader_Search_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	loader := newTestLoader(t, server)
	server.Close()

	_, err := loader.Search(context.Background(), "mail")
	assert.ErrorIs(t, err, ErrConnectivity)
}

func TestLoader_Load_DeliversOnce(t *testing.T) {
	client := mock.New(mock.Reply{StatusCode: http.StatusOK, Body: []byte(mailBody)})
	loader := NewLoader(client, fixedURL("https://catalog/search"), zerolog.Nop())

	results := make(chan Result, 2)
	loader.Load(context.Background(), "mail", func(r Result) { results <- r })

	r := waitResult(t, results)
	require.True(t, r.OK())
	assert.Equal(t, []SearchItem{{ID: 1, Name: "Mail", Category: "Productivity", IconURL: "https://x/icon.png", PreviewURLs: []string{}}}, r.Items)

	select {
	case extra := <-results:
		t.Fatalf("completion delivered twice: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoader_Load_Failure(t *testing.T) {
	client := mock.New(mock.Reply{StatusCode: http.StatusNotFound})
	loader := NewLoader(client, fixedURL("https://catalog/search"), zerolog.Nop())

	results := make(chan Result, 1)
	loader.Load(context.Background(), "mail", func(r Result) { results <- r })

	r := waitResult(t, results)
	assert.False(t, r.OK())
	assert.ErrorIs(t, r.Err, ErrInvalidData)
	assert.Nil(t, r.Items)
}

func TestLoader_Load_IndependentRequests(t *testing.T) {
	// Each request blocks until its own release channel closes so the test
	// controls completion order.
	var mu sync.Mutex
	release := map[string]chan struct{}{
		"a": make(chan struct{}),
		"b": make(chan struct{}),
		"c": make(chan struct{}),
	}
	client := mock.NewWithHandler(func(ctx context.Context, url string) mock.Reply {
		term := url[len(url)-1:]
		mu.Lock()
		ch := release[term]
		mu.Unlock()
		<-ch
		body := fmt.Sprintf(`{"results":[{"trackId":1,"trackName":%q,"primaryGenreName":"g","artworkUrl100":"https://x/i.png","screenshotUrls":[]}]}`, term)
		return mock.Reply{StatusCode: http.StatusOK, Body: []byte(body)}
	})
	loader := NewLoader(client, fixedURL("https://catalog/search"), zerolog.Nop())

	results := make(chan Result, 3)
	for _, term := range []string{"a", "b", "c"} {
		loader.Load(context.Background(), term, func(r Result) { results <- r })
	}

	require.Eventually(t, func() bool { return len(client.Requests()) == 3 }, time.Second, 5*time.Millisecond)

	var order []string
	for _, term := range []string{"c", "a", "b"} {
		close(release[term])
		r := waitResult(t, results)
		require.True(t, r.OK())
		order = append(order, r.Items[0].Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, order)
}

func TestLoader_Load_SuppressedForGoneRequester(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	client := mock.NewWithHandler(func(ctx context.Context, url string) mock.Reply {
		defer close(finished)
		<-release
		// The request context must outlive the requester.
		if ctx.Err() != nil {
			t.Errorf("request context cancelled: %v", ctx.Err())
		}
		return mock.Reply{StatusCode: http.StatusOK, Body: []byte(mailBody)}
	})
	loader := NewLoader(client, fixedURL("https://catalog/search"), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	called := make(chan Result, 1)
	loader.Load(ctx, "mail", func(r Result) { called <- r })

	require.Eventually(t, func() bool { return len(client.Requests()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	close(release)
	<-finished

	select {
	case r := <-called:
		t.Fatalf("completion delivered to gone requester: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLoader_OversizedResponseIsInvalidData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(mailBody))
	}))
	defer server.Close()

	endpoint, err := NewEndpoint(EndpointConfig{BaseURL: server.URL + "/search"})
	require.NoError(t, err)
	client := transport.NewClient(transport.Config{Timeout: 5 * time.Second, MaxBodyBytes: 16}, zerolog.Nop())
	loader := NewLoader(client, endpoint, zerolog.Nop())

	items, err := loader.Search(context.Background(), "mail")

	require.ErrorIs(t, err, ErrInvalidData)
	assert.NotErrorIs(t, err, ErrConnectivity)
	assert.Nil(t, items)
}
