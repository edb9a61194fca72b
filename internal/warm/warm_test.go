package warm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/storefront/internal/fetcher/colly"
	"github.com/JakeFAU/storefront/internal/navaccel"
	"github.com/JakeFAU/storefront/internal/policy/ratelimit"
)

const startPage = `<!doctype html>
<html><body>
<header><a href="/">Home</a><a href="/about">About</a></header>
<main>
  <a data-prefetch href="/products/mug">Mug</a>
  <a data-prefetch href="/products/mug#reviews">Reviews</a>
  <a data-prefetch href="/missing">Gone</a>
  <a data-prefetch download href="/files/catalog.pdf">PDF</a>
  <a href="/products/tee">Not opted in</a>
</main>
<footer><a href="https://other.example/">Partner</a></footer>
</body></html>`

type shopServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newShopServer(t *testing.T) *shopServer {
	t.Helper()
	s := &shopServer{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(startPage))
		case "/about", "/products/mug", "/products/tee":
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *shopServer) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

type countingPacer struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPacer) Wait(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil
}

func TestRunPrefetchesEligibleLinksOnce(t *testing.T) {
	t.Parallel()

	srv := newShopServer(t)
	pacer := &countingPacer{}
	w := New(collyfetcher.New(collyfetcher.Config{}, nil, nil), pacer, navaccel.HTTPFetch(srv.Client()), nil)

	report, err := w.Run(context.Background(), Options{StartURL: srv.URL + "/", FetchTimeout: 5 * time.Second})
	require.NoError(t, err)
	require.Equal(t, navaccel.DefaultSelector, report.Selector)
	require.Equal(t, 7, report.Anchors)
	require.Equal(t, 3, report.Eligible)
	require.Equal(t, 2, report.Fetched)
	require.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	require.Contains(t, report.Failures[0], "/missing")
	require.False(t, report.Truncated)

	require.Equal(t, 1, srv.hitCount("/"), "start page is fetched once and never prefetched")
	require.Equal(t, 1, srv.hitCount("/products/mug"), "fragment variants share one fetch")
	require.Equal(t, 1, srv.hitCount("/about"))
	require.Zero(t, srv.hitCount("/products/tee"))
	require.Zero(t, srv.hitCount("/files/catalog.pdf"))
	require.Equal(t, 3, pacer.calls)
}

func TestRunRespectsMaxLinks(t *testing.T) {
	t.Parallel()

	srv := newShopServer(t)
	w := New(collyfetcher.New(collyfetcher.Config{}, nil, nil), ratelimit.New(ratelimit.Config{}), navaccel.HTTPFetch(srv.Client()), nil)

	report, err := w.Run(context.Background(), Options{StartURL: srv.URL + "/", MaxLinks: 2})
	require.NoError(t, err)
	require.True(t, report.Truncated)
	require.Equal(t, 1, report.Eligible)
	require.Equal(t, 1, report.Fetched)
	require.Zero(t, srv.hitCount("/products/mug"))
}

func TestRunCustomSelector(t *testing.T) {
	t.Parallel()

	srv := newShopServer(t)
	w := New(collyfetcher.New(collyfetcher.Config{}, nil, nil), nil, navaccel.HTTPFetch(srv.Client()), nil)

	report, err := w.Run(context.Background(), Options{StartURL: srv.URL + "/", Selector: "main a"})
	require.NoError(t, err)
	require.Equal(t, "main a", report.Selector)
	require.Equal(t, 5, report.Anchors)
	require.Equal(t, 3, report.Eligible)
	require.Equal(t, 1, srv.hitCount("/products/tee"))
	require.Zero(t, srv.hitCount("/about"))
}

func TestRunStartPageFailure(t *testing.T) {
	t.Parallel()

	srv := newShopServer(t)
	w := New(collyfetcher.New(collyfetcher.Config{}, nil, nil), nil, navaccel.HTTPFetch(srv.Client()), nil)

	_, err := w.Run(context.Background(), Options{StartURL: srv.URL + "/nowhere"})
	require.Error(t, err)
}

func TestRunValidatesOptions(t *testing.T) {
	t.Parallel()

	w := New(nil, nil, func(context.Context, string) error { return nil }, nil)
	_, err := w.Run(context.Background(), Options{})
	require.Error(t, err)

	w = New(nil, nil, nil, nil)
	_, err = w.Run(context.Background(), Options{StartURL: "https://shop.example/"})
	require.Error(t, err)
}

func TestRunReportsAssumedRobotsPolicy(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><a data-prefetch href="/products/mug">Mug</a></body></html>`))
		default:
			_, _ = w.Write([]byte("<html></html>"))
		}
	}))
	t.Cleanup(srv.Close)

	pages := collyfetcher.New(collyfetcher.Config{RespectRobots: true}, nil, nil)
	w := New(pages, nil, navaccel.HTTPFetch(srv.Client()), nil)

	report, err := w.Run(context.Background(), Options{StartURL: srv.URL + "/", FetchTimeout: 5 * time.Second})
	require.NoError(t, err)
	require.NotEmpty(t, report.RobotsNote)
	require.Equal(t, 1, report.Fetched)
}
