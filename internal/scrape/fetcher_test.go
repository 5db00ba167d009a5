package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFetcher(t *testing.T, baseURL string) *Fetcher {
	t.Helper()
	return NewFetcher(baseURL, "gradcafe-ingest-test/1.0", 5*time.Second, 1, nil, zap.NewNop())
}

func TestPageURL(t *testing.T) {
	f := newTestFetcher(t, "https://www.thegradcafe.com/")
	assert.Equal(t, "https://www.thegradcafe.com/survey/", f.PageURL(1))
	assert.Equal(t, "https://www.thegradcafe.com/survey/", f.PageURL(0))
	assert.Equal(t, "https://www.thegradcafe.com/survey/?page=3", f.PageURL(3))
}

func TestFetchPageAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.Write([]byte("User-agent: *\nAllow: /\n"))
		case "/survey/":
			assert.Contains(t, r.Header.Get("User-Agent"), "gradcafe-ingest-test")
			w.Write([]byte("<table></table>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	body, err := f.FetchPage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "<table></table>", string(body))
}

func TestFetchPageDeniedByRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /survey/\n"))
			return
		}
		t.Errorf("unexpected fetch of %s past the robots gate", r.URL.Path)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	_, err := f.FetchPage(context.Background(), 1)
	require.ErrorIs(t, err, ErrFetchDenied)
}

func TestFetchPageMissingRobotsAllowsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	body, err := f.FetchPage(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestFetchPageErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nAllow: /\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	_, err := f.FetchPage(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFetchDenied)
}

type mapRobotsCache struct {
	bodies map[string]string
	writes int
}

func (c *mapRobotsCache) CachedRobots(_ context.Context, origin string) (string, bool, error) {
	body, ok := c.bodies[origin]
	return body, ok, nil
}

func (c *mapRobotsCache) CacheRobots(_ context.Context, origin, body string, _ time.Duration) error {
	c.bodies[origin] = body
	c.writes++
	return nil
}

func TestFetchPageUsesRobotsCache(t *testing.T) {
	cache := &mapRobotsCache{bodies: map[string]string{}}

	robotsFetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsFetches++
			w.Write([]byte("User-agent: *\nAllow: /\n"))
			return
		}
		w.Write([]byte("page"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "gradcafe-ingest-test/1.0", 5*time.Second, 1, cache, zap.NewNop())
	_, err := f.FetchPage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, robotsFetches)
	assert.Equal(t, 1, cache.writes)

	// A second fetcher (fresh process) reads robots from the cache.
	f2 := NewFetcher(srv.URL, "gradcafe-ingest-test/1.0", 5*time.Second, 1, cache, zap.NewNop())
	_, err = f2.FetchPage(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, robotsFetches)
}
