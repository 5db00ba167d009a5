package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// ErrFetchDenied signals that robots.txt disallows a URL. It is a normal
// stop condition for the pipeline, not a fault.
var ErrFetchDenied = errors.New("fetch disallowed by robots policy")

// RobotsPolicy answers whether a URL may be fetched for our user agent.
type RobotsPolicy interface {
	Allowed(pageURL string) bool
}

// RobotsCache caches the published robots.txt body so repeated runs do not
// refetch it. Backed by Redis in production, nil in tests.
type RobotsCache interface {
	CachedRobots(ctx context.Context, origin string) (string, bool, error)
	CacheRobots(ctx context.Context, origin, body string, ttl time.Duration) error
}

type robotsPolicy struct {
	group *robotstxt.Group
}

func (p *robotsPolicy) Allowed(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	return p.group.Test(u.RequestURI())
}

// allowAllPolicy is used when robots.txt is absent (the robotstxt library
// already treats 4xx statuses as allow-all; this covers explicit opt-out).
type allowAllPolicy struct{}

func (allowAllPolicy) Allowed(string) bool { return true }

// Fetcher retrieves listing pages over HTTP with retry/backoff, gated by the
// site's robots policy and a fixed descriptive user agent.
type Fetcher struct {
	client    *retryablehttp.Client
	baseURL   string
	userAgent string
	cache     RobotsCache
	logger    *zap.Logger

	mu     sync.Mutex
	policy RobotsPolicy
}

const robotsCacheTTL = 24 * time.Hour

func NewFetcher(baseURL, userAgent string, timeout time.Duration, retries int, cache RobotsCache, logger *zap.Logger) *Fetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.HTTPClient.Timeout = timeout
	client.Logger = nil // retry attempts are logged through zap instead

	return &Fetcher{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		cache:     cache,
		logger:    logger,
	}
}

// PageURL builds the survey listing URL for a 1-based page number. Page one
// is the bare listing path; later pages add a page query parameter.
func (f *Fetcher) PageURL(page int) string {
	if page <= 1 {
		return f.baseURL + "/survey/"
	}
	return fmt.Sprintf("%s/survey/?page=%d", f.baseURL, page)
}

// FetchPage fetches one listing page, first checking the robots policy.
// Returns ErrFetchDenied when the policy disallows the URL.
func (f *Fetcher) FetchPage(ctx context.Context, page int) ([]byte, error) {
	pageURL := f.PageURL(page)

	policy, err := f.robotsPolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load robots policy: %w", err)
	}
	if !policy.Allowed(pageURL) {
		f.logger.Info("robots policy disallows page", zap.String("url", pageURL))
		return nil, ErrFetchDenied
	}

	body, status, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", pageURL, status)
	}
	return body, nil
}

// robotsPolicy loads and memoizes the robots policy for the listing origin.
func (f *Fetcher) robotsPolicy(ctx context.Context) (RobotsPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.policy != nil {
		return f.policy, nil
	}

	body, status, err := f.fetchRobots(ctx)
	if err != nil {
		return nil, err
	}

	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		f.logger.Warn("robots.txt unparseable, allowing all", zap.Error(err))
		f.policy = allowAllPolicy{}
		return f.policy, nil
	}

	f.logger.Info("robots.txt checked", zap.String("origin", f.baseURL))
	f.policy = &robotsPolicy{group: data.FindGroup(f.userAgent)}
	return f.policy, nil
}

func (f *Fetcher) fetchRobots(ctx context.Context) ([]byte, int, error) {
	robotsURL := f.baseURL + "/robots.txt"

	if f.cache != nil {
		if cached, ok, err := f.cache.CachedRobots(ctx, f.baseURL); err != nil {
			f.logger.Warn("robots cache read failed", zap.Error(err))
		} else if ok {
			return []byte(cached), http.StatusOK, nil
		}
	}

	body, status, err := f.get(ctx, robotsURL)
	if err != nil {
		return nil, 0, err
	}

	if f.cache != nil && status == http.StatusOK {
		if err := f.cache.CacheRobots(ctx, f.baseURL, string(body), robotsCacheTTL); err != nil {
			f.logger.Warn("robots cache write failed", zap.Error(err))
		}
	}
	return body, status, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
