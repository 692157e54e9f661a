// Package robots checks robots.txt compliance with a per-host in-process
// cache. The cache is owned by the supervisor and injected into workers;
// there is no package-level state.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// Default cache TTL for robots.txt entries.
const DefaultCacheTTL = 12 * time.Hour

const robotsTxtPath = "/robots.txt"

// maxRobotsBodyBytes limits the size of robots.txt responses we will read.
const maxRobotsBodyBytes = 512 * 1024 // 512 KB

// Checker fetches and caches robots.txt rules per host. Unreachable or
// missing robots.txt is treated as allow-all (fail-open): politeness signals
// that cannot be read must not stall the crawl.
type Checker struct {
	httpClient *http.Client
	userAgent  string
	cacheTTL   time.Duration

	mu    sync.Mutex
	cache map[string]*cacheEntry // keyed by host
}

type cacheEntry struct {
	data      *robotstxt.RobotsData // nil means allow-all
	fetchedAt time.Time
}

// NewChecker creates a robots checker with the given HTTP client and agent.
// A nil client gets a default one with a 10 second timeout.
func NewChecker(httpClient *http.Client, userAgent string, cacheTTL time.Duration) *Checker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}

	return &Checker{
		httpClient: httpClient,
		userAgent:  userAgent,
		cacheTTL:   cacheTTL,
		cache:      make(map[string]*cacheEntry),
	}
}

// IsAllowed reports whether the URL may be fetched under the host's
// robots.txt. Concurrent calls for the same cold host may each issue a
// fetch; the last writer wins, which is accepted for simplicity.
func (c *Checker) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("robots: parse url: %w", err)
	}

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return false, fmt.Errorf("robots: empty host in url %q", rawURL)
	}

	entry := c.cached(host)
	if entry == nil {
		entry = c.fetchAndCache(ctx, host, parsed.Scheme)
	}

	if entry.data == nil {
		return true, nil
	}

	return entry.data.TestAgent(pathWithQuery(parsed), c.userAgent), nil
}

func pathWithQuery(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

// cached returns the entry for host if present and fresh.
func (c *Checker) cached(host string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[host]
	if !ok || time.Since(entry.fetchedAt) > c.cacheTTL {
		return nil
	}

	return entry
}

// fetchAndCache fetches robots.txt for the host and stores the result.
// 404 and server errors both cache an allow-all entry.
func (c *Checker) fetchAndCache(ctx context.Context, host, scheme string) *cacheEntry {
	if scheme == "" {
		scheme = "http"
	}

	entry := &cacheEntry{fetchedAt: time.Now()}

	body, statusCode, fetchErr := c.fetchRobots(ctx, scheme+"://"+host+robotsTxtPath)
	if fetchErr == nil {
		entry.data = parseRobots(body, statusCode)
	}

	c.mu.Lock()
	c.cache[host] = entry
	c.mu.Unlock()

	return entry
}

// parseRobots maps a robots.txt response to parsed rules or nil (allow-all).
func parseRobots(body []byte, statusCode int) *robotstxt.RobotsData {
	if statusCode == http.StatusNotFound || statusCode >= http.StatusInternalServerError {
		return nil
	}

	data, parseErr := robotstxt.FromBytes(body)
	if parseErr != nil {
		return nil
	}

	return data
}

func (c *Checker) fetchRobots(ctx context.Context, robotsURL string) (body []byte, statusCode int, err error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if reqErr != nil {
		return nil, 0, fmt.Errorf("robots: create request: %w", reqErr)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, 0, fmt.Errorf("robots: fetch: %w", doErr)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxRobotsBodyBytes)

	body, readErr := io.ReadAll(limited)
	if readErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("robots: read body: %w", readErr)
	}

	return body, resp.StatusCode, nil
}
