package ratelimit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/PentesterFlow/SiteScout/internal/normalize"
)

const maxRobotsSize = 512 * 1024

// RobotsCache fetches robots.txt once per origin and answers whether a URL
// may be crawled. It lives for a single run. Any failure to obtain rules,
// including a 5xx response, means everything is allowed.
type RobotsCache struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	limiter   *Limiter
	logger    zerolog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	rules map[string]*robotstxt.Group // nil group: allow all
	sites map[string][]string
}

// NewRobotsCache creates a cache that identifies itself as userAgent.
func NewRobotsCache(userAgent string, client *http.Client) *RobotsCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsCache{
		client:    client,
		userAgent: userAgent,
		timeout:   10 * time.Second,
		logger:    zerolog.Nop(),
		rules:     make(map[string]*robotstxt.Group),
		sites:     make(map[string][]string),
	}
}

// SetLimiter makes Crawl-delay directives slow down the given limiter.
func (c *RobotsCache) SetLimiter(l *Limiter) {
	c.limiter = l
}

// SetLogger sets the logger used for fetch failures.
func (c *RobotsCache) SetLogger(l zerolog.Logger) {
	c.logger = l
}

// SetTimeout bounds a single robots.txt fetch.
func (c *RobotsCache) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Allowed reports whether robots.txt for u's origin permits fetching u.
func (c *RobotsCache) Allowed(ctx context.Context, u normalize.CanonicalURL) bool {
	group := c.groupFor(ctx, u.Origin())
	if group == nil {
		return true
	}
	return group.Test(u.RequestURI())
}

// CrawlDelay returns the Crawl-delay for origin, fetching rules if needed.
func (c *RobotsCache) CrawlDelay(ctx context.Context, origin string) time.Duration {
	group := c.groupFor(ctx, origin)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// Sitemaps returns the sitemap URLs announced by origin, if its rules have
// been fetched.
func (c *RobotsCache) Sitemaps(origin string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sites[origin]
}

// Len returns the number of origins with cached results.
func (c *RobotsCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

func (c *RobotsCache) groupFor(ctx context.Context, origin string) *robotstxt.Group {
	c.mu.RLock()
	group, ok := c.rules[origin]
	c.mu.RUnlock()
	if ok {
		return group
	}

	v, _, _ := c.group.Do(origin, func() (interface{}, error) {
		c.mu.RLock()
		group, ok := c.rules[origin]
		c.mu.RUnlock()
		if ok {
			return group, nil
		}

		group, sitemaps, err := c.fetch(ctx, origin)
		if err != nil {
			c.logger.Debug().Err(err).Str("origin", origin).Msg("robots.txt unavailable, allowing all")
		}

		c.mu.Lock()
		c.rules[origin] = group
		c.sites[origin] = sitemaps
		c.mu.Unlock()

		if group != nil && group.CrawlDelay > 0 && c.limiter != nil {
			if u, err := normalize.Parse(origin); err == nil {
				c.limiter.SetHostDelay(u.Host(), group.CrawlDelay)
			}
		}
		return group, nil
	})

	group, _ = v.(*robotstxt.Group)
	return group
}

// fetch retrieves and parses robots.txt. A nil group means allow all. The
// fetch is detached from the caller's cancellation so that one cancelled
// worker cannot poison the shared result.
func (c *RobotsCache) fetch(ctx context.Context, origin string) (*robotstxt.Group, []string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build robots request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, nil, fmt.Errorf("robots returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil, nil, fmt.Errorf("read robots.txt: %w", err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	return data.FindGroup(c.userAgent), data.Sitemaps, nil
}
