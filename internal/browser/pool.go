package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/PentesterFlow/SiteScout/internal/errors"
	"github.com/PentesterFlow/SiteScout/internal/fetcher"
)

// Pool manages a pool of browser instances and is itself a fetcher.
type Pool struct {
	mu       sync.Mutex
	browsers []*Browser
	idle     []int
	newFn    func() (*Browser, error)
	size     int
	closed   bool
	sem      chan struct{}
}

// NewPool launches config.PoolSize browsers.
func NewPool(config Config, logger zerolog.Logger) (*Pool, error) {
	return newPool(config.PoolSize, func() (*Browser, error) {
		return New(config, logger)
	})
}

func newPool(size int, newFn func() (*Browser, error)) (*Pool, error) {
	if size < 1 {
		size = 1
	}

	pool := &Pool{
		browsers: make([]*Browser, size),
		newFn:    newFn,
		size:     size,
		sem:      make(chan struct{}, size),
	}

	for i := 0; i < size; i++ {
		pool.sem <- struct{}{}
	}

	for i := 0; i < size; i++ {
		browser, err := newFn()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create browser %d: %w", i, err)
		}
		pool.browsers[i] = browser
		pool.idle = append(pool.idle, i)
	}

	return pool, nil
}

// Acquire gets a browser from the pool, recycling it when it has served
// enough pages.
func (p *Pool) Acquire(ctx context.Context) (*Browser, error) {
	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.sem <- struct{}{}
		return nil, fmt.Errorf("pool is closed")
	}

	idx := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	browser := p.browsers[idx]

	if browser == nil || browser.NeedsRecycle() {
		if browser != nil {
			browser.Close()
		}
		fresh, err := p.newFn()
		if err != nil {
			p.browsers[idx] = nil
			p.idle = append(p.idle, idx)
			p.sem <- struct{}{}
			return nil, fmt.Errorf("failed to recycle browser: %w", err)
		}
		p.browsers[idx] = fresh
		browser = fresh
	}

	return browser, nil
}

// Release returns a browser to the pool.
func (p *Pool) Release(browser *Browser) {
	p.mu.Lock()
	for i, b := range p.browsers {
		if b == browser {
			p.idle = append(p.idle, i)
			break
		}
	}
	p.mu.Unlock()
	p.sem <- struct{}{}
}

// Fetch implements fetcher.Fetcher.
func (p *Pool) Fetch(ctx context.Context, url string) (*fetcher.Page, error) {
	browser, err := p.Acquire(ctx)
	if err != nil {
		return nil, errors.Categorize(err, url)
	}
	defer p.Release(browser)

	return browser.Visit(ctx, url)
}

// Close closes all browsers in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var lastErr error
	for _, browser := range p.browsers {
		if browser != nil {
			if err := browser.Close(); err != nil {
				lastErr = err
			}
		}
	}

	return lastErr
}

// Size returns the pool size.
func (p *Pool) Size() int {
	return p.size
}

// PoolStats describes pool usage.
type PoolStats struct {
	Size       int `json:"size"`
	Available  int `json:"available"`
	TotalPages int `json:"total_pages"`
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	totalPages := 0
	for _, b := range p.browsers {
		if b != nil {
			totalPages += b.PageCount()
		}
	}

	return PoolStats{
		Size:       p.size,
		Available:  len(p.sem),
		TotalPages: totalPages,
	}
}
