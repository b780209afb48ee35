package fetcher

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/PentesterFlow/SiteScout/internal/errors"
	"github.com/PentesterFlow/SiteScout/internal/parser"
)

// Hybrid fetches over plain HTTP and falls back to a browser when the
// response looks client-rendered or the request failed. A non-HTML response
// is final. While the browser keeps failing, fallbacks are skipped.
type Hybrid struct {
	http    Fetcher
	browser Fetcher
	breaker *errors.Breaker
	logger  zerolog.Logger

	httpPages    atomic.Int64
	browserPages atomic.Int64
	fallbacks    atomic.Int64
	skipped      atomic.Int64
}

// NewHybrid combines an HTTP and a browser fetcher.
func NewHybrid(http, browser Fetcher, logger zerolog.Logger) *Hybrid {
	return NewHybridWithBreaker(http, browser, errors.NewBreaker(errors.DefaultBreakerConfig()), logger)
}

// NewHybridWithBreaker is NewHybrid with a caller-supplied browser breaker.
func NewHybridWithBreaker(http, browser Fetcher, breaker *errors.Breaker, logger zerolog.Logger) *Hybrid {
	breaker.OnStateChange(func(from, to errors.BreakerState) {
		logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("browser breaker changed state")
	})
	return &Hybrid{
		http:    http,
		browser: browser,
		breaker: breaker,
		logger:  logger,
	}
}

// Fetch implements Fetcher.
func (h *Hybrid) Fetch(ctx context.Context, url string) (*Page, error) {
	page, err := h.http.Fetch(ctx, url)
	if err == nil && page == nil {
		err = errors.NewFetchError(errors.NetworkError, url, "fetch", "http engine returned no page", nil)
	}
	switch {
	case err == nil && !parser.LooksClientRendered(page.HTML):
		h.httpPages.Add(1)
		return page, nil
	case err != nil && errors.KindOf(err) == errors.NonHTML:
		return nil, err
	case ctx.Err() != nil:
		if err != nil {
			return nil, err
		}
		h.httpPages.Add(1)
		return page, nil
	}

	if !h.breaker.Allow() {
		h.skipped.Add(1)
		if err != nil {
			return nil, err
		}
		h.httpPages.Add(1)
		return page, nil
	}

	h.fallbacks.Add(1)
	h.logger.Debug().Str("url", url).AnErr("http_error", err).Msg("falling back to browser")

	bpage, berr := h.browser.Fetch(ctx, url)
	if berr != nil || bpage == nil {
		if errors.KindOf(berr) == errors.NonHTML {
			h.breaker.Success()
		} else {
			h.breaker.Failure()
		}
		if berr == nil {
			berr = errors.NewFetchError(errors.Aborted, url, "render", "browser returned no page", nil)
		}
		if err == nil {
			// The server-rendered page is still a usable result.
			h.httpPages.Add(1)
			return page, nil
		}
		return nil, berr
	}

	h.breaker.Success()
	h.browserPages.Add(1)
	return bpage, nil
}

// Close closes both engines.
func (h *Hybrid) Close() error {
	errHTTP := Close(h.http)
	errBrowser := Close(h.browser)
	if errHTTP != nil {
		return errHTTP
	}
	return errBrowser
}

// HybridStats reports which engine produced pages.
type HybridStats struct {
	HTTPPages    int64 `json:"http_pages"`
	BrowserPages int64 `json:"browser_pages"`
	Fallbacks    int64 `json:"fallbacks"`
	Skipped      int64 `json:"skipped"`
}

// Stats returns engine usage counters.
func (h *Hybrid) Stats() HybridStats {
	return HybridStats{
		HTTPPages:    h.httpPages.Load(),
		BrowserPages: h.browserPages.Load(),
		Fallbacks:    h.fallbacks.Load(),
		Skipped:      h.skipped.Load(),
	}
}
