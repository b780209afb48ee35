package crawler

import (
	"net/http"
	"time"

	"github.com/PentesterFlow/SiteScout/internal/fetcher"
	"github.com/PentesterFlow/SiteScout/internal/logger"
	"github.com/PentesterFlow/SiteScout/internal/metrics"
	"github.com/PentesterFlow/SiteScout/internal/scope"
)

// Option is a functional option for configuring the Crawler.
type Option func(*Crawler) error

// WithConfig sets the entire configuration. Options applied after it adjust
// a copy, never the caller's value.
func WithConfig(config *Config) Option {
	return func(c *Crawler) error {
		c.config = config.Clone()
		return nil
	}
}

// WithTarget sets the seed used when Run is called with an empty URL.
func WithTarget(url string) Option {
	return func(c *Crawler) error {
		c.config.Target = url
		return nil
	}
}

// WithMaxDepth sets the maximum crawl depth.
func WithMaxDepth(depth int) Option {
	return func(c *Crawler) error {
		if depth < 0 {
			depth = 0
		}
		c.config.Depth = depth
		return nil
	}
}

// WithMaxPages sets the page budget. Zero removes it.
func WithMaxPages(n int) Option {
	return func(c *Crawler) error {
		if n < 0 {
			n = 0
		}
		c.config.MaxPages = n
		return nil
	}
}

// WithConcurrency sets the number of concurrent workers.
func WithConcurrency(n int) Option {
	return func(c *Crawler) error {
		if n < 1 {
			n = 1
		}
		c.config.Concurrency = n
		return nil
	}
}

// WithPageTimeout sets the per-page fetch deadline.
func WithPageTimeout(timeout time.Duration) Option {
	return func(c *Crawler) error {
		c.config.PageTimeoutMs = int(timeout / time.Millisecond)
		return nil
	}
}

// WithCrawlTimeout bounds the whole run.
func WithCrawlTimeout(timeout time.Duration) Option {
	return func(c *Crawler) error {
		c.config.CrawlTimeoutMs = int(timeout / time.Millisecond)
		return nil
	}
}

// WithExcludePatterns adds URL patterns to exclude.
func WithExcludePatterns(patterns ...string) Option {
	return func(c *Crawler) error {
		c.config.ExcludePatterns = append(c.config.ExcludePatterns, patterns...)
		return nil
	}
}

// WithAllowedOrigins adds origins that may be crawled besides the seed's.
func WithAllowedOrigins(origins ...string) Option {
	return func(c *Crawler) error {
		c.config.AllowedOrigins = append(c.config.AllowedOrigins, origins...)
		return nil
	}
}

// WithRespectRobotsTxt enables/disables robots.txt respect.
func WithRespectRobotsTxt(respect bool) Option {
	return func(c *Crawler) error {
		c.config.RespectRobotsTxt = respect
		return nil
	}
}

// WithRateLimit sets the per-host request rate. Zero disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Crawler) error {
		c.config.RequestsPerSecond = rps
		c.config.Burst = burst
		return nil
	}
}

// WithMaxRetries sets how often timeouts and network errors are retried.
func WithMaxRetries(n int) Option {
	return func(c *Crawler) error {
		c.config.MaxRetries = n
		return nil
	}
}

// WithUserAgent sets the user agent string.
func WithUserAgent(ua string) Option {
	return func(c *Crawler) error {
		c.config.UserAgent = ua
		return nil
	}
}

// WithHeaders sets extra headers for every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Crawler) error {
		if c.config.Headers == nil {
			c.config.Headers = make(map[string]string)
		}
		for k, v := range headers {
			c.config.Headers[k] = v
		}
		return nil
	}
}

// WithEngine selects the fetch engine built when no fetcher is supplied.
func WithEngine(engine string) Option {
	return func(c *Crawler) error {
		c.config.Engine = engine
		return nil
	}
}

// WithFetcher supplies the page fetcher. The crawler does not close it.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(c *Crawler) error {
		c.fetcher = f
		return nil
	}
}

// WithRobotsChecker replaces the robots.txt cache, e.g. in tests.
func WithRobotsChecker(r scope.RobotsChecker) Option {
	return func(c *Crawler) error {
		c.robots = r
		return nil
	}
}

// WithRobotsClient sets the HTTP client used for robots.txt.
func WithRobotsClient(client *http.Client) Option {
	return func(c *Crawler) error {
		c.robotsClient = client
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Crawler) error {
		c.logger = l
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Crawler) error {
		c.metrics = m
		return nil
	}
}

// WithPageHook registers a function called for every recorded page.
func WithPageHook(hook PageHook) Option {
	return func(c *Crawler) error {
		if hook != nil {
			c.hooks = append(c.hooks, hook)
		}
		return nil
	}
}
