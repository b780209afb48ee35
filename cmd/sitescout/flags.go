package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/SiteScout/pkg/crawler"
)

// Crawl flags. Only flags set on the command line override the config file.
var (
	depth          int
	maxPages       int
	concurrency    int
	pageTimeout    int
	crawlTimeout   int
	waitAfterLoad  int
	excludes       []string
	sessionLinks   bool
	allowOrigins   []string
	skipExtensions []string
	respectRobots  bool
	userAgent      string
	headers        []string
	maxRetries     int
	rateLimit      float64
	burst          int
	engine         string
	headless       bool
	screenshots    bool
	screenshotDir  string
	browserURL     string

	outputFile   string
	outputFormat string
	pretty       bool
	stream       bool
	boltPath     string
	eventsURL    string
)

func registerCrawlFlags(cmd *cobra.Command) {
	defaults := crawler.DefaultConfig()
	f := cmd.Flags()

	// Budget flags
	f.IntVarP(&depth, "depth", "d", defaults.Depth, "Maximum link distance from the seed")
	f.IntVarP(&maxPages, "max-pages", "m", defaults.MaxPages, "Maximum pages to crawl (0 = no limit)")
	f.IntVarP(&concurrency, "concurrency", "n", defaults.Concurrency, "Number of concurrent workers")
	f.IntVarP(&pageTimeout, "timeout", "t", defaults.PageTimeoutMs, "Per-page timeout in milliseconds")
	f.IntVar(&crawlTimeout, "crawl-timeout", defaults.CrawlTimeoutMs, "Whole-crawl timeout in milliseconds (0 = none)")
	f.IntVar(&waitAfterLoad, "wait-after-load", defaults.WaitAfterLoadMs, "Browser settle time after load in milliseconds")

	// Scope flags
	f.StringArrayVar(&excludes, "exclude", nil, "URL patterns to exclude (regex, repeatable)")
	f.BoolVar(&sessionLinks, "exclude-session-links", defaults.ExcludeSessionLinks, "Skip logout and account-deletion links")
	f.StringArrayVar(&allowOrigins, "allow-origin", nil, "Extra origin to crawl (repeatable)")
	f.StringSliceVar(&skipExtensions, "skip-ext", nil, "Extra file extensions to skip")
	f.BoolVar(&respectRobots, "respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt")

	// Request flags
	f.StringVarP(&userAgent, "user-agent", "A", defaults.UserAgent, "User agent string")
	f.StringArrayVarP(&headers, "header", "H", nil, `Extra request header "Name: value" (repeatable)`)
	f.IntVar(&maxRetries, "retries", defaults.MaxRetries, "Retries for timeouts and network errors")
	f.Float64VarP(&rateLimit, "rate-limit", "r", defaults.RequestsPerSecond, "Requests per second per host (0 = unlimited)")
	f.IntVar(&burst, "burst", defaults.Burst, "Request burst per host")

	// Engine flags
	f.StringVarP(&engine, "engine", "e", defaults.Engine, "Fetch engine: http, browser or hybrid")
	f.BoolVar(&headless, "headless", defaults.Headless, "Run the browser headless")
	f.BoolVar(&screenshots, "screenshots", defaults.CaptureScreenshots, "Capture a screenshot of every page")
	f.StringVar(&screenshotDir, "screenshot-dir", defaults.ScreenshotDir, "Screenshot directory")
	f.StringVar(&browserURL, "browser-url", "", "Connect to a running browser instead of launching one")

	// Output flags
	f.StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	f.StringVarP(&outputFormat, "format", "F", "", "Output format: json or yaml (default: from file extension)")
	f.BoolVar(&pretty, "pretty", defaults.Output.Pretty, "Indent JSON output")
	f.BoolVar(&stream, "stream", defaults.Output.Stream, "Stream one JSON line per page")
	f.StringVar(&boltPath, "bolt", "", "Also store pages in a bbolt database")
	f.StringVar(&eventsURL, "events-url", "", "Publish page events to a websocket endpoint")
}

// applyCrawlFlags copies the flags set on the command line into config.
func applyCrawlFlags(cmd *cobra.Command, config *crawler.Config) error {
	changed := cmd.Flags().Changed

	if changed("depth") {
		config.Depth = depth
	}
	if changed("max-pages") {
		config.MaxPages = maxPages
	}
	if changed("concurrency") {
		config.Concurrency = concurrency
	}
	if changed("timeout") {
		config.PageTimeoutMs = pageTimeout
	}
	if changed("crawl-timeout") {
		config.CrawlTimeoutMs = crawlTimeout
	}
	if changed("wait-after-load") {
		config.WaitAfterLoadMs = waitAfterLoad
	}

	config.ExcludePatterns = append(config.ExcludePatterns, excludes...)
	config.AllowedOrigins = append(config.AllowedOrigins, allowOrigins...)
	config.SkipExtensions = append(config.SkipExtensions, skipExtensions...)
	if changed("exclude-session-links") {
		config.ExcludeSessionLinks = sessionLinks
	}
	if changed("respect-robots") {
		config.RespectRobotsTxt = respectRobots
	}

	if changed("user-agent") {
		config.UserAgent = userAgent
	}
	if len(headers) > 0 {
		parsed, err := parseHeaders(headers)
		if err != nil {
			return err
		}
		if config.Headers == nil {
			config.Headers = make(map[string]string)
		}
		for k, v := range parsed {
			config.Headers[k] = v
		}
	}
	if changed("retries") {
		config.MaxRetries = maxRetries
	}
	if changed("rate-limit") {
		config.RequestsPerSecond = rateLimit
	}
	if changed("burst") {
		config.Burst = burst
	}

	if changed("engine") {
		config.Engine = engine
	}
	if changed("headless") {
		config.Headless = headless
	}
	if changed("screenshots") {
		config.CaptureScreenshots = screenshots
	}
	if changed("screenshot-dir") {
		config.ScreenshotDir = screenshotDir
	}
	if changed("browser-url") {
		config.BrowserURL = browserURL
	}

	if changed("output") {
		config.Output.Path = outputFile
		if !changed("format") {
			// Let the file extension pick the format.
			config.Output.Format = ""
		}
	}
	if changed("format") {
		config.Output.Format = outputFormat
	}
	if changed("pretty") {
		config.Output.Pretty = pretty
	}
	if changed("stream") {
		config.Output.Stream = stream
	}
	if changed("bolt") {
		config.Output.BoltPath = boltPath
	}
	if changed("events-url") {
		config.Output.EventsURL = eventsURL
	}

	return nil
}

// parseHeaders turns "Name: value" pairs into a map.
func parseHeaders(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q (want \"Name: value\")", h)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}
