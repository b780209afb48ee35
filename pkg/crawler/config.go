package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/SiteScout/internal/browser"
	"github.com/PentesterFlow/SiteScout/internal/fetcher"
	httpclient "github.com/PentesterFlow/SiteScout/internal/http"
	"github.com/PentesterFlow/SiteScout/internal/logger"
	"github.com/PentesterFlow/SiteScout/internal/normalize"
	"github.com/PentesterFlow/SiteScout/internal/output"
	"github.com/PentesterFlow/SiteScout/internal/scope"
)

// AppName is used for the per-user config directory.
const AppName = "sitescout"

// DefaultUserAgent identifies the crawler to the sites it visits.
const DefaultUserAgent = "Mozilla/5.0 Website-Test-Bot"

// Config holds all crawler configuration.
type Config struct {
	// Seed URL, used when Run is called without one
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// Maximum link distance from the seed
	Depth int `json:"depth" yaml:"depth"`

	// Maximum number of pages admitted to the crawl (0 = no limit)
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// Number of concurrent workers
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Per-page fetch deadline
	PageTimeoutMs int `json:"page_timeout_ms" yaml:"page_timeout_ms"`

	// Whole-run deadline (0 = none)
	CrawlTimeoutMs int `json:"crawl_timeout_ms" yaml:"crawl_timeout_ms"`

	// Settle time after the load event in the browser engine
	WaitAfterLoadMs int `json:"wait_after_load_ms" yaml:"wait_after_load_ms"`

	// Regular expressions; a URL matching any of them is never fetched
	ExcludePatterns []string `json:"exclude_patterns" yaml:"exclude_patterns"`

	// Also exclude logout and account-deletion style links
	ExcludeSessionLinks bool `json:"exclude_session_links" yaml:"exclude_session_links"`

	// Origins besides the seed's that may be crawled
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`

	// Extra static extensions to skip, added to the built-in list
	SkipExtensions []string `json:"skip_extensions" yaml:"skip_extensions"`

	RespectRobotsTxt bool              `json:"respect_robots_txt" yaml:"respect_robots_txt"`
	UserAgent        string            `json:"user_agent" yaml:"user_agent"`
	Headers          map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Retries for timeouts and network errors
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Per-host politeness (0 = unlimited)
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`

	// Fetch engine: http, browser or hybrid
	Engine string `json:"engine" yaml:"engine"`

	// Browser settings
	Headless           bool   `json:"headless" yaml:"headless"`
	ViewportWidth      int    `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight     int    `json:"viewport_height" yaml:"viewport_height"`
	CaptureScreenshots bool   `json:"capture_screenshots" yaml:"capture_screenshots"`
	ScreenshotDir      string `json:"screenshot_dir" yaml:"screenshot_dir"`
	BrowserURL         string `json:"browser_url,omitempty" yaml:"browser_url,omitempty"`

	// Output configuration
	Output output.Config `json:"output" yaml:"output"`

	// Logging
	Log LogConfig `json:"log" yaml:"log"`
}

// LogConfig selects log verbosity and format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Depth:             3,
		MaxPages:          100,
		Concurrency:       2,
		PageTimeoutMs:     30000,
		WaitAfterLoadMs:   1000,
		ExcludePatterns:   []string{},
		RespectRobotsTxt:  true,
		UserAgent:         DefaultUserAgent,
		RequestsPerSecond: 10,
		Burst:             5,
		Engine:            fetcher.EngineHybrid,
		Headless:          true,
		ViewportWidth:     1280,
		ViewportHeight:    720,
		ScreenshotDir:     "screenshots",
		Output: output.Config{
			Format: output.FormatJSON,
			Pretty: true,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// DefaultConfigPaths are tried in order when no config file is named.
var DefaultConfigPaths = []string{
	"bot.yaml",
	"bot.yml",
	filepath.Join("config", "bot.yaml"),
}

// UserConfigPath is the per-user config file.
func UserConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// FindConfigFile returns explicit when set, otherwise the first existing file
// among DefaultConfigPaths and UserConfigPath. It returns "" when there is
// none.
func FindConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %w", err)
		}
		return explicit, nil
	}

	for _, p := range append(append([]string(nil), DefaultConfigPaths...), UserConfigPath()) {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", nil
}

// LoadFromFile loads configuration from a file (JSON or YAML). Missing keys
// keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		config = DefaultConfig()
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file, as JSON when the name ends in
// .json and YAML otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Depth < 0 {
		return fmt.Errorf("depth must not be negative")
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max_pages must not be negative")
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	if c.PageTimeoutMs < 1 {
		return fmt.Errorf("page_timeout_ms must be positive")
	}

	if c.CrawlTimeoutMs < 0 || c.WaitAfterLoadMs < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}

	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}

	switch c.Engine {
	case fetcher.EngineHTTP:
	case fetcher.EngineBrowser, fetcher.EngineHybrid:
		if c.ViewportWidth < 1 || c.ViewportHeight < 1 {
			return fmt.Errorf("viewport must be at least 1x1")
		}
	default:
		return fmt.Errorf("unknown engine %q (want http, browser or hybrid)", c.Engine)
	}

	if c.CaptureScreenshots && c.Engine == fetcher.EngineHTTP {
		return fmt.Errorf("capture_screenshots needs the browser or hybrid engine")
	}

	if c.Target != "" {
		if _, err := normalize.Parse(c.Target); err != nil {
			return fmt.Errorf("invalid target: %w", err)
		}
	}

	if _, err := c.excludePatterns(); err != nil {
		return err
	}

	if c.Log.Level != "" {
		if _, err := logger.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("invalid log level %q", c.Log.Level)
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	return clone
}

// PageTimeout returns the per-page deadline.
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutMs) * time.Millisecond
}

// CrawlTimeout returns the whole-run deadline, zero when unbounded.
func (c *Config) CrawlTimeout() time.Duration {
	return time.Duration(c.CrawlTimeoutMs) * time.Millisecond
}

func (c *Config) excludePatterns() ([]*regexp.Regexp, error) {
	patterns := c.ExcludePatterns
	if c.ExcludeSessionLinks {
		patterns = append(append([]string(nil), patterns...), scope.SessionExcludePatterns...)
	}
	return scope.CompilePatterns(patterns)
}

// Budget compiles the run limits. The result is never mutated by a run.
func (c *Config) Budget() (Budget, error) {
	exclude, err := c.excludePatterns()
	if err != nil {
		return Budget{}, err
	}

	return Budget{
		MaxDepth:        c.Depth,
		MaxPages:        c.MaxPages,
		Concurrency:     c.Concurrency,
		PageTimeout:     c.PageTimeout(),
		RunTimeout:      c.CrawlTimeout(),
		ExcludePatterns: exclude,
		AllowedOrigins:  append([]string(nil), c.AllowedOrigins...),
		SkipExtensions:  scope.MergeExtensions(c.SkipExtensions),
		RespectRobots:   c.RespectRobotsTxt,
		UserAgent:       c.UserAgent,
		MaxRetries:      c.MaxRetries,
	}, nil
}

// HTTPConfig derives the HTTP engine settings.
func (c *Config) HTTPConfig() httpclient.Config {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = c.PageTimeout()
	cfg.MaxConnsPerHost = max(cfg.MaxConnsPerHost, c.Concurrency)
	cfg.Headers = c.Headers
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	return cfg
}

// BrowserConfig derives the browser engine settings.
func (c *Config) BrowserConfig() browser.Config {
	cfg := browser.DefaultConfig()
	cfg.PoolSize = c.Concurrency
	cfg.Headless = c.Headless
	cfg.Timeout = c.PageTimeout()
	cfg.Headers = c.Headers
	cfg.ControlURL = c.BrowserURL
	cfg.ViewportWidth = c.ViewportWidth
	cfg.ViewportHeight = c.ViewportHeight
	cfg.WaitAfterLoad = time.Duration(c.WaitAfterLoadMs) * time.Millisecond
	cfg.Screenshots = c.CaptureScreenshots
	if c.ScreenshotDir != "" {
		cfg.ScreenshotDir = c.ScreenshotDir
	}
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	return cfg
}
