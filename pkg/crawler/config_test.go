package crawler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PentesterFlow/SiteScout/internal/fetcher"
	"github.com/PentesterFlow/SiteScout/internal/output"
)

// =============================================================================
// DefaultConfig Tests
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if config.Depth != 3 {
		t.Errorf("Depth = %d, want 3", config.Depth)
	}
	if config.MaxPages != 100 {
		t.Errorf("MaxPages = %d, want 100", config.MaxPages)
	}
	if config.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", config.Concurrency)
	}
	if config.PageTimeout() != 30*time.Second {
		t.Errorf("PageTimeout() = %v, want 30s", config.PageTimeout())
	}
	if config.CrawlTimeout() != 0 {
		t.Errorf("CrawlTimeout() = %v, want 0", config.CrawlTimeout())
	}
	if !config.RespectRobotsTxt {
		t.Error("RespectRobotsTxt should be true")
	}
	if config.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", config.UserAgent, DefaultUserAgent)
	}
	if config.Engine != fetcher.EngineHybrid {
		t.Errorf("Engine = %q, want hybrid", config.Engine)
	}
	if config.CaptureScreenshots {
		t.Error("CaptureScreenshots should be false")
	}
	if config.Output.Format != output.FormatJSON {
		t.Errorf("Output.Format = %q, want json", config.Output.Format)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("DefaultConfig should validate: %v", err)
	}
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name: "valid config",
			modify: func(c *Config) {
				c.Target = "https://example.com"
			},
			wantErr: false,
		},
		{
			name:    "target is optional",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "depth zero",
			modify:  func(c *Config) { c.Depth = 0 },
			wantErr: false,
		},
		{
			name:    "negative depth",
			modify:  func(c *Config) { c.Depth = -1 },
			wantErr: true,
		},
		{
			name:    "unlimited pages",
			modify:  func(c *Config) { c.MaxPages = 0 },
			wantErr: false,
		},
		{
			name:    "negative max pages",
			modify:  func(c *Config) { c.MaxPages = -1 },
			wantErr: true,
		},
		{
			name:    "zero concurrency",
			modify:  func(c *Config) { c.Concurrency = 0 },
			wantErr: true,
		},
		{
			name:    "zero page timeout",
			modify:  func(c *Config) { c.PageTimeoutMs = 0 },
			wantErr: true,
		},
		{
			name:    "negative crawl timeout",
			modify:  func(c *Config) { c.CrawlTimeoutMs = -1 },
			wantErr: true,
		},
		{
			name:    "negative retries",
			modify:  func(c *Config) { c.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "negative rate",
			modify:  func(c *Config) { c.RequestsPerSecond = -1 },
			wantErr: true,
		},
		{
			name:    "unknown engine",
			modify:  func(c *Config) { c.Engine = "curl" },
			wantErr: true,
		},
		{
			name: "browser without viewport",
			modify: func(c *Config) {
				c.Engine = fetcher.EngineBrowser
				c.ViewportWidth = 0
			},
			wantErr: true,
		},
		{
			name: "http ignores viewport",
			modify: func(c *Config) {
				c.Engine = fetcher.EngineHTTP
				c.ViewportWidth = 0
			},
			wantErr: false,
		},
		{
			name: "screenshots need a browser",
			modify: func(c *Config) {
				c.Engine = fetcher.EngineHTTP
				c.CaptureScreenshots = true
			},
			wantErr: true,
		},
		{
			name:    "bad target",
			modify:  func(c *Config) { c.Target = "ftp://example.com" },
			wantErr: true,
		},
		{
			name:    "bad exclude pattern",
			modify:  func(c *Config) { c.ExcludePatterns = []string{"(unclosed"} },
			wantErr: true,
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Clone Tests
// =============================================================================

func TestConfig_Clone(t *testing.T) {
	original := DefaultConfig()
	original.Target = "https://example.com"
	original.Concurrency = 8
	original.Headers = map[string]string{"X-Test": "value"}
	original.ExcludePatterns = []string{`/admin`}

	clone := original.Clone()

	if clone.Target != original.Target {
		t.Errorf("Target = %s, want %s", clone.Target, original.Target)
	}
	if clone.Concurrency != original.Concurrency {
		t.Errorf("Concurrency = %d, want %d", clone.Concurrency, original.Concurrency)
	}

	clone.Concurrency = 1
	clone.Headers["X-Test"] = "changed"
	clone.ExcludePatterns[0] = "/other"
	if original.Concurrency != 8 {
		t.Error("Modifying clone affected original")
	}
	if original.Headers["X-Test"] != "value" {
		t.Error("Clone shares the headers map")
	}
	if original.ExcludePatterns[0] != `/admin` {
		t.Error("Clone shares the exclude patterns")
	}
}

// =============================================================================
// SaveToFile/LoadFromFile Tests
// =============================================================================

func TestConfig_SaveToFile_JSON(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "config.json")

	config := DefaultConfig()
	config.Target = "https://example.com"
	config.Concurrency = 6

	if err := config.SaveToFile(filePath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
	if !strings.HasPrefix(string(data), "{") {
		t.Errorf("expected JSON, got %q", data[:min(20, len(data))])
	}

	loaded, err := LoadFromFile(filePath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Target != config.Target {
		t.Errorf("Loaded Target = %s, want %s", loaded.Target, config.Target)
	}
	if loaded.Concurrency != 6 {
		t.Errorf("Loaded Concurrency = %d, want 6", loaded.Concurrency)
	}
}

func TestConfig_SaveToFile_YAML(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "nested", "bot.yaml")

	config := DefaultConfig()
	config.Target = "https://example.com"
	config.ExcludePatterns = []string{`\.zip$`}
	config.Output.Format = output.FormatYAML

	if err := config.SaveToFile(filePath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	data, _ := os.ReadFile(filePath)
	if !strings.Contains(string(data), "max_pages: 100") {
		t.Errorf("expected YAML keys, got:\n%s", data)
	}

	loaded, err := LoadFromFile(filePath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Target != config.Target {
		t.Errorf("Loaded Target = %s, want %s", loaded.Target, config.Target)
	}
	if len(loaded.ExcludePatterns) != 1 || loaded.ExcludePatterns[0] != `\.zip$` {
		t.Errorf("Loaded ExcludePatterns = %v", loaded.ExcludePatterns)
	}
	if loaded.Output.Format != output.FormatYAML {
		t.Errorf("Loaded Output.Format = %q, want yaml", loaded.Output.Format)
	}
}

func TestLoadFromFile_PartialKeepsDefaults(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "bot.yaml")
	content := "depth: 5\nengine: http\nexclude_patterns:\n  - /logout\n"
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFile(filePath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if config.Depth != 5 {
		t.Errorf("Depth = %d, want 5", config.Depth)
	}
	if config.Engine != fetcher.EngineHTTP {
		t.Errorf("Engine = %q, want http", config.Engine)
	}
	if config.MaxPages != 100 {
		t.Errorf("MaxPages = %d, want default 100", config.MaxPages)
	}
	if config.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q, want default", config.UserAgent)
	}
}

func TestLoadFromFile_NonExistent(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.json")
	if err == nil {
		t.Error("LoadFromFile() should return error for non-existent file")
	}
}

func TestLoadFromFile_InvalidContent(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "invalid.json")
	os.WriteFile(filePath, []byte("not json or yaml"), 0644)

	_, err := LoadFromFile(filePath)
	if err == nil {
		t.Error("LoadFromFile() should return error for invalid content")
	}
}

// =============================================================================
// FindConfigFile Tests
// =============================================================================

func TestFindConfigFile_Explicit(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "custom.yaml")
	os.WriteFile(filePath, []byte("depth: 1\n"), 0644)

	got, err := FindConfigFile(filePath)
	if err != nil {
		t.Fatalf("FindConfigFile() error = %v", err)
	}
	if got != filePath {
		t.Errorf("FindConfigFile() = %q, want %q", got, filePath)
	}

	if _, err := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("FindConfigFile() should fail for a missing explicit file")
	}
}

func TestUserConfigPath(t *testing.T) {
	p := UserConfigPath()
	if filepath.Base(p) != "config.yaml" {
		t.Errorf("UserConfigPath() = %q, want config.yaml", p)
	}
	if filepath.Base(filepath.Dir(p)) != AppName {
		t.Errorf("UserConfigPath() = %q, want %s directory", p, AppName)
	}
}

// =============================================================================
// Budget Tests
// =============================================================================

func TestConfig_Budget(t *testing.T) {
	config := DefaultConfig()
	config.Depth = 2
	config.MaxPages = 10
	config.CrawlTimeoutMs = 5000
	config.ExcludePatterns = []string{`/admin`}
	config.SkipExtensions = []string{"iso"}
	config.AllowedOrigins = []string{"https://cdn.example.com"}

	budget, err := config.Budget()
	if err != nil {
		t.Fatalf("Budget() error = %v", err)
	}

	if budget.MaxDepth != 2 || budget.MaxPages != 10 {
		t.Errorf("Budget limits = %d/%d, want 2/10", budget.MaxDepth, budget.MaxPages)
	}
	if budget.RunTimeout != 5*time.Second {
		t.Errorf("RunTimeout = %v, want 5s", budget.RunTimeout)
	}
	if len(budget.ExcludePatterns) != 1 {
		t.Errorf("ExcludePatterns = %d, want 1", len(budget.ExcludePatterns))
	}
	if len(budget.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", budget.AllowedOrigins)
	}

	found := false
	for _, ext := range budget.SkipExtensions {
		if strings.TrimPrefix(ext, ".") == "iso" {
			found = true
		}
	}
	if !found {
		t.Errorf("SkipExtensions %v should include iso", budget.SkipExtensions)
	}
}

func TestConfig_Budget_SessionLinks(t *testing.T) {
	config := DefaultConfig()
	config.ExcludePatterns = []string{`/admin`}
	config.ExcludeSessionLinks = true

	budget, err := config.Budget()
	if err != nil {
		t.Fatalf("Budget() error = %v", err)
	}

	matched := false
	for _, re := range budget.ExcludePatterns {
		if re.MatchString("https://example.com/logout") {
			matched = true
		}
	}
	if !matched {
		t.Error("session patterns should exclude /logout")
	}
	if len(config.ExcludePatterns) != 1 {
		t.Errorf("Budget() modified ExcludePatterns: %v", config.ExcludePatterns)
	}
}

func TestConfig_Budget_BadPattern(t *testing.T) {
	config := DefaultConfig()
	config.ExcludePatterns = []string{"[a-"}

	if _, err := config.Budget(); err == nil {
		t.Error("Budget() should fail on an invalid pattern")
	}
}

// =============================================================================
// Engine Config Tests
// =============================================================================

func TestConfig_HTTPConfig(t *testing.T) {
	config := DefaultConfig()
	config.PageTimeoutMs = 5000
	config.UserAgent = "probe/1.0"
	config.Headers = map[string]string{"X-Scan": "1"}
	config.Concurrency = 32

	cfg := config.HTTPConfig()
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.UserAgent != "probe/1.0" {
		t.Errorf("UserAgent = %q, want probe/1.0", cfg.UserAgent)
	}
	if cfg.Headers["X-Scan"] != "1" {
		t.Errorf("Headers = %v", cfg.Headers)
	}
	if cfg.MaxConnsPerHost < 32 {
		t.Errorf("MaxConnsPerHost = %d, want at least 32", cfg.MaxConnsPerHost)
	}
}

func TestConfig_BrowserConfig(t *testing.T) {
	config := DefaultConfig()
	config.Concurrency = 3
	config.Headless = false
	config.ViewportWidth = 800
	config.ViewportHeight = 600
	config.WaitAfterLoadMs = 250
	config.CaptureScreenshots = true
	config.ScreenshotDir = "shots"
	config.BrowserURL = "ws://127.0.0.1:9222"

	cfg := config.BrowserConfig()
	if cfg.PoolSize != 3 {
		t.Errorf("PoolSize = %d, want 3", cfg.PoolSize)
	}
	if cfg.Headless {
		t.Error("Headless should be false")
	}
	if cfg.ViewportWidth != 800 || cfg.ViewportHeight != 600 {
		t.Errorf("Viewport = %dx%d, want 800x600", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	if cfg.WaitAfterLoad != 250*time.Millisecond {
		t.Errorf("WaitAfterLoad = %v, want 250ms", cfg.WaitAfterLoad)
	}
	if !cfg.Screenshots || cfg.ScreenshotDir != "shots" {
		t.Errorf("Screenshots = %v in %q", cfg.Screenshots, cfg.ScreenshotDir)
	}
	if cfg.ControlURL != "ws://127.0.0.1:9222" {
		t.Errorf("ControlURL = %q", cfg.ControlURL)
	}
	if cfg.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, DefaultUserAgent)
	}
}
