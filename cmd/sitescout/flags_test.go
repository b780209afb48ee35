package main

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/SiteScout/pkg/crawler"
)

func parseCrawlFlags(t *testing.T, args ...string) *crawler.Config {
	t.Helper()

	cmd := &cobra.Command{Use: "crawl"}
	registerCrawlFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	config := crawler.DefaultConfig()
	config.Depth = 7 // as if loaded from a file
	if err := applyCrawlFlags(cmd, config); err != nil {
		t.Fatalf("applyCrawlFlags() error = %v", err)
	}
	return config
}

// =============================================================================
// applyCrawlFlags Tests
// =============================================================================

func TestApplyCrawlFlags_UnsetKeepsFileValues(t *testing.T) {
	config := parseCrawlFlags(t)

	if config.Depth != 7 {
		t.Errorf("Depth = %d, want 7 from the file", config.Depth)
	}
	if config.Output.Format != "json" {
		t.Errorf("Output.Format = %q, want json", config.Output.Format)
	}
}

func TestApplyCrawlFlags_Overrides(t *testing.T) {
	config := parseCrawlFlags(t,
		"--depth", "1",
		"--max-pages", "0",
		"-n", "4",
		"--engine", "http",
		"--respect-robots=false",
		"--exclude", "/admin",
		"--exclude", "/logout",
		"-H", "Authorization: Bearer abc",
		"--rate-limit", "0",
		"-o", "out/site.yaml",
	)

	if config.Depth != 1 {
		t.Errorf("Depth = %d, want 1", config.Depth)
	}
	if config.MaxPages != 0 {
		t.Errorf("MaxPages = %d, want 0", config.MaxPages)
	}
	if config.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", config.Concurrency)
	}
	if config.Engine != "http" {
		t.Errorf("Engine = %q, want http", config.Engine)
	}
	if config.RespectRobotsTxt {
		t.Error("RespectRobotsTxt should be false")
	}
	if len(config.ExcludePatterns) != 2 {
		t.Errorf("ExcludePatterns = %v", config.ExcludePatterns)
	}
	if config.Headers["Authorization"] != "Bearer abc" {
		t.Errorf("Headers = %v", config.Headers)
	}
	if config.RequestsPerSecond != 0 {
		t.Errorf("RequestsPerSecond = %v, want 0", config.RequestsPerSecond)
	}
	if config.Output.Path != "out/site.yaml" || config.Output.Format != "" {
		t.Errorf("Output = %+v, want path with format from extension", config.Output)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

// =============================================================================
// parseHeaders Tests
// =============================================================================

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    map[string]string
		wantErr bool
	}{
		{"single", []string{"X-Test: 1"}, map[string]string{"X-Test": "1"}, false},
		{"value with colon", []string{"Referer: https://example.com/"}, map[string]string{"Referer": "https://example.com/"}, false},
		{"empty value", []string{"X-Empty:"}, map[string]string{"X-Empty": ""}, false},
		{"missing colon", []string{"X-Test"}, nil, true},
		{"missing name", []string{": value"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHeaders(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("header %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
