// Package inventory holds the structural map produced by a crawl: one record
// per canonical URL, written once by the scheduler and read by consumers.
package inventory

import (
	"time"

	"github.com/PentesterFlow/SiteScout/internal/errors"
	"github.com/PentesterFlow/SiteScout/internal/normalize"
)

// PageRecord is the observation of a single page. Records are values; once
// added to a Builder they are never modified.
type PageRecord struct {
	URL            normalize.CanonicalURL   `json:"url" yaml:"url"`
	RequestedURL   normalize.CanonicalURL   `json:"requested_url,omitempty" yaml:"requested_url,omitempty"`
	Depth          int                      `json:"depth" yaml:"depth"`
	DiscoveredFrom normalize.CanonicalURL   `json:"discovered_from,omitempty" yaml:"discovered_from,omitempty"`
	StatusCode     int                      `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	ContentType    string                   `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Title          string                   `json:"title,omitempty" yaml:"title,omitempty"`
	Links          []normalize.CanonicalURL `json:"links,omitempty" yaml:"links,omitempty"`
	Forms          []FormRecord             `json:"forms,omitempty" yaml:"forms,omitempty"`
	Elements       []ElementRecord          `json:"elements,omitempty" yaml:"elements,omitempty"`
	ContentHash    string                   `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
	Screenshot     string                   `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`
	FetchError     *errors.FetchError       `json:"fetch_error,omitempty" yaml:"fetch_error,omitempty"`
	FetchedAt      time.Time                `json:"fetched_at" yaml:"fetched_at"`
	DurationMs     int64                    `json:"duration_ms" yaml:"duration_ms"`
}

// Failed reports whether the page could not be fetched.
func (r PageRecord) Failed() bool {
	return r.FetchError != nil
}

// Redirected reports whether the page was reached through a redirect.
func (r PageRecord) Redirected() bool {
	return !r.RequestedURL.IsZero() && r.RequestedURL != r.URL
}

// FormRecord describes a form found on a page.
type FormRecord struct {
	// Action is the canonical target URL, or the raw attribute value when
	// it could not be normalized.
	Action       string            `json:"action" yaml:"action"`
	Method       string            `json:"method" yaml:"method"`
	Fields       []FieldRecord     `json:"fields" yaml:"fields"`
	Selector     string            `json:"selector,omitempty" yaml:"selector,omitempty"`
	SubmitButton string            `json:"submit_button,omitempty" yaml:"submit_button,omitempty"`
	Kind         string            `json:"kind,omitempty" yaml:"kind,omitempty"`
	SampleData   map[string]string `json:"sample_data,omitempty" yaml:"sample_data,omitempty"`
}

// FieldRecord is a single input of a form.
type FieldRecord struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`
}

// ElementRecord is an interactive element a test could act on.
type ElementRecord struct {
	Kind       string            `json:"kind" yaml:"kind"`
	Selector   string            `json:"selector" yaml:"selector"`
	Text       string            `json:"text,omitempty" yaml:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Visible    bool              `json:"visible" yaml:"visible"`
}

// Metadata describes how a run went.
type Metadata struct {
	Seed                string    `json:"seed" yaml:"seed"`
	TotalVisited        int       `json:"total_visited" yaml:"total_visited"`
	TotalErrors         int       `json:"total_errors" yaml:"total_errors"`
	NormalizationErrors int       `json:"normalization_errors" yaml:"normalization_errors"`
	ElapsedMs           int64     `json:"elapsed_ms" yaml:"elapsed_ms"`
	TruncatedByBudget   bool      `json:"truncated_by_budget" yaml:"truncated_by_budget"`
	TimedOut            bool      `json:"timed_out" yaml:"timed_out"`
	Interrupted         bool      `json:"interrupted" yaml:"interrupted"`
	StartedAt           time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt          time.Time `json:"finished_at" yaml:"finished_at"`
}

// Stats are aggregate counts over the records of an inventory.
type Stats struct {
	Pages      int         `json:"pages" yaml:"pages"`
	Failed     int         `json:"failed" yaml:"failed"`
	MaxDepth   int         `json:"max_depth" yaml:"max_depth"`
	Links      int         `json:"links" yaml:"links"`
	Forms      int         `json:"forms" yaml:"forms"`
	Elements   int         `json:"elements" yaml:"elements"`
	ByDepth    map[int]int `json:"by_depth,omitempty" yaml:"by_depth,omitempty"`
	ByStatus   map[int]int `json:"by_status,omitempty" yaml:"by_status,omitempty"`
	FailedURLs []string    `json:"failed_urls,omitempty" yaml:"failed_urls,omitempty"`
}
