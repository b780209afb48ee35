// Package fetcher defines the boundary between the crawl scheduler and the
// engines that load pages.
package fetcher

import (
	"context"

	"github.com/PentesterFlow/SiteScout/internal/parser"
)

// Engine names.
const (
	EngineHTTP    = "http"
	EngineBrowser = "browser"
	EngineHybrid  = "hybrid"
)

// Page elements are shared with the HTML parser.
type (
	Link    = parser.Link
	Form    = parser.Form
	Field   = parser.Field
	Element = parser.Element
)

// Page is the successful result of a fetch. Non-2xx responses that carry an
// HTML body are still pages.
type Page struct {
	StatusCode  int
	ContentType string
	// FinalURL is the URL after redirects. Empty means the requested URL.
	FinalURL string
	Title    string
	// Base is the document's <base href>, if any.
	Base     string
	Links    []Link
	Forms    []Form
	Elements []Element
	HTML     string
	// Screenshot is the path of a captured screenshot, if any.
	Screenshot string
	Engine     string
}

// Fetcher loads one URL. Every error it returns is, or can be categorized
// into, an *errors.FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Func adapts a function to the Fetcher interface.
type Func func(ctx context.Context, url string) (*Page, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, url string) (*Page, error) {
	return f(ctx, url)
}

// Closer is implemented by fetchers that hold resources.
type Closer interface {
	Close() error
}

// Close releases f's resources if it holds any.
func Close(f Fetcher) error {
	if c, ok := f.(Closer); ok {
		return c.Close()
	}
	return nil
}

// FromDocument builds the structural part of a page from a parsed document.
func FromDocument(doc *parser.Document) *Page {
	return &Page{
		Title:    doc.Title,
		Base:     doc.Base,
		Links:    doc.Links,
		Forms:    doc.Forms,
		Elements: doc.Elements,
	}
}
