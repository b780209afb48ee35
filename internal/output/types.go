package output

import (
	"time"

	"github.com/PentesterFlow/SiteScout/internal/inventory"
)

// Document is the serialized form of an inventory.
type Document struct {
	Metadata inventory.Metadata     `json:"metadata" yaml:"metadata"`
	Stats    inventory.Stats        `json:"stats" yaml:"stats"`
	Pages    []inventory.PageRecord `json:"pages" yaml:"pages"`
}

// NewDocument builds a document with records in deterministic order.
func NewDocument(inv *inventory.Inventory) *Document {
	return &Document{
		Metadata: inv.Metadata,
		Stats:    inv.Stats(),
		Pages:    inv.Records(),
	}
}

// Event types.
const (
	EventPage = "page"
	EventDone = "done"
)

// Event is a single streamed notification about crawl progress.
type Event struct {
	Type       string    `json:"type"`
	Time       time.Time `json:"time"`
	URL        string    `json:"url,omitempty"`
	Depth      int       `json:"depth,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Title      string    `json:"title,omitempty"`
	Links      int       `json:"links,omitempty"`
	Forms      int       `json:"forms,omitempty"`
	Failed     bool      `json:"failed,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`

	Metadata *inventory.Metadata `json:"metadata,omitempty"`
}

// PageEvent summarizes a recorded page.
func PageEvent(rec inventory.PageRecord) Event {
	ev := Event{
		Type:       EventPage,
		Time:       rec.FetchedAt,
		URL:        rec.URL.String(),
		Depth:      rec.Depth,
		StatusCode: rec.StatusCode,
		Title:      rec.Title,
		Links:      len(rec.Links),
		Forms:      len(rec.Forms),
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if rec.FetchError != nil {
		ev.Failed = true
		ev.ErrorKind = rec.FetchError.Kind.String()
	}
	return ev
}

// DoneEvent announces the end of a run.
func DoneEvent(meta inventory.Metadata) Event {
	return Event{
		Type:     EventDone,
		Time:     time.Now(),
		URL:      meta.Seed,
		Metadata: &meta,
	}
}
