package inventory

import (
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/PentesterFlow/SiteScout/internal/errors"
	"github.com/PentesterFlow/SiteScout/internal/normalize"
)

// Builder accumulates page records during a run. Each canonical URL may be
// written exactly once.
type Builder struct {
	mu      sync.Mutex
	records map[normalize.CanonicalURL]PageRecord
	order   []normalize.CanonicalURL
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		records: make(map[normalize.CanonicalURL]PageRecord),
	}
}

// Add stores rec. A second record for the same URL is an invariant violation.
func (b *Builder) Add(rec PageRecord) error {
	if rec.URL.IsZero() {
		return errors.NewInvariantViolation("canonical-record", "record without url at depth %d", rec.Depth)
	}
	if rec.Depth < 0 {
		return errors.NewInvariantViolation("non-negative-depth", "record %s has depth %d", rec.URL, rec.Depth)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.records[rec.URL]; exists {
		return errors.NewInvariantViolation("unique-record", "page %s recorded twice", rec.URL)
	}

	b.records[rec.URL] = rec
	b.order = append(b.order, rec.URL)
	return nil
}

// Has reports whether u has a record.
func (b *Builder) Has(u normalize.CanonicalURL) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.records[u]
	return ok
}

// Len returns the number of records.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Snapshot returns a read-only copy of the records. TotalVisited and
// TotalErrors in meta are derived from the records.
func (b *Builder) Snapshot(meta Metadata) *Inventory {
	b.mu.Lock()
	defer b.mu.Unlock()

	inv := &Inventory{
		records: make(map[normalize.CanonicalURL]PageRecord, len(b.records)),
		order:   slices.Clone(b.order),
	}
	for k, rec := range b.records {
		inv.records[k] = cloneRecord(rec)
	}

	inv.stats = computeStats(inv.records, inv.order)
	meta.TotalVisited = inv.stats.Pages
	meta.TotalErrors = inv.stats.Failed
	inv.Metadata = meta
	return inv
}

func cloneRecord(rec PageRecord) PageRecord {
	rec.Links = slices.Clone(rec.Links)
	rec.Elements = slices.Clone(rec.Elements)
	for i := range rec.Elements {
		rec.Elements[i].Attributes = maps.Clone(rec.Elements[i].Attributes)
	}
	rec.Forms = slices.Clone(rec.Forms)
	for i := range rec.Forms {
		rec.Forms[i].Fields = slices.Clone(rec.Forms[i].Fields)
		rec.Forms[i].SampleData = maps.Clone(rec.Forms[i].SampleData)
	}
	if rec.FetchError != nil {
		fe := *rec.FetchError
		rec.FetchError = &fe
	}
	return rec
}

func computeStats(records map[normalize.CanonicalURL]PageRecord, order []normalize.CanonicalURL) Stats {
	s := Stats{
		ByDepth:  make(map[int]int),
		ByStatus: make(map[int]int),
	}

	for _, u := range order {
		rec := records[u]
		s.Pages++
		s.ByDepth[rec.Depth]++
		if rec.Depth > s.MaxDepth {
			s.MaxDepth = rec.Depth
		}
		if rec.Failed() {
			s.Failed++
			s.FailedURLs = append(s.FailedURLs, u.String())
			continue
		}
		if rec.StatusCode != 0 {
			s.ByStatus[rec.StatusCode]++
		}
		s.Links += len(rec.Links)
		s.Forms += len(rec.Forms)
		s.Elements += len(rec.Elements)
	}

	return s
}

// Inventory is the finished, read-only result of a run.
type Inventory struct {
	Metadata Metadata

	records map[normalize.CanonicalURL]PageRecord
	order   []normalize.CanonicalURL
	stats   Stats
}

// Get returns the record for u.
func (inv *Inventory) Get(u normalize.CanonicalURL) (PageRecord, bool) {
	rec, ok := inv.records[u]
	return rec, ok
}

// Len returns the number of records.
func (inv *Inventory) Len() int {
	return len(inv.records)
}

// Keys returns the recorded URLs in the order they were recorded.
func (inv *Inventory) Keys() []normalize.CanonicalURL {
	return slices.Clone(inv.order)
}

// Records returns all records sorted by depth, then URL.
func (inv *Inventory) Records() []PageRecord {
	out := make([]PageRecord, 0, len(inv.records))
	for _, rec := range inv.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].URL.String() < out[j].URL.String()
	})
	return out
}

// Stats returns aggregate counts.
func (inv *Inventory) Stats() Stats {
	return inv.stats
}

// Children returns the records discovered from u, in record order.
func (inv *Inventory) Children(u normalize.CanonicalURL) []PageRecord {
	var out []PageRecord
	for _, k := range inv.order {
		if rec := inv.records[k]; rec.DiscoveredFrom == u {
			out = append(out, rec)
		}
	}
	return out
}
