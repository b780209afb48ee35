// Package metrics collects counters and gauges for a crawl run.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates metrics. It is safe for concurrent use.
type Collector struct {
	// Counters
	fetchesTotal        atomic.Int64
	pagesRecorded       atomic.Int64
	pagesFailed         atomic.Int64
	linksFound          atomic.Int64
	formsFound          atomic.Int64
	elementsFound       atomic.Int64
	enqueued            atomic.Int64
	normalizationErrors atomic.Int64
	retriesTotal        atomic.Int64
	redirectAliases     atomic.Int64

	// Response time tracking
	responseTimesSum atomic.Int64
	responseTimesNum atomic.Int64

	// Gauges
	frontierPending atomic.Int64
	inFlight        atomic.Int64
	activeWorkers   atomic.Int64

	// Histogram buckets for fetch times in ms:
	// <10, <50, <100, <250, <500, <1000, <2500, <5000, <10000, >=10000
	responseTimeBuckets [10]atomic.Int64

	mu          sync.RWMutex
	errorKinds  map[string]int64
	filtered    map[string]int64
	statusCodes map[int]int64
	engines     map[string]int64

	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		errorKinds:  make(map[string]int64),
		filtered:    make(map[string]int64),
		statusCodes: make(map[int]int64),
		engines:     make(map[string]int64),
		startTime:   time.Now(),
	}
}

// RecordFetch records one fetch attempt and its duration.
func (c *Collector) RecordFetch(d time.Duration) {
	c.fetchesTotal.Add(1)

	ms := d.Milliseconds()
	c.responseTimesSum.Add(ms)
	c.responseTimesNum.Add(1)
	c.responseTimeBuckets[bucket(ms)].Add(1)
}

func bucket(ms int64) int {
	switch {
	case ms < 10:
		return 0
	case ms < 50:
		return 1
	case ms < 100:
		return 2
	case ms < 250:
		return 3
	case ms < 500:
		return 4
	case ms < 1000:
		return 5
	case ms < 2500:
		return 6
	case ms < 5000:
		return 7
	case ms < 10000:
		return 8
	default:
		return 9
	}
}

// RecordPage records a successfully fetched page and what it contained.
func (c *Collector) RecordPage(status int, engine string, links, forms, elements int) {
	c.pagesRecorded.Add(1)
	c.linksFound.Add(int64(links))
	c.formsFound.Add(int64(forms))
	c.elementsFound.Add(int64(elements))

	c.mu.Lock()
	c.statusCodes[status]++
	if engine != "" {
		c.engines[engine]++
	}
	c.mu.Unlock()
}

// RecordFailure records a page that could not be fetched.
func (c *Collector) RecordFailure(kind string) {
	c.pagesRecorded.Add(1)
	c.pagesFailed.Add(1)

	c.mu.Lock()
	c.errorKinds[kind]++
	c.mu.Unlock()
}

// RecordFiltered records a URL the filter rejected.
func (c *Collector) RecordFiltered(reason string) {
	c.mu.Lock()
	c.filtered[reason]++
	c.mu.Unlock()
}

// RecordEnqueued records a URL admitted to the frontier.
func (c *Collector) RecordEnqueued() {
	c.enqueued.Add(1)
}

// RecordNormalizationError records a link that could not be normalized.
func (c *Collector) RecordNormalizationError() {
	c.normalizationErrors.Add(1)
}

// RecordRetries records extra attempts beyond the first.
func (c *Collector) RecordRetries(n int) {
	if n > 0 {
		c.retriesTotal.Add(int64(n))
	}
}

// RecordRedirectAlias records a redirect whose target was already claimed.
func (c *Collector) RecordRedirectAlias() {
	c.redirectAliases.Add(1)
}

// SetFrontier sets the frontier gauges.
func (c *Collector) SetFrontier(pending, inFlight int) {
	c.frontierPending.Store(int64(pending))
	c.inFlight.Store(int64(inFlight))
}

// WorkerStarted increments active workers.
func (c *Collector) WorkerStarted() { c.activeWorkers.Add(1) }

// WorkerStopped decrements active workers.
func (c *Collector) WorkerStopped() { c.activeWorkers.Add(-1) }

// AverageFetchTime returns the mean fetch duration.
func (c *Collector) AverageFetchTime() time.Duration {
	sum := c.responseTimesSum.Load()
	num := c.responseTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	uptime := time.Since(c.startTime)
	s := &Snapshot{
		Timestamp:           time.Now(),
		Uptime:              uptime,
		FetchesTotal:        c.fetchesTotal.Load(),
		PagesRecorded:       c.pagesRecorded.Load(),
		PagesFailed:         c.pagesFailed.Load(),
		LinksFound:          c.linksFound.Load(),
		FormsFound:          c.formsFound.Load(),
		ElementsFound:       c.elementsFound.Load(),
		Enqueued:            c.enqueued.Load(),
		NormalizationErrors: c.normalizationErrors.Load(),
		RetriesTotal:        c.retriesTotal.Load(),
		RedirectAliases:     c.redirectAliases.Load(),
		FrontierPending:     c.frontierPending.Load(),
		InFlight:            c.inFlight.Load(),
		ActiveWorkers:       c.activeWorkers.Load(),
		AverageFetchTime:    c.AverageFetchTime(),
		ErrorKinds:          make(map[string]int64),
		Filtered:            make(map[string]int64),
		StatusCodes:         make(map[int]int64),
		Engines:             make(map[string]int64),
		FetchTimeHist:       make([]int64, len(c.responseTimeBuckets)),
	}
	if secs := uptime.Seconds(); secs > 0 {
		s.PagesPerSecond = float64(s.PagesRecorded) / secs
	}

	c.mu.RLock()
	for k, v := range c.errorKinds {
		s.ErrorKinds[k] = v
	}
	for k, v := range c.filtered {
		s.Filtered[k] = v
	}
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v
	}
	for k, v := range c.engines {
		s.Engines[k] = v
	}
	c.mu.RUnlock()

	for i := range c.responseTimeBuckets {
		s.FetchTimeHist[i] = c.responseTimeBuckets[i].Load()
	}

	return s
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp           time.Time        `json:"timestamp"`
	Uptime              time.Duration    `json:"uptime"`
	FetchesTotal        int64            `json:"fetches_total"`
	PagesRecorded       int64            `json:"pages_recorded"`
	PagesFailed         int64            `json:"pages_failed"`
	LinksFound          int64            `json:"links_found"`
	FormsFound          int64            `json:"forms_found"`
	ElementsFound       int64            `json:"elements_found"`
	Enqueued            int64            `json:"enqueued"`
	NormalizationErrors int64            `json:"normalization_errors"`
	RetriesTotal        int64            `json:"retries_total"`
	RedirectAliases     int64            `json:"redirect_aliases"`
	FrontierPending     int64            `json:"frontier_pending"`
	InFlight            int64            `json:"in_flight"`
	ActiveWorkers       int64            `json:"active_workers"`
	PagesPerSecond      float64          `json:"pages_per_second"`
	AverageFetchTime    time.Duration    `json:"average_fetch_time"`
	ErrorKinds          map[string]int64 `json:"error_kinds"`
	Filtered            map[string]int64 `json:"filtered"`
	StatusCodes         map[int]int64    `json:"status_codes"`
	Engines             map[string]int64 `json:"engines"`
	FetchTimeHist       []int64          `json:"fetch_time_histogram"`
}

// ErrorRate returns failed pages over recorded pages.
func (s *Snapshot) ErrorRate() float64 {
	if s.PagesRecorded == 0 {
		return 0
	}
	return float64(s.PagesFailed) / float64(s.PagesRecorded)
}

// Summary returns the fields worth logging at the end of a run.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":               s.Uptime.Round(time.Millisecond).String(),
		"pages_recorded":       s.PagesRecorded,
		"pages_failed":         s.PagesFailed,
		"error_rate":           s.ErrorRate(),
		"links_found":          s.LinksFound,
		"forms_found":          s.FormsFound,
		"enqueued":             s.Enqueued,
		"retries":              s.RetriesTotal,
		"pages_per_second":     s.PagesPerSecond,
		"avg_fetch_time_ms":    s.AverageFetchTime.Milliseconds(),
		"normalization_errors": s.NormalizationErrors,
	}
}
