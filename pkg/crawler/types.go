package crawler

import (
	"regexp"
	"time"

	"github.com/PentesterFlow/SiteScout/internal/inventory"
)

// Budget holds the limits of a single run, compiled from Config.
type Budget struct {
	MaxDepth        int
	MaxPages        int
	Concurrency     int
	PageTimeout     time.Duration
	RunTimeout      time.Duration
	ExcludePatterns []*regexp.Regexp
	AllowedOrigins  []string
	SkipExtensions  []string
	RespectRobots   bool
	UserAgent       string
	MaxRetries      int
}

// PageHook receives every record as it is added to the inventory. Calls are
// serialized.
type PageHook func(rec inventory.PageRecord)

// Progress is a point-in-time view of a running crawl.
type Progress struct {
	Recorded int `json:"recorded"`
	Failed   int `json:"failed"`
	Forms    int `json:"forms"`
	Pending  int `json:"pending"`
	InFlight int `json:"in_flight"`
	Admitted int `json:"admitted"`
	Budget   int `json:"budget"`
}
