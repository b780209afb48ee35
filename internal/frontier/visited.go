package frontier

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/PentesterFlow/SiteScout/internal/normalize"
)

// VisitedSet records every canonical URL that was queued or dispatched during
// one run. It only grows.
type VisitedSet struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[normalize.CanonicalURL]struct{}
}

// NewVisitedSet creates a set sized for roughly estimatedItems URLs.
func NewVisitedSet(estimatedItems int) *VisitedSet {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	return &VisitedSet{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[normalize.CanonicalURL]struct{}),
	}
}

// Add inserts u and reports whether it was new.
func (v *VisitedSet) Add(u normalize.CanonicalURL) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := u.String()
	if v.filter.TestString(key) {
		if _, exists := v.exact[u]; exists {
			return false
		}
	}

	v.filter.AddString(key)
	v.exact[u] = struct{}{}
	return true
}

// Contains reports whether u has been added.
func (v *VisitedSet) Contains(u normalize.CanonicalURL) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	// A bloom miss is definitive.
	if !v.filter.TestString(u.String()) {
		return false
	}
	_, exists := v.exact[u]
	return exists
}

// Len returns the number of distinct URLs in the set.
func (v *VisitedSet) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.exact)
}

// URLs returns a copy of the set's members in no particular order.
func (v *VisitedSet) URLs() []normalize.CanonicalURL {
	v.mu.RLock()
	defer v.mu.RUnlock()

	urls := make([]normalize.CanonicalURL, 0, len(v.exact))
	for u := range v.exact {
		urls = append(urls, u)
	}
	return urls
}
