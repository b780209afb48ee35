// Package frontier implements the breadth-first work queue shared by crawl
// workers. It is the single source of truth for which URLs have been seen.
package frontier

import (
	"container/heap"
	"sync"

	"github.com/PentesterFlow/SiteScout/internal/errors"
	"github.com/PentesterFlow/SiteScout/internal/normalize"
)

// Entry is a URL admitted for crawling.
type Entry struct {
	URL            normalize.CanonicalURL
	Depth          int
	DiscoveredFrom normalize.CanonicalURL // zero for the seed

	seq uint64
}

// entryHeap orders entries by depth, then by discovery order.
type entryHeap []Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Depth != h[j].Depth {
		return h[i].Depth < h[j].Depth
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) {
	*h = append(*h, x.(Entry))
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = Entry{}
	*h = old[:n-1]
	return e
}

// Frontier is a thread-safe BFS queue with built-in deduplication, a page
// budget and an in-flight counter used to detect termination.
type Frontier struct {
	mu        sync.Mutex
	cond      *sync.Cond
	pending   entryHeap
	visited   *VisitedSet
	maxPages  int
	admitted  int
	inFlight  int
	seq       uint64
	closed    bool
	truncated bool
}

// New creates a frontier that admits at most maxPages URLs. maxPages <= 0
// means no page budget.
func New(maxPages int) *Frontier {
	estimate := maxPages * 4
	f := &Frontier{
		pending:  make(entryHeap, 0),
		visited:  NewVisitedSet(estimate),
		maxPages: maxPages,
	}
	f.cond = sync.NewCond(&f.mu)
	heap.Init(&f.pending)
	return f
}

// TryEnqueue admits e unless its URL was already seen, the page budget is
// spent, or the frontier is closed. The membership check and the push happen
// in one critical section. A negative depth is an invariant violation.
func (f *Frontier) TryEnqueue(e Entry) (bool, error) {
	if e.Depth < 0 {
		return false, errors.NewInvariantViolation("non-negative-depth", "entry %s has depth %d", e.URL, e.Depth)
	}
	if e.URL.IsZero() {
		return false, errors.NewInvariantViolation("canonical-entry", "entry without url at depth %d", e.Depth)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false, nil
	}
	if f.visited.Contains(e.URL) {
		return false, nil
	}
	if f.maxPages > 0 && f.admitted >= f.maxPages {
		f.truncated = true
		return false, nil
	}

	f.visited.Add(e.URL)
	f.admitted++
	f.seq++
	e.seq = f.seq
	heap.Push(&f.pending, e)
	f.cond.Signal()
	return true, nil
}

// Dequeue returns the shallowest, earliest-discovered pending entry. It blocks
// while the queue is empty and other entries are in flight, since those may
// still discover work. It returns false once the queue is drained with nothing
// in flight, or after Close. Every successful Dequeue must be paired with Done.
func (f *Frontier) Dequeue() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.pending) == 0 && f.inFlight > 0 && !f.closed {
		f.cond.Wait()
	}

	if f.closed || len(f.pending) == 0 {
		return Entry{}, false
	}

	e := heap.Pop(&f.pending).(Entry)
	f.inFlight++
	return e, true
}

// Done marks a dequeued entry as finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight > 0 {
		f.inFlight--
	}
	// Waiters re-check: either new work arrived or the crawl is over.
	f.cond.Broadcast()
}

// MarkVisited records u as seen without charging the page budget, and
// reports whether it was new. It is used for the final URL of a redirect.
func (f *Frontier) MarkVisited(u normalize.CanonicalURL) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Add(u)
}

// Seen reports whether u has been queued, dispatched or marked visited.
func (f *Frontier) Seen(u normalize.CanonicalURL) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Contains(u)
}

// Close stops the frontier: pending entries are dropped from dispatch and all
// blocked Dequeue calls return.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.cond.Broadcast()
}

// Closed reports whether Close was called.
func (f *Frontier) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Truncated reports whether an admissible URL was refused because the page
// budget was exhausted.
func (f *Frontier) Truncated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.truncated
}

// Len returns the number of pending entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// InFlight returns the number of dequeued entries not yet marked Done.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Admitted returns how many entries were ever accepted by TryEnqueue.
func (f *Frontier) Admitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admitted
}

// Visited returns the size of the visited set, redirect aliases included.
func (f *Frontier) Visited() int {
	return f.visited.Len()
}

// Stats is a point-in-time view of the frontier counters.
type Stats struct {
	Pending  int  `json:"pending"`
	InFlight int  `json:"in_flight"`
	Admitted int  `json:"admitted"`
	Visited  int  `json:"visited"`
	Closed   bool `json:"closed"`
}

// Stats returns the current counters under one lock.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Pending:  len(f.pending),
		InFlight: f.inFlight,
		Admitted: f.admitted,
		Visited:  f.visited.Len(),
		Closed:   f.closed,
	}
}
