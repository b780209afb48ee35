package frontier

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PentesterFlow/SiteScout/internal/errors"
	"github.com/PentesterFlow/SiteScout/internal/normalize"
)

func entry(raw string, depth int) Entry {
	return Entry{URL: normalize.MustParse(raw), Depth: depth}
}

// =============================================================================
// Ordering
// =============================================================================

func TestFrontier_BreadthFirstOrder(t *testing.T) {
	f := New(0)

	for _, e := range []Entry{
		entry("https://example.com/", 0),
		entry("https://example.com/deep", 2),
		entry("https://example.com/a", 1),
		entry("https://example.com/b", 1),
		entry("https://example.com/deeper", 3),
		entry("https://example.com/c", 1),
	} {
		ok, err := f.TryEnqueue(e)
		require.NoError(t, err)
		require.True(t, ok)
	}

	var got []string
	for {
		e, ok := f.Dequeue()
		if !ok {
			break
		}
		got = append(got, e.URL.Path())
		f.Done()
	}

	assert.Equal(t, []string{"/", "/a", "/b", "/c", "/deep", "/deeper"}, got)
}

// =============================================================================
// Deduplication and budget
// =============================================================================

func TestFrontier_TryEnqueueDuplicate(t *testing.T) {
	f := New(0)

	ok, err := f.TryEnqueue(entry("https://example.com/a", 1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.TryEnqueue(entry("https://EXAMPLE.com/a/#x", 2))
	require.NoError(t, err)
	assert.False(t, ok, "duplicate should be a no-op")

	assert.Equal(t, 1, f.Len())
	assert.Equal(t, 1, f.Visited())
	assert.False(t, f.Truncated())
}

func TestFrontier_PageBudget(t *testing.T) {
	f := New(2)

	for i, want := range []bool{true, true, false, false} {
		ok, err := f.TryEnqueue(entry(fmt.Sprintf("https://example.com/p%d", i), 1))
		require.NoError(t, err)
		assert.Equal(t, want, ok, "entry %d", i)
	}

	assert.Equal(t, 2, f.Admitted())
	assert.True(t, f.Truncated())

	// A duplicate after the budget is spent is not a truncation on its own.
	g := New(1)
	_, _ = g.TryEnqueue(entry("https://example.com/", 0))
	ok, _ := g.TryEnqueue(entry("https://example.com/", 1))
	assert.False(t, ok)
	assert.False(t, g.Truncated())
}

func TestFrontier_InvariantViolations(t *testing.T) {
	f := New(0)

	_, err := f.TryEnqueue(entry("https://example.com/", -1))
	require.Error(t, err)
	assert.True(t, errors.IsInvariantViolation(err))

	_, err = f.TryEnqueue(Entry{Depth: 1})
	require.Error(t, err)
	assert.True(t, errors.IsInvariantViolation(err))
}

func TestFrontier_MarkVisited(t *testing.T) {
	f := New(1)
	u := normalize.MustParse("https://example.com/final")

	assert.True(t, f.MarkVisited(u))
	assert.False(t, f.MarkVisited(u))
	assert.True(t, f.Seen(u))
	assert.Equal(t, 0, f.Admitted(), "aliases do not charge the budget")

	ok, err := f.TryEnqueue(Entry{URL: u, Depth: 1})
	require.NoError(t, err)
	assert.False(t, ok, "alias blocks later enqueue")
}

// =============================================================================
// Termination and blocking
// =============================================================================

func TestFrontier_DequeueEmptyReturnsImmediately(t *testing.T) {
	f := New(0)

	_, ok := f.Dequeue()
	assert.False(t, ok)
}

func TestFrontier_DequeueBlocksWhileInFlight(t *testing.T) {
	f := New(0)
	_, _ = f.TryEnqueue(entry("https://example.com/", 0))

	first, ok := f.Dequeue()
	require.True(t, ok)

	got := make(chan Entry, 1)
	go func() {
		e, ok := f.Dequeue()
		if ok {
			got <- e
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("Dequeue returned while queue empty and work in flight")
	case <-time.After(50 * time.Millisecond):
	}

	ok, err := f.TryEnqueue(Entry{URL: normalize.MustParse("https://example.com/next"), Depth: 1, DiscoveredFrom: first.URL})
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case e := <-got:
		assert.Equal(t, "/next", e.URL.Path())
		assert.Equal(t, first.URL, e.DiscoveredFrom)
	case <-time.After(time.Second):
		t.Fatal("blocked Dequeue was not woken by TryEnqueue")
	}
}

func TestFrontier_DoneReleasesWaiters(t *testing.T) {
	f := New(0)
	_, _ = f.TryEnqueue(entry("https://example.com/", 0))
	_, ok := f.Dequeue()
	require.True(t, ok)

	done := make(chan bool, 1)
	go func() {
		_, ok := f.Dequeue()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	f.Done()

	select {
	case ok := <-done:
		assert.False(t, ok, "drained frontier should end the waiter")
	case <-time.After(time.Second):
		t.Fatal("Done did not wake waiter")
	}
	assert.Equal(t, 0, f.InFlight())
}

func TestFrontier_Close(t *testing.T) {
	f := New(0)
	_, _ = f.TryEnqueue(entry("https://example.com/", 0))
	_, _ = f.TryEnqueue(entry("https://example.com/a", 1))
	_, ok := f.Dequeue()
	require.True(t, ok)

	done := make(chan bool, 1)
	go func() {
		// Pending work exists, but Close must still stop dispatch.
		time.Sleep(10 * time.Millisecond)
		_, ok := f.Dequeue()
		done <- ok
	}()

	f.Close()
	assert.False(t, <-done)
	assert.True(t, f.Closed())

	ok, err := f.TryEnqueue(entry("https://example.com/b", 1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFrontier_Stats(t *testing.T) {
	f := New(0)
	_, _ = f.TryEnqueue(entry("https://example.com/", 0))
	_, _ = f.TryEnqueue(entry("https://example.com/a", 1))
	_, _ = f.Dequeue()
	f.MarkVisited(normalize.MustParse("https://example.com/alias"))

	s := f.Stats()
	assert.Equal(t, Stats{Pending: 1, InFlight: 1, Admitted: 2, Visited: 3}, s)
}

// =============================================================================
// Concurrency
// =============================================================================

func TestFrontier_ConcurrentEnqueueAdmitsOnce(t *testing.T) {
	f := New(0)

	const workers = 8
	const urls = 200

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < urls; i++ {
				ok, err := f.TryEnqueue(entry(fmt.Sprintf("https://example.com/p%d", i), 1))
				if err != nil {
					t.Error(err)
					return
				}
				if ok {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, urls, admitted)
	assert.Equal(t, urls, f.Len())
}

func TestFrontier_ConcurrentBudget(t *testing.T) {
	f := New(10)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = f.TryEnqueue(entry(fmt.Sprintf("https://example.com/w%d/%d", w, i), 1))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 10, f.Admitted())
	assert.Equal(t, 10, f.Len())
	assert.True(t, f.Truncated())
}

// =============================================================================
// VisitedSet
// =============================================================================

func TestVisitedSet(t *testing.T) {
	v := NewVisitedSet(10)
	a := normalize.MustParse("https://example.com/a")
	b := normalize.MustParse("https://example.com/b")

	assert.True(t, v.Add(a))
	assert.False(t, v.Add(a))
	assert.True(t, v.Contains(a))
	assert.False(t, v.Contains(b))
	assert.Equal(t, 1, v.Len())

	v.Add(b)
	assert.ElementsMatch(t, []normalize.CanonicalURL{a, b}, v.URLs())
}

func TestVisitedSet_ManyEntries(t *testing.T) {
	v := NewVisitedSet(100)

	for i := 0; i < 5000; i++ {
		require.True(t, v.Add(normalize.MustParse(fmt.Sprintf("https://example.com/%d", i))))
	}
	assert.Equal(t, 5000, v.Len())

	// The exact map guards against bloom false positives.
	for i := 5000; i < 5100; i++ {
		assert.False(t, v.Contains(normalize.MustParse(fmt.Sprintf("https://example.com/%d", i))))
	}
}
