package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ysmood/gson"

	"github.com/PentesterFlow/SiteScout/internal/fetcher"
)

func fakeFactory(recycleAfter int) (func() (*Browser, error), *int) {
	created := 0
	return func() (*Browser, error) {
		created++
		return &Browser{config: Config{RecycleAfter: recycleAfter}}, nil
	}, &created
}

// =============================================================================
// Config Tests
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ViewportWidth != 1280 || cfg.ViewportHeight != 720 {
		t.Errorf("viewport = %dx%d, want 1280x720", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	if !cfg.Headless {
		t.Error("Headless should be true by default")
	}
	if cfg.Screenshots {
		t.Error("Screenshots should be off by default")
	}
	if cfg.WaitAfterLoad != time.Second {
		t.Errorf("WaitAfterLoad = %v, want 1s", cfg.WaitAfterLoad)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestIsHTMLMime(t *testing.T) {
	tests := []struct {
		mime string
		want bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"application/pdf", false},
		{"image/png", false},
	}

	for _, tt := range tests {
		if got := isHTMLMime(tt.mime); got != tt.want {
			t.Errorf("isHTMLMime(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestScreenshotName(t *testing.T) {
	a := screenshotName("https://example.com/a")
	b := screenshotName("https://example.com/b")

	if a == b {
		t.Error("different URLs should give different names")
	}
	if a != screenshotName("https://example.com/a") {
		t.Error("names should be stable")
	}
	if !strings.HasSuffix(a, ".png") || len(a) != 20 {
		t.Errorf("name = %q", a)
	}
}

func TestApplyVisibility(t *testing.T) {
	elements := []fetcher.Element{
		{Selector: "#a", Visible: true},
		{Selector: "#b", Visible: false},
		{Selector: "#c", Visible: true},
		{Selector: "#d", Visible: true},
	}
	values := gson.New([]interface{}{false, true, nil}).Arr()

	applyVisibility(elements, values)

	want := []bool{false, true, true, true}
	for i, el := range elements {
		if el.Visible != want[i] {
			t.Errorf("elements[%d].Visible = %v, want %v", i, el.Visible, want[i])
		}
	}
}

func TestDocumentResponse(t *testing.T) {
	d := &documentResponse{}
	if _, _, ok := d.get(); ok {
		t.Fatal("empty response should not be seen")
	}

	d.set(301, "text/html")
	d.set(200, "application/pdf")

	status, mimeType, ok := d.get()
	if !ok || status != 301 || mimeType != "text/html" {
		t.Errorf("get() = %d %q %v, want first response", status, mimeType, ok)
	}
}

// =============================================================================
// Pool Tests
// =============================================================================

func TestPool_AcquireRelease(t *testing.T) {
	factory, created := fakeFactory(0)
	pool, err := newPool(2, factory)
	if err != nil {
		t.Fatalf("newPool() error = %v", err)
	}
	defer pool.Close()

	if *created != 2 {
		t.Errorf("created = %d, want 2", *created)
	}

	ctx := context.Background()
	a, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("concurrent holders should get distinct browsers")
	}
	if got := pool.Stats().Available; got != 0 {
		t.Errorf("Available = %d, want 0", got)
	}

	pool.Release(a)
	pool.Release(b)
	if got := pool.Stats().Available; got != 2 {
		t.Errorf("Available = %d, want 2", got)
	}
}

func TestPool_AcquireBlocksUntilContextDone(t *testing.T) {
	factory, _ := fakeFactory(0)
	pool, _ := newPool(1, factory)
	defer pool.Close()

	held, _ := pool.Acquire(context.Background())
	defer pool.Release(held)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := pool.Acquire(ctx); err == nil {
		t.Error("Acquire() should fail when the pool is exhausted and the context ends")
	}
}

func TestPool_Recycle(t *testing.T) {
	factory, created := fakeFactory(1)
	pool, _ := newPool(1, factory)
	defer pool.Close()

	b, _ := pool.Acquire(context.Background())
	b.pageCount = 1
	pool.Release(b)

	fresh, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer pool.Release(fresh)

	if fresh == b {
		t.Error("exhausted browser should be replaced")
	}
	if *created != 2 {
		t.Errorf("created = %d, want 2", *created)
	}
}

func TestPool_FactoryError(t *testing.T) {
	_, err := newPool(2, func() (*Browser, error) {
		return nil, fmt.Errorf("no chrome")
	})
	if err == nil {
		t.Fatal("newPool() should fail when a browser cannot start")
	}
}

func TestPool_Closed(t *testing.T) {
	factory, _ := fakeFactory(0)
	pool, _ := newPool(1, factory)

	if err := pool.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := pool.Acquire(context.Background()); err == nil {
		t.Error("Acquire() on a closed pool should fail")
	}
}

func TestPool_Concurrent(t *testing.T) {
	factory, _ := fakeFactory(0)
	pool, _ := newPool(3, factory)
	defer pool.Close()

	var mu sync.Mutex
	holding := make(map[*Browser]bool)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := pool.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			if holding[b] {
				t.Error("browser handed out twice")
			}
			holding[b] = true
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			delete(holding, b)
			mu.Unlock()
			pool.Release(b)
		}()
	}
	wg.Wait()

	if got := pool.Stats().Available; got != 3 {
		t.Errorf("Available = %d, want 3", got)
	}
}
