// Package crawler turns a seed URL into a structural inventory of a website.
package crawler

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"lukechampine.com/blake3"

	"github.com/PentesterFlow/SiteScout/internal/browser"
	"github.com/PentesterFlow/SiteScout/internal/errors"
	"github.com/PentesterFlow/SiteScout/internal/fetcher"
	"github.com/PentesterFlow/SiteScout/internal/frontier"
	httpclient "github.com/PentesterFlow/SiteScout/internal/http"
	"github.com/PentesterFlow/SiteScout/internal/inventory"
	"github.com/PentesterFlow/SiteScout/internal/logger"
	"github.com/PentesterFlow/SiteScout/internal/metrics"
	"github.com/PentesterFlow/SiteScout/internal/normalize"
	"github.com/PentesterFlow/SiteScout/internal/parser"
	"github.com/PentesterFlow/SiteScout/internal/ratelimit"
	"github.com/PentesterFlow/SiteScout/internal/scope"
)

// Crawler runs discovery crawls. A Crawler holds configuration only; every
// call to Run owns its frontier, inventory and filter, so runs never share
// state.
type Crawler struct {
	config       *Config
	fetcher      fetcher.Fetcher
	robots       scope.RobotsChecker
	robotsClient *http.Client
	logger       *logger.Logger
	metrics      *metrics.Collector
	hooks        []PageHook

	current atomic.Pointer[run]
}

// New creates a new crawler with the given options.
func New(opts ...Option) (*Crawler, error) {
	c := &Crawler{
		config: DefaultConfig(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.logger == nil {
		level, err := logger.ParseLevel(c.config.Log.Level)
		if err != nil || c.config.Log.Level == "" {
			level = logger.InfoLevel
		}
		c.logger = logger.New(logger.Config{
			Level:     level,
			Pretty:    c.config.Log.Pretty,
			Component: "crawler",
		})
	}

	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	return c, nil
}

// Config returns a copy of the crawler's configuration.
func (c *Crawler) Config() *Config {
	return c.config.Clone()
}

// Metrics returns the metrics collector.
func (c *Crawler) Metrics() *metrics.Collector {
	return c.metrics
}

// NewFetcher builds the fetch engine named by config.Engine.
func NewFetcher(config *Config, log *logger.Logger) (fetcher.Fetcher, error) {
	switch config.Engine {
	case fetcher.EngineHTTP:
		return httpclient.NewClient(config.HTTPConfig()), nil
	case fetcher.EngineBrowser:
		pool, err := browser.NewPool(config.BrowserConfig(), log.WithComponent("browser").Zerolog())
		if err != nil {
			return nil, fmt.Errorf("failed to start browser pool: %w", err)
		}
		return pool, nil
	case fetcher.EngineHybrid:
		pool, err := browser.NewPool(config.BrowserConfig(), log.WithComponent("browser").Zerolog())
		if err != nil {
			return nil, fmt.Errorf("failed to start browser pool: %w", err)
		}
		return fetcher.NewHybrid(httpclient.NewClient(config.HTTPConfig()), pool, log.WithComponent("hybrid").Zerolog()), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", config.Engine)
	}
}

// Run crawls from seed (or the configured target when seed is empty) and
// returns the inventory. A run stopped by the page budget, the crawl timeout
// or ctx still returns its partial inventory with a nil error; the metadata
// says why it stopped. Only an unusable seed or a broken invariant is an
// error, and the inventory gathered so far is returned alongside it.
func (c *Crawler) Run(ctx context.Context, seed string) (*inventory.Inventory, error) {
	if seed == "" {
		seed = c.config.Target
	}
	started := time.Now()

	empty := func() *inventory.Inventory {
		now := time.Now()
		return inventory.NewBuilder().Snapshot(inventory.Metadata{
			Seed:       seed,
			StartedAt:  started,
			FinishedAt: now,
			ElapsedMs:  now.Sub(started).Milliseconds(),
		})
	}

	seedURL, err := normalize.Parse(seed)
	if err != nil {
		return empty(), &errors.SeedError{Seed: seed, Err: err}
	}

	budget, err := c.config.Budget()
	if err != nil {
		return empty(), fmt.Errorf("invalid configuration: %w", err)
	}

	f := c.fetcher
	if f == nil {
		f, err = NewFetcher(c.config, c.logger)
		if err != nil {
			return empty(), err
		}
		defer func() {
			if err := fetcher.Close(f); err != nil {
				c.logger.Warn().Err(err).Msg("failed to close fetcher")
			}
		}()
	}

	r := c.newRun(seedURL, budget, f)
	c.current.Store(r)
	defer c.current.CompareAndSwap(r, nil)

	return r.execute(ctx, started)
}

// Progress reports on the run in progress. ok is false when no run is
// active.
func (c *Crawler) Progress() (p Progress, ok bool) {
	r := c.current.Load()
	if r == nil {
		return Progress{}, false
	}
	return r.progress(), true
}

// run is the state owned by one call to Run.
type run struct {
	seed     normalize.CanonicalURL
	budget   Budget
	fetcher  fetcher.Fetcher
	frontier *frontier.Frontier
	builder  *inventory.Builder
	filter   *scope.Filter
	limiter  *ratelimit.Limiter
	retrier  *errors.Retrier
	logger   *logger.Logger
	metrics  *metrics.Collector

	hookMu sync.Mutex
	hooks  []PageHook

	normErrors atomic.Int64
	failed     atomic.Int64
	forms      atomic.Int64
	stopped    atomic.Bool
}

func (c *Crawler) newRun(seed normalize.CanonicalURL, budget Budget, f fetcher.Fetcher) *run {
	log := c.logger.WithComponent("scheduler")
	limiter := ratelimit.NewLimiter(c.config.RequestsPerSecond, c.config.Burst)

	robots := c.robots
	if robots == nil && budget.RespectRobots {
		client := c.robotsClient
		if client == nil {
			client = httpclient.NewClient(c.config.HTTPConfig()).HTTPClient()
		}
		cache := ratelimit.NewRobotsCache(budget.UserAgent, client)
		cache.SetLimiter(limiter)
		cache.SetLogger(c.logger.WithComponent("robots").Zerolog())
		robots = cache
	}

	retry := errors.DefaultRetryConfig()
	retry.MaxRetries = budget.MaxRetries

	return &run{
		seed:     seed,
		budget:   budget,
		fetcher:  f,
		frontier: frontier.New(budget.MaxPages),
		builder:  inventory.NewBuilder(),
		filter: scope.NewFilter(seed, scope.Rules{
			AllowedOrigins:  budget.AllowedOrigins,
			ExcludePatterns: budget.ExcludePatterns,
			SkipExtensions:  budget.SkipExtensions,
			RespectRobots:   budget.RespectRobots,
		}, robots),
		limiter: limiter,
		retrier: errors.NewRetrier(retry),
		logger:  log,
		metrics: c.metrics,
		hooks:   c.hooks,
	}
}

func (r *run) execute(ctx context.Context, started time.Time) (*inventory.Inventory, error) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.budget.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.budget.RunTimeout)
	}
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	stop := context.AfterFunc(gctx, r.frontier.Close)
	defer stop()

	if _, err := r.frontier.TryEnqueue(frontier.Entry{URL: r.seed}); err != nil {
		return r.snapshot(ctx, runCtx, started), err
	}

	r.logger.Info().
		Str("seed", r.seed.String()).
		Int("max_depth", r.budget.MaxDepth).
		Int("max_pages", r.budget.MaxPages).
		Int("concurrency", r.budget.Concurrency).
		Msg("crawl started")

	for i := 0; i < r.budget.Concurrency; i++ {
		id := i
		g.Go(func() error {
			return r.worker(gctx, id)
		})
	}

	err := g.Wait()
	inv := r.snapshot(ctx, runCtx, started)

	if err != nil {
		r.logger.Error().Err(err).Msg("crawl aborted")
		return inv, err
	}

	r.logger.StatsEvent(map[string]interface{}{
		"pages":       inv.Metadata.TotalVisited,
		"failed":      inv.Metadata.TotalErrors,
		"elapsed_ms":  inv.Metadata.ElapsedMs,
		"truncated":   inv.Metadata.TruncatedByBudget,
		"timed_out":   inv.Metadata.TimedOut,
		"interrupted": inv.Metadata.Interrupted,
	})
	return inv, nil
}

func (r *run) snapshot(ctx, runCtx context.Context, started time.Time) *inventory.Inventory {
	finished := time.Now()
	interrupted := r.stopped.Load() && ctx.Err() != nil
	timedOut := r.stopped.Load() && !interrupted && runCtx.Err() != nil

	return r.builder.Snapshot(inventory.Metadata{
		Seed:                r.seed.String(),
		NormalizationErrors: int(r.normErrors.Load()),
		ElapsedMs:           finished.Sub(started).Milliseconds(),
		TruncatedByBudget:   r.frontier.Truncated() || timedOut,
		TimedOut:            timedOut,
		Interrupted:         interrupted,
		StartedAt:           started,
		FinishedAt:          finished,
	})
}

func (r *run) progress() Progress {
	return Progress{
		Recorded: r.builder.Len(),
		Failed:   int(r.failed.Load()),
		Forms:    int(r.forms.Load()),
		Pending:  r.frontier.Len(),
		InFlight: r.frontier.InFlight(),
		Admitted: r.frontier.Admitted(),
		Budget:   r.budget.MaxPages,
	}
}

func (r *run) worker(ctx context.Context, id int) error {
	r.metrics.WorkerStarted()
	defer r.metrics.WorkerStopped()

	for {
		entry, ok := r.frontier.Dequeue()
		if !ok {
			if ctx.Err() != nil {
				r.stopped.Store(true)
			}
			return nil
		}

		stop, err := r.process(ctx, id, entry)
		r.frontier.Done()
		r.metrics.SetFrontier(r.frontier.Len(), r.frontier.InFlight())

		if err != nil {
			return err
		}
		if stop {
			r.stopped.Store(true)
			return nil
		}
	}
}

// process fetches one entry, records it and expands its links. stop means
// the run is ending and the worker should exit.
func (r *run) process(ctx context.Context, id int, entry frontier.Entry) (stop bool, err error) {
	if ctx.Err() != nil {
		return true, nil
	}
	if err := r.limiter.Wait(ctx, entry.URL.Host()); err != nil {
		// The next slot for this host lies past the run deadline.
		<-ctx.Done()
		return true, nil
	}

	target := entry.URL.String()
	r.logger.CrawlEvent(logger.DebugLevel, target, entry.Depth, id).Msg("fetching")

	start := time.Now()
	page, res := errors.DoWithResult(ctx, r.retrier, "fetch", target, func(ctx context.Context) (*fetcher.Page, error) {
		return r.fetchOnce(ctx, target)
	})
	elapsed := time.Since(start)

	r.metrics.RecordFetch(elapsed)
	if res.Attempts > 1 {
		r.metrics.RecordRetries(res.Attempts - 1)
	}

	if !res.Success {
		fetchErr := errors.AsFetchError(res.LastError, target)
		if entry.Depth == 0 {
			return false, &errors.SeedError{Seed: target, Err: fetchErr}
		}

		r.failed.Add(1)
		r.metrics.RecordFailure(fetchErr.Kind.String())
		r.logger.FetchFailed(target, entry.Depth, fetchErr.Kind.String(), fetchErr)

		return false, r.record(inventory.PageRecord{
			URL:            entry.URL,
			Depth:          entry.Depth,
			DiscoveredFrom: entry.DiscoveredFrom,
			StatusCode:     fetchErr.StatusCode,
			ContentType:    fetchErr.ContentType,
			FetchError:     fetchErr,
			FetchedAt:      start,
			DurationMs:     elapsed.Milliseconds(),
		})
	}

	final := entry.URL
	var requested normalize.CanonicalURL
	if page.FinalURL != "" {
		u, err := normalize.Parse(page.FinalURL)
		if err != nil {
			r.normErrors.Add(1)
			r.metrics.RecordNormalizationError()
		} else if u != entry.URL {
			if entry.Depth > 0 {
				if d := r.filter.Check(ctx, u); !d.Allowed {
					r.metrics.RecordFiltered(string(d.Reason))
					r.logger.Debug().
						Str("url", target).
						Str("final_url", u.String()).
						Str("reason", string(d.Reason)).
						Msg("redirect target filtered")
					return false, nil
				}
			}
			if !r.frontier.MarkVisited(u) {
				r.metrics.RecordRedirectAlias()
				r.logger.Debug().
					Str("url", target).
					Str("final_url", u.String()).
					Msg("redirect target already claimed")
				return false, nil
			}
			if entry.Depth == 0 && !u.SameOrigin(entry.URL) {
				r.filter.AllowOrigin(u.Origin())
			}
			final, requested = u, entry.URL
		}
	}

	docURL := target
	if page.FinalURL != "" {
		docURL = page.FinalURL
	}
	base := normalize.Join(docURL, page.Base)

	links := r.resolveLinks(page.Links, base)
	forms, actions := r.convertForms(page.Forms, base, final)

	rec := inventory.PageRecord{
		URL:            final,
		RequestedURL:   requested,
		Depth:          entry.Depth,
		DiscoveredFrom: entry.DiscoveredFrom,
		StatusCode:     page.StatusCode,
		ContentType:    page.ContentType,
		Title:          page.Title,
		Links:          links,
		Forms:          forms,
		Elements:       convertElements(page.Elements),
		Screenshot:     page.Screenshot,
		FetchedAt:      start,
		DurationMs:     elapsed.Milliseconds(),
	}
	if page.HTML != "" {
		sum := blake3.Sum256([]byte(page.HTML))
		rec.ContentHash = hex.EncodeToString(sum[:])
	}

	if err := r.record(rec); err != nil {
		return false, err
	}
	r.forms.Add(int64(len(forms)))
	r.metrics.RecordPage(page.StatusCode, page.Engine, len(links), len(forms), len(rec.Elements))
	r.logger.PageEvent(final.String(), entry.Depth, page.StatusCode, page.Engine, elapsed)

	if entry.Depth+1 > r.budget.MaxDepth {
		return false, nil
	}
	return false, r.expand(ctx, final, entry.Depth+1, append(append([]normalize.CanonicalURL(nil), links...), actions...))
}

// fetchOnce runs one fetch under the page deadline. The deadline derives from
// a non-cancelled copy of ctx so that in-flight fetches drain after the run
// is stopped; a fetcher that ignores its context is abandoned at the
// deadline.
func (r *run) fetchOnce(ctx context.Context, target string) (*fetcher.Page, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.budget.PageTimeout)
	defer cancel()

	type result struct {
		page *fetcher.Page
		err  error
	}
	done := make(chan result, 1)

	go func() {
		page, err := r.fetcher.Fetch(fctx, target)
		done <- result{page, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, errors.AsFetchError(res.err, target)
		}
		if res.page == nil {
			return nil, errors.NewFetchError(errors.NetworkError, target, "fetch", "fetcher returned no page", nil)
		}
		return res.page, nil
	case <-fctx.Done():
		return nil, errors.NewTimeoutError(target, "fetch", fctx.Err())
	}
}

// resolveLinks normalizes hrefs in document order, dropping duplicates and
// anything that does not normalize.
func (r *run) resolveLinks(links []fetcher.Link, base string) []normalize.CanonicalURL {
	out := make([]normalize.CanonicalURL, 0, len(links))
	seen := make(map[normalize.CanonicalURL]struct{}, len(links))

	for _, link := range links {
		u, err := normalize.ResolveRaw(link.Href, base)
		if err != nil {
			r.normErrors.Add(1)
			r.metrics.RecordNormalizationError()
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// convertForms builds form records and returns the normalized actions for
// expansion. An empty action targets the page itself.
func (r *run) convertForms(forms []fetcher.Form, base string, page normalize.CanonicalURL) ([]inventory.FormRecord, []normalize.CanonicalURL) {
	if len(forms) == 0 {
		return nil, nil
	}

	records := make([]inventory.FormRecord, 0, len(forms))
	var actions []normalize.CanonicalURL

	for _, form := range forms {
		rec := inventory.FormRecord{
			Action:       form.Action,
			Method:       form.Method,
			Selector:     form.Selector,
			SubmitButton: form.SubmitButton,
			Kind:         string(parser.DetectFormKind(form)),
			SampleData:   parser.SampleData(form),
		}
		if rec.Method == "" {
			rec.Method = http.MethodGet
		}

		if form.Action == "" {
			rec.Action = page.String()
		} else if u, err := normalize.ResolveRaw(form.Action, base); err == nil {
			rec.Action = u.String()
			actions = append(actions, u)
		} else {
			r.normErrors.Add(1)
			r.metrics.RecordNormalizationError()
		}

		for _, f := range form.Fields {
			rec.Fields = append(rec.Fields, inventory.FieldRecord{
				Name:     f.Name,
				Type:     f.Type,
				Required: f.Required,
				Selector: f.Selector,
			})
		}
		records = append(records, rec)
	}
	return records, actions
}

func convertElements(elements []fetcher.Element) []inventory.ElementRecord {
	if len(elements) == 0 {
		return nil
	}
	out := make([]inventory.ElementRecord, len(elements))
	for i, e := range elements {
		out[i] = inventory.ElementRecord{
			Kind:       e.Kind,
			Selector:   e.Selector,
			Text:       e.Text,
			Attributes: e.Attributes,
			Visible:    e.Visible,
		}
	}
	return out
}

// expand admits candidates discovered on parent at the given depth.
func (r *run) expand(ctx context.Context, parent normalize.CanonicalURL, depth int, candidates []normalize.CanonicalURL) error {
	for _, u := range candidates {
		if r.frontier.Seen(u) {
			continue
		}

		d := r.filter.Check(ctx, u)
		if !d.Allowed {
			r.metrics.RecordFiltered(string(d.Reason))
			r.logger.Debug().
				Str("url", u.String()).
				Str("reason", string(d.Reason)).
				Str("pattern", d.Pattern).
				Msg("link filtered")
			continue
		}

		ok, err := r.frontier.TryEnqueue(frontier.Entry{
			URL:            u,
			Depth:          depth,
			DiscoveredFrom: parent,
		})
		if err != nil {
			return err
		}
		if ok {
			r.metrics.RecordEnqueued()
		}
	}
	return nil
}

func (r *run) record(rec inventory.PageRecord) error {
	if err := r.builder.Add(rec); err != nil {
		return err
	}

	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	for _, hook := range r.hooks {
		hook(rec)
	}
	return nil
}
