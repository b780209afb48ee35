// Package browser provides headless Chrome page loading via Rod.
package browser

import (
	"context"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"github.com/ysmood/gson"
	"lukechampine.com/blake3"

	"github.com/PentesterFlow/SiteScout/internal/errors"
	"github.com/PentesterFlow/SiteScout/internal/fetcher"
	"github.com/PentesterFlow/SiteScout/internal/parser"
)

// Config defines browser configuration.
type Config struct {
	PoolSize          int               `json:"pool_size" yaml:"pool_size"`
	Headless          bool              `json:"headless" yaml:"headless"`
	Timeout           time.Duration     `json:"timeout" yaml:"timeout"`
	UserAgent         string            `json:"user_agent" yaml:"user_agent"`
	Headers           map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// ControlURL connects to a running browser instead of launching one.
	ControlURL        string            `json:"control_url,omitempty" yaml:"control_url,omitempty"`
	ViewportWidth     int               `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int               `json:"viewport_height" yaml:"viewport_height"`
	RecycleAfter      int               `json:"recycle_after" yaml:"recycle_after"`
	IgnoreHTTPSErrors bool              `json:"ignore_https_errors" yaml:"ignore_https_errors"`
	WaitAfterLoad     time.Duration     `json:"wait_after_load" yaml:"wait_after_load"`
	Screenshots       bool              `json:"screenshots" yaml:"screenshots"`
	ScreenshotDir     string            `json:"screenshot_dir,omitempty" yaml:"screenshot_dir,omitempty"`
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		PoolSize:       2,
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 Website-Test-Bot",
		ViewportWidth:  1280,
		ViewportHeight: 720,
		RecycleAfter:   50,
		WaitAfterLoad:  time.Second,
		ScreenshotDir:  "screenshots",
	}
}

// Browser wraps a Rod browser instance.
type Browser struct {
	browser   *rod.Browser
	config    Config
	logger    zerolog.Logger
	mu        sync.Mutex
	pageCount int
}

// New launches (or connects to) a browser.
func New(config Config, logger zerolog.Logger) (*Browser, error) {
	controlURL := config.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(config.Headless)
		if config.IgnoreHTTPSErrors {
			l = l.Set("ignore-certificate-errors", "true")
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &Browser{
		browser: browser,
		config:  config,
		logger:  logger,
	}, nil
}

// Fetch implements fetcher.Fetcher.
func (b *Browser) Fetch(ctx context.Context, url string) (*fetcher.Page, error) {
	return b.Visit(ctx, url)
}

// Visit navigates to url, waits for it to settle and extracts its structure.
func (b *Browser) Visit(ctx context.Context, url string) (*fetcher.Page, error) {
	b.mu.Lock()
	b.pageCount++
	b.mu.Unlock()

	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, errors.NewNetworkError(url, "new_page", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  b.config.ViewportWidth,
		Height: b.config.ViewportHeight,
	})

	if b.config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{
			UserAgent: b.config.UserAgent,
		}.Call(page)
	}

	if len(b.config.Headers) > 0 {
		networkHeaders := make(proto.NetworkHeaders)
		for k, v := range b.config.Headers {
			networkHeaders[k] = gson.New(v)
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}.Call(page)
	}

	doc := &documentResponse{}
	_ = proto.NetworkEnable{}.Call(page)
	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return false
		}
		doc.set(e.Response.Status, e.Response.MIMEType)
		return true
	})
	go wait()

	if err := page.Navigate(url); err != nil {
		if status, mimeType, ok := doc.get(); ok && !isHTMLMime(mimeType) {
			return nil, errors.NewNonHTMLError(url, status, mimeType)
		}
		return nil, errors.Categorize(err, url)
	}

	if err := page.WaitLoad(); err != nil {
		return nil, errors.Categorize(err, url)
	}

	status, mimeType, _ := doc.get()
	if mimeType != "" && !isHTMLMime(mimeType) {
		return nil, errors.NewNonHTMLError(url, status, mimeType)
	}

	if b.config.WaitAfterLoad > 0 {
		select {
		case <-time.After(b.config.WaitAfterLoad):
		case <-ctx.Done():
			return nil, errors.Categorize(ctx.Err(), url)
		}
	}

	finalURL := url
	if info, err := page.Info(); err == nil && info != nil && info.URL != "" {
		finalURL = info.URL
	}

	html, err := page.HTML()
	if err != nil {
		return nil, errors.Categorize(err, url)
	}

	parsed, err := parser.ParseString(html)
	if err != nil {
		return nil, errors.NewNetworkError(url, "parse", err)
	}

	result := fetcher.FromDocument(parsed)
	result.StatusCode = status
	result.ContentType = mimeType
	result.FinalURL = finalURL
	result.HTML = html
	result.Engine = fetcher.EngineBrowser

	b.refineVisibility(page, result.Elements)

	if b.config.Screenshots {
		path, err := b.screenshot(page, finalURL)
		if err != nil {
			b.logger.Warn().Err(err).Str("url", finalURL).Msg("screenshot failed")
		} else {
			result.Screenshot = path
		}
	}

	return result, nil
}

const visibilityJS = `(selectors) => selectors.map((s) => {
	let el;
	try { el = document.querySelector(s); } catch (e) { return null; }
	if (!el) return null;
	const style = window.getComputedStyle(el);
	if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
})`

// refineVisibility replaces the static visibility guess with what the
// rendered layout says. Elements the script cannot locate keep their guess.
func (b *Browser) refineVisibility(page *rod.Page, elements []fetcher.Element) {
	if len(elements) == 0 {
		return
	}

	selectors := make([]string, len(elements))
	for i, el := range elements {
		selectors[i] = el.Selector
	}

	res, err := page.Eval(visibilityJS, selectors)
	if err != nil || res == nil {
		return
	}
	applyVisibility(elements, res.Value.Arr())
}

func applyVisibility(elements []fetcher.Element, values []gson.JSON) {
	for i := range elements {
		if i >= len(values) || values[i].Nil() {
			continue
		}
		elements[i].Visible = values[i].Bool()
	}
}

func (b *Browser) screenshot(page *rod.Page, url string) (string, error) {
	data, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", err
	}

	dir := b.config.ScreenshotDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, screenshotName(url))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// screenshotName derives a stable file name from a URL.
func screenshotName(url string) string {
	sum := blake3.Sum256([]byte(url))
	return hex.EncodeToString(sum[:8]) + ".png"
}

// documentResponse records the main document's response as it arrives on
// the event goroutine.
type documentResponse struct {
	mu       sync.Mutex
	seen     bool
	status   int
	mimeType string
}

func (d *documentResponse) set(status int, mimeType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen {
		return
	}
	d.seen = true
	d.status = status
	d.mimeType = mimeType
}

func (d *documentResponse) get() (int, string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, d.mimeType, d.seen
}

func isHTMLMime(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// Close closes the browser.
func (b *Browser) Close() error {
	if b.browser == nil {
		return nil
	}
	return b.browser.Close()
}

// PageCount returns the number of pages visited.
func (b *Browser) PageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pageCount
}

// NeedsRecycle checks if the browser needs recycling.
func (b *Browser) NeedsRecycle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.RecycleAfter > 0 && b.pageCount >= b.config.RecycleAfter
}
