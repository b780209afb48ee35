// Package http is the plain HTTP page fetcher.
package http

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/PentesterFlow/SiteScout/internal/errors"
	"github.com/PentesterFlow/SiteScout/internal/fetcher"
	"github.com/PentesterFlow/SiteScout/internal/parser"
)

// DefaultMaxBodySize caps how much of a response body is read.
const DefaultMaxBodySize = 5 * 1024 * 1024

// DefaultMaxRedirects is the number of redirects followed before a fetch fails.
const DefaultMaxRedirects = 10

// Config configures the client.
type Config struct {
	// Timeout bounds a whole request. Zero leaves it to the caller's context.
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	UserAgent           string
	Headers             map[string]string
	SkipTLSVerify       bool
	MaxBodySize         int64
	MaxRedirects        int
}

// DefaultConfig returns a config tuned for crawling a handful of hosts.
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		MaxConnsPerHost:     16,
		UserAgent:           "Mozilla/5.0 Website-Test-Bot",
		MaxBodySize:         DefaultMaxBodySize,
		MaxRedirects:        DefaultMaxRedirects,
	}
}

// Client fetches pages over HTTP and parses them without running scripts.
type Client struct {
	client       *http.Client
	userAgent    string
	headers      map[string]string
	maxBodySize  int64
	maxRedirects int
	mu           sync.RWMutex
}

// NewClient creates a client from cfg. Zero limits fall back to defaults.
func NewClient(cfg Config) *Client {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		// Accept-Encoding is set by hand so brotli can be offered too.
		DisableCompression: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify,
		},
	}

	c := &Client{
		userAgent:    cfg.UserAgent,
		headers:      make(map[string]string, len(cfg.Headers)),
		maxBodySize:  cfg.MaxBodySize,
		maxRedirects: cfg.MaxRedirects,
	}
	for k, v := range cfg.Headers {
		c.headers[k] = v
	}

	c.client = &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= c.maxRedirects {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			return nil
		},
	}

	return c
}

// HTTPClient exposes the underlying client so robots.txt lookups share its
// connection pool.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// SetHeader sets an extra request header.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	c.headers[key] = value
	c.mu.Unlock()
}

// Fetch implements fetcher.Fetcher.
func (c *Client) Fetch(ctx context.Context, targetURL string) (*fetcher.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, errors.NewNetworkError(targetURL, "request", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Categorize(err, targetURL)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp)
	if err != nil {
		return nil, errors.Categorize(err, targetURL)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	if !isHTML(contentType) {
		return nil, errors.NewNonHTMLError(targetURL, resp.StatusCode, contentType)
	}

	decoded, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		decoded = bytes.NewReader(body)
	}
	text, err := io.ReadAll(decoded)
	if err != nil {
		return nil, errors.NewNetworkError(targetURL, "decode", err)
	}

	doc, err := parser.Parse(bytes.NewReader(text))
	if err != nil {
		return nil, errors.NewNetworkError(targetURL, "parse", err)
	}

	page := fetcher.FromDocument(doc)
	page.StatusCode = resp.StatusCode
	page.ContentType = contentType
	page.FinalURL = resp.Request.URL.String()
	page.HTML = string(text)
	page.Engine = fetcher.EngineHTTP
	return page, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.mu.RLock()
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.mu.RUnlock()
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(io.LimitReader(reader, c.maxBodySize))
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
