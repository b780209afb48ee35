// Package scope decides which discovered URLs a crawl may visit.
package scope

import (
	"context"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/PentesterFlow/SiteScout/internal/normalize"
)

// RobotsChecker reports whether robots.txt permits fetching a URL.
type RobotsChecker interface {
	Allowed(ctx context.Context, u normalize.CanonicalURL) bool
}

// Reason explains why a URL was rejected.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonCrossOrigin Reason = "cross_origin"
	ReasonStaticAsset Reason = "static_asset"
	ReasonExcluded    Reason = "excluded"
	ReasonRobots      Reason = "robots"
)

// Decision is the outcome of a scope check.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Pattern is the exclude pattern or extension that matched, if any.
	Pattern string
}

// Filter validates URLs against the rules of one run. It never mutates
// crawl state; the only state it owns is the set of allowed origins.
type Filter struct {
	mu      sync.RWMutex
	origins map[string]struct{}
	exclude []*regexp.Regexp
	skipExt []string
	robots  RobotsChecker
}

// NewFilter creates a filter anchored at the seed origin. robots may be nil,
// in which case robots.txt is not consulted.
func NewFilter(seed normalize.CanonicalURL, rules Rules, robots RobotsChecker) *Filter {
	f := &Filter{
		origins: make(map[string]struct{}),
		exclude: rules.ExcludePatterns,
		robots:  robots,
	}

	if !seed.IsZero() {
		f.origins[seed.Origin()] = struct{}{}
	}
	for _, origin := range rules.AllowedOrigins {
		if o, err := normalize.Origin(origin); err == nil {
			f.origins[o] = struct{}{}
		}
	}

	exts := rules.SkipExtensions
	if exts == nil {
		exts = DefaultSkipExtensions
	}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.skipExt = append(f.skipExt, ext)
	}

	if !rules.RespectRobots {
		f.robots = nil
	}

	return f
}

// AllowOrigin adds an origin to the allowed set, e.g. the seed's origin after
// a redirect.
func (f *Filter) AllowOrigin(origin string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.origins[origin] = struct{}{}
}

// Origins returns the allowed origins.
func (f *Filter) Origins() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.origins))
	for o := range f.origins {
		out = append(out, o)
	}
	return out
}

// Admissible reports whether u may be crawled.
func (f *Filter) Admissible(ctx context.Context, u normalize.CanonicalURL) bool {
	return f.Check(ctx, u).Allowed
}

// Check evaluates u in order: origin, static extension, exclude patterns,
// then robots.txt. The first failing rule decides.
func (f *Filter) Check(ctx context.Context, u normalize.CanonicalURL) Decision {
	if u.IsZero() {
		return Decision{Reason: ReasonCrossOrigin}
	}

	f.mu.RLock()
	_, sameOrigin := f.origins[u.Origin()]
	f.mu.RUnlock()
	if !sameOrigin {
		return Decision{Reason: ReasonCrossOrigin, Pattern: u.Origin()}
	}

	if ext := f.staticExtension(u); ext != "" {
		return Decision{Reason: ReasonStaticAsset, Pattern: ext}
	}

	s := u.String()
	for _, re := range f.exclude {
		if re.MatchString(s) {
			return Decision{Reason: ReasonExcluded, Pattern: re.String()}
		}
	}

	if f.robots != nil && !f.robots.Allowed(ctx, u) {
		return Decision{Reason: ReasonRobots}
	}

	return Decision{Allowed: true}
}

func (f *Filter) staticExtension(u normalize.CanonicalURL) string {
	ext := strings.ToLower(path.Ext(u.Path()))
	if ext == "" {
		return ""
	}
	for _, skip := range f.skipExt {
		if ext == skip {
			return skip
		}
	}
	return ""
}

// CompilePatterns compiles exclude patterns. Patterns use Go regexp syntax
// and are matched anywhere in the canonical URL string.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &PatternError{Pattern: p, Err: err}
		}
		out = append(out, re)
	}
	return out, nil
}

// PatternError reports an exclude pattern that does not compile.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "invalid exclude pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error { return e.Err }
