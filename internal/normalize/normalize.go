// Package normalize canonicalizes URLs so that equivalent destinations share
// one identity.
package normalize

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PentesterFlow/SiteScout/internal/errors"
)

// CanonicalURL is the normalized, comparable form of an http(s) URL. The zero
// value is "no URL". Two CanonicalURLs are equal exactly when they denote the
// same destination after normalization, so the type is safe as a map key.
type CanonicalURL struct {
	scheme string
	host   string
	path   string
	query  string
}

// Parse normalizes an absolute URL.
func Parse(raw string) (CanonicalURL, error) {
	return Resolve(raw, CanonicalURL{})
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(raw string) CanonicalURL {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// Resolve normalizes raw, resolving it against base when it is relative. A
// zero base means raw must be absolute.
func Resolve(raw string, base CanonicalURL) (CanonicalURL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CanonicalURL{}, errors.NewNormalizationError(raw, "empty url", nil)
	}

	ref, err := url.Parse(trimmed)
	if err != nil {
		return CanonicalURL{}, errors.NewNormalizationError(raw, "malformed url", err)
	}

	scheme := strings.ToLower(ref.Scheme)
	if scheme != "" && scheme != "http" && scheme != "https" {
		return CanonicalURL{}, errors.NewNormalizationError(raw, "unsupported scheme "+scheme, nil)
	}

	var u *url.URL
	if base.IsZero() {
		if !ref.IsAbs() {
			return CanonicalURL{}, errors.NewNormalizationError(raw, "relative url without base", nil)
		}
		// Resolving against itself removes dot segments.
		u = ref.ResolveReference(&url.URL{})
		u.RawQuery = ref.RawQuery
	} else {
		u = base.url().ResolveReference(ref)
	}

	return fromURL(raw, u)
}

// ResolveRaw is like Resolve but takes the base as the document address was
// served. A base path ending in "/" keeps its directory meaning, which the
// canonical form drops.
func ResolveRaw(raw, base string) (CanonicalURL, error) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil || !b.IsAbs() {
		return CanonicalURL{}, errors.NewNormalizationError(base, "invalid base url", err)
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CanonicalURL{}, errors.NewNormalizationError(raw, "empty url", nil)
	}
	ref, err := url.Parse(trimmed)
	if err != nil {
		return CanonicalURL{}, errors.NewNormalizationError(raw, "malformed url", err)
	}

	return fromURL(raw, b.ResolveReference(ref))
}

// Join resolves href against the document address doc and returns the result
// in raw form, for use as the base of further resolution. It returns doc when
// href is empty or unparseable.
func Join(doc, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return doc
	}
	d, err := url.Parse(doc)
	if err != nil {
		return doc
	}
	ref, err := url.Parse(href)
	if err != nil {
		return doc
	}
	return d.ResolveReference(ref).String()
}

func fromURL(raw string, u *url.URL) (CanonicalURL, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return CanonicalURL{}, errors.NewNormalizationError(raw, "unsupported scheme "+scheme, nil)
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return CanonicalURL{}, errors.NewNormalizationError(raw, "missing host", nil)
	}
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}

	host := hostname
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host = hostname + ":" + port
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}

	return CanonicalURL{
		scheme: scheme,
		host:   host,
		path:   path,
		query:  sortQuery(u.RawQuery),
	}, nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// sortQuery orders query parameters by key. Values and the relative order of
// repeated keys are preserved.
func sortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	parts := strings.Split(rawQuery, "&")
	params := parts[:0]
	for _, p := range parts {
		if p != "" {
			params = append(params, p)
		}
	}

	sort.SliceStable(params, func(i, j int) bool {
		return queryKey(params[i]) < queryKey(params[j])
	})

	return strings.Join(params, "&")
}

func queryKey(param string) string {
	if i := strings.IndexByte(param, '='); i >= 0 {
		return param[:i]
	}
	return param
}

func (c CanonicalURL) url() *url.URL {
	u := &url.URL{
		Scheme:   c.scheme,
		Host:     c.host,
		RawQuery: c.query,
	}
	if p, err := url.PathUnescape(c.path); err == nil {
		u.Path = p
		u.RawPath = c.path
	} else {
		u.Path = c.path
	}
	return u
}

// String returns the canonical string form.
func (c CanonicalURL) String() string {
	if c.IsZero() {
		return ""
	}
	s := c.scheme + "://" + c.host + c.path
	if c.query != "" {
		s += "?" + c.query
	}
	return s
}

// IsZero reports whether c is the zero value.
func (c CanonicalURL) IsZero() bool {
	return c == CanonicalURL{}
}

// Scheme returns the lower-cased scheme.
func (c CanonicalURL) Scheme() string { return c.scheme }

// Host returns the lower-cased host, including a non-default port.
func (c CanonicalURL) Host() string { return c.host }

// Path returns the escaped path.
func (c CanonicalURL) Path() string { return c.path }

// Query returns the sorted raw query.
func (c CanonicalURL) Query() string { return c.query }

// Origin returns scheme://host.
func (c CanonicalURL) Origin() string {
	if c.IsZero() {
		return ""
	}
	return c.scheme + "://" + c.host
}

// RequestURI returns the path and query, as sent in an HTTP request line.
func (c CanonicalURL) RequestURI() string {
	if c.query != "" {
		return c.path + "?" + c.query
	}
	return c.path
}

// SameOrigin reports whether c and other share scheme and host.
func (c CanonicalURL) SameOrigin(other CanonicalURL) bool {
	return c.scheme == other.scheme && c.host == other.host
}

// MarshalText implements encoding.TextMarshaler.
func (c CanonicalURL) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CanonicalURL) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = CanonicalURL{}
		return nil
	}
	u, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = u
	return nil
}

// Origin is the scheme+host pair used for same-origin checks.
func Origin(raw string) (string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return u.Origin(), nil
}
