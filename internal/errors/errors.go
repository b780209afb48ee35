// Package errors provides the crawler's error taxonomy.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Kind is the closed set of fetch failure kinds.
type Kind int

const (
	// Timeout means the page did not load within its deadline.
	Timeout Kind = iota + 1
	// NetworkError covers DNS, connection and protocol failures.
	NetworkError
	// NonHTML means the response was not an HTML document.
	NonHTML
	// Aborted means the fetch was cancelled or aborted by the fetcher.
	Aborted
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case NetworkError:
		return "network_error"
	case NonHTML:
		return "non_html"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "timeout":
		*k = Timeout
	case "network_error":
		*k = NetworkError
	case "non_html":
		*k = NonHTML
	case "aborted":
		*k = Aborted
	default:
		return fmt.Errorf("unknown fetch error kind %q", text)
	}
	return nil
}

// IsRetryable returns whether failures of this kind may succeed on a retry.
func (k Kind) IsRetryable() bool {
	return k == Timeout || k == NetworkError
}

// FetchError is the failure variant of a page fetch.
type FetchError struct {
	Kind        Kind   `json:"kind" yaml:"kind"`
	URL         string `json:"url" yaml:"url"`
	Op          string `json:"op,omitempty" yaml:"op,omitempty"`
	Message     string `json:"message" yaml:"message"`
	StatusCode  int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Cause       error  `json:"-" yaml:"-"`
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	op := e.Op
	if op == "" {
		op = "fetch"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Kind, op, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s", e.Kind, op, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a FetchError of the same kind.
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewFetchError creates a new FetchError.
func NewFetchError(kind Kind, url, op, message string, cause error) *FetchError {
	return &FetchError{
		Kind:    kind,
		URL:     url,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, op string, cause error) *FetchError {
	return NewFetchError(Timeout, url, op, "page load timed out", cause)
}

// NewNetworkError creates a network error.
func NewNetworkError(url, op string, cause error) *FetchError {
	msg := "network failure"
	if cause != nil {
		msg = cause.Error()
	}
	return NewFetchError(NetworkError, url, op, msg, cause)
}

// NewNonHTMLError creates an error for a response that is not an HTML document.
func NewNonHTMLError(url string, statusCode int, contentType string) *FetchError {
	e := NewFetchError(NonHTML, url, "fetch", fmt.Sprintf("unsupported content type %q", contentType), nil)
	e.StatusCode = statusCode
	e.ContentType = contentType
	return e
}

// NewAbortedError creates an aborted error.
func NewAbortedError(url, op string, cause error) *FetchError {
	return NewFetchError(Aborted, url, op, "fetch aborted", cause)
}

// Categorize maps an arbitrary fetch failure onto the closed set of kinds.
// Unrecognized failures are reported as NetworkError.
func Categorize(err error, url string) *FetchError {
	if err == nil {
		return nil
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return NewTimeoutError(url, "fetch", err)
	}

	if errors.Is(err, context.Canceled) || isAbort(err) {
		return NewAbortedError(url, "fetch", err)
	}

	return NewNetworkError(url, "fetch", err)
}

// AsFetchError returns err as a FetchError, classifying it when needed.
func AsFetchError(err error, url string) *FetchError {
	return Categorize(err, url)
}

// KindOf returns the fetch kind of err, or zero when err is not a fetch failure.
func KindOf(err error) Kind {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return 0
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind.IsRetryable()
	}
	return isTimeout(err) || isNetworkError(err)
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "net::ERR_TIMED_OUT")
}

// isAbort checks for browser-level navigation aborts.
func isAbort(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "net::ERR_ABORTED") ||
		strings.Contains(errStr, "context canceled")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "net::ERR_")
}

// NormalizationError reports a URL that cannot be turned into a canonical URL.
type NormalizationError struct {
	Raw    string
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *NormalizationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot normalize %q: %s: %v", e.Raw, e.Reason, e.Cause)
	}
	return fmt.Sprintf("cannot normalize %q: %s", e.Raw, e.Reason)
}

// Unwrap returns the underlying error.
func (e *NormalizationError) Unwrap() error {
	return e.Cause
}

// NewNormalizationError creates a new NormalizationError.
func NewNormalizationError(raw, reason string, cause error) *NormalizationError {
	return &NormalizationError{Raw: raw, Reason: reason, Cause: cause}
}

// IsNormalizationError reports whether err is a NormalizationError.
func IsNormalizationError(err error) bool {
	var normErr *NormalizationError
	return errors.As(err, &normErr)
}

// InvariantViolation is an internal consistency failure. It is never recovered.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

// Error implements the error interface.
func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation (%s): %s", e.Invariant, e.Detail)
}

// NewInvariantViolation creates a new InvariantViolation.
func NewInvariantViolation(invariant, format string, args ...interface{}) *InvariantViolation {
	return &InvariantViolation{
		Invariant: invariant,
		Detail:    fmt.Sprintf(format, args...),
	}
}

// IsInvariantViolation reports whether err is an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// SeedError is returned when the seed page itself cannot be crawled.
type SeedError struct {
	Seed string
	Err  error
}

// Error implements the error interface.
func (e *SeedError) Error() string {
	if kind := KindOf(e.Err); kind != 0 {
		return fmt.Sprintf("seed %s unreachable (%s): %v", e.Seed, kind, e.Err)
	}
	return fmt.Sprintf("seed %s unusable: %v", e.Seed, e.Err)
}

// Unwrap returns the underlying error.
func (e *SeedError) Unwrap() error {
	return e.Err
}

// IsSeedError reports whether err is a SeedError.
func IsSeedError(err error) bool {
	var seedErr *SeedError
	return errors.As(err, &seedErr)
}
