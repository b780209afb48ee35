package errors

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxRetries     int           // Maximum number of retries (0 = no retries)
	InitialDelay   time.Duration // Delay before the first retry
	MaxDelay       time.Duration // Upper bound for a single delay
	Multiplier     float64       // Exponential backoff multiplier
	Jitter         float64       // Random jitter factor (0-1)
	RetryableKinds []Kind        // Kinds worth retrying
}

// DefaultRetryConfig returns the defaults used when retries are enabled.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     0,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
		RetryableKinds: []Kind{Timeout, NetworkError},
	}
}

// Retrier implements retry logic with exponential backoff.
type Retrier struct {
	config RetryConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewRetrier creates a new retrier.
func NewRetrier(config RetryConfig) *Retrier {
	if config.Multiplier <= 0 {
		config.Multiplier = 1
	}
	return &Retrier{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) error

// RetryResult holds the result of a retry operation.
type RetryResult struct {
	Attempts  int
	LastError error
	Duration  time.Duration
	Success   bool
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent. Cancelling ctx stops further attempts but never
// interrupts a running one.
func (r *Retrier) Do(ctx context.Context, op, url string, fn RetryFunc) *RetryResult {
	result := &RetryResult{}
	start := time.Now()
	delay := r.config.InitialDelay

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		result.Attempts++

		err := fn(ctx)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.Duration = time.Since(start)
			return result
		}
		result.LastError = err

		if attempt >= r.config.MaxRetries || !r.shouldRetry(err) || ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result
		case <-time.After(r.calculateDelay(delay)):
		}

		delay = r.nextDelay(delay)
	}

	result.Duration = time.Since(start)
	return result
}

// shouldRetry checks if an error should be retried.
func (r *Retrier) shouldRetry(err error) bool {
	kind := KindOf(err)
	if kind == 0 {
		return false
	}
	for _, k := range r.config.RetryableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// calculateDelay adds jitter to the base delay.
func (r *Retrier) calculateDelay(baseDelay time.Duration) time.Duration {
	if r.config.Jitter <= 0 {
		return baseDelay
	}

	r.mu.Lock()
	f := r.rng.Float64()
	r.mu.Unlock()

	jitter := r.config.Jitter * float64(baseDelay)
	return time.Duration(float64(baseDelay) + (f*2*jitter - jitter))
}

// nextDelay calculates the next delay using exponential backoff.
func (r *Retrier) nextDelay(currentDelay time.Duration) time.Duration {
	next := time.Duration(float64(currentDelay) * r.config.Multiplier)
	if r.config.MaxDelay > 0 && next > r.config.MaxDelay {
		return r.config.MaxDelay
	}
	return next
}

// DoWithResult executes a function that returns a value and error.
func DoWithResult[T any](ctx context.Context, r *Retrier, op, url string, fn func(ctx context.Context) (T, error)) (T, *RetryResult) {
	var result T
	retryResult := r.Do(ctx, op, url, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			result = v
		}
		return err
	})
	return result, retryResult
}

// BackoffDuration calculates the backoff duration for a given attempt.
func BackoffDuration(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 0 {
		return initial
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}
