// Package shutdown turns interrupt signals into crawl cancellation and runs
// cleanup callbacks in reverse registration order.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Callback is a function called during shutdown.
type Callback func(ctx context.Context) error

// Config holds shutdown configuration.
type Config struct {
	// Timeout bounds all cleanup callbacks together.
	Timeout time.Duration
	Signals []os.Signal
	// OnInterrupt runs when the first signal arrives.
	OnInterrupt func(sig os.Signal)
	// OnForce runs when a second signal arrives while cleanup is pending.
	OnForce func()
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Handler manages graceful shutdown.
type Handler struct {
	mu        sync.Mutex
	callbacks []Callback
	names     []string

	interrupted atomic.Bool
	closed      atomic.Bool
	timeout     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	sigChan     chan os.Signal
	stop        chan struct{}
	onInterrupt func(os.Signal)
	onForce     func()
}

// New creates a handler and starts listening for signals. The handler's
// context is cancelled by the first signal.
func New(cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		timeout:     cfg.Timeout,
		ctx:         ctx,
		cancel:      cancel,
		sigChan:     make(chan os.Signal, 2),
		stop:        make(chan struct{}),
		onInterrupt: cfg.OnInterrupt,
		onForce:     cfg.OnForce,
	}

	signal.Notify(h.sigChan, cfg.Signals...)
	go h.listen()

	return h
}

func (h *Handler) listen() {
	for {
		select {
		case sig := <-h.sigChan:
			if h.interrupted.CompareAndSwap(false, true) {
				if h.onInterrupt != nil {
					h.onInterrupt(sig)
				}
				h.cancel()
				continue
			}
			if h.onForce != nil {
				h.onForce()
			}
		case <-h.stop:
			return
		}
	}
}

// Context is cancelled when the first signal arrives.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted reports whether a signal was received.
func (h *Handler) Interrupted() bool {
	return h.interrupted.Load()
}

// Register registers a cleanup callback.
func (h *Handler) Register(name string, callback Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.callbacks = append(h.callbacks, callback)
	h.names = append(h.names, name)
}

// RegisterFunc registers a cleanup function that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Trigger simulates a signal.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGTERM:
	default:
	}
}

// Close stops listening for signals and runs the callbacks last-in
// first-out. It returns the callback errors. Calling it twice is a no-op.
func (h *Handler) Close() []error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	signal.Stop(h.sigChan)
	close(h.stop)
	defer h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	callbacks := append([]Callback(nil), h.callbacks...)
	names := append([]string(nil), h.names...)
	h.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := run(ctx, names[i], callbacks[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func run(ctx context.Context, name string, callback Callback) error {
	done := make(chan error, 1)
	go func() {
		done <- callback(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: name}
	}
}

// TimeoutError is returned when a callback times out.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
