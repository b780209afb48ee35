package output

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/PentesterFlow/SiteScout/internal/inventory"
)

// DefaultEventBuffer is how many events may queue before new ones are dropped.
const DefaultEventBuffer = 256

// EventStream pushes crawl events to a WebSocket endpoint as JSON messages.
// Publishing never blocks the crawl: when the buffer is full or the
// connection has failed, events are dropped and counted.
type EventStream struct {
	conn         *websocket.Conn
	logger       zerolog.Logger
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	events chan Event
	done   chan struct{}

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Bool
}

// DialEventStream connects to rawURL. http and https URLs are converted to
// ws and wss.
func DialEventStream(ctx context.Context, rawURL string, headers http.Header, logger zerolog.Logger) (*EventStream, error) {
	target, err := websocketURL(rawURL)
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect event stream: %w", err)
	}

	s := &EventStream{
		conn:         conn,
		logger:       logger,
		writeTimeout: 5 * time.Second,
		events:       make(chan Event, DefaultEventBuffer),
		done:         make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func websocketURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid event stream URL: %w", err)
	}

	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid event stream URL scheme %q", parsed.Scheme)
	}
	return parsed.String(), nil
}

func (s *EventStream) run() {
	defer close(s.done)

	for ev := range s.events {
		if s.failed.Load() {
			s.dropped.Add(1)
			continue
		}

		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := s.conn.WriteJSON(ev); err != nil {
			s.failed.Store(true)
			s.dropped.Add(1)
			s.logger.Warn().Err(err).Msg("event stream write failed; dropping further events")
			continue
		}
		s.sent.Add(1)
	}
}

// Publish queues ev. It reports whether the event was accepted.
func (s *EventStream) Publish(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.failed.Load() {
		s.dropped.Add(1)
		return false
	}

	select {
	case s.events <- ev:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// WritePage implements Writer by publishing a page event.
func (s *EventStream) WritePage(rec inventory.PageRecord) error {
	s.Publish(PageEvent(rec))
	return nil
}

// WriteInventory implements Writer by publishing the done event.
func (s *EventStream) WriteInventory(inv *inventory.Inventory) error {
	s.Publish(DoneEvent(inv.Metadata))
	return nil
}

// Sent returns the number of events delivered to the socket.
func (s *EventStream) Sent() int64 {
	return s.sent.Load()
}

// Dropped returns the number of events that were not delivered.
func (s *EventStream) Dropped() int64 {
	return s.dropped.Load()
}

// Close flushes queued events and closes the connection.
func (s *EventStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	<-s.done

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "crawl finished")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
