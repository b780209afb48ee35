package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/PentesterFlow/SiteScout/internal/inventory"
)

// JSONWriter writes output in JSON format. In stream mode every page is
// also written as one JSON line as it is recorded.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteInventory writes the complete inventory document.
func (j *JSONWriter) WriteInventory(inv *inventory.Inventory) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	var data []byte
	var err error
	if j.pretty {
		data, err = json.MarshalIndent(NewDocument(inv), "", "  ")
	} else {
		data, err = json.Marshal(NewDocument(inv))
	}
	if err != nil {
		return err
	}

	return j.writeLine(data)
}

// WritePage writes a page event line in stream mode.
func (j *JSONWriter) WritePage(rec inventory.PageRecord) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	data, err := json.Marshal(StreamEvent{Type: EventPage, Data: rec})
	if err != nil {
		return err
	}
	return j.writeLine(data)
}

func (j *JSONWriter) writeLine(data []byte) error {
	if _, err := j.writer.Write(data); err != nil {
		return err
	}
	_, err := j.writer.Write([]byte("\n"))
	return err
}

// Close closes the writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// StreamEvent represents a streaming output line.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
