package output

import (
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/SiteScout/internal/inventory"
)

// YAMLWriter writes the inventory as a single YAML document.
type YAMLWriter struct {
	mu     sync.Mutex
	writer io.Writer
	closed bool
}

// NewYAMLWriter creates a new YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{writer: w}
}

// WriteInventory writes the complete inventory document.
func (y *YAMLWriter) WriteInventory(inv *inventory.Inventory) error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.closed {
		return nil
	}

	enc := yaml.NewEncoder(y.writer)
	enc.SetIndent(2)
	if err := enc.Encode(NewDocument(inv)); err != nil {
		return err
	}
	return enc.Close()
}

// WritePage is a no-op; YAML output is a single document.
func (y *YAMLWriter) WritePage(inventory.PageRecord) error {
	return nil
}

// Close closes the writer.
func (y *YAMLWriter) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.closed {
		return nil
	}
	y.closed = true

	if closer, ok := y.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
