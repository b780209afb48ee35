// Package output serializes crawl inventories and streams crawl events.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PentesterFlow/SiteScout/internal/inventory"
)

// Formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Writer defines the interface for inventory writers.
type Writer interface {
	// WriteInventory writes the complete inventory document.
	WriteInventory(inv *inventory.Inventory) error

	// WritePage writes a single record as it is produced. Writers that
	// only emit whole documents ignore it.
	WritePage(rec inventory.PageRecord) error

	Close() error
}

// Config holds output configuration.
type Config struct {
	Path      string `json:"path" yaml:"path"`
	Format    string `json:"format" yaml:"format"`
	Pretty    bool   `json:"pretty" yaml:"pretty"`
	Stream    bool   `json:"stream" yaml:"stream"`
	BoltPath  string `json:"bolt_path,omitempty" yaml:"bolt_path,omitempty"`
	EventsURL string `json:"events_url,omitempty" yaml:"events_url,omitempty"`
}

// NewWriter creates a document writer for w.
func NewWriter(w io.Writer, config Config) Writer {
	switch FormatFor(config) {
	case FormatYAML:
		return NewYAMLWriter(w)
	default:
		return NewJSONWriter(w, config.Pretty, config.Stream)
	}
}

// FormatFor returns the configured format, falling back to the output
// file's extension and then to JSON.
func FormatFor(config Config) string {
	if f := strings.ToLower(config.Format); f == FormatJSON || f == FormatYAML {
		return f
	}
	switch strings.ToLower(filepath.Ext(config.Path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Open creates the document writer described by config: the named file, or
// stdout when Path is empty or "-".
func Open(config Config) (Writer, error) {
	if config.Path == "" || config.Path == "-" {
		return NewWriter(nopCloser{os.Stdout}, config), nil
	}

	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return NewWriter(f, config), nil
}

// Multi fans every call out to several writers and returns the first error.
type Multi []Writer

// WriteInventory implements Writer.
func (m Multi) WriteInventory(inv *inventory.Inventory) error {
	var first error
	for _, w := range m {
		if err := w.WriteInventory(inv); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WritePage implements Writer.
func (m Multi) WritePage(rec inventory.PageRecord) error {
	var first error
	for _, w := range m {
		if err := w.WritePage(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements Writer.
func (m Multi) Close() error {
	var first error
	for _, w := range m {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
