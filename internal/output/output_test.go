package output

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/SiteScout/internal/errors"
	"github.com/PentesterFlow/SiteScout/internal/inventory"
	"github.com/PentesterFlow/SiteScout/internal/normalize"
)

func record(raw string, depth int) inventory.PageRecord {
	return inventory.PageRecord{
		URL:        normalize.MustParse(raw),
		Depth:      depth,
		StatusCode: 200,
		Title:      "Page " + raw,
		FetchedAt:  time.Unix(1700000000, 0).UTC(),
	}
}

func sampleInventory(t *testing.T) *inventory.Inventory {
	t.Helper()

	b := inventory.NewBuilder()
	seed := record("https://example.com/", 0)
	seed.Links = []normalize.CanonicalURL{
		normalize.MustParse("https://example.com/b"),
		normalize.MustParse("https://example.com/a"),
	}
	seed.Forms = []inventory.FormRecord{{
		Action: "https://example.com/login",
		Method: "POST",
		Fields: []inventory.FieldRecord{{Name: "email", Type: "email", Required: true}},
	}}

	failed := record("https://example.com/b", 1)
	failed.StatusCode = 0
	failed.Title = ""
	failed.DiscoveredFrom = seed.URL
	failed.FetchError = errors.NewTimeoutError("https://example.com/b", "fetch", nil)

	a := record("https://example.com/a", 1)
	a.DiscoveredFrom = seed.URL

	for _, rec := range []inventory.PageRecord{seed, failed, a} {
		if err := b.Add(rec); err != nil {
			t.Fatal(err)
		}
	}
	return b.Snapshot(inventory.Metadata{Seed: "https://example.com/"})
}

// =============================================================================
// Document Tests
// =============================================================================

func TestNewDocument(t *testing.T) {
	doc := NewDocument(sampleInventory(t))

	if len(doc.Pages) != 3 {
		t.Fatalf("Pages = %d, want 3", len(doc.Pages))
	}
	want := []string{"https://example.com/", "https://example.com/a", "https://example.com/b"}
	for i, w := range want {
		if got := doc.Pages[i].URL.String(); got != w {
			t.Errorf("Pages[%d] = %s, want %s", i, got, w)
		}
	}
	if doc.Stats.Failed != 1 || doc.Metadata.TotalErrors != 1 {
		t.Errorf("failed = %d / %d, want 1", doc.Stats.Failed, doc.Metadata.TotalErrors)
	}
}

func TestPageEvent(t *testing.T) {
	inv := sampleInventory(t)

	seed, _ := inv.Get(normalize.MustParse("https://example.com/"))
	ev := PageEvent(seed)
	if ev.Type != EventPage || ev.Links != 2 || ev.Forms != 1 || ev.Failed {
		t.Errorf("PageEvent(seed) = %+v", ev)
	}

	failed, _ := inv.Get(normalize.MustParse("https://example.com/b"))
	ev = PageEvent(failed)
	if !ev.Failed || ev.ErrorKind != "timeout" {
		t.Errorf("PageEvent(failed) = %+v", ev)
	}
}

func TestDoneEvent(t *testing.T) {
	ev := DoneEvent(inventory.Metadata{Seed: "https://example.com/", TotalVisited: 4})

	if ev.Type != EventDone || ev.Metadata == nil || ev.Metadata.TotalVisited != 4 {
		t.Errorf("DoneEvent() = %+v", ev)
	}
}

// =============================================================================
// Writer Tests
// =============================================================================

func TestFormatFor(t *testing.T) {
	tests := []struct {
		config Config
		want   string
	}{
		{Config{}, FormatJSON},
		{Config{Format: "yaml"}, FormatYAML},
		{Config{Format: "YAML"}, FormatYAML},
		{Config{Path: "out/inventory.yml"}, FormatYAML},
		{Config{Path: "inventory.json"}, FormatJSON},
		{Config{Format: "json", Path: "x.yaml"}, FormatJSON},
		{Config{Format: "xml"}, FormatJSON},
	}

	for _, tt := range tests {
		if got := FormatFor(tt.config); got != tt.want {
			t.Errorf("FormatFor(%+v) = %s, want %s", tt.config, got, tt.want)
		}
	}
}

func TestJSONWriter_WriteInventory(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf, true, false)

	if err := w.WriteInventory(sampleInventory(t)); err != nil {
		t.Fatalf("WriteInventory() error = %v", err)
	}

	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not a JSON document: %v", err)
	}
	if len(doc.Pages) != 3 {
		t.Fatalf("Pages = %d, want 3", len(doc.Pages))
	}
	if doc.Pages[2].FetchError == nil || doc.Pages[2].FetchError.Kind != errors.Timeout {
		t.Errorf("failed page lost its error: %+v", doc.Pages[2])
	}
	if doc.Pages[1].DiscoveredFrom.String() != "https://example.com/" {
		t.Errorf("DiscoveredFrom = %s", doc.Pages[1].DiscoveredFrom)
	}
	if !strings.Contains(buf.String(), `"kind": "timeout"`) {
		t.Error("fetch error kind should be written as text")
	}
}

func TestJSONWriter_Stream(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf, false, true)

	if err := w.WritePage(record("https://example.com/", 0)); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}

	var ev StreamEvent
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev); err != nil {
		t.Fatalf("stream line is not JSON: %v", err)
	}
	if ev.Type != EventPage {
		t.Errorf("Type = %q", ev.Type)
	}

	buf.Reset()
	quiet := NewJSONWriter(&buf, false, false)
	quiet.WritePage(record("https://example.com/", 0))
	if buf.Len() != 0 {
		t.Error("non-stream writer should ignore pages")
	}
}

func TestJSONWriter_Closed(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf, false, true)
	w.Close()

	w.WriteInventory(sampleInventory(t))
	w.WritePage(record("https://example.com/", 0))
	if buf.Len() != 0 {
		t.Error("closed writer should not write")
	}
}

func TestYAMLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewYAMLWriter(&buf)

	if err := w.WriteInventory(sampleInventory(t)); err != nil {
		t.Fatalf("WriteInventory() error = %v", err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	pages, ok := doc["pages"].([]interface{})
	if !ok || len(pages) != 3 {
		t.Fatalf("pages = %v", doc["pages"])
	}
	first := pages[0].(map[string]interface{})
	if first["url"] != "https://example.com/" {
		t.Errorf("first url = %v", first["url"])
	}
	if !strings.Contains(buf.String(), "kind: timeout") {
		t.Error("fetch error kind should be written as text")
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "inventory.yaml")

	w, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, ok := w.(*YAMLWriter); !ok {
		t.Errorf("Open() = %T, want *YAMLWriter", w)
	}
	if err := w.WriteInventory(sampleInventory(t)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "seed: https://example.com/") {
		t.Errorf("file content:\n%s", data)
	}
}

type recordingWriter struct {
	pages  int
	docs   int
	closed bool
}

func (r *recordingWriter) WriteInventory(*inventory.Inventory) error { r.docs++; return nil }
func (r *recordingWriter) WritePage(inventory.PageRecord) error      { r.pages++; return nil }
func (r *recordingWriter) Close() error                              { r.closed = true; return nil }

func TestMulti(t *testing.T) {
	a, b := &recordingWriter{}, &recordingWriter{}
	m := Multi{a, b}

	m.WritePage(record("https://example.com/", 0))
	m.WriteInventory(sampleInventory(t))
	m.Close()

	for i, w := range []*recordingWriter{a, b} {
		if w.pages != 1 || w.docs != 1 || !w.closed {
			t.Errorf("writer %d = %+v", i, w)
		}
	}
}

// =============================================================================
// Bolt Tests
// =============================================================================

func TestBoltWriter_Pages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")
	w, err := NewBoltWriter(path)
	if err != nil {
		t.Fatalf("NewBoltWriter() error = %v", err)
	}
	defer w.Close()

	for _, raw := range []string{"https://example.com/", "https://example.com/z", "https://example.com/a"} {
		if err := w.WritePage(record(raw, 1)); err != nil {
			t.Fatalf("WritePage() error = %v", err)
		}
	}

	doc, err := w.Document()
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	want := []string{"https://example.com/", "https://example.com/z", "https://example.com/a"}
	if len(doc.Pages) != len(want) {
		t.Fatalf("Pages = %d, want %d", len(doc.Pages), len(want))
	}
	for i, u := range want {
		if doc.Pages[i].URL.String() != u {
			t.Errorf("Pages[%d] = %s, want %s (visit order)", i, doc.Pages[i].URL, u)
		}
	}
}

func TestBoltWriter_WriteInventory(t *testing.T) {
	w, err := NewBoltWriter(filepath.Join(t.TempDir(), "inventory.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.WritePage(record("https://stale.example/", 0))
	if err := w.WriteInventory(sampleInventory(t)); err != nil {
		t.Fatalf("WriteInventory() error = %v", err)
	}

	doc, err := w.Document()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Pages) != 3 {
		t.Fatalf("Pages = %d, want 3", len(doc.Pages))
	}
	if doc.Metadata.Seed != "https://example.com/" || doc.Stats.Pages != 3 {
		t.Errorf("metadata/stats = %+v / %+v", doc.Metadata, doc.Stats)
	}
	for _, p := range doc.Pages {
		if p.URL.Host() == "stale.example" {
			t.Error("WriteInventory should replace earlier pages")
		}
	}
}

func TestBoltWriter_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")

	w, err := NewBoltWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	w.WritePage(record("https://example.com/1", 1))
	w.WritePage(record("https://example.com/2", 1))
	w.Close()

	w, err = NewBoltWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.WritePage(record("https://example.com/3", 1))

	doc, _ := w.Document()
	if len(doc.Pages) != 3 {
		t.Fatalf("Pages = %d, want 3", len(doc.Pages))
	}
	if doc.Pages[2].URL.String() != "https://example.com/3" {
		t.Errorf("last page = %s", doc.Pages[2].URL)
	}
}

// =============================================================================
// Event Stream Tests
// =============================================================================

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func eventServer(t *testing.T) (*httptest.Server, <-chan Event) {
	t.Helper()
	received := make(chan Event, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				close(received)
				return
			}
			received <- ev
		}
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func TestEventStream(t *testing.T) {
	srv, received := eventServer(t)

	s, err := DialEventStream(context.Background(), srv.URL, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("DialEventStream() error = %v", err)
	}

	inv := sampleInventory(t)
	for _, rec := range inv.Records() {
		if err := s.WritePage(rec); err != nil {
			t.Fatal(err)
		}
	}
	s.WriteInventory(inv)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) < 4 {
		select {
		case ev, ok := <-received:
			if !ok {
				t.Fatalf("server saw %d events, want 4", len(got))
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events", len(got))
		}
	}

	if got[0].Type != EventPage || got[0].URL != "https://example.com/" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[3].Type != EventDone || got[3].Metadata == nil {
		t.Errorf("last event = %+v", got[3])
	}
	if s.Sent() != 4 || s.Dropped() != 0 {
		t.Errorf("sent/dropped = %d/%d", s.Sent(), s.Dropped())
	}
}

func TestEventStream_PublishAfterClose(t *testing.T) {
	srv, _ := eventServer(t)

	s, err := DialEventStream(context.Background(), srv.URL, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	if s.Publish(PageEvent(record("https://example.com/", 0))) {
		t.Error("Publish() after Close should be rejected")
	}
	if s.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", s.Dropped())
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDialEventStream_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	if _, err := DialEventStream(context.Background(), srv.URL, nil, zerolog.Nop()); err == nil {
		t.Error("DialEventStream() should fail when nothing listens")
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080/events", "ws://localhost:8080/events", false},
		{"https://hooks.example/e", "wss://hooks.example/e", false},
		{"ws://localhost/e", "ws://localhost/e", false},
		{"ftp://localhost/e", "", true},
	}

	for _, tt := range tests {
		got, err := websocketURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("websocketURL(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("websocketURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
