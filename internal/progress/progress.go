// Package progress renders a one-line progress bar while a crawl runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Counts is what the bar shows.
type Counts struct {
	Recorded int
	Failed   int
	Pending  int
	InFlight int
	Forms    int
	Budget   int
}

// Display manages progress bar display during crawling.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	counts    Counts
	startTime time.Time
	target    string
	lastLine  string
}

// New creates a display writing to stderr.
func New() *Display {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter creates a display writing to w.
func NewWithWriter(w io.Writer) *Display {
	return &Display{out: w}
}

// Start begins the progress display.
func (d *Display) Start(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}
	d.started = true
	d.startTime = time.Now()
	d.target = target
}

// Update redraws the bar with c.
func (d *Display) Update(c Counts) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counts = c
	if !d.started || d.stopped {
		return
	}

	elapsed := time.Since(d.startTime)
	speed := float64(0)
	if elapsed.Seconds() > 0 {
		speed = float64(c.Recorded) / elapsed.Seconds()
	}

	pct := percent(c)
	barWidth := 30
	filled := pct * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %3d%% | Pages: %d | Failed: %d | Queue: %d | Forms: %d | %.1f p/s | %s",
		bar, pct, c.Recorded, c.Failed, c.Pending+c.InFlight, c.Forms, speed, formatDuration(elapsed))

	if len(line) < len(d.lastLine) {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
}

// percent estimates completion from the page budget or, without one, from
// the known backlog.
func percent(c Counts) int {
	if c.Pending == 0 && c.InFlight == 0 && c.Recorded > 0 {
		return 100
	}
	total := c.Recorded + c.Pending + c.InFlight
	if c.Budget > 0 && c.Budget < total {
		total = c.Budget
	}
	if total == 0 {
		return 0
	}
	p := c.Recorded * 100 / total
	if p > 99 {
		p = 99
	}
	return p
}

// Stop stops the progress display.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}
	d.stopped = true
	fmt.Fprintln(d.out)
}

// PrintSummary prints a final summary after crawling.
func (d *Display) PrintSummary(w io.Writer, elapsed time.Duration, truncated bool) {
	d.mu.Lock()
	c := d.counts
	target := d.target
	d.mu.Unlock()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                       Crawl Complete                         ║")
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Target:              %s\n", truncateURL(target, 50))
	fmt.Fprintf(w, "  Duration:            %s\n", formatDuration(elapsed))
	fmt.Fprintf(w, "  Pages Recorded:      %d\n", c.Recorded)
	fmt.Fprintf(w, "  Failed:              %d\n", c.Failed)
	fmt.Fprintf(w, "  Forms Found:         %d\n", c.Forms)
	if truncated {
		fmt.Fprintf(w, "  Stopped early:       page budget or time limit reached\n")
	}
	if elapsed.Seconds() > 0 {
		fmt.Fprintf(w, "  Average Speed:       %.1f pages/sec\n", float64(c.Recorded)/elapsed.Seconds())
	}
	fmt.Fprintln(w)
}

// Counts returns the last counts shown.
func (d *Display) Counts() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts
}

func truncateURL(url string, maxLen int) string {
	if len(url) <= maxLen {
		return url
	}
	return url[:maxLen-3] + "..."
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
