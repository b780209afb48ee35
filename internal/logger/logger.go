// Package logger provides structured logging for the site crawler.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log levels.
type Level = zerolog.Level

// Log levels.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	Disabled   = zerolog.Disabled
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	zl zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      Level
	Pretty     bool // Use console writer (colored output)
	Output     io.Writer
	TimeFormat string
	Component  string // Component name (e.g., "scheduler", "robots", "browser")
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Pretty:     true,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	output := cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05",
		}
	}

	zl := zerolog.New(output).
		With().
		Timestamp().
		Logger().
		Level(cfg.Level)

	if cfg.Component != "" {
		zl = zl.With().Str("component", cfg.Component).Logger()
	}

	return &Logger{zl: zl}
}

// NewJSON creates a JSON-only logger writing to w.
func NewJSON(w io.Writer, level Level) *Logger {
	return New(Config{
		Level:  level,
		Output: w,
	})
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Zerolog returns the underlying logger for components that take one directly.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// WithComponent returns a new logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl: l.zl.With().Str("component", component).Logger(),
	}
}

// WithURL returns a new logger with URL field.
func (l *Logger) WithURL(url string) *Logger {
	return &Logger{
		zl: l.zl.With().Str("url", url).Logger(),
	}
}

// WithWorker returns a new logger with worker ID field.
func (l *Logger) WithWorker(workerID int) *Logger {
	return &Logger{
		zl: l.zl.With().Int("worker_id", workerID).Logger(),
	}
}

// WithDepth returns a new logger with the crawl depth field.
func (l *Logger) WithDepth(depth int) *Logger {
	return &Logger{
		zl: l.zl.With().Int("depth", depth).Logger(),
	}
}

// WithError returns a new logger with the error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		zl: l.zl.With().Err(err).Logger(),
	}
}

// Event returns a zerolog event at level.
func (l *Logger) Event(level Level) *zerolog.Event {
	return l.zl.WithLevel(level)
}

// CrawlEvent starts an event carrying the fields every scheduler line has.
func (l *Logger) CrawlEvent(level Level, url string, depth, workerID int) *zerolog.Event {
	return l.Event(level).
		Str("url", url).
		Int("depth", depth).
		Int("worker_id", workerID)
}

// Debug starts a debug event.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }

// Info starts an info event.
func (l *Logger) Info() *zerolog.Event { return l.zl.Info() }

// Warn starts a warning event.
func (l *Logger) Warn() *zerolog.Event { return l.zl.Warn() }

// Error starts an error event.
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// PageEvent logs a fetched page with the standard fields.
func (l *Logger) PageEvent(url string, depth, status int, engine string, duration time.Duration) {
	l.zl.Debug().
		Str("url", url).
		Int("depth", depth).
		Int("status_code", status).
		Str("engine", engine).
		Dur("duration", duration).
		Msg("page fetched")
}

// FetchFailed logs a page that could not be loaded.
func (l *Logger) FetchFailed(url string, depth int, kind string, err error) {
	l.zl.Warn().
		Err(err).
		Str("url", url).
		Int("depth", depth).
		Str("kind", kind).
		Msg("fetch failed")
}

// ErrorEvent logs a failed operation that is not tied to a single fetch.
func (l *Logger) ErrorEvent(err error, url, operation string) {
	l.zl.Error().
		Err(err).
		Str("url", url).
		Str("operation", operation).
		Msg("operation failed")
}

// StatsEvent logs end-of-run statistics.
func (l *Logger) StatsEvent(stats map[string]interface{}) {
	event := l.zl.Info()
	for k, v := range stats {
		event = event.Interface(k, v)
	}
	event.Msg("crawl statistics")
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level Level) {
	l.zl = l.zl.Level(level)
}

// ParseLevel parses a level string.
func ParseLevel(levelStr string) (Level, error) {
	return zerolog.ParseLevel(levelStr)
}
