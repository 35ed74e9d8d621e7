// Package logging configures the process-wide zerolog logger for botkit.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger output.
type Config struct {
	// Level is the minimum level written (trace, debug, info, warn, error, fatal).
	Level string

	// Format is "console" for human-readable output or "json".
	Format string

	// Output overrides the destination. Defaults to stderr.
	Output io.Writer
}

var (
	mu   sync.RWMutex
	root zerolog.Logger

	// fanout receives every log line; sinks attached after Init still see
	// output from loggers created before they were attached.
	fanout = &fanoutWriter{}
)

func init() {
	fanout.setPrimary(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	root = zerolog.New(fanout).With().Timestamp().Logger()
}

// Init configures the global logger. It may be called more than once.
func Init(cfg Config) error {
	level := zerolog.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "console":
		fanout.setPrimary(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	case "json":
		fanout.setPrimary(zerolog.MultiLevelWriter(out))
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}

	mu.Lock()
	defer mu.Unlock()
	zerolog.SetGlobalLevel(level)
	root = zerolog.New(fanout).With().Timestamp().Logger()
	return nil
}

// Logger returns the root logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", name).Logger()
}

// Attach adds a sink that receives every JSON-encoded log line alongside the
// primary output. The returned function detaches it.
func Attach(w zerolog.LevelWriter) (detach func()) {
	return fanout.attach(w)
}

type fanoutWriter struct {
	mu      sync.RWMutex
	primary zerolog.LevelWriter
	sinks   map[int]zerolog.LevelWriter
	next    int
}

func (f *fanoutWriter) setPrimary(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lw, ok := w.(zerolog.LevelWriter); ok {
		f.primary = lw
		return
	}
	f.primary = zerolog.MultiLevelWriter(w)
}

func (f *fanoutWriter) attach(w zerolog.LevelWriter) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sinks == nil {
		f.sinks = make(map[int]zerolog.LevelWriter)
	}
	id := f.next
	f.next++
	f.sinks[id] = w
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.sinks, id)
	}
}

func (f *fanoutWriter) Write(p []byte) (int, error) {
	return f.WriteLevel(zerolog.NoLevel, p)
}

func (f *fanoutWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n, err := f.primary.WriteLevel(level, p)
	for _, sink := range f.sinks {
		// Sink failures never block the primary output.
		_, _ = sink.WriteLevel(level, p)
	}
	return n, err
}
