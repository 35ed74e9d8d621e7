package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/botkit/internal/outbox"
	"github.com/opencode-ai/botkit/internal/telegram"
)

// Enqueuer accepts outbound actions. *outbox.Queue implements it.
type Enqueuer interface {
	Enqueue(actions ...outbox.Action)
}

// LogSinkConfig configures forwarding of log lines to a chat.
type LogSinkConfig struct {
	// ChatID receives the log messages.
	ChatID int64

	// Level is the minimum forwarded level. Telegram's limits make anything
	// below info impractical.
	// Default: warn (from DefaultLogSinkConfig).
	Level zerolog.Level

	// Tag is prepended as a hashtag. Spaces are removed.
	Tag string

	// Interval between batches.
	// Default: 1 minute.
	Interval time.Duration

	// Batch is the number of messages sent per interval.
	// Default: 20.
	Batch int

	// MaxPending drops the oldest lines beyond this many.
	// Default: 1000.
	MaxPending int
}

// DefaultLogSinkConfig returns a config forwarding warnings and above.
func DefaultLogSinkConfig(chatID int64) LogSinkConfig {
	return LogSinkConfig{
		ChatID:     chatID,
		Level:      zerolog.WarnLevel,
		Interval:   time.Minute,
		Batch:      20,
		MaxPending: 1000,
	}
}

// LogSink is a zerolog.LevelWriter that queues log lines and forwards them
// to a chat in MarkdownV2, a batch per interval.
type LogSink struct {
	config LogSinkConfig
	out    Enqueuer
	now    func() time.Time

	mu      sync.Mutex
	pending []string
	closed  bool
	dropped int
}

// NewLogSink creates a sink that sends through out.
func NewLogSink(out Enqueuer, config LogSinkConfig) *LogSink {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Batch <= 0 {
		config.Batch = 20
	}
	if config.MaxPending <= 0 {
		config.MaxPending = 1000
	}
	config.Tag = strings.Join(strings.Fields(config.Tag), "")
	return &LogSink{config: config, out: out, now: time.Now}
}

func (s *LogSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel queues p when level is high enough. It never fails.
func (s *LogSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < s.config.Level || level == zerolog.NoLevel || level == zerolog.Disabled {
		return len(p), nil
	}
	text := s.format(level, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return len(p), nil
	}
	s.pending = append(s.pending, text)
	if over := len(s.pending) - s.config.MaxPending; over > 0 {
		s.pending = s.pending[over:]
		s.dropped += over
	}
	return len(p), nil
}

// Pending returns the number of queued lines.
func (s *LogSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Dropped returns how many lines were discarded because the sink was full.
func (s *LogSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Flush enqueues up to n queued lines, or all of them when n <= 0, and
// returns how many were sent.
func (s *LogSink) Flush(n int) int {
	s.mu.Lock()
	if n <= 0 || n > len(s.pending) {
		n = len(s.pending)
	}
	batch := s.pending[:n:n]
	s.pending = s.pending[n:]
	s.mu.Unlock()

	chatID := s.config.ChatID
	for _, text := range batch {
		text := text // per-iteration copy (go directive predates Go 1.22 loopvar semantics)
		s.out.Enqueue(func(ctx context.Context, api telegram.API) error {
			_, err := api.SendMessage(ctx, telegram.SendMessageParams{
				ChatID:              chatID,
				Text:                text,
				ParseMode:           telegram.ParseModeMarkdownV2,
				DisableNotification: true,
			})
			return err
		})
	}
	return len(batch)
}

// Run forwards one batch per interval until ctx ends, then stops accepting
// lines and flushes everything left.
func (s *LogSink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			s.Flush(0)
			return
		case <-ticker.C:
			s.Flush(s.config.Batch)
		}
	}
}

// format renders a JSON log line as
//
//	#tag
//	*[level]:* message key=value...
//	\{time\}
func (s *LogSink) format(level zerolog.Level, p []byte) string {
	var fields map[string]any
	message := strings.TrimSpace(string(p))
	if err := json.Unmarshal(p, &fields); err == nil {
		message = fmt.Sprint(fields[zerolog.MessageFieldName])
		if fields[zerolog.MessageFieldName] == nil {
			message = ""
		}
		delete(fields, zerolog.MessageFieldName)
		delete(fields, zerolog.LevelFieldName)
		delete(fields, zerolog.TimestampFieldName)

		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			message += fmt.Sprintf(" %s=%v", k, fields[k])
		}
	}

	var b strings.Builder
	if s.config.Tag != "" {
		b.WriteString("\\#" + telegram.EscapeMarkdownV2(s.config.Tag) + "\n")
	}
	fmt.Fprintf(&b, "*\\[%s\\]:* %s\n", telegram.EscapeMarkdownV2(level.String()), telegram.EscapeMarkdownV2(strings.TrimSpace(message)))
	b.WriteString("\\{" + telegram.EscapeMarkdownV2(s.now().Format("01/02/2006 03:04:05 PM -07:00")) + "\\}")
	return b.String()
}
