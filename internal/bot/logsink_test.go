package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/botkit/internal/outbox"
)

type collectEnqueuer struct {
	mu      sync.Mutex
	actions []outbox.Action
}

func (c *collectEnqueuer) Enqueue(actions ...outbox.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, actions...)
}

func (c *collectEnqueuer) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actions)
}

func newTestSink(out Enqueuer, cfg LogSinkConfig) *LogSink {
	s := NewLogSink(out, cfg)
	s.now = func() time.Time { return time.Date(2026, 3, 4, 17, 5, 6, 0, time.UTC) }
	return s
}

func TestLogSinkFormatsMarkdownV2(t *testing.T) {
	out := &collectEnqueuer{}
	cfg := DefaultLogSinkConfig(-42)
	cfg.Tag = "my bot"
	sink := newTestSink(out, cfg)

	logger := zerolog.New(sink)
	logger.Info().Msg("too quiet")
	logger.Warn().Str("component", "outbox").Msg("pass failed (3 actions).")
	require.Equal(t, 1, sink.Pending())

	require.Equal(t, 1, sink.Flush(0))
	require.Equal(t, 1, out.len())

	api := &fakeAPI{}
	require.NoError(t, out.actions[0](context.Background(), api))
	require.Len(t, api.sent, 1)
	msg := api.sent[0]
	assert.EqualValues(t, -42, msg.ChatID)
	assert.Equal(t, "MarkdownV2", string(msg.ParseMode))
	assert.True(t, msg.DisableNotification)

	lines := strings.Split(msg.Text, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `\#mybot`, lines[0])
	assert.Equal(t, `*\[warn\]:* pass failed \(3 actions\)\. component\=outbox`, lines[1])
	assert.Equal(t, `\{03/04/2026 05:05:06 PM \+00:00\}`, lines[2])
}

func TestLogSinkBatchesAndCaps(t *testing.T) {
	out := &collectEnqueuer{}
	cfg := DefaultLogSinkConfig(1)
	cfg.Batch = 2
	cfg.MaxPending = 3
	sink := newTestSink(out, cfg)

	for i := 0; i < 5; i++ {
		_, _ = sink.WriteLevel(zerolog.ErrorLevel, []byte(`{"level":"error","message":"x"}`))
	}
	assert.Equal(t, 3, sink.Pending())
	assert.Equal(t, 2, sink.Dropped())

	assert.Equal(t, 2, sink.Flush(cfg.Batch))
	assert.Equal(t, 1, sink.Pending())
	assert.Equal(t, 1, sink.Flush(cfg.Batch))
	assert.Equal(t, 0, sink.Flush(cfg.Batch))
	assert.Equal(t, 3, out.len())
}

func TestLogSinkIgnoresUnleveledLines(t *testing.T) {
	sink := newTestSink(&collectEnqueuer{}, DefaultLogSinkConfig(1))
	n, err := sink.Write([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Zero(t, sink.Pending())
}

func TestLogSinkRunFlushesOnShutdown(t *testing.T) {
	out := &collectEnqueuer{}
	cfg := DefaultLogSinkConfig(1)
	cfg.Interval = time.Hour
	sink := newTestSink(out, cfg)

	_, _ = sink.WriteLevel(zerolog.ErrorLevel, []byte(`{"message":"a"}`))
	_, _ = sink.WriteLevel(zerolog.ErrorLevel, []byte(`{"message":"b"}`))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, 2, out.len())
	_, _ = sink.WriteLevel(zerolog.ErrorLevel, []byte(`{"message":"late"}`))
	assert.Zero(t, sink.Pending())
}

func TestLogSinkRunSendsBatchPerInterval(t *testing.T) {
	out := &collectEnqueuer{}
	cfg := DefaultLogSinkConfig(1)
	cfg.Interval = 5 * time.Millisecond
	cfg.Batch = 1
	sink := newTestSink(out, cfg)

	for i := 0; i < 3; i++ {
		_, _ = sink.WriteLevel(zerolog.WarnLevel, []byte(`{"message":"m"}`))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	require.Eventually(t, func() bool { return out.len() == 3 }, time.Second, time.Millisecond)
}
