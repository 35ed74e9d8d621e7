package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	path string
	body map[string]any
}

func newTestServer(t *testing.T, respond func(method string) (int, string)) (*Client, *[]recordedCall) {
	t.Helper()

	var mu sync.Mutex
	calls := &[]recordedCall{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := map[string]any{}
		_ = json.Unmarshal(raw, &body)

		mu.Lock()
		*calls = append(*calls, recordedCall{path: r.URL.Path, body: body})
		mu.Unlock()

		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		status, payload := respond(method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient("123:abc", WithBaseURL(srv.URL))
	require.NoError(t, err)
	return client, calls
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient("  ")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestGetMe(t *testing.T) {
	client, calls := newTestServer(t, func(string) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"Kit","username":"kit_bot"}}`
	})

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), me.ID)
	assert.Equal(t, "kit_bot", me.Username)
	require.Len(t, *calls, 1)
	assert.Equal(t, "/bot123:abc/getMe", (*calls)[0].path)
}

func TestSendMessageEncodesParams(t *testing.T) {
	client, calls := newTestServer(t, func(string) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{"message_id":99,"chat":{"id":5,"type":"private"},"text":"hi"}}`
	})

	msg, err := client.SendMessage(context.Background(), SendMessageParams{
		ChatID:    5,
		Text:      "hi",
		ParseMode: ParseModeMarkdownV2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99), msg.MessageID)

	body := (*calls)[0].body
	assert.Equal(t, float64(5), body["chat_id"])
	assert.Equal(t, "hi", body["text"])
	assert.Equal(t, "MarkdownV2", body["parse_mode"])
}

func TestTooManyRequestsIsClassified(t *testing.T) {
	client, _ := newTestServer(t, func(string) (int, string) {
		return http.StatusTooManyRequests, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`
	})

	_, err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 1, Text: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooManyRequests))
	assert.False(t, errors.Is(err, ErrUnauthorized))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 3, apiErr.RetryAfter)
	assert.Equal(t, "sendMessage", apiErr.Method)
}

func TestOtherErrorsAreNotRateLimited(t *testing.T) {
	client, _ := newTestServer(t, func(string) (int, string) {
		return http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`
	})

	err := client.AnswerCallbackQuery(context.Background(), AnswerCallbackQueryParams{CallbackQueryID: "q"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTooManyRequests))
	assert.Contains(t, err.Error(), "chat not found")
}

func TestSetMyCommandsWrapsList(t *testing.T) {
	client, calls := newTestServer(t, func(string) (int, string) {
		return http.StatusOK, `{"ok":true,"result":true}`
	})

	err := client.SetMyCommands(context.Background(), []BotCommand{{Command: "help", Description: "Shows help"}})
	require.NoError(t, err)

	cmds, ok := (*calls)[0].body["commands"].([]any)
	require.True(t, ok)
	require.Len(t, cmds, 1)
	assert.Equal(t, "help", cmds[0].(map[string]any)["command"])
}

type fakeSource struct {
	mu      sync.Mutex
	batches [][]Update
	errs    []error
	offsets []int64
}

func (f *fakeSource) GetUpdates(ctx context.Context, params GetUpdatesParams) ([]Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, params.Offset)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.batches) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func TestPollAdvancesOffset(t *testing.T) {
	src := &fakeSource{batches: [][]Update{
		{{UpdateID: 10}, {UpdateID: 11}},
		{{UpdateID: 12}},
	}}
	p := NewPoller(src, PollerConfig{})

	_, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), p.Offset())

	_, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(13), p.Offset())
	assert.Equal(t, []int64{0, 12}, src.offsets)
}

func TestRunDeliversUpdatesUntilCancelled(t *testing.T) {
	src := &fakeSource{batches: [][]Update{{{UpdateID: 1}, {UpdateID: 2}}}}
	p := NewPoller(src, PollerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	var got []int64
	err := p.Run(ctx, func(_ context.Context, u Update) {
		got = append(got, u.UpdateID)
		if len(got) == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{1, 2}, got)
}

func TestRunStopsOnUnauthorized(t *testing.T) {
	src := &fakeSource{errs: []error{&APIError{Method: "getUpdates", Code: http.StatusUnauthorized}}}
	p := NewPoller(src, PollerConfig{})

	err := p.Run(context.Background(), func(context.Context, Update) {})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `a\_b\*c\.d\!`, EscapeMarkdownV2("a_b*c.d!"))
	assert.Equal(t, "plain", EscapeMarkdownV2("plain"))
	assert.Equal(t, "a\\`b\\\\", EscapeCode("a`b\\"))
}

func TestUserString(t *testing.T) {
	assert.Equal(t, "@kit (1)", User{ID: 1, Username: "kit"}.String())
	assert.Equal(t, "Ann (2)", User{ID: 2, FirstName: "Ann"}.String())
	assert.Equal(t, "3", User{ID: 3}.String())
}
