package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// API is the subset of the Bot API that outbound actions run against.
type API interface {
	GetMe(ctx context.Context) (*User, error)
	SendMessage(ctx context.Context, params SendMessageParams) (*Message, error)
	AnswerCallbackQuery(ctx context.Context, params AnswerCallbackQueryParams) error
	SetMyCommands(ctx context.Context, commands []BotCommand) error
}

// UpdateSource delivers inbound updates.
type UpdateSource interface {
	GetUpdates(ctx context.Context, params GetUpdatesParams) ([]Update, error)
}

// Transport errors.
var (
	// ErrTooManyRequests matches any APIError reporting HTTP 429.
	ErrTooManyRequests = errors.New("too many requests")
	ErrUnauthorized    = errors.New("unauthorized")
)

// APIError is a failed Bot API call.
type APIError struct {
	Method      string
	Code        int
	Description string

	// RetryAfter is the server-provided cooldown in seconds for 429 responses.
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %d %s (retry after %ds)", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Is reports whether the error belongs to one of the transport error classes.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTooManyRequests:
		return e.Code == http.StatusTooManyRequests
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	}
	return false
}
