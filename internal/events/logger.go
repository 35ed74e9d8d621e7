// Package events provides helpers for writing botkit audit events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/opencode-ai/botkit/internal/logging"
	"github.com/opencode-ai/botkit/internal/models"
	"github.com/rs/zerolog"
)

// Repository is the minimal interface needed to write events.
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
}

// LogCommandCalled records a command invocation by userID.
func LogCommandCalled(ctx context.Context, repo Repository, userID int64, p models.CommandCalledPayload) error {
	return record(ctx, repo, models.EventTypeCommandCalled, models.EntityTypeUser, userKey(userID), p)
}

// LogCommandFailed records a failed invocation.
func LogCommandFailed(ctx context.Context, repo Repository, userID int64, p models.CommandFailedPayload) error {
	return record(ctx, repo, models.EventTypeCommandFailed, models.EntityTypeUser, userKey(userID), p)
}

// LogCommandHeld records a command starting to hold userID.
func LogCommandHeld(ctx context.Context, repo Repository, userID int64, trigger string) error {
	return record(ctx, repo, models.EventTypeCommandHeld, models.EntityTypeUser, userKey(userID),
		models.CommandCalledPayload{Trigger: trigger})
}

// LogUserDenied records a message dropped by the allow-list.
func LogUserDenied(ctx context.Context, repo Repository, userID int64, username, reason string) error {
	return record(ctx, repo, models.EventTypeUserDenied, models.EntityTypeUser, userKey(userID),
		models.UserDeniedPayload{Username: username, Reason: reason})
}

// LogUserFlooded records a message dropped by the flood limiter.
func LogUserFlooded(ctx context.Context, repo Repository, userID int64, username string) error {
	return record(ctx, repo, models.EventTypeUserFlooded, models.EntityTypeUser, userKey(userID),
		models.UserDeniedPayload{Username: username, Reason: "flood limit"})
}

// LogCallbackRouted records a callback query delivered to its command.
func LogCallbackRouted(ctx context.Context, repo Repository, userID int64, trigger, data string) error {
	return record(ctx, repo, models.EventTypeCallbackRouted, models.EntityTypeUser, userKey(userID),
		models.CallbackRoutedPayload{Trigger: trigger, Data: data})
}

// LogDataLost records an outbox pass that failed after dispatching actions.
func LogDataLost(ctx context.Context, repo Repository, queue string, p models.DataLostPayload) error {
	return record(ctx, repo, models.EventTypeQueueDataLost, models.EntityTypeQueue, queue, p)
}

func record(ctx context.Context, repo Repository, t models.EventType, et models.EntityType, id string, payload any) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if id == "" {
		return fmt.Errorf("entity id is required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}

	return repo.Create(ctx, &models.Event{
		Type:       t,
		EntityType: et,
		EntityID:   id,
		Payload:    data,
	})
}

func userKey(id int64) string {
	if id == 0 {
		return "anonymous"
	}
	return strconv.FormatInt(id, 10)
}

// Recorder writes events and logs failures instead of returning them, so
// callers on the update path never fail because the audit log did.
type Recorder struct {
	repo   Repository
	logger zerolog.Logger
}

// NewRecorder returns a Recorder. A nil repo makes every call a no-op.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: logging.Component("events")}
}

// Enabled reports whether events are persisted.
func (r *Recorder) Enabled() bool {
	return r != nil && r.repo != nil
}

// Do runs one of the Log helpers against the recorder's repository.
func (r *Recorder) Do(ctx context.Context, fn func(ctx context.Context, repo Repository) error) {
	if !r.Enabled() {
		return
	}
	if err := fn(ctx, r.repo); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record event")
	}
}
