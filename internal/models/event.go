// Package models defines the records persisted by botkit.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes audit events.
type EventType string

const (
	// Command events
	EventTypeCommandCalled EventType = "command.called"
	EventTypeCommandFailed EventType = "command.failed"
	EventTypeCommandHeld   EventType = "command.held"

	// Access events
	EventTypeUserDenied  EventType = "user.denied"
	EventTypeUserFlooded EventType = "user.flooded"

	// Callback events
	EventTypeCallbackRouted EventType = "callback.routed"

	// Outbox events
	EventTypeQueueDataLost EventType = "queue.data_lost"
	EventTypeQueueStopped  EventType = "queue.stopped"
)

// EntityType identifies what an event relates to.
type EntityType string

const (
	EntityTypeUser    EntityType = "user"
	EntityTypeChat    EntityType = "chat"
	EntityTypeCommand EntityType = "command"
	EntityTypeQueue   EntityType = "queue"
)

// Event is an append-only audit log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		validation.AddMessage("entity_type", "entity_type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		validation.AddMessage("entity_id", "entity_id is required")
	}
	return validation.Err()
}

// CommandCalledPayload is the payload for command.called events.
type CommandCalledPayload struct {
	Trigger string `json:"trigger"`
	Input   string `json:"input"`
	ChatID  int64  `json:"chat_id,omitempty"`
}

// CommandFailedPayload is the payload for command.failed events.
type CommandFailedPayload struct {
	Input string `json:"input"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// UserDeniedPayload is the payload for user.denied and user.flooded events.
type UserDeniedPayload struct {
	Username string `json:"username,omitempty"`
	Reason   string `json:"reason"`
}

// CallbackRoutedPayload is the payload for callback.routed events.
type CallbackRoutedPayload struct {
	Trigger string `json:"trigger"`
	Data    string `json:"data"`
}

// DataLostPayload is the payload for queue.data_lost events.
type DataLostPayload struct {
	Dispatched  int    `json:"dispatched"`
	RateLimited bool   `json:"rate_limited"`
	Error       string `json:"error"`
}
