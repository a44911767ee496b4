package fanout

import (
	"time"

	"logichat/internal/model"
)

// Event types fanned out to session subscribers.
const (
	EventMessageCreated = "message.created"
	EventSessionUpdated = "session.updated"
)

// Event is the JSON envelope carried over the broker and delivered to
// subscribers. Exactly one of Message/Session is set depending on Type.
type Event struct {
	Type       string             `json:"type"`
	SessionID  string             `json:"session_id"`
	OccurredAt time.Time          `json:"occurred_at"`
	Message    *model.Message     `json:"message,omitempty"`
	Session    *model.ChatSession `json:"session,omitempty"`
}
