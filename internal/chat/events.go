package chat

import (
	"context"
	"time"
)

type EventType string

const (
	EventMessageCreated      EventType = "message.created"
	EventMessageUpdated      EventType = "message.updated"
	EventMessageDeleted      EventType = "message.deleted"
	EventConversationUpdated EventType = "conversation.updated"
	EventConversationDeleted EventType = "conversation.deleted"
)

// Event is pushed to subscribers of a conversation.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	UserID         uint64    `json:"user_id"`
	Message        *Message  `json:"message,omitempty"`
	At             time.Time `json:"at"`
}

// EventSink receives every change the service commits.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

type nopSink struct{}

func (nopSink) Publish(context.Context, Event) {}
