package domain

import "errors"

var ErrNoTarget = errors.New("message has neither event_id nor recipient_id")

// MessageCreate is a chat message as submitted by a client, before persistence.
// Exactly one of EventID/RecipientID must be set.
type MessageCreate struct {
	Content     string         `json:"content"`
	MessageType string         `json:"message_type"`
	EventID     EventID        `json:"event_id,omitempty"`
	RecipientID UserID         `json:"recipient_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validate rejects messages that name no audience. The relay assumes a
// validated envelope; this runs upstream in the session handler.
func (m *MessageCreate) Validate() error {
	if m.EventID == "" && m.RecipientID == "" {
		return ErrNoTarget
	}
	return nil
}

// StoredMessage is the durable record returned by the message store.
// The relay only needs its target and payload to fan out.
type StoredMessage struct {
	ID          string         `json:"id"`
	SenderID    UserID         `json:"sender_id"`
	Content     string         `json:"content"`
	MessageType string         `json:"message_type"`
	EventID     EventID        `json:"event_id,omitempty"`
	RecipientID UserID         `json:"recipient_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   string         `json:"created_at"`
	IsRead      bool           `json:"is_read"`
}

// MessageSummary is what the offline-notification collaborator receives when a
// live delivery could not be made.
type MessageSummary struct {
	SenderID   UserID
	SenderName string
	Content    string
	EventID    EventID
}
