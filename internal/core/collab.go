package core

import (
	"context"

	"github.com/conduit-app/relay/internal/domain"
)

// Collaborator interfaces for the plumbing that lives outside this process.
// The relay consumes them; it never owns their data.

// ParticipantSource resolves the active participant set of an event.
type ParticipantSource interface {
	EventParticipants(ctx context.Context, eventID domain.EventID) ([]domain.UserID, error)
}

// MessageStore persists chat messages before they are relayed.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *domain.StoredMessage) (*domain.StoredMessage, error)
}

// CallDirectory owns call records. The relay only asks it whether a user may
// end a call (creator check).
type CallDirectory interface {
	AuthorizeCallEnd(ctx context.Context, callID domain.CallID, userID domain.UserID) (bool, error)
}

// OfflineNotifier is the push-notification fallback for recipients with no
// live connection. Best-effort; the relay never waits on the outcome.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, userID domain.UserID, summary domain.MessageSummary)
}
