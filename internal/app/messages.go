package app

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/conduit-app/relay/internal/core"
	"github.com/conduit-app/relay/internal/domain"
)

// newMessagePush is the frame pushed to live recipients of a stored message.
type newMessagePush struct {
	Type    string                `json:"type"`
	Message *domain.StoredMessage `json:"message"`
}

// MessageRelay delivers an already-persisted chat message to its live
// audience. Delivery is best-effort per recipient: the record is durable, so
// a failed send only defers to the offline-notification collaborator.
type MessageRelay struct {
	Registry     *Registry
	Participants core.ParticipantSource
	Notifier     core.OfflineNotifier
}

// Relay fans out msg. Direct messages go to the single recipient; event
// messages go to every active participant except the sender. Partial failures
// are expected and never surfaced as errors.
func (mr *MessageRelay) Relay(ctx context.Context, msg *domain.StoredMessage) {
	frame, err := json.Marshal(newMessagePush{Type: "new_message", Message: msg})
	if err != nil {
		log.Error().Err(err).Str("module", "app.messages").Msg("marshal push")
		return
	}

	if msg.RecipientID != "" {
		mr.deliver(ctx, msg, msg.RecipientID, frame)
		return
	}
	if msg.EventID == "" {
		// Validated upstream; a message with no target never reaches the relay.
		log.Warn().Str("module", "app.messages").Str("id", msg.ID).Msg("message with no target dropped")
		return
	}

	participants, err := mr.Participants.EventParticipants(ctx, msg.EventID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.messages").Str("event", string(msg.EventID)).Msg("participant lookup failed")
		return
	}
	sent := 0
	for _, uid := range participants {
		if uid == msg.SenderID {
			continue
		}
		if mr.deliver(ctx, msg, uid, frame) {
			sent++
		}
	}
	log.Debug().Str("module", "app.messages").Str("event", string(msg.EventID)).Int("sent", sent).Msg("event fan-out")
}

func (mr *MessageRelay) deliver(ctx context.Context, msg *domain.StoredMessage, uid domain.UserID, frame core.Frame) bool {
	if mr.Registry.Send(uid, frame) {
		return true
	}
	if mr.Notifier != nil {
		// The notifier does network I/O; it must not hold up delivery to the
		// remaining recipients, and it outlives the sender's session context.
		go mr.Notifier.NotifyOffline(context.WithoutCancel(ctx), uid, domain.MessageSummary{
			SenderID: msg.SenderID,
			Content:  msg.Content,
			EventID:  msg.EventID,
		})
	}
	return false
}
