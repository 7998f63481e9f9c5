package app

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/conduit-app/relay/internal/core"
	"github.com/conduit-app/relay/internal/domain"
)

// Signaling message kinds. Client-originated kinds are forwarded between call
// participants; user_joined/user_left/call_ended originate in the relay.
const (
	SignalOffer       = "offer"
	SignalAnswer      = "answer"
	SignalICE         = "ice_candidate"
	SignalMute        = "mute"
	SignalUnmute      = "unmute"
	SignalVideoToggle = "video_toggle"
	SignalEndCall     = "end_call"
	SignalUserJoined  = "user_joined"
	SignalUserLeft    = "user_left"
	SignalCallEnded   = "call_ended"
)

// SignalEnvelope is one inbound signaling frame. SDP and ICE payloads use the
// pion types, which marshal to the exact browser wire shape.
type SignalEnvelope struct {
	Type         string                     `json:"type"`
	Offer        *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer       *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate    *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	TargetUser   domain.UserID              `json:"target_user,omitempty"`
	VideoEnabled *bool                      `json:"video_enabled,omitempty"`
}

// SignalingRelay forwards call-signaling frames between the participants of a
// call. It is best-effort end to end: malformed envelopes, absent targets and
// failed sends are dropped without a response rather than failing the whole
// connection.
type SignalingRelay struct {
	Calls *CallTable
	Auth  core.CallDirectory
}

// HandleFrame classifies one inbound frame from (callID, from) and dispatches it.
func (sr *SignalingRelay) HandleFrame(ctx context.Context, callID domain.CallID, from domain.UserID, data []byte) {
	var env SignalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "app.signaling").Str("call", string(callID)).Msg("malformed envelope dropped")
		return
	}

	switch env.Type {
	case SignalOffer:
		if env.TargetUser == "" || env.Offer == nil {
			return
		}
		sr.sendTo(callID, env.TargetUser, map[string]any{
			"type":      SignalOffer,
			"offer":     env.Offer,
			"from_user": from,
		})
	case SignalAnswer:
		if env.TargetUser == "" || env.Answer == nil {
			return
		}
		sr.sendTo(callID, env.TargetUser, map[string]any{
			"type":      SignalAnswer,
			"answer":    env.Answer,
			"from_user": from,
		})
	case SignalICE:
		if env.Candidate == nil {
			return
		}
		msg := map[string]any{
			"type":      SignalICE,
			"candidate": env.Candidate,
			"from_user": from,
		}
		// Targeted trickle-ICE when a target is named, else the broadcast pattern.
		if env.TargetUser != "" {
			sr.sendTo(callID, env.TargetUser, msg)
		} else {
			sr.broadcast(callID, from, msg)
		}
	case SignalMute, SignalUnmute:
		sr.broadcast(callID, from, map[string]any{
			"type":    env.Type,
			"user_id": from,
		})
	case SignalVideoToggle:
		enabled := true
		if env.VideoEnabled != nil {
			enabled = *env.VideoEnabled
		}
		sr.broadcast(callID, from, map[string]any{
			"type":          SignalVideoToggle,
			"user_id":       from,
			"video_enabled": enabled,
		})
	case SignalEndCall:
		sr.EndCall(ctx, callID, from)
	default:
		log.Debug().Str("module", "app.signaling").Str("type", env.Type).Msg("unknown signal dropped")
	}
}

// Joined announces a successful join to the other members with the resulting
// participant list.
func (sr *SignalingRelay) Joined(callID domain.CallID, uid domain.UserID, participants []domain.UserID) {
	sr.broadcast(callID, uid, map[string]any{
		"type":         SignalUserJoined,
		"user_id":      uid,
		"participants": participants,
	})
}

// Disconnect detaches uid from callID and announces it to the remaining
// members, exactly once even when an explicit leave races the read-error
// path: a duplicate or stale-handle Leave reports removed=false and
// broadcasts nothing. conn is the caller's own connection handle.
func (sr *SignalingRelay) Disconnect(callID domain.CallID, uid domain.UserID, conn core.Conn) {
	remaining, removed := sr.Calls.Leave(callID, uid, conn)
	if !removed {
		return
	}
	sr.broadcast(callID, uid, map[string]any{
		"type":         SignalUserLeft,
		"user_id":      uid,
		"participants": remaining,
	})
}

// EndCall asks the call-record collaborator whether by may end the call
// (creator check), then broadcasts call_ended to every member and detaches
// all of them. Unauthorized requests are dropped silently.
func (sr *SignalingRelay) EndCall(ctx context.Context, callID domain.CallID, by domain.UserID) {
	authorized, err := sr.Auth.AuthorizeCallEnd(ctx, callID, by)
	if err != nil {
		log.Error().Err(err).Str("module", "app.signaling").Str("call", string(callID)).Msg("end-call authorization failed")
		return
	}
	if !authorized {
		log.Warn().Str("module", "app.signaling").Str("call", string(callID)).Str("user", string(by)).Msg("end-call denied")
		return
	}

	sr.broadcast(callID, "", map[string]any{
		"type":     SignalCallEnded,
		"ended_by": by,
	})
	for _, uid := range sr.Calls.Members(callID) {
		sr.Calls.Leave(callID, uid, nil)
	}
	log.Info().Str("module", "app.signaling").Str("call", string(callID)).Str("by", string(by)).Msg("call ended")
}

func (sr *SignalingRelay) sendTo(callID domain.CallID, uid domain.UserID, v any) bool {
	conn, ok := sr.Calls.Conn(callID, uid)
	if !ok {
		// Target not in this call: drop, no error back to the sender.
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.signaling").Msg("marshal signal")
		return false
	}
	return conn.TrySend(core.Frame(b)) == nil
}

func (sr *SignalingRelay) broadcast(callID domain.CallID, exclude domain.UserID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.signaling").Msg("marshal signal")
		return
	}
	for uid, conn := range sr.Calls.Conns(callID, exclude) {
		if err := conn.TrySend(core.Frame(b)); err != nil {
			log.Debug().Str("module", "app.signaling").Str("user", string(uid)).Err(err).Msg("signal send dropped")
		}
	}
}
