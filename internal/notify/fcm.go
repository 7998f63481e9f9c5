// Package notify implements the push-notification fallback for recipients
// without a live connection, over the FCM legacy HTTP API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/conduit-app/relay/internal/domain"
)

// TokenSource resolves a user's registered device tokens. Token storage lives
// with the external data platform; the relay only reads.
type TokenSource interface {
	DeviceTokens(ctx context.Context, uid domain.UserID) ([]string, error)
}

type FCMNotifier struct {
	serverKey string
	endpoint  string
	tokens    TokenSource
	client    *http.Client
}

func NewFCMNotifier(serverKey, endpoint string, tokens TokenSource) *FCMNotifier {
	return &FCMNotifier{
		serverKey: serverKey,
		endpoint:  endpoint,
		tokens:    tokens,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type fcmPayload struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// NotifyOffline sends a message summary to each of uid's devices.
// Best-effort: failures are logged, never reported back to the relay.
func (n *FCMNotifier) NotifyOffline(ctx context.Context, uid domain.UserID, summary domain.MessageSummary) {
	if n.serverKey == "" {
		return
	}
	tokens, err := n.tokens.DeviceTokens(ctx, uid)
	if err != nil {
		log.Error().Err(err).Str("module", "notify.fcm").Str("user", string(uid)).Msg("device token lookup failed")
		return
	}
	if len(tokens) == 0 {
		log.Debug().Str("module", "notify.fcm").Str("user", string(uid)).Msg("no device tokens")
		return
	}

	title := "New message"
	if summary.SenderName != "" {
		title = fmt.Sprintf("New message from %s", summary.SenderName)
	}
	body := summary.Content
	if len(body) > 100 {
		body = body[:100] + "..."
	}
	data := map[string]string{
		"type":      "message",
		"sender_id": string(summary.SenderID),
		"event_id":  string(summary.EventID),
	}

	sent := 0
	for _, token := range tokens {
		if n.push(ctx, fcmPayload{To: token, Notification: fcmNotification{Title: title, Body: body}, Data: data}) {
			sent++
		}
	}
	log.Info().Str("module", "notify.fcm").Str("user", string(uid)).Int("sent", sent).Int("devices", len(tokens)).Msg("offline notification")
}

func (n *FCMNotifier) push(ctx context.Context, payload fcmPayload) bool {
	b, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "notify.fcm").Msg("marshal payload")
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(b))
	if err != nil {
		log.Error().Err(err).Str("module", "notify.fcm").Msg("build request")
		return false
	}
	req.Header.Set("Authorization", "key="+n.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("module", "notify.fcm").Msg("push failed")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("module", "notify.fcm").Msg("push rejected")
		return false
	}
	return true
}
