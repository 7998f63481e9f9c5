// Package chatws owns the per-user chat channel: one session handler per
// connection, dispatching send_message commands to the message relay.
package chatws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/conduit-app/relay/internal/adapters/wsconn"
	"github.com/conduit-app/relay/internal/app"
	"github.com/conduit-app/relay/internal/auth"
	"github.com/conduit-app/relay/internal/core"
	"github.com/conduit-app/relay/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Registry   *app.Registry
	Relay      *app.MessageRelay
	Store      core.MessageStore
	ReadLimit  int64
	PingPeriod time.Duration
}

// Handle upgrades the connection and runs its session: register, read loop,
// unregister. The user id comes from the verified token; a client-supplied
// path id is only accepted when it matches.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	uid := auth.UserID(c)
	if pathID := c.Param("user_id"); pathID != "" && domain.UserID(pathID) != uid {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user id mismatch"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "chatws").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := wsconn.New(ws, 256)
	conn.PingPeriod = ctl.PingPeriod
	ctl.Registry.Register(uid, conn)

	ctx, cancel := context.WithCancel(ctx)
	conn.StartWriteLoop(ctx)
	go ctl.readPump(ctx, cancel, uid, conn)
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, uid domain.UserID, conn *wsconn.Conn) {
	defer func() {
		log.Info().Str("module", "chatws").Str("user", string(uid)).Msg("session closing")
		ctl.Registry.Unregister(uid, conn)
		conn.Close()
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			data, err := conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "chatws").Str("user", string(uid)).Msg("read error")
				return
			}
			ctl.handleFrame(ctx, uid, conn, data)
		}
	}
}

func (ctl *Controller) handleFrame(ctx context.Context, uid domain.UserID, conn *wsconn.Conn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		// One bad frame must not kill the session: report and keep reading.
		ctl.sendJSON(conn, gin.H{"type": "error", "error": "invalid_frame"})
		return
	}

	switch env.Type {
	case "send_message":
		ctl.handleSendMessage(ctx, uid, conn, data)
	case "ping":
		ctl.sendJSON(conn, gin.H{"type": "pong"})
	default:
		log.Warn().Str("module", "chatws").Str("type", env.Type).Msg("unknown command")
	}
}

func (ctl *Controller) handleSendMessage(ctx context.Context, uid domain.UserID, conn *wsconn.Conn, data []byte) {
	var p domain.MessageCreate
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(conn, gin.H{"type": "error", "error": "invalid_frame"})
		return
	}
	// Some clients serialize an absent target as the string "undefined".
	if p.EventID == "undefined" {
		p.EventID = ""
	}
	if p.RecipientID == "undefined" {
		p.RecipientID = ""
	}
	if err := p.Validate(); err != nil {
		ctl.sendJSON(conn, gin.H{"type": "error", "error": "invalid_message"})
		return
	}
	if p.MessageType == "" {
		p.MessageType = "text"
	}

	stored, err := ctl.Store.SaveMessage(ctx, BuildStored(uid, &p))
	if err != nil {
		log.Error().Err(err).Str("module", "chatws").Str("user", string(uid)).Msg("store message")
		ctl.sendJSON(conn, gin.H{"type": "error", "error": "store_failed"})
		return
	}
	ctl.Relay.Relay(ctx, stored)
}

// BuildStored stamps a client message with identity, id and timestamp.
// Shared with the HTTP send fallback.
func BuildStored(sender domain.UserID, p *domain.MessageCreate) *domain.StoredMessage {
	return &domain.StoredMessage{
		ID:          uuid.NewString(),
		SenderID:    sender,
		Content:     p.Content,
		MessageType: p.MessageType,
		EventID:     p.EventID,
		RecipientID: p.RecipientID,
		Metadata:    p.Metadata,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

func (ctl *Controller) sendJSON(conn *wsconn.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "chatws").Msg("sendJSON marshal")
		return
	}
	_ = conn.TrySend(core.Frame(b))
}
