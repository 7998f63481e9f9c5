// Package callws owns the per-call signaling channel. Each connection is
// addressed by (call id, user id); frames are relayed between the call's
// participants and never persisted.
package callws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/conduit-app/relay/internal/adapters/wsconn"
	"github.com/conduit-app/relay/internal/app"
	"github.com/conduit-app/relay/internal/auth"
	"github.com/conduit-app/relay/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Calls      *app.CallTable
	Signals    *app.SignalingRelay
	ReadLimit  int64
	PingPeriod time.Duration
}

func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	uid := auth.UserID(c)
	callID := domain.CallID(c.Param("call_id"))
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing call id"})
		return
	}
	if pathID := c.Param("user_id"); pathID != "" && domain.UserID(pathID) != uid {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user id mismatch"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "callws").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := wsconn.New(ws, 64)
	conn.PingPeriod = ctl.PingPeriod
	participants := ctl.Calls.Join(callID, uid, conn)
	ctl.Signals.Joined(callID, uid, participants)

	ctx, cancel := context.WithCancel(ctx)
	conn.StartWriteLoop(ctx)
	go ctl.readPump(ctx, cancel, callID, uid, conn)
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, callID domain.CallID, uid domain.UserID, conn *wsconn.Conn) {
	defer func() {
		log.Info().Str("module", "callws").Str("call", string(callID)).Str("user", string(uid)).Msg("session closing")
		// Idempotent: a no-op when the user already left, the call ended, or
		// this connection was replaced by a rejoin.
		ctl.Signals.Disconnect(callID, uid, conn)
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
				log.Debug().Err(err).Str("module", "callws").Str("user", string(uid)).Msg("read error")
				return
			}
			ctl.Signals.HandleFrame(ctx, callID, uid, data)
		}
	}
}
