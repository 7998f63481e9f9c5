package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/conduit-app/relay/internal/adapters/callws"
	"github.com/conduit-app/relay/internal/adapters/chatws"
	"github.com/conduit-app/relay/internal/app"
	"github.com/conduit-app/relay/internal/auth"
	"github.com/conduit-app/relay/internal/config"
	"github.com/conduit-app/relay/internal/core"
	"github.com/conduit-app/relay/internal/domain"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Verifier *auth.Verifier
	Registry *app.Registry
	Calls    *app.CallTable
	Messages *app.MessageRelay
	Signals  *app.SignalingRelay
	Store    core.MessageStore
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Conduit relay", "status": "healthy"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"connections": deps.Registry.Count(),
		})
	})

	chatCtl := &chatws.Controller{
		Registry:   deps.Registry,
		Relay:      deps.Messages,
		Store:      deps.Store,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}
	callCtl := &callws.Controller{
		Calls:      deps.Calls,
		Signals:    deps.Signals,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}

	api := r.Group("/api/v1")
	api.Use(deps.Verifier.Middleware())

	api.GET("/messages/ws", func(c *gin.Context) {
		chatCtl.Handle(ctx, c)
	})
	api.GET("/messages/ws/:user_id", func(c *gin.Context) {
		chatCtl.Handle(ctx, c)
	})
	api.POST("/messages", sendMessage(deps))

	api.GET("/video/ws/:call_id/:user_id", func(c *gin.Context) {
		callCtl.Handle(ctx, c)
	})
	api.GET("/video/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"iceServers": []webrtc.ICEServer{{URLs: []string{cfg.StunServer}}},
		})
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

// sendMessage is the HTTP fallback for non-WebSocket clients: persist, then
// fan out exactly like the WS path.
func sendMessage(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := auth.UserID(c)

		var p domain.MessageCreate
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		if err := p.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message must have either event_id or recipient_id"})
			return
		}
		if p.MessageType == "" {
			p.MessageType = "text"
		}

		stored, err := deps.Store.SaveMessage(c.Request.Context(), chatws.BuildStored(uid, &p))
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("store message")
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to send message"})
			return
		}
		deps.Messages.Relay(c.Request.Context(), stored)
		c.JSON(http.StatusOK, stored)
	}
}
