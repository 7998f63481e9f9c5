package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/conduit-app/relay/internal/adapters/http"
	"github.com/conduit-app/relay/internal/app"
	"github.com/conduit-app/relay/internal/auth"
	"github.com/conduit-app/relay/internal/config"
	"github.com/conduit-app/relay/internal/notify"
	"github.com/conduit-app/relay/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	// Collaborators: the in-memory store stands in for the managed data
	// platform when the relay runs standalone.
	mem := store.NewMemory()
	notifier := notify.NewFCMNotifier(cfg.FCMServerKey, cfg.FCMEndpoint, mem)

	registry := app.NewRegistry()
	calls := app.NewCallTable()
	messages := &app.MessageRelay{
		Registry:     registry,
		Participants: mem,
		Notifier:     notifier,
	}
	signals := &app.SignalingRelay{
		Calls: calls,
		Auth:  mem,
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Verifier: auth.NewVerifier(cfg.Secret),
		Registry: registry,
		Calls:    calls,
		Messages: messages,
		Signals:  signals,
		Store:    mem,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Conduit relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
