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

	router "github.com/dkeye/Live/internal/adapters/http"
	"github.com/dkeye/Live/internal/app"
	"github.com/dkeye/Live/internal/app/orch"
	"github.com/dkeye/Live/internal/auth"
	"github.com/dkeye/Live/internal/config"
	"github.com/dkeye/Live/internal/moderation"
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
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Err(err).Str("log_level", cfg.LogLevel).Msg("bad log level, keeping info")
	}

	resolver, err := auth.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		log.Fatal().Err(err).Msg("identity resolver")
	}
	replacement, err := cfg.Chat.ReplacementRune()
	if err != nil {
		log.Fatal().Err(err).Msg("chat config")
	}
	moderator, err := moderation.NewModerator(moderation.Options{
		BannedWords:   cfg.Chat.BannedWords,
		Replacement:   replacement,
		MaxLength:     cfg.Chat.MaxLength,
		RejectOnMatch: cfg.Chat.RejectOnMatch,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("moderation")
	}

	sessions := app.NewSessionStore()
	reg := app.NewRegistry()
	o := &orch.Orchestrator{
		Registry: reg,
		Rooms:    app.NewRoomManager(sessions),
		Sessions: sessions,
		Policy:   app.SimplePolicy{},
		Access:   app.SchedulePolicy{JoinEarly: cfg.Sessions.JoinEarly},
		Filter:   moderator,
	}

	r := router.SetupRouter(ctx, cfg, o, resolver)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Live server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	reg.CloseAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
