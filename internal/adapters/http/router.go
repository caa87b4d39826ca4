package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Live/internal/adapters/signal"
	"github.com/dkeye/Live/internal/app/orch"
	"github.com/dkeye/Live/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const cookieSessionName = "LiveSessions"

// SetupRouter wires HTTP routes (REST + WS) with the orchestrator.
// - REST is under /api/*
// - the signaling socket lives at /api/ws/signal and is authenticated before the upgrade
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, resolver IdentityResolver) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(cookieSessionName, store))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": o.Registry.Count(),
			"rooms":       len(o.Rooms.List()),
		})
	})

	api := r.Group("/api")
	registerAuthRoutes(api.Group("/auth"), resolver)

	authed := api.Group("", AuthMiddleware(resolver))
	registerSessionRoutes(authed.Group("/sessions"), o)

	ctrl := signal.NewSignalWSController(o, cfg)
	authed.GET("/ws/signal", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
