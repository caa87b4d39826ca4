package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dkeye/Live/internal/adapters/signal"
	"github.com/dkeye/Live/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const tokenSessionKey = "token"

type IdentityResolver interface {
	Resolve(token string) (domain.Identity, error)
}

// credentialFrom looks at the Authorization header, then the token query parameter, then the cookie session.
func credentialFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	if tok, ok := sessions.Default(c).Get(tokenSessionKey).(string); ok {
		return tok
	}
	return ""
}

// AuthMiddleware resolves the caller's identity once; unauthenticated requests never reach the handler.
func AuthMiddleware(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, err := resolver.Resolve(credentialFrom(c))
		if err != nil {
			log.Info().Str("module", "adapters.http").Str("path", c.FullPath()).Err(err).Msg("unauthenticated")
			abortWithError(c, err)
			return
		}
		c.Set(signal.IdentityKey, who)
		c.Next()
	}
}

func identityOf(c *gin.Context) domain.Identity {
	return c.MustGet(signal.IdentityKey).(domain.Identity)
}

func registerAuthRoutes(g *gin.RouterGroup, resolver IdentityResolver) {
	// POST /api/auth/session: keep a bearer token in the cookie session for browser clients
	g.POST("/session", func(c *gin.Context) {
		var req struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeRejected, "reason": err.Error()})
			return
		}
		who, err := resolver.Resolve(req.Token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		sess := sessions.Default(c)
		sess.Set(tokenSessionKey, req.Token)
		if err := sess.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("save cookie session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session store"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"participantId": who.ID, "role": who.Role})
	})

	// DELETE /api/auth/session: forget the stored token
	g.DELETE("/session", func(c *gin.Context) {
		sess := sessions.Default(c)
		sess.Delete(tokenSessionKey)
		_ = sess.Save()
		c.Status(http.StatusNoContent)
	})
}

func statusOf(err error) int {
	var de *domain.Error
	if !errors.As(err, &de) {
		return http.StatusInternalServerError
	}
	switch de.Code {
	case domain.CodeUnauthenticated:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeUnknownTarget:
		return http.StatusNotFound
	case domain.CodeSessionEnded:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func abortWithError(c *gin.Context, err error) {
	body := gin.H{"code": domain.CodeRejected, "reason": err.Error()}
	var de *domain.Error
	if errors.As(err, &de) {
		body = gin.H{"code": de.Code, "reason": de.Reason}
	}
	c.AbortWithStatusJSON(statusOf(err), body)
}
