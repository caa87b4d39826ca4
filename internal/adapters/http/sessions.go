package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Live/internal/app"
	"github.com/dkeye/Live/internal/app/orch"
	"github.com/dkeye/Live/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type scheduleRequest struct {
	ID        domain.SessionID       `json:"id" binding:"omitempty,max=128"`
	Title     string                 `json:"title" binding:"required,max=200"`
	StartsAt  time.Time              `json:"startsAt" binding:"required"`
	Attendees []domain.ParticipantID `json:"attendees" binding:"omitempty,dive,required,max=64"`
}

type enrollRequest struct {
	Attendees []domain.ParticipantID `json:"attendees" binding:"required,min=1,dive,required,max=64"`
}

type sessionView struct {
	domain.Session
	MemberCount int `json:"memberCount"`
}

func registerSessionRoutes(g *gin.RouterGroup, o *orch.Orchestrator) {
	view := func(sess domain.Session) sessionView {
		v := sessionView{Session: sess}
		if room, ok := o.Rooms.Get(sess.ID); ok {
			v.MemberCount = room.MemberCount()
		}
		return v
	}

	// POST /api/sessions: schedule a session hosted by the caller
	g.POST("", func(c *gin.Context) {
		who := identityOf(c)
		if !who.IsHost() {
			abortWithError(c, domain.ErrForbidden)
			return
		}
		var req scheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeRejected, "reason": err.Error()})
			return
		}
		sess, err := o.Sessions.Schedule(domain.Session{
			ID:       req.ID,
			Title:    req.Title,
			HostID:   who.ID,
			StartsAt: req.StartsAt,
			Enrolled: req.Attendees,
		})
		if errors.Is(err, app.ErrSessionExists) {
			c.JSON(http.StatusConflict, gin.H{"code": domain.CodeRejected, "reason": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeRejected, "reason": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, view(sess))
	})

	// GET /api/sessions/:id: session state and member count
	g.GET("/:id", func(c *gin.Context) {
		sess, ok := o.Sessions.Get(domain.SessionID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"code": domain.CodeRejected, "reason": "unknown session"})
			return
		}
		c.JSON(http.StatusOK, view(sess))
	})

	// GET /api/sessions/:id/members: members in seat order
	g.GET("/:id/members", func(c *gin.Context) {
		id := domain.SessionID(c.Param("id"))
		if _, ok := o.Sessions.Get(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"code": domain.CodeRejected, "reason": "unknown session"})
			return
		}
		members := []domain.Participant{}
		if room, ok := o.Rooms.Get(id); ok {
			members = room.Members()
		}
		c.JSON(http.StatusOK, gin.H{"members": members})
	})

	// POST /api/sessions/:id/attendees: host enrolls more attendees
	g.POST("/:id/attendees", func(c *gin.Context) {
		var req enrollRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": domain.CodeRejected, "reason": err.Error()})
			return
		}
		sess, err := o.Sessions.Enroll(domain.SessionID(c.Param("id")), identityOf(c).ID, req.Attendees)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, view(sess))
	})

	// DELETE /api/sessions/:id: host ends the session from outside the socket
	g.DELETE("/:id", func(c *gin.Context) {
		id := domain.SessionID(c.Param("id"))
		sess, ok := o.Sessions.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"code": domain.CodeRejected, "reason": "unknown session"})
			return
		}
		if sess.HostID != identityOf(c).ID {
			abortWithError(c, domain.ErrForbidden)
			return
		}
		if err := o.EvictRoom(id); err != nil {
			abortWithError(c, err)
			return
		}
		log.Info().Str("module", "adapters.http").Str("session", string(id)).Msg("session ended over REST")
		c.Status(http.StatusNoContent)
	})
}
