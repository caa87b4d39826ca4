package orch

import (
	"time"

	"github.com/dkeye/Live/internal/app"
	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the server side of the coordination core. Each connection's
// read pump calls into it sequentially; rooms serialize whatever crosses connections.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Sessions *app.SessionStore
	Policy   app.Policy
	Access   app.JoinPolicy
	Filter   app.MessageFilter
	Now      func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// OnDisconnect folds a dropped transport into the ordinary leave path.
func (o *Orchestrator) OnDisconnect(cid core.ConnID) {
	o.cleanupMembership(cid)
	o.Registry.Unbind(cid)
}

// applyBackpressure must run outside any room lock: kicking re-enters the room through the leave path.
func (o *Orchestrator) applyBackpressure(roomID domain.SessionID, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(roomID, slow) {
		case app.KickMember:
			if o.Registry.Cancel(slow.ConnID()) {
				log.Warn().Str("module", "orch").Str("conn", string(slow.ConnID())).
					Str("room", string(roomID)).Msg("kicked slow member")
			}
		case app.NoAction:
		}
	}
}
