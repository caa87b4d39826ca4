package signal

import (
	"context"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/dkeye/Live/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleRelay forwards an offer, answer or candidate to one member of the sender's room.
func (ctl *SignalWSController) handleRelay(
	cid core.ConnID,
	conn *WsSignalConn,
	typ string,
	data []byte,
) {
	var p protocol.SignalRequest
	if err := ctl.decode(data, &p); err != nil {
		ctl.sendError(conn, typ, err)
		return
	}
	if err := ctl.Orch.Relay(cid, typ, p.Target, p.Payload); err != nil {
		ctl.sendError(conn, typ, err)
	}
}

func (ctl *SignalWSController) handleChat(
	ctx context.Context,
	cid core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.ChatRequest
	if err := ctl.decode(data, &p); err != nil {
		ctl.sendError(conn, protocol.TypeChat, err)
		return
	}
	if ctl.Limiter != nil {
		if sess, ok := ctl.Orch.Registry.GetSession(cid); ok && !ctl.Limiter.Allow(sess.Identity().ID) {
			log.Info().Str("module", "signal").Str("participant", string(sess.Identity().ID)).Msg("chat rate limited")
			ctl.sendError(conn, protocol.TypeChat, domain.Rejected("rate limited"))
			return
		}
	}
	if err := ctl.Orch.Chat(ctx, cid, p.RoomID, p.Text); err != nil {
		ctl.sendError(conn, protocol.TypeChat, err)
	}
}

func (ctl *SignalWSController) handleWhoAmI(
	cid core.ConnID,
	conn *WsSignalConn,
) {
	who, roomID, ok := ctl.Orch.WhoAmI(cid)
	if !ok {
		ctl.sendError(conn, protocol.TypeWhoAmI, domain.ErrUnauthenticated)
		return
	}
	ctl.sendJSON(conn, protocol.WhoAmI{
		Type:          protocol.TypeWhoAmI,
		ParticipantID: who.ID,
		Role:          who.Role,
		RoomID:        roomID,
	})
}
