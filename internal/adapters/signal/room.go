package signal

import (
	"context"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleJoin admits the connection; the room itself sends session-joined and user-joined.
func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	cid core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.RoomRequest
	if err := ctl.decode(data, &p); err != nil {
		ctl.sendError(conn, protocol.TypeJoinSession, err)
		return
	}
	if _, err := ctl.Orch.Join(ctx, cid, p.RoomID); err != nil {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Str("room", string(p.RoomID)).Err(err).Msg("join failed")
		ctl.sendError(conn, protocol.TypeJoinSession, err)
	}
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	cid core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.LeaveRequest
	if err := ctl.decode(data, &p); err != nil {
		ctl.sendError(conn, protocol.TypeLeaveSession, err)
		return
	}
	roomID := p.RoomID
	if roomID == "" {
		roomID, _, _ = ctl.Orch.Registry.RoomOf(cid)
	}
	ctl.Orch.Leave(cid, p.RoomID)
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("room", string(roomID)).Msg("leave")
	_ = conn.TrySend(protocol.LeftFrame(roomID))
}

func (ctl *SignalWSController) handleEnd(
	cid core.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.RoomRequest
	if err := ctl.decode(data, &p); err != nil {
		ctl.sendError(conn, protocol.TypeEndSession, err)
		return
	}
	if err := ctl.Orch.EndSession(cid, p.RoomID); err != nil {
		ctl.sendError(conn, protocol.TypeEndSession, err)
	}
}
