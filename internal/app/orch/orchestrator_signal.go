package orch

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/dkeye/Live/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Relay forwards an opaque negotiation payload to one member of the sender's room.
func (o *Orchestrator) Relay(cid core.ConnID, typ string, target domain.ParticipantID, payload json.RawMessage) error {
	roomID, ms, ok := o.Registry.RoomOf(cid)
	if !ok {
		return &domain.Error{Code: domain.CodeUnknownTarget, Reason: "not in a session"}
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return &domain.Error{Code: domain.CodeUnknownTarget, Reason: "session closed"}
	}
	from := ms.Identity().ID
	res, err := room.Relay(cid, from, target, protocol.SignalFrame(typ, from, payload))
	if err != nil {
		log.Debug().Str("module", "orch").Str("type", typ).Str("from", string(from)).Str("to", string(target)).
			Err(err).Msg("relay refused")
		return err
	}
	o.applyBackpressure(roomID, res)
	return nil
}

// Chat filters text through moderation and echoes it to the whole room, sender included.
func (o *Orchestrator) Chat(ctx context.Context, cid core.ConnID, roomID domain.SessionID, text string) error {
	current, ms, ok := o.Registry.RoomOf(cid)
	if !ok || current != roomID {
		return domain.Rejected("not a member of this session")
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return domain.Rejected("not a member of this session")
	}
	if o.Filter != nil {
		filtered, err := o.Filter.Filter(ctx, text)
		if err != nil {
			log.Info().Str("module", "orch").Str("participant", string(ms.Identity().ID)).Err(err).Msg("chat rejected")
			return domain.Rejected(err.Error())
		}
		text = filtered
	}
	msg := domain.ChatMessage{
		SenderID:  ms.Identity().ID,
		SessionID: roomID,
		Text:      text,
		Timestamp: o.now(),
	}
	res, err := room.Broadcast(cid, msg.SenderID, protocol.ChatFrame(msg))
	if err != nil {
		return err
	}
	o.applyBackpressure(roomID, res)
	return nil
}

// WhoAmI reports the identity attached at handshake and the current room, if any.
func (o *Orchestrator) WhoAmI(cid core.ConnID) (domain.Identity, domain.SessionID, bool) {
	ms, ok := o.Registry.GetSession(cid)
	if !ok {
		return domain.Identity{}, "", false
	}
	roomID, _, _ := o.Registry.RoomOf(cid)
	return ms.Identity(), roomID, true
}
