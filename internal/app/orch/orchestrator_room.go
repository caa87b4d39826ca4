package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/dkeye/Live/internal/protocol"
	"github.com/rs/zerolog/log"
)

const admitAttempts = 3

func (o *Orchestrator) Join(ctx context.Context, cid core.ConnID, roomID domain.SessionID) (core.AdmitResult, error) {
	ms, ok := o.Registry.GetSession(cid)
	if !ok {
		return core.AdmitResult{}, domain.ErrUnauthenticated
	}
	who := ms.Identity()

	sess, ok := o.Sessions.Get(roomID)
	if !ok {
		return core.AdmitResult{}, domain.Rejected("unknown session")
	}
	if sess.State == domain.SessionEnded {
		return core.AdmitResult{}, domain.ErrSessionEnded
	}
	if o.Access != nil {
		if err := o.Access.CanJoin(ctx, sess, who); err != nil {
			log.Info().Str("module", "orch").Str("participant", string(who.ID)).Str("room", string(roomID)).
				Err(err).Msg("join refused")
			return core.AdmitResult{}, err
		}
	}

	// A participant occupies at most one room.
	if current, holder, ok := o.Registry.RoomOfParticipant(who.ID); ok && current != roomID {
		o.leaveRoom(holder, who.ID, current)
		log.Info().Str("module", "orch").Str("participant", string(who.ID)).Str("from_room", string(current)).Msg("moved out of room")
	}

	for range admitAttempts {
		room := o.Rooms.GetOrCreate(roomID)
		res, err := room.Admit(ms)
		if errors.Is(err, core.ErrRoomClosed) {
			o.Rooms.Release(roomID)
			continue
		}
		if err != nil {
			o.Rooms.Release(roomID)
			return core.AdmitResult{}, err
		}
		o.Registry.UpdateRoom(cid, roomID)
		if res.Replaced != "" {
			o.Registry.RemoveRoom(res.Replaced, roomID)
			// The old connection may still be alive; it no longer holds the seat.
			if old, ok := o.Registry.GetSession(res.Replaced); ok {
				_ = old.Signal().TrySend(protocol.LeftFrame(roomID))
			}
		}
		o.applyBackpressure(roomID, res.PublishResult)
		log.Info().Str("module", "orch").Str("participant", string(who.ID)).Str("room", string(roomID)).
			Bool("already", res.Already).Msg("joined room")
		return res, nil
	}
	return core.AdmitResult{}, domain.Rejected("session is closing, retry")
}

// Leave is a no-op when cid is not seated in roomID; an empty roomID means the current room.
func (o *Orchestrator) Leave(cid core.ConnID, roomID domain.SessionID) {
	current, ms, ok := o.Registry.RoomOf(cid)
	if !ok || (roomID != "" && roomID != current) {
		return
	}
	o.leaveRoom(cid, ms.Identity().ID, current)
}

func (o *Orchestrator) cleanupMembership(cid core.ConnID) {
	roomID, ms, ok := o.Registry.RoomOf(cid)
	if !ok {
		return
	}
	o.leaveRoom(cid, ms.Identity().ID, roomID)
}

func (o *Orchestrator) leaveRoom(cid core.ConnID, id domain.ParticipantID, roomID domain.SessionID) {
	o.Registry.RemoveRoom(cid, roomID)
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	res := room.Remove(id, cid)
	if res.Ended || room.MemberCount() == 0 {
		o.Rooms.Release(roomID)
	}
	if res.Removed {
		log.Info().Str("module", "orch").Str("participant", string(id)).Str("room", string(roomID)).
			Bool("session_ended", res.Ended).Msg("left room")
	}
	o.applyBackpressure(roomID, res.PublishResult)
}

// EndSession is host-only. Members get session-ended first, then the user-left cascade.
func (o *Orchestrator) EndSession(cid core.ConnID, roomID domain.SessionID) error {
	ms, ok := o.Registry.GetSession(cid)
	if !ok {
		return domain.ErrUnauthenticated
	}
	by := ms.Identity().ID

	for range admitAttempts {
		room := o.Rooms.GetOrCreate(roomID)
		removed, res, err := room.End(by)
		if errors.Is(err, core.ErrRoomClosed) {
			o.Rooms.Release(roomID)
			continue
		}
		if err != nil {
			o.Rooms.Release(roomID)
			log.Info().Str("module", "orch").Str("participant", string(by)).Str("room", string(roomID)).
				Err(err).Msg("end session refused")
			return err
		}
		for _, m := range removed {
			o.Registry.RemoveRoom(m.ConnID(), roomID)
		}
		o.Rooms.Release(roomID)
		o.applyBackpressure(roomID, res)
		log.Info().Str("module", "orch").Str("room", string(roomID)).Int("removed", len(removed)).Msg("session ended")
		return nil
	}
	return domain.ErrSessionEnded
}

// EvictRoom ends a session on behalf of its host, e.g. from an admin surface.
func (o *Orchestrator) EvictRoom(roomID domain.SessionID) error {
	sess, ok := o.Sessions.Get(roomID)
	if !ok {
		return domain.Rejected("unknown session")
	}
	room := o.Rooms.GetOrCreate(roomID)
	removed, res, err := room.End(sess.HostID)
	if err != nil && !errors.Is(err, core.ErrRoomClosed) {
		o.Rooms.Release(roomID)
		return err
	}
	for _, m := range removed {
		o.Registry.RemoveRoom(m.ConnID(), roomID)
	}
	o.Rooms.Release(roomID)
	o.applyBackpressure(roomID, res)
	return nil
}
