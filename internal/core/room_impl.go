package core

import (
	"slices"
	"sync"

	"github.com/dkeye/Live/internal/domain"
	"github.com/dkeye/Live/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type seat struct {
	ms MemberSession
	p  domain.Participant
}

// roomImpl is a threadsafe in-memory room keyed by session.
// Membership changes, their presence events and lifecycle transitions all run
// under the write lock, so every member observes the room's events in one order.
// It never closes adapter-owned resources.
type roomImpl struct {
	id       domain.SessionID
	sessions SessionStore

	mu       sync.RWMutex
	order    []domain.ParticipantID
	members  map[domain.ParticipantID]*seat
	lastSeat uint64
	closed   bool
}

func NewRoomService(id domain.SessionID, sessions SessionStore) RoomService {
	return &roomImpl{
		id:       id,
		sessions: sessions,
		members:  make(map[domain.ParticipantID]*seat),
	}
}

func (r *roomImpl) ID() domain.SessionID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *roomImpl) Members() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participantsLocked("")
}

func (r *roomImpl) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *roomImpl) Admit(ms MemberSession) (AdmitResult, error) {
	id := ms.Identity().ID

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return AdmitResult{}, ErrRoomClosed
	}
	sess, ok := r.sessions.Get(r.id)
	if !ok {
		return AdmitResult{}, domain.Rejected("unknown session")
	}
	if sess.State == domain.SessionEnded {
		return AdmitResult{}, domain.ErrSessionEnded
	}

	if s, ok := r.members[id]; ok {
		res := AdmitResult{Participant: s.p, State: sess.State, Already: true}
		if s.ms.ConnID() != ms.ConnID() {
			res.Replaced = s.ms.ConnID()
			s.ms = ms
			// Peers still hold links to the old connection; make them tear down and renegotiate.
			res.merge(r.fanoutLocked(id, protocol.UserLeftFrame(id)))
			res.merge(r.fanoutLocked(id, protocol.UserJoinedFrame(s.p)))
		}
		res.merge(r.sendLocked(ms, protocol.SessionJoinedFrame(r.id, sess.State, s.p, r.participantsLocked(id))))
		log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("participant", string(id)).
			Str("replaced", string(res.Replaced)).Msg("member re-joined")
		return res, nil
	}

	if sess.State == domain.SessionScheduled {
		var err error
		if sess, err = r.sessions.Transition(r.id, domain.SessionLive); err != nil {
			return AdmitResult{}, err
		}
		log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("session live")
	}

	r.lastSeat++
	p := domain.NewParticipant(id, &sess)
	p.Seat = r.lastSeat
	others := r.participantsLocked("")
	r.members[id] = &seat{ms: ms, p: p}
	r.order = append(r.order, id)

	res := AdmitResult{Participant: p, State: sess.State}
	res.PublishResult = r.fanoutLocked(id, protocol.UserJoinedFrame(p))
	res.merge(r.sendLocked(ms, protocol.SessionJoinedFrame(r.id, sess.State, p, others)))
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("participant", string(id)).
		Uint64("seat", p.Seat).Int("members", len(r.order)).Msg("member added")
	return res, nil
}

func (r *roomImpl) Remove(id domain.ParticipantID, cid ConnID) RemoveResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.members[id]
	if !ok {
		return RemoveResult{}
	}
	// A stale connection of a participant that re-joined elsewhere does not own the seat.
	if cid != "" && s.ms.ConnID() != cid {
		return RemoveResult{}
	}

	res := RemoveResult{Removed: true, PublishResult: r.removeLocked(id)}
	if len(r.order) == 0 {
		if sess, ok := r.sessions.Get(r.id); ok && sess.State == domain.SessionLive {
			if _, err := r.sessions.Transition(r.id, domain.SessionEnded); err != nil {
				log.Error().Err(err).Str("module", "core.room").Str("room", string(r.id)).Msg("end on last leave")
			} else {
				res.Ended = true
				r.closed = true
				log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("session ended: last member left")
			}
		}
	}
	return res
}

func (r *roomImpl) Relay(from ConnID, fromID, to domain.ParticipantID, data Frame) (PublishResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.members[fromID]
	if !ok || s.ms.ConnID() != from {
		return PublishResult{}, &domain.Error{Code: domain.CodeUnknownTarget, Reason: "sender not in session"}
	}
	if fromID == to {
		return PublishResult{}, &domain.Error{Code: domain.CodeUnknownTarget, Reason: "cannot relay to self"}
	}
	t, ok := r.members[to]
	if !ok {
		return PublishResult{}, &domain.Error{Code: domain.CodeUnknownTarget, Reason: "target not in session"}
	}
	return r.sendLocked(t.ms, data), nil
}

func (r *roomImpl) Broadcast(from ConnID, fromID domain.ParticipantID, data Frame) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.members[fromID]
	if !ok || s.ms.ConnID() != from {
		return PublishResult{}, domain.Rejected("not a member of this session")
	}
	res := r.fanoutLocked("", data)
	log.Debug().Str("module", "core.room").Str("from", string(fromID)).Int("sent_to", res.SendTo).
		Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res, nil
}

func (r *roomImpl) End(by domain.ParticipantID) ([]MemberSession, PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, PublishResult{}, ErrRoomClosed
	}
	sess, ok := r.sessions.Get(r.id)
	if !ok {
		return nil, PublishResult{}, domain.Rejected("unknown session")
	}
	if sess.HostID != by {
		return nil, PublishResult{}, domain.ErrForbidden
	}
	if sess.State == domain.SessionEnded {
		return nil, PublishResult{}, domain.ErrSessionEnded
	}
	if _, err := r.sessions.Transition(r.id, domain.SessionEnded); err != nil {
		return nil, PublishResult{}, err
	}

	// session-ended goes out before the user-left cascade so clients can tell the two apart.
	res := r.fanoutLocked("", protocol.SessionEndedFrame(r.id))
	removed := make([]MemberSession, 0, len(r.order))
	for _, id := range slices.Clone(r.order) {
		removed = append(removed, r.members[id].ms)
		res.merge(r.removeLocked(id))
	}
	r.closed = true
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Int("removed", len(removed)).Msg("session ended by host")
	return removed, res, nil
}

func (r *roomImpl) CloseIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		r.closed = true
	}
	return r.closed
}

func (r *roomImpl) removeLocked(id domain.ParticipantID) PublishResult {
	delete(r.members, id)
	r.order = lo.Without(r.order, id)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("participant", string(id)).Msg("member removed")
	return r.fanoutLocked("", protocol.UserLeftFrame(id))
}

// fanoutLocked sends to every member except skip, in seat order. Failures are collected, never returned.
func (r *roomImpl) fanoutLocked(skip domain.ParticipantID, data Frame) PublishResult {
	res := PublishResult{}
	for _, id := range r.order {
		if id == skip {
			continue
		}
		res.merge(r.sendLocked(r.members[id].ms, data))
	}
	return res
}

func (r *roomImpl) sendLocked(ms MemberSession, data Frame) PublishResult {
	if err := ms.Signal().TrySend(data); err != nil {
		log.Debug().Err(err).Str("module", "core.room").Str("conn", string(ms.ConnID())).Msg("delivery dropped")
		return PublishResult{Dropped: []MemberSession{ms}}
	}
	return PublishResult{SendTo: 1}
}

func (r *roomImpl) participantsLocked(skip domain.ParticipantID) []domain.Participant {
	ids := lo.Without(r.order, skip)
	return lo.Map(ids, func(id domain.ParticipantID, _ int) domain.Participant {
		return r.members[id].p
	})
}
