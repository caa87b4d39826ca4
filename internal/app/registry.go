package app

import (
	"context"
	"sync"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type sessionEntry struct {
	RoomID  domain.SessionID
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry is the process-wide table of open connections and the room each one sits in.
// Rooms stay authoritative for membership; the registry only routes a connection to its room.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.ConnID]*sessionEntry),
	}
}

func (r *Registry) Bind(sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ConnID()] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(sess.ConnID())).
		Str("participant", string(sess.Identity().ID)).Msg("bound connection")
}

func (r *Registry) Unbind(cid core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, cid)
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("unbind connection")
}

func (r *Registry) GetSession(cid core.ConnID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[cid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) RoomOf(cid core.ConnID) (domain.SessionID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[cid]
	if !ok || entry.RoomID == "" {
		return "", nil, false
	}
	return entry.RoomID, entry.Session, true
}

// RoomOfParticipant finds the room an identity is seated in through any of its connections.
func (r *Registry) RoomOfParticipant(id domain.ParticipantID) (domain.SessionID, core.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for cid, e := range r.sessions {
		if e.RoomID != "" && e.Session.Identity().ID == id {
			return e.RoomID, cid, true
		}
	}
	return "", "", false
}

func (r *Registry) UpdateRoom(cid core.ConnID, room domain.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[cid]
	if !ok {
		return false
	}
	entry.RoomID = room
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("room", string(room)).Msg("updated room")
	return true
}

// RemoveRoom clears the association only if cid still points at room.
func (r *Registry) RemoveRoom(cid core.ConnID, room domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[cid]; ok && entry.RoomID == room {
		entry.RoomID = ""
		log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("room", string(room)).Msg("removed room association")
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(cid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.sessions[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("canceled connection")
	return true
}

// CloseAll cancels every connection; used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	cancels := lo.FilterMap(lo.Values(r.sessions), func(e *sessionEntry, _ int) (context.CancelFunc, bool) {
		return e.Cancel, e.Cancel != nil
	})
	r.mu.RUnlock()
	for _, cancel := range cancels {
		cancel()
	}
	log.Info().Str("module", "app.registry").Int("connections", len(cancels)).Msg("closed all connections")
}
