package app

import (
	"sync"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl is the process-wide table of live rooms.
// Its lock only guards the map; room state is serialized by each room.
type RoomManagerImpl struct {
	mu       sync.RWMutex
	rooms    map[domain.SessionID]core.RoomService
	sessions core.SessionStore
}

func NewRoomManager(sessions core.SessionStore) *RoomManagerImpl {
	return &RoomManagerImpl{
		rooms:    make(map[domain.SessionID]core.RoomService),
		sessions: sessions,
	}
}

func (f *RoomManagerImpl) GetOrCreate(id domain.SessionID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(id, f.sessions)
	f.rooms[id] = room
	log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

func (f *RoomManagerImpl) Get(id domain.SessionID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	return out
}

func (f *RoomManagerImpl) Release(id domain.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return
	}
	// Lock order is manager -> room; rooms never call back into the manager.
	if room.CloseIfEmpty() {
		delete(f.rooms, id)
		log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("room released")
	}
}
