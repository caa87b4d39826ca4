package core

import (
	"errors"

	"github.com/dkeye/Live/internal/domain"
)

// ErrRoomClosed is returned by a room that was released from its manager; callers fetch a fresh one.
var ErrRoomClosed = errors.New("room closed")

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

func (r *PublishResult) merge(o PublishResult) {
	r.SendTo += o.SendTo
	r.Dropped = append(r.Dropped, o.Dropped...)
}

type AdmitResult struct {
	Participant domain.Participant
	State       domain.SessionState
	// Already is set when the participant was seated before this call.
	Already bool
	// Replaced is the previous connection of a participant that re-joined from a new one.
	Replaced ConnID
	PublishResult
}

type RemoveResult struct {
	Removed bool
	// Ended is set when the removal emptied a live room.
	Ended bool
	PublishResult
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	ID() domain.SessionID
	MemberCount() int
	Members() []domain.Participant
	Closed() bool

	Admit(ms MemberSession) (AdmitResult, error)
	Remove(id domain.ParticipantID, cid ConnID) RemoveResult
	Relay(from ConnID, fromID, to domain.ParticipantID, data Frame) (PublishResult, error)
	Broadcast(from ConnID, fromID domain.ParticipantID, data Frame) (PublishResult, error)
	End(by domain.ParticipantID) ([]MemberSession, PublishResult, error)
	// CloseIfEmpty marks an empty room closed and reports whether it did.
	CloseIfEmpty() bool
}

type RoomInfo struct {
	ID          domain.SessionID `json:"id"`
	MemberCount int              `json:"member_count"`
}

type RoomManager interface {
	GetOrCreate(id domain.SessionID) RoomService
	Get(id domain.SessionID) (RoomService, bool)
	List() []RoomInfo
	// Release drops the room if it is closed or empty.
	Release(id domain.SessionID)
}
