// Package protocol defines the JSON frames exchanged over the signaling socket.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Live/internal/domain"
)

// Client -> server.
const (
	TypeJoinSession  = "join-session"
	TypeLeaveSession = "leave-session"
	TypeEndSession   = "end-session"
	TypeWhoAmI       = "whoami"
	TypePing         = "ping"
)

// Both directions.
const (
	TypeOffer     = "webrtc-offer"
	TypeAnswer    = "webrtc-answer"
	TypeCandidate = "ice-candidate"
	TypeChat      = "chat-message"
)

// Server -> client.
const (
	TypeSessionJoined = "session-joined"
	TypeUserJoined    = "user-joined"
	TypeUserLeft      = "user-left"
	TypeSessionEnded  = "session-ended"
	TypeLeft          = "left"
	TypeError         = "error"
	TypePong          = "pong"
)

// IsSignal reports whether t is one of the relayed negotiation types.
func IsSignal(t string) bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeCandidate
}

type Envelope struct {
	Type string `json:"type"`
}

type RoomRequest struct {
	Type   string           `json:"type"`
	RoomID domain.SessionID `json:"roomId" validate:"required,max=128"`
}

// LeaveRequest may omit the room; the current one is left.
type LeaveRequest struct {
	Type   string           `json:"type"`
	RoomID domain.SessionID `json:"roomId" validate:"max=128"`
}

type SignalRequest struct {
	Type   string               `json:"type"`
	Target domain.ParticipantID `json:"targetParticipantId" validate:"required,max=64"`
	// Opaque to the server.
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type ChatRequest struct {
	Type   string           `json:"type"`
	RoomID domain.SessionID `json:"roomId" validate:"required,max=128"`
	Text   string           `json:"text" validate:"required"`
}

type SessionJoined struct {
	Type         string               `json:"type"`
	RoomID       domain.SessionID     `json:"roomId"`
	State        domain.SessionState  `json:"state"`
	Self         domain.Participant   `json:"self"`
	Participants []domain.Participant `json:"participants"`
}

type UserJoined struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Role          domain.Role          `json:"role"`
	Seat          uint64               `json:"seat"`
}

type UserLeft struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
}

type SignalRelayed struct {
	Type    string               `json:"type"`
	From    domain.ParticipantID `json:"fromParticipantId"`
	Payload json.RawMessage      `json:"payload"`
}

type ChatBroadcast struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Text          string               `json:"text"`
	Timestamp     time.Time            `json:"timestamp"`
}

type SessionEnded struct {
	Type   string           `json:"type"`
	RoomID domain.SessionID `json:"roomId"`
}

type Left struct {
	Type   string           `json:"type"`
	RoomID domain.SessionID `json:"roomId,omitempty"`
}

type WhoAmI struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Role          domain.Role          `json:"role"`
	RoomID        domain.SessionID     `json:"roomId,omitempty"`
}

type Error struct {
	Type    string           `json:"type"`
	Code    domain.ErrorCode `json:"code"`
	Reason  string           `json:"reason,omitempty"`
	Request string           `json:"request,omitempty"`
}
