package domain

import (
	"fmt"
	"slices"
	"time"
)

type SessionID string

type SessionState int

const (
	SessionScheduled SessionState = iota
	SessionLive
	SessionEnded
)

func (s SessionState) String() string {
	switch s {
	case SessionScheduled:
		return "scheduled"
	case SessionLive:
		return "live"
	case SessionEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (s SessionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SessionState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "scheduled":
		*s = SessionScheduled
	case "live":
		*s = SessionLive
	case "ended":
		*s = SessionEnded
	default:
		return fmt.Errorf("unknown session state %q", b)
	}
	return nil
}

// Session is the scheduled coordination context a room is keyed by.
type Session struct {
	ID       SessionID       `json:"id"`
	Title    string          `json:"title"`
	HostID   ParticipantID   `json:"hostId"`
	StartsAt time.Time       `json:"startsAt"`
	Enrolled []ParticipantID `json:"attendees"`
	State    SessionState    `json:"state"`
	LiveAt   time.Time       `json:"liveAt,omitzero"`
	EndedAt  time.Time       `json:"endedAt,omitzero"`
}

// IsEnrolled reports whether id may attend. An empty enrollment list means open attendance.
func (s *Session) IsEnrolled(id ParticipantID) bool {
	if id == s.HostID || len(s.Enrolled) == 0 {
		return true
	}
	return slices.Contains(s.Enrolled, id)
}

// ChatMessage is relayed to a room and never stored.
type ChatMessage struct {
	SenderID  ParticipantID `json:"participantId"`
	SessionID SessionID     `json:"roomId"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
}
