// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxParticipantIDLen = 64

var (
	ErrParticipantIDEmpty   = errors.New("participant id empty")
	ErrParticipantIDTooLong = errors.New("participant id too long")
)

type ParticipantID string

func (id ParticipantID) Validate() error {
	if len(id) == 0 {
		return ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return ErrParticipantIDTooLong
	}
	return nil
}

type Role string

const (
	RoleHost     Role = "host"
	RoleAttendee Role = "attendee"
)

// Identity is what the connection handshake attaches to a connection.
type Identity struct {
	ID   ParticipantID `json:"id"`
	Role Role          `json:"role"`
}

func (i Identity) IsHost() bool { return i.Role == RoleHost }
