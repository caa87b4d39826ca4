package core

import "github.com/dkeye/Live/internal/domain"

// ConnID identifies one physical connection. A participant reconnecting gets a new one.
type ConnID string

// MemberSession binds the resolved identity and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ConnID() ConnID
	Identity() domain.Identity
	Signal() SignalConnection
}

// SessionStore is the scheduling collaborator's view of sessions.
type SessionStore interface {
	Get(id domain.SessionID) (domain.Session, bool)
	// Transition moves a session to the given state. Ended is terminal.
	Transition(id domain.SessionID, to domain.SessionState) (domain.Session, error)
}
