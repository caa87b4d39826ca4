package domain

// Participant represents an identity's seat in a room.
// No transport or lifecycle logic here.
type Participant struct {
	ID   ParticipantID `json:"participantId"`
	Role Role          `json:"role"`
	// Seat grows monotonically per room; lower seats joined earlier.
	Seat uint64 `json:"seat"`
}

// NewParticipant derives the in-room role from the session's host.
func NewParticipant(id ParticipantID, sess *Session) Participant {
	role := RoleAttendee
	if sess != nil && sess.HostID == id {
		role = RoleHost
	}
	return Participant{ID: id, Role: role}
}
