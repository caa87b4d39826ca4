// Package mesh keeps one direct media link per co-present participant on the client side.
package mesh

import (
	"encoding/json"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
)

type LinkState int

const (
	LinkIdle LinkState = iota
	LinkOffering
	LinkAwaitingAnswer
	LinkAnswering
	LinkConnected
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkOffering:
		return "offering"
	case LinkAwaitingAnswer:
		return "awaiting-answer"
	case LinkAnswering:
		return "answering"
	case LinkConnected:
		return "connected"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s LinkState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type peerLink struct {
	id domain.ParticipantID
	// remote is guarded by the controller's mutex.
	remote    domain.Participant
	state     LinkState
	initiator bool
	media     core.MediaLink

	// localSent flips once our description went out; local candidates wait for it.
	localSent    bool
	pendingLocal []json.RawMessage
	// remoteSet flips once the remote description is applied; remote candidates wait for it.
	remoteSet     bool
	pendingRemote []json.RawMessage
}

// LinkInfo is a read-only view of one link.
type LinkInfo struct {
	Remote    domain.Participant `json:"remote"`
	State     LinkState          `json:"state"`
	Initiator bool               `json:"initiator"`
}

// ShouldOffer decides which side of a pair sends the offer: the host offers to attendees,
// otherwise the earlier-seated participant offers.
func ShouldOffer(self, remote domain.Participant) bool {
	selfHost := self.Role == domain.RoleHost
	remoteHost := remote.Role == domain.RoleHost
	if selfHost != remoteHost {
		return selfHost
	}
	if self.Seat != remote.Seat {
		return self.Seat < remote.Seat
	}
	return self.ID < remote.ID
}
