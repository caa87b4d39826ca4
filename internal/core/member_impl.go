package core

import "github.com/dkeye/Live/internal/domain"

// memberSession implements MemberSession by pairing identity + transport.
type memberSession struct {
	cid      ConnID
	identity domain.Identity
	signal   SignalConnection
}

func NewMemberSession(cid ConnID, identity domain.Identity, signal SignalConnection) MemberSession {
	return &memberSession{cid: cid, identity: identity, signal: signal}
}

func (m *memberSession) ConnID() ConnID            { return m.cid }
func (m *memberSession) Identity() domain.Identity { return m.identity }
func (m *memberSession) Signal() SignalConnection  { return m.signal }
