package app

import (
	"context"
	"time"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a member whose connection could not take a frame.
type Policy interface {
	OnBackPressure(room domain.SessionID, member core.MemberSession) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.SessionID, core.MemberSession) BackpressureAction {
	return KickMember
}

// JoinPolicy is the external authorization collaborator consulted before admission.
type JoinPolicy interface {
	CanJoin(ctx context.Context, sess domain.Session, who domain.Identity) error
}

// SchedulePolicy admits the host at any time and enrolled attendees from JoinEarly before the start.
type SchedulePolicy struct {
	JoinEarly time.Duration
	Now       func() time.Time
}

func (p SchedulePolicy) CanJoin(_ context.Context, sess domain.Session, who domain.Identity) error {
	if sess.State == domain.SessionEnded {
		return domain.ErrSessionEnded
	}
	if who.ID == sess.HostID {
		return nil
	}
	if !sess.IsEnrolled(who.ID) {
		return domain.Rejected("not enrolled in this session")
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if sess.State == domain.SessionScheduled && now().Before(sess.StartsAt.Add(-p.JoinEarly)) {
		return domain.Rejected("session has not started yet")
	}
	return nil
}

// MessageFilter is the external moderation collaborator. It may rewrite text or reject it.
type MessageFilter interface {
	Filter(ctx context.Context, text string) (string, error)
}
