package app

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Live/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrSessionExists = errors.New("session already exists")

// SessionStore is the in-memory scheduling collaborator.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionID]*domain.Session),
		now:      time.Now,
	}
}

// Schedule records a new session in Scheduled state. An empty ID gets a generated one.
func (s *SessionStore) Schedule(sess domain.Session) (domain.Session, error) {
	if err := sess.HostID.Validate(); err != nil {
		return domain.Session{}, fmt.Errorf("host: %w", err)
	}
	if sess.ID == "" {
		sess.ID = domain.SessionID(uuid.NewString())
	}
	sess.State = domain.SessionScheduled
	sess.Enrolled = slices.Compact(slices.Sorted(slices.Values(sess.Enrolled)))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return domain.Session{}, fmt.Errorf("%w: %s", ErrSessionExists, sess.ID)
	}
	stored := sess
	s.sessions[sess.ID] = &stored
	log.Info().Str("module", "app.sessions").Str("session", string(sess.ID)).Str("host", string(sess.HostID)).
		Time("starts_at", sess.StartsAt).Msg("session scheduled")
	return sess, nil
}

func (s *SessionStore) Get(id domain.SessionID) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return clone(sess), true
}

func (s *SessionStore) Transition(id domain.SessionID, to domain.SessionState) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.Rejected("unknown session")
	}
	switch {
	case sess.State == domain.SessionEnded:
		return clone(sess), domain.ErrSessionEnded
	case sess.State == to:
		return clone(sess), nil
	case to == domain.SessionLive && sess.State == domain.SessionScheduled:
		sess.LiveAt = s.now()
	case to == domain.SessionEnded:
		sess.EndedAt = s.now()
	default:
		return clone(sess), fmt.Errorf("invalid transition %s -> %s", sess.State, to)
	}
	sess.State = to
	log.Info().Str("module", "app.sessions").Str("session", string(id)).Str("state", to.String()).Msg("session transition")
	return clone(sess), nil
}

// Enroll adds attendees; only the host may do so and never after the session ended.
func (s *SessionStore) Enroll(id domain.SessionID, by domain.ParticipantID, attendees []domain.ParticipantID) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.Rejected("unknown session")
	}
	if sess.HostID != by {
		return domain.Session{}, domain.ErrForbidden
	}
	if sess.State == domain.SessionEnded {
		return domain.Session{}, domain.ErrSessionEnded
	}
	sess.Enrolled = slices.Compact(slices.Sorted(slices.Values(append(sess.Enrolled, attendees...))))
	return clone(sess), nil
}

func clone(sess *domain.Session) domain.Session {
	out := *sess
	out.Enrolled = slices.Clone(sess.Enrolled)
	return out
}
