package orch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Live/internal/app"
	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/dkeye/Live/internal/protocol"
	"github.com/stretchr/testify/require"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("queue full")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

type frame struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	From          domain.ParticipantID `json:"fromParticipantId"`
	Text          string               `json:"text"`
	Participants  []domain.Participant `json:"participants"`
}

// take returns and clears the frames received so far.
func (f *fakeSignal) take(t *testing.T) []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]frame, 0, len(f.frames))
	for _, raw := range f.frames {
		var fr frame
		require.NoError(t, json.Unmarshal(raw, &fr))
		out = append(out, fr)
	}
	f.frames = nil
	return out
}

func types(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type + ":" + string(f.ParticipantID)
	}
	return out
}

type upperFilter struct{}

func (upperFilter) Filter(_ context.Context, text string) (string, error) {
	if text == "" {
		return "", errors.New("message is empty")
	}
	return strings.ToUpper(text), nil
}

type fixture struct {
	o        *Orchestrator
	signals  map[core.ConnID]*fakeSignal
	canceled map[core.ConnID]int
	mu       sync.Mutex
}

func newFixture(t *testing.T, sessions ...domain.Session) *fixture {
	store := app.NewSessionStore()
	for _, s := range sessions {
		_, err := store.Schedule(s)
		require.NoError(t, err)
	}
	now := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return &fixture{
		o: &Orchestrator{
			Registry: app.NewRegistry(),
			Rooms:    app.NewRoomManager(store),
			Sessions: store,
			Policy:   app.SimplePolicy{},
			Access:   app.SchedulePolicy{JoinEarly: time.Hour, Now: now},
			Filter:   upperFilter{},
			Now:      now,
		},
		signals:  make(map[core.ConnID]*fakeSignal),
		canceled: make(map[core.ConnID]int),
	}
}

func (f *fixture) connect(cid core.ConnID, id domain.ParticipantID, role domain.Role) *fakeSignal {
	sig := &fakeSignal{}
	f.signals[cid] = sig
	f.o.Registry.Bind(core.NewMemberSession(cid, domain.Identity{ID: id, Role: role}, sig), func() {
		f.mu.Lock()
		f.canceled[cid]++
		f.mu.Unlock()
	})
	return sig
}

func (f *fixture) members(room domain.SessionID) []domain.ParticipantID {
	r, ok := f.o.Rooms.Get(room)
	if !ok {
		return nil
	}
	out := []domain.ParticipantID{}
	for _, p := range r.Members() {
		out = append(out, p.ID)
	}
	return out
}

var scheduled = domain.Session{ID: "S", HostID: "H", StartsAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}

func TestOrchestrator_HostAndTwoAttendees(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, scheduled)
	h := f.connect("cH", "H", domain.RoleHost)
	a := f.connect("cA", "A", domain.RoleAttendee)
	b := f.connect("cB", "B", domain.RoleAttendee)

	res, err := f.o.Join(ctx, "cH", "S")
	req.NoError(err)
	req.Equal(domain.SessionLive, res.State)
	req.Equal(domain.RoleHost, res.Participant.Role)
	req.Equal([]string{"session-joined:"}, types(h.take(t)))

	_, err = f.o.Join(ctx, "cA", "S")
	req.NoError(err)
	_, err = f.o.Join(ctx, "cB", "S")
	req.NoError(err)

	req.Equal([]string{"user-joined:A", "user-joined:B"}, types(h.take(t)))
	fa := a.take(t)
	req.Equal([]string{"session-joined:", "user-joined:B"}, types(fa))
	req.Len(fa[0].Participants, 1)
	fb := b.take(t)
	req.Len(fb, 1)
	req.Equal([]domain.ParticipantID{"H", "A"}, []domain.ParticipantID{fb[0].Participants[0].ID, fb[0].Participants[1].ID})
	req.Equal([]domain.ParticipantID{"H", "A", "B"}, f.members("S"))

	// Relay stays inside the room and reaches exactly the target.
	req.NoError(f.o.Relay("cA", protocol.TypeOffer, "B", json.RawMessage(`{"sdp":"x"}`)))
	fb = b.take(t)
	req.Len(fb, 1)
	req.Equal(protocol.TypeOffer, fb[0].Type)
	req.Equal(domain.ParticipantID("A"), fb[0].From)
	req.Empty(h.take(t))
	req.ErrorIs(f.o.Relay("cA", protocol.TypeOffer, "ghost", json.RawMessage(`{}`)), domain.ErrUnknownTarget)

	// Chat is filtered and echoed to everyone, sender included.
	req.NoError(f.o.Chat(ctx, "cB", "S", "hello"))
	for _, sig := range []*fakeSignal{h, a, b} {
		got := sig.take(t)
		req.Len(got, 1)
		req.Equal("HELLO", got[0].Text)
	}
	req.ErrorIs(f.o.Chat(ctx, "cB", "S", ""), domain.ErrRejected)
	req.ErrorIs(f.o.Chat(ctx, "cB", "other", "hi"), domain.ErrRejected)

	// Only the host may end the session.
	req.ErrorIs(f.o.EndSession("cA", "S"), domain.ErrForbidden)
	sess, _ := f.o.Sessions.Get("S")
	req.Equal(domain.SessionLive, sess.State)
	req.Empty(h.take(t))

	req.NoError(f.o.EndSession("cH", "S"))
	req.Equal([]string{"session-ended:", "user-left:H", "user-left:A"}, types(b.take(t)))
	req.Equal([]string{"session-ended:", "user-left:H"}, types(a.take(t)))
	sess, _ = f.o.Sessions.Get("S")
	req.Equal(domain.SessionEnded, sess.State)
	_, _, inRoom := f.o.Registry.RoomOf("cA")
	req.False(inRoom)

	_, err = f.o.Join(ctx, "cA", "S")
	req.ErrorIs(err, domain.ErrSessionEnded)
}

func TestOrchestrator_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, scheduled)
	h := f.connect("cH", "H", domain.RoleHost)
	f.connect("cA", "A", domain.RoleAttendee)

	_, err := f.o.Join(ctx, "cH", "S")
	req.NoError(err)
	_, err = f.o.Join(ctx, "cA", "S")
	req.NoError(err)
	h.take(t)

	res, err := f.o.Join(ctx, "cA", "S")
	req.NoError(err)
	req.True(res.Already)
	req.Empty(h.take(t))
	req.Equal([]domain.ParticipantID{"H", "A"}, f.members("S"))
}

func TestOrchestrator_ReconnectRenegotiates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, scheduled)
	h := f.connect("cH", "H", domain.RoleHost)
	a1 := f.connect("cA", "A", domain.RoleAttendee)
	a2 := f.connect("cA2", "A", domain.RoleAttendee)

	for _, cid := range []core.ConnID{"cH", "cA"} {
		_, err := f.o.Join(ctx, cid, "S")
		req.NoError(err)
	}
	h.take(t)
	a1.take(t)

	res, err := f.o.Join(ctx, "cA2", "S")
	req.NoError(err)
	req.Equal(core.ConnID("cA"), res.Replaced)
	req.Equal([]string{"user-left:A", "user-joined:A"}, types(h.take(t)))
	req.Equal([]string{"session-joined:"}, types(a2.take(t)))
	req.Equal([]string{"left:"}, types(a1.take(t)))

	// The old socket dropping later changes nothing.
	f.o.OnDisconnect("cA")
	req.Empty(h.take(t))
	req.Equal([]domain.ParticipantID{"H", "A"}, f.members("S"))

	// Relays from the old connection no longer reach anyone.
	err = f.o.Relay("cA", protocol.TypeOffer, "H", json.RawMessage(`{}`))
	req.Error(err)
	req.NoError(f.o.Relay("cA2", protocol.TypeOffer, "H", json.RawMessage(`{}`)))
	req.Equal([]string{"webrtc-offer:"}, types(h.take(t)))
}

func TestOrchestrator_LeaveAndDisconnect(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, scheduled)
	h := f.connect("cH", "H", domain.RoleHost)
	f.connect("cA", "A", domain.RoleAttendee)
	b := f.connect("cB", "B", domain.RoleAttendee)
	for _, cid := range []core.ConnID{"cH", "cA", "cB"} {
		_, err := f.o.Join(ctx, cid, "S")
		req.NoError(err)
	}
	h.take(t)
	b.take(t)

	// Leaving another room is a no-op.
	f.o.Leave("cA", "other")
	req.Equal([]domain.ParticipantID{"H", "A", "B"}, f.members("S"))

	f.o.Leave("cA", "")
	req.Equal([]string{"user-left:A"}, types(h.take(t)))
	req.Equal([]string{"user-left:A"}, types(b.take(t)))
	req.Equal([]domain.ParticipantID{"H", "B"}, f.members("S"))

	f.o.OnDisconnect("cB")
	req.Equal([]string{"user-left:B"}, types(h.take(t)))
	_, ok := f.o.Registry.GetSession("cB")
	req.False(ok)

	// The last member leaving ends the session and releases the room.
	f.o.OnDisconnect("cH")
	sess, _ := f.o.Sessions.Get("S")
	req.Equal(domain.SessionEnded, sess.State)
	_, ok = f.o.Rooms.Get("S")
	req.False(ok)
}

func TestOrchestrator_JoinRefusals(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	restricted := domain.Session{ID: "R", HostID: "H", StartsAt: scheduled.StartsAt, Enrolled: []domain.ParticipantID{"A"}}
	later := domain.Session{ID: "L", HostID: "H", StartsAt: scheduled.StartsAt.Add(24 * time.Hour)}
	f := newFixture(t, restricted, later)
	f.connect("cA", "A", domain.RoleAttendee)
	f.connect("cB", "B", domain.RoleAttendee)

	_, err := f.o.Join(ctx, "cB", "R")
	req.ErrorIs(err, domain.ErrRejected)
	_, err = f.o.Join(ctx, "cA", "L")
	req.ErrorIs(err, domain.ErrRejected)
	_, err = f.o.Join(ctx, "cA", "missing")
	req.ErrorIs(err, domain.ErrRejected)
	_, err = f.o.Join(ctx, "unbound", "R")
	req.ErrorIs(err, domain.ErrUnauthenticated)

	// Refused joins leave no room behind.
	req.Empty(f.o.Rooms.List())

	_, err = f.o.Join(ctx, "cA", "R")
	req.NoError(err)
}

func TestOrchestrator_SwitchingRoomsLeavesTheFirst(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	other := domain.Session{ID: "T", HostID: "H2", StartsAt: scheduled.StartsAt}
	f := newFixture(t, scheduled, other)
	h := f.connect("cH", "H", domain.RoleHost)
	f.connect("cA", "A", domain.RoleAttendee)

	_, err := f.o.Join(ctx, "cH", "S")
	req.NoError(err)
	_, err = f.o.Join(ctx, "cA", "S")
	req.NoError(err)
	h.take(t)

	_, err = f.o.Join(ctx, "cA", "T")
	req.NoError(err)
	req.Equal([]string{"user-left:A"}, types(h.take(t)))
	req.Equal([]domain.ParticipantID{"H"}, f.members("S"))
	req.Equal([]domain.ParticipantID{"A"}, f.members("T"))

	who, room, ok := f.o.WhoAmI("cA")
	req.True(ok)
	req.Equal(domain.ParticipantID("A"), who.ID)
	req.Equal(domain.SessionID("T"), room)
}

func TestOrchestrator_SlowMemberIsKicked(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t, scheduled)
	f.connect("cH", "H", domain.RoleHost)
	a := f.connect("cA", "A", domain.RoleAttendee)

	_, err := f.o.Join(ctx, "cH", "S")
	req.NoError(err)
	_, err = f.o.Join(ctx, "cA", "S")
	req.NoError(err)

	a.mu.Lock()
	a.full = true
	a.mu.Unlock()
	req.NoError(f.o.Chat(ctx, "cH", "S", "hi"))

	f.mu.Lock()
	defer f.mu.Unlock()
	req.Equal(1, f.canceled["cA"])
	req.Zero(f.canceled["cH"])
}

func TestOrchestrator_EndScheduledSessionAndEvict(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	other := domain.Session{ID: "T", HostID: "H", StartsAt: scheduled.StartsAt}
	f := newFixture(t, scheduled, other)
	f.connect("cH", "H", domain.RoleHost)
	a := f.connect("cA", "A", domain.RoleAttendee)

	// Ending a session nobody joined cancels it.
	req.NoError(f.o.EndSession("cH", "S"))
	sess, _ := f.o.Sessions.Get("S")
	req.Equal(domain.SessionEnded, sess.State)
	req.ErrorIs(f.o.EndSession("cH", "S"), domain.ErrSessionEnded)
	req.Empty(f.o.Rooms.List())

	_, err := f.o.Join(ctx, "cA", "T")
	req.NoError(err)
	a.take(t)
	req.NoError(f.o.EvictRoom("T"))
	req.Equal([]string{"session-ended:"}, types(a.take(t)))
	sess, _ = f.o.Sessions.Get("T")
	req.Equal(domain.SessionEnded, sess.State)
}
