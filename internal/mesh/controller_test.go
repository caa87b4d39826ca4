package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/dkeye/Live/internal/protocol"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	mu          sync.Mutex
	remote      domain.ParticipantID
	offers      int
	answers     []json.RawMessage
	candidates  []json.RawMessage
	closed      bool
	offerErr    error
	onICE       func(json.RawMessage)
	onConnected func()
	onFailed    func()
	// beforeOffer runs inside CreateOffer, to interleave events with an in-flight step.
	beforeOffer func()
}

func (f *fakeLink) CreateOffer(context.Context) (json.RawMessage, error) {
	if f.beforeOffer != nil {
		f.beforeOffer()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offerErr != nil {
		return nil, f.offerErr
	}
	f.offers++
	return json.RawMessage(`{"type":"offer","sdp":"o-` + string(f.remote) + `"}`), nil
}

func (f *fakeLink) AcceptOffer(_ context.Context, offer json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"type":"answer","sdp":"a-` + string(f.remote) + `"}`), nil
}

func (f *fakeLink) AcceptAnswer(_ context.Context, answer json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer)
	return nil
}

func (f *fakeLink) AddICECandidate(c json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeLink) OnICECandidate(fn func(json.RawMessage)) { f.onICE = fn }
func (f *fakeLink) OnConnected(fn func())                   { f.onConnected = fn }
func (f *fakeLink) OnFailed(fn func())                      { f.onFailed = fn }

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type sent struct {
	typ     string
	target  domain.ParticipantID
	payload string
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []sent
}

func (s *fakeSignaler) Signal(typ string, target domain.ParticipantID, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{typ, target, string(payload)})
	return nil
}

func (s *fakeSignaler) ofType(typ string) []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sent
	for _, m := range s.sent {
		if m.typ == typ {
			out = append(out, m)
		}
	}
	return out
}

type harness struct {
	ctl   *Controller
	sig   *fakeSignaler
	mu    sync.Mutex
	links map[domain.ParticipantID][]*fakeLink
	setup func(*fakeLink)
}

func newHarness() *harness {
	h := &harness{sig: &fakeSignaler{}, links: make(map[domain.ParticipantID][]*fakeLink)}
	h.ctl = NewController(func(remote domain.ParticipantID) (core.MediaLink, error) {
		l := &fakeLink{remote: remote}
		if h.setup != nil {
			h.setup(l)
		}
		h.mu.Lock()
		h.links[remote] = append(h.links[remote], l)
		h.mu.Unlock()
		return l, nil
	}, h.sig)
	return h
}

func (h *harness) link(id domain.ParticipantID) *fakeLink {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls := h.links[id]
	if len(ls) == 0 {
		return nil
	}
	return ls[len(ls)-1]
}

var (
	host  = domain.Participant{ID: "H", Role: domain.RoleHost, Seat: 1}
	alice = domain.Participant{ID: "A", Role: domain.RoleAttendee, Seat: 2}
	bob   = domain.Participant{ID: "B", Role: domain.RoleAttendee, Seat: 3}
)

func TestShouldOffer(t *testing.T) {
	req := require.New(t)
	req.True(ShouldOffer(host, alice))
	req.False(ShouldOffer(alice, host))
	// A host seated later still offers.
	req.True(ShouldOffer(domain.Participant{ID: "H", Role: domain.RoleHost, Seat: 9}, alice))
	req.True(ShouldOffer(alice, bob))
	req.False(ShouldOffer(bob, alice))
	for _, pair := range [][2]domain.Participant{{host, alice}, {alice, bob}, {host, bob}} {
		req.NotEqual(ShouldOffer(pair[0], pair[1]), ShouldOffer(pair[1], pair[0]))
	}
}

func TestController_AttendeeJoinsAfterHost(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness()

	// Bob is seated after the host and Alice, so both of them offer to him.
	h.ctl.OnSessionJoined(ctx, "S", bob, []domain.Participant{host, alice})

	links := h.ctl.Links()
	req.Len(links, 2)
	req.Equal(domain.ParticipantID("H"), links[0].Remote.ID)
	req.Equal(domain.ParticipantID("A"), links[1].Remote.ID)
	for _, l := range links {
		req.False(l.Initiator)
		req.Equal(LinkIdle, l.State)
	}
	req.Empty(h.sig.ofType(protocol.TypeOffer))

	h.ctl.OnOffer(ctx, "H", json.RawMessage(`{"type":"offer"}`))
	answers := h.sig.ofType(protocol.TypeAnswer)
	req.Len(answers, 1)
	req.Equal(domain.ParticipantID("H"), answers[0].target)
	req.Equal(LinkAnswering, h.ctl.Links()[0].State)
}

func TestController_HostOffersToNewcomers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness()

	h.ctl.OnSessionJoined(ctx, "S", host, nil)
	req.Empty(h.ctl.Links())

	h.ctl.OnUserJoined(ctx, alice)
	h.ctl.OnUserJoined(ctx, alice)
	offers := h.sig.ofType(protocol.TypeOffer)
	req.Len(offers, 1, "duplicate presence must not renegotiate")
	req.Equal(domain.ParticipantID("A"), offers[0].target)

	links := h.ctl.Links()
	req.Len(links, 1)
	req.True(links[0].Initiator)
	req.Equal(LinkAwaitingAnswer, links[0].State)

	h.ctl.OnAnswer(ctx, "A", json.RawMessage(`{"type":"answer"}`))
	req.Len(h.link("A").answers, 1)

	// A second answer for the same negotiation is stale.
	h.ctl.OnAnswer(ctx, "A", json.RawMessage(`{"type":"answer"}`))
	req.Len(h.link("A").answers, 1)

	h.link("A").onConnected()
	req.Equal(LinkConnected, h.ctl.Links()[0].State)
}

func TestController_CandidateQueues(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness()

	// Local candidates gathered while the offer is being built wait for the offer.
	h.setup = func(l *fakeLink) {
		l.beforeOffer = func() { l.onICE(json.RawMessage(`"early"`)) }
	}
	h.ctl.OnSessionJoined(ctx, "S", host, nil)

	// Remote candidates before the answer wait for it.
	h.ctl.OnUserJoined(ctx, alice)
	h.ctl.OnCandidate("A", json.RawMessage(`"r1"`))
	req.Empty(h.link("A").candidates)

	h.sig.mu.Lock()
	types := make([]string, 0, len(h.sig.sent))
	for _, m := range h.sig.sent {
		types = append(types, m.typ)
	}
	h.sig.mu.Unlock()
	req.Equal([]string{protocol.TypeOffer, protocol.TypeCandidate}, types)

	h.ctl.OnAnswer(ctx, "A", json.RawMessage(`{"type":"answer"}`))
	req.Equal([]json.RawMessage{json.RawMessage(`"r1"`)}, h.link("A").candidates)

	h.ctl.OnCandidate("A", json.RawMessage(`"r2"`))
	req.Len(h.link("A").candidates, 2)

	h.link("A").onICE(json.RawMessage(`"late"`))
	req.Len(h.sig.ofType(protocol.TypeCandidate), 2)

	// Candidates from someone without a link are dropped.
	h.ctl.OnCandidate("ghost", json.RawMessage(`"x"`))
}

func TestController_UserLeftClosesLink(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness()

	h.ctl.OnSessionJoined(ctx, "S", host, []domain.Participant{alice, bob})
	req.Len(h.ctl.Links(), 2)

	h.ctl.OnUserLeft("A")
	req.True(h.link("A").isClosed())
	req.Len(h.ctl.Links(), 1)

	// A late answer from the departed participant is discarded.
	h.ctl.OnAnswer(ctx, "A", json.RawMessage(`{"type":"answer"}`))
	req.Empty(h.link("A").answers)

	// Rejoining creates a fresh link.
	h.ctl.OnUserJoined(ctx, alice)
	req.Len(h.links["A"], 2)
	req.False(h.link("A").isClosed())
}

func TestController_TransportFailureClosesOnlyThatLink(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness()

	h.ctl.OnSessionJoined(ctx, "S", host, []domain.Participant{alice, bob})
	h.link("B").onFailed()

	req.True(h.link("B").isClosed())
	req.False(h.link("A").isClosed())
	links := h.ctl.Links()
	req.Len(links, 1)
	req.Equal(domain.ParticipantID("A"), links[0].Remote.ID)
}

func TestController_LeaveDuringInFlightOffer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness()
	h.setup = func(l *fakeLink) {
		l.beforeOffer = func() { h.ctl.Leave() }
	}

	h.ctl.OnSessionJoined(ctx, "S", host, []domain.Participant{alice})

	req.Empty(h.sig.ofType(protocol.TypeOffer), "offer for a closed link must not be sent")
	req.Empty(h.ctl.Links())
	req.True(h.link("A").isClosed())
	req.Equal(domain.SessionID(""), h.ctl.Room())
}

func TestController_OfferFailureClosesLink(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness()
	h.setup = func(l *fakeLink) { l.offerErr = errors.New("boom") }

	h.ctl.OnSessionJoined(ctx, "S", host, []domain.Participant{alice})
	req.Empty(h.ctl.Links())
	req.True(h.link("A").isClosed())
}

func TestController_UnexpectedOfferIgnored(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness()

	h.ctl.OnSessionJoined(ctx, "S", host, []domain.Participant{alice})
	h.ctl.OnOffer(ctx, "A", json.RawMessage(`{"type":"offer"}`))
	req.Empty(h.sig.ofType(protocol.TypeAnswer))
	req.Equal(LinkAwaitingAnswer, h.ctl.Links()[0].State)
}

func TestController_OfferBeforePresence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness()

	// The host's offer overtakes the presence event that names it.
	h.ctl.OnSessionJoined(ctx, "S", bob, nil)
	h.ctl.OnOffer(ctx, "H", json.RawMessage(`{"type":"offer"}`))
	req.Len(h.sig.ofType(protocol.TypeAnswer), 1)
	links := h.ctl.Links()
	req.Len(links, 1)
	req.False(links[0].Initiator)
	req.Equal(domain.RoleAttendee, links[0].Remote.Role)

	h.ctl.OnUserJoined(ctx, host)
	links = h.ctl.Links()
	req.Len(links, 1, "presence does not open a second link")
	req.Equal(host, links[0].Remote)
	req.False(links[0].Initiator)
	req.Equal(LinkAnswering, links[0].State)
	req.Zero(h.link("H").offers)
}

func TestController_SessionEndedAndSwitch(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness()

	h.ctl.OnSessionJoined(ctx, "S", host, []domain.Participant{alice, bob})
	h.ctl.OnSessionEnded("other")
	req.Len(h.ctl.Links(), 2)

	h.ctl.OnSessionEnded("S")
	req.Empty(h.ctl.Links())
	req.True(h.link("A").isClosed())
	req.True(h.link("B").isClosed())

	// Presence after leaving is ignored.
	h.ctl.OnUserJoined(ctx, alice)
	req.Empty(h.ctl.Links())

	h.ctl.OnSessionJoined(ctx, "S", alice, []domain.Participant{bob})
	h.ctl.OnSessionJoined(ctx, "T", alice, nil)
	req.Empty(h.ctl.Links())
	req.Equal(domain.SessionID("T"), h.ctl.Room())
}
