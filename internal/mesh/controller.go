package mesh

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/dkeye/Live/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Signaler delivers negotiation payloads to one remote participant through the relay.
type Signaler interface {
	Signal(typ string, target domain.ParticipantID, payload json.RawMessage) error
}

// Controller owns the link table of the local participant. Presence and signaling events
// are expected from a single dispatch goroutine; media callbacks may arrive from any goroutine.
type Controller struct {
	factory  core.MediaLinkFactory
	signaler Signaler

	mu    sync.Mutex
	room  domain.SessionID
	self  domain.Participant
	links map[domain.ParticipantID]*peerLink
}

func NewController(factory core.MediaLinkFactory, signaler Signaler) *Controller {
	return &Controller{
		factory:  factory,
		signaler: signaler,
		links:    make(map[domain.ParticipantID]*peerLink),
	}
}

func (c *Controller) Room() domain.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Controller) Self() domain.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// Links returns the current links ordered by remote seat.
func (c *Controller) Links() []LinkInfo {
	c.mu.Lock()
	out := lo.MapToSlice(c.links, func(_ domain.ParticipantID, l *peerLink) LinkInfo {
		return LinkInfo{Remote: l.remote, State: l.state, Initiator: l.initiator}
	})
	c.mu.Unlock()
	slices.SortFunc(out, func(a, b LinkInfo) int { return cmp.Compare(a.Remote.Seat, b.Remote.Seat) })
	return out
}

// OnSessionJoined resets the table for a new room and opens a link to every member already present.
func (c *Controller) OnSessionJoined(ctx context.Context, room domain.SessionID, self domain.Participant, others []domain.Participant) {
	c.mu.Lock()
	switching := c.room != "" && c.room != room
	c.mu.Unlock()
	if switching {
		c.Leave()
	}

	c.mu.Lock()
	c.room = room
	c.self = self
	c.mu.Unlock()
	log.Info().Str("module", "mesh").Str("room", string(room)).Str("self", string(self.ID)).
		Int("present", len(others)).Msg("session joined")

	for _, p := range others {
		c.observe(ctx, p)
	}
}

func (c *Controller) OnUserJoined(ctx context.Context, p domain.Participant) {
	c.observe(ctx, p)
}

func (c *Controller) OnUserLeft(id domain.ParticipantID) {
	c.closeLink(id, "user left")
}

// OnSessionEnded and Leave close every link in one step.
func (c *Controller) OnSessionEnded(room domain.SessionID) {
	if c.Room() == room {
		c.Leave()
	}
}

func (c *Controller) Leave() {
	c.mu.Lock()
	links := c.links
	c.links = make(map[domain.ParticipantID]*peerLink)
	room := c.room
	c.room = ""
	for _, l := range links {
		l.state = LinkClosed
	}
	c.mu.Unlock()

	for _, l := range links {
		_ = l.media.Close()
	}
	if room != "" {
		log.Info().Str("module", "mesh").Str("room", string(room)).Int("closed", len(links)).Msg("left session")
	}
}

// observe creates the link for a newly visible participant. For a known one it only refreshes role and seat.
func (c *Controller) observe(ctx context.Context, p domain.Participant) {
	c.mu.Lock()
	if c.room == "" || p.ID == c.self.ID {
		c.mu.Unlock()
		return
	}
	if l, ok := c.links[p.ID]; ok {
		// A link opened by an early offer learns the real role and seat here.
		l.remote = p
		c.mu.Unlock()
		return
	}
	self := c.self
	c.mu.Unlock()

	l, err := c.newLink(p, ShouldOffer(self, p))
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(p.ID)).Msg("create media link")
		return
	}
	if l.initiator {
		c.offer(ctx, l)
	}
}

func (c *Controller) newLink(p domain.Participant, initiator bool) (*peerLink, error) {
	media, err := c.factory(p.ID)
	if err != nil {
		return nil, err
	}
	l := &peerLink{id: p.ID, remote: p, state: LinkIdle, initiator: initiator, media: media}

	c.mu.Lock()
	if existing, ok := c.links[p.ID]; ok {
		c.mu.Unlock()
		_ = media.Close()
		return existing, nil
	}
	c.links[p.ID] = l
	c.mu.Unlock()

	media.OnICECandidate(func(cand json.RawMessage) { c.localCandidate(l, cand) })
	media.OnConnected(func() {
		c.mu.Lock()
		if c.links[p.ID] == l && l.state != LinkClosed {
			l.state = LinkConnected
		}
		c.mu.Unlock()
		log.Info().Str("module", "mesh").Str("remote", string(p.ID)).Msg("link connected")
	})
	media.OnFailed(func() { c.closeLinkIf(l, "transport failed") })
	return l, nil
}

// liveLocked reports whether l is still the table entry for its remote and not closed.
func (c *Controller) liveLocked(l *peerLink) bool {
	return c.links[l.id] == l && l.state != LinkClosed
}

func (c *Controller) offer(ctx context.Context, l *peerLink) {
	c.mu.Lock()
	if !c.liveLocked(l) || l.state != LinkIdle {
		c.mu.Unlock()
		return
	}
	l.state = LinkOffering
	c.mu.Unlock()

	sdp, err := l.media.CreateOffer(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(l.id)).Msg("create offer")
		c.closeLinkIf(l, "offer failed")
		return
	}

	c.mu.Lock()
	if !c.liveLocked(l) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.signaler.Signal(protocol.TypeOffer, l.id, sdp); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("remote", string(l.id)).Msg("send offer")
		c.closeLinkIf(l, "offer not delivered")
		return
	}

	c.mu.Lock()
	if c.liveLocked(l) {
		l.state = LinkAwaitingAnswer
	}
	c.mu.Unlock()
	c.flushLocal(l)
}

func (c *Controller) OnOffer(ctx context.Context, from domain.ParticipantID, sdp json.RawMessage) {
	c.mu.Lock()
	if c.room == "" {
		c.mu.Unlock()
		return
	}
	l, ok := c.links[from]
	c.mu.Unlock()

	if !ok {
		// An offer can only come from someone in the room; seat it as unknown until presence catches up.
		var err error
		l, err = c.newLink(domain.Participant{ID: from, Role: domain.RoleAttendee}, false)
		if err != nil {
			log.Error().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("create media link")
			return
		}
	}

	c.mu.Lock()
	if !c.liveLocked(l) {
		c.mu.Unlock()
		return
	}
	if l.initiator || l.state != LinkIdle {
		state := l.state
		c.mu.Unlock()
		log.Warn().Str("module", "mesh").Str("remote", string(from)).Str("state", state.String()).Msg("unexpected offer ignored")
		return
	}
	l.state = LinkAnswering
	c.mu.Unlock()

	answer, err := l.media.AcceptOffer(ctx, sdp)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("accept offer")
		c.closeLinkIf(l, "offer rejected")
		return
	}
	if !c.remoteApplied(l) {
		return
	}
	if err := c.signaler.Signal(protocol.TypeAnswer, from, answer); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("send answer")
		c.closeLinkIf(l, "answer not delivered")
		return
	}
	c.flushLocal(l)
}

func (c *Controller) OnAnswer(ctx context.Context, from domain.ParticipantID, sdp json.RawMessage) {
	c.mu.Lock()
	l, ok := c.links[from]
	if !ok || l.state != LinkAwaitingAnswer || l.remoteSet {
		c.mu.Unlock()
		log.Debug().Str("module", "mesh").Str("remote", string(from)).Msg("stale answer discarded")
		return
	}
	c.mu.Unlock()

	if err := l.media.AcceptAnswer(ctx, sdp); err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("accept answer")
		c.closeLinkIf(l, "answer rejected")
		return
	}
	c.remoteApplied(l)
}

func (c *Controller) OnCandidate(from domain.ParticipantID, cand json.RawMessage) {
	c.mu.Lock()
	l, ok := c.links[from]
	if !ok || l.state == LinkClosed {
		c.mu.Unlock()
		return
	}
	if !l.remoteSet {
		l.pendingRemote = append(l.pendingRemote, cand)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := l.media.AddICECandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("remote", string(from)).Msg("add candidate")
	}
}

// remoteApplied marks the remote description as set and applies queued candidates.
// It reports false when the link went away meanwhile.
func (c *Controller) remoteApplied(l *peerLink) bool {
	c.mu.Lock()
	if !c.liveLocked(l) {
		c.mu.Unlock()
		return false
	}
	l.remoteSet = true
	pending := l.pendingRemote
	l.pendingRemote = nil
	c.mu.Unlock()

	for _, cand := range pending {
		if err := l.media.AddICECandidate(cand); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("remote", string(l.id)).Msg("add queued candidate")
		}
	}
	return true
}

func (c *Controller) localCandidate(l *peerLink, cand json.RawMessage) {
	c.mu.Lock()
	if !c.liveLocked(l) {
		c.mu.Unlock()
		return
	}
	if !l.localSent {
		l.pendingLocal = append(l.pendingLocal, cand)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.sendCandidate(l, cand)
}

// flushLocal releases candidates gathered before our description went out.
func (c *Controller) flushLocal(l *peerLink) {
	c.mu.Lock()
	if !c.liveLocked(l) {
		c.mu.Unlock()
		return
	}
	l.localSent = true
	pending := l.pendingLocal
	l.pendingLocal = nil
	c.mu.Unlock()

	for _, cand := range pending {
		c.sendCandidate(l, cand)
	}
}

func (c *Controller) sendCandidate(l *peerLink, cand json.RawMessage) {
	if err := c.signaler.Signal(protocol.TypeCandidate, l.id, cand); err != nil {
		log.Debug().Err(err).Str("module", "mesh").Str("remote", string(l.id)).Msg("send candidate")
	}
}

func (c *Controller) closeLink(id domain.ParticipantID, reason string) {
	c.mu.Lock()
	l, ok := c.links[id]
	c.mu.Unlock()
	if ok {
		c.closeLinkIf(l, reason)
	}
}

// closeLinkIf closes l only if it is still the table entry, so a replacement link survives.
func (c *Controller) closeLinkIf(l *peerLink, reason string) {
	c.mu.Lock()
	if c.links[l.id] != l {
		c.mu.Unlock()
		return
	}
	delete(c.links, l.id)
	l.state = LinkClosed
	c.mu.Unlock()

	_ = l.media.Close()
	log.Info().Str("module", "mesh").Str("remote", string(l.id)).Str("reason", reason).Msg("link closed")
}
