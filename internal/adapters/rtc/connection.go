package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// WebRTCConnection is a core.MediaLink over a pion PeerConnection. Candidates trickle
// through the signaling relay instead of waiting for gathering to complete.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	remote domain.ParticipantID

	mu          sync.Mutex
	onICE       func(json.RawMessage)
	onConnected func()
	onFailed    func()
	onTrack     func(track *webrtc.TrackRemote)

	connectedOnce sync.Once
	failedOnce    sync.Once
}

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: iceServers,
			},
		},
	}
}

// Options configures every link made by NewFactory.
type Options struct {
	Config webrtc.Configuration
	// UDPPortMin and UDPPortMax bound the ephemeral ICE ports when both are set.
	UDPPortMin uint16
	UDPPortMax uint16
	// Loopback gathers loopback candidates, for peers on the same host.
	Loopback bool
	// Tracks are published on every link.
	Tracks []webrtc.TrackLocal
	// OnTrack receives remote tracks and must read them. Without it they are drained.
	OnTrack func(remote domain.ParticipantID, track *webrtc.TrackRemote)
}

// NewAPI builds the pion API shared by all links: default codecs and interceptors plus ICE settings.
func NewAPI(opts Options) (*webrtc.API, error) {
	media := &webrtc.MediaEngine{}
	if err := media.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(media, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if opts.UDPPortMin > 0 && opts.UDPPortMax >= opts.UDPPortMin {
		if err := se.SetEphemeralUDPPortRange(opts.UDPPortMin, opts.UDPPortMax); err != nil {
			return nil, fmt.Errorf("udp port range %d-%d: %w", opts.UDPPortMin, opts.UDPPortMax, err)
		}
	}
	if opts.Loopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(media),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

// NewFactory returns a MediaLinkFactory creating one PeerConnection per remote participant,
// each publishing opts.Tracks.
func NewFactory(opts Options) (core.MediaLinkFactory, error) {
	api, err := NewAPI(opts)
	if err != nil {
		return nil, err
	}
	return func(remote domain.ParticipantID) (core.MediaLink, error) {
		c, err := NewWebRTCConnection(api, opts.Config, remote)
		if err != nil {
			return nil, err
		}
		if opts.OnTrack != nil {
			c.OnTrack(func(track *webrtc.TrackRemote) { opts.OnTrack(remote, track) })
		}
		for _, track := range opts.Tracks {
			if _, err := c.AddLocalTrack(track); err != nil {
				_ = c.Close()
				return nil, fmt.Errorf("add local track %s: %w", track.ID(), err)
			}
		}
		return c, nil
	}, nil
}

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, remote domain.ParticipantID) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{pc: pc, remote: remote}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			c.connectedOnce.Do(func() { c.fire(&c.onConnected) })
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.failedOnce.Do(func() { c.fire(&c.onFailed) })
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn == nil {
			return
		}
		b, err := json.Marshal(cand.ToJSON())
		if err != nil {
			log.Error().Err(err).Str("module", "webrtc").Msg("marshal candidate")
			return
		}
		fn(b)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("remote", string(remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(track)
			return
		}
		go drain(track)
	})

	return c, nil
}

func (c *WebRTCConnection) fire(slot *func()) {
	c.mu.Lock()
	fn := *slot
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// drain keeps the receive buffers empty when nobody consumes the track.
func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

// CreateOffer also asks to receive audio and video for kinds we do not publish.
func (c *WebRTCConnection) CreateOffer(_ context.Context) (json.RawMessage, error) {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if c.hasTransceiver(kind) {
			continue
		}
		if _, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return json.Marshal(offer)
}

func (c *WebRTCConnection) AcceptOffer(_ context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &offer); err != nil {
		return nil, fmt.Errorf("decode offer: %w", err)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("expected offer, got %s", offer.Type)
	}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return json.Marshal(answer)
}

func (c *WebRTCConnection) AcceptAnswer(_ context.Context, raw json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("expected answer, got %s", answer.Type)
	}
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCConnection) AddICECandidate(raw json.RawMessage) error {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &ci); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) OnICECandidate(fn func(json.RawMessage)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnConnected(fn func()) {
	c.mu.Lock()
	c.onConnected = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnFailed(fn func()) {
	c.mu.Lock()
	c.onFailed = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks. Without one, tracks are drained.
func (c *WebRTCConnection) OnTrack(fn func(track *webrtc.TrackRemote)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) hasTransceiver(kind webrtc.RTPCodecType) bool {
	return lo.ContainsBy(c.pc.GetTransceivers(), func(t *webrtc.RTPTransceiver) bool {
		return t.Kind() == kind
	})
}

// AddLocalTrack publishes a local track, e.g. a microphone source, as a sendrecv transceiver.
func (c *WebRTCConnection) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	// RTCP has to be read for the interceptors to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return sender, nil
}

func (c *WebRTCConnection) Close() error {
	// Local close must not look like a transport failure to the owner.
	c.failedOnce.Do(func() {})
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("remote", string(c.remote)).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Msg("closed")
	return nil
}
