package rtc

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// opusSilence is one Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const (
	opusClockRate   = 48000
	opusFrame       = 20 * time.Millisecond
	opusFrameTicks  = opusClockRate / 1000 * 20
	opusPayloadType = 111
)

// AudioSource is one local Opus track. A single TrackLocalStaticRTP is bound to every link,
// so each packet written here reaches all peers.
type AudioSource struct {
	Track *webrtc.TrackLocalStaticRTP

	mu        sync.Mutex
	seq       uint16
	timestamp uint32
}

func NewAudioSource(id, streamID string) (*AudioSource, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		id,
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("audio track: %w", err)
	}
	return &AudioSource{
		Track:     track,
		seq:       uint16(rand.N(1 << 16)),
		timestamp: rand.Uint32(),
	}, nil
}

// WriteFrame sends one encoded frame that covers ticks of the 48kHz clock.
func (s *AudioSource) WriteFrame(payload []byte, ticks uint32) error {
	s.mu.Lock()
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
		},
		Payload: payload,
	}
	s.seq++
	s.timestamp += ticks
	s.mu.Unlock()
	return s.Track.WriteRTP(pkt)
}

// RunSilence keeps the track flowing with silent frames until ctx is done.
func (s *AudioSource) RunSilence(ctx context.Context) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.WriteFrame(opusSilence, opusFrameTicks); err != nil {
				log.Debug().Err(err).Str("module", "webrtc").Str("track_id", s.Track.ID()).Msg("write silence")
			}
		}
	}
}
