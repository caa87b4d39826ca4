// Command peer is a headless participant: it joins a session and keeps a media link
// to every other member until the socket closes or the process is interrupted.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Live/internal/adapters/rtc"
	"github.com/dkeye/Live/internal/client"
	"github.com/dkeye/Live/internal/config"
	"github.com/dkeye/Live/internal/domain"
	"github.com/dkeye/Live/internal/mesh"
	"github.com/dkeye/Live/internal/protocol"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	v := config.New()
	flags := pflag.NewFlagSet("peer", pflag.ExitOnError)
	flags.String("url", "ws://localhost:8080/api/ws/signal", "signaling endpoint")
	flags.String("token", "", "bearer token (LIVE_TOKEN)")
	flags.String("room", "", "session to join")
	flags.String("say", "", "chat message to send after joining")
	flags.StringSlice("webrtc.ice_servers", nil, "ICE server URLs")
	flags.Uint16("webrtc.udp_port_min", 0, "lowest local ICE port")
	flags.Uint16("webrtc.udp_port_max", 0, "highest local ICE port")
	flags.Bool("media", true, "publish a silent audio track to every peer")
	flags.String("log_level", "info", "log level")
	_ = flags.Parse(os.Args[1:])
	if err := v.BindPFlags(flags); err != nil {
		log.Fatal().Err(err).Msg("bind flags")
	}
	if lvl, err := zerolog.ParseLevel(v.GetString("log_level")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	room := domain.SessionID(v.GetString("room"))
	if room == "" {
		log.Fatal().Msg("--room is required")
	}

	c, err := client.Dial(ctx, v.GetString("url"), v.GetString("token"))
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}

	opts := rtc.Options{
		Config:     rtc.DefaultWebRTCConfig(v.GetStringSlice("webrtc.ice_servers")),
		UDPPortMin: v.GetUint16("webrtc.udp_port_min"),
		UDPPortMax: v.GetUint16("webrtc.udp_port_max"),
		OnTrack:    countPackets,
	}
	if v.GetBool("media") {
		src, err := rtc.NewAudioSource("audio", "live-peer")
		if err != nil {
			log.Fatal().Err(err).Msg("audio source")
		}
		opts.Tracks = append(opts.Tracks, src.Track)
		go src.RunSilence(ctx)
	}
	factory, err := rtc.NewFactory(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc")
	}
	ctl := mesh.NewController(factory, c)

	say := v.GetString("say")
	hooks := client.Hooks{
		Chat: func(m protocol.ChatBroadcast) {
			log.Info().Str("from", string(m.ParticipantID)).Time("at", m.Timestamp).Msg(m.Text)
		},
		Error: func(m protocol.Error) {
			log.Warn().Str("code", string(m.Code)).Str("request", m.Request).Msg(m.Reason)
			if m.Request == protocol.TypeJoinSession {
				cancel()
			}
		},
		WhoAmI: func(m protocol.WhoAmI) {
			log.Info().Str("participant", string(m.ParticipantID)).Str("role", string(m.Role)).Msg("whoami")
			if say != "" {
				_ = c.Chat(room, say)
			}
		},
		Left: func(protocol.Left) { cancel() },
	}

	if err := c.Join(room); err != nil {
		log.Fatal().Err(err).Msg("join")
	}
	// whoami is answered after the join was processed, so the chat line lands inside the room.
	_ = c.WhoAmI()

	err = c.Run(ctx, ctl, hooks)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("signaling connection lost")
		os.Exit(1)
	}
	log.Info().Msg("peer stopped")
}

// countPackets reads a remote track to the end and reports how much media came through.
func countPackets(remote domain.ParticipantID, track *webrtc.TrackRemote) {
	go func() {
		n := 0
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				log.Info().Str("remote", string(remote)).Str("kind", track.Kind().String()).Int("packets", n).Msg("remote track ended")
				return
			}
			n++
			if n == 1 {
				log.Info().Str("remote", string(remote)).Str("kind", track.Kind().String()).Msg("receiving media")
			}
		}
	}()
}
