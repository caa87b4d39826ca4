package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/dkeye/Live/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var tick <-chan time.Time
	if ctl.Cfg.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.Cfg.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.writeWait())); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.writeWait())); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) writeWait() time.Duration {
	if ctl.Cfg.WriteWait > 0 {
		return ctl.Cfg.WriteWait
	}
	return 5 * time.Second
}

func (ctl *SignalWSController) readPump(ctx context.Context, cid core.ConnID, c *WsSignalConn) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Str("conn", string(cid)).Interface("panic", r).Msg("readPump recovered")
		}
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		ctl.Orch.Registry.Cancel(cid)
		ctl.Orch.OnDisconnect(cid)
		c.Close()
	}()

	if ctl.Cfg.PongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Cfg.PongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(ctl.Cfg.PongWait))
		})
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, cid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cid core.ConnID, c *WsSignalConn, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("bad json")
		ctl.sendError(c, "", domain.Rejected("malformed message"))
		return
	}

	if protocol.IsSignal(env.Type) {
		ctl.handleRelay(cid, c, env.Type, data)
		return
	}

	switch env.Type {
	case protocol.TypeJoinSession:
		ctl.handleJoin(ctx, cid, c, data)
	case protocol.TypeLeaveSession:
		ctl.handleLeave(cid, c, data)
	case protocol.TypeEndSession:
		ctl.handleEnd(cid, c, data)
	case protocol.TypeChat:
		ctl.handleChat(ctx, cid, c, data)
	case protocol.TypeWhoAmI:
		ctl.handleWhoAmI(cid, c)
	case protocol.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, env.Type, domain.Rejected("unknown message type"))
	}
}

// decode unmarshals and validates a request; failures are reported as Rejected.
func (ctl *SignalWSController) decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return domain.Rejected("bad payload")
	}
	if err := ctl.validate.Struct(v); err != nil {
		return domain.Rejected(fmt.Sprintf("invalid payload: %v", err))
	}
	return nil
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, request string, err error) {
	_ = c.TrySend(protocol.ErrorFrame(request, err))
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
