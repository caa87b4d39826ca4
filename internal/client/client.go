// Package client is the participant side of the signaling socket. It feeds presence and
// negotiation frames into a mesh.Controller and carries the controller's outgoing signals.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Live/internal/domain"
	"github.com/dkeye/Live/internal/mesh"
	"github.com/dkeye/Live/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("client: connection closed")

// Hooks receive the frames the mesh does not consume. Any of them may be nil.
type Hooks struct {
	Chat   func(protocol.ChatBroadcast)
	Error  func(protocol.Error)
	WhoAmI func(protocol.WhoAmI)
	Left   func(protocol.Left)
}

type Client struct {
	conn      *websocket.Conn
	writeWait time.Duration

	writeMu sync.Mutex
	closed  bool
}

// Dial opens the signaling socket with the token as bearer credential.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	log.Info().Str("module", "client").Str("url", url).Msg("connected")
	return &Client{conn: conn, writeWait: 5 * time.Second}, nil
}

func (c *Client) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Signal implements mesh.Signaler.
func (c *Client) Signal(typ string, target domain.ParticipantID, payload json.RawMessage) error {
	return c.send(protocol.SignalRequest{Type: typ, Target: target, Payload: payload})
}

func (c *Client) Join(room domain.SessionID) error {
	return c.send(protocol.RoomRequest{Type: protocol.TypeJoinSession, RoomID: room})
}

func (c *Client) Leave(room domain.SessionID) error {
	return c.send(protocol.LeaveRequest{Type: protocol.TypeLeaveSession, RoomID: room})
}

func (c *Client) EndSession(room domain.SessionID) error {
	return c.send(protocol.RoomRequest{Type: protocol.TypeEndSession, RoomID: room})
}

func (c *Client) Chat(room domain.SessionID, text string) error {
	return c.send(protocol.ChatRequest{Type: protocol.TypeChat, RoomID: room, Text: text})
}

func (c *Client) WhoAmI() error {
	return c.send(protocol.Envelope{Type: protocol.TypeWhoAmI})
}

func (c *Client) Ping() error {
	return c.send(protocol.Envelope{Type: protocol.TypePing})
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closed = true
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Run dispatches incoming frames until the socket fails or ctx is done.
// Losing the socket closes every media link.
func (c *Client) Run(ctx context.Context, ctl *mesh.Controller, hooks Hooks) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer ctl.Leave()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := c.dispatch(ctx, ctl, hooks, data); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad frame")
		}
	}
}

func (c *Client) dispatch(ctx context.Context, ctl *mesh.Controller, hooks Hooks, data []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	if protocol.IsSignal(env.Type) {
		var m protocol.SignalRelayed
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		switch m.Type {
		case protocol.TypeOffer:
			ctl.OnOffer(ctx, m.From, m.Payload)
		case protocol.TypeAnswer:
			ctl.OnAnswer(ctx, m.From, m.Payload)
		default:
			ctl.OnCandidate(m.From, m.Payload)
		}
		return nil
	}

	switch env.Type {
	case protocol.TypeSessionJoined:
		var m protocol.SessionJoined
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		ctl.OnSessionJoined(ctx, m.RoomID, m.Self, m.Participants)
	case protocol.TypeUserJoined:
		var m protocol.UserJoined
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		ctl.OnUserJoined(ctx, domain.Participant{ID: m.ParticipantID, Role: m.Role, Seat: m.Seat})
	case protocol.TypeUserLeft:
		var m protocol.UserLeft
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		ctl.OnUserLeft(m.ParticipantID)
	case protocol.TypeSessionEnded:
		var m protocol.SessionEnded
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		ctl.OnSessionEnded(m.RoomID)
	case protocol.TypeLeft:
		var m protocol.Left
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		ctl.Leave()
		if hooks.Left != nil {
			hooks.Left(m)
		}
	case protocol.TypeChat:
		var m protocol.ChatBroadcast
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if hooks.Chat != nil {
			hooks.Chat(m)
		}
	case protocol.TypeError:
		var m protocol.Error
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if hooks.Error != nil {
			hooks.Error(m)
		}
	case protocol.TypeWhoAmI:
		var m protocol.WhoAmI
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		if hooks.WhoAmI != nil {
			hooks.WhoAmI(m)
		}
	case protocol.TypePong:
	default:
		log.Debug().Str("module", "client").Str("type", env.Type).Msg("unhandled frame")
	}
	return nil
}
