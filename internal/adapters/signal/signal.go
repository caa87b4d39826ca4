package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/dkeye/Live/internal/app/orch"
	"github.com/dkeye/Live/internal/config"
	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// IdentityKey is the gin context key under which the resolved domain.Identity is stored.
const IdentityKey = "identity"

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Cfg     *config.Config
	Limiter *RoomRateLimiter

	validate *validator.Validate
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	ctl := &SignalWSController{
		Orch:     o,
		Cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if cfg.Chat.RateLimit > 0 {
		ctl.Limiter = NewRoomRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateInterval)
	}
	return ctl
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades an already authenticated request and starts the connection pumps.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	v, _ := c.Get(IdentityKey)
	who, ok := v.(domain.Identity)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": domain.CodeUnauthenticated})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	bufSize := ctl.Cfg.SendBuffer
	if bufSize <= 0 {
		bufSize = 32
	}
	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, bufSize),
	}

	cid := core.ConnID(uuid.NewString())
	sess := core.NewMemberSession(cid, who, conn)
	ctx, cancel := context.WithCancel(ctx)
	// ReadMessage does not observe ctx, so a kick also closes the socket.
	ctl.Orch.Registry.Bind(sess, func() {
		cancel()
		conn.Close()
	})
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("participant", string(who.ID)).
		Str("role", string(who.Role)).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cid, conn)
}
