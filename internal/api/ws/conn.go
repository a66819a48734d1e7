package ws

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/notchkit/internal/domain/host"
	"github.com/GriffinCanCode/notchkit/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/notchkit/internal/shared/id"
	"github.com/GriffinCanCode/notchkit/pkg/protocol"
)

var (
	errConnClosed = errors.New("connection closed")
	errQueueFull  = errors.New("send queue full")
)

// conn is one extension connection. It implements host.Handle.
type conn struct {
	id      id.ConnectionID
	ws      *websocket.Conn
	opts    Options
	logger  *zap.Logger
	limiter *rate.Limiter
	breaker *resilience.Breaker

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	alive     atomic.Bool
}

var _ host.Handle = (*conn)(nil)

func newConn(ws *websocket.Conn, opts Options, logger *zap.Logger) *conn {
	c := &conn{
		id:     id.NewConnectionID(),
		ws:     ws,
		opts:   opts,
		send:   make(chan []byte, opts.SendQueue),
		closed: make(chan struct{}),
	}
	c.logger = logger.With(zap.String("conn_id", c.id.String()))
	if opts.RateLimit.Enabled {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit.RequestsPerSecond), opts.RateLimit.Burst)
	}
	c.breaker = resilience.New("notify-"+c.id.String(), resilience.Settings{
		Timeout: 10 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			c.logger.Warn("notification breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	c.alive.Store(true)
	return c
}

// ID implements host.Handle.
func (c *conn) ID() id.ConnectionID { return c.id }

// Alive implements host.Handle.
func (c *conn) Alive() bool { return c.alive.Load() }

// Notify implements host.Handle. It never blocks.
func (c *conn) Notify(n protocol.Notification) error {
	return c.breaker.Do(func() error {
		data, err := protocol.Marshal(n)
		if err != nil {
			return fmt.Errorf("encode notification: %w", err)
		}
		return c.enqueue(data)
	})
}

// reply is the deliver callback handed to host.Instance.Serve.
func (c *conn) reply(r protocol.Reply) {
	data, err := protocol.Marshal(r)
	if err != nil {
		c.logger.Error("failed to encode reply", zap.Uint64("seq", r.Seq), zap.Error(err))
		return
	}
	if err := c.enqueue(data); err != nil {
		c.logger.Warn("reply dropped", zap.Uint64("seq", r.Seq), zap.Error(err))
	}
}

func (c *conn) enqueue(data []byte) error {
	if !c.alive.Load() {
		return errConnClosed
	}
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		return errQueueFull
	}
}

// readPump feeds requests to inst until the connection fails.
func (c *conn) readPump(inst *host.Instance) {
	code := websocket.CloseNormalClosure
	defer func() {
		if r := recover(); r != nil {
			code = websocket.CloseInternalServerErr
			c.logger.Error("read pump panicked",
				zap.Error(fmt.Errorf("panic: %v", r)),
				zap.ByteString("stack", debug.Stack()))
		}
		c.close(code, "")
	}()

	c.ws.SetReadLimit(c.opts.ReadLimit)
	if c.opts.PingInterval > 0 {
		pongWait := c.opts.PingInterval * 2
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("extension connection lost", zap.Error(err))
			}
			return
		}

		req, err := protocol.DecodeRequest(data)
		if err != nil {
			c.reply(protocol.Failure(req.Seq, err))
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.reply(protocol.Failure(req.Seq, protocol.ErrRateLimited))
			continue
		}
		if err := inst.Serve(req, c.reply); err != nil {
			c.reply(protocol.Failure(req.Seq, protocol.ErrUnavailable))
		}
	}
}

// writePump drains the send queue and keeps the connection alive.
func (c *conn) writePump() {
	var ping <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.closed:
			return
		}
	}
}

// close tears the connection down once. code is sent as a close frame
// unless it is CloseAbnormalClosure, which has no wire form.
func (c *conn) close(code int, text string) {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		close(c.closed)
		if code != websocket.CloseAbnormalClosure {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, text),
				time.Now().Add(c.opts.WriteTimeout))
		}
		c.ws.Close()
	})
}
