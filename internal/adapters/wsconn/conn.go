// Package wsconn adapts a gorilla WebSocket into the core connection
// contract shared by both relay surfaces.
package wsconn

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/conduit-app/relay/internal/core"
)

const (
	writeWait         = 5 * time.Second
	defaultPingPeriod = 54 * time.Second
)

// Socket is an indirection over *websocket.Conn to ease testing.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one live WebSocket endpoint. Outbound frames go through a buffered
// queue drained by the write pump, so a slow receiver backs up only its own
// queue and TrySend reports backpressure instead of blocking the caller.
type Conn struct {
	sock Socket
	send chan core.Frame

	// PingPeriod overrides the keepalive interval; set it before StartWriteLoop.
	PingPeriod time.Duration

	mu     sync.RWMutex
	closed bool
}

func New(sock Socket, sendBuf int) *Conn {
	return &Conn{
		sock: sock,
		send: make(chan core.Frame, sendBuf),
	}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.sock.Close()
	c.mu.Unlock()
}

func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.sock.ReadMessage()
	return data, err
}

// StartWriteLoop pumps queued frames to the network until the context is
// canceled or the queue closes. The loop owns the socket's write side and
// also keeps the peer alive with periodic pings.
func (c *Conn) StartWriteLoop(ctx context.Context) {
	period := c.PingPeriod
	if period <= 0 {
		period = defaultPingPeriod
	}
	go func() {
		ticker := time.NewTicker(period)
		defer func() {
			ticker.Stop()
			c.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-c.send:
				if !ok {
					return
				}
				if err := c.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					log.Error().Err(err).Str("module", "adapters.wsconn").Msg("set write deadline")
					return
				}
				if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
					log.Debug().Err(err).Str("module", "adapters.wsconn").Msg("write error")
					return
				}
			case <-ticker.C:
				if err := c.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					return
				}
				if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}
