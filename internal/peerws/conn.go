package peerws

import (
	"context"
	"sync"
	"time"

	"github.com/pion/logging"
	"yuzu/rendezvous/internal/signal"

	ws "nhooyr.io/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Conn is one client connection. It satisfies signal.Peer; Send never
// blocks and outbound frames are written by a single goroutine.
type Conn struct {
	id          string
	ws          *ws.Conn
	subprotocol string
	log         logging.LeveledLogger

	send chan signal.Message
	done chan struct{}
	once sync.Once
}

func newConn(id string, c *ws.Conn, queue int, log logging.LeveledLogger) *Conn {
	return &Conn{
		id:          id,
		ws:          c,
		subprotocol: c.Subprotocol(),
		log:         log,
		send:        make(chan signal.Message, queue),
		done:        make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues m without blocking.
func (c *Conn) Send(m signal.Message) error {
	select {
	case <-c.done:
		return signal.ErrPeerGone
	default:
	}
	select {
	case c.send <- m:
		return nil
	default:
		return signal.ErrQueueFull
	}
}

func (c *Conn) stop() { c.once.Do(func() { close(c.done) }) }

// Close stops the writer and closes the socket with code.
func (c *Conn) Close(code ws.StatusCode, reason string) {
	c.stop()
	_ = c.ws.Close(code, reason)
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case m := <-c.send:
			typ, b, err := encode(c.subprotocol, m)
			if err != nil {
				c.log.Errorf("%s: encode %s: %v", c.id, m.Event, err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.ws.Write(wctx, typ, b)
			cancel()
			if err != nil {
				c.log.Debugf("%s: write: %v", c.id, err)
				c.Close(ws.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				c.log.Debugf("%s: ping: %v", c.id, err)
				c.Close(ws.StatusPolicyViolation, "keepalive timeout")
				return
			}
		}
	}
}
