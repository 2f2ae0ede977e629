// Package client is a signaling client for the rendezvous server. It speaks
// the JSON subprotocol and is used by the end-to-end probe and by tests.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"yuzu/rendezvous/internal/peerws"
	"yuzu/rendezvous/internal/signal"
	"yuzu/rendezvous/internal/types"
)

const writeWait = 10 * time.Second

// ErrClosed is returned for calls made after the connection went away.
var ErrClosed = errors.New("client: connection closed")

// AckError is a negative acknowledgement from the server.
type AckError struct {
	Code signal.Code
}

func (e *AckError) Error() string { return "client: server replied " + string(e.Code) }

// Event is a server push that is not an acknowledgement.
type Event struct {
	Name string
	Data map[string]any
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ack   uint64          `json:"ack"`
}

type Client struct {
	conn *websocket.Conn

	// Events receives pushes in arrival order and is closed when the
	// connection ends. Pushes are buffered without bound, so acks are
	// delivered even while nobody reads Events.
	Events chan Event

	wmu sync.Mutex

	mu      sync.Mutex
	nextAck uint64
	pending map[uint64]chan signal.Ack
	queue   []Event
	err     error
	done    chan struct{}

	wake     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

// Dial connects to a ws:// or wss:// URL such as ws://localhost:3001/ws.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	d := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{peerws.SubprotocolJSON},
	}
	conn, _, err := d.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		Events:  make(chan Event, 16),
		pending: make(map[uint64]chan signal.Ack),
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
	go c.readLoop()
	go c.forward()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		var in inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			c.fail(err)
			return
		}
		if in.Event == signal.EventAck {
			var a signal.Ack
			_ = json.Unmarshal(in.Data, &a)
			c.mu.Lock()
			ch := c.pending[in.Ack]
			delete(c.pending, in.Ack)
			c.mu.Unlock()
			if ch != nil {
				ch <- a
			}
			continue
		}
		ev := Event{Name: in.Event}
		if len(in.Data) > 0 {
			_ = json.Unmarshal(in.Data, &ev.Data)
		}
		c.mu.Lock()
		c.queue = append(c.queue, ev)
		c.mu.Unlock()
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// forward moves queued pushes to Events. It closes Events once the
// connection has failed and the queue is drained, or on Disconnect.
func (c *Client) forward() {
	defer close(c.Events)
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && c.err == nil {
			c.mu.Unlock()
			select {
			case <-c.wake:
			case <-c.done:
			case <-c.quit:
				return
			}
			c.mu.Lock()
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		ev := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		select {
		case c.Events <- ev:
		case <-c.quit:
			return
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	close(c.done)
}

func (c *Client) write(m signal.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(m); err != nil {
		return fmt.Errorf("client: write %s: %w", m.Event, err)
	}
	return nil
}

// call sends event and waits for its acknowledgement.
func (c *Client) call(ctx context.Context, event string, data map[string]any) (signal.Ack, error) {
	ch := make(chan signal.Ack, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return signal.Ack{}, ErrClosed
	}
	c.nextAck++
	id := c.nextAck
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(signal.Message{Event: event, Data: data, Ack: id}); err != nil {
		c.forget(id)
		return signal.Ack{}, err
	}
	select {
	case a := <-ch:
		if !a.OK {
			return a, &AckError{Code: a.Error}
		}
		return a, nil
	case <-c.done:
		return signal.Ack{}, ErrClosed
	case <-ctx.Done():
		c.forget(id)
		return signal.Ack{}, ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) CreateSession(ctx context.Context, pin string) (string, error) {
	a, err := c.call(ctx, signal.EventCreateSession, map[string]any{"pin": pin})
	if err != nil {
		return "", err
	}
	return a.SessionID, nil
}

func (c *Client) Join(ctx context.Context, sessionID, pin string, role types.Role) (types.Status, error) {
	a, err := c.call(ctx, signal.EventJoin, map[string]any{
		"sessionId": sessionID,
		"pin":       pin,
		"role":      string(role),
	})
	if err != nil {
		return "", err
	}
	return a.Status, nil
}

func (c *Client) Offer(sessionID, sdp string) error {
	return c.write(signal.Message{Event: signal.EventOffer, Data: map[string]any{"sessionId": sessionID, "sdp": sdp}})
}

func (c *Client) Answer(sessionID, sdp string) error {
	return c.write(signal.Message{Event: signal.EventAnswer, Data: map[string]any{"sessionId": sessionID, "sdp": sdp}})
}

// ICE relays one trickled candidate. candidate is passed through untouched.
func (c *Client) ICE(sessionID string, candidate any) error {
	return c.write(signal.Message{Event: signal.EventICE, Data: map[string]any{"sessionId": sessionID, "candidate": candidate}})
}

func (c *Client) State(sessionID, state string) error {
	return c.write(signal.Message{Event: signal.EventState, Data: map[string]any{
		"sessionId": sessionID,
		"state":     state,
		"ts":        time.Now().UnixMilli(),
	}})
}

// Close ends the session for both peers. The connection stays open.
func (c *Client) Close(sessionID string) error {
	return c.write(signal.Message{Event: signal.EventClose, Data: map[string]any{"sessionId": sessionID}})
}

// Disconnect closes the websocket.
func (c *Client) Disconnect() error {
	c.quitOnce.Do(func() { close(c.quit) })
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}

// Next waits for the next push.
func (c *Client) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-c.Events:
		if !ok {
			return Event{}, ErrClosed
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}
