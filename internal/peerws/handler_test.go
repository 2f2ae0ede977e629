package peerws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/vmihailenco/msgpack/v5"
	"yuzu/rendezvous/internal/logging"
	"yuzu/rendezvous/internal/metrics"
	"yuzu/rendezvous/internal/signal"
	"yuzu/rendezvous/internal/store"

	ws "nhooyr.io/websocket"
)

func newTestServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()
	log := logging.Discard()
	hub := signal.NewHub(store.NewMemory(time.Hour), log.NewLogger("hub"))
	reg := NewRegistry()
	s := NewServer(hub, reg, Options{Origins: []string{"*"}, MaxMessageBytes: 4096}, log.NewLogger("peerws"))
	srv := httptest.NewServer(http.HandlerFunc(s.HandlePeerWS))
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server, subprotocols ...string) *ws.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := ws.Dial(ctx, url, &ws.DialOptions{Subprotocols: subprotocols})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(ws.StatusNormalClosure, "") })
	return c
}

type frame struct {
	Event string         `json:"event" msgpack:"event"`
	Data  map[string]any `json:"data" msgpack:"data"`
	Ack   uint64         `json:"ack" msgpack:"ack"`
}

func writeJSON(t *testing.T, c *ws.Conn, v any) {
	t.Helper()
	b, _ := json.Marshal(v)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(ctx, ws.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readJSON(t *testing.T, c *ws.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, b, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != ws.MessageText {
		t.Fatalf("expected text frame, got %v", typ)
	}
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	return f
}

func TestJSONCreateAndJoin(t *testing.T) {
	srv, reg := newTestServer(t)
	c := dial(t, srv)

	writeJSON(t, c, map[string]any{"event": "create-session", "ack": 1, "data": map[string]any{"pin": "1234"}})
	f := readJSON(t, c)
	if f.Event != signal.EventAck || f.Ack != 1 || f.Data["ok"] != true {
		t.Fatalf("create ack %+v", f)
	}
	sid, _ := f.Data["sessionId"].(string)
	if sid == "" {
		t.Fatalf("missing sessionId in %+v", f)
	}

	writeJSON(t, c, map[string]any{"event": "join", "ack": 2, "data": map[string]any{"sessionId": sid, "pin": "1234", "role": "emitter"}})
	f = readJSON(t, c)
	if f.Ack != 2 || f.Data["status"] != "waiting" {
		t.Fatalf("join ack %+v", f)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry has %d conns", reg.Len())
	}
}

func TestMsgpackSubprotocol(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dial(t, srv, SubprotocolMsgpack)
	if c.Subprotocol() != SubprotocolMsgpack {
		t.Fatalf("negotiated %q", c.Subprotocol())
	}

	b, _ := msgpack.Marshal(map[string]any{"event": "create-session", "ack": 7, "data": map[string]any{"pin": 42}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(ctx, ws.MessageBinary, b); err != nil {
		t.Fatalf("write: %v", err)
	}
	typ, out, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != ws.MessageBinary {
		t.Fatalf("expected binary reply, got %v", typ)
	}
	var f frame
	if err := msgpack.Unmarshal(out, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Ack != 7 || f.Data["ok"] != true {
		t.Fatalf("ack %+v", f)
	}
}

func TestInvalidFrameKeepsConnection(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dial(t, srv)

	before := testutil.ToFloat64(metrics.InvalidFrames)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(ctx, ws.MessageText, []byte("{{{")); err != nil {
		t.Fatalf("write: %v", err)
	}
	writeJSON(t, c, map[string]any{"event": "create-session", "ack": 1, "data": map[string]any{"pin": "1"}})
	if f := readJSON(t, c); f.Ack != 1 {
		t.Fatalf("connection unusable after bad frame: %+v", f)
	}
	if d := testutil.ToFloat64(metrics.InvalidFrames) - before; d != 1 {
		t.Fatalf("invalid frame counter moved by %v", d)
	}
}

func TestDisconnectNotifiesPeer(t *testing.T) {
	srv, reg := newTestServer(t)
	em, rx := dial(t, srv), dial(t, srv)

	writeJSON(t, em, map[string]any{"event": "create-session", "ack": 1, "data": map[string]any{"pin": "1"}})
	sid := readJSON(t, em).Data["sessionId"].(string)
	writeJSON(t, em, map[string]any{"event": "join", "ack": 2, "data": map[string]any{"sessionId": sid, "pin": "1", "role": "emitter"}})
	readJSON(t, em)
	writeJSON(t, rx, map[string]any{"event": "join", "ack": 1, "data": map[string]any{"sessionId": sid, "pin": "1", "role": "receiver"}})
	if f := readJSON(t, rx); f.Data["status"] != "connected" {
		t.Fatalf("receiver ack %+v", f)
	}
	if f := readJSON(t, em); f.Event != signal.EventPeerJoined || f.Data["role"] != "receiver" {
		t.Fatalf("emitter expected peer-joined, got %+v", f)
	}

	_ = rx.Close(ws.StatusNormalClosure, "bye")
	if f := readJSON(t, em); f.Event != signal.EventClose {
		t.Fatalf("emitter expected close, got %+v", f)
	}

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry still has %d conns", reg.Len())
	}
}

func TestCloseAllSendsGoingAway(t *testing.T) {
	srv, reg := newTestServer(t)
	c := dial(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	reg.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	if got := ws.CloseStatus(err); got != ws.StatusGoingAway {
		t.Fatalf("close status = %v (err %v)", got, err)
	}
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	big := `{"event":"offer","data":{"sdp":"` + strings.Repeat("x", 8192) + `"}}`
	_ = c.Write(ctx, ws.MessageText, []byte(big))
	_, _, err := c.Read(ctx)
	if got := ws.CloseStatus(err); got != ws.StatusMessageTooBig {
		t.Fatalf("close status = %v (err %v)", got, err)
	}
}
