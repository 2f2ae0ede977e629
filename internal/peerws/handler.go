// Package peerws carries signaling messages between browsers and the hub
// over websocket.
package peerws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"yuzu/rendezvous/internal/metrics"
	"yuzu/rendezvous/internal/signal"

	ws "nhooyr.io/websocket"
)

const disconnectTimeout = 5 * time.Second

type Options struct {
	// Origins allowed to open a socket. "*" accepts any origin.
	Origins         []string
	MaxMessageBytes int64
	SendQueue       int
}

type Server struct {
	Hub *signal.Hub
	Reg *Registry

	opts           Options
	anyOrigin      bool
	originPatterns []string
	log            logging.LeveledLogger
}

func NewServer(hub *signal.Hub, reg *Registry, opts Options, log logging.LeveledLogger) *Server {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 64 * 1024
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = 256
	}
	s := &Server{Hub: hub, Reg: reg, opts: opts, log: log}
	for _, o := range opts.Origins {
		if o == "*" {
			s.anyOrigin = true
			continue
		}
		s.originPatterns = append(s.originPatterns, originHost(o))
	}
	return s
}

// originHost turns "https://app.example:8443" into the host pattern the
// websocket library matches against.
func originHost(o string) string {
	if !strings.Contains(o, "://") {
		return o
	}
	if u, err := url.Parse(o); err == nil && u.Host != "" {
		return u.Host
	}
	return o
}

func (s *Server) HandlePeerWS(w http.ResponseWriter, r *http.Request) {
	c, err := ws.Accept(w, r, &ws.AcceptOptions{
		Subprotocols:       []string{SubprotocolJSON, SubprotocolMsgpack},
		OriginPatterns:     s.originPatterns,
		InsecureSkipVerify: s.anyOrigin,
	})
	if err != nil {
		s.log.Warnf("ws accept: %v", err)
		return
	}
	c.SetReadLimit(s.opts.MaxMessageBytes)

	conn := newConn(uuid.NewString(), c, s.opts.SendQueue, s.log)
	s.Reg.Add(conn)
	metrics.ConnectionsActive.Inc()
	s.log.Debugf("%s connected (%q)", conn.ID(), conn.subprotocol)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go conn.writePump(ctx)

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if st := ws.CloseStatus(err); st == -1 && !errors.Is(err, context.Canceled) {
				s.log.Debugf("%s read: %v", conn.ID(), err)
			}
			break
		}
		msg, err := decode(typ, data)
		if err != nil {
			metrics.InvalidFrames.Inc()
			s.log.Debugf("%s: %v", conn.ID(), err)
			continue
		}
		s.Hub.HandleMessage(ctx, conn, msg)
	}

	conn.Close(ws.StatusNormalClosure, "")
	dctx, dcancel := context.WithTimeout(context.Background(), disconnectTimeout)
	s.Hub.Disconnect(dctx, conn)
	dcancel()
	s.Reg.Remove(conn.ID())
	metrics.ConnectionsActive.Dec()
	s.log.Debugf("%s disconnected", conn.ID())
}
