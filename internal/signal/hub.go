// Package signal implements session pairing and signaling relay between the
// two peers of a session.
package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/logging"
	"yuzu/rendezvous/internal/metrics"
	"yuzu/rendezvous/internal/store"
	"yuzu/rendezvous/internal/types"
)

// binding records which session and role a connection holds.
type binding struct {
	sessionID string
	role      types.Role
}

// scope is the set of connections joined to one session, the broadcast
// domain for its signaling messages.
type scope struct {
	members   map[string]Peer
	expiresAt time.Time
}

// Hub owns the relay scopes and the connection side table. Every mutation
// runs under one mutex, so events are handled one at a time, and store calls
// made from the hub see a consistent view of scopes and bindings.
type Hub struct {
	store store.Store
	log   logging.LeveledLogger
	now   func() time.Time

	mu       sync.Mutex
	scopes   map[string]*scope
	bindings map[string]binding
}

type HubOption func(*Hub)

// WithHubClock replaces time.Now for relay-time expiry checks.
func WithHubClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

func NewHub(st store.Store, log logging.LeveledLogger, opts ...HubOption) *Hub {
	h := &Hub{
		store:    st,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		scopes:   make(map[string]*scope),
		bindings: make(map[string]binding),
	}
	for _, fn := range opts {
		fn(h)
	}
	return h
}

// Binding reports the session and role held by the connection peerID.
func (h *Hub) Binding(peerID string) (sessionID string, role types.Role, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.bindings[peerID]
	return b.sessionID, b.role, ok
}

// ScopeSize is the number of connections currently joined to sessionID.
func (h *Hub) ScopeSize(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sc := h.scopes[sessionID]; sc != nil {
		return len(sc.members)
	}
	return 0
}

// broadcastLocked queues m for every member except the one with id except
// and returns how many accepted it.
func (h *Hub) broadcastLocked(sc *scope, except string, m Message) int {
	n := 0
	for id, p := range sc.members {
		if id == except {
			continue
		}
		err := p.Send(m)
		switch {
		case err == nil:
			n++
		case errors.Is(err, ErrPeerGone):
			metrics.RelayDropped.WithLabelValues(metrics.DropPeerGone).Inc()
			h.log.Debugf("dropped %s for %s: connection closing", m.Event, id)
		default:
			metrics.RelayDropped.WithLabelValues(metrics.DropQueueFull).Inc()
			h.log.Warnf("dropped %s for %s: %v", m.Event, id, err)
		}
	}
	return n
}

// teardownLocked deletes the session, sends close to the scope (minus
// except) and forgets every member binding. Safe to call for unknown ids.
func (h *Hub) teardownLocked(ctx context.Context, sessionID, except, reason string) {
	deleted, err := h.store.Delete(ctx, sessionID)
	if err != nil {
		h.log.Warnf("delete session %s: %v", sessionID, err)
	}
	sc := h.scopes[sessionID]
	if sc != nil {
		h.broadcastLocked(sc, except, Message{Event: EventClose})
		for id := range sc.members {
			delete(h.bindings, id)
		}
		delete(h.scopes, sessionID)
	}
	if sc != nil || deleted {
		metrics.SessionsClosed.WithLabelValues(reason).Inc()
		h.log.Debugf("session %s torn down (%s)", sessionID, reason)
	}
}
