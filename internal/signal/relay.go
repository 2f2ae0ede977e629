package signal

import (
	"context"

	"yuzu/rendezvous/internal/metrics"
)

// Relay forwards data as event to every other member of sessionID and
// returns the number of recipients. Senders that are not members of that
// session reach nobody. Nothing is reported back to the sender.
func (h *Hub) Relay(ctx context.Context, p Peer, event, sessionID string, data map[string]any) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.bindings[p.ID()]
	sc := h.scopes[sessionID]
	if !ok || b.sessionID != sessionID || sc == nil {
		metrics.RelayDropped.WithLabelValues(metrics.DropNotMember).Inc()
		h.log.Debugf("drop %s from %s: not a member of %q", event, p.ID(), sessionID)
		return 0
	}
	if h.now().After(sc.expiresAt) {
		h.log.Debugf("session %s expired during relay", sessionID)
		h.teardownLocked(ctx, sessionID, "", metrics.ReasonExpired)
		return 0
	}

	n := h.broadcastLocked(sc, p.ID(), Message{Event: event, Data: data})
	if n == 0 {
		metrics.RelayDropped.WithLabelValues(metrics.DropNoPeer).Inc()
		return 0
	}
	metrics.Relayed.WithLabelValues(event).Add(float64(n))
	return n
}

// Close notifies the other members of sessionID and deletes the session.
// Closing an unknown session is a no-op.
func (h *Hub) Close(ctx context.Context, p Peer, sessionID string) {
	if sessionID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.teardownLocked(ctx, sessionID, p.ID(), metrics.ReasonClosed)
}
