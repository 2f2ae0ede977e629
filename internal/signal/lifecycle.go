package signal

import (
	"context"

	"yuzu/rendezvous/internal/metrics"
)

// Disconnect tears down the session held by p, if any. The remaining members
// receive close. A session lives only as long as both of its peers.
func (h *Hub) Disconnect(ctx context.Context, p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.bindings[p.ID()]
	if !ok {
		return
	}
	h.log.Infof("%s (%s) left %s", p.ID(), b.role, b.sessionID)
	h.teardownLocked(ctx, b.sessionID, p.ID(), metrics.ReasonDisconnected)
}

// Expire drops the relay scopes of the sessions in ids, and of every scope
// whose deadline has passed, and tells their members. The second pass
// catches records that left the store without going through a sweep.
func (h *Hub) Expire(ctx context.Context, ids []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		if _, ok := h.scopes[id]; ok {
			h.teardownLocked(ctx, id, "", metrics.ReasonExpired)
		}
	}
	now := h.now()
	for id, sc := range h.scopes {
		if now.After(sc.expiresAt) {
			h.teardownLocked(ctx, id, "", metrics.ReasonExpired)
		}
	}
}
