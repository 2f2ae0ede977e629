package signal

import (
	"context"
	"errors"
	"fmt"

	"yuzu/rendezvous/internal/metrics"
	"yuzu/rendezvous/internal/store"
	"yuzu/rendezvous/internal/types"
)

// CreateSession stores a new session guarded by pin and returns its id.
func (h *Hub) CreateSession(ctx context.Context, pin string) (string, error) {
	sess, err := h.store.Create(ctx, pin)
	if err != nil {
		metrics.CreateFailures.Inc()
		h.log.Errorf("create session: %v", err)
		return "", fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	metrics.SessionsCreated.Inc()
	h.log.Debugf("session %s created", sess.ID)
	return sess.ID, nil
}

// Join binds p to role in session sessionID and returns the resulting
// status. The other members are told with a peer-joined event.
func (h *Hub) Join(ctx context.Context, p Peer, sessionID, pin string, role types.Role) (types.Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.joinLocked(ctx, p, sessionID, pin, role)
}

func (h *Hub) joinLocked(ctx context.Context, p Peer, sessionID, pin string, role types.Role) (types.Status, error) {
	if b, ok := h.bindings[p.ID()]; ok {
		return "", fmt.Errorf("%w: %s holds %s in %s", ErrAlreadyJoined, p.ID(), b.role, b.sessionID)
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrBadRole, role)
	}

	sess, err := h.store.BindRole(ctx, sessionID, pin, role, p.ID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) && h.scopes[sessionID] != nil {
			// The record expired or was evicted while peers were still joined.
			h.teardownLocked(ctx, sessionID, "", metrics.ReasonExpired)
		}
		return "", fmt.Errorf("join %s as %s: %w", sessionID, role, err)
	}

	h.bindings[p.ID()] = binding{sessionID: sessionID, role: role}
	sc := h.scopes[sessionID]
	if sc == nil {
		sc = &scope{members: make(map[string]Peer), expiresAt: sess.ExpiresAt}
		h.scopes[sessionID] = sc
	}
	h.broadcastLocked(sc, p.ID(), Message{
		Event: EventPeerJoined,
		Data:  map[string]any{"role": string(role)},
	})
	sc.members[p.ID()] = p

	status := sess.Status()
	h.log.Infof("%s joined %s as %s (%s)", p.ID(), sessionID, role, status)
	return status, nil
}
