package signal

import (
	"context"

	"yuzu/rendezvous/internal/metrics"
	"yuzu/rendezvous/internal/types"
)

// HandleMessage routes one inbound message from p. Unknown events are
// ignored.
func (h *Hub) HandleMessage(ctx context.Context, p Peer, msg Message) {
	data := fields(msg.Data)
	sessionID := stringField(data, "sessionId")

	switch msg.Event {
	case EventCreateSession:
		id, err := h.CreateSession(ctx, stringField(data, "pin"))
		if err != nil {
			ack(p, msg, Ack{Error: CodeOf(err, "")})
			return
		}
		ack(p, msg, Ack{OK: true, SessionID: id})

	case EventJoin:
		h.handleJoin(ctx, p, msg, sessionID, stringField(data, "pin"), types.Role(stringField(data, "role")))

	case EventOffer, EventAnswer:
		h.Relay(ctx, p, msg.Event, sessionID, pick(data, "sdp"))
	case EventICE:
		h.Relay(ctx, p, msg.Event, sessionID, pick(data, "candidate"))
	case EventState:
		h.Relay(ctx, p, msg.Event, sessionID, pick(data, "state", "ts"))

	case EventClose:
		h.Close(ctx, p, sessionID)

	default:
		h.log.Debugf("ignoring event %q from %s", msg.Event, p.ID())
	}
}

// handleJoin queues the ack while still holding the hub lock, so the joiner
// sees its ack before anything the other peer relays in response to
// peer-joined.
func (h *Hub) handleJoin(ctx context.Context, p Peer, msg Message, sessionID, pin string, role types.Role) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status, err := h.joinLocked(ctx, p, sessionID, pin, role)
	if err != nil {
		code := CodeOf(err, role)
		metrics.Joins.WithLabelValues(string(code)).Inc()
		h.log.Debugf("join by %s rejected: %v", p.ID(), err)
		ack(p, msg, Ack{Error: code})
		return
	}
	metrics.Joins.WithLabelValues("ok").Inc()
	ack(p, msg, Ack{OK: true, Status: status})
}

func ack(p Peer, msg Message, a Ack) {
	if msg.Ack == 0 {
		return
	}
	_ = p.Send(Message{Event: EventAck, Ack: msg.Ack, Data: a})
}
