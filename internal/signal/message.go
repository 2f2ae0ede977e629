package signal

import (
	"fmt"
	"strconv"

	"yuzu/rendezvous/internal/types"
)

// Client to server events. Relayed events keep their name on the way out.
const (
	EventCreateSession = "create-session"
	EventJoin          = "join"
	EventOffer         = "offer"
	EventAnswer        = "answer"
	EventICE           = "ice"
	EventState         = "state"
	EventClose         = "close"
)

// Server to client events that are not relays.
const (
	EventPeerJoined = "peer-joined"
	EventAck        = "ack"
)

// Message is the envelope carried by every frame in both directions. A
// non-zero Ack on an inbound message asks for an acknowledgement carrying the
// same number.
type Message struct {
	Event string `json:"event" msgpack:"event"`
	Data  any    `json:"data,omitempty" msgpack:"data,omitempty"`
	Ack   uint64 `json:"ack,omitempty" msgpack:"ack,omitempty"`
}

// Ack is the acknowledgement payload for create-session and join.
type Ack struct {
	OK        bool         `json:"ok" msgpack:"ok"`
	SessionID string       `json:"sessionId,omitempty" msgpack:"sessionId,omitempty"`
	Status    types.Status `json:"status,omitempty" msgpack:"status,omitempty"`
	Error     Code         `json:"error,omitempty" msgpack:"error,omitempty"`
}

func fields(data any) map[string]any {
	m, _ := data.(map[string]any)
	return m
}

// stringField reads key as a string. Numbers and booleans are formatted the
// way a JavaScript client would stringify them; a missing key yields "".
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// pick copies the listed keys that are present, so that nothing else from
// the sender reaches the peer.
func pick(m map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}
