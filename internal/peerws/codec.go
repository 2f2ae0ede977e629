package peerws

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"yuzu/rendezvous/internal/signal"

	ws "nhooyr.io/websocket"
)

// Subprotocols a client may request. Without one the connection speaks JSON.
const (
	SubprotocolJSON    = "rendezvous.json"
	SubprotocolMsgpack = "rendezvous.msgpack"
)

// encode frames m for a connection that negotiated subprotocol.
func encode(subprotocol string, m signal.Message) (ws.MessageType, []byte, error) {
	if subprotocol == SubprotocolMsgpack {
		b, err := msgpack.Marshal(m)
		return ws.MessageBinary, b, err
	}
	b, err := json.Marshal(m)
	return ws.MessageText, b, err
}

// decode reads a frame by its type, so a client may mix text and binary.
func decode(typ ws.MessageType, data []byte) (signal.Message, error) {
	var m signal.Message
	switch typ {
	case ws.MessageText:
		if err := json.Unmarshal(data, &m); err != nil {
			return m, fmt.Errorf("json frame: %w", err)
		}
	case ws.MessageBinary:
		if err := msgpack.Unmarshal(data, &m); err != nil {
			return m, fmt.Errorf("msgpack frame: %w", err)
		}
	default:
		return m, fmt.Errorf("unsupported frame type %v", typ)
	}
	if m.Event == "" {
		return m, fmt.Errorf("frame has no event")
	}
	return m, nil
}
