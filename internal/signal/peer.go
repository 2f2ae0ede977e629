package signal

import "errors"

var (
	// ErrQueueFull means the peer is live but its outbound queue is full.
	ErrQueueFull = errors.New("send queue full")
	// ErrPeerGone means the peer's connection is closing or closed.
	ErrPeerGone = errors.New("peer connection closed")
)

// Peer is one live client connection as seen by the hub.
type Peer interface {
	ID() string
	// Send queues m for delivery without blocking. It returns ErrQueueFull
	// or ErrPeerGone when the message was dropped.
	Send(m Message) error
}
