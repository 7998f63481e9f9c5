package core

import "errors"

// Frame is a raw text frame (one JSON object per frame).
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Conn abstracts one live bidirectional message channel.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	// TrySend queues a frame without blocking. A full send queue or a closed
	// connection is a delivery failure, not a fatal error.
	TrySend(Frame) error
	Close()
}
