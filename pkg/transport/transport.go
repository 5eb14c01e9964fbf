// Package transport delivers whole JSON frames to and from the browser
// driver. The framing underneath (length prefix over a pipe, websocket
// messages) is this package's concern; everything above it sees an ordered
// stream of parsed JSON values.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
)

var (
	// ErrClosed indicates the transport has been closed.
	ErrClosed = errors.New("transport closed")

	// ErrFrameTooLarge indicates a frame exceeds the size limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// MaxFrameSize bounds a single frame in either direction.
const MaxFrameSize = 256 * 1024 * 1024

// Transport is a bidirectional ordered stream of JSON frames.
// Implementations must be safe for one concurrent receiver and any number of
// concurrent senders.
type Transport interface {
	// Send transmits one frame. It returns only once the frame is fully
	// handed to the underlying writer.
	Send(ctx context.Context, frame json.RawMessage) error

	// Receive blocks until the next frame arrives. It returns io.EOF when
	// the peer closes cleanly. Close unblocks a pending Receive.
	Receive(ctx context.Context) (json.RawMessage, error)

	// Close tears the transport down. Safe to call more than once.
	Close() error
}

// Stats counts traffic through a transport.
type Stats struct {
	FramesSent     atomic.Int64
	FramesReceived atomic.Int64
	BytesSent      atomic.Int64
	BytesReceived  atomic.Int64
}
