package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket carries each JSON frame as one websocket text message. Used when
// connecting to an already-running driver endpoint instead of launching a
// subprocess.
type WebSocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
	stats   Stats
}

// DialWebSocket connects to a driver websocket endpoint.
func DialWebSocket(ctx context.Context, url string, headers http.Header) (*WebSocket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &WebSocket{conn: conn}, nil
}

// Send transmits one frame as a text message.
func (w *WebSocket) Send(ctx context.Context, frame json.RawMessage) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = w.conn.SetWriteDeadline(deadline)
	} else {
		_ = w.conn.SetWriteDeadline(time.Time{})
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	w.stats.FramesSent.Add(1)
	w.stats.BytesSent.Add(int64(len(frame)))
	return nil
}

// Receive blocks until the next text message arrives.
func (w *WebSocket) Receive(ctx context.Context) (json.RawMessage, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		if w.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	w.stats.FramesReceived.Add(1)
	w.stats.BytesReceived.Add(int64(len(data)))
	return json.RawMessage(data), nil
}

// Close sends a close frame and tears the connection down.
func (w *WebSocket) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return w.conn.Close()
}

// Stats returns the traffic counters for this connection.
func (w *WebSocket) Stats() *Stats {
	return &w.stats
}
