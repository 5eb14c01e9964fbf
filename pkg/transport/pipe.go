package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Pipe frames JSON values over a byte stream, typically the driver's stdio.
// Each frame is a 4-byte little-endian length followed by that many bytes of
// JSON.
type Pipe struct {
	reader     *bufio.Reader
	writer     io.Writer
	readCloser io.Closer
	closer     io.Closer
	writeMu    sync.Mutex
	closed     atomic.Bool
	stats      Stats
}

// NewPipe wraps a reader/writer pair in the length-prefixed framing. Whichever
// of the two implements io.Closer is closed with the transport; closing the
// read side is what unblocks a Receive stuck mid-frame.
func NewPipe(reader io.Reader, writer io.Writer) *Pipe {
	p := &Pipe{
		reader: bufio.NewReaderSize(reader, 64*1024),
		writer: writer,
	}
	if c, ok := reader.(io.Closer); ok {
		p.readCloser = c
	}
	if c, ok := writer.(io.Closer); ok {
		p.closer = c
	}
	return p
}

// Send writes one length-prefixed frame. The write mutex keeps concurrent
// senders from interleaving prefix and body bytes.
func (p *Pipe) Send(ctx context.Context, frame json.RawMessage) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}

	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(frame)))

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.writer.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame prefix: %w", err)
	}
	if _, err := p.writer.Write(frame); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	p.stats.FramesSent.Add(1)
	p.stats.BytesSent.Add(int64(len(frame) + 4))
	return nil
}

// Receive reads the next frame. Reads are sequential: a pipe is a byte
// stream, and frame boundaries only parse correctly from a single reader.
func (p *Pipe) Receive(ctx context.Context) (json.RawMessage, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var prefix [4]byte
	if _, err := io.ReadFull(p.reader, prefix[:]); err != nil {
		if p.closed.Load() {
			return nil, io.EOF
		}
		return nil, err
	}
	length := binary.LittleEndian.Uint32(prefix[:])
	if length == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	body := make([]byte, int(length))
	if _, err := io.ReadFull(p.reader, body); err != nil {
		if p.closed.Load() {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	p.stats.FramesReceived.Add(1)
	p.stats.BytesReceived.Add(int64(length) + 4)
	return json.RawMessage(body), nil
}

// Close marks the pipe closed and closes both underlying sides where they are
// closable. Closing the reader makes a blocked Receive return io.EOF.
func (p *Pipe) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	var err error
	if p.readCloser != nil {
		err = p.readCloser.Close()
	}
	if p.closer != nil {
		if cerr := p.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Stats returns the traffic counters for this pipe.
func (p *Pipe) Stats() *Stats {
	return &p.stats
}
