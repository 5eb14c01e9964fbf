package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"
)

func TestPipe_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sender := NewPipe(bytes.NewReader(nil), &buf)

	ctx := context.Background()
	frames := []string{
		`{"id":1,"guid":"","method":"initialize","params":{}}`,
		`{"id":2,"guid":"page@1","method":"goto","params":{"url":"https://example.com"}}`,
	}
	for _, f := range frames {
		if err := sender.Send(ctx, json.RawMessage(f)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	receiver := NewPipe(&buf, io.Discard)
	for _, want := range frames {
		got, err := receiver.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		if string(got) != want {
			t.Errorf("frame mismatch:\n got %s\nwant %s", got, want)
		}
	}
}

func TestPipe_PrefixIsLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	p := NewPipe(bytes.NewReader(nil), &buf)
	frame := json.RawMessage(`{"id":1}`)
	if err := p.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	raw := buf.Bytes()
	if len(raw) != 4+len(frame) {
		t.Fatalf("expected %d bytes on the wire, got %d", 4+len(frame), len(raw))
	}
	if got := binary.LittleEndian.Uint32(raw[:4]); got != uint32(len(frame)) {
		t.Errorf("prefix %d does not match body length %d", got, len(frame))
	}
}

func TestPipe_ReceiveEOFAfterStreamEnds(t *testing.T) {
	p := NewPipe(bytes.NewReader(nil), io.Discard)
	if _, err := p.Receive(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF on exhausted stream, got %v", err)
	}
}

func TestPipe_TruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], 100)
	buf.Write(prefix[:])
	buf.WriteString(`{"short":true}`)

	p := NewPipe(&buf, io.Discard)
	if _, err := p.Receive(context.Background()); err == nil {
		t.Error("expected error for truncated frame body")
	}
}

func TestPipe_RejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], MaxFrameSize+1)
	buf.Write(prefix[:])

	p := NewPipe(&buf, io.Discard)
	if _, err := p.Receive(context.Background()); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestPipe_SendAfterClose(t *testing.T) {
	p := NewPipe(bytes.NewReader(nil), io.Discard)
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Send(context.Background(), json.RawMessage(`{}`)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := p.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	// Close is idempotent.
	if err := p.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestPipe_CloseUnblocksReceive(t *testing.T) {
	pr, pw := io.Pipe()
	p := NewPipe(pr, io.Discard)

	done := make(chan error, 1)
	go func() {
		_, err := p.Receive(context.Background())
		done <- err
	}()

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) && !errors.Is(err, ErrClosed) {
			t.Errorf("expected EOF or ErrClosed after Close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive still blocked after Close")
	}
	_ = pw.Close()
}

func TestPipe_CanceledContext(t *testing.T) {
	p := NewPipe(bytes.NewReader(nil), io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Send(ctx, json.RawMessage(`{}`)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPipe_Stats(t *testing.T) {
	var buf bytes.Buffer
	sender := NewPipe(bytes.NewReader(nil), &buf)
	frame := json.RawMessage(`{"id":9}`)
	if err := sender.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := sender.Stats().FramesSent.Load(); got != 1 {
		t.Errorf("expected 1 frame sent, got %d", got)
	}
	if got := sender.Stats().BytesSent.Load(); got != int64(len(frame)+4) {
		t.Errorf("expected %d bytes sent, got %d", len(frame)+4, got)
	}

	receiver := NewPipe(&buf, io.Discard)
	if _, err := receiver.Receive(context.Background()); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if got := receiver.Stats().FramesReceived.Load(); got != 1 {
		t.Errorf("expected 1 frame received, got %d", got)
	}
}
