package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odvcencio/marionette/pkg/channel"
)

// Artifact is a file the driver produced on the server side, typically a
// download or a trace. Its content is pulled over a Stream.
type Artifact struct {
	*channel.Owner

	init artifactInitializer
}

type artifactInitializer struct {
	AbsolutePath string `json:"absolutePath"`
}

func newArtifact(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Artifact {
	a := &Artifact{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &a.init)
	return a
}

// PathAfterFinished blocks until the artifact is fully written and returns
// its path on the driver host.
func (a *Artifact) PathAfterFinished(ctx context.Context) (string, error) {
	result, err := channel.SendAs[struct {
		Value string `json:"value"`
	}](ctx, a.Channel(), "pathAfterFinished", nil)
	if err != nil {
		return "", err
	}
	return result.Value, nil
}

// Failure returns the download failure reason, or empty on success.
func (a *Artifact) Failure(ctx context.Context) (string, error) {
	result, err := channel.SendAs[struct {
		Error string `json:"error"`
	}](ctx, a.Channel(), "failure", nil)
	if err != nil {
		return "", err
	}
	return result.Error, nil
}

// SaveAs copies the artifact's content to a local path.
func (a *Artifact) SaveAs(ctx context.Context, path string) error {
	result, err := channel.SendAs[struct {
		Stream guidRef `json:"stream"`
	}](ctx, a.Channel(), "saveAsStream", nil)
	if err != nil {
		return err
	}
	stream, err := resolveAs[*Stream](ctx, a.Connection(), result.Stream)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close(ctx) }()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()
	if _, err := stream.WriteTo(ctx, file); err != nil {
		return err
	}
	return nil
}

// Delete removes the artifact on the driver host.
func (a *Artifact) Delete(ctx context.Context) error {
	return a.Channel().Call(ctx, "delete", nil)
}

// Stream pulls a server-side file's bytes chunk by chunk.
type Stream struct {
	*channel.Owner
}

func newStream(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Stream {
	return &Stream{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
}

const streamChunkSize = 1 << 20

// WriteTo copies the whole stream into w.
func (s *Stream) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	var total int64
	for {
		result, err := channel.SendAs[struct {
			Binary []byte `json:"binary"`
		}](ctx, s.Channel(), "read", map[string]any{"size": streamChunkSize})
		if err != nil {
			return total, err
		}
		if len(result.Binary) == 0 {
			return total, nil
		}
		n, err := w.Write(result.Binary)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("write stream chunk: %w", err)
		}
	}
}

// Close releases the server-side file handle.
func (s *Stream) Close(ctx context.Context) error {
	return s.Channel().Call(ctx, "close", nil)
}
