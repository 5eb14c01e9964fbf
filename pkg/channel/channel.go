package channel

import (
	"context"
	"encoding/json"

	"github.com/odvcencio/marionette/pkg/protocol"
)

// Channel is the RPC proxy bound to one object's guid. It adds nothing on
// top of Connection.SendMessage: no retries, no caching, no batching.
type Channel struct {
	conn *Connection
	guid string
}

// GUID returns the guid this channel sends as.
func (c *Channel) GUID() string {
	return c.guid
}

// Send performs a call and returns the raw result.
func (c *Channel) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.conn.SendMessage(ctx, c.guid, method, params)
}

// Call performs a call and discards the result, propagating only errors.
func (c *Channel) Call(ctx context.Context, method string, params any) error {
	_, err := c.conn.SendMessage(ctx, c.guid, method, params)
	return err
}

// SendAs performs a call and decodes the result into T. A result that does
// not match T is a SerializationError, distinct from a driver-reported
// failure: it means the client and driver disagree on the schema.
func SendAs[T any](ctx context.Context, c *Channel, method string, params any) (*T, error) {
	raw, err := c.Send(ctx, method, params)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &protocol.SerializationError{Method: method, Err: err}
	}
	return &out, nil
}
