// Package protocol defines the wire-level message shapes exchanged with the
// browser driver and the rules for telling them apart.
//
// A frame is a single JSON value. There is no type tag: a frame carrying a
// numeric "id" is a Response to an earlier Request, anything else must carry
// a "guid"/"method" pair and is an Event emitted by a remote object.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reserved event methods forming the object-lifecycle meta-protocol. They are
// intercepted by the connection before generic event dispatch.
const (
	MethodCreate  = "__create__"
	MethodDispose = "__dispose__"
	MethodAdopt   = "__adopt__"
)

// DisposeReasonGC is the dispose reason the driver sends when an object was
// reclaimed by server-side garbage collection.
const DisposeReasonGC = "gc"

// Request is an outgoing call addressed to the remote object identified by
// GUID. The empty GUID addresses the connection-level root pseudo-object.
type Request struct {
	ID       uint32          `json:"id"`
	GUID     string          `json:"guid"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params"`
	Metadata Metadata        `json:"metadata"`
}

// Metadata rides along with every request. The driver treats it as opaque.
type Metadata struct {
	WallTime int64          `json:"wallTime"`
	Extra    map[string]any `json:"-"`
}

// NewRequest builds a Request with the wall-clock timestamp stamped in.
func NewRequest(id uint32, guid, method string, params json.RawMessage) *Request {
	if params == nil {
		params = json.RawMessage(`{}`)
	}
	return &Request{
		ID:       id,
		GUID:     guid,
		Method:   method,
		Params:   params,
		Metadata: Metadata{WallTime: time.Now().UnixMilli()},
	}
}

// Response completes exactly one outstanding Request. At most one of Result
// and Error is meaningful; a response with neither carries a null result.
type Response struct {
	ID     uint32          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorWrapper   `json:"error,omitempty"`
}

// ErrorWrapper is the envelope the driver puts around a remote failure.
type ErrorWrapper struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload describes a remote failure. Name is load-bearing: callers
// branch on it to tell retry-worthy outcomes from fatal ones (see Classify).
type ErrorPayload struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Event is a server-initiated notification targeted at the object identified
// by GUID. The empty GUID targets the connection root.
type Event struct {
	GUID   string          `json:"guid"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// CreateParams is the payload of a __create__ event. The parent is the
// object the event itself is addressed to.
type CreateParams struct {
	Type        string          `json:"type"`
	GUID        string          `json:"guid"`
	Initializer json.RawMessage `json:"initializer"`
}

// DisposeParams is the payload of a __dispose__ event.
type DisposeParams struct {
	Reason string `json:"reason,omitempty"`
}

// AdoptParams is the payload of an __adopt__ event. GUID names the child
// being moved; the adopting parent is the event's own target.
type AdoptParams struct {
	GUID string `json:"guid"`
}

// Message is the decoded form of one incoming frame. Exactly one of Response
// and Event is non-nil.
type Message struct {
	Response *Response
	Event    *Event
}

// Decode parses one incoming frame, discriminating structurally on the
// presence of a numeric "id" field. A frame matching neither shape is a
// decode failure scoped to that one frame; the caller logs and drops it.
func Decode(raw json.RawMessage) (Message, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Message{}, fmt.Errorf("malformed frame: %w", err)
	}

	if idRaw, ok := probe["id"]; ok {
		var id uint32
		if err := json.Unmarshal(idRaw, &id); err != nil {
			return Message{}, fmt.Errorf("frame has non-numeric id: %w", err)
		}
		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return Message{}, fmt.Errorf("malformed response: %w", err)
		}
		return Message{Response: &resp}, nil
	}

	if _, hasGUID := probe["guid"]; !hasGUID {
		return Message{}, fmt.Errorf("frame is neither response nor event")
	}
	if _, hasMethod := probe["method"]; !hasMethod {
		return Message{}, fmt.Errorf("frame is neither response nor event")
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Message{}, fmt.Errorf("malformed event: %w", err)
	}
	return Message{Event: &ev}, nil
}

// Encode serializes an outgoing request for the transport.
func Encode(req *Request) (json.RawMessage, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return data, nil
}

// ParseParams unmarshals an event or initializer payload into the target.
func ParseParams[T any](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing params")
	}
	var params T
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	return &params, nil
}
