package client

import (
	"context"
	"encoding/json"

	"github.com/odvcencio/marionette/pkg/channel"
)

// Request is one network request issued by a page.
type Request struct {
	*channel.Owner

	init requestInitializer
}

type requestInitializer struct {
	URL          string  `json:"url"`
	Method       string  `json:"method"`
	ResourceType string  `json:"resourceType"`
	Frame        guidRef `json:"frame"`
}

func newRequest(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Request {
	r := &Request{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &r.init)
	return r
}

// URL returns the request URL.
func (r *Request) URL() string { return r.init.URL }

// Method returns the HTTP method.
func (r *Request) Method() string { return r.init.Method }

// ResourceType returns the kind of resource being fetched.
func (r *Request) ResourceType() string { return r.init.ResourceType }

// Frame returns the frame that issued the request.
func (r *Request) Frame(ctx context.Context) (*Frame, error) {
	return resolveAs[*Frame](ctx, r.Connection(), r.init.Frame)
}

// Response is the server's answer to one request.
type Response struct {
	*channel.Owner

	init responseInitializer
}

type responseInitializer struct {
	URL        string  `json:"url"`
	Status     int     `json:"status"`
	StatusText string  `json:"statusText"`
	Request    guidRef `json:"request"`
}

func newResponse(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Response {
	r := &Response{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &r.init)
	return r
}

// URL returns the response URL.
func (r *Response) URL() string { return r.init.URL }

// Status returns the HTTP status code.
func (r *Response) Status() int { return r.init.Status }

// StatusText returns the HTTP status text.
func (r *Response) StatusText() string { return r.init.StatusText }

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.init.Status >= 200 && r.init.Status < 300
}

// Request returns the request this response answers.
func (r *Response) Request(ctx context.Context) (*Request, error) {
	return resolveAs[*Request](ctx, r.Connection(), r.init.Request)
}

// Body fetches the raw response body.
func (r *Response) Body(ctx context.Context) ([]byte, error) {
	result, err := channel.SendAs[struct {
		Binary []byte `json:"binary"`
	}](ctx, r.Channel(), "body", nil)
	if err != nil {
		return nil, err
	}
	return result.Binary, nil
}

// Route lets an interception handler decide a request's fate.
type Route struct {
	*channel.Owner

	init routeInitializer
}

type routeInitializer struct {
	Request guidRef `json:"request"`
}

func newRoute(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Route {
	r := &Route{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &r.init)
	return r
}

// Request returns the intercepted request.
func (r *Route) Request(ctx context.Context) (*Request, error) {
	return resolveAs[*Request](ctx, r.Connection(), r.init.Request)
}

// Continue lets the request proceed unmodified.
func (r *Route) Continue(ctx context.Context) error {
	return r.Channel().Call(ctx, "continue", nil)
}

// Abort fails the request with the given error code.
func (r *Route) Abort(ctx context.Context, errorCode string) error {
	params := map[string]any{}
	if errorCode != "" {
		params["errorCode"] = errorCode
	}
	return r.Channel().Call(ctx, "abort", params)
}

// Fulfill answers the request without hitting the network.
func (r *Route) Fulfill(ctx context.Context, status int, contentType string, body []byte) error {
	return r.Channel().Call(ctx, "fulfill", map[string]any{
		"status":      status,
		"contentType": contentType,
		"body":        body,
	})
}
