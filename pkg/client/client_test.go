package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/odvcencio/marionette/pkg/channel"
	"github.com/odvcencio/marionette/pkg/protocol"
)

// scriptedTransport lets tests play the driver's side of the wire.
type scriptedTransport struct {
	incoming chan json.RawMessage
	sent     chan json.RawMessage

	closeOnce sync.Once
	done      chan struct{}
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		incoming: make(chan json.RawMessage, 64),
		sent:     make(chan json.RawMessage, 64),
		done:     make(chan struct{}),
	}
}

func (s *scriptedTransport) Send(ctx context.Context, frame json.RawMessage) error {
	select {
	case <-s.done:
		return io.ErrClosedPipe
	case s.sent <- frame:
		return nil
	}
}

func (s *scriptedTransport) Receive(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame := <-s.incoming:
		return frame, nil
	}
}

func (s *scriptedTransport) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *scriptedTransport) inject(t *testing.T, frame string) {
	t.Helper()
	select {
	case s.incoming <- json.RawMessage(frame):
	case <-time.After(time.Second):
		t.Fatal("dispatch loop not consuming frames")
	}
}

func (s *scriptedTransport) nextRequest(t *testing.T) *protocol.Request {
	t.Helper()
	select {
	case frame := <-s.sent:
		var req protocol.Request
		if err := json.Unmarshal(frame, &req); err != nil {
			t.Fatalf("sent frame is not a request: %v", err)
		}
		return &req
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for outgoing request")
		return nil
	}
}

func startClientConnection(t *testing.T) (*channel.Connection, *scriptedTransport) {
	t.Helper()
	st := newScriptedTransport()
	conn := channel.NewConnection(st, channel.Options{Factory: NewFactory()})
	go func() { _ = conn.Run(context.Background()) }()
	t.Cleanup(func() { conn.Close() })
	return conn, st
}

func mustObject(t *testing.T, conn *channel.Connection, guid string) channel.ChannelOwner {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	obj, err := conn.WaitForObject(ctx, guid)
	if err != nil {
		t.Fatalf("object %q never registered: %v", guid, err)
	}
	return obj
}

func injectCreate(t *testing.T, st *scriptedTransport, parentGUID, typeName, guid, initializer string) {
	t.Helper()
	if initializer == "" {
		initializer = "{}"
	}
	st.inject(t, fmt.Sprintf(
		`{"guid":%q,"method":"__create__","params":{"type":%q,"guid":%q,"initializer":%s}}`,
		parentGUID, typeName, guid, initializer))
}

func TestFactory_BuildsTypedWrappers(t *testing.T) {
	conn, st := startClientConnection(t)

	injectCreate(t, st, "", "Playwright", "pw@1",
		`{"chromium":{"guid":"bt@1"},"firefox":{"guid":"bt@2"},"webkit":{"guid":"bt@3"}}`)
	injectCreate(t, st, "pw@1", "BrowserType", "bt@1", `{"name":"chromium","executablePath":"/opt/chromium"}`)

	pwObj := mustObject(t, conn, "pw@1")
	pw, ok := pwObj.(*Playwright)
	if !ok {
		t.Fatalf("expected *Playwright, got %T", pwObj)
	}

	bt, err := pw.Chromium(context.Background())
	if err != nil {
		t.Fatalf("Chromium failed: %v", err)
	}
	if bt.Name() != "chromium" {
		t.Errorf("unexpected engine name: %q", bt.Name())
	}
	if bt.ExecutablePath() != "/opt/chromium" {
		t.Errorf("unexpected executable path: %q", bt.ExecutablePath())
	}
	if bt.Parent() != pwObj {
		t.Error("browser type should be a child of the playwright object")
	}
}

func TestFactory_RejectsWrongParentKind(t *testing.T) {
	conn, st := startClientConnection(t)

	// A Page directly under the root violates the ownership contract; the
	// event is dropped and the loop keeps running.
	injectCreate(t, st, "", "Page", "page@1", "")
	injectCreate(t, st, "", "Playwright", "pw@1", "")

	mustObject(t, conn, "pw@1")
	if _, ok := conn.Object("page@1"); ok {
		t.Error("contract-violating object must not be registered")
	}
}

func TestFactory_UnknownTypeBecomesGenericNode(t *testing.T) {
	conn, st := startClientConnection(t)

	injectCreate(t, st, "", "Tracing", "tracing@1", `{"new":"feature"}`)

	obj := mustObject(t, conn, "tracing@1")
	if obj.TypeName() != "Tracing" {
		t.Errorf("unexpected type name: %q", obj.TypeName())
	}
	if _, ok := obj.(*channel.Owner); !ok {
		t.Errorf("unknown type should be a generic node, got %T", obj)
	}
}

func TestConnect_Handshake(t *testing.T) {
	conn, st := startClientConnection(t)

	type result struct {
		pw  *Playwright
		err error
	}
	got := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		pw, err := Connect(ctx, conn)
		got <- result{pw, err}
	}()

	req := st.nextRequest(t)
	if req.Method != "initialize" || req.GUID != "" {
		t.Fatalf("unexpected handshake request: %+v", req)
	}
	var params map[string]any
	if err := json.Unmarshal(req.Params, &params); err != nil {
		t.Fatalf("bad handshake params: %v", err)
	}
	if params["sdkLanguage"] != "go" {
		t.Errorf("handshake should announce sdkLanguage go, got %v", params["sdkLanguage"])
	}

	// Respond before the __create__ arrives; the client must wait for it.
	st.inject(t, fmt.Sprintf(`{"id":%d,"result":{"playwright":{"guid":"pw@1"}}}`, req.ID))
	time.Sleep(20 * time.Millisecond)
	injectCreate(t, st, "", "Playwright", "pw@1", "")

	select {
	case res := <-got:
		if res.err != nil {
			t.Fatalf("Connect failed: %v", res.err)
		}
		if res.pw.GUID() != "pw@1" {
			t.Errorf("unexpected playwright guid: %q", res.pw.GUID())
		}
	case <-time.After(time.Second):
		t.Fatal("Connect never completed")
	}
}

func newTestPage(t *testing.T, conn *channel.Connection, st *scriptedTransport) *Page {
	t.Helper()
	injectCreate(t, st, "", "Playwright", "pw@1", "")
	injectCreate(t, st, "pw@1", "BrowserContext", "context@1", "")
	injectCreate(t, st, "context@1", "Page", "page@1",
		`{"mainFrame":{"guid":"frame@1"},"url":"about:blank"}`)
	injectCreate(t, st, "page@1", "Frame", "frame@1", `{"name":"","url":"about:blank"}`)

	obj := mustObject(t, conn, "page@1")
	page, ok := obj.(*Page)
	if !ok {
		t.Fatalf("expected *Page, got %T", obj)
	}
	return page
}

func TestPage_NavigatedEventUpdatesURL(t *testing.T) {
	conn, st := startClientConnection(t)
	page := newTestPage(t, conn, st)

	if page.URL() != "about:blank" {
		t.Fatalf("initial url should come from the initializer, got %q", page.URL())
	}

	st.inject(t, `{"guid":"page@1","method":"navigated","params":{"url":"https://example.com/"}}`)

	deadline := time.Now().Add(time.Second)
	for page.URL() != "https://example.com/" {
		if time.Now().After(deadline) {
			t.Fatalf("url never updated, still %q", page.URL())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPage_GotoResolvesResponse(t *testing.T) {
	conn, st := startClientConnection(t)
	page := newTestPage(t, conn, st)

	type result struct {
		resp *Response
		err  error
	}
	got := make(chan result, 1)
	go func() {
		resp, err := page.Goto(context.Background(), "https://example.com/", GotoOptions{})
		got <- result{resp, err}
	}()

	req := st.nextRequest(t)
	if req.Method != "goto" || req.GUID != "page@1" {
		t.Fatalf("unexpected request: %+v", req)
	}

	injectCreate(t, st, "page@1", "Response", "response@1",
		`{"url":"https://example.com/","status":200,"statusText":"OK","request":{"guid":"request@1"}}`)
	st.inject(t, fmt.Sprintf(`{"id":%d,"result":{"response":{"guid":"response@1"}}}`, req.ID))

	select {
	case res := <-got:
		if res.err != nil {
			t.Fatalf("Goto failed: %v", res.err)
		}
		if res.resp.Status() != 200 || !res.resp.OK() {
			t.Errorf("unexpected response: status=%d", res.resp.Status())
		}
	case <-time.After(time.Second):
		t.Fatal("Goto never completed")
	}
}

func TestPage_GotoSameDocumentReturnsNil(t *testing.T) {
	conn, st := startClientConnection(t)
	page := newTestPage(t, conn, st)

	got := make(chan *Response, 1)
	errs := make(chan error, 1)
	go func() {
		resp, err := page.Goto(context.Background(), "https://example.com/#anchor", GotoOptions{})
		if err != nil {
			errs <- err
			return
		}
		got <- resp
	}()

	req := st.nextRequest(t)
	st.inject(t, fmt.Sprintf(`{"id":%d,"result":{}}`, req.ID))

	select {
	case resp := <-got:
		if resp != nil {
			t.Errorf("same-document navigation should return nil response, got %+v", resp)
		}
	case err := <-errs:
		t.Fatalf("Goto failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("Goto never completed")
	}
}

func TestPage_CloseEvent(t *testing.T) {
	conn, st := startClientConnection(t)
	page := newTestPage(t, conn, st)

	closed := make(chan any, 1)
	page.On(EventPageClose, func(payload any) { closed <- payload })

	st.inject(t, `{"guid":"page@1","method":"close","params":{}}`)

	select {
	case payload := <-closed:
		if payload != page {
			t.Error("close event should carry the page itself")
		}
	case <-time.After(time.Second):
		t.Fatal("close event never emitted")
	}
	if !page.IsClosed() {
		t.Error("page should report closed")
	}
}

func TestBrowserContext_PageEventTracksPage(t *testing.T) {
	conn, st := startClientConnection(t)

	injectCreate(t, st, "", "Playwright", "pw@1", "")
	injectCreate(t, st, "pw@1", "BrowserContext", "context@1", "")
	bcObj := mustObject(t, conn, "context@1")
	bc, ok := bcObj.(*BrowserContext)
	if !ok {
		t.Fatalf("expected *BrowserContext, got %T", bcObj)
	}

	pages := make(chan any, 1)
	bc.On(EventContextPage, func(payload any) { pages <- payload })

	// The driver may announce the page event before the page's __create__;
	// the handler waits off the dispatch loop.
	st.inject(t, `{"guid":"context@1","method":"page","params":{"page":{"guid":"page@1"}}}`)
	injectCreate(t, st, "context@1", "Page", "page@1",
		`{"mainFrame":{"guid":"frame@1"},"url":"about:blank"}`)

	select {
	case payload := <-pages:
		page, ok := payload.(*Page)
		if !ok {
			t.Fatalf("expected *Page payload, got %T", payload)
		}
		if page.GUID() != "page@1" {
			t.Errorf("unexpected page guid: %q", page.GUID())
		}
	case <-time.After(time.Second):
		t.Fatal("page event never emitted")
	}

	deadline := time.Now().Add(time.Second)
	for len(bc.Pages()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("page never tracked by its context")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBrowser_NewContextOverlapsContextClose(t *testing.T) {
	// NewContext finishes wiring the context on the caller's goroutine while
	// the dispatch loop may already be delivering events to it. A "close"
	// arriving in that window reads the browser back-pointer concurrently
	// with the caller's write; both sides go through the context's mutex.
	conn, st := startClientConnection(t)

	injectCreate(t, st, "", "Playwright", "pw@1",
		`{"chromium":{"guid":"bt@1"},"firefox":{"guid":"bt@2"},"webkit":{"guid":"bt@3"}}`)
	injectCreate(t, st, "pw@1", "BrowserType", "bt@1", `{"name":"chromium"}`)
	injectCreate(t, st, "bt@1", "Browser", "browser@1", `{"version":"120.0","name":"chromium"}`)

	b, ok := mustObject(t, conn, "browser@1").(*Browser)
	if !ok {
		t.Fatal("browser@1 is not a *Browser")
	}

	type result struct {
		bc  *BrowserContext
		err error
	}
	got := make(chan result, 1)
	go func() {
		bc, err := b.NewContext(context.Background(), ContextOptions{})
		got <- result{bc, err}
	}()

	req := st.nextRequest(t)
	if req.Method != "newContext" {
		t.Fatalf("unexpected method %q", req.Method)
	}
	injectCreate(t, st, "browser@1", "BrowserContext", "context@1", "")
	st.inject(t, fmt.Sprintf(`{"id":%d,"result":{"context":{"guid":"context@1"}}}`, req.ID))
	// Close races the caller still inside NewContext.
	st.inject(t, `{"guid":"context@1","method":"close","params":{}}`)

	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("NewContext failed: %v", r.err)
		}
		if r.bc.Browser() != b {
			t.Error("context does not point back at its browser")
		}
	case <-time.After(time.Second):
		t.Fatal("NewContext never returned")
	}
}

func TestPage_ConsoleEventResolvesMessage(t *testing.T) {
	conn, st := startClientConnection(t)
	page := newTestPage(t, conn, st)

	messages := make(chan any, 1)
	page.On(EventPageConsole, func(payload any) { messages <- payload })

	st.inject(t, `{"guid":"page@1","method":"console","params":{"message":{"guid":"console@1"}}}`)
	injectCreate(t, st, "page@1", "ConsoleMessage", "console@1", `{"type":"log","text":"hello from page"}`)

	select {
	case payload := <-messages:
		msg, ok := payload.(*ConsoleMessage)
		if !ok {
			t.Fatalf("expected *ConsoleMessage, got %T", payload)
		}
		if msg.Text() != "hello from page" {
			t.Errorf("unexpected text: %q", msg.Text())
		}
	case <-time.After(time.Second):
		t.Fatal("console event never emitted")
	}
}
