package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecode_Response(t *testing.T) {
	msg, err := Decode(json.RawMessage(`{"id":7,"result":{"value":"ok"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Response == nil {
		t.Fatal("expected a response")
	}
	if msg.Event != nil {
		t.Fatal("message decoded as both response and event")
	}
	if msg.Response.ID != 7 {
		t.Errorf("expected id 7, got %d", msg.Response.ID)
	}
	if string(msg.Response.Result) != `{"value":"ok"}` {
		t.Errorf("unexpected result: %s", msg.Response.Result)
	}
}

func TestDecode_ResponseWithError(t *testing.T) {
	msg, err := Decode(json.RawMessage(`{"id":3,"error":{"error":{"message":"boom","name":"TimeoutError","stack":"at x"}}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Response == nil || msg.Response.Error == nil {
		t.Fatal("expected an error response")
	}
	payload := msg.Response.Error.Error
	if payload.Name != "TimeoutError" || payload.Message != "boom" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestDecode_Event(t *testing.T) {
	msg, err := Decode(json.RawMessage(`{"guid":"page@1","method":"console","params":{"text":"hi"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Event == nil {
		t.Fatal("expected an event")
	}
	if msg.Event.GUID != "page@1" || msg.Event.Method != "console" {
		t.Errorf("unexpected event: %+v", msg.Event)
	}
}

func TestDecode_RootEvent(t *testing.T) {
	// The empty guid addresses the connection root; still a valid event.
	msg, err := Decode(json.RawMessage(`{"guid":"","method":"__create__","params":{"type":"Playwright","guid":"pw@1"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Event == nil || msg.Event.Method != MethodCreate {
		t.Fatalf("expected a create event, got %+v", msg)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := []struct {
		name  string
		frame string
	}{
		{"not json", `{{{`},
		{"not an object", `[1,2,3]`},
		{"neither shape", `{"something":"else"}`},
		{"guid without method", `{"guid":"x"}`},
		{"non-numeric id", `{"id":"abc"}`},
		{"negative id", `{"id":-1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(json.RawMessage(tc.frame)); err == nil {
				t.Errorf("expected decode error for %s", tc.frame)
			}
		})
	}
}

func TestNewRequest_StampsWallTime(t *testing.T) {
	before := time.Now().UnixMilli()
	req := NewRequest(1, "page@1", "goto", nil)
	after := time.Now().UnixMilli()

	if req.Metadata.WallTime < before || req.Metadata.WallTime > after {
		t.Errorf("wallTime %d outside [%d, %d]", req.Metadata.WallTime, before, after)
	}
	if string(req.Params) != `{}` {
		t.Errorf("nil params should encode as empty object, got %s", req.Params)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	req := NewRequest(42, "frame@9", "click", json.RawMessage(`{"selector":"#go"}`))
	frame, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("encoded request is not valid JSON: %v", err)
	}
	for _, key := range []string{"id", "guid", "method", "params", "metadata"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("encoded request missing %q", key)
		}
	}
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams[CreateParams](json.RawMessage(`{"type":"Page","guid":"page@1","initializer":{"url":"about:blank"}}`))
	if err != nil {
		t.Fatalf("ParseParams failed: %v", err)
	}
	if params.Type != "Page" || params.GUID != "page@1" {
		t.Errorf("unexpected params: %+v", params)
	}

	if _, err := ParseParams[CreateParams](nil); err == nil {
		t.Error("expected error for missing params")
	}
}
