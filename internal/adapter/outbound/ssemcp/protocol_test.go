package ssemcp

import (
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

func TestToolsCallRequestRoundTrip(t *testing.T) {
	id, err := jsonrpc.MakeID("1")
	if err != nil {
		t.Fatalf("MakeID() error = %v", err)
	}
	frame, err := toolsCallRequest(id, "predict", map[string]any{"prompt": "a cat"})
	if err != nil {
		t.Fatalf("toolsCallRequest() error = %v", err)
	}

	msg, err := jsonrpc.DecodeMessage(frame)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		t.Fatalf("decoded message is %T, want *jsonrpc.Request", msg)
	}
	if req.Method != "tools/call" {
		t.Errorf("Method = %q, want tools/call", req.Method)
	}
	if req.ID != id {
		t.Errorf("ID = %v, want %v", req.ID, id)
	}

	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if params.Name != "predict" || params.Arguments["prompt"] != "a cat" {
		t.Errorf("params = %+v", params)
	}
}

func TestToolsCallRequestNilArguments(t *testing.T) {
	id, err := jsonrpc.MakeID("1")
	if err != nil {
		t.Fatalf("MakeID() error = %v", err)
	}
	frame, err := toolsCallRequest(id, "predict", nil)
	if err != nil {
		t.Fatalf("toolsCallRequest() error = %v", err)
	}

	msg, err := jsonrpc.DecodeMessage(frame)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	req := msg.(*jsonrpc.Request)
	var params struct {
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if params.Arguments == nil {
		t.Error("nil arguments must encode as an empty object, not null")
	}
}

func TestDecodeToolResultPreservesContent(t *testing.T) {
	raw := json.RawMessage(`{
		"isError": false,
		"content": [
			{"type": "text", "text": "hello"},
			{"type": "image", "data": "aGk=", "mimeType": "image/png"}
		]
	}`)
	result, err := decodeToolResult(raw)
	if err != nil {
		t.Fatalf("decodeToolResult() error = %v", err)
	}
	if len(result.Content) != 2 {
		t.Fatalf("got %d content items, want 2", len(result.Content))
	}
	if result.Content[0].Text != "hello" {
		t.Errorf("text item = %+v", result.Content[0])
	}
	if result.Content[1].Raw["mimeType"] != "image/png" {
		t.Errorf("opaque item lost fields: %+v", result.Content[1].Raw)
	}
}

func TestParseProgressDefaults(t *testing.T) {
	p, total, msg := parseProgress(nil)
	if p != 0 || total != 0 || msg != "" {
		t.Errorf("parseProgress(nil) = %v %v %q, want zero values", p, total, msg)
	}

	p, total, msg = parseProgress(json.RawMessage(`{"progress": 3, "total": 10, "message": "step"}`))
	if p != 3 || total != 10 || msg != "step" {
		t.Errorf("parseProgress() = %v %v %q", p, total, msg)
	}
}
