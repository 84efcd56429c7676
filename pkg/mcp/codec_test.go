package mcp

import (
	"testing"
	"time"
)

func TestWrapMessage(t *testing.T) {
	tests := []struct {
		name         string
		raw          []byte
		dir          Direction
		wantMethod   string
		wantRequest  bool
		wantToolCall bool
		wantErr      bool
	}{
		{
			name:         "tools/call request downstream",
			raw:          []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"read_file"}}`),
			dir:          Downstream,
			wantMethod:   "tools/call",
			wantRequest:  true,
			wantToolCall: true,
			wantErr:      false,
		},
		{
			name:         "tools/list request",
			raw:          []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`),
			dir:          Downstream,
			wantMethod:   "tools/list",
			wantRequest:  true,
			wantToolCall: false,
			wantErr:      false,
		},
		{
			name:         "response upstream",
			raw:          []byte(`{"jsonrpc":"2.0","id":1,"result":{"content":"data"}}`),
			dir:          Upstream,
			wantMethod:   "",
			wantRequest:  false,
			wantToolCall: false,
			wantErr:      false,
		},
		{
			name:    "invalid json returns error",
			raw:     []byte(`{invalid`),
			dir:     Downstream,
			wantErr: true,
		},
		{
			name:    "missing jsonrpc version returns error",
			raw:     []byte(`{"id":1,"method":"test"}`),
			dir:     Downstream,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := WrapMessage(tt.raw, tt.dir)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if string(msg.Raw) != string(tt.raw) {
				t.Errorf("raw bytes not preserved: got %q, want %q", msg.Raw, tt.raw)
			}
			if msg.Direction != tt.dir {
				t.Errorf("direction: got %v, want %v", msg.Direction, tt.dir)
			}
			if msg.Timestamp.IsZero() {
				t.Error("timestamp should be set")
			}
			if msg.Method() != tt.wantMethod {
				t.Errorf("Method(): got %q, want %q", msg.Method(), tt.wantMethod)
			}
			if msg.IsRequest() != tt.wantRequest {
				t.Errorf("IsRequest(): got %v, want %v", msg.IsRequest(), tt.wantRequest)
			}
			if msg.IsResponse() == tt.wantRequest {
				t.Errorf("IsResponse(): got %v, want %v", msg.IsResponse(), !tt.wantRequest)
			}
			if msg.IsToolCall() != tt.wantToolCall {
				t.Errorf("IsToolCall(): got %v, want %v", msg.IsToolCall(), tt.wantToolCall)
			}
		})
	}
}

func TestDirectionString(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{Downstream, "downstream"},
		{Upstream, "upstream"},
		{Direction(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.dir.String(); got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestMessageAccessors(t *testing.T) {
	reqMsg, err := WrapMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"test"}`), Downstream)
	if err != nil {
		t.Fatalf("WrapMessage failed: %v", err)
	}
	if reqMsg.Request() == nil {
		t.Error("Request() should return non-nil for request message")
	}
	if reqMsg.Response() != nil {
		t.Error("Response() should return nil for request message")
	}

	respMsg, err := WrapMessage([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`), Upstream)
	if err != nil {
		t.Fatalf("WrapMessage failed: %v", err)
	}
	if respMsg.Response() == nil {
		t.Error("Response() should return non-nil for response message")
	}
	if respMsg.Request() != nil {
		t.Error("Request() should return nil for response message")
	}
}

func TestMessageWithNilDecoded(t *testing.T) {
	msg := &Message{
		Raw:       []byte(`invalid`),
		Direction: Downstream,
		Decoded:   nil,
		Timestamp: time.Now(),
	}

	if msg.IsRequest() {
		t.Error("IsRequest() should return false for nil Decoded")
	}
	if msg.IsResponse() {
		t.Error("IsResponse() should return false for nil Decoded")
	}
	if msg.Method() != "" {
		t.Error("Method() should return empty string for nil Decoded")
	}
	if msg.IsToolCall() {
		t.Error("IsToolCall() should return false for nil Decoded")
	}
	if msg.Request() != nil {
		t.Error("Request() should return nil for nil Decoded")
	}
	if msg.Response() != nil {
		t.Error("Response() should return nil for nil Decoded")
	}
}

func TestMessageParseParams(t *testing.T) {
	msg, err := WrapMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search","_meta":{"progressToken":"abc"}}}`), Downstream)
	if err != nil {
		t.Fatalf("WrapMessage failed: %v", err)
	}

	params := msg.ParseParams()
	if params["name"] != "search" {
		t.Errorf("ParseParams()[\"name\"] = %v, want %q", params["name"], "search")
	}

	// Second call should return the same cached map.
	if again := msg.ParseParams(); again["name"] != "search" {
		t.Errorf("cached ParseParams()[\"name\"] = %v, want %q", again["name"], "search")
	}

	if got := msg.ProgressToken(); got != "abc" {
		t.Errorf("ProgressToken() = %v, want %q", got, "abc")
	}
}

func TestMessageProgressTokenAbsent(t *testing.T) {
	msg, err := WrapMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`), Downstream)
	if err != nil {
		t.Fatalf("WrapMessage failed: %v", err)
	}
	if got := msg.ProgressToken(); got != nil {
		t.Errorf("ProgressToken() = %v, want nil", got)
	}
}

func TestMessageRawID(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{name: "numeric id", raw: []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`), want: "7"},
		{name: "string id", raw: []byte(`{"jsonrpc":"2.0","id":"req-1","method":"tools/list"}`), want: `"req-1"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := WrapMessage(tt.raw, Downstream)
			if err != nil {
				t.Fatalf("WrapMessage failed: %v", err)
			}
			if got := string(msg.RawID()); got != tt.want {
				t.Errorf("RawID() = %q, want %q", got, tt.want)
			}
		})
	}
}
