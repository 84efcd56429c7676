// Package mcp provides the JSON-RPC message envelope and codec utilities
// shared by the downstream and upstream legs of the proxy.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates which leg of the proxy a message is flowing through.
type Direction int

const (
	// Downstream indicates a message flowing between the connected client
	// and the proxy.
	Downstream Direction = iota
	// Upstream indicates a message flowing between the proxy and a space's
	// SSE endpoint.
	Upstream
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case Downstream:
		return "downstream"
	case Upstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Message wraps a decoded JSON-RPC message with the bookkeeping the proxy
// needs: raw bytes for passthrough, a timestamp, and lazily parsed params.
type Message struct {
	// Raw contains the original bytes of the message, used for passthrough
	// when no modification is needed.
	Raw []byte

	Direction Direction

	// Decoded is either *jsonrpc.Request or *jsonrpc.Response. May be nil
	// if parsing failed but passthrough is still desired.
	Decoded jsonrpc.Message

	Timestamp time.Time

	// ParsedParams caches the decoded request params across callers.
	ParsedParams map[string]any
}

// IsRequest reports whether the message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse reports whether the message is a JSON-RPC response.
func (m *Message) IsResponse() bool {
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the method name if this is a request, "" otherwise.
func (m *Message) Method() string {
	req, ok := m.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// IsToolCall reports whether this is a tools/call request.
func (m *Message) IsToolCall() bool {
	return m.Method() == "tools/call"
}

// Request returns the underlying Request, or nil if this is not a request.
func (m *Message) Request() *jsonrpc.Request {
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying Response, or nil if this is not a response.
func (m *Message) Response() *jsonrpc.Response {
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// ParseParams decodes the request params, caching the result. Safe to call
// more than once.
func (m *Message) ParseParams() map[string]any {
	if m.ParsedParams != nil {
		return m.ParsedParams
	}
	req := m.Request()
	if req == nil || req.Params == nil {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}
	m.ParsedParams = params
	return params
}

// ProgressToken extracts params._meta.progressToken, returning nil if the
// request carried none.
func (m *Message) ProgressToken() any {
	params := m.ParseParams()
	if params == nil {
		return nil
	}
	meta, ok := params["_meta"].(map[string]any)
	if !ok {
		return nil
	}
	return meta["progressToken"]
}

// RawID extracts the request ID directly from the raw bytes: the SDK's
// jsonrpc.ID type does not round-trip cleanly through interface{}, so the
// raw form is the only one guaranteed to preserve the original shape
// (string, number, or null).
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}
	return raw["id"]
}
