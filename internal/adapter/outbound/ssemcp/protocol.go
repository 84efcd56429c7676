package ssemcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/spacebridge/gateway/internal/port/outbound"
)

// encodeRequest frames one outbound call through the same SDK codec the
// downstream leg parses with (pkg/mcp), so both legs of the proxy share
// a single JSON-RPC envelope implementation.
func encodeRequest(id jsonrpc.ID, method string, params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("ssemcp: marshal %s params: %w", method, err)
	}
	return jsonrpc.EncodeMessage(&jsonrpc.Request{ID: id, Method: method, Params: raw})
}

func initializeRequest(id jsonrpc.ID) ([]byte, error) {
	return encodeRequest(id, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "spacebridge",
			"version": "1.0",
		},
	})
}

func toolsCallRequest(id jsonrpc.ID, toolName string, arguments map[string]any) ([]byte, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	return encodeRequest(id, "tools/call", map[string]any{
		"name":      toolName,
		"arguments": arguments,
	})
}

// parseProgress extracts progress, total, and message from a
// notifications/progress params payload. Missing fields default to zero
// values rather than erroring, since upstream spaces are not guaranteed to
// populate every field.
func parseProgress(raw json.RawMessage) (progress, total float64, message string) {
	if len(raw) == 0 {
		return 0, 0, ""
	}
	var params struct {
		Progress float64 `json:"progress"`
		Total    float64 `json:"total"`
		Message  string  `json:"message"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return 0, 0, ""
	}
	return params.Progress, params.Total, params.Message
}

func decodeToolResult(raw json.RawMessage) (outbound.Result, error) {
	var generic struct {
		IsError bool             `json:"isError"`
		Content []map[string]any `json:"content"`
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return outbound.Result{}, fmt.Errorf("ssemcp: decode tool result: %w", err)
	}

	items := make([]outbound.ContentItem, 0, len(generic.Content))
	for _, c := range generic.Content {
		typ, _ := c["type"].(string)
		item := outbound.ContentItem{Type: typ, Raw: c}
		if typ == "text" {
			item.Text, _ = c["text"].(string)
		}
		items = append(items, item)
	}

	return outbound.Result{
		IsError: generic.IsError,
		Content: items,
	}, nil
}
