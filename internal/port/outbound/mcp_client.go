// Package outbound defines the outbound port interfaces the core services
// depend on: the upstream SSE bridge client. Discovery's hub-facing ports
// (metadata and schema fetchers) are declared directly in
// internal/service/discovery, which is their only consumer.
package outbound

import (
	"context"
)

// SSEClient is the outbound port for a single transient upstream MCP call
// over Server-Sent Events. One SSEClient instance backs exactly one
// session.Invocation: opened, used once, and closed on every exit path.
type SSEClient interface {
	// Call performs the full protocol handshake, sends one tools/call,
	// relays progress by calling onProgress synchronously for each upstream
	// progress notification, in arrival order, and returns the upstream result. The captured
	// X-Proxied-Replica header, if any, is returned alongside the result.
	Call(ctx context.Context, toolName string, arguments map[string]any, onProgress func(progress, total float64, message string)) (Result, error)

	// Close releases any resources held by the client. Safe to call more
	// than once; safe to call without a prior Call.
	Close() error
}

// Result is the outcome of a single upstream tools/call.
type Result struct {
	IsError         bool
	Content         []ContentItem
	CapturedHeaders map[string]string
}

// ContentItem mirrors the downstream protocol's content block shape; text
// items are the only ones the bridge ever mutates (replica URL rewrite).
type ContentItem struct {
	Type string
	Text string
	// Raw holds the item verbatim for non-text types, passed through
	// byte-for-byte.
	Raw map[string]any
}
