// Package inbound defines the inbound port interfaces the transport
// layer drives.
package inbound

import "context"

// SessionService is the inbound port for per-session request handling.
// Transport adapters call this interface once a session identifier has
// been resolved from the incoming request.
type SessionService interface {
	// ListTools returns the active catalogue for a session as an ordered,
	// outward-name-keyed list.
	ListTools(ctx context.Context, sessionID string) ([]ToolSummary, error)

	// CallTool invokes a tool by outward name. An unknown or disabled
	// outward name yields an error; callers map this to the protocol's
	// "tool not found" error.
	CallTool(ctx context.Context, req CallRequest) (Result, error)

	// Close tears down session state and cancels in-flight invocations.
	Close(ctx context.Context, sessionID string) error
}

// ToolSummary is the transport-facing projection of a CallableTool.
type ToolSummary struct {
	OutwardName string
	Description string
	InputSchema map[string]any
}

// CallRequest is the inbound shape of a tools/call request after the
// legacy rewriter has run.
type CallRequest struct {
	SessionID   string
	OutwardName string
	Arguments   map[string]any
	BearerToken string
	// ProgressToken is non-nil iff the client requested progress.
	ProgressToken any
	// OnProgress delivers one relayed progress notification downstream. A
	// non-nil error means the downstream transport failed; the bridge
	// latches relay off for the rest of the invocation on the first one.
	OnProgress   func(progress, total float64, message string) error
	CancelSignal <-chan struct{}
}

// Result is the transport-facing tool result.
type Result struct {
	IsError  bool
	Content  []ContentItem
	Metadata map[string]any
}

// ContentItem mirrors the downstream protocol's content block shape.
type ContentItem struct {
	Type string
	Text string
	Raw  map[string]any
}
