package session

import "context"

// Invocation is the per-call state for one tools/call dispatch.
// Created on ingress, destroyed when the call
// returns or errors; at most one upstream SSE client is created per
// Invocation.
type Invocation struct {
	SessionID   string
	OutwardName string
	Arguments   map[string]any

	// ProgressToken is non-nil iff the client requested progress.
	ProgressToken any

	ctx    context.Context
	cancel context.CancelFunc

	captured map[string]string
}

// NewInvocation derives a cancellable Invocation from parent, registering
// its cancel function with the owning session so teardown propagates.
func NewInvocation(parent context.Context, owner *Context, outwardName string, arguments map[string]any, progressToken any) *Invocation {
	ctx, cancel := context.WithCancel(parent)
	if owner != nil {
		owner.TrackCancel(cancel)
	}
	return &Invocation{
		SessionID:     owner.idOrEmpty(),
		OutwardName:   outwardName,
		Arguments:     arguments,
		ProgressToken: progressToken,
		ctx:           ctx,
		cancel:        cancel,
		captured:      make(map[string]string),
	}
}

func (c *Context) idOrEmpty() string {
	if c == nil {
		return ""
	}
	return c.ID
}

// Context returns the cancellable context.Context for this invocation's
// outbound calls.
func (i *Invocation) Context() context.Context {
	return i.ctx
}

// Cancel signals cooperative cancellation; the bridge observes this via
// Context().Done().
func (i *Invocation) Cancel() {
	i.cancel()
}

// Done reports whether the invocation has been cancelled.
func (i *Invocation) Done() <-chan struct{} {
	return i.ctx.Done()
}

// CaptureHeader records a response header captured by the bridge.
func (i *Invocation) CaptureHeader(key, value string) {
	i.captured[key] = value
}

// CapturedHeaders returns the headers captured so far.
func (i *Invocation) CapturedHeaders() map[string]string {
	return i.captured
}

// Finish cancels the invocation's context, releasing its slot in the
// owning session's cancellation registry semantics (the slice entry
// becomes a no-op cancel on session Close, which is safe to call more
// than once).
func (i *Invocation) Finish() {
	i.cancel()
}
