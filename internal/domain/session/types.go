// Package session manages per-client session state across tool calls:
// the active catalogue of callable tools, header-driven selection
// overrides, and the cancellation of in-flight upstream invocations on
// teardown.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spacebridge/gateway/internal/domain/tool"
)

// HeaderOverrides carries the per-session tool-selection overrides
// supplied via X-MCP-Bouquet / X-MCP-Mix / X-MCP-Gradio.
type HeaderOverrides struct {
	Bouquet string
	Mix     []string
	Gradio  []string
}

// ClientInfo is the optional client identity announced at session start.
type ClientInfo struct {
	Name    string
	Version string
}

// ChangeEvent is sent on a session's catalogue listener whenever the set
// of enabled outward names changes.
type ChangeEvent struct {
	EnabledOutwardNames []string
}

// CallableTool is an entry in the active per-session catalogue.
type CallableTool struct {
	OutwardName string
	Description string
	UpstreamRef string
	Subdomain   string
	ToolName    string
	Schema      map[string]any
	Enabled     bool
	// BuiltIn is true when this entry dispatches to a built-in handler
	// rather than an upstream space.
	BuiltIn bool
	// Index is the 1-based position of the backing endpoint in the
	// session's endpoint list; zero for built-ins.
	Index int
	// Private is true when the backing space is private.
	Private bool
	// Complexity is the parameter classification of a dynamic tool's
	// schema, gating its eligibility for the invoke convenience path.
	Complexity tool.Complexity
	// Convenience marks the per-endpoint invoke entry that accepts a tool
	// name plus JSON-encoded arguments instead of structured ones.
	Convenience bool
}

// Context is everything scoped to one connected client. Reads and
// writes of the catalogue go through its methods, which hold mu for the
// duration.
type Context struct {
	ID              string
	ClientInfo      *ClientInfo
	BearerToken     string
	HeaderOverrides HeaderOverrides

	mu                sync.RWMutex
	catalogue         map[string]CallableTool
	listener          chan ChangeEvent
	lastEnabled       map[string]bool
	cancelInvocations []context.CancelFunc
	createdAt         time.Time
	lastAccess        time.Time
}

// New creates a Context with a freshly generated session ID and an
// unbuffered, single-subscriber catalogue listener.
func New(overrides HeaderOverrides, bearerToken string) *Context {
	now := time.Now()
	return &Context{
		ID:              uuid.NewString(),
		BearerToken:     bearerToken,
		HeaderOverrides: overrides,
		catalogue:       make(map[string]CallableTool),
		listener:        make(chan ChangeEvent),
		lastEnabled:     make(map[string]bool),
		createdAt:       now,
		lastAccess:      now,
	}
}

// Listener returns the session's catalogue-change channel.
func (c *Context) Listener() <-chan ChangeEvent {
	return c.listener
}

// Touch refreshes the last-access timestamp used for idle-expiry checks.
func (c *Context) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAccess = time.Now()
}

// IdleSince reports how long the session has been idle.
func (c *Context) IdleSince() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.lastAccess)
}

// Get returns the CallableTool registered under outwardName, regardless
// of its enabled state (callers decide how to treat a disabled lookup).
func (c *Context) Get(outwardName string) (CallableTool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.catalogue[outwardName]
	return t, ok
}

// List returns every enabled CallableTool. A disabled entry is never
// included even though it remains invocable-as-error via Get.
func (c *Context) List() []CallableTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]CallableTool, 0, len(c.catalogue))
	for _, t := range c.catalogue {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// Replace atomically swaps the catalogue and, iff the set of enabled
// outward names changed relative to the previous emission, sends a
// ChangeEvent on the listener (dropped silently unless a subscriber is
// already waiting to receive; the channel is unbuffered and the send is
// non-blocking to the producer).
func (c *Context) Replace(tools map[string]CallableTool) {
	c.mu.Lock()
	c.catalogue = tools
	enabled, names := enabledNames(tools)
	changed := !mapsEqual(enabled, c.lastEnabled)
	c.lastEnabled = enabled
	c.mu.Unlock()

	if changed {
		c.emit(names)
	}
}

// SetEnabled toggles a single tool's enabled state and emits a change
// event iff the enabled set actually changed.
func (c *Context) SetEnabled(outwardName string, enabled bool) {
	c.mu.Lock()
	t, ok := c.catalogue[outwardName]
	if !ok {
		c.mu.Unlock()
		return
	}
	t.Enabled = enabled
	c.catalogue[outwardName] = t

	newEnabled, names := enabledNames(c.catalogue)
	changed := !mapsEqual(newEnabled, c.lastEnabled)
	c.lastEnabled = newEnabled
	c.mu.Unlock()

	if changed {
		c.emit(names)
	}
}

func (c *Context) emit(names []string) {
	select {
	case c.listener <- ChangeEvent{EnabledOutwardNames: names}:
	default:
	}
}

func enabledNames(tools map[string]CallableTool) (map[string]bool, []string) {
	enabled := make(map[string]bool, len(tools))
	names := make([]string, 0, len(tools))
	for name, t := range tools {
		if t.Enabled {
			enabled[name] = true
			names = append(names, name)
		}
	}
	return enabled, names
}

// Close tears down the session: every in-flight invocation registered via
// TrackCancel is cancelled and the listener channel is closed.
func (c *Context) Close() {
	c.mu.Lock()
	cancels := c.cancelInvocations
	c.cancelInvocations = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	close(c.listener)
}

// TrackCancel registers an in-flight invocation's cancel function so it is
// cancelled on session teardown.
func (c *Context) TrackCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelInvocations = append(c.cancelInvocations, cancel)
}

func mapsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
