// Package space contains domain types for remote Gradio Space endpoints
// discovered and cached by the aggregating proxy.
package space

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRef is returned when a space reference does not have the
// required owner/name shape.
var ErrInvalidRef = errors.New("invalid space reference")

// Ref is a stable identifier for a remote Gradio Space: "owner/name".
// It must contain exactly one '/' and no whitespace.
type Ref string

// ParseRef validates and returns a Ref from a raw string.
func ParseRef(raw string) (Ref, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRef)
	}
	if strings.ContainsAny(raw, " \t\n\r") {
		return "", fmt.Errorf("%w: %q contains whitespace", ErrInvalidRef, raw)
	}
	if strings.Count(raw, "/") != 1 {
		return "", fmt.Errorf("%w: %q must contain exactly one '/'", ErrInvalidRef, raw)
	}
	owner, name, _ := strings.Cut(raw, "/")
	if owner == "" || name == "" {
		return "", fmt.Errorf("%w: %q has an empty owner or name", ErrInvalidRef, raw)
	}
	return Ref(raw), nil
}

// String returns the raw "owner/name" form.
func (r Ref) String() string {
	return string(r)
}

// RuntimeStage enumerates the upstream runtime lifecycle states relevant
// to discovery. Unknown values are preserved verbatim.
type RuntimeStage string

const (
	RuntimeRunning  RuntimeStage = "RUNNING"
	RuntimeSleeping RuntimeStage = "SLEEPING"
)

// Metadata is the cached description of a remote Space, as returned by the
// hub API.
type Metadata struct {
	Ref          Ref
	Subdomain    string
	SDK          string
	Private      bool
	Emoji        string
	Title        string
	RuntimeStage string
	ETag         string
	FetchedAt    time.Time
}

// Validate checks that the metadata is usable: subdomain is required to
// build upstream URLs. Callers use this before inserting a Metadata into
// the cache.
func (m Metadata) Validate() error {
	if m.Subdomain == "" {
		return errors.New("space metadata: subdomain is required")
	}
	return nil
}

// IsGradio reports whether this space's SDK serves MCP tool schemas at all.
// Non-gradio SDKs (static, streamlit, ...) never have a tool schema.
func (m Metadata) IsGradio() bool {
	return m.SDK == "gradio"
}

// SSEEndpoint returns the upstream MCP SSE endpoint URL for this space.
func (m Metadata) SSEEndpoint() string {
	return fmt.Sprintf("https://%s.hf.space/gradio_api/mcp/sse", m.Subdomain)
}

// SchemaEndpoint returns the upstream MCP schema endpoint URL for this space.
func (m Metadata) SchemaEndpoint() string {
	return fmt.Sprintf("https://%s.hf.space/gradio_api/mcp/schema", m.Subdomain)
}

// HubAPIURL returns the hub metadata endpoint URL for this ref.
func (r Ref) HubAPIURL() string {
	return fmt.Sprintf("https://huggingface.co/api/spaces/%s", r)
}
