// Package registry implements the session & tool registry: constructing
// a session's active catalogue from the tool-selection strategy's
// resolved ID set, synthesising outward names for dynamic
// (endpoint-backed) tools, and dispatching tools/call requests to either
// a built-in handler or the upstream bridge.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spacebridge/gateway/internal/domain/session"
	"github.com/spacebridge/gateway/internal/domain/space"
	"github.com/spacebridge/gateway/internal/domain/tool"
	"github.com/spacebridge/gateway/internal/port/inbound"
	"github.com/spacebridge/gateway/internal/port/outbound"
	"github.com/spacebridge/gateway/internal/service/bridge"
)

// ErrToolNotFound is returned when an outward name has no catalogue entry,
// or its entry is disabled.
var ErrToolNotFound = errors.New("registry: tool not found")

// BuiltinHandler dispatches a tools/call to a static built-in tool. Built-
// in implementations (search, repo details, docs fetch) are plain HTTP
// clients against the service catalogue that live outside this module;
// this is the seam they plug into.
type BuiltinHandler interface {
	Invoke(ctx context.Context, bearerToken string, sessionInfo *session.ClientInfo, arguments map[string]any) (inbound.Result, error)
}

// Builtin is one statically registered built-in tool.
type Builtin struct {
	ID          string
	Description string
	InputSchema map[string]any
	Handler     BuiltinHandler
}

// MetadataResolver resolves a single ref's metadata, triggering a fresh
// Phase-A lookup when the cache has nothing fresh for it.
type MetadataResolver interface {
	ResolveMetadata(ctx context.Context, ref space.Ref, bearerToken string) (space.Metadata, error)
	ResolveTools(ctx context.Context, md space.Metadata, bearerToken string) ([]tool.Descriptor, error)
}

// Bridge is the subset of the upstream bridge the registry dispatches
// dynamic invocations through.
type Bridge interface {
	Invoke(ctx context.Context, inv *session.Invocation, subdomain, toolName string, arguments map[string]any, bearerToken string, sendProgress bridge.SendFunc) (outbound.Result, error)
}

// Registry owns the static built-in table and dispatches every session's
// tools/list and tools/call traffic.
type Registry struct {
	builtins map[string]Builtin
	resolver MetadataResolver
	bridge   Bridge
	logger   *slog.Logger
}

// New builds a Registry from a static built-in tool table.
func New(builtins []Builtin, resolver MetadataResolver, br Bridge, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[string]Builtin, len(builtins))
	for _, b := range builtins {
		m[b.ID] = b
	}
	return &Registry{builtins: m, resolver: resolver, bridge: br, logger: logger}
}

// KnownBuiltinIDs returns every registered built-in tool ID, used as the
// tool-selection strategy's fallback universe.
func (r *Registry) KnownBuiltinIDs() []string {
	ids := make([]string, 0, len(r.builtins))
	for id := range r.builtins {
		ids = append(ids, id)
	}
	return ids
}

// Endpoint is one dynamic space in a session's endpoint list, at its
// 1-based position (used to build the outward name prefix).
type Endpoint struct {
	Index int
	Ref   space.Ref
}

// BuildCatalogue resolves built-in and dynamic tools for the given
// selection and endpoint list, then replaces the session's active
// catalogue. Endpoint discovery failures are logged and that endpoint
// simply contributes no tools; they do not fail the whole call.
func (r *Registry) BuildCatalogue(ctx context.Context, sess *session.Context, toolIDs []string, endpoints []Endpoint) {
	catalogue := make(map[string]session.CallableTool, len(toolIDs)+len(endpoints))

	for _, id := range toolIDs {
		b, ok := r.builtins[id]
		if !ok {
			continue
		}
		catalogue[id] = session.CallableTool{
			OutwardName: id,
			Description: b.Description,
			ToolName:    id,
			Schema:      b.InputSchema,
			Enabled:     true,
			BuiltIn:     true,
		}
	}

	for _, ep := range endpoints {
		r.addDynamicEndpoint(ctx, sess, catalogue, ep)
	}

	sess.Replace(catalogue)
}

func (r *Registry) addDynamicEndpoint(ctx context.Context, sess *session.Context, catalogue map[string]session.CallableTool, ep Endpoint) {
	md, err := r.resolver.ResolveMetadata(ctx, ep.Ref, sess.BearerToken)
	if err != nil {
		r.logger.Warn("registry: endpoint metadata unavailable", "ref", ep.Ref.String(), "error", err)
		return
	}
	if !md.IsGradio() {
		return
	}

	descriptors, err := r.resolver.ResolveTools(ctx, md, sess.BearerToken)
	if err != nil {
		r.logger.Warn("registry: endpoint schema unavailable", "ref", ep.Ref.String(), "error", err)
		return
	}
	if len(descriptors) == 0 {
		return
	}

	for _, d := range descriptors {
		outwardName := OutwardName(ep.Index, md.Private, d.Name)
		if _, conflict := catalogue[outwardName]; conflict {
			r.logger.Warn("registry: duplicate outward name in endpoint schema, last one wins",
				"ref", ep.Ref.String(), "outward_name", outwardName)
		}
		catalogue[outwardName] = session.CallableTool{
			OutwardName: outwardName,
			Description: d.Description,
			UpstreamRef: ep.Ref.String(),
			Subdomain:   md.Subdomain,
			ToolName:    d.Name,
			Schema:      d.InputSchema,
			Enabled:     true,
			Index:       ep.Index,
			Private:     md.Private,
			Complexity:  d.Complexity,
		}
	}

	invokeName := OutwardName(ep.Index, md.Private, "invoke")
	if _, taken := catalogue[invokeName]; !taken {
		catalogue[invokeName] = session.CallableTool{
			OutwardName: invokeName,
			Description: fmt.Sprintf("Invoke a tool on %s by name with JSON-encoded arguments. Accepts tools whose parameters are all primitive; nested parameter shapes must be called through the tool's own entry.", ep.Ref),
			UpstreamRef: ep.Ref.String(),
			Subdomain:   md.Subdomain,
			Schema:      invokeInputSchema(),
			Enabled:     true,
			Index:       ep.Index,
			Private:     md.Private,
			Convenience: true,
		}
	}
}

func invokeInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tool_name": map[string]any{
				"type":        "string",
				"description": "Name of the tool on this endpoint, as reported upstream.",
			},
			"arguments_json": map[string]any{
				"type":        "string",
				"description": "JSON object of arguments for the tool, encoded as a string.",
			},
		},
		"required": []any{"tool_name", "arguments_json"},
	}
}

// OutwardName builds the deterministic outward name for one dynamic tool:
// "gr{index}_{name}" normally, "gr{index}p_{name}" when the backing space
// is private, so downstream consumers can identify private-backed tools
// from the name alone.
func OutwardName(index int, private bool, upstreamName string) string {
	if private {
		return fmt.Sprintf("gr%dp_%s", index, upstreamName)
	}
	return fmt.Sprintf("gr%d_%s", index, upstreamName)
}

// Invoke dispatches one tools/call by outward name: a missing or disabled
// entry is ErrToolNotFound; a built-in entry dispatches to its handler; a
// dynamic entry calls the bridge with the subdomain recorded when the
// catalogue was built. No metadata lookup is made at invocation time, so
// missing or stale metadata is not refreshed here.
func (r *Registry) Invoke(ctx context.Context, sess *session.Context, inv *session.Invocation, outwardName string, arguments map[string]any, sendProgress bridge.SendFunc) (inbound.Result, error) {
	entry, ok := sess.Get(outwardName)
	if !ok || !entry.Enabled {
		return inbound.Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, outwardName)
	}

	if entry.BuiltIn {
		b, ok := r.builtins[entry.ToolName]
		if !ok {
			return inbound.Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, outwardName)
		}
		return b.Handler.Invoke(ctx, sess.BearerToken, sess.ClientInfo, arguments)
	}

	if entry.Convenience {
		return r.invokeConvenience(ctx, sess, inv, entry, arguments, sendProgress)
	}

	result, err := r.bridge.Invoke(ctx, inv, entry.Subdomain, entry.ToolName, arguments, sess.BearerToken, sendProgress)
	if err != nil {
		return inbound.Result{}, err
	}
	return toInboundResult(result), nil
}

// invokeConvenience handles the per-endpoint invoke entry: the caller
// names an upstream tool and supplies its arguments as a JSON string.
// Malformed JSON and complex-schema targets come back as structured error
// results, not protocol errors; tool-call errors are data, not
// exceptions.
func (r *Registry) invokeConvenience(ctx context.Context, sess *session.Context, inv *session.Invocation, entry session.CallableTool, arguments map[string]any, sendProgress bridge.SendFunc) (inbound.Result, error) {
	toolName, _ := arguments["tool_name"].(string)
	if toolName == "" {
		return structuredError(`"tool_name" is required and must be a string naming a tool on this endpoint.`), nil
	}
	rawArgs, _ := arguments["arguments_json"].(string)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &parsed); err != nil {
		return structuredError(fmt.Sprintf(
			`"arguments_json" must be a JSON object encoded as a string, e.g. {"tool_name": %q, "arguments_json": "{\"prompt\": \"a cat\"}"}; got: %v`,
			toolName, err)), nil
	}

	target, ok := sess.Get(OutwardName(entry.Index, entry.Private, toolName))
	if !ok || !target.Enabled || target.Convenience {
		return inbound.Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, toolName)
	}
	if target.Complexity == tool.ComplexityComplex {
		return structuredError(fmt.Sprintf(
			"tool %q takes nested parameters that cannot be expressed as flat JSON arguments; call %q directly with structured arguments instead",
			toolName, target.OutwardName)), nil
	}

	result, err := r.bridge.Invoke(ctx, inv, target.Subdomain, target.ToolName, parsed, sess.BearerToken, sendProgress)
	if err != nil {
		return inbound.Result{}, err
	}
	return toInboundResult(result), nil
}

func structuredError(text string) inbound.Result {
	return inbound.Result{
		IsError: true,
		Content: []inbound.ContentItem{{Type: "text", Text: text}},
	}
}

func toInboundResult(r outbound.Result) inbound.Result {
	content := make([]inbound.ContentItem, len(r.Content))
	for i, item := range r.Content {
		content[i] = inbound.ContentItem{Type: item.Type, Text: item.Text, Raw: item.Raw}
	}

	var meta map[string]any
	if len(r.CapturedHeaders) > 0 {
		meta = map[string]any{"responseHeaders": r.CapturedHeaders}
	}

	return inbound.Result{IsError: r.IsError, Content: content, Metadata: meta}
}
