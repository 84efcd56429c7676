package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/spacebridge/gateway/internal/domain/registry"
	"github.com/spacebridge/gateway/internal/domain/selection"
	"github.com/spacebridge/gateway/internal/domain/session"
	"github.com/spacebridge/gateway/internal/port/inbound"
	"github.com/spacebridge/gateway/internal/service/proxy"
	"github.com/spacebridge/gateway/pkg/mcp"
)

// MCPProtocolVersion is the downstream protocol version this handler speaks.
const MCPProtocolVersion = "2025-06-18"

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// MCPSessionIDHeader is the header used to carry a session identifier.
const MCPSessionIDHeader = "Mcp-Session-Id"

// MCPProtocolVersionHeader echoes the protocol version on every response.
const MCPProtocolVersionHeader = "MCP-Protocol-Version"

// errNoProgressStream is returned by the progress relay callback when the
// session has no open SSE connection to deliver notifications on.
var errNoProgressStream = errors.New("no open SSE stream for session")

// Dispatcher is the seam between this transport and the orchestration
// layer: internal/service/proxy.Service satisfies it directly. Routing,
// JSON-RPC framing, and SSE plumbing live on this side of the interface;
// the session, discovery, and bridge machinery lives on the other side.
type Dispatcher interface {
	Initialize(ctx context.Context, req proxy.InitRequest) (string, error)
	ListTools(ctx context.Context, sessionID string) ([]inbound.ToolSummary, error)
	CallTool(ctx context.Context, req inbound.CallRequest) (inbound.Result, error)
	// Subscribe returns the session's catalogue-change channel; it closes
	// when the session is torn down.
	Subscribe(sessionID string) (<-chan session.ChangeEvent, error)
	Close(ctx context.Context, sessionID string) error
}

// sessionRegistry manages active SSE connections for server-initiated
// messages (progress notifications), keyed by session ID. Multiple SSE
// connections may share a session.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string][]chan []byte
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string][]chan []byte)}
}

func (r *sessionRegistry) register(sessionID string, ch chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = append(r.sessions[sessionID], ch)
}

func (r *sessionRegistry) unregister(sessionID string, ch chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels := r.sessions[sessionID]
	for i, c := range channels {
		if c == ch {
			r.sessions[sessionID] = append(channels[:i], channels[i+1:]...)
			break
		}
	}
	if len(r.sessions[sessionID]) == 0 {
		delete(r.sessions, sessionID)
	}
}

// push fans a server-initiated message out to every SSE connection open
// for sessionID and reports whether the session had any connection to
// deliver to. A full channel still drops the message rather than
// blocking the caller; only a session with no open SSE stream at all
// counts as undeliverable, so callers can treat that as a disconnected
// downstream.
func (r *sessionRegistry) push(sessionID string, msg []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels := r.sessions[sessionID]
	for _, ch := range channels {
		select {
		case ch <- msg:
		default:
		}
	}
	return len(channels) > 0
}

func (r *sessionRegistry) terminate(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	channels, exists := r.sessions[sessionID]
	if !exists {
		return false
	}
	for _, ch := range channels {
		close(ch)
	}
	delete(r.sessions, sessionID)
	return true
}

func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, channels := range r.sessions {
		for _, ch := range channels {
			close(ch)
		}
	}
	r.sessions = make(map[string][]chan []byte)
}

// mcpHandler routes by HTTP method to the per-verb handlers.
func mcpHandler(svc Dispatcher, reg *sessionRegistry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlePost(w, r, svc, reg)
		case http.MethodGet:
			handleGet(w, r, reg)
		case http.MethodDelete:
			handleDelete(w, r, svc, reg)
		case http.MethodOptions:
			handleOptions(w, r)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
}

// handlePost decodes one JSON-RPC request, dispatches it, and writes the
// response. Body-level validation happens by hand (content type, size,
// well-formedness) before handing the bytes to mcp.WrapMessage for the
// shared wire-envelope parsing used on both legs of the proxy.
func handlePost(w http.ResponseWriter, r *http.Request, svc Dispatcher, reg *sessionRegistry) {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		writeJSONRPCError(w, nil, -32700, "Parse error: content type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSONRPCError(w, nil, -32700, "Parse error: request body too large (max 1MB)")
			return
		}
		writeJSONRPCError(w, nil, -32700, "Parse error: failed to read request body")
		return
	}

	if len(body) == 0 {
		writeJSONRPCError(w, nil, -32700, "Parse error: empty request body")
		return
	}

	if !json.Valid(body) {
		writeJSONRPCError(w, nil, -32700, "Parse error: invalid JSON")
		return
	}

	var envelope struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		ID      json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeJSONRPCError(w, nil, -32600, "Invalid Request: request must be a JSON object")
		return
	}
	if envelope.JSONRPC != "2.0" {
		writeJSONRPCError(w, nil, -32600, "Invalid Request: missing or invalid jsonrpc version (must be \"2.0\")")
		return
	}
	if envelope.Method == "" {
		writeJSONRPCError(w, nil, -32600, "Invalid Request: missing method field")
		return
	}

	msg, err := mcp.WrapMessage(body, mcp.Downstream)
	if err != nil {
		writeJSONRPCError(w, nil, -32600, "Invalid Request: "+err.Error())
		return
	}

	isNotification := envelope.ID == nil || string(envelope.ID) == "null"

	w.Header().Set(MCPProtocolVersionHeader, MCPProtocolVersion)
	if sid := r.Header.Get(MCPSessionIDHeader); sid != "" {
		w.Header().Set(MCPSessionIDHeader, sid)
	}

	result, rpcErr := dispatch(r, svc, reg, msg)
	if init, ok := result.(map[string]any); ok && msg.Method() == "initialize" {
		if sid, ok := init["sessionId"].(string); ok && sid != "" {
			w.Header().Set(MCPSessionIDHeader, sid)
		}
	}

	if isNotification {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if rpcErr != nil {
		_ = json.NewEncoder(w).Encode(jsonRPCError{
			JSONRPC: "2.0",
			ID:      rawID(envelope.ID),
			Error:   jsonRPCErrorField{Code: rpcErr.code, Message: rpcErr.message},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      rawID(envelope.ID),
		"result":  result,
	})
}

func rawID(id json.RawMessage) any {
	if len(id) == 0 {
		return nil
	}
	var v any
	_ = json.Unmarshal(id, &v)
	return v
}

// rpcError is the internal representation of a JSON-RPC error used by
// dispatch before it's serialized.
type rpcError struct {
	code    int
	message string
}

// dispatch routes a decoded downstream message to the Dispatcher by
// method name, translating domain errors into protocol-shaped results.
func dispatch(r *http.Request, svc Dispatcher, reg *sessionRegistry, msg *mcp.Message) (any, *rpcError) {
	ctx := r.Context()
	switch msg.Method() {
	case "initialize":
		return dispatchInitialize(ctx, r, svc, reg, msg)
	case "notifications/initialized":
		return nil, nil
	case "tools/list":
		return dispatchListTools(ctx, r, svc)
	case "tools/call":
		return dispatchCallTool(ctx, r, svc, reg, msg)
	default:
		return nil, &rpcError{code: -32601, message: "Method not found: " + msg.Method()}
	}
}

func dispatchInitialize(ctx context.Context, r *http.Request, svc Dispatcher, reg *sessionRegistry, msg *mcp.Message) (any, *rpcError) {
	if svc == nil {
		return nil, &rpcError{code: -32603, message: "Internal error"}
	}
	params := msg.ParseParams()
	var clientInfo *session.ClientInfo
	if ci, ok := params["clientInfo"].(map[string]any); ok {
		name, _ := ci["name"].(string)
		version, _ := ci["version"].(string)
		clientInfo = &session.ClientInfo{Name: name, Version: version}
	}

	req := proxy.InitRequest{
		BearerToken: extractBearerToken(r),
		ClientInfo:  clientInfo,
		Headers:     parseSelectionHeaders(r),
	}
	sessionID, err := svc.Initialize(ctx, req)
	if err != nil {
		return nil, &rpcError{code: -32603, message: "Internal error"}
	}

	if reg != nil {
		if events, err := svc.Subscribe(sessionID); err == nil {
			go forwardListChanged(sessionID, events, reg)
		}
	}

	return map[string]any{
		"protocolVersion": MCPProtocolVersion,
		"capabilities": map[string]any{
			// Declared explicitly rather than relying on an SDK's implicit
			// "register => listChanged: true" registration side effect.
			"tools": map[string]any{"listChanged": true},
		},
		"serverInfo": map[string]any{
			"name":    "spacebridge",
			"version": "1.0",
		},
		"sessionId": sessionID,
	}, nil
}

// forwardListChanged drains a session's catalogue-change channel and fans
// each event out as a notifications/tools/list_changed frame on the
// session's open SSE connections. The goroutine exits when the session is
// torn down (the channel closes).
func forwardListChanged(sessionID string, events <-chan session.ChangeEvent, reg *sessionRegistry) {
	notification, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "notifications/tools/list_changed",
	})
	if err != nil {
		return
	}
	for range events {
		reg.push(sessionID, notification)
	}
}

func dispatchListTools(ctx context.Context, r *http.Request, svc Dispatcher) (any, *rpcError) {
	sessionID := r.Header.Get(MCPSessionIDHeader)
	if sessionID == "" {
		return nil, &rpcError{code: -32602, message: "Invalid params: missing Mcp-Session-Id"}
	}
	if svc == nil {
		return nil, &rpcError{code: -32603, message: "Internal error"}
	}
	tools, err := svc.ListTools(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, &rpcError{code: -32001, message: "Session not found"}
		}
		return nil, &rpcError{code: -32603, message: "Internal error"}
	}

	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		entry := map[string]any{
			"name":        t.OutwardName,
			"inputSchema": t.InputSchema,
		}
		if t.Description != "" {
			entry["description"] = t.Description
		}
		out = append(out, entry)
	}
	return map[string]any{"tools": out}, nil
}

func dispatchCallTool(ctx context.Context, r *http.Request, svc Dispatcher, reg *sessionRegistry, msg *mcp.Message) (any, *rpcError) {
	sessionID := r.Header.Get(MCPSessionIDHeader)
	if sessionID == "" {
		return nil, &rpcError{code: -32602, message: "Invalid params: missing Mcp-Session-Id"}
	}
	if svc == nil {
		return nil, &rpcError{code: -32603, message: "Internal error"}
	}

	params := msg.ParseParams()
	name, _ := params["name"].(string)
	arguments, _ := params["arguments"].(map[string]any)
	progressToken := msg.ProgressToken()

	var onProgress func(progress, total float64, message string) error
	if progressToken != nil && reg != nil {
		onProgress = func(progress, total float64, message string) error {
			notification, err := json.Marshal(map[string]any{
				"jsonrpc": "2.0",
				"method":  "notifications/progress",
				"params": map[string]any{
					"progressToken": progressToken,
					"progress":      progress,
					"total":         total,
					"message":       message,
				},
			})
			if err != nil {
				return err
			}
			// A session with no open SSE stream has no way to receive
			// progress: report it as a send failure so the bridge's relay
			// latches off for the rest of the invocation. A full channel
			// on a live stream stays best-effort.
			if !reg.push(sessionID, notification) {
				return errNoProgressStream
			}
			return nil
		}
	}

	req := inbound.CallRequest{
		SessionID:     sessionID,
		OutwardName:   name,
		Arguments:     arguments,
		BearerToken:   extractBearerToken(r),
		ProgressToken: progressToken,
		OnProgress:    onProgress,
		CancelSignal:  ctx.Done(),
	}

	result, err := svc.CallTool(ctx, req)
	if err != nil {
		if errors.Is(err, registry.ErrToolNotFound) {
			return nil, &rpcError{code: -32602, message: "tool not found"}
		}
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, &rpcError{code: -32001, message: "Session not found"}
		}
		return nil, &rpcError{code: -32603, message: "Internal error"}
	}

	content := make([]map[string]any, 0, len(result.Content))
	for _, item := range result.Content {
		if item.Raw != nil {
			content = append(content, item.Raw)
			continue
		}
		content = append(content, map[string]any{"type": item.Type, "text": item.Text})
	}

	out := map[string]any{"isError": result.IsError, "content": content}
	if len(result.Metadata) > 0 {
		out["_meta"] = result.Metadata
	}
	return out, nil
}

// extractBearerToken reads the downstream Authorization header. Only
// the bearer form is recognised; anything else is ignored rather than
// rejected, since the token is verified before it reaches this proxy.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimPrefix(auth, prefix)
	}
	return ""
}

// parseSelectionHeaders builds selection.Headers from the session-level
// headers: X-MCP-Bouquet, X-MCP-Mix, X-MCP-Gradio.
func parseSelectionHeaders(r *http.Request) selection.Headers {
	return selection.Headers{
		Bouquet: r.Header.Get("X-MCP-Bouquet"),
		Mix:     splitHeaderList(r.Header.Get("X-MCP-Mix")),
		Gradio:  splitHeaderList(r.Header.Get("X-MCP-Gradio")),
	}
}

func splitHeaderList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// handleGet opens an SSE stream for server-initiated messages (progress
// notifications relayed from the upstream bridge).
func handleGet(w http.ResponseWriter, r *http.Request, reg *sessionRegistry) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.Header.Get(MCPSessionIDHeader)
	if sessionID == "" {
		http.Error(w, "Mcp-Session-Id header required for SSE", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(MCPProtocolVersionHeader, MCPProtocolVersion)
	w.Header().Set(MCPSessionIDHeader, sessionID)

	msgChan := make(chan []byte, 100)
	reg.register(sessionID, msgChan)
	defer reg.unregister(sessionID, msgChan)

	ctx := r.Context()

	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// handleDelete terminates a session: it tears down the proxy-side
// session state (cancelling in-flight invocations) and
// closes any open SSE connections.
func handleDelete(w http.ResponseWriter, r *http.Request, svc Dispatcher, reg *sessionRegistry) {
	sessionID := r.Header.Get(MCPSessionIDHeader)
	if sessionID == "" {
		http.Error(w, "Mcp-Session-Id header required", http.StatusBadRequest)
		return
	}

	if svc != nil {
		if err := svc.Close(r.Context(), sessionID); err != nil {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
	}
	reg.terminate(sessionID)

	w.WriteHeader(http.StatusNoContent)
}

// handleOptions handles CORS preflight requests.
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id, MCP-Protocol-Version, X-MCP-Bouquet, X-MCP-Mix, X-MCP-Gradio")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// jsonRPCError represents a JSON-RPC 2.0 error response.
type jsonRPCError struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      interface{}       `json:"id"`
	Error   jsonRPCErrorField `json:"error"`
}

type jsonRPCErrorField struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeJSONRPCError writes a JSON-RPC error response. JSON-RPC errors
// always return 200 OK; the error is in the body per the protocol.
func writeJSONRPCError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_ = json.NewEncoder(w).Encode(jsonRPCError{
		JSONRPC: "2.0",
		ID:      id,
		Error:   jsonRPCErrorField{Code: code, Message: message},
	})
}

// healthHandler is the fallback /health handler used when no
// HealthChecker was configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}
