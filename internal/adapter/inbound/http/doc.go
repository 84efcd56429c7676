// Package http provides the Streamable HTTP transport adapter for the
// proxy: the thin routing/formatting seam in front of the session
// registry, tool-selection strategy, discovery pipeline, two-level
// cache, upstream bridge, schema normalizer, and legacy rewriter, all of
// which live behind the Dispatcher interface
// (internal/service/proxy.Service and the packages it composes).
//
// # Usage
//
//	transport := http.NewHTTPTransport(proxyService,
//	    http.WithAddr(":8080"),
//	    http.WithAllowedOrigins([]string{"https://example.com"}),
//	    http.WithLogger(logger),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	POST /mcp   - send a JSON-RPC request, receive a JSON-RPC response
//	GET /mcp    - open an SSE stream for server-initiated progress and
//	             list_changed notifications (requires Mcp-Session-Id)
//	DELETE /mcp - terminate a session and close its SSE connections
//	GET /health - liveness/readiness (no persistent storage, so this is
//	             always "healthy" once reachable)
//	GET /metrics - Prometheus scrape endpoint
//
// # Headers
//
// Authorization (bearer token), X-MCP-Bouquet, X-MCP-Mix, and
// X-MCP-Gradio on requests; Mcp-Session-Id round-trips on both
// initialize responses and subsequent requests.
//
// # Security
//
// DNS-rebinding protection (Origin header allowlist) guards the local
// listener. There is no API-key or rate-limiting layer here: the bearer
// token is verified before it reaches this proxy, which only consumes
// it.
package http
