// Package ctxkey holds shared context key types. It imports nothing from
// the rest of the module so any package can reach a request-scoped value
// without creating an import cycle.
package ctxkey

// LoggerKey keys the request-scoped logger enriched with request_id,
// stored by the transport's request-ID middleware.
type LoggerKey struct{}
