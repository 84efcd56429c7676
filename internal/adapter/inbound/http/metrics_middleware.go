package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// MetricsMiddleware wraps an HTTP handler to record Prometheus metrics.
// It records:
// - request_duration_seconds histogram (by JSON-RPC method)
// - requests_total counter (by JSON-RPC method and status)
// The label is the JSON-RPC method the request actually carries
// (tools/call, tools/list, ...) rather than the HTTP verb, since every
// POST to /mcp shares the same verb regardless of what it invokes.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics for /metrics and /health endpoints
			if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			method := peekRPCMethod(r)

			// Wrap ResponseWriter to capture status code
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := statusToLabel(wrapped.status)

			metrics.RequestDuration.WithLabelValues(method).Observe(duration)
			metrics.RequestsTotal.WithLabelValues(method, status).Inc()
		})
	}
}

// peekRPCMethod determines the label to instrument a request under. GET,
// DELETE, and OPTIONS map to the fixed verbs handleGet/handleDelete/
// handleOptions serve (stream/terminate/preflight requests carry no
// JSON-RPC method of their own). POST bodies are read far enough
// to decode the envelope's "method" field, then the body is restored onto
// the request so handlePost can still read it in full.
func peekRPCMethod(r *http.Request) string {
	switch r.Method {
	case http.MethodGet:
		return "stream"
	case http.MethodDelete:
		return "terminate"
	case http.MethodOptions:
		return "options"
	case http.MethodPost:
		if r.Body == nil {
			return "unknown"
		}
		orig := r.Body
		body, err := io.ReadAll(io.LimitReader(orig, maxRequestBodySize))
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), orig), orig}
		if err != nil {
			return "unknown"
		}

		var envelope struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Method == "" {
			return "unknown"
		}
		return envelope.Method
	default:
		return "unknown"
	}
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush delegates to the underlying ResponseWriter if it supports http.Flusher.
// This is required for SSE (Server-Sent Events) connections to work through the metrics middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// statusToLabel converts HTTP status code to label value
func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
