package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/spacebridge/gateway/internal/domain/session"
	"github.com/spacebridge/gateway/internal/service/cache"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker reports liveness of the session manager and discovery
// cache. There is no persistent storage or backpressure concept in this
// proxy, so a reachable check is always "healthy".
type HealthChecker struct {
	sessions *session.Manager
	cache    *cache.Cache
	version  string
}

// NewHealthChecker creates a HealthChecker. Pass nil for components that
// aren't available.
func NewHealthChecker(sessions *session.Manager, c *cache.Cache, version string) *HealthChecker {
	return &HealthChecker{sessions: sessions, cache: c, version: version}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)

	if h.sessions != nil {
		checks["sessions"] = fmt.Sprintf("ok: %d active", h.sessions.Count())
	} else {
		checks["sessions"] = "not configured"
	}

	if h.cache != nil {
		meta := h.cache.MetadataStats()
		schema := h.cache.SchemaStats()
		checks["cache_metadata"] = fmt.Sprintf("hits=%d misses=%d revalidations=%d", meta.Hits, meta.Misses, meta.Revalidation)
		checks["cache_schema"] = fmt.Sprintf("hits=%d misses=%d revalidations=%d", schema.Hits, schema.Misses, schema.Revalidation)
	} else {
		checks["cache_metadata"] = "not configured"
		checks["cache_schema"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	return HealthResponse{Status: "healthy", Checks: checks, Version: h.version}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(health)
	})
}
