package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spacebridge/gateway/internal/domain/session"
	"github.com/spacebridge/gateway/internal/service/cache"
)

func TestHealthChecker_Healthy(t *testing.T) {
	sessions := session.NewManager(time.Minute)
	sessions.Create(session.HeaderOverrides{}, "")
	c := cache.New(time.Minute, time.Minute)

	hc := NewHealthChecker(sessions, c, "test-version")
	health := hc.Check()

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Version != "test-version" {
		t.Errorf("Version = %q, want test-version", health.Version)
	}
	if health.Checks["sessions"] != "ok: 1 active" {
		t.Errorf("sessions check = %q, want ok: 1 active", health.Checks["sessions"])
	}
}

func TestHealthChecker_NilComponents(t *testing.T) {
	hc := NewHealthChecker(nil, nil, "")
	health := hc.Check()

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Checks["sessions"] != "not configured" {
		t.Errorf("sessions = %q, want 'not configured'", health.Checks["sessions"])
	}
	if health.Checks["cache_metadata"] != "not configured" {
		t.Errorf("cache_metadata = %q, want 'not configured'", health.Checks["cache_metadata"])
	}
}

func TestHealthChecker_Handler_HTTP(t *testing.T) {
	sessions := session.NewManager(time.Minute)
	hc := NewHealthChecker(sessions, nil, "1.0.0")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	hc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("Response status = %q, want healthy", resp.Status)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("Response version = %q, want 1.0.0", resp.Version)
	}
}

func TestHealthChecker_GoroutineCount(t *testing.T) {
	hc := NewHealthChecker(nil, nil, "")
	health := hc.Check()

	if health.Checks["goroutines"] == "" {
		t.Error("goroutines check should be present")
	}
	if health.Checks["goroutines"] == "0" {
		t.Error("goroutines count should be > 0")
	}
}
