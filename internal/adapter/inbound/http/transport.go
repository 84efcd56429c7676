package http

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPTransport is the Streamable HTTP transport adapter: it exposes a
// Dispatcher (internal/service/proxy.Service in production) to MCP
// clients over POST/GET/DELETE /mcp, plus /health and /metrics.
type HTTPTransport struct {
	dispatcher     Dispatcher
	server         *http.Server
	addr           string
	allowedOrigins []string
	certFile       string
	keyFile        string
	sessions       *sessionRegistry
	logger         *slog.Logger
	healthChecker  *HealthChecker
	registry       *prometheus.Registry
	metrics        *Metrics
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server. Default is
// "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files. If
// not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithAllowedOrigins sets the allowed origins for DNS-rebinding
// protection. If empty, every request carrying an Origin header is
// blocked (local-only mode).
func WithAllowedOrigins(origins []string) Option {
	return func(t *HTTPTransport) {
		t.allowedOrigins = origins
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithHealthChecker sets the health checker backing the /health
// endpoint. Without one, /health always reports a bare "ok".
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// NewHTTPTransport creates an HTTP transport adapter wrapping the given
// Dispatcher. The Prometheus registry and Metrics are built here (not in
// Start) so that Metrics() can be handed to the discovery pipeline, bridge,
// and cache as their Recorder port before the server starts serving.
func NewHTTPTransport(dispatcher Dispatcher, opts ...Option) *HTTPTransport {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	t := &HTTPTransport{
		dispatcher:     dispatcher,
		addr:           "127.0.0.1:8080",
		allowedOrigins: []string{},
		sessions:       newSessionRegistry(),
		logger:         slog.Default(),
		registry:       reg,
		metrics:        NewMetrics(reg),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Metrics returns the transport's Prometheus metrics, so that callers
// assembling the dependency graph (cmd/spacebridge's wire) can pass it to
// the discovery pipeline, bridge, and cache as their Recorder port.
func (t *HTTPTransport) Metrics() *Metrics {
	return t.metrics
}

// SetDispatcher attaches the Dispatcher once the rest of the dependency
// graph has been assembled. Used because the Dispatcher's own
// constructors (discovery, bridge) need Metrics() first, which is only
// available after NewHTTPTransport runs.
func (t *HTTPTransport) SetDispatcher(d Dispatcher) {
	t.dispatcher = d
}

// SetHealthChecker attaches the health checker once assembled, for the
// same reason as SetDispatcher.
func (t *HTTPTransport) SetHealthChecker(hc *HealthChecker) {
	t.healthChecker = hc
}

// Start begins accepting HTTP connections and processing MCP messages.
// It blocks until the context is cancelled or the server errors.
func (t *HTTPTransport) Start(ctx context.Context) error {
	// Middleware order (outermost first): metrics wraps everything so it
	// captures full request duration, then request-ID enrichment, then
	// the DNS-rebinding check closest to the handler itself.
	handler := mcpHandler(t.dispatcher, t.sessions)
	handler = DNSRebindingProtection(t.allowedOrigins)(handler)
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)

	mux := http.NewServeMux()
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", healthHandler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry}))
	mux.Handle("/mcp", handler)
	mux.Handle("/mcp/", handler)

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.sessions.closeAll()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
