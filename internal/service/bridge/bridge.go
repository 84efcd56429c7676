// Package bridge implements the upstream bridge: the
// per-invocation transient SSE client, progress relay, response header
// capture, and replica URL rewrite.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/spacebridge/gateway/internal/domain/session"
	"github.com/spacebridge/gateway/internal/port/outbound"
)

// tracer is looked up lazily via the otel global TracerProvider
// (internal/observability registers it during startup).
var tracer = otel.Tracer("github.com/spacebridge/gateway/internal/service/bridge")

// Recorder observes upstream call latency for ambient instrumentation
// (optional; nil means no metrics are recorded). outcome is "ok" or
// "error".
type Recorder interface {
	ObserveCallDuration(outcome string, seconds float64)
}

// ClientFactory builds a transient SSEClient bound to one subdomain and
// bearer token. Exactly one is created per invocation and closed on every
// exit path.
type ClientFactory interface {
	NewClient(subdomain, bearerToken string) outbound.SSEClient
}

// Bridge dispatches one tools/call to an upstream space.
type Bridge struct {
	clients               ClientFactory
	logger                *slog.Logger
	disableReplicaRewrite bool
	recorder              Recorder
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithNoReplicaRewrite disables the replica URL rewrite entirely,
// mirroring the NO_REPLICA_REWRITE environment kill-switch.
func WithNoReplicaRewrite() Option {
	return func(b *Bridge) { b.disableReplicaRewrite = true }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithRecorder attaches a Recorder that observes every upstream call's
// latency and outcome.
func WithRecorder(r Recorder) Option {
	return func(b *Bridge) { b.recorder = r }
}

// New builds a Bridge.
func New(clients ClientFactory, opts ...Option) *Bridge {
	b := &Bridge{clients: clients, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Invoke performs the full upstream call sequence for one invocation
// and returns the downstream-facing result. sendProgress is nil if the
// caller did not request progress.
func (b *Bridge) Invoke(ctx context.Context, inv *session.Invocation, subdomain, toolName string, arguments map[string]any, bearerToken string, sendProgress SendFunc) (outbound.Result, error) {
	client := b.clients.NewClient(subdomain, bearerToken)
	defer client.Close()

	var r *relay
	onProgress := func(progress, total float64, message string) {}
	if sendProgress != nil {
		r = newRelay(sendProgress)
		defer r.stop()
		onProgress = r.enqueue

		go func() {
			select {
			case <-inv.Done():
				r.cancel()
			case <-r.done:
			}
		}()
	}

	ctx, span := tracer.Start(ctx, "bridge.tools/call", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("spacebridge.subdomain", subdomain),
		attribute.String("gen_ai.tool.name", toolName),
	)
	defer span.End()

	start := time.Now()
	result, err := client.Call(ctx, toolName, arguments, onProgress)
	if b.recorder != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		b.recorder.ObserveCallDuration(outcome, time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outbound.Result{}, fmt.Errorf("bridge: upstream call failed: %w", err)
	}

	for k, v := range result.CapturedHeaders {
		inv.CaptureHeader(k, v)
	}

	if !b.disableReplicaRewrite {
		b.rewriteReplicaURLs(&result)
	}

	return result, nil
}

// rewriteReplicaURLs applies the replica URL rewrite in place: text
// content items
// are cloned only when actually modified; non-text items are left
// byte-for-byte untouched.
func (b *Bridge) rewriteReplicaURLs(result *outbound.Result) {
	header, ok := result.CapturedHeaders["X-Proxied-Replica"]
	if !ok {
		return
	}
	replicaID := ExtractReplicaID(header)
	if replicaID == "" {
		return
	}

	for i, item := range result.Content {
		if item.Type != "text" {
			continue
		}
		rewritten := RewriteReplicaURLs(item.Text, replicaID)
		if rewritten == item.Text {
			continue
		}
		item.Text = rewritten
		if item.Raw != nil {
			raw := make(map[string]any, len(item.Raw))
			for k, v := range item.Raw {
				raw[k] = v
			}
			raw["text"] = rewritten
			item.Raw = raw
		}
		result.Content[i] = item
	}
}
