// Package discovery implements the two-phase parallel discovery
// pipeline: Phase A resolves space metadata, Phase B
// resolves tool schemas for every space whose metadata came back gradio.
package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/spacebridge/gateway/internal/domain/space"
	"github.com/spacebridge/gateway/internal/domain/tool"
	"github.com/spacebridge/gateway/internal/service/cache"
)

// tracer is looked up lazily via the otel global TracerProvider
// (internal/observability registers it during startup), so Pipeline needs
// no constructor dependency to produce spans.
var tracer = otel.Tracer("github.com/spacebridge/gateway/internal/service/discovery")

// Record is one entry of a discovery run's result, zippable with the input
// ref list (same index, same order).
type Record struct {
	Ref      space.Ref
	Metadata *space.Metadata
	Tools    []tool.Descriptor
	Err      error
}

// Config controls concurrency and per-phase timeouts.
type Config struct {
	Concurrency int
	MetadataTO  time.Duration
	SchemaTO    time.Duration
}

// DefaultConfig carries the documented defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 10,
		MetadataTO:  5 * time.Second,
		SchemaTO:    12 * time.Second,
	}
}

// MetadataFetcher fetches space metadata from the hub API.
type MetadataFetcher interface {
	GetMetadata(ctx context.Context, ref space.Ref, staleETag, bearerToken string) (Result, error)
}

// Result is the hub fetch outcome; NotModified means the caller should
// retain the stale cached value and only bump its freshness.
type Result struct {
	Metadata    space.Metadata
	NotModified bool
}

// SchemaFetcher fetches a raw schema response body for a space.
type SchemaFetcher interface {
	GetSchema(ctx context.Context, md space.Metadata, bearerToken string) ([]byte, error)
}

// Recorder observes discovery outcomes for ambient instrumentation
// (optional; nil means no metrics are recorded). phase is "metadata" or
// "schema"; outcome is "hit", "miss", "revalidated", or "error".
type Recorder interface {
	RecordOutcome(phase, outcome string)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder attaches a Recorder that observes every discovery outcome.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// Pipeline runs the two discovery phases against a shared cache.
type Pipeline struct {
	cache    *cache.Cache
	metadata MetadataFetcher
	schema   SchemaFetcher
	cfg      Config
	logger   *slog.Logger
	recorder Recorder

	// firstErrorSeen memoizes, per ref, whether a warn-level log has
	// already fired for that ref's failure. Scoped per-process for the
	// lifetime of the Pipeline and never reset.
	firstErrorSeen sync.Map
}

// New builds a discovery Pipeline.
func New(c *cache.Cache, metadata MetadataFetcher, schema SchemaFetcher, cfg Config, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{cache: c, metadata: metadata, schema: schema, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// record reports a discovery outcome to the recorder, if one is attached.
func (p *Pipeline) record(phase, outcome string) {
	if p.recorder != nil {
		p.recorder.RecordOutcome(phase, outcome)
	}
}

// Discover runs Phase A then Phase B over refs, preserving input order in
// the returned slice regardless of completion order.
func (p *Pipeline) Discover(ctx context.Context, refs []space.Ref, bearerToken string) []Record {
	records := p.phaseA(ctx, refs, bearerToken)
	p.phaseB(ctx, records, bearerToken)
	return records
}

func (p *Pipeline) phaseA(ctx context.Context, refs []space.Ref, bearerToken string) []Record {
	records := make([]Record, len(refs))
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, ref := range refs {
		records[i].Ref = ref
		wg.Add(1)
		go func(i int, ref space.Ref) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			records[i] = p.fetchMetadata(ctx, ref, bearerToken)
		}(i, ref)
	}
	wg.Wait()
	return records
}

func (p *Pipeline) fetchMetadata(ctx context.Context, ref space.Ref, bearerToken string) Record {
	ctx, span := tracer.Start(ctx, "discovery.metadata", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("spacebridge.space_ref", ref.String()))

	if m, ok := p.cache.GetMetadata(ref); ok {
		p.record("metadata", "hit")
		return Record{Ref: ref, Metadata: &m}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.MetadataTO)
	defer cancel()

	staleETag := ""
	if stale, ok := p.cache.GetMetadataStale(ref); ok {
		staleETag = stale.ETag
	}

	res, err := p.metadata.GetMetadata(callCtx, ref, staleETag, bearerToken)
	if err != nil {
		p.record("metadata", "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logDiscoveryError(ref, err)
		return Record{Ref: ref, Err: err}
	}

	if res.NotModified {
		p.record("metadata", "revalidated")
		p.cache.TouchMetadata(ref)
		stale, _ := p.cache.GetMetadataStale(ref)
		return Record{Ref: ref, Metadata: &stale}
	}

	p.record("metadata", "miss")
	p.cache.PutMetadata(ref, res.Metadata)
	m := res.Metadata
	return Record{Ref: ref, Metadata: &m}
}

func (p *Pipeline) phaseB(ctx context.Context, records []Record, bearerToken string) {
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for i := range records {
		rec := &records[i]
		if rec.Metadata == nil || rec.Err != nil {
			continue
		}
		if !rec.Metadata.IsGradio() {
			continue
		}
		wg.Add(1)
		go func(rec *Record) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			p.fetchSchema(ctx, rec, bearerToken)
		}(rec)
	}
	wg.Wait()
}

func (p *Pipeline) fetchSchema(ctx context.Context, rec *Record, bearerToken string) {
	md := *rec.Metadata

	ctx, span := tracer.Start(ctx, "discovery.schema", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("spacebridge.space_ref", md.Ref.String()))

	if !md.Private {
		if entry, ok := p.cache.GetSchema(md.Ref); ok {
			p.record("schema", "hit")
			rec.Tools = entry.Tools
			return
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.SchemaTO)
	defer cancel()

	body, err := p.schema.GetSchema(callCtx, md, bearerToken)
	if err != nil {
		p.record("schema", "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logDiscoveryError(md.Ref, err)
		rec.Err = err
		return
	}

	descriptors, err := tool.Normalize(body)
	if err != nil {
		p.record("schema", "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logDiscoveryError(md.Ref, err)
		rec.Err = err
		return
	}

	p.record("schema", "miss")
	rec.Tools = descriptors
	p.cache.PutSchema(md.Ref, tool.SchemaEntry{Ref: md.Ref, Tools: descriptors}, md.Private)
}

// logDiscoveryError logs at warn on first occurrence for ref, trace (via
// slog.LevelDebug, the closest stdlib level) thereafter. The decision is
// memoised for the lifetime of the process (see firstErrorSeen).
func (p *Pipeline) logDiscoveryError(ref space.Ref, err error) {
	_, seen := p.firstErrorSeen.LoadOrStore(ref, true)
	if seen {
		p.logger.Debug("discovery failure (repeated)", "ref", ref.String(), "error", err)
		return
	}
	p.logger.Warn("discovery failure", "ref", ref.String(), "error", err)
}
