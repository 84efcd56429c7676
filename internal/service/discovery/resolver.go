package discovery

import (
	"context"
	"fmt"

	"github.com/spacebridge/gateway/internal/domain/space"
	"github.com/spacebridge/gateway/internal/domain/tool"
)

// ResolveMetadata satisfies the registry's MetadataResolver port for a
// single ref: a cache hit returns immediately, a miss runs a one-ref
// Phase-A lookup before dispatching.
func (p *Pipeline) ResolveMetadata(ctx context.Context, ref space.Ref, bearerToken string) (space.Metadata, error) {
	records := p.Discover(ctx, []space.Ref{ref}, bearerToken)
	rec := records[0]
	if rec.Err != nil {
		return space.Metadata{}, rec.Err
	}
	if rec.Metadata == nil {
		return space.Metadata{}, fmt.Errorf("discovery: no metadata resolved for %s", ref)
	}
	return *rec.Metadata, nil
}

// ResolveTools satisfies the registry's MetadataResolver port: it runs the
// one-ref pipeline again (for a public space the metadata half is a cache
// hit since md was just resolved; private metadata is never cached and is
// fetched again) to pick up Phase B's schema fetch and cache population.
func (p *Pipeline) ResolveTools(ctx context.Context, md space.Metadata, bearerToken string) ([]tool.Descriptor, error) {
	records := p.Discover(ctx, []space.Ref{md.Ref}, bearerToken)
	rec := records[0]
	if rec.Err != nil {
		return nil, rec.Err
	}
	return rec.Tools, nil
}
