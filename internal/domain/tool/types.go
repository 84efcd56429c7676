// Package tool holds the normalized tool descriptor model produced by the
// schema normalizer and consumed by the discovery pipeline, schema cache,
// and session registry.
package tool

import (
	"time"

	"github.com/spacebridge/gateway/internal/domain/space"
)

// Complexity classifies whether a tool's parameters are all primitive
// (eligible for the invoke convenience path) or contain nested structure
// that requires the passthrough tool.
type Complexity string

const (
	// ComplexitySimple means every property is a primitive, an enum of
	// primitives, or a tagged FileData/ImageData URL parameter.
	ComplexitySimple Complexity = "simple"

	// ComplexityComplex means at least one property is a nested object,
	// an array of objects, or a union that is none of the simple shapes.
	ComplexityComplex Complexity = "complex"
)

// Descriptor is a single callable tool on an upstream endpoint, normalized
// into one shape regardless of which upstream schema form produced it.
type Descriptor struct {
	// Name is as reported upstream; never contains the literal "<lambda"
	// (case-insensitive) by the time it reaches a Descriptor.
	Name string

	// Description is synthesised as "<name> tool" when upstream omits it.
	Description string

	// InputSchema is object-typed; properties and required are preserved
	// even when empty.
	InputSchema map[string]any

	Complexity Complexity
}

// SchemaEntry is the cached, normalized tool list for one endpoint. Not
// cached for private spaces.
type SchemaEntry struct {
	Ref       space.Ref
	Tools     []Descriptor
	FetchedAt time.Time
}
