// Package cache implements the two-level discovery cache: a metadata_cache
// keyed by space.Ref with TTL + ETag revalidation, and a schema_cache keyed
// by space.Ref with TTL-only expiry. Both are plain in-process maps; there
// is no background eviction and no persisted state.
package cache

import (
	"sync"
	"time"

	"github.com/spacebridge/gateway/internal/domain/space"
	"github.com/spacebridge/gateway/internal/domain/tool"
)

// MaxToolsPerSpace bounds the number of tools admitted into a single
// SchemaEntry, bounding memory against a malicious or malformed
// upstream.
const MaxToolsPerSpace = 200

// Stats holds the observability counters for one cache map. Fields are
// read with relaxed atomics-equivalent semantics (guarded by the same lock
// as the map); they are not part of the protocol.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Revalidation uint64
}

// Recorder observes cache hit/miss/revalidation outcomes for ambient
// instrumentation (optional; nil means no metrics are recorded). mapName is
// "metadata" or "schema"; outcome is "hit", "miss", or "revalidation".
type Recorder interface {
	RecordCacheOutcome(mapName, outcome string)
}

// Option configures a Cache.
type Option func(*Cache)

// WithRecorder attaches a Recorder that observes every cache outcome.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) { c.recorder = r }
}

// Cache is the two-level discovery cache.
type Cache struct {
	metadataTTL time.Duration
	schemaTTL   time.Duration

	metaMu    sync.RWMutex
	metadata  map[space.Ref]space.Metadata
	metaStats Stats

	schemaMu    sync.RWMutex
	schemas     map[space.Ref]tool.SchemaEntry
	schemaStats Stats

	now      func() time.Time
	recorder Recorder
}

// New builds a Cache with the given TTLs for metadata and schema entries.
func New(metadataTTL, schemaTTL time.Duration, opts ...Option) *Cache {
	c := &Cache{
		metadataTTL: metadataTTL,
		schemaTTL:   schemaTTL,
		metadata:    make(map[space.Ref]space.Metadata),
		schemas:     make(map[space.Ref]tool.SchemaEntry),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// record reports a cache outcome to the recorder, if one is attached.
func (c *Cache) record(mapName, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordCacheOutcome(mapName, outcome)
	}
}

// GetMetadata returns the cached entry if fresh, else the zero value and
// false. A fresh entry is one where now - fetched_at < TTL.
func (c *Cache) GetMetadata(ref space.Ref) (space.Metadata, bool) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	m, ok := c.metadata[ref]
	if !ok || c.now().Sub(m.FetchedAt) >= c.metadataTTL {
		c.metaStats.Misses++
		c.record("metadata", "miss")
		return space.Metadata{}, false
	}
	c.metaStats.Hits++
	c.record("metadata", "hit")
	return m, true
}

// GetMetadataStale returns the cached entry regardless of freshness, used
// to supply an If-None-Match header on revalidation.
func (c *Cache) GetMetadataStale(ref space.Ref) (space.Metadata, bool) {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	m, ok := c.metadata[ref]
	return m, ok
}

// TouchMetadata bumps fetched_at to now without replacing the value; used
// after a 304 Not Modified response during revalidation.
func (c *Cache) TouchMetadata(ref space.Ref) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	m, ok := c.metadata[ref]
	if !ok {
		return
	}
	m.FetchedAt = c.now()
	c.metadata[ref] = m
	c.metaStats.Revalidation++
	c.record("metadata", "revalidation")
}

// PutMetadata unconditionally replaces the cached entry, unless the value
// is private: private spaces are never cached.
func (c *Cache) PutMetadata(ref space.Ref, m space.Metadata) {
	if m.Private {
		return
	}
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	m.FetchedAt = c.now()
	c.metadata[ref] = m
}

// MetadataStats returns a snapshot of the metadata cache counters.
func (c *Cache) MetadataStats() Stats {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	return c.metaStats
}

// GetSchema returns the cached schema entry if fresh.
func (c *Cache) GetSchema(ref space.Ref) (tool.SchemaEntry, bool) {
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()

	s, ok := c.schemas[ref]
	if !ok || c.now().Sub(s.FetchedAt) >= c.schemaTTL {
		c.schemaStats.Misses++
		c.record("schema", "miss")
		return tool.SchemaEntry{}, false
	}
	c.schemaStats.Hits++
	c.record("schema", "hit")
	return s, true
}

// PutSchema unconditionally replaces the cached schema entry for ref,
// truncating to MaxToolsPerSpace. private must be supplied by the caller
// since a SchemaEntry carries no metadata of its own; private spaces are
// never cached.
func (c *Cache) PutSchema(ref space.Ref, entry tool.SchemaEntry, private bool) {
	if private {
		return
	}
	if len(entry.Tools) > MaxToolsPerSpace {
		entry.Tools = entry.Tools[:MaxToolsPerSpace]
	}
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()
	entry.FetchedAt = c.now()
	c.schemas[ref] = entry
}

// SchemaStats returns a snapshot of the schema cache counters.
func (c *Cache) SchemaStats() Stats {
	c.schemaMu.RLock()
	defer c.schemaMu.RUnlock()
	return c.schemaStats
}
