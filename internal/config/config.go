// Package config provides configuration types for the Gradio Space MCP
// aggregating proxy: cache TTLs, discovery concurrency and timeouts, the
// replica-rewrite kill switch, the tool-selection defaults, and the
// optional bouquet/mix presets. Configuration is file-based (YAML) with
// environment variable overrides layered on top.
package config

import (
	"time"
)

// Config is the top-level configuration for the proxy.
type Config struct {
	// Server configures the HTTP transport listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Cache configures the two-level discovery cache's TTLs.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Discovery configures the parallel discovery pipeline's concurrency
	// and per-phase timeouts.
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`

	// Bridge configures the upstream bridge.
	Bridge BridgeConfig `yaml:"bridge" mapstructure:"bridge"`

	// Selection configures the tool-selection strategy's defaults and
	// named bouquet/mix presets.
	Selection SelectionConfig `yaml:"selection" mapstructure:"selection"`

	// Auth configures the fallback bearer token used when a request
	// carries none.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// DevMode forces debug-level logging and enables the stdout span and
	// metric exporters (written to stderr). It does not change the
	// DNS-rebinding origin allowlist.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8080"
	// (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: debug, info, warn, or error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// SessionIdleTimeout is how long an idle session may live before
	// SweepIdle tears it down.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout" mapstructure:"session_idle_timeout"`

	// AllowedOrigins is the DNS-rebinding-protection allowlist; empty
	// rejects every request carrying an Origin header.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// CacheConfig configures the two-level discovery cache's TTLs, sourced
// from GRADIO_SPACE_CACHE_TTL and GRADIO_SCHEMA_CACHE_TTL (integer
// milliseconds).
type CacheConfig struct {
	MetadataTTL time.Duration `yaml:"metadata_ttl" mapstructure:"metadata_ttl" validate:"required,gt=0"`
	SchemaTTL   time.Duration `yaml:"schema_ttl" mapstructure:"schema_ttl" validate:"required,gt=0"`
}

// DiscoveryConfig configures the discovery pipeline, sourced from
// GRADIO_DISCOVERY_CONCURRENCY, GRADIO_SPACE_INFO_TIMEOUT, and
// GRADIO_SCHEMA_TIMEOUT.
type DiscoveryConfig struct {
	Concurrency     int           `yaml:"concurrency" mapstructure:"concurrency" validate:"required,gt=0"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout" mapstructure:"metadata_timeout" validate:"required,gt=0"`
	SchemaTimeout   time.Duration `yaml:"schema_timeout" mapstructure:"schema_timeout" validate:"required,gt=0"`
}

// BridgeConfig configures the upstream bridge. NoReplicaRewrite mirrors
// the presence of the NO_REPLICA_REWRITE environment variable.
type BridgeConfig struct {
	NoReplicaRewrite bool `yaml:"no_replica_rewrite" mapstructure:"no_replica_rewrite"`
}

// SelectionConfig configures the tool-selection strategy:
// whether enabling a docs-search built-in implicitly enables its paired
// fetch tool, and the named presets available to the X-MCP-Bouquet and
// X-MCP-Mix headers.
type SelectionConfig struct {
	SearchEnablesFetch bool           `yaml:"search_enables_fetch" mapstructure:"search_enables_fetch"`
	DocsSearchID       string         `yaml:"docs_search_id" mapstructure:"docs_search_id"`
	DocsFetchID        string         `yaml:"docs_fetch_id" mapstructure:"docs_fetch_id"`
	Bouquets           []PresetConfig `yaml:"bouquets" mapstructure:"bouquets" validate:"omitempty,dive"`
}

// PresetConfig is one named bouquet/mix preset: a static tool-ID list,
// optionally gated by a CEL predicate over session headers (see
// internal/domain/selection.Preset).
type PresetConfig struct {
	Name    string   `yaml:"name" mapstructure:"name" validate:"required"`
	ToolIDs []string `yaml:"tool_ids" mapstructure:"tool_ids" validate:"required,min=1"`
	When    string   `yaml:"when" mapstructure:"when"`
}

// AuthConfig configures the fallback bearer token (DEFAULT_HF_TOKEN),
// used when a request carries no Authorization header.
type AuthConfig struct {
	DefaultHFToken string `yaml:"default_hf_token" mapstructure:"default_hf_token"`
}

// SetDefaults applies the documented defaults to any
// field the caller left unset.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.SessionIdleTimeout == 0 {
		c.Server.SessionIdleTimeout = 30 * time.Minute
	}

	if c.Cache.MetadataTTL == 0 {
		c.Cache.MetadataTTL = 5 * time.Minute
	}
	if c.Cache.SchemaTTL == 0 {
		c.Cache.SchemaTTL = 5 * time.Minute
	}

	if c.Discovery.Concurrency == 0 {
		c.Discovery.Concurrency = 10
	}
	if c.Discovery.MetadataTimeout == 0 {
		c.Discovery.MetadataTimeout = 5 * time.Second
	}
	if c.Discovery.SchemaTimeout == 0 {
		c.Discovery.SchemaTimeout = 12 * time.Second
	}

	if c.Selection.DocsSearchID == "" {
		c.Selection.DocsSearchID = "hub_search"
	}
	if c.Selection.DocsFetchID == "" {
		c.Selection.DocsFetchID = "hub_repo_details"
	}
}
