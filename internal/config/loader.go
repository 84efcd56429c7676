// Package config provides configuration loading for the proxy.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for spacebridge.yaml/.yml
// in standard locations. The search requires an explicit YAML extension
// to avoid matching the binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("spacebridge")
		viper.SetConfigType("yaml")
	}

	bindEnvKeys()
}

// findConfigFile searches standard locations for a spacebridge config
// file with an explicit YAML extension.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".spacebridge"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "spacebridge"))
		}
	} else {
		paths = append(paths, "/etc/spacebridge")
	}
	return findConfigFileInPaths(paths)
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "spacebridge"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindEnvKeys binds each documented environment variable to its
// mapstructure key. These names do not share a common prefix, so each is
// bound explicitly rather than via Viper's automatic prefix replacement.
func bindEnvKeys() {
	_ = viper.BindEnv("cache.metadata_ttl_ms", "GRADIO_SPACE_CACHE_TTL")
	_ = viper.BindEnv("cache.schema_ttl_ms", "GRADIO_SCHEMA_CACHE_TTL")
	_ = viper.BindEnv("discovery.concurrency", "GRADIO_DISCOVERY_CONCURRENCY")
	_ = viper.BindEnv("discovery.metadata_timeout_ms", "GRADIO_SPACE_INFO_TIMEOUT")
	_ = viper.BindEnv("discovery.schema_timeout_ms", "GRADIO_SCHEMA_TIMEOUT")
	_ = viper.BindEnv("bridge.no_replica_rewrite", "NO_REPLICA_REWRITE")
	_ = viper.BindEnv("selection.search_enables_fetch", "SEARCH_ENABLES_FETCH")
	_ = viper.BindEnv("auth.default_hf_token", "DEFAULT_HF_TOKEN")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the Config. The millisecond-valued env vars
// are read as plain integers and converted to time.Duration since Viper
// has no native "milliseconds" type.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// NO_REPLICA_REWRITE disables the rewrite by its presence alone,
	// whatever its value.
	if _, ok := os.LookupEnv("NO_REPLICA_REWRITE"); ok {
		viper.Set("bridge.no_replica_rewrite", true)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyMillisecondOverrides(&cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyMillisecondOverrides reads the _ms-suffixed integer keys (bound to
// environment variables documented in milliseconds) and, when present,
// overrides the corresponding time.Duration field.
func applyMillisecondOverrides(cfg *Config) {
	if ms := viper.GetInt("cache.metadata_ttl_ms"); ms > 0 {
		cfg.Cache.MetadataTTL = time.Duration(ms) * time.Millisecond
	}
	if ms := viper.GetInt("cache.schema_ttl_ms"); ms > 0 {
		cfg.Cache.SchemaTTL = time.Duration(ms) * time.Millisecond
	}
	if ms := viper.GetInt("discovery.metadata_timeout_ms"); ms > 0 {
		cfg.Discovery.MetadataTimeout = time.Duration(ms) * time.Millisecond
	}
	if ms := viper.GetInt("discovery.schema_timeout_ms"); ms > 0 {
		cfg.Discovery.SchemaTimeout = time.Duration(ms) * time.Millisecond
	}
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or "" if none was found (env-vars-only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
