package config

import (
	"strings"
	"testing"
	"time"
)

func minimalValidConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_InvalidHTTPAddr(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.HTTPAddr = "not-a-valid-addr!!"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid http_addr, got nil")
	}
	if !strings.Contains(err.Error(), "HTTPAddr") {
		t.Errorf("error = %q, want to contain 'HTTPAddr'", err.Error())
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.LogLevel = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "LogLevel") {
		t.Errorf("error = %q, want to contain 'LogLevel'", err.Error())
	}
}

func TestValidate_ZeroCacheTTL(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Cache.MetadataTTL = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for zero metadata_ttl, got nil")
	}
	if !strings.Contains(err.Error(), "MetadataTTL") {
		t.Errorf("error = %q, want to contain 'MetadataTTL'", err.Error())
	}
}

func TestValidate_ZeroDiscoveryConcurrency(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Discovery.Concurrency = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for zero discovery concurrency, got nil")
	}
	if !strings.Contains(err.Error(), "Concurrency") {
		t.Errorf("error = %q, want to contain 'Concurrency'", err.Error())
	}
}

func TestValidate_NegativeDiscoveryTimeout(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Discovery.MetadataTimeout = -1 * time.Second

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for negative metadata_timeout, got nil")
	}
}

func TestValidate_ZeroConfig(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() zero-config unexpected error: %v", err)
	}
}

func TestValidate_EmptyBouquets(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Selection.Bouquets = nil

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with no bouquets unexpected error: %v", err)
	}
}

func TestValidate_BouquetMissingName(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Selection.Bouquets = []PresetConfig{
		{ToolIDs: []string{"gr0_run"}},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for preset with no name, got nil")
	}
}

func TestValidate_BouquetMissingToolIDs(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Selection.Bouquets = []PresetConfig{
		{Name: "writers"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for preset with no tool_ids, got nil")
	}
}

func TestValidate_DuplicatePresetNames(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Selection.Bouquets = []PresetConfig{
		{Name: "writers", ToolIDs: []string{"gr0_run"}},
		{Name: "writers", ToolIDs: []string{"gr1_run"}},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for duplicate preset names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate preset name") {
		t.Errorf("error = %q, want to contain 'duplicate preset name'", err.Error())
	}
}

func TestValidate_UniquePresetNamesOK(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Selection.Bouquets = []PresetConfig{
		{Name: "writers", ToolIDs: []string{"gr0_run"}},
		{Name: "readers", ToolIDs: []string{"gr1_run"}},
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with unique preset names unexpected error: %v", err)
	}
}
