package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// redactedToken replaces the fallback bearer token in rendered output.
const redactedToken = "[redacted]"

// DumpYAML renders the effective configuration as YAML, after defaults
// and environment overrides have been applied. The fallback bearer token
// is redacted so the output is safe to paste into an issue report.
func (c *Config) DumpYAML() (string, error) {
	out := *c
	if out.Auth.DefaultHFToken != "" {
		out.Auth.DefaultHFToken = redactedToken
	}
	b, err := yaml.Marshal(&out)
	if err != nil {
		return "", fmt.Errorf("config: rendering effective config: %w", err)
	}
	return string(b), nil
}
