// Package credential resolves API keys per provider. Resolution is a chain:
// explicitly configured key, then environment, then an optional YAML keys
// file. Key material is never logged and never appears in error text.
package credential

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVars maps a provider to the environment variables consulted, in order.
var envVars = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
}

// Chain resolves keys for providers. Zero value resolves from env only.
type Chain struct {
	// Static is a key set directly in config or flags. Highest precedence.
	Static string
	// File holds keys loaded from a YAML keys file, keyed by provider.
	File map[string]string
}

// Load builds a chain. keysFile may be empty; when set it must parse.
func Load(static, keysFile string) (*Chain, error) {
	c := &Chain{Static: static}
	if keysFile == "" {
		return c, nil
	}
	data, err := os.ReadFile(keysFile)
	if err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}
	var doc struct {
		Keys map[string]string `yaml:"keys"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse keys file: %w", err)
	}
	if doc.Keys == nil {
		// Also accept a flat provider: key mapping.
		if err := yaml.Unmarshal(data, &doc.Keys); err != nil {
			return nil, fmt.Errorf("parse keys file: %w", err)
		}
	}
	c.File = make(map[string]string, len(doc.Keys))
	for provider, key := range doc.Keys {
		c.File[strings.ToLower(provider)] = key
	}
	return c, nil
}

// Resolve returns the key for a provider, or "" when the provider needs none
// and no key is configured. The local provider never requires a key.
func (c *Chain) Resolve(provider string) (string, error) {
	provider = strings.ToLower(provider)

	if c.Static != "" {
		return c.Static, nil
	}
	for _, name := range envVars[provider] {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	if key, ok := c.File[provider]; ok && key != "" {
		return key, nil
	}
	if provider == "local" {
		return "", nil
	}
	return "", fmt.Errorf("no API key configured for provider %q", provider)
}
