// Package config handles designer agent configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/designer/config.yaml, /etc/designer/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "designer", "config.yaml"))
	}

	paths = append(paths, "/etc/designer/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all designer agent configuration.
type Config struct {
	Listen     ListenConfig            `yaml:"listen"`
	Models     ModelsConfig            `yaml:"models"`
	Gemini     GeminiConfig            `yaml:"gemini"`
	Anthropic  AnthropicConfig         `yaml:"anthropic"`
	Pricing    map[string]PricingEntry `yaml:"pricing"`
	Agent      AgentConfig             `yaml:"agent"`
	Search     SearchConfig            `yaml:"search"`
	References ReferencesConfig        `yaml:"references"`
	Tracing    TracingConfig           `yaml:"tracing"`
	DataDir    string                  `yaml:"data_dir"`
	OutputDir  string                  `yaml:"output_dir"`
	LogLevel   string                  `yaml:"log_level"`
	LogFormat  string                  `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines model routing settings.
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	Image     string        `yaml:"image"` // background image model; "none" disables generation
	OllamaURL string        `yaml:"ollama_url"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to the provider that serves it.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // gemini, anthropic, ollama
}

// GeminiConfig defines Google Gemini API settings.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // override for tests and proxies
}

// Configured reports whether a Gemini API key is set.
func (c GeminiConfig) Configured() bool { return c.APIKey != "" }

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether an Anthropic API key is set.
func (c AnthropicConfig) Configured() bool { return c.APIKey != "" }

// PricingEntry holds per-million-token prices in USD for one model.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	// MaxIterations caps model calls per run (default 10).
	MaxIterations int `yaml:"max_iterations"`
	// NativeTools sends tool definitions to providers that support
	// function calling. Text parsing stays active as the fallback.
	NativeTools bool `yaml:"native_tools"`
	// AutoFeedback answers ask_feedback with "OK" instead of reading stdin.
	AutoFeedback bool `yaml:"auto_feedback"`
}

// SearchConfig configures the web_search tool.
type SearchConfig struct {
	Default       string        `yaml:"default"` // searxng or brave
	SearXNG       SearXNGConfig `yaml:"searxng"`
	Brave         BraveConfig   `yaml:"brave"`
	RatePerMinute int           `yaml:"rate_per_minute"`
}

// SearXNGConfig holds configuration for the SearXNG provider.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// Configured reports whether a SearXNG URL is set.
func (c SearXNGConfig) Configured() bool { return c.URL != "" }

// BraveConfig holds configuration for the Brave Search provider.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether a Brave API key is set.
func (c BraveConfig) Configured() bool { return c.APIKey != "" }

// ReferencesConfig points at the reference design dataset.
type ReferencesConfig struct {
	Dataset string `yaml:"dataset"` // path to dataset.json
}

// TracingConfig configures the external trace sink. When disabled or
// missing keys, tracing stays local.
type TracingConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Endpoint      string        `yaml:"endpoint"`
	PublicKey     string        `yaml:"public_key"`
	SecretKey     string        `yaml:"secret_key"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Configured reports whether the sink has everything it needs.
func (c TracingConfig) Configured() bool {
	return c.Enabled && c.PublicKey != "" && c.SecretKey != ""
}

// DefaultPricing is the built-in pricing table (USD per million tokens).
// Entries in the config file override or extend it.
func DefaultPricing() map[string]PricingEntry {
	return map[string]PricingEntry{
		"gemini-3-pro-preview":       {InputPerMillion: 1.25, OutputPerMillion: 10.00},
		"gemini-3-pro-image-preview": {InputPerMillion: 1.25, OutputPerMillion: 10.00},
		"gemini-2.0-flash":           {InputPerMillion: 0.10, OutputPerMillion: 0.40},
		"claude-sonnet-4-20250514":   {InputPerMillion: 3.0, OutputPerMillion: 15.0},
		"claude-opus-4-20250514":     {InputPerMillion: 15.0, OutputPerMillion: 75.0},
	}
}

// Load reads configuration from a YAML file, expanding ${VAR}
// references from the environment, then applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Models.Default == "" {
		c.Models.Default = "gemini-3-pro-preview"
	}
	if c.Models.Image == "" {
		c.Models.Image = "gemini-3-pro-image-preview"
	}
	for i := range c.Models.Available {
		if c.Models.Available[i].Provider == "" {
			c.Models.Available[i].Provider = "gemini"
		}
	}
	pricing := DefaultPricing()
	for name, entry := range c.Pricing {
		pricing[name] = entry
	}
	c.Pricing = pricing
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Search.Default == "" {
		switch {
		case c.Search.SearXNG.Configured():
			c.Search.Default = "searxng"
		case c.Search.Brave.Configured():
			c.Search.Default = "brave"
		}
	}
	if c.Search.RatePerMinute <= 0 {
		c.Search.RatePerMinute = 30
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "https://cloud.langfuse.com"
	}
	if c.Tracing.FlushInterval <= 0 {
		c.Tracing.FlushInterval = 5 * time.Second
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.OutputDir == "" {
		c.OutputDir = "agent_output"
	}
}

// Validate reports configuration errors that would otherwise surface
// deep inside startup.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	for _, m := range c.Models.Available {
		switch m.Provider {
		case "gemini", "anthropic", "ollama":
		default:
			return fmt.Errorf("model %q: unknown provider %q", m.Name, m.Provider)
		}
	}
	for name, p := range c.Pricing {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			return fmt.Errorf("pricing %q: prices must be non-negative", name)
		}
	}
	switch c.Search.Default {
	case "", "searxng", "brave":
	default:
		return fmt.Errorf("search.default: unknown provider %q", c.Search.Default)
	}
	return nil
}

// ProviderFor returns the provider name configured for model, defaulting
// to "gemini" for models not listed.
func (c *Config) ProviderFor(model string) string {
	for _, m := range c.Models.Available {
		if m.Name == model {
			return m.Provider
		}
	}
	return "gemini"
}
