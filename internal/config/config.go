package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix marks environment overrides. A double underscore separates
// nesting levels: DOCINTAKE_INDEX__CORPUS_DIR sets index.corpus_dir.
const EnvPrefix = "DOCINTAKE_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. A missing file yields defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

var validPolicies = map[string]bool{
	"softmax":          true,
	"inverse_distance": true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of openai, ollama", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if !validProviders[c.EmbeddingProvider] {
		return fmt.Errorf("invalid embedding_provider %q: must be one of openai, ollama", c.EmbeddingProvider)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("embedding_model is required")
	}

	if c.Index.Dir == "" {
		return fmt.Errorf("index.dir is required")
	}
	if c.Index.K < 1 {
		return fmt.Errorf("index.k must be at least 1")
	}
	if !validPolicies[c.Index.Policy] {
		return fmt.Errorf("invalid index.policy %q: must be one of softmax, inverse_distance", c.Index.Policy)
	}
	if c.Index.Threshold < 0 || c.Index.Threshold > 1 {
		return fmt.Errorf("index.threshold must be within [0, 1]")
	}

	if c.Pipeline.Concurrency < 0 {
		return fmt.Errorf("pipeline.concurrency must be non-negative")
	}
	if c.Pipeline.MaxFileMB < 0 {
		return fmt.Errorf("pipeline.max_file_mb must be non-negative")
	}
	for name, d := range map[string]Duration{
		"ocr_timeout":     c.Pipeline.OCRTimeout,
		"embed_timeout":   c.Pipeline.EmbedTimeout,
		"extract_timeout": c.Pipeline.ExtractTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("pipeline.%s must be positive", name)
		}
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}
	if c.LLM.RPM < 0 {
		return fmt.Errorf("llm.rpm must be non-negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range")
	}
	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return ""
}
