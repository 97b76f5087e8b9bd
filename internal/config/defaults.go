package config

import "time"

// Preset describes the models to use with a provider.
type Preset struct {
	Model          string
	EmbeddingModel string
}

var presets = map[ProviderType]Preset{
	ProviderOpenAI: {Model: "gpt-3.5-turbo", EmbeddingModel: "text-embedding-3-small"},
	ProviderOllama: {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
}

// GetPreset returns the preset for provider, falling back to OpenAI.
func GetPreset(provider ProviderType) Preset {
	if p, ok := presets[provider]; ok {
		return p
	}
	return presets[ProviderOpenAI]
}

// DefaultExcludes are glob patterns skipped when walking an input tree.
var DefaultExcludes = []string{
	".git/**",
	"**/.docintake/**",
	"**/~$*",
}

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = ".docintake.yml"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	p := GetPreset(ProviderOpenAI)
	return &Config{
		Provider:          ProviderOpenAI,
		Model:             p.Model,
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    p.EmbeddingModel,
		Index: IndexConfig{
			Dir:       ".docintake/index",
			CorpusDir: "corpus",
			K:         3,
			Policy:    "inverse_distance",
			Threshold: 0.3,
		},
		OCR: OCRConfig{
			Tesseract: "tesseract",
			Pdftoppm:  "pdftoppm",
			Lang:      "eng",
			DPI:       300,
		},
		Pipeline: PipelineConfig{
			Concurrency:    1,
			OCRTimeout:     Duration(2 * time.Minute),
			EmbedTimeout:   Duration(30 * time.Second),
			ExtractTimeout: Duration(60 * time.Second),
			Exclude:        append([]string(nil), DefaultExcludes...),
			MaxFileMB:      50,
		},
		Store: StoreConfig{
			Dir:        ".docintake/records",
			SQLitePath: ".docintake/docintake.db",
		},
		Server: ServerConfig{
			Port:        8000,
			MaxUploadMB: 32,
		},
		LLM: LLMConfig{
			RPM:         60,
			Temperature: 0.2,
			Retry: RetryConfig{
				MaxAttempts:        3,
				InitialBackoff:     Duration(250 * time.Millisecond),
				MaxBackoff:         Duration(2 * time.Second),
				Breaker:            true,
				BreakerMinRequests: 5,
				BreakerRatio:       0.6,
				BreakerCooldown:    Duration(30 * time.Second),
			},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}
