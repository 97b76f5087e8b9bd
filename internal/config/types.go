package config

import (
	"fmt"
	"time"
)

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// Duration is a time.Duration that reads and writes as "30s" in YAML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the top-level docintake configuration, corresponding to .docintake.yml.
type Config struct {
	Provider          ProviderType   `yaml:"provider" koanf:"provider"`
	Model             string         `yaml:"model" koanf:"model"`
	BaseURL           string         `yaml:"base_url,omitempty" koanf:"base_url"`
	EmbeddingProvider ProviderType   `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string         `yaml:"embedding_model" koanf:"embedding_model"`
	EmbeddingBaseURL  string         `yaml:"embedding_base_url,omitempty" koanf:"embedding_base_url"`
	Index             IndexConfig    `yaml:"index" koanf:"index"`
	OCR               OCRConfig      `yaml:"ocr" koanf:"ocr"`
	Pipeline          PipelineConfig `yaml:"pipeline" koanf:"pipeline"`
	Store             StoreConfig    `yaml:"store" koanf:"store"`
	Server            ServerConfig   `yaml:"server" koanf:"server"`
	LLM               LLMConfig      `yaml:"llm" koanf:"llm"`
	Log               LogConfig      `yaml:"log" koanf:"log"`
}

// IndexConfig locates the reference index and tunes classification.
type IndexConfig struct {
	Dir       string  `yaml:"dir" koanf:"dir"`
	CorpusDir string  `yaml:"corpus_dir" koanf:"corpus_dir"`
	K         int     `yaml:"k" koanf:"k"`
	Policy    string  `yaml:"policy" koanf:"policy"`
	Threshold float64 `yaml:"threshold" koanf:"threshold"`
}

// OCRConfig locates tesseract and pdftoppm.
type OCRConfig struct {
	Tesseract   string `yaml:"tesseract" koanf:"tesseract"`
	Pdftoppm    string `yaml:"pdftoppm" koanf:"pdftoppm"`
	Lang        string `yaml:"lang" koanf:"lang"`
	TessdataDir string `yaml:"tessdata_dir,omitempty" koanf:"tessdata_dir"`
	DPI         int    `yaml:"dpi" koanf:"dpi"`
	MaxPages    int    `yaml:"max_pages" koanf:"max_pages"`
}

// PipelineConfig controls batch processing.
type PipelineConfig struct {
	Concurrency    int      `yaml:"concurrency" koanf:"concurrency"`
	OCRTimeout     Duration `yaml:"ocr_timeout" koanf:"ocr_timeout"`
	EmbedTimeout   Duration `yaml:"embed_timeout" koanf:"embed_timeout"`
	ExtractTimeout Duration `yaml:"extract_timeout" koanf:"extract_timeout"`
	FailOnError    bool     `yaml:"fail_on_error" koanf:"fail_on_error"`
	Exclude        []string `yaml:"exclude" koanf:"exclude"`
	// MaxFileMB fails larger documents instead of OCRing them. 0 means
	// no limit.
	MaxFileMB int `yaml:"max_file_mb" koanf:"max_file_mb"`
}

// StoreConfig locates persisted records.
type StoreConfig struct {
	Dir        string `yaml:"dir" koanf:"dir"`
	SQLitePath string `yaml:"sqlite_path" koanf:"sqlite_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int  `yaml:"port" koanf:"port"`
	AllowAllCORS bool `yaml:"allow_all_cors" koanf:"allow_all_cors"`
	MaxUploadMB  int  `yaml:"max_upload_mb" koanf:"max_upload_mb"`
}

// LLMConfig tunes extraction calls.
type LLMConfig struct {
	RPM            int         `yaml:"rpm" koanf:"rpm"`
	Temperature    float64     `yaml:"temperature" koanf:"temperature"`
	MaxTokens      int         `yaml:"max_tokens" koanf:"max_tokens"`
	MaxInputTokens int         `yaml:"max_input_tokens" koanf:"max_input_tokens"`
	Retry          RetryConfig `yaml:"retry" koanf:"retry"`
}

// RetryConfig maps onto resilience.Config.
type RetryConfig struct {
	MaxAttempts        int      `yaml:"max_attempts" koanf:"max_attempts"`
	InitialBackoff     Duration `yaml:"initial_backoff" koanf:"initial_backoff"`
	MaxBackoff         Duration `yaml:"max_backoff" koanf:"max_backoff"`
	Breaker            bool     `yaml:"breaker" koanf:"breaker"`
	BreakerMinRequests int      `yaml:"breaker_min_requests" koanf:"breaker_min_requests"`
	BreakerRatio       float64  `yaml:"breaker_ratio" koanf:"breaker_ratio"`
	BreakerCooldown    Duration `yaml:"breaker_cooldown" koanf:"breaker_cooldown"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}
