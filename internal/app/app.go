// Package app assembles the long-lived collaborators of a docintake
// process from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/config"
	"github.com/ziadkadry99/docintake/internal/corpus"
	"github.com/ziadkadry99/docintake/internal/db"
	"github.com/ziadkadry99/docintake/internal/embeddings"
	"github.com/ziadkadry99/docintake/internal/extraction"
	"github.com/ziadkadry99/docintake/internal/index"
	"github.com/ziadkadry99/docintake/internal/llm"
	"github.com/ziadkadry99/docintake/internal/metrics"
	"github.com/ziadkadry99/docintake/internal/ocr"
	"github.com/ziadkadry99/docintake/internal/pipeline"
	"github.com/ziadkadry99/docintake/internal/resilience"
	"github.com/ziadkadry99/docintake/internal/vectordb"
)

// Options override parts of the configured runtime.
type Options struct {
	// ForceRebuild rebuilds the reference index even if one is on disk.
	ForceRebuild bool
	// Embedder replaces the configured embedding provider.
	Embedder embeddings.Embedder
	// Provider replaces the configured completion provider. It is still
	// wrapped with rate limiting and usage tracking.
	Provider   llm.Provider
	OnProgress pipeline.ProgressFunc
}

// Runtime holds every collaborator built at startup. Create one with New
// and release it with Close.
type Runtime struct {
	Config     *config.Config
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Embedder   embeddings.Embedder
	Index      *index.Result
	Classifier *classifier.Classifier
	Usage      *llm.Usage
	Extractor  *extraction.LLMExtractor
	OCR        *ocr.Extractor
	Store      *vectordb.ChromemStore
	DB         *db.DB
	Records    *db.RecordStore
	Pipeline   *pipeline.Pipeline
}

// New builds the runtime. The embedding provider is probed first and the
// reference index is loaded or built before anything is processed; both
// failures are fatal.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Logger: logger, Metrics: metrics.New("docintake"), Usage: &llm.Usage{}}

	emb := opts.Embedder
	if emb == nil {
		var err error
		if emb, err = NewEmbedder(cfg); err != nil {
			return nil, err
		}
	}
	rt.Embedder = emb

	res, err := LoadIndex(ctx, cfg, emb, opts.ForceRebuild, logger)
	if err != nil {
		return nil, err
	}
	rt.Index = res

	policy, err := classifier.ParsePolicy(cfg.Index.Policy)
	if err != nil {
		return nil, err
	}
	rt.Classifier = classifier.New(res.Index, emb, classifier.Config{
		K:         cfg.Index.K,
		Threshold: cfg.Index.Threshold,
		Policy:    policy,
		Timeout:   cfg.Pipeline.EmbedTimeout.Std(),
	}, logger)

	provider := opts.Provider
	if provider == nil {
		if provider, err = llm.NewProvider(string(cfg.Provider), cfg.Model, cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("create completion provider: %w", err)
		}
	}
	provider = llm.NewTrackedProvider(llm.NewRateLimitedProvider(provider, cfg.LLM.RPM), rt.Usage)
	exec := resilience.NewExecutor(RetryPolicy(cfg.LLM.Retry), logger)
	rt.Extractor = extraction.New(provider, exec, extraction.Config{
		Model:          cfg.Model,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		MaxInputTokens: cfg.LLM.MaxInputTokens,
		Timeout:        cfg.Pipeline.ExtractTimeout.Std(),
	}, logger)

	rt.OCR = ocr.NewExtractor(OCRConfig(cfg.OCR), logger)

	if rt.Store, err = vectordb.OpenChromemStore(cfg.Store.Dir, emb); err != nil {
		return nil, err
	}
	if rt.DB, rt.Records, err = OpenRecords(cfg); err != nil {
		return nil, err
	}

	rt.Pipeline = pipeline.New(pipeline.Deps{
		OCR:        rt.OCR,
		Classifier: rt.Classifier,
		Extractor:  rt.Extractor,
		Store:      rt.Store,
		Records:    rt.Records,
	}, pipeline.Options{
		Concurrency: cfg.Pipeline.Concurrency,
		Policy:      policy,
		OCRTimeout:  cfg.Pipeline.OCRTimeout.Std(),
		MaxFileSize: int64(cfg.Pipeline.MaxFileMB) << 20,
		Exclude:     cfg.Pipeline.Exclude,
		Logger:      logger,
		Metrics:     rt.Metrics,
		OnProgress:  opts.OnProgress,
	})

	logger.Info("runtime ready",
		"embedder", emb.Name(),
		"index_size", res.Index.Len(),
		"index_built", res.Built,
		"provider", cfg.Provider,
		"model", cfg.Model,
	)
	return rt, nil
}

// Close releases the record database.
func (rt *Runtime) Close() error {
	if rt == nil || rt.DB == nil {
		return nil
	}
	return rt.DB.Close()
}

// NewEmbedder creates the configured embedding provider. An empty
// embedding provider falls back to the completion provider.
func NewEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = config.GetPreset(provider).EmbeddingModel
	}

	switch provider {
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(model, 0, cfg.EmbeddingBaseURL), nil
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model), cfg.EmbeddingBaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", provider)
	}
}

// LoadIndex probes emb and loads, or builds from the configured corpus,
// the reference index.
func LoadIndex(ctx context.Context, cfg *config.Config, emb embeddings.Embedder, force bool, logger *slog.Logger) (*index.Result, error) {
	probeCtx := ctx
	if d := cfg.Pipeline.EmbedTimeout.Std(); d > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	dim, err := classifier.Probe(probeCtx, emb)
	if err != nil {
		return nil, err
	}

	corpusDir := cfg.Index.CorpusDir
	return index.LoadOrBuild(ctx, index.Options{
		Dir:      cfg.Index.Dir,
		Embedder: emb,
		Dim:      dim,
		Corpus: func(context.Context) ([]corpus.Sample, corpus.LoadReport, error) {
			return corpus.Load(corpusDir, logger)
		},
		Force:  force,
		Logger: logger,
	})
}

// OpenRecords opens the sqlite record log.
func OpenRecords(cfg *config.Config) (*db.DB, *db.RecordStore, error) {
	d, err := db.Open(cfg.Store.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return d, db.NewRecordStore(d), nil
}

// RetryPolicy maps the retry section of the config onto the executor.
func RetryPolicy(rc config.RetryConfig) resilience.Config {
	c := resilience.DefaultConfig()
	c.MaxAttempts = rc.MaxAttempts
	c.InitialBackoff = rc.InitialBackoff.Std()
	c.MaxBackoff = rc.MaxBackoff.Std()
	c.BreakerEnabled = rc.Breaker
	if rc.BreakerMinRequests > 0 {
		c.BreakerMinRequests = uint32(rc.BreakerMinRequests)
	}
	c.BreakerRatio = rc.BreakerRatio
	c.BreakerCooldown = rc.BreakerCooldown.Std()
	return c
}

// OCRConfig maps the ocr section of the config onto the extractor.
func OCRConfig(oc config.OCRConfig) ocr.Config {
	c := ocr.DefaultConfig()
	if oc.Tesseract != "" {
		c.Tesseract = oc.Tesseract
	}
	if oc.Pdftoppm != "" {
		c.Pdftoppm = oc.Pdftoppm
	}
	if oc.Lang != "" {
		c.Lang = oc.Lang
	}
	if oc.DPI > 0 {
		c.DPI = oc.DPI
	}
	c.TessdataDir = oc.TessdataDir
	c.MaxPages = oc.MaxPages
	return c
}
