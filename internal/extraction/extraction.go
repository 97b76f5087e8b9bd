// Package extraction asks an LLM to fill in the entity fields expected for
// a document type.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/llm"
	"github.com/ziadkadry99/docintake/internal/resilience"
)

// Defaults match the model settings the extraction prompt was tuned on.
const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.2
	DefaultTimeout     = 60 * time.Second
	// DefaultMaxInputTokens keeps prompt plus reply inside a 16k context.
	DefaultMaxInputTokens = 12000
)

// Extractor fills entity fields for a classified document.
type Extractor interface {
	Extract(ctx context.Context, label doctype.Type, text string, fields []string) (Result, error)
}

// Result is one extraction. Fields holds the decoded reply as returned
// by the model; callers flatten it. Nonconforming names fields whose
// value was a nested object or similar; they are kept and flattened to
// their string form. Malformed is set, and Fields empty, when the reply
// was not a JSON object.
type Result struct {
	Fields        map[string]any
	Missing       []string
	Nonconforming []string
	Malformed     error
}

// Config tunes the LLM call.
type Config struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	MaxInputTokens int
	Timeout        time.Duration
}

// LLMExtractor implements Extractor with a chat-completion provider.
type LLMExtractor struct {
	provider llm.Provider
	exec     *resilience.Executor
	cfg      Config
	logger   *slog.Logger
	valid    *validator
}

// New creates an LLMExtractor. exec may be nil to call the provider
// without retries.
func New(provider llm.Provider, exec *resilience.Executor, cfg Config, logger *slog.Logger) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxInputTokens == 0 {
		cfg.MaxInputTokens = DefaultMaxInputTokens
	}
	return &LLMExtractor{
		provider: provider,
		exec:     exec,
		cfg:      cfg,
		logger:   logger,
		valid:    newValidator(),
	}
}

// Extract asks the model for fields of a label-typed document. Provider
// failures, after retries, are returned as errors. A malformed reply is
// not an error: it is logged and yields an empty Fields map.
func (e *LLMExtractor) Extract(ctx context.Context, label doctype.Type, text string, fields []string) (Result, error) {
	if len(fields) == 0 {
		return Result{Fields: map[string]any{}}, nil
	}

	req := llm.CompletionRequest{
		Model:       e.cfg.Model,
		Messages:    BuildMessages(label, llm.TruncateToTokens(text, e.cfg.MaxInputTokens), fields),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		JSONMode:    true,
	}

	resp, err := e.complete(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("extract %s fields: %w", label, err)
	}

	obj, viol, err := e.valid.Parse(resp.Content, fields)
	if err != nil {
		if !errors.Is(err, ErrMalformedResponse) {
			return Result{}, err
		}
		e.logger.Warn("malformed extraction response", "label", label.String(), "error", err)
		return Result{Fields: map[string]any{}, Missing: fields, Malformed: err}, nil
	}
	if len(viol.Missing) > 0 {
		e.logger.Debug("extraction response missing fields", "label", label.String(), "missing", viol.Missing)
	}
	if len(viol.Nonconforming) > 0 {
		e.logger.Warn("extraction response has non-primitive values", "label", label.String(), "fields", viol.Nonconforming)
	}
	return Result{Fields: obj, Missing: viol.Missing, Nonconforming: viol.Nonconforming}, nil
}

func (e *LLMExtractor) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	call := func(ctx context.Context) (*llm.CompletionResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
		return e.provider.Complete(ctx, req)
	}
	if e.exec == nil {
		return call(ctx)
	}
	return resilience.Do(ctx, e.exec, "extract", call, resilience.FromRetryable(llm.IsRetryable))
}
