package llm

import (
	"context"
	"sync/atomic"
)

// modelPricing holds per-model pricing in USD per 1M tokens.
type modelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var priceTable = map[string]modelPricing{
	"gpt-3.5-turbo": {InputPerMillion: 0.50, OutputPerMillion: 1.50},
	"gpt-4o":        {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":   {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1-mini":  {InputPerMillion: 0.40, OutputPerMillion: 1.60},
}

// EstimateCost returns the estimated cost in USD for the given model and token counts.
// Returns 0 if the model is not found in the price table (local models are free).
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := priceTable[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000.0*pricing.InputPerMillion +
		float64(outputTokens)/1_000_000.0*pricing.OutputPerMillion
}

// EstimateTokens provides a rough token count using 1 token per 4 bytes.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		return 1
	}
	return n
}

// TruncateToTokens cuts text so that EstimateTokens(text) <= max. It
// never splits a UTF-8 sequence. max <= 0 returns text unchanged.
func TruncateToTokens(text string, max int) string {
	if max <= 0 || EstimateTokens(text) <= max {
		return text
	}
	cut := max * 4
	for cut > 0 && cut < len(text) && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// Usage accumulates token counts across calls. Safe for concurrent use.
type Usage struct {
	calls  atomic.Int64
	input  atomic.Int64
	output atomic.Int64
}

// Add records one response.
func (u *Usage) Add(resp *CompletionResponse) {
	if resp == nil {
		return
	}
	u.calls.Add(1)
	u.input.Add(int64(resp.InputTokens))
	u.output.Add(int64(resp.OutputTokens))
}

// Snapshot returns call count and token totals.
func (u *Usage) Snapshot() (calls, input, output int) {
	return int(u.calls.Load()), int(u.input.Load()), int(u.output.Load())
}

// TrackedProvider records usage of every successful completion.
type TrackedProvider struct {
	Provider
	Usage *Usage
}

// NewTrackedProvider wraps p, recording into u.
func NewTrackedProvider(p Provider, u *Usage) *TrackedProvider {
	return &TrackedProvider{Provider: p, Usage: u}
}

func (t *TrackedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := t.Provider.Complete(ctx, req)
	if err == nil {
		t.Usage.Add(resp)
	}
	return resp, err
}
