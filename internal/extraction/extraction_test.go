package extraction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/llm"
	"github.com/ziadkadry99/docintake/internal/resilience"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// scriptedProvider replies with each entry of replies in turn; an entry
// that is an error is returned as such.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []any
	calls   []llm.CompletionRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	i := min(len(p.calls)-1, len(p.replies)-1)
	switch r := p.replies[i].(type) {
	case error:
		return nil, r
	case string:
		return &llm.CompletionResponse{Content: r}, nil
	}
	return nil, errors.New("bad script")
}

func newExtractor(p llm.Provider) *LLMExtractor {
	exec := resilience.NewExecutor(resilience.Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, discard)
	return New(p, exec, Config{Model: DefaultModel, Temperature: DefaultTemperature}, discard)
}

func TestExtractReturnsFields(t *testing.T) {
	p := &scriptedProvider{replies: []any{`{"amount": 1500, "company": "ACME", "description": ["paint", "labour"]}`}}
	res, err := newExtractor(p).Extract(context.Background(), doctype.Invoice, "INVOICE ACME 1500", []string{"amount", "company", "description"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Malformed != nil || len(res.Missing) != 0 || len(res.Nonconforming) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Fields["company"] != "ACME" || res.Fields["amount"] != 1500.0 {
		t.Errorf("unexpected fields: %v", res.Fields)
	}

	req := p.calls[0]
	if !req.JSONMode || req.Temperature != DefaultTemperature || req.Model != DefaultModel {
		t.Errorf("unexpected request settings: %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem || req.Messages[1].Role != llm.RoleUser {
		t.Fatalf("expected system then user message, got %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, "valid JSON object") {
		t.Errorf("system message = %q", req.Messages[0].Content)
	}
	prompt := req.Messages[1].Content
	for _, want := range []string{"type 'invoice'", "amount, company, description", "INVOICE ACME 1500"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestExtractReportsMissingFields(t *testing.T) {
	p := &scriptedProvider{replies: []any{`{"date": "2024-03-01"}`}}
	res, err := newExtractor(p).Extract(context.Background(), doctype.Memo, "memo", []string{"date", "from", "subject"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Missing) != 2 || res.Missing[0] != "from" || res.Missing[1] != "subject" {
		t.Errorf("Missing = %v", res.Missing)
	}
}

func TestExtractFlagsNonPrimitiveValues(t *testing.T) {
	reply := `{"date": "2024-03-01", "from": {"name": "Ann", "dept": "HR"}, "subject": ["a", {"b": 1}]}`
	p := &scriptedProvider{replies: []any{reply}}
	res, err := newExtractor(p).Extract(context.Background(), doctype.Memo, "memo", []string{"date", "from", "subject"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Missing) != 0 {
		t.Errorf("every key is present, Missing = %v", res.Missing)
	}
	if len(res.Nonconforming) != 2 || res.Nonconforming[0] != "from" || res.Nonconforming[1] != "subject" {
		t.Errorf("Nonconforming = %v", res.Nonconforming)
	}
	if _, ok := res.Fields["from"].(map[string]any); !ok {
		t.Errorf("nonconforming values are kept for flattening, got %v", res.Fields["from"])
	}
}

func TestExtractReportsMissingAndNonconformingTogether(t *testing.T) {
	p := &scriptedProvider{replies: []any{`{"a/b": {"x": 1}}`}}
	res, err := newExtractor(p).Extract(context.Background(), doctype.Form, "form", []string{"a/b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Missing) != 1 || res.Missing[0] != "c" {
		t.Errorf("Missing = %v", res.Missing)
	}
	if len(res.Nonconforming) != 1 || res.Nonconforming[0] != "a/b" {
		t.Errorf("Nonconforming = %v", res.Nonconforming)
	}
}

func TestExtractMalformedIsNotFatal(t *testing.T) {
	for _, reply := range []string{"Sure! The date is Monday.", `["a", "b"]`, `"just a string"`} {
		p := &scriptedProvider{replies: []any{reply}}
		res, err := newExtractor(p).Extract(context.Background(), doctype.Letter, "text", []string{"date"})
		if err != nil {
			t.Fatalf("%q: malformed reply should not be an error, got %v", reply, err)
		}
		if !errors.Is(res.Malformed, ErrMalformedResponse) {
			t.Errorf("%q: Malformed = %v", reply, res.Malformed)
		}
		if res.Fields == nil || len(res.Fields) != 0 {
			t.Errorf("%q: expected empty non-nil fields, got %v", reply, res.Fields)
		}
	}
}

func TestExtractStripsCodeFences(t *testing.T) {
	p := &scriptedProvider{replies: []any{"```json\n{\"subject\": \"Physics\"}\n```"}}
	res, err := newExtractor(p).Extract(context.Background(), doctype.Form, "form", []string{"subject"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Fields["subject"] != "Physics" {
		t.Errorf("fields = %v", res.Fields)
	}
}

func TestExtractRetriesTransientErrors(t *testing.T) {
	p := &scriptedProvider{replies: []any{
		&llm.StatusError{Provider: "ollama", Code: 503},
		`{"subject": "x"}`,
	}}
	res, err := newExtractor(p).Extract(context.Background(), doctype.Handwritten, "x", []string{"subject"})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if len(p.calls) != 2 || res.Fields["subject"] != "x" {
		t.Errorf("calls=%d fields=%v", len(p.calls), res.Fields)
	}
}

func TestExtractProviderFailureIsAnError(t *testing.T) {
	p := &scriptedProvider{replies: []any{&llm.StatusError{Provider: "ollama", Code: 400}}}
	_, err := newExtractor(p).Extract(context.Background(), doctype.Handwritten, "x", []string{"subject"})
	var se *llm.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if len(p.calls) != 1 {
		t.Errorf("client errors should not be retried, got %d calls", len(p.calls))
	}
}

func TestExtractNoFieldsSkipsCall(t *testing.T) {
	p := &scriptedProvider{replies: []any{`{}`}}
	res, err := newExtractor(p).Extract(context.Background(), doctype.Type(99), "x", nil)
	if err != nil || len(res.Fields) != 0 {
		t.Fatalf("got %v, %v", res, err)
	}
	if len(p.calls) != 0 {
		t.Error("provider should not be called without fields")
	}
}

func TestExtractTruncatesLongText(t *testing.T) {
	p := &scriptedProvider{replies: []any{`{"subject": "x"}`}}
	e := New(p, nil, Config{MaxInputTokens: 10}, discard)
	long := strings.Repeat("z", 1000)
	if _, err := e.Extract(context.Background(), doctype.Form, long, []string{"subject"}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(p.calls[0].Messages[1].Content, strings.Repeat("z", 41)) {
		t.Error("document text was not truncated")
	}
}

func TestSchemaRequiresEveryField(t *testing.T) {
	s := Schema([]string{"a", "b"})
	req, ok := s["required"].([]string)
	if !ok || len(req) != 2 || req[0] != "a" || req[1] != "b" {
		t.Errorf("required = %v", s["required"])
	}
	if s["type"] != "object" {
		t.Errorf("type = %v", s["type"])
	}
	props := s["properties"].(map[string]any)
	a := props["a"].(map[string]any)
	if types := a["type"].([]string); slices.Contains(types, "object") || !slices.Contains(types, "array") {
		t.Errorf("field types = %v", types)
	}
}
